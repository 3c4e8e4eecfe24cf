// Package codec implements the frame codec of the single instance protocol.
// It converts Messages to frames and decodes frames from a byte stream that
// may deliver data in arbitrary chunks.
//
// Frame Format (big endian):
//
//	magic(4) version(4) type(1) instanceId(2) length(8) content(length) checksum(2)
//
// The magic is 00 01 00 02, the highest understood version is 1, the content is at most
// 1 MiB and the checksum is a CRC-16/CCITT-FALSE over the content only.
//
// Decoding:
//
//   - Cursor: resumable decoder for one byte stream. Every Decode call appends the newly
//     arrived bytes and tries to decode one frame, returning OutcomeComplete,
//     OutcomeIncomplete (no bytes lost) or OutcomeInvalid.
//
//   - Resynchronization: on OutcomeInvalid exactly one byte is dropped from the front of
//     the buffer. Repeated calls therefore find the next valid frame after stream
//     corruption, at the cost of one Decode call per garbage byte.
//
// Metrics: encoded, decoded and invalid frames are counted with VictoriaMetrics counters
// (solo_frames_*_total).
package codec
