package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"github.com/ValentinKolb/solo/rpc/common"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/sigurn/crc16"
	"io"
	"net"
)

var Logger = logger.GetLogger("codec")

// --------------------------------------------------------------------------
// Wire Format
// --------------------------------------------------------------------------

// A frame has the format (all integers big endian):
// - 4 bytes: magic (00 01 00 02)
// - 4 bytes: protocol version (uint32)
// - 1 byte:  message type (uint8)
// - 2 bytes: instance id (uint16)
// - 8 bytes: content length (uint64)
// - N bytes: content
// - 2 bytes: checksum (uint16, CRC-16/CCITT-FALSE over the content only)
const (
	// ProtocolVersion is the highest protocol version this codec understands
	ProtocolVersion uint32 = 1

	offVersion  = 4
	offType     = 8
	offInstance = 9
	offLength   = 11

	// HeaderLen is the number of bytes in front of the content
	HeaderLen = 19
	// TrailerLen is the number of bytes after the content (the checksum)
	TrailerLen = 2
	// Overhead is the size of a frame with empty content
	Overhead = HeaderLen + TrailerLen
)

// Magic marks the start of every frame
var Magic = [4]byte{0x00, 0x01, 0x00, 0x02}

var (
	ErrContentTooLarge       = errors.New("codec: content too large")
	ErrMagicMismatch         = errors.New("codec: magic mismatch")
	ErrProtocolVersionTooNew = errors.New("codec: protocol version too new")
	ErrUnexpectedMessageType = errors.New("codec: unexpected message type")
	ErrOversizeContent       = errors.New("codec: declared content length too large")
	ErrChecksumMismatch      = errors.New("codec: checksum mismatch")
)

var crcTable = crc16.MakeTable(crc16.CRC16_CCITT_FALSE)

// Checksum computes the CRC-16/CCITT-FALSE checksum of the content
func Checksum(content []byte) uint16 {
	return crc16.Checksum(content, crcTable)
}

// --------------------------------------------------------------------------
// Encoding
// --------------------------------------------------------------------------

// Encode builds the frame for a message. No bytes are produced if the content exceeds
// common.MaxContentSize or the message type is unknown.
func Encode(msgType common.MessageType, instanceID uint16, content []byte) ([]byte, error) {
	header, trailer, err := encodeParts(msgType, instanceID, content)
	if err != nil {
		return nil, err
	}

	frame := make([]byte, 0, len(header)+len(content)+len(trailer))
	frame = append(frame, header...)
	frame = append(frame, content...)
	frame = append(frame, trailer...)

	framesEncoded.Inc()
	return frame, nil
}

// EncodeMessage builds the frame for msg
func EncodeMessage(msg common.Message) ([]byte, error) {
	return Encode(msg.MsgType, msg.InstanceID, msg.Content)
}

// WriteMessage writes the frame for msg to w. Header, content and checksum are
// combined into a single write operation where the writer supports it.
func WriteMessage(w io.Writer, msg common.Message) error {
	header, trailer, err := encodeParts(msg.MsgType, msg.InstanceID, msg.Content)
	if err != nil {
		return err
	}

	b := net.Buffers{header, msg.Content, trailer}
	if _, err := b.WriteTo(w); err != nil {
		return err
	}

	framesEncoded.Inc()
	return nil
}

// encodeParts validates the message and returns the header and the trailer of its frame
func encodeParts(msgType common.MessageType, instanceID uint16, content []byte) ([]byte, []byte, error) {
	if len(content) > common.MaxContentSize {
		Logger.Warningf("refusing to encode %s with %d bytes content (max %d)", msgType, len(content), common.MaxContentSize)
		return nil, nil, fmt.Errorf("%w: %d bytes", ErrContentTooLarge, len(content))
	}
	if !msgType.Valid() {
		return nil, nil, fmt.Errorf("%w: %d", ErrUnexpectedMessageType, uint8(msgType))
	}

	header := make([]byte, HeaderLen)
	copy(header[:offVersion], Magic[:])
	binary.BigEndian.PutUint32(header[offVersion:offType], ProtocolVersion)
	header[offType] = byte(msgType)
	binary.BigEndian.PutUint16(header[offInstance:offLength], instanceID)
	binary.BigEndian.PutUint64(header[offLength:HeaderLen], uint64(len(content)))

	trailer := make([]byte, TrailerLen)
	binary.BigEndian.PutUint16(trailer, Checksum(content))

	return header, trailer, nil
}
