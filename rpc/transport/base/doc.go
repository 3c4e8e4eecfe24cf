// Package base provides the protocol independent connection handling of the single
// instance protocol on top of any transport.ITransport implementation.
//
// The package focuses on:
//   - An accept loop that can be stopped cooperatively within one poll interval
//   - Decoding the byte stream of a connection into messages, whatever the chunking
//   - A request/reply client connection for the secondary side
//
// Key Components:
//
//   - Acceptor: owns the listener of a bound endpoint. Its state only moves forward
//     (Idle -> Listening -> Stopping -> Stopped). Stop is idempotent, joins the loop and
//     only then closes the listener.
//
//   - ConnectionDecoder: one codec.Cursor per connection. Every read is decoded until
//     the cursor needs more bytes, corrupted bytes are dropped one at a time until the
//     stream resynchronizes. Bytes delivered together with a read error are decoded
//     first.
//
//   - ClientConnection: one outstanding request per connection with a deadline on every
//     wait. A failed connection is dropped and re-established by the next request.
//
// Metrics: accepted connections and accept errors are counted with VictoriaMetrics
// counters (solo_connections_accepted_total, solo_accept_errors_total).
//
// Thread Safety:
//
//	Acceptor and ClientConnection are safe for concurrent use. A ConnectionDecoder
//	belongs to the goroutine serving its connection.
package base
