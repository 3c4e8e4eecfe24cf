package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"github.com/ValentinKolb/solo/rpc/common"
)

// --------------------------------------------------------------------------
// Decode Outcome
// --------------------------------------------------------------------------

// Outcome is the result of a single Cursor.Decode call
type Outcome uint8

const (
	// OutcomeIncomplete means more bytes are needed, nothing was consumed
	OutcomeIncomplete Outcome = iota
	// OutcomeComplete means a valid frame was decoded and consumed
	OutcomeComplete
	// OutcomeInvalid means a field failed validation and exactly one byte was dropped
	OutcomeInvalid
)

func (o Outcome) String() string {
	switch o {
	case OutcomeIncomplete:
		return "incomplete"
	case OutcomeComplete:
		return "complete"
	case OutcomeInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// --------------------------------------------------------------------------
// Cursor
// --------------------------------------------------------------------------

// Cursor holds the unconsumed bytes of one byte stream and the progress of the frame
// currently being decoded. A Cursor is not safe for concurrent use, it belongs to
// exactly one connection.
type Cursor struct {
	buf   []byte
	start int // index of the first unconsumed byte in buf

	// frameLen is the total length of the in-flight frame once its header was validated
	// (0 while the header is still incomplete)
	frameLen int
}

// NewCursor creates an empty cursor
func NewCursor() *Cursor {
	return &Cursor{}
}

// Buffered returns the number of unconsumed bytes
func (c *Cursor) Buffered() int {
	return len(c.buf) - c.start
}

// Decode appends data to the buffer and tries to decode one frame at its front.
//
// On OutcomeComplete the returned message is valid and the frame was consumed, the caller
// should call Decode(nil) again since more frames may be buffered. On OutcomeIncomplete
// all bytes are retained. On OutcomeInvalid exactly one byte was dropped and the returned
// error wraps the failed validation, the caller must call Decode again to resynchronize.
func (c *Cursor) Decode(data []byte) (Outcome, common.Message, error) {
	if len(data) > 0 {
		c.append(data)
	}
	return c.parse()
}

// append adds data to the buffer, compacting consumed bytes first
func (c *Cursor) append(data []byte) {
	if c.start > 0 && c.start >= len(c.buf)/2 {
		n := copy(c.buf, c.buf[c.start:])
		c.buf = c.buf[:n]
		c.start = 0
	}
	c.buf = append(c.buf, data...)
}

// consume drops n bytes from the front of the buffer
func (c *Cursor) consume(n int) {
	c.start += n
	if c.start >= len(c.buf) {
		c.buf = c.buf[:0]
		c.start = 0
	}
}

// parse validates the fields at the front of the buffer in wire order
func (c *Cursor) parse() (Outcome, common.Message, error) {
	p := c.buf[c.start:]

	// the header of the in-flight frame was validated already
	if c.frameLen > 0 {
		if len(p) < c.frameLen {
			return OutcomeIncomplete, common.Message{}, nil
		}
		return c.finish(p)
	}

	// magic, byte by byte
	for i := range Magic {
		if len(p) <= i {
			return OutcomeIncomplete, common.Message{}, nil
		}
		if p[i] != Magic[i] {
			return c.invalid(ErrMagicMismatch)
		}
	}

	// protocol version
	if len(p) < offType {
		return OutcomeIncomplete, common.Message{}, nil
	}
	if version := binary.BigEndian.Uint32(p[offVersion:offType]); version > ProtocolVersion {
		return c.invalid(fmt.Errorf("%w: %d", ErrProtocolVersionTooNew, version))
	}

	// message type
	if len(p) <= offType {
		return OutcomeIncomplete, common.Message{}, nil
	}
	if msgType := common.MessageType(p[offType]); !msgType.Valid() {
		return c.invalid(fmt.Errorf("%w: %d", ErrUnexpectedMessageType, uint8(msgType)))
	}

	// instance id and content length
	if len(p) < HeaderLen {
		return OutcomeIncomplete, common.Message{}, nil
	}
	length := binary.BigEndian.Uint64(p[offLength:HeaderLen])
	if length > common.MaxContentSize {
		return c.invalid(fmt.Errorf("%w: %d bytes", ErrOversizeContent, length))
	}

	c.frameLen = Overhead + int(length)
	if len(p) < c.frameLen {
		return OutcomeIncomplete, common.Message{}, nil
	}
	return c.finish(p)
}

// finish verifies the checksum of a fully buffered frame and consumes it
func (c *Cursor) finish(p []byte) (Outcome, common.Message, error) {
	contentEnd := c.frameLen - TrailerLen
	content := p[HeaderLen:contentEnd]
	checksum := binary.BigEndian.Uint16(p[contentEnd:c.frameLen])

	if computed := Checksum(content); computed != checksum {
		return c.invalid(fmt.Errorf("%w: got %#04x, computed %#04x", ErrChecksumMismatch, checksum, computed))
	}

	msg := common.Message{
		MsgType:    common.MessageType(p[offType]),
		InstanceID: binary.BigEndian.Uint16(p[offInstance:offLength]),
		Content:    make([]byte, len(content)),
	}
	copy(msg.Content, content)

	c.consume(c.frameLen)
	c.frameLen = 0

	framesDecoded.Inc()
	return OutcomeComplete, msg, nil
}

// invalid drops exactly one byte so the next call starts one byte further
func (c *Cursor) invalid(err error) (Outcome, common.Message, error) {
	c.frameLen = 0
	c.consume(1)
	countInvalid(err)
	return OutcomeInvalid, common.Message{}, err
}

// IsFrameError reports whether err is one of the frame level validation errors
func IsFrameError(err error) bool {
	return errors.Is(err, ErrMagicMismatch) ||
		errors.Is(err, ErrProtocolVersionTooNew) ||
		errors.Is(err, ErrUnexpectedMessageType) ||
		errors.Is(err, ErrOversizeContent) ||
		errors.Is(err, ErrChecksumMismatch)
}
