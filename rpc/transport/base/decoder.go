package base

import (
	"errors"
	"github.com/ValentinKolb/solo/rpc/codec"
	"github.com/ValentinKolb/solo/rpc/common"
	"io"
	"net"
	"time"
)

// ConnectionDecoder turns the byte stream of one connection into messages.
// It is owned by a single goroutine.
type ConnectionDecoder struct {
	conn   net.Conn
	cursor *codec.Cursor
	buf    []byte

	// pending holds messages decoded by ReadMessage but not yet returned
	pending []common.Message

	// resyncing is set while consecutive bytes are dropped, so only the first
	// dropped byte of a run is logged as a warning
	resyncing bool
}

// NewConnectionDecoder creates a decoder reading from conn with a read buffer of bufferSize bytes
func NewConnectionDecoder(conn net.Conn, bufferSize int) *ConnectionDecoder {
	if bufferSize <= 0 {
		bufferSize = common.DefaultReadBufferSize
	}
	return &ConnectionDecoder{
		conn:   conn,
		cursor: codec.NewCursor(),
		buf:    make([]byte, bufferSize),
	}
}

// Run reads from the connection until it is closed and calls emit for every decoded
// message in arrival order. Bytes delivered together with an error are decoded before
// the error is handled. A closed connection ends Run without an error.
func (d *ConnectionDecoder) Run(emit func(common.Message)) error {
	for {
		n, err := d.conn.Read(d.buf)
		if n > 0 {
			d.Feed(d.buf[:n], emit)
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
	}
}

// Feed decodes data together with all previously buffered bytes and calls emit for
// every complete message. Invalid bytes are dropped until the stream resynchronizes.
// It returns the number of emitted messages.
func (d *ConnectionDecoder) Feed(data []byte, emit func(common.Message)) int {
	emitted := 0
	outcome, msg, err := d.cursor.Decode(data)

	for {
		switch outcome {
		case codec.OutcomeIncomplete:
			return emitted

		case codec.OutcomeComplete:
			d.resyncing = false
			emitted++
			emit(msg)

		case codec.OutcomeInvalid:
			if !d.resyncing {
				Logger.Warningf("Corrupted stream from %s, resynchronizing: %v", remoteName(d.conn), err)
				d.resyncing = true
			} else {
				Logger.Debugf("Dropped byte: %v", err)
			}
		}

		outcome, msg, err = d.cursor.Decode(nil)
	}
}

// ReadMessage blocks until one complete message was decoded or the deadline passed.
// Frame errors do not end the wait, only connection errors and the deadline do.
func (d *ConnectionDecoder) ReadMessage(deadline time.Time) (common.Message, error) {
	queue := func(msg common.Message) {
		d.pending = append(d.pending, msg)
	}

	for {
		if len(d.pending) > 0 {
			msg := d.pending[0]
			d.pending = d.pending[1:]
			return msg, nil
		}

		if err := d.conn.SetReadDeadline(deadline); err != nil {
			return common.Message{}, err
		}

		n, err := d.conn.Read(d.buf)
		if n > 0 {
			d.Feed(d.buf[:n], queue)
		}
		if err != nil && len(d.pending) == 0 {
			return common.Message{}, err
		}
	}
}

// Buffered returns the number of undecoded bytes
func (d *ConnectionDecoder) Buffered() int {
	return d.cursor.Buffered()
}

// remoteName returns a printable name of the connection peer
func remoteName(conn net.Conn) string {
	if addr := conn.RemoteAddr(); addr != nil && addr.String() != "" {
		return addr.String()
	}
	return "local peer"
}
