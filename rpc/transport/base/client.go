package base

import (
	"fmt"
	"github.com/ValentinKolb/solo/rpc/codec"
	"github.com/ValentinKolb/solo/rpc/common"
	"github.com/ValentinKolb/solo/rpc/transport"
	"net"
	"sync"
	"time"
)

// ClientConnection is the secondary side of one connection to a primary. It allows one
// outstanding request at a time. A connection that failed during a request is dropped,
// the next request connects again.
type ClientConnection struct {
	transport  transport.ITransport
	endpoint   string
	bufferSize int

	mu      sync.Mutex // one outstanding request, protects conn and decoder
	conn    net.Conn
	decoder *ConnectionDecoder
	closed  bool
}

// NewClientConnection creates an unconnected client connection
func NewClientConnection(t transport.ITransport, endpoint string, bufferSize int) *ClientConnection {
	return &ClientConnection{
		transport:  t,
		endpoint:   endpoint,
		bufferSize: bufferSize,
	}
}

// Connect establishes the connection unless it already exists
func (c *ClientConnection) Connect(timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connect(timeout)
}

// RoundTrip writes msg and waits for one reply until the deadline. The connection is
// established first if needed, bounded by connectTimeout. Any failure drops the
// connection, a late reply can therefore never be taken for the reply of a later request.
func (c *ClientConnection) RoundTrip(msg common.Message, connectTimeout time.Duration, deadline time.Time) (common.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connect(connectTimeout); err != nil {
		return common.Message{}, err
	}

	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		c.drop()
		return common.Message{}, fmt.Errorf("failed to set write deadline: %w", err)
	}
	if err := codec.WriteMessage(c.conn, msg); err != nil {
		c.drop()
		return common.Message{}, err
	}

	reply, err := c.decoder.ReadMessage(deadline)
	if err != nil {
		c.drop()
		return common.Message{}, err
	}
	return reply, nil
}

// Connected reports whether a connection is currently established
func (c *ClientConnection) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Endpoint returns the endpoint this connection targets
func (c *ClientConnection) Endpoint() string {
	return c.endpoint
}

// Reset drops the current connection, the next request connects again
func (c *ClientConnection) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drop()
}

// Close closes the connection, later requests fail with common.ErrClosed
func (c *ClientConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.decoder = nil
	return err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// connect establishes the connection, must be called with mu held
func (c *ClientConnection) connect(timeout time.Duration) error {
	if c.closed {
		return common.ErrClosed
	}
	if c.conn != nil {
		return nil
	}

	conn, err := c.transport.Connect(c.endpoint, timeout)
	if err != nil {
		return err
	}

	c.conn = conn
	c.decoder = NewConnectionDecoder(conn, c.bufferSize)
	Logger.Debugf("Connected to %s using %s transport", c.endpoint, c.transport.GetName())
	return nil
}

// drop closes a failed connection, must be called with mu held
func (c *ClientConnection) drop() {
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = nil
	c.decoder = nil
}
