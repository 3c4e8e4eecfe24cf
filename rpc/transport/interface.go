package transport

import (
	"context"
	"net"
	"time"
)

// --------------------------------------------------------------------------
// Listening Handle
// --------------------------------------------------------------------------

// IListener is a listening endpoint whose Accept can be bounded by a deadline.
// This is what allows an accept loop to observe a stop signal in time.
type IListener interface {
	net.Listener

	// SetDeadline sets the deadline for future Accept calls.
	// A zero value disables the deadline.
	SetDeadline(t time.Time) error
}

// --------------------------------------------------------------------------
// Transport
// --------------------------------------------------------------------------

// ITransport is the capability interface of a named, connection oriented, byte stream
// local channel. One implementation exists per OS family.
type ITransport interface {
	// GetName returns the name of the transport type (e.g. "unix")
	GetName() string

	// Bind claims the named endpoint exclusively. If the endpoint is already claimed by
	// another process or unusable the returned error wraps common.ErrBindFailure.
	Bind(endpoint string) (IListener, error)

	// Connect connects to the named endpoint. Failures wrap common.ErrConnectTimeout
	// or common.ErrConnectRefused.
	Connect(endpoint string, timeout time.Duration) (net.Conn, error)

	// Address returns the transport specific address of an endpoint (e.g. the socket path)
	Address(endpoint string) string
}

// IEndpointWatcher is implemented by transports whose endpoints can disappear while
// bound (e.g. a socket file deleted by a cleanup job).
type IEndpointWatcher interface {
	// Watch calls onRemoved once when the bound endpoint is removed. The watch ends
	// when ctx is done or after onRemoved was called.
	Watch(ctx context.Context, endpoint string, onRemoved func()) error
}
