package common

import "errors"

// --------------------------------------------------------------------------
// Transport errors
// --------------------------------------------------------------------------

var (
	// ErrBindFailure signals that the endpoint is already claimed by another process
	// or cannot be used (permissions, invalid name)
	ErrBindFailure = errors.New("bind failure")

	// ErrConnectTimeout signals that no connection could be established in time
	ErrConnectTimeout = errors.New("connect timeout")

	// ErrConnectRefused signals that nobody is listening on the endpoint
	ErrConnectRefused = errors.New("connect refused")

	// ErrNotBound signals that an accept loop was started without a bound endpoint
	ErrNotBound = errors.New("endpoint not bound")
)

// --------------------------------------------------------------------------
// Handshake and query errors (surfaced to the secondary side caller)
// --------------------------------------------------------------------------

var (
	ErrHandshakeTimeout   = errors.New("handshake timeout")
	ErrInvalidAcknowledge = errors.New("invalid acknowledge")
	ErrQueryTimeout       = errors.New("query timeout")
	ErrQueryDecodeFailure = errors.New("query decode failure")
)

// --------------------------------------------------------------------------
// Coordinator errors
// --------------------------------------------------------------------------

var (
	// ErrStartup signals that the process could neither claim nor join the endpoint
	ErrStartup = errors.New("startup failure: could neither claim nor join endpoint")

	ErrNotPrimary   = errors.New("instance is not the primary")
	ErrNotSecondary = errors.New("instance is not a secondary")
	ErrClosed       = errors.New("instance is closed")

	// ErrEndpointRemoved is reported by the primary when its endpoint vanished from the
	// file system while it was still listening
	ErrEndpointRemoved = errors.New("endpoint removed")
)
