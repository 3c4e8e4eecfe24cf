// Package transport defines the capability interface of the local IPC channel used
// between the instances of an application. It provides a common contract that all
// transport implementations must fulfill.
//
// The package focuses on:
//   - Exclusive claim of a named endpoint (the single cross process election point)
//   - Accept with a deadline, so accept loops can be stopped cooperatively
//   - Connect with a timeout, so no secondary ever hangs indefinitely
//
// Key Components:
//
//   - ITransport: bind, connect and address resolution for named endpoints.
//
//   - IListener: a net.Listener with an accept deadline.
//
// Implementations live in sub packages (unix). The transport layer only moves bytes,
// framing is done by the codec package and connection handling by the base package.
package transport
