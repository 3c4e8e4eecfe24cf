// Package unix implements the transport capability interface with Unix domain sockets.
// Go supports AF_UNIX on every unix system and on Windows 10 and later, so one
// implementation serves both OS families.
//
// Endpoint names are resolved to socket paths: a name containing a path separator is used
// as is, any other name is placed in the temp directory (or the directory passed to
// NewUnixTransportIn).
//
// Key Components:
//
//   - Bind: exclusive listen on the socket path. A socket file left behind by a crashed
//     process is detected by a liveness probe and removed. Probe and removal are guarded
//     by an advisory lock on "<socket>.lock" (flock on unix, LockFileEx on windows), so
//     two starting processes never remove each other's fresh socket.
//
//   - Connect: dial with a timeout, errors are classified as ErrConnectTimeout or
//     ErrConnectRefused.
//
//   - Watch: fsnotify based watcher that reports the removal of the socket file.
//
// Listeners remove their socket file when closed.
package unix
