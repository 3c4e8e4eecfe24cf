package unix

import (
	"fmt"
	"github.com/ValentinKolb/solo/rpc/common"
	"github.com/ValentinKolb/solo/rpc/transport"
	"net"
	"os"
	"sync"
)

// Bind claims the endpoint by listening on its socket path.
//
// A socket file left behind by a crashed primary would block the bind forever, so if the
// path exists the socket is probed: a live primary keeps the endpoint claimed, a dead
// socket is removed and the bind is retried once. The probe and the removal run under an
// exclusive file lock, a concurrent Bind of another process can never remove a socket that
// was just created.
func (t *unixTransport) Bind(endpoint string) (transport.IListener, error) {
	path := t.Address(endpoint)

	unlock, err := lockEndpoint(path + lockSuffix)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to lock endpoint %s: %v", common.ErrBindFailure, endpoint, err)
	}
	defer unlock()

	listener, err := listen(path)
	if err == nil {
		return listener, nil
	}

	// Case no socket file: the path is unusable (permissions, invalid name, ...)
	if _, statErr := os.Lstat(path); statErr != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrBindFailure, err)
	}

	// Case live primary: the endpoint is claimed
	if isAlive(path) {
		return nil, fmt.Errorf("%w: endpoint %s is claimed by another process", common.ErrBindFailure, endpoint)
	}

	// Case stale socket: remove it and try again
	Logger.Warningf("Removing stale socket %s", path)
	if err := os.Remove(path); err != nil {
		return nil, fmt.Errorf("%w: failed to remove stale socket: %v", common.ErrBindFailure, err)
	}

	listener, err = listen(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrBindFailure, err)
	}
	return listener, nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// socketListener owns the socket file it created. On Close the file is removed under the
// bind lock and only if it is still this listener's socket: between closing the socket and
// removing the file a concurrent Bind may already have replaced a file it found dead.
type socketListener struct {
	*net.UnixListener
	path string
	info os.FileInfo

	closeOnce sync.Once
	closeErr  error
}

func (l *socketListener) Close() error {
	l.closeOnce.Do(func() {
		unlock, lockErr := lockEndpoint(l.path + lockSuffix)
		if lockErr != nil {
			Logger.Warningf("Failed to lock %s for cleanup: %v", l.path, lockErr)
		} else {
			defer unlock()
		}

		l.closeErr = l.UnixListener.Close()

		current, err := os.Lstat(l.path)
		if err != nil || l.info == nil || !os.SameFile(l.info, current) {
			Logger.Debugf("Socket %s was replaced, leaving it in place", l.path)
			return
		}
		if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
			Logger.Warningf("Failed to remove socket %s: %v", l.path, err)
		}
	})
	return l.closeErr
}

// listen creates a Unix socket listener that removes its own socket file on close
func listen(path string) (*socketListener, error) {
	listener, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		return nil, err
	}
	listener.SetUnlinkOnClose(false)

	info, err := os.Lstat(path)
	if err != nil {
		_ = listener.Close()
		return nil, err
	}
	return &socketListener{UnixListener: listener, path: path, info: info}, nil
}

// isAlive reports whether a process accepts connections on the socket path.
// A probe that times out is treated as alive (a busy primary is still a primary).
func isAlive(path string) bool {
	conn, err := net.DialTimeout("unix", path, probeTimeout)
	if err == nil {
		_ = conn.Close()
		return true
	}
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return true
	}
	return false
}
