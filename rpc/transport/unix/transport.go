package unix

import (
	"github.com/ValentinKolb/solo/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var Logger = logger.GetLogger("transport")

const (
	// probeTimeout bounds the liveness probe of an existing socket file during Bind
	probeTimeout = 250 * time.Millisecond

	// lockSuffix is appended to the socket path to get the path of the bind lock file
	lockSuffix = ".lock"
)

// unixTransport implements transport.ITransport using Unix domain sockets.
// Go supports AF_UNIX on all unix systems and on Windows 10+, so this transport
// serves both OS families, only the bind lock differs per platform.
type unixTransport struct {
	// dir is the directory for endpoint names that are not a path
	dir string
}

// --------------------------------------------------------------------------
// Transport Factory Methods
// --------------------------------------------------------------------------

// NewUnixTransport creates a transport that places sockets in the temp directory
func NewUnixTransport() transport.ITransport {
	return NewUnixTransportIn(os.TempDir())
}

// NewUnixTransportIn creates a transport that places sockets in dir
func NewUnixTransportIn(dir string) transport.ITransport {
	return &unixTransport{dir: dir}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.ITransport)
// --------------------------------------------------------------------------

func (t *unixTransport) GetName() string {
	return "unix"
}

// Address resolves an endpoint to a socket path. Endpoint names containing a path
// separator are used as is, plain names are placed in the transport directory.
func (t *unixTransport) Address(endpoint string) string {
	if strings.ContainsRune(endpoint, '/') || strings.ContainsRune(endpoint, filepath.Separator) {
		return filepath.Clean(endpoint)
	}
	return filepath.Join(t.dir, endpoint)
}
