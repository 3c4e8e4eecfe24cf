package unix

import (
	"errors"
	"fmt"
	"github.com/ValentinKolb/solo/rpc/common"
	"net"
	"time"
)

// Connect dials the socket of the endpoint. A timeout of zero means no timeout.
func (t *unixTransport) Connect(endpoint string, timeout time.Duration) (net.Conn, error) {
	conn, err := net.DialTimeout("unix", t.Address(endpoint), timeout)
	if err != nil {
		return nil, classifyDialError(endpoint, err)
	}
	return conn, nil
}

// classifyDialError maps a dial error onto the connect error taxonomy
func classifyDialError(endpoint string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %s: %v", common.ErrConnectTimeout, endpoint, err)
	}
	return fmt.Errorf("%w: %s: %v", common.ErrConnectRefused, endpoint, err)
}
