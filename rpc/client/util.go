package client

import (
	"errors"
	"fmt"
	"github.com/ValentinKolb/solo/rpc/common"
	"github.com/lni/dragonboat/v4/logger"
	"io"
	"net"
	"os"
	"time"
)

var (
	Logger = logger.GetLogger("client")
)

// exchange sends a request and waits for one reply. Connecting may take up to two thirds
// of the timeout, the whole exchange never takes longer than the timeout.
func (c *RPCInstanceClient) exchange(req *common.Message, timeout time.Duration) (common.Message, error) {
	deadline := time.Now().Add(timeout)
	return c.conn.RoundTrip(*req, timeout*2/3, deadline)
}

// invokeHandshake sends a request that must be answered with an acknowledge of the primary.
// Timeouts wrap common.ErrHandshakeTimeout, a wrong or missing reply wraps
// common.ErrInvalidAcknowledge. A failed connect is returned as is.
func (c *RPCInstanceClient) invokeHandshake(req *common.Message, timeout time.Duration) error {
	reply, err := c.exchange(req, timeout)

	switch {
	case err == nil:
	case isConnectError(err):
		return err
	case isTimeout(err):
		return fmt.Errorf("%w: %s after %s: %v", common.ErrHandshakeTimeout, req.MsgType, timeout, err)
	case isClosedByPeer(err):
		return fmt.Errorf("%w: primary closed the connection before acknowledging %s", common.ErrInvalidAcknowledge, req.MsgType)
	default:
		return fmt.Errorf("%w: %s: %v", common.ErrInvalidAcknowledge, req.MsgType, err)
	}

	if reply.MsgType != common.MsgTAcknowledge {
		c.conn.Reset()
		return fmt.Errorf("%w: expected %s, got %s", common.ErrInvalidAcknowledge, common.MsgTAcknowledge, reply.MsgType)
	}
	if reply.InstanceID != common.PrimaryInstanceID {
		c.conn.Reset()
		return fmt.Errorf("%w: acknowledge from instance %d", common.ErrInvalidAcknowledge, reply.InstanceID)
	}
	return nil
}

// invokeQuery sends a query and returns the content of the primary's reply.
// Timeouts wrap common.ErrQueryTimeout, unexpected replies common.ErrQueryDecodeFailure.
// A failed connect is returned as is.
func (c *RPCInstanceClient) invokeQuery(req *common.Message, timeout time.Duration) ([]byte, error) {
	reply, err := c.exchange(req, timeout)

	switch {
	case err == nil:
	case isConnectError(err):
		return nil, err
	case isTimeout(err):
		return nil, fmt.Errorf("%w: %s after %s: %v", common.ErrQueryTimeout, req.MsgType, timeout, err)
	default:
		return nil, fmt.Errorf("%w: %s: %v", common.ErrQueryDecodeFailure, req.MsgType, err)
	}

	if reply.MsgType != req.MsgType || reply.InstanceID != common.PrimaryInstanceID {
		c.conn.Reset()
		return nil, fmt.Errorf("%w: unexpected reply %s to %s", common.ErrQueryDecodeFailure, reply, req.MsgType)
	}
	return reply.Content, nil
}

// isConnectError reports whether err stems from the connect phase
func isConnectError(err error) bool {
	return errors.Is(err, common.ErrConnectRefused) || errors.Is(err, common.ErrConnectTimeout) || errors.Is(err, common.ErrClosed)
}

// isTimeout reports whether err is a deadline error
func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// isClosedByPeer reports whether the primary closed the connection
func isClosedByPeer(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}
