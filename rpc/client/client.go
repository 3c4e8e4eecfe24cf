package client

import (
	"fmt"
	"github.com/ValentinKolb/solo/rpc/codec"
	"github.com/ValentinKolb/solo/rpc/common"
	"github.com/ValentinKolb/solo/rpc/transport"
	"github.com/ValentinKolb/solo/rpc/transport/base"
	"time"
)

// RPCInstanceClient is the secondary side of the protocol. It sends announcements,
// application messages and queries to the primary, one request at a time.
type RPCInstanceClient struct {
	config     common.InstanceConfig
	instanceID uint16
	conn       *base.ClientConnection
}

// NewRPCInstanceClient creates a client for the endpoint of the config. Requests carry
// instanceID as the sender. No connection is made before the first request or Connect.
//
// Usage:
//
//	c := client.NewRPCInstanceClient(config, unix.NewUnixTransport(), identity.NewInstanceID())
//	defer c.Close()
//
//	if err := c.Announce([]byte("--open file.txt"), 5*time.Second); err != nil {
//		// handshake failed
//	}
func NewRPCInstanceClient(config common.InstanceConfig, t transport.ITransport, instanceID uint16) *RPCInstanceClient {
	config = config.WithDefaults()
	return &RPCInstanceClient{
		config:     config,
		instanceID: instanceID,
		conn:       base.NewClientConnection(t, config.Endpoint, config.ReadBufferSize),
	}
}

// Connect connects to the primary unless already connected. A non positive timeout
// selects the configured handshake timeout.
func (c *RPCInstanceClient) Connect(timeout time.Duration) error {
	return c.conn.Connect(c.timeout(timeout))
}

// Announce notifies the primary about this secondary (NewInstance) and waits for the
// acknowledge. A non positive timeout selects the configured handshake timeout.
func (c *RPCInstanceClient) Announce(content []byte, timeout time.Duration) error {
	if err := checkContent(content); err != nil {
		return err
	}
	return c.invokeHandshake(common.NewInstanceRequest(c.instanceID, content), c.timeout(timeout))
}

// SendMessage delivers an application message to the primary and waits for the
// acknowledge. A non positive timeout selects the configured handshake timeout.
func (c *RPCInstanceClient) SendMessage(content []byte, timeout time.Duration) error {
	if err := checkContent(content); err != nil {
		return err
	}
	return c.invokeHandshake(common.NewInstanceMessage(c.instanceID, content), c.timeout(timeout))
}

// PrimaryPid queries the process id of the primary. It returns -1 and an error on
// failure. A non positive timeout selects the configured query timeout.
func (c *RPCInstanceClient) PrimaryPid(timeout time.Duration) (int64, error) {
	content, err := c.invokeQuery(common.NewPrimaryPidRequest(c.instanceID), c.queryTimeout(timeout))
	if err != nil {
		return -1, err
	}

	pid, err := common.DecodePid(content)
	if err != nil {
		return -1, fmt.Errorf("%w: %v", common.ErrQueryDecodeFailure, err)
	}
	return pid, nil
}

// PrimaryUser queries the name of the user owning the primary. It returns "" and an
// error on failure. A non positive timeout selects the configured query timeout.
func (c *RPCInstanceClient) PrimaryUser(timeout time.Duration) (string, error) {
	content, err := c.invokeQuery(common.NewPrimaryUserRequest(c.instanceID), c.queryTimeout(timeout))
	if err != nil {
		return "", err
	}
	return string(content), nil
}

// InstanceID returns the id this client sends as
func (c *RPCInstanceClient) InstanceID() uint16 {
	return c.instanceID
}

// Connected reports whether a connection to the primary is established
func (c *RPCInstanceClient) Connected() bool {
	return c.conn.Connected()
}

// Close closes the connection to the primary
func (c *RPCInstanceClient) Close() error {
	return c.conn.Close()
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (c *RPCInstanceClient) timeout(timeout time.Duration) time.Duration {
	if timeout > 0 {
		return timeout
	}
	return c.config.Timeout
}

func (c *RPCInstanceClient) queryTimeout(timeout time.Duration) time.Duration {
	if timeout > 0 {
		return timeout
	}
	return c.config.QueryTimeout
}

// checkContent rejects content the primary could never decode
func checkContent(content []byte) error {
	if len(content) > common.MaxContentSize {
		return fmt.Errorf("%w: %d bytes", codec.ErrContentTooLarge, len(content))
	}
	return nil
}
