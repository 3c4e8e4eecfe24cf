package coordinator

import (
	"fmt"
	"github.com/ValentinKolb/solo/lib/identity"
	"github.com/ValentinKolb/solo/rpc/client"
	"github.com/ValentinKolb/solo/rpc/common"
	"github.com/ValentinKolb/solo/rpc/server"
	"github.com/ValentinKolb/solo/rpc/transport"
	"github.com/ValentinKolb/solo/rpc/transport/unix"
	"github.com/lni/dragonboat/v4/logger"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

var Logger = logger.GetLogger("coordinator")

// errorBufferSize is the capacity of the error channel
const errorBufferSize = 16

// MessageHandler receives a message of a secondary on the dispatch goroutine
type MessageHandler func(instanceID uint16, content []byte)

// Coordinator decides whether this process is the primary or a secondary of an
// endpoint and runs the matching side of the protocol.
type Coordinator struct {
	config    common.InstanceConfig
	transport transport.ITransport

	mu         sync.Mutex // protects the role decision and everything decided with it
	role       Role
	instanceID uint16
	endpoint   string
	server     *server.RPCServer
	client     *client.RPCInstanceClient
	closed     bool

	handlersMu    sync.RWMutex
	onMessage     MessageHandler
	onNewInstance MessageHandler

	errors       chan error
	stopCh       chan struct{}
	dispatchDone chan struct{}
	inHandler    atomic.Bool // set while the dispatch goroutine runs a handler
	metrics      *coordinatorMetrics
}

// New creates an undecided coordinator using the unix socket transport
func New(config common.InstanceConfig) *Coordinator {
	return NewWithTransport(config, unix.NewUnixTransport())
}

// NewWithTransport creates an undecided coordinator using the given transport
func NewWithTransport(config common.InstanceConfig, t transport.ITransport) *Coordinator {
	c := &Coordinator{
		config:    config.WithDefaults(),
		transport: t,
		errors:    make(chan error, errorBufferSize),
		stopCh:    make(chan struct{}),
	}
	c.metrics = newCoordinatorMetrics(c.connections)
	return c
}

// ClaimOrJoin decides the role of this process for the endpoint ("" selects the
// configured endpoint). If the endpoint can be claimed the process becomes the primary
// and starts serving. Otherwise it connects to the existing primary within timeout and
// becomes a secondary. If both fail the error wraps common.ErrStartup and both causes.
//
// The role is decided once, later calls return the decided role.
func (c *Coordinator) ClaimOrJoin(endpoint string, timeout time.Duration) (Role, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return RoleUndecided, common.ErrClosed
	}
	if c.role != RoleUndecided {
		return c.role, nil
	}

	if endpoint == "" {
		endpoint = c.config.Endpoint
	}
	if timeout <= 0 {
		timeout = c.config.Timeout
	}
	config := c.config
	config.Endpoint = endpoint

	// Case claim: this process becomes the primary
	srv := server.NewRPCServer(config, c.transport)
	claimErr := srv.Serve()
	if claimErr == nil {
		c.becomePrimary(endpoint, srv)
		return c.role, nil
	}
	_ = srv.Close()

	// Case join: connect to the process holding the endpoint
	cl := client.NewRPCInstanceClient(config, c.transport, identity.NewInstanceID())
	joinErr := cl.Connect(timeout)
	if joinErr == nil {
		c.becomeSecondary(endpoint, cl)
		return c.role, nil
	}
	_ = cl.Close()

	Logger.Errorf("Could neither claim nor join %s: %v / %v", endpoint, claimErr, joinErr)
	return RoleUndecided, fmt.Errorf("%w: claim: %w, join: %w", common.ErrStartup, claimErr, joinErr)
}

// AnnounceSecondary notifies the primary about this secondary and waits for its
// acknowledge. A handshake failure is returned to the caller, nothing is retried.
func (c *Coordinator) AnnounceSecondary(content []byte, timeout time.Duration) error {
	cl, err := c.secondary()
	if err != nil {
		return err
	}
	return c.handshake(func() error { return cl.Announce(content, timeout) })
}

// SendMessage delivers an application message to the primary and waits for its
// acknowledge. A handshake failure is returned to the caller, nothing is retried.
func (c *Coordinator) SendMessage(content []byte, timeout time.Duration) error {
	cl, err := c.secondary()
	if err != nil {
		return err
	}
	return c.handshake(func() error { return cl.SendMessage(content, timeout) })
}

// PrimaryPid returns the process id of the primary. The primary answers with its own
// id, a secondary queries the primary. On failure -1 and an error are returned.
func (c *Coordinator) PrimaryPid(timeout time.Duration) (int64, error) {
	role, cl, err := c.decided()
	if err != nil {
		return -1, err
	}

	switch role {
	case RolePrimary:
		return int64(os.Getpid()), nil
	case RoleSecondary:
		return cl.PrimaryPid(timeout)
	default:
		return -1, fmt.Errorf("%w: role is %s", common.ErrNotSecondary, role)
	}
}

// PrimaryUser returns the user owning the primary. The primary answers with its own
// user, a secondary queries the primary. On failure "" and an error are returned.
func (c *Coordinator) PrimaryUser(timeout time.Duration) (string, error) {
	role, cl, err := c.decided()
	if err != nil {
		return "", err
	}

	switch role {
	case RolePrimary:
		return identity.Username(), nil
	case RoleSecondary:
		return cl.PrimaryUser(timeout)
	default:
		return "", fmt.Errorf("%w: role is %s", common.ErrNotSecondary, role)
	}
}

// OnMessage registers the handler for application messages (InstanceMessage)
func (c *Coordinator) OnMessage(handler MessageHandler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.onMessage = handler
}

// OnNewInstance registers the handler for announcements of new secondaries (NewInstance)
func (c *Coordinator) OnNewInstance(handler MessageHandler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.onNewInstance = handler
}

// Role returns the decided role
func (c *Coordinator) Role() Role {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.role
}

// InstanceID returns the instance id (0 for the primary)
func (c *Coordinator) InstanceID() uint16 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.instanceID
}

// Endpoint returns the endpoint the role was decided for ("" while undecided)
func (c *Coordinator) Endpoint() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endpoint
}

// Connections returns the number of secondaries connected to the primary
func (c *Coordinator) Connections() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.role != RolePrimary {
		return 0, fmt.Errorf("%w: role is %s", common.ErrNotPrimary, c.role)
	}
	return c.server.Connections(), nil
}

// Address returns the transport address of the endpoint (e.g. the socket path)
func (c *Coordinator) Address() string {
	return c.transport.Address(c.Endpoint())
}

// Errors returns asynchronous errors of the primary (accept failures, a removed
// endpoint). The channel is never closed, errors are dropped while nobody reads.
func (c *Coordinator) Errors() <-chan error {
	return c.errors
}

// Stats returns a snapshot of the coordinator's counters
func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	stats := Stats{Role: c.role, InstanceID: c.instanceID, Endpoint: c.endpoint}
	c.mu.Unlock()

	c.metrics.snapshot(&stats)
	return stats
}

// Close stops the primary (all queued messages are dispatched first) or closes the
// connection of a secondary. Close is idempotent.
//
// Handlers may call Close. While a handler runs Close does not join the dispatch
// goroutine, the messages still queued are dispatched after the handler returned.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	srv, cl, done := c.server, c.client, c.dispatchDone
	c.mu.Unlock()

	close(c.stopCh)

	var err error
	if srv != nil {
		err = srv.Close()
		if c.inHandler.Load() {
			Logger.Debugf("Close called while a handler runs, not waiting for dispatch")
		} else {
			<-done
		}
	}
	if cl != nil {
		err = cl.Close()
	}

	c.metrics.stop()
	Logger.Infof("Coordinator closed")
	return err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// becomePrimary records the primary role and starts dispatching, must be called with mu held
func (c *Coordinator) becomePrimary(endpoint string, srv *server.RPCServer) {
	c.role = RolePrimary
	c.instanceID = common.PrimaryInstanceID
	c.endpoint = endpoint
	c.server = srv
	c.dispatchDone = make(chan struct{})

	go c.dispatch(srv.Messages())
	go c.forwardErrors(srv.Errors())

	Logger.Infof("Claimed %s, this process is the primary", endpoint)
}

// becomeSecondary records the secondary role, must be called with mu held
func (c *Coordinator) becomeSecondary(endpoint string, cl *client.RPCInstanceClient) {
	c.role = RoleSecondary
	c.instanceID = cl.InstanceID()
	c.endpoint = endpoint
	c.client = cl

	Logger.Infof("Joined %s as secondary %d", endpoint, c.instanceID)
}

// dispatch calls the handlers for every queued message in queue order
func (c *Coordinator) dispatch(messages <-chan *common.InboundMessage) {
	defer close(c.dispatchDone)

	for msg := range messages {
		c.metrics.dispatched.Mark(1)

		handler := c.handler(msg.Message.MsgType)
		if handler == nil {
			Logger.Debugf("No handler for %s", msg.Message)
			continue
		}
		c.inHandler.Store(true)
		handler(msg.Message.InstanceID, msg.Message.Content)
		c.inHandler.Store(false)
	}
}

// forwardErrors forwards the errors of the server until the coordinator is closed
func (c *Coordinator) forwardErrors(errs <-chan error) {
	for {
		select {
		case <-c.stopCh:
			return
		case err := <-errs:
			select {
			case c.errors <- err:
			default:
				Logger.Warningf("Dropped error, nobody is reading: %v", err)
			}
		}
	}
}

func (c *Coordinator) handler(msgType common.MessageType) MessageHandler {
	c.handlersMu.RLock()
	defer c.handlersMu.RUnlock()

	switch msgType {
	case common.MsgTNewInstance:
		return c.onNewInstance
	case common.MsgTInstanceMessage:
		return c.onMessage
	default:
		return nil
	}
}

// handshake runs an acknowledged request and records its duration
func (c *Coordinator) handshake(request func() error) error {
	var err error
	c.metrics.handshakes.Time(func() { err = request() })
	if err != nil {
		c.metrics.handshakeFailures.Inc(1)
	}
	return err
}

// secondary returns the client if this process is a secondary
func (c *Coordinator) secondary() (*client.RPCInstanceClient, error) {
	role, cl, err := c.decided()
	if err != nil {
		return nil, err
	}
	if role != RoleSecondary {
		return nil, fmt.Errorf("%w: role is %s", common.ErrNotSecondary, role)
	}
	return cl, nil
}

// decided returns the role and the client (nil unless secondary)
func (c *Coordinator) decided() (Role, *client.RPCInstanceClient, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return c.role, nil, common.ErrClosed
	}
	return c.role, c.client, nil
}

// connections returns the number of open connections of the primary
func (c *Coordinator) connections() int64 {
	c.mu.Lock()
	srv := c.server
	c.mu.Unlock()

	if srv == nil {
		return 0
	}
	return int64(srv.Connections())
}
