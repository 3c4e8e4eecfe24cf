package server

import (
	"context"
	"fmt"
	"github.com/VictoriaMetrics/metrics"
	"github.com/ValentinKolb/solo/lib/identity"
	"github.com/ValentinKolb/solo/lib/util"
	"github.com/ValentinKolb/solo/rpc/codec"
	"github.com/ValentinKolb/solo/rpc/common"
	"github.com/ValentinKolb/solo/rpc/transport"
	"github.com/ValentinKolb/solo/rpc/transport/base"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

var Logger = logger.GetLogger("server")

// errorBufferSize is the capacity of the error channel, further errors are dropped
// (and logged) while nobody reads them
const errorBufferSize = 16

// connectionEntry is one accepted connection of the primary
type connectionEntry struct {
	id      uint64
	conn    net.Conn
	decoder *base.ConnectionDecoder
	writeMu sync.Mutex // serializes replies on this connection
}

// RPCServer is the primary side of the protocol. It owns the bound endpoint, answers
// every request on the connection it arrived on and queues acknowledged messages for
// the application.
type RPCServer struct {
	config    common.InstanceConfig
	transport transport.ITransport
	acceptor  *base.Acceptor
	adapters  map[common.MessageType]IRPCServerAdapter

	connections *xsync.MapOf[uint64, *connectionEntry]
	nextConnID  atomic.Uint64
	queue       *util.LockFreeMPSC[common.InboundMessage]
	errors      chan error

	acceptWg    sync.WaitGroup
	connWg      sync.WaitGroup
	closing     atomic.Bool
	closeOnce   sync.Once
	watchCancel context.CancelFunc
}

// NewRPCServer creates a primary server with the default adapters: acknowledge and
// dispatch for instance messages, PID and user of this process for queries.
//
// Usage:
//
//	s := server.NewRPCServer(config, unix.NewUnixTransport())
//	if err := s.Serve(); err != nil {
//		// endpoint is claimed by another process
//	}
//	defer s.Close()
//
//	for msg := range s.Messages() {
//		...
//	}
func NewRPCServer(config common.InstanceConfig, t transport.ITransport) *RPCServer {
	return NewRPCServerWithAdapters(config, t,
		NewInstanceServerAdapter(),
		NewQueryServerAdapter(int64(os.Getpid()), identity.Username()),
	)
}

// NewRPCServerWithAdapters creates a primary server routing each message type to the
// adapter that lists it. Later adapters override earlier ones for the same type.
func NewRPCServerWithAdapters(config common.InstanceConfig, t transport.ITransport, adapters ...IRPCServerAdapter) *RPCServer {
	config = config.WithDefaults()

	routes := make(map[common.MessageType]IRPCServerAdapter)
	for _, adapter := range adapters {
		for _, msgType := range adapter.MessageTypes() {
			routes[msgType] = adapter
		}
	}

	Logger.Debugf("Created RPC server\n%s", config.String())

	return &RPCServer{
		config:      config,
		transport:   t,
		acceptor:    base.NewAcceptor(t, config.PollInterval),
		adapters:    routes,
		connections: xsync.NewMapOf[uint64, *connectionEntry](),
		queue:       util.NewLockFreeMPSC[common.InboundMessage](),
		errors:      make(chan error, errorBufferSize),
	}
}

// Serve binds the endpoint and starts accepting connections in the background.
// The returned error wraps common.ErrBindFailure if the endpoint is claimed.
func (s *RPCServer) Serve() error {
	if s.closing.Load() {
		return common.ErrClosed
	}

	endpoint := s.config.Endpoint
	if err := s.acceptor.Bind(endpoint); err != nil {
		return err
	}

	s.acceptWg.Add(1)
	go func() {
		defer s.acceptWg.Done()
		if err := s.acceptor.Run(s.handleConnection, s.reportError); err != nil {
			Logger.Errorf("Accept loop ended: %v", err)
		}
	}()

	// Case transport can watch its endpoint: report a vanished endpoint
	if watcher, ok := s.transport.(transport.IEndpointWatcher); ok {
		ctx, cancel := context.WithCancel(context.Background())
		s.watchCancel = cancel
		err := watcher.Watch(ctx, endpoint, func() {
			if !s.closing.Load() {
				s.reportError(fmt.Errorf("%w: %s", common.ErrEndpointRemoved, s.transport.Address(endpoint)))
			}
		})
		if err != nil {
			Logger.Warningf("Failed to watch endpoint %s: %v", endpoint, err)
		}
	}

	Logger.Infof("Primary serving on %s", s.transport.Address(endpoint))
	return nil
}

// Messages returns the channel of acknowledged messages in arrival order per connection.
// It is closed by Close after the last message.
func (s *RPCServer) Messages() <-chan *common.InboundMessage {
	return s.queue.Recv()
}

// Errors returns asynchronous accept and endpoint errors. The channel is never closed.
func (s *RPCServer) Errors() <-chan error {
	return s.errors
}

// Connections returns the number of open connections
func (s *RPCServer) Connections() int {
	return s.connections.Size()
}

// Endpoint returns the served endpoint
func (s *RPCServer) Endpoint() string {
	return s.config.Endpoint
}

// Close stops accepting, closes all connections, waits for their goroutines and closes
// the message channel. Close is idempotent.
func (s *RPCServer) Close() error {
	s.closeOnce.Do(func() {
		s.closing.Store(true)

		if s.watchCancel != nil {
			s.watchCancel()
		}

		// no connection is added after the acceptor was joined
		s.acceptor.Stop()
		s.acceptWg.Wait()

		s.connections.Range(func(_ uint64, entry *connectionEntry) bool {
			_ = entry.conn.Close()
			return true
		})
		s.connWg.Wait()

		s.queue.Close()
		Logger.Infof("Primary on %s closed", s.config.Endpoint)
	})
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// handleConnection registers an accepted connection and starts its decoder goroutine
func (s *RPCServer) handleConnection(conn net.Conn) {
	entry := &connectionEntry{
		id:      s.nextConnID.Add(1),
		conn:    conn,
		decoder: base.NewConnectionDecoder(conn, s.config.ReadBufferSize),
	}
	s.connections.Store(entry.id, entry)
	s.connWg.Add(1)

	Logger.Debugf("Accepted connection %d", entry.id)

	go func() {
		defer s.connWg.Done()
		defer s.removeConnection(entry)

		err := entry.decoder.Run(func(msg common.Message) {
			s.handleMessage(entry, msg)
		})
		if err != nil && !s.closing.Load() {
			Logger.Warningf("Connection %d failed: %v", entry.id, err)
		}
	}()
}

// handleMessage routes one decoded message: reply first, then dispatch
func (s *RPCServer) handleMessage(entry *connectionEntry, msg common.Message) {
	metrics.GetOrCreateCounter(fmt.Sprintf(`solo_requests_total{type=%q}`, msg.MsgType)).Inc()

	adapter, ok := s.adapters[msg.MsgType]
	if !ok {
		Logger.Warningf("Ignoring %s on connection %d", msg, entry.id)
		return
	}

	resp, dispatch := adapter.Handle(&msg)
	if resp != nil {
		if err := s.reply(entry, resp); err != nil {
			Logger.Warningf("Failed to reply to %s on connection %d: %v", msg, entry.id, err)
		}
	}

	if dispatch {
		s.queue.Push(&common.InboundMessage{ConnectionID: entry.id, Message: msg})
	}
}

// reply writes a response on the connection of the request
func (s *RPCServer) reply(entry *connectionEntry, resp *common.Message) error {
	entry.writeMu.Lock()
	defer entry.writeMu.Unlock()

	if s.config.Timeout > 0 {
		if err := entry.conn.SetWriteDeadline(time.Now().Add(s.config.Timeout)); err != nil {
			return fmt.Errorf("failed to set write deadline: %w", err)
		}
	}
	return codec.WriteMessage(entry.conn, *resp)
}

// removeConnection closes a connection and removes it from the connection table
func (s *RPCServer) removeConnection(entry *connectionEntry) {
	s.connections.Delete(entry.id)
	_ = entry.conn.Close()
	Logger.Debugf("Closed connection %d", entry.id)
}

// reportError forwards an asynchronous error without ever blocking the caller
func (s *RPCServer) reportError(err error) {
	select {
	case s.errors <- err:
	default:
		Logger.Warningf("Dropped error, nobody is reading: %v", err)
	}
}
