package base

import (
	"errors"
	"fmt"
	"github.com/VictoriaMetrics/metrics"
	"github.com/ValentinKolb/solo/rpc/common"
	"github.com/ValentinKolb/solo/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

var Logger = logger.GetLogger("transport")

var (
	connectionsAccepted = metrics.NewCounter(`solo_connections_accepted_total`)
	acceptErrors        = metrics.NewCounter(`solo_accept_errors_total`)
)

// -----------------------------------------------------------
// Acceptor State
// -----------------------------------------------------------

// AcceptorState is the lifecycle state of an Acceptor
type AcceptorState int32

const (
	StateIdle AcceptorState = iota
	StateListening
	StateStopping
	StateStopped
)

func (s AcceptorState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------
// Acceptor
// -----------------------------------------------------------

// Acceptor runs the accept loop of a bound endpoint. Every Accept is bounded by the poll
// interval, so the loop observes Stop within one interval.
//
// The state only moves forward: Idle -> Listening -> Stopping -> Stopped
// (or Idle -> Stopped if Stop is called before Run).
type Acceptor struct {
	transport    transport.ITransport
	pollInterval time.Duration
	listener     transport.IListener
	endpoint     string

	state    atomic.Int32
	mu       sync.Mutex // serializes Bind, Run start and Stop
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
}

// NewAcceptor creates an idle acceptor. A non positive poll interval selects the default.
func NewAcceptor(t transport.ITransport, pollInterval time.Duration) *Acceptor {
	if pollInterval <= 0 {
		pollInterval = common.DefaultPollInterval
	}
	return &Acceptor{
		transport:    t,
		pollInterval: pollInterval,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
}

// Bind claims the endpoint. The returned error wraps common.ErrBindFailure.
func (a *Acceptor) Bind(endpoint string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if state := a.State(); state != StateIdle {
		return fmt.Errorf("%w: acceptor is %s", common.ErrBindFailure, state)
	}
	if a.listener != nil {
		return fmt.Errorf("%w: acceptor is already bound to %s", common.ErrBindFailure, a.endpoint)
	}

	listener, err := a.transport.Bind(endpoint)
	if err != nil {
		return err
	}

	a.listener = listener
	a.endpoint = endpoint
	Logger.Infof("Bound %s endpoint %s", a.transport.GetName(), a.transport.Address(endpoint))
	return nil
}

// Run accepts connections until Stop is called. Every accepted connection is handed to
// onNewConnection, which takes ownership of it. Accept errors other than the poll timeout
// are reported to onError and the loop continues after one poll interval. Run returns
// when the acceptor is stopped or the listener became unusable.
//
// The callbacks run on the loop goroutine and must not call Stop.
func (a *Acceptor) Run(onNewConnection func(net.Conn), onError func(error)) error {
	a.mu.Lock()
	if a.listener == nil {
		a.mu.Unlock()
		return fmt.Errorf("%w: call Bind before Run", common.ErrNotBound)
	}
	if !a.state.CompareAndSwap(int32(StateIdle), int32(StateListening)) {
		a.mu.Unlock()
		return fmt.Errorf("%w: acceptor is %s", common.ErrClosed, a.State())
	}
	a.mu.Unlock()

	defer close(a.doneCh)

	Logger.Debugf("Accepting on %s with poll interval %s", a.endpoint, a.pollInterval)

	for {
		select {
		case <-a.stopCh:
			return nil
		default:
		}

		if err := a.listener.SetDeadline(time.Now().Add(a.pollInterval)); err != nil {
			return a.fail(fmt.Errorf("failed to set accept deadline: %w", err), onError)
		}

		conn, err := a.listener.Accept()

		// Case connection: hand over
		if err == nil {
			connectionsAccepted.Inc()
			onNewConnection(conn)
			continue
		}

		// Case poll timeout: check the stop signal
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			continue
		}

		// Case listener closed: nothing left to accept
		if errors.Is(err, net.ErrClosed) {
			return a.fail(fmt.Errorf("listener closed: %w", err), onError)
		}

		// Case other error: report and back off
		acceptErrors.Inc()
		Logger.Warningf("Accept error on %s: %v", a.endpoint, err)
		onError(err)

		select {
		case <-a.stopCh:
			return nil
		case <-time.After(a.pollInterval):
		}
	}
}

// Stop signals the accept loop, waits for it to return and closes the listener.
// Stop is idempotent and may be called from any goroutine except the loop's callbacks.
func (a *Acceptor) Stop() {
	a.stopOnce.Do(func() {
		a.mu.Lock()

		// Case never started: there is no loop to join
		if a.state.CompareAndSwap(int32(StateIdle), int32(StateStopped)) {
			a.mu.Unlock()
			close(a.stopCh)
			a.closeListener()
			return
		}

		a.state.Store(int32(StateStopping))
		a.mu.Unlock()

		close(a.stopCh)
		<-a.doneCh
		a.closeListener()
		a.state.Store(int32(StateStopped))
		Logger.Infof("Stopped accepting on %s", a.endpoint)
	})
}

// State returns the current lifecycle state
func (a *Acceptor) State() AcceptorState {
	return AcceptorState(a.state.Load())
}

// Endpoint returns the bound endpoint ("" before Bind)
func (a *Acceptor) Endpoint() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.endpoint
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// fail ends the loop because of an unusable listener. A stop that raced with the
// failure is not an error.
func (a *Acceptor) fail(err error, onError func(error)) error {
	select {
	case <-a.stopCh:
		return nil
	default:
	}
	acceptErrors.Inc()
	Logger.Errorf("Accept loop on %s ended: %v", a.endpoint, err)
	onError(err)
	return err
}

func (a *Acceptor) closeListener() {
	if a.listener == nil {
		return
	}
	if err := a.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		Logger.Warningf("Failed to close listener of %s: %v", a.endpoint, err)
	}
}
