package base

import (
	"errors"
	"github.com/ValentinKolb/solo/rpc/codec"
	"github.com/ValentinKolb/solo/rpc/common"
	"github.com/ValentinKolb/solo/rpc/transport"
	"github.com/ValentinKolb/solo/rpc/transport/unix"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"io"
	"net"
	"os"
	"sync"
	"testing"
	"time"
)

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

// newTransport creates a unix transport in a short temp directory
func newTransport(t *testing.T) transport.ITransport {
	t.Helper()
	dir, err := os.MkdirTemp("", "solo")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return unix.NewUnixTransportIn(dir)
}

func frame(t *testing.T, msgType common.MessageType, instanceID uint16, content string) []byte {
	t.Helper()
	f, err := codec.Encode(msgType, instanceID, []byte(content))
	require.NoError(t, err)
	return f
}

// eofConn returns all its data together with io.EOF in a single read
type eofConn struct {
	net.Conn
	data []byte
	done bool
}

func (c *eofConn) Read(p []byte) (int, error) {
	if c.done {
		return 0, io.EOF
	}
	c.done = true
	return copy(p, c.data), io.EOF
}

func (c *eofConn) RemoteAddr() net.Addr { return nil }

// failingListener fails every Accept with a non timeout error
type failingListener struct {
	net.Listener
	mu    sync.Mutex
	calls int
}

func (l *failingListener) Accept() (net.Conn, error) {
	l.mu.Lock()
	l.calls++
	l.mu.Unlock()
	return nil, errors.New("too many open files")
}

func (l *failingListener) SetDeadline(time.Time) error { return nil }
func (l *failingListener) Close() error                { return nil }

// fakeTransport binds a fixed listener
type fakeTransport struct {
	transport.ITransport
	listener transport.IListener
}

func (f *fakeTransport) Bind(string) (transport.IListener, error) { return f.listener, nil }
func (f *fakeTransport) GetName() string                          { return "fake" }
func (f *fakeTransport) Address(endpoint string) string           { return endpoint }

// --------------------------------------------------------------------------
// Connection Decoder
// --------------------------------------------------------------------------

func TestDecoderRunSplitAndGarbage(t *testing.T) {
	server, client := net.Pipe()

	var stream []byte
	stream = append(stream, 0xFF, 0x00, 0x13)
	stream = append(stream, frame(t, common.MsgTNewInstance, 1, "hello")...)
	stream = append(stream, 0x00, 0x01)
	stream = append(stream, frame(t, common.MsgTInstanceMessage, 1, "world")...)

	go func() {
		// deliver in uneven chunks
		for len(stream) > 0 {
			n := 3
			if n > len(stream) {
				n = len(stream)
			}
			_, _ = client.Write(stream[:n])
			stream = stream[n:]
		}
		_ = client.Close()
	}()

	var received []common.Message
	err := NewConnectionDecoder(server, 16).Run(func(msg common.Message) {
		received = append(received, msg)
	})
	require.NoError(t, err)

	require.Len(t, received, 2)
	assert.Equal(t, common.MsgTNewInstance, received[0].MsgType)
	assert.Equal(t, "hello", string(received[0].Content))
	assert.Equal(t, common.MsgTInstanceMessage, received[1].MsgType)
	assert.Equal(t, "world", string(received[1].Content))
}

func TestDecoderFinalFlush(t *testing.T) {
	data := append(frame(t, common.MsgTInstanceMessage, 2, "a"), frame(t, common.MsgTInstanceMessage, 2, "b")...)
	conn := &eofConn{data: data}

	var received []string
	err := NewConnectionDecoder(conn, 1024).Run(func(msg common.Message) {
		received = append(received, string(msg.Content))
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, received)
}

func TestDecoderFeedKeepsPartialFrame(t *testing.T) {
	f := frame(t, common.MsgTPrimaryPidRequest, 3, "")
	decoder := NewConnectionDecoder(&eofConn{}, 0)

	emit := func(common.Message) {}
	assert.Equal(t, 0, decoder.Feed(f[:10], emit))
	assert.Equal(t, 10, decoder.Buffered())
	assert.Equal(t, 1, decoder.Feed(f[10:], emit))
	assert.Equal(t, 0, decoder.Buffered())
}

func TestReadMessage(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	data := append(frame(t, common.MsgTAcknowledge, 0, ""), frame(t, common.MsgTPrimaryUserRequest, 0, "alice")...)
	go func() {
		_, _ = client.Write(data)
	}()

	decoder := NewConnectionDecoder(server, 1024)
	deadline := time.Now().Add(2 * time.Second)

	first, err := decoder.ReadMessage(deadline)
	require.NoError(t, err)
	assert.Equal(t, common.MsgTAcknowledge, first.MsgType)

	second, err := decoder.ReadMessage(deadline)
	require.NoError(t, err)
	assert.Equal(t, "alice", string(second.Content))
}

func TestReadMessageDeadline(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	start := time.Now()
	_, err := NewConnectionDecoder(server, 0).ReadMessage(time.Now().Add(50 * time.Millisecond))
	require.Error(t, err)

	var netErr net.Error
	require.ErrorAs(t, err, &netErr)
	assert.True(t, netErr.Timeout())
	assert.Less(t, time.Since(start), time.Second)
}

// --------------------------------------------------------------------------
// Acceptor
// --------------------------------------------------------------------------

func TestAcceptorLifecycle(t *testing.T) {
	tr := newTransport(t)
	acceptor := NewAcceptor(tr, 20*time.Millisecond)
	assert.Equal(t, StateIdle, acceptor.State())

	require.NoError(t, acceptor.Bind("lifecycle"))

	accepted := make(chan net.Conn, 1)
	done := make(chan error, 1)
	go func() {
		done <- acceptor.Run(func(conn net.Conn) { accepted <- conn }, func(err error) { t.Errorf("unexpected error: %v", err) })
	}()

	conn, err := tr.Connect("lifecycle", time.Second)
	require.NoError(t, err)
	defer conn.Close()

	select {
	case c := <-accepted:
		_ = c.Close()
	case <-time.After(2 * time.Second):
		t.Fatal("connection was not accepted")
	}
	assert.Equal(t, StateListening, acceptor.State())

	start := time.Now()
	acceptor.Stop()
	assert.Less(t, time.Since(start), 500*time.Millisecond, "stop must be observed within the poll interval")
	assert.Equal(t, StateStopped, acceptor.State())
	require.NoError(t, <-done)

	// the endpoint is released after stop
	_, err = tr.Connect("lifecycle", 100*time.Millisecond)
	require.ErrorIs(t, err, common.ErrConnectRefused)
}

func TestAcceptorStopIdempotent(t *testing.T) {
	acceptor := NewAcceptor(newTransport(t), 20*time.Millisecond)
	require.NoError(t, acceptor.Bind("idempotent"))

	go func() { _ = acceptor.Run(func(conn net.Conn) { _ = conn.Close() }, func(error) {}) }()

	// wait until the loop runs
	require.Eventually(t, func() bool { return acceptor.State() == StateListening }, time.Second, 5*time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			acceptor.Stop()
			assert.Equal(t, StateStopped, acceptor.State())
		}()
	}
	wg.Wait()
	acceptor.Stop()
}

func TestAcceptorStopBeforeRun(t *testing.T) {
	acceptor := NewAcceptor(newTransport(t), 0)
	require.NoError(t, acceptor.Bind("early"))

	acceptor.Stop()
	assert.Equal(t, StateStopped, acceptor.State())

	err := acceptor.Run(func(net.Conn) {}, func(error) {})
	require.ErrorIs(t, err, common.ErrClosed)
	assert.Equal(t, StateStopped, acceptor.State())

	require.ErrorIs(t, acceptor.Bind("early"), common.ErrBindFailure)
}

func TestAcceptorRunUnbound(t *testing.T) {
	acceptor := NewAcceptor(newTransport(t), 0)
	require.ErrorIs(t, acceptor.Run(func(net.Conn) {}, func(error) {}), common.ErrNotBound)
	assert.Equal(t, StateIdle, acceptor.State())
}

func TestAcceptorReportsErrors(t *testing.T) {
	listener := &failingListener{}
	acceptor := NewAcceptor(&fakeTransport{listener: listener}, 10*time.Millisecond)
	require.NoError(t, acceptor.Bind("failing"))

	errs := make(chan error, 64)
	go func() {
		_ = acceptor.Run(func(net.Conn) {}, func(err error) {
			select {
			case errs <- err:
			default:
			}
		})
	}()

	select {
	case err := <-errs:
		assert.Contains(t, err.Error(), "too many open files")
	case <-time.After(time.Second):
		t.Fatal("accept error was not reported")
	}

	// the loop keeps running after an error
	assert.Equal(t, StateListening, acceptor.State())
	acceptor.Stop()

	// errors are retried once per poll interval, not in a busy loop
	listener.mu.Lock()
	defer listener.mu.Unlock()
	assert.Less(t, listener.calls, 100)
}

func TestAcceptorBindConflict(t *testing.T) {
	tr := newTransport(t)

	first := NewAcceptor(tr, 0)
	require.NoError(t, first.Bind("conflict"))
	defer first.Stop()

	second := NewAcceptor(tr, 0)
	require.ErrorIs(t, second.Bind("conflict"), common.ErrBindFailure)
}

// --------------------------------------------------------------------------
// Client Connection
// --------------------------------------------------------------------------

// serveReplies accepts connections and answers every message with an acknowledge,
// messages with content "silent" are not answered
func serveReplies(t *testing.T, tr transport.ITransport, endpoint string) *Acceptor {
	t.Helper()
	acceptor := NewAcceptor(tr, 20*time.Millisecond)
	require.NoError(t, acceptor.Bind(endpoint))

	go func() {
		_ = acceptor.Run(func(conn net.Conn) {
			go func() {
				defer conn.Close()
				_ = NewConnectionDecoder(conn, 0).Run(func(msg common.Message) {
					if string(msg.Content) == "silent" {
						return
					}
					_ = codec.WriteMessage(conn, *common.NewAcknowledge())
				})
			}()
		}, func(error) {})
	}()

	t.Cleanup(acceptor.Stop)
	return acceptor
}

func TestClientRoundTrip(t *testing.T) {
	tr := newTransport(t)
	serveReplies(t, tr, "client")

	client := NewClientConnection(tr, "client", 0)
	defer client.Close()

	for i := 0; i < 3; i++ {
		reply, err := client.RoundTrip(*common.NewInstanceMessage(5, []byte("hi")), time.Second, time.Now().Add(time.Second))
		require.NoError(t, err)
		assert.Equal(t, common.MsgTAcknowledge, reply.MsgType)
		assert.Equal(t, uint16(common.PrimaryInstanceID), reply.InstanceID)
	}
	assert.True(t, client.Connected())
}

func TestClientDropsConnectionAfterTimeout(t *testing.T) {
	tr := newTransport(t)
	serveReplies(t, tr, "drop")

	client := NewClientConnection(tr, "drop", 0)
	defer client.Close()

	_, err := client.RoundTrip(*common.NewInstanceMessage(5, []byte("silent")), time.Second, time.Now().Add(50*time.Millisecond))
	require.Error(t, err)
	assert.False(t, client.Connected())

	// the next request reconnects
	reply, err := client.RoundTrip(*common.NewInstanceMessage(5, []byte("again")), time.Second, time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, common.MsgTAcknowledge, reply.MsgType)
}

func TestClientNoPrimary(t *testing.T) {
	client := NewClientConnection(newTransport(t), "nobody", 0)

	_, err := client.RoundTrip(*common.NewPrimaryPidRequest(1), 100*time.Millisecond, time.Now().Add(100*time.Millisecond))
	require.ErrorIs(t, err, common.ErrConnectRefused)
}

func TestClientClosed(t *testing.T) {
	client := NewClientConnection(newTransport(t), "closed", 0)
	require.NoError(t, client.Close())

	require.ErrorIs(t, client.Connect(time.Second), common.ErrClosed)
}
