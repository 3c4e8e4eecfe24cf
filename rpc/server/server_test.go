package server

import (
	"fmt"
	"github.com/ValentinKolb/solo/rpc/codec"
	"github.com/ValentinKolb/solo/rpc/common"
	"github.com/ValentinKolb/solo/rpc/transport"
	"github.com/ValentinKolb/solo/rpc/transport/base"
	"github.com/ValentinKolb/solo/rpc/transport/unix"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"net"
	"os"
	"sync"
	"testing"
	"time"
)

// --------------------------------------------------------------------------
// Helpers
// --------------------------------------------------------------------------

func newTransport(t *testing.T) transport.ITransport {
	t.Helper()
	dir, err := os.MkdirTemp("", "solo")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return unix.NewUnixTransportIn(dir)
}

// startServer starts a primary with a fixed pid and user
func startServer(t *testing.T, tr transport.ITransport) *RPCServer {
	t.Helper()
	config := common.DefaultInstanceConfig("primary")
	config.PollInterval = 20 * time.Millisecond

	s := NewRPCServerWithAdapters(config, tr, NewInstanceServerAdapter(), NewQueryServerAdapter(4242, "alice"))
	require.NoError(t, s.Serve())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// rawClient is a connection speaking the wire format directly
type rawClient struct {
	t       *testing.T
	conn    net.Conn
	decoder *base.ConnectionDecoder
}

func dial(t *testing.T, tr transport.ITransport) *rawClient {
	t.Helper()
	conn, err := tr.Connect("primary", time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &rawClient{t: t, conn: conn, decoder: base.NewConnectionDecoder(conn, 0)}
}

func (c *rawClient) send(msg *common.Message) {
	c.t.Helper()
	require.NoError(c.t, codec.WriteMessage(c.conn, *msg))
}

func (c *rawClient) receive() common.Message {
	c.t.Helper()
	msg, err := c.decoder.ReadMessage(time.Now().Add(2 * time.Second))
	require.NoError(c.t, err)
	return msg
}

func nextMessage(t *testing.T, s *RPCServer) *common.InboundMessage {
	t.Helper()
	select {
	case msg, ok := <-s.Messages():
		require.True(t, ok)
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message dispatched")
		return nil
	}
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func TestAcknowledgeThenDispatch(t *testing.T) {
	tr := newTransport(t)
	s := startServer(t, tr)
	client := dial(t, tr)

	client.send(common.NewInstanceRequest(7, []byte("hello")))

	ack := client.receive()
	assert.Equal(t, common.MsgTAcknowledge, ack.MsgType)
	assert.Equal(t, common.PrimaryInstanceID, ack.InstanceID)
	assert.Empty(t, ack.Content)

	msg := nextMessage(t, s)
	assert.Equal(t, common.MsgTNewInstance, msg.Message.MsgType)
	assert.Equal(t, uint16(7), msg.Message.InstanceID)
	assert.Equal(t, []byte("hello"), msg.Message.Content)

	client.send(common.NewInstanceMessage(7, []byte("open file.txt")))
	assert.Equal(t, common.MsgTAcknowledge, client.receive().MsgType)

	second := nextMessage(t, s)
	assert.Equal(t, common.MsgTInstanceMessage, second.Message.MsgType)
	assert.Equal(t, msg.ConnectionID, second.ConnectionID)
}

func TestQueries(t *testing.T) {
	tr := newTransport(t)
	s := startServer(t, tr)
	client := dial(t, tr)

	client.send(common.NewPrimaryPidRequest(3))
	pidReply := client.receive()
	assert.Equal(t, common.MsgTPrimaryPidRequest, pidReply.MsgType)
	assert.Equal(t, common.PrimaryInstanceID, pidReply.InstanceID)
	pid, err := common.DecodePid(pidReply.Content)
	require.NoError(t, err)
	assert.Equal(t, int64(4242), pid)

	client.send(common.NewPrimaryUserRequest(3))
	userReply := client.receive()
	assert.Equal(t, common.MsgTPrimaryUserRequest, userReply.MsgType)
	assert.Equal(t, "alice", string(userReply.Content))

	// queries are never dispatched
	select {
	case msg := <-s.Messages():
		t.Fatalf("query was dispatched: %v", msg.Message)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStrayAcknowledgeIgnored(t *testing.T) {
	tr := newTransport(t)
	s := startServer(t, tr)
	client := dial(t, tr)

	client.send(common.NewAcknowledge())
	client.send(common.NewInstanceMessage(1, []byte("after")))

	// the only reply is the acknowledge of the instance message
	assert.Equal(t, common.MsgTAcknowledge, client.receive().MsgType)
	assert.Equal(t, []byte("after"), nextMessage(t, s).Message.Content)
}

func TestGarbageBeforeFrame(t *testing.T) {
	tr := newTransport(t)
	s := startServer(t, tr)
	client := dial(t, tr)

	_, err := client.conn.Write([]byte{0xde, 0xad, 0xbe, 0xef, 0x00})
	require.NoError(t, err)
	client.send(common.NewInstanceMessage(2, []byte("survived")))

	assert.Equal(t, common.MsgTAcknowledge, client.receive().MsgType)
	assert.Equal(t, []byte("survived"), nextMessage(t, s).Message.Content)
}

func TestOrderPerConnection(t *testing.T) {
	tr := newTransport(t)
	s := startServer(t, tr)

	const clients = 8
	const perClient = 25

	var wg sync.WaitGroup
	for c := 0; c < clients; c++ {
		client := dial(t, tr)
		wg.Add(1)
		go func(id uint16, client *rawClient) {
			defer wg.Done()
			for i := 0; i < perClient; i++ {
				if err := codec.WriteMessage(client.conn, *common.NewInstanceMessage(id, []byte(fmt.Sprint(i)))); err != nil {
					t.Errorf("write failed: %v", err)
					return
				}
				if _, err := client.decoder.ReadMessage(time.Now().Add(2 * time.Second)); err != nil {
					t.Errorf("no acknowledge: %v", err)
					return
				}
			}
		}(uint16(c+1), client)
	}

	next := make(map[uint16]int)
	for i := 0; i < clients*perClient; i++ {
		msg := nextMessage(t, s)
		id := msg.Message.InstanceID
		require.Equal(t, fmt.Sprint(next[id]), string(msg.Message.Content), "instance %d out of order", id)
		next[id]++
	}
	wg.Wait()
}

func TestBindConflict(t *testing.T) {
	tr := newTransport(t)
	startServer(t, tr)

	second := NewRPCServer(common.DefaultInstanceConfig("primary"), tr)
	require.ErrorIs(t, second.Serve(), common.ErrBindFailure)
	require.NoError(t, second.Close())
}

func TestConnectionTable(t *testing.T) {
	tr := newTransport(t)
	s := startServer(t, tr)

	first := dial(t, tr)
	dial(t, tr)
	require.Eventually(t, func() bool { return s.Connections() == 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, first.conn.Close())
	require.Eventually(t, func() bool { return s.Connections() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestClose(t *testing.T) {
	tr := newTransport(t)
	s := startServer(t, tr)
	client := dial(t, tr)
	require.Eventually(t, func() bool { return s.Connections() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, 0, s.Connections())

	// the message channel is closed
	select {
	case _, ok := <-s.Messages():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("messages channel not closed")
	}

	// the connection of the client was closed by the primary
	_, err := client.decoder.ReadMessage(time.Now().Add(time.Second))
	require.Error(t, err)

	// the endpoint is free again
	_, err = tr.Connect("primary", 100*time.Millisecond)
	require.ErrorIs(t, err, common.ErrConnectRefused)
	require.ErrorIs(t, s.Serve(), common.ErrClosed)
}

func TestEndpointRemoved(t *testing.T) {
	tr := newTransport(t)
	s := startServer(t, tr)

	require.NoError(t, os.Remove(tr.Address("primary")))

	select {
	case err := <-s.Errors():
		require.ErrorIs(t, err, common.ErrEndpointRemoved)
	case <-time.After(2 * time.Second):
		t.Fatal("removal of the endpoint was not reported")
	}
}
