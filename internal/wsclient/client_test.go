package wsclient

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-gateway/internal/wstest"
	"market-gateway/pkg/apierr"
	"market-gateway/pkg/protocol"
	"market-gateway/pkg/wire"
)

func otp(context.Context) (string, error) { return "one-time", nil }

func newTestClient(t *testing.T, srv *wstest.Server) *Client {
	t.Helper()
	c := New(Config{
		Name:              "test",
		URL:               srv.URL(),
		RequestTimeout:    time.Second,
		HeartbeatInterval: 50 * time.Millisecond,
		HeartbeatTimeout:  time.Second,
		BackoffBase:       10 * time.Millisecond,
		BackoffMax:        20 * time.Millisecond,
	}, otp, nil)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestConnectAuthenticates(t *testing.T) {
	srv := wstest.NewServer()
	defer srv.Close()
	c := newTestClient(t, srv)

	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, StateReady, c.State())
	assert.Equal(t, "session-1", c.SessionID())

	q := srv.Query()
	assert.Equal(t, "1", q.Get("version"))
	assert.Equal(t, "1", q.Get("codec"))
	assert.Equal(t, "9", q.Get("platform"))

	auth := srv.Received(protocol.CmdAuth)
	require.Len(t, auth, 1)
	var req protocol.AuthRequest
	require.NoError(t, protocol.Unmarshal(auth[0].Body, &req))
	assert.Equal(t, "one-time", req.Token)
}

func TestConnectAuthRejected(t *testing.T) {
	srv := wstest.NewServer()
	defer srv.Close()
	srv.Handle(protocol.CmdAuth, func(_ *wstest.Conn, req *wire.Packet) *wire.Packet {
		return wstest.Fail(req, 403, "token expired")
	})
	c := newTestClient(t, srv)

	err := c.Connect(context.Background())
	assert.True(t, errors.Is(err, apierr.ErrAuth), "got %v", err)
	assert.Equal(t, StateDisconnected, c.State())
}

func TestConnectNetworkError(t *testing.T) {
	c := New(Config{Name: "test", URL: "ws://127.0.0.1:1/v2"}, otp, nil)
	defer c.Close()
	err := c.Connect(context.Background())
	assert.True(t, errors.Is(err, apierr.ErrNetwork), "got %v", err)
}

func TestRequestBeforeConnect(t *testing.T) {
	srv := wstest.NewServer()
	defer srv.Close()
	c := newTestClient(t, srv)

	err := c.Request(context.Background(), protocol.CmdQuerySecurityQuote, &protocol.MultiSecurityRequest{}, nil)
	assert.ErrorIs(t, err, apierr.ErrNotConnected)
}

func TestRequestRoundTrip(t *testing.T) {
	srv := wstest.NewServer()
	defer srv.Close()
	srv.Handle(protocol.CmdQuerySecurityQuote, func(_ *wstest.Conn, req *wire.Packet) *wire.Packet {
		var in protocol.MultiSecurityRequest
		_ = protocol.Unmarshal(req.Body, &in)
		out := &protocol.SecurityQuoteResponse{}
		for _, s := range in.Symbol {
			out.SecuQuote = append(out.SecuQuote, protocol.SecurityQuote{Symbol: s, LastDone: "1.5"})
		}
		return wstest.Reply(req, out)
	})
	c := newTestClient(t, srv)
	require.NoError(t, c.Connect(context.Background()))

	var resp protocol.SecurityQuoteResponse
	err := c.Request(context.Background(), protocol.CmdQuerySecurityQuote,
		&protocol.MultiSecurityRequest{Symbol: []string{"700.HK", "AAPL.US"}}, &resp)
	require.NoError(t, err)
	require.Len(t, resp.SecuQuote, 2)
	assert.Equal(t, "AAPL.US", resp.SecuQuote[1].Symbol)
}

func TestRequestTimeout(t *testing.T) {
	srv := wstest.NewServer()
	defer srv.Close()
	srv.Handle(protocol.CmdQueryDepth, func(*wstest.Conn, *wire.Packet) *wire.Packet { return nil })
	c := newTestClient(t, srv)
	require.NoError(t, c.Connect(context.Background()))

	start := time.Now()
	_, err := c.RequestRaw(context.Background(), protocol.CmdQueryDepth, nil, 100*time.Millisecond)
	assert.ErrorIs(t, err, apierr.ErrTimeout)
	assert.Less(t, time.Since(start), 900*time.Millisecond)
	assert.Equal(t, 0, c.corr.Len())
}

func TestPushDelivered(t *testing.T) {
	srv := wstest.NewServer()
	defer srv.Close()
	c := newTestClient(t, srv)

	got := make(chan uint8, 1)
	c.SetPushHandler(func(cmd uint8, body []byte) {
		var q protocol.PushQuote
		if protocol.Unmarshal(body, &q) == nil && q.Symbol == "700.HK" {
			got <- cmd
		}
	})
	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, srv.Push(protocol.CmdPushQuote, &protocol.PushQuote{Symbol: "700.HK", LastDone: "320"}))

	select {
	case cmd := <-got:
		assert.Equal(t, protocol.CmdPushQuote, cmd)
	case <-time.After(2 * time.Second):
		t.Fatal("push not delivered")
	}
}

func TestReconnectResumesSessionAndRunsHook(t *testing.T) {
	srv := wstest.NewServer()
	defer srv.Close()
	c := newTestClient(t, srv)

	var hooks atomic.Int32
	hookRan := make(chan struct{}, 1)
	c.SetReconnectHook(func(context.Context) {
		hooks.Add(1)
		hookRan <- struct{}{}
	})
	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, int32(0), hooks.Load(), "initial connect must not replay")

	srv.Handle(protocol.CmdQueryDepth, func(*wstest.Conn, *wire.Packet) *wire.Packet { return nil })
	inflight := make(chan error, 1)
	go func() {
		_, err := c.RequestRaw(context.Background(), protocol.CmdQueryDepth, nil, 5*time.Second)
		inflight <- err
	}()
	require.Eventually(t, func() bool { return len(srv.Received(protocol.CmdQueryDepth)) == 1 }, 2*time.Second, 5*time.Millisecond)

	srv.DropConnections()

	select {
	case err := <-inflight:
		assert.ErrorIs(t, err, apierr.ErrConnectionClosed)
	case <-time.After(3 * time.Second):
		t.Fatal("in-flight request not failed on disconnect")
	}
	select {
	case <-hookRan:
	case <-time.After(3 * time.Second):
		t.Fatal("reconnect hook did not run")
	}
	assert.Equal(t, StateReady, c.State())
	assert.Len(t, srv.Received(protocol.CmdReconnect), 1)
	assert.Len(t, srv.Received(protocol.CmdAuth), 1, "valid session must be resumed, not re-authenticated")
	assert.Equal(t, "session-1", c.SessionID())
}

func TestReconnectFallsBackToAuth(t *testing.T) {
	srv := wstest.NewServer()
	defer srv.Close()
	srv.Handle(protocol.CmdReconnect, func(_ *wstest.Conn, req *wire.Packet) *wire.Packet {
		return wstest.Fail(req, 5, "session expired")
	})
	c := newTestClient(t, srv)
	require.NoError(t, c.Connect(context.Background()))

	srv.DropConnections()
	require.Eventually(t, func() bool {
		return len(srv.Received(protocol.CmdAuth)) == 2 && c.State() == StateReady
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, "session-2", c.SessionID())
}

func TestServerClosePushClearsExpiredSession(t *testing.T) {
	srv := wstest.NewServer()
	defer srv.Close()
	c := newTestClient(t, srv)
	require.NoError(t, c.Connect(context.Background()))

	require.NoError(t, srv.Push(protocol.CmdClose, &protocol.Close{Code: protocol.CloseSessExpired, Reason: "expired"}))
	require.Eventually(t, func() bool {
		return len(srv.Received(protocol.CmdAuth)) == 2 && c.State() == StateReady
	}, 3*time.Second, 10*time.Millisecond)
	assert.Empty(t, srv.Received(protocol.CmdReconnect), "expired session must not be resumed")
}

func TestHeartbeatSent(t *testing.T) {
	srv := wstest.NewServer()
	defer srv.Close()
	c := newTestClient(t, srv)
	require.NoError(t, c.Connect(context.Background()))

	require.Eventually(t, func() bool { return len(srv.Received(protocol.CmdHeartbeat)) >= 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestCloseIsIdempotentAndFailsRequests(t *testing.T) {
	srv := wstest.NewServer()
	defer srv.Close()
	c := newTestClient(t, srv)
	require.NoError(t, c.Connect(context.Background()))

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Equal(t, StateDisconnected, c.State())

	_, err := c.RequestRaw(context.Background(), protocol.CmdQueryDepth, nil, 0)
	assert.ErrorIs(t, err, apierr.ErrConnectionClosed)
	assert.ErrorIs(t, c.Connect(context.Background()), apierr.ErrConnectionClosed)
}
