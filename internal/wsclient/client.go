// Package wsclient maintains one authenticated gateway connection: dial,
// handshake, heartbeat, request correlation and reconnect with backoff.
package wsclient

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"market-gateway/internal/monitor"
	"market-gateway/pkg/apierr"
	"market-gateway/pkg/logger"
	"market-gateway/pkg/protocol"
	"market-gateway/pkg/wire"
)

const (
	protocolVersion = "1"
	codecProtobuf   = "1"
	platformOpenAPI = "9"

	maxWireTimeout = 65535 * time.Millisecond
	writeWait      = 10 * time.Second
	sweepInterval  = 100 * time.Millisecond
)

// Config tunes one connection. Zero durations take the defaults.
type Config struct {
	Name              string // metrics/log label, e.g. "quote"
	URL               string
	RequestTimeout    time.Duration // default 10s
	HeartbeatInterval time.Duration // default 10s
	HeartbeatTimeout  time.Duration // default 30s
	BackoffBase       time.Duration // default 1s
	BackoffMax        time.Duration // default 30s
	Dialer            *websocket.Dialer
}

func (c *Config) withDefaults() {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 10 * time.Second
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = 30 * time.Second
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Second
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 30 * time.Second
	}
	if c.Dialer == nil {
		c.Dialer = websocket.DefaultDialer
	}
}

// TokenSource returns a one-time password for Auth.
type TokenSource func(ctx context.Context) (string, error)

// PushHandler receives every push frame except control pushes. It runs on
// the reader goroutine and must not block.
type PushHandler func(cmd uint8, body []byte)

type session struct {
	id      string
	expires time.Time
}

// Client is safe for concurrent use.
type Client struct {
	cfg   Config
	token TokenSource
	log   *zap.Logger
	corr  *Correlator

	state atomic.Int32

	mu      sync.Mutex // guards conn, session and hooks
	conn    *websocket.Conn
	sess    session
	onPush  PushHandler
	onReady func(ctx context.Context)
	onState func(State)

	writeMu sync.Mutex

	ctx       context.Context
	cancel    context.CancelFunc
	closed    chan struct{}
	closeOnce sync.Once
	started   atomic.Bool
	wg        sync.WaitGroup

	now func() time.Time
}

func New(cfg Config, token TokenSource, log *zap.Logger) *Client {
	cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	l := logger.OrNop(log).With(zap.String("gateway", cfg.Name))
	c := &Client{
		cfg:    cfg,
		token:  token,
		log:    l,
		corr:   NewCorrelator(cfg.RequestTimeout, l),
		ctx:    ctx,
		cancel: cancel,
		closed: make(chan struct{}),
		now:    time.Now,
	}
	monitor.SetConnectionState(cfg.Name, int(StateDisconnected))
	return c
}

// SetPushHandler replaces the push handler.
func (c *Client) SetPushHandler(h PushHandler) {
	c.mu.Lock()
	c.onPush = h
	c.mu.Unlock()
}

// SetReconnectHook registers a function run after every successful
// reconnect, on its own goroutine. Its ctx ends when the client closes.
func (c *Client) SetReconnectHook(h func(ctx context.Context)) {
	c.mu.Lock()
	c.onReady = h
	c.mu.Unlock()
}

// SetStateHook registers an observer for state changes.
func (c *Client) SetStateHook(h func(State)) {
	c.mu.Lock()
	c.onState = h
	c.mu.Unlock()
}

func (c *Client) State() State { return State(c.state.Load()) }

// InFlight is the number of requests awaiting a response.
func (c *Client) InFlight() int { return c.corr.Len() }

func (c *Client) setState(s State) {
	if State(c.state.Swap(int32(s))) == s {
		return
	}
	c.log.Info("state changed", zap.Stringer("state", s))
	monitor.SetConnectionState(c.cfg.Name, int(s))
	c.mu.Lock()
	h := c.onState
	c.mu.Unlock()
	if h != nil {
		h(s)
	}
}

func (c *Client) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// SessionID returns the current session, empty before the first auth.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess.id
}

// Connect dials and authenticates. It is called once; later connection
// losses are repaired in the background until Close.
func (c *Client) Connect(ctx context.Context) error {
	if c.isClosed() {
		return apierr.ErrConnectionClosed
	}
	if !c.started.CompareAndSwap(false, true) {
		return fmt.Errorf("%s: already connected", c.cfg.Name)
	}

	conn, err := c.establish(ctx, false)
	if err != nil {
		c.started.Store(false)
		c.setState(StateDisconnected)
		return err
	}
	if !c.attach(conn) {
		_ = conn.Close()
		return apierr.ErrConnectionClosed
	}
	c.setState(StateReady)

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		c.corr.Run(c.ctx, sweepInterval)
	}()
	go c.supervise(conn)
	return nil
}

func (c *Client) attach(conn *websocket.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isClosed() {
		return false
	}
	c.conn = conn
	return true
}

func (c *Client) detach(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	_ = conn.Close()
}

func (c *Client) currentConn() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// establish dials and runs the handshake. When resume is set and the stored
// session is still valid, the session is resumed before falling back to a
// fresh Auth.
func (c *Client) establish(ctx context.Context, resume bool) (*websocket.Conn, error) {
	if resume {
		c.setState(StateReconnecting)
	} else {
		c.setState(StateConnecting)
	}
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	if !resume {
		c.setState(StateAuthenticating)
	}

	if resume {
		c.mu.Lock()
		sess := c.sess
		c.mu.Unlock()
		if sess.id != "" && c.now().Before(sess.expires) {
			err := c.resumeSession(ctx, conn, sess.id)
			if err == nil {
				return conn, nil
			}
			c.log.Warn("session resume failed, re-authenticating", zap.Error(err))
			if !errors.Is(err, apierr.ErrServer) {
				_ = conn.Close()
				return nil, err
			}
		}
	}

	if err := c.authenticate(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: bad url %q: %v", apierr.ErrNetwork, c.cfg.URL, err)
	}
	q := u.Query()
	q.Set("version", protocolVersion)
	q.Set("codec", codecProtobuf)
	q.Set("platform", platformOpenAPI)
	u.RawQuery = q.Encode()

	conn, _, err := c.cfg.Dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", apierr.ErrNetwork, c.cfg.Name, err)
	}
	return conn, nil
}

func (c *Client) authenticate(ctx context.Context, conn *websocket.Conn) error {
	otp, err := c.token(ctx)
	if err != nil {
		if errors.Is(err, apierr.ErrNetwork) || errors.Is(err, apierr.ErrTimeout) {
			return err
		}
		return fmt.Errorf("%w: %v", apierr.ErrAuth, err)
	}
	var resp protocol.AuthResponse
	if err := c.handshake(ctx, conn, protocol.CmdAuth, &protocol.AuthRequest{Token: otp}, &resp); err != nil {
		if errors.Is(err, apierr.ErrServer) {
			return fmt.Errorf("%w: %v", apierr.ErrAuth, err)
		}
		return err
	}
	c.storeSession(resp.SessionID, resp.Expires)
	c.log.Info("authenticated", zap.String("session", resp.SessionID))
	return nil
}

func (c *Client) resumeSession(ctx context.Context, conn *websocket.Conn, id string) error {
	var resp protocol.ReconnectResponse
	if err := c.handshake(ctx, conn, protocol.CmdReconnect, &protocol.ReconnectRequest{SessionID: id}, &resp); err != nil {
		return err
	}
	c.storeSession(resp.SessionID, resp.Expires)
	c.log.Info("session resumed", zap.String("session", resp.SessionID))
	return nil
}

func (c *Client) storeSession(id string, expiresMillis int64) {
	c.mu.Lock()
	c.sess = session{id: id, expires: time.UnixMilli(expiresMillis)}
	c.mu.Unlock()
}

// handshake writes one request and reads frames directly until its response
// arrives. The reader loop is not running yet.
func (c *Client) handshake(ctx context.Context, conn *websocket.Conn, cmd uint8, req, resp any) error {
	body, err := protocol.Marshal(req)
	if err != nil {
		return err
	}
	id := c.corr.NextID()
	data, err := wire.NewRequest(cmd, id, wireTimeout(c.cfg.RequestTimeout), body).Encode()
	if err != nil {
		return err
	}
	if err := c.write(conn, data); err != nil {
		return err
	}

	deadline := c.now().Add(c.cfg.RequestTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetReadDeadline(deadline)
	defer conn.SetReadDeadline(time.Time{})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			var ne interface{ Timeout() bool }
			if errors.As(err, &ne) && ne.Timeout() {
				return fmt.Errorf("%w: handshake cmd %d", apierr.ErrTimeout, cmd)
			}
			return fmt.Errorf("%w: handshake read: %v", apierr.ErrNetwork, err)
		}
		pkt, err := wire.Decode(msg)
		if err != nil {
			return fmt.Errorf("%w: handshake decode: %v", apierr.ErrNetwork, err)
		}
		if pkt.Type != wire.TypeResponse || pkt.RequestID != id {
			c.log.Debug("frame ignored during handshake", zap.Stringer("type", pkt.Type), zap.Uint8("cmd", pkt.Cmd))
			continue
		}
		if pkt.Status != 0 {
			return decodeError(pkt)
		}
		return protocol.Unmarshal(pkt.Body, resp)
	}
}

func wireTimeout(d time.Duration) uint16 {
	if d > maxWireTimeout {
		d = maxWireTimeout
	}
	return uint16(d / time.Millisecond)
}

func (c *Client) write(conn *websocket.Conn, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(c.now().Add(writeWait))
	if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("%w: write: %v", apierr.ErrNetwork, err)
	}
	return nil
}

// supervise serves a connection until it fails, then reconnects until the
// client is closed.
func (c *Client) supervise(conn *websocket.Conn) {
	defer c.wg.Done()
	for {
		err := c.serve(conn)
		closed := c.isClosed()
		if closed {
			c.setState(StateDisconnected)
		} else {
			c.log.Warn("connection lost", zap.Error(err))
			c.setState(StateReconnecting)
		}
		c.detach(conn)
		if n := c.corr.FailAll(apierr.ErrConnectionClosed); n > 0 {
			c.log.Info("in-flight requests failed", zap.Int("count", n))
		}
		if closed {
			return
		}

		conn = c.reconnect()
		if conn == nil {
			c.setState(StateDisconnected)
			return
		}
		c.setState(StateReady)

		c.mu.Lock()
		hook := c.onReady
		c.mu.Unlock()
		if hook != nil {
			go hook(c.ctx)
		}
	}
}

func (c *Client) reconnect() *websocket.Conn {
	bo := NewBackoff(c.cfg.BackoffBase, c.cfg.BackoffMax)
	for attempt := 1; ; attempt++ {
		delay := bo.Next()
		select {
		case <-c.closed:
			return nil
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(c.ctx, c.cfg.RequestTimeout*2)
		conn, err := c.establish(ctx, true)
		cancel()
		if err != nil {
			c.log.Warn("reconnect failed", zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(err))
			continue
		}
		if !c.attach(conn) {
			_ = conn.Close()
			return nil
		}
		c.log.Info("reconnected", zap.Int("attempt", attempt))
		return conn
	}
}

// serve runs the reader loop and the heartbeat until the connection fails.
func (c *Client) serve(conn *websocket.Conn) error {
	stop := make(chan struct{})
	defer close(stop)
	go c.heartbeat(conn, stop)

	for {
		_ = conn.SetReadDeadline(c.now().Add(c.cfg.HeartbeatTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		pkt, err := wire.Decode(msg)
		if err != nil {
			c.log.Warn("bad frame dropped", zap.Error(err))
			continue
		}
		switch pkt.Type {
		case wire.TypeResponse:
			c.corr.Resolve(pkt)
		case wire.TypePush:
			if pkt.Cmd == protocol.CmdClose {
				return c.handleClose(pkt.Body)
			}
			c.mu.Lock()
			h := c.onPush
			c.mu.Unlock()
			if h != nil {
				h(pkt.Cmd, pkt.Body)
			}
		default:
			c.log.Debug("unexpected frame", zap.Stringer("type", pkt.Type), zap.Uint8("cmd", pkt.Cmd))
		}
	}
}

func (c *Client) handleClose(body []byte) error {
	var msg protocol.Close
	if err := protocol.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("server close (undecodable): %w", err)
	}
	c.log.Warn("server closed connection", zap.Stringer("code", msg.Code), zap.String("reason", msg.Reason))
	if msg.Code == protocol.CloseSessExpired {
		c.mu.Lock()
		c.sess = session{}
		c.mu.Unlock()
	}
	return fmt.Errorf("server close: %s %s", msg.Code, msg.Reason)
}

func (c *Client) heartbeat(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-c.closed:
			return
		case <-ticker.C:
			body, err := protocol.Marshal(&protocol.Heartbeat{Timestamp: c.now().UnixMilli()})
			if err != nil {
				c.log.Error("encode heartbeat", zap.Error(err))
				continue
			}
			p := c.corr.Register(protocol.CmdHeartbeat, c.cfg.HeartbeatTimeout)
			data, err := wire.NewRequest(protocol.CmdHeartbeat, p.ID(), wireTimeout(c.cfg.HeartbeatTimeout), body).Encode()
			if err == nil {
				err = c.write(conn, data)
			}
			if err != nil {
				c.corr.Cancel(p.ID())
				c.log.Debug("heartbeat write failed", zap.Error(err))
				continue
			}
			go func() {
				if _, err := p.Wait(c.ctx); err != nil {
					c.log.Debug("heartbeat unanswered", zap.Error(err))
				}
			}()
		}
	}
}

// RequestRaw sends one request body and waits for the response body.
// timeout <= 0 uses the configured request timeout.
func (c *Client) RequestRaw(ctx context.Context, cmd uint8, body []byte, timeout time.Duration) ([]byte, error) {
	if c.isClosed() {
		return nil, apierr.ErrConnectionClosed
	}
	if c.State() != StateReady {
		return nil, apierr.ErrNotConnected
	}
	conn := c.currentConn()
	if conn == nil {
		return nil, apierr.ErrNotConnected
	}
	if timeout <= 0 {
		timeout = c.cfg.RequestTimeout
	}

	start := time.Now()
	p := c.corr.Register(cmd, timeout)
	data, err := wire.NewRequest(cmd, p.ID(), wireTimeout(timeout), body).Encode()
	if err == nil {
		err = c.write(conn, data)
	}
	if err != nil {
		c.corr.Cancel(p.ID())
		monitor.ObserveRequest(c.cfg.Name, cmd, time.Since(start), err)
		return nil, err
	}
	resp, err := p.Wait(ctx)
	monitor.ObserveRequest(c.cfg.Name, cmd, time.Since(start), err)
	return resp, err
}

// Request marshals req, sends it and unmarshals the response into resp
// (which may be nil).
func (c *Client) Request(ctx context.Context, cmd uint8, req, resp any) error {
	body, err := protocol.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode cmd %d: %w", cmd, err)
	}
	out, err := c.RequestRaw(ctx, cmd, body, 0)
	if err != nil {
		return err
	}
	if resp == nil {
		return nil
	}
	if err := protocol.Unmarshal(out, resp); err != nil {
		return fmt.Errorf("decode cmd %d: %w", cmd, err)
	}
	return nil
}

// Close releases the connection. Pending and later requests fail with
// ErrConnectionClosed. It is safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		close(c.closed)
		conn := c.conn
		c.mu.Unlock()

		c.cancel()
		if conn != nil {
			c.writeMu.Lock()
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), c.now().Add(time.Second))
			c.writeMu.Unlock()
			_ = conn.Close()
		}
		c.wg.Wait()
		c.corr.FailAll(apierr.ErrConnectionClosed)
		c.setState(StateDisconnected)
	})
	return nil
}
