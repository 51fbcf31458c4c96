// Package wstest is an in-process gateway used by tests. It speaks the
// binary frame protocol over a real websocket and answers Auth, Reconnect
// and Heartbeat by default.
package wstest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"market-gateway/pkg/protocol"
	"market-gateway/pkg/wire"
)

// Handler answers one request; returning nil sends no reply.
type Handler func(c *Conn, req *wire.Packet) *wire.Packet

// Reply builds a success response carrying msg.
func Reply(req *wire.Packet, msg any) *wire.Packet {
	var body []byte
	if msg != nil {
		b, err := protocol.Marshal(msg)
		if err != nil {
			panic(err)
		}
		body = b
	}
	return wire.NewResponse(req.Cmd, req.RequestID, 0, body)
}

// Fail builds an error response.
func Fail(req *wire.Packet, code uint64, msg string) *wire.Packet {
	body, err := protocol.Marshal(&protocol.Error{Code: code, Msg: msg})
	if err != nil {
		panic(err)
	}
	return wire.NewResponse(req.Cmd, req.RequestID, 1, body)
}

// Conn is one accepted client connection.
type Conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func (c *Conn) send(p *wire.Packet) error {
	data, err := p.Encode()
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.BinaryMessage, data)
}

// Push sends a push frame with msg as body.
// Send writes p as is. Handlers use it to reply before pushing; they then
// return nil.
func (c *Conn) Send(p *wire.Packet) error { return c.send(p) }

func (c *Conn) Push(cmd uint8, msg any) error {
	body, err := protocol.Marshal(msg)
	if err != nil {
		return err
	}
	return c.send(wire.NewPush(cmd, body))
}

// Server records every request it receives.
type Server struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu       sync.Mutex
	handlers map[uint8]Handler
	conns    []*Conn
	received []*wire.Packet
	query    url.Values

	sessions atomic.Int32
	accepted atomic.Int32
}

func NewServer() *Server {
	s := &Server{handlers: make(map[uint8]Handler)}
	s.handlers[protocol.CmdAuth] = func(_ *Conn, req *wire.Packet) *wire.Packet {
		n := s.sessions.Add(1)
		return Reply(req, &protocol.AuthResponse{
			SessionID: fmt.Sprintf("session-%d", n),
			Expires:   time.Now().Add(time.Hour).UnixMilli(),
		})
	}
	s.handlers[protocol.CmdReconnect] = func(_ *Conn, req *wire.Packet) *wire.Packet {
		var r protocol.ReconnectRequest
		_ = protocol.Unmarshal(req.Body, &r)
		return Reply(req, &protocol.ReconnectResponse{
			SessionID: r.SessionID,
			Expires:   time.Now().Add(time.Hour).UnixMilli(),
		})
	}
	s.handlers[protocol.CmdHeartbeat] = func(_ *Conn, req *wire.Packet) *wire.Packet {
		return Reply(req, nil)
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.serveWS))
	return s
}

// URL is the ws:// address of the server.
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

// Handle installs or replaces the handler for cmd.
func (s *Server) Handle(cmd uint8, h Handler) {
	s.mu.Lock()
	s.handlers[cmd] = h
	s.mu.Unlock()
}

// Query returns the query string of the latest connection.
func (s *Server) Query() url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.query
}

// Accepted counts websocket upgrades so far.
func (s *Server) Accepted() int { return int(s.accepted.Load()) }

// Received returns the requests seen for cmd, in arrival order.
func (s *Server) Received(cmd uint8) []*wire.Packet {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*wire.Packet
	for _, p := range s.received {
		if p.Cmd == cmd {
			out = append(out, p)
		}
	}
	return out
}

// Push sends a push to every open connection.
func (s *Server) Push(cmd uint8, msg any) error {
	s.mu.Lock()
	conns := append([]*Conn(nil), s.conns...)
	s.mu.Unlock()
	for _, c := range conns {
		if err := c.Push(cmd, msg); err != nil {
			return err
		}
	}
	return nil
}

// DropConnections closes every open connection abruptly.
func (s *Server) DropConnections() {
	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()
	for _, c := range conns {
		_ = c.ws.Close()
	}
}

func (s *Server) Close() {
	s.DropConnections()
	s.srv.Close()
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &Conn{ws: ws}
	s.accepted.Add(1)
	s.mu.Lock()
	s.conns = append(s.conns, c)
	s.query = r.URL.Query()
	s.mu.Unlock()

	defer ws.Close()
	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			return
		}
		req, err := wire.Decode(msg)
		if err != nil || req.Type != wire.TypeRequest {
			continue
		}
		s.mu.Lock()
		s.received = append(s.received, req)
		h := s.handlers[req.Cmd]
		s.mu.Unlock()
		if h == nil {
			continue
		}
		if resp := h(c, req); resp != nil {
			if err := c.send(resp); err != nil {
				return
			}
		}
	}
}
