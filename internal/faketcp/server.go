// Package faketcp is a minimal stand-in server used only by this
// module's own tests to drive reconnect, heartbeat and streaming
// scenarios end-to-end over a real loopback socket, without a real
// event-sourced database to test against. Its accept loop and
// per-connection write lock are ported from the teacher's
// server.Server.Serve/handleConn; the request dispatch it replaces
// reflection-based service lookup with a caller-supplied frame
// Handler, since faketcp routes application frames without interpreting
// their payload: only the heartbeat commands are handled by the server
// itself.
package faketcp

import (
	"net"
	"sync"
	"sync/atomic"

	"escore/frame"
)

// Handler answers one inbound application frame. Returning ok == false
// sends no reply at all, for tests simulating a server that ignores a
// particular request.
type Handler func(req frame.Frame) (reply frame.Frame, ok bool)

// Server is a bare-bones TCP peer that speaks the frame wire format:
// it auto-answers heartbeat requests (like a well-behaved server)
// unless a test disables that via SetRespondToHeartbeats, and routes
// every other application frame through Handler.
type Server struct {
	addr    string
	handler Handler

	mu     sync.Mutex
	ln     net.Listener
	conns  map[net.Conn]struct{}
	closed atomic.Bool

	heartbeats atomic.Bool
	wg         sync.WaitGroup
}

// New starts listening on 127.0.0.1:0 and begins accepting connections
// in the background.
func New(handler Handler) (*Server, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	s := &Server{
		addr:    ln.Addr().String(),
		handler: handler,
		ln:      ln,
		conns:   make(map[net.Conn]struct{}),
	}
	s.heartbeats.Store(true)
	go s.acceptLoop(ln)
	return s, nil
}

// Addr is the address this server is currently listening on (stable
// across Restart).
func (s *Server) Addr() string { return s.addr }

func (s *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// handleConn runs a single sequential read loop per connection (reads
// must stay ordered to track frame boundaries) behind a per-connection
// write lock, matching the teacher's handleConn discipline.
func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	writeMu := &sync.Mutex{}
	dec := frame.NewDecoder()
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		frames, err := dec.Feed(buf[:n])
		if err != nil {
			return
		}
		for _, f := range frames {
			s.route(conn, writeMu, f)
		}
	}
}

func (s *Server) route(conn net.Conn, writeMu *sync.Mutex, f frame.Frame) {
	switch f.Command {
	case frame.CommandHeartbeatRequest:
		if !s.heartbeats.Load() {
			return
		}
		s.reply(conn, writeMu, frame.Frame{
			Command:        frame.CommandHeartbeatResponse,
			ConversationID: f.ConversationID,
		})
	case frame.CommandHeartbeatResponse:
		// Server-initiated heartbeats aren't modeled by this harness.
	default:
		if s.handler == nil {
			return
		}
		if reply, ok := s.handler(f); ok {
			s.reply(conn, writeMu, reply)
		}
	}
}

func (s *Server) reply(conn net.Conn, writeMu *sync.Mutex, f frame.Frame) {
	writeMu.Lock()
	defer writeMu.Unlock()
	frame.Encode(conn, f)
}

// SetRespondToHeartbeats toggles whether inbound heartbeat requests get
// answered, letting a test simulate a peer that's gone silent.
func (s *Server) SetRespondToHeartbeats(respond bool) {
	s.heartbeats.Store(respond)
}

// DropConnections forcibly closes every connection currently accepted,
// simulating the server side of a broken transport without tearing
// down the listener.
func (s *Server) DropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		c.Close()
	}
}

// Stop closes the listener and every open connection.
func (s *Server) Stop() {
	if s.closed.CompareAndSwap(false, true) {
		s.ln.Close()
	}
	s.DropConnections()
	s.wg.Wait()
}

// Restart re-listens on the same address Stop just vacated, simulating
// a server coming back after an outage for reconnect tests. Callers
// must have called Stop first.
func (s *Server) Restart() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.closed.Store(false)
	go s.acceptLoop(ln)
	return nil
}
