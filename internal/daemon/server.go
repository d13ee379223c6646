package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tysttext/host/internal/paths"
)

// broadcastWriteTimeout bounds how long a slow attached client can hold up
// a broadcast.
const broadcastWriteTimeout = 2 * time.Second

// DefaultSocketPath returns the default control socket path.
func DefaultSocketPath() string {
	return paths.SocketPath()
}

type contextKey int

const (
	connKey contextKey = iota
	serverKey
)

// Handler answers control requests.
type Handler interface {
	// Handle returns the response for req. Attach and detach handlers use
	// ConnFromContext and ServerFromContext.
	Handle(ctx context.Context, req *Request) *Response
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req *Request) *Response

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, req *Request) *Response {
	return f(ctx, req)
}

// ConnFromContext returns the connection a request arrived on.
func ConnFromContext(ctx context.Context) net.Conn {
	conn, _ := ctx.Value(connKey).(net.Conn)
	return conn
}

// ServerFromContext returns the server that received a request.
func ServerFromContext(ctx context.Context) *Server {
	srv, _ := ctx.Value(serverKey).(*Server)
	return srv
}

// Server serves newline-delimited JSON requests on a Unix socket and pushes
// stream events to attached connections.
type Server struct {
	socketPath string
	handler    Handler

	mu sync.Mutex
	// +checklocks:mu
	listener net.Listener
	// +checklocks:mu
	sessions map[net.Conn]*session
	wg       sync.WaitGroup
}

// session is one client connection. Responses and broadcasts share enc, so
// writes are serialized by mu.
type session struct {
	conn     net.Conn
	mu       sync.Mutex
	enc      *json.Encoder
	attached bool // guarded by Server.mu
}

func (c *session) send(v any, timeout time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if timeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(timeout))
		defer func() { _ = c.conn.SetWriteDeadline(time.Time{}) }()
	}
	return c.enc.Encode(v)
}

// NewServer creates a server for socketPath (DefaultSocketPath when empty).
func NewServer(socketPath string, handler Handler) *Server {
	if socketPath == "" {
		socketPath = DefaultSocketPath()
	}
	return &Server{
		socketPath: socketPath,
		handler:    handler,
		sessions:   make(map[net.Conn]*session),
	}
}

// SocketPath returns the socket path this server listens on.
func (s *Server) SocketPath() string {
	return s.socketPath
}

// Start binds the socket and begins accepting connections. A leftover socket
// file is replaced; the instance lock guarantees no live host owns it.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return errors.New("server already started")
	}

	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0o700); err != nil {
		return fmt.Errorf("create socket directory: %w", err)
	}
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale socket: %w", err)
	}

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on socket: %w", err)
	}
	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		ln.Close()
		return fmt.Errorf("set socket permissions: %w", err)
	}
	s.listener = ln

	slog.Info("control socket listening", "socket", s.socketPath)

	s.wg.Add(1)
	go s.accept(ln)
	return nil
}

func (s *Server) accept(ln net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if errors.Is(err, net.ErrClosed) {
			return
		}
		if err != nil {
			slog.Error("accept connection failed", "error", err)
			continue
		}

		c := &session{conn: conn, enc: json.NewEncoder(conn)}
		s.mu.Lock()
		if s.listener == nil {
			// Stop already ran; it will not see this connection.
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.sessions[conn] = c
		n := len(s.sessions)
		s.mu.Unlock()
		slog.Debug("client connected", "connections", n)

		s.wg.Add(1)
		go s.serve(c)
	}
}

func (s *Server) serve(c *session) {
	defer s.wg.Done()
	defer s.drop(c.conn)

	ctx := context.WithValue(context.Background(), connKey, c.conn)
	ctx = context.WithValue(ctx, serverKey, s)

	dec := json.NewDecoder(bufio.NewReader(c.conn))
	for {
		var req Request
		if err := dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return
			}
			slog.Warn("decode request failed", "error", err)
			_ = c.send(&Response{Error: fmt.Sprintf("decode request: %v", err)}, 0)
			return
		}

		resp := s.dispatch(ctx, &req)
		if err := c.send(resp, 0); err != nil {
			slog.Debug("write response failed", "type", req.Type, "error", err)
			return
		}
	}
}

// dispatch runs the handler and fills in the envelope fields it left empty.
func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	slog.Debug("request received", "type", req.Type, "id", req.ID)

	resp := s.handler.Handle(ctx, req)
	if resp == nil {
		resp = ErrorResponse(req, errors.New("handler returned nil response"))
	}
	if resp.Type == "" {
		resp.Type = req.Type
	}
	if resp.ID == "" {
		resp.ID = req.ID
	}
	if !resp.Success {
		slog.Warn("request failed", "type", req.Type, "error", resp.Error)
	}
	return resp
}

func (s *Server) drop(conn net.Conn) {
	conn.Close()
	s.mu.Lock()
	delete(s.sessions, conn)
	n := len(s.sessions)
	s.mu.Unlock()
	slog.Debug("client disconnected", "connections", n)
}

// Stop closes the listener and every connection, waits for their goroutines
// and removes the socket file. Stopping a stopped server is a no-op.
func (s *Server) Stop() error {
	s.mu.Lock()
	ln := s.listener
	s.listener = nil
	if ln == nil {
		s.mu.Unlock()
		return nil
	}
	for conn := range s.sessions {
		conn.Close()
	}
	n := len(s.sessions)
	s.mu.Unlock()

	slog.Info("control socket closing", "active_connections", n)
	err := ln.Close()
	s.wg.Wait()
	_ = os.Remove(s.socketPath)

	if err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("close listener: %w", err)
	}
	return nil
}

// Attach subscribes conn to stream events.
func (s *Server) Attach(conn net.Conn) {
	s.setAttached(conn, true)
}

// Detach unsubscribes conn from stream events.
func (s *Server) Detach(conn net.Conn) {
	s.setAttached(conn, false)
}

func (s *Server) setAttached(conn net.Conn, attached bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.sessions[conn]; ok {
		c.attached = attached
	}
}

// Broadcast sends event to every attached connection. A connection that
// cannot take the event in time is closed.
func (s *Server) Broadcast(event *StreamEvent) {
	s.mu.Lock()
	targets := make([]*session, 0, len(s.sessions))
	for _, c := range s.sessions {
		if c.attached {
			targets = append(targets, c)
		}
	}
	s.mu.Unlock()

	for _, c := range targets {
		if err := c.send(event, broadcastWriteTimeout); err != nil {
			slog.Debug("broadcast failed, dropping client", "error", err)
			c.conn.Close()
		}
	}
}

// AttachedCount returns the number of attached connections.
func (s *Server) AttachedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.sessions {
		if c.attached {
			n++
		}
	}
	return n
}
