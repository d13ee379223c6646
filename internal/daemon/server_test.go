package daemon

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func startServer(t *testing.T, handler Handler) (*Server, string) {
	t.Helper()
	socketPath := filepath.Join(t.TempDir(), "test.sock")
	srv := NewServer(socketPath, handler)
	if err := srv.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { _ = srv.Stop() })
	return srv, socketPath
}

func okHandler() Handler {
	return HandlerFunc(func(_ context.Context, req *Request) *Response {
		return SuccessResponse(req, nil)
	})
}

func TestServer_StartStop(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "test.sock")
	srv := NewServer(socketPath, okHandler())

	if err := srv.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if _, err := os.Stat(socketPath); os.IsNotExist(err) {
		t.Fatal("socket file not created")
	}

	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	conn.Close()

	if err := srv.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if _, err := os.Stat(socketPath); !os.IsNotExist(err) {
		t.Fatal("socket file not removed after Stop()")
	}
	if err := srv.Stop(); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}
}

func TestServer_DoubleStart(t *testing.T) {
	srv, _ := startServer(t, okHandler())
	if err := srv.Start(); err == nil {
		t.Error("expected error on second Start()")
	}
}

func TestServer_ReplacesStaleSocket(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "test.sock")
	if err := os.WriteFile(socketPath, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	srv := NewServer(socketPath, okHandler())
	if err := srv.Start(); err != nil {
		t.Fatalf("Start() over stale socket error = %v", err)
	}
	_ = srv.Stop()
}

func TestServer_RequestResponse(t *testing.T) {
	handler := HandlerFunc(func(_ context.Context, req *Request) *Response {
		if req.Type == MsgBackendURL {
			return SuccessResponse(req, URLResponse{URL: "http://localhost:8000"})
		}
		return ErrorResponse(req, UnknownTypeError(req.Type))
	})
	_, socketPath := startServer(t, handler)

	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	encoder := json.NewEncoder(conn)
	decoder := json.NewDecoder(conn)

	tests := []struct {
		req     Request
		success bool
	}{
		{Request{Type: MsgBackendURL, ID: "test-1"}, true},
		{Request{Type: "bogus", ID: "test-2"}, false},
	}
	for _, tt := range tests {
		if err := encoder.Encode(&tt.req); err != nil {
			t.Fatalf("Encode() error = %v", err)
		}
		var resp Response
		if err := decoder.Decode(&resp); err != nil {
			t.Fatalf("Decode() error = %v", err)
		}
		if resp.Success != tt.success {
			t.Errorf("%s: expected Success=%v, got %v (%s)", tt.req.Type, tt.success, resp.Success, resp.Error)
		}
		if resp.ID != tt.req.ID || resp.Type != tt.req.Type {
			t.Errorf("expected correlation %s/%s, got %s/%s", tt.req.Type, tt.req.ID, resp.Type, resp.ID)
		}
	}
}

func TestServer_NilResponse(t *testing.T) {
	handler := HandlerFunc(func(context.Context, *Request) *Response { return nil })
	_, socketPath := startServer(t, handler)

	c := NewClient(socketPath)
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()

	resp, err := c.Send(&Request{Type: MsgPing})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if resp.Success || resp.Error == "" {
		t.Errorf("expected failed response, got %+v", resp)
	}
}

func TestServer_MalformedRequest(t *testing.T) {
	_, socketPath := startServer(t, okHandler())

	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("{not json\n")); err != nil {
		t.Fatal(err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if resp.Success {
		t.Error("expected failure for malformed request")
	}
}

func TestServer_Broadcast(t *testing.T) {
	handler := HandlerFunc(func(ctx context.Context, req *Request) *Response {
		switch req.Type {
		case MsgAttach:
			ServerFromContext(ctx).Attach(ConnFromContext(ctx))
		case MsgDetach:
			ServerFromContext(ctx).Detach(ConnFromContext(ctx))
		}
		return SuccessResponse(req, nil)
	})
	srv, socketPath := startServer(t, handler)

	c := NewClient(socketPath)
	events, err := c.StreamEvents()
	if err != nil {
		t.Fatalf("StreamEvents: %v", err)
	}
	defer c.Close()

	if n := srv.AttachedCount(); n != 1 {
		t.Fatalf("expected 1 attached client, got %d", n)
	}

	srv.Broadcast(&StreamEvent{
		Type:  "output",
		RunID: "run-1",
		Line:  &LogLine{Stream: "stdout", Text: "hello"},
	})

	select {
	case res := <-events:
		if res.Err != nil {
			t.Fatalf("event error: %v", res.Err)
		}
		if res.Event.RunID != "run-1" || res.Event.Line == nil || res.Event.Line.Text != "hello" {
			t.Errorf("unexpected event %+v", res.Event)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no event received")
	}

	c.StopEventStream()
	deadline := time.Now().Add(5 * time.Second)
	for srv.AttachedCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("attached client not removed after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
