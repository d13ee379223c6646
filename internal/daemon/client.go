package daemon

import (
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Timeouts for talking to the host.
const (
	ConnectTimeout = 5 * time.Second
	// RequestTimeout bounds one request/response cycle. backend.stop may
	// wait for the configured stop timeout, so this stays generous.
	RequestTimeout = 60 * time.Second
)

// wire is one JSON-framed connection.
type wire struct {
	conn net.Conn
	enc  *json.Encoder
	dec  *json.Decoder
}

func dial(socketPath string) (*wire, error) {
	conn, err := net.DialTimeout("unix", socketPath, ConnectTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial host: %w", err)
	}
	return &wire{conn: conn, enc: json.NewEncoder(conn), dec: json.NewDecoder(conn)}, nil
}

// roundTrip writes req and reads one response within RequestTimeout.
func (w *wire) roundTrip(req *Request) (*Response, error) {
	if err := w.conn.SetDeadline(time.Now().Add(RequestTimeout)); err != nil {
		return nil, fmt.Errorf("set deadline: %w", err)
	}
	defer func() { _ = w.conn.SetDeadline(time.Time{}) }()

	if err := w.enc.Encode(req); err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	var resp Response
	if err := w.dec.Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &resp, nil
}

// Client talks to a running host over its control socket. Requests on one
// Client are serialized; event streaming uses a second connection.
type Client struct {
	socketPath string
	reqID      atomic.Uint64

	mu sync.Mutex
	// +checklocks:mu
	w *wire

	streamMu sync.Mutex
	// +checklocks:streamMu
	stream *wire
	// +checklocks:streamMu
	streamDone chan struct{}
}

// NewClient creates a client for socketPath (DefaultSocketPath when empty).
func NewClient(socketPath string) *Client {
	if socketPath == "" {
		socketPath = DefaultSocketPath()
	}
	return &Client{socketPath: socketPath}
}

// SocketPath returns the socket path this client connects to.
func (c *Client) SocketPath() string {
	return c.socketPath
}

// Connect dials the host. Connecting twice is a no-op.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.w != nil {
		return nil
	}
	w, err := dial(c.socketPath)
	if err != nil {
		return err
	}
	c.w = w
	return nil
}

// IsConnected reports whether the request connection is open.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.w != nil
}

// Close closes the request connection and any event stream.
func (c *Client) Close() error {
	c.StopEventStream()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.w == nil {
		return nil
	}
	err := c.w.conn.Close()
	c.w = nil
	return err
}

// Send writes req and waits for its response. A transport failure closes
// the connection, so IsConnected reports false afterwards.
func (c *Client) Send(req *Request) (*Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.w == nil {
		return nil, ErrNotConnected
	}
	if req.ID == "" {
		req.ID = fmt.Sprintf("req-%d", c.reqID.Add(1))
	}

	resp, err := c.w.roundTrip(req)
	if err != nil {
		_ = c.w.conn.Close()
		c.w = nil
		return nil, err
	}
	return resp, nil
}

// DecodePayload decodes a request or response payload into T.
// A nil payload yields a pointer to the zero value.
func DecodePayload[T any](payload any) (*T, error) {
	var v T
	if payload == nil {
		return &v, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return &v, nil
}

// call sends a request of type t and decodes a successful payload into T.
func call[T any](c *Client, t MessageType, payload any) (*T, error) {
	resp, err := c.Send(&Request{Type: t, Payload: payload})
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, NewServerError(t, resp.Error)
	}
	return DecodePayload[T](resp.Payload)
}

// message calls t and returns the status message of the reply.
func (c *Client) message(t MessageType) (string, error) {
	resp, err := call[MessageResponse](c, t, nil)
	if err != nil {
		return "", err
	}
	return resp.Message, nil
}

// Ping checks host connectivity.
func (c *Client) Ping() (*PingResponse, error) {
	return call[PingResponse](c, MsgPing, nil)
}

// Shutdown asks the host to close. The host stops the backend first.
func (c *Client) Shutdown() error {
	_, err := call[struct{}](c, MsgShutdown, nil)
	return err
}

// BackendStart starts the backend and returns the host's status message.
func (c *Client) BackendStart() (string, error) {
	return c.message(MsgBackendStart)
}

// BackendStop stops the backend and returns the host's status message.
func (c *Client) BackendStop() (string, error) {
	return c.message(MsgBackendStop)
}

// BackendURL returns the backend's address.
func (c *Client) BackendURL() (string, error) {
	resp, err := call[URLResponse](c, MsgBackendURL, nil)
	if err != nil {
		return "", err
	}
	return resp.URL, nil
}

// BackendStatus returns host and backend status.
func (c *Client) BackendStatus() (*StatusResponse, error) {
	return call[StatusResponse](c, MsgBackendStatus, nil)
}

// BackendLogs returns the last n buffered output lines (all if n <= 0).
func (c *Client) BackendLogs(n int) ([]LogLine, error) {
	resp, err := call[LogsResponse](c, MsgBackendLogs, LogsRequest{Lines: n})
	if err != nil {
		return nil, err
	}
	return resp.Lines, nil
}

// EventResult carries either a stream event or the error that ended the
// stream.
type EventResult struct {
	Event *StreamEvent
	Err   error
}

// streamRequestID identifies the attach response on an event connection.
const streamRequestID = "event-stream"

// StreamEvents attaches a dedicated connection and delivers pushed events
// until the connection fails or StopEventStream is called. A previous
// stream on this client is replaced.
func (c *Client) StreamEvents() (<-chan EventResult, error) {
	c.StopEventStream()

	w, err := dial(c.socketPath)
	if err != nil {
		return nil, err
	}
	early, err := w.attach()
	if err != nil {
		w.conn.Close()
		return nil, err
	}

	done := make(chan struct{})
	c.streamMu.Lock()
	c.stream = w
	c.streamDone = done
	c.streamMu.Unlock()

	out := make(chan EventResult, 16)
	go receiveEvents(w, done, out, early)
	return out, nil
}

// attach subscribes the connection. The host may push events before the
// attach response is written; those are returned in arrival order.
func (w *wire) attach() ([]*StreamEvent, error) {
	if err := w.conn.SetDeadline(time.Now().Add(RequestTimeout)); err != nil {
		return nil, fmt.Errorf("set deadline: %w", err)
	}
	defer func() { _ = w.conn.SetDeadline(time.Time{}) }()

	if err := w.enc.Encode(&Request{ID: streamRequestID, Type: MsgAttach}); err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	var early []*StreamEvent
	for {
		var raw json.RawMessage
		if err := w.dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		var head struct {
			Type string `json:"type"`
			ID   string `json:"id"`
		}
		if err := json.Unmarshal(raw, &head); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}

		if head.Type == string(MsgAttach) && head.ID == streamRequestID {
			var resp Response
			if err := json.Unmarshal(raw, &resp); err != nil {
				return nil, fmt.Errorf("decode response: %w", err)
			}
			if !resp.Success {
				return nil, NewServerError(MsgAttach, resp.Error)
			}
			return early, nil
		}

		var ev StreamEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		early = append(early, &ev)
	}
}

func receiveEvents(w *wire, done <-chan struct{}, out chan<- EventResult, early []*StreamEvent) {
	defer close(out)
	defer w.conn.Close()

	for _, ev := range early {
		select {
		case <-done:
			return
		case out <- EventResult{Event: ev}:
		}
	}

	for {
		var ev StreamEvent
		err := w.dec.Decode(&ev)

		var res EventResult
		if err != nil {
			res.Err = fmt.Errorf("decode event: %w", err)
		} else {
			res.Event = &ev
		}

		select {
		case <-done:
			return
		case out <- res:
		}
		if err != nil {
			return
		}
	}
}

// StopEventStream detaches by closing the stream connection.
func (c *Client) StopEventStream() {
	c.streamMu.Lock()
	defer c.streamMu.Unlock()

	if c.streamDone != nil {
		close(c.streamDone)
		c.streamDone = nil
	}
	if c.stream != nil {
		c.stream.conn.Close()
		c.stream = nil
	}
}
