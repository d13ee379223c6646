package daemon

import (
	"errors"
	"fmt"
)

// Sentinel errors for client operations.
var (
	// ErrNotConnected is returned when an operation is attempted without a connection.
	ErrNotConnected = errors.New("host: not connected")

	// ErrConnectionFailed is returned when connecting to the host fails.
	ErrConnectionFailed = errors.New("host: connection failed")
)

// ServerError is an error reported by the host for one request. Message is
// the error string the host produced, e.g. "Failed to kill backend: ...".
type ServerError struct {
	Operation MessageType
	Message   string
}

func (e *ServerError) Error() string {
	return e.Message
}

// NewServerError creates a ServerError for the given operation.
func NewServerError(op MessageType, message string) *ServerError {
	return &ServerError{
		Operation: op,
		Message:   message,
	}
}

// ErrorResponse builds a failed response for req.
func ErrorResponse(req *Request, err error) *Response {
	return &Response{
		Type:    req.Type,
		ID:      req.ID,
		Success: false,
		Error:   err.Error(),
	}
}

// SuccessResponse builds a successful response for req.
func SuccessResponse(req *Request, payload any) *Response {
	return &Response{
		Type:    req.Type,
		ID:      req.ID,
		Success: true,
		Payload: payload,
	}
}

// UnknownTypeError reports a request the handler does not understand.
func UnknownTypeError(t MessageType) error {
	return fmt.Errorf("unknown message type: %s", t)
}
