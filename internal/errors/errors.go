// Package errors provides custom error types for the geminichat client.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common cases
var (
	ErrClosed           = errors.New("connection closed")
	ErrPayloadTooLarge  = errors.New("payload exceeds server limit")
	ErrBusy             = errors.New("a response is still in progress")
	ErrServerDisconnect = errors.New("server closed the session")
	ErrInvalidPayload   = errors.New("invalid payload")
)

// ConnectionError represents a failure to establish or keep the socket
type ConnectionError struct {
	Endpoint string
	Message  string
	Err      error
}

func (e *ConnectionError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Endpoint == "" {
		return fmt.Sprintf("connection failed: %s", msg)
	}
	return fmt.Sprintf("connection to %s failed: %s", e.Endpoint, msg)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Is allows comparison with another ConnectionError
func (e *ConnectionError) Is(target error) bool {
	_, ok := target.(*ConnectionError)
	return ok
}

// NewConnectionError creates a new ConnectionError
func NewConnectionError(endpoint, message string, err error) *ConnectionError {
	return &ConnectionError{Endpoint: endpoint, Message: message, Err: err}
}

// ProtocolError represents a frame or payload that could not be decoded
type ProtocolError struct {
	Message string
	Frame   string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %s", e.Message)
}

// Is allows comparison with sentinel errors
func (e *ProtocolError) Is(target error) bool {
	if target == ErrInvalidPayload {
		return true
	}
	_, ok := target.(*ProtocolError)
	return ok
}

// NewProtocolError creates a new ProtocolError
func NewProtocolError(message, frame string) *ProtocolError {
	return &ProtocolError{Message: message, Frame: frame}
}

// TimeoutError represents a handshake or heartbeat timeout
type TimeoutError struct {
	Message string
}

func (e *TimeoutError) Error() string {
	if e.Message == "" {
		return "request timed out"
	}
	return fmt.Sprintf("request timed out: %s", e.Message)
}

// NewTimeoutError creates a new TimeoutError
func NewTimeoutError(message string) *TimeoutError {
	return &TimeoutError{Message: message}
}

// ResponseError is a backend reply delivered with status "error"
type ResponseError struct {
	Message string
}

func (e *ResponseError) Error() string {
	if e.Message == "" {
		return "model returned an error"
	}
	return fmt.Sprintf("model returned an error: %s", e.Message)
}

// NewResponseError creates a new ResponseError
func NewResponseError(message string) *ResponseError {
	return &ResponseError{Message: message}
}

// AttachmentError represents an image reference that cannot be sent
type AttachmentError struct {
	Ref     string
	Message string
}

func (e *AttachmentError) Error() string {
	return fmt.Sprintf("attachment %q: %s", e.Ref, e.Message)
}

// NewAttachmentError creates a new AttachmentError
func NewAttachmentError(ref, message string) *AttachmentError {
	return &AttachmentError{Ref: ref, Message: message}
}

// IsConnectionError reports whether err is or wraps a ConnectionError
func IsConnectionError(err error) bool {
	var target *ConnectionError
	return errors.As(err, &target)
}

// IsProtocolError reports whether err is or wraps a ProtocolError
func IsProtocolError(err error) bool {
	var target *ProtocolError
	return errors.As(err, &target)
}

// IsTimeoutError reports whether err is or wraps a TimeoutError
func IsTimeoutError(err error) bool {
	var target *TimeoutError
	return errors.As(err, &target)
}

// IsResponseError reports whether err is or wraps a ResponseError
func IsResponseError(err error) bool {
	var target *ResponseError
	return errors.As(err, &target)
}

// GetEndpoint returns the endpoint of a wrapped ConnectionError, if any
func GetEndpoint(err error) string {
	var target *ConnectionError
	if errors.As(err, &target) {
		return target.Endpoint
	}
	return ""
}

// IsClosed reports whether err means the connection is no longer usable
func IsClosed(err error) bool {
	return errors.Is(err, ErrClosed) || errors.Is(err, ErrServerDisconnect)
}
