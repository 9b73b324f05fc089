// Package models defines the payloads exchanged with the relay server.
package models

import (
	"fmt"

	apierrors "github.com/diogo/geminichat/internal/errors"
)

// EventMessage is the Socket.IO event name used in both directions
const EventMessage = "message"

// Role identifies who originated an inbound message
type Role string

const (
	RoleModel Role = "model"
	RoleUser  Role = "user"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	return r == RoleModel || r == RoleUser
}

// Status is the lifecycle stage of a single logical response
type Status string

const (
	StatusSuccess  Status = "success"
	StatusProgress Status = "progress"
	StatusError    Status = "error"
)

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusSuccess, StatusProgress, StatusError:
		return true
	}
	return false
}

// Terminal reports whether s ends a response (success or error)
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusError
}

// OutboundMessage is the payload of a user-originated "message" event
type OutboundMessage struct {
	Message string   `json:"message"`
	Images  []string `json:"images"`
}

// NewOutboundMessage builds an outbound payload. A nil images slice is
// normalized to an empty one so it serializes as [] rather than null.
func NewOutboundMessage(message string, images []string) OutboundMessage {
	refs := make([]string, len(images))
	copy(refs, images)
	return OutboundMessage{Message: message, Images: refs}
}

// InboundMessage is the payload of a server-originated "message" event
type InboundMessage struct {
	Role    Role     `json:"role"`
	Status  Status   `json:"status"`
	Message string   `json:"message"`
	Images  []string `json:"images,omitempty"`
}

// Validate checks the role and status enums
func (m InboundMessage) Validate() error {
	if !m.Role.Valid() {
		return apierrors.NewProtocolError(fmt.Sprintf("unknown role %q", m.Role), "")
	}
	if !m.Status.Valid() {
		return apierrors.NewProtocolError(fmt.Sprintf("unknown status %q", m.Status), "")
	}
	return nil
}
