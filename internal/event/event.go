package event

import (
	"context"
	"time"
)

type Type string

const (
	TypeUserRegistered        Type = "user.registered"
	TypeUserLogin             Type = "user.login"
	TypeUserLoginFailed       Type = "user.login_failed"
	TypePasswordResetRequest  Type = "password.reset_requested"
	TypePasswordResetComplete Type = "password.reset_completed"
	TypePasswordResetRejected Type = "password.reset_rejected"
	TypeTokenRevoked          Type = "token.revoked"
)

// Event describes something that happened to an account. Detail ends up in
// the audit trail; Payload is for subscribers that need more and must never
// carry credentials other than a reset link addressed to its owner.
type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	ActorID   string    `json:"actor_id,omitempty"`
	ActorName string    `json:"actor_name,omitempty"`
	IP        string    `json:"ip,omitempty"`
	Status    string    `json:"status"`
	Detail    string    `json:"detail,omitempty"`
	Payload   any       `json:"-"`
}

// ResetLink is the payload of TypePasswordResetRequest.
type ResetLink struct {
	Email     string
	Username  string
	Link      string
	ExpiresAt time.Time
}

type Bus interface {
	Publish(e Event)
	Subscribe() (<-chan Event, func()) // Returns channel and unsubscribe function
}

// Handler consumes events delivered by Consume.
type Handler func(ctx context.Context, e Event)
