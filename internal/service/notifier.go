package service

import (
	"context"
	"log/slog"

	"go-telemed/internal/event"
)

// ResetNotifier stands in for the mail collaborator that delivers reset
// links. In development it logs the link so the flow can be completed by hand.
type ResetNotifier struct {
	development bool
}

func NewResetNotifier(development bool) *ResetNotifier {
	return &ResetNotifier{development: development}
}

// Handle is an event.Handler.
func (n *ResetNotifier) Handle(_ context.Context, e event.Event) {
	if e.Type != event.TypePasswordResetRequest {
		return
	}

	link, ok := e.Payload.(event.ResetLink)
	if !ok {
		return
	}

	if n.development {
		slog.Info("password reset link", "email", link.Email, "link", link.Link, "expires_at", link.ExpiresAt)
		return
	}
	slog.Info("password reset link ready for delivery", "user_id", e.ActorID, "expires_at", link.ExpiresAt)
}
