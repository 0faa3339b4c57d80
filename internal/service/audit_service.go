package service

import (
	"context"
	"log/slog"
	"strings"

	"go-telemed/internal/event"
	"go-telemed/internal/model"
)

// AuditService turns account events into audit trail entries and serves the
// admin query.
type AuditService struct {
	store AuditStore
}

func NewAuditService(store AuditStore) *AuditService {
	return &AuditService{store: store}
}

// Record is an event.Handler. Write failures are logged and dropped.
func (s *AuditService) Record(ctx context.Context, e event.Event) {
	if s == nil {
		return
	}

	entry := model.AuditEntry{
		ID:         e.ID,
		Action:     string(e.Type),
		OccurredAt: e.Timestamp,
		Actor: model.AuditActor{
			UserID:   e.ActorID,
			Username: e.ActorName,
			IP:       e.IP,
		},
		Status: e.Status,
		Detail: e.Detail,
	}

	if err := s.store.Log(ctx, entry); err != nil {
		slog.Error("write audit entry", "action", entry.Action, "error", err)
	}
}

func (s *AuditService) Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error) {
	query.Action = strings.TrimSpace(query.Action)
	query.Status = strings.TrimSpace(query.Status)
	query.ActorID = strings.TrimSpace(query.ActorID)
	return s.store.Query(ctx, query)
}
