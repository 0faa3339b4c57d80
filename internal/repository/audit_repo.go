package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"go-telemed/internal/dbx"
	"go-telemed/internal/model"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 200
)

type AuditRepository struct {
	db      dbx.DBTX
	dialect dbx.Dialect
}

func NewAuditRepository(db dbx.DBTX, dialect dbx.Dialect) *AuditRepository {
	return &AuditRepository{db: db, dialect: dialect}
}

func (r *AuditRepository) Log(ctx context.Context, entry model.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	_, err := r.db.ExecContext(ctx,
		dbx.Rebind(r.dialect, `INSERT INTO audit_entries
		 (id, action, occurred_at, actor_user_id, actor_username, actor_ip, status, detail)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		entry.ID, entry.Action, stamp(entry.OccurredAt),
		entry.Actor.UserID, entry.Actor.Username, entry.Actor.IP,
		entry.Status, entry.Detail)
	if err != nil {
		return fmt.Errorf("log audit entry: %w", err)
	}
	return nil
}

func (r *AuditRepository) Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error) {
	if query.Page < 1 {
		query.Page = 1
	}
	if query.Limit <= 0 {
		query.Limit = defaultAuditLimit
	}
	if query.Limit > maxAuditLimit {
		query.Limit = maxAuditLimit
	}

	where := make([]string, 0)
	args := make([]any, 0)

	if action := strings.TrimSpace(query.Action); action != "" {
		where = append(where, "lower(action) = lower(?)")
		args = append(args, action)
	}
	if actorID := strings.TrimSpace(query.ActorID); actorID != "" {
		where = append(where, "actor_user_id = ?")
		args = append(args, actorID)
	}
	if status := strings.TrimSpace(query.Status); status != "" {
		where = append(where, "lower(status) = lower(?)")
		args = append(args, status)
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	var total int
	countQuery := dbx.Rebind(r.dialect, "SELECT COUNT(*) FROM audit_entries "+whereClause)
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, model.Meta{}, fmt.Errorf("count audit entries: %w", err)
	}
	meta := model.NewMeta(query.Page, query.Limit, total)

	dataQuery := dbx.Rebind(r.dialect, `SELECT id, action, occurred_at, actor_user_id, actor_username, actor_ip, status, detail
		 FROM audit_entries `+whereClause+`
		 ORDER BY occurred_at DESC, id
		 LIMIT ? OFFSET ?`)
	args = append(args, query.Limit, (query.Page-1)*query.Limit)

	rows, err := r.db.QueryContext(ctx, dataQuery, args...)
	if err != nil {
		return nil, model.Meta{}, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	entries := make([]model.AuditEntry, 0)
	for rows.Next() {
		var e model.AuditEntry
		if err := rows.Scan(&e.ID, &e.Action, &e.OccurredAt,
			&e.Actor.UserID, &e.Actor.Username, &e.Actor.IP, &e.Status, &e.Detail); err != nil {
			return nil, model.Meta{}, fmt.Errorf("scan audit entry: %w", err)
		}
		e.OccurredAt = e.OccurredAt.UTC()
		entries = append(entries, e)
	}

	return entries, meta, rows.Err()
}
