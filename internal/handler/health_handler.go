package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"go-telemed/internal/model"
)

const healthCheckTimeout = 2 * time.Second

type pinger interface {
	Health(ctx context.Context) error
}

type HealthHandler struct {
	db pinger
}

func NewHealthHandler(db pinger) *HealthHandler {
	return &HealthHandler{db: db}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	status := model.HealthStatus{Status: "ok", Database: "ok"}
	if err := h.db.Health(ctx); err != nil {
		slog.Warn("health check failed", "error", err)
		status = model.HealthStatus{Status: "degraded", Database: "unavailable"}
		writeSuccess(w, http.StatusServiceUnavailable, status, nil)
		return
	}

	writeSuccess(w, http.StatusOK, status, nil)
}
