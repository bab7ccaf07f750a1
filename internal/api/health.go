package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/symptom-checker/internal/domain"
	"github.com/ashureev/symptom-checker/internal/store"
	"github.com/go-chi/chi/v5"
)

const defaultHealthCheckTimeout = 5 * time.Second

// SessionCounter reports how many chat sessions are live.
type SessionCounter interface {
	Count() int
}

// StatusHandler serves the health and statistics endpoints.
type StatusHandler struct {
	repo         store.Repository
	sessions     SessionCounter
	rulesVersion int
	remoteMode   string
	timeout      time.Duration
}

// StatusConfig describes what the status endpoints report.
type StatusConfig struct {
	RulesVersion       int
	RemoteMode         string
	HealthCheckTimeout time.Duration
}

// NewStatusHandler creates the health and statistics handler.
func NewStatusHandler(repo store.Repository, sessions SessionCounter, cfg StatusConfig) *StatusHandler {
	if cfg.HealthCheckTimeout <= 0 {
		cfg.HealthCheckTimeout = defaultHealthCheckTimeout
	}
	return &StatusHandler{
		repo:         repo,
		sessions:     sessions,
		rulesVersion: cfg.RulesVersion,
		remoteMode:   cfg.RemoteMode,
		timeout:      cfg.HealthCheckTimeout,
	}
}

// Health returns the health status of the API and its dependencies.
func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := map[string]interface{}{
		"status":        "healthy",
		"checks":        checks,
		"rules_version": h.rulesVersion,
		"remote":        remoteLabel(h.remoteMode),
	}
	statusCode := http.StatusOK

	if err := h.repo.Ping(ctx); err != nil {
		slog.Error("Health check failed", "error", err)
		status["status"] = "degraded"
		checks["database"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	JSON(w, statusCode, status)
}

// Stats returns the number of recorded assessments per risk tier.
func (h *StatusHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	counts, err := h.repo.CountByRisk(ctx)
	if err != nil {
		slog.Error("Failed to load risk counts", "error", err)
		Error(w, http.StatusInternalServerError, "failed to load stats")
		return
	}

	byRisk := map[domain.RiskTier]int64{
		domain.RiskLow:      counts[domain.RiskLow],
		domain.RiskModerate: counts[domain.RiskModerate],
		domain.RiskHigh:     counts[domain.RiskHigh],
	}
	var total int64
	for _, n := range counts {
		total += n
	}

	active := 0
	if h.sessions != nil {
		active = h.sessions.Count()
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"by_risk":         byRisk,
		"total":           total,
		"active_sessions": active,
	})
}

// RegisterRoutes registers the status routes.
func (h *StatusHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/health", h.Health)
	r.Get("/api/stats", h.Stats)
}

func remoteLabel(mode string) string {
	if mode == "" {
		return "disabled"
	}
	return mode
}
