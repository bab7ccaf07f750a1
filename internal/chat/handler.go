package chat

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ashureev/symptom-checker/internal/api"
	"github.com/ashureev/symptom-checker/internal/domain"
	"github.com/ashureev/symptom-checker/internal/identity"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// defaultMaxRequestBodySize is the default maximum allowed request body size (64KB).
const defaultMaxRequestBodySize = 64 << 10

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

// ChatResponse is the reply to one turn. It has the same shape the remote
// analyzer contract uses, so this service can also act as a remote.
type ChatResponse struct {
	Response   string           `json:"response"`
	RiskLevel  *domain.RiskTier `json:"risk_level"`
	Disclaimer bool             `json:"disclaimer"`
	Kind       domain.ReplyKind `json:"kind"`
	Source     domain.Source    `json:"source"`
	SessionID  string           `json:"session_id"`
}

func newChatResponse(sessionID string, m domain.Message) ChatResponse {
	return ChatResponse{
		Response:   m.Content,
		RiskLevel:  m.RiskTier,
		Disclaimer: true,
		Kind:       m.Kind,
		Source:     m.Source,
		SessionID:  sessionID,
	}
}

// HandlerConfig configures Handler.
type HandlerConfig struct {
	MaxRequestBodySize int64
	AllowedOrigins     []string
}

// Handler serves the chat HTTP and WebSocket endpoints.
type Handler struct {
	mgr            *Manager
	maxBodySize    int64
	originPatterns []string
}

// NewHandler creates a chat handler over mgr.
func NewHandler(mgr *Manager, cfg HandlerConfig) *Handler {
	if cfg.MaxRequestBodySize <= 0 {
		cfg.MaxRequestBodySize = defaultMaxRequestBodySize
	}
	return &Handler{
		mgr:            mgr,
		maxBodySize:    cfg.MaxRequestBodySize,
		originPatterns: originPatterns(cfg.AllowedOrigins),
	}
}

// RegisterRoutes mounts the chat routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.HandleChat)
	r.Post("/api/chat", h.HandleChat)
	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", h.HandleCreateSession)
		r.Get("/{id}", h.HandleGetSession)
		r.Delete("/{id}", h.HandleDeleteSession)
	})
	r.Get("/ws/chat", h.HandleWebSocket)
}

// HandleChat handles POST /chat and POST /api/chat.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(req.Message) == "" {
		api.Error(w, http.StatusBadRequest, "message is required")
		return
	}

	sessionID := identity.SessionIDFromContext(r.Context())
	if req.SessionID != "" {
		id, ok := identity.SanitizeSessionID(req.SessionID)
		if !ok {
			api.Error(w, http.StatusBadRequest, "invalid session_id")
			return
		}
		sessionID = id
	}

	sess := h.mgr.GetOrCreate(sessionID)
	slog.Info("Chat request",
		"session_id", sess.ID(),
		"request_id", chiMiddleware.GetReqID(r.Context()),
		"message_length", len(req.Message))

	reply, err := sess.Send(r.Context(), req.Message)
	if err != nil {
		writeSendError(w, err)
		return
	}
	api.JSON(w, http.StatusOK, newChatResponse(sess.ID(), reply))
}

// HandleCreateSession handles POST /api/sessions.
func (h *Handler) HandleCreateSession(w http.ResponseWriter, _ *http.Request) {
	sess := h.mgr.Create()
	api.JSON(w, http.StatusCreated, map[string]any{
		"session_id": sess.ID(),
		"messages":   sess.Messages(),
	})
}

// HandleGetSession handles GET /api/sessions/{id}.
func (h *Handler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookup(w, r)
	if !ok {
		return
	}
	api.JSON(w, http.StatusOK, sess.Snapshot())
}

// HandleDeleteSession handles DELETE /api/sessions/{id}.
func (h *Handler) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if sess.Busy() {
		api.Error(w, http.StatusConflict, ErrTurnInFlight.Error())
		return
	}
	h.mgr.Remove(sess.ID())
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	id, ok := identity.SanitizeSessionID(chi.URLParam(r, "id"))
	if !ok {
		api.Error(w, http.StatusBadRequest, "invalid session id")
		return nil, false
	}
	sess, err := h.mgr.Get(id)
	if err != nil {
		api.Error(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	return sess, true
}

func writeSendError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrEmptyMessage):
		api.Error(w, http.StatusBadRequest, "message is required")
	case errors.Is(err, ErrTurnInFlight):
		api.Error(w, http.StatusConflict, err.Error())
	default:
		slog.Error("Chat turn failed", "error", err)
		api.Error(w, http.StatusInternalServerError, "internal error")
	}
}
