package chat

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/ashureev/symptom-checker/internal/domain"
	"github.com/ashureev/symptom-checker/internal/identity"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// Frame types sent to WebSocket clients.
const (
	FrameSession = "session"
	FrameReply   = "reply"
	FrameError   = "error"
)

// ClientFrame is what a WebSocket client sends for each turn.
type ClientFrame struct {
	Message string `json:"message"`
}

// ServerFrame is what the server sends back.
type ServerFrame struct {
	Type      string           `json:"type"`
	SessionID string           `json:"session_id,omitempty"`
	Messages  []domain.Message `json:"messages,omitempty"`
	Reply     *ChatResponse    `json:"reply,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// HandleWebSocket handles GET /ws/chat. The connection reads one frame at a
// time, so turns on a connection never overlap.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	sess := h.mgr.GetOrCreate(identity.SessionIDFromContext(r.Context()))
	slog.Info("WebSocket connection request", "session_id", sess.ID(), "ip", identity.IPFromRequest(r))

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "session_id", sess.ID())
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "session_id", sess.ID())
		}
	}()
	ws.SetReadLimit(h.maxBodySize)

	ctx := r.Context()
	if err := wsjson.Write(ctx, ws, ServerFrame{Type: FrameSession, SessionID: sess.ID(), Messages: sess.Messages()}); err != nil {
		slog.Debug("Failed to send session frame", "error", err, "session_id", sess.ID())
		return
	}

	h.readLoop(ctx, ws, sess)
	slog.Info("WebSocket chat ended", "session_id", sess.ID())
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, sess *Session) {
	for {
		var in ClientFrame
		if err := wsjson.Read(ctx, ws, &in); err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				slog.Debug("WebSocket read failed", "error", err, "session_id", sess.ID())
			}
			return
		}

		out := ServerFrame{Type: FrameReply, SessionID: sess.ID()}
		reply, err := sess.Send(ctx, in.Message)
		if err != nil {
			out = ServerFrame{Type: FrameError, SessionID: sess.ID(), Error: err.Error()}
		} else {
			resp := newChatResponse(sess.ID(), reply)
			out.Reply = &resp
		}

		if err := wsjson.Write(ctx, ws, out); err != nil {
			slog.Debug("WebSocket write failed", "error", err, "session_id", sess.ID())
			return
		}
	}
}

// originPatterns converts configured origins into host patterns for the
// WebSocket origin check.
func originPatterns(origins []string) []string {
	var patterns []string
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		if o == "*" {
			return []string{"*"}
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
			continue
		}
		patterns = append(patterns, o)
	}
	return patterns
}
