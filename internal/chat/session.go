// Package chat owns live chat sessions: one analyzer state and transcript
// per session, a remote-first turn with local fallback, and the HTTP and
// WebSocket surface that drives them.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ashureev/symptom-checker/internal/analyzer"
	"github.com/ashureev/symptom-checker/internal/domain"
	"github.com/ashureev/symptom-checker/internal/remote"
	"github.com/ashureev/symptom-checker/internal/store"
	"github.com/ashureev/symptom-checker/internal/webhook"
)

var (
	// ErrEmptyMessage is returned for empty or whitespace-only input.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrTurnInFlight is returned when a turn is already running for the session.
	ErrTurnInFlight = errors.New("a turn is already in flight for this session")
	// ErrSessionNotFound is returned for unknown session IDs.
	ErrSessionNotFound = errors.New("session not found")
)

// recordTimeout bounds how long a turn waits on the interaction store.
const recordTimeout = 2 * time.Second

// Deps are the collaborators shared by every session.
type Deps struct {
	Analyzer *analyzer.Analyzer
	Remote   remote.Client // nil means local only
	Store    store.Repository
	Webhook  *webhook.Notifier
	Logger   *slog.Logger
	Now      func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Analyzer == nil {
		d.Analyzer = analyzer.New(nil)
	}
	if d.Store == nil {
		d.Store = store.NewNop()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// Snapshot is a read-only view of a session.
type Snapshot struct {
	ID         string           `json:"session_id"`
	Phase      analyzer.Phase   `json:"phase"`
	State      analyzer.State   `json:"state"`
	Messages   []domain.Message `json:"messages"`
	CreatedAt  time.Time        `json:"created_at"`
	LastActive time.Time        `json:"last_active"`
}

// Session is one conversation. Turns are serialized: at most one Send runs
// at a time and a concurrent call fails fast with ErrTurnInFlight.
type Session struct {
	id        string
	deps      Deps
	createdAt time.Time

	turn     sync.Mutex
	inFlight atomic.Bool

	mu         sync.RWMutex
	state      analyzer.State
	messages   []domain.Message
	lastActive time.Time

	// advance is replaced in tests to exercise the apology path.
	advance func(*analyzer.State, string) analyzer.Turn
}

// NewSession creates a session whose transcript starts with the greeting.
func NewSession(id string, deps Deps) *Session {
	deps = deps.withDefaults()
	now := deps.Now()
	s := &Session{
		id:         id,
		deps:       deps,
		createdAt:  now,
		lastActive: now,
		messages: []domain.Message{
			domain.NewAssistantMessage(analyzer.Greeting, nil, domain.KindGreeting, domain.SourceLocal, now),
		},
	}
	s.advance = func(st *analyzer.State, text string) analyzer.Turn {
		return st.Advance(s.deps.Analyzer, text)
	}
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Send runs one turn: the user message is appended, the remote analyzer is
// tried, and on any remote failure the local analyzer answers. The returned
// message is the assistant reply already appended to the transcript.
func (s *Session) Send(ctx context.Context, text string) (domain.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Message{}, ErrEmptyMessage
	}
	if !s.turn.TryLock() {
		return domain.Message{}, ErrTurnInFlight
	}
	defer s.turn.Unlock()
	s.inFlight.Store(true)
	defer s.inFlight.Store(false)

	s.appendMessage(domain.NewUserMessage(text, s.deps.Now()))

	reply, ok := s.tryRemote(ctx, text)
	if !ok {
		reply = s.answerLocally(ctx, text)
	}

	s.appendMessage(reply)
	return reply, nil
}

func (s *Session) tryRemote(ctx context.Context, text string) (domain.Message, bool) {
	if s.deps.Remote == nil {
		return domain.Message{}, false
	}
	start := time.Now()
	r, err := s.deps.Remote.Analyze(ctx, remote.Request{Message: text, SessionID: s.id})
	if err != nil {
		s.deps.Logger.Warn("Remote analyzer failed, using local fallback",
			"session_id", s.id,
			"elapsed", time.Since(start),
			"error", err)
		return domain.Message{}, false
	}
	s.deps.Logger.Debug("Remote analyzer replied", "session_id", s.id, "risk_level", r.RiskTier)
	return domain.NewAssistantMessage(r.Response, r.RiskTier.Ptr(), domain.KindAssessment, domain.SourceRemote, s.deps.Now()), true
}

// answerLocally runs the rule-based chain. A panic anywhere in it becomes
// the apology reply with no tier.
func (s *Session) answerLocally(ctx context.Context, text string) (reply domain.Message) {
	defer func() {
		if rec := recover(); rec != nil {
			s.deps.Logger.Error("Local analyzer failed", "session_id", s.id, "panic", fmt.Sprint(rec))
			reply = domain.NewAssistantMessage(analyzer.Apology, nil, domain.KindApology, domain.SourceLocal, s.deps.Now())
		}
	}()

	turn := s.advanceState(text)

	var content string
	switch turn.Kind {
	case domain.KindQuestion:
		content = analyzer.RenderQuestion(turn.Symptoms)
	default:
		content = analyzer.Render(*turn.Tier, turn.Symptoms, turn.Duration)
		s.record(ctx, turn)
	}

	s.deps.Logger.Info("Local turn answered",
		"session_id", s.id,
		"kind", turn.Kind,
		"symptoms", len(turn.Symptoms),
		"has_duration", turn.Duration != "")
	return domain.NewAssistantMessage(content, turn.Tier, turn.Kind, domain.SourceLocal, s.deps.Now())
}

func (s *Session) advanceState(text string) analyzer.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.advance(&s.state, text)
}

// record stores the anonymized assessment and forwards complete ones to the
// webhook. Failures are logged only.
func (s *Session) record(ctx context.Context, turn analyzer.Turn) {
	in := &domain.Interaction{
		SessionID: s.id,
		Category:  turn.Category,
		Symptoms:  turn.Symptoms,
		Duration:  turn.Duration,
		Age:       turn.Age,
		RiskTier:  *turn.Tier,
		Source:    domain.SourceLocal,
		CreatedAt: s.deps.Now(),
	}
	if in.Category == "" {
		in.Category = domain.CategoryGeneral
	}

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := s.deps.Store.SaveInteraction(rctx, in); err != nil {
		s.deps.Logger.Warn("Failed to record interaction", "session_id", s.id, "error", err)
	}

	if in.Complete() {
		s.deps.Webhook.Notify(webhook.PayloadFrom(in))
	}
}

func (s *Session) appendMessage(m domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, m)
	s.lastActive = s.deps.Now()
}

// Messages returns a copy of the transcript.
func (s *Session) Messages() []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.messages)
}

// Snapshot returns a consistent copy of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		ID:         s.id,
		Phase:      s.state.Phase(),
		State:      s.state.Snapshot(),
		Messages:   slices.Clone(s.messages),
		CreatedAt:  s.createdAt,
		LastActive: s.lastActive,
	}
}

// IdleSince reports the time of the last transcript change or lookup.
func (s *Session) IdleSince() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActive
}

// Busy reports whether a turn is running. It never contends with Send.
func (s *Session) Busy() bool {
	return s.inFlight.Load()
}

// touch marks the session as active without changing the transcript.
func (s *Session) touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = s.deps.Now()
}
