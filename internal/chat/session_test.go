package chat

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ashureev/symptom-checker/internal/analyzer"
	"github.com/ashureev/symptom-checker/internal/domain"
	"github.com/ashureev/symptom-checker/internal/remote"
	"github.com/ashureev/symptom-checker/internal/webhook"
)

type fakeRemote struct {
	reply   *remote.Reply
	err     error
	calls   atomic.Int32
	entered chan struct{}
	release chan struct{}
}

func (f *fakeRemote) Analyze(ctx context.Context, _ remote.Request) (*remote.Reply, error) {
	f.calls.Add(1)
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.reply, f.err
}

type recordingRepo struct {
	mu      sync.Mutex
	records []*domain.Interaction
	saveErr error
}

func (r *recordingRepo) SaveInteraction(_ context.Context, in *domain.Interaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	cp := *in
	r.records = append(r.records, &cp)
	return nil
}

func (r *recordingRepo) CountByRisk(context.Context) (map[domain.RiskTier]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[domain.RiskTier]int64)
	for _, rec := range r.records {
		out[rec.RiskTier]++
	}
	return out, nil
}

func (r *recordingRepo) CleanupOlderThan(context.Context, time.Duration) (int64, error) {
	return 0, nil
}
func (r *recordingRepo) Ping(context.Context) error { return nil }
func (r *recordingRepo) Close() error               { return nil }

func (r *recordingRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

func newTestSession(deps Deps) *Session {
	return NewSession("session_test", deps)
}

func TestSessionStartsWithGreeting(t *testing.T) {
	s := newTestSession(Deps{})
	msgs := s.Messages()
	if len(msgs) != 1 || msgs[0].Kind != domain.KindGreeting || msgs[0].RiskTier != nil {
		t.Fatalf("transcript = %+v, want single greeting", msgs)
	}
}

func TestSendHighRiskFallback(t *testing.T) {
	s := newTestSession(Deps{})

	reply, err := s.Send(context.Background(), "I have chest pain")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if reply.RiskTier == nil || *reply.RiskTier != domain.RiskHigh {
		t.Fatalf("tier = %v, want high", reply.RiskTier)
	}
	if !strings.Contains(reply.Content, "emergency") {
		t.Errorf("reply lacks emergency guidance: %q", reply.Content)
	}
	if !strings.HasSuffix(reply.Content, analyzer.Disclaimer) {
		t.Errorf("reply lacks disclaimer footer: %q", reply.Content)
	}
	if reply.Source != domain.SourceLocal {
		t.Errorf("source = %q, want local", reply.Source)
	}
}

func TestSendAsksForDurationThenAssesses(t *testing.T) {
	s := newTestSession(Deps{})
	ctx := context.Background()

	q, err := s.Send(ctx, "I have a headache")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if q.Kind != domain.KindQuestion || q.RiskTier != nil {
		t.Fatalf("first reply = %+v, want question with no tier", q)
	}
	if s.Snapshot().Phase != analyzer.PhaseAwaitingDuration {
		t.Fatalf("phase = %q, want awaiting_duration", s.Snapshot().Phase)
	}

	a, err := s.Send(ctx, "for 2 days")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if a.Kind != domain.KindAssessment || a.RiskTier == nil {
		t.Fatalf("second reply = %+v, want tiered assessment", a)
	}
	if !strings.Contains(a.Content, "headache") || !strings.Contains(a.Content, "2 days") {
		t.Errorf("assessment does not reference headache and 2 days: %q", a.Content)
	}

	snap := s.Snapshot()
	if snap.State.Duration != "2 days" || snap.Phase != analyzer.PhaseCollecting {
		t.Fatalf("state = %+v, phase %q", snap.State, snap.Phase)
	}
	if len(snap.Messages) != 5 {
		t.Fatalf("transcript has %d messages, want 5", len(snap.Messages))
	}
}

func TestSendRemoteServerErrorFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := newTestSession(Deps{Remote: remote.NewHTTPClient(remote.HTTPConfig{URL: srv.URL}, nil)})

	reply, err := s.Send(context.Background(), "I have a fever for 3 days")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if reply.Kind == domain.KindApology || reply.RiskTier == nil {
		t.Fatalf("reply = %+v, want tier-labeled local answer", reply)
	}
	if reply.Source != domain.SourceLocal {
		t.Fatalf("source = %q, want local", reply.Source)
	}
}

func TestSendRemoteSuccessSkipsLocal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"response":"ok","risk_level":"moderate"}`))
	}))
	defer srv.Close()

	repo := &recordingRepo{}
	s := newTestSession(Deps{
		Remote: remote.NewHTTPClient(remote.HTTPConfig{URL: srv.URL}, nil),
		Store:  repo,
	})
	s.advance = func(*analyzer.State, string) analyzer.Turn {
		t.Fatal("local analyzer invoked after remote success")
		return analyzer.Turn{}
	}

	reply, err := s.Send(context.Background(), "I have a headache")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if reply.Content != "ok" || reply.RiskTier == nil || *reply.RiskTier != domain.RiskModerate {
		t.Fatalf("reply = %+v, want ok/moderate", reply)
	}
	if reply.Source != domain.SourceRemote {
		t.Fatalf("source = %q, want remote", reply.Source)
	}
	if repo.count() != 0 {
		t.Fatalf("remote reply was recorded locally")
	}
}

func TestSendMalformedRemoteFallsBack(t *testing.T) {
	f := &fakeRemote{err: remote.ErrMalformed}
	s := newTestSession(Deps{Remote: f})

	reply, err := s.Send(context.Background(), "I have chest pain")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if reply.Source != domain.SourceLocal || *reply.RiskTier != domain.RiskHigh {
		t.Fatalf("reply = %+v", reply)
	}
	if f.calls.Load() != 1 {
		t.Fatalf("remote calls = %d, want 1", f.calls.Load())
	}
}

func TestSendEmptyMessageIsNoop(t *testing.T) {
	s := newTestSession(Deps{})
	for _, in := range []string{"", "   ", "\n\t"} {
		if _, err := s.Send(context.Background(), in); !errors.Is(err, ErrEmptyMessage) {
			t.Fatalf("Send(%q) error = %v, want ErrEmptyMessage", in, err)
		}
	}
	if n := len(s.Messages()); n != 1 {
		t.Fatalf("transcript has %d messages, want 1", n)
	}
}

func TestSendRejectsConcurrentTurn(t *testing.T) {
	f := &fakeRemote{
		reply:   &remote.Reply{Response: "ok", RiskTier: domain.RiskLow},
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	s := newTestSession(Deps{Remote: f})

	done := make(chan error, 1)
	go func() {
		_, err := s.Send(context.Background(), "first")
		done <- err
	}()
	<-f.entered

	if !s.Busy() {
		t.Fatal("Busy() = false during a turn")
	}
	if _, err := s.Send(context.Background(), "second"); !errors.Is(err, ErrTurnInFlight) {
		t.Fatalf("concurrent Send() error = %v, want ErrTurnInFlight", err)
	}

	close(f.release)
	if err := <-done; err != nil {
		t.Fatalf("first Send() error = %v", err)
	}
	if n := len(s.Messages()); n != 3 {
		t.Fatalf("transcript has %d messages, want 3", n)
	}
}

func TestBusyDoesNotRejectSend(t *testing.T) {
	s := newTestSession(Deps{})

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				_ = s.Busy()
			}
		}
	}()

	for i := 0; i < 200; i++ {
		if _, err := s.Send(context.Background(), "hello"); err != nil {
			t.Fatalf("Send() #%d error = %v", i, err)
		}
	}
	close(stop)
	wg.Wait()

	if s.Busy() {
		t.Fatal("Busy() = true after the last turn returned")
	}
}

func TestSendPanicYieldsApology(t *testing.T) {
	s := newTestSession(Deps{})
	s.advance = func(*analyzer.State, string) analyzer.Turn {
		panic("renderer exploded")
	}

	reply, err := s.Send(context.Background(), "I have a cough")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if reply.Kind != domain.KindApology || reply.RiskTier != nil || reply.Content != analyzer.Apology {
		t.Fatalf("reply = %+v, want apology with no tier", reply)
	}

	// The session stays usable.
	s.advance = func(st *analyzer.State, text string) analyzer.Turn {
		return st.Advance(analyzer.New(nil), text)
	}
	if _, err := s.Send(context.Background(), "chest pain"); err != nil {
		t.Fatalf("Send() after apology error = %v", err)
	}
}

func TestSendRecordsAssessmentsAndNotifies(t *testing.T) {
	hooks := make(chan struct{}, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hooks <- struct{}{}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	repo := &recordingRepo{}
	notifier := webhook.New(srv.URL, time.Second, nil)
	s := newTestSession(Deps{Store: repo, Webhook: notifier})
	ctx := context.Background()

	if _, err := s.Send(ctx, "I have a headache"); err != nil {
		t.Fatal(err)
	}
	if repo.count() != 0 {
		t.Fatal("question turn was recorded")
	}

	if _, err := s.Send(ctx, "for 2 days"); err != nil {
		t.Fatal(err)
	}
	notifier.Wait()

	if repo.count() != 1 {
		t.Fatalf("records = %d, want 1", repo.count())
	}
	rec := repo.records[0]
	if rec.SessionID != "session_test" || rec.Duration != "2 days" || rec.Category != domain.CategoryGeneral {
		t.Fatalf("record = %+v", rec)
	}
	if len(hooks) != 1 {
		t.Fatalf("webhook calls = %d, want 1", len(hooks))
	}
}

func TestSendRecordsStatedAge(t *testing.T) {
	repo := &recordingRepo{}
	s := newTestSession(Deps{Store: repo})
	ctx := context.Background()

	reply, err := s.Send(ctx, "I'm 30 years old and I have a headache")
	if err != nil {
		t.Fatal(err)
	}
	if reply.Kind != domain.KindQuestion {
		t.Fatalf("kind = %q, want question", reply.Kind)
	}
	if _, err := s.Send(ctx, "for 2 days"); err != nil {
		t.Fatal(err)
	}

	if repo.count() != 1 {
		t.Fatalf("records = %d, want 1", repo.count())
	}
	rec := repo.records[0]
	if rec.Age != 30 || rec.Duration != "2 days" {
		t.Fatalf("record = %+v, want age 30 and duration 2 days", rec)
	}
}

func TestSendStoreFailureIsIgnored(t *testing.T) {
	s := newTestSession(Deps{Store: &recordingRepo{saveErr: errors.New("disk full")}})
	reply, err := s.Send(context.Background(), "I have chest pain")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if reply.Kind != domain.KindAssessment {
		t.Fatalf("kind = %q, want assessment", reply.Kind)
	}
}

func TestSessionsDoNotShareState(t *testing.T) {
	a := NewSession("a", Deps{})
	b := NewSession("b", Deps{})

	if _, err := a.Send(context.Background(), "I have a headache"); err != nil {
		t.Fatal(err)
	}
	if b.Snapshot().Phase != analyzer.PhaseCollecting || len(b.Snapshot().State.Symptoms) != 0 {
		t.Fatal("state leaked between sessions")
	}
}
