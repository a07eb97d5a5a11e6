package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ent0n29/avatarstudio/internal/catalog"
	"github.com/ent0n29/avatarstudio/internal/diag"
	"github.com/ent0n29/avatarstudio/internal/jobs"
	"github.com/ent0n29/avatarstudio/internal/pipio"
)

type stubCatalog map[string]catalog.Record

func (c stubCatalog) Lookup(_ context.Context, _ string, kind catalog.Kind, id string, _ diag.Sink) (catalog.Record, bool) {
	r, ok := c[string(kind)+":"+id]
	return r, ok
}

type stubGenerator struct {
	mu     sync.Mutex
	nextID string
	state  pipio.ClipState
}

func (g *stubGenerator) CreateClip(context.Context, string, pipio.ClipRequest) (pipio.Clip, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return pipio.Clip{ID: g.nextID}, nil
}

func (g *stubGenerator) ClipStatus(context.Context, string, string) (pipio.ClipState, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state, nil
}

type recordingObserver struct {
	mu     sync.Mutex
	events []string
	active int
}

func (o *recordingObserver) ObserveJobEvent(string)   {}
func (o *recordingObserver) ObserveDiagnostic(string) {}

func (o *recordingObserver) SetActiveSessions(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.active = n
}

func (o *recordingObserver) ObserveSessionEvent(e string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, e)
}

func newTestManager(timeout time.Duration, gen *stubGenerator, obs Observer) *Manager {
	return NewManager(Config{
		InactivityTimeout: timeout,
		Catalog: stubCatalog{
			"avatar:a1": {ID: "a1", Name: "Ann"},
			"voice:v1":  {ID: "v1", Name: "Emma", Fields: map[string]any{"gender": "female", "language": "en-US"}},
		},
		Generator: gen,
		Observer:  obs,
		Logger:    zerolog.Nop(),
	})
}

func TestManagerCreateGetEnd(t *testing.T) {
	obs := &recordingObserver{}
	m := newTestManager(time.Minute, &stubGenerator{}, obs)
	s, err := m.Create("key-1")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if s.ID == "" || s.APIKey() != "key-1" {
		t.Fatalf("unexpected session: id=%q", s.ID)
	}
	if obs.active != 1 {
		t.Fatalf("active = %d, want 1", obs.active)
	}

	got, err := m.Active(s.ID)
	if err != nil || got != s {
		t.Fatalf("Active() = %v, %v", got, err)
	}

	if _, err := m.End(s.ID); err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if s.Status() != StatusEnded {
		t.Fatalf("Status = %q, want %q", s.Status(), StatusEnded)
	}
	if _, err := m.Active(s.ID); !errors.Is(err, pipio.ErrNotFound) {
		t.Fatalf("Active(ended) error = %v, want not found", err)
	}
	if m.ActiveCount() != 0 || obs.active != 0 {
		t.Fatalf("ActiveCount() = %d, observer = %d", m.ActiveCount(), obs.active)
	}
	if _, err := m.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(missing) error = %v", err)
	}
}

func TestManagerCreateRequiresKey(t *testing.T) {
	m := newTestManager(time.Minute, &stubGenerator{}, nil)
	if _, err := m.Create("  "); !errors.Is(err, pipio.ErrValidation) {
		t.Fatalf("Create(blank) error = %v, want validation", err)
	}

	m = NewManager(Config{DefaultAPIKey: "env-key", Logger: zerolog.Nop()})
	s, err := m.Create("")
	if err != nil || s.APIKey() != "env-key" {
		t.Fatalf("Create() with default = %v, %v", s, err)
	}
}

func TestManagerJanitorExpiresInactive(t *testing.T) {
	obs := &recordingObserver{}
	m := newTestManager(30*time.Millisecond, &stubGenerator{}, obs)
	s, err := m.Create("k")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	expired := make(chan string, 1)
	m.SetExpireHook(func(s *Session) { expired <- s.ID })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartJanitor(ctx, 10*time.Millisecond)

	select {
	case id := <-expired:
		if id != s.ID {
			t.Fatalf("expired %q, want %q", id, s.ID)
		}
	case <-time.After(time.Second):
		t.Fatalf("session was not expired")
	}
	if s.Status() != StatusEnded {
		t.Fatalf("Status = %q, want %q", s.Status(), StatusEnded)
	}
}

func TestSessionSelectAndGenerate(t *testing.T) {
	gen := &stubGenerator{nextID: "job42"}
	m := newTestManager(time.Minute, gen, nil)
	s, _ := m.Create("k")
	ctx := context.Background()

	if _, err := s.Generate(ctx, "Hello world", jobs.Options{}); !errors.Is(err, pipio.ErrValidation) {
		t.Fatalf("Generate() without selection error = %v, want validation", err)
	}
	if _, err := s.Select(ctx, SelectRequest{AvatarID: "nope"}); !errors.Is(err, pipio.ErrValidation) {
		t.Fatalf("Select(nope) error = %v, want validation", err)
	}

	sel, err := s.Select(ctx, SelectRequest{AvatarID: "a1", VoiceID: "v1"})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if sel.AvatarName != "Ann" || sel.VoiceName != "Emma (female, en-US)" {
		t.Fatalf("Select() = %+v", sel)
	}

	job, err := s.Generate(ctx, "Hello world", jobs.Options{})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if job.ID != "job42" || job.Status != jobs.StatusProcessing {
		t.Fatalf("Generate() = %+v", job)
	}

	gen.state = pipio.ClipState{Status: "completed", VideoURL: "https://x/y.mp4"}
	if _, err := s.Poll(ctx, "job42"); err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if _, err := s.Remove("job42"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	var actions []string
	for _, h := range s.History() {
		actions = append(actions, h.Action)
	}
	want := []string{ActionSelectedAvatar, ActionSelectedVoice, ActionGenerated, ActionCompleted, ActionRemoved}
	if len(actions) != len(want) {
		t.Fatalf("history = %v, want %v", actions, want)
	}
	for i := range want {
		if actions[i] != want[i] {
			t.Fatalf("history[%d] = %q, want %q", i, actions[i], want[i])
		}
	}

	a := s.Analytics()
	if len(a.Actions) != len(want) || a.Jobs.Total() != 0 {
		t.Fatalf("Analytics() = %+v", a)
	}

	s.ClearHistory()
	if len(s.History()) != 0 {
		t.Fatalf("history not cleared")
	}
}

func TestSessionRefreshAllRecordsFailures(t *testing.T) {
	gen := &stubGenerator{nextID: "j1"}
	m := newTestManager(time.Minute, gen, nil)
	s, _ := m.Create("k")
	ctx := context.Background()
	if _, err := s.Select(ctx, SelectRequest{AvatarID: "a1", VoiceID: "v1"}); err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if _, err := s.Generate(ctx, "hi", jobs.Options{}); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	gen.state = pipio.ClipState{Status: "failed"}
	report, list := s.RefreshAll(ctx)
	if report.Polled != 1 || report.Changed != 1 {
		t.Fatalf("RefreshAll() = %+v", report)
	}
	if len(list) != 1 || list[0].Status != jobs.StatusFailed {
		t.Fatalf("jobs = %+v", list)
	}
	if v := s.View(); v.TotalJobs != 1 || v.Jobs.Failed != 1 {
		t.Fatalf("View() = %+v", v)
	}
	h := s.History()
	if h[len(h)-1].Action != ActionFailed {
		t.Fatalf("last history = %+v", h[len(h)-1])
	}
}
