package jobs

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ent0n29/avatarstudio/internal/catalog"
	"github.com/ent0n29/avatarstudio/internal/diag"
	"github.com/ent0n29/avatarstudio/internal/pipio"
)

// Generator is the slice of the upstream client the tracker needs.
type Generator interface {
	CreateClip(ctx context.Context, apiKey string, req pipio.ClipRequest) (pipio.Clip, error)
	ClipStatus(ctx context.Context, apiKey, clipID string) (pipio.ClipState, error)
}

// Resolver checks that a selected id came from a normalized listing.
type Resolver interface {
	Lookup(ctx context.Context, apiKey string, kind catalog.Kind, id string, sink diag.Sink) (catalog.Record, bool)
}

type EventObserver interface {
	ObserveJobEvent(event string)
}

type Config struct {
	APIKey    string
	Generator Generator
	Resolver  Resolver
	Sink      diag.Sink
	Observer  EventObserver
	Logger    zerolog.Logger
}

// Tracker owns one session's job list. Upstream calls run outside the lock;
// their results are applied under it.
type Tracker struct {
	apiKey    string
	generator Generator
	resolver  Resolver
	sink      diag.Sink
	observer  EventObserver
	logger    zerolog.Logger
	now       func() time.Time

	mu          sync.RWMutex
	order       []string
	jobs        map[string]*Job
	subscribers map[int]chan Event
	nextSubID   int
	closed      bool
}

func NewTracker(cfg Config) *Tracker {
	return &Tracker{
		apiKey:      cfg.APIKey,
		generator:   cfg.Generator,
		resolver:    cfg.Resolver,
		sink:        cfg.Sink,
		observer:    cfg.Observer,
		logger:      cfg.Logger.With().Str("component", "jobs").Logger(),
		now:         func() time.Time { return time.Now().UTC() },
		jobs:        make(map[string]*Job),
		subscribers: make(map[int]chan Event),
	}
}

// Submit validates the request, starts a generation upstream and records a
// processing job. On any failure no job is created.
func (t *Tracker) Submit(ctx context.Context, req SubmitRequest) (Job, error) {
	req.AvatarID = strings.TrimSpace(req.AvatarID)
	req.VoiceID = strings.TrimSpace(req.VoiceID)
	if req.AvatarID == "" || req.VoiceID == "" {
		return Job{}, pipio.Validationf("select both an avatar and a voice before generating")
	}
	if err := ValidateScript(req.Script); err != nil {
		return Job{}, err
	}
	opts := req.Options.WithDefaults()
	if err := opts.Validate(); err != nil {
		return Job{}, err
	}

	avatar, ok := t.resolver.Lookup(ctx, t.apiKey, catalog.KindAvatar, req.AvatarID, t.sink)
	if !ok {
		return Job{}, pipio.Validationf("avatar %q is not in the catalog", req.AvatarID)
	}
	voice, ok := t.resolver.Lookup(ctx, t.apiKey, catalog.KindVoice, req.VoiceID, t.sink)
	if !ok {
		return Job{}, pipio.Validationf("voice %q is not in the catalog", req.VoiceID)
	}

	clip, err := t.generator.CreateClip(ctx, t.apiKey, pipio.ClipRequest{
		ActorID:         req.AvatarID,
		VoiceID:         req.VoiceID,
		Script:          req.Script,
		Format:          opts.Format,
		Resolution:      opts.Resolution,
		BackgroundColor: opts.BackgroundColor,
		SpeedFactor:     opts.SpeedFactor,
	})
	if err != nil {
		t.record(pipio.EndpointSubmit, err)
		t.observe("submit_failed")
		return Job{}, err
	}

	now := t.now()
	job := &Job{
		ID:         clip.ID,
		AvatarID:   avatar.ID,
		AvatarName: avatar.Name,
		VoiceID:    voice.ID,
		VoiceName:  voice.Name,
		Script:     req.Script,
		Options:    opts,
		Status:     StatusProcessing,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	t.mu.Lock()
	if _, exists := t.jobs[job.ID]; !exists {
		t.order = append(t.order, job.ID)
	}
	t.jobs[job.ID] = job
	t.publishLocked(Event{Type: EventJobCreated, Job: *job, At: now})
	t.mu.Unlock()

	t.observe("created")
	t.logger.Info().Str("job_id", job.ID).Str("avatar_id", job.AvatarID).Str("voice_id", job.VoiceID).Msg("generation started")
	return *job, nil
}

// Poll refreshes a job from the upstream. Completed and failed jobs are
// returned as-is. When the upstream call fails the last known state is
// returned together with the error.
func (t *Tracker) Poll(ctx context.Context, jobID string) (Job, error) {
	jobID = strings.TrimSpace(jobID)
	current, err := t.Get(jobID)
	if err != nil {
		return Job{}, err
	}
	if current.Status.Terminal() {
		return current, nil
	}

	state, err := t.generator.ClipStatus(ctx, t.apiKey, jobID)
	if err != nil {
		t.record(pipio.EndpointClipStatus, err)
		t.observe("poll_failed")
		if latest, gerr := t.Get(jobID); gerr == nil {
			current = latest
		}
		return current, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	job, ok := t.jobs[jobID]
	if !ok {
		return Job{}, pipio.NotFoundf("job %q was removed while polling", jobID)
	}
	if job.Status.Terminal() {
		return *job, nil
	}
	if applyState(job, state, t.now()) {
		t.publishLocked(Event{Type: EventJobUpdated, Job: *job, At: job.UpdatedAt})
		t.observe("status_" + string(job.Status))
		t.logger.Info().Str("job_id", job.ID).Str("status", string(job.Status)).Str("upstream_status", job.UpstreamStatus).Msg("job status changed")
	}
	return *job, nil
}

// applyState maps an upstream status onto job and reports whether anything
// changed. A completed status without a video URL is held as unknown so the
// artifact invariant is never broken.
func applyState(job *Job, state pipio.ClipState, now time.Time) bool {
	status := ParseStatus(state.Status)
	artifact := ""
	if status == StatusCompleted {
		artifact = strings.TrimSpace(state.VideoURL)
		if artifact == "" {
			status = StatusUnknown
		}
	}
	changed := job.Status != status || job.ArtifactURL != artifact || job.UpstreamStatus != state.Status
	job.Status = status
	job.ArtifactURL = artifact
	job.UpstreamStatus = state.Status
	if changed {
		job.UpdatedAt = now
	}
	return changed
}

// RefreshAll polls every job that has not reached a terminal state, one at a time.
func (t *Tracker) RefreshAll(ctx context.Context) RefreshReport {
	var pending []Job
	for _, j := range t.List() {
		if !j.Status.Terminal() {
			pending = append(pending, j)
		}
	}

	var report RefreshReport
	for _, before := range pending {
		if ctx.Err() != nil {
			break
		}
		report.Polled++
		after, err := t.Poll(ctx, before.ID)
		if err != nil {
			report.Failed++
			continue
		}
		if after.Status != before.Status || after.ArtifactURL != before.ArtifactURL {
			report.Changed++
		}
	}
	return report
}

// Remove deletes a job regardless of its state.
func (t *Tracker) Remove(jobID string) (Job, error) {
	jobID = strings.TrimSpace(jobID)
	t.mu.Lock()
	defer t.mu.Unlock()
	job, ok := t.jobs[jobID]
	if !ok {
		return Job{}, pipio.NotFoundf("job %q not found", jobID)
	}
	delete(t.jobs, jobID)
	for i, id := range t.order {
		if id == jobID {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	t.publishLocked(Event{Type: EventJobRemoved, Job: *job, At: t.now()})
	t.observe("removed")
	return *job, nil
}

func (t *Tracker) Get(jobID string) (Job, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	job, ok := t.jobs[jobID]
	if !ok {
		return Job{}, pipio.NotFoundf("job %q not found", jobID)
	}
	return *job, nil
}

// List returns jobs in creation order, optionally restricted to statuses.
func (t *Tracker) List(statuses ...Status) []Job {
	want := make(map[Status]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Job, 0, len(t.order))
	for _, id := range t.order {
		job := t.jobs[id]
		if len(want) > 0 && !want[job.Status] {
			continue
		}
		out = append(out, *job)
	}
	return out
}

func (t *Tracker) Counts() Counts {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var c Counts
	for _, job := range t.jobs {
		switch job.Status {
		case StatusProcessing:
			c.Processing++
		case StatusCompleted:
			c.Completed++
		case StatusFailed:
			c.Failed++
		default:
			c.Unknown++
		}
	}
	return c
}

// Subscribe streams job events until the returned cancel func is called or
// the tracker is closed. Slow subscribers miss events rather than block.
func (t *Tracker) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 64)
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	t.nextSubID++
	id := t.nextSubID
	t.subscribers[id] = ch
	t.mu.Unlock()

	return ch, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if c, ok := t.subscribers[id]; ok {
			delete(t.subscribers, id)
			close(c)
		}
	}
}

// Close drops all subscribers. The job list stays readable.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for id, c := range t.subscribers {
		delete(t.subscribers, id)
		close(c)
	}
}

func (t *Tracker) publishLocked(ev Event) {
	for _, ch := range t.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (t *Tracker) record(endpoint string, err error) {
	if t.sink == nil {
		t.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("upstream call failed")
		return
	}
	t.sink.Record(diag.FromError(endpoint, err))
}

func (t *Tracker) observe(event string) {
	if t.observer != nil {
		t.observer.ObserveJobEvent(event)
	}
}
