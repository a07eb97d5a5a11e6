package session

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ent0n29/avatarstudio/internal/catalog"
	"github.com/ent0n29/avatarstudio/internal/diag"
	"github.com/ent0n29/avatarstudio/internal/jobs"
	"github.com/ent0n29/avatarstudio/internal/pipio"
)

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

// Session is one user's dashboard state: the API key, the current avatar and
// voice selection, the job tracker, the activity history and the diagnostic log.
type Session struct {
	ID          string
	Jobs        *jobs.Tracker
	Diagnostics *diag.Log

	apiKey  string
	catalog jobs.Resolver
	now     func() time.Time

	mu             sync.RWMutex
	status         Status
	selection      Selection
	history        []HistoryEntry
	startedAt      time.Time
	lastActivityAt time.Time
}

func (s *Session) APIKey() string { return s.apiKey }

func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Session) View() View {
	counts := s.Jobs.Counts()
	s.mu.RLock()
	defer s.mu.RUnlock()
	return View{
		ID:             s.ID,
		Status:         s.status,
		Selection:      s.selection,
		Jobs:           counts,
		TotalJobs:      counts.Total(),
		Diagnostics:    s.Diagnostics.Len(),
		StartedAt:      s.startedAt,
		LastActivityAt: s.lastActivityAt,
	}
}

func (s *Session) Selection() Selection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selection
}

// Select resolves the given ids against the catalog and stores them. Empty
// ids leave the current choice untouched.
func (s *Session) Select(ctx context.Context, req SelectRequest) (Selection, error) {
	avatarID := strings.TrimSpace(req.AvatarID)
	voiceID := strings.TrimSpace(req.VoiceID)
	if avatarID == "" && voiceID == "" {
		return s.Selection(), pipio.Validationf("avatar_id or voice_id is required")
	}

	var avatar, voice catalog.Record
	if avatarID != "" {
		rec, ok := s.catalog.Lookup(ctx, s.apiKey, catalog.KindAvatar, avatarID, s.Diagnostics)
		if !ok {
			return s.Selection(), pipio.Validationf("avatar %q is not in the catalog", avatarID)
		}
		avatar = rec
	}
	if voiceID != "" {
		rec, ok := s.catalog.Lookup(ctx, s.apiKey, catalog.KindVoice, voiceID, s.Diagnostics)
		if !ok {
			return s.Selection(), pipio.Validationf("voice %q is not in the catalog", voiceID)
		}
		voice = rec
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if avatar.ID != "" {
		s.selection.AvatarID = avatar.ID
		s.selection.AvatarName = avatar.Name
		s.appendLocked(ActionSelectedAvatar, avatar.Name)
	}
	if voice.ID != "" {
		s.selection.VoiceID = voice.ID
		s.selection.VoiceName = catalog.VoiceFrom(voice).DisplayName()
		s.appendLocked(ActionSelectedVoice, s.selection.VoiceName)
	}
	return s.selection, nil
}

// Generate submits script with the current selection.
func (s *Session) Generate(ctx context.Context, script string, opts jobs.Options) (jobs.Job, error) {
	sel := s.Selection()
	if !sel.Complete() {
		return jobs.Job{}, pipio.Validationf("select both an avatar and a voice before generating")
	}
	job, err := s.Jobs.Submit(ctx, jobs.SubmitRequest{
		AvatarID: sel.AvatarID,
		VoiceID:  sel.VoiceID,
		Script:   script,
		Options:  opts,
	})
	if err != nil {
		return jobs.Job{}, err
	}
	s.addHistory(ActionGenerated, fmt.Sprintf("ID: %s, Avatar: %s, Voice: %s", job.ID, job.AvatarName, job.VoiceName))
	return job, nil
}

// Poll refreshes one job and records completion or failure in the history.
func (s *Session) Poll(ctx context.Context, jobID string) (jobs.Job, error) {
	before, err := s.Jobs.Get(jobID)
	if err != nil {
		return jobs.Job{}, err
	}
	after, err := s.Jobs.Poll(ctx, jobID)
	if err != nil {
		return after, err
	}
	s.noteTransition(before, after)
	return after, nil
}

// RefreshAll polls every pending job.
func (s *Session) RefreshAll(ctx context.Context) (jobs.RefreshReport, []jobs.Job) {
	before := make(map[string]jobs.Job)
	for _, j := range s.Jobs.List() {
		before[j.ID] = j
	}
	report := s.Jobs.RefreshAll(ctx)
	after := s.Jobs.List()
	for _, j := range after {
		if prev, ok := before[j.ID]; ok {
			s.noteTransition(prev, j)
		}
	}
	return report, after
}

func (s *Session) Remove(jobID string) (jobs.Job, error) {
	job, err := s.Jobs.Remove(jobID)
	if err != nil {
		return jobs.Job{}, err
	}
	s.addHistory(ActionRemoved, fmt.Sprintf("ID: %s, Status: %s", job.ID, job.Status))
	return job, nil
}

func (s *Session) History() []HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]HistoryEntry, len(s.history))
	copy(out, s.history)
	return out
}

func (s *Session) ClearHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
}

// Analytics counts jobs by status and history entries by action, most frequent first.
func (s *Session) Analytics() Analytics {
	counts := make(map[string]int)
	for _, h := range s.History() {
		counts[h.Action]++
	}
	actions := make([]ActionCount, 0, len(counts))
	for action, n := range counts {
		actions = append(actions, ActionCount{Action: action, Count: n})
	}
	sort.Slice(actions, func(i, j int) bool {
		if actions[i].Count != actions[j].Count {
			return actions[i].Count > actions[j].Count
		}
		return actions[i].Action < actions[j].Action
	})
	return Analytics{Jobs: s.Jobs.Counts(), Actions: actions}
}

func (s *Session) noteTransition(before, after jobs.Job) {
	if before.Status == after.Status {
		return
	}
	switch after.Status {
	case jobs.StatusCompleted:
		s.addHistory(ActionCompleted, "ID: "+after.ID)
	case jobs.StatusFailed:
		s.addHistory(ActionFailed, "ID: "+after.ID)
	}
}

func (s *Session) addHistory(action, details string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLocked(action, details)
}

func (s *Session) appendLocked(action, details string) {
	s.history = append(s.history, HistoryEntry{At: s.now(), Action: action, Details: details})
}
