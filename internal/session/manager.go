package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ent0n29/avatarstudio/internal/diag"
	"github.com/ent0n29/avatarstudio/internal/jobs"
	"github.com/ent0n29/avatarstudio/internal/pipio"
)

var (
	ErrNotFound = &pipio.Error{Kind: pipio.KindNotFound, Err: errors.New("session not found")}
	ErrEnded    = &pipio.Error{Kind: pipio.KindNotFound, Err: errors.New("session has ended")}
)

// Observer receives session lifecycle events, typically the metrics bundle.
type Observer interface {
	jobs.EventObserver
	diag.Counter
	ObserveSessionEvent(event string)
	SetActiveSessions(n int)
}

type Config struct {
	InactivityTimeout time.Duration
	// DefaultAPIKey is used when a create request carries no key.
	DefaultAPIKey string
	Catalog       jobs.Resolver
	Generator     jobs.Generator
	Observer      Observer
	Logger        zerolog.Logger
}

type Manager struct {
	mu                sync.RWMutex
	sessions          map[string]*Session
	inactivityTimeout time.Duration
	defaultAPIKey     string
	catalog           jobs.Resolver
	generator         jobs.Generator
	observer          Observer
	logger            zerolog.Logger
	onExpire          func(*Session)
}

func NewManager(cfg Config) *Manager {
	if cfg.InactivityTimeout <= 0 {
		cfg.InactivityTimeout = 30 * time.Minute
	}
	return &Manager{
		sessions:          make(map[string]*Session),
		inactivityTimeout: cfg.InactivityTimeout,
		defaultAPIKey:     strings.TrimSpace(cfg.DefaultAPIKey),
		catalog:           cfg.Catalog,
		generator:         cfg.Generator,
		observer:          cfg.Observer,
		logger:            cfg.Logger.With().Str("component", "session").Logger(),
	}
}

func (m *Manager) InactivityTimeout() time.Duration { return m.inactivityTimeout }

func (m *Manager) SetExpireHook(hook func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

// Create opens a session for apiKey, or for the configured default key when
// apiKey is blank.
func (m *Manager) Create(apiKey string) (*Session, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		apiKey = m.defaultAPIKey
	}
	if apiKey == "" {
		return nil, pipio.Validationf("api_key is required")
	}

	id := uuid.NewString()
	logger := m.logger.With().Str("session_id", id).Logger()
	var counter diag.Counter
	var jobObserver jobs.EventObserver
	if m.observer != nil {
		counter = m.observer
		jobObserver = m.observer
	}
	diagnostics := diag.NewLog(logger, counter)
	now := time.Now().UTC()
	s := &Session{
		ID:          id,
		Diagnostics: diagnostics,
		Jobs: jobs.NewTracker(jobs.Config{
			APIKey:    apiKey,
			Generator: m.generator,
			Resolver:  m.catalog,
			Sink:      diagnostics,
			Observer:  jobObserver,
			Logger:    logger,
		}),
		apiKey:         apiKey,
		catalog:        m.catalog,
		now:            func() time.Time { return time.Now().UTC() },
		status:         StatusActive,
		startedAt:      now,
		lastActivityAt: now,
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.observeEvent("created")
	logger.Info().Msg("session created")
	return s, nil
}

// Get returns the session with sessionID, ended or not.
func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Active returns the session and marks activity on it. Ended sessions are
// reported as ErrEnded.
func (m *Manager) Active(sessionID string) (*Session, error) {
	s, err := m.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if s.Status() != StatusActive {
		return nil, ErrEnded
	}
	if err := m.Touch(sessionID); err != nil {
		return nil, err
	}
	return s, nil
}

func (m *Manager) Touch(sessionID string) error {
	m.mu.RLock()
	s, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	s.mu.Lock()
	s.lastActivityAt = time.Now().UTC()
	s.mu.Unlock()
	return nil
}

// End closes the session's job tracker. The session stays readable until the
// janitor purges it.
func (m *Manager) End(sessionID string) (*Session, error) {
	s, err := m.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if !s.end(time.Now().UTC()) {
		return s, nil
	}
	m.observeEvent("ended")
	m.logger.Info().Str("session_id", s.ID).Msg("session ended")
	return s, nil
}

func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireInactive()
			}
		}
	}()
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, s := range m.sessions {
		if s.Status() == StatusActive {
			count++
		}
	}
	return count
}

// expireInactive ends sessions idle past the timeout and forgets sessions
// that have been ended for at least as long.
func (m *Manager) expireInactive() {
	now := time.Now().UTC()
	var expired []*Session

	m.mu.Lock()
	for id, s := range m.sessions {
		s.mu.RLock()
		status, last := s.status, s.lastActivityAt
		s.mu.RUnlock()
		if now.Sub(last) < m.inactivityTimeout {
			continue
		}
		if status == StatusEnded {
			delete(m.sessions, id)
			continue
		}
		if s.end(now) {
			expired = append(expired, s)
		}
	}
	hook := m.onExpire
	m.mu.Unlock()

	for _, s := range expired {
		m.observeEvent("expired")
		m.logger.Info().Str("session_id", s.ID).Msg("session expired")
		if hook != nil {
			hook(s)
		}
	}
}

func (m *Manager) observeEvent(event string) {
	if m.observer == nil {
		return
	}
	m.observer.ObserveSessionEvent(event)
	m.observer.SetActiveSessions(m.ActiveCount())
}

// end marks the session ended and releases its tracker subscribers. It
// reports false when the session had already ended.
func (s *Session) end(now time.Time) bool {
	s.mu.Lock()
	if s.status == StatusEnded {
		s.mu.Unlock()
		return false
	}
	s.status = StatusEnded
	s.lastActivityAt = now
	s.mu.Unlock()
	s.Jobs.Close()
	return true
}
