// Package diag keeps the per-session, append-only log of upstream and
// normalization failures that the dashboard renders for the user.
package diag

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ent0n29/avatarstudio/internal/pipio"
	"github.com/ent0n29/avatarstudio/internal/policy"
)

type Entry struct {
	At       time.Time  `json:"at"`
	Endpoint string     `json:"endpoint"`
	Kind     pipio.Kind `json:"kind"`
	Message  string     `json:"message"`
	Snippet  string     `json:"snippet,omitempty"`
}

// Sink accepts diagnostic entries.
type Sink interface {
	Record(Entry)
}

// Counter is notified of every recorded kind, typically a metrics vector.
type Counter interface {
	ObserveDiagnostic(kind string)
}

// Log is an append-only Sink that mirrors every entry to the service logger.
type Log struct {
	mu      sync.RWMutex
	entries []Entry
	logger  zerolog.Logger
	counter Counter
}

func NewLog(logger zerolog.Logger, counter Counter) *Log {
	return &Log{logger: logger, counter: counter}
}

func (l *Log) Record(e Entry) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	if e.Snippet != "" {
		e.Snippet, _ = policy.RedactSecrets(e.Snippet)
	}
	e.Message, _ = policy.RedactSecrets(e.Message)

	l.mu.Lock()
	l.entries = append(l.entries, e)
	l.mu.Unlock()

	l.logger.Warn().
		Str("endpoint", e.Endpoint).
		Str("kind", string(e.Kind)).
		Str("snippet", e.Snippet).
		Msg(e.Message)
	if l.counter != nil {
		l.counter.ObserveDiagnostic(string(e.Kind))
	}
}

// Entries returns a copy of the log in insertion order.
func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// FromError builds an entry from err, pulling endpoint, kind and snippet
// out of a *pipio.Error when there is one.
func FromError(endpoint string, err error) Entry {
	e := Entry{Endpoint: endpoint, Kind: pipio.KindOf(err)}
	if err != nil {
		e.Message = err.Error()
	}
	var pe *pipio.Error
	if errors.As(err, &pe) {
		if pe.Endpoint != "" {
			e.Endpoint = pe.Endpoint
		}
		e.Snippet = pe.Snippet
	}
	if e.Kind == "" {
		e.Kind = pipio.KindTransport
	}
	return e
}
