package catalog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/ent0n29/avatarstudio/internal/diag"
	"github.com/ent0n29/avatarstudio/internal/pipio"
)

// Lister fetches raw listing payloads from the upstream.
type Lister interface {
	ListActors(ctx context.Context, apiKey string) (pipio.Document, error)
	ListVoices(ctx context.Context, apiKey string) (pipio.Document, error)
}

// CacheObserver is told about every cache lookup ("hit" or "miss").
type CacheObserver interface {
	ObserveCache(kind, result string)
}

type Config struct {
	TTL         time.Duration
	UseFallback bool
}

// Service serves normalized listings, caching successful fetches per API key
// until their TTL expires. Failures are never cached.
type Service struct {
	lister      Lister
	cache       *gocache.Cache
	group       singleflight.Group
	useFallback bool
	observer    CacheObserver
	logger      zerolog.Logger
}

func NewService(lister Lister, cfg Config, logger zerolog.Logger, observer CacheObserver) *Service {
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	return &Service{
		lister:      lister,
		cache:       gocache.New(cfg.TTL, 2*cfg.TTL),
		useFallback: cfg.UseFallback,
		observer:    observer,
		logger:      logger.With().Str("component", "catalog").Logger(),
	}
}

func (s *Service) FallbackEnabled() bool { return s.useFallback }

// List returns the normalized records for kind. It never fails: upstream and
// shape problems are written to sink and an empty (or fallback) slice is returned.
//
// Concurrent misses for the same kind and key share one upstream fetch. The
// fetch is detached from any single caller's cancellation and bounded by the
// client's list timeout; each caller stops waiting when its own ctx ends.
func (s *Service) List(ctx context.Context, apiKey string, kind Kind, sink diag.Sink) []Record {
	key := cacheKey(kind, apiKey)
	if cached, ok := s.cache.Get(key); ok {
		s.observe(kind, "hit")
		return cached.([]Record)
	}
	s.observe(kind, "miss")

	fetchCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (any, error) {
		doc, err := s.fetch(fetchCtx, apiKey, kind)
		if err != nil {
			return nil, err
		}
		res := Normalize(doc, kind, false)
		if res.Shape.Kind != ShapeUnrecognized {
			s.cache.SetDefault(key, res.Records)
		}
		return fetched{doc: doc, res: res}, nil
	})

	var out singleflight.Result
	select {
	case out = <-ch:
	case <-ctx.Done():
		return s.empty(kind)
	}
	if out.Err != nil {
		record(sink, s.logger, diag.FromError(kind.Endpoint(), out.Err))
		return s.empty(kind)
	}

	f := out.Val.(fetched)
	if f.res.Shape.Kind == ShapeUnrecognized {
		record(sink, s.logger, diag.Entry{
			Endpoint: kind.Endpoint(),
			Kind:     pipio.KindUnrecognizedShape,
			Message:  fmt.Sprintf("unrecognized %s listing shape; observed keys %v", kind, f.res.Keys),
			Snippet:  snippet(f.doc.Value),
		})
		return s.empty(kind)
	}
	if f.res.Dropped > 0 {
		s.logger.Debug().Str("kind", string(kind)).Int("dropped", f.res.Dropped).Msg("dropped records without id")
	}
	if len(f.res.Records) == 0 {
		return s.empty(kind)
	}
	return f.res.Records
}

type fetched struct {
	doc pipio.Document
	res Result
}

func (s *Service) empty(kind Kind) []Record {
	if s.useFallback {
		return Fallback(kind)
	}
	return []Record{}
}

func (s *Service) Avatars(ctx context.Context, apiKey string, sink diag.Sink) []Avatar {
	recs := s.List(ctx, apiKey, KindAvatar, sink)
	out := make([]Avatar, 0, len(recs))
	for _, r := range recs {
		out = append(out, AvatarFrom(r))
	}
	return out
}

func (s *Service) Voices(ctx context.Context, apiKey string, sink diag.Sink) []Voice {
	recs := s.List(ctx, apiKey, KindVoice, sink)
	out := make([]Voice, 0, len(recs))
	for _, r := range recs {
		out = append(out, VoiceFrom(r))
	}
	return out
}

// Lookup resolves id against the current listing for kind.
func (s *Service) Lookup(ctx context.Context, apiKey string, kind Kind, id string, sink diag.Sink) (Record, bool) {
	r, ok := Index(s.List(ctx, apiKey, kind, sink))[id]
	return r, ok
}

func (s *Service) fetch(ctx context.Context, apiKey string, kind Kind) (pipio.Document, error) {
	if kind == KindVoice {
		return s.lister.ListVoices(ctx, apiKey)
	}
	return s.lister.ListActors(ctx, apiKey)
}

func (s *Service) observe(kind Kind, result string) {
	if s.observer != nil {
		s.observer.ObserveCache(string(kind), result)
	}
}

func record(sink diag.Sink, logger zerolog.Logger, e diag.Entry) {
	if sink == nil {
		logger.Warn().Str("endpoint", e.Endpoint).Str("kind", string(e.Kind)).Msg(e.Message)
		return
	}
	sink.Record(e)
}

func cacheKey(kind Kind, apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return string(kind) + ":" + hex.EncodeToString(sum[:8])
}

func snippet(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	if len(raw) > 512 {
		return string(raw[:512]) + "..."
	}
	return string(raw)
}
