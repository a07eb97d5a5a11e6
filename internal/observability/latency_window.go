package observability

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

type EndpointLatency struct {
	Endpoint  string  `json:"endpoint"`
	Samples   int     `json:"samples"`
	LastMS    float64 `json:"last_ms"`
	AvgMS     float64 `json:"avg_ms"`
	P50MS     float64 `json:"p50_ms"`
	P95MS     float64 `json:"p95_ms"`
	MaxMS     float64 `json:"max_ms"`
	TimeoutMS float64 `json:"timeout_ms,omitempty"`
}

type OutcomeCount struct {
	Outcome string `json:"outcome"`
	Count   int    `json:"count"`
}

type LatencySnapshot struct {
	GeneratedAt time.Time         `json:"generated_at"`
	WindowSize  int               `json:"window_size"`
	Endpoints   []EndpointLatency `json:"endpoints"`
	Failures    []OutcomeCount    `json:"failures,omitempty"`
}

// latencyWindow keeps a fixed-size ring of samples per endpoint.
type latencyWindow struct {
	mu         sync.RWMutex
	maxSamples int
	endpoints  map[string]*latencyRing
	outcomes   map[string]int
}

type latencyRing struct {
	values []float64
	next   int
	filled bool
	last   float64
}

func newLatencyWindow(maxSamples int) *latencyWindow {
	if maxSamples <= 0 {
		maxSamples = 256
	}
	return &latencyWindow{
		maxSamples: maxSamples,
		endpoints:  make(map[string]*latencyRing),
		outcomes:   make(map[string]int),
	}
}

func (w *latencyWindow) Observe(endpoint string, ms float64) {
	if endpoint == "" || ms < 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	ring, ok := w.endpoints[endpoint]
	if !ok {
		ring = &latencyRing{values: make([]float64, w.maxSamples)}
		w.endpoints[endpoint] = ring
	}
	ring.values[ring.next] = ms
	ring.last = ms
	ring.next++
	if ring.next >= len(ring.values) {
		ring.next = 0
		ring.filled = true
	}
}

func (w *latencyWindow) ObserveOutcome(outcome string) {
	outcome = strings.TrimSpace(outcome)
	if outcome == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.outcomes[outcome]++
}

func (w *latencyWindow) Snapshot() LatencySnapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()

	keys := make([]string, 0, len(w.endpoints))
	for endpoint := range w.endpoints {
		keys = append(keys, endpoint)
	}
	sort.Strings(keys)

	endpoints := make([]EndpointLatency, 0, len(keys))
	for _, endpoint := range keys {
		ring := w.endpoints[endpoint]
		n := ring.next
		if ring.filled {
			n = len(ring.values)
		}
		if n == 0 {
			continue
		}
		samples := make([]float64, n)
		copy(samples, ring.values[:n])
		sort.Float64s(samples)

		sum := 0.0
		for _, v := range samples {
			sum += v
		}
		endpoints = append(endpoints, EndpointLatency{
			Endpoint:  endpoint,
			Samples:   n,
			LastMS:    round2(ring.last),
			AvgMS:     round2(sum / float64(n)),
			P50MS:     round2(quantile(samples, 0.50)),
			P95MS:     round2(quantile(samples, 0.95)),
			MaxMS:     round2(samples[n-1]),
			TimeoutMS: endpointTimeoutMS(endpoint),
		})
	}

	outcomeKeys := make([]string, 0, len(w.outcomes))
	for name := range w.outcomes {
		outcomeKeys = append(outcomeKeys, name)
	}
	sort.Strings(outcomeKeys)
	failures := make([]OutcomeCount, 0, len(outcomeKeys))
	for _, name := range outcomeKeys {
		failures = append(failures, OutcomeCount{Outcome: name, Count: w.outcomes[name]})
	}

	return LatencySnapshot{
		GeneratedAt: time.Now().UTC(),
		WindowSize:  w.maxSamples,
		Endpoints:   endpoints,
		Failures:    failures,
	}
}

func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	idx := q * float64(len(sorted)-1)
	lo := int(math.Floor(idx))
	hi := int(math.Ceil(idx))
	if lo == hi {
		return sorted[lo]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// endpointTimeoutMS is the default client timeout for each upstream endpoint.
func endpointTimeoutMS(endpoint string) float64 {
	switch endpoint {
	case "actor", "voice", "single-clip-status":
		return 10000
	case "single-clip", "artifact":
		return 30000
	default:
		return 0
	}
}
