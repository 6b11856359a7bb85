package resilience

import (
	"math/rand"
	"sort"
	"sync"
	"time"
)

// BackoffConfig holds configuration for per-provider rate-limit backoff.
type BackoffConfig struct {
	Initial    time.Duration // Backoff after the first failure
	Max        time.Duration // Ceiling
	Multiplier float64       // Growth factor per consecutive failure
	Jitter     float64       // Upper bound of jitter as a fraction of the backoff
}

// DefaultBackoffConfig returns 1s initial, x2 growth, 300s cap and 10% jitter.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Initial:    1 * time.Second,
		Max:        300 * time.Second,
		Multiplier: 2,
		Jitter:     0.1,
	}
}

type backoffState struct {
	backoff     time.Duration
	lastFailure time.Time
}

// BackoffStatus is a point-in-time view of one provider's backoff.
type BackoffStatus struct {
	Provider     string
	Backoff      time.Duration
	SinceFailure time.Duration
	Remaining    time.Duration
	BackedOff    bool
}

// BackoffTracker keeps independent exponential backoff state per provider.
// A provider has state only after a rate-limit failure; the state is dropped
// by CurrentWait once more than twice the backoff has elapsed since the last
// failure. All methods are safe for concurrent use.
type BackoffTracker struct {
	mu     sync.Mutex
	cfg    BackoffConfig
	states map[string]*backoffState

	now    func() time.Time
	jitter func() float64 // uniform in [0, 1)
}

// NewBackoffTracker creates a tracker; zero config fields take the defaults.
func NewBackoffTracker(cfg BackoffConfig) *BackoffTracker {
	def := DefaultBackoffConfig()
	if cfg.Initial <= 0 {
		cfg.Initial = def.Initial
	}
	if cfg.Max <= 0 {
		cfg.Max = def.Max
	}
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = def.Multiplier
	}
	if cfg.Jitter < 0 {
		cfg.Jitter = 0
	}
	return &BackoffTracker{
		cfg:    cfg,
		states: make(map[string]*backoffState),
		now:    time.Now,
		jitter: rand.Float64,
	}
}

// SetClock replaces the time source. Intended for tests.
func (t *BackoffTracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}

// Now returns the current time on the tracker's clock.
func (t *BackoffTracker) Now() time.Time {
	t.mu.Lock()
	now := t.now
	t.mu.Unlock()
	return now()
}

// SetJitterSource replaces the [0,1) random source. Intended for tests.
func (t *BackoffTracker) SetJitterSource(f func() float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.jitter = f
}

// RecordFailure registers a rate-limit failure for provider and returns the
// new backoff. Concurrent calls compound in sequence.
func (t *BackoffTracker) RecordFailure(provider string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	st, ok := t.states[provider]
	if !ok {
		st = &backoffState{backoff: t.cfg.Initial}
		t.states[provider] = st
	} else {
		next := time.Duration(float64(st.backoff) * t.cfg.Multiplier)
		if next > t.cfg.Max || next <= 0 {
			next = t.cfg.Max
		}
		st.backoff = next
	}
	st.lastFailure = now
	return st.backoff
}

// CurrentWait returns how long a caller should wait before the next request to
// provider: zero when there is no backoff, otherwise the backoff plus jitter.
// Expired state is discarded as a side effect.
func (t *BackoffTracker) CurrentWait(provider string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.states[provider]
	if !ok {
		return 0
	}
	if t.now().Sub(st.lastFailure) > 2*st.backoff {
		delete(t.states, provider)
		return 0
	}
	jitter := time.Duration(t.jitter() * t.cfg.Jitter * float64(st.backoff))
	return st.backoff + jitter
}

// Backoff returns the tracked backoff for provider without touching state.
func (t *BackoffTracker) Backoff(provider string) (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.states[provider]
	if !ok {
		return 0, false
	}
	return st.backoff, true
}

// Status returns a read-only snapshot of every tracked provider, sorted by name.
func (t *BackoffTracker) Status() []BackoffStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	out := make([]BackoffStatus, 0, len(t.states))
	for name, st := range t.states {
		since := now.Sub(st.lastFailure)
		remaining := st.backoff - since
		if remaining < 0 {
			remaining = 0
		}
		out = append(out, BackoffStatus{
			Provider:     name,
			Backoff:      st.backoff,
			SinceFailure: since,
			Remaining:    remaining,
			BackedOff:    remaining > 0,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}
