package resilience

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrKeysExhausted is returned by KeyPool.Next when every key is parked.
var ErrKeysExhausted = errors.New("keypool: all keys rate limited")

// KeyPool rotates through a provider's API keys round-robin and parks keys
// that hit a rate limit until their reset time.
type KeyPool struct {
	mu      sync.Mutex
	keys    []keyEntry
	current int
	now     func() time.Time
}

type keyEntry struct {
	key     string
	parked  bool
	resetAt time.Time
}

// NewKeyPool creates a key pool from a list of API keys.
func NewKeyPool(keys []string) *KeyPool {
	entries := make([]keyEntry, len(keys))
	for i, k := range keys {
		entries[i] = keyEntry{key: k}
	}
	return &KeyPool{keys: entries, now: time.Now}
}

// Next returns the next available API key. Parked keys whose reset time has
// passed are released first. When every key is parked the error wraps
// ErrKeysExhausted.
func (kp *KeyPool) Next() (string, error) {
	kp.mu.Lock()
	defer kp.mu.Unlock()

	n := len(kp.keys)
	if n == 0 {
		return "", fmt.Errorf("keypool: no keys configured")
	}

	now := kp.now()
	for i := 0; i < n; i++ {
		idx := (kp.current + i) % n
		entry := &kp.keys[idx]

		if entry.parked && !now.Before(entry.resetAt) {
			entry.parked = false
		}
		if !entry.parked {
			kp.current = (idx + 1) % n
			return entry.key, nil
		}
	}

	earliest := kp.keys[0].resetAt
	for _, e := range kp.keys[1:] {
		if e.resetAt.Before(earliest) {
			earliest = e.resetAt
		}
	}
	return "", fmt.Errorf("%w, earliest reset at %s", ErrKeysExhausted, earliest.Format(time.RFC3339))
}

// MarkRateLimited parks key until resetAt.
func (kp *KeyPool) MarkRateLimited(key string, resetAt time.Time) {
	kp.mu.Lock()
	defer kp.mu.Unlock()

	for i := range kp.keys {
		if kp.keys[i].key == key {
			kp.keys[i].parked = true
			kp.keys[i].resetAt = resetAt
			return
		}
	}
}

// SetClock replaces the time source used to release parked keys.
func (kp *KeyPool) SetClock(now func() time.Time) {
	kp.mu.Lock()
	defer kp.mu.Unlock()
	kp.now = now
}

// ResetIn returns how long until a parked key is released, or zero when a key
// is usable now.
func (kp *KeyPool) ResetIn() time.Duration {
	kp.mu.Lock()
	defer kp.mu.Unlock()

	now := kp.now()
	var wait time.Duration
	for i, e := range kp.keys {
		if !e.parked || !now.Before(e.resetAt) {
			return 0
		}
		if d := e.resetAt.Sub(now); i == 0 || d < wait {
			wait = d
		}
	}
	return wait
}

// Available returns how many keys are currently usable.
func (kp *KeyPool) Available() int {
	kp.mu.Lock()
	defer kp.mu.Unlock()

	now := kp.now()
	n := 0
	for _, e := range kp.keys {
		if !e.parked || !now.Before(e.resetAt) {
			n++
		}
	}
	return n
}

// Size returns the number of keys in the pool.
func (kp *KeyPool) Size() int {
	kp.mu.Lock()
	defer kp.mu.Unlock()
	return len(kp.keys)
}
