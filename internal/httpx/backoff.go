package httpx

import (
	"math/rand"
	"sync"
	"time"
)

// Backoff computes exponential delays with additive jitter: BaseDelay*2^attempt
// plus a uniformly random duration in [0, Jitter).
type Backoff struct {
	BaseDelay time.Duration
	Jitter    time.Duration

	mu   sync.Mutex
	rand *rand.Rand
}

// NewBackoff returns a Backoff initialized with the supplied parameters.
func NewBackoff(base, jitter time.Duration) *Backoff {
	if base < 0 {
		base = 0
	}
	if jitter < 0 {
		jitter = 0
	}
	return &Backoff{
		BaseDelay: base,
		Jitter:    jitter,
		rand:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// ForAttempt returns the backoff duration for the given attempt (0-indexed).
func (b *Backoff) ForAttempt(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 30 {
		attempt = 30
	}
	delay := b.BaseDelay * time.Duration(uint(1)<<uint(attempt))
	return delay + b.jitter()
}

func (b *Backoff) jitter() time.Duration {
	if b.Jitter <= 0 {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.rand == nil {
		b.rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return time.Duration(b.rand.Int63n(int64(b.Jitter)))
}
