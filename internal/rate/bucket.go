package rate

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"
)

// TokenBucket paces one source. Burst tolerance equals the bucket
// capacity; sustained rate equals the refill rate. A forced Drain
// empties the bucket and suspends refill for a cooldown, which is how
// rate-limited responses from a source are honored.
type TokenBucket struct {
	mu           sync.Mutex
	capacity     float64
	tokens       float64
	refillPerSec float64
	last         time.Time
	jitterFrac   float64
}

// NewTokenBucket creates a bucket holding capacity tokens refilled at
// refillPerSec tokens per second.
// Parameters:
//   - capacity: maximum burst size; values below 1 are clamped to 1.
//   - refillPerSec: sustained tokens per second; must be positive.
//   - jitterFrac: wait jitter fraction; <=0 uses a small default.
// Returns:
//   - *TokenBucket: initialized full bucket; nil when refillPerSec <= 0.
func NewTokenBucket(capacity, refillPerSec, jitterFrac float64) *TokenBucket {
	if refillPerSec <= 0 {
		return nil
	}
	capacity = math.Max(1, capacity)
	return &TokenBucket{
		capacity:     capacity,
		tokens:       capacity,
		refillPerSec: refillPerSec,
		last:         time.Now(),
		jitterFrac:   jitterFrac,
	}
}

// Take blocks until one token is available or the context ends.
// Parameters:
//   - ctx: context bounding the wait.
// Returns:
//   - bool: true when a token was taken, false when ctx ended first.
func (b *TokenBucket) Take(ctx context.Context) bool {
	if b == nil {
		return true
	}
	for {
		b.mu.Lock()
		now := time.Now()
		elapsed := now.Sub(b.last).Seconds()
		if elapsed > 0 {
			b.tokens = math.Min(b.capacity, b.tokens+elapsed*b.refillPerSec)
			b.last = now
		}
		ok := false
		if b.tokens >= 1.0 {
			b.tokens -= 1.0
			ok = true
		}
		b.mu.Unlock()

		if ok {
			return true
		}

		toNext := time.Duration((1.0/b.refillPerSec)*float64(time.Second)) + jitterDuration(b.jitterFrac)
		select {
		case <-ctx.Done():
			return false
		case <-time.After(toNext):
		}
	}
}

// Drain forcibly empties the bucket and pushes the refill clock past a
// cooldown, honoring an explicit backoff signal from the source.
// Parameters:
//   - cooldown: duration during which no tokens refill.
func (b *TokenBucket) Drain(cooldown time.Duration) {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.tokens = 0
	// Refill resumes only once the cooldown has passed; Take guards
	// against the negative elapsed this produces in the meantime.
	b.last = time.Now().Add(cooldown)
	b.mu.Unlock()
}

// Available returns the current token count after refill accounting.
func (b *TokenBucket) Available() float64 {
	if b == nil {
		return math.Inf(1)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	elapsed := time.Since(b.last).Seconds()
	if elapsed > 0 {
		b.tokens = math.Min(b.capacity, b.tokens+elapsed*b.refillPerSec)
		b.last = time.Now()
	}
	return b.tokens
}

func jitterDuration(frac float64) time.Duration {
	if frac <= 0 {
		frac = 0.10
	}
	j := 1 + ((rand.Float64()*2 - 1) * frac)
	return time.Duration(j * float64(30*time.Millisecond))
}
