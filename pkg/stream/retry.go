package stream

import (
	"math/rand/v2"
	"time"

	"github.com/samber/lo"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Defaults for the built-in retry and backoff policies.
const (
	DefaultMaxAttempts = 10

	DefaultInitialBackoff = 1 * time.Second
	DefaultMaxBackoff     = 30 * time.Second
	DefaultMultiplier     = 2.0
	DefaultJitterFraction = 0.1
)

// defaultRetryableCodes are the status codes treated as transient for
// streaming reads.
var defaultRetryableCodes = []codes.Code{
	codes.Unavailable,
	codes.ResourceExhausted,
}

// TransientRetryPolicy retries a fixed set of transient status codes
// up to a maximum number of failures.
type TransientRetryPolicy struct {
	maxAttempts    int
	retryableCodes []codes.Code
	failures       int
}

func NewTransientRetryPolicy(maxAttempts int) *TransientRetryPolicy {
	return &TransientRetryPolicy{
		maxAttempts:    maxAttempts,
		retryableCodes: defaultRetryableCodes,
	}
}

// WithRetryableCodes replaces the set of status codes considered
// transient.
func (p *TransientRetryPolicy) WithRetryableCodes(cs ...codes.Code) *TransientRetryPolicy {
	p.retryableCodes = cs
	return p
}

func (p *TransientRetryPolicy) OnFailure(st *status.Status) bool {
	p.failures++
	if p.failures > p.maxAttempts {
		return false
	}
	return lo.Contains(p.retryableCodes, st.Code())
}

func (p *TransientRetryPolicy) IsExhausted() bool {
	return p.failures > p.maxAttempts
}

func (p *TransientRetryPolicy) Clone() RetryPolicy {
	cp := *p
	cp.failures = 0
	return &cp
}

// ExponentialBackoff produces exponentially growing delays with a
// random jitter, clamped to a maximum.
type ExponentialBackoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64

	// Jitter is the fraction of the current delay randomly added or
	// subtracted from each result, in [0, 1).
	Jitter float64

	next time.Duration
}

func NewExponentialBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		Initial:    DefaultInitialBackoff,
		Max:        DefaultMaxBackoff,
		Multiplier: DefaultMultiplier,
		Jitter:     DefaultJitterFraction,
	}
}

func (b *ExponentialBackoff) OnCompletion() time.Duration {
	if b.next <= 0 {
		b.next = b.Initial
	}
	delay := b.next
	b.next = time.Duration(float64(b.next) * b.Multiplier)
	if b.next > b.Max {
		b.next = b.Max
	}
	if b.Jitter > 0 {
		delay += time.Duration((rand.Float64()*2 - 1) * b.Jitter * float64(delay))
	}
	return delay
}

func (b *ExponentialBackoff) Clone() BackoffPolicy {
	cp := *b
	cp.next = 0
	return &cp
}
