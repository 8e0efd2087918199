package instance

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Backoff defaults.
const (
	DefaultInitialDelay = time.Second
	DefaultMaxDelay     = 30 * time.Second
	DefaultMultiplier   = 2.0
	DefaultJitter       = 0.2
)

// BackoffConfig shapes the delay between failed attempts. Delays grow by
// Multiplier from Initial up to Max, each randomised by ±Jitter.
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64

	// Jitter is the randomisation factor. Zero means DefaultJitter,
	// negative disables randomisation.
	Jitter float64
}

func (c BackoffConfig) withDefaults() BackoffConfig {
	if c.Initial <= 0 {
		c.Initial = DefaultInitialDelay
	}
	if c.Max <= 0 {
		c.Max = DefaultMaxDelay
	}
	if c.Max < c.Initial {
		c.Max = c.Initial
	}
	if c.Multiplier < 1 {
		c.Multiplier = DefaultMultiplier
	}
	if c.Jitter == 0 {
		c.Jitter = DefaultJitter
	}
	if c.Jitter < 0 {
		c.Jitter = 0
	}
	return c
}

// monotonicBackOff keeps the jittered cenkalti policy within bounds.
// The policy randomises after clamping to its MaxInterval, so on its own
// it overshoots Max and wobbles around it. Delays handed out here never
// exceed Max and never shrink until Reset.
type monotonicBackOff struct {
	policy *backoff.ExponentialBackOff
	max    time.Duration
	last   time.Duration
}

// newBackoff builds a policy that never gives up on its own. Giving up is
// the join-attempt limit's job.
func newBackoff(c BackoffConfig) *monotonicBackOff {
	c = c.withDefaults()
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.Initial
	b.MaxInterval = c.Max
	b.Multiplier = c.Multiplier
	b.RandomizationFactor = c.Jitter
	b.MaxElapsedTime = 0
	b.Reset()
	return &monotonicBackOff{policy: b, max: c.Max}
}

// NextBackOff returns the delay before the next attempt.
func (m *monotonicBackOff) NextBackOff() time.Duration {
	d := m.policy.NextBackOff()
	if d > m.max {
		d = m.max
	}
	if d < m.last {
		d = m.last
	}
	m.last = d
	return d
}

// Reset starts over from the initial delay.
func (m *monotonicBackOff) Reset() {
	m.policy.Reset()
	m.last = 0
}
