package resilience

import (
	"math/rand"
	"time"
)

// BackoffConfig parameterizes the jittered exponential delay.
type BackoffConfig struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	JitterRatio float64
}

// DefaultBackoffConfig returns the delays used against the ERP.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		JitterRatio: 0.2,
	}
}

// Delay computes the wait before retry number attempt (1 = first retry after
// the initial failure): base·2^(attempt-1) clamped to max, perturbed by a
// uniform random factor in [-jitterRatio, +jitterRatio], floored at zero.
func Delay(attempt int, cfg BackoffConfig) time.Duration {
	return delayWithRand(attempt, cfg, rand.Float64)
}

// delayWithRand takes the random source as a func so tests can pin it.
func delayWithRand(attempt int, cfg BackoffConfig, randFloat func() float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := cfg.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= cfg.MaxDelay {
			break
		}
	}
	if delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}

	// randFloat in [0,1) mapped onto [-ratio, +ratio].
	jitter := (randFloat()*2 - 1) * cfg.JitterRatio
	jittered := time.Duration(float64(delay) * (1 + jitter))
	if jittered < 0 {
		jittered = 0
	}
	return jittered
}
