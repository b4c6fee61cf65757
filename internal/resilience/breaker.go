package resilience

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/galpao/wms/internal/domain"
)

// CircuitState is one of the breaker's three states.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// BreakerConfig tunes the per-dependency circuit breaker.
type BreakerConfig struct {
	FailureThreshold int
	SuccessThreshold int
	OpenTimeout      time.Duration
}

// DefaultBreakerConfig returns the thresholds used against the ERP.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenTimeout:      30 * time.Second,
	}
}

// CircuitBreaker tracks consecutive failures of one dependency and gates
// whether a call should be attempted at all. All transitions are evaluated
// under the mutex so out-of-order completions from in-flight requests
// cannot corrupt the counters.
type CircuitBreaker struct {
	cfg    BreakerConfig
	logger *log.Entry
	now    func() time.Time

	mu        sync.Mutex
	state     CircuitState
	failures  int
	successes int
	openedAt  time.Time
}

// NewCircuitBreaker builds a closed breaker.
func NewCircuitBreaker(cfg BreakerConfig, logger *log.Entry) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = DefaultBreakerConfig().SuccessThreshold
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = DefaultBreakerConfig().OpenTimeout
	}
	if logger == nil {
		logger = log.New().WithField("component", "circuit-breaker")
	}
	return &CircuitBreaker{
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		state:  CircuitClosed,
	}
}

// CanPass reports whether a call may be attempted. CLOSED and HALF_OPEN
// always permit; OPEN permits only once OpenTimeout has elapsed, flipping
// the breaker to HALF_OPEN for the trial call. When rejecting it returns a
// CircuitOpenError carrying the remaining wait.
func (cb *CircuitBreaker) CanPass() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != CircuitOpen {
		return nil
	}

	elapsed := cb.now().Sub(cb.openedAt)
	if elapsed < cb.cfg.OpenTimeout {
		return &domain.CircuitOpenError{RetryAfter: cb.cfg.OpenTimeout - elapsed}
	}

	cb.state = CircuitHalfOpen
	cb.logger.Info("circuit breaker half-open, admitting trial call")
	return nil
}

// OnSuccess records a successful call. In CLOSED it resets the failure
// counter; in HALF_OPEN it closes the breaker once SuccessThreshold
// consecutive successes are seen.
func (cb *CircuitBreaker) OnSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitClosed {
		cb.failures = 0
		return
	}

	cb.successes++
	if cb.successes >= cb.cfg.SuccessThreshold {
		cb.state = CircuitClosed
		cb.failures = 0
		cb.successes = 0
		cb.logger.Info("circuit breaker closed")
	}
}

// OnFailure records a failed call. A single failure during a HALF_OPEN
// trial reopens the breaker immediately; in CLOSED the breaker opens once
// FailureThreshold consecutive failures accumulate.
func (cb *CircuitBreaker) OnFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.successes = 0
	cb.failures++

	if cb.state == CircuitHalfOpen || cb.failures >= cb.cfg.FailureThreshold {
		cb.state = CircuitOpen
		cb.openedAt = cb.now()
		cb.logger.WithField("failures", cb.failures).Warn("circuit breaker opened")
	}
}

// State returns the current state for metrics and introspection.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
