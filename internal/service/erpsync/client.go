// Package erpsync bridges the warehouse with the ERP. The resilient client
// wraps every ERP call with a circuit breaker, a concurrency and rate
// limiter, and a bounded retry loop; the scheduler drives the periodic
// pull/push jobs over it.
package erpsync

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/galpao/wms/internal/domain"
	"github.com/galpao/wms/internal/metrics"
	"github.com/galpao/wms/internal/resilience"
)

const defaultMaxAttempts = 3

// ClientConfig bundles the resilience settings of the ERP client.
type ClientConfig struct {
	MaxAttempts int
	Backoff     resilience.BackoffConfig
	Breaker     resilience.BreakerConfig
	Limiter     resilience.LimiterConfig
}

// DefaultClientConfig returns the production defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		MaxAttempts: defaultMaxAttempts,
		Backoff:     resilience.DefaultBackoffConfig(),
		Breaker:     resilience.DefaultBreakerConfig(),
		Limiter:     resilience.DefaultLimiterConfig(),
	}
}

// Client is a resilient wrapper over a raw ERP client. It implements
// domain.ERPClient itself, so callers never talk to the raw transport.
type Client struct {
	erp     domain.ERPClient
	breaker *resilience.CircuitBreaker
	limiter *resilience.Limiter
	logger  *log.Entry
	metrics *metrics.SyncMetrics

	maxAttempts int
	backoff     resilience.BackoffConfig
}

// NewClient wraps erp with the configured resilience stack. syncMetrics may
// be nil when metrics are disabled.
func NewClient(erp domain.ERPClient, cfg ClientConfig, logger *log.Entry, syncMetrics *metrics.SyncMetrics) *Client {
	if logger == nil {
		logger = log.WithField("component", "erp-client")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}

	return &Client{
		erp:         erp,
		breaker:     resilience.NewCircuitBreaker(cfg.Breaker, logger),
		limiter:     resilience.NewLimiter(cfg.Limiter),
		logger:      logger,
		metrics:     syncMetrics,
		maxAttempts: cfg.MaxAttempts,
		backoff:     cfg.Backoff,
	}
}

// Login opens the ERP session through the resilience stack.
func (c *Client) Login(ctx context.Context) error {
	_, err := c.call(ctx, "Login", func(ctx context.Context) ([]byte, error) {
		return nil, c.erp.Login(ctx)
	})
	return err
}

// Logout closes the ERP session through the resilience stack.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.call(ctx, "Logout", func(ctx context.Context) ([]byte, error) {
		return nil, c.erp.Logout(ctx)
	})
	return err
}

// Get issues a resilient GET.
func (c *Client) Get(ctx context.Context, path string) ([]byte, error) {
	return c.call(ctx, "GET "+path, func(ctx context.Context) ([]byte, error) {
		return c.erp.Get(ctx, path)
	})
}

// Post issues a resilient POST.
func (c *Client) Post(ctx context.Context, path string, body []byte) ([]byte, error) {
	return c.call(ctx, "POST "+path, func(ctx context.Context) ([]byte, error) {
		return c.erp.Post(ctx, path, body)
	})
}

// Patch issues a resilient PATCH.
func (c *Client) Patch(ctx context.Context, path string, body []byte) ([]byte, error) {
	return c.call(ctx, "PATCH "+path, func(ctx context.Context) ([]byte, error) {
		return c.erp.Patch(ctx, path, body)
	})
}

// BreakerState exposes the current circuit state for health reporting.
func (c *Client) BreakerState() resilience.CircuitState {
	return c.breaker.State()
}

// call runs fn under the full resilience stack. The breaker is checked
// before every attempt, not only the first one, so an ERP that went down
// mid-retry stops the loop immediately.
func (c *Client) call(ctx context.Context, operation string, fn func(context.Context) ([]byte, error)) ([]byte, error) {
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := c.breaker.CanPass(); err != nil {
			c.metrics.RecordAttempt("rejected")
			c.publishBreakerState()
			if lastErr != nil {
				return nil, fmt.Errorf("%s: circuit opened after %d attempts: %w", operation, attempt-1, lastErr)
			}
			return nil, err
		}

		release, err := c.limiter.Acquire(ctx)
		if err != nil {
			return nil, err
		}

		start := time.Now()
		data, err := fn(ctx)
		release()
		c.metrics.RecordDuration(time.Since(start))

		if err == nil {
			c.breaker.OnSuccess()
			c.metrics.RecordAttempt("success")
			c.publishBreakerState()
			return data, nil
		}

		lastErr = err
		c.breaker.OnFailure()
		c.metrics.RecordAttempt("error")
		c.publishBreakerState()

		if attempt >= c.maxAttempts {
			break
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		c.metrics.RecordRetry()
		delay := resilience.Delay(attempt, c.backoff)
		c.logger.WithError(err).WithFields(log.Fields{
			"operation": operation,
			"attempt":   attempt,
			"delay":     delay.String(),
		}).Warn("ERP call failed, retrying")

		if delay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return nil, fmt.Errorf("%s failed after %d attempts: %w", operation, c.maxAttempts, lastErr)
}

func (c *Client) publishBreakerState() {
	c.metrics.SetBreakerState(float64(c.breaker.State()))
}
