// Package retry wraps a chain.Store with bounded retries and a circuit
// breaker, so transient IO failures on network-mounted data directories
// don't abort a long backtest. A data gap (chain.ErrNoData) is an expected
// outcome, never retried and never counted as a breaker failure.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/sony/gobreaker"

	"github.com/thetalab/harvester/internal/chain"
)

// Config controls retry and breaker behavior.
type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	BreakerMaxRequests  uint32        // max probes while half-open
	BreakerInterval     time.Duration // reset counts interval
	BreakerTimeout      time.Duration // open-circuit duration
	BreakerMinRequests  uint32        // minimum requests before tripping
	BreakerFailureRatio float64
}

// DefaultConfig matches the load pattern of one file read per simulated day.
var DefaultConfig = Config{
	MaxRetries:          3,
	InitialBackoff:      200 * time.Millisecond,
	MaxBackoff:          5 * time.Second,
	BreakerMaxRequests:  3,
	BreakerInterval:     60 * time.Second,
	BreakerTimeout:      30 * time.Second,
	BreakerMinRequests:  5,
	BreakerFailureRatio: 0.6,
}

// Store decorates an inner chain.Store. It implements chain.Store itself.
type Store struct {
	inner   chain.Store
	breaker *gobreaker.CircuitBreaker
	logger  *log.Logger
	cfg     Config
}

// NewStore wraps the inner store. A nil logger falls back to the standard
// logger.
func NewStore(inner chain.Store, logger *log.Logger, config ...Config) *Store {
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	if logger == nil {
		logger = log.Default()
	}
	settings := gobreaker.Settings{
		Name:        "ChainStoreCircuitBreaker",
		MaxRequests: cfg.BreakerMaxRequests,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < cfg.BreakerMinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.BreakerFailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, chain.ErrNoData)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Printf("Circuit breaker %s state changed from %s to %s", name, from, to)
		},
	}
	return &Store{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  logger,
		cfg:     cfg,
	}
}

// LoadDay implements chain.Store.
func (s *Store) LoadDay(ctx context.Context, date time.Time, expiry string) (*chain.Snapshot, error) {
	return execWithRetry(ctx, s, fmt.Sprintf("load %s/%s", date.Format(chain.DateFormat), expiry),
		func() (*chain.Snapshot, error) { return s.inner.LoadDay(ctx, date, expiry) })
}

// ListExpiries implements chain.Store.
func (s *Store) ListExpiries(ctx context.Context, date time.Time) ([]string, error) {
	return execWithRetry(ctx, s, fmt.Sprintf("expiries %s", date.Format(chain.DateFormat)),
		func() ([]string, error) { return s.inner.ListExpiries(ctx, date) })
}

func execWithRetry[T any](ctx context.Context, s *Store, op string, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	backoff := s.cfg.InitialBackoff

	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		res, err := s.breaker.Execute(func() (interface{}, error) { return fn() })
		if err == nil {
			v, ok := res.(T)
			if !ok {
				return zero, errors.New("retry: type assertion failed")
			}
			return v, nil
		}
		if !isRetryable(err) {
			return zero, err
		}
		lastErr = err
		if attempt == s.cfg.MaxRetries {
			break
		}
		s.logger.Printf("%s attempt %d/%d failed: %v, retrying in %v",
			op, attempt+1, s.cfg.MaxRetries+1, err, backoff)
		select {
		case <-time.After(backoff):
			backoff = s.nextBackoff(backoff)
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
	return zero, fmt.Errorf("retry: %s failed after %d attempts: %w", op, s.cfg.MaxRetries+1, lastErr)
}

// isRetryable treats data gaps, context cancellation, and an open breaker
// as final; everything else is assumed transient IO.
func isRetryable(err error) bool {
	switch {
	case errors.Is(err, chain.ErrNoData),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, gobreaker.ErrOpenState),
		errors.Is(err, gobreaker.ErrTooManyRequests):
		return false
	}
	return true
}

func (s *Store) nextBackoff(current time.Duration) time.Duration {
	next := time.Duration(float64(current) * 1.5)
	if next > s.cfg.MaxBackoff {
		next = s.cfg.MaxBackoff
	}
	maxJitter := int64(next / 4)
	if maxJitter > 0 {
		jitterVal, err := rand.Int(rand.Reader, big.NewInt(maxJitter))
		if err != nil {
			s.logger.Printf("Failed to generate jitter: %v", err)
		} else {
			next += time.Duration(jitterVal.Int64())
		}
	}
	return next
}
