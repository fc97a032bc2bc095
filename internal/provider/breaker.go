package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// Circuit breaker defaults.
const (
	defaultBreakerFailures uint32 = 5
	defaultBreakerTimeout         = 30 * time.Second
	defaultBreakerInterval        = 60 * time.Second
)

// BreakerConfig configures the circuit breaker behaviour.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures before the circuit
	// opens.
	MaxFailures uint32
	// Timeout is how long the circuit stays open before a half-open probe.
	Timeout time.Duration
	// Interval is the cyclic period of the closed state for clearing failure
	// counts. If 0, failures never reset until the circuit opens.
	Interval time.Duration
}

// Breaker wraps a Provider with circuit breaker protection. When the wrapped
// provider fails repeatedly, subsequent calls fail fast without reaching it,
// preventing retry storms against an endpoint that is already down.
type Breaker struct {
	inner   Provider
	breaker *gobreaker.CircuitBreaker[string]
	log     zerolog.Logger
}

// NewBreaker wraps inner with a circuit breaker. Zero-valued cfg fields get
// defaults.
func NewBreaker(inner Provider, cfg BreakerConfig, log zerolog.Logger) *Breaker {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultBreakerFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultBreakerTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultBreakerInterval
	}

	blog := log.With().Str("component", "provider").Logger()

	cb := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "provider:" + inner.Name(),
		MaxRequests: 1, // one probe in half-open state
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			blog.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	})

	return &Breaker{inner: inner, breaker: cb, log: blog}
}

// Complete implements Provider; calls route through the circuit breaker.
func (b *Breaker) Complete(ctx context.Context, system, user string) (string, error) {
	out, err := b.breaker.Execute(func() (string, error) {
		return b.inner.Complete(ctx, system, user)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("provider %q circuit open: %w", b.inner.Name(), err)
		}
		return "", err
	}
	return out, nil
}

func (b *Breaker) Name() string  { return b.inner.Name() }
func (b *Breaker) Model() string { return b.inner.Model() }
