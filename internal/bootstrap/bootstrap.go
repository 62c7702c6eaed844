// Package bootstrap brings the database connection up before the HTTP server
// starts accepting traffic.
package bootstrap

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"user-service/migrations"
)

const DefaultMaxRetries = 10

// MaxBackoff caps the wait between two connection attempts.
const MaxBackoff = 5 * time.Minute

// State tracks the process-wide connection lifecycle.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Authenticator is the part of the storage gateway used to verify connectivity.
type Authenticator interface {
	Authenticate(ctx context.Context) error
}

// Syncer reconciles the schema once the connection is up.
type Syncer interface {
	Sync(ctx context.Context, mode migrations.SyncMode) error
}

// Gateway is what Run needs from the storage layer.
type Gateway interface {
	Authenticator
	Syncer
}

// ConnectionExhaustedError is returned when every connection attempt failed.
type ConnectionExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ConnectionExhaustedError) Error() string {
	return fmt.Sprintf("database connection failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ConnectionExhaustedError) Unwrap() error {
	return e.Err
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type Bootstrapper struct {
	gateway    Gateway
	maxRetries int
	baseDelay  time.Duration
	sleep      SleepFunc
	state      atomic.Int32
}

// New returns a Bootstrapper. maxRetries below 1 falls back to DefaultMaxRetries.
func New(gateway Gateway, maxRetries int, baseDelay time.Duration) *Bootstrapper {
	if maxRetries < 1 {
		maxRetries = DefaultMaxRetries
	}
	return &Bootstrapper{
		gateway:    gateway,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		sleep:      sleepContext,
	}
}

// WithSleep replaces the wait between attempts. Used by tests.
func (b *Bootstrapper) WithSleep(sleep SleepFunc) *Bootstrapper {
	b.sleep = sleep
	return b
}

func (b *Bootstrapper) State() State {
	return State(b.state.Load())
}

func (b *Bootstrapper) setState(s State) {
	b.state.Store(int32(s))
}

// Backoff returns the delay waited after the given failed attempt (1-based):
// baseDelay * 2^(attempt-1), capped at MaxBackoff.
func (b *Bootstrapper) Backoff(attempt int) time.Duration {
	if b.baseDelay <= 0 {
		return 0
	}
	if b.baseDelay >= MaxBackoff {
		return MaxBackoff
	}
	delay := b.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= MaxBackoff {
			return MaxBackoff
		}
	}
	return delay
}

// RetryConnect authenticates against the gateway until it succeeds or
// maxRetries attempts have failed. The first attempt runs immediately.
func (b *Bootstrapper) RetryConnect(ctx context.Context) error {
	b.setState(Connecting)

	var lastErr error
	for attempt := 1; attempt <= b.maxRetries; attempt++ {
		lastErr = b.gateway.Authenticate(ctx)
		if lastErr == nil {
			b.setState(Connected)
			log.Info().Msgf("Database connection established (attempt %d/%d)", attempt, b.maxRetries)
			return nil
		}

		log.Error().Err(lastErr).Msgf("Database connection attempt %d/%d failed", attempt, b.maxRetries)
		if attempt == b.maxRetries {
			break
		}

		delay := b.Backoff(attempt)
		log.Info().Msgf("Retrying database connection in %s", delay)
		if err := b.sleep(ctx, delay); err != nil {
			b.setState(Failed)
			return &ConnectionExhaustedError{Attempts: attempt, Err: err}
		}
	}

	b.setState(Failed)
	return &ConnectionExhaustedError{Attempts: b.maxRetries, Err: lastErr}
}

// Run connects and then performs exactly one schema sync in the given mode.
func (b *Bootstrapper) Run(ctx context.Context, mode migrations.SyncMode) error {
	if err := b.RetryConnect(ctx); err != nil {
		return err
	}

	log.Info().Msgf("Synchronizing database schema (%s)", mode)
	if err := b.gateway.Sync(ctx, mode); err != nil {
		return fmt.Errorf("sync schema (%s): %w", mode, err)
	}
	if mode == migrations.Destructive {
		log.Warn().Msg("Database tables were recreated (FORCE_SYNC=true)")
	} else {
		log.Info().Msg("Database tables synchronized (FORCE_SYNC=false)")
	}
	return nil
}
