// Package resilience wraps per-session-key circuit breakers around the
// stack calls most likely to fail repeatedly against an unreachable
// server: Connect and the publish pump's RunAsync tick.
package resilience

import (
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Config tunes the breaker thresholds, mirroring the teacher's
// CircuitBreakerConfig shape (spec.md §7's resilience category knobs).
type Config struct {
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
}

// DefaultConfig matches the teacher's connection-pool defaults.
func DefaultConfig() Config {
	return Config{MaxRequests: 1, Interval: 0, Timeout: 30 * time.Second}
}

// Breakers holds one gobreaker.CircuitBreaker per session key, created
// lazily on first use.
type Breakers struct {
	logger *zap.Logger
	cfg    Config

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// New creates an empty breaker set.
func New(logger *zap.Logger, cfg Config) *Breakers {
	return &Breakers{logger: logger, cfg: cfg, breakers: make(map[string]*gobreaker.CircuitBreaker)}
}

func (b *Breakers) get(sessionKey string) *gobreaker.CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	if br, ok := b.breakers[sessionKey]; ok {
		return br
	}
	key := sessionKey
	settings := gobreaker.Settings{
		Name:        fmt.Sprintf("session-%s", key),
		MaxRequests: b.cfg.MaxRequests,
		Interval:    b.cfg.Interval,
		Timeout:     b.cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			b.logger.Warn("circuit breaker state changed",
				zap.String("session", key),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}
	br := gobreaker.NewCircuitBreaker(settings)
	b.breakers[sessionKey] = br
	return br
}

// ErrOpen is returned by Execute when the breaker is open and the call was
// rejected without being attempted — spec §7 category 6.
var ErrOpen = gobreaker.ErrOpenState

// Execute runs fn through sessionKey's breaker. A tripped breaker returns
// ErrOpen without invoking fn.
func (b *Breakers) Execute(sessionKey string, fn func() error) error {
	br := b.get(sessionKey)
	_, err := br.Execute(func() (any, error) {
		return nil, fn()
	})
	return err
}

// Remove drops the breaker for a session key, e.g. on disconnect.
func (b *Breakers) Remove(sessionKey string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.breakers, sessionKey)
}

// IsOpen reports whether sessionKey's breaker is presently open, for
// status reporting without attempting a call.
func (b *Breakers) IsOpen(sessionKey string) bool {
	b.mu.Lock()
	br, ok := b.breakers[sessionKey]
	b.mu.Unlock()
	if !ok {
		return false
	}
	return br.State() == gobreaker.StateOpen
}
