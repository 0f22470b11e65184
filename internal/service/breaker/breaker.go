package breaker

import (
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// ErrOpen is returned while the breaker rejects calls.
var ErrOpen = errors.New("circuit breaker open")

type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

type config struct {
	name      string
	threshold uint32
	window    time.Duration
	cooldown  time.Duration
	hook      func(from, to State)
}

type Option func(*config)

func WithName(name string) Option {
	return func(c *config) { c.name = name }
}

// WithThreshold sets how many consecutive failures inside the window trip it.
func WithThreshold(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.threshold = uint32(n)
		}
	}
}

func WithWindow(d time.Duration) Option   { return func(c *config) { c.window = d } }
func WithCooldown(d time.Duration) Option { return func(c *config) { c.cooldown = d } }

// WithStateHook is called on every state change. It must not call back into
// the breaker.
func WithStateHook(fn func(from, to State)) Option {
	return func(c *config) { c.hook = fn }
}

// Breaker opens after threshold consecutive failures inside window, rejects
// calls for cooldown, then lets a single trial call through.
type Breaker struct {
	cb       *gobreaker.TwoStepCircuitBreaker
	cooldown time.Duration
	hook     func(from, to State)

	mu       sync.Mutex
	openedAt time.Time
}

func New(opts ...Option) *Breaker {
	cfg := config{name: "order", threshold: 3, window: 60 * time.Second, cooldown: 120 * time.Second}
	for _, o := range opts {
		o(&cfg)
	}
	b := &Breaker{cooldown: cfg.cooldown, hook: cfg.hook}
	b.cb = gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
		Name:        cfg.name,
		MaxRequests: 1,
		Interval:    cfg.window,
		Timeout:     cfg.cooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= cfg.threshold
		},
		OnStateChange: b.onStateChange,
	})
	return b
}

func (b *Breaker) onStateChange(_ string, from, to gobreaker.State) {
	if to == gobreaker.StateOpen {
		b.mu.Lock()
		b.openedAt = time.Now()
		b.mu.Unlock()
	}
	if b.hook != nil {
		b.hook(mapState(from), mapState(to))
	}
}

func mapState(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

func (b *Breaker) State() State { return mapState(b.cb.State()) }

// Allow reports whether a call may proceed. The caller must report the
// outcome through done exactly once; done(false) counts as a failure.
func (b *Breaker) Allow() (done func(success bool), err error) {
	done, err = b.cb.Allow()
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, ErrOpen
	}
	return done, err
}

// Remaining is the time left before an open breaker admits a trial call.
func (b *Breaker) Remaining() time.Duration {
	if b.State() != StateOpen {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return max(0, b.cooldown-time.Since(b.openedAt))
}
