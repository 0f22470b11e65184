package middleware

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"BinPull/internal/domain/models"
	domrepo "BinPull/internal/domain/repository"
)

var (
	ErrInvalidTick = errors.New("invalid tick")
	ErrOutOfOrder  = errors.New("tick out of order")
)

// TickProc is the downstream consumer of accepted ticks.
type TickProc interface {
	HandleTick(ctx context.Context, t models.Tick) error
}

// TickProcFunc adapts a function to TickProc.
type TickProcFunc func(ctx context.Context, t models.Tick) error

func (f TickProcFunc) HandleTick(ctx context.Context, t models.Tick) error { return f(ctx, t) }

// TickGate sits between the venue read loop and a session. It validates,
// enforces per-symbol time order, optionally throttles, then forwards.
type TickGate struct {
	proc    TickProc
	metrics domrepo.Metrics
	maxRPS  int

	mu        sync.Mutex
	lastEpoch map[string]int64
	lastSeen  map[string]time.Time

	transform func(models.Tick) models.Tick
	now       func() time.Time
}

type GateOption func(*TickGate)

// WithMaxRPS caps accepted ticks per second per symbol. Zero disables throttling.
func WithMaxRPS(n int) GateOption {
	return func(g *TickGate) {
		if n >= 0 {
			g.maxRPS = n
		}
	}
}

// WithTransform rewrites ticks before validation of the result.
func WithTransform(fn func(models.Tick) models.Tick) GateOption {
	return func(g *TickGate) { g.transform = fn }
}

func WithGateClock(now func() time.Time) GateOption {
	return func(g *TickGate) { g.now = now }
}

func NewTickGate(proc TickProc, metrics domrepo.Metrics, opts ...GateOption) *TickGate {
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	g := &TickGate{
		proc:      proc,
		metrics:   metrics,
		lastEpoch: make(map[string]int64),
		lastSeen:  make(map[string]time.Time),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Process validates and forwards one tick. Throttled ticks are dropped
// silently; rejected ticks return an error wrapping ErrInvalidTick or
// ErrOutOfOrder.
func (g *TickGate) Process(ctx context.Context, t models.Tick) error {
	start := g.now()
	if err := validateTick(t); err != nil {
		g.metrics.RecordError("gate_validate")
		return err
	}
	if g.transform != nil {
		t = g.transform(t)
		if err := validateTick(t); err != nil {
			g.metrics.RecordError("gate_transform_invalid")
			return err
		}
	}

	g.mu.Lock()
	if last, ok := g.lastEpoch[t.Symbol]; ok && t.Epoch < last {
		g.mu.Unlock()
		g.metrics.RecordError("gate_out_of_order")
		return fmt.Errorf("%w: %s epoch %d after %d", ErrOutOfOrder, t.Symbol, t.Epoch, last)
	}
	if !g.allow(t.Symbol, start) {
		g.mu.Unlock()
		g.metrics.RecordError("gate_throttle")
		return nil
	}
	g.lastEpoch[t.Symbol] = t.Epoch
	g.mu.Unlock()

	if err := g.proc.HandleTick(ctx, t); err != nil {
		g.metrics.RecordError("gate_process")
		return fmt.Errorf("tick gate downstream: %w", err)
	}
	g.metrics.RecordTick(t.Symbol, t.Price)
	g.metrics.RecordLatency("gate_process", g.now().Sub(start).Seconds())
	return nil
}

// Reset forgets ordering state for a symbol, used after a resubscribe.
func (g *TickGate) Reset(symbol string) {
	g.mu.Lock()
	delete(g.lastEpoch, symbol)
	delete(g.lastSeen, symbol)
	g.mu.Unlock()
}

func validateTick(t models.Tick) error {
	switch {
	case t.Symbol == "":
		return fmt.Errorf("%w: symbol empty", ErrInvalidTick)
	case t.Epoch <= 0:
		return fmt.Errorf("%w: epoch %d", ErrInvalidTick, t.Epoch)
	case math.IsNaN(t.Price) || math.IsInf(t.Price, 0) || t.Price <= 0:
		return fmt.Errorf("%w: price %v", ErrInvalidTick, t.Price)
	}
	return nil
}

// allow must be called with g.mu held.
func (g *TickGate) allow(symbol string, now time.Time) bool {
	if g.maxRPS <= 0 {
		return true
	}
	last := g.lastSeen[symbol]
	if !last.IsZero() && now.Sub(last) < time.Second/time.Duration(g.maxRPS) {
		return false
	}
	g.lastSeen[symbol] = now
	return true
}
