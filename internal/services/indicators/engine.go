package indicators

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"BinPull/internal/domain/models"
)

var ErrInvalidPrice = errors.New("indicators: invalid price")

type Config struct {
	Periods Periods
	// PruneAt is the raw buffer length that triggers trimming down to Retain.
	PruneAt int
	Retain  int
}

type Option func(*Config)

func WithPeriods(p Periods) Option {
	return func(c *Config) { c.Periods = p }
}

func WithPruning(pruneAt, retain int) Option {
	return func(c *Config) {
		if pruneAt > 0 {
			c.PruneAt = pruneAt
		}
		if retain > 0 {
			c.Retain = retain
		}
	}
}

type symbolState struct {
	state  *State
	prices []float64
}

// Engine owns the per-symbol states of one session. It is not safe for
// concurrent use; the session loop is its only caller.
type Engine struct {
	cfg     Config
	symbols map[string]*symbolState
}

func New(opts ...Option) *Engine {
	cfg := Config{Periods: DefaultPeriods(), PruneAt: 10_000, Retain: 500}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Retain > cfg.PruneAt {
		cfg.Retain = cfg.PruneAt
	}
	return &Engine{cfg: cfg, symbols: make(map[string]*symbolState)}
}

func validPrice(p float64) bool {
	return !math.IsNaN(p) && !math.IsInf(p, 0) && p > 0
}

func (e *Engine) get(symbol string) *symbolState {
	ss, ok := e.symbols[symbol]
	if !ok {
		ss = &symbolState{state: NewState(symbol, e.cfg.Periods)}
		e.symbols[symbol] = ss
	}
	return ss
}

// Update folds one tick into the symbol state.
func (e *Engine) Update(symbol string, t models.Tick) (models.IndicatorState, error) {
	if !validPrice(t.Price) {
		return models.IndicatorState{}, fmt.Errorf("%w: %v", ErrInvalidPrice, t.Price)
	}
	ss := e.get(symbol)
	snap := ss.state.UpdateTick(t.Price)
	ss.prices = append(ss.prices, t.Price)
	if len(ss.prices) > e.cfg.PruneAt {
		kept := make([]float64, e.cfg.Retain)
		copy(kept, ss.prices[len(ss.prices)-e.cfg.Retain:])
		ss.prices = kept
	}
	return snap, nil
}

// UpdateCandle folds a closed bar, used by the higher-timeframe engine.
func (e *Engine) UpdateCandle(c models.Candle) (models.IndicatorState, error) {
	if !validPrice(c.Close) || !validPrice(c.High) || !validPrice(c.Low) {
		return models.IndicatorState{}, fmt.Errorf("%w: candle %s", ErrInvalidPrice, c.Symbol)
	}
	ss := e.get(c.Symbol)
	snap := ss.state.UpdateBar(c.High, c.Low, c.Close)
	ss.prices = append(ss.prices, c.Close)
	if len(ss.prices) > e.cfg.PruneAt {
		ss.prices = append([]float64(nil), ss.prices[len(ss.prices)-e.cfg.Retain:]...)
	}
	return snap, nil
}

// State returns the latest snapshot for symbol.
func (e *Engine) State(symbol string) (models.IndicatorState, bool) {
	ss, ok := e.symbols[symbol]
	if !ok {
		return models.IndicatorState{}, false
	}
	return ss.state.Snapshot(), true
}

// Recent returns a copy of the last n raw prices, oldest first.
func (e *Engine) Recent(symbol string, n int) []float64 {
	ss, ok := e.symbols[symbol]
	if !ok || n <= 0 {
		return nil
	}
	if n > len(ss.prices) {
		n = len(ss.prices)
	}
	return append([]float64(nil), ss.prices[len(ss.prices)-n:]...)
}

// BufferLen reports the raw buffer length for symbol.
func (e *Engine) BufferLen(symbol string) int {
	if ss, ok := e.symbols[symbol]; ok {
		return len(ss.prices)
	}
	return 0
}

func (e *Engine) Symbols() []string {
	out := make([]string, 0, len(e.symbols))
	for s := range e.symbols {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Reset drops all state of symbol.
func (e *Engine) Reset(symbol string) {
	delete(e.symbols, symbol)
}
