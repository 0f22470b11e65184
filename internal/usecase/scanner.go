package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"BinPull/internal/domain/models"
	domrepo "BinPull/internal/domain/repository"
	"BinPull/internal/services/confluence"
	"BinPull/internal/services/indicators"
	"BinPull/internal/services/strategy"
	"BinPull/pkg/logger"
)

// Pair score weights.
const (
	pairBase           = 50.0
	pairConfWeight     = 30.0
	pairConflWeight    = 20.0
	pairADXStrong      = 15.0
	pairADXModerate    = 10.0
	pairExtremePenalty = 10.0
)

type ScannerConfig struct {
	Symbols      []string
	Strategy     models.Variant
	MinTicks     int
	Interval     time.Duration
	HistoryCount int
	Top          int
	MTF          domrepo.Timeframe
}

func (c *ScannerConfig) normalize() {
	if c.Strategy == "" {
		c.Strategy = models.VariantMultiIndicator
	}
	if c.MinTicks <= 0 {
		c.MinTicks = 30
	}
	if c.Interval <= 0 {
		c.Interval = 15 * time.Second
	}
	if c.HistoryCount <= 0 {
		c.HistoryCount = 200
	}
	if c.Top <= 0 {
		c.Top = 3
	}
	if !domrepo.IsValidTimeframe(c.MTF) {
		c.MTF = domrepo.DefaultTimeframe()
	}
}

type ScannerOption func(*PairScanner)

func WithScannerLogger(l *logger.Logger) ScannerOption {
	return func(p *PairScanner) {
		if l != nil {
			p.log = l
		}
	}
}

func WithScannerMetrics(m domrepo.Metrics) ScannerOption {
	return func(p *PairScanner) {
		if m != nil {
			p.metrics = m
		}
	}
}

func WithScannerStrategy(s strategy.Strategy) ScannerOption {
	return func(p *PairScanner) { p.strat = s }
}

func WithScannerClock(now func() time.Time) ScannerOption {
	return func(p *PairScanner) { p.now = now }
}

// PairScanner watches a set of symbols on a read-only venue link and ranks
// them by signal quality. It never trades.
type PairScanner struct {
	cfg     ScannerConfig
	venue   domrepo.Venue
	strat   strategy.Strategy
	gate    *confluence.Gate
	log     *logger.Logger
	metrics domrepo.Metrics
	now     func() time.Time

	mu        sync.Mutex
	engine    *indicators.Engine
	mtf       *indicators.Engine
	candles   *indicators.CandleAggregator
	pairs     map[string]models.PairScore
	scannedAt time.Time
}

func NewPairScanner(cfg ScannerConfig, v domrepo.Venue, opts ...ScannerOption) (*PairScanner, error) {
	cfg.normalize()
	if len(cfg.Symbols) == 0 {
		return nil, errors.New("scanner: no symbols")
	}
	p := &PairScanner{
		cfg:     cfg,
		venue:   v,
		gate:    confluence.New(),
		log:     logger.Nop(),
		metrics: domrepo.NopMetrics{},
		now:     time.Now,
		engine:  indicators.New(indicators.WithPruning(2*recentWindow, recentWindow)),
		mtf:     indicators.New(),
		candles: indicators.NewCandleAggregator(cfg.MTF),
		pairs:   make(map[string]models.PairScore, len(cfg.Symbols)),
	}
	for _, o := range opts {
		o(p)
	}
	if p.strat == nil {
		s, err := strategy.New(cfg.Strategy)
		if err != nil {
			return nil, fmt.Errorf("scanner: %w", err)
		}
		p.strat = s
	}
	for _, sym := range cfg.Symbols {
		p.pairs[sym] = models.PairScore{Symbol: sym, Direction: models.DirectionNone, Reason: "waiting for ticks"}
	}
	return p, nil
}

// Top is the configured number of recommendations.
func (p *PairScanner) Top() int { return p.cfg.Top }

// Run connects, warms every symbol, subscribes to live ticks and rescans on
// the configured interval until ctx ends. A failed connect is retried on the
// next interval.
func (p *PairScanner) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	connected := p.start(ctx)
	for {
		select {
		case <-ctx.Done():
			p.stop(connected)
			return
		case <-ticker.C:
			if !connected {
				connected = p.start(ctx)
				continue
			}
			p.Scan()
		}
	}
}

func (p *PairScanner) start(ctx context.Context) bool {
	if err := p.venue.Connect(ctx); err != nil {
		p.metrics.RecordError("scanner_connect")
		p.log.Warn("scanner: connect failed, retrying", logger.Error(err), logger.Duration("in", p.cfg.Interval))
		return false
	}
	subscribed := 0
	for _, sym := range p.cfg.Symbols {
		p.warm(ctx, sym)
		if err := p.venue.SubscribeTicks(ctx, sym, p.OnTick); err != nil {
			p.log.Warn("scanner: subscribe failed", logger.String("symbol", sym), logger.Error(err))
			continue
		}
		subscribed++
	}
	p.log.Info("scanner: started",
		logger.Int("symbols", len(p.cfg.Symbols)),
		logger.Int("subscribed", subscribed),
		logger.String("strategy", string(p.strat.Variant())))
	p.Scan()
	return true
}

func (p *PairScanner) warm(ctx context.Context, sym string) {
	hctx, cancel := context.WithTimeout(ctx, preloadTimeout)
	defer cancel()
	ticks, err := p.venue.TicksHistory(hctx, sym, p.cfg.HistoryCount)
	if err != nil {
		p.log.Warn("scanner: history unavailable", logger.String("symbol", sym), logger.Error(err))
		return
	}
	for _, t := range ticks {
		t.Symbol = sym
		p.OnTick(t)
	}
}

func (p *PairScanner) stop(connected bool) {
	if !connected {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, sym := range p.cfg.Symbols {
		_ = p.venue.UnsubscribeTicks(ctx, sym)
	}
	if err := p.venue.Disconnect(); err != nil {
		p.log.Warn("scanner: disconnect failed", logger.Error(err))
	}
	p.log.Info("scanner: stopped")
}

// OnTick feeds one quote into the scanner's engines.
func (p *PairScanner) OnTick(t models.Tick) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.pairs[t.Symbol]; !ok {
		return
	}
	if _, err := p.engine.Update(t.Symbol, t); err != nil {
		return
	}
	if c, closed := p.candles.Add(t); closed {
		_, _ = p.mtf.UpdateCandle(c)
	}
}

// Scan rescores every symbol from the current engine state.
func (p *PairScanner) Scan() {
	p.mu.Lock()
	defer p.mu.Unlock()
	start := time.Now()
	now := p.now()
	for _, sym := range p.cfg.Symbols {
		p.pairs[sym] = p.scorePairLocked(sym, now)
	}
	p.scannedAt = now
	p.metrics.RecordLatency("scanner_scan", time.Since(start).Seconds())
}

func (p *PairScanner) scorePairLocked(sym string, now time.Time) models.PairScore {
	ps := models.PairScore{Symbol: sym, Direction: models.DirectionNone, UpdatedAt: now}
	ps.Ticks = p.engine.BufferLen(sym)
	if ps.Ticks < p.cfg.MinTicks {
		ps.Reason = fmt.Sprintf("need %d ticks, have %d", p.cfg.MinTicks, ps.Ticks)
		return ps
	}
	st, ok := p.engine.State(sym)
	if !ok {
		ps.Reason = "no state"
		return ps
	}
	ps.HasData = true
	ps.ADX = st.ADX
	ps.Volatility = st.VolatilityZone()

	recent := p.engine.Recent(sym, recentWindow)
	sig := p.strat.Evaluate(sym, st, recent)
	ps.Strategy = sig.Strategy
	ps.Reason = sig.Reason
	if !sig.IsActionable() || sig.IsDigit() {
		return ps
	}
	higher, ok := p.mtf.State(sym)
	res := p.gate.Score(sig, confluence.Filters{
		State:       st,
		Higher:      higher,
		HigherReady: ok && higher.Warm,
		Recent:      recent,
		Now:         now,
	})
	ps.Direction = sig.Direction
	ps.Confidence = sig.Confidence
	ps.Confluence = res.Score
	ps.Score = PairScoreOf(sig, res.Score, st)
	return ps
}

// PairScoreOf ranks a signal out of 100: a base for having a direction, plus
// confidence and confluence shares, an ADX bonus and an extreme-volatility
// penalty. Non-actionable signals score zero.
func PairScoreOf(sig models.Signal, confluenceScore float64, st models.IndicatorState) float64 {
	if !sig.IsActionable() {
		return 0
	}
	score := pairBase + sig.Confidence*pairConfWeight + confluenceScore/100*pairConflWeight
	switch {
	case st.ADX > 25:
		score += pairADXStrong
	case st.ADX > 20:
		score += pairADXModerate
	}
	if st.VolatilityZone() == "EXTREME" {
		score -= pairExtremePenalty
	}
	return max(0, min(100, score))
}

// Pairs returns every scored symbol, best first.
func (p *PairScanner) Pairs() []models.PairScore {
	p.mu.Lock()
	out := make([]models.PairScore, 0, len(p.pairs))
	for _, ps := range p.pairs {
		out = append(out, ps)
	}
	p.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

// Recommendations returns up to n active pairs, best first. n <= 0 uses the
// configured default.
func (p *PairScanner) Recommendations(n int) []models.PairScore {
	if n <= 0 {
		n = p.cfg.Top
	}
	var out []models.PairScore
	for _, ps := range p.Pairs() {
		if !ps.Active() {
			continue
		}
		out = append(out, ps)
		if len(out) == n {
			break
		}
	}
	return out
}

// Snapshot is the full scanner view with the top n recommendations.
func (p *PairScanner) Snapshot(n int) models.ScannerSnapshot {
	pairs := p.Pairs()
	st := models.ScannerStatus{
		Total:           len(pairs),
		IntervalSeconds: p.cfg.Interval.Seconds(),
		MinTicks:        p.cfg.MinTicks,
	}
	for _, ps := range pairs {
		if ps.HasData {
			st.WithData++
		}
		if ps.Active() {
			st.WithSignal++
		}
	}
	p.mu.Lock()
	st.ScannedAt = p.scannedAt
	p.mu.Unlock()
	return models.ScannerSnapshot{Status: st, Recommendations: p.Recommendations(n), Pairs: pairs}
}
