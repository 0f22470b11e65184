package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BinPull/internal/domain/models"
)

// fixedStrategy returns a canned signal per symbol.
type fixedStrategy map[string]models.Signal

func (fixedStrategy) Variant() models.Variant { return models.VariantMultiIndicator }
func (fixedStrategy) MinConfidence() float64  { return 0.5 }
func (f fixedStrategy) Evaluate(symbol string, st models.IndicatorState, _ []float64) models.Signal {
	sig, ok := f[symbol]
	if !ok {
		return models.NoSignal(symbol, models.VariantMultiIndicator, "wait")
	}
	sig.Symbol = symbol
	sig.Strategy = models.VariantMultiIndicator
	sig.Price = st.Price
	return sig
}

func feed(p *PairScanner, symbol string, n int) {
	for _, t := range makeTicks(symbol, n, 1000) {
		p.OnTick(t)
	}
}

func TestPairScoreOf(t *testing.T) {
	call := models.Signal{Direction: models.DirectionCall}
	cases := []struct {
		name       string
		conf       float64
		confluence float64
		st         models.IndicatorState
		sig        models.Signal
		want       float64
	}{
		{name: "no direction", sig: models.Signal{Direction: models.DirectionNone}, conf: 0.9, confluence: 90, want: 0},
		{name: "moderate trend", sig: call, conf: 0.6, confluence: 50, st: models.IndicatorState{ADX: 22, Price: 100, ATR: 0.5}, want: 88},
		{name: "weak trend", sig: call, conf: 0.5, confluence: 40, st: models.IndicatorState{ADX: 15, Price: 100, ATR: 0.5}, want: 73},
		{name: "extreme volatility", sig: call, conf: 0.6, confluence: 50, st: models.IndicatorState{ADX: 10, Price: 100, ATR: 3}, want: 68},
		{name: "clamped", sig: call, conf: 0.8, confluence: 70, st: models.IndicatorState{ADX: 30, Price: 100, ATR: 0.5}, want: 100},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.sig.Confidence = tc.conf
			assert.InDelta(t, tc.want, PairScoreOf(tc.sig, tc.confluence, tc.st), 1e-9)
		})
	}
}

func TestScannerRanksActivePairs(t *testing.T) {
	strat := fixedStrategy{
		"R_10": {Direction: models.DirectionCall, Confidence: 0.9},
		"R_25": {Direction: models.DirectionPut, Confidence: 0.6},
		"R_75": {Direction: models.DirectionCall, Confidence: 0.9, ContractType: models.ContractDigitDiff, Barrier: "3"},
		"R_90": {Direction: models.DirectionCall, Confidence: 0.9},
	}
	p, err := NewPairScanner(ScannerConfig{Symbols: []string{"R_10", "R_25", "R_50", "R_75", "R_90"}},
		newFakeVenue(), WithScannerStrategy(strat))
	require.NoError(t, err)

	for _, sym := range []string{"R_10", "R_25", "R_50", "R_75"} {
		feed(p, sym, 60)
	}
	feed(p, "R_90", 10)
	feed(p, "R_999", 60) // not scanned
	p.Scan()

	recs := p.Recommendations(3)
	require.Len(t, recs, 2)
	assert.Equal(t, "R_10", recs[0].Symbol)
	assert.Equal(t, "R_25", recs[1].Symbol)
	assert.Greater(t, recs[0].Score, recs[1].Score)
	assert.Equal(t, models.DirectionPut, recs[1].Direction)

	top := p.Recommendations(1)
	require.Len(t, top, 1)
	assert.Equal(t, "R_10", top[0].Symbol)

	snap := p.Snapshot(0)
	assert.Equal(t, 5, snap.Status.Total)
	assert.Equal(t, 4, snap.Status.WithData)
	assert.Equal(t, 2, snap.Status.WithSignal)
	assert.Equal(t, 30, snap.Status.MinTicks)
	assert.Equal(t, 15.0, snap.Status.IntervalSeconds)
	assert.Len(t, snap.Recommendations, 2)
	assert.Len(t, snap.Pairs, 5)

	for _, ps := range snap.Pairs {
		switch ps.Symbol {
		case "R_90":
			assert.False(t, ps.HasData)
			assert.Zero(t, ps.Score)
			assert.Contains(t, ps.Reason, "need 30 ticks")
		case "R_50", "R_75":
			assert.True(t, ps.HasData)
			assert.Zero(t, ps.Score)
			assert.False(t, ps.Active())
		}
	}
}

func TestScannerScoreDoesNotStartGateCooldown(t *testing.T) {
	strat := fixedStrategy{"R_10": {Direction: models.DirectionCall, Confidence: 0.9}}
	p, err := NewPairScanner(ScannerConfig{Symbols: []string{"R_10"}}, newFakeVenue(), WithScannerStrategy(strat))
	require.NoError(t, err)
	feed(p, "R_10", 60)

	p.Scan()
	first := p.Pairs()[0]
	p.Scan()
	second := p.Pairs()[0]
	assert.Equal(t, first.Confluence, second.Confluence)
	assert.Equal(t, first.Score, second.Score)
}

func TestScannerRunSubscribesAndStops(t *testing.T) {
	v := newFakeVenue()
	v.history = makeTicks("ANY", 60, 1000)
	p, err := NewPairScanner(ScannerConfig{Symbols: []string{"R_10", "R_25"}, Interval: 10 * time.Millisecond}, v)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	eventually(t, func() bool {
		v.mu.Lock()
		defer v.mu.Unlock()
		return len(v.ticks) == 2
	}, "scanner subscribed to both symbols")
	eventually(t, func() bool {
		for _, ps := range p.Pairs() {
			if !ps.HasData || ps.Ticks != 60 {
				return false
			}
		}
		return true
	}, "history warmed every symbol")

	v.mu.Lock()
	h := v.ticks["R_10"]
	v.mu.Unlock()
	h(models.Tick{Symbol: "R_10", Price: 101, Epoch: 2000})
	eventually(t, func() bool {
		for _, ps := range p.Pairs() {
			if ps.Symbol == "R_10" {
				return ps.Ticks == 61
			}
		}
		return false
	}, "live tick scanned")

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("scanner did not stop")
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	assert.ElementsMatch(t, []string{"R_10", "R_25"}, v.unsubscribed)
	assert.Equal(t, 1, v.disconnects)
}

func TestScannerRetriesConnect(t *testing.T) {
	v := newFakeVenue()
	v.connectErr = errors.New("dial refused")
	p, err := NewPairScanner(ScannerConfig{Symbols: []string{"R_10"}, Interval: 10 * time.Millisecond}, v)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	eventually(t, func() bool {
		v.mu.Lock()
		defer v.mu.Unlock()
		return v.connects >= 2
	}, "connect retried")
	v.mu.Lock()
	v.connectErr = nil
	v.mu.Unlock()
	eventually(t, func() bool {
		v.mu.Lock()
		defer v.mu.Unlock()
		return len(v.ticks) == 1
	}, "subscribed after recovery")
}

func TestNewPairScannerValidates(t *testing.T) {
	_, err := NewPairScanner(ScannerConfig{}, newFakeVenue())
	assert.Error(t, err)
	_, err = NewPairScanner(ScannerConfig{Symbols: []string{"R_10"}, Strategy: "MARTIAN"}, newFakeVenue())
	assert.Error(t, err)
}
