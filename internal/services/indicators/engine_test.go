package indicators

import (
	"errors"
	"math"
	"testing"
	"time"

	"BinPull/internal/domain/models"
	"BinPull/internal/domain/repository"
)

func near(a, b, eps float64) bool { return math.Abs(a-b) <= eps }

func tick(sym string, p float64, sec int64) models.Tick {
	return models.Tick{Symbol: sym, Price: p, Epoch: sec}
}

func TestEMASeedsWithSMA(t *testing.T) {
	e := newEMA(3)
	for _, x := range []float64{1, 2, 3} {
		e.update(x)
	}
	if !e.ready() || !near(e.value, 2, 1e-12) {
		t.Fatalf("seed = %v ready=%v, want 2", e.value, e.ready())
	}
	if got := e.update(4); !near(got, 3, 1e-12) {
		t.Fatalf("ema after 4 = %v, want 3", got)
	}
}

func TestRSIExtremes(t *testing.T) {
	up := NewState("X", DefaultPeriods())
	down := NewState("Y", DefaultPeriods())
	flat := NewState("Z", DefaultPeriods())
	var su, sd, sf models.IndicatorState
	for i := 0; i < 20; i++ {
		su = up.UpdateTick(100 + float64(i))
		sd = down.UpdateTick(100 - float64(i))
		sf = flat.UpdateTick(100 + float64(i%2))
	}
	if su.RSI != 100 {
		t.Fatalf("rising RSI = %v", su.RSI)
	}
	if sd.RSI != 0 {
		t.Fatalf("falling RSI = %v", sd.RSI)
	}
	if !near(sf.RSI, 50, 5) {
		t.Fatalf("alternating RSI = %v, want about 50", sf.RSI)
	}
}

func TestRSIBeforeWarmupIsNeutral(t *testing.T) {
	s := NewState("X", DefaultPeriods())
	var snap models.IndicatorState
	for i := 0; i < 5; i++ {
		snap = s.UpdateTick(100 + float64(i))
	}
	if snap.RSI != 50 {
		t.Fatalf("RSI before warm-up = %v", snap.RSI)
	}
}

// Incremental Wilder RSI must match a batch computation over the same series.
func TestRSIMatchesBatch(t *testing.T) {
	prices := make([]float64, 120)
	for i := range prices {
		prices[i] = 100 + 3*math.Sin(float64(i)/4) + float64(i%7)/10
	}
	s := NewState("X", DefaultPeriods())
	var snap models.IndicatorState
	for _, p := range prices {
		snap = s.UpdateTick(p)
	}

	const n = 14
	var ag, al float64
	for i := 1; i <= n; i++ {
		ch := prices[i] - prices[i-1]
		ag += math.Max(ch, 0)
		al += math.Max(-ch, 0)
	}
	ag /= n
	al /= n
	for i := n + 1; i < len(prices); i++ {
		ch := prices[i] - prices[i-1]
		ag = (ag*(n-1) + math.Max(ch, 0)) / n
		al = (al*(n-1) + math.Max(-ch, 0)) / n
	}
	want := 100 - 100/(1+ag/al)
	if !near(snap.RSI, want, 1e-9) {
		t.Fatalf("RSI = %v, batch = %v", snap.RSI, want)
	}
}

func TestFlatSeriesBandsAndStochastic(t *testing.T) {
	s := NewState("X", DefaultPeriods())
	var snap models.IndicatorState
	for i := 0; i < 30; i++ {
		snap = s.UpdateTick(50)
	}
	if snap.BBUpper != 50 || snap.BBLower != 50 || snap.BBMiddle != 50 {
		t.Fatalf("bands = %v/%v/%v", snap.BBLower, snap.BBMiddle, snap.BBUpper)
	}
	if snap.StochK != 50 || snap.StochD != 50 {
		t.Fatalf("stoch = %v/%v", snap.StochK, snap.StochD)
	}
}

func TestADXOnSteadyUptrend(t *testing.T) {
	s := NewState("X", DefaultPeriods())
	var snap models.IndicatorState
	for i := 0; i < 60; i++ {
		snap = s.UpdateTick(100 + float64(i))
	}
	if !near(snap.ADX, 100, 1e-9) || !near(snap.PlusDI, 100, 1e-9) || snap.MinusDI != 0 {
		t.Fatalf("adx=%v +di=%v -di=%v", snap.ADX, snap.PlusDI, snap.MinusDI)
	}
	if !near(snap.ATR, 1, 1e-9) {
		t.Fatalf("atr = %v", snap.ATR)
	}
	if !snap.Warm || !snap.TrendUp() || snap.MACD <= 0 {
		t.Fatalf("expected warm uptrend: %+v", snap)
	}
}

func TestEngineRejectsInvalidPrices(t *testing.T) {
	e := New()
	if _, err := e.Update("R_100", tick("R_100", 100, 1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, p := range []float64{math.NaN(), math.Inf(1), 0, -3} {
		if _, err := e.Update("R_100", tick("R_100", p, 2)); !errors.Is(err, ErrInvalidPrice) {
			t.Fatalf("price %v: err = %v", p, err)
		}
	}
	snap, _ := e.State("R_100")
	if snap.Count != 1 || e.BufferLen("R_100") != 1 {
		t.Fatalf("state mutated by invalid price: count=%d buf=%d", snap.Count, e.BufferLen("R_100"))
	}
}

func TestPruningDoesNotTouchIncrementalState(t *testing.T) {
	pruned := New(WithPruning(100, 10))
	plain := New(WithPruning(1_000_000, 10))
	for i := 0; i < 150; i++ {
		p := 100 + math.Sin(float64(i)/3)
		_, _ = pruned.Update("R", tick("R", p, int64(i)))
		_, _ = plain.Update("R", tick("R", p, int64(i)))
		if n := pruned.BufferLen("R"); n > 100 {
			t.Fatalf("buffer grew to %d", n)
		}
	}
	a, _ := pruned.State("R")
	b, _ := plain.State("R")
	if a != b {
		t.Fatalf("pruning changed state:\n%+v\n%+v", a, b)
	}
	// 101st push trims to 10, then 49 more
	if got := pruned.BufferLen("R"); got != 59 {
		t.Fatalf("buffer len = %d, want 59", got)
	}
	recent := pruned.Recent("R", 3)
	all := plain.Recent("R", 3)
	for i := range recent {
		if recent[i] != all[i] {
			t.Fatalf("recent mismatch %v vs %v", recent, all)
		}
	}
}

func TestCandleAggregatorBuckets(t *testing.T) {
	a := NewCandleAggregator(repository.TF5m)
	base := time.Date(2024, 1, 1, 10, 0, 1, 0, time.UTC)
	at := func(d time.Duration, p float64) models.Tick {
		return models.Tick{Symbol: "R", Price: p, At: base.Add(d)}
	}
	if _, ok := a.Add(at(0, 10)); ok {
		t.Fatalf("first tick must not close a candle")
	}
	a.Add(at(time.Minute, 12))
	a.Add(at(2*time.Minute, 9))
	a.Add(at(4*time.Minute+58*time.Second, 11))
	c, ok := a.Add(at(5*time.Minute, 11.5))
	if !ok {
		t.Fatalf("expected closed candle")
	}
	if c.Open != 10 || c.High != 12 || c.Low != 9 || c.Close != 11 || c.Ticks != 4 {
		t.Fatalf("candle = %+v", c)
	}
	if !c.Bucket.Equal(time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("bucket = %v", c.Bucket)
	}
	cur, _ := a.Current("R")
	if cur.Open != 11.5 || cur.Ticks != 1 {
		t.Fatalf("current = %+v", cur)
	}
}

func TestHigherTimeframeEngineFromCandles(t *testing.T) {
	e := New()
	for i := 0; i < 40; i++ {
		p := 100 + float64(i)
		if _, err := e.UpdateCandle(models.Candle{Symbol: "R", Open: p - 0.5, High: p + 0.5, Low: p - 1, Close: p}); err != nil {
			t.Fatal(err)
		}
	}
	snap, ok := e.State("R")
	if !ok || !snap.TrendUp() || snap.RSI < 60 {
		t.Fatalf("unexpected M5 state: %+v", snap)
	}
}
