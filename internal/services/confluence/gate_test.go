package confluence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BinPull/internal/domain/models"
)

var t0 = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

// hammerTape ends in a bar with a long lower wick and a quiet last move.
func hammerTape() []float64 {
	out := make([]float64, 0, 21)
	for i := 0; i < 17; i++ {
		out = append(out, 100+float64(i%2))
	}
	return append(out, 99, 100.5, 100.6, 100.8)
}

func strongFilters(now time.Time) Filters {
	return Filters{
		State: models.IndicatorState{
			EMAFast:     100.1,
			EMAFastPrev: 100,
			ADX:         25,
			PlusDI:      30,
			MinusDI:     10,
		},
		Recent: hammerTape(),
		Now:    now,
	}
}

func call(conf float64) models.Signal {
	return models.Signal{Symbol: "R_100", Direction: models.DirectionCall, Confidence: conf}
}

func TestScoreBreakdowns(t *testing.T) {
	rising := make([]float64, 0, 21)
	for i := 0; i < 21; i++ {
		rising = append(rising, 100+float64(i))
	}
	cases := []struct {
		name string
		f    Filters
		want map[string]float64
		tier models.Tier
	}{
		{
			name: "trend adx volume price action",
			f: Filters{
				State:       models.IndicatorState{EMAFast: 100, EMAFastPrev: 100, ADX: 19, PlusDI: 20, MinusDI: 18},
				Higher:      models.IndicatorState{EMAFast: 2, EMASlow: 1, RSI: 55},
				HigherReady: true,
				Recent:      rising,
				Now:         t0,
			},
			want: map[string]float64{
				"mtf":          20,
				"ema_slope":    0,
				"adx":          15,
				"volume":       10,
				"price_action": 15,
				"cooldown":     10,
			},
			tier: models.TierStrong,
		},
		{
			name: "hammer with flat higher timeframe",
			f:    strongFilters(t0),
			want: map[string]float64{
				"mtf":          10,
				"ema_slope":    10,
				"adx":          20,
				"volume":       0,
				"price_action": 20,
				"cooldown":     10,
			},
			tier: models.TierStrong,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := New().Score(call(0.6), tc.f)
			assert.Equal(t, tc.want, res.Components)
			assert.Equal(t, 70.0, res.Score)
			assert.Equal(t, tc.tier, res.Tier)
			assert.True(t, res.Allowed)
			assert.True(t, res.Tradeable())
		})
	}
}

func TestCooldownBlocksRepeatSignal(t *testing.T) {
	g := New()

	res := g.Score(call(0.6), strongFilters(t0))
	require.True(t, res.Tradeable())
	g.Record(call(0.6), t0)

	// 60 points still passes the threshold but may not trade
	res = g.Score(call(0.6), strongFilters(t0.Add(5*time.Second)))
	assert.Equal(t, 0.0, res.Components["cooldown"])
	assert.Equal(t, 60.0, res.Score)
	assert.Equal(t, models.TierMedium, res.Tier)
	assert.True(t, res.Allowed)
	assert.True(t, res.Cooling)
	assert.False(t, res.Tradeable())

	put := models.Signal{Symbol: "R_100", Direction: models.DirectionPut, Confidence: 0.6}
	res = g.Score(put, strongFilters(t0.Add(5*time.Second)))
	assert.Equal(t, 10.0, res.Components["cooldown"], "cooldown is per direction")
	assert.False(t, res.Cooling)

	res = g.Score(call(0.6), strongFilters(t0.Add(13*time.Second)))
	assert.Equal(t, 10.0, res.Components["cooldown"])
	assert.True(t, res.Tradeable())
}

func TestScoreDoesNotStartCooldown(t *testing.T) {
	g := New()
	for i := 0; i < 3; i++ {
		res := g.Score(call(0.6), strongFilters(t0.Add(time.Duration(i)*time.Second)))
		assert.True(t, res.Tradeable(), "unplaced signal %d must not cool down the next", i)
	}
}

func TestAllowedNeedsScore(t *testing.T) {
	g := New()
	f := Filters{Now: t0, HigherReady: true}
	res := g.Score(call(0.9), f)
	if res.Allowed {
		t.Fatalf("score %.0f should not be allowed", res.Score)
	}
	if res.Tier != models.TierWeak {
		t.Fatalf("tier = %s", res.Tier)
	}
}

func TestNoneSignalIsRejected(t *testing.T) {
	res := New().Score(models.Signal{Direction: models.DirectionNone, Confidence: 1}, strongFilters(t0))
	assert.False(t, res.Allowed)
	assert.Zero(t, res.Score)
}

func TestMTFScore(t *testing.T) {
	up := models.IndicatorState{EMAFast: 2, EMASlow: 1, RSI: 55}
	assert.Equal(t, 20.0, mtfScore(true, Filters{Higher: up, HigherReady: true}))
	assert.Equal(t, 10.0, mtfScore(false, Filters{Higher: up, HigherReady: true}), "rsi 55 still under 60")
	up.RSI = 65
	assert.Equal(t, 0.0, mtfScore(false, Filters{Higher: up, HigherReady: true}))
	assert.Equal(t, 10.0, mtfScore(true, Filters{}))
}

func TestADXScore(t *testing.T) {
	cases := []struct {
		name            string
		adx, plus, minu float64
		call            bool
		want            float64
	}{
		{"strong agree", 25, 30, 10, true, 20},
		{"strong agree put", 25, 10, 30, false, 20},
		{"conflict", 30, 5, 25, true, 0},
		{"moderate", 19, 20, 18, true, 15},
		{"weak", 13, 20, 18, true, 10},
		{"none", 8, 20, 18, true, 0},
	}
	for _, c := range cases {
		got, _ := adxScore(c.call, models.IndicatorState{ADX: c.adx, PlusDI: c.plus, MinusDI: c.minu})
		if got != c.want {
			t.Fatalf("%s: got %.0f want %.0f", c.name, got, c.want)
		}
	}
}

func TestVolumeScore(t *testing.T) {
	tape := func(last float64) []float64 {
		out := make([]float64, 0, 21)
		p := 100.0
		for i := 0; i < 20; i++ {
			out = append(out, p)
			p++
		}
		return append(out, out[19]+last)
	}
	// 19 unit moves plus the last one.
	assert.Equal(t, 20.0, volumeScore(tape(3)))
	assert.Equal(t, 10.0, volumeScore(tape(1)))
	assert.Equal(t, 0.0, volumeScore(tape(0.1)))
	assert.Equal(t, 10.0, volumeScore([]float64{1, 2}), "short history is neutral")
}

func TestPriceActionScore(t *testing.T) {
	hammer := []float64{100, 99, 100.5, 100.6, 100.8}
	star := []float64{100, 101.8, 100.3, 100.2, 100}

	got, _ := priceActionScore(true, hammer)
	assert.Equal(t, 20.0, got)
	got, _ = priceActionScore(false, hammer)
	assert.Equal(t, 0.0, got)
	got, _ = priceActionScore(false, star)
	assert.Equal(t, 20.0, got)
	got, _ = priceActionScore(true, []float64{100, 100.2, 100.4, 100.6, 100.8})
	assert.Equal(t, 15.0, got)
}

func TestTierFor(t *testing.T) {
	assert.Equal(t, models.TierStrong, TierFor(70))
	assert.Equal(t, models.TierMedium, TierFor(69.9))
	assert.Equal(t, models.TierMedium, TierFor(50))
	assert.Equal(t, models.TierWeak, TierFor(49))
}
