package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BinPull/internal/domain/models"
)

func bullishState() models.IndicatorState {
	return models.IndicatorState{
		Symbol:       "R_100",
		Price:        101.5,
		Count:        200,
		Warm:         true,
		EMAFast:      101,
		EMASlow:      100,
		EMAFastPrev:  100.9,
		RSI:          25,
		MACDHist:     0.01,
		MACDHistPrev: 0.005,
		StochK:       15,
		StochD:       10,
		ADX:          30,
		PlusDI:       30,
		MinusDI:      10,
		BBUpper:      104,
		BBMiddle:     100,
		BBLower:      96,
		ATR:          0.5,
	}
}

func rising(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func TestNewCoversEveryVariant(t *testing.T) {
	for _, v := range models.Variants() {
		s, err := New(v)
		require.NoError(t, err, v)
		assert.Equal(t, v, s.Variant())
		assert.Greater(t, s.MinConfidence(), 0.0)
	}
	_, err := New("MARTIAN")
	assert.Error(t, err)
}

func TestMultiIndicatorFullAlignment(t *testing.T) {
	sig := NewMultiIndicator().Evaluate("R_100", bullishState(), nil)
	assert.Equal(t, models.DirectionCall, sig.Direction)
	assert.InDelta(t, 1.0, sig.Confidence, 1e-9)
	assert.InDelta(t, 1.05, sig.Components["buy_score"], 1e-9)
	assert.Equal(t, 0.0, sig.Components["sell_score"])
}

func TestMultiIndicatorColdAndQuiet(t *testing.T) {
	st := bullishState()
	st.Warm = false
	if sig := NewMultiIndicator().Evaluate("R_100", st, nil); sig.IsActionable() {
		t.Fatalf("cold state produced %s", sig.Direction)
	}

	st = bullishState()
	st.RSI = 50
	st.StochK = 50
	st.ADX = 10
	st.ATR = 0.005 // below 0.01% of price, halves the score
	sig := NewMultiIndicator().Evaluate("R_100", st, nil)
	if sig.IsActionable() {
		t.Fatalf("expected NONE, got %s %.2f", sig.Direction, sig.Confidence)
	}
	if sig.Reason == "" {
		t.Fatalf("expected a reason for the rejection")
	}
}

func TestVolatilityMultiplier(t *testing.T) {
	cases := []struct {
		atr  float64
		want float64
	}{
		{0.005, 0.5},
		{0.05, 0.7},
		{0.5, 1.0},
		{2.0, 0.85},
		{3.0, 0.7},
	}
	for _, c := range cases {
		got := volatilityMultiplier(models.IndicatorState{Price: 100, ATR: c.atr})
		if got != c.want {
			t.Fatalf("atr %.3f: got %.2f want %.2f", c.atr, got, c.want)
		}
	}
}

func TestTrendFollowingNeedsADX(t *testing.T) {
	st := bullishState()
	sig := NewTrendFollowing().Evaluate("R_100", st, nil)
	assert.Equal(t, models.DirectionCall, sig.Direction)
	assert.InDelta(t, 0.5+0.16+0.1, sig.Confidence, 1e-9)

	st.ADX = 15
	assert.False(t, NewTrendFollowing().Evaluate("R_100", st, nil).IsActionable())

	st = bullishState()
	st.PlusDI, st.MinusDI = 10, 30
	assert.False(t, NewTrendFollowing().Evaluate("R_100", st, nil).IsActionable())
}

func TestBollingerBreakout(t *testing.T) {
	st := bullishState()
	st.Price = 105
	sig := NewBollingerBreakout().Evaluate("R_100", st, nil)
	assert.Equal(t, models.DirectionCall, sig.Direction)
	assert.InDelta(t, 0.55+0.125*0.25+0.1, sig.Confidence, 1e-9)

	st.Price = 95
	st.MACDHist = -0.01
	sig = NewBollingerBreakout().Evaluate("R_100", st, nil)
	assert.Equal(t, models.DirectionPut, sig.Direction)

	st.Price = 100
	assert.False(t, NewBollingerBreakout().Evaluate("R_100", st, nil).IsActionable())
}

func TestSupportBounce(t *testing.T) {
	prices := make([]float64, 50)
	for i := range prices {
		prices[i] = 100 + float64(i%5)*0.1
	}
	prices[48] = 99.0
	prices[49] = 99.02

	st := bullishState()
	st.RSI = 40
	st.ATR = 0.5
	sig := NewSupportResistance().Evaluate("R_100", st, prices)
	require.Equal(t, models.DirectionCall, sig.Direction, sig.Reason)
	assert.InDelta(t, 99.0, sig.Components["support"], 1e-9)
	assert.InDelta(t, 0.6+0.6*0.15, sig.Confidence, 1e-9)

	st.RSI = 60
	assert.False(t, NewSupportResistance().Evaluate("R_100", st, prices).IsActionable())
}

func TestLastDigit(t *testing.T) {
	assert.Equal(t, 7, LastDigit(1234.57, 2))
	assert.Equal(t, 1, LastDigit(100.01, 2))
	assert.Equal(t, 3, LastDigit(9.123, 3))
	assert.Equal(t, 0, LastDigit(250, 2))
}

func TestLDPLowZoneImbalance(t *testing.T) {
	prices := make([]float64, 60)
	for i := range prices {
		prices[i] = 100 + float64(i%4+1)/100 // digits 1..4
	}
	sig := NewLDP().Evaluate("R_100", models.IndicatorState{}, prices)
	require.True(t, sig.IsActionable(), sig.Reason)
	assert.Equal(t, models.DirectionCall, sig.Direction)
	assert.Equal(t, models.ContractDigitOver, sig.ContractType)
	assert.Equal(t, "4", sig.Barrier)
	assert.InDelta(t, 0.75, sig.Confidence, 1e-9)
}

func TestLDPHighStreakBeatsWeakImbalance(t *testing.T) {
	prices := make([]float64, 60)
	for i := range prices {
		prices[i] = 100 + float64(i%10)/100 // balanced digits
	}
	for i := 54; i < 60; i++ {
		prices[i] = 100.07 // six high digits in a row
	}
	sig := NewLDP().Evaluate("R_100", models.IndicatorState{}, prices)
	require.True(t, sig.IsActionable(), sig.Reason)
	assert.Equal(t, models.ContractDigitUnder, sig.ContractType)
	assert.Equal(t, "5", sig.Barrier)
	assert.InDelta(t, 0.70, sig.Confidence, 1e-9)
}

func TestLDPNeedsHistory(t *testing.T) {
	sig := NewLDP().Evaluate("R_100", models.IndicatorState{}, rising(49, 100, 0.01))
	assert.False(t, sig.IsActionable())
}

func TestTickPickerReversalAfterLongStreak(t *testing.T) {
	prices := make([]float64, 0, 31)
	for i := 0; i < 25; i++ {
		prices = append(prices, 100)
	}
	prices = append(prices, rising(6, 100.1, 0.1)...)

	sig := NewTickPicker().Evaluate("R_100", models.IndicatorState{}, prices)
	assert.Equal(t, models.DirectionPut, sig.Direction)
	assert.InDelta(t, 0.55+0.6*0.15, sig.Confidence, 1e-9)
	assert.Equal(t, 6.0, sig.Components["streak"])
}

func TestTickPickerNeedsHistory(t *testing.T) {
	sig := NewTickPicker().Evaluate("R_100", models.IndicatorState{}, rising(29, 100, 0.1))
	assert.False(t, sig.IsActionable())
}

func TestAMTStableTrend(t *testing.T) {
	prices := rising(40, 100, 0.05)
	prices = append(prices, rising(10, prices[39]+0.01, 0.01)...)

	sig := NewAMT().Evaluate("R_100", models.IndicatorState{}, prices)
	require.Equal(t, models.DirectionCall, sig.Direction, sig.Reason)
	assert.Less(t, sig.Components["volatility"], 0.7)
	assert.GreaterOrEqual(t, sig.Confidence, 0.65)
}

func TestAMTBlocksOnVolatility(t *testing.T) {
	prices := rising(50, 100, 0.05) // constant moves: current equals max
	sig := NewAMT().Evaluate("R_100", models.IndicatorState{}, prices)
	assert.False(t, sig.IsActionable())
}

func TestSniperRequiresConsensus(t *testing.T) {
	st := bullishState()
	st.RSI = 30
	st.StochK, st.StochD = 40, 30
	sig := NewSniper().Evaluate("R_100", st, rising(50, 100, 0.01))
	assert.Equal(t, models.DirectionCall, sig.Direction)
	assert.InDelta(t, 1.0, sig.Confidence, 1e-9)

	st.MACDHist, st.MACDHistPrev = -0.01, 0.0
	st.ADX = 10
	sig = NewSniper().Evaluate("R_100", st, rising(50, 100, 0.01))
	assert.False(t, sig.IsActionable(), "split indicators must not pass 0.80")
}

func TestFinalizeDemotesWeakSignals(t *testing.T) {
	sig := finalize(models.Signal{
		Direction:    models.DirectionCall,
		Confidence:   0.4,
		ContractType: models.ContractDigitOver,
		Barrier:      "4",
	}, 0.55)
	assert.Equal(t, models.DirectionNone, sig.Direction)
	assert.Empty(t, sig.Barrier)
	assert.Contains(t, sig.Reason, "below")
}

func TestPredictorVeto(t *testing.T) {
	st := bullishState()
	st.StochK, st.StochD = 40, 30
	recent := make([]float64, 21)
	for i := range recent {
		recent[i] = 100 + 0.01*float64(i*i)
	}
	p := NewPredictor()

	pred := p.Predict(st, recent)
	require.Equal(t, MovementUp, pred.Movement)
	assert.GreaterOrEqual(t, pred.Confidence, 0.60)

	vetoed, _ := p.Veto(models.Signal{Direction: models.DirectionCall}, st, recent)
	assert.False(t, vetoed)
	vetoed, _ = p.Veto(models.Signal{Direction: models.DirectionPut}, st, recent)
	assert.True(t, vetoed)

	digit := models.Signal{Direction: models.DirectionPut, ContractType: models.ContractDigitUnder}
	vetoed, _ = p.Veto(digit, st, recent)
	assert.False(t, vetoed, "digit contracts are not directional")
}

func TestPredictorNeutralOnEmptyInput(t *testing.T) {
	pred := NewPredictor().Predict(models.IndicatorState{}, nil)
	assert.Equal(t, MovementNeutral, pred.Movement)
	assert.Zero(t, pred.Confidence)
}

func TestSelectorSwitch(t *testing.T) {
	var switched []models.Variant
	sel, err := NewSelector(models.VariantMultiIndicator, func(v models.Variant) { switched = append(switched, v) })
	require.NoError(t, err)

	require.NoError(t, sel.Switch(models.VariantMultiIndicator))
	assert.Empty(t, switched)

	require.NoError(t, sel.Switch(models.VariantLDP))
	assert.Equal(t, models.VariantLDP, sel.Active())
	assert.Equal(t, []models.Variant{models.VariantLDP}, switched)

	assert.Error(t, sel.Switch("NOPE"))
	assert.Equal(t, models.VariantLDP, sel.Active())

	sig := sel.Evaluate("R_100", models.IndicatorState{}, nil)
	assert.Equal(t, models.VariantLDP, sig.Strategy)
}
