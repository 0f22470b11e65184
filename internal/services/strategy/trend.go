package strategy

import (
	"fmt"
	"math"

	"BinPull/internal/domain/models"
)

// TrendFollowing trades in the EMA cross direction once ADX confirms a trend
// and the directional indices agree.
type TrendFollowing struct {
	min float64
}

func NewTrendFollowing() *TrendFollowing { return &TrendFollowing{min: 0.55} }

func (t *TrendFollowing) Variant() models.Variant { return models.VariantTrendFollowing }
func (t *TrendFollowing) MinConfidence() float64  { return t.min }

func (t *TrendFollowing) Evaluate(symbol string, st models.IndicatorState, _ []float64) models.Signal {
	if !st.Warm {
		return models.NoSignal(symbol, t.Variant(), "warming up")
	}
	if st.ADX < adxStrong {
		return models.NoSignal(symbol, t.Variant(), fmt.Sprintf("adx %.1f below %.0f", st.ADX, adxStrong))
	}

	dir := directionOf(sign(st.EMAFast - st.EMASlow))
	diAgrees := (dir == models.DirectionCall && st.PlusDI > st.MinusDI) ||
		(dir == models.DirectionPut && st.MinusDI > st.PlusDI)
	if dir == models.DirectionNone || !diAgrees {
		return models.NoSignal(symbol, t.Variant(), "ema cross and di disagree")
	}

	adxBonus := math.Min((st.ADX-adxStrong)/50, 0.2)
	macdBonus := 0.0
	if (dir == models.DirectionCall && st.MACDHist > 0) || (dir == models.DirectionPut && st.MACDHist < 0) {
		macdBonus = 0.1
	}
	sig := models.Signal{
		Symbol:     symbol,
		Strategy:   t.Variant(),
		Direction:  dir,
		Price:      st.Price,
		Confidence: 0.5 + adxBonus + macdBonus,
		Reason:     fmt.Sprintf("trend %s adx %.1f", dir, st.ADX),
		Components: map[string]float64{"adx": st.ADX, "adx_bonus": adxBonus, "macd_bonus": macdBonus},
	}
	return finalize(sig, t.min)
}
