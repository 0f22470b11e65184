package strategy

import (
	"fmt"
	"math"

	"BinPull/internal/domain/models"
)

// BollingerBreakout follows closes outside the bands when the MACD histogram agrees.
type BollingerBreakout struct {
	min float64
}

func NewBollingerBreakout() *BollingerBreakout { return &BollingerBreakout{min: 0.55} }

func (b *BollingerBreakout) Variant() models.Variant { return models.VariantBollingerBreakout }
func (b *BollingerBreakout) MinConfidence() float64  { return b.min }

func (b *BollingerBreakout) Evaluate(symbol string, st models.IndicatorState, _ []float64) models.Signal {
	if !st.Warm {
		return models.NoSignal(symbol, b.Variant(), "warming up")
	}
	width := st.BBUpper - st.BBLower
	if width <= 0 {
		return models.NoSignal(symbol, b.Variant(), "flat bands")
	}

	var dir models.Direction
	var penetration float64
	switch {
	case st.Price > st.BBUpper && st.MACDHist > 0:
		dir = models.DirectionCall
		penetration = (st.Price - st.BBUpper) / width
	case st.Price < st.BBLower && st.MACDHist < 0:
		dir = models.DirectionPut
		penetration = (st.BBLower - st.Price) / width
	default:
		return models.NoSignal(symbol, b.Variant(), "inside bands")
	}
	penetration = math.Min(penetration, 1)

	adxBonus := 0.0
	if st.ADX >= adxStrong {
		adxBonus = 0.1
	}
	sig := models.Signal{
		Symbol:     symbol,
		Strategy:   b.Variant(),
		Direction:  dir,
		Price:      st.Price,
		Confidence: 0.55 + penetration*0.25 + adxBonus,
		Reason:     fmt.Sprintf("band breakout %s", dir),
		Components: map[string]float64{"penetration": penetration, "adx_bonus": adxBonus},
	}
	return finalize(sig, b.min)
}
