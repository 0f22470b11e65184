package strategy

import (
	"fmt"

	"BinPull/internal/domain/models"
)

const srWindow = 50

// SupportResistance trades bounces off the local extremes of the last ticks.
type SupportResistance struct {
	min       float64
	window    int
	tolerance float64 // fraction of ATR
}

func NewSupportResistance() *SupportResistance {
	return &SupportResistance{min: 0.55, window: srWindow, tolerance: 0.1}
}

func (s *SupportResistance) Variant() models.Variant { return models.VariantSupportResistance }
func (s *SupportResistance) MinConfidence() float64  { return s.min }

func (s *SupportResistance) Evaluate(symbol string, st models.IndicatorState, recent []float64) models.Signal {
	if !st.Warm || len(recent) < s.window {
		return models.NoSignal(symbol, s.Variant(), "warming up")
	}
	tol := st.ATR * s.tolerance
	if tol <= 0 {
		return models.NoSignal(symbol, s.Variant(), "no range")
	}

	w := last(recent, s.window)
	support, resistance := w[0], w[0]
	for _, p := range w {
		if p < support {
			support = p
		}
		if p > resistance {
			resistance = p
		}
	}
	price := w[len(w)-1]
	move := sign(price - w[len(w)-2])

	var dir models.Direction
	var dist float64
	switch {
	case move > 0 && price-support <= tol && st.RSI < 50:
		dir, dist = models.DirectionCall, price-support
	case move < 0 && resistance-price <= tol && st.RSI > 50:
		dir, dist = models.DirectionPut, resistance-price
	default:
		return models.NoSignal(symbol, s.Variant(), "no bounce")
	}

	proximity := 1 - dist/tol
	sig := models.Signal{
		Symbol:     symbol,
		Strategy:   s.Variant(),
		Direction:  dir,
		Price:      price,
		Confidence: 0.6 + proximity*0.15,
		Reason:     fmt.Sprintf("bounce %s support %.5f resistance %.5f", dir, support, resistance),
		Components: map[string]float64{"support": support, "resistance": resistance, "proximity": proximity},
	}
	return finalize(sig, s.min)
}
