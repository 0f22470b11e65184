package strategy

import (
	"fmt"
	"math"

	"BinPull/internal/domain/models"
)

// Strategy turns the indicator snapshot of a symbol into a candidate signal.
// Implementations are stateless between calls; the recent price window is
// owned by the caller.
type Strategy interface {
	Variant() models.Variant
	MinConfidence() float64
	Evaluate(symbol string, st models.IndicatorState, recent []float64) models.Signal
}

// New returns the strategy for a variant.
func New(v models.Variant) (Strategy, error) {
	switch v {
	case models.VariantMultiIndicator:
		return NewMultiIndicator(), nil
	case models.VariantTrendFollowing:
		return NewTrendFollowing(), nil
	case models.VariantBollingerBreakout:
		return NewBollingerBreakout(), nil
	case models.VariantSupportResistance:
		return NewSupportResistance(), nil
	case models.VariantLDP:
		return NewLDP(), nil
	case models.VariantTickPicker:
		return NewTickPicker(), nil
	case models.VariantAMT:
		return NewAMT(), nil
	case models.VariantSniper:
		return NewSniper(), nil
	case models.VariantDigitPad:
		return NewDigitPad(), nil
	default:
		return nil, fmt.Errorf("strategy: unknown variant %q", v)
	}
}

// finalize enforces the variant minimum confidence and clamps to [0,1].
func finalize(sig models.Signal, min float64) models.Signal {
	sig.Confidence = clamp01(sig.Confidence)
	if !sig.IsActionable() {
		sig.Direction = models.DirectionNone
		return sig
	}
	if sig.Confidence < min {
		reason := fmt.Sprintf("confidence %.2f below %.2f", sig.Confidence, min)
		if sig.Reason != "" {
			reason = sig.Reason + "; " + reason
		}
		sig.Direction = models.DirectionNone
		sig.Reason = reason
		sig.ContractType = ""
		sig.Barrier = ""
	}
	return sig
}

func clamp01(x float64) float64 {
	if math.IsNaN(x) || x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

func last(prices []float64, n int) []float64 {
	if n <= 0 || len(prices) == 0 {
		return nil
	}
	if len(prices) <= n {
		return prices
	}
	return prices[len(prices)-n:]
}

// streak returns the length of the trailing run of same-sign moves and its sign
// (+1 up, -1 down). Flat moves end the run.
func streak(prices []float64) (int, int) {
	n, dir := 0, 0
	for i := len(prices) - 1; i > 0; i-- {
		d := sign(prices[i] - prices[i-1])
		if d == 0 {
			break
		}
		if dir == 0 {
			dir = d
		}
		if d != dir {
			break
		}
		n++
	}
	return n, dir
}

// upDown counts rising and falling moves.
func upDown(prices []float64) (up, down int) {
	for i := 1; i < len(prices); i++ {
		switch {
		case prices[i] > prices[i-1]:
			up++
		case prices[i] < prices[i-1]:
			down++
		}
	}
	return up, down
}

func sign(x float64) int {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}

func directionOf(s int) models.Direction {
	switch {
	case s > 0:
		return models.DirectionCall
	case s < 0:
		return models.DirectionPut
	default:
		return models.DirectionNone
	}
}
