package strategy

import (
	"fmt"
	"math"

	"BinPull/internal/domain/models"
)

const (
	amtMinTicks  = 30
	amtVolWindow = 20
	amtVolBand   = 0.70
)

// AMT looks for stable trends: a lopsided up/down ratio across three lookbacks
// while recent volatility stays below the upper band of its own history.
type AMT struct {
	min float64
}

func NewAMT() *AMT { return &AMT{min: 0.65} }

func (a *AMT) Variant() models.Variant { return models.VariantAMT }
func (a *AMT) MinConfidence() float64  { return a.min }

func upRatio(prices []float64) float64 {
	up, down := upDown(prices)
	if up+down == 0 {
		return 0.5
	}
	return float64(up) / float64(up+down)
}

// volatilityScore compares the mean absolute return of the last 10 moves with
// the largest move in the window. 0.5 when there is not enough data.
func volatilityScore(prices []float64) float64 {
	w := last(prices, amtVolWindow+1)
	if len(w) < 11 {
		return 0.5
	}
	moves := make([]float64, 0, len(w)-1)
	maxMove := 0.0
	for i := 1; i < len(w); i++ {
		if w[i-1] == 0 {
			continue
		}
		m := math.Abs(w[i]-w[i-1]) / w[i-1]
		moves = append(moves, m)
		maxMove = math.Max(maxMove, m)
	}
	if maxMove == 0 || len(moves) < 10 {
		return 0.5
	}
	sum := 0.0
	for _, m := range moves[len(moves)-10:] {
		sum += m
	}
	return clamp01(sum / 10 / maxMove)
}

func (a *AMT) Evaluate(symbol string, st models.IndicatorState, recent []float64) models.Signal {
	if len(recent) < amtMinTicks {
		return models.NoSignal(symbol, a.Variant(), fmt.Sprintf("need %d ticks", amtMinTicks))
	}
	short := upRatio(last(recent, 10))
	medium := upRatio(last(recent, 25))
	long := upRatio(last(recent, 50))
	ratio := short*0.5 + medium*0.3 + long*0.2
	strength := math.Abs(ratio-0.5) * 2

	run, runDir := streak(recent)
	var dir models.Direction
	switch {
	case ratio > 0.55:
		dir = models.DirectionCall
	case ratio < 0.45:
		dir = models.DirectionPut
	default:
		return models.NoSignal(symbol, a.Variant(), "no clear trend")
	}
	if run >= 3 && directionOf(runDir) == dir {
		strength = math.Min(strength*1.2, 1)
	}

	vol := volatilityScore(recent)
	if vol >= amtVolBand {
		return models.NoSignal(symbol, a.Variant(), fmt.Sprintf("volatility %.2f too high", vol))
	}

	bonus := 0.10
	if run >= 4 && directionOf(runDir) == dir {
		bonus += 0.05
	}
	sig := models.Signal{
		Symbol:     symbol,
		Strategy:   a.Variant(),
		Direction:  dir,
		Price:      recent[len(recent)-1],
		Confidence: strength*0.6 + (1-vol)*0.25 + bonus,
		Reason:     fmt.Sprintf("stable trend ratio %.2f volatility %.2f", ratio, vol),
		Components: map[string]float64{"up_ratio": ratio, "strength": strength, "volatility": vol},
	}
	return finalize(sig, a.min)
}
