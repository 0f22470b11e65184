package strategy

import (
	"fmt"
	"math"

	"BinPull/internal/domain/models"
)

const (
	tpMinTicks     = 30
	tpShort        = 5
	tpMedium       = 10
	tpLong         = 20
	tpStreakSignal = 3
	tpStreakStrong = 5
)

// TickPicker reads raw tick streaks and multi-window momentum.
type TickPicker struct {
	min float64
}

func NewTickPicker() *TickPicker { return &TickPicker{min: 0.55} }

func (t *TickPicker) Variant() models.Variant { return models.VariantTickPicker }
func (t *TickPicker) MinConfidence() float64  { return t.min }

type momentum struct {
	short, medium, long float64
	acceleration        float64
}

// accelerating reports whether the medium window is speeding up in its own direction.
func (m momentum) accelerating() bool {
	return m.medium != 0 && sign(m.acceleration) == sign(m.medium)
}

func roc(prices []float64) float64 {
	if len(prices) < 2 || prices[0] == 0 {
		return 0
	}
	return (prices[len(prices)-1] - prices[0]) / prices[0] * 100
}

func measureMomentum(prices []float64) momentum {
	m := momentum{
		short:  roc(last(prices, tpShort)),
		medium: roc(last(prices, tpMedium)),
		long:   roc(last(prices, tpLong)),
	}
	if len(prices) >= tpMedium+5 {
		prev := prices[len(prices)-tpMedium-5 : len(prices)-5]
		m.acceleration = m.medium - roc(prev)
	}
	return m
}

func (t *TickPicker) Evaluate(symbol string, st models.IndicatorState, recent []float64) models.Signal {
	if len(recent) < tpMinTicks {
		return models.NoSignal(symbol, t.Variant(), fmt.Sprintf("need %d ticks", tpMinTicks))
	}
	price := recent[len(recent)-1]
	mom := measureMomentum(recent)
	run, runDir := streak(recent)

	sig := models.Signal{
		Symbol:   symbol,
		Strategy: t.Variant(),
		Price:    price,
		Components: map[string]float64{
			"streak":       float64(run * runDir),
			"mom_short":    mom.short,
			"mom_medium":   mom.medium,
			"mom_long":     mom.long,
			"acceleration": mom.acceleration,
		},
	}
	factor := math.Min(float64(run)/10, 1)

	switch {
	case run >= tpStreakStrong:
		sig.Direction = directionOf(-runDir)
		sig.Confidence = math.Min(0.55+factor*0.15, 0.75)
		sig.Reason = fmt.Sprintf("reversal after %d ticks", run)
	case run >= tpStreakSignal && mom.accelerating() && sign(mom.medium) == runDir:
		sig.Direction = directionOf(runDir)
		sig.Confidence = 0.58 + factor*0.10
		sig.Reason = fmt.Sprintf("continuation of %d ticks with momentum", run)
	case sameSign(mom.short, mom.medium, mom.long) && mom.accelerating():
		sig.Direction = directionOf(sign(mom.medium))
		sig.Confidence = 0.65
		sig.Reason = "momentum aligned across windows"
	case mom.short > 0 && mom.long < 0:
		sig.Direction = models.DirectionCall
		sig.Confidence = 0.58
		sig.Reason = "short momentum diverging up"
	case mom.short < 0 && mom.long > 0:
		sig.Direction = models.DirectionPut
		sig.Confidence = 0.58
		sig.Reason = "short momentum diverging down"
	default:
		sig.Direction = models.DirectionNone
		sig.Reason = "no tick pattern"
	}
	return finalize(sig, t.min)
}

func sameSign(xs ...float64) bool {
	s := sign(xs[0])
	if s == 0 {
		return false
	}
	for _, x := range xs[1:] {
		if sign(x) != s {
			return false
		}
	}
	return true
}
