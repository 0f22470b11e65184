package strategy

import (
	"math"

	"BinPull/internal/domain/models"
)

// Movement is the predicted direction of the next ticks.
type Movement string

const (
	MovementUp      Movement = "UP"
	MovementDown    Movement = "DOWN"
	MovementNeutral Movement = "NEUTRAL"
)

const (
	predMomentumLookback = 20
	predSequenceLookback = 15
	predVetoConfidence   = 0.60
)

var predictorWeights = struct {
	momentum, sequence, emaSlope, macd, stoch, adx float64
}{0.25, 0.20, 0.20, 0.15, 0.10, 0.10}

// Prediction is the predictor output with its per-factor contribution
// (positive up, negative down).
type Prediction struct {
	Movement   Movement           `json:"movement"`
	Confidence float64            `json:"confidence"`
	Factors    map[string]float64 `json:"factors,omitempty"`
}

// Predictor estimates the short-horizon tick direction and vetoes directional
// signals it disagrees with.
type Predictor struct {
	minConfidence float64
}

func NewPredictor() *Predictor { return &Predictor{minConfidence: predVetoConfidence} }

// Veto reports whether the signal must be dropped. Digit contracts and
// non-actionable signals pass through untouched.
func (p *Predictor) Veto(sig models.Signal, st models.IndicatorState, recent []float64) (bool, Prediction) {
	if !sig.IsActionable() || sig.IsDigit() {
		return false, Prediction{Movement: MovementNeutral}
	}
	pred := p.Predict(st, recent)
	want := MovementUp
	if sig.Direction == models.DirectionPut {
		want = MovementDown
	}
	return pred.Movement != want || pred.Confidence < p.minConfidence, pred
}

// Predict scores six weighted factors and returns the leading side.
func (p *Predictor) Predict(st models.IndicatorState, recent []float64) Prediction {
	var up, down float64
	factors := make(map[string]float64, 6)
	add := func(name string, w, strength float64, bull bool) {
		if bull {
			up += w * strength
			factors[name] = w * strength
		} else {
			down += w * strength
			factors[name] = -w * strength
		}
	}

	if s, dir, ok := momentumFactor(last(recent, predMomentumLookback+1)); ok {
		add("momentum", predictorWeights.momentum, s, dir > 0)
	}
	if s, dir, ok := sequenceFactor(last(recent, predSequenceLookback)); ok {
		add("sequence", predictorWeights.sequence, s, dir > 0)
	}

	slope := st.EMASlopePct()
	slopeStrength := 0.4
	switch abs := math.Abs(slope); {
	case abs >= 0.05:
		slopeStrength = 1.0
	case abs >= 0.01:
		slopeStrength = 0.7
	}
	flat := math.Abs(slope) < 0.01
	switch {
	case st.EMAFast > st.EMASlow && (slope > 0 || flat):
		add("ema_slope", predictorWeights.emaSlope, slopeStrength, true)
	case st.EMAFast < st.EMASlow && (slope < 0 || flat):
		add("ema_slope", predictorWeights.emaSlope, slopeStrength, false)
	}

	if st.MACDHist != 0 {
		s := math.Min(1, math.Abs(st.MACDHist)*800+0.3)
		if st.MACDHist > 0 && st.MACDHist > st.MACDHistPrev {
			s = math.Min(1, s+0.2)
		}
		add("macd", predictorWeights.macd, s, st.MACDHist > 0)
	}

	switch {
	case st.StochK > st.StochD:
		s := 0.4
		if st.StochK < 25 {
			s = 1.0
		} else if st.StochK < 50 {
			s = 0.7
		}
		add("stoch", predictorWeights.stoch, s, true)
	case st.StochK < st.StochD:
		s := 0.4
		if st.StochK > 75 {
			s = 1.0
		} else if st.StochK > 50 {
			s = 0.7
		}
		add("stoch", predictorWeights.stoch, s, false)
	}

	switch {
	case st.ADX >= adxStrong && st.PlusDI != st.MinusDI:
		add("adx", predictorWeights.adx, math.Min(1, st.ADX/35), st.PlusDI > st.MinusDI)
	case st.ADX >= 18 && math.Abs(st.PlusDI-st.MinusDI) > 5:
		add("adx", predictorWeights.adx, 0.5, st.PlusDI > st.MinusDI)
	}

	pred := Prediction{Factors: factors}
	var raw, diff float64
	switch {
	case up > down:
		pred.Movement, raw, diff = MovementUp, up, up-down
	case down > up:
		pred.Movement, raw, diff = MovementDown, down, down-up
	default:
		pred.Movement = MovementNeutral
		return pred
	}
	conf := math.Min(1, raw*(1+diff*0.6))
	switch {
	case st.ADX >= adxStrong:
		conf = math.Min(1, conf*1.18)
	case st.ADX < 12:
		conf *= 0.82
	}
	pred.Confidence = clamp01(conf)
	return pred
}

// momentumFactor compares the average move across thirds of the window.
func momentumFactor(prices []float64) (float64, int, bool) {
	if len(prices) < 4 {
		return 0, 0, false
	}
	changes := make([]float64, len(prices)-1)
	absSum := 0.0
	for i := 1; i < len(prices); i++ {
		changes[i-1] = prices[i] - prices[i-1]
		absSum += math.Abs(changes[i-1])
	}
	third := len(changes) / 3
	if third < 1 {
		third = 1
	}
	first := mean(changes[:third])
	second := first
	if 2*third <= len(changes) {
		second = mean(changes[third : 2*third])
	}
	lastAvg := second
	if 2*third < len(changes) {
		lastAvg = mean(changes[2*third:])
	}
	accel := (second - first) + (lastAvg - second)
	avg := absSum / float64(len(changes))
	if avg == 0 {
		return 0, 0, false
	}
	norm := accel / avg
	bias := sum(last(changes, 5))

	switch {
	case norm > 0.2 || (norm > 0 && bias > 0):
		return math.Min(1, math.Abs(norm)*0.8+0.2), 1, true
	case norm < -0.2 || (norm < 0 && bias < 0):
		return math.Min(1, math.Abs(norm)*0.8+0.2), -1, true
	}
	if net := sum(changes); net != 0 {
		return 0.4, sign(net), true
	}
	return 0, 0, false
}

// sequenceFactor rewards a trailing run of three or more same-direction ticks,
// falling back to the up/down count.
func sequenceFactor(prices []float64) (float64, int, bool) {
	if len(prices) < 4 {
		return 0, 0, false
	}
	if n, dir := streak(prices); n >= 3 {
		return math.Min(1, float64(n)/4), dir, true
	}
	up, down := upDown(prices)
	switch {
	case up > down+2:
		return 0.6, 1, true
	case down > up+2:
		return 0.6, -1, true
	}
	return 0, 0, false
}

func sum(xs []float64) float64 {
	s := 0.0
	for _, x := range xs {
		s += x
	}
	return s
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return sum(xs) / float64(len(xs))
}
