package strategy

import (
	"fmt"

	"BinPull/internal/domain/models"
)

const sniperMinTicks = 50

var sniperWeights = map[string]float64{
	"rsi":   0.25,
	"ema":   0.25,
	"macd":  0.20,
	"stoch": 0.15,
	"adx":   0.15,
}

// Sniper only fires when nearly every indicator points the same way.
type Sniper struct {
	min float64
}

func NewSniper() *Sniper { return &Sniper{min: 0.80} }

func (s *Sniper) Variant() models.Variant { return models.VariantSniper }
func (s *Sniper) MinConfidence() float64  { return s.min }

// sniperVotes returns the call and put strength of every component, each in [0,1].
func sniperVotes(st models.IndicatorState) map[string][2]float64 {
	v := make(map[string][2]float64, len(sniperWeights))

	v["rsi"] = [2]float64{clamp01((50 - st.RSI) / 20), clamp01((st.RSI - 50) / 20)}

	switch {
	case st.EMAFast > st.EMASlow && st.Price > st.EMAFast:
		v["ema"] = [2]float64{1, 0}
	case st.EMAFast > st.EMASlow:
		v["ema"] = [2]float64{0.6, 0}
	case st.EMAFast < st.EMASlow && st.Price < st.EMAFast:
		v["ema"] = [2]float64{0, 1}
	case st.EMAFast < st.EMASlow:
		v["ema"] = [2]float64{0, 0.6}
	}

	rising := st.MACDHist > st.MACDHistPrev
	switch {
	case st.MACDHist > 0 && rising:
		v["macd"] = [2]float64{1, 0}
	case st.MACDHist > 0:
		v["macd"] = [2]float64{0.6, 0}
	case st.MACDHist < 0 && !rising:
		v["macd"] = [2]float64{0, 1}
	case st.MACDHist < 0:
		v["macd"] = [2]float64{0, 0.6}
	}

	switch {
	case st.StochK > st.StochD && st.StochK < 50:
		v["stoch"] = [2]float64{1, 0}
	case st.StochK > st.StochD:
		v["stoch"] = [2]float64{0.5, 0}
	case st.StochK < st.StochD && st.StochK > 50:
		v["stoch"] = [2]float64{0, 1}
	case st.StochK < st.StochD:
		v["stoch"] = [2]float64{0, 0.5}
	}

	var adx float64
	switch {
	case st.ADX >= adxStrong:
		adx = 1
	case st.ADX >= 18:
		adx = 0.5
	}
	if st.PlusDI > st.MinusDI {
		v["adx"] = [2]float64{adx, 0}
	} else if st.MinusDI > st.PlusDI {
		v["adx"] = [2]float64{0, adx}
	}
	return v
}

func (s *Sniper) Evaluate(symbol string, st models.IndicatorState, recent []float64) models.Signal {
	if !st.Warm || len(recent) < sniperMinTicks {
		return models.NoSignal(symbol, s.Variant(), "warming up")
	}
	var call, put float64
	var callAgree, putAgree int
	components := make(map[string]float64, len(sniperWeights)+2)
	for name, vote := range sniperVotes(st) {
		w := sniperWeights[name]
		call += w * vote[0]
		put += w * vote[1]
		switch {
		case vote[0] > vote[1]:
			callAgree++
		case vote[1] > vote[0]:
			putAgree++
		}
		components[name] = vote[0] - vote[1]
	}
	components["call"] = call
	components["put"] = put

	sig := models.Signal{Symbol: symbol, Strategy: s.Variant(), Price: st.Price, Components: components}
	switch {
	case call > put:
		sig.Direction = models.DirectionCall
		sig.Confidence = call + float64(callAgree)/5*0.1
		sig.Reason = fmt.Sprintf("%d/5 indicators bullish", callAgree)
	case put > call:
		sig.Direction = models.DirectionPut
		sig.Confidence = put + float64(putAgree)/5*0.1
		sig.Reason = fmt.Sprintf("%d/5 indicators bearish", putAgree)
	default:
		sig.Direction = models.DirectionNone
		sig.Reason = "indicators split"
	}
	return finalize(sig, s.min)
}
