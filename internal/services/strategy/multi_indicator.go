package strategy

import (
	"fmt"
	"math"
	"strings"

	"BinPull/internal/domain/models"
)

const (
	rsiOversold   = 30.0
	rsiOverbought = 70.0
	stochLow      = 20.0
	stochHigh     = 80.0
	adxStrong     = 22.0
)

// MultiIndicator scores the alignment of RSI, EMA cross, MACD, Stochastic and ADX,
// then scales the leading side by the ATR regime.
type MultiIndicator struct {
	min float64
}

func NewMultiIndicator() *MultiIndicator { return &MultiIndicator{min: 0.50} }

func (m *MultiIndicator) Variant() models.Variant { return models.VariantMultiIndicator }
func (m *MultiIndicator) MinConfidence() float64  { return m.min }

func (m *MultiIndicator) Evaluate(symbol string, st models.IndicatorState, recent []float64) models.Signal {
	if !st.Warm {
		return models.NoSignal(symbol, m.Variant(), "warming up")
	}
	var buy, sell float64
	var buyWhy, sellWhy []string

	switch {
	case st.RSI < rsiOversold:
		buy += 0.35
		buyWhy = append(buyWhy, fmt.Sprintf("rsi oversold %.1f", st.RSI))
		if st.RSI >= 22 {
			buy += 0.05
		}
	case st.RSI > rsiOverbought:
		sell += 0.35
		sellWhy = append(sellWhy, fmt.Sprintf("rsi overbought %.1f", st.RSI))
		if st.RSI <= 78 {
			sell += 0.05
		}
	}

	switch {
	case st.EMAFast > st.EMASlow:
		buy += 0.20
		buyWhy = append(buyWhy, "ema bullish")
		if st.Price > st.EMAFast && st.Price > st.EMASlow {
			buy += 0.05
		}
	case st.EMAFast < st.EMASlow:
		sell += 0.20
		sellWhy = append(sellWhy, "ema bearish")
		if st.Price < st.EMAFast && st.Price < st.EMASlow {
			sell += 0.05
		}
	}

	switch {
	case st.MACDHist > 0:
		buy += 0.15
		buyWhy = append(buyWhy, "macd positive")
	case st.MACDHist < 0:
		sell += 0.15
		sellWhy = append(sellWhy, "macd negative")
	}

	switch {
	case st.StochK < stochLow:
		buy += 0.10
		buyWhy = append(buyWhy, "stoch oversold")
	case st.StochK > stochHigh:
		sell += 0.10
		sellWhy = append(sellWhy, "stoch overbought")
	}

	if st.ADX >= adxStrong {
		switch {
		case buy > sell:
			buy += 0.15
			buyWhy = append(buyWhy, fmt.Sprintf("adx %.1f", st.ADX))
		case sell > buy:
			sell += 0.15
			sellWhy = append(sellWhy, fmt.Sprintf("adx %.1f", st.ADX))
		}
	}

	mult := volatilityMultiplier(st)
	sig := models.Signal{
		Symbol:   symbol,
		Strategy: m.Variant(),
		Price:    st.Price,
		Components: map[string]float64{
			"buy_score":  buy,
			"sell_score": sell,
			"volatility": mult,
		},
	}
	switch {
	case buy > sell:
		sig.Direction = models.DirectionCall
		sig.Confidence = math.Min(buy*mult, 1)
		sig.Reason = strings.Join(buyWhy, ", ")
	case sell > buy:
		sig.Direction = models.DirectionPut
		sig.Confidence = math.Min(sell*mult, 1)
		sig.Reason = strings.Join(sellWhy, ", ")
	default:
		sig.Direction = models.DirectionNone
		sig.Reason = "no side leads"
	}
	return finalize(sig, m.min)
}

// volatilityMultiplier maps ATR as a percent of price to a confidence scale.
func volatilityMultiplier(st models.IndicatorState) float64 {
	if st.Price <= 0 {
		return 1
	}
	atrPct := st.ATR / st.Price * 100
	switch {
	case atrPct < 0.01:
		return 0.5
	case atrPct < 0.1:
		return 0.7
	case atrPct < 1.0:
		return 1.0
	case atrPct < 2.5:
		return 0.85
	default:
		return 0.7
	}
}
