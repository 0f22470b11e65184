package models

import "time"

// Tick is one price observation for a symbol.
type Tick struct {
	Symbol string    `json:"symbol"`
	Price  float64   `json:"price"`
	Epoch  int64     `json:"epoch"`
	At     time.Time `json:"-"`
}

// Time returns the tick timestamp, preferring At over Epoch.
func (t Tick) Time() time.Time {
	if !t.At.IsZero() {
		return t.At
	}
	return time.Unix(t.Epoch, 0)
}

// Candle represents an OHLC record folded from ticks.
type Candle struct {
	Bucket time.Time
	Symbol string
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
	Ticks  int
}

// IndicatorState is a read-only snapshot of the rolling technical state of one symbol.
type IndicatorState struct {
	Symbol string
	Price  float64
	Count  int
	Warm   bool

	EMAFast     float64
	EMASlow     float64
	EMAFastPrev float64

	RSI float64

	MACD         float64
	MACDSignal   float64
	MACDHist     float64
	MACDHistPrev float64

	StochK     float64
	StochD     float64
	StochKPrev float64
	StochDPrev float64

	ADX     float64
	PlusDI  float64
	MinusDI float64

	BBUpper  float64
	BBMiddle float64
	BBLower  float64

	ATR float64
}

// EMASlopePct is the percent change of the fast EMA over the last update.
func (s IndicatorState) EMASlopePct() float64 {
	if s.EMAFastPrev == 0 {
		return 0
	}
	return (s.EMAFast - s.EMAFastPrev) / s.EMAFastPrev * 100
}

// TrendUp reports whether the fast EMA is above the slow EMA.
func (s IndicatorState) TrendUp() bool { return s.EMAFast > s.EMASlow }

// VolatilityZone buckets ATR as a percent of price.
func (s IndicatorState) VolatilityZone() string {
	if s.Price <= 0 || s.ATR <= 0 {
		return "UNKNOWN"
	}
	pct := s.ATR / s.Price * 100
	switch {
	case pct < 0.1:
		return "LOW"
	case pct < 1.0:
		return "NORMAL"
	case pct < 2.5:
		return "HIGH"
	default:
		return "EXTREME"
	}
}
