package indicators

import (
	"math"

	"BinPull/internal/domain/models"
)

// Periods configures every indicator of a State.
type Periods struct {
	EMAFast     int
	EMASlow     int
	RSI         int
	MACDFast    int
	MACDSlow    int
	MACDSignal  int
	Stoch       int
	StochSmooth int
	ADX         int
	BB          int
	BBStdDev    float64
	ATR         int
}

func DefaultPeriods() Periods {
	return Periods{
		EMAFast: 9, EMASlow: 21,
		RSI:      14,
		MACDFast: 12, MACDSlow: 26, MACDSignal: 9,
		Stoch: 14, StochSmooth: 3,
		ADX: 14,
		BB:  20, BBStdDev: 2,
		ATR: 14,
	}
}

// State is the incremental indicator state of one symbol. Every update
// costs O(1) apart from the bounded stochastic window scan.
type State struct {
	p Periods

	count    int
	last     float64
	prevHigh float64
	prevLow  float64

	emaFast, emaSlow             ema
	macdFast, macdSlow, macdSigl ema

	gain, loss wilder

	highs, lows *window
	kWin        *window

	trADX, plusDM, minusDM, dx wilder
	atr                        wilder

	bb *window

	snap models.IndicatorState
}

func NewState(symbol string, p Periods) *State {
	s := &State{
		p:        p,
		emaFast:  newEMA(p.EMAFast),
		emaSlow:  newEMA(p.EMASlow),
		macdFast: newEMA(p.MACDFast),
		macdSlow: newEMA(p.MACDSlow),
		macdSigl: newEMA(p.MACDSignal),
		gain:     newWilder(p.RSI),
		loss:     newWilder(p.RSI),
		highs:    newWindow(p.Stoch),
		lows:     newWindow(p.Stoch),
		kWin:     newWindow(p.StochSmooth),
		trADX:    newWilder(p.ADX),
		plusDM:   newWilder(p.ADX),
		minusDM:  newWilder(p.ADX),
		dx:       newWilder(p.ADX),
		atr:      newWilder(p.ATR),
		bb:       newWindow(p.BB),
	}
	s.snap.Symbol = symbol
	s.snap.RSI = 50
	s.snap.StochK = 50
	s.snap.StochD = 50
	return s
}

// Snapshot returns the current values.
func (s *State) Snapshot() models.IndicatorState { return s.snap }

// UpdateTick folds a price whose high/low are derived from the previous price.
func (s *State) UpdateTick(price float64) models.IndicatorState {
	high, low := price, price
	if s.count > 0 {
		high = math.Max(price, s.last)
		low = math.Min(price, s.last)
	}
	return s.apply(high, low, price)
}

// UpdateBar folds a full OHLC bar.
func (s *State) UpdateBar(high, low, close float64) models.IndicatorState {
	return s.apply(high, low, close)
}

func (s *State) apply(high, low, price float64) models.IndicatorState {
	first := s.count == 0
	s.count++
	snap := &s.snap
	snap.Price = price
	snap.Count = s.count

	snap.EMAFastPrev = snap.EMAFast
	if first {
		snap.EMAFastPrev = price
	}
	snap.EMAFast = s.emaFast.update(price)
	snap.EMASlow = s.emaSlow.update(price)

	fast := s.macdFast.update(price)
	slow := s.macdSlow.update(price)
	if s.macdSlow.ready() {
		line := fast - slow
		snap.MACD = line
		sig := s.macdSigl.update(line)
		if s.macdSigl.ready() {
			snap.MACDHistPrev = snap.MACDHist
			snap.MACDSignal = sig
			snap.MACDHist = line - sig
		}
	}

	if !first {
		change := price - s.last
		s.gain.update(math.Max(change, 0))
		s.loss.update(math.Max(-change, 0))
		if s.gain.ready() {
			snap.RSI = rsi(s.gain.value, s.loss.value)
		}

		tr := math.Max(high-low, math.Max(math.Abs(high-s.last), math.Abs(low-s.last)))
		up := high - s.prevHigh
		down := s.prevLow - low
		pdm, mdm := 0.0, 0.0
		if up > down && up > 0 {
			pdm = up
		}
		if down > up && down > 0 {
			mdm = down
		}
		trS := s.trADX.update(tr)
		s.plusDM.update(pdm)
		s.minusDM.update(mdm)
		if s.trADX.ready() && trS > 0 {
			snap.PlusDI = 100 * s.plusDM.value / trS
			snap.MinusDI = 100 * s.minusDM.value / trS
			dx := 0.0
			if sum := snap.PlusDI + snap.MinusDI; sum > 0 {
				dx = 100 * math.Abs(snap.PlusDI-snap.MinusDI) / sum
			}
			snap.ADX = s.dx.update(dx)
		}
		snap.ATR = s.atr.update(tr)
	}

	s.highs.push(high)
	s.lows.push(low)
	hh, ll := s.highs.max(), s.lows.min()
	k := 50.0
	if hh > ll {
		k = (price - ll) / (hh - ll) * 100
	}
	snap.StochKPrev, snap.StochDPrev = snap.StochK, snap.StochD
	snap.StochK = k
	s.kWin.push(k)
	snap.StochD = s.kWin.mean()

	s.bb.push(price)
	mid, sd := s.bb.mean(), s.bb.std()
	snap.BBMiddle = mid
	snap.BBUpper = mid + s.p.BBStdDev*sd
	snap.BBLower = mid - s.p.BBStdDev*sd

	snap.Warm = s.emaSlow.ready() && s.macdSigl.ready() && s.gain.ready() && s.dx.ready() && s.bb.full()

	s.last = price
	s.prevHigh = high
	s.prevLow = low
	return *snap
}

func rsi(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}
