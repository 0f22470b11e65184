package strategy

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"BinPull/internal/domain/models"
)

const (
	padMinTicks        = 50
	padHistory         = 500
	padHot             = 0.15
	padCold            = 0.05
	padStreakMin       = 3
	padParityMin       = 0.25
	padZoneWindow      = 20
	padZoneMin         = 0.30
	padPayoutOverUnder = 0.95
	padPayoutParity    = 0.95
	padPayoutDiffers   = 0.10
	padPayoutMatches   = 9.0
)

// DigitStats summarises the last digits of a price window.
type DigitStats struct {
	Total       int
	Freq        [10]float64
	EvenRatio   float64
	Streak      int
	StreakDigit int
	Digits      []int
}

// NewDigitStats extracts the last digit of every price and counts them.
func NewDigitStats(prices []float64, decimals int) DigitStats {
	ds := DigitStats{Total: len(prices), Digits: make([]int, len(prices))}
	if len(prices) == 0 {
		for d := range ds.Freq {
			ds.Freq[d] = 0.1
		}
		ds.EvenRatio = 0.5
		return ds
	}
	var counts [10]int
	even := 0
	for i, p := range prices {
		d := LastDigit(p, decimals)
		ds.Digits[i] = d
		counts[d]++
		if d%2 == 0 {
			even++
		}
	}
	for d, c := range counts {
		ds.Freq[d] = float64(c) / float64(len(prices))
	}
	ds.EvenRatio = float64(even) / float64(len(prices))

	ds.StreakDigit = ds.Digits[len(ds.Digits)-1]
	for i := len(ds.Digits) - 1; i >= 0 && ds.Digits[i] == ds.StreakDigit; i-- {
		ds.Streak++
	}
	return ds
}

// Hot lists digits at or above the hot frequency.
func (ds DigitStats) Hot() []int {
	var out []int
	for d, f := range ds.Freq {
		if f >= padHot {
			out = append(out, d)
		}
	}
	return out
}

// Cold lists digits at or below the cold frequency.
func (ds DigitStats) Cold() []int {
	var out []int
	for d, f := range ds.Freq {
		if f <= padCold {
			out = append(out, d)
		}
	}
	return out
}

// DigitPad trades the full digit contract family from last-digit frequency,
// parity, streak and zone patterns. Candidates are ranked by confidence
// weighted with the contract payout.
type DigitPad struct {
	min      float64
	decimals int
}

func NewDigitPad() *DigitPad { return &DigitPad{min: 0.60, decimals: 2} }

func (p *DigitPad) Variant() models.Variant { return models.VariantDigitPad }
func (p *DigitPad) MinConfidence() float64  { return p.min }

type padCandidate struct {
	ct      models.ContractType
	barrier string
	conf    float64
	payout  float64
	reason  string
}

func (c padCandidate) rank() float64 { return c.conf * (1 + c.payout/10) }

func (p *DigitPad) Evaluate(symbol string, st models.IndicatorState, recent []float64) models.Signal {
	if len(recent) < padMinTicks {
		return models.NoSignal(symbol, p.Variant(), fmt.Sprintf("need %d ticks", padMinTicks))
	}
	w := last(recent, padHistory)
	ds := NewDigitStats(w, p.decimals)
	cands := p.candidates(ds)

	valid := cands[:0]
	for _, c := range cands {
		if c.conf >= p.min {
			valid = append(valid, c)
		}
	}
	sort.SliceStable(valid, func(i, j int) bool { return valid[i].rank() > valid[j].rank() })

	sig := models.NoSignal(symbol, p.Variant(), "no digit pattern")
	sig.Price = w[len(w)-1]
	if len(valid) > 0 {
		best := valid[0]
		sig.Direction = padDirection(best.ct)
		sig.ContractType = best.ct
		sig.Barrier = best.barrier
		sig.Confidence = best.conf
		sig.Reason = best.reason
	}
	sig.Components = map[string]float64{
		"even_ratio": ds.EvenRatio,
		"streak":     float64(ds.Streak),
		"hot":        float64(len(ds.Hot())),
		"cold":       float64(len(ds.Cold())),
		"candidates": float64(len(valid)),
	}
	return finalize(sig, p.min)
}

func (p *DigitPad) candidates(ds DigitStats) []padCandidate {
	var out []padCandidate

	for _, d := range ds.Cold() {
		f := ds.Freq[d]
		out = append(out, padCandidate{
			ct: models.ContractDigitDiff, barrier: strconv.Itoa(d),
			conf: math.Min(0.90-f*5, 0.85), payout: padPayoutDiffers,
			reason: fmt.Sprintf("digit %d cold %.1f%%", d, f*100),
		})
	}
	// Matches pay well but never clear the minimum; they stay in the pool
	// so the ranking sees them.
	for _, d := range ds.Hot() {
		f := ds.Freq[d]
		out = append(out, padCandidate{
			ct: models.ContractDigitMatch, barrier: strconv.Itoa(d),
			conf: math.Min(0.10+(f-0.10)*2, 0.20), payout: padPayoutMatches,
			reason: fmt.Sprintf("digit %d hot %.1f%%", d, f*100),
		})
	}

	odd := 1 - ds.EvenRatio
	if imb := math.Abs(ds.EvenRatio - odd); imb >= padParityMin {
		c := padCandidate{conf: math.Min(0.55+imb/2, 0.70), payout: padPayoutParity}
		if ds.EvenRatio > odd {
			c.ct, c.reason = models.ContractDigitOdd, fmt.Sprintf("even dominant %.1f%%", ds.EvenRatio*100)
		} else {
			c.ct, c.reason = models.ContractDigitEven, fmt.Sprintf("odd dominant %.1f%%", odd*100)
		}
		out = append(out, c)
	}

	if ds.Streak >= padStreakMin && ds.Total >= 5 {
		c := padCandidate{conf: math.Min(0.55+float64(ds.Streak-padStreakMin)*0.05, 0.70), payout: padPayoutOverUnder}
		c.reason = fmt.Sprintf("digit %d repeated %d times", ds.StreakDigit, ds.Streak)
		if ds.StreakDigit <= 4 {
			c.ct, c.barrier = models.ContractDigitOver, "4"
		} else {
			c.ct, c.barrier = models.ContractDigitUnder, "5"
		}
		out = append(out, c)
	}

	if len(ds.Digits) >= padZoneWindow {
		low := 0
		for _, d := range ds.Digits[len(ds.Digits)-padZoneWindow:] {
			if d <= 4 {
				low++
			}
		}
		lowRatio := float64(low) / padZoneWindow
		if imb := math.Abs(2*lowRatio - 1); imb >= padZoneMin {
			c := padCandidate{conf: math.Min(0.55+imb/2, 0.70), payout: padPayoutOverUnder}
			if lowRatio > 0.5 {
				c.ct, c.barrier = models.ContractDigitOver, "4"
				c.reason = fmt.Sprintf("low zone %.0f%% of last %d", lowRatio*100, padZoneWindow)
			} else {
				c.ct, c.barrier = models.ContractDigitUnder, "5"
				c.reason = fmt.Sprintf("high zone %.0f%% of last %d", (1-lowRatio)*100, padZoneWindow)
			}
			out = append(out, c)
		}
	}
	return out
}

// padDirection gives digit contracts a nominal direction so they flow through
// the same pipeline as rise/fall signals.
func padDirection(ct models.ContractType) models.Direction {
	switch ct {
	case models.ContractDigitUnder, models.ContractDigitOdd, models.ContractDigitMatch:
		return models.DirectionPut
	default:
		return models.DirectionCall
	}
}
