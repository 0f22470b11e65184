package strategy

import (
	"fmt"
	"math"

	"BinPull/internal/domain/models"
)

const (
	ldpMinTicks     = 50
	ldpHistory      = 500
	ldpImbalanceMin = 0.20
	ldpStreakMin    = 3
)

// LDP reads the last digit of each quote and bets on reversion between the
// low (0-4) and high (5-9) zones with over/under digit contracts.
type LDP struct {
	min      float64
	decimals int
}

// LDPOption customises the digit strategy.
type LDPOption func(*LDP)

// WithDecimals sets the quote precision used to extract the last digit.
func WithDecimals(n int) LDPOption {
	return func(l *LDP) {
		if n >= 0 {
			l.decimals = n
		}
	}
}

func NewLDP(opts ...LDPOption) *LDP {
	l := &LDP{min: 0.55, decimals: 2}
	for _, o := range opts {
		o(l)
	}
	return l
}

func (l *LDP) Variant() models.Variant { return models.VariantLDP }
func (l *LDP) MinConfidence() float64  { return l.min }

// LastDigit extracts the final quoted digit of a price.
func LastDigit(price float64, decimals int) int {
	scaled := int64(math.Round(price * math.Pow10(decimals)))
	if scaled < 0 {
		scaled = -scaled
	}
	return int(scaled % 10)
}

func (l *LDP) Evaluate(symbol string, st models.IndicatorState, recent []float64) models.Signal {
	if len(recent) < ldpMinTicks {
		return models.NoSignal(symbol, l.Variant(), fmt.Sprintf("need %d ticks", ldpMinTicks))
	}
	w := last(recent, ldpHistory)
	lowCount := 0
	digits := make([]int, len(w))
	for i, p := range w {
		digits[i] = LastDigit(p, l.decimals)
		if digits[i] <= 4 {
			lowCount++
		}
	}
	lowPct := float64(lowCount) / float64(len(w))
	highPct := 1 - lowPct
	imbalance := math.Abs(lowPct - highPct)

	best := models.NoSignal(symbol, l.Variant(), "no digit pattern")
	best.Price = w[len(w)-1]

	if imbalance >= ldpImbalanceMin {
		conf := math.Min(0.50+imbalance, 0.75)
		if lowPct > highPct {
			best = l.signal(symbol, best.Price, true, conf, fmt.Sprintf("low zone dominant %.0f%%", lowPct*100))
		} else {
			best = l.signal(symbol, best.Price, false, conf, fmt.Sprintf("high zone dominant %.0f%%", highPct*100))
		}
	}

	lastLow := digits[len(digits)-1] <= 4
	run := 0
	for i := len(digits) - 1; i >= 0 && (digits[i] <= 4) == lastLow; i-- {
		run++
	}
	if run >= ldpStreakMin {
		conf := math.Min(0.55+float64(run-ldpStreakMin)*0.05, 0.70)
		if conf > best.Confidence {
			zone := "high"
			if lastLow {
				zone = "low"
			}
			best = l.signal(symbol, best.Price, lastLow, conf, fmt.Sprintf("%d %s digits in a row", run, zone))
		}
	}

	if best.Components == nil {
		best.Components = map[string]float64{}
	}
	best.Components["low_pct"] = lowPct
	best.Components["imbalance"] = imbalance
	best.Components["zone_streak"] = float64(run)
	return finalize(best, l.min)
}

// signal builds an over/under candidate. A low-zone bias expects the next digit
// above 4; a high-zone bias expects it below 5.
func (l *LDP) signal(symbol string, price float64, over bool, conf float64, reason string) models.Signal {
	sig := models.Signal{
		Symbol:     symbol,
		Strategy:   l.Variant(),
		Price:      price,
		Confidence: conf,
		Reason:     reason,
		Components: map[string]float64{},
	}
	if over {
		sig.Direction = models.DirectionCall
		sig.ContractType = models.ContractDigitOver
		sig.Barrier = "4"
	} else {
		sig.Direction = models.DirectionPut
		sig.ContractType = models.ContractDigitUnder
		sig.Barrier = "5"
	}
	return sig
}
