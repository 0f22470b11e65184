package risk

import (
	"fmt"
	"math"

	"BinPull/internal/domain/errs"
	"BinPull/internal/domain/models"
)

const resultWindow = 20

// Multipliers by trailing win rate.
const (
	MultiplierHot    = 2.5
	MultiplierNormal = 2.1
	MultiplierCold   = 1.8
)

// MartingaleState is the level and rolling result window of one session.
// It is owned by the session goroutine.
type MartingaleState struct {
	Level   int
	results []bool
}

// Multiplier picks the step factor from the last 20 results. Until the window
// is full the normal factor applies.
func (m *MartingaleState) Multiplier() float64 {
	if len(m.results) < resultWindow {
		return MultiplierNormal
	}
	wins := 0
	for _, w := range m.results {
		if w {
			wins++
		}
	}
	rate := float64(wins) / float64(len(m.results))
	switch {
	case rate > 0.60:
		return MultiplierHot
	case rate >= 0.40:
		return MultiplierNormal
	default:
		return MultiplierCold
	}
}

// Stake returns base × multiplier^level rounded to cents.
func (m *MartingaleState) Stake(base float64) float64 {
	return roundCents(base * math.Pow(m.Multiplier(), float64(m.Level)))
}

// Record applies a settled result. A loss past the top level is refused and
// leaves the level at the maximum.
func (m *MartingaleState) Record(win bool) error {
	m.results = append(m.results, win)
	if len(m.results) > resultWindow {
		m.results = m.results[len(m.results)-resultWindow:]
	}
	if win {
		m.Level = 0
		return nil
	}
	if m.Level+1 > models.MaxMartingaleLevel {
		return errs.Newf(errs.ErrRiskLimitExceeded, "risk.record", "martingale level would exceed %d", models.MaxMartingaleLevel)
	}
	m.Level++
	return nil
}

// Results returns a copy of the rolling window, oldest first.
func (m *MartingaleState) Results() []bool {
	return append([]bool(nil), m.results...)
}

// Restore loads a persisted level and window.
func (m *MartingaleState) Restore(level int, results []bool) error {
	if level < 0 || level > models.MaxMartingaleLevel {
		return fmt.Errorf("risk: level %d out of range", level)
	}
	m.Level = level
	m.results = append([]bool(nil), last(results, resultWindow)...)
	return nil
}

func last(xs []bool, n int) []bool {
	if len(xs) <= n {
		return xs
	}
	return xs[len(xs)-n:]
}

func roundCents(x float64) float64 {
	return math.Round(x*100) / 100
}
