package usecase

import (
	"math"

	"BinPull/internal/domain/models"
)

// Analytics accumulates running statistics for one session. It is owned by
// the session loop.
type Analytics struct {
	stats      models.SessionStats
	winStreak  int
	lossStreak int
}

func NewAnalytics(startBalance float64) *Analytics {
	return &Analytics{stats: models.SessionStats{PeakBalance: startBalance}}
}

// Record folds a settled trade. A win after at least one loss at a raised
// martingale level counts as a recovery.
func (a *Analytics) Record(t models.Trade, balance float64) {
	a.stats.TotalProfit = math.Round((a.stats.TotalProfit+t.Profit)*100) / 100
	if t.IsWin() {
		a.stats.Wins++
		a.winStreak++
		a.lossStreak = 0
		if t.MartingaleLevel > 0 {
			a.stats.Recoveries++
		}
	} else {
		a.stats.Losses++
		a.lossStreak++
		a.winStreak = 0
	}
	a.stats.LongestWinStreak = max(a.stats.LongestWinStreak, a.winStreak)
	a.stats.LongestLossStreak = max(a.stats.LongestLossStreak, a.lossStreak)
	a.ObserveBalance(balance)
}

// ObserveBalance tracks the peak and the deepest fall from it.
func (a *Analytics) ObserveBalance(b float64) {
	if b <= 0 {
		return
	}
	if b > a.stats.PeakBalance {
		a.stats.PeakBalance = b
	}
	if dd := a.stats.PeakBalance - b; dd > a.stats.MaxDrawdown {
		a.stats.MaxDrawdown = math.Round(dd*100) / 100
	}
}

func (a *Analytics) Stats() models.SessionStats { return a.stats }
