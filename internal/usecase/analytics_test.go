package usecase

import (
	"testing"

	"BinPull/internal/domain/models"
)

func trade(result models.TradeResult, profit float64, level int) models.Trade {
	return models.Trade{Position: models.Position{MartingaleLevel: level}, Result: result, Profit: profit}
}

func TestAnalyticsStreaksAndDrawdown(t *testing.T) {
	a := NewAnalytics(100)
	a.Record(trade(models.ResultWin, 0.9, 0), 100.9)
	a.Record(trade(models.ResultLoss, -1, 0), 99.9)
	a.Record(trade(models.ResultLoss, -2.1, 1), 97.8)
	a.Record(trade(models.ResultLoss, -4.41, 2), 93.39)
	a.Record(trade(models.ResultWin, 8.4, 3), 101.79)
	a.Record(trade(models.ResultWin, 0.9, 0), 102.69)

	s := a.Stats()
	if s.Wins != 3 || s.Losses != 3 {
		t.Fatalf("wins/losses = %d/%d", s.Wins, s.Losses)
	}
	if s.LongestLossStreak != 3 || s.LongestWinStreak != 2 {
		t.Fatalf("streaks win=%d loss=%d", s.LongestWinStreak, s.LongestLossStreak)
	}
	if s.Recoveries != 1 {
		t.Fatalf("recoveries = %d, want 1", s.Recoveries)
	}
	if s.PeakBalance != 102.69 {
		t.Fatalf("peak = %.2f", s.PeakBalance)
	}
	if s.MaxDrawdown != 7.51 {
		t.Fatalf("max drawdown = %.2f, want 7.51", s.MaxDrawdown)
	}
	if s.TotalProfit != 2.69 {
		t.Fatalf("total profit = %.2f", s.TotalProfit)
	}
	if got := s.WinRate(); got != 0.5 {
		t.Fatalf("win rate = %.2f", got)
	}
}

func TestAnalyticsIgnoresZeroBalance(t *testing.T) {
	a := NewAnalytics(0)
	a.ObserveBalance(0)
	a.ObserveBalance(50)
	a.ObserveBalance(45)
	if s := a.Stats(); s.PeakBalance != 50 || s.MaxDrawdown != 5 {
		t.Fatalf("stats = %+v", s)
	}
}
