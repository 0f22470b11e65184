package models

import (
	"fmt"
	"time"
)

// AccountType distinguishes practice from real money.
type AccountType string

const (
	AccountDemo AccountType = "DEMO"
	AccountReal AccountType = "REAL"
)

// SessionPhase is the orchestrator state.
type SessionPhase string

const (
	PhaseIdle       SessionPhase = "IDLE"
	PhasePreloading SessionPhase = "PRELOADING"
	PhaseActive     SessionPhase = "ACTIVE"
	PhasePaused     SessionPhase = "PAUSED"
	PhaseStopped    SessionPhase = "STOPPED"
)

// ConnectionPhase is the venue link state.
type ConnectionPhase string

const (
	ConnDisconnected ConnectionPhase = "DISCONNECTED"
	ConnConnecting   ConnectionPhase = "CONNECTING"
	ConnConnected    ConnectionPhase = "CONNECTED"
	ConnReconnecting ConnectionPhase = "RECONNECTING"
)

// MaxMartingaleLevel bounds loss recovery.
const MaxMartingaleLevel = 5

// SessionState is the durable snapshot of orchestrator and risk state.
type SessionState struct {
	SessionID         string      `json:"session_id"`
	UserID            string      `json:"user_id"`
	Balance           float64     `json:"balance"`
	StartingBalance   float64     `json:"starting_balance"`
	AccountType       AccountType `json:"account_type"`
	MartingaleLevel   int         `json:"martingale_level"`
	ConsecutiveLosses int         `json:"consecutive_losses"`
	TradeCount        int         `json:"trade_count"`
	Wins              int         `json:"wins"`
	Losses            int         `json:"losses"`
	TotalProfit       float64     `json:"total_profit"`
	DailyLoss         float64     `json:"daily_loss"`
	DailyLossDate     string      `json:"daily_loss_date"`
	RecentResults     []bool      `json:"recent_results,omitempty"`
	SavedAt           time.Time   `json:"saved_at"`
}

// Validate checks snapshot age and internal consistency.
func (s SessionState) Validate(now time.Time, maxAge time.Duration) error {
	if s.SavedAt.IsZero() {
		return fmt.Errorf("saved_at missing")
	}
	if age := now.Sub(s.SavedAt); age > maxAge {
		return fmt.Errorf("snapshot stale: age %s > %s", age.Truncate(time.Second), maxAge)
	}
	if s.MartingaleLevel < 0 || s.MartingaleLevel > MaxMartingaleLevel {
		return fmt.Errorf("martingale level %d outside [0,%d]", s.MartingaleLevel, MaxMartingaleLevel)
	}
	if s.TradeCount < 0 {
		return fmt.Errorf("trade_count negative: %d", s.TradeCount)
	}
	if s.ConsecutiveLosses < 0 {
		return fmt.Errorf("consecutive_losses negative: %d", s.ConsecutiveLosses)
	}
	if s.Wins < 0 || s.Losses < 0 || s.Wins+s.Losses != s.TradeCount {
		return fmt.Errorf("wins %d + losses %d != trade_count %d", s.Wins, s.Losses, s.TradeCount)
	}
	if s.Balance < 0 {
		return fmt.Errorf("balance negative: %.2f", s.Balance)
	}
	if s.AccountType != AccountDemo && s.AccountType != AccountReal {
		return fmt.Errorf("unknown account type %q", s.AccountType)
	}
	return nil
}

// SessionStats are running analytics for one session.
type SessionStats struct {
	Wins              int     `json:"wins"`
	Losses            int     `json:"losses"`
	TotalProfit       float64 `json:"total_profit"`
	PeakBalance       float64 `json:"peak_balance"`
	MaxDrawdown       float64 `json:"max_drawdown"`
	LongestWinStreak  int     `json:"longest_win_streak"`
	LongestLossStreak int     `json:"longest_loss_streak"`
	Recoveries        int     `json:"recoveries"`
}

// WinRate returns wins over settled trades, or 0 when none settled.
func (s SessionStats) WinRate() float64 {
	n := s.Wins + s.Losses
	if n == 0 {
		return 0
	}
	return float64(s.Wins) / float64(n)
}

// SessionStatus is a point-in-time view of a session.
type SessionStatus struct {
	SessionID       string       `json:"session_id"`
	UserID          string       `json:"user_id"`
	Phase           SessionPhase `json:"phase"`
	StopReason      string       `json:"stop_reason,omitempty"`
	AccountType     AccountType  `json:"account_type"`
	Strategy        Variant      `json:"strategy"`
	Balance         float64      `json:"balance"`
	BaseStake       float64      `json:"base_stake"`
	MartingaleLevel int          `json:"martingale_level"`
	TradeCount      int          `json:"trade_count"`
	TargetTrades    int          `json:"target_trades"`
	OpenPositions   []Position   `json:"open_positions"`
	Stats           SessionStats `json:"stats"`
	WinRate         float64      `json:"win_rate"`
}
