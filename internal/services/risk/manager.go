package risk

import (
	"fmt"
	"time"

	"BinPull/internal/domain/errs"
	"BinPull/internal/domain/models"
	"BinPull/pkg/util"
)

// Limits are copied into a Manager at session start and never change after.
type Limits struct {
	MaxSessionLossPct    float64
	MaxConsecutiveLosses int
	DailyLossUSD         float64 // REAL accounts only
	MinStake             float64
}

func DefaultLimits() Limits {
	return Limits{
		MaxSessionLossPct:    0.20,
		MaxConsecutiveLosses: 5,
		DailyLossUSD:         50,
		MinStake:             0.50,
	}
}

type Option func(*Manager)

// WithClock overrides the time source used for the daily loss reset.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager sizes stakes and enforces the hard stops of one session.
type Manager struct {
	limits Limits
	mg     MartingaleState
	halted error
	now    func() time.Time
}

func NewManager(limits Limits, opts ...Option) *Manager {
	m := &Manager{limits: limits, now: time.Now}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Limits returns the session limits.
func (m *Manager) Limits() Limits { return m.limits }

// Level is the current martingale level.
func (m *Manager) Level() int { return m.mg.Level }

// Multiplier is the current martingale step factor.
func (m *Manager) Multiplier() float64 { return m.mg.Multiplier() }

// Halted returns the stop that ended trading, or nil.
func (m *Manager) Halted() error { return m.halted }

// Restore resumes from a validated snapshot.
func (m *Manager) Restore(s models.SessionState) error {
	return m.mg.Restore(s.MartingaleLevel, s.RecentResults)
}

// Authorize returns the stake for the next trade.
func (m *Manager) Authorize(base float64, s models.SessionState) (float64, error) {
	if m.halted != nil {
		return 0, m.halted
	}
	if err := m.checkStops(&s); err != nil {
		return 0, err
	}
	if s.Balance < m.limits.MinStake || s.Balance < base {
		return 0, errs.Newf(errs.ErrInsufficientBalance, "risk.authorize", "balance %.2f below base %.2f", s.Balance, base)
	}
	stake := m.mg.Stake(base)
	if stake < m.limits.MinStake {
		return 0, fmt.Errorf("risk.authorize: stake %.2f below venue minimum %.2f", stake, m.limits.MinStake)
	}
	if stake > s.Balance {
		return 0, errs.Newf(errs.ErrInsufficientBalance, "risk.authorize", "stake %.2f exceeds balance %.2f", stake, s.Balance)
	}
	return stake, nil
}

// RecordResult advances or resets the martingale level.
func (m *Manager) RecordResult(win bool) error {
	if err := m.mg.Record(win); err != nil {
		m.halted = err
		return err
	}
	return nil
}

// Settle folds a trade into the session counters and re-checks the hard stops.
// A non-nil error means the session must stop.
func (m *Manager) Settle(s *models.SessionState, t models.Trade) error {
	m.rollDay(s)

	s.TradeCount++
	s.TotalProfit = roundCents(s.TotalProfit + t.Profit)
	if t.IsWin() {
		s.Wins++
		s.ConsecutiveLosses = 0
	} else {
		s.Losses++
		s.ConsecutiveLosses++
		s.DailyLoss = roundCents(s.DailyLoss - t.Profit)
	}

	recErr := m.RecordResult(t.IsWin())
	s.MartingaleLevel = m.mg.Level
	s.RecentResults = m.mg.Results()
	if recErr != nil {
		return recErr
	}
	return m.checkStops(s)
}

// checkStops halts on session drawdown, a losing streak or the REAL daily cap.
func (m *Manager) checkStops(s *models.SessionState) error {
	m.rollDay(s)
	var err error
	switch {
	case s.StartingBalance > 0 && -s.TotalProfit >= s.StartingBalance*m.limits.MaxSessionLossPct:
		err = errs.Newf(errs.ErrRiskLimitExceeded, "risk.stop", "session loss %.2f reached %.0f%% of %.2f",
			-s.TotalProfit, m.limits.MaxSessionLossPct*100, s.StartingBalance)
	case m.limits.MaxConsecutiveLosses > 0 && s.ConsecutiveLosses >= m.limits.MaxConsecutiveLosses:
		err = errs.Newf(errs.ErrRiskLimitExceeded, "risk.stop", "%d consecutive losses", s.ConsecutiveLosses)
	case s.AccountType == models.AccountReal && s.DailyLoss >= m.limits.DailyLossUSD:
		err = errs.Newf(errs.ErrRiskLimitExceeded, "risk.stop", "daily loss %.2f reached %.2f", s.DailyLoss, m.limits.DailyLossUSD)
	}
	if err != nil {
		m.halted = err
	}
	return err
}

// rollDay zeroes the daily loss when the UTC date changes.
func (m *Manager) rollDay(s *models.SessionState) {
	today := util.UTCDay(m.now())
	if s.DailyLossDate != today {
		s.DailyLossDate = today
		s.DailyLoss = 0
	}
}
