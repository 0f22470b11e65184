package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"BinPull/internal/domain/models"
	domrepo "BinPull/internal/domain/repository"
	"BinPull/internal/eventbus"
	"BinPull/internal/service/breaker"
	"BinPull/internal/service/ratelimit"
	"BinPull/internal/services/confluence"
	"BinPull/pkg/logger"
	"BinPull/pkg/util"
)

var (
	ErrSessionExists   = errors.New("session already running")
	ErrSessionNotFound = errors.New("session not found")
)

// ManagerConfig holds the defaults every new session starts from.
type ManagerConfig struct {
	Defaults      SessionConfig
	Executor      ExecutorConfig
	Breaker       []breaker.Option
	Confluence    []confluence.Option
	TradeCooldown time.Duration
}

type ManagerDeps struct {
	Venues      domrepo.VenueFactory
	Credentials domrepo.CredentialProvider
	Store       domrepo.SessionStore
	Lock        domrepo.SessionLock
	Trades      domrepo.TradeArchive
	Ticks       domrepo.TickArchive
	Candles     domrepo.CandleArchive
	Bus         *eventbus.Bus
	Metrics     domrepo.Metrics
	Log         *logger.Logger
	Archiver    *TickArchiver
}

// SessionManager runs one orchestrator per user. Each session owns its venue
// link, context and goroutine.
type SessionManager struct {
	cfg     ManagerConfig
	deps    ManagerDeps
	log     *logger.Logger
	limiter *ratelimit.Limiter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewSessionManager(cfg ManagerConfig, deps ManagerDeps) *SessionManager {
	if deps.Metrics == nil {
		deps.Metrics = domrepo.NopMetrics{}
	}
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	if deps.Bus == nil {
		deps.Bus = eventbus.New(eventbus.WithMetrics(deps.Metrics))
	}
	if cfg.TradeCooldown <= 0 {
		cfg.TradeCooldown = 4 * time.Second
	}
	if cfg.Executor.MaxAttempts <= 0 {
		cfg.Executor = DefaultExecutorConfig()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &SessionManager{
		cfg:      cfg,
		deps:     deps,
		log:      deps.Log,
		limiter:  ratelimit.New(cfg.TradeCooldown, 1),
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*Session),
	}
}

// Bus exposes the event bus sessions publish to.
func (m *SessionManager) Bus() *eventbus.Bus { return m.deps.Bus }

// Start launches a session for req.UserID. A user has at most one running
// session across all instances sharing the lock.
func (m *SessionManager) Start(ctx context.Context, req models.StartSessionRequest) (models.SessionStatus, error) {
	cfg, err := m.sessionConfig(req)
	if err != nil {
		return models.SessionStatus{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx.Err() != nil {
		return models.SessionStatus{}, fmt.Errorf("manager: shutting down")
	}
	if s, ok := m.sessions[req.UserID]; ok && !isDone(s) {
		return models.SessionStatus{}, ErrSessionExists
	}
	if m.deps.Lock != nil {
		ok, err := m.deps.Lock.Acquire(ctx, req.UserID)
		if err != nil {
			return models.SessionStatus{}, fmt.Errorf("manager: acquire lock: %w", err)
		}
		if !ok {
			return models.SessionStatus{}, ErrSessionExists
		}
	}

	lg := m.log.With(logger.String("user_id", req.UserID))
	venue := m.deps.Venues(LedgerID(cfg.UserID, cfg.Account))
	sess, err := NewSession(cfg, SessionDeps{
		Venue:       venue,
		Credentials: m.deps.Credentials,
		Store:       m.deps.Store,
		Trades:      m.deps.Trades,
		Ticks:       m.deps.Ticks,
		Candles:     m.deps.Candles,
		Bus:         m.deps.Bus,
		Metrics:     m.deps.Metrics,
		Log:         m.deps.Log,
		Executor:    NewOrderExecutor(venue, breaker.New(m.cfg.Breaker...), m.cfg.Executor, lg, m.deps.Metrics),
		Gate:        confluence.New(m.cfg.Confluence...),
		Limiter:     m.limiter,
		Archiver:    m.deps.Archiver,
	})
	if err != nil {
		m.release(req.UserID)
		return models.SessionStatus{}, err
	}
	m.sessions[req.UserID] = sess

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		err := sess.Run(m.ctx)
		m.release(req.UserID)
		if err != nil {
			lg.Warn("manager: session ended with error", logger.Error(err))
			return
		}
		lg.Info("manager: session ended")
	}()

	lg.Info("manager: session started",
		logger.String("account_type", string(cfg.Account)),
		logger.String("strategy", string(cfg.Strategy)),
		logger.Float64("base_stake", cfg.BaseStake))
	return sess.Status(), nil
}

func (m *SessionManager) sessionConfig(req models.StartSessionRequest) (SessionConfig, error) {
	if req.UserID == "" {
		return SessionConfig{}, fmt.Errorf("%w: user id required", ErrInvalidCommand)
	}
	cfg := m.cfg.Defaults
	cfg.UserID = req.UserID
	cfg.Symbols = append([]string(nil), cfg.Symbols...)
	if req.AccountType != "" {
		cfg.Account = models.AccountType(req.AccountType)
	}
	if req.Strategy != "" {
		cfg.Strategy = models.Variant(req.Strategy)
	}
	if req.BaseStake > 0 {
		cfg.BaseStake = req.BaseStake
	}
	if len(req.Symbols) > 0 {
		cfg.Symbols = append([]string(nil), req.Symbols...)
	}
	if req.TargetTrades > 0 {
		cfg.TargetTrades = req.TargetTrades
	}
	if cfg.Account != models.AccountDemo && cfg.Account != models.AccountReal {
		return SessionConfig{}, fmt.Errorf("%w: account type %q", ErrInvalidCommand, cfg.Account)
	}
	return cfg, nil
}

func (m *SessionManager) release(userID string) {
	if m.deps.Lock == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := m.deps.Lock.Release(ctx, userID); err != nil {
		m.log.Warn("manager: release lock failed", logger.String("user_id", userID), logger.Error(err))
	}
}

func isDone(s *Session) bool {
	select {
	case <-s.Done():
		return true
	default:
		return false
	}
}

// get returns the latest session of a user, running or finished.
func (m *SessionManager) get(userID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

func (m *SessionManager) running(userID string) (*Session, error) {
	s, err := m.get(userID)
	if err != nil {
		return nil, err
	}
	if isDone(s) {
		return nil, ErrSessionNotRunning
	}
	return s, nil
}

func (m *SessionManager) Stop(ctx context.Context, userID string) error {
	s, err := m.running(userID)
	if err != nil {
		return err
	}
	if err := s.Stop(ctx); err != nil {
		return err
	}
	select {
	case <-s.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *SessionManager) Pause(ctx context.Context, userID string) error {
	s, err := m.running(userID)
	if err != nil {
		return err
	}
	return s.Pause(ctx)
}

func (m *SessionManager) Resume(ctx context.Context, userID string) error {
	s, err := m.running(userID)
	if err != nil {
		return err
	}
	return s.Resume(ctx)
}

func (m *SessionManager) SetStake(ctx context.Context, userID string, stake float64) error {
	s, err := m.running(userID)
	if err != nil {
		return err
	}
	return s.SetStake(ctx, stake)
}

func (m *SessionManager) SetStrategy(ctx context.Context, userID string, v models.Variant) error {
	s, err := m.running(userID)
	if err != nil {
		return err
	}
	return s.SetStrategy(ctx, v)
}

func (m *SessionManager) SetAccount(ctx context.Context, userID string, a models.AccountType) error {
	s, err := m.running(userID)
	if err != nil {
		return err
	}
	return s.SetAccount(ctx, a)
}

func (m *SessionManager) Status(userID string) (models.SessionStatus, error) {
	s, err := m.get(userID)
	if err != nil {
		return models.SessionStatus{}, err
	}
	return s.Status(), nil
}

// Trades lists settled trades of the user's current ledger, from the archive
// when one is configured and from session memory otherwise.
func (m *SessionManager) Trades(ctx context.Context, req models.TradesRequest) ([]models.Trade, error) {
	s, err := m.get(req.UserID)
	if err != nil {
		return nil, err
	}
	if m.deps.Trades == nil {
		return s.Trades(req.Limit), nil
	}
	to := util.ParseTimeDefault(req.To, time.Now())
	from := util.ParseTimeDefault(req.From, to.Add(-24*time.Hour))
	if from.After(to) {
		return nil, fmt.Errorf("%w: from after to", ErrInvalidCommand)
	}
	trades, err := m.deps.Trades.QueryTrades(ctx, s.ID(), from, to, req.Limit)
	if err != nil {
		m.log.Warn("manager: trade archive query failed, serving memory", logger.Error(err))
		return s.Trades(req.Limit), nil
	}
	return trades, nil
}

// Dispatch applies a control command from any transport.
func (m *SessionManager) Dispatch(ctx context.Context, c Command) error {
	switch c.Command {
	case CmdStart:
		_, err := m.Start(ctx, models.StartSessionRequest{
			UserID:       c.UserID,
			AccountType:  c.AccountType,
			Strategy:     c.Strategy,
			BaseStake:    c.BaseStake,
			Symbols:      c.Symbols,
			TargetTrades: c.TargetTrades,
		})
		return err
	case CmdStop:
		return m.Stop(ctx, c.UserID)
	case CmdPause:
		return m.Pause(ctx, c.UserID)
	case CmdResume:
		return m.Resume(ctx, c.UserID)
	case CmdStake:
		return m.SetStake(ctx, c.UserID, c.BaseStake)
	case CmdStrategy:
		return m.SetStrategy(ctx, c.UserID, models.Variant(c.Strategy))
	case CmdAccount:
		return m.SetAccount(ctx, c.UserID, models.AccountType(c.AccountType))
	}
	return fmt.Errorf("%w: %q", ErrInvalidCommand, c.Command)
}

// Shutdown stops every session and waits for them to persist.
func (m *SessionManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.cancel()
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("manager: shutdown: %w", ctx.Err())
	}
}
