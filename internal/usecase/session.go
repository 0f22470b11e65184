package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"BinPull/internal/domain/errs"
	"BinPull/internal/domain/models"
	domrepo "BinPull/internal/domain/repository"
	"BinPull/internal/eventbus"
	"BinPull/internal/middleware"
	"BinPull/internal/service/breaker"
	"BinPull/internal/service/ratelimit"
	"BinPull/internal/service/venue"
	"BinPull/internal/services/confluence"
	"BinPull/internal/services/indicators"
	"BinPull/internal/services/risk"
	"BinPull/internal/services/strategy"
	"BinPull/pkg/logger"
	"BinPull/pkg/util"
)

const (
	recentWindow    = 500
	historyKeep     = 500
	persistTimeout  = 5 * time.Second
	contractRetries = 3
)

// ErrSessionNotRunning is returned for commands sent to a finished session.
var ErrSessionNotRunning = errors.New("session not running")

// SessionConfig is fixed when a session is created. Limits in particular are
// copied into the risk manager and never change afterwards.
type SessionConfig struct {
	UserID        string
	Account       models.AccountType
	Strategy      models.Variant
	BaseStake     float64
	Symbols       []string
	TargetTrades  int
	Currency      string
	Duration      int
	DurationUnit  string
	HistoryCount  int
	TickBuffer    int
	CommandBuffer int
	TickPrune     int
	TickRetain    int
	Limits        risk.Limits
	PredictorVeto bool
	MTF           domrepo.Timeframe
	// ConnectBackoff paces start attempts that fail on the link.
	ConnectBackoff venue.Backoff
}

// SessionDeps are the collaborators of one session. Archives, the tick
// archiver and the executor are optional.
type SessionDeps struct {
	Venue       domrepo.Venue
	Credentials domrepo.CredentialProvider
	Store       domrepo.SessionStore
	Trades      domrepo.TradeArchive
	Ticks       domrepo.TickArchive
	Candles     domrepo.CandleArchive
	Bus         *eventbus.Bus
	Metrics     domrepo.Metrics
	Log         *logger.Logger
	Executor    *OrderExecutor
	Gate        *confluence.Gate
	Limiter     *ratelimit.Limiter
	Archiver    *TickArchiver
	Now         func() time.Time
}

// LedgerID names the persisted ledger of a user on one account type.
func LedgerID(userID string, account models.AccountType) string {
	return userID + ":" + strings.ToLower(string(account))
}

type orderResult struct {
	sig     models.Signal
	req     models.OrderRequest
	level   int
	receipt models.OrderReceipt
	err     error
}

type contractEvent struct {
	update models.ContractUpdate
	err    error
}

type linkEvent struct {
	from, to models.ConnectionPhase
	err      error
}

// Session is the trading orchestrator of one user. All trading state is owned
// by the goroutine running Run; other goroutines talk to it through commands
// and read it through Status.
type Session struct {
	cfg     SessionConfig
	deps    SessionDeps
	log     *logger.Logger
	metrics domrepo.Metrics
	now     func() time.Time

	engine    *indicators.Engine
	mtf       *indicators.Engine
	candles   *indicators.CandleAggregator
	mtfEdge   map[string]time.Time
	selector  *strategy.Selector
	predictor *strategy.Predictor
	tickGate  *middleware.TickGate

	tickCh    chan models.Tick
	cmdCh     chan command
	orderCh   chan orderResult
	settleCh  chan contractEvent
	balanceCh chan float64
	linkCh    chan linkEvent
	done      chan struct{}

	preloadEdge  map[string]int64
	started      bool
	startAttempt int
	startC       <-chan time.Time
	pausedByLink bool
	stopping     bool
	stopErr      error
	opCancel     context.CancelFunc
	runOnce      sync.Once

	mu         sync.RWMutex
	sessionID  string
	phase      models.SessionPhase
	stopReason string
	state      models.SessionState
	currency   string
	baseStake  float64
	position   *models.Position
	placing    bool
	history    []models.Trade
	risk       *risk.Manager
	analytics  *Analytics
}

// NewSession wires a session. It does not touch the network until Run.
func NewSession(cfg SessionConfig, deps SessionDeps) (*Session, error) {
	if deps.Venue == nil || deps.Credentials == nil || deps.Store == nil {
		return nil, fmt.Errorf("session: venue, credentials and store are required")
	}
	if len(cfg.Symbols) == 0 {
		return nil, fmt.Errorf("session: no symbols")
	}
	if cfg.Account == "" {
		cfg.Account = models.AccountDemo
	}
	if cfg.Strategy == "" {
		cfg.Strategy = models.VariantMultiIndicator
	}
	if cfg.TickBuffer <= 0 {
		cfg.TickBuffer = 1024
	}
	if cfg.CommandBuffer <= 0 {
		cfg.CommandBuffer = 32
	}
	if cfg.HistoryCount <= 0 {
		cfg.HistoryCount = 200
	}
	if cfg.Duration <= 0 {
		cfg.Duration, cfg.DurationUnit = 5, "t"
	}
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	if !domrepo.IsValidTimeframe(cfg.MTF) {
		cfg.MTF = domrepo.TF5m
	}
	if cfg.ConnectBackoff.Base <= 0 {
		cfg.ConnectBackoff = venue.DefaultBackoff()
	}
	if cfg.Limits == (risk.Limits{}) {
		cfg.Limits = risk.DefaultLimits()
	}
	if cfg.BaseStake < cfg.Limits.MinStake {
		return nil, fmt.Errorf("session: base stake %.2f below minimum %.2f", cfg.BaseStake, cfg.Limits.MinStake)
	}
	if deps.Metrics == nil {
		deps.Metrics = domrepo.NopMetrics{}
	}
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Bus == nil {
		deps.Bus = eventbus.New(eventbus.WithMetrics(deps.Metrics))
	}
	if deps.Gate == nil {
		deps.Gate = confluence.New()
	}
	if deps.Limiter == nil {
		deps.Limiter = ratelimit.New(4*time.Second, 1)
	}
	if deps.Executor == nil {
		deps.Executor = NewOrderExecutor(deps.Venue, breaker.New(), DefaultExecutorConfig(), deps.Log, deps.Metrics)
	}

	s := &Session{
		cfg:         cfg,
		deps:        deps,
		metrics:     deps.Metrics,
		now:         deps.Now,
		candles:     indicators.NewCandleAggregator(cfg.MTF),
		mtfEdge:     make(map[string]time.Time),
		predictor:   strategy.NewPredictor(),
		tickCh:      make(chan models.Tick, cfg.TickBuffer),
		cmdCh:       make(chan command, cfg.CommandBuffer),
		orderCh:     make(chan orderResult, 1),
		settleCh:    make(chan contractEvent, 16),
		balanceCh:   make(chan float64, 8),
		linkCh:      make(chan linkEvent, 32),
		done:        make(chan struct{}),
		preloadEdge: make(map[string]int64),
		sessionID:   LedgerID(cfg.UserID, cfg.Account),
		phase:       models.PhaseIdle,
		currency:    cfg.Currency,
		baseStake:   cfg.BaseStake,
		risk:        risk.NewManager(cfg.Limits, risk.WithClock(deps.Now)),
		analytics:   NewAnalytics(0),
	}
	s.log = deps.Log.With(logger.String("user_id", cfg.UserID))

	var engOpts []indicators.Option
	if cfg.TickPrune > 0 && cfg.TickRetain > 0 {
		engOpts = append(engOpts, indicators.WithPruning(cfg.TickPrune, cfg.TickRetain))
	}
	s.engine = indicators.New(engOpts...)
	s.mtf = indicators.New()

	sel, err := strategy.NewSelector(cfg.Strategy, s.onStrategySwitch)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	s.selector = sel
	s.tickGate = middleware.NewTickGate(middleware.TickProcFunc(s.handleTick), deps.Metrics)
	return s, nil
}

// ID is the ledger id the session currently trades on.
func (s *Session) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionID
}

// Done is closed when Run returns.
func (s *Session) Done() <-chan struct{} { return s.done }

// Run drives the session until it stops. The returned error is the cause of
// an abnormal stop (auth failure, risk limit, start failure) or nil.
func (s *Session) Run(ctx context.Context) error {
	started := false
	s.runOnce.Do(func() { started = true })
	if !started {
		return fmt.Errorf("session: already running")
	}
	defer close(s.done)

	opCtx, cancel := context.WithCancel(ctx)
	s.opCancel = cancel
	defer cancel()

	if err := s.start(opCtx); err != nil {
		if !startRetryable(err) {
			s.log.Error("session: start failed", logger.Error(err))
			s.finish("start failed: " + err.Error())
			return err
		}
		s.deferStart(err)
	}
	reason := s.loop(opCtx)
	s.finish(reason)
	return s.stopErr
}

func (s *Session) start(ctx context.Context) error {
	s.setPhase(models.PhasePreloading, "")
	s.deps.Venue.SetStateListener(s.onLinkChange)
	if s.deps.Venue.Phase() == models.ConnDisconnected {
		if err := s.deps.Venue.Connect(ctx); err != nil {
			return err
		}
	}
	token, err := s.deps.Credentials.Token(ctx, s.cfg.UserID, s.cfg.Account)
	if err != nil {
		return err
	}
	acct, err := s.deps.Venue.Authorize(ctx, token)
	if err != nil {
		return err
	}
	s.adoptAccount(ctx, acct, s.cfg.Account)

	s.preload(ctx)

	if err := s.deps.Venue.SubscribeBalance(ctx, s.onBalanceStream); err != nil {
		s.log.Warn("session: balance stream unavailable", logger.Error(err))
	}
	for _, sym := range s.cfg.Symbols {
		if err := s.deps.Venue.SubscribeTicks(ctx, sym, s.enqueueTick); err != nil {
			return fmt.Errorf("session: subscribe %s: %w", sym, err)
		}
	}
	s.started = true
	s.startAttempt = 0
	s.setPhase(models.PhaseActive, "")
	s.log.Info("session: active",
		logger.String("session_id", s.ID()),
		logger.Strings("symbols", s.cfg.Symbols),
		logger.String("strategy", string(s.selector.Active())))
	return nil
}

// startRetryable is true for start failures caused by the link rather than
// by credentials or configuration.
func startRetryable(err error) bool {
	return errors.Is(err, errs.ErrConnection) || errors.Is(err, errs.ErrRequestTimeout)
}

// deferStart parks a session whose start failed on the link in PAUSED and
// schedules the next attempt on the reconnect schedule. Past the last
// attempt only an explicit resume starts it.
func (s *Session) deferStart(cause error) {
	s.startAttempt++
	b := s.cfg.ConnectBackoff
	if b.Exhausted(s.startAttempt) {
		s.startC = nil
		s.log.Error("session: start attempts exhausted, resume required",
			logger.Int("attempts", s.startAttempt-1), logger.Error(cause))
		s.setPhase(models.PhasePaused, "connect failed, resume required")
		return
	}
	delay := b.Delay(s.startAttempt)
	s.startC = time.After(delay)
	s.log.Warn("session: start failed, retrying",
		logger.Int("attempt", s.startAttempt),
		logger.Duration("delay_ms", delay),
		logger.Error(cause))
	s.setPhase(models.PhasePaused, "connect failed, retrying")
}

// retryStart runs on the loop. A failure that is not link related stops the
// session.
func (s *Session) retryStart(ctx context.Context) error {
	s.startC = nil
	err := s.start(ctx)
	switch {
	case err == nil:
	case startRetryable(err):
		s.deferStart(err)
	default:
		s.halt("start failed: "+err.Error(), err)
	}
	return err
}

// adoptAccount restores the ledger of the authorized account, or starts a
// fresh one when the snapshot is missing, stale or corrupt.
func (s *Session) adoptAccount(ctx context.Context, acct models.Account, requested models.AccountType) {
	kind := acct.Type
	if kind == "" {
		kind = requested
	}
	if kind != requested {
		s.log.Warn("session: token account type differs from request",
			logger.String("requested", string(requested)),
			logger.String("actual", string(kind)))
	}
	id := LedgerID(s.cfg.UserID, kind)

	mgr := risk.NewManager(s.cfg.Limits, risk.WithClock(s.now))
	st := models.SessionState{
		SessionID:       id,
		UserID:          s.cfg.UserID,
		Balance:         acct.Balance,
		StartingBalance: acct.Balance,
		AccountType:     kind,
		DailyLossDate:   util.UTCDay(s.now()),
	}

	snap, err := s.deps.Store.Load(ctx, id)
	switch {
	case err == nil:
		if rerr := mgr.Restore(snap); rerr != nil {
			s.log.Warn("session: snapshot rejected by risk", logger.Error(rerr))
			mgr = risk.NewManager(s.cfg.Limits, risk.WithClock(s.now))
			break
		}
		snap.Balance = acct.Balance
		st = snap
		s.log.Info("session: snapshot restored",
			logger.String("session_id", id),
			logger.Int("level", snap.MartingaleLevel),
			logger.Int("trade_count", snap.TradeCount))
	case errors.Is(err, errs.ErrSessionStateCorrupt):
		s.metrics.RecordError("snapshot_corrupt")
		s.log.Warn("session: snapshot discarded, starting fresh", logger.Error(err))
	default:
		s.log.Debug("session: no snapshot", logger.String("session_id", id), logger.Error(err))
	}

	s.mu.Lock()
	s.sessionID = id
	s.state = st
	s.risk = mgr
	s.analytics = NewAnalytics(st.Balance)
	s.history = nil
	if acct.Currency != "" {
		s.currency = acct.Currency
	}
	s.mu.Unlock()

	s.metrics.RecordBalance(id, st.Balance)
	s.metrics.RecordMartingaleLevel(id, st.MartingaleLevel)
}

func (s *Session) loop(ctx context.Context) string {
	for {
		select {
		case <-ctx.Done():
			return "context cancelled"
		case cmd := <-s.cmdCh:
			cmd.reply <- s.apply(ctx, cmd)
		case t := <-s.tickCh:
			if err := s.tickGate.Process(ctx, t); err != nil {
				s.log.Debug("session: tick rejected", logger.String("symbol", t.Symbol), logger.Error(err))
			}
		case r := <-s.orderCh:
			s.onOrder(ctx, r)
		case ev := <-s.settleCh:
			s.onSettle(ctx, ev)
		case b := <-s.balanceCh:
			s.onBalance(b)
		case ev := <-s.linkCh:
			s.onLink(ev)
		case <-s.startC:
			_ = s.retryStart(ctx)
		}
		if s.stopping {
			s.mu.RLock()
			reason := s.stopReason
			s.mu.RUnlock()
			return reason
		}
	}
}

// halt ends the loop after the current step.
func (s *Session) halt(reason string, err error) {
	if s.stopping {
		return
	}
	s.stopping = true
	s.stopErr = err
	s.mu.Lock()
	s.stopReason = reason
	s.mu.Unlock()
	if err != nil {
		s.log.Warn("session: stopping", logger.String("reason", reason), logger.Error(err))
	} else {
		s.log.Info("session: stopping", logger.String("reason", reason))
	}
}

// finish cancels outstanding venue requests, then releases subscriptions and
// the link, then announces the stop and persists the ledger.
func (s *Session) finish(reason string) {
	if s.opCancel != nil {
		s.opCancel()
	}

	if s.deps.Venue.Phase() == models.ConnConnected {
		uctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		for _, sym := range s.cfg.Symbols {
			if err := s.deps.Venue.UnsubscribeTicks(uctx, sym); err != nil {
				s.log.Debug("session: unsubscribe failed", logger.String("symbol", sym), logger.Error(err))
			}
		}
		cancel()
	}
	if err := s.deps.Venue.Disconnect(); err != nil {
		s.log.Warn("session: disconnect failed", logger.Error(err))
	}

	s.mu.Lock()
	s.position = nil
	s.placing = false
	s.phase = models.PhaseStopped
	if s.stopReason == "" {
		s.stopReason = reason
	}
	reason = s.stopReason
	ledgerReady := s.state.AccountType != ""
	s.mu.Unlock()

	s.publish(models.EventPositionsReset, "", models.PositionsResetPayload{Symbols: s.cfg.Symbols, Reason: reason})
	s.publishStatus(reason)
	if ledgerReady {
		pctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		s.persist(pctx)
		cancel()
	}
	s.deps.Limiter.Forget(s.cfg.UserID)
	s.log.Info("session: stopped", logger.String("reason", reason))
}

func (s *Session) setPhase(p models.SessionPhase, reason string) {
	s.mu.Lock()
	prev := s.phase
	s.phase = p
	s.mu.Unlock()
	if prev == p {
		return
	}
	s.log.Info("session: phase changed",
		logger.String("from", string(prev)),
		logger.String("to", string(p)),
		logger.String("reason", reason))
	s.publishStatus(reason)
}

func (s *Session) phaseNow() models.SessionPhase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// canTrade is true when the loop may evaluate and place a new order.
func (s *Session) canTrade() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase == models.PhaseActive && s.position == nil && !s.placing && !s.stopping
}

// enqueueTick runs on the venue read loop. A full queue sheds its oldest tick.
func (s *Session) enqueueTick(t models.Tick) {
	select {
	case s.tickCh <- t:
		return
	default:
	}
	select {
	case <-s.tickCh:
	default:
	}
	s.metrics.RecordEventDropped("tick_queue")
	select {
	case s.tickCh <- t:
	default:
	}
}

func (s *Session) onBalanceStream(b float64) {
	select {
	case s.balanceCh <- b:
	default:
		select {
		case <-s.balanceCh:
		default:
		}
		select {
		case s.balanceCh <- b:
		default:
		}
	}
}

func (s *Session) onLinkChange(from, to models.ConnectionPhase, err error) {
	select {
	case s.linkCh <- linkEvent{from: from, to: to, err: err}:
	default:
		s.metrics.RecordEventDropped("link_event")
	}
}

// handleTick is the tick gate downstream: indicators, events, then the
// decision pipeline when the session may trade.
func (s *Session) handleTick(ctx context.Context, t models.Tick) error {
	if edge, ok := s.preloadEdge[t.Symbol]; ok {
		if t.Epoch <= edge {
			return nil
		}
		delete(s.preloadEdge, t.Symbol)
	}
	st, err := s.engine.Update(t.Symbol, t)
	if err != nil {
		return err
	}
	s.feedCandles(t)
	s.publish(models.EventTick, t.Symbol, t)
	if s.deps.Archiver != nil {
		s.deps.Archiver.Add(t)
	}
	if !s.canTrade() {
		return nil
	}
	s.evaluate(ctx, t, st)
	return nil
}

func (s *Session) feedCandles(t models.Tick) {
	c, closed := s.candles.Add(t)
	if !closed {
		return
	}
	if edge, ok := s.mtfEdge[c.Symbol]; ok && !c.Bucket.After(edge) {
		return
	}
	if _, err := s.mtf.UpdateCandle(c); err != nil {
		s.log.Debug("session: candle rejected", logger.String("symbol", c.Symbol), logger.Error(err))
	}
}

func (s *Session) evaluate(ctx context.Context, t models.Tick, st models.IndicatorState) {
	recent := s.engine.Recent(t.Symbol, recentWindow)
	sig := s.selector.Evaluate(t.Symbol, st, recent)
	if !sig.IsActionable() {
		return
	}
	if sig.At.IsZero() {
		sig.At = t.Time()
	}
	if sig.Price == 0 {
		sig.Price = t.Price
	}
	s.decide(ctx, sig, st, recent)
}

// decide runs an actionable signal through the veto, the confluence gate,
// risk and the trade limiter, and places the order when all agree.
func (s *Session) decide(ctx context.Context, sig models.Signal, st models.IndicatorState, recent []float64) {
	payload := models.SignalPayload{Signal: sig}

	if s.cfg.PredictorVeto {
		if vetoed, pred := s.predictor.Veto(sig, st, recent); vetoed {
			payload.Vetoed = true
			payload.Blocked = fmt.Sprintf("predictor %s %.2f", pred.Movement, pred.Confidence)
			s.rejectSignal(payload)
			return
		}
	}

	higher, ok := s.mtf.State(sig.Symbol)
	payload.Confluence = s.deps.Gate.Score(sig, confluence.Filters{
		State:       st,
		Higher:      higher,
		HigherReady: ok && higher.Warm,
		Recent:      recent,
		Now:         s.now(),
	})
	if !payload.Confluence.Tradeable() {
		payload.Blocked = "confluence"
		if payload.Confluence.Cooling {
			payload.Blocked = "confluence cooldown"
		}
		s.rejectSignal(payload)
		return
	}

	s.mu.RLock()
	base, state := s.baseStake, s.state
	s.mu.RUnlock()
	stake, err := s.risk.Authorize(base, state)
	if err != nil {
		payload.Blocked = err.Error()
		s.rejectSignal(payload)
		switch {
		case errors.Is(err, errs.ErrRiskLimitExceeded):
			s.halt("risk limit", err)
		case errors.Is(err, errs.ErrInsufficientBalance):
			s.log.Warn("session: signal blocked, insufficient balance",
				logger.String("symbol", sig.Symbol),
				logger.Float64("balance", state.Balance))
		default:
			s.log.Warn("session: signal blocked by risk", logger.Error(err))
		}
		return
	}

	if !s.deps.Limiter.AllowAt(s.cfg.UserID, s.now()) {
		payload.Blocked = "cooldown"
		s.rejectSignal(payload)
		return
	}

	s.deps.Gate.Record(sig, s.now())
	s.metrics.RecordSignal(string(sig.Strategy), string(sig.Direction), true)
	s.publish(models.EventSignal, sig.Symbol, payload)
	s.place(ctx, sig, stake)
}

func (s *Session) rejectSignal(p models.SignalPayload) {
	s.metrics.RecordSignal(string(p.Signal.Strategy), string(p.Signal.Direction), false)
	s.publish(models.EventSignal, p.Signal.Symbol, p)
}

func (s *Session) place(ctx context.Context, sig models.Signal, stake float64) {
	ct := sig.ContractType
	if ct == "" {
		ct = models.ContractFor(sig.Direction)
	}
	s.mu.Lock()
	s.placing = true
	req := models.OrderRequest{
		Symbol:       sig.Symbol,
		ContractType: ct,
		Stake:        stake,
		Duration:     s.cfg.Duration,
		DurationUnit: s.cfg.DurationUnit,
		Barrier:      sig.Barrier,
		Currency:     s.currency,
	}
	s.mu.Unlock()
	level := s.risk.Level()

	s.log.Info("session: placing order",
		logger.String("symbol", req.Symbol),
		logger.String("contract_type", string(ct)),
		logger.Float64("stake", stake),
		logger.Int("level", level))

	go func() {
		rcpt, err := s.deps.Executor.Place(ctx, req)
		select {
		case s.orderCh <- orderResult{sig: sig, req: req, level: level, receipt: rcpt, err: err}:
		case <-ctx.Done():
		}
	}()
}

func (s *Session) onOrder(ctx context.Context, r orderResult) {
	s.mu.Lock()
	s.placing = false
	s.mu.Unlock()

	if r.err != nil {
		if errors.Is(r.err, errs.ErrCancelled) {
			return
		}
		s.metrics.RecordError("order")
		s.log.Error("session: order failed", logger.String("symbol", r.req.Symbol), logger.Error(r.err))
		switch {
		case errors.Is(r.err, errs.ErrAuth):
			s.halt("authorization lost", r.err)
		case errors.Is(r.err, ErrBuyRetriesExhausted):
			// stays paused across reconnects until the user resumes
			if s.phaseNow() == models.PhaseActive {
				s.setPhase(models.PhasePaused, "order retries exhausted")
			}
		}
		return
	}

	pos := models.Position{
		ContractID:      r.receipt.ContractID,
		Symbol:          r.req.Symbol,
		Direction:       r.sig.Direction,
		ContractType:    r.req.ContractType,
		Stake:           r.receipt.BuyPrice,
		EntryPrice:      r.sig.Price,
		MartingaleLevel: r.level,
		OpenedAt:        r.receipt.StartTime,
	}
	if pos.Stake <= 0 {
		pos.Stake = r.req.Stake
	}
	if pos.OpenedAt.IsZero() {
		pos.OpenedAt = s.now()
	}
	s.mu.Lock()
	s.position = &pos
	if r.receipt.Balance > 0 {
		s.state.Balance = r.receipt.Balance
	}
	s.mu.Unlock()

	s.publish(models.EventPositionOpen, pos.Symbol, pos)
	go s.watchContract(ctx, pos.ContractID)
}

// watchContract subscribes the settlement stream of an open position. The
// final sold update is always delivered; interim updates may be shed.
func (s *Session) watchContract(ctx context.Context, contractID string) {
	h := func(u models.ContractUpdate) {
		if !u.Sold {
			select {
			case s.settleCh <- contractEvent{update: u}:
			default:
			}
			return
		}
		go func() {
			select {
			case s.settleCh <- contractEvent{update: u}:
			case <-ctx.Done():
			}
		}()
	}

	var err error
	for attempt := 1; attempt <= contractRetries; attempt++ {
		if err = s.deps.Venue.SubscribeContract(ctx, contractID, h); err == nil {
			return
		}
		if ctx.Err() != nil {
			return
		}
		s.log.Warn("session: contract subscribe failed",
			logger.String("contract_id", contractID),
			logger.Int("attempt", attempt),
			logger.Error(err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(attempt) * time.Second):
		}
	}
	select {
	case s.settleCh <- contractEvent{update: models.ContractUpdate{ContractID: contractID}, err: err}:
	case <-ctx.Done():
	}
}

func (s *Session) onSettle(ctx context.Context, ev contractEvent) {
	s.mu.RLock()
	pos := s.position
	s.mu.RUnlock()
	if pos == nil || pos.ContractID != ev.update.ContractID {
		return
	}

	if ev.err != nil {
		s.metrics.RecordError("contract_lost")
		s.log.Error("session: settlement stream lost, dropping position",
			logger.String("contract_id", pos.ContractID), logger.Error(ev.err))
		s.mu.Lock()
		s.position = nil
		s.mu.Unlock()
		s.publish(models.EventPositionsReset, pos.Symbol, models.PositionsResetPayload{
			Symbols: []string{pos.Symbol},
			Reason:  "settlement stream lost",
		})
		return
	}

	u := ev.update
	if !u.Sold {
		s.mu.Lock()
		s.position.CurrentProfit = u.Profit
		open := *s.position
		s.mu.Unlock()
		s.publish(models.EventPositionUpdate, open.Symbol, open)
		return
	}

	trade := pos.Settle(s.ID(), u.Profit, u.ExitSpot, s.now())
	if u.EntrySpot > 0 {
		trade.EntryPrice = u.EntrySpot
	}

	s.mu.Lock()
	s.position = nil
	riskErr := s.risk.Settle(&s.state, trade)
	s.history = append(s.history, trade)
	if len(s.history) > historyKeep {
		s.history = append([]models.Trade(nil), s.history[len(s.history)-historyKeep:]...)
	}
	s.analytics.Record(trade, s.state.Balance)
	state := s.state
	s.mu.Unlock()

	if s.deps.Trades != nil {
		actx, cancel := context.WithTimeout(ctx, persistTimeout)
		if err := s.deps.Trades.StoreTrade(actx, trade); err != nil {
			s.metrics.RecordError("trade_archive")
			s.log.Warn("session: archive trade failed", logger.String("contract_id", trade.ContractID), logger.Error(err))
		}
		cancel()
	}

	s.metrics.RecordTrade(trade.Symbol, trade.Result, trade.Profit)
	s.metrics.RecordMartingaleLevel(state.SessionID, state.MartingaleLevel)
	s.log.Info("session: trade settled",
		logger.String("contract_id", trade.ContractID),
		logger.String("result", string(trade.Result)),
		logger.Float64("profit", trade.Profit),
		logger.Int("level", state.MartingaleLevel),
		logger.Int("trade_count", state.TradeCount))

	s.publish(models.EventPositionClose, trade.Symbol, trade)
	s.publish(models.EventTradeHistory, trade.Symbol, models.TradeHistoryPayload{Trade: trade, TotalTrades: state.TradeCount})
	s.publishBalance(state.Balance)
	s.persist(ctx)

	switch {
	case riskErr != nil:
		s.halt("risk limit", riskErr)
	case s.cfg.TargetTrades > 0 && state.TradeCount >= s.cfg.TargetTrades:
		s.halt(fmt.Sprintf("target of %d trades reached", s.cfg.TargetTrades), nil)
	}
}

func (s *Session) onBalance(b float64) {
	s.mu.Lock()
	s.state.Balance = b
	if s.state.StartingBalance == 0 {
		s.state.StartingBalance = b
	}
	s.analytics.ObserveBalance(b)
	id := s.sessionID
	s.mu.Unlock()
	s.metrics.RecordBalance(id, b)
	s.publishBalance(b)
}

// onLink maps connectivity onto the session phase: a dropped link pauses, a
// restored link resumes only what it paused, and an auth failure stops.
func (s *Session) onLink(ev linkEvent) {
	s.metrics.RecordConnectionPhase(s.ID(), ev.to)
	phase := s.phaseNow()
	switch ev.to {
	case models.ConnReconnecting:
		if phase == models.PhaseActive {
			s.pausedByLink = true
			s.setPhase(models.PhasePaused, "connection lost")
		}
	case models.ConnConnected:
		if phase == models.PhasePaused && s.pausedByLink {
			s.pausedByLink = false
			s.setPhase(models.PhaseActive, "connection restored")
		}
	case models.ConnDisconnected:
		if ev.err == nil || !s.started {
			return
		}
		if errors.Is(ev.err, errs.ErrAuth) {
			s.halt("authorization failed", ev.err)
			return
		}
		s.pausedByLink = false
		if phase == models.PhaseActive || phase == models.PhasePaused {
			s.mu.Lock()
			s.phase = models.PhasePaused
			s.mu.Unlock()
			s.log.Warn("session: link down, resume required", logger.Error(ev.err))
			s.publishStatus(ev.err.Error())
		}
	}
}

func (s *Session) onStrategySwitch(v models.Variant) {
	s.deps.Gate.Reset()
	s.log.Info("session: strategy switched", logger.String("strategy", string(v)))
	s.publishStatus("strategy " + string(v))
}

func (s *Session) persist(ctx context.Context) {
	s.mu.RLock()
	st := s.state
	s.mu.RUnlock()
	pctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()
	if err := s.deps.Store.Save(pctx, st); err != nil {
		s.metrics.RecordError("snapshot_save")
		s.log.Warn("session: snapshot save failed", logger.Error(err))
	}
}

func (s *Session) publish(kind models.EventKind, symbol string, payload interface{}) {
	s.deps.Bus.Publish(models.Event{
		Kind:      kind,
		SessionID: s.ID(),
		Symbol:    symbol,
		At:        s.now(),
		Payload:   payload,
	})
}

func (s *Session) publishBalance(b float64) {
	s.mu.RLock()
	cur := s.currency
	s.mu.RUnlock()
	s.publish(models.EventBalance, "", models.BalancePayload{Balance: b, Currency: cur})
}

func (s *Session) publishStatus(reason string) {
	s.mu.RLock()
	p := models.StatusPayload{
		IsTrading:   s.phase == models.PhaseActive,
		Phase:       s.phase,
		AccountType: s.state.AccountType,
		Reason:      reason,
	}
	if p.AccountType == "" {
		p.AccountType = s.cfg.Account
	}
	s.mu.RUnlock()
	p.Strategy = s.selector.Active()
	s.publish(models.EventStatus, "", p)
}

// Status is a consistent snapshot for readers outside the session loop.
func (s *Session) Status() models.SessionStatus {
	variant := s.selector.Active()
	s.mu.RLock()
	defer s.mu.RUnlock()
	open := []models.Position{}
	if s.position != nil {
		open = append(open, *s.position)
	}
	stats := s.analytics.Stats()
	acct := s.state.AccountType
	if acct == "" {
		acct = s.cfg.Account
	}
	return models.SessionStatus{
		SessionID:       s.sessionID,
		UserID:          s.cfg.UserID,
		Phase:           s.phase,
		StopReason:      s.stopReason,
		AccountType:     acct,
		Strategy:        variant,
		Balance:         s.state.Balance,
		BaseStake:       s.baseStake,
		MartingaleLevel: s.state.MartingaleLevel,
		TradeCount:      s.state.TradeCount,
		TargetTrades:    s.cfg.TargetTrades,
		OpenPositions:   open,
		Stats:           stats,
		WinRate:         stats.WinRate(),
	}
}

// Trades returns the most recent settled trades, newest last.
func (s *Session) Trades(limit int) []models.Trade {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h := s.history
	if limit > 0 && len(h) > limit {
		h = h[len(h)-limit:]
	}
	return append([]models.Trade(nil), h...)
}
