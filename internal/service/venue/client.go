package venue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"BinPull/internal/domain/errs"
	"BinPull/internal/domain/models"
	domrepo "BinPull/internal/domain/repository"
	"BinPull/pkg/logger"
)

const (
	minHistory = 10
	maxHistory = 5000
)

// Config holds link tuning.
type Config struct {
	URL            string
	AppID          string
	Backoff        Backoff
	RequestTimeout time.Duration
	HealthInterval time.Duration
	HealthJitter   time.Duration
	AuthTimeout    time.Duration
	AuthRetries    int
}

func DefaultConfig(rawURL string) Config {
	return Config{
		URL:            rawURL,
		Backoff:        DefaultBackoff(),
		RequestTimeout: 60 * time.Second,
		HealthInterval: 60 * time.Second,
		HealthJitter:   15 * time.Second,
		AuthTimeout:    30 * time.Second,
		AuthRetries:    3,
	}
}

// DialFunc opens a websocket.
type DialFunc func(ctx context.Context, rawURL string) (*websocket.Conn, error)

func defaultDial(ctx context.Context, rawURL string) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, rawURL, nil)
	return conn, err
}

type Option func(*Client)

func WithLogger(l *logger.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

func WithMetrics(m domrepo.Metrics) Option {
	return func(c *Client) {
		if m != nil {
			c.metrics = m
		}
	}
}

func WithDialer(d DialFunc) Option {
	return func(c *Client) { c.dial = d }
}

// Client is one session's websocket link to the venue. It owns the reconnect
// loop and replays authorization and subscriptions after every reconnect.
type Client struct {
	cfg       Config
	sessionID string
	log       *logger.Logger
	metrics   domrepo.Metrics
	dial      DialFunc

	state   *stateCell
	pending *pendingTable
	nextID  atomic.Int64
	writeMu sync.Mutex

	mu        sync.Mutex
	conn      *websocket.Conn
	token     string
	ticks     map[string]domrepo.TickHandler
	subIDs    map[string]string
	balance   func(float64)
	contracts map[string]domrepo.ContractHandler
	listener  domrepo.StateListener
	cancel    context.CancelFunc
	done      chan struct{}
}

var _ domrepo.Venue = (*Client)(nil)

func New(sessionID string, cfg Config, opts ...Option) *Client {
	def := DefaultConfig(cfg.URL)
	if cfg.Backoff.Base <= 0 {
		cfg.Backoff = def.Backoff
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = def.HealthInterval
	}
	if cfg.AuthTimeout <= 0 {
		cfg.AuthTimeout = def.AuthTimeout
	}
	if cfg.AuthRetries <= 0 {
		cfg.AuthRetries = def.AuthRetries
	}
	c := &Client{
		cfg:       cfg,
		sessionID: sessionID,
		log:       logger.Nop(),
		metrics:   domrepo.NopMetrics{},
		dial:      defaultDial,
		state:     newStateCell(),
		pending:   newPendingTable(),
		ticks:     make(map[string]domrepo.TickHandler),
		subIDs:    make(map[string]string),
		contracts: make(map[string]domrepo.ContractHandler),
	}
	for _, o := range opts {
		o(c)
	}
	c.log = c.log.With(logger.String("session_id", sessionID))
	return c
}

// NewFactory returns a VenueFactory building clients with the same settings.
func NewFactory(cfg Config, opts ...Option) domrepo.VenueFactory {
	return func(sessionID string) domrepo.Venue {
		return New(sessionID, cfg, opts...)
	}
}

func (c *Client) endpoint() string {
	if c.cfg.AppID == "" {
		return c.cfg.URL
	}
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return c.cfg.URL
	}
	q := u.Query()
	q.Set("app_id", c.cfg.AppID)
	u.RawQuery = q.Encode()
	return u.String()
}

// Phase returns the current link phase.
func (c *Client) Phase() models.ConnectionPhase { return c.state.get() }

// SetStateListener registers the transition observer. It runs on the client's
// goroutines and must not call Connect or Disconnect synchronously.
func (c *Client) SetStateListener(fn domrepo.StateListener) {
	c.mu.Lock()
	c.listener = fn
	c.mu.Unlock()
}

func (c *Client) move(to models.ConnectionPhase, cause error, from ...models.ConnectionPhase) bool {
	prev, err := c.state.transition(to, from...)
	if err != nil {
		c.log.Debug("venue: transition rejected", logger.Error(err))
		return false
	}
	c.metrics.RecordConnectionPhase(c.sessionID, to)
	fields := []logger.Field{logger.String("from", string(prev)), logger.String("to", string(to))}
	if cause != nil {
		fields = append(fields, logger.Error(cause))
	}
	c.log.Info("venue: state changed", fields...)

	c.mu.Lock()
	fn := c.listener
	c.mu.Unlock()
	if fn != nil {
		fn(prev, to, cause)
	}
	return true
}

// Connect opens the link. It is the only way out of DISCONNECTED.
func (c *Client) Connect(ctx context.Context) error {
	if !c.move(models.ConnConnecting, nil, models.ConnDisconnected) {
		return fmt.Errorf("venue: connect while %s", c.Phase())
	}
	conn, err := c.dial(ctx, c.endpoint())
	if err != nil {
		e := errs.New(errs.ErrConnection, "venue.connect", err)
		c.metrics.RecordError("venue_dial")
		c.move(models.ConnDisconnected, e, models.ConnConnecting)
		return e
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.conn = conn
	c.cancel = cancel
	c.done = done
	resume := c.token != "" || len(c.ticks) > 0 || c.balance != nil || len(c.contracts) > 0
	c.mu.Unlock()

	c.move(models.ConnConnected, nil, models.ConnConnecting)
	go c.run(runCtx, conn, done)
	if resume {
		go c.replay(runCtx)
	}
	return nil
}

// Disconnect closes the link and fails every outstanding request with
// ErrCancelled.
func (c *Client) Disconnect() error {
	c.stop(nil)
	return nil
}

func (c *Client) stop(cause error) {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
	var failWith error = errs.New(errs.ErrCancelled, "venue.disconnect", nil)
	if cause != nil {
		failWith = cause
	}
	if n := c.pending.failAll(failWith); n > 0 {
		c.log.Debug("venue: pending requests failed", logger.Int("count", n))
	}
	c.move(models.ConnDisconnected, cause,
		models.ConnConnecting, models.ConnConnected, models.ConnReconnecting)
}

func (c *Client) run(ctx context.Context, conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		err := c.serve(ctx, conn)
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		c.log.Warn("venue: link lost", logger.Error(err))
		c.metrics.RecordError("venue_link")
		if n := c.pending.failAll(errs.New(errs.ErrConnection, "venue.read", err)); n > 0 {
			c.log.Debug("venue: pending requests dropped", logger.Int("count", n))
		}
		if conn = c.reconnect(ctx, err); conn == nil {
			return
		}
		go c.replay(ctx)
	}
}

// serve pumps one connection until it fails or ctx ends.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) error {
	sctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-sctx.Done()
		_ = conn.Close()
	}()
	go c.healthLoop(sctx, conn)

	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.dispatch(b)
	}
}

func (c *Client) reconnect(ctx context.Context, cause error) *websocket.Conn {
	if !c.move(models.ConnReconnecting, cause, models.ConnConnected) {
		return nil
	}
	b := c.cfg.Backoff
	for attempt := 1; ; attempt++ {
		if b.Exhausted(attempt) {
			fatal := errs.Newf(errs.ErrConnection, "venue.reconnect", "gave up after %d attempts: %v", attempt-1, cause)
			c.log.Error("venue: reconnect exhausted", logger.Int("attempts", attempt-1), logger.Error(cause))
			c.move(models.ConnDisconnected, fatal, models.ConnReconnecting)
			return nil
		}
		delay := b.Delay(attempt)
		c.log.Info("venue: reconnecting", logger.Int("attempt", attempt), logger.Duration("delay_ms", delay))
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}

		if !c.move(models.ConnConnecting, nil, models.ConnReconnecting) {
			return nil
		}
		conn, err := c.dial(ctx, c.endpoint())
		if err != nil {
			cause = err
			c.metrics.RecordError("venue_dial")
			if !c.move(models.ConnReconnecting, err, models.ConnConnecting) {
				return nil
			}
			continue
		}
		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		c.move(models.ConnConnected, nil, models.ConnConnecting)
		return conn
	}
}

// replay restores authorization and every live subscription on a fresh link.
func (c *Client) replay(ctx context.Context) {
	c.mu.Lock()
	token := c.token
	symbols := make([]string, 0, len(c.ticks))
	for s := range c.ticks {
		symbols = append(symbols, s)
	}
	wantBalance := c.balance != nil
	contracts := make([]string, 0, len(c.contracts))
	for id := range c.contracts {
		contracts = append(contracts, id)
	}
	c.subIDs = make(map[string]string)
	c.mu.Unlock()

	if token != "" {
		if _, err := c.authorizeWithRetry(ctx, token); err != nil {
			c.log.Error("venue: re-authorize failed", logger.Error(err))
			if errors.Is(err, errs.ErrAuth) {
				go c.stop(err)
			}
			return
		}
	}
	for _, s := range symbols {
		if err := c.requestTicks(ctx, s); err != nil {
			c.log.Warn("venue: resubscribe ticks failed", logger.String("symbol", s), logger.Error(err))
		}
	}
	if wantBalance {
		if err := c.requestBalance(ctx); err != nil {
			c.log.Warn("venue: resubscribe balance failed", logger.Error(err))
		}
	}
	for _, id := range contracts {
		if err := c.requestContract(ctx, id); err != nil {
			c.log.Warn("venue: resubscribe contract failed", logger.String("contract_id", id), logger.Error(err))
		}
	}
	c.log.Info("venue: subscriptions replayed",
		logger.Int("symbols", len(symbols)), logger.Int("contracts", len(contracts)))
}

func (c *Client) healthLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		wait := c.cfg.HealthInterval
		if c.cfg.HealthJitter > 0 {
			wait += rand.N(c.cfg.HealthJitter)
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
		if n := c.pending.purgeExpired(time.Now()); n > 0 {
			c.metrics.RecordError("venue_request_timeout")
			c.log.Warn("venue: purged expired requests", logger.Int("count", n))
		}
		if err := c.Ping(ctx); err != nil && ctx.Err() == nil {
			c.log.Warn("venue: health ping failed", logger.Error(err))
			_ = conn.Close()
			return
		}
	}
}

func (c *Client) write(v interface{}) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errs.Newf(errs.ErrConnection, "venue.write", "no connection")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteJSON(v); err != nil {
		return errs.New(errs.ErrConnection, "venue.write", err)
	}
	return nil
}

// call sends a correlated request and waits for its response.
func (c *Client) call(ctx context.Context, op string, req map[string]interface{}, timeout time.Duration) (json.RawMessage, error) {
	if p := c.Phase(); p != models.ConnConnected {
		return nil, errs.Newf(errs.ErrConnection, op, "link %s", p)
	}
	if timeout <= 0 {
		timeout = c.cfg.RequestTimeout
	}
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	id := c.nextID.Add(1)
	req["req_id"] = id
	ch := c.pending.add(id, deadline)

	start := time.Now()
	if err := c.write(req); err != nil {
		c.pending.remove(id)
		return nil, err
	}

	wctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()
	select {
	case r := <-ch:
		c.metrics.RecordLatency(op, time.Since(start).Seconds())
		if r.err != nil {
			return nil, mapError(op, r.err)
		}
		return r.msg, nil
	case <-wctx.Done():
		c.pending.remove(id)
		if ctx.Err() != nil && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, errs.New(errs.ErrCancelled, op, ctx.Err())
		}
		c.metrics.RecordError("venue_request_timeout")
		return nil, errs.Newf(errs.ErrRequestTimeout, op, "no response in %s", timeout)
	}
}

func mapError(op string, err error) error {
	var api *APIError
	if !errors.As(err, &api) {
		return err
	}
	switch api.Code {
	case codeInvalidToken, codeAuthRequired:
		return errs.New(errs.ErrAuth, op, api)
	case codeInsufficientFund:
		return errs.New(errs.ErrInsufficientBalance, op, api)
	}
	if op == "venue.buy" {
		return errs.New(errs.ErrOrderExecution, op, api)
	}
	return fmt.Errorf("%s: %w", op, api)
}

// dispatch routes stream payloads to handlers, then resolves the request.
func (c *Client) dispatch(b []byte) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		c.log.Debug("venue: undecodable frame", logger.Error(err))
		return
	}
	if env.Error == nil {
		switch env.MsgType {
		case msgTick:
			c.onTick(env)
		case msgBalance:
			c.onBalance(env)
		case msgContract:
			c.onContract(env)
		}
	}
	if env.ReqID == 0 {
		return
	}
	var err error
	if env.Error != nil {
		err = env.Error
	}
	c.pending.resolve(env.ReqID, b, err)
}

func (c *Client) onTick(env envelope) {
	if env.Tick == nil {
		return
	}
	sym := env.Tick.Symbol
	c.mu.Lock()
	h := c.ticks[sym]
	if env.Subscription != nil && env.Subscription.ID != "" {
		c.subIDs[sym] = env.Subscription.ID
	}
	c.mu.Unlock()
	if h != nil {
		h(models.Tick{Symbol: sym, Price: float64(env.Tick.Quote), Epoch: env.Tick.Epoch})
	}
}

func (c *Client) onBalance(env envelope) {
	if env.Balance == nil {
		return
	}
	c.mu.Lock()
	h := c.balance
	c.mu.Unlock()
	if h != nil {
		h(float64(env.Balance.Balance))
	}
}

func (c *Client) onContract(env envelope) {
	body := env.Contract
	if body == nil || body.ContractID == "" {
		return
	}
	id := string(body.ContractID)
	sold := body.IsSold == 1 || body.Status == "sold"
	c.mu.Lock()
	h := c.contracts[id]
	if sold {
		delete(c.contracts, id)
	}
	c.mu.Unlock()
	if h != nil {
		h(models.ContractUpdate{
			ContractID: id,
			Sold:       sold,
			Profit:     float64(body.Profit),
			EntrySpot:  float64(body.EntrySpot),
			ExitSpot:   float64(body.ExitSpot),
			Status:     body.Status,
		})
	}
}

// Authorize logs in with token. Transient failures are retried; auth errors
// are not. The token is kept for replay after reconnects.
func (c *Client) Authorize(ctx context.Context, token string) (models.Account, error) {
	acct, err := c.authorizeWithRetry(ctx, token)
	if err != nil {
		return acct, err
	}
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
	return acct, nil
}

func (c *Client) authorizeWithRetry(ctx context.Context, token string) (models.Account, error) {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.AuthRetries; attempt++ {
		raw, err := c.call(ctx, "venue.authorize", map[string]interface{}{msgAuthorize: token}, c.cfg.AuthTimeout)
		if err == nil {
			resp, err := decode[authorizeResponse](raw)
			if err != nil {
				return models.Account{}, fmt.Errorf("venue.authorize: decode: %w", err)
			}
			a := resp.Authorize
			acct := models.Account{LoginID: a.LoginID, Currency: a.Currency, Balance: float64(a.Balance), Type: models.AccountReal}
			if a.IsVirtual == 1 {
				acct.Type = models.AccountDemo
			}
			c.log.Info("venue: authorized", logger.String("loginid", a.LoginID), logger.String("account_type", string(acct.Type)))
			return acct, nil
		}
		lastErr = err
		if errors.Is(err, errs.ErrAuth) || ctx.Err() != nil {
			break
		}
		c.log.Warn("venue: authorize attempt failed", logger.Int("attempt", attempt), logger.Error(err))
	}
	return models.Account{}, lastErr
}

// SubscribeTicks registers h and starts the tick stream for symbol.
func (c *Client) SubscribeTicks(ctx context.Context, symbol string, h domrepo.TickHandler) error {
	c.mu.Lock()
	c.ticks[symbol] = h
	c.mu.Unlock()
	if err := c.requestTicks(ctx, symbol); err != nil {
		c.mu.Lock()
		delete(c.ticks, symbol)
		c.mu.Unlock()
		return err
	}
	return nil
}

func (c *Client) requestTicks(ctx context.Context, symbol string) error {
	_, err := c.call(ctx, "venue.ticks", map[string]interface{}{"ticks": symbol, "subscribe": 1}, 0)
	return err
}

// UnsubscribeTicks stops the tick stream for symbol.
func (c *Client) UnsubscribeTicks(ctx context.Context, symbol string) error {
	c.mu.Lock()
	delete(c.ticks, symbol)
	id := c.subIDs[symbol]
	delete(c.subIDs, symbol)
	c.mu.Unlock()
	if id == "" {
		return nil
	}
	_, err := c.call(ctx, "venue.forget", map[string]interface{}{msgForget: id}, 0)
	return err
}

// SubscribeBalance streams balance updates to h.
func (c *Client) SubscribeBalance(ctx context.Context, h func(balance float64)) error {
	c.mu.Lock()
	c.balance = h
	c.mu.Unlock()
	return c.requestBalance(ctx)
}

func (c *Client) requestBalance(ctx context.Context) error {
	_, err := c.call(ctx, "venue.balance", map[string]interface{}{msgBalance: 1, "subscribe": 1}, 0)
	return err
}

// TicksHistory fetches up to count recent ticks, count clamped to [10, 5000].
func (c *Client) TicksHistory(ctx context.Context, symbol string, count int) ([]models.Tick, error) {
	count = max(minHistory, min(count, maxHistory))
	raw, err := c.call(ctx, "venue.history", map[string]interface{}{
		"ticks_history":     symbol,
		"adjust_start_time": 1,
		"count":             count,
		"end":               "latest",
		"style":             "ticks",
	}, 0)
	if err != nil {
		return nil, err
	}
	resp, err := decode[historyResponse](raw)
	if err != nil {
		return nil, fmt.Errorf("venue.history: decode: %w", err)
	}
	h := resp.History
	n := min(len(h.Prices), len(h.Times))
	out := make([]models.Tick, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, models.Tick{Symbol: symbol, Price: float64(h.Prices[i]), Epoch: h.Times[i]})
	}
	return out, nil
}

// Buy places an order. Settlement arrives through SubscribeContract.
func (c *Client) Buy(ctx context.Context, req models.OrderRequest) (models.OrderReceipt, error) {
	currency := req.Currency
	if currency == "" {
		currency = "USD"
	}
	raw, err := c.call(ctx, "venue.buy", map[string]interface{}{
		msgBuy:  1,
		"price": req.Stake,
		"parameters": buyParameters{
			Amount:       req.Stake,
			Basis:        "stake",
			ContractType: string(req.ContractType),
			Currency:     currency,
			Duration:     req.Duration,
			DurationUnit: req.DurationUnit,
			Symbol:       req.Symbol,
			Barrier:      req.Barrier,
		},
	}, 0)
	if err != nil {
		return models.OrderReceipt{}, err
	}
	resp, err := decode[buyResponse](raw)
	if err != nil {
		return models.OrderReceipt{}, errs.New(errs.ErrOrderExecution, "venue.buy", err)
	}
	b := resp.Buy
	if b.ContractID == "" {
		return models.OrderReceipt{}, errs.Newf(errs.ErrOrderExecution, "venue.buy", "response without contract id")
	}
	return models.OrderReceipt{
		ContractID: string(b.ContractID),
		BuyPrice:   float64(b.BuyPrice),
		Balance:    float64(b.BalanceAfter),
		StartTime:  time.Unix(b.StartTime, 0),
	}, nil
}

// SubscribeContract streams updates for an open contract until it is sold.
func (c *Client) SubscribeContract(ctx context.Context, contractID string, h domrepo.ContractHandler) error {
	c.mu.Lock()
	c.contracts[contractID] = h
	c.mu.Unlock()
	if err := c.requestContract(ctx, contractID); err != nil {
		c.mu.Lock()
		delete(c.contracts, contractID)
		c.mu.Unlock()
		return err
	}
	return nil
}

func (c *Client) requestContract(ctx context.Context, contractID string) error {
	_, err := c.call(ctx, "venue.contract", map[string]interface{}{
		msgContract:   1,
		"contract_id": wireID(contractID),
		"subscribe":   1,
	}, 0)
	return err
}

// wireID sends numeric contract ids as numbers.
func wireID(id string) interface{} {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return n
	}
	return id
}

// Ping sends an application-level ping.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.call(ctx, "venue.ping", map[string]interface{}{msgPing: 1}, 0)
	return err
}
