package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"BinPull/internal/domain/errs"
	"BinPull/internal/domain/models"
	domrepo "BinPull/internal/domain/repository"
	"BinPull/internal/eventbus"
)

type fakeVenue struct {
	mu           sync.Mutex
	phase        models.ConnectionPhase
	listener     domrepo.StateListener
	account      models.Account
	authErr      error
	connectErr   error
	history      []models.Tick
	historyErr   error
	ticks        map[string]domrepo.TickHandler
	balance      func(float64)
	contracts    map[string]domrepo.ContractHandler
	buy          func(models.OrderRequest) (models.OrderReceipt, error)
	buys         []models.OrderRequest
	tokens       []string
	unsubscribed []string
	connects     int
	disconnects  int
}

func newFakeVenue() *fakeVenue {
	return &fakeVenue{
		phase:     models.ConnDisconnected,
		account:   models.Account{LoginID: "VRTC1", Currency: "USD", Balance: 100, Type: models.AccountDemo},
		ticks:     make(map[string]domrepo.TickHandler),
		contracts: make(map[string]domrepo.ContractHandler),
	}
}

func (v *fakeVenue) move(to models.ConnectionPhase, err error) {
	v.mu.Lock()
	from := v.phase
	v.phase = to
	fn := v.listener
	v.mu.Unlock()
	if fn != nil {
		fn(from, to, err)
	}
}

func (v *fakeVenue) Connect(context.Context) error {
	v.mu.Lock()
	v.connects++
	err := v.connectErr
	v.mu.Unlock()
	if err != nil {
		return err
	}
	v.move(models.ConnConnected, nil)
	return nil
}

func (v *fakeVenue) Disconnect() error {
	v.mu.Lock()
	v.disconnects++
	v.mu.Unlock()
	v.move(models.ConnDisconnected, nil)
	return nil
}

func (v *fakeVenue) Phase() models.ConnectionPhase {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.phase
}

func (v *fakeVenue) SetStateListener(fn domrepo.StateListener) {
	v.mu.Lock()
	v.listener = fn
	v.mu.Unlock()
}

func (v *fakeVenue) Authorize(_ context.Context, token string) (models.Account, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.tokens = append(v.tokens, token)
	if v.authErr != nil {
		return models.Account{}, v.authErr
	}
	return v.account, nil
}

func (v *fakeVenue) SubscribeTicks(_ context.Context, symbol string, h domrepo.TickHandler) error {
	v.mu.Lock()
	v.ticks[symbol] = h
	v.mu.Unlock()
	return nil
}

func (v *fakeVenue) UnsubscribeTicks(_ context.Context, symbol string) error {
	v.mu.Lock()
	delete(v.ticks, symbol)
	v.unsubscribed = append(v.unsubscribed, symbol)
	v.mu.Unlock()
	return nil
}

func (v *fakeVenue) SubscribeBalance(_ context.Context, h func(float64)) error {
	v.mu.Lock()
	v.balance = h
	v.mu.Unlock()
	return nil
}

func (v *fakeVenue) TicksHistory(_ context.Context, _ string, _ int) ([]models.Tick, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.history, v.historyErr
}

func (v *fakeVenue) Buy(_ context.Context, req models.OrderRequest) (models.OrderReceipt, error) {
	v.mu.Lock()
	v.buys = append(v.buys, req)
	fn := v.buy
	v.mu.Unlock()
	if fn == nil {
		return models.OrderReceipt{ContractID: "c1", BuyPrice: req.Stake}, nil
	}
	return fn(req)
}

func (v *fakeVenue) SubscribeContract(_ context.Context, id string, h domrepo.ContractHandler) error {
	v.mu.Lock()
	v.contracts[id] = h
	v.mu.Unlock()
	return nil
}

func (v *fakeVenue) emitTick(t models.Tick) {
	v.mu.Lock()
	h := v.ticks[t.Symbol]
	v.mu.Unlock()
	if h != nil {
		h(t)
	}
}

func (v *fakeVenue) contract(id string) domrepo.ContractHandler {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.contracts[id]
}

func (v *fakeVenue) tickSubscribed(symbol string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.ticks[symbol]
	return ok
}

type fakeCreds struct {
	err error
}

func (c fakeCreds) Token(_ context.Context, user string, acct models.AccountType) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	return user + "-" + string(acct), nil
}

var errSnapshotMiss = errors.New("snapshot miss")

type fakeStore struct {
	mu    sync.Mutex
	data  map[string]models.SessionState
	bad   map[string]bool
	saves int
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]models.SessionState), bad: make(map[string]bool)}
}

func (s *fakeStore) Save(_ context.Context, st models.SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st.SavedAt = time.Now()
	s.data[st.SessionID] = st
	s.saves++
	return nil
}

func (s *fakeStore) Load(_ context.Context, id string) (models.SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bad[id] {
		delete(s.bad, id)
		return models.SessionState{}, errs.Newf(errs.ErrSessionStateCorrupt, "store.load", "bad snapshot")
	}
	st, ok := s.data[id]
	if !ok {
		return models.SessionState{}, errSnapshotMiss
	}
	return st, nil
}

func (s *fakeStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, id)
	return nil
}

func (s *fakeStore) get(id string) (models.SessionState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.data[id]
	return st, ok
}

type fakeLock struct {
	mu   sync.Mutex
	held map[string]bool
}

func (l *fakeLock) Acquire(_ context.Context, user string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = make(map[string]bool)
	}
	if l.held[user] {
		return false, nil
	}
	l.held[user] = true
	return true, nil
}

func (l *fakeLock) Release(_ context.Context, user string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, user)
	return nil
}

type fakeTrades struct {
	mu     sync.Mutex
	stored []models.Trade
}

func (f *fakeTrades) StoreTrade(_ context.Context, t models.Trade) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored = append(f.stored, t)
	return nil
}

func (f *fakeTrades) QueryTrades(_ context.Context, sessionID string, _, _ time.Time, limit int) ([]models.Trade, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Trade
	for _, t := range f.stored {
		if t.SessionID == sessionID {
			out = append(out, t)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeTrades) Close() error { return nil }

type fakeTickStore struct {
	mu      sync.Mutex
	batches [][]models.Tick
	recent  []models.Tick
}

func (f *fakeTickStore) StoreTicks(_ context.Context, ticks []models.Tick) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, append([]models.Tick(nil), ticks...))
	return nil
}

func (f *fakeTickStore) RecentTicks(_ context.Context, _ string, _ int) ([]models.Tick, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recent, nil
}

func (f *fakeTickStore) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

func makeTicks(symbol string, n int, start int64) []models.Tick {
	out := make([]models.Tick, n)
	for i := range out {
		out[i] = models.Tick{Symbol: symbol, Price: 100 + float64(i%7)*0.1, Epoch: start + int64(i)}
	}
	return out
}

func testConfig(user string) SessionConfig {
	return SessionConfig{
		UserID:    user,
		Account:   models.AccountDemo,
		Strategy:  models.VariantMultiIndicator,
		BaseStake: 1,
		Symbols:   []string{"R_100"},
	}
}

func newTestSession(t *testing.T, v *fakeVenue, store *fakeStore, bus *eventbus.Bus, mutate func(*SessionConfig, *SessionDeps)) *Session {
	t.Helper()
	cfg := testConfig("u1")
	deps := SessionDeps{Venue: v, Credentials: fakeCreds{}, Store: store, Bus: bus}
	if mutate != nil {
		mutate(&cfg, &deps)
	}
	s, err := NewSession(cfg, deps)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	return s
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting: %s", msg)
}

func waitEvent(t *testing.T, sub *eventbus.Subscription, kind models.EventKind) models.Event {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case e := <-sub.C():
			if e.Kind == kind {
				return e
			}
		case <-timeout:
			t.Fatalf("no %s event", kind)
		}
	}
}
