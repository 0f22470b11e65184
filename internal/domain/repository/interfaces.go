package repository

import (
	"context"
	"time"

	"BinPull/internal/domain/models"
)

// TickHandler receives live ticks for one symbol.
type TickHandler func(models.Tick)

// ContractHandler receives settlement stream updates for one contract.
type ContractHandler func(models.ContractUpdate)

// StateListener observes venue link transitions. err is set when the
// transition was caused by a failure.
type StateListener func(from, to models.ConnectionPhase, err error)

// Venue is the per-session link to the trading venue.
type Venue interface {
	Connect(ctx context.Context) error
	Disconnect() error
	Phase() models.ConnectionPhase
	SetStateListener(fn StateListener)

	Authorize(ctx context.Context, token string) (models.Account, error)
	SubscribeTicks(ctx context.Context, symbol string, h TickHandler) error
	UnsubscribeTicks(ctx context.Context, symbol string) error
	SubscribeBalance(ctx context.Context, h func(balance float64)) error
	TicksHistory(ctx context.Context, symbol string, count int) ([]models.Tick, error)
	Buy(ctx context.Context, req models.OrderRequest) (models.OrderReceipt, error)
	SubscribeContract(ctx context.Context, contractID string, h ContractHandler) error
}

// VenueFactory builds a fresh venue link for a session.
type VenueFactory func(sessionID string) Venue

// SessionStore persists the durable session snapshot.
type SessionStore interface {
	Save(ctx context.Context, s models.SessionState) error
	// Load returns errs.ErrSessionStateCorrupt for stale or inconsistent
	// snapshots and cache.ErrCacheMiss-wrapped errors when none exists.
	Load(ctx context.Context, sessionID string) (models.SessionState, error)
	Delete(ctx context.Context, sessionID string) error
}

// SessionLock guarantees a single live session per user across processes.
type SessionLock interface {
	Acquire(ctx context.Context, userID string) (bool, error)
	Release(ctx context.Context, userID string) error
}

// TradeArchive stores settled trades.
type TradeArchive interface {
	StoreTrade(ctx context.Context, t models.Trade) error
	QueryTrades(ctx context.Context, sessionID string, from, to time.Time, limit int) ([]models.Trade, error)
	Close() error
}

// TickArchive stores raw ticks and serves history when the venue cannot.
type TickArchive interface {
	StoreTicks(ctx context.Context, ticks []models.Tick) error
	RecentTicks(ctx context.Context, symbol string, n int) ([]models.Tick, error)
}

// CandleArchive serves higher-timeframe candles folded from archived ticks.
type CandleArchive interface {
	RecentCandles(ctx context.Context, symbol string, tf Timeframe, n int) ([]models.Candle, error)
}

// EventSink forwards bus events to an external transport.
type EventSink interface {
	Publish(ctx context.Context, e models.Event) error
	Close() error
}

// CredentialProvider resolves the venue API token for a user and account.
type CredentialProvider interface {
	Token(ctx context.Context, userID string, account models.AccountType) (string, error)
}

type Metrics interface {
	RecordTick(symbol string, price float64)
	RecordSignal(strategy, direction string, allowed bool)
	RecordTrade(symbol string, result models.TradeResult, profit float64)
	RecordBalance(sessionID string, balance float64)
	RecordMartingaleLevel(sessionID string, level int)
	RecordConnectionPhase(sessionID string, phase models.ConnectionPhase)
	RecordEventDropped(kind string)
	RecordError(kind string)
	RecordLatency(op string, seconds float64)
}
