package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"BinPull/internal/domain/models"
	domrepo "BinPull/internal/domain/repository"
	pkgch "BinPull/pkg/clickhouse"
	applogger "BinPull/pkg/logger"
)

const tradeColumns = "session_id, contract_id, symbol, direction, contract_type, stake, entry_price, exit_price, martingale_level, result, profit, opened_at, closed_at"

// ArchiveSchema returns the idempotent DDL for the trade and tick tables.
func ArchiveSchema(db string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.trades (
    session_id String,
    contract_id String,
    symbol LowCardinality(String),
    direction LowCardinality(String),
    contract_type LowCardinality(String),
    stake Float64,
    entry_price Float64,
    exit_price Float64,
    martingale_level UInt8,
    result LowCardinality(String),
    profit Float64,
    opened_at DateTime64(3),
    closed_at DateTime64(3)
) ENGINE = ReplacingMergeTree
ORDER BY (session_id, closed_at, contract_id)`, db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.ticks (
    ts DateTime64(3),
    symbol LowCardinality(String),
    price Float64,
    epoch Int64
) ENGINE = ReplacingMergeTree
ORDER BY (symbol, epoch)
TTL toDateTime(ts) + INTERVAL 30 DAY`, db),
	}
}

// CHArchive stores trades and ticks in ClickHouse.
type CHArchive struct {
	db     *sql.DB
	trades string
	ticks  string
	l      *applogger.Logger
}

var (
	_ domrepo.TradeArchive  = (*CHArchive)(nil)
	_ domrepo.TickArchive   = (*CHArchive)(nil)
	_ domrepo.CandleArchive = (*CHArchive)(nil)
)

func NewCHArchive(ch *pkgch.Client, database string, l *applogger.Logger) *CHArchive {
	if l == nil {
		l = applogger.Nop()
	}
	return &CHArchive{
		db:     ch.DB(),
		trades: database + ".trades",
		ticks:  database + ".ticks",
		l:      l,
	}
}

func (a *CHArchive) StoreTrade(ctx context.Context, t models.Trade) error {
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", a.trades, tradeColumns)
	if _, err := a.db.ExecContext(ctx, q, tradeArgs(t)...); err != nil {
		a.l.Error("clickhouse store_trade error",
			applogger.String("session_id", t.SessionID),
			applogger.String("contract_id", t.ContractID),
			applogger.Error(err))
		return fmt.Errorf("store trade: %w", err)
	}
	return nil
}

func tradeArgs(t models.Trade) []interface{} {
	return []interface{}{
		t.SessionID, t.ContractID, t.Symbol, string(t.Direction), string(t.ContractType),
		t.Stake, t.EntryPrice, t.ExitPrice, uint8(t.MartingaleLevel), string(t.Result), t.Profit,
		t.OpenedAt.UTC(), t.ClosedAt.UTC(),
	}
}

func (a *CHArchive) QueryTrades(ctx context.Context, sessionID string, from, to time.Time, limit int) ([]models.Trade, error) {
	start := time.Now()
	q := fmt.Sprintf("SELECT %s FROM %s FINAL WHERE session_id = ? AND closed_at >= ? AND closed_at <= ? ORDER BY closed_at DESC LIMIT ?",
		tradeColumns, a.trades)
	rows, err := a.db.QueryContext(ctx, q, sessionID, from.UTC(), to.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var out []models.Trade
	for rows.Next() {
		var (
			t            models.Trade
			dir, ct, res string
			level        uint8
		)
		if err := rows.Scan(&t.SessionID, &t.ContractID, &t.Symbol, &dir, &ct,
			&t.Stake, &t.EntryPrice, &t.ExitPrice, &level, &res, &t.Profit, &t.OpenedAt, &t.ClosedAt); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		t.Direction = models.Direction(dir)
		t.ContractType = models.ContractType(ct)
		t.Result = models.TradeResult(res)
		t.MartingaleLevel = int(level)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	a.l.Debug("clickhouse query_trades ok",
		applogger.String("session_id", sessionID),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)))
	return out, nil
}

// StoreTicks writes a batch with one multi-row insert per chunk.
func (a *CHArchive) StoreTicks(ctx context.Context, ticks []models.Tick) error {
	const chunkSize = 2000
	for start := 0; start < len(ticks); start += chunkSize {
		end := min(start+chunkSize, len(ticks))
		values, args := tickValues(ticks[start:end])
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (ts, symbol, price, epoch) VALUES %s", a.ticks, strings.Join(values, ","))
		if _, err := a.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("store ticks: %w", err)
		}
	}
	return nil
}

func tickValues(ticks []models.Tick) ([]string, []interface{}) {
	values := make([]string, 0, len(ticks))
	args := make([]interface{}, 0, len(ticks)*4)
	for _, t := range ticks {
		if t.Symbol == "" || t.Epoch == 0 {
			continue
		}
		values = append(values, "(?, ?, ?, ?)")
		args = append(args, t.Time().UTC(), t.Symbol, t.Price, t.Epoch)
	}
	return values, args
}

// RecentTicks returns the last n ticks of symbol, oldest first.
func (a *CHArchive) RecentTicks(ctx context.Context, symbol string, n int) ([]models.Tick, error) {
	q := fmt.Sprintf("SELECT symbol, price, epoch FROM %s WHERE symbol = ? ORDER BY epoch DESC LIMIT ?", a.ticks)
	rows, err := a.db.QueryContext(ctx, q, symbol, n)
	if err != nil {
		return nil, fmt.Errorf("recent ticks: %w", err)
	}
	defer rows.Close()

	out := make([]models.Tick, 0, n)
	for rows.Next() {
		var t models.Tick
		if err := rows.Scan(&t.Symbol, &t.Price, &t.Epoch); err != nil {
			return nil, fmt.Errorf("scan tick: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	reverse(out)
	return out, nil
}

// RecentCandles folds archived ticks into tf buckets, oldest first.
func (a *CHArchive) RecentCandles(ctx context.Context, symbol string, tf domrepo.Timeframe, n int) ([]models.Candle, error) {
	if !domrepo.IsValidTimeframe(tf) {
		return nil, fmt.Errorf("unsupported timeframe: %s", tf)
	}
	q := candleQuery(a.ticks, tf)
	rows, err := a.db.QueryContext(ctx, q, symbol, n)
	if err != nil {
		a.l.Error("clickhouse recent_candles query error",
			applogger.String("symbol", symbol),
			applogger.String("tf", string(tf)),
			applogger.Error(err))
		return nil, fmt.Errorf("recent candles: %w", err)
	}
	defer rows.Close()

	out := make([]models.Candle, 0, n)
	for rows.Next() {
		c := models.Candle{Symbol: symbol}
		var cnt uint64
		if err := rows.Scan(&c.Bucket, &c.Open, &c.High, &c.Low, &c.Close, &cnt); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		c.Ticks = int(cnt)
		c.Volume = float64(cnt)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	reverse(out)
	return out, nil
}

func candleQuery(table string, tf domrepo.Timeframe) string {
	return fmt.Sprintf(`SELECT toStartOfInterval(ts, INTERVAL %d SECOND) AS bucket,
    argMin(price, epoch), max(price), min(price), argMax(price, epoch), count()
FROM %s
WHERE symbol = ?
GROUP BY bucket
ORDER BY bucket DESC
LIMIT ?`, int(tf.Duration().Seconds()), table)
}

func (a *CHArchive) Health(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

// Close is a no-op; the pool belongs to pkg/clickhouse.Client.
func (a *CHArchive) Close() error { return nil }

func reverse[T any](xs []T) {
	for i, j := 0, len(xs)-1; i < j; i, j = i+1, j-1 {
		xs[i], xs[j] = xs[j], xs[i]
	}
}
