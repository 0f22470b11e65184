package usecase

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"BinPull/internal/domain/errs"
	"BinPull/internal/domain/models"
	domrepo "BinPull/internal/domain/repository"
	"BinPull/internal/service/breaker"
	"BinPull/pkg/logger"
)

// Buyer is the slice of the venue used to place orders.
type Buyer interface {
	Buy(ctx context.Context, req models.OrderRequest) (models.OrderReceipt, error)
}

type ExecutorConfig struct {
	BuyTimeout  time.Duration
	BackoffBase time.Duration
	BackoffMax  time.Duration
	Jitter      float64
	MaxAttempts int
}

func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		BuyTimeout:  30 * time.Second,
		BackoffBase: 5 * time.Second,
		BackoffMax:  60 * time.Second,
		Jitter:      0.30,
		MaxAttempts: 5,
	}
}

// OrderExecutor places orders with a buy timeout, exponential retry and a
// circuit breaker.
type OrderExecutor struct {
	buyer   Buyer
	breaker *breaker.Breaker
	cfg     ExecutorConfig
	log     *logger.Logger
	metrics domrepo.Metrics
	sleep   func(ctx context.Context, d time.Duration) error
	jitter  func() float64
}

func NewOrderExecutor(b Buyer, br *breaker.Breaker, cfg ExecutorConfig, lg *logger.Logger, m domrepo.Metrics) *OrderExecutor {
	if br == nil {
		br = breaker.New()
	}
	if m == nil {
		m = domrepo.NopMetrics{}
	}
	if lg == nil {
		lg = logger.Nop()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return &OrderExecutor{
		buyer:   b,
		breaker: br,
		cfg:     cfg,
		log:     lg,
		metrics: m,
		sleep:   sleepCtx,
		jitter:  rand.Float64,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Delay is the wait after a failed attempt: base·2^(attempt-1) capped at max,
// plus up to Jitter of itself.
func (e *OrderExecutor) Delay(attempt int) time.Duration {
	d := e.cfg.BackoffBase
	for i := 1; i < attempt && d < e.cfg.BackoffMax; i++ {
		d *= 2
	}
	d = min(d, e.cfg.BackoffMax)
	return d + time.Duration(float64(d)*e.cfg.Jitter*e.jitter())
}

// ErrBuyRetriesExhausted marks a placement that failed on every attempt.
var ErrBuyRetriesExhausted = errors.New("buy retries exhausted")

// Place buys req, retrying transient failures. Only the first successful
// receipt is returned; a cancelled ctx yields ErrCancelled. A buy that times
// out is never resubmitted since the venue may already have filled it.
func (e *OrderExecutor) Place(ctx context.Context, req models.OrderRequest) (models.OrderReceipt, error) {
	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		done, err := e.breaker.Allow()
		if err != nil {
			e.metrics.RecordError("order_breaker_open")
			return models.OrderReceipt{}, errs.Newf(errs.ErrOrderExecution, "order.place", "%v, retry in %s", err, e.breaker.Remaining().Round(time.Second))
		}

		start := time.Now()
		bctx, cancel := context.WithTimeout(ctx, e.cfg.BuyTimeout)
		rcpt, err := e.buyer.Buy(bctx, req)
		cancel()
		if err == nil {
			done(true)
			e.metrics.RecordLatency("order_buy", time.Since(start).Seconds())
			return rcpt, nil
		}
		if ctx.Err() != nil {
			done(true)
			return models.OrderReceipt{}, errs.New(errs.ErrCancelled, "order.place", ctx.Err())
		}
		if errors.Is(err, errs.ErrRequestTimeout) || errors.Is(err, context.DeadlineExceeded) {
			done(false)
			e.metrics.RecordError("order_buy_timeout")
			e.log.Error("order: buy timed out, not resubmitting",
				logger.String("symbol", req.Symbol),
				logger.Float64("stake", req.Stake),
				logger.Int("attempt", attempt),
				logger.Error(err))
			return models.OrderReceipt{}, errs.New(errs.ErrOrderExecution, "order.place", err)
		}
		if !retryable(err) {
			done(true)
			return models.OrderReceipt{}, err
		}

		done(false)
		lastErr = err
		e.metrics.RecordError("order_buy")
		if attempt == e.cfg.MaxAttempts {
			break
		}
		delay := e.Delay(attempt)
		e.log.Warn("order: buy failed, retrying",
			logger.String("symbol", req.Symbol),
			logger.Int("attempt", attempt),
			logger.Duration("delay_ms", delay),
			logger.Error(err))
		if err := e.sleep(ctx, delay); err != nil {
			return models.OrderReceipt{}, errs.New(errs.ErrCancelled, "order.place", err)
		}
	}
	return models.OrderReceipt{}, errs.New(errs.ErrOrderExecution, "order.place",
		fmt.Errorf("%w after %d attempts: %w", ErrBuyRetriesExhausted, e.cfg.MaxAttempts, lastErr))
}

// retryable excludes failures another attempt cannot fix.
func retryable(err error) bool {
	switch {
	case errors.Is(err, errs.ErrAuth),
		errors.Is(err, errs.ErrInsufficientBalance),
		errors.Is(err, errs.ErrRiskLimitExceeded),
		errors.Is(err, errs.ErrCancelled):
		return false
	}
	return true
}
