package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"BinPull/internal/domain/errs"
	"BinPull/internal/domain/models"
	"BinPull/internal/service/breaker"
)

type scriptedBuyer struct {
	errs  []error
	calls int
}

func (b *scriptedBuyer) Buy(ctx context.Context, req models.OrderRequest) (models.OrderReceipt, error) {
	i := b.calls
	b.calls++
	if i < len(b.errs) && b.errs[i] != nil {
		return models.OrderReceipt{}, b.errs[i]
	}
	return models.OrderReceipt{ContractID: "c1", BuyPrice: req.Stake}, nil
}

func newTestExecutor(b Buyer, br *breaker.Breaker) (*OrderExecutor, *[]time.Duration) {
	e := NewOrderExecutor(b, br, DefaultExecutorConfig(), nil, nil)
	var slept []time.Duration
	e.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	e.jitter = func() float64 { return 0 }
	return e, &slept
}

func TestExecutorDelaySchedule(t *testing.T) {
	e, _ := newTestExecutor(&scriptedBuyer{}, nil)
	want := []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second, 40 * time.Second, 60 * time.Second, 60 * time.Second}
	for i, w := range want {
		assert.Equal(t, w, e.Delay(i+1), "attempt %d", i+1)
	}
	e.jitter = func() float64 { return 1 }
	assert.Equal(t, 6500*time.Millisecond, e.Delay(1), "jitter adds at most 30%")
}

func TestExecutorRetriesTransientFailures(t *testing.T) {
	transient := errs.New(errs.ErrConnection, "venue.buy", nil)
	b := &scriptedBuyer{errs: []error{transient, transient}}
	e, slept := newTestExecutor(b, breaker.New(breaker.WithThreshold(10)))

	rcpt, err := e.Place(context.Background(), models.OrderRequest{Symbol: "R_100", Stake: 1})
	require.NoError(t, err)
	assert.Equal(t, "c1", rcpt.ContractID)
	assert.Equal(t, 3, b.calls)
	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second}, *slept)
}

func TestExecutorDoesNotRetryFatal(t *testing.T) {
	for _, kind := range []error{errs.ErrInsufficientBalance, errs.ErrAuth} {
		b := &scriptedBuyer{errs: []error{errs.Newf(kind, "venue.buy", "no")}}
		e, slept := newTestExecutor(b, nil)
		_, err := e.Place(context.Background(), models.OrderRequest{Stake: 1})
		require.ErrorIs(t, err, kind)
		assert.Equal(t, 1, b.calls)
		assert.Empty(t, *slept)
	}
}

func TestExecutorTimedOutBuyIsNotResubmitted(t *testing.T) {
	for _, timeout := range []error{
		errs.New(errs.ErrRequestTimeout, "venue.buy", nil),
		context.DeadlineExceeded,
	} {
		b := &scriptedBuyer{errs: []error{timeout}}
		br := breaker.New(breaker.WithThreshold(1))
		e, slept := newTestExecutor(b, br)

		rcpt, err := e.Place(context.Background(), models.OrderRequest{Symbol: "R_100", Stake: 1})
		require.ErrorIs(t, err, errs.ErrOrderExecution)
		require.ErrorIs(t, err, timeout)
		assert.Empty(t, rcpt.ContractID)
		assert.Equal(t, 1, b.calls, "a second buy could double the exposure")
		assert.Empty(t, *slept)
		assert.Equal(t, breaker.StateOpen, br.State(), "the timeout counts as a breaker failure")
	}
}

func TestExecutorRetriesExhausted(t *testing.T) {
	fail := errors.New("rejected")
	b := &scriptedBuyer{errs: []error{fail, fail, fail, fail, fail}}
	e, slept := newTestExecutor(b, breaker.New(breaker.WithThreshold(10)))

	_, err := e.Place(context.Background(), models.OrderRequest{Stake: 1})
	require.ErrorIs(t, err, errs.ErrOrderExecution)
	require.ErrorIs(t, err, ErrBuyRetriesExhausted)
	require.ErrorIs(t, err, fail)
	assert.Equal(t, 5, b.calls)
	assert.Len(t, *slept, 4)
}

func TestExecutorBreakerOpens(t *testing.T) {
	fail := errors.New("boom")
	b := &scriptedBuyer{errs: []error{fail, fail, fail, fail, fail}}
	br := breaker.New()
	e, _ := newTestExecutor(b, br)

	_, err := e.Place(context.Background(), models.OrderRequest{Stake: 1})
	require.ErrorIs(t, err, errs.ErrOrderExecution)
	assert.Equal(t, 3, b.calls, "breaker opens after three failures")
	assert.Equal(t, breaker.StateOpen, br.State())

	_, err = e.Place(context.Background(), models.OrderRequest{Stake: 1})
	require.ErrorIs(t, err, errs.ErrOrderExecution)
	assert.Equal(t, 3, b.calls, "open breaker rejects without calling the venue")
}

func TestExecutorCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b := &scriptedBuyer{errs: []error{errors.New("x")}}
	e, _ := newTestExecutor(b, nil)
	e.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}
	_, err := e.Place(ctx, models.OrderRequest{Stake: 1})
	require.ErrorIs(t, err, errs.ErrCancelled)
}
