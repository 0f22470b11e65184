package indicators

import (
	"time"

	"BinPull/internal/domain/models"
	"BinPull/internal/domain/repository"
	"BinPull/pkg/util"
)

// CandleAggregator folds ticks into fixed-width buckets per symbol.
type CandleAggregator struct {
	width time.Duration
	open  map[string]*models.Candle
}

func NewCandleAggregator(tf repository.Timeframe) *CandleAggregator {
	return &CandleAggregator{width: tf.Duration(), open: make(map[string]*models.Candle)}
}

// Add folds t and returns the previous candle when t opens a new bucket.
func (a *CandleAggregator) Add(t models.Tick) (models.Candle, bool) {
	if !validPrice(t.Price) {
		return models.Candle{}, false
	}
	bucket := util.BucketStart(t.Time(), a.width)
	cur, ok := a.open[t.Symbol]
	if !ok {
		a.open[t.Symbol] = newCandle(t, bucket)
		return models.Candle{}, false
	}
	if bucket.After(cur.Bucket) {
		closed := *cur
		a.open[t.Symbol] = newCandle(t, bucket)
		return closed, true
	}
	if bucket.Before(cur.Bucket) {
		return models.Candle{}, false
	}
	if t.Price > cur.High {
		cur.High = t.Price
	}
	if t.Price < cur.Low {
		cur.Low = t.Price
	}
	cur.Close = t.Price
	cur.Ticks++
	cur.Volume = float64(cur.Ticks)
	return models.Candle{}, false
}

// Current returns the in-progress candle for symbol.
func (a *CandleAggregator) Current(symbol string) (models.Candle, bool) {
	c, ok := a.open[symbol]
	if !ok {
		return models.Candle{}, false
	}
	return *c, true
}

func newCandle(t models.Tick, bucket time.Time) *models.Candle {
	return &models.Candle{
		Bucket: bucket,
		Symbol: t.Symbol,
		Open:   t.Price,
		High:   t.Price,
		Low:    t.Price,
		Close:  t.Price,
		Volume: 1,
		Ticks:  1,
	}
}
