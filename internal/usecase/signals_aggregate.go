package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"BinPull/internal/domain/models"
	domrepo "BinPull/internal/domain/repository"
	"BinPull/internal/eventbus"
)

// SignalFeed keeps the latest signal events per symbol, fed from the bus.
type SignalFeed struct {
	keep int

	mu       sync.RWMutex
	bySymbol map[string][]models.Event
}

func NewSignalFeed(keep int) *SignalFeed {
	if keep <= 0 {
		keep = 100
	}
	return &SignalFeed{keep: keep, bySymbol: make(map[string][]models.Event)}
}

// Run consumes sub until ctx ends or the subscription closes.
func (f *SignalFeed) Run(ctx context.Context, sub *eventbus.Subscription) {
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub.C():
			if !ok {
				return
			}
			if e.Kind == models.EventSignal {
				f.add(e)
			}
		}
	}
}

func (f *SignalFeed) add(e models.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := append(f.bySymbol[e.Symbol], e)
	if len(list) > f.keep {
		list = append([]models.Event(nil), list[len(list)-f.keep:]...)
	}
	f.bySymbol[e.Symbol] = list
}

// Latest returns up to n signal events for symbol, newest last.
func (f *SignalFeed) Latest(symbol string, n int) []models.Event {
	f.mu.RLock()
	defer f.mu.RUnlock()
	list := f.bySymbol[symbol]
	if n > 0 && len(list) > n {
		list = list[len(list)-n:]
	}
	return append([]models.Event(nil), list...)
}

// MarketOverview is everything known about one symbol. Sources that failed
// are reported in Errors and left empty.
type MarketOverview struct {
	Symbol    string            `json:"symbol"`
	Timeframe string            `json:"timeframe"`
	Timestamp time.Time         `json:"timestamp"`
	Candles   []models.Candle   `json:"candles,omitempty"`
	Ticks     []models.Tick     `json:"ticks,omitempty"`
	Signals   []models.Event    `json:"signals,omitempty"`
	Errors    map[string]string `json:"errors,omitempty"`
}

// MarketOverviewUseCase gathers archive and feed data for a symbol in parallel.
type MarketOverviewUseCase struct {
	candles domrepo.CandleArchive
	ticks   domrepo.TickArchive
	feed    *SignalFeed
	timeout time.Duration
}

func NewMarketOverviewUseCase(candles domrepo.CandleArchive, ticks domrepo.TickArchive, feed *SignalFeed) *MarketOverviewUseCase {
	return &MarketOverviewUseCase{candles: candles, ticks: ticks, feed: feed, timeout: 10 * time.Second}
}

type GetOverviewParams struct {
	Symbol    string
	N         int
	Timeframe domrepo.Timeframe
}

func (uc *MarketOverviewUseCase) GetOverview(ctx context.Context, p GetOverviewParams) (*MarketOverview, error) {
	if p.Symbol == "" {
		return nil, fmt.Errorf("%w: symbol required", ErrInvalidCommand)
	}
	if p.N <= 0 {
		p.N = 100
	}
	p.Timeframe = domrepo.NormalizeTimeframe(string(p.Timeframe))

	// Overall timeout
	ctx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()

	res := &MarketOverview{
		Symbol:    p.Symbol,
		Timeframe: string(p.Timeframe),
		Timestamp: time.Now(),
		Errors:    map[string]string{},
	}

	type item struct {
		name string
		val  interface{}
		err  error
	}
	ch := make(chan item, 2)
	var wg sync.WaitGroup

	if uc.candles != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := uc.candles.RecentCandles(ctx, p.Symbol, p.Timeframe, p.N)
			ch <- item{"candles", v, err}
		}()
	}
	if uc.ticks != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := uc.ticks.RecentTicks(ctx, p.Symbol, p.N)
			ch <- item{"ticks", v, err}
		}()
	}

	go func() { wg.Wait(); close(ch) }()

	for it := range ch {
		if it.err != nil {
			res.Errors[it.name] = it.err.Error()
			continue
		}
		switch it.name {
		case "candles":
			res.Candles = it.val.([]models.Candle)
		case "ticks":
			res.Ticks = it.val.([]models.Tick)
		}
	}
	if uc.feed != nil {
		res.Signals = uc.feed.Latest(p.Symbol, p.N)
	}

	if len(res.Errors) == 0 {
		res.Errors = nil
	}
	return res, nil
}
