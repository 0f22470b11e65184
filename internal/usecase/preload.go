package usecase

import (
	"context"
	"fmt"
	"time"

	"BinPull/internal/domain/models"
	"BinPull/pkg/logger"
	"BinPull/pkg/util"
)

const (
	preloadTimeout = 30 * time.Second
	mtfCandles     = 60
)

// preload warms the indicator engines before trading. Each source is tried in
// turn: venue history, then the tick archive. When both fail the symbol warms
// up on live ticks. It never fails the session.
func (s *Session) preload(ctx context.Context) {
	for _, sym := range s.cfg.Symbols {
		s.warmHigherTimeframe(ctx, sym)

		ticks, source, err := s.fetchHistory(ctx, sym)
		if err != nil {
			s.metrics.RecordError("preload")
			s.log.Warn("session: preload unavailable, warming on live ticks",
				logger.String("symbol", sym), logger.Error(err))
			continue
		}
		fed := 0
		for _, t := range ticks {
			if _, err := s.engine.Update(sym, t); err != nil {
				continue
			}
			s.feedCandles(t)
			fed++
		}
		if len(ticks) > 0 {
			s.preloadEdge[sym] = ticks[len(ticks)-1].Epoch
		}
		st, _ := s.engine.State(sym)
		s.log.Info("session: preloaded",
			logger.String("symbol", sym),
			logger.String("source", source),
			logger.Int("ticks", fed),
			logger.Bool("warm", st.Warm))
	}
}

func (s *Session) fetchHistory(ctx context.Context, sym string) ([]models.Tick, string, error) {
	hctx, cancel := context.WithTimeout(ctx, preloadTimeout)
	defer cancel()

	ticks, err := s.deps.Venue.TicksHistory(hctx, sym, s.cfg.HistoryCount)
	if err == nil && len(ticks) > 0 {
		return ticks, "venue", nil
	}
	venueErr := err
	if venueErr == nil {
		venueErr = fmt.Errorf("empty history")
	}
	if s.deps.Ticks == nil {
		return nil, "", venueErr
	}
	s.log.Debug("session: venue history failed, trying archive", logger.String("symbol", sym), logger.Error(venueErr))
	ticks, err = s.deps.Ticks.RecentTicks(hctx, sym, s.cfg.HistoryCount)
	if err != nil {
		return nil, "", fmt.Errorf("venue: %v; archive: %w", venueErr, err)
	}
	if len(ticks) == 0 {
		return nil, "", fmt.Errorf("venue: %v; archive empty", venueErr)
	}
	return ticks, "archive", nil
}

// warmHigherTimeframe seeds the trend engine with closed candles from the
// archive. The bucket still forming is left to the live aggregator.
func (s *Session) warmHigherTimeframe(ctx context.Context, sym string) {
	if s.deps.Candles == nil {
		return
	}
	cctx, cancel := context.WithTimeout(ctx, preloadTimeout)
	defer cancel()
	candles, err := s.deps.Candles.RecentCandles(cctx, sym, s.cfg.MTF, mtfCandles)
	if err != nil {
		s.log.Debug("session: candle archive unavailable", logger.String("symbol", sym), logger.Error(err))
		return
	}
	open := util.BucketStart(s.now(), s.cfg.MTF.Duration())
	n := 0
	for _, c := range candles {
		if !c.Bucket.Before(open) {
			break
		}
		if _, err := s.mtf.UpdateCandle(c); err != nil {
			continue
		}
		s.mtfEdge[sym] = c.Bucket
		n++
	}
	s.log.Debug("session: higher timeframe seeded", logger.String("symbol", sym), logger.Int("candles", n))
}
