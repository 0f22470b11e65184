package usecase

import (
	"context"
	"errors"
	"fmt"

	"BinPull/internal/domain/models"
	domrepo "BinPull/internal/domain/repository"
)

// ErrArchiveDisabled is returned by reads that need ClickHouse when it is off.
var ErrArchiveDisabled = errors.New("archive disabled")

// CandlesUseCase serves archived candles at the trend-filter timeframes.
type CandlesUseCase struct {
	store domrepo.CandleArchive
}

func NewCandlesUseCase(store domrepo.CandleArchive) *CandlesUseCase {
	return &CandlesUseCase{store: store}
}

type GetCandlesParams struct {
	Symbol    string
	Timeframe domrepo.Timeframe
	Limit     int
}

type GetCandlesResult struct {
	Symbol    string          `json:"symbol"`
	Timeframe string          `json:"timeframe"`
	Count     int             `json:"count"`
	Candles   []models.Candle `json:"candles"`
}

func (uc *CandlesUseCase) GetCandles(ctx context.Context, p GetCandlesParams) (*GetCandlesResult, error) {
	if uc.store == nil {
		return nil, ErrArchiveDisabled
	}
	if p.Symbol == "" {
		return nil, fmt.Errorf("%w: symbol required", ErrInvalidCommand)
	}
	p.Timeframe = domrepo.NormalizeTimeframe(string(p.Timeframe))
	if p.Limit <= 0 {
		p.Limit = 100
	}
	if p.Limit > 5000 {
		p.Limit = 5000
	}

	candles, err := uc.store.RecentCandles(ctx, p.Symbol, p.Timeframe, p.Limit)
	if err != nil {
		return nil, fmt.Errorf("get candles: %w", err)
	}
	return &GetCandlesResult{
		Symbol:    p.Symbol,
		Timeframe: string(p.Timeframe),
		Count:     len(candles),
		Candles:   candles,
	}, nil
}
