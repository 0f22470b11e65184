package api

import (
	"BinPull/internal/domain/models"
	domrepo "BinPull/internal/domain/repository"
	"BinPull/internal/usecase"
	xhttp "BinPull/pkg/http"
	xlogger "BinPull/pkg/logger"

	"github.com/labstack/echo/v4"
)

// PairRanker is the scanner view the market API serves.
type PairRanker interface {
	Snapshot(n int) models.ScannerSnapshot
}

// MarketHandler serves archived candles, the per-symbol overview and the
// pair scanner.
type MarketHandler struct {
	logger   *xlogger.Logger
	candles  *usecase.CandlesUseCase
	overview *usecase.MarketOverviewUseCase
	scanner  PairRanker
}

// NewMarketHandler builds the handler. scanner may be nil, in which case the
// scanner route is not registered.
func NewMarketHandler(logger *xlogger.Logger, candles *usecase.CandlesUseCase, overview *usecase.MarketOverviewUseCase, scanner PairRanker) *MarketHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &MarketHandler{logger: logger, candles: candles, overview: overview, scanner: scanner}
}

func (h *MarketHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/candles/:symbol", h.Candles)
	g.GET("/market/:symbol", h.Overview)
	if h.scanner != nil {
		g.GET("/scanner", h.Scanner)
	}
}

func (h *MarketHandler) Candles(c echo.Context) error {
	req := &models.CandlesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.candles.GetCandles(c.Request().Context(), usecase.GetCandlesParams{
		Symbol:    req.Symbol,
		Timeframe: domrepo.NormalizeTimeframe(req.TF),
		Limit:     req.Limit,
	})
	if err != nil {
		h.logger.Error("api: candles failed", xlogger.String("symbol", req.Symbol), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err, domainError)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
	return xhttp.SuccessResponse(c, res)
}

func (h *MarketHandler) Overview(c echo.Context) error {
	req := &models.MarketRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	res, err := h.overview.GetOverview(c.Request().Context(), usecase.GetOverviewParams{
		Symbol:    req.Symbol,
		N:         req.N,
		Timeframe: domrepo.NormalizeTimeframe(req.TF),
	})
	if err != nil {
		h.logger.Error("api: market overview failed", xlogger.String("symbol", req.Symbol), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err, domainError)
	}
	return xhttp.SuccessResponse(c, res)
}

// Scanner returns every scanned pair with the top recommendations. top=0
// uses the configured default.
func (h *MarketHandler) Scanner(c echo.Context) error {
	req := &models.ScannerRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return xhttp.SuccessResponse(c, h.scanner.Snapshot(req.Top))
}
