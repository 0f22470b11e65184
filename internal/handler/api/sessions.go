package api

import (
	"context"
	"math"
	"strconv"
	"time"

	"BinPull/internal/domain/models"
	"BinPull/internal/service/ratelimit"
	xhttp "BinPull/pkg/http"
	xlogger "BinPull/pkg/logger"

	"github.com/labstack/echo/v4"
)

// Sessions is the session control surface the HTTP layer drives.
type Sessions interface {
	Start(ctx context.Context, req models.StartSessionRequest) (models.SessionStatus, error)
	Stop(ctx context.Context, userID string) error
	Pause(ctx context.Context, userID string) error
	Resume(ctx context.Context, userID string) error
	SetStake(ctx context.Context, userID string, stake float64) error
	SetStrategy(ctx context.Context, userID string, v models.Variant) error
	SetAccount(ctx context.Context, userID string, a models.AccountType) error
	Status(userID string) (models.SessionStatus, error)
	Trades(ctx context.Context, req models.TradesRequest) ([]models.Trade, error)
}

// SessionsHandler serves session control under /api/sessions/:user.
type SessionsHandler struct {
	logger   *xlogger.Logger
	sessions Sessions
	rl       *ratelimit.Limiter
	timeout  time.Duration
}

type SessionsOption func(*SessionsHandler)

// WithRateLimit limits control requests per user.
func WithRateLimit(every time.Duration, burst int) SessionsOption {
	return func(h *SessionsHandler) {
		if every > 0 {
			h.rl = ratelimit.New(every, burst)
		}
	}
}

// WithCommandTimeout bounds how long a control request waits on the session.
func WithCommandTimeout(d time.Duration) SessionsOption {
	return func(h *SessionsHandler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

func NewSessionsHandler(logger *xlogger.Logger, sessions Sessions, opts ...SessionsOption) *SessionsHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	h := &SessionsHandler{logger: logger, sessions: sessions, timeout: 30 * time.Second}
	for _, o := range opts {
		o(h)
	}
	return h
}

func (h *SessionsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/sessions/:user", h.limit)
	g.POST("/start", h.Start)
	g.POST("/stop", h.Stop)
	g.POST("/pause", h.Pause)
	g.POST("/resume", h.Resume)
	g.PUT("/stake", h.Stake)
	g.PUT("/strategy", h.Strategy)
	g.PUT("/account", h.Account)
	g.GET("/status", h.Status)
	g.GET("/trades", h.Trades)
}

func (h *SessionsHandler) limit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if h.rl == nil || c.Request().Method == echo.GET {
			return next(c)
		}
		user := c.Param("user")
		if !h.rl.Allow(user) {
			wait := h.rl.Delay(user, time.Now())
			h.logger.Debug("api: control request throttled", xlogger.String("user_id", user), xlogger.Duration("retry_after", wait))
			c.Response().Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("too many control requests").
				WithParam("retry_after_ms", wait.Milliseconds()))
		}
		return next(c)
	}
}

func (h *SessionsHandler) ctx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), h.timeout)
}

func (h *SessionsHandler) fail(c echo.Context, op string, err error) error {
	if domainError(err) == nil {
		h.logger.Error("api: "+op+" failed", xlogger.String("user_id", c.Param("user")), xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, err, domainError)
}

func (h *SessionsHandler) Start(c echo.Context) error {
	req := &models.StartSessionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	st, err := h.sessions.Start(ctx, *req)
	if err != nil {
		return h.fail(c, "start", err)
	}
	return xhttp.SuccessResponse(c, st)
}

func (h *SessionsHandler) Stop(c echo.Context) error {
	return h.control(c, "stop", h.sessions.Stop)
}

func (h *SessionsHandler) Pause(c echo.Context) error {
	return h.control(c, "pause", h.sessions.Pause)
}

func (h *SessionsHandler) Resume(c echo.Context) error {
	return h.control(c, "resume", h.sessions.Resume)
}

func (h *SessionsHandler) control(c echo.Context, op string, fn func(context.Context, string) error) error {
	req := &models.SessionRef{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	if err := fn(ctx, req.UserID); err != nil {
		return h.fail(c, op, err)
	}
	return h.status(c, req.UserID)
}

func (h *SessionsHandler) Stake(c echo.Context) error {
	req := &models.StakeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	if err := h.sessions.SetStake(ctx, req.UserID, req.BaseStake); err != nil {
		return h.fail(c, "stake", err)
	}
	return h.status(c, req.UserID)
}

func (h *SessionsHandler) Strategy(c echo.Context) error {
	req := &models.StrategyRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	if err := h.sessions.SetStrategy(ctx, req.UserID, models.Variant(req.Strategy)); err != nil {
		return h.fail(c, "strategy", err)
	}
	return h.status(c, req.UserID)
}

func (h *SessionsHandler) Account(c echo.Context) error {
	req := &models.AccountRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ctx, cancel := h.ctx(c)
	defer cancel()
	if err := h.sessions.SetAccount(ctx, req.UserID, models.AccountType(req.AccountType)); err != nil {
		return h.fail(c, "account", err)
	}
	return h.status(c, req.UserID)
}

func (h *SessionsHandler) Status(c echo.Context) error {
	return h.status(c, c.Param("user"))
}

func (h *SessionsHandler) status(c echo.Context, userID string) error {
	st, err := h.sessions.Status(userID)
	if err != nil {
		return h.fail(c, "status", err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return xhttp.SuccessResponse(c, st)
}

func (h *SessionsHandler) Trades(c echo.Context) error {
	req := &models.TradesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	trades, err := h.sessions.Trades(c.Request().Context(), *req)
	if err != nil {
		return h.fail(c, "trades", err)
	}
	return xhttp.SuccessResponse(c, trades)
}
