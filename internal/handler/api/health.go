package api

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	xhttp "BinPull/pkg/http"
	xlogger "BinPull/pkg/logger"

	"github.com/labstack/echo/v4"
)

// Check tests one dependency.
type Check func(ctx context.Context) error

// HealthHandler reports readiness of the backing stores.
type HealthHandler struct {
	logger  *xlogger.Logger
	checks  map[string]Check
	timeout time.Duration
}

func NewHealthHandler(logger *xlogger.Logger, checks map[string]Check) *HealthHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &HealthHandler{logger: logger, checks: checks, timeout: 3 * time.Second}
}

func (h *HealthHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/readyz", h.Ready)
}

type readiness struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func (h *HealthHandler) Ready(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	var mu sync.Mutex
	var wg sync.WaitGroup
	res := readiness{Status: "ok", Checks: make(map[string]string, len(names))}
	for _, name := range names {
		wg.Add(1)
		go func(name string, check Check) {
			defer wg.Done()
			status := "ok"
			if err := check(ctx); err != nil {
				status = err.Error()
				h.logger.Warn("api: readiness check failed", xlogger.String("check", name), xlogger.Error(err))
			}
			mu.Lock()
			res.Checks[name] = status
			if status != "ok" {
				res.Status = "degraded"
			}
			mu.Unlock()
		}(name, h.checks[name])
	}
	wg.Wait()

	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	if res.Status != "ok" {
		return xhttp.DataResponse(c, http.StatusServiceUnavailable, res)
	}
	return xhttp.SuccessResponse(c, res)
}
