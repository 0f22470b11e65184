package di

import (
	"path/filepath"
	"testing"
	"time"

	"BinPull/internal/domain/models"
	domrepo "BinPull/internal/domain/repository"
	"BinPull/pkg/cache"
	"BinPull/pkg/config"
	"BinPull/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	return cfg
}

func TestManagerConfigFromDefaults(t *testing.T) {
	cfg := defaultConfig(t)
	mc := ProvideManagerConfig(cfg)

	d := mc.Defaults
	assert.Equal(t, models.AccountDemo, d.Account)
	assert.Equal(t, models.VariantMultiIndicator, d.Strategy)
	assert.Equal(t, []string{"R_100"}, d.Symbols)
	assert.Equal(t, 0.5, d.Limits.MinStake)
	assert.Equal(t, 50.0, d.Limits.DailyLossUSD)
	assert.Equal(t, domrepo.TF5m, d.MTF)
	assert.True(t, d.PredictorVeto)
	assert.Equal(t, 10, d.ConnectBackoff.MaxAttempts)
	assert.Equal(t, 2*time.Second, d.ConnectBackoff.Base)

	assert.Equal(t, 30*time.Second, mc.Executor.BuyTimeout)
	assert.Equal(t, 5, mc.Executor.MaxAttempts)
	assert.Equal(t, 4*time.Second, mc.TradeCooldown)
	assert.Len(t, mc.Breaker, 3)
	assert.Len(t, mc.Confluence, 3)
}

func TestDisabledStoresStayNil(t *testing.T) {
	cfg := defaultConfig(t)

	ch, err := ProvideClickHouseClient(cfg)
	require.NoError(t, err)
	assert.Nil(t, ch)

	a := ProvideArchives(cfg, ch, logger.Nop())
	assert.Nil(t, a.Trades)
	assert.Nil(t, a.Ticks)
	assert.Nil(t, a.Candles)
	assert.Nil(t, ProvideTickArchiver(cfg, a, nil, nil))

	p, err := ProvideKafkaProducer(cfg, ProvideMetrics())
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.Nil(t, ProvideEventSink(cfg, p))

	rc, err := ProvideRedisCache(cfg)
	require.NoError(t, err)
	assert.Nil(t, rc)
	assert.Nil(t, ProvideCommandQueue(cfg, rc, logger.Nop()))

	c := ProvideCache(cfg, rc)
	_, isMemory := c.(*cache.MemoryCache)
	assert.True(t, isMemory)
	require.NoError(t, c.Close())
}

func TestHTTPServerServesWithoutStores(t *testing.T) {
	cfg := defaultConfig(t)
	lg := logger.Nop()
	rec := ProvideMetrics()
	a := Archives{}
	feed := ProvideSignalFeed()

	mgr := ProvideSessionManager(ProvideManagerConfig(cfg), nil, nil, nil, nil, a, ProvideEventBus(rec), rec, lg, nil)
	srv := ProvideHTTPServer(cfg, lg, rec,
		ProvideSessionsHandler(cfg, lg, mgr),
		ProvideMarketHandler(lg, ProvideCandlesUseCase(a), ProvideMarketOverview(a, feed), nil),
		ProvideHealthHandler(lg, a, nil),
	)

	routes := map[string]bool{}
	for _, r := range srv.Echo().Routes() {
		routes[r.Method+" "+r.Path] = true
	}
	assert.True(t, routes["POST /api/sessions/:user/start"])
	assert.True(t, routes["GET /api/candles/:symbol"])
	assert.True(t, routes["GET /readyz"])
	assert.True(t, routes["GET /metrics"])
	assert.False(t, routes["GET /api/scanner"])
}

func TestScannerProvider(t *testing.T) {
	cfg := defaultConfig(t)
	lg := logger.Nop()
	m := ProvideMetricsPort(ProvideMetrics())
	f := ProvideVenueFactory(cfg, lg, m)

	sc, err := ProvideScanner(cfg, f, m, lg)
	require.NoError(t, err)
	assert.Nil(t, sc)

	cfg.Scanner.Enabled = true
	sc, err = ProvideScanner(cfg, f, m, lg)
	require.NoError(t, err)
	require.NotNil(t, sc)
	assert.Equal(t, 3, sc.Top())
	assert.Len(t, sc.Pairs(), len(cfg.Venue.Symbols))

	cfg.Scanner.Strategy = "MARTIAN"
	_, err = ProvideScanner(cfg, f, m, lg)
	assert.Error(t, err)
}
