package di

import (
	"context"
	"fmt"
	"time"

	"BinPull/internal/domain/models"
	domrepo "BinPull/internal/domain/repository"
	"BinPull/internal/eventbus"
	"BinPull/internal/handler/api"
	internalrepo "BinPull/internal/repository"
	"BinPull/internal/service/breaker"
	"BinPull/internal/service/credentials"
	"BinPull/internal/service/venue"
	"BinPull/internal/services/confluence"
	"BinPull/internal/services/risk"
	"BinPull/internal/usecase"
	"BinPull/pkg/cache"
	pkgch "BinPull/pkg/clickhouse"
	"BinPull/pkg/config"
	xhttp "BinPull/pkg/http"
	pkgkafka "BinPull/pkg/kafka"
	"BinPull/pkg/logger"
	"BinPull/pkg/metrics"
	"BinPull/pkg/queue"
	"BinPull/pkg/server"
)

// Archives groups the ClickHouse-backed ports. Every field is nil when
// ClickHouse is disabled.
type Archives struct {
	Client  *pkgch.Client
	Trades  domrepo.TradeArchive
	Ticks   domrepo.TickArchive
	Candles domrepo.CandleArchive
}

// ProvideLogger builds the application logger from YAML.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	l, err := logger.New(&logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		Output:     cfg.Logger.Output,
		MaxSizeMB:  cfg.Logger.MaxSizeMB,
		MaxBackups: cfg.Logger.MaxBackups,
		MaxAgeDays: cfg.Logger.MaxAgeDays,
		Compress:   cfg.Logger.Compress,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(logger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates the Prometheus recorder with its own registry.
func ProvideMetrics() *metrics.Recorder {
	return metrics.New()
}

// ProvideMetricsPort exposes the recorder through the domain port.
func ProvideMetricsPort(r *metrics.Recorder) domrepo.Metrics {
	return r
}

// ProvideRedisCache connects to Redis, or returns nil when it is disabled.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisHost(cfg.Redis.Host),
		cache.WithRedisPort(cfg.Redis.Port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
		cache.WithRedisPool(cfg.Redis.Pool.Size, cfg.Redis.Pool.MinIdle, cfg.Redis.Pool.Timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return rc, nil
}

// ProvideCache picks the snapshot store backend: memory alone, Redis, or an
// in-process L1 over Redis.
func ProvideCache(cfg *config.Config, rc *cache.RedisCache) cache.Service {
	switch {
	case rc == nil:
		return cache.NewMemoryCache(
			cache.WithMemoryMaxSize(cfg.Redis.L1.Size),
			cache.WithMemoryDefaultTTL(cfg.Session.SnapshotTTL),
			cache.WithMemoryCleanup(time.Minute),
		)
	case cfg.Redis.Layered:
		return cache.NewLayeredCache(rc,
			cache.WithLayeredMemorySize(cfg.Redis.L1.Size),
			cache.WithLayeredL1TTL(cfg.Redis.L1.TTL),
		)
	default:
		return rc
	}
}

// ProvideClickHouseClient opens ClickHouse and applies the archive schema,
// or returns nil when it is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.ArchiveSchema(cfg.ClickHouse.Database)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideArchives binds the ClickHouse archive to its ports. Interfaces stay
// nil when there is no client so that consumers can test for absence.
func ProvideArchives(cfg *config.Config, ch *pkgch.Client, l *logger.Logger) Archives {
	if ch == nil {
		return Archives{}
	}
	a := internalrepo.NewCHArchive(ch, cfg.ClickHouse.Database, l)
	return Archives{Client: ch, Trades: a, Ticks: a, Candles: a}
}

// ProvideKafkaProducer creates a Kafka producer, or nil when Kafka is off.
func ProvideKafkaProducer(cfg *config.Config, rec *metrics.Recorder) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
		pkgkafka.WithProducerMetrics(rec.Registry()),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideEventSink forwards bus events to Kafka when a producer exists.
func ProvideEventSink(cfg *config.Config, p *pkgkafka.Producer) domrepo.EventSink {
	if p == nil {
		return nil
	}
	return internalrepo.NewKafkaEventSink(p, cfg.Kafka.EventsTopic)
}

// ProvideKafkaConsumer creates the control-command consumer, or nil when
// Kafka is off.
func ProvideKafkaConsumer(cfg *config.Config, rec *metrics.Recorder, l *logger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(l),
		pkgkafka.WithConsumerMetrics(rec.Registry()),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.NewTraceHook(l))
	return consumer, nil
}

// ProvideCredentials resolves venue tokens from env or SSM.
func ProvideCredentials(cfg *config.Config) (domrepo.CredentialProvider, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p, err := credentials.New(ctx, cfg.Credentials.Source, cfg.Credentials.EnvPrefix, cfg.Credentials.SSMPrefix)
	if err != nil {
		return nil, fmt.Errorf("credentials: %w", err)
	}
	return p, nil
}

// ProvideVenueFactory builds one websocket link per session.
func ProvideVenueFactory(cfg *config.Config, l *logger.Logger, m domrepo.Metrics) domrepo.VenueFactory {
	return venue.NewFactory(venue.Config{
		URL:            cfg.Venue.URL,
		AppID:          cfg.Venue.AppID,
		Backoff:        venueBackoff(cfg),
		RequestTimeout: cfg.Venue.RequestTimeout,
		HealthInterval: cfg.Venue.HealthInterval,
		HealthJitter:   cfg.Venue.HealthJitter,
		AuthTimeout:    cfg.Venue.AuthTimeout,
		AuthRetries:    cfg.Venue.AuthRetries,
	}, venue.WithLogger(l), venue.WithMetrics(m))
}

func venueBackoff(cfg *config.Config) venue.Backoff {
	return venue.Backoff{
		Base:        cfg.Venue.ReconnectBase,
		CapSteps:    cfg.Venue.ReconnectCap,
		MaxAttempts: cfg.Venue.MaxAttempts,
	}
}

func ProvideEventBus(m domrepo.Metrics) *eventbus.Bus {
	return eventbus.New(eventbus.WithMetrics(m))
}

// ProvideTickArchiver batches live ticks into ClickHouse. Nil without an
// archive.
func ProvideTickArchiver(cfg *config.Config, a Archives, m domrepo.Metrics, l *logger.Logger) *usecase.TickArchiver {
	if a.Ticks == nil {
		return nil
	}
	return usecase.NewTickArchiver(a.Ticks, m, l, cfg.ClickHouse.BatchSize, cfg.ClickHouse.BatchTimeout)
}

func ProvideSessionStore(cfg *config.Config, c cache.Service, l *logger.Logger) domrepo.SessionStore {
	return internalrepo.NewCacheSessionStore(c,
		internalrepo.WithSnapshotTTL(cfg.Session.SnapshotTTL),
		internalrepo.WithSnapshotMaxAge(cfg.Session.SnapshotMaxAge),
		internalrepo.WithKeyPrefix(cfg.Redis.Prefix+":session"),
		internalrepo.WithStoreLogger(l),
	)
}

func ProvideSessionLock(cfg *config.Config, c cache.Service) domrepo.SessionLock {
	return internalrepo.NewCacheSessionLock(c, cfg.Redis.Prefix+":lock", cfg.Session.LockTTL)
}

// ProvideManagerConfig turns YAML into session defaults.
func ProvideManagerConfig(cfg *config.Config) usecase.ManagerConfig {
	t := cfg.Trading
	return usecase.ManagerConfig{
		Defaults: usecase.SessionConfig{
			Account:       models.AccountType(t.AccountType),
			Strategy:      models.Variant(t.Strategy),
			BaseStake:     t.BaseStake,
			Symbols:       cfg.Venue.Symbols,
			TargetTrades:  t.TargetTrades,
			Currency:      t.Currency,
			Duration:      t.Duration,
			DurationUnit:  t.DurationUnit,
			HistoryCount:  cfg.Venue.HistoryCount,
			TickBuffer:    t.TickBuffer,
			CommandBuffer: t.CommandBuffer,
			TickPrune:     t.TickPrune,
			TickRetain:    t.TickRetain,
			Limits: risk.Limits{
				MaxSessionLossPct:    cfg.Risk.MaxSessionLossPct,
				MaxConsecutiveLosses: cfg.Risk.MaxConsecutiveLosses,
				DailyLossUSD:         cfg.Risk.DailyLossUSD,
				MinStake:             cfg.Risk.MinStake,
			},
			PredictorVeto:  cfg.Confluence.PredictorVeto,
			MTF:            domrepo.NormalizeTimeframe(cfg.Confluence.MTFTimeframe),
			ConnectBackoff: venueBackoff(cfg),
		},
		Executor: usecase.ExecutorConfig{
			BuyTimeout:  t.BuyTimeout,
			BackoffBase: t.OrderBackoffBase,
			BackoffMax:  t.OrderBackoffMax,
			Jitter:      0.30,
			MaxAttempts: t.OrderRetries,
		},
		Breaker: []breaker.Option{
			breaker.WithThreshold(t.BreakerThreshold),
			breaker.WithWindow(t.BreakerWindow),
			breaker.WithCooldown(t.BreakerCooldown),
		},
		Confluence: []confluence.Option{
			confluence.WithMinScore(cfg.Confluence.MinScore),
			confluence.WithMinConfidence(cfg.Confluence.MinConfidence),
			confluence.WithCooldown(cfg.Confluence.Cooldown),
		},
		TradeCooldown: t.TradeCooldown,
	}
}

func ProvideSessionManager(
	mc usecase.ManagerConfig,
	venues domrepo.VenueFactory,
	creds domrepo.CredentialProvider,
	store domrepo.SessionStore,
	lock domrepo.SessionLock,
	a Archives,
	bus *eventbus.Bus,
	m domrepo.Metrics,
	l *logger.Logger,
	archiver *usecase.TickArchiver,
) *usecase.SessionManager {
	return usecase.NewSessionManager(mc, usecase.ManagerDeps{
		Venues:      venues,
		Credentials: creds,
		Store:       store,
		Lock:        lock,
		Trades:      a.Trades,
		Ticks:       a.Ticks,
		Candles:     a.Candles,
		Bus:         bus,
		Metrics:     m,
		Log:         l,
		Archiver:    archiver,
	})
}

func ProvideCommandHandler(cfg *config.Config, mgr *usecase.SessionManager, m domrepo.Metrics, l *logger.Logger) *usecase.CommandHandler {
	return usecase.NewCommandHandler(cfg.Kafka.CommandsTopic, mgr, m, l)
}

// ProvideCommandQueue builds the Redis command queue, or nil when it is off.
func ProvideCommandQueue(cfg *config.Config, rc *cache.RedisCache, l *logger.Logger) *queue.RedisQueue {
	if rc == nil || !cfg.Redis.Queue.Enabled {
		return nil
	}
	return queue.NewRedisQueue(l, queue.Config{
		Workers:    cfg.Redis.Queue.Workers,
		RetryLimit: cfg.Redis.Queue.RetryLimit,
		RetryDelay: cfg.Redis.Queue.RetryDelay,
	}, rc.Client(), queue.WithKeyPrefix(cfg.Redis.Prefix+":queue"))
}

func ProvideSignalFeed() *usecase.SignalFeed {
	return usecase.NewSignalFeed(200)
}

func ProvideCandlesUseCase(a Archives) *usecase.CandlesUseCase {
	return usecase.NewCandlesUseCase(a.Candles)
}

func ProvideMarketOverview(a Archives, feed *usecase.SignalFeed) *usecase.MarketOverviewUseCase {
	return usecase.NewMarketOverviewUseCase(a.Candles, a.Ticks, feed)
}

func ProvideSessionsHandler(cfg *config.Config, l *logger.Logger, mgr *usecase.SessionManager) *api.SessionsHandler {
	return api.NewSessionsHandler(l, mgr,
		api.WithRateLimit(cfg.Server.RateLimitEvery, cfg.Server.RateLimitBurst),
		api.WithCommandTimeout(cfg.Venue.RequestTimeout/2),
	)
}

// ProvideScanner builds the pair scanner on its own venue link. Nil when
// disabled.
func ProvideScanner(cfg *config.Config, f domrepo.VenueFactory, m domrepo.Metrics, l *logger.Logger) (*usecase.PairScanner, error) {
	if !cfg.Scanner.Enabled {
		return nil, nil
	}
	symbols := cfg.Scanner.Symbols
	if len(symbols) == 0 {
		symbols = cfg.Venue.Symbols
	}
	sc, err := usecase.NewPairScanner(usecase.ScannerConfig{
		Symbols:      symbols,
		Strategy:     models.Variant(cfg.Scanner.Strategy),
		MinTicks:     cfg.Scanner.MinTicks,
		Interval:     cfg.Scanner.Interval,
		HistoryCount: cfg.Venue.HistoryCount,
		Top:          cfg.Scanner.Top,
		MTF:          domrepo.NormalizeTimeframe(cfg.Confluence.MTFTimeframe),
	}, f("scanner"), usecase.WithScannerLogger(l), usecase.WithScannerMetrics(m))
	if err != nil {
		return nil, err
	}
	return sc, nil
}

func ProvideMarketHandler(l *logger.Logger, candles *usecase.CandlesUseCase, overview *usecase.MarketOverviewUseCase, sc *usecase.PairScanner) *api.MarketHandler {
	var ranker api.PairRanker
	if sc != nil {
		ranker = sc
	}
	return api.NewMarketHandler(l, candles, overview, ranker)
}

// ProvideHealthHandler registers a readiness check per enabled store.
func ProvideHealthHandler(l *logger.Logger, a Archives, rc *cache.RedisCache) *api.HealthHandler {
	checks := map[string]api.Check{}
	if a.Client != nil {
		checks["clickhouse"] = a.Client.Health
	}
	if rc != nil {
		checks["redis"] = func(ctx context.Context) error { return rc.Client().Ping(ctx).Err() }
	}
	return api.NewHealthHandler(l, checks)
}

func ProvideHTTPServer(
	cfg *config.Config,
	l *logger.Logger,
	rec *metrics.Recorder,
	sessions *api.SessionsHandler,
	market *api.MarketHandler,
	health *api.HealthHandler,
) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(cfg.Server.CORS),
		xhttp.WithSlowRequest(cfg.Server.SlowRequest),
		xhttp.WithLogger(l),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetrics(cfg.Metrics.Path, rec.Registry()))
	} else {
		opts = append(opts, xhttp.WithMetrics("", rec.Registry()))
	}
	return xhttp.NewServer([]xhttp.Handler{sessions, market, health}, opts...)
}

// ProvideApp assembles the lifecycle owner.
func ProvideApp(d server.Deps) *server.App {
	return server.New(d)
}
