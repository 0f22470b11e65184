package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"BinPull/internal/domain/models"
	domrepo "BinPull/internal/domain/repository"
	"BinPull/internal/eventbus"
	"BinPull/internal/usecase"
	"BinPull/pkg/cache"
	pkgch "BinPull/pkg/clickhouse"
	"BinPull/pkg/config"
	xhttp "BinPull/pkg/http"
	pkgkafka "BinPull/pkg/kafka"
	"BinPull/pkg/logger"
	"BinPull/pkg/queue"
)

// Deps are the long-lived components App starts and stops. Optional
// transports and stores are nil when disabled in config.
type Deps struct {
	Config     *config.Config
	Log        *logger.Logger
	Metrics    domrepo.Metrics
	HTTP       *xhttp.Server
	Manager    *usecase.SessionManager
	Bus        *eventbus.Bus
	Sink       domrepo.EventSink
	Archiver   *usecase.TickArchiver
	Feed       *usecase.SignalFeed
	Scanner    *usecase.PairScanner
	Commands   *usecase.CommandHandler
	Consumer   *pkgkafka.Consumer
	Producer   *pkgkafka.Producer
	Queue      *queue.RedisQueue
	ClickHouse *pkgch.Client
	Cache      cache.Service
}

// App encapsulates the application lifecycle.
type App struct {
	Deps
	log *logger.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(d Deps) *App {
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	return &App{Deps: d, log: d.Log}
}

// Run starts every component and blocks until SIGINT/SIGTERM or a fatal
// HTTP listen error, then shuts down in dependency order.
func (a *App) Run() error {
	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.start(); err != nil {
		a.log.Error("app: start failed", logger.Error(err))
		return errors.Join(err, a.shutdown())
	}
	a.log.Info("app: started",
		logger.Strings("symbols", a.Config.Venue.Symbols),
		logger.Bool("kafka", a.Consumer != nil),
		logger.Bool("clickhouse", a.ClickHouse != nil),
		logger.Bool("redis_queue", a.Queue != nil),
		logger.Bool("scanner", a.Scanner != nil))

	var runErr error
	select {
	case <-sigCtx.Done():
		a.log.Info("app: shutdown signal received")
	case err := <-a.HTTP.Err():
		runErr = fmt.Errorf("http: %w", err)
	}
	return errors.Join(runErr, a.shutdown())
}

func (a *App) start() error {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if a.Producer != nil && a.Config.Logger.Collector.Enabled {
		a.log.AddCollector(&logger.CollectionConfig{
			TimeInterval:   a.Config.Logger.Collector.Interval,
			CountThreshold: a.Config.Logger.Collector.Threshold,
			Topic:          a.Config.Logger.Collector.Topic,
			Publisher:      a.Producer,
		})
	}

	if a.Sink != nil {
		sub := a.Bus.Subscribe(a.Config.Session.EventBuffer)
		a.spawn(func() { eventbus.Forward(ctx, sub, a.Sink, a.log, a.Metrics) })
	}
	if a.Archiver != nil {
		a.spawn(func() { a.Archiver.Run(ctx) })
	}
	if a.Feed != nil {
		sub := a.Bus.Subscribe(a.Config.Session.EventBuffer, models.EventSignal)
		a.spawn(func() { a.Feed.Run(ctx, sub) })
	}
	if a.Scanner != nil {
		a.spawn(func() { a.Scanner.Run(ctx) })
	}

	if a.Consumer != nil {
		a.Consumer.RegisterHandler(a.Commands)
		if err := a.Consumer.Start(); err != nil {
			return fmt.Errorf("kafka consumer: %w", err)
		}
		a.log.Info("app: command consumer started", logger.String("topic", a.Commands.Topic()))
	}
	if a.Queue != nil {
		a.Queue.RegisterJob(a.Commands)
		if err := a.Queue.Start(); err != nil {
			return fmt.Errorf("redis queue: %w", err)
		}
		a.log.Info("app: command queue started")
	}

	return a.HTTP.Start()
}

func (a *App) spawn(fn func()) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		fn()
	}()
}

// shutdown stops command intake first, then sessions, then drains the
// background loops and closes clients.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer cancel()
	var errs []error

	if err := a.HTTP.Stop(ctx); err != nil {
		errs = append(errs, err)
		a.log.Warn("app: http stop failed", logger.Error(err))
	}
	if a.Consumer != nil {
		if err := a.Consumer.Stop(ctx); err != nil {
			errs = append(errs, err)
			a.log.Warn("app: consumer stop failed", logger.Error(err))
		}
	}
	if a.Queue != nil {
		if err := a.Queue.Stop(ctx); err != nil {
			errs = append(errs, err)
			a.log.Warn("app: queue stop failed", logger.Error(err))
		}
	}

	if err := a.Manager.Shutdown(ctx); err != nil {
		errs = append(errs, err)
		a.log.Warn("app: sessions did not stop in time", logger.Error(err))
	}

	if a.cancel != nil {
		a.cancel()
	}
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.log.Warn("app: background loops did not drain")
	}
	a.Bus.Close()

	a.log.RemoveCollector()
	// The sink owns the producer.
	if a.Sink != nil {
		if err := a.Sink.Close(); err != nil {
			errs = append(errs, err)
			a.log.Warn("app: producer close failed", logger.Error(err))
		}
	}
	if a.ClickHouse != nil {
		if err := a.ClickHouse.Close(); err != nil {
			errs = append(errs, err)
			a.log.Warn("app: clickhouse close failed", logger.Error(err))
		}
	}
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			errs = append(errs, err)
			a.log.Warn("app: cache close failed", logger.Error(err))
		}
	}

	a.log.Info("app: shutdown complete")
	return errors.Join(errs...)
}
