package server

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"Argo/internal/middleware"
	"Argo/internal/usecase"
	"Argo/pkg/config"
	xhttp "Argo/pkg/http"
	pkgkafka "Argo/pkg/kafka"
	"Argo/pkg/logger"
)

// Components is everything the application runs. Optional parts (collector,
// consumer, ticks handler) are nil when not configured. Infrastructure clients
// are closed by the cleanup returned from di.InitializeApp, after Run returns.
type Components struct {
	Orchestrator *usecase.Orchestrator
	Outcomes     *usecase.OutcomeTracker
	Trainer      *usecase.CalibrationTrainer
	Store        *usecase.SignalStore
	TickPipeline *middleware.TickPipeline
	Collector    *usecase.PriceCollector
	Consumer     *pkgkafka.Consumer
	Ticks        *usecase.KafkaTicksHandler
	HTTP         *xhttp.Server
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg *config.Config
	l   *logger.Logger
	c   Components
}

// New assembles the app from its components.
func New(cfg *config.Config, l *logger.Logger, c Components) *App {
	return &App{cfg: cfg, l: l, c: c}
}

// Run starts every loop and blocks until SIGINT/SIGTERM or ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	loops, cancelLoops := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelLoops()

	a.c.Store.Start(loops)
	a.c.Trainer.Warm(ctx)
	a.c.TickPipeline.Start(loops)

	if a.c.Collector != nil {
		if err := a.c.Collector.Start(loops); err != nil {
			// the orchestrator falls back to bar closes without live ticks
			a.l.Warn("price stream unavailable", logger.Error(err))
		} else {
			a.l.Info("price stream started", logger.Strings("symbols", a.cfg.TickerSymbols()))
		}
	}

	if a.c.Consumer != nil && a.c.Ticks != nil {
		a.c.Consumer.RegisterHandler(a.c.Ticks)
		if err := a.c.Consumer.Start(); err != nil {
			a.l.Warn("kafka consumer not started", logger.Error(err))
		} else {
			a.l.Info("kafka consumer started", logger.String("topic", a.c.Ticks.Topic()))
		}
	}

	var g errgroup.Group
	g.Go(func() error { return a.c.Orchestrator.Run(loops) })
	g.Go(func() error { return a.c.Outcomes.Run(loops) })
	g.Go(func() error { return a.c.Trainer.Run(loops, a.cfg.Calibration.Interval) })

	if err := a.c.HTTP.Start(); err != nil {
		cancelLoops()
		_ = g.Wait()
		return err
	}

	a.l.Info("argo started",
		logger.String("env", a.cfg.Environment),
		logger.String("store", a.cfg.Store.Backend),
		logger.Int("symbols", len(a.cfg.Engine.Symbols)),
		logger.Int("sources", len(a.cfg.EnabledSources())),
	)

	<-ctx.Done()
	a.l.Info("shutdown signal received")
	return a.shutdown(cancelLoops, &g)
}

// shutdown stops intake first, then the loops, then flushes queued signals
// before the clients they write through are closed.
func (a *App) shutdown(cancelLoops context.CancelFunc, g *errgroup.Group) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.c.HTTP.Stop(ctx); err != nil {
		a.l.Error("http shutdown error", logger.Error(err))
		errs = append(errs, err)
	}
	if a.c.Consumer != nil {
		if err := a.c.Consumer.Stop(ctx); err != nil {
			a.l.Warn("kafka consumer stop error", logger.Error(err))
		}
	}
	if a.c.Collector != nil {
		if err := a.c.Collector.Shutdown(ctx); err != nil {
			a.l.Warn("collector stop error", logger.Error(err))
		}
	}
	a.c.TickPipeline.Stop()

	cancelLoops()
	if err := g.Wait(); err != nil {
		errs = append(errs, err)
	}

	if err := a.c.Store.Close(ctx); err != nil {
		a.l.Error("signal store flush failed", logger.Error(err))
		errs = append(errs, err)
	}
	a.l.Info("shutdown complete")
	return errors.Join(errs...)
}

// ResolveOnce runs a single outcome pass and exits; used by the CLI.
func (a *App) ResolveOnce(ctx context.Context) (usecase.OutcomeReport, error) {
	rep, err := a.c.Outcomes.RunOnce(ctx)
	if err != nil {
		return rep, err
	}
	a.l.Info("outcome pass finished",
		logger.Int("scanned", rep.Scanned),
		logger.Int("won", rep.Won),
		logger.Int("lost", rep.Lost),
		logger.Int("expired", rep.Expired),
		logger.Int("errors", rep.Errors),
		logger.Bool("lock_held", rep.LockHeld),
	)
	return rep, nil
}

// RetrainOnce rebuilds the calibration model from the repository and shares it.
func (a *App) RetrainOnce(ctx context.Context) error {
	start := time.Now()
	if err := a.c.Trainer.Retrain(ctx); err != nil {
		return err
	}
	a.l.Info("calibration retrain finished", logger.Duration("took", time.Since(start)))
	return nil
}
