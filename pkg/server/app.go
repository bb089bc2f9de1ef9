package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"PriceCast/pkg/config"
	xhttp "PriceCast/pkg/http"
	applogger "PriceCast/pkg/logger"
	"PriceCast/pkg/queue"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	logger     *applogger.Logger
	httpServer *xhttp.Server
	queue      queue.Queue
	jobs       []queue.Job
	closers    []io.Closer
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	lgr *applogger.Logger,
	httpServer *xhttp.Server,
	q queue.Queue,
	jobs []queue.Job,
	closers ...io.Closer,
) *App {
	return &App{
		cfg:        cfg,
		logger:     lgr,
		httpServer: httpServer,
		queue:      q,
		jobs:       jobs,
		closers:    closers,
	}
}

func (a *App) servesHTTP() bool { return a.cfg.Mode != config.ModeWorker }

// Run starts the configured roles and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts the configured roles and blocks until ctx is done.
func (a *App) RunContext(ctx context.Context) error {
	for _, dir := range []string{a.cfg.Models.Dir, a.cfg.Media.Dir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	if a.cfg.Mode != config.ModeAPI {
		a.queue.RegisterJobs(a.jobs)
	}
	if err := a.queue.Start(); err != nil {
		a.logger.Error("queue start error", applogger.Error(err))
		a.closeAll()
		return err
	}

	if a.servesHTTP() {
		if err := a.httpServer.Start(); err != nil {
			a.logger.Error("http server start error", applogger.Error(err))
			return errors.Join(err, a.shutdown())
		}
	}
	a.logger.Info("application started",
		applogger.String("mode", a.cfg.Mode),
		applogger.String("store", a.cfg.Store.Backend),
		applogger.Int("workers", a.cfg.Queue.Workers),
		applogger.Bool("kafka", a.cfg.Kafka.Enabled),
		applogger.Bool("clickhouse", a.cfg.ClickHouse.Enabled),
	)

	<-ctx.Done()
	a.logger.Info("shutdown signal received")
	return a.shutdown()
}

// shutdown gracefully stops all services. Running jobs see a cancelled
// context and record themselves as failed before the queue returns.
func (a *App) shutdown() error {
	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if a.servesHTTP() {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.logger.Error("http shutdown error", applogger.Error(err))
			errs = append(errs, err)
		}
	}
	if err := a.queue.Stop(ctx); err != nil {
		a.logger.Warn("queue stop error", applogger.Error(err))
		errs = append(errs, err)
	}
	a.closeAll()

	a.logger.Info("shutdown complete")
	return errors.Join(errs...)
}

func (a *App) closeAll() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Warn("close error", applogger.Error(err))
		}
	}
}
