package di

import (
	"context"
	"fmt"
	"io"
	"time"

	"PriceCast/internal/domain/repository"
	"PriceCast/internal/handler/api"
	internalrepo "PriceCast/internal/repository"
	"PriceCast/internal/service/marketdata"
	"PriceCast/internal/service/plot"
	"PriceCast/internal/service/ratelimit"
	"PriceCast/internal/services/forecast"
	"PriceCast/internal/usecase"
	"PriceCast/pkg/cache"
	pkgch "PriceCast/pkg/clickhouse"
	"PriceCast/pkg/config"
	xhttp "PriceCast/pkg/http"
	pkgkafka "PriceCast/pkg/kafka"
	"PriceCast/pkg/logger"
	"PriceCast/pkg/metrics"
	"PriceCast/pkg/queue"
	"PriceCast/pkg/server"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// ProvideLogger builds the application logger from config.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	lgr, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return lgr.With(logger.String("env", cfg.Environment), logger.String("mode", cfg.Mode)), nil
}

// ProvideRegistry creates the Prometheus registry shared by every collector.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics(reg *prometheus.Registry) repository.Metrics {
	return metrics.New(reg)
}

// ProvideCache connects the job-state backend.
func ProvideCache(cfg *config.Config) (cache.Service, error) {
	if cfg.Store.Backend == "memory" {
		return cache.NewMemoryCache(
			cache.WithMemoryDefaultTTL(cfg.Jobs.StatusTTL),
			cache.WithMemoryCleanup(time.Minute),
		), nil
	}

	c, err := cache.NewRedisCache(
		cache.WithRedisHost(cfg.Redis.Host),
		cache.WithRedisPort(cfg.Redis.Port),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPool(cfg.Redis.PoolSize, cfg.Redis.MinIdleConns, cfg.Redis.PoolTimeout),
		cache.WithRedisPrefix(cfg.Store.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return c, nil
}

// ProvideQueue shares the Redis connection with the cache, or runs in process.
func ProvideQueue(cfg *config.Config, lgr *logger.Logger, c cache.Service) queue.Queue {
	qcfg := &queue.QueueConfig{
		Workers:    cfg.Queue.Workers,
		RetryLimit: cfg.Queue.RetryLimit,
		RetryDelay: cfg.Queue.RetryDelay,
	}

	rc, ok := c.(*cache.RedisCache)
	if !ok {
		return queue.NewMemoryQueue(lgr, qcfg)
	}

	mode := queue.ModeProducerConsumer
	switch cfg.Mode {
	case config.ModeAPI:
		mode = queue.ModeProducerOnly
	case config.ModeWorker:
		mode = queue.ModeConsumerOnly
	}
	return queue.NewRedisQueue(lgr, qcfg, rc.Client(), mode, queue.WithKeyPrefix(cfg.Queue.KeyPrefix))
}

func ProvideJobStore(c cache.Service, cfg *config.Config) repository.JobStore {
	return internalrepo.NewCacheJobStore(c, cfg.Jobs.StatusTTL)
}

func ProvideTickerLock(c cache.Service, cfg *config.Config) repository.TickerLock {
	return internalrepo.NewCacheTickerLock(c, cfg.Jobs.LockTTL)
}

func ProvideModelStore(cfg *config.Config) repository.ModelStore {
	return internalrepo.NewFSModelStore(cfg.Models.Dir)
}

// ProvideForecasterFactory applies configured layer widths over the default architecture.
func ProvideForecasterFactory(cfg *config.Config) repository.ForecasterFactory {
	arch := forecast.DefaultArchitecture()
	if len(cfg.Training.LSTMUnits) > 0 {
		arch.LSTMUnits = cfg.Training.LSTMUnits
	}
	if len(cfg.Training.DenseUnits) > 0 {
		arch.DenseUnits = cfg.Training.DenseUnits
	}
	return forecast.NewFactory(arch,
		forecast.WithLearningRate(cfg.Training.LearningRate),
		forecast.WithSeed(cfg.Training.Seed),
	)
}

// ProvideClickHouseClient returns nil when the bar cache is disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, nil
}

// ProvideBarSource builds the Yahoo client, fronted by the ClickHouse bar cache when available.
func ProvideBarSource(cfg *config.Config, lgr *logger.Logger, ch *pkgch.Client) (repository.BarSource, error) {
	yahoo := marketdata.NewYahooClient(cfg.MarketData.BaseURL, xhttp.NewClient(
		xhttp.WithTimeout(cfg.MarketData.Timeout),
		xhttp.WithHeader("User-Agent", cfg.MarketData.UserAgent),
	))
	if ch == nil {
		return yahoo, nil
	}

	store := internalrepo.NewCHBarStore(ch, lgr)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Init(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return marketdata.NewCachedSource(yahoo, store, cfg.MarketData.CacheTTL, lgr), nil
}

// ProvideEventPublisher publishes job events to Kafka, or drops them when disabled.
func ProvideEventPublisher(cfg *config.Config, reg *prometheus.Registry) (repository.EventPublisher, error) {
	if !cfg.Kafka.Enabled {
		return internalrepo.NoopEventPublisher{}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithRegisterer(reg),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return internalrepo.NewKafkaEventPublisher(producer, cfg.Kafka.Topic), nil
}

func ProvidePlotRenderer(cfg *config.Config) repository.PlotRenderer {
	return plot.NewSVGRenderer(cfg.Media.Dir, cfg.Media.URLPrefix)
}

func trainingConfig(cfg *config.Config) usecase.TrainingConfig {
	return usecase.TrainingConfig{
		LookbackYears: cfg.Training.LookbackYears,
		Epochs:        cfg.Training.Epochs,
		BatchSize:     cfg.Training.BatchSize,
	}
}

func ProvideTrainingService(
	cfg *config.Config,
	source repository.BarSource,
	jobs repository.JobStore,
	lock repository.TickerLock,
	q queue.Queue,
	events repository.EventPublisher,
	m repository.Metrics,
	lgr *logger.Logger,
) *usecase.TrainingService {
	return usecase.NewTrainingService(source, jobs, lock, q, events, m, lgr, trainingConfig(cfg))
}

func ProvideTrainModelJob(
	cfg *config.Config,
	source repository.BarSource,
	jobs repository.JobStore,
	lock repository.TickerLock,
	store repository.ModelStore,
	factory repository.ForecasterFactory,
	events repository.EventPublisher,
	m repository.Metrics,
	lgr *logger.Logger,
) *usecase.TrainModelJob {
	return usecase.NewTrainModelJob(source, jobs, lock, store, factory, events, m, lgr, trainingConfig(cfg))
}

func ProvideStatusService(jobs repository.JobStore) *usecase.StatusService {
	return usecase.NewStatusService(jobs)
}

func ProvideForecastService(
	cfg *config.Config,
	source repository.BarSource,
	store repository.ModelStore,
	factory repository.ForecasterFactory,
	plots repository.PlotRenderer,
	m repository.Metrics,
	lgr *logger.Logger,
) *usecase.ForecastService {
	return usecase.NewForecastService(source, store, factory, plots, m, lgr, usecase.InferenceConfig{
		LookbackYears:     cfg.Inference.LookbackYears,
		DefaultInvestment: cfg.Inference.DefaultInvestment,
		Costs: usecase.CostModel{
			TransactionCost: cfg.Inference.TransactionCost,
			Slippage:        cfg.Inference.Slippage,
		},
	})
}

// ProvideForecastHandler mounts the API with the websocket status stream and
// a per-client limit on training submissions.
func ProvideForecastHandler(
	cfg *config.Config,
	lgr *logger.Logger,
	training *usecase.TrainingService,
	status *usecase.StatusService,
	fc *usecase.ForecastService,
) *api.ForecastHandler {
	stream := api.NewTaskStatusStream(lgr, status, cfg.Jobs.StreamInterval)
	limiter := ratelimit.New(cfg.RateLimit.Capacity, cfg.RateLimit.RefillPerSec)
	return api.NewForecastHandler(lgr, training, status, fc, stream, limiter.Middleware())
}

func ProvideHTTPServer(cfg *config.Config, lgr *logger.Logger, h *api.ForecastHandler, reg *prometheus.Registry) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORSOrigins(cfg.Server.CORSOrigins),
		xhttp.WithStatic(cfg.Media.URLPrefix, cfg.Media.Dir),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, xhttp.WithMetrics(cfg.Metrics.Path, reg, reg, cfg.Metrics.SlowThreshold))
	}
	return xhttp.NewServer(lgr, h, opts...)
}

// ProvideApp creates the application server. Closers run in reverse order on shutdown.
func ProvideApp(
	cfg *config.Config,
	lgr *logger.Logger,
	srv *xhttp.Server,
	q queue.Queue,
	job *usecase.TrainModelJob,
	events repository.EventPublisher,
	c cache.Service,
	ch *pkgch.Client,
) *server.App {
	closers := []io.Closer{c}
	if ch != nil {
		closers = append(closers, ch)
	}
	closers = append(closers, events)
	return server.New(cfg, lgr, srv, q, []queue.Job{job}, closers...)
}
