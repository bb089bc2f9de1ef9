package usecase

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"PriceCast/internal/domain/models"
	drepo "PriceCast/internal/domain/repository"
	"PriceCast/internal/services/dataprep"
	"PriceCast/pkg/logger"
	"PriceCast/pkg/queue"
	"PriceCast/pkg/util"
)

// TrainModelType is the queue message type of a training job.
const TrainModelType = "train_model"

var tickerPattern = regexp.MustCompile(`^[A-Z0-9.\-^=]{1,15}$`)

type TrainingConfig struct {
	LookbackYears int
	Epochs        int
	BatchSize     int
}

// TrainingService accepts training submissions and hands them to the queue.
type TrainingService struct {
	source  drepo.BarSource
	jobs    drepo.JobStore
	lock    drepo.TickerLock
	queue   queue.Queue
	events  drepo.EventPublisher
	metrics drepo.Metrics
	lgr     *logger.Logger
	cfg     TrainingConfig
	now     func() time.Time
}

func NewTrainingService(
	source drepo.BarSource,
	jobs drepo.JobStore,
	lock drepo.TickerLock,
	q queue.Queue,
	events drepo.EventPublisher,
	metrics drepo.Metrics,
	lgr *logger.Logger,
	cfg TrainingConfig,
) *TrainingService {
	return &TrainingService{
		source:  source,
		jobs:    jobs,
		lock:    lock,
		queue:   q,
		events:  events,
		metrics: metrics,
		lgr:     lgr,
		cfg:     cfg,
		now:     time.Now,
	}
}

// NormalizeTicker upper-cases and validates a ticker symbol.
func NormalizeTicker(raw string) (string, error) {
	t := util.NormalizeTicker(raw)
	if !tickerPattern.MatchString(t) {
		return "", fmt.Errorf("%w: %q", models.ErrInvalidTicker, raw)
	}
	return t, nil
}

// Submit validates the ticker has enough history, records a pending job and
// enqueues it. It never blocks on training.
func (s *TrainingService) Submit(ctx context.Context, raw string) (string, string, error) {
	ticker, err := NormalizeTicker(raw)
	if err != nil {
		return "", "", err
	}

	now := s.now()
	bars, err := s.source.FetchDaily(ctx, ticker, util.YearsBefore(now, s.cfg.LookbackYears), now)
	if err != nil {
		return "", ticker, err
	}
	if err := dataprep.ValidateForTraining(bars); err != nil {
		return "", ticker, err
	}

	jobID := queue.NewMessageID()
	ok, err := s.lock.Acquire(ctx, ticker, jobID)
	if err != nil {
		return "", ticker, err
	}
	if !ok {
		return "", ticker, fmt.Errorf("%w for %s", models.ErrTrainingInProgress, ticker)
	}

	rec := &models.JobRecord{ID: jobID, Ticker: ticker, State: models.JobPending}
	if err := s.jobs.Write(ctx, rec); err != nil {
		s.releaseLock(ctx, ticker, jobID)
		return "", ticker, err
	}

	payload := models.TrainPayload{JobID: jobID, Ticker: ticker}
	if _, err := s.queue.Enqueue(ctx, TrainModelType, payload, queue.WithMessageID(jobID)); err != nil {
		rec.State = models.JobFailure
		rec.Error = fmt.Sprintf("enqueue failed: %v", err)
		if werr := s.jobs.Write(ctx, rec); werr != nil {
			s.lgr.Error("write failure record", logger.String("job_id", jobID), logger.Error(werr))
		}
		s.releaseLock(ctx, ticker, jobID)
		s.metrics.RecordError("enqueue")
		return "", ticker, fmt.Errorf("enqueue %s: %w", ticker, err)
	}

	s.metrics.JobSubmitted(ticker)
	publish(ctx, s.events, s.lgr, models.JobEvent{JobID: jobID, Ticker: ticker, State: models.JobPending, At: now.UTC()})
	s.lgr.Info("training job submitted",
		logger.String("job_id", jobID),
		logger.String("ticker", ticker),
		logger.Int("bars", len(bars)))
	return jobID, ticker, nil
}

func (s *TrainingService) releaseLock(ctx context.Context, ticker, jobID string) {
	if _, err := s.lock.Release(ctx, ticker, jobID); err != nil {
		s.lgr.Error("release ticker lock", logger.String("ticker", ticker), logger.Error(err))
	}
}

// publish is fire-and-forget; events never affect job outcome.
func publish(ctx context.Context, events drepo.EventPublisher, lgr *logger.Logger, ev models.JobEvent) {
	if err := events.PublishJobEvent(ctx, ev); err != nil && !errors.Is(err, context.Canceled) {
		lgr.Warn("publish job event",
			logger.String("job_id", ev.JobID),
			logger.String("state", string(ev.State)),
			logger.Error(err))
	}
}
