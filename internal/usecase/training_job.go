package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"PriceCast/internal/domain/models"
	drepo "PriceCast/internal/domain/repository"
	"PriceCast/internal/services/dataprep"
	"PriceCast/pkg/logger"
	"PriceCast/pkg/queue"
	"PriceCast/pkg/util"
)

// TrainModelJob runs one training job on a queue worker. Every outcome ends in
// a success or failure record, and the ticker lock is released.
type TrainModelJob struct {
	source  drepo.BarSource
	jobs    drepo.JobStore
	lock    drepo.TickerLock
	models  drepo.ModelStore
	factory drepo.ForecasterFactory
	events  drepo.EventPublisher
	metrics drepo.Metrics
	lgr     *logger.Logger
	cfg     TrainingConfig
	now     func() time.Time
}

func NewTrainModelJob(
	source drepo.BarSource,
	jobs drepo.JobStore,
	lock drepo.TickerLock,
	store drepo.ModelStore,
	factory drepo.ForecasterFactory,
	events drepo.EventPublisher,
	metrics drepo.Metrics,
	lgr *logger.Logger,
	cfg TrainingConfig,
) *TrainModelJob {
	return &TrainModelJob{
		source:  source,
		jobs:    jobs,
		lock:    lock,
		models:  store,
		factory: factory,
		events:  events,
		metrics: metrics,
		lgr:     lgr,
		cfg:     cfg,
		now:     time.Now,
	}
}

func (j *TrainModelJob) Name() string { return "TrainModelJob" }
func (j *TrainModelJob) Type() string { return TrainModelType }

func (j *TrainModelJob) Handle(ctx context.Context, payload interface{}) error {
	p, err := queue.ParsePayload[models.TrainPayload](payload)
	if err != nil {
		return fmt.Errorf("parse payload: %w", err)
	}
	if p.JobID == "" {
		p.JobID = queue.MessageID(ctx)
	}

	lgr := j.lgr.With(logger.String("job_id", p.JobID), logger.String("ticker", p.Ticker), logger.Int("attempt", queue.Attempt(ctx)))
	run := &trainingRun{job: j, lgr: lgr, rec: &models.JobRecord{ID: p.JobID, Ticker: p.Ticker}, start: j.now()}
	if prev, err := j.jobs.Read(ctx, p.JobID); err == nil {
		run.rec = prev
	}
	defer run.releaseLock()

	result, err := run.execute(ctx)
	if err != nil {
		run.fail(ctx, err)
		return err
	}
	run.succeed(ctx, result)
	return nil
}

type trainingRun struct {
	job   *TrainModelJob
	lgr   *logger.Logger
	rec   *models.JobRecord
	start time.Time
}

func (r *trainingRun) execute(ctx context.Context) (*models.TrainingResult, error) {
	j := r.job
	ticker := r.rec.Ticker
	r.lgr.Info("training started", logger.Int("epochs", j.cfg.Epochs))

	now := j.now()
	bars, err := j.source.FetchDaily(ctx, ticker, util.YearsBefore(now, j.cfg.LookbackYears), now)
	if err != nil {
		return nil, err
	}
	split, err := dataprep.Prepare(bars, dataprep.DefaultSplitRatio)
	if err != nil {
		return nil, err
	}
	ds, err := dataprep.TrainingSet(split)
	if err != nil {
		return nil, err
	}

	model, err := j.factory.New()
	if err != nil {
		return nil, fmt.Errorf("build model: %w", err)
	}
	err = model.Fit(ctx, ds.Windows, ds.Targets, models.TrainOptions{
		Epochs:     j.cfg.Epochs,
		BatchSize:  j.cfg.BatchSize,
		OnEpochEnd: func(ev models.EpochEvent) { r.progress(ctx, ev) },
	})
	if err != nil {
		return nil, fmt.Errorf("fit: %w", err)
	}

	path, err := j.models.Save(ticker, func(w io.Writer) error { return model.Save(w) })
	if err != nil {
		return nil, err
	}

	elapsed := j.now().Sub(r.start)
	return &models.TrainingResult{
		Status:               "success",
		Message:              fmt.Sprintf("Model trained successfully for %s", ticker),
		ModelPath:            path,
		ElapsedTime:          elapsed.Seconds(),
		ElapsedTimeFormatted: util.FormatSeconds(elapsed),
		ModelSummary:         model.Summary(),
	}, nil
}

// progress is the epoch hook. Store errors are logged; training continues.
func (r *trainingRun) progress(ctx context.Context, ev models.EpochEvent) {
	pct := int(math.Round(100 * float64(ev.Epoch) / float64(ev.TotalEpochs)))
	loss := finiteOrZero(ev.Loss)
	r.rec.State = models.JobInProgress
	r.rec.Progress = &models.JobProgress{
		CurrentEpoch: ev.Epoch,
		TotalEpochs:  ev.TotalEpochs,
		Progress:     pct,
		Message:      fmt.Sprintf("Epoch %d/%d", ev.Epoch, ev.TotalEpochs),
		Loss:         loss,
	}
	if err := r.job.jobs.Write(ctx, r.rec); err != nil {
		r.lgr.Warn("write progress", logger.Int("epoch", ev.Epoch), logger.Error(err))
	}
	r.job.metrics.EpochProgress(r.rec.Ticker, pct)
	publish(ctx, r.job.events, r.lgr, models.JobEvent{
		JobID:    r.rec.ID,
		Ticker:   r.rec.Ticker,
		State:    models.JobInProgress,
		Progress: pct,
		Epoch:    ev.Epoch,
		At:       r.job.now().UTC(),
	})
	r.lgr.Debug("epoch finished",
		logger.Int("epoch", ev.Epoch),
		logger.Int("total_epochs", ev.TotalEpochs),
		logger.Float64("loss", loss),
		logger.Bool("loss_finite", loss == ev.Loss))
}

// finiteOrZero maps NaN and ±Inf to 0 so the record stays JSON encodable.
func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func (r *trainingRun) succeed(ctx context.Context, res *models.TrainingResult) {
	r.rec.State = models.JobSuccess
	r.rec.Result = res
	r.rec.Error = ""
	if err := r.job.jobs.Write(ctx, r.rec); err != nil {
		r.lgr.Error("write success record", logger.Error(err))
	}
	elapsed := r.job.now().Sub(r.start)
	r.job.metrics.JobFinished(string(models.JobSuccess), elapsed)
	publish(ctx, r.job.events, r.lgr, models.JobEvent{
		JobID:     r.rec.ID,
		Ticker:    r.rec.Ticker,
		State:     models.JobSuccess,
		Progress:  100,
		ModelPath: res.ModelPath,
		At:        r.job.now().UTC(),
	})
	r.lgr.Info("training finished",
		logger.String("model_path", res.ModelPath),
		logger.Duration("elapsed_ms", elapsed))
}

// fail records the terminal failure. A cancelled ctx means process shutdown,
// so the record is written on a fresh context.
func (r *trainingRun) fail(ctx context.Context, cause error) {
	msg := cause.Error()
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if errors.Is(cause, context.Canceled) {
			msg = "training interrupted by shutdown"
		}
	}

	r.rec.State = models.JobFailure
	r.rec.Error = msg
	if err := r.job.jobs.Write(ctx, r.rec); err != nil {
		r.lgr.Error("write failure record", logger.Error(err))
	}
	elapsed := r.job.now().Sub(r.start)
	r.job.metrics.JobFinished(string(models.JobFailure), elapsed)
	r.job.metrics.RecordError("training")
	publish(ctx, r.job.events, r.lgr, models.JobEvent{
		JobID:  r.rec.ID,
		Ticker: r.rec.Ticker,
		State:  models.JobFailure,
		Error:  msg,
		At:     r.job.now().UTC(),
	})
	r.lgr.Error("training failed", logger.Error(cause), logger.Duration("elapsed_ms", elapsed))
}

func (r *trainingRun) releaseLock() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	released, err := r.job.lock.Release(ctx, r.rec.Ticker, r.rec.ID)
	if err != nil {
		r.lgr.Error("release ticker lock", logger.Error(err))
		return
	}
	if !released {
		r.lgr.Warn("ticker lock expired before the run finished")
	}
}
