package usecase

import (
	"context"
	"math"
	"os"
	"testing"
	"time"

	"PriceCast/internal/domain/models"
	"PriceCast/pkg/logger"
	"PriceCast/pkg/queue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTrainingConfig = TrainingConfig{LookbackYears: 4, Epochs: 4, BatchSize: 16}

func (h *harness) trainingService(q queue.Queue) *TrainingService {
	return NewTrainingService(h.source, h.jobs, h.lock, q, h.events, h.metrics, logger.Nop(), testTrainingConfig)
}

func (h *harness) trainJob() *TrainModelJob {
	return NewTrainModelJob(h.source, h.jobs, h.lock, h.models, h.factory, h.events, h.metrics, logger.Nop(), testTrainingConfig)
}

func TestNormalizeTicker(t *testing.T) {
	got, err := NormalizeTicker("  brk.b ")
	require.NoError(t, err)
	assert.Equal(t, "BRK.B", got)

	got, err = NormalizeTicker("^gspc")
	require.NoError(t, err)
	assert.Equal(t, "^GSPC", got)

	for _, bad := range []string{"", "AA PL", "../etc", "TOOLONGTICKERSYMBOL"} {
		_, err := NormalizeTicker(bad)
		assert.ErrorIs(t, err, models.ErrInvalidTicker, bad)
	}
}

func TestSubmitWritesPendingBeforeEnqueue(t *testing.T) {
	h := newHarness(t, syntheticBars("AAPL", 400))
	q := &fakeQueue{}
	svc := h.trainingService(q)

	id, ticker, err := svc.Submit(context.Background(), "aapl")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", ticker)
	assert.NotEmpty(t, id)

	require.Len(t, q.msgs, 1)
	assert.Equal(t, TrainModelType, q.msgs[0].msgType)
	assert.Equal(t, id, q.msgs[0].id)
	assert.Equal(t, models.TrainPayload{JobID: id, Ticker: "AAPL"}, q.msgs[0].payload)

	rec, err := h.jobs.Read(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.JobPending, rec.State)
	assert.Equal(t, []models.JobState{models.JobPending}, h.events.states())
}

func TestSubmitRejectsBeforeEnqueue(t *testing.T) {
	cases := map[string]struct {
		source *fakeSource
		ticker string
		want   error
	}{
		"invalid ticker":    {&fakeSource{}, "not a ticker", models.ErrInvalidTicker},
		"no data":           {&fakeSource{err: models.ErrNoDataFound}, "ZZZZ", models.ErrNoDataFound},
		"insufficient data": {&fakeSource{bars: syntheticBars("NEW", 120)}, "NEW", models.ErrInsufficientData},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, nil)
			h.source = tc.source
			q := &fakeQueue{}

			_, _, err := h.trainingService(q).Submit(context.Background(), tc.ticker)
			assert.ErrorIs(t, err, tc.want)
			assert.Empty(t, q.msgs)

			ok, err := h.lock.Acquire(context.Background(), "NEW", "other-job")
			require.NoError(t, err)
			assert.True(t, ok, "lock must not be held after a rejected submission")
		})
	}
}

func TestSubmitRejectsDuplicateWhileTraining(t *testing.T) {
	h := newHarness(t, syntheticBars("MSFT", 400))
	q := &fakeQueue{}
	svc := h.trainingService(q)

	_, _, err := svc.Submit(context.Background(), "MSFT")
	require.NoError(t, err)

	_, _, err = svc.Submit(context.Background(), "msft")
	assert.ErrorIs(t, err, models.ErrTrainingInProgress)
	assert.Len(t, q.msgs, 1)
}

func TestSubmitEnqueueFailureReleasesLock(t *testing.T) {
	h := newHarness(t, syntheticBars("IBM", 400))
	svc := h.trainingService(&fakeQueue{err: errBoom})

	_, _, err := svc.Submit(context.Background(), "IBM")
	require.ErrorIs(t, err, errBoom)

	require.NotEmpty(t, h.jobs.history)
	last := h.jobs.history[len(h.jobs.history)-1]
	assert.Equal(t, models.JobFailure, last.State)
	assert.Contains(t, last.Error, "enqueue failed")

	ok, err := h.lock.Acquire(context.Background(), "IBM", "other-job")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTrainModelJobSuccess(t *testing.T) {
	h := newHarness(t, syntheticBars("AAPL", 400))
	ctx := context.Background()
	ok, err := h.lock.Acquire(ctx, "AAPL", "job-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, h.jobs.Write(ctx, &models.JobRecord{ID: "job-1", Ticker: "AAPL", State: models.JobPending}))

	err = h.trainJob().Handle(ctx, models.TrainPayload{JobID: "job-1", Ticker: "AAPL"})
	require.NoError(t, err)

	rec, err := h.jobs.Read(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobSuccess, rec.State)
	require.NotNil(t, rec.Result)
	assert.Equal(t, "success", rec.Result.Status)
	assert.Equal(t, "Model trained successfully for AAPL", rec.Result.Message)
	assert.Equal(t, h.models.PathFor("AAPL"), rec.Result.ModelPath)
	assert.Regexp(t, `^\d+\.\d{2}s$`, rec.Result.ElapsedTimeFormatted)
	assert.Equal(t, "persistence", rec.Result.ModelSummary.RawSummary)
	_, err = os.Stat(rec.Result.ModelPath)
	assert.NoError(t, err)

	var progress []int
	var messages []string
	for _, r := range h.jobs.history {
		if r.State == models.JobInProgress {
			progress = append(progress, r.Progress.Progress)
			messages = append(messages, r.Progress.Message)
		}
	}
	assert.Equal(t, []int{25, 50, 75, 100}, progress)
	assert.Equal(t, "Epoch 1/4", messages[0])
	assert.Equal(t, "Epoch 4/4", messages[3])

	states := h.events.states()
	assert.Equal(t, models.JobSuccess, states[len(states)-1])

	ok, err = h.lock.Acquire(ctx, "AAPL", "job-next")
	require.NoError(t, err)
	assert.True(t, ok, "lock released on success")
}

func TestTrainModelJobFailureIsRecorded(t *testing.T) {
	h := newHarness(t, syntheticBars("TSLA", 400))
	h.factory.model.fitErr = errBoom
	ctx := context.Background()
	_, _ = h.lock.Acquire(ctx, "TSLA", "job-2")

	err := h.trainJob().Handle(ctx, models.TrainPayload{JobID: "job-2", Ticker: "TSLA"})
	require.ErrorIs(t, err, errBoom)

	rec, err := h.jobs.Read(ctx, "job-2")
	require.NoError(t, err)
	assert.Equal(t, models.JobFailure, rec.State)
	assert.Contains(t, rec.Error, "boom")
	assert.Nil(t, rec.Result)

	_, err = os.Stat(h.models.PathFor("TSLA"))
	assert.True(t, os.IsNotExist(err), "no artifact on failure")

	ok, err := h.lock.Acquire(ctx, "TSLA", "job-next")
	require.NoError(t, err)
	assert.True(t, ok, "lock released on failure")
}

func TestTrainModelJobKeepsLockTakenByAnotherJob(t *testing.T) {
	h := newHarness(t, syntheticBars("ORCL", 400))
	ctx := context.Background()
	ok, err := h.lock.Acquire(ctx, "ORCL", "job-newer")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, h.jobs.Write(ctx, &models.JobRecord{ID: "job-5", Ticker: "ORCL", State: models.JobPending}))

	require.NoError(t, h.trainJob().Handle(ctx, models.TrainPayload{JobID: "job-5", Ticker: "ORCL"}))

	ok, err = h.lock.Acquire(ctx, "ORCL", "job-next")
	require.NoError(t, err)
	assert.False(t, ok, "finished job must not release a lock it does not own")
}

func TestTrainModelJobNonFiniteLossStillRecordsProgress(t *testing.T) {
	h := newHarness(t, syntheticBars("AMZN", 400))
	h.factory.model.loss = func(epoch int) float64 {
		if epoch%2 == 0 {
			return math.Inf(1)
		}
		return math.NaN()
	}
	ctx := context.Background()
	require.NoError(t, h.jobs.Write(ctx, &models.JobRecord{ID: "job-6", Ticker: "AMZN", State: models.JobPending}))
	status := NewStatusService(h.jobs)

	h.factory.model.onEpoch = func(epoch int) {
		resp, err := status.Poll(ctx, "job-6")
		require.NoError(t, err)
		assert.Equal(t, models.PollInProgress, resp.Status)
		require.NotNil(t, resp.CurrentEpoch)
		assert.Equal(t, epoch, *resp.CurrentEpoch)
	}
	require.NoError(t, h.trainJob().Handle(ctx, models.TrainPayload{JobID: "job-6", Ticker: "AMZN"}))

	for _, r := range h.jobs.history {
		if r.State == models.JobInProgress {
			assert.Zero(t, r.Progress.Loss)
		}
	}
	resp, err := status.Poll(ctx, "job-6")
	require.NoError(t, err)
	assert.Equal(t, models.PollCompleted, resp.Status)
}

func TestTrainModelJobShutdownMarksFailure(t *testing.T) {
	h := newHarness(t, syntheticBars("AMD", 400))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := h.trainJob().Handle(ctx, models.TrainPayload{JobID: "job-3", Ticker: "AMD"})
	require.ErrorIs(t, err, context.Canceled)

	rec, err := h.jobs.Read(context.Background(), "job-3")
	require.NoError(t, err)
	assert.Equal(t, models.JobFailure, rec.State)
	assert.Equal(t, "training interrupted by shutdown", rec.Error)
}

func TestSubmitAndPollThroughMemoryQueue(t *testing.T) {
	h := newHarness(t, syntheticBars("NVDA", 400))
	q := queue.NewMemoryQueue(logger.Nop(), &queue.QueueConfig{Workers: 1, QueueSize: 4})
	q.RegisterJobs([]queue.Job{h.trainJob()})
	require.NoError(t, q.Start())
	t.Cleanup(func() { _ = q.Stop(context.Background()) })

	id, _, err := h.trainingService(q).Submit(context.Background(), "NVDA")
	require.NoError(t, err)

	status := NewStatusService(h.jobs)
	require.Eventually(t, func() bool {
		resp, err := status.Poll(context.Background(), id)
		return err == nil && resp.Terminal()
	}, 5*time.Second, 10*time.Millisecond)

	resp, err := status.Poll(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.PollCompleted, resp.Status)
	require.NotNil(t, resp.Result)
	assert.Equal(t, h.models.PathFor("NVDA"), resp.Result.ModelPath)
}
