package usecase

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"PriceCast/internal/domain/models"
	drepo "PriceCast/internal/domain/repository"
	"PriceCast/internal/repository"
	"PriceCast/pkg/cache"
	"PriceCast/pkg/metrics"
	"PriceCast/pkg/queue"

	"github.com/prometheus/client_golang/prometheus"
)

// syntheticBars returns n ascending business-ish days with a gentle wave.
func syntheticBars(ticker string, n int) []models.PriceBar {
	start := time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]models.PriceBar, n)
	for i := range bars {
		c := 100 + float64(i%37) - float64(i%11)*0.5 + float64(i)*0.05
		bars[i] = models.PriceBar{Ticker: ticker, Date: start.AddDate(0, 0, i), Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 1e6}
	}
	return bars
}

type fakeSource struct {
	bars []models.PriceBar
	err  error
}

func (f *fakeSource) FetchDaily(context.Context, string, time.Time, time.Time) ([]models.PriceBar, error) {
	return f.bars, f.err
}

type enqueued struct {
	msgType string
	payload interface{}
	id      string
}

type fakeQueue struct {
	mu   sync.Mutex
	msgs []enqueued
	err  error
}

func (q *fakeQueue) Enqueue(_ context.Context, msgType string, payload interface{}, opts ...queue.EnqueueOption) (string, error) {
	if q.err != nil {
		return "", q.err
	}
	msg := queue.Message{}
	for _, o := range opts {
		o(&msg)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.msgs = append(q.msgs, enqueued{msgType: msgType, payload: payload, id: msg.ID})
	return msg.ID, nil
}

func (q *fakeQueue) RegisterJobs([]queue.Job)   {}
func (q *fakeQueue) Start() error               { return nil }
func (q *fakeQueue) Stop(context.Context) error { return nil }

type recordingEvents struct {
	mu     sync.Mutex
	events []models.JobEvent
}

func (r *recordingEvents) PublishJobEvent(_ context.Context, ev models.JobEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingEvents) Close() error { return nil }

func (r *recordingEvents) states() []models.JobState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.JobState, len(r.events))
	for i, e := range r.events {
		out[i] = e.State
	}
	return out
}

// historyStore wraps a JobStore and keeps every state written.
type historyStore struct {
	drepo.JobStore
	mu      sync.Mutex
	history []models.JobRecord
}

func (h *historyStore) Write(ctx context.Context, rec *models.JobRecord) error {
	h.mu.Lock()
	h.history = append(h.history, *rec)
	h.mu.Unlock()
	return h.JobStore.Write(ctx, rec)
}

// persistenceModel predicts the last value of each window.
type persistenceModel struct {
	fitErr  error
	loss    func(epoch int) float64
	onEpoch func(epoch int)
}

func (m *persistenceModel) Fit(ctx context.Context, windows [][]float64, _ []float64, opts models.TrainOptions) error {
	if m.fitErr != nil {
		return m.fitErr
	}
	for e := 1; e <= opts.Epochs; e++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if opts.OnEpochEnd != nil {
			loss := 1 / float64(e)
			if m.loss != nil {
				loss = m.loss(e)
			}
			opts.OnEpochEnd(models.EpochEvent{Epoch: e, TotalEpochs: opts.Epochs, Loss: loss})
		}
		if m.onEpoch != nil {
			m.onEpoch(e)
		}
	}
	return nil
}

func (m *persistenceModel) Predict(windows [][]float64) ([]float64, error) {
	out := make([]float64, len(windows))
	for i, w := range windows {
		out[i] = w[len(w)-1]
	}
	return out, nil
}

func (m *persistenceModel) Summary() models.ModelSummary {
	return models.ModelSummary{RawSummary: "persistence", TotalParams: 0, TrainableParams: 0}
}

func (m *persistenceModel) Save(w io.Writer) error {
	_, err := io.WriteString(w, `{"format":"persistence"}`)
	return err
}

type stubFactory struct {
	model   *persistenceModel
	loadErr error
}

func (f *stubFactory) New() (drepo.Forecaster, error) { return f.model, nil }

func (f *stubFactory) Load(r io.Reader) (drepo.Forecaster, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	if _, err := io.ReadAll(r); err != nil {
		return nil, err
	}
	return f.model, nil
}

type harness struct {
	source    *fakeSource
	cache     *cache.MemoryCache
	jobs      *historyStore
	lock      *repository.CacheTickerLock
	models    *repository.FSModelStore
	modelsDir string
	events    *recordingEvents
	metrics   *metrics.Recorder
	factory   *stubFactory
}

func newHarness(t *testing.T, bars []models.PriceBar) *harness {
	t.Helper()
	mc := cache.NewMemoryCache()
	t.Cleanup(func() { _ = mc.Close() })
	dir := t.TempDir()
	return &harness{
		source:    &fakeSource{bars: bars},
		cache:     mc,
		jobs:      &historyStore{JobStore: repository.NewCacheJobStore(mc, time.Hour)},
		lock:      repository.NewCacheTickerLock(mc, time.Hour),
		models:    repository.NewFSModelStore(dir),
		modelsDir: dir,
		events:    &recordingEvents{},
		metrics:   metrics.New(prometheus.NewRegistry()),
		factory:   &stubFactory{model: &persistenceModel{}},
	}
}

var errBoom = errors.New("boom")
