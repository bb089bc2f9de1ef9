package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements the domain Metrics interface using Prometheus.
type Recorder struct {
	jobsSubmitted    *prometheus.CounterVec
	jobsFinished     *prometheus.CounterVec
	trainingDuration *prometheus.HistogramVec
	epochProgress    *prometheus.GaugeVec
	inferenceLatency *prometheus.HistogramVec
	errorsTotal      *prometheus.CounterVec
}

// New creates a recorder whose collectors are registered on reg.
// Pass prometheus.DefaultRegisterer in production and prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		jobsSubmitted: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricecast_jobs_submitted_total",
				Help: "Total number of training jobs accepted",
			},
			[]string{"ticker"},
		),
		jobsFinished: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricecast_jobs_finished_total",
				Help: "Total number of training jobs that reached a terminal state",
			},
			[]string{"state"},
		),
		trainingDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pricecast_training_duration_seconds",
				Help:    "Wall-clock duration of training jobs",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 3600},
			},
			[]string{"state"},
		),
		epochProgress: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pricecast_training_progress_percent",
				Help: "Progress of the latest training run per ticker",
			},
			[]string{"ticker"},
		),
		inferenceLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pricecast_inference_duration_seconds",
				Help:    "Duration of forecast requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"model"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricecast_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
	}
}

func (r *Recorder) JobSubmitted(ticker string) {
	r.jobsSubmitted.WithLabelValues(ticker).Inc()
}

func (r *Recorder) JobFinished(state string, elapsed time.Duration) {
	r.jobsFinished.WithLabelValues(state).Inc()
	r.trainingDuration.WithLabelValues(state).Observe(elapsed.Seconds())
}

func (r *Recorder) EpochProgress(ticker string, percent int) {
	r.epochProgress.WithLabelValues(ticker).Set(float64(percent))
}

// InferenceDone records latency labelled by whether the ticker or the default model served it.
func (r *Recorder) InferenceDone(model string, elapsed time.Duration) {
	r.inferenceLatency.WithLabelValues(model).Observe(elapsed.Seconds())
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}
