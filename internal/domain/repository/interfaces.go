package repository

import (
	"context"
	"io"
	"time"

	"PriceCast/internal/domain/models"
)

// BarSource fetches daily bars for a ticker over [from, to].
type BarSource interface {
	FetchDaily(ctx context.Context, ticker string, from, to time.Time) ([]models.PriceBar, error)
}

// BarStore persists previously fetched bars.
type BarStore interface {
	Init(ctx context.Context) error
	StoreBars(ctx context.Context, bars []models.PriceBar) error
	QueryBars(ctx context.Context, ticker string, from, to time.Time) ([]models.PriceBar, error)
	LastFetched(ctx context.Context, ticker string) (time.Time, error)
}

// JobStore holds the latest record per job id.
type JobStore interface {
	Write(ctx context.Context, rec *models.JobRecord) error
	Read(ctx context.Context, jobID string) (*models.JobRecord, error)
}

// TickerLock guards one active training job per ticker. owner is the job id.
type TickerLock interface {
	Acquire(ctx context.Context, ticker, owner string) (bool, error)
	Release(ctx context.Context, ticker, owner string) (bool, error)
}

// ArtifactRef identifies a resolved model artifact.
type ArtifactRef struct {
	Path      string
	Ticker    string
	IsDefault bool
}

// ModelStore names, writes and resolves model artifacts on disk.
type ModelStore interface {
	PathFor(ticker string) string
	Save(ticker string, write func(w io.Writer) error) (string, error)
	Resolve(ticker string) (ArtifactRef, error)
	Open(ref ArtifactRef) (io.ReadCloser, error)
	List() ([]ModelFile, error)
}

type ModelFile struct {
	Ticker  string
	Path    string
	Size    int64
	ModTime time.Time
}

// EventPublisher emits job lifecycle events.
type EventPublisher interface {
	PublishJobEvent(ctx context.Context, ev models.JobEvent) error
	Close() error
}

// Series is one named line on a chart.
type Series struct {
	Label  string
	Color  string
	Values []float64
}

// PlotRenderer draws series and returns a locator for the stored image.
type PlotRenderer interface {
	Render(ctx context.Context, name, title string, series []Series) (string, error)
}

type Metrics interface {
	JobSubmitted(ticker string)
	JobFinished(state string, elapsed time.Duration)
	EpochProgress(ticker string, percent int)
	InferenceDone(model string, elapsed time.Duration)
	RecordError(kind string)
}

// Forecaster is a sequence regressor over fixed-length windows.
type Forecaster interface {
	Fit(ctx context.Context, windows [][]float64, targets []float64, opts models.TrainOptions) error
	Predict(windows [][]float64) ([]float64, error)
	Summary() models.ModelSummary
	Save(w io.Writer) error
}

// ForecasterFactory builds fresh models and decodes persisted ones.
type ForecasterFactory interface {
	New() (Forecaster, error)
	Load(r io.Reader) (Forecaster, error)
}
