package dataprep

import (
	"fmt"
	"math"

	"PriceCast/internal/domain/models"
)

const (
	// WindowSize is the number of consecutive closes fed to the model per sample.
	WindowSize = 100
	// DefaultSplitRatio is the training share of a chronological split.
	DefaultSplitRatio = 0.70
)

// Split is a chronological train/test partition by index.
type Split struct {
	TrainBars []models.PriceBar
	TestBars  []models.PriceBar
	Train     []float64
	Test      []float64
}

// Dataset is a windowed, scaled sample set together with the scaler that produced it.
type Dataset struct {
	Windows [][]float64
	Targets []float64
	Scaler  *MinMaxScaler
}

// Prepare splits bars at floor(len*ratio). Training is [0, split), testing is [split, len).
func Prepare(bars []models.PriceBar, ratio float64) (*Split, error) {
	if len(bars) < WindowSize {
		return nil, fmt.Errorf("%w: %d bars, need at least %d", models.ErrInsufficientData, len(bars), WindowSize)
	}
	if ratio <= 0 || ratio >= 1 {
		ratio = DefaultSplitRatio
	}

	at := int(math.Floor(float64(len(bars)) * ratio))
	if at >= len(bars) {
		return nil, fmt.Errorf("%w: empty testing partition", models.ErrInsufficientData)
	}

	closes := models.Closes(bars)
	return &Split{
		TrainBars: bars[:at],
		TestBars:  bars[at:],
		Train:     closes[:at],
		Test:      closes[at:],
	}, nil
}

// BuildWindows produces len(series)-size windows of length size. The target of
// window i is the value immediately after it.
func BuildWindows(series []float64, size int) ([][]float64, []float64) {
	if len(series) <= size {
		return nil, nil
	}
	n := len(series) - size
	windows := make([][]float64, 0, n)
	targets := make([]float64, 0, n)
	for i := size; i < len(series); i++ {
		windows = append(windows, series[i-size:i:i])
		targets = append(targets, series[i])
	}
	return windows, targets
}

// TrainingSet scales the training closes with a scaler fit on them alone and windows the result.
func TrainingSet(split *Split) (*Dataset, error) {
	if len(split.Train) <= WindowSize {
		return nil, fmt.Errorf("%w: training partition has %d points, need more than %d",
			models.ErrInsufficientData, len(split.Train), WindowSize)
	}

	scaler := &MinMaxScaler{}
	scaled, err := scaler.FitTransform(split.Train)
	if err != nil {
		return nil, err
	}
	windows, targets := BuildWindows(scaled, WindowSize)
	return &Dataset{Windows: windows, Targets: targets, Scaler: scaler}, nil
}

// InferenceSet windows tail(train, 100) ++ test. The scaler is fit on that
// combined frame, not on the training partition, so it differs from the one
// used when the model was fitted.
func InferenceSet(split *Split) (*Dataset, error) {
	tail := split.Train
	if len(tail) > WindowSize {
		tail = tail[len(tail)-WindowSize:]
	}
	frame := make([]float64, 0, len(tail)+len(split.Test))
	frame = append(frame, tail...)
	frame = append(frame, split.Test...)

	scaler := &MinMaxScaler{}
	scaled, err := scaler.FitTransform(frame)
	if err != nil {
		return nil, err
	}
	windows, targets := BuildWindows(scaled, WindowSize)
	if len(windows) == 0 {
		return nil, fmt.Errorf("%w: inference frame has %d points, need more than %d",
			models.ErrInsufficientData, len(frame), WindowSize)
	}
	return &Dataset{Windows: windows, Targets: targets, Scaler: scaler}, nil
}

// ValidateForTraining checks that bars can produce at least one training window.
func ValidateForTraining(bars []models.PriceBar) error {
	split, err := Prepare(bars, DefaultSplitRatio)
	if err != nil {
		return err
	}
	if len(split.Train) <= WindowSize {
		return fmt.Errorf("%w: training partition has %d points, need more than %d",
			models.ErrInsufficientData, len(split.Train), WindowSize)
	}
	return nil
}
