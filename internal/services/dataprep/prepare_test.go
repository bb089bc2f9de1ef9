package dataprep

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"PriceCast/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeBars(n int) []models.PriceBar {
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]models.PriceBar, n)
	for i := range bars {
		c := 100 + 10*math.Sin(float64(i)/7) + float64(i)*0.05
		bars[i] = models.PriceBar{Ticker: "TEST", Date: start.AddDate(0, 0, i), Close: c}
	}
	return bars
}

func TestBuildWindowsCount(t *testing.T) {
	for _, l := range []int{101, 150, 333, 1000} {
		series := make([]float64, l)
		for i := range series {
			series[i] = float64(i)
		}
		windows, targets := BuildWindows(series, WindowSize)
		require.Len(t, windows, l-WindowSize, "L=%d", l)
		require.Len(t, targets, l-WindowSize)
		for i, w := range windows {
			require.Len(t, w, WindowSize)
			assert.Equal(t, series[i+WindowSize], targets[i])
			assert.Equal(t, series[i+WindowSize-1], w[WindowSize-1])
		}
	}
}

func TestBuildWindowsShortSeries(t *testing.T) {
	w, tg := BuildWindows(make([]float64, WindowSize), WindowSize)
	assert.Empty(t, w)
	assert.Empty(t, tg)
}

func TestBuildWindowsDoNotAlias(t *testing.T) {
	series := make([]float64, 102)
	windows, _ := BuildWindows(series, WindowSize)
	_ = append(windows[0], 42)
	assert.Equal(t, 0.0, series[WindowSize])
}

func TestPrepareSplitsByIndex(t *testing.T) {
	bars := makeBars(200)
	split, err := Prepare(bars, DefaultSplitRatio)
	require.NoError(t, err)
	assert.Len(t, split.Train, 140)
	assert.Len(t, split.Test, 60)
	assert.Equal(t, bars[140].Close, split.Test[0])
	assert.Equal(t, bars[140].Date, split.TestBars[0].Date)
}

func TestPrepareFloorsSplit(t *testing.T) {
	split, err := Prepare(makeBars(101), DefaultSplitRatio)
	require.NoError(t, err)
	assert.Len(t, split.Train, 70)
	assert.Len(t, split.Test, 31)
}

func TestPrepareRejectsShortHistory(t *testing.T) {
	_, err := Prepare(makeBars(99), DefaultSplitRatio)
	assert.ErrorIs(t, err, models.ErrInsufficientData)
}

func TestTrainingSetShapes(t *testing.T) {
	split, err := Prepare(makeBars(300), DefaultSplitRatio)
	require.NoError(t, err)

	ds, err := TrainingSet(split)
	require.NoError(t, err)
	assert.Len(t, ds.Windows, len(split.Train)-WindowSize)
	for _, v := range ds.Targets {
		assert.True(t, v >= 0 && v <= 1)
	}
	assert.Equal(t, minOf(split.Train), ds.Scaler.Min)
}

func TestTrainingSetNeedsMoreThanOneWindowOfTraining(t *testing.T) {
	split, err := Prepare(makeBars(140), DefaultSplitRatio)
	require.NoError(t, err)
	_, err = TrainingSet(split)
	assert.ErrorIs(t, err, models.ErrInsufficientData)
}

func TestInferenceSetUsesTailPlusTest(t *testing.T) {
	split, err := Prepare(makeBars(400), DefaultSplitRatio)
	require.NoError(t, err)

	ds, err := InferenceSet(split)
	require.NoError(t, err)
	require.Len(t, ds.Windows, len(split.Test))

	actual, err := ds.Scaler.InverseTransform(ds.Targets)
	require.NoError(t, err)
	for i := range actual {
		assert.InDelta(t, split.Test[i], actual[i], 1e-9)
	}

	frame := append(append([]float64{}, split.Train[len(split.Train)-WindowSize:]...), split.Test...)
	assert.Equal(t, minOf(frame), ds.Scaler.Min)
}

func TestInferenceSetRejectsZeroWindows(t *testing.T) {
	split, err := Prepare(makeBars(100), DefaultSplitRatio)
	require.NoError(t, err)
	_, err = InferenceSet(split)
	assert.ErrorIs(t, err, models.ErrInsufficientData)
}

func TestValidateForTraining(t *testing.T) {
	assert.ErrorIs(t, ValidateForTraining(makeBars(50)), models.ErrInsufficientData)
	assert.ErrorIs(t, ValidateForTraining(makeBars(120)), models.ErrInsufficientData)
	assert.NoError(t, ValidateForTraining(makeBars(200)))
}

func TestScalerRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	x := make([]float64, 500)
	for i := range x {
		x[i] = rng.Float64()*1000 - 200
	}
	s := &MinMaxScaler{}
	scaled, err := s.FitTransform(x)
	require.NoError(t, err)
	back, err := s.InverseTransform(scaled)
	require.NoError(t, err)
	for i := range x {
		assert.InDelta(t, x[i], back[i], 1e-9)
		assert.True(t, scaled[i] >= 0 && scaled[i] <= 1)
	}
}

func TestScalerConstantSeries(t *testing.T) {
	s := &MinMaxScaler{}
	scaled, err := s.FitTransform([]float64{5, 5, 5})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0}, scaled)
	back, err := s.InverseTransform(scaled)
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 5, 5}, back)
}

func TestScalerNotFitted(t *testing.T) {
	s := &MinMaxScaler{}
	_, err := s.Transform([]float64{1})
	assert.Error(t, err)
	assert.Error(t, s.Fit(nil))
}

func minOf(x []float64) float64 {
	m := x[0]
	for _, v := range x {
		m = math.Min(m, v)
	}
	return m
}
