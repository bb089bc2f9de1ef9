package dataprep

import (
	"errors"
	"math"
)

var errNotFitted = errors.New("scaler not fitted")

// MinMaxScaler maps values into [0, 1] using the min and max seen at Fit.
// A constant series maps to 0 and inverts back to the constant.
type MinMaxScaler struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	fitted bool
}

func (s *MinMaxScaler) Fit(x []float64) error {
	if len(x) == 0 {
		return errors.New("scaler: empty input")
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range x {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	s.Min, s.Max, s.fitted = lo, hi, true
	return nil
}

func (s *MinMaxScaler) scale() float64 {
	if r := s.Max - s.Min; r != 0 {
		return r
	}
	return 1
}

func (s *MinMaxScaler) Transform(x []float64) ([]float64, error) {
	if !s.fitted {
		return nil, errNotFitted
	}
	r := s.scale()
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = (v - s.Min) / r
	}
	return out, nil
}

func (s *MinMaxScaler) InverseTransform(x []float64) ([]float64, error) {
	if !s.fitted {
		return nil, errNotFitted
	}
	r := s.scale()
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = v*r + s.Min
	}
	return out, nil
}

func (s *MinMaxScaler) FitTransform(x []float64) ([]float64, error) {
	if err := s.Fit(x); err != nil {
		return nil, err
	}
	return s.Transform(x)
}
