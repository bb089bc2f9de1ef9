package models

import "errors"

var (
	ErrNoDataFound        = errors.New("no data found for the given ticker")
	ErrInsufficientData   = errors.New("insufficient data")
	ErrModelNotFound      = errors.New("model not found")
	ErrJobNotFound        = errors.New("job not found")
	ErrTrainingInProgress = errors.New("training already in progress")
	ErrInvalidTicker      = errors.New("invalid ticker")
)
