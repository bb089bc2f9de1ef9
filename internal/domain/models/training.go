package models

// EpochEvent is delivered to the fit hook after every completed epoch.
type EpochEvent struct {
	Epoch       int
	TotalEpochs int
	Loss        float64
}

type TrainOptions struct {
	Epochs     int
	BatchSize  int
	OnEpochEnd func(EpochEvent)
}
