package models

import "time"

type JobState string

const (
	JobPending    JobState = "pending"
	JobInProgress JobState = "in_progress"
	JobSuccess    JobState = "success"
	JobFailure    JobState = "failure"
)

// Terminal reports whether no further transitions follow.
func (s JobState) Terminal() bool {
	return s == JobSuccess || s == JobFailure
}

type JobProgress struct {
	CurrentEpoch int     `json:"current_epoch"`
	TotalEpochs  int     `json:"total_epochs"`
	Progress     int     `json:"progress_percent"`
	Message      string  `json:"message"`
	Loss         float64 `json:"loss"`
}

type ModelSummary struct {
	RawSummary      string `json:"raw_summary"`
	TotalParams     int    `json:"total_params"`
	TrainableParams int    `json:"trainable_params"`
}

type TrainingResult struct {
	Status               string       `json:"status"`
	Message              string       `json:"message"`
	ModelPath            string       `json:"model_path"`
	ElapsedTime          float64      `json:"elapsed_time"`
	ElapsedTimeFormatted string       `json:"elapsed_time_formatted"`
	ModelSummary         ModelSummary `json:"model_summary"`
}

// JobRecord is the latest known state of one training job.
type JobRecord struct {
	ID        string          `json:"id"`
	Ticker    string          `json:"ticker"`
	State     JobState        `json:"state"`
	Progress  *JobProgress    `json:"progress,omitempty"`
	Result    *TrainingResult `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// JobEvent is published on every state change.
type JobEvent struct {
	JobID     string    `json:"job_id"`
	Ticker    string    `json:"ticker"`
	State     JobState  `json:"state"`
	Progress  int       `json:"progress"`
	Epoch     int       `json:"epoch,omitempty"`
	ModelPath string    `json:"model_path,omitempty"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

// TrainPayload is the queue message for a training job.
type TrainPayload struct {
	JobID  string `json:"job_id"`
	Ticker string `json:"ticker"`
}

// PollResponse is the fixed vocabulary returned to status pollers.
type PollResponse struct {
	Status       string          `json:"status"`
	Message      string          `json:"message,omitempty"`
	Progress     *int            `json:"progress,omitempty"`
	CurrentEpoch *int            `json:"current_epoch,omitempty"`
	TotalEpochs  *int            `json:"total_epochs,omitempty"`
	Result       *TrainingResult `json:"result,omitempty"`
	Error        string          `json:"error,omitempty"`
}

const (
	PollPending    = "pending"
	PollInProgress = "in_progress"
	PollCompleted  = "completed"
	PollFailed     = "failed"
)

// Terminal reports whether the poll response will not change any more.
func (p PollResponse) Terminal() bool {
	return p.Status == PollCompleted || p.Status == PollFailed
}
