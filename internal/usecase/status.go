package usecase

import (
	"context"

	"PriceCast/internal/domain/models"
	drepo "PriceCast/internal/domain/repository"
)

// StatusService translates job records into the poll vocabulary.
type StatusService struct {
	jobs drepo.JobStore
}

func NewStatusService(jobs drepo.JobStore) *StatusService {
	return &StatusService{jobs: jobs}
}

// Poll returns ErrJobNotFound for ids that were never issued or have expired.
func (s *StatusService) Poll(ctx context.Context, jobID string) (*models.PollResponse, error) {
	rec, err := s.jobs.Read(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return PollFromRecord(rec), nil
}

func PollFromRecord(rec *models.JobRecord) *models.PollResponse {
	switch rec.State {
	case models.JobPending:
		return &models.PollResponse{Status: models.PollPending, Message: "Task is waiting to be processed"}
	case models.JobInProgress:
		resp := &models.PollResponse{Status: models.PollInProgress, Message: "Task is being processed"}
		progress := 0
		if p := rec.Progress; p != nil {
			progress = p.Progress
			if p.Message != "" {
				resp.Message = p.Message
			}
			epoch, total := p.CurrentEpoch, p.TotalEpochs
			resp.CurrentEpoch, resp.TotalEpochs = &epoch, &total
		}
		resp.Progress = &progress
		return resp
	case models.JobSuccess:
		return &models.PollResponse{Status: models.PollCompleted, Result: rec.Result}
	default:
		msg := rec.Error
		if msg == "" {
			msg = "unknown error"
		}
		return &models.PollResponse{Status: models.PollFailed, Error: msg}
	}
}
