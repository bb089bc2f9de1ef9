package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"PriceCast/internal/domain/models"
	"PriceCast/internal/services/dataprep"
	xhttp "PriceCast/pkg/http"
	xlogger "PriceCast/pkg/logger"

	"github.com/labstack/echo/v4"
)

type Trainer interface {
	Submit(ctx context.Context, ticker string) (jobID, normalized string, err error)
}

type StatusPoller interface {
	Poll(ctx context.Context, jobID string) (*models.PollResponse, error)
}

type Predictor interface {
	Forecast(ctx context.Context, ticker string, investment float64) (*models.ForecastResult, error)
	ListModels(ctx context.Context) (*models.TrainedModelsResponse, error)
}

// ForecastHandler serves training submission, job status and forecasts under /api.
type ForecastHandler struct {
	logger    *xlogger.Logger
	trainer   Trainer
	status    StatusPoller
	predictor Predictor
	stream    *TaskStatusStream
	trainMW   []echo.MiddlewareFunc
}

// NewForecastHandler wires the routes. trainMW wraps POST /api/train only.
func NewForecastHandler(logger *xlogger.Logger, trainer Trainer, status StatusPoller, predictor Predictor, stream *TaskStatusStream, trainMW ...echo.MiddlewareFunc) *ForecastHandler {
	return &ForecastHandler{
		logger:    logger,
		trainer:   trainer,
		status:    status,
		predictor: predictor,
		stream:    stream,
		trainMW:   trainMW,
	}
}

func (h *ForecastHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/train", h.Train, h.trainMW...)
	g.GET("/task-status/:task_id", h.TaskStatus)
	g.POST("/predict", h.Predict)
	g.POST("/forecast", h.Predict)
	g.GET("/trained-models", h.TrainedModels)
	if h.stream != nil {
		g.GET("/ws/task-status/:task_id", h.stream.Serve)
	}
}

func (h *ForecastHandler) Train(c echo.Context) error {
	req := &models.TrainRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	id, ticker, err := h.trainer.Submit(c.Request().Context(), req.Ticker)
	if err != nil {
		return h.fail(c, "train", err)
	}
	return c.JSON(http.StatusOK, models.TrainResponse{
		Status:  "training_started",
		TaskID:  id,
		Ticker:  ticker,
		Message: fmt.Sprintf("Model training started for %s. Use task_id to check progress.", ticker),
	})
}

func (h *ForecastHandler) TaskStatus(c echo.Context) error {
	resp, err := h.status.Poll(c.Request().Context(), c.Param("task_id"))
	if err != nil {
		return h.fail(c, "task_status", err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *ForecastHandler) Predict(c echo.Context) error {
	req := &models.PredictRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.predictor.Forecast(c.Request().Context(), req.Ticker, req.InvestmentAmount)
	if err != nil {
		return h.fail(c, "forecast", err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *ForecastHandler) TrainedModels(c echo.Context) error {
	res, err := h.predictor.ListModels(c.Request().Context())
	if err != nil {
		return h.fail(c, "trained_models", err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *ForecastHandler) fail(c echo.Context, op string, err error) error {
	appErr := mapError(err)
	if appErr.Status >= http.StatusInternalServerError {
		h.logger.Error(op+" usecase error", xlogger.Error(err))
	} else {
		h.logger.Debug(op+" rejected", xlogger.String("code", appErr.Code), xlogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}

// mapError translates domain errors into HTTP application errors.
func mapError(err error) *xhttp.AppError {
	var appErr *xhttp.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, models.ErrInvalidTicker):
		return xhttp.NewAppError("ERR_INVALID_TICKER", "ticker", "Invalid ticker symbol", http.StatusBadRequest).WithError(err)
	case errors.Is(err, models.ErrNoDataFound):
		return xhttp.NewAppError("ERR_NO_DATA", "ticker", "No data found for the given ticker.", http.StatusNotFound).WithError(err)
	case errors.Is(err, models.ErrModelNotFound):
		return xhttp.NewAppError("ERR_MODEL_NOT_FOUND", "", "No trained model available for this ticker", http.StatusNotFound).WithError(err)
	case errors.Is(err, models.ErrJobNotFound):
		return xhttp.NewAppError("ERR_TASK_NOT_FOUND", "task_id", "Task not found", http.StatusNotFound).WithError(err)
	case errors.Is(err, models.ErrInsufficientData):
		return xhttp.NewAppError("ERR_INSUFFICIENT_DATA", "ticker", "Not enough price history for this ticker", http.StatusUnprocessableEntity).
			WithParam("window_size", dataprep.WindowSize).WithError(err)
	case errors.Is(err, models.ErrTrainingInProgress):
		return xhttp.NewAppError("ERR_TRAINING_IN_PROGRESS", "ticker", "Training is already in progress for this ticker", http.StatusConflict).WithError(err)
	default:
		return xhttp.InternalError("Something went wrong").WithError(err)
	}
}
