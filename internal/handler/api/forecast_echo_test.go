package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"PriceCast/internal/domain/models"
	"PriceCast/internal/service/ratelimit"
	xlogger "PriceCast/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTrainer struct {
	err    error
	ticker string
}

func (f *fakeTrainer) Submit(_ context.Context, ticker string) (string, string, error) {
	f.ticker = ticker
	if f.err != nil {
		return "", "", f.err
	}
	return "job-123", strings.ToUpper(strings.TrimSpace(ticker)), nil
}

type scriptedPoller struct {
	mu    sync.Mutex
	steps []*models.PollResponse
	err   error
	calls int
}

func (p *scriptedPoller) Poll(context.Context, string) (*models.PollResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	i := min(p.calls, len(p.steps)-1)
	p.calls++
	return p.steps[i], nil
}

type fakePredictor struct {
	err        error
	investment float64
}

func (f *fakePredictor) Forecast(_ context.Context, ticker string, investment float64) (*models.ForecastResult, error) {
	f.investment = investment
	if f.err != nil {
		return nil, f.err
	}
	return &models.ForecastResult{Status: "success", Ticker: strings.ToUpper(ticker), Disclaimer: "d"}, nil
}

func (f *fakePredictor) ListModels(context.Context) (*models.TrainedModelsResponse, error) {
	return &models.TrainedModelsResponse{
		Status: "success",
		Models: []models.TrainedModel{{Ticker: "AAPL", ModelPath: "trained_models/AAPL_stock_prediction_model.json", TrainedAt: "2 hours ago", FileSize: 10}},
		Count:  1,
	}, nil
}

func newTestEcho(h *ForecastHandler) *echo.Echo {
	e := echo.New()
	h.RegisterRoutes(e)
	return e
}

func doJSON(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

type errorEnvelope struct {
	Status int `json:"status"`
	Data   []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Field   string `json:"field"`
	} `json:"data"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestTrainStarted(t *testing.T) {
	trainer := &fakeTrainer{}
	e := newTestEcho(NewForecastHandler(xlogger.Nop(), trainer, &scriptedPoller{}, &fakePredictor{}, nil))

	rec := doJSON(e, http.MethodPost, "/api/train", `{"ticker":"aapl"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body models.TrainResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "training_started", body.Status)
	assert.Equal(t, "job-123", body.TaskID)
	assert.Equal(t, "AAPL", body.Ticker)
	assert.Equal(t, "Model training started for AAPL. Use task_id to check progress.", body.Message)
}

func TestTrainValidation(t *testing.T) {
	e := newTestEcho(NewForecastHandler(xlogger.Nop(), &fakeTrainer{}, &scriptedPoller{}, &fakePredictor{}, nil))

	rec := doJSON(e, http.MethodPost, "/api/train", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeEnvelope(t, rec)
	require.Len(t, env.Data, 1)
	assert.Equal(t, "ERR_REQUIRED", env.Data[0].Code)
	assert.Equal(t, "ticker", env.Data[0].Field)

	rec = doJSON(e, http.MethodPost, "/api/train", `{"ticker":"no spaces allowed"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "ERR_TICKER", decodeEnvelope(t, rec).Data[0].Code)
}

func TestDomainErrorsMapToStatus(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{models.ErrNoDataFound, http.StatusNotFound, "ERR_NO_DATA"},
		{fmt.Errorf("wrap: %w", models.ErrInsufficientData), http.StatusUnprocessableEntity, "ERR_INSUFFICIENT_DATA"},
		{models.ErrTrainingInProgress, http.StatusConflict, "ERR_TRAINING_IN_PROGRESS"},
		{models.ErrInvalidTicker, http.StatusBadRequest, "ERR_INVALID_TICKER"},
		{assert.AnError, http.StatusInternalServerError, "ERR_INTERNAL"},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			e := newTestEcho(NewForecastHandler(xlogger.Nop(), &fakeTrainer{err: tc.err}, &scriptedPoller{}, &fakePredictor{}, nil))
			rec := doJSON(e, http.MethodPost, "/api/train", `{"ticker":"AAPL"}`)
			assert.Equal(t, tc.status, rec.Code)
			env := decodeEnvelope(t, rec)
			assert.Equal(t, tc.status, env.Status)
			require.Len(t, env.Data, 1)
			assert.Equal(t, tc.code, env.Data[0].Code)
		})
	}
}

func TestTrainRateLimited(t *testing.T) {
	limiter := ratelimit.New(1, 0)
	e := newTestEcho(NewForecastHandler(xlogger.Nop(), &fakeTrainer{}, &scriptedPoller{}, &fakePredictor{}, nil, limiter.Middleware()))

	assert.Equal(t, http.StatusOK, doJSON(e, http.MethodPost, "/api/train", `{"ticker":"AAPL"}`).Code)
	assert.Equal(t, http.StatusTooManyRequests, doJSON(e, http.MethodPost, "/api/train", `{"ticker":"AAPL"}`).Code)
	assert.Equal(t, http.StatusOK, doJSON(e, http.MethodGet, "/api/trained-models", "").Code, "other routes are not limited")
}

func TestTaskStatus(t *testing.T) {
	progress, epoch, total := 42, 21, 50
	poller := &scriptedPoller{steps: []*models.PollResponse{{
		Status: models.PollInProgress, Message: "Epoch 21/50", Progress: &progress, CurrentEpoch: &epoch, TotalEpochs: &total,
	}}}
	e := newTestEcho(NewForecastHandler(xlogger.Nop(), &fakeTrainer{}, poller, &fakePredictor{}, nil))

	rec := doJSON(e, http.MethodGet, "/api/task-status/job-123", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "in_progress", body["status"])
	assert.Equal(t, 42.0, body["progress"])
	assert.Equal(t, "Epoch 21/50", body["message"])
	assert.NotContains(t, body, "result")
}

func TestTaskStatusUnknown(t *testing.T) {
	e := newTestEcho(NewForecastHandler(xlogger.Nop(), &fakeTrainer{}, &scriptedPoller{err: models.ErrJobNotFound}, &fakePredictor{}, nil))
	rec := doJSON(e, http.MethodGet, "/api/task-status/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "ERR_TASK_NOT_FOUND", decodeEnvelope(t, rec).Data[0].Code)
}

func TestPredictAndForecastShareHandler(t *testing.T) {
	pred := &fakePredictor{}
	e := newTestEcho(NewForecastHandler(xlogger.Nop(), &fakeTrainer{}, &scriptedPoller{}, pred, nil))

	for _, path := range []string{"/api/predict", "/api/forecast"} {
		rec := doJSON(e, http.MethodPost, path, `{"ticker":"msft","investment_amount":2500}`)
		require.Equal(t, http.StatusOK, rec.Code, path)
		var body models.ForecastResult
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "MSFT", body.Ticker)
		assert.Equal(t, 2500.0, pred.investment)
	}

	rec := doJSON(e, http.MethodPost, "/api/predict", `{"ticker":"msft","investment_amount":-1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPredictModelNotFound(t *testing.T) {
	e := newTestEcho(NewForecastHandler(xlogger.Nop(), &fakeTrainer{}, &scriptedPoller{}, &fakePredictor{err: models.ErrModelNotFound}, nil))
	rec := doJSON(e, http.MethodPost, "/api/predict", `{"ticker":"AAPL"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "ERR_MODEL_NOT_FOUND", decodeEnvelope(t, rec).Data[0].Code)
}

func TestTrainedModels(t *testing.T) {
	e := newTestEcho(NewForecastHandler(xlogger.Nop(), &fakeTrainer{}, &scriptedPoller{}, &fakePredictor{}, nil))
	rec := doJSON(e, http.MethodGet, "/api/trained-models", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, 1.0, body["count"])
	m := body["models"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "AAPL", m["ticker"])
	assert.Contains(t, m, "model_summary")
	assert.Nil(t, m["model_summary"])
}

func TestTaskStatusStreamUntilTerminal(t *testing.T) {
	p1, p2 := 50, 100
	poller := &scriptedPoller{steps: []*models.PollResponse{
		{Status: models.PollPending, Message: "Task is waiting to be processed"},
		{Status: models.PollInProgress, Message: "Epoch 1/2", Progress: &p1},
		{Status: models.PollInProgress, Message: "Epoch 1/2", Progress: &p1},
		{Status: models.PollInProgress, Message: "Epoch 2/2", Progress: &p2},
		{Status: models.PollCompleted, Result: &models.TrainingResult{Status: "success"}},
	}}
	stream := NewTaskStatusStream(xlogger.Nop(), poller, 5*time.Millisecond)
	srv := httptest.NewServer(newTestEcho(NewForecastHandler(xlogger.Nop(), &fakeTrainer{}, poller, &fakePredictor{}, stream)))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/task-status/job-1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var statuses []string
	for {
		var resp models.PollResponse
		if err := conn.ReadJSON(&resp); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), err)
			break
		}
		statuses = append(statuses, resp.Status)
	}
	assert.Equal(t, []string{"pending", "in_progress", "in_progress", "completed"}, statuses, "unchanged polls are not re-sent")
}

func TestTaskStatusStreamUnknownTask(t *testing.T) {
	poller := &scriptedPoller{err: models.ErrJobNotFound}
	stream := NewTaskStatusStream(xlogger.Nop(), poller, time.Millisecond)
	srv := httptest.NewServer(newTestEcho(NewForecastHandler(xlogger.Nop(), &fakeTrainer{}, poller, &fakePredictor{}, stream)))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/ws/task-status/nope", nil)
	require.NoError(t, err)
	defer conn.Close()

	var msg map[string]string
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "error", msg["status"])
	assert.Equal(t, "Task not found", msg["error"])
}
