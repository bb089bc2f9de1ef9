package api

import (
	"errors"
	"net/http"
	"time"

	"PriceCast/internal/domain/models"
	xlogger "PriceCast/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const writeWait = 5 * time.Second

// TaskStatusStream pushes poll responses over a websocket until the job is terminal.
type TaskStatusStream struct {
	logger   *xlogger.Logger
	status   StatusPoller
	interval time.Duration
	upgrader websocket.Upgrader
}

func NewTaskStatusStream(logger *xlogger.Logger, status StatusPoller, interval time.Duration) *TaskStatusStream {
	if interval <= 0 {
		interval = time.Second
	}
	return &TaskStatusStream{
		logger:   logger,
		status:   status,
		interval: interval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

type streamError struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

func (s *TaskStatusStream) Serve(c echo.Context) error {
	id := c.Param("task_id")
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", xlogger.Error(err))
		return nil
	}
	defer conn.Close()

	// Reads only detect the peer going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ctx := c.Request().Context()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var last *models.PollResponse
	for {
		resp, err := s.status.Poll(ctx, id)
		if err != nil {
			msg := "Task not found"
			if !errors.Is(err, models.ErrJobNotFound) {
				msg = "status lookup failed"
				s.logger.Error("task status stream", xlogger.String("task_id", id), xlogger.Error(err))
			}
			s.write(conn, streamError{Status: "error", Error: msg})
			s.close(conn, websocket.ClosePolicyViolation)
			return nil
		}

		if last == nil || changed(last, resp) {
			if !s.write(conn, resp) {
				return nil
			}
			last = resp
		}
		if resp.Terminal() {
			s.close(conn, websocket.CloseNormalClosure)
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-gone:
			return nil
		case <-ticker.C:
		}
	}
}

func (s *TaskStatusStream) write(conn *websocket.Conn, v interface{}) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(v); err != nil {
		s.logger.Debug("websocket write failed", xlogger.Error(err))
		return false
	}
	return true
}

func (s *TaskStatusStream) close(conn *websocket.Conn, code int) {
	msg := websocket.FormatCloseMessage(code, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

func changed(a, b *models.PollResponse) bool {
	if a.Status != b.Status || a.Message != b.Message {
		return true
	}
	return intVal(a.Progress) != intVal(b.Progress)
}

func intVal(p *int) int {
	if p == nil {
		return -1
	}
	return *p
}
