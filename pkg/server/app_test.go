package server

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"PriceCast/pkg/config"
	applogger "PriceCast/pkg/logger"
	"PriceCast/pkg/queue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingCloser struct {
	name  string
	mu    *sync.Mutex
	order *[]string
}

func (c recordingCloser) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	*c.order = append(*c.order, c.name)
	return nil
}

type blockingJob struct {
	started chan struct{}
	done    chan error
}

func (j *blockingJob) Name() string { return "BlockingJob" }
func (j *blockingJob) Type() string { return "block" }

func (j *blockingJob) Handle(ctx context.Context, _ interface{}) error {
	close(j.started)
	<-ctx.Done()
	j.done <- ctx.Err()
	return ctx.Err()
}

func TestWorkerModeDrainsQueueAndClosesInReverse(t *testing.T) {
	cfg, err := config.Default()
	require.NoError(t, err)
	cfg.Mode = config.ModeWorker
	cfg.Models.Dir = filepath.Join(t.TempDir(), "models")
	cfg.Media.Dir = filepath.Join(t.TempDir(), "media")
	cfg.Server.ShutdownTimeout = 2 * time.Second

	lgr := applogger.Nop()
	q := queue.NewMemoryQueue(lgr, &queue.QueueConfig{Workers: 1})
	job := &blockingJob{started: make(chan struct{}), done: make(chan error, 1)}

	var mu sync.Mutex
	var order []string
	app := New(cfg, lgr, nil, q, []queue.Job{job},
		recordingCloser{"cache", &mu, &order},
		recordingCloser{"events", &mu, &order},
	)

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- app.RunContext(ctx) }()

	require.Eventually(t, func() bool {
		_, err := q.Enqueue(context.Background(), "block", map[string]string{})
		return err == nil
	}, time.Second, 5*time.Millisecond)
	<-job.started

	cancel()
	select {
	case err := <-runErr:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("app did not shut down")
	}

	assert.ErrorIs(t, <-job.done, context.Canceled)
	assert.Equal(t, []string{"events", "cache"}, order)
	assert.DirExists(t, cfg.Models.Dir)
	assert.DirExists(t, cfg.Media.Dir)
}
