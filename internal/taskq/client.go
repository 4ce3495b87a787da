package taskq

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"hlsfarm/internal/config"
)

// Client enqueues encode tasks onto per-worker queues.
type Client struct {
	inner      *asynq.Client
	maxRetries int
}

// NewClient connects an enqueue-side client to the broker named in cfg.
func NewClient(cfg *config.Config) (*Client, error) {
	opt, err := asynq.ParseRedisURI(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &Client{
		inner:      asynq.NewClient(opt),
		maxRetries: cfg.Queue.MaxRetries,
	}, nil
}

// EnqueueEncode places an encode task on the queue named after the target
// worker. The task keeps retrying while that worker is busy with another
// encode.
func (c *Client) EnqueueEncode(ctx context.Context, hostname, videoID, jobID string) error {
	task, err := NewEncodeTask(videoID, jobID)
	if err != nil {
		return err
	}
	_, err = c.inner.EnqueueContext(ctx, task,
		asynq.Queue(hostname),
		asynq.MaxRetry(c.maxRetries),
		asynq.Timeout(0),
	)
	if err != nil {
		return fmt.Errorf("enqueue encode for %s: %w", hostname, err)
	}
	return nil
}

// Close releases the broker connection.
func (c *Client) Close() error {
	return c.inner.Close()
}

// NewServer builds the consume-side server bound to this worker's own queue.
// Retries use a fixed delay so a busy worker is re-offered the task at a
// steady cadence instead of an exponential backoff.
func NewServer(cfg *config.Config) (*asynq.Server, error) {
	opt, err := asynq.ParseRedisURI(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	retryDelay := time.Duration(cfg.Queue.RetryDelaySeconds) * time.Second
	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: 1,
		Queues:      map[string]int{cfg.Worker.Name: 1},
		RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
			return retryDelay
		},
	})
	return server, nil
}
