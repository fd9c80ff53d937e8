package jobs

import (
	"context"

	"github.com/hibiken/asynq"
)

// Client enqueues tasks from the request path.
type Client struct {
	inner *asynq.Client
}

// NewClient constructs a Client over the shared redis connection options.
func NewClient(opts asynq.RedisClientOpt) *Client {
	return &Client{inner: asynq.NewClient(opts)}
}

// EnqueueNavigationRefresh schedules a navigation cache clear.
func (c *Client) EnqueueNavigationRefresh(ctx context.Context) error {
	if c == nil || c.inner == nil {
		return nil
	}
	_, err := c.inner.EnqueueContext(ctx, NewNavigationRefreshTask(), asynq.Queue(QueueDefault))
	return err
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	if c == nil || c.inner == nil {
		return nil
	}
	return c.inner.Close()
}
