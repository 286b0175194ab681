// Package queue holds the pass-through client for the deferred
// background-execution collaborator. The core never enqueues jobs
// itself (imports run synchronously, per spec.md's scope); this client
// exists only so the health endpoint can report the queue's
// reachability alongside the graph and vector stores.
package queue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yungbote/neurobridge-backend/internal/platform/envutil"
	"github.com/yungbote/neurobridge-backend/internal/platform/logger"
)

type Client struct {
	rdb *redis.Client
	log *logger.Logger
}

// NewFromEnv returns (nil, nil) when QUEUE_REDIS_URL is unset, mirroring
// neo4jdb.NewFromEnv's "collaborator not configured" convention.
func NewFromEnv(log *logger.Logger) (*Client, error) {
	addr := strings.TrimSpace(envutil.String("QUEUE_REDIS_URL", ""))
	if addr == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(addr)
	if err != nil {
		return nil, fmt.Errorf("queue: parse QUEUE_REDIS_URL: %w", err)
	}

	rdb := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("queue: ping failed: %w", err)
	}

	log.Info("connected to queue", "addr", opts.Addr)
	return &Client{rdb: rdb, log: log.With("client", "QueueClient")}, nil
}

func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.rdb == nil {
		return fmt.Errorf("queue: not configured")
	}
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}
