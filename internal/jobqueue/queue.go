// Package jobqueue carries render requests through a Redis list. Producers
// LPUSH JSON messages and workers BRPOP them, so the oldest request is served
// first.
package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"reel/internal/config"
	"reel/internal/job"
	"reel/internal/logging"
)

// Message is one queued render.
type Message struct {
	ID         string    `json:"id"`
	Job        job.Job   `json:"job"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// listClient is the subset of the Redis API the queue uses.
type listClient interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	BRPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
	LLen(ctx context.Context, key string) *redis.IntCmd
}

// Queue is a FIFO of render messages.
type Queue struct {
	client listClient
	key    string
}

// New wraps an existing client.
func New(client listClient, key string) *Queue {
	if strings.TrimSpace(key) == "" {
		key = config.DefaultQueueListKey
	}
	return &Queue{client: client, key: key}
}

// Dial connects to the Redis server configured in cfg and verifies it answers.
func Dial(ctx context.Context, cfg config.Queue) (*Queue, *redis.Client, error) {
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil, nil, errors.New("queue: redis_addr is not configured")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("queue: ping redis %s: %w", cfg.RedisAddr, err)
	}
	return New(rdb, cfg.ListKey), rdb, nil
}

// Key returns the Redis list name.
func (q *Queue) Key() string { return q.key }

// Push appends msg to the queue.
func (q *Queue) Push(ctx context.Context, msg Message) error {
	if msg.EnqueuedAt.IsZero() {
		msg.EnqueuedAt = time.Now().UTC()
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("queue: encode message: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, raw).Err(); err != nil {
		return fmt.Errorf("queue: push: %w", err)
	}
	return nil
}

// Pop waits up to timeout for the next message. It returns nil without an
// error when the wait times out. A zero timeout blocks until a message
// arrives or ctx ends.
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (*Message, error) {
	res, err := q.client.BRPop(ctx, timeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("queue: pop: %w", err)
	}
	if len(res) < 2 {
		return nil, nil
	}
	var msg Message
	if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
		return nil, fmt.Errorf("queue: decode message: %w", err)
	}
	return &msg, nil
}

// Len reports the number of waiting messages.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}

// Handler processes one message.
type Handler func(ctx context.Context, msg Message) error

// Consume pops messages until ctx ends, handling one at a time. Handler
// errors are logged and consumption continues; undecodable messages are
// dropped. Redis errors back off before retrying.
func Consume(ctx context.Context, q *Queue, handle Handler, logger *slog.Logger) error {
	logger = logging.NewComponentLogger(logger, "worker")
	const pollTimeout = 5 * time.Second
	backoff := time.Second
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		msg, err := q.Pop(ctx, pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logging.WarnWithContext(logger, "queue pop failed", "queue_pop_failed",
				logging.Error(err),
				logging.Duration("retry_in", backoff),
				logging.String(logging.FieldImpact, "queued renders wait until redis recovers"),
				logging.String(logging.FieldErrorHint, "check queue.redis_addr and that redis is running"),
			)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, 30*time.Second)
			continue
		}
		backoff = time.Second
		if msg == nil {
			continue
		}
		msgCtx := logging.WithRenderID(ctx, msg.ID)
		logging.WithContext(msgCtx, logger).Info("render dequeued",
			logging.String(logging.FieldEventType, "render_dequeued"),
			logging.String("composition_id", msg.Job.CompositionID),
			logging.Duration("waited", time.Since(msg.EnqueuedAt)),
		)
		if err := handle(msgCtx, *msg); err != nil {
			logging.WithContext(msgCtx, logger).Error("queued render failed",
				logging.String(logging.FieldEventType, "render_failed"),
				logging.Error(err),
			)
		}
	}
}
