package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	queueKeyPrefix = "genbridge:queue:"
	procKeySuffix  = ":processing"

	dequeueBlock = 2 * time.Second
)

// Redis implements Broker over Redis lists using the reliable-queue
// pattern: LPUSH to enqueue, BRPOPLPUSH into a per-queue processing
// list, LREM on ack.
type Redis struct {
	client *redis.Client
}

func NewRedis(url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &Redis{client: redis.NewClient(opts)}, nil
}

// NewRedisWithClient wraps an existing client; tests pass a miniredis
// backed client here.
func NewRedisWithClient(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func queueKey(name string) string { return queueKeyPrefix + name }
func procKey(name string) string  { return queueKey(name) + procKeySuffix }

func (b *Redis) Enqueue(ctx context.Context, queueName string, job *Job) error {
	job.EnqueuedAt = time.Now().UTC()
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if err := b.client.LPush(ctx, queueKey(queueName), payload).Err(); err != nil {
		return err
	}
	log.Debug().
		Str("queue", queueName).
		Str("internal_task_id", job.InternalTaskID).
		Msg("job enqueued")
	return nil
}

func (b *Redis) Dequeue(ctx context.Context, queueName string) (*Job, error) {
	raw, err := b.client.BRPopLPush(ctx, queueKey(queueName), procKey(queueName), dequeueBlock).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		// Unparseable payloads are dropped from the processing list so
		// they cannot wedge the queue.
		log.Error().Err(err).Str("queue", queueName).Msg("dropping malformed job payload")
		b.client.LRem(ctx, procKey(queueName), 1, raw)
		return nil, nil
	}
	job.raw = raw
	return &job, nil
}

func (b *Redis) Ack(ctx context.Context, queueName string, job *Job) error {
	return b.client.LRem(ctx, procKey(queueName), 1, job.raw).Err()
}

func (b *Redis) Depth(ctx context.Context, queueName string) (int64, error) {
	return b.client.LLen(ctx, queueKey(queueName)).Result()
}

// Recover requeues payloads stranded on a processing list by a previous
// process. Run once at startup, before workers begin; at-least-once
// delivery makes the resulting duplicates safe.
func (b *Redis) Recover(ctx context.Context, queueName string) (int, error) {
	moved := 0
	for {
		raw, err := b.client.RPopLPush(ctx, procKey(queueName), queueKey(queueName)).Result()
		if err == redis.Nil {
			break
		}
		if err != nil {
			return moved, err
		}
		_ = raw
		moved++
	}
	if moved > 0 {
		log.Info().Str("queue", queueName).Int("jobs", moved).Msg("recovered stranded jobs")
	}
	return moved, nil
}

func (b *Redis) Close() error {
	return b.client.Close()
}
