package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const readyKey = "queue:ready"

// scoreBand separates priorities in the composite score. The millisecond
// term must stay below it so priorities never bleed into each other.
const scoreBand = int64(1e12)

// queueEpoch anchors the millisecond term. Keeping it recent means the term
// stays under scoreBand for decades, and the whole score stays an integer
// under 2^53 — exactly representable in a float64.
var queueEpoch = time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)

// encodeScore folds (priority, scheduledAt) into one sortable float64:
// −priority × 10^12 + ms since the queue epoch, sorting priority-desc,
// time-asc. The millisecond term is clamped into [0, scoreBand): a
// pre-epoch scheduled_at is already due and must not sink into a lower
// priority band, and a time past the band ceiling must not rise into a
// higher one.
func encodeScore(priority int, scheduledAt time.Time) float64 {
	ms := scheduledAt.Sub(queueEpoch).Milliseconds()
	if ms < 0 {
		ms = 0
	}
	if ms >= scoreBand {
		ms = scoreBand - 1
	}
	return float64(-int64(priority)*scoreBand + ms)
}

func decodeScore(score float64) (priority int, scheduledAt time.Time) {
	n := int64(score)
	q, r := n/scoreBand, n%scoreBand
	if r < 0 {
		q--
		r += scoreBand
	}
	return int(-q), queueEpoch.Add(time.Duration(r) * time.Millisecond)
}

// RedisQueue is the shared ReadyQueue for multi-instance deployments: one
// sorted set, member = job id, score = encodeScore(priority, scheduledAt).
type RedisQueue struct {
	client *redis.Client
}

func NewRedisQueue(redisURL string) (*RedisQueue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &RedisQueue{client: redis.NewClient(opts)}, nil
}

func (q *RedisQueue) Push(ctx context.Context, id string, priority int, scheduledAt time.Time) error {
	err := q.client.ZAdd(ctx, readyKey, redis.Z{
		Score:  encodeScore(priority, scheduledAt),
		Member: id,
	}).Err()
	if err != nil {
		return fmt.Errorf("zadd: %w", err)
	}
	return nil
}

// popScanWindow bounds how many head entries PopReady inspects. A future
// high-priority entry occupies one slot of the window, so a due entry in a
// lower band is still found as long as fewer than popScanWindow bands are
// blocked; anything beyond the window is covered by the durable scan.
const popScanWindow = 16

func (q *RedisQueue) PopReady(ctx context.Context, now time.Time) (string, error) {
	entries, err := q.client.ZRangeWithScores(ctx, readyKey, 0, popScanWindow-1).Result()
	if err != nil {
		return "", fmt.Errorf("zrange: %w", err)
	}
	for _, e := range entries {
		if _, due := decodeScore(e.Score); due.After(now) {
			continue
		}
		id, ok := e.Member.(string)
		if !ok {
			return "", fmt.Errorf("unexpected member type %T", e.Member)
		}
		removed, err := q.client.ZRem(ctx, readyKey, id).Result()
		if err != nil {
			return "", fmt.Errorf("zrem: %w", err)
		}
		if removed == 0 {
			// Another instance took this one between range and rem.
			continue
		}
		return id, nil
	}
	return "", nil
}

func (q *RedisQueue) Remove(ctx context.Context, id string) error {
	if err := q.client.ZRem(ctx, readyKey, id).Err(); err != nil {
		return fmt.Errorf("zrem: %w", err)
	}
	return nil
}

func (q *RedisQueue) Size(ctx context.Context) (int, error) {
	n, err := q.client.ZCard(ctx, readyKey).Result()
	if err != nil {
		return 0, fmt.Errorf("zcard: %w", err)
	}
	return int(n), nil
}

func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}
