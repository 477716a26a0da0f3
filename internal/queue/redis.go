// Package queue is the Redis-backed key-value half of C1: the dedup keys,
// the events_pq priority queue, and the ws_messages pub/sub channel.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// EventsQueueKey is the sorted set workers drain with BZPOPMIN.
	EventsQueueKey = "events_pq"
	// WSChannel is the pub/sub channel transition broadcasts are published on.
	WSChannel = "ws_messages"
	// DedupTTL bounds both re-submission collapsing and queue staleness: a
	// payload older than this has already been dequeued or has vanished,
	// and the corresponding dequeue becomes a no-op.
	DedupTTL = time.Hour
)

type Queue struct {
	client *redis.Client
}

func New(redisURI string) (*Queue, error) {
	opts, err := redis.ParseURL(redisURI)
	if err != nil {
		return nil, fmt.Errorf("unable to parse redis uri: %w", err)
	}
	return &Queue{client: redis.NewClient(opts)}, nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}

func (q *Queue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Admit runs the admission protocol's key-value steps (§4.1 steps 3-4) in
// one pipeline: SET dedup_key payload NX EX 3600, then ZADD events_pq
// dedup_key score=timestamp NX. Returns admitted=false if the dedup key
// already existed — the observation is a duplicate within the hour and is
// dropped without enqueueing.
func (q *Queue) Admit(ctx context.Context, dedupKey string, payload []byte, timestamp float64) (admitted bool, err error) {
	pipe := q.client.TxPipeline()
	setCmd := pipe.SetNX(ctx, dedupKey, payload, DedupTTL)
	pipe.ZAddNX(ctx, EventsQueueKey, redis.Z{Score: timestamp, Member: dedupKey})
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("admit pipeline: %w", err)
	}
	return setCmd.Val(), nil
}

// PopNext blocks (up to timeout, 0 = forever) for the lowest-scored member
// of events_pq and returns its dedup key. redis.Nil is returned when the
// timeout elapses with nothing to pop.
func (q *Queue) PopNext(ctx context.Context, timeout time.Duration) (dedupKey string, score float64, err error) {
	res, err := q.client.BZPopMin(ctx, timeout, EventsQueueKey).Result()
	if err != nil {
		return "", 0, err
	}
	member, _ := res.Member.(string)
	return member, res.Score, nil
}

// GetAndDelete atomically retrieves and removes the payload at key. A nil
// slice (no error) means the payload had already expired — the TTL acting
// as a hard ceiling on queue latency — and the dequeue is a no-op.
func (q *Queue) GetAndDelete(ctx context.Context, key string) ([]byte, error) {
	val, err := q.client.GetDel(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

// Publish sends a JSON payload on the ws_messages channel for every
// attached fanout subscriber in every HTTP process to pick up.
func (q *Queue) Publish(ctx context.Context, payload []byte) error {
	return q.client.Publish(ctx, WSChannel, payload).Err()
}

// Subscribe returns a live subscription to ws_messages for the broadcast
// fanout (C5) to bridge into its local viewer hub.
func (q *Queue) Subscribe(ctx context.Context) *redis.PubSub {
	return q.client.Subscribe(ctx, WSChannel)
}

// Depth reports the current events_pq length for the /status snapshot.
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, EventsQueueKey).Result()
}

// CSVDumpLockKey guards the /csv/dump endpoint against concurrent
// regeneration of the same file.
const CSVDumpLockKey = "csv_dump_lock"

// CSVDumpLockTTL bounds how long a stuck generator holds the lock.
const CSVDumpLockTTL = 5 * time.Minute

// TryLock acquires a short-lived mutex, the same SET-NX-EX primitive Admit
// uses for dedup, reused here to serialize a single concern instead of
// deduplicating many.
func (q *Queue) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return q.client.SetNX(ctx, key, "1", ttl).Result()
}

// Unlock releases a lock acquired with TryLock early, once the guarded work
// finishes well before its TTL.
func (q *Queue) Unlock(ctx context.Context, key string) error {
	return q.client.Del(ctx, key).Err()
}
