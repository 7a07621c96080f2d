// Package queue implements the Queue Substrate: a Redis-backed durable FIFO
// with a processing set, per-document locks, a delayed-retry sorted set, an
// attempts counter, a correlation-ID hash, and a pub/sub results channel.
// Generalized from the teacher's queue/redis package (single list + ZSET
// processing set) into the full primitive set the worker pool needs.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Family selects one of the two coexisting queue namespaces; CPU and GPU
// workers never cross queues, only the key prefix differs.
type Family string

const (
	CPU Family = "cpu"
	GPU Family = "gpu"
)

// Result is the summary broadcast on the results channel when a document
// finishes processing, successfully or not.
type Result struct {
	DocumentID    string `json:"documentId"`
	CorrelationID string `json:"correlationId"`
	Outcome       string `json:"outcome"` // "completed" | "failed"
	Score         int    `json:"score,omitempty"`
	ProcessingMs  int64  `json:"processingMs"`
}

// Substrate is the Queue Substrate client. All operations are safe for
// concurrent use by multiple worker goroutines and processes.
type Substrate struct {
	client  *redis.Client
	prefix  string
	results string
}

// Config configures the substrate connection.
type Config struct {
	URL      string
	Password string
	TLS      bool
	Prefix   string // deployment-wide key prefix, e.g. "filot:ocr:"
}

// New connects to the substrate and verifies reachability. Startup Recovery
// (§4.9) refuses to proceed until this succeeds.
func New(ctx context.Context, cfg Config) (*Substrate, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("queue: parse url: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("queue: connect: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "filot:ocr:"
	}

	return &Substrate{client: client, prefix: prefix, results: prefix + "results"}, nil
}

func (s *Substrate) Close() error { return s.client.Close() }

// Ping reports substrate reachability for the health endpoint.
func (s *Substrate) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Substrate) mainKey(f Family) string       { return s.prefix + string(f) + ":main" }
func (s *Substrate) processingKey(f Family) string { return s.prefix + string(f) + ":processing" }
func (s *Substrate) delayedKey(f Family) string    { return s.prefix + string(f) + ":delayed" }
func (s *Substrate) lockKey(docID string) string   { return s.prefix + "lock:" + docID }
func (s *Substrate) attemptsKey(docID string) string {
	return s.prefix + "attempts:" + docID
}
func (s *Substrate) correlationKey() string { return s.prefix + "correlation" }

// Enqueue appends docId to the main list for family f. Idempotent: returns
// false without mutation if docId is already in the processing set or main
// list.
func (s *Substrate) Enqueue(ctx context.Context, f Family, docID string) (bool, error) {
	inProcessing, err := s.client.ZScore(ctx, s.processingKey(f), docID).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("queue: check processing set: %w", err)
	}
	if err == nil && inProcessing > 0 {
		return false, nil
	}

	members, err := s.client.LRange(ctx, s.mainKey(f), 0, -1).Result()
	if err != nil {
		return false, fmt.Errorf("queue: check main list: %w", err)
	}
	for _, m := range members {
		if m == docID {
			return false, nil
		}
	}

	if err := s.client.RPush(ctx, s.mainKey(f), docID).Err(); err != nil {
		return false, fmt.Errorf("queue: enqueue: %w", err)
	}
	return true, nil
}

// Dequeue blocks up to timeout for the next document ID, moving it
// atomically into the processing set with a processing-start timestamp.
// Returns ("", nil) on timeout with nothing available.
func (s *Substrate) Dequeue(ctx context.Context, f Family, timeout time.Duration) (string, error) {
	result, err := s.client.BLPop(ctx, timeout, s.mainKey(f)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("queue: dequeue: %w", err)
	}
	if len(result) < 2 {
		return "", nil
	}
	docID := result[1]

	if err := s.client.ZAdd(ctx, s.processingKey(f), redis.Z{
		Score:  float64(time.Now().Unix()),
		Member: docID,
	}).Err(); err != nil {
		return "", fmt.Errorf("queue: mark processing: %w", err)
	}
	return docID, nil
}

// ProcessingStartedAt returns when docId entered the processing set, used
// by the reaper to find stuck entries.
func (s *Substrate) ProcessingStartedAt(ctx context.Context, f Family, docID string) (time.Time, bool, error) {
	score, err := s.client.ZScore(ctx, s.processingKey(f), docID).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("queue: processing score: %w", err)
	}
	return time.Unix(int64(score), 0), true, nil
}

// ProcessingSet returns every document ID currently in the processing set,
// for the reaper sweep and startup recovery.
func (s *Substrate) ProcessingSet(ctx context.Context, f Family) ([]string, error) {
	return s.client.ZRange(ctx, s.processingKey(f), 0, -1).Result()
}

// QueueLen returns the main queue's current length for f, for the
// queue_depth gauge.
func (s *Substrate) QueueLen(ctx context.Context, f Family) (int64, error) {
	n, err := s.client.LLen(ctx, s.mainKey(f)).Result()
	if err != nil {
		return 0, fmt.Errorf("queue: queue len: %w", err)
	}
	return n, nil
}

// MarkComplete removes docId from the processing set, attempts counter,
// correlation map, and releases its lock.
func (s *Substrate) MarkComplete(ctx context.Context, f Family, docID string) error {
	pipe := s.client.TxPipeline()
	pipe.ZRem(ctx, s.processingKey(f), docID)
	pipe.Del(ctx, s.attemptsKey(docID))
	pipe.HDel(ctx, s.correlationKey(), docID)
	pipe.Del(ctx, s.lockKey(docID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("queue: mark complete: %w", err)
	}
	return nil
}

// MarkFailed performs the same cleanup as MarkComplete; callers persist the
// durable failure marker in the State Store separately.
func (s *Substrate) MarkFailed(ctx context.Context, f Family, docID string) error {
	return s.MarkComplete(ctx, f, docID)
}

// IncrementAttempts atomically increments and returns the new attempts
// count for docId.
func (s *Substrate) IncrementAttempts(ctx context.Context, docID string) (int, error) {
	n, err := s.client.Incr(ctx, s.attemptsKey(docID)).Result()
	if err != nil {
		return 0, fmt.Errorf("queue: increment attempts: %w", err)
	}
	return int(n), nil
}

// ScheduleRetry places docId in the delayed set scored by now+delay; the
// sweeper moves matured entries back to the main list.
func (s *Substrate) ScheduleRetry(ctx context.Context, f Family, docID string, delay time.Duration) error {
	due := time.Now().Add(delay).Unix()
	if err := s.client.ZAdd(ctx, s.delayedKey(f), redis.Z{Score: float64(due), Member: docID}).Err(); err != nil {
		return fmt.Errorf("queue: schedule retry: %w", err)
	}
	return nil
}

// SweepDelayed moves every matured delayed entry back onto the main list.
// Called every second by a background goroutine per family.
func (s *Substrate) SweepDelayed(ctx context.Context, f Family) (int, error) {
	now := float64(time.Now().Unix())
	due, err := s.client.ZRangeByScore(ctx, s.delayedKey(f), &redis.ZRangeBy{
		Min: "-inf", Max: fmt.Sprintf("%f", now),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("queue: sweep delayed: %w", err)
	}
	for _, docID := range due {
		pipe := s.client.TxPipeline()
		pipe.ZRem(ctx, s.delayedKey(f), docID)
		pipe.RPush(ctx, s.mainKey(f), docID)
		if _, err := pipe.Exec(ctx); err != nil {
			return 0, fmt.Errorf("queue: sweep move %s: %w", docID, err)
		}
	}
	return len(due), nil
}

// AcquireLock is a SET-if-not-exists with TTL on lock:{docId}. Returns false
// without error if another holder already has the lock.
func (s *Substrate) AcquireLock(ctx context.Context, docID string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.lockKey(docID), time.Now().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("queue: acquire lock: %w", err)
	}
	return ok, nil
}

// ReleaseLock deletes the lock key. Safe to call even if the lock already
// expired.
func (s *Substrate) ReleaseLock(ctx context.Context, docID string) error {
	if err := s.client.Del(ctx, s.lockKey(docID)).Err(); err != nil {
		return fmt.Errorf("queue: release lock: %w", err)
	}
	return nil
}

// IsLocked reports whether docId currently has an active lock.
func (s *Substrate) IsLocked(ctx context.Context, docID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.lockKey(docID)).Result()
	if err != nil {
		return false, fmt.Errorf("queue: check lock: %w", err)
	}
	return n > 0, nil
}

// SetCorrelationID / GetCorrelationID are hash operations against one
// deployment-wide map so any component can look up a document's trace ID.
func (s *Substrate) SetCorrelationID(ctx context.Context, docID, correlationID string) error {
	return s.client.HSet(ctx, s.correlationKey(), docID, correlationID).Err()
}

func (s *Substrate) GetCorrelationID(ctx context.Context, docID string) (string, error) {
	cid, err := s.client.HGet(ctx, s.correlationKey(), docID).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("queue: get correlation id: %w", err)
	}
	return cid, nil
}

// PublishResult broadcasts a processing outcome on the results channel.
func (s *Substrate) PublishResult(ctx context.Context, r Result) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("queue: marshal result: %w", err)
	}
	if err := s.client.Publish(ctx, s.results, data).Err(); err != nil {
		return fmt.Errorf("queue: publish result: %w", err)
	}
	return nil
}

// SubscribeResults returns a channel of decoded Results; the channel closes
// when ctx is done or the subscription breaks.
func (s *Substrate) SubscribeResults(ctx context.Context) (<-chan Result, error) {
	pubsub := s.client.Subscribe(ctx, s.results)
	if _, err := pubsub.Receive(ctx); err != nil {
		return nil, fmt.Errorf("queue: subscribe: %w", err)
	}

	out := make(chan Result)
	go func() {
		defer close(out)
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case msg, ok := <-ch:
				if !ok || msg == nil {
					return
				}
				var r Result
				if err := json.Unmarshal([]byte(msg.Payload), &r); err == nil {
					out <- r
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// ClearStaleProcessingEntry removes docId from the processing set without
// touching the lock or attempts counter, used by startup recovery when a
// processing entry has no backing DB row at all.
func (s *Substrate) ClearStaleProcessingEntry(ctx context.Context, f Family, docID string) error {
	return s.client.ZRem(ctx, s.processingKey(f), docID).Err()
}

func (s *Substrate) retryQueueKey() string { return s.prefix + "buli2:retry_queue" }

// PushRetryEnvelope appends an opaque, already-serialized forwarding
// envelope to the review-forwarder's overflow queue (§4.7 fallback path).
func (s *Substrate) PushRetryEnvelope(ctx context.Context, envelope []byte) error {
	return s.client.RPush(ctx, s.retryQueueKey(), envelope).Err()
}

// PopRetryEnvelope pops the oldest pending envelope, or ("", nil) if the
// queue is empty.
func (s *Substrate) PopRetryEnvelope(ctx context.Context) ([]byte, error) {
	val, err := s.client.LPop(ctx, s.retryQueueKey()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

// RetryQueueLen reports the number of envelopes currently awaiting a drain
// pass; exposed for the /metrics snapshot.
func (s *Substrate) RetryQueueLen(ctx context.Context) (int64, error) {
	return s.client.LLen(ctx, s.retryQueueKey()).Result()
}
