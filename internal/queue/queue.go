// Package queue is a small Redis-backed task queue used for the work that
// must not block a checkout: receipt emails and reorder notices. Tasks live
// in a sorted set scored by their availability time; in-flight tasks move to
// a processing set so they can be redelivered if a worker dies.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Task kinds handled by the worker binary.
const (
	KindReceiptEmail  = "receipt_email"
	KindReorderNotice = "reorder_notice"
)

// Task is one unit of asynchronous work.
type Task struct {
	Kind           string
	Payload        []byte
	IdempotencyKey string
	MaxAttempts    int
	Delay          time.Duration
}

type message struct {
	Kind        string `json:"kind"`
	Key         string `json:"key,omitempty"`
	Payload     []byte `json:"payload"`
	Attempt     int    `json:"attempt"`
	MaxAttempts int    `json:"maxAttempts"`
	AvailableAt int64  `json:"availableAt"`
}

// Enqueuer publishes tasks. An idempotency key suppresses duplicates within
// the dedup window, which keeps event redelivery from double-sending emails.
type Enqueuer struct {
	R        *redis.Client
	Prefix   string
	DedupTTL time.Duration
}

// Enqueue schedules the task. Duplicate keys within the dedup window are
// silently dropped.
func (e Enqueuer) Enqueue(ctx context.Context, t Task) error {
	if e.R == nil {
		return errors.New("queue: redis client not configured")
	}
	if t.Kind == "" {
		return errors.New("queue: task kind is required")
	}
	msg := message{
		Kind:        t.Kind,
		Key:         t.IdempotencyKey,
		Payload:     t.Payload,
		MaxAttempts: t.MaxAttempts,
		AvailableAt: time.Now().Add(t.Delay).UnixNano(),
	}
	if msg.MaxAttempts <= 0 {
		msg.MaxAttempts = 8
	}
	if msg.Key != "" {
		ttl := e.DedupTTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		ok, err := e.R.SetNX(ctx, dedupKey(e.Prefix, t.Kind, msg.Key), "1", ttl).Result()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return e.R.ZAdd(ctx, pendingKey(e.Prefix, t.Kind), redis.Z{
		Score:  float64(msg.AvailableAt),
		Member: raw,
	}).Err()
}

// Worker drains one task kind until its context is cancelled.
type Worker struct {
	R           *redis.Client
	Prefix      string
	Kind        string
	Concurrency int
	Visibility  time.Duration
	PollEvery   time.Duration
	RetryBase   time.Duration
	Handler     func(context.Context, Task) error
	Log         zerolog.Logger
}

// Run processes tasks until ctx is cancelled. Tasks whose visibility window
// expired are put back on the pending set once per poll cycle.
func (w Worker) Run(ctx context.Context) error {
	if w.R == nil || w.Handler == nil || w.Kind == "" {
		return errors.New("queue: worker not configured")
	}
	concurrency := w.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	visibility := w.Visibility
	if visibility <= 0 {
		visibility = 30 * time.Second
	}
	poll := w.PollEvery
	if poll <= 0 {
		poll = time.Second
	}
	retryBase := w.RetryBase
	if retryBase <= 0 {
		retryBase = 500 * time.Millisecond
	}

	pending := pendingKey(w.Prefix, w.Kind)
	processing := processingKey(w.Prefix, w.Kind)
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return nil
		case <-ticker.C:
			if err := w.redeliverExpired(ctx, pending, processing); err != nil {
				w.Log.Error().Err(err).Str("kind", w.Kind).Msg("queue redelivery failed")
			}
		default:
		}

		msg, raw, ok, err := w.claim(ctx, pending, processing, visibility)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				wg.Wait()
				return nil
			}
			return err
		}
		if !ok {
			sleepCtx(ctx, poll)
			continue
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(msg message, raw string) {
			defer wg.Done()
			defer func() { <-sem }()
			task := Task{Kind: msg.Kind, Payload: msg.Payload, IdempotencyKey: msg.Key}
			if err := w.Handler(ctx, task); err != nil {
				w.Log.Warn().Err(err).Str("kind", msg.Kind).Int("attempt", msg.Attempt).Msg("task failed")
				w.retryOrBury(ctx, pending, processing, msg, raw, retryBase)
				return
			}
			w.ack(ctx, processing, msg, raw)
		}(msg, raw)
	}
}

// claim pops the most due task and moves it to the processing set. A task
// scheduled for the future is pushed back untouched.
func (w Worker) claim(ctx context.Context, pending, processing string, visibility time.Duration) (message, string, bool, error) {
	res, err := w.R.ZPopMin(ctx, pending, 1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return message{}, "", false, nil
		}
		return message{}, "", false, err
	}
	if len(res) == 0 {
		return message{}, "", false, nil
	}
	raw, _ := res[0].Member.(string)
	var msg message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		w.Log.Error().Err(err).Str("kind", w.Kind).Msg("dropping undecodable task")
		return message{}, "", false, nil
	}
	if now := time.Now().UnixNano(); msg.AvailableAt > now {
		err := w.R.ZAdd(ctx, pending, redis.Z{Score: float64(msg.AvailableAt), Member: raw}).Err()
		return message{}, "", false, err
	}

	msg.Attempt++
	claimed, err := json.Marshal(msg)
	if err != nil {
		return message{}, "", false, err
	}
	deadline := time.Now().Add(visibility).UnixNano()
	if err := w.R.ZAdd(ctx, processing, redis.Z{Score: float64(deadline), Member: claimed}).Err(); err != nil {
		return message{}, "", false, err
	}
	return msg, string(claimed), true, nil
}

func (w Worker) ack(ctx context.Context, processing string, msg message, raw string) {
	_ = w.R.ZRem(ctx, processing, raw).Err()
	if msg.Key != "" {
		_ = w.R.Del(ctx, dedupKey(w.Prefix, msg.Kind, msg.Key)).Err()
	}
}

func (w Worker) retryOrBury(ctx context.Context, pending, processing string, msg message, raw string, base time.Duration) {
	_ = w.R.ZRem(ctx, processing, raw).Err()
	if msg.Attempt >= msg.MaxAttempts {
		buried, err := json.Marshal(msg)
		if err != nil {
			return
		}
		_ = w.R.LPush(ctx, dlqKey(w.Prefix, msg.Kind), buried).Err()
		if msg.Key != "" {
			_ = w.R.Del(ctx, dedupKey(w.Prefix, msg.Kind, msg.Key)).Err()
		}
		w.Log.Error().Str("kind", msg.Kind).Int("attempt", msg.Attempt).Msg("task moved to dead letter queue")
		return
	}
	msg.AvailableAt = time.Now().Add(backoff(base, msg.Attempt)).UnixNano()
	rescheduled, err := json.Marshal(msg)
	if err != nil {
		return
	}
	_ = w.R.ZAdd(ctx, pending, redis.Z{Score: float64(msg.AvailableAt), Member: rescheduled}).Err()
}

func (w Worker) redeliverExpired(ctx context.Context, pending, processing string) error {
	now := fmt.Sprintf("%f", float64(time.Now().UnixNano()))
	due, err := w.R.ZRangeByScore(ctx, processing, &redis.ZRangeBy{Min: "-inf", Max: now}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	for _, raw := range due {
		var msg message
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			_ = w.R.ZRem(ctx, processing, raw).Err()
			continue
		}
		_ = w.R.ZRem(ctx, processing, raw).Err()
		msg.AvailableAt = time.Now().UnixNano()
		requeued, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		_ = w.R.ZAdd(ctx, pending, redis.Z{Score: float64(msg.AvailableAt), Member: requeued}).Err()
	}
	return nil
}

// DeadLetters returns up to limit buried tasks for a kind, newest first.
func DeadLetters(ctx context.Context, r *redis.Client, prefix, kind string, limit int64) ([]Task, error) {
	if r == nil {
		return nil, errors.New("queue: redis client not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	raws, err := r.LRange(ctx, dlqKey(prefix, kind), 0, limit-1).Result()
	if err != nil {
		return nil, err
	}
	tasks := make([]Task, 0, len(raws))
	for _, raw := range raws {
		var msg message
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			continue
		}
		tasks = append(tasks, Task{Kind: msg.Kind, Payload: msg.Payload, IdempotencyKey: msg.Key, MaxAttempts: msg.MaxAttempts})
	}
	return tasks, nil
}

// backoff grows exponentially with the attempt count plus up to 20% jitter.
func backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(base) * math.Pow(2, float64(attempt-1))
	d += d * 0.2 * rand.Float64()
	if ceil := float64(5 * time.Minute); d > ceil {
		d = ceil
	}
	return time.Duration(d)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func pendingKey(prefix, kind string) string {
	return key(prefix, "queue:"+kind)
}

func processingKey(prefix, kind string) string {
	return key(prefix, "queue:"+kind+":processing")
}

func dlqKey(prefix, kind string) string {
	return key(prefix, "queue:"+kind+":dlq")
}

func dedupKey(prefix, kind, k string) string {
	return key(prefix, "queue:dedup:"+kind+":"+k)
}

func key(prefix, suffix string) string {
	if prefix == "" {
		return suffix
	}
	return prefix + ":" + suffix
}
