package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"PortfolioHistory/pkg/logger"
	"PortfolioHistory/pkg/util"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// QueueMode defines the operation mode of the queue.
type QueueMode int

const (
	ModeProducerConsumer QueueMode = iota
	ModeProducerOnly
)

const (
	pollTimeout   = time.Second
	retryInterval = 2 * time.Second
	retryBatch    = 100
	maxRetryScale = 32
)

// RedisQueue is a Redis list backed job queue. Workers move a message to a
// processing list owned by this consumer while it runs, so messages left
// there by a crash are requeued on the next Start.
type RedisQueue struct {
	log        *logger.Logger
	config     QueueConfig
	client     *redis.Client
	mode       QueueMode
	keyPrefix  string
	consumerID string

	mu      sync.RWMutex
	jobs    map[string]Job
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// RedisQueueOption configures RedisQueue.
type RedisQueueOption func(*RedisQueue)

// WithKeyPrefix sets custom key prefix.
func WithKeyPrefix(prefix string) RedisQueueOption {
	return func(r *RedisQueue) {
		r.keyPrefix = prefix
	}
}

// WithConsumerID names this consumer's processing list. Defaults to the
// host name.
func WithConsumerID(id string) RedisQueueOption {
	return func(r *RedisQueue) {
		r.consumerID = id
	}
}

// NewRedisQueue creates a new Redis queue.
func NewRedisQueue(lgr *logger.Logger, config *QueueConfig, client *redis.Client, mode QueueMode, opts ...RedisQueueOption) *RedisQueue {
	cfg := QueueConfig{}
	if config != nil {
		cfg = *config
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 10 * time.Second
	}

	host, _ := os.Hostname()
	if host == "" {
		host = "default"
	}

	rq := &RedisQueue{
		log:        lgr.With(logger.String("component", "queue")),
		config:     cfg,
		client:     client,
		mode:       mode,
		keyPrefix:  "portfolio_history:queue",
		consumerID: host,
		jobs:       make(map[string]Job),
	}
	for _, opt := range opts {
		opt(rq)
	}
	return rq
}

// NewRedisPublisher creates a started, publisher-only queue. Only the
// QueueSize and DedupWindow of config apply.
func NewRedisPublisher(lgr *logger.Logger, config *QueueConfig, client *redis.Client, opts ...RedisQueueOption) *RedisQueue {
	q := NewRedisQueue(lgr, config, client, ModeProducerOnly, opts...)
	if err := q.Start(); err != nil {
		lgr.Error("redis publisher start failed", logger.Error(err))
	}
	return q
}

// RegisterJob registers a single job.
func (r *RedisQueue) RegisterJob(job Job) {
	if r.mode == ModeProducerOnly {
		r.log.Warn("job registration ignored in producer-only mode", logger.String("job", job.Name()))
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[job.Type()]; exists {
		r.log.Warn("job already registered", logger.String("job", job.Name()))
		return
	}
	r.jobs[job.Type()] = job
	r.log.Info("job registered", logger.String("job", job.Name()), logger.String("type", job.Type()))
}

// Start pings Redis and, for consumers, requeues orphaned messages and
// launches the workers and the retry mover.
func (r *RedisQueue) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("queue already running")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.running = true

	if r.mode == ModeProducerOnly {
		r.log.Info("redis publisher started", logger.String("addr", r.client.Options().Addr))
		return nil
	}

	if n, err := r.recoverOrphans(ctx); err != nil {
		r.log.Warn("requeue orphaned messages", logger.Error(err))
	} else if n > 0 {
		r.log.Info("requeued orphaned messages", logger.Int("count", n))
	}

	for i := 0; i < r.config.Workers; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}
	r.wg.Add(1)
	go r.retryMover()

	r.log.Info("redis queue started",
		logger.Int("workers", r.config.Workers),
		logger.String("addr", r.client.Options().Addr),
		logger.String("consumer", r.consumerID))
	return nil
}

// Stop cancels running jobs and waits for the workers. A cancelled job is
// put back at the head of the queue.
func (r *RedisQueue) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.cancel()
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		r.log.Warn("timeout waiting for queue workers", logger.Error(ctx.Err()))
		return fmt.Errorf("timeout: %w", ctx.Err())
	case <-done:
		r.log.Info("redis queue stopped")
		return nil
	}
}

// Enqueue adds a message to the queue and returns its id. Payloads that
// implement Deduper coalesce with a pending message of the same key.
func (r *RedisQueue) Enqueue(ctx context.Context, msgType string, payload interface{}) (string, error) {
	r.mu.RLock()
	running := r.running
	_, known := r.jobs[msgType]
	r.mu.RUnlock()

	if !running {
		return "", fmt.Errorf("queue not running")
	}
	if r.mode != ModeProducerOnly && !known {
		return "", fmt.Errorf("no job registered for type: %s", msgType)
	}

	if r.config.QueueSize > 0 {
		n, err := r.client.LLen(ctx, r.queueKey()).Result()
		if err != nil {
			return "", fmt.Errorf("llen: %w", err)
		}
		if n >= int64(r.config.QueueSize) {
			return "", fmt.Errorf("%w: %d pending", ErrQueueFull, n)
		}
	}

	msg := Message{
		ID:        uuid.NewString(),
		Type:      msgType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
	if d, ok := payload.(Deduper); ok && r.config.DedupWindow > 0 {
		msg.DedupKey = msgType + ":" + d.DedupKey()
		id, dup, err := r.claimDedup(ctx, msg)
		if err != nil {
			return "", err
		}
		if dup {
			r.log.Debug("message coalesced", logger.String("id", id), logger.String("key", msg.DedupKey))
			return id, nil
		}
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshal message: %w", err)
	}
	if err := r.client.LPush(ctx, r.queueKey(), data).Err(); err != nil {
		return "", fmt.Errorf("lpush: %w", err)
	}
	return msg.ID, nil
}

// PublishMessage publishes a message (implements QueueService).
func (r *RedisQueue) PublishMessage(ctx context.Context, msgType string, payload interface{}) (string, error) {
	return r.Enqueue(ctx, msgType, payload)
}

// Stats reports pending, scheduled-for-retry and dead messages.
func (r *RedisQueue) Stats(ctx context.Context) (Stats, error) {
	pipe := r.client.Pipeline()
	pending := pipe.LLen(ctx, r.queueKey())
	retrying := pipe.ZCard(ctx, r.retryKey())
	dead := pipe.LLen(ctx, r.deadLetterKey())
	if _, err := pipe.Exec(ctx); err != nil {
		return Stats{}, fmt.Errorf("queue stats: %w", err)
	}
	return Stats{Pending: pending.Val(), Retrying: retrying.Val(), Dead: dead.Val()}, nil
}

// claimDedup reserves msg.DedupKey for msg.ID. When the key is already held
// it returns the holder's id.
func (r *RedisQueue) claimDedup(ctx context.Context, msg Message) (string, bool, error) {
	key := r.dedupKey(msg.DedupKey)
	ok, err := r.client.SetNX(ctx, key, msg.ID, r.config.DedupWindow).Result()
	if err != nil {
		return "", false, fmt.Errorf("dedup setnx: %w", err)
	}
	if ok {
		return msg.ID, false, nil
	}
	id, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		// expired between the two calls
		return msg.ID, false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("dedup get: %w", err)
	}
	return id, true, nil
}

func (r *RedisQueue) recoverOrphans(ctx context.Context) (int, error) {
	n := 0
	for {
		err := r.client.LMove(ctx, r.processingKey(), r.queueKey(), "LEFT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		n++
	}
}

func (r *RedisQueue) worker(id int) {
	defer r.wg.Done()
	r.log.Debug("queue worker started", logger.Int("worker_id", id))

	for r.ctx.Err() == nil {
		raw, err := r.client.BLMove(r.ctx, r.queueKey(), r.processingKey(), "RIGHT", "LEFT", pollTimeout).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || r.ctx.Err() != nil {
				continue
			}
			r.log.Error("blmove", logger.Error(err), logger.Int("worker_id", id))
			r.sleep(time.Second)
			continue
		}
		r.process(raw)
	}
}

func (r *RedisQueue) process(raw string) {
	defer r.ack(raw)

	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		r.log.Error("unmarshal message", logger.Error(err))
		r.pushDead(raw)
		return
	}
	if msg.DedupKey != "" {
		// later triggers must queue a new run once this one has started
		_ = r.client.Del(context.Background(), r.dedupKey(msg.DedupKey)).Err()
	}

	r.mu.RLock()
	job, exists := r.jobs[msg.Type]
	r.mu.RUnlock()
	if !exists {
		r.log.Error("no job found", logger.String("type", msg.Type), logger.String("id", msg.ID))
		msg.LastError = "no job registered"
		r.moveToDeadLetterQueue(msg)
		return
	}

	ctx := r.ctx
	if r.config.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.JobTimeout)
		defer cancel()
	}

	start := time.Now()
	err := runJob(ctx, job, r.convertPayload(msg.Payload))
	elapsed := time.Since(start)

	switch {
	case err == nil:
		r.log.Info("message processed",
			logger.String("id", msg.ID),
			logger.String("job", job.Name()),
			logger.Duration("elapsed", elapsed))
	case r.ctx.Err() != nil:
		r.log.Warn("message interrupted by shutdown, requeued",
			logger.String("id", msg.ID),
			logger.String("job", job.Name()))
		r.requeue(msg)
	default:
		r.handleProcessingError(msg, job, err)
	}
}

// runJob calls Handle, turning a panic into an error.
func runJob(ctx context.Context, job Job, payload interface{}) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name(), p)
		}
	}()
	return job.Handle(ctx, payload)
}

func (r *RedisQueue) convertPayload(payload interface{}) interface{} {
	payloadMap, ok := payload.(map[string]interface{})
	if !ok {
		return payload
	}
	jsonBytes, err := json.Marshal(payloadMap)
	if err != nil {
		return payload
	}
	return json.RawMessage(jsonBytes)
}

func (r *RedisQueue) handleProcessingError(msg Message, job Job, err error) {
	msg.Attempts++
	msg.LastError = err.Error()

	if msg.Attempts > r.config.RetryLimit {
		r.log.Error("max retries reached",
			logger.String("id", msg.ID),
			logger.String("job", job.Name()),
			logger.Int("attempts", msg.Attempts),
			logger.Error(err))
		r.moveToDeadLetterQueue(msg)
		return
	}

	delay := retryDelay(r.config.RetryDelay, msg.Attempts)
	r.scheduleRetry(msg, time.Now().Add(delay))
	r.log.Warn("message failed, retry scheduled",
		logger.String("id", msg.ID),
		logger.String("job", job.Name()),
		logger.Int("attempt", msg.Attempts),
		logger.Duration("retry_in", delay),
		logger.Error(err))
}

// retryDelay doubles base per attempt up to base*maxRetryScale, with jitter.
func retryDelay(base time.Duration, attempt int) time.Duration {
	return util.BackoffWithJitter(base, base*maxRetryScale, attempt)
}

func (r *RedisQueue) scheduleRetry(msg Message, at time.Time) {
	data, err := json.Marshal(msg)
	if err != nil {
		r.log.Error("marshal retry", logger.Error(err))
		return
	}
	err = r.client.ZAdd(context.Background(), r.retryKey(), redis.Z{
		Score:  float64(at.UnixMilli()),
		Member: data,
	}).Err()
	if err != nil {
		r.log.Error("zadd retry", logger.Error(err))
	}
}

func (r *RedisQueue) requeue(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	// RPUSH puts it next in line for BLMove RIGHT.
	if err := r.client.RPush(context.Background(), r.queueKey(), data).Err(); err != nil {
		r.log.Error("requeue", logger.Error(err))
	}
}

func (r *RedisQueue) moveToDeadLetterQueue(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		r.log.Error("marshal dlq", logger.Error(err))
		return
	}
	r.pushDead(string(data))
}

func (r *RedisQueue) pushDead(raw string) {
	if err := r.client.LPush(context.Background(), r.deadLetterKey(), raw).Err(); err != nil {
		r.log.Error("lpush dlq", logger.Error(err))
	}
}

func (r *RedisQueue) ack(raw string) {
	if err := r.client.LRem(context.Background(), r.processingKey(), 1, raw).Err(); err != nil {
		r.log.Error("ack", logger.Error(err))
	}
}

func (r *RedisQueue) retryMover() {
	defer r.wg.Done()
	ticker := time.NewTicker(retryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.moveDueRetries()
		}
	}
}

// moveDueRetries moves due messages back to the queue. Only the instance
// whose ZREM succeeds pushes a message, so concurrent movers never duplicate.
func (r *RedisQueue) moveDueRetries() {
	due, err := r.client.ZRangeByScore(r.ctx, r.retryKey(), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(time.Now().UnixMilli(), 10),
		Count: retryBatch,
	}).Result()
	if err != nil {
		if r.ctx.Err() == nil {
			r.log.Error("fetch retry messages", logger.Error(err))
		}
		return
	}

	for _, member := range due {
		removed, err := r.client.ZRem(r.ctx, r.retryKey(), member).Result()
		if err != nil || removed == 0 {
			continue
		}
		if err := r.client.LPush(r.ctx, r.queueKey(), member).Err(); err != nil {
			r.log.Error("move retry to queue", logger.Error(err))
			r.client.ZAdd(context.Background(), r.retryKey(), redis.Z{Score: float64(time.Now().UnixMilli()), Member: member})
		}
	}
}

func (r *RedisQueue) sleep(d time.Duration) {
	select {
	case <-r.ctx.Done():
	case <-time.After(d):
	}
}

func (r *RedisQueue) queueKey() string { return r.keyPrefix + ":messages" }

func (r *RedisQueue) retryKey() string { return r.keyPrefix + ":retry" }

func (r *RedisQueue) deadLetterKey() string { return r.keyPrefix + ":dlq" }

func (r *RedisQueue) dedupKey(k string) string { return r.keyPrefix + ":dedup:" + k }

func (r *RedisQueue) processingKey() string {
	return r.keyPrefix + ":processing:" + r.consumerID
}
