package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/JustinTDCT/CineSync/internal/models"
	"github.com/JustinTDCT/CineSync/internal/repository"
)

const (
	QueueDiscover = "crawl-discover"
	QueueDetail   = "crawl-detail"
	QueueSync     = "sync-source-item"
)

const (
	TaskDiscover = "crawl:discover"
	TaskDetail   = "crawl:detail"
	TaskSync     = "sync:source-item"
)

var queueOf = map[string]string{
	TaskDiscover: QueueDiscover,
	TaskDetail:   QueueDetail,
	TaskSync:     QueueSync,
}

const (
	DefaultMaxAttempts = 3
	DefaultBackoffBase = 5 * time.Second
)

// Config sizes the worker pools and the retry policy.
type Config struct {
	Redis               asynq.RedisClientOpt
	DiscoverConcurrency int
	DetailConcurrency   int
	SyncConcurrency     int
	MaxAttempts         int
	BackoffBase         time.Duration
	// Audit receives a row for every job that exhausted its attempts.
	Audit  *repository.CrawlLogRepository
	Logger *zap.Logger
}

// Queue owns the asynq client and one server per queue, so each queue has
// its own worker pool.
type Queue struct {
	client      *asynq.Client
	inspector   *asynq.Inspector
	servers     map[string]*asynq.Server
	muxes       map[string]*asynq.ServeMux
	maxAttempts int
	audit       *repository.CrawlLogRepository
	logger      *zap.Logger
}

func NewQueue(cfg Config) *Queue {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "jobs"))
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	base := cfg.BackoffBase
	if base <= 0 {
		base = DefaultBackoffBase
	}

	q := &Queue{
		client:      asynq.NewClient(cfg.Redis),
		inspector:   asynq.NewInspector(cfg.Redis),
		servers:     map[string]*asynq.Server{},
		muxes:       map[string]*asynq.ServeMux{},
		maxAttempts: attempts,
		audit:       cfg.Audit,
		logger:      logger,
	}
	for name, concurrency := range map[string]int{
		QueueDiscover: cfg.DiscoverConcurrency,
		QueueDetail:   cfg.DetailConcurrency,
		QueueSync:     cfg.SyncConcurrency,
	} {
		q.servers[name] = asynq.NewServer(cfg.Redis, asynq.Config{
			Concurrency:    max(concurrency, 1),
			Queues:         map[string]int{name: 1},
			RetryDelayFunc: Backoff(base),
			ErrorHandler:   asynq.ErrorHandlerFunc(q.handleError),
			Logger:         logger.Sugar(),
		})
		q.muxes[name] = asynq.NewServeMux()
	}
	return q
}

// Backoff returns an exponential retry delay: base, 2*base, 4*base...
// n is the number of retries so far.
func Backoff(base time.Duration) asynq.RetryDelayFunc {
	return func(n int, _ error, _ *asynq.Task) time.Duration {
		if n < 0 {
			n = 0
		}
		return base << n
	}
}

// handleError logs every failed attempt and audits the last one.
func (q *Queue) handleError(ctx context.Context, task *asynq.Task, err error) {
	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	taskID, _ := asynq.GetTaskID(ctx)
	fields := []zap.Field{
		zap.String("task", task.Type()),
		zap.String("task_id", taskID),
		zap.Int("retried", retried),
		zap.Error(err),
	}
	exhausted := retried >= maxRetry || errors.Is(err, asynq.SkipRetry)
	if !exhausted {
		q.logger.Warn("job attempt failed", fields...)
		return
	}
	q.logger.Error("job failed", fields...)
	if q.audit == nil {
		return
	}
	var meta map[string]any
	_ = json.Unmarshal(task.Payload(), &meta)
	if meta == nil {
		meta = map[string]any{}
	}
	meta["task"] = task.Type()
	meta["attempts"] = retried + 1
	if err := q.audit.Log(ctx, models.LogError, &taskID, nil, "job failed: "+err.Error(), meta); err != nil {
		q.logger.Warn("write crawl log failed", zap.Error(err))
	}
}

// isTaskConflict checks whether the error indicates a task ID conflict,
// using errors.Is for unwrapped sentinel values and a string fallback.
func isTaskConflict(err error) bool {
	if errors.Is(err, asynq.ErrDuplicateTask) || errors.Is(err, asynq.ErrTaskIDConflict) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "task ID conflicts") || strings.Contains(msg, "duplicate task")
}

func (q *Queue) options(taskType string, opts []asynq.Option) []asynq.Option {
	return append([]asynq.Option{asynq.Queue(queueOf[taskType]), asynq.MaxRetry(q.maxAttempts - 1)}, opts...)
}

// Enqueue adds a task to the queue for its type.
func (q *Queue) Enqueue(ctx context.Context, taskType string, payload any, opts ...asynq.Option) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	info, err := q.client.EnqueueContext(ctx, asynq.NewTask(taskType, data), q.options(taskType, opts)...)
	if err != nil {
		return "", fmt.Errorf("enqueue %s: %w", taskType, err)
	}
	return info.ID, nil
}

// EnqueueUnique enqueues a task with a deterministic TaskID. If a task with
// the same ID is pending or active the enqueue is skipped. A completed or
// archived task with the same ID is deleted first so the new one can run.
func (q *Queue) EnqueueUnique(ctx context.Context, taskType string, payload any, uniqueID string, opts ...asynq.Option) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(taskType, data)
	opts = append(q.options(taskType, opts), asynq.TaskID(uniqueID))

	info, err := q.client.EnqueueContext(ctx, task, opts...)
	if err == nil {
		return info.ID, nil
	}
	if !isTaskConflict(err) {
		return "", fmt.Errorf("enqueue %s: %w", taskType, err)
	}

	if delErr := q.inspector.DeleteTask(queueOf[taskType], uniqueID); delErr == nil {
		q.logger.Debug("cleared finished task", zap.String("task_id", uniqueID))
		info, err = q.client.EnqueueContext(ctx, task, opts...)
		if err == nil {
			return info.ID, nil
		}
	}
	if isTaskConflict(err) {
		q.logger.Info("task already queued, skipping", zap.String("task", taskType), zap.String("task_id", uniqueID))
		return uniqueID, nil
	}
	return "", fmt.Errorf("enqueue %s: %w", taskType, err)
}

func (q *Queue) EnqueueDiscover(ctx context.Context, source string, page int) error {
	_, err := q.Enqueue(ctx, TaskDiscover, DiscoverPayload{Source: source, Page: page})
	return err
}

// EnqueueScheduledDiscover enqueues page 1 of a source under a stable
// per-source task id, so overlapping schedules collapse into one job.
func (q *Queue) EnqueueScheduledDiscover(ctx context.Context, source string) error {
	_, err := q.EnqueueUnique(ctx, TaskDiscover, DiscoverPayload{Source: source, Page: 1}, "discover:"+source)
	return err
}

func (q *Queue) EnqueueDetail(ctx context.Context, source, externalID string) error {
	_, err := q.Enqueue(ctx, TaskDetail, DetailPayload{Source: source, ExternalID: externalID})
	return err
}

func (q *Queue) EnqueueSync(ctx context.Context, sourceItemID uuid.UUID) error {
	_, err := q.Enqueue(ctx, TaskSync, SyncPayload{SourceItemID: sourceItemID.String()})
	return err
}

// RegisterHandler routes a task type to the worker pool of its queue.
func (q *Queue) RegisterHandler(taskType string, handler asynq.Handler) {
	q.muxes[queueOf[taskType]].Handle(taskType, handler)
}

// Start starts every worker pool.
func (q *Queue) Start() error {
	for name, srv := range q.servers {
		if err := srv.Start(q.muxes[name]); err != nil {
			return fmt.Errorf("start %s workers: %w", name, err)
		}
		q.logger.Info("workers started", zap.String("queue", name))
	}
	return nil
}

func (q *Queue) Stop() {
	for _, srv := range q.servers {
		srv.Shutdown()
	}
	q.client.Close()
	q.inspector.Close()
}
