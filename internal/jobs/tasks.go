package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/JustinTDCT/CineSync/internal/crawl"
	"github.com/JustinTDCT/CineSync/internal/sources"
	"github.com/JustinTDCT/CineSync/internal/syncer"
)

// ──────── Payloads ────────

type DiscoverPayload struct {
	Source string `json:"source"`
	Page   int    `json:"page"`
}

type DetailPayload struct {
	Source     string `json:"source"`
	ExternalID string `json:"external_id"`
}

type SyncPayload struct {
	SourceItemID string `json:"source_item_id"`
}

// Crawler is the part of the crawl service the workers drive.
type Crawler interface {
	Discover(ctx context.Context, code string, page int) (*crawl.DiscoverResult, error)
	FetchDetail(ctx context.Context, code, externalID string) (*crawl.DetailResult, error)
}

// Syncer merges one source item into the catalog.
type Syncer interface {
	SyncSourceItem(ctx context.Context, sourceItemID uuid.UUID) (*syncer.Result, error)
}

// ──────── Register all handlers ────────

func RegisterHandlers(q *Queue, c Crawler, s Syncer, logger *zap.Logger) {
	q.RegisterHandler(TaskDiscover, NewDiscoverHandler(c, logger))
	q.RegisterHandler(TaskDetail, NewDetailHandler(c, logger))
	q.RegisterHandler(TaskSync, NewSyncHandler(s, logger))
}

// permanent marks errors that no retry can fix so asynq archives the task
// right away.
func permanent(err error) error {
	if err == nil {
		return nil
	}
	var statusErr *sources.StatusError
	if errors.Is(err, crawl.ErrSourceDisabled) || (errors.As(err, &statusErr) && statusErr.Permanent()) {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	return err
}

func decode(t *asynq.Task, v any) error {
	if err := json.Unmarshal(t.Payload(), v); err != nil {
		return fmt.Errorf("unmarshal %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	return nil
}

func nopIfNil(logger *zap.Logger) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

// ──────── Discover Handler ────────

type DiscoverHandler struct {
	crawler Crawler
	logger  *zap.Logger
}

func NewDiscoverHandler(c Crawler, logger *zap.Logger) *DiscoverHandler {
	return &DiscoverHandler{crawler: c, logger: nopIfNil(logger)}
}

func (h *DiscoverHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p DiscoverPayload
	if err := decode(t, &p); err != nil {
		return err
	}
	res, err := h.crawler.Discover(ctx, p.Source, p.Page)
	if err != nil {
		return permanent(err)
	}
	h.logger.Debug("discover job done", zap.String("source", res.Source), zap.Int("page", res.Page),
		zap.Int("upserted", res.Upserted))
	return nil
}

// ──────── Detail Handler ────────

type DetailHandler struct {
	crawler Crawler
	logger  *zap.Logger
}

func NewDetailHandler(c Crawler, logger *zap.Logger) *DetailHandler {
	return &DetailHandler{crawler: c, logger: nopIfNil(logger)}
}

// ProcessTask turns a failed fetch into a task error so it is retried; the
// item is already marked and audited by the crawl service.
func (h *DetailHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p DetailPayload
	if err := decode(t, &p); err != nil {
		return err
	}
	res, err := h.crawler.FetchDetail(ctx, p.Source, p.ExternalID)
	if err != nil {
		return permanent(err)
	}
	if !res.OK {
		cause := res.Err
		if cause == nil {
			cause = errors.New(res.Error)
		}
		return permanent(fmt.Errorf("detail %s/%s: %w", p.Source, p.ExternalID, cause))
	}
	return nil
}

// ──────── Sync Handler ────────

type SyncHandler struct {
	syncer Syncer
	logger *zap.Logger
}

func NewSyncHandler(s Syncer, logger *zap.Logger) *SyncHandler {
	return &SyncHandler{syncer: s, logger: nopIfNil(logger)}
}

func (h *SyncHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p SyncPayload
	if err := decode(t, &p); err != nil {
		return err
	}
	id, err := uuid.Parse(p.SourceItemID)
	if err != nil {
		return fmt.Errorf("source_item_id %q: %v: %w", p.SourceItemID, err, asynq.SkipRetry)
	}
	res, err := h.syncer.SyncSourceItem(ctx, id)
	if err != nil {
		return permanent(err)
	}
	if res == nil {
		h.logger.Warn("source item not found, nothing to sync", zap.Stringer("source_item_id", id))
	}
	return nil
}
