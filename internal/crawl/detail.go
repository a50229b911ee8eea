package crawl

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JustinTDCT/CineSync/internal/catalog"
	"github.com/JustinTDCT/CineSync/internal/db"
	"github.com/JustinTDCT/CineSync/internal/fingerprint"
	"github.com/JustinTDCT/CineSync/internal/metrics"
	"github.com/JustinTDCT/CineSync/internal/models"
	"github.com/JustinTDCT/CineSync/internal/repository"
	"github.com/JustinTDCT/CineSync/internal/sources"
)

// DetailResult is the outcome of one detail fetch. A fetch failure is a
// result with OK false rather than an error; Err keeps the cause for the
// job layer.
type DetailResult struct {
	OK           bool      `json:"ok"`
	SourceItemID uuid.UUID `json:"source_item_id"`
	Created      bool      `json:"created,omitempty"`
	Changed      bool      `json:"changed"`
	Error        string    `json:"error,omitempty"`
	Err          error     `json:"-"`
}

// FetchDetail fetches one item's detail payload and stores it when its
// fingerprint changed. New and changed items get a sync job; an unchanged
// item only has last_crawled_at touched.
func (s *Service) FetchDetail(ctx context.Context, code, externalID string) (*DetailResult, error) {
	c, err := s.crawler(code)
	if err != nil {
		return nil, err
	}
	src, err := s.source(ctx, code)
	if err != nil {
		return nil, err
	}

	payload, err := c.Detail(ctx, externalID)
	if err != nil {
		return s.fetchFailed(ctx, src, externalID, err), nil
	}
	hash, err := fingerprint.Of(payload)
	if err != nil {
		return s.fetchFailed(ctx, src, externalID, err), nil
	}

	res := &DetailResult{OK: true}
	err = db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		return storeDetail(ctx, repository.NewSourceItemRepository(tx), src.ID, externalID, payload, hash, res)
	})
	if err != nil {
		return nil, fmt.Errorf("store detail %s/%s: %w", code, externalID, err)
	}

	outcome := metrics.DetailUnchanged
	switch {
	case res.Created:
		outcome = metrics.DetailCreated
	case res.Changed:
		outcome = metrics.DetailChanged
	}
	s.metrics.Detail(code, outcome)
	s.logger.Info("detail fetched",
		zap.String("source", code),
		zap.String("external_id", externalID),
		zap.Stringer("source_item_id", res.SourceItemID),
		zap.String("outcome", outcome))

	if res.Changed {
		if err := s.enqueuer.EnqueueSync(ctx, res.SourceItemID); err != nil {
			return nil, fmt.Errorf("enqueue sync: %w", err)
		}
	}
	return res, nil
}

func storeDetail(ctx context.Context, repo *repository.SourceItemRepository, sourceID uuid.UUID, externalID string, payload json.RawMessage, hash string, res *DetailResult) error {
	item, err := repo.GetByExternalID(ctx, sourceID, externalID)
	if errors.Is(err, repository.ErrNotFound) {
		id, err := repo.CreateDetail(ctx, sourceID, externalID, payload, hash)
		if err != nil {
			return err
		}
		res.SourceItemID, res.Created, res.Changed = id, true, true
		return nil
	}
	if err != nil {
		return err
	}

	res.SourceItemID = item.ID
	if catalog.Deref(item.ContentHash) == hash {
		return repo.TouchCrawled(ctx, item.ID)
	}
	res.Changed = true
	return repo.UpdateDetail(ctx, item.ID, payload, hash)
}

// fetchFailed marks an existing item as errored and writes an audit row.
func (s *Service) fetchFailed(ctx context.Context, src *models.Source, externalID string, cause error) *DetailResult {
	res := &DetailResult{Error: cause.Error(), Err: cause}
	meta := map[string]any{"source": src.Code, "external_id": externalID}
	var statusErr *sources.StatusError
	if errors.As(cause, &statusErr) {
		meta["status"] = statusErr.StatusCode
		meta["url"] = statusErr.URL
	}

	var itemID *uuid.UUID
	repo := repository.NewSourceItemRepository(s.db)
	item, err := repo.GetByExternalID(ctx, src.ID, externalID)
	switch {
	case err == nil:
		itemID = &item.ID
		res.SourceItemID = item.ID
		if err := repo.MarkError(ctx, item.ID); err != nil {
			s.logger.Warn("mark source item error failed", zap.Stringer("source_item_id", item.ID), zap.Error(err))
		}
	case !errors.Is(err, repository.ErrNotFound):
		s.logger.Warn("load source item failed", zap.String("external_id", externalID), zap.Error(err))
	}

	s.metrics.Detail(src.Code, metrics.DetailError)
	s.logger.Warn("detail fetch failed",
		zap.String("source", src.Code),
		zap.String("external_id", externalID),
		zap.Error(cause))
	s.auditLog(ctx, models.LogError, itemID, cause.Error(), meta)
	return res
}
