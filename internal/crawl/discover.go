package crawl

import (
	"context"
	"fmt"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/JustinTDCT/CineSync/internal/models"
	"github.com/JustinTDCT/CineSync/internal/repository"
)

// DiscoverResult summarizes one list page.
type DiscoverResult struct {
	Source   string `json:"source"`
	Page     int    `json:"page"`
	Total    int    `json:"total"`
	Upserted int    `json:"upserted"`
	Failed   int    `json:"failed"`
	Error    string `json:"error,omitempty"`
}

// Discover fetches one list page of a source, upserts every item and
// enqueues a detail job per upserted item. A failing item is logged and
// skipped; a failing page fetch is returned as an error.
func (s *Service) Discover(ctx context.Context, code string, page int) (*DiscoverResult, error) {
	c, err := s.crawler(code)
	if err != nil {
		return nil, err
	}
	src, err := s.source(ctx, code)
	if err != nil {
		return nil, err
	}
	page = max(page, 1)

	items, err := c.Discover(ctx, page)
	if err != nil {
		return nil, fmt.Errorf("discover %s page %d: %w", code, page, err)
	}

	res := &DiscoverResult{Source: code, Page: page, Total: len(items)}
	repo := repository.NewSourceItemRepository(s.db)
	for _, item := range items {
		if err := s.discovered(ctx, repo, src, item); err != nil {
			res.Failed++
			s.logger.Warn("discover item failed",
				zap.String("source", code),
				zap.String("external_id", item.ExternalID),
				zap.Error(err))
			s.auditLog(ctx, models.LogError, nil, "discover item failed", map[string]any{
				"source":      code,
				"external_id": item.ExternalID,
				"error":       err.Error(),
			})
			continue
		}
		res.Upserted++
	}

	s.metrics.Discovered(code, res.Upserted)
	s.logger.Info("discovered",
		zap.String("source", code),
		zap.Int("page", page),
		zap.Int("total", res.Total),
		zap.Int("upserted", res.Upserted),
		zap.Int("failed", res.Failed))
	return res, nil
}

func (s *Service) discovered(ctx context.Context, repo *repository.SourceItemRepository, src *models.Source, item models.DiscoveredItem) error {
	if _, err := repo.UpsertDiscovered(ctx, src.ID, item); err != nil {
		return err
	}
	if err := s.enqueuer.EnqueueDetail(ctx, src.Code, item.ExternalID); err != nil {
		return fmt.Errorf("enqueue detail: %w", err)
	}
	return nil
}

// DiscoverAll runs Discover for one page of every enabled source
// concurrently. Per-source failures are reported in the result.
func (s *Service) DiscoverAll(ctx context.Context, page int, concurrency int) []*DiscoverResult {
	codes := s.EnabledCodes()
	p := pool.NewWithResults[*DiscoverResult]().WithMaxGoroutines(max(concurrency, 1))
	for _, code := range codes {
		code := code
		p.Go(func() *DiscoverResult {
			res, err := s.Discover(ctx, code, page)
			if err != nil {
				return &DiscoverResult{Source: code, Page: max(page, 1), Error: err.Error()}
			}
			return res
		})
	}
	return p.Wait()
}
