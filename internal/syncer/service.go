// Package syncer turns a fetched source item into movie graph rows: it
// matches or creates the movie, merges every source mapped to it and writes
// the result in one transaction.
package syncer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JustinTDCT/CineSync/internal/catalog"
	"github.com/JustinTDCT/CineSync/internal/db"
	"github.com/JustinTDCT/CineSync/internal/merge"
	"github.com/JustinTDCT/CineSync/internal/metrics"
	"github.com/JustinTDCT/CineSync/internal/models"
	"github.com/JustinTDCT/CineSync/internal/repository"
	"github.com/JustinTDCT/CineSync/internal/search"
	"github.com/JustinTDCT/CineSync/internal/sources"
)

// CreditsFetcher loads a catalog's credits list for a title slug.
type CreditsFetcher interface {
	Credits(ctx context.Context, sourceCode, slug string) ([]sources.Credit, error)
}

// Result describes one completed sync.
type Result struct {
	MovieID      uuid.UUID        `json:"movie_id"`
	SourceItemID uuid.UUID        `json:"source_item_id"`
	MatchedBy    models.MatchedBy `json:"matched_by"`
	Created      bool             `json:"created"`
	Slug         string           `json:"slug,omitempty"`
	Candidates   int              `json:"candidates"`
	Merged       bool             `json:"merged"`
	Credits      int              `json:"credits"`
}

type Service struct {
	db       *sql.DB
	registry *sources.Registry
	notifier search.Notifier
	credits  CreditsFetcher
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

func NewService(database *sql.DB, registry *sources.Registry, notifier search.Notifier, logger *zap.Logger) *Service {
	if notifier == nil {
		notifier = search.Noop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:       database,
		registry: registry,
		notifier: notifier,
		logger:   logger.With(zap.String("component", "sync")),
	}
}

// WithCredits enables external credits enrichment.
func (s *Service) WithCredits(c CreditsFetcher) *Service {
	s.credits = c
	return s
}

func (s *Service) WithMetrics(m *metrics.Metrics) *Service {
	s.metrics = m
	return s
}

// SyncSourceItem syncs one source item into the movie graph. A missing item
// returns a nil result and no error.
func (s *Service) SyncSourceItem(ctx context.Context, sourceItemID uuid.UUID) (res *Result, err error) {
	start := time.Now()
	defer func() {
		if res != nil || err != nil {
			s.metrics.Sync(err, time.Since(start))
		}
	}()

	item, err := repository.NewSourceItemRepository(s.db).Get(ctx, sourceItemID)
	if errors.Is(err, repository.ErrNotFound) {
		s.logger.Info("source item not found", zap.Stringer("source_item_id", sourceItemID))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load source item: %w", err)
	}

	normalized, err := s.registry.Normalize(item)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("normalized",
		zap.Stringer("source_item_id", sourceItemID),
		zap.Int("seasons", len(normalized.Seasons)),
		zap.Int("episodes", normalized.EpisodeCount()))

	credits := s.fetchCredits(ctx, item)

	res = &Result{SourceItemID: sourceItemID, Credits: len(credits)}
	err = db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		return s.apply(ctx, tx, item, normalized, credits, res)
	})
	if err != nil {
		s.logger.Error("sync failed", zap.Stringer("source_item_id", sourceItemID), zap.Error(err))
		return nil, err
	}

	if err := s.notifier.Notify(ctx, res.MovieID, "sync"); err != nil {
		s.logger.Warn("search notify failed", zap.Stringer("movie_id", res.MovieID), zap.Error(err))
	}
	s.logger.Info("synced",
		zap.Stringer("source_item_id", sourceItemID),
		zap.Stringer("movie_id", res.MovieID),
		zap.String("matched_by", string(res.MatchedBy)),
		zap.Bool("created", res.Created),
		zap.Int("candidates", res.Candidates))
	return res, nil
}

func (s *Service) apply(ctx context.Context, tx *sql.Tx, item *models.SourceItem, normalized *catalog.Movie, credits []sources.Credit, res *Result) error {
	movies := repository.NewMovieRepository(tx)

	movieID, matchedBy, err := movies.FindMatch(ctx, normalized)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrNotFound):
		movieID, res.Slug, err = movies.Create(ctx, normalized)
		if err != nil {
			return err
		}
		matchedBy = models.MatchedByOther
		res.Created = true
	default:
		return fmt.Errorf("match movie: %w", err)
	}
	res.MovieID = movieID
	res.MatchedBy = matchedBy

	if err := movies.MapSource(ctx, movieID, item.ID, matchedBy); err != nil {
		return fmt.Errorf("map source item: %w", err)
	}

	merged, n, err := s.merged(ctx, tx, movieID)
	res.Candidates = n
	if err != nil {
		if !errors.Is(err, merge.ErrNoCandidates) {
			return err
		}
		s.logger.Warn("merge skipped", zap.Stringer("movie_id", movieID), zap.Error(err))
		s.metrics.MergeFallback()
		merged = normalized
	} else {
		res.Merged = true
	}

	return NewWriter(tx).Apply(ctx, movieID, merged, credits)
}

// merged normalizes every mergeable source item of the movie and merges
// them. It returns the number of candidates used.
func (s *Service) merged(ctx context.Context, tx *sql.Tx, movieID uuid.UUID) (*catalog.Movie, int, error) {
	items, err := repository.NewSourceItemRepository(tx).ListMergeable(ctx, movieID)
	if err != nil {
		return nil, 0, fmt.Errorf("list mergeable items: %w", err)
	}
	candidates := make([]*catalog.Movie, 0, len(items))
	for _, it := range items {
		m, err := s.registry.Normalize(it)
		if errors.Is(err, sources.ErrNoAdapter) {
			s.logger.Warn("merge candidate skipped", zap.Stringer("source_item_id", it.ID), zap.Error(err))
			continue
		}
		if err != nil {
			return nil, 0, err
		}
		candidates = append(candidates, m)
	}
	m, err := merge.Merge(candidates)
	return m, len(candidates), err
}

func (s *Service) fetchCredits(ctx context.Context, item *models.SourceItem) []sources.Credit {
	if s.credits == nil || item.ExternalID == "" {
		return nil
	}
	credits, err := s.credits.Credits(ctx, item.SourceCode, item.ExternalID)
	if err != nil {
		s.logger.Warn("credits fetch failed",
			zap.String("source", item.SourceCode),
			zap.String("slug", item.ExternalID),
			zap.Error(err))
		return nil
	}
	s.logger.Debug("credits fetched",
		zap.String("source", item.SourceCode),
		zap.String("slug", item.ExternalID),
		zap.Int("count", len(credits)))
	return credits
}
