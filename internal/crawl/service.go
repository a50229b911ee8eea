// Package crawl drives the per-source fetchers: list-page discovery, detail
// fetches with fingerprint change detection, and scheduling of the
// downstream detail and sync jobs.
package crawl

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/JustinTDCT/CineSync/internal/metrics"
	"github.com/JustinTDCT/CineSync/internal/models"
	"github.com/JustinTDCT/CineSync/internal/repository"
	"github.com/JustinTDCT/CineSync/internal/sources"
)

// ErrSourceDisabled is returned for sources that are not configured or
// failed validation at startup.
var ErrSourceDisabled = errors.New("source disabled or misconfigured")

const sourceCacheTTL = 5 * time.Minute

// Enqueuer schedules pipeline jobs. The jobs package provides the queue
// backed implementation.
type Enqueuer interface {
	EnqueueDiscover(ctx context.Context, source string, page int) error
	EnqueueDetail(ctx context.Context, source, externalID string) error
	EnqueueSync(ctx context.Context, sourceItemID uuid.UUID) error
}

// SourceStatus is the startup verdict for one configured source.
type SourceStatus struct {
	Code    string `json:"code"`
	BaseURL string `json:"base_url"`
	Enabled bool   `json:"enabled"`
	Reason  string `json:"reason,omitempty"`
}

// Options tune a Service. Zero values are valid.
type Options struct {
	HTTPClient *http.Client
	// People enables the credits endpoint for CreditsFetcher callers.
	People  bool
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

type Service struct {
	db       *sql.DB
	enqueuer Enqueuer
	crawlers map[string]*sources.Crawler
	statuses []SourceStatus
	people   bool
	sources  *cache.Cache
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// New validates every configured source against its persisted row and
// builds a crawler for each one that passes. A source whose stored base URL
// differs from the configured one is disabled; an empty stored base URL is
// filled in. The enabled set is fixed for the life of the Service.
func New(ctx context.Context, database *sql.DB, configs []sources.Config, enqueuer Enqueuer, opts Options) (*Service, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		db:       database,
		enqueuer: enqueuer,
		crawlers: map[string]*sources.Crawler{},
		people:   opts.People,
		sources:  cache.New(sourceCacheTTL, 2*sourceCacheTTL),
		metrics:  opts.Metrics,
		logger:   logger.With(zap.String("component", "crawl")),
	}

	repo := repository.NewSourceRepository(database)
	for _, cfg := range configs {
		status := SourceStatus{Code: cfg.Code, BaseURL: cfg.BaseURL}
		row, err := repo.GetByCode(ctx, cfg.Code)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			status.Reason = "source not seeded"
		case err != nil:
			return nil, fmt.Errorf("load source %q: %w", cfg.Code, err)
		case !row.IsActive:
			status.Reason = "source inactive"
		case row.BaseURL != nil && *row.BaseURL != "" && !sameBaseURL(*row.BaseURL, cfg.BaseURL):
			status.Reason = fmt.Sprintf("base_url mismatch: stored %s", *row.BaseURL)
		default:
			if row.BaseURL == nil || *row.BaseURL == "" {
				if err := repo.FillBaseURL(ctx, row.ID, cfg.BaseURL); err != nil {
					return nil, fmt.Errorf("fill base_url of %q: %w", cfg.Code, err)
				}
				base := cfg.BaseURL
				row.BaseURL = &base
			}
			status.Enabled = true
			s.crawlers[cfg.Code] = sources.NewCrawler(cfg, opts.HTTPClient)
			s.sources.SetDefault(cfg.Code, row)
		}

		if status.Enabled {
			s.logger.Info("source enabled", zap.String("source", cfg.Code), zap.String("base_url", cfg.BaseURL))
		} else {
			s.logger.Error("source disabled", zap.String("source", cfg.Code), zap.String("reason", status.Reason))
		}
		s.statuses = append(s.statuses, status)
	}
	sort.Slice(s.statuses, func(i, j int) bool { return s.statuses[i].Code < s.statuses[j].Code })
	return s, nil
}

func sameBaseURL(a, b string) bool {
	return strings.TrimRight(strings.TrimSpace(a), "/") == strings.TrimRight(strings.TrimSpace(b), "/")
}

// Sources reports every configured source and whether it is enabled.
func (s *Service) Sources() []SourceStatus {
	return append([]SourceStatus(nil), s.statuses...)
}

// EnabledCodes lists the enabled source codes in order.
func (s *Service) EnabledCodes() []string {
	var codes []string
	for _, st := range s.statuses {
		if st.Enabled {
			codes = append(codes, st.Code)
		}
	}
	return codes
}

func (s *Service) crawler(code string) (*sources.Crawler, error) {
	c, ok := s.crawlers[code]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSourceDisabled, code)
	}
	return c, nil
}

// source returns the persisted row of an enabled source, cached.
func (s *Service) source(ctx context.Context, code string) (*models.Source, error) {
	if v, ok := s.sources.Get(code); ok {
		return v.(*models.Source), nil
	}
	row, err := repository.NewSourceRepository(s.db).GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	s.sources.SetDefault(code, row)
	return row, nil
}

func (s *Service) EnqueueDiscover(ctx context.Context, code string, page int) error {
	if _, err := s.crawler(code); err != nil {
		return err
	}
	return s.enqueuer.EnqueueDiscover(ctx, code, max(page, 1))
}

func (s *Service) EnqueueDetail(ctx context.Context, code, externalID string) error {
	if _, err := s.crawler(code); err != nil {
		return err
	}
	return s.enqueuer.EnqueueDetail(ctx, code, externalID)
}

// Credits fetches a title's credits list from its source. It returns nil
// when people enrichment is off or the source is not enabled.
func (s *Service) Credits(ctx context.Context, code, slug string) ([]sources.Credit, error) {
	if !s.people {
		return nil, nil
	}
	c, ok := s.crawlers[code]
	if !ok {
		return nil, nil
	}
	return c.People(ctx, slug)
}

func (s *Service) auditLog(ctx context.Context, level models.LogLevel, sourceItemID *uuid.UUID, message string, meta map[string]any) {
	err := repository.NewCrawlLogRepository(s.db).Log(ctx, level, nil, sourceItemID, message, meta)
	if err != nil {
		s.logger.Warn("write crawl log failed", zap.String("message", message), zap.Error(err))
	}
}
