package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/JustinTDCT/CineSync/internal/crawl"
	"github.com/JustinTDCT/CineSync/internal/httputil"
	"github.com/JustinTDCT/CineSync/internal/models"
	"github.com/JustinTDCT/CineSync/internal/sources"
	"github.com/JustinTDCT/CineSync/internal/syncer"
)

// Crawler is the crawl service surface the trigger endpoints drive.
type Crawler interface {
	Discover(ctx context.Context, code string, page int) (*crawl.DiscoverResult, error)
	FetchDetail(ctx context.Context, code, externalID string) (*crawl.DetailResult, error)
	EnqueueDiscover(ctx context.Context, code string, page int) error
	EnqueueDetail(ctx context.Context, code, externalID string) error
	Sources() []crawl.SourceStatus
}

type Syncer interface {
	SyncSourceItem(ctx context.Context, sourceItemID uuid.UUID) (*syncer.Result, error)
}

type LogLister interface {
	ListRecent(ctx context.Context, limit int) ([]*models.CrawlLog, error)
}

type Server struct {
	crawl    Crawler
	sync     Syncer
	logs     LogLister
	gatherer prometheus.Gatherer
	logger   *zap.Logger
	router   chi.Router
}

// NewServer builds the router. A nil gatherer leaves /metrics unmounted.
func NewServer(c Crawler, s Syncer, logs LogLister, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	srv := &Server{
		crawl:    c,
		sync:     s,
		logs:     logs,
		gatherer: gatherer,
		logger:   logger.With(zap.String("component", "api")),
	}
	srv.router = srv.routes()
	return srv
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "up"})
	})
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	r.Get("/sources", s.handleSources)
	r.Route("/crawl", func(r chi.Router) {
		r.Get("/logs", s.handleLogs)
		r.Post("/{source}/discover", s.handleDiscover)
		r.Post("/{source}/detail/{externalId}", s.handleDetail)
	})
	r.Post("/sync/source-items/{id}", s.handleSync)
	return r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// respondErr maps service errors onto status codes.
func (s *Server) respondErr(w http.ResponseWriter, err error) {
	var statusErr *sources.StatusError
	switch {
	case errors.Is(err, crawl.ErrSourceDisabled):
		httputil.WriteError(w, http.StatusBadRequest, httputil.CodeUnavailable, err.Error())
	case errors.As(err, &statusErr):
		httputil.WriteError(w, http.StatusBadGateway, httputil.CodeUpstream, err.Error())
	default:
		s.logger.Error("request failed", zap.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, httputil.CodeInternal, "internal error")
	}
}
