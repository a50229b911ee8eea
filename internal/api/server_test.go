package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JustinTDCT/CineSync/internal/crawl"
	"github.com/JustinTDCT/CineSync/internal/httputil"
	"github.com/JustinTDCT/CineSync/internal/metrics"
	"github.com/JustinTDCT/CineSync/internal/models"
	"github.com/JustinTDCT/CineSync/internal/sources"
	"github.com/JustinTDCT/CineSync/internal/syncer"
)

type fakeCrawl struct {
	calls []string
	err   error
}

func (f *fakeCrawl) record(call string) error {
	f.calls = append(f.calls, call)
	return f.err
}

func (f *fakeCrawl) Discover(_ context.Context, code string, page int) (*crawl.DiscoverResult, error) {
	if err := f.record(fmt.Sprintf("discover %s %d", code, page)); err != nil {
		return nil, err
	}
	return &crawl.DiscoverResult{Source: code, Page: page, Total: 2, Upserted: 2}, nil
}

func (f *fakeCrawl) FetchDetail(_ context.Context, code, externalID string) (*crawl.DetailResult, error) {
	if err := f.record("detail " + code + " " + externalID); err != nil {
		return nil, err
	}
	return &crawl.DetailResult{OK: false, Error: "GET x: status 502"}, nil
}

func (f *fakeCrawl) EnqueueDiscover(_ context.Context, code string, page int) error {
	return f.record(fmt.Sprintf("enqueue discover %s %d", code, page))
}

func (f *fakeCrawl) EnqueueDetail(_ context.Context, code, externalID string) error {
	return f.record("enqueue detail " + code + " " + externalID)
}

func (f *fakeCrawl) Sources() []crawl.SourceStatus {
	return []crawl.SourceStatus{
		{Code: "kkphim", BaseURL: "https://phimapi.com", Reason: "source not seeded"},
		{Code: "ophim", BaseURL: "https://ophim1.com", Enabled: true},
	}
}

type fakeSync struct {
	res *syncer.Result
	err error
}

func (f *fakeSync) SyncSourceItem(_ context.Context, id uuid.UUID) (*syncer.Result, error) {
	if f.res != nil {
		f.res.SourceItemID = id
	}
	return f.res, f.err
}

type fakeLogs struct {
	limit int
}

func (f *fakeLogs) ListRecent(_ context.Context, limit int) ([]*models.CrawlLog, error) {
	f.limit = limit
	return []*models.CrawlLog{{Level: models.LogError, Message: "boom"}}, nil
}

func do(t *testing.T, h http.Handler, method, target string) (*httptest.ResponseRecorder, httputil.Response) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	var resp httputil.Response
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func TestDiscoverEndpoint(t *testing.T) {
	c := &fakeCrawl{}
	srv := NewServer(c, &fakeSync{}, &fakeLogs{}, nil, nil)

	rec, resp := do(t, srv, http.MethodPost, "/crawl/ophim/discover")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, map[string]any{"queued": true}, resp.Data)

	rec, resp = do(t, srv, http.MethodPost, "/crawl/ophim/discover?page=3&inline=1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), resp.Data.(map[string]any)["upserted"])

	rec, resp = do(t, srv, http.MethodPost, "/crawl/ophim/discover?page=zero")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, httputil.CodeInvalidParams, resp.Error.Code)

	assert.Equal(t, []string{"enqueue discover ophim 1", "discover ophim 3"}, c.calls)
}

func TestDetailEndpoint(t *testing.T) {
	c := &fakeCrawl{}
	srv := NewServer(c, &fakeSync{}, &fakeLogs{}, nil, nil)

	rec, _ := do(t, srv, http.MethodPost, "/crawl/kkphim/detail/dune-2021")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	// A failed fetch is still a result, not an HTTP error.
	rec, resp := do(t, srv, http.MethodPost, "/crawl/kkphim/detail/dune-2021?inline=true")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, resp.Data.(map[string]any)["ok"])

	assert.Equal(t, []string{"enqueue detail kkphim dune-2021", "detail kkphim dune-2021"}, c.calls)
}

func TestErrorMapping(t *testing.T) {
	for name, tc := range map[string]struct {
		err    error
		status int
		code   string
	}{
		"disabled": {fmt.Errorf("%w: nope", crawl.ErrSourceDisabled), http.StatusBadRequest, httputil.CodeUnavailable},
		"upstream": {&sources.StatusError{URL: "http://x", StatusCode: 503}, http.StatusBadGateway, httputil.CodeUpstream},
		"internal": {errors.New("database is locked"), http.StatusInternalServerError, httputil.CodeInternal},
	} {
		t.Run(name, func(t *testing.T) {
			srv := NewServer(&fakeCrawl{err: tc.err}, &fakeSync{}, &fakeLogs{}, nil, nil)
			rec, resp := do(t, srv, http.MethodPost, "/crawl/nope/discover?inline=1")
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.code, resp.Error.Code)
		})
	}
}

func TestSyncEndpoint(t *testing.T) {
	s := &fakeSync{}
	srv := NewServer(&fakeCrawl{}, s, &fakeLogs{}, nil, nil)
	id := uuid.New()

	rec, resp := do(t, srv, http.MethodPost, "/sync/source-items/"+id.String())
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, httputil.CodeNotFound, resp.Error.Code)

	rec, _ = do(t, srv, http.MethodPost, "/sync/source-items/42")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	s.res = &syncer.Result{MovieID: uuid.New(), MatchedBy: models.MatchedByIMDB}
	rec, resp = do(t, srv, http.MethodPost, "/sync/source-items/"+id.String())
	assert.Equal(t, http.StatusOK, rec.Code)
	data := resp.Data.(map[string]any)
	assert.Equal(t, id.String(), data["source_item_id"])
	assert.Equal(t, "imdb", data["matched_by"])
}

func TestSourcesAndLogs(t *testing.T) {
	logs := &fakeLogs{}
	srv := NewServer(&fakeCrawl{}, &fakeSync{}, logs, nil, nil)

	rec, resp := do(t, srv, http.MethodGet, "/sources")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, resp.Data, 2)

	rec, _ = do(t, srv, http.MethodGet, "/crawl/logs")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultLogLimit, logs.limit)

	do(t, srv, http.MethodGet, "/crawl/logs?limit=10000")
	assert.Equal(t, maxLogLimit, logs.limit)

	rec, _ = do(t, srv, http.MethodGet, "/crawl/logs?limit=-1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics.New(reg).Discovered("ophim", 3)
	srv := NewServer(&fakeCrawl{}, &fakeSync{}, &fakeLogs{}, reg, nil)

	rec, _ := do(t, srv, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `cinesync_discovered_items_total{source="ophim"} 3`)

	srv = NewServer(&fakeCrawl{}, &fakeSync{}, &fakeLogs{}, nil, nil)
	rec, _ = do(t, srv, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
