package crawl

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JustinTDCT/CineSync/internal/repository"
	"github.com/JustinTDCT/CineSync/internal/sources"
	"github.com/JustinTDCT/CineSync/internal/testutil"
)

type fakeEnqueuer struct {
	mu        sync.Mutex
	discovers []string
	details   []string
	syncs     []uuid.UUID
	failFor   string
}

func (f *fakeEnqueuer) EnqueueDiscover(_ context.Context, source string, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.discovers = append(f.discovers, source)
	return nil
}

func (f *fakeEnqueuer) EnqueueDetail(_ context.Context, source, externalID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if externalID == f.failFor {
		return errors.New("redis down")
	}
	f.details = append(f.details, source+"/"+externalID)
	return nil
}

func (f *fakeEnqueuer) EnqueueSync(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncs = append(f.syncs, id)
	return nil
}

// upstream serves a list page and detail payloads for one catalog.
type upstream struct {
	mu      sync.Mutex
	details map[string]string
	status  map[string]int
}

func (u *upstream) set(slug, body string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.details[slug] = body
}

func (u *upstream) fail(slug string, code int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.status[slug] = code
}

func (u *upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	u.mu.Lock()
	defer u.mu.Unlock()
	switch {
	case r.URL.Path == "/list":
		_, _ = w.Write([]byte(`{"items":[{"slug":"a","name":"A","year":2020,"type":"single"},{"slug":"b","name":"B"},{"name":"no id"}]}`))
	case strings.HasPrefix(r.URL.Path, "/phim/"):
		slug := strings.TrimPrefix(r.URL.Path, "/phim/")
		if code, ok := u.status[slug]; ok {
			w.WriteHeader(code)
			return
		}
		body, ok := u.details[slug]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(body))
	case strings.HasSuffix(r.URL.Path, "/peoples"):
		_, _ = w.Write([]byte(`{"data":{"peoples":[{"tmdb_people_id":7,"name":"Actor","known_for_department":"Acting"}]}}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newUpstream(t *testing.T) (*upstream, *httptest.Server) {
	u := &upstream{details: map[string]string{}, status: map[string]int{}}
	srv := httptest.NewServer(u)
	t.Cleanup(srv.Close)
	return u, srv
}

func config(code, base string) sources.Config {
	return sources.Config{
		Code:       code,
		BaseURL:    base,
		ListPath:   "/list?page={page}",
		DetailPath: "/phim/{slug}",
		PeoplePath: sources.DefaultPeoplePath,
	}
}

func seed(t *testing.T, db *sql.DB, code, base string) uuid.UUID {
	t.Helper()
	id, err := repository.NewSourceRepository(db).Upsert(context.Background(), code, base)
	require.NoError(t, err)
	return id
}

func newService(t *testing.T, db *sql.DB, enq Enqueuer, opts Options, configs ...sources.Config) *Service {
	t.Helper()
	s, err := New(context.Background(), db, configs, enq, opts)
	require.NoError(t, err)
	return s
}

func TestNewValidatesSources(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	seed(t, db, "ophim", "https://ophim1.com/")
	seed(t, db, "kkphim", "https://elsewhere.test")
	emptyID := seed(t, db, "fresh", "")

	s := newService(t, db, &fakeEnqueuer{}, Options{},
		config("ophim", "https://ophim1.com"),
		config("kkphim", "https://phimapi.com"),
		config("fresh", "https://fresh.test"),
		config("ghost", "https://ghost.test"),
	)

	assert.Equal(t, []string{"fresh", "ophim"}, s.EnabledCodes())
	byCode := map[string]SourceStatus{}
	for _, st := range s.Sources() {
		byCode[st.Code] = st
	}
	assert.Contains(t, byCode["kkphim"].Reason, "base_url mismatch")
	assert.Equal(t, "source not seeded", byCode["ghost"].Reason)

	var base string
	require.NoError(t, db.QueryRow(`SELECT base_url FROM sources WHERE id = $1`, emptyID).Scan(&base))
	assert.Equal(t, "https://fresh.test", base)

	_, err := s.Discover(ctx, "kkphim", 1)
	assert.ErrorIs(t, err, ErrSourceDisabled)
	_, err = s.FetchDetail(ctx, "ghost", "x")
	assert.ErrorIs(t, err, ErrSourceDisabled)
	assert.ErrorIs(t, s.EnqueueDetail(ctx, "nope", "x"), ErrSourceDisabled)
	assert.ErrorIs(t, s.EnqueueDiscover(ctx, "kkphim", 1), ErrSourceDisabled)
}

func TestDiscoverUpsertsAndEnqueuesDetails(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	_, srv := newUpstream(t)
	seed(t, db, "ophim", srv.URL)
	enq := &fakeEnqueuer{}
	s := newService(t, db, enq, Options{}, config("ophim", srv.URL))

	res, err := s.Discover(ctx, "ophim", 0)
	require.NoError(t, err)
	assert.Equal(t, &DiscoverResult{Source: "ophim", Page: 1, Total: 2, Upserted: 2}, res)
	assert.Equal(t, []string{"ophim/a", "ophim/b"}, enq.details)
	assert.Equal(t, 2, testutil.Count(t, db, "source_items", "crawl_status = 'unknown' AND content_hash IS NULL"))

	_, err = s.Discover(ctx, "ophim", 1)
	require.NoError(t, err)
	assert.Equal(t, 2, testutil.Count(t, db, "source_items", ""))

	require.NoError(t, s.EnqueueDiscover(ctx, "ophim", 3))
	assert.Equal(t, []string{"ophim"}, enq.discovers)
}

func TestDiscoverSkipsFailingItems(t *testing.T) {
	db := testutil.NewDB(t)
	_, srv := newUpstream(t)
	seed(t, db, "ophim", srv.URL)
	s := newService(t, db, &fakeEnqueuer{failFor: "b"}, Options{}, config("ophim", srv.URL))

	res, err := s.Discover(context.Background(), "ophim", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Upserted)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, testutil.Count(t, db, "crawl_logs", "message = 'discover item failed' AND level = 'error'"))
}

func TestDiscoverPageFailure(t *testing.T) {
	db := testutil.NewDB(t)
	seed(t, db, "ophim", "https://ophim.test")
	client := &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("dial tcp: connection refused")
	})}
	s := newService(t, db, &fakeEnqueuer{}, Options{HTTPClient: client}, config("ophim", "https://ophim.test"))

	_, err := s.Discover(context.Background(), "ophim", 1)
	assert.ErrorContains(t, err, "connection refused")
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestFetchDetailBranches(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	up, srv := newUpstream(t)
	sourceID := seed(t, db, "ophim", srv.URL)
	enq := &fakeEnqueuer{}
	s := newService(t, db, enq, Options{}, config("ophim", srv.URL))
	items := repository.NewSourceItemRepository(db)

	up.set("a", `{"movie":{"name":"A","year":2020}}`)
	created, err := s.FetchDetail(ctx, "ophim", "a")
	require.NoError(t, err)
	assert.True(t, created.OK)
	assert.True(t, created.Created)
	assert.True(t, created.Changed)
	assert.Equal(t, []uuid.UUID{created.SourceItemID}, enq.syncs)

	item, err := items.Get(ctx, created.SourceItemID)
	require.NoError(t, err)
	firstHash := *item.ContentHash
	firstCrawl := *item.LastCrawledAt

	up.set("a", `{"movie":{"year":2020,"name":"A"}}`)
	same, err := s.FetchDetail(ctx, "ophim", "a")
	require.NoError(t, err)
	assert.True(t, same.OK)
	assert.False(t, same.Changed)
	assert.Equal(t, created.SourceItemID, same.SourceItemID)
	assert.Len(t, enq.syncs, 1, "unchanged payloads are not synced")

	item, err = items.Get(ctx, created.SourceItemID)
	require.NoError(t, err)
	assert.Equal(t, firstHash, *item.ContentHash)
	assert.False(t, item.LastCrawledAt.Before(firstCrawl))

	up.set("a", `{"movie":{"name":"A2","year":2020}}`)
	changed, err := s.FetchDetail(ctx, "ophim", "a")
	require.NoError(t, err)
	assert.True(t, changed.Changed)
	assert.False(t, changed.Created)
	assert.Len(t, enq.syncs, 2)

	item, err = items.GetByExternalID(ctx, sourceID, "a")
	require.NoError(t, err)
	assert.NotEqual(t, firstHash, *item.ContentHash)
	assert.JSONEq(t, `{"movie":{"name":"A2","year":2020}}`, string(item.Payload))
}

func TestFetchDetailOfDiscoveredItem(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	up, srv := newUpstream(t)
	seed(t, db, "ophim", srv.URL)
	enq := &fakeEnqueuer{}
	s := newService(t, db, enq, Options{}, config("ophim", srv.URL))

	_, err := s.Discover(ctx, "ophim", 1)
	require.NoError(t, err)
	up.set("b", `{"movie":{"name":"B"}}`)

	res, err := s.FetchDetail(ctx, "ophim", "b")
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.True(t, res.Changed)
	assert.Equal(t, 2, testutil.Count(t, db, "source_items", ""))
	assert.Equal(t, 1, testutil.Count(t, db, "source_items", "crawl_status = 'ok'"))
}

func TestFetchDetailFailure(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	up, srv := newUpstream(t)
	seed(t, db, "ophim", srv.URL)
	enq := &fakeEnqueuer{}
	s := newService(t, db, enq, Options{}, config("ophim", srv.URL))

	up.set("a", `{"movie":{"name":"A"}}`)
	ok, err := s.FetchDetail(ctx, "ophim", "a")
	require.NoError(t, err)

	up.fail("a", http.StatusBadGateway)
	failed, err := s.FetchDetail(ctx, "ophim", "a")
	require.NoError(t, err)
	assert.False(t, failed.OK)
	assert.Equal(t, ok.SourceItemID, failed.SourceItemID)
	var statusErr *sources.StatusError
	require.ErrorAs(t, failed.Err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
	assert.Len(t, enq.syncs, 1)

	item, err := repository.NewSourceItemRepository(db).Get(ctx, ok.SourceItemID)
	require.NoError(t, err)
	assert.Equal(t, "error", string(item.CrawlStatus))

	logs, err := repository.NewCrawlLogRepository(db).ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, ok.SourceItemID, *logs[0].SourceItemID)
	assert.Contains(t, string(logs[0].Meta), `"status":502`)

	missing, err := s.FetchDetail(ctx, "ophim", "missing")
	require.NoError(t, err)
	assert.False(t, missing.OK)
	assert.Equal(t, uuid.Nil, missing.SourceItemID)
	assert.Equal(t, 2, testutil.Count(t, db, "crawl_logs", ""))
	assert.Equal(t, 1, testutil.Count(t, db, "source_items", ""))
}

func TestDiscoverAll(t *testing.T) {
	db := testutil.NewDB(t)
	_, srvA := newUpstream(t)
	_, srvB := newUpstream(t)
	seed(t, db, "ophim", srvA.URL)
	seed(t, db, "kkphim", srvB.URL)
	enq := &fakeEnqueuer{}
	s := newService(t, db, enq, Options{}, config("ophim", srvA.URL), config("kkphim", srvB.URL))

	results := s.DiscoverAll(context.Background(), 1, 2)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Empty(t, r.Error)
		assert.Equal(t, 2, r.Upserted)
	}
	assert.Len(t, enq.details, 4)
}

func TestCredits(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	_, srv := newUpstream(t)
	seed(t, db, "ophim", srv.URL)

	off := newService(t, db, &fakeEnqueuer{}, Options{}, config("ophim", srv.URL))
	credits, err := off.Credits(ctx, "ophim", "a")
	require.NoError(t, err)
	assert.Nil(t, credits)

	on := newService(t, db, &fakeEnqueuer{}, Options{People: true}, config("ophim", srv.URL))
	credits, err = on.Credits(ctx, "ophim", "a")
	require.NoError(t, err)
	require.Len(t, credits, 1)
	assert.Equal(t, "7", credits[0].TMDBID)

	credits, err = on.Credits(ctx, "kkphim", "a")
	require.NoError(t, err)
	assert.Nil(t, credits)
}
