package sources

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JustinTDCT/CineSync/internal/models"
)

const ophimSeasonPayload = `{
  "movie": {
    "slug": "mock-ophim-1",
    "name": "Ophim Mock Movie",
    "origin_name": "Ophim Original",
    "aliases": ["Ophim Alias"],
    "type": "series",
    "year": 2022,
    "status": "ongoing",
    "content": "An epic story from Ophim.",
    "poster_url": "https://img.example.com/poster.jpg",
    "thumb_url": "https://img.example.com/backdrop.jpg",
    "imdb_id": "tt1234567",
    "tmdb_id": 12345,
    "category": [{"name": "Action", "slug": "action"}],
    "country": [{"name": "Japan", "code": "JP"}],
    "tags": [{"name": "Hero", "slug": "hero"}],
    "actors": [{"name": "Actor A"}, "Actor B"],
    "directors": [{"name": "Director X"}]
  },
  "episodes": [{
    "season": 1,
    "items": [{
      "episode": 1,
      "name": "Episode 1",
      "servers": [{"name": "Server A", "items": [{"type": "hls", "label": "720p", "url": "https://cdn.example.com/ophim/1.m3u8"}]}]
    }, {
      "episode": 2,
      "servers": [{"name": "Server A", "items": [{"url": "https://cdn.example.com/ophim/2.m3u8", "headers": {"Referer": "https://ophim1.com"}}]}]
    }]
  }]
}`

const kkphimServerPayload = `{
  "status": true,
  "movie": {
    "slug": "tham-tu-lung-danh",
    "name": "Thám Tử Lừng Danh",
    "origin_name": "Detective",
    "type": "hoathinh",
    "episode_total": "24",
    "status": "completed",
    "time": "24 phút/tập",
    "quality": "FHD",
    "lang": "Vietsub",
    "view": "1520",
    "year": "2019",
    "content": "<p>Plot</p>",
    "imdb": {"id": "tt0131179"},
    "tmdb": {"type": "tv", "id": "30983", "vote_average": 8.1, "vote_count": 1234},
    "actor": ["Đang cập nhật", "Minami Takayama", ""],
    "director": ["Đang cập nhật"],
    "category": [{"id": "1", "name": "Hoạt Hình", "slug": "hoat-hinh"}],
    "country": [{"name": "Nhật Bản", "slug": "nhat-ban"}, {"name": "Somewhere", "slug": "a-very-long-country-slug"}]
  },
  "episodes": [
    {"server_name": "Vietsub #1", "server_data": [
      {"name": "Tập 02", "link_m3u8": "https://kk.example.com/2.m3u8", "link_embed": "https://kk.example.com/embed/2"},
      {"name": "Tập 01", "link_m3u8": "https://kk.example.com/1.m3u8", "link_embed": ""}
    ]},
    {"server_name": "Thuyết Minh", "server_data": [
      {"name": "Tập 01", "link_embed": "https://kk.example.com/tm/embed/1"}
    ]}
  ]
}`

func TestOphimNormalizeSeasonLayout(t *testing.T) {
	m := Ophim{}.Normalize(json.RawMessage(ophimSeasonPayload), &models.SourceItem{})

	assert.Equal(t, "mock-ophim-1", m.SlugSuggested)
	assert.Equal(t, "Ophim Mock Movie", m.Title)
	assert.Equal(t, models.MovieTypeSeries, m.Type)
	assert.Equal(t, models.MovieStatusOngoing, m.Status)
	require.NotNil(t, m.Year)
	assert.Equal(t, 2022, *m.Year)
	require.NotNil(t, m.IMDBID)
	assert.Equal(t, "tt1234567", *m.IMDBID)
	require.NotNil(t, m.TMDBID)
	assert.Equal(t, "12345", *m.TMDBID)
	assert.Equal(t, []string{"Ophim Alias"}, m.OtherTitles)
	assert.Equal(t, "JP", m.Countries[0].Code)
	assert.Len(t, m.Tags, 1)
	assert.Len(t, m.People.Actors, 2)
	assert.Len(t, m.People.Directors, 1)

	require.Len(t, m.Seasons, 1)
	eps := m.Seasons[0].Episodes
	require.Len(t, eps, 2)
	assert.Equal(t, "Episode 2", eps[1].Name)
	s := eps[0].Streams[0]
	assert.Equal(t, "Server A", s.ServerName)
	assert.Equal(t, models.VideoKindHLS, s.Kind)
	assert.Equal(t, "720p", s.Label)
	assert.Equal(t, "Default", eps[1].Streams[0].Label)
	assert.Equal(t, "https://ophim1.com", eps[1].Streams[0].Headers["Referer"])
}

func TestKKPhimNormalizeServerLayout(t *testing.T) {
	m := KKPhim{}.Normalize(json.RawMessage(kkphimServerPayload), &models.SourceItem{})

	assert.Equal(t, models.MovieTypeSeries, m.Type, "episode_total > 1 implies a series")
	assert.Equal(t, models.MovieStatusCompleted, m.Status)
	require.NotNil(t, m.DurationMin)
	assert.Equal(t, 24, *m.DurationMin)
	require.NotNil(t, m.ViewCount)
	assert.EqualValues(t, 1520, *m.ViewCount)
	require.NotNil(t, m.Year)
	assert.Equal(t, 2019, *m.Year)
	assert.Equal(t, "tt0131179", *m.IMDBID)
	assert.Equal(t, "30983", *m.TMDBID)
	require.NotNil(t, m.RatingAvg)
	assert.InDelta(t, 8.1, *m.RatingAvg, 0.0001)
	assert.Equal(t, 1234, *m.RatingCount)

	require.Len(t, m.People.Actors, 1)
	assert.Equal(t, "Minami Takayama", m.People.Actors[0].Name)
	assert.Empty(t, m.People.Directors)

	require.Len(t, m.Countries, 2)
	assert.Equal(t, "nhat-ban", m.Countries[0].Code)
	assert.Empty(t, m.Countries[1].Code, "over-long slugs are not codes")

	require.Len(t, m.Seasons, 1)
	season := m.Seasons[0]
	assert.Equal(t, 1, season.Number)
	require.Len(t, season.Episodes, 2)

	ep1 := season.Episodes[0]
	assert.Equal(t, 1, ep1.Number)
	require.Len(t, ep1.Streams, 2)
	assert.Equal(t, "Vietsub #1", ep1.Streams[0].ServerName)
	assert.Equal(t, "m3u8", ep1.Streams[0].Label)
	assert.Equal(t, 100, ep1.Streams[0].PriorityOr(0))
	assert.Equal(t, "Thuyết Minh", ep1.Streams[1].ServerName)
	assert.Equal(t, models.VideoKindEmbed, ep1.Streams[1].Kind)
	assert.Equal(t, 80, ep1.Streams[1].PriorityOr(0))

	ep2 := season.Episodes[1]
	assert.Equal(t, 2, ep2.Number)
	assert.Len(t, ep2.Streams, 2)
}

func TestNormalizeIsTotal(t *testing.T) {
	title := "From Discovery"
	year := 2020
	series := "series"
	item := &models.SourceItem{Title: &title, Year: &year, Type: &series}

	for _, payload := range []string{``, `null`, `[]`, `"x"`, `{"movie": "nope", "episodes": {"a": 1}}`, `{"movie": {"year": "NaN", "view": "Infinity", "tmdb": []}}`} {
		for _, a := range []Adapter{Ophim{}, KKPhim{}} {
			m := a.Normalize(json.RawMessage(payload), item)
			require.NotNil(t, m, "payload %q", payload)
			assert.Equal(t, "From Discovery", m.Title)
			assert.Equal(t, "from-discovery", m.SlugSuggested)
			assert.Equal(t, models.MovieTypeSeries, m.Type)
			assert.Equal(t, models.MovieStatusUnknown, m.Status)
			require.NotNil(t, m.Year)
			assert.Equal(t, 2020, *m.Year)
			assert.Nil(t, m.ViewCount)
			assert.Empty(t, m.Seasons)
		}
	}
}

func TestNormalizeWrappedItem(t *testing.T) {
	payload := `{"status":"success","data":{"item":{"name":"Wrapped","type":"single","imdb":{"id":"tt9"},
		"episodes":[{"server_name":"S","server_data":[{"name":"Full","link_m3u8":"https://x/full.m3u8"}]}]}}}`

	m := Ophim{}.Normalize(json.RawMessage(payload), nil)
	assert.Equal(t, "Wrapped", m.Title)
	assert.Equal(t, models.MovieTypeSingle, m.Type)
	assert.Equal(t, "tt9", *m.IMDBID)
	require.Len(t, m.Seasons, 1)
	require.Len(t, m.Seasons[0].Episodes, 1)
	assert.Equal(t, 1, m.Seasons[0].Episodes[0].Number)
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry()

	a, err := r.For("kkphim")
	require.NoError(t, err)
	assert.IsType(t, KKPhim{}, a)

	_, err = r.For("nope")
	assert.ErrorIs(t, err, ErrNoAdapter)

	m, err := r.Normalize(&models.SourceItem{SourceCode: "ophim", Payload: json.RawMessage(ophimSeasonPayload)})
	require.NoError(t, err)
	assert.Equal(t, "Ophim Mock Movie", m.Title)
}
