// Package catalog holds the source-agnostic view of one title: the record
// every source adapter produces and the merger and graph writer consume.
package catalog

import (
	"github.com/JustinTDCT/CineSync/internal/models"
)

// Taxonomy is a genre, tag or country reference. Genres and tags dedupe on
// Slug, countries on Code; both fall back to the name.
type Taxonomy struct {
	Name string `json:"name"`
	Slug string `json:"slug,omitempty"`
	Code string `json:"code,omitempty"`
}

// Key returns the identity used when unioning taxonomy lists.
func (t Taxonomy) Key() string {
	if t.Slug != "" {
		return t.Slug
	}
	if t.Code != "" {
		return t.Code
	}
	return TitleKey(t.Name)
}

type Person struct {
	Name      string `json:"name"`
	Slug      string `json:"slug,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Bio       string `json:"bio,omitempty"`
}

// Key returns the identity used when unioning people lists.
func (p Person) Key() string {
	if p.Slug != "" {
		return p.Slug
	}
	return TitleKey(p.Name)
}

type People struct {
	Actors    []Person `json:"actors"`
	Directors []Person `json:"directors"`
	Writers   []Person `json:"writers,omitempty"`
	Producers []Person `json:"producers,omitempty"`
}

// Len is the total number of people across all roles.
func (p People) Len() int {
	return len(p.Actors) + len(p.Directors) + len(p.Writers) + len(p.Producers)
}

// ByRole returns the role blocks in a fixed order for writing.
func (p People) ByRole() []RoleBlock {
	return []RoleBlock{
		{Role: models.RoleActor, People: p.Actors},
		{Role: models.RoleDirector, People: p.Directors},
		{Role: models.RoleWriter, People: p.Writers},
		{Role: models.RoleProducer, People: p.Producers},
	}
}

type RoleBlock struct {
	Role   models.RoleType
	People []Person
}

type Stream struct {
	ServerName string            `json:"server_name"`
	Kind       models.VideoKind  `json:"kind"`
	Label      string            `json:"label"`
	URL        string            `json:"url"`
	Headers    map[string]string `json:"headers,omitempty"`
	Priority   *int              `json:"priority,omitempty"`
}

// PriorityOr returns the stream priority or def when unset.
func (s Stream) PriorityOr(def int) int {
	if s.Priority == nil {
		return def
	}
	return *s.Priority
}

type Episode struct {
	Number  int      `json:"episode_number"`
	Name    string   `json:"name"`
	Streams []Stream `json:"streams"`
}

type Season struct {
	Number   int       `json:"season_number"`
	Episodes []Episode `json:"episodes"`
}

// Movie is the normalized record for one title. Pointer fields are nil when
// the source did not provide a usable value.
type Movie struct {
	SlugSuggested string             `json:"slug_suggested"`
	Title         string             `json:"title"`
	OriginalTitle *string            `json:"original_title,omitempty"`
	OtherTitles   []string           `json:"other_titles,omitempty"`
	Type          models.MovieType   `json:"type"`
	Year          *int               `json:"year,omitempty"`
	Status        models.MovieStatus `json:"status"`
	DurationMin   *int               `json:"duration_min,omitempty"`
	Quality       *string            `json:"quality,omitempty"`
	Subtitle      *string            `json:"subtitle,omitempty"`
	ViewCount     *int64             `json:"view_count,omitempty"`
	RatingAvg     *float64           `json:"rating_avg,omitempty"`
	RatingCount   *int               `json:"rating_count,omitempty"`
	Plot          *string            `json:"plot,omitempty"`
	PosterURL     *string            `json:"poster_url,omitempty"`
	BackdropURL   *string            `json:"backdrop_url,omitempty"`
	TrailerURL    *string            `json:"trailer_url,omitempty"`
	IMDBID        *string            `json:"imdb_id,omitempty"`
	TMDBID        *string            `json:"tmdb_id,omitempty"`
	Genres        []Taxonomy         `json:"genres"`
	Countries     []Taxonomy         `json:"countries"`
	Tags          []Taxonomy         `json:"tags"`
	People        People             `json:"people"`
	Seasons       []Season           `json:"seasons"`
}

// EpisodeCount is the number of episodes across all seasons.
func (m *Movie) EpisodeCount() int {
	n := 0
	for _, s := range m.Seasons {
		n += len(s.Episodes)
	}
	return n
}

// StreamCount is the number of streams across all episodes.
func (m *Movie) StreamCount() int {
	n := 0
	for _, s := range m.Seasons {
		for _, e := range s.Episodes {
			n += len(e.Streams)
		}
	}
	return n
}

// TaxonomyCount is the number of genres, tags and countries.
func (m *Movie) TaxonomyCount() int {
	return len(m.Genres) + len(m.Tags) + len(m.Countries)
}

// Slug returns the suggested slug or one derived from the title.
func (m *Movie) Slug() string {
	if m.SlugSuggested != "" {
		return m.SlugSuggested
	}
	return Slugify(m.Title)
}
