package sources

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/JustinTDCT/CineSync/internal/catalog"
	"github.com/JustinTDCT/CineSync/internal/models"
)

// ErrNoAdapter is returned when no registered adapter handles a source code.
var ErrNoAdapter = errors.New("no adapter for source")

// Adapter maps one catalog's detail payload to the normalized record.
// Normalize is total: missing or malformed fields become nil or defaults.
type Adapter interface {
	Supports(sourceCode string) bool
	Normalize(payload json.RawMessage, item *models.SourceItem) *catalog.Movie
}

// Registry resolves adapters by source code. It is built once at startup
// and never mutated afterwards.
type Registry struct {
	adapters []Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	return &Registry{adapters: adapters}
}

// DefaultRegistry holds the adapters for every catalog the pipeline knows.
func DefaultRegistry() *Registry {
	return NewRegistry(Ophim{}, KKPhim{})
}

func (r *Registry) For(sourceCode string) (Adapter, error) {
	for _, a := range r.adapters {
		if a.Supports(sourceCode) {
			return a, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrNoAdapter, sourceCode)
}

// Normalize runs the adapter for the item's source over its stored payload.
func (r *Registry) Normalize(item *models.SourceItem) (*catalog.Movie, error) {
	a, err := r.For(item.SourceCode)
	if err != nil {
		return nil, err
	}
	return a.Normalize(item.Payload, item), nil
}

// baseMovie fills the fields both catalogs encode the same way.
func baseMovie(movie map[string]any, item *models.SourceItem, episodes []any) *catalog.Movie {
	title := firstStr(movie["name"], movie["title"])
	if title == "" && item != nil && item.Title != nil {
		title = *item.Title
	}
	if title == "" {
		title = "Unknown Title"
	}

	out := &catalog.Movie{
		SlugSuggested: catalog.Slugify(firstStr(movie["slug"], title)),
		Title:         title,
		OriginalTitle: catalog.StringPtr(firstStr(movie["origin_name"], movie["original_title"])),
		Type:          inferType(movie, item),
		Year:          positiveInt(movie["year"]),
		Status:        mapStatus(movie["status"]),
		DurationMin:   parseDuration(movie["time"]),
		Quality:       catalog.StringPtr(str(movie["quality"])),
		Subtitle:      catalog.StringPtr(firstStr(movie["lang"], movie["subtitle"])),
		ViewCount:     int64Ptr(movie["view"]),
		Plot:          catalog.StringPtr(firstStr(movie["content"], movie["plot"])),
		PosterURL:     catalog.StringPtr(firstStr(movie["poster_url"], movie["poster"])),
		BackdropURL:   catalog.StringPtr(firstStr(movie["thumb_url"], movie["backdrop"])),
		TrailerURL:    catalog.StringPtr(firstStr(movie["trailer_url"], movie["trailer"])),
		Genres:        taxonomies(movie["category"], nil),
		Seasons:       seasons(episodes),
	}
	if out.Year == nil && item != nil && item.Year != nil && *item.Year > 0 {
		y := *item.Year
		out.Year = &y
	}
	if tmdb := obj(movie["tmdb"]); tmdb != nil {
		out.RatingAvg = floatPtr(tmdb["vote_average"])
		out.RatingCount = intPtr(tmdb["vote_count"])
	}
	if out.RatingAvg == nil {
		out.RatingAvg = floatPtr(movie["rating"])
	}
	return out
}
