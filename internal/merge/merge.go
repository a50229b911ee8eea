// Package merge ranks normalized records that describe the same title and
// folds them into one.
package merge

import (
	"errors"
	"sort"
	"strings"

	"github.com/JustinTDCT/CineSync/internal/catalog"
	"github.com/JustinTDCT/CineSync/internal/models"
)

// ErrNoCandidates is returned when there is nothing to merge.
var ErrNoCandidates = errors.New("no normalized candidates to merge")

// Score weights.
const (
	plotCap        = 500
	idWeight       = 100
	seasonWeight   = 30
	episodeWeight  = 50
	streamWeight   = 20
	personWeight   = 8
	taxonomyWeight = 6
)

const defaultStreamPriority = 100

// Score rates a record by completeness:
//
//	min(len(plot), 500) + 100·imdb + 100·tmdb + 30·seasons + 50·episodes
//	  + 20·streams + 8·people + 6·(genres+tags+countries)
//
// Plot length counts runes.
func Score(m *catalog.Movie) int {
	score := 0
	if m.Plot != nil {
		score += min(len([]rune(*m.Plot)), plotCap)
	}
	if m.IMDBID != nil && *m.IMDBID != "" {
		score += idWeight
	}
	if m.TMDBID != nil && *m.TMDBID != "" {
		score += idWeight
	}
	score += len(m.Seasons) * seasonWeight
	score += m.EpisodeCount() * episodeWeight
	score += m.StreamCount() * streamWeight
	score += m.People.Len() * personWeight
	score += m.TaxonomyCount() * taxonomyWeight
	return score
}

// Rank orders candidates by descending score. Ties keep input order.
func Rank(candidates []*catalog.Movie) []*catalog.Movie {
	ranked := make([]*catalog.Movie, 0, len(candidates))
	for _, c := range candidates {
		if c != nil {
			ranked = append(ranked, c)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return Score(ranked[i]) > Score(ranked[j])
	})
	return ranked
}

// Merge elects the highest scoring candidate as primary and backfills it
// from the others, best first. The inputs are not modified.
func Merge(candidates []*catalog.Movie) (*catalog.Movie, error) {
	ranked := Rank(candidates)
	if len(ranked) == 0 {
		return nil, ErrNoCandidates
	}

	p := ranked[0]
	merged := &catalog.Movie{
		SlugSuggested: p.SlugSuggested,
		Title:         p.Title,
		OriginalTitle: p.OriginalTitle,
		OtherTitles:   unionStrings(nil, p.OtherTitles),
		Type:          p.Type,
		Year:          p.Year,
		Status:        p.Status,
		DurationMin:   p.DurationMin,
		Quality:       p.Quality,
		Subtitle:      p.Subtitle,
		ViewCount:     p.ViewCount,
		RatingAvg:     p.RatingAvg,
		RatingCount:   p.RatingCount,
		Plot:          p.Plot,
		PosterURL:     p.PosterURL,
		BackdropURL:   p.BackdropURL,
		TrailerURL:    p.TrailerURL,
		IMDBID:        p.IMDBID,
		TMDBID:        p.TMDBID,
		Genres:        unionTaxonomies(nil, p.Genres),
		Countries:     unionTaxonomies(nil, p.Countries),
		Tags:          unionTaxonomies(nil, p.Tags),
		People: catalog.People{
			Actors:    unionPeople(nil, p.People.Actors),
			Directors: unionPeople(nil, p.People.Directors),
			Writers:   unionPeople(nil, p.People.Writers),
			Producers: unionPeople(nil, p.People.Producers),
		},
		Seasons: mergeSeasons(nil, p.Seasons),
	}
	if merged.Status == "" {
		merged.Status = models.MovieStatusUnknown
	}

	for _, c := range ranked[1:] {
		backfill(merged, c)
	}
	return merged, nil
}

func backfill(merged, c *catalog.Movie) {
	fill(&merged.OriginalTitle, c.OriginalTitle)
	if merged.Year == nil && c.Year != nil {
		merged.Year = c.Year
	}
	if merged.Status == models.MovieStatusUnknown && c.Status != "" && c.Status != models.MovieStatusUnknown {
		merged.Status = c.Status
	}
	if merged.DurationMin == nil && c.DurationMin != nil {
		merged.DurationMin = c.DurationMin
	}
	fill(&merged.Quality, c.Quality)
	fill(&merged.Subtitle, c.Subtitle)

	if c.ViewCount != nil && (merged.ViewCount == nil || *c.ViewCount > *merged.ViewCount) {
		merged.ViewCount = c.ViewCount
	}

	// The rating backed by more votes wins.
	if c.RatingAvg != nil && (merged.RatingAvg == nil || deref(c.RatingCount) > deref(merged.RatingCount)) {
		merged.RatingAvg = c.RatingAvg
		if c.RatingCount != nil {
			merged.RatingCount = c.RatingCount
		}
	} else if merged.RatingCount == nil {
		merged.RatingCount = c.RatingCount
	}

	fill(&merged.Plot, c.Plot)
	fill(&merged.PosterURL, c.PosterURL)
	fill(&merged.BackdropURL, c.BackdropURL)
	fill(&merged.TrailerURL, c.TrailerURL)
	fill(&merged.IMDBID, c.IMDBID)
	fill(&merged.TMDBID, c.TMDBID)

	if c.Type == models.MovieTypeSeries {
		merged.Type = models.MovieTypeSeries
	}

	merged.OtherTitles = unionStrings(merged.OtherTitles, c.OtherTitles)
	merged.Genres = unionTaxonomies(merged.Genres, c.Genres)
	merged.Countries = unionTaxonomies(merged.Countries, c.Countries)
	merged.Tags = unionTaxonomies(merged.Tags, c.Tags)
	merged.People.Actors = unionPeople(merged.People.Actors, c.People.Actors)
	merged.People.Directors = unionPeople(merged.People.Directors, c.People.Directors)
	merged.People.Writers = unionPeople(merged.People.Writers, c.People.Writers)
	merged.People.Producers = unionPeople(merged.People.Producers, c.People.Producers)
	merged.Seasons = mergeSeasons(merged.Seasons, c.Seasons)
}

func fill(dst **string, src *string) {
	if (*dst == nil || **dst == "") && src != nil && *src != "" {
		*dst = src
	}
}

func deref(n *int) int {
	if n == nil {
		return 0
	}
	return *n
}

func unionStrings(base, extra []string) []string {
	out := make([]string, 0, len(base)+len(extra))
	seen := make(map[string]bool, len(base)+len(extra))
	for _, s := range append(append([]string{}, base...), extra...) {
		s = strings.TrimSpace(s)
		key := catalog.TitleKey(s)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}

func unionTaxonomies(base, extra []catalog.Taxonomy) []catalog.Taxonomy {
	out := make([]catalog.Taxonomy, 0, len(base)+len(extra))
	seen := make(map[string]bool, len(base)+len(extra))
	for _, t := range append(append([]catalog.Taxonomy{}, base...), extra...) {
		t = catalog.Taxonomy{
			Name: strings.TrimSpace(t.Name),
			Slug: strings.TrimSpace(t.Slug),
			Code: strings.TrimSpace(t.Code),
		}
		if t.Name == "" {
			continue
		}
		key := t.Key()
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	return out
}

func unionPeople(base, extra []catalog.Person) []catalog.Person {
	out := make([]catalog.Person, 0, len(base)+len(extra))
	seen := make(map[string]bool, len(base)+len(extra))
	for _, p := range append(append([]catalog.Person{}, base...), extra...) {
		p.Name = strings.TrimSpace(p.Name)
		p.Slug = strings.TrimSpace(p.Slug)
		if p.Name == "" {
			continue
		}
		key := p.Key()
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p)
	}
	return out
}

// mergeSeasons folds extra into base by season number, then episode
// number. The first non-empty episode name is kept and streams are unioned.
func mergeSeasons(base, extra []catalog.Season) []catalog.Season {
	bySeason := make(map[int]map[int]*catalog.Episode)
	for _, list := range [][]catalog.Season{base, extra} {
		for _, s := range list {
			eps, ok := bySeason[s.Number]
			if !ok {
				eps = make(map[int]*catalog.Episode)
				bySeason[s.Number] = eps
			}
			for _, e := range s.Episodes {
				existing, ok := eps[e.Number]
				if !ok {
					eps[e.Number] = &catalog.Episode{
						Number:  e.Number,
						Name:    e.Name,
						Streams: unionStreams(nil, e.Streams),
					}
					continue
				}
				if existing.Name == "" {
					existing.Name = e.Name
				}
				existing.Streams = unionStreams(existing.Streams, e.Streams)
			}
		}
	}

	out := make([]catalog.Season, 0, len(bySeason))
	for number, eps := range bySeason {
		season := catalog.Season{Number: number, Episodes: make([]catalog.Episode, 0, len(eps))}
		for _, e := range eps {
			season.Episodes = append(season.Episodes, *e)
		}
		sort.Slice(season.Episodes, func(i, j int) bool {
			return season.Episodes[i].Number < season.Episodes[j].Number
		})
		out = append(out, season)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// unionStreams dedupes on (folded server name, URL checksum) and fills
// stream defaults. Streams without a URL are dropped.
func unionStreams(base, extra []catalog.Stream) []catalog.Stream {
	out := make([]catalog.Stream, 0, len(base)+len(extra))
	seen := make(map[string]bool, len(base)+len(extra))
	for _, s := range append(append([]catalog.Stream{}, base...), extra...) {
		s.URL = strings.TrimSpace(s.URL)
		if s.URL == "" {
			continue
		}
		s.ServerName = strings.TrimSpace(s.ServerName)
		if s.ServerName == "" {
			s.ServerName = "Server"
		}
		key := catalog.TitleKey(s.ServerName) + "|" + catalog.Checksum(s.URL)
		if seen[key] {
			continue
		}
		seen[key] = true
		if s.Kind == "" {
			s.Kind = models.VideoKindHLS
		}
		if s.Label == "" {
			s.Label = "Default"
		}
		if s.Priority == nil {
			p := defaultStreamPriority
			s.Priority = &p
		}
		out = append(out, s)
	}
	return out
}
