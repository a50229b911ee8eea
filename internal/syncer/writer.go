package syncer

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/JustinTDCT/CineSync/internal/catalog"
	"github.com/JustinTDCT/CineSync/internal/models"
	"github.com/JustinTDCT/CineSync/internal/repository"
	"github.com/JustinTDCT/CineSync/internal/sources"
)

const (
	defaultServerName = "Server"
	defaultPriority   = 100
)

// Writer projects a merged record onto the relational graph. It runs on
// the caller's transaction and never commits or rolls back itself.
type Writer struct {
	movies *repository.MovieRepository
	graph  *repository.GraphRepository
}

func NewWriter(tx repository.DBTX) *Writer {
	return &Writer{
		movies: repository.NewMovieRepository(tx),
		graph:  repository.NewGraphRepository(tx),
	}
}

// Apply writes m and the optional external credits to movieID. Scalars are
// written first and the movie's updated_at is touched last.
func (w *Writer) Apply(ctx context.Context, movieID uuid.UUID, m *catalog.Movie, credits []sources.Credit) error {
	if err := w.movies.UpdateScalars(ctx, movieID, m); err != nil {
		return fmt.Errorf("update movie: %w", err)
	}
	if err := w.taxonomies(ctx, movieID, m); err != nil {
		return err
	}
	if err := w.people(ctx, movieID, m.People); err != nil {
		return err
	}
	if err := w.credits(ctx, movieID, credits); err != nil {
		return err
	}
	for _, season := range m.Seasons {
		if err := w.season(ctx, movieID, season); err != nil {
			return err
		}
	}
	return w.movies.Touch(ctx, movieID)
}

func (w *Writer) taxonomies(ctx context.Context, movieID uuid.UUID, m *catalog.Movie) error {
	for _, set := range []struct {
		kind  repository.TaxonomyKind
		items []catalog.Taxonomy
	}{
		{repository.Genres, m.Genres},
		{repository.Tags, m.Tags},
	} {
		for _, t := range set.items {
			id, ok, err := w.graph.UpsertTaxonomy(ctx, set.kind, t)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if err := w.graph.LinkTaxonomy(ctx, set.kind, movieID, id); err != nil {
				return fmt.Errorf("link %q: %w", t.Name, err)
			}
		}
	}

	for _, c := range m.Countries {
		id, ok, err := w.graph.UpsertCountry(ctx, c)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := w.graph.LinkCountry(ctx, movieID, id); err != nil {
			return fmt.Errorf("link country %q: %w", c.Name, err)
		}
	}
	return nil
}

func (w *Writer) people(ctx context.Context, movieID uuid.UUID, people catalog.People) error {
	for _, block := range people.ByRole() {
		for i, p := range block.People {
			id, ok, err := w.graph.UpsertPerson(ctx, p)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if err := w.graph.LinkPerson(ctx, movieID, id, block.Role, nil, i); err != nil {
				return fmt.Errorf("link %s %q: %w", block.Role, p.Name, err)
			}
		}
	}
	return nil
}

// credits links the catalog's credits list. A person with the same name is
// reused and only gains an avatar it lacked; new people get a slug carrying
// the tmdb id.
func (w *Writer) credits(ctx context.Context, movieID uuid.UUID, credits []sources.Credit) error {
	order := 0
	for _, c := range credits {
		personID, err := w.graph.FindPersonByName(ctx, c.Name)
		switch {
		case err == nil:
			if c.AvatarURL != "" {
				if err := w.graph.SetAvatarIfMissing(ctx, personID, c.AvatarURL); err != nil {
					return fmt.Errorf("set avatar %q: %w", c.Name, err)
				}
			}
		case errors.Is(err, repository.ErrNotFound):
			slug := catalog.Slugify(c.Name)
			if c.TMDBID != "" {
				slug = catalog.Slugify(c.Name + "-" + c.TMDBID)
			}
			var ok bool
			personID, ok, err = w.graph.UpsertPerson(ctx, catalog.Person{Name: c.Name, Slug: slug, AvatarURL: c.AvatarURL})
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
		default:
			return fmt.Errorf("find person %q: %w", c.Name, err)
		}

		if err := w.graph.LinkPerson(ctx, movieID, personID, c.Role(), catalog.StringPtr(c.Character), order); err != nil {
			return fmt.Errorf("link credit %q: %w", c.Name, err)
		}
		order++
	}
	return nil
}

func (w *Writer) season(ctx context.Context, movieID uuid.UUID, season catalog.Season) error {
	number := season.Number
	if number <= 0 {
		number = 1
	}
	seasonID, err := w.graph.UpsertSeason(ctx, movieID, number)
	if err != nil {
		return err
	}
	for _, ep := range season.Episodes {
		name := ep.Name
		if name == "" {
			name = fmt.Sprintf("Episode %d", ep.Number)
		}
		episodeID, err := w.graph.UpsertEpisode(ctx, movieID, seasonID, ep.Number, name)
		if err != nil {
			return err
		}
		if err := w.streams(ctx, episodeID, ep.Streams); err != nil {
			return fmt.Errorf("season %d episode %d: %w", number, ep.Number, err)
		}
	}
	return nil
}

type serverGroup struct {
	name    string
	streams []catalog.Stream
}

// groupByServer groups streams with a URL by server name, keeping the order
// in which servers first appear.
func groupByServer(streams []catalog.Stream) []serverGroup {
	var groups []serverGroup
	index := map[string]int{}
	for _, s := range streams {
		if s.URL == "" {
			continue
		}
		name := s.ServerName
		if name == "" {
			name = defaultServerName
		}
		i, ok := index[name]
		if !ok {
			i = len(groups)
			index[name] = i
			groups = append(groups, serverGroup{name: name})
		}
		groups[i].streams = append(groups[i].streams, s)
	}
	return groups
}

// streams upserts one server per group, then every stream of the group.
// Streams of a written server that are absent from this pass are
// deactivated.
func (w *Writer) streams(ctx context.Context, episodeID uuid.UUID, streams []catalog.Stream) error {
	for _, g := range groupByServer(streams) {
		first := g.streams[0]
		kind := first.Kind
		if kind == "" {
			kind = models.VideoKindHLS
		}
		serverID, err := w.graph.UpsertServer(ctx, episodeID, g.name, kind, first.PriorityOr(defaultPriority))
		if err != nil {
			return err
		}

		keep := make([]string, 0, len(g.streams))
		for _, s := range g.streams {
			sum := catalog.Checksum(s.URL)
			if err := w.graph.UpsertStream(ctx, serverID, s, sum, s.PriorityOr(defaultPriority)); err != nil {
				return err
			}
			keep = append(keep, sum)
		}
		if _, err := w.graph.DeactivateStreamsExcept(ctx, serverID, keep); err != nil {
			return fmt.Errorf("deactivate streams of %q: %w", g.name, err)
		}
	}
	return nil
}
