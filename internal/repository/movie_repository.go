package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/JustinTDCT/CineSync/internal/catalog"
	"github.com/JustinTDCT/CineSync/internal/models"
)

// Column bounds for numeric movie fields.
const (
	maxRatingAvg   = 9.99
	maxRatingCount = math.MaxInt32
)

type MovieRepository struct {
	db DBTX
}

func NewMovieRepository(db DBTX) *MovieRepository {
	return &MovieRepository{db: db}
}

func (r *MovieRepository) Get(ctx context.Context, id uuid.UUID) (*models.Movie, error) {
	m := &models.Movie{}
	var otherTitles sql.NullString
	query := `SELECT id, slug, title, original_title, other_titles, type, year, duration_min, status, quality,
		subtitle, plot, poster_url, backdrop_url, trailer_url, imdb_id, tmdb_id, view_count, rating_avg,
		rating_count, is_active, created_at, updated_at
		FROM movies WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&m.ID, &m.Slug, &m.Title, &m.OriginalTitle, &otherTitles,
		&m.Type, &m.Year, &m.DurationMin, &m.Status, &m.Quality, &m.Subtitle, &m.Plot, &m.PosterURL,
		&m.BackdropURL, &m.TrailerURL, &m.IMDBID, &m.TMDBID, &m.ViewCount, &m.RatingAvg, &m.RatingCount,
		&m.IsActive, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	if otherTitles.Valid && otherTitles.String != "" {
		if err := json.Unmarshal([]byte(otherTitles.String), &m.OtherTitles); err != nil {
			return nil, fmt.Errorf("decode other_titles: %w", err)
		}
	}
	return m, nil
}

// FindMatch looks for an existing movie in priority order: imdb id, tmdb
// id, then same year with an equal title key. ErrNotFound means no match.
func (r *MovieRepository) FindMatch(ctx context.Context, m *catalog.Movie) (uuid.UUID, models.MatchedBy, error) {
	if id := strings.TrimSpace(catalog.Deref(m.IMDBID)); id != "" {
		movieID, err := findID(ctx, r.db, `SELECT id FROM movies WHERE imdb_id = $1 ORDER BY created_at, id LIMIT 1`, id)
		if err == nil {
			return movieID, models.MatchedByIMDB, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return uuid.Nil, "", err
		}
	}

	if id := strings.TrimSpace(catalog.Deref(m.TMDBID)); id != "" {
		movieID, err := findID(ctx, r.db, `SELECT id FROM movies WHERE tmdb_id = $1 ORDER BY created_at, id LIMIT 1`, id)
		if err == nil {
			return movieID, models.MatchedByTMDB, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return uuid.Nil, "", err
		}
	}

	key := catalog.TitleKey(m.Title)
	if key != "" && m.Year != nil {
		rows, err := r.db.QueryContext(ctx, `SELECT id, title FROM movies WHERE year = $1 ORDER BY created_at, id`, *m.Year)
		if err != nil {
			return uuid.Nil, "", err
		}
		defer rows.Close()
		for rows.Next() {
			var id uuid.UUID
			var title string
			if err := rows.Scan(&id, &title); err != nil {
				return uuid.Nil, "", err
			}
			if catalog.TitleKey(title) == key {
				return id, models.MatchedByTitleYear, nil
			}
		}
		if err := rows.Err(); err != nil {
			return uuid.Nil, "", err
		}
	}

	return uuid.Nil, "", ErrNotFound
}

// Create inserts a movie from a normalized record. When the suggested slug
// is taken it tries slug-year, then a short random suffix.
func (r *MovieRepository) Create(ctx context.Context, m *catalog.Movie) (uuid.UUID, string, error) {
	otherTitles, err := jsonArg(m.OtherTitles)
	if err != nil {
		return uuid.Nil, "", err
	}
	status := m.Status
	if status == "" {
		status = models.MovieStatusUnknown
	}
	movieType := m.Type
	if !movieType.Valid() {
		movieType = models.MovieTypeSingle
	}

	query := `INSERT INTO movies (id, slug, title, original_title, other_titles, type, year, duration_min, status,
			quality, subtitle, plot, poster_url, backdrop_url, trailer_url, imdb_id, tmdb_id, view_count,
			rating_avg, rating_count, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, TRUE)
		ON CONFLICT (slug) DO NOTHING
		RETURNING id`

	for _, slug := range slugCandidates(m) {
		var id uuid.UUID
		err := r.db.QueryRowContext(ctx, query, uuid.New(), slug, m.Title, m.OriginalTitle, otherTitles,
			movieType, m.Year, m.DurationMin, status, m.Quality, m.Subtitle, m.Plot, m.PosterURL,
			m.BackdropURL, m.TrailerURL, m.IMDBID, m.TMDBID,
			valueOr(ClampViewCount(m.ViewCount), 0), valueOr(ClampRatingAvg(m.RatingAvg), 0),
			valueOr(ClampRatingCount(m.RatingCount), 0)).Scan(&id)
		if err == nil {
			return id, slug, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return uuid.Nil, "", fmt.Errorf("insert movie %q: %w", slug, err)
		}
	}
	return uuid.Nil, "", fmt.Errorf("insert movie %q: no free slug", m.Slug())
}

func slugCandidates(m *catalog.Movie) []string {
	base := m.Slug()
	if base == "" {
		base = "movie"
	}
	out := []string{base}
	if m.Year != nil {
		out = append(out, base+"-"+strconv.Itoa(*m.Year))
	}
	return append(out, base+"-"+uuid.NewString()[:8], base+"-"+uuid.NewString()[:8])
}

// UpdateScalars writes the record's non-nil scalar fields. Nil fields and
// an unknown status never overwrite stored values.
func (r *MovieRepository) UpdateScalars(ctx context.Context, id uuid.UUID, m *catalog.Movie) error {
	var sets []string
	var args []any
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if strings.TrimSpace(m.Title) != "" {
		set("title", m.Title)
	}
	if m.OriginalTitle != nil {
		set("original_title", *m.OriginalTitle)
	}
	if len(m.OtherTitles) > 0 {
		v, err := jsonArg(m.OtherTitles)
		if err != nil {
			return err
		}
		set("other_titles", v)
	}
	if m.Type.Valid() {
		set("type", m.Type)
	}
	if m.Year != nil {
		set("year", *m.Year)
	}
	if m.Status != "" && m.Status != models.MovieStatusUnknown {
		set("status", m.Status)
	}
	if m.DurationMin != nil {
		set("duration_min", *m.DurationMin)
	}
	for _, f := range []struct {
		column string
		value  *string
	}{
		{"quality", m.Quality},
		{"subtitle", m.Subtitle},
		{"plot", m.Plot},
		{"poster_url", m.PosterURL},
		{"backdrop_url", m.BackdropURL},
		{"trailer_url", m.TrailerURL},
		{"imdb_id", m.IMDBID},
		{"tmdb_id", m.TMDBID},
	} {
		if f.value != nil {
			set(f.column, *f.value)
		}
	}
	if v := ClampViewCount(m.ViewCount); v != nil {
		set("view_count", *v)
	}
	if v := ClampRatingAvg(m.RatingAvg); v != nil {
		set("rating_avg", *v)
	}
	if v := ClampRatingCount(m.RatingCount); v != nil {
		set("rating_count", *v)
	}
	if len(sets) == 0 {
		return nil
	}

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE movies SET %s, updated_at = CURRENT_TIMESTAMP WHERE id = $%d`,
		strings.Join(sets, ", "), len(args))
	_, err := r.db.ExecContext(ctx, query, args...)
	return err
}

func (r *MovieRepository) Touch(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `UPDATE movies SET updated_at = CURRENT_TIMESTAMP WHERE id = $1`, id)
	return err
}

// MapSource points a source item at a movie. The map is unique on the
// source item, so a re-matched item moves to the new movie.
func (r *MovieRepository) MapSource(ctx context.Context, movieID, sourceItemID uuid.UUID, matchedBy models.MatchedBy) error {
	query := `INSERT INTO movie_source_map (id, movie_id, source_item_id, confidence, is_primary, matched_by)
		VALUES ($1, $2, $3, $4, TRUE, $5)
		ON CONFLICT (source_item_id) DO UPDATE SET
			movie_id = EXCLUDED.movie_id,
			confidence = EXCLUDED.confidence,
			matched_by = EXCLUDED.matched_by`
	_, err := r.db.ExecContext(ctx, query, uuid.New(), movieID, sourceItemID, matchedBy.Confidence(), matchedBy)
	return err
}

func (r *MovieRepository) GetSourceMap(ctx context.Context, sourceItemID uuid.UUID) (*models.MovieSourceMap, error) {
	m := &models.MovieSourceMap{}
	query := `SELECT id, movie_id, source_item_id, confidence, is_primary, matched_by
		FROM movie_source_map WHERE source_item_id = $1`
	err := r.db.QueryRowContext(ctx, query, sourceItemID).Scan(&m.ID, &m.MovieID, &m.SourceItemID,
		&m.Confidence, &m.IsPrimary, &m.MatchedBy)
	if err != nil {
		return nil, notFound(err)
	}
	return m, nil
}

// ClampRatingAvg bounds the average to [0, 9.99] with two decimals. Non
// finite values are dropped.
func ClampRatingAvg(v *float64) *float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	c := math.Round(math.Min(maxRatingAvg, math.Max(0, *v))*100) / 100
	return &c
}

// ClampRatingCount bounds the count to [0, 2^31-1].
func ClampRatingCount(v *int) *int {
	if v == nil {
		return nil
	}
	c := min(max(*v, 0), maxRatingCount)
	return &c
}

// ClampViewCount bounds views to [0, 2^63-1].
func ClampViewCount(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := max(*v, 0)
	return &c
}

func valueOr[T any](v *T, def T) T {
	if v == nil {
		return def
	}
	return *v
}
