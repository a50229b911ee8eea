package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/JustinTDCT/CineSync/internal/catalog"
	"github.com/JustinTDCT/CineSync/internal/models"
)

// maxCountryCode is the width of countries.code.
const maxCountryCode = 16

// TaxonomyKind selects the genre or tag tables.
type TaxonomyKind struct {
	table     string
	joinTable string
	column    string
}

var (
	Genres = TaxonomyKind{table: "genres", joinTable: "movie_genres", column: "genre_id"}
	Tags   = TaxonomyKind{table: "tags", joinTable: "movie_tags", column: "tag_id"}
)

// GraphRepository writes the movie graph: taxonomies, people, seasons,
// episodes, servers and streams. Every write is an upsert on the natural
// key, so replaying a sync converges on the same rows.
type GraphRepository struct {
	db DBTX
}

func NewGraphRepository(db DBTX) *GraphRepository {
	return &GraphRepository{db: db}
}

// ──────────────────── Taxonomies ────────────────────

// UpsertTaxonomy upserts a genre or tag by slug. ok is false when the item
// has no usable slug.
func (r *GraphRepository) UpsertTaxonomy(ctx context.Context, kind TaxonomyKind, t catalog.Taxonomy) (id uuid.UUID, ok bool, err error) {
	name := strings.TrimSpace(t.Name)
	slug := strings.TrimSpace(t.Slug)
	if slug == "" {
		slug = catalog.Slugify(name)
	}
	if name == "" || slug == "" {
		return uuid.Nil, false, nil
	}
	query := fmt.Sprintf(`INSERT INTO %s (id, name, slug) VALUES ($1, $2, $3)
		ON CONFLICT (slug) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`, kind.table)
	if err := r.db.QueryRowContext(ctx, query, uuid.New(), name, slug).Scan(&id); err != nil {
		return uuid.Nil, false, fmt.Errorf("upsert %s %q: %w", kind.table, slug, err)
	}
	return id, true, nil
}

// LinkTaxonomy adds a movie link if absent. Links are never removed here.
func (r *GraphRepository) LinkTaxonomy(ctx context.Context, kind TaxonomyKind, movieID, id uuid.UUID) error {
	query := fmt.Sprintf(`INSERT INTO %s (movie_id, %s) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		kind.joinTable, kind.column)
	_, err := r.db.ExecContext(ctx, query, movieID, id)
	return err
}

// UpsertCountry upserts by code when one is present. Without a code the
// first country with the same name is reused, or a code-less row is added.
func (r *GraphRepository) UpsertCountry(ctx context.Context, t catalog.Taxonomy) (id uuid.UUID, ok bool, err error) {
	name := strings.TrimSpace(t.Name)
	if name == "" {
		return uuid.Nil, false, nil
	}
	code := strings.TrimSpace(t.Code)
	if len(code) > maxCountryCode {
		code = code[:maxCountryCode]
	}

	if code != "" {
		query := `INSERT INTO countries (id, code, name) VALUES ($1, $2, $3)
			ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name
			RETURNING id`
		if err := r.db.QueryRowContext(ctx, query, uuid.New(), code, name).Scan(&id); err != nil {
			return uuid.Nil, false, fmt.Errorf("upsert country %q: %w", code, err)
		}
		return id, true, nil
	}

	id, err = findID(ctx, r.db, `SELECT id FROM countries WHERE name = $1 ORDER BY id LIMIT 1`, name)
	if err == nil {
		return id, true, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return uuid.Nil, false, err
	}
	id = uuid.New()
	if _, err := r.db.ExecContext(ctx, `INSERT INTO countries (id, name) VALUES ($1, $2)`, id, name); err != nil {
		return uuid.Nil, false, fmt.Errorf("insert country %q: %w", name, err)
	}
	return id, true, nil
}

func (r *GraphRepository) LinkCountry(ctx context.Context, movieID, countryID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO movie_countries (movie_id, country_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		movieID, countryID)
	return err
}

// ──────────────────── People ────────────────────

// UpsertPerson upserts by slug. Avatar and bio are only replaced by
// non-empty values.
func (r *GraphRepository) UpsertPerson(ctx context.Context, p catalog.Person) (id uuid.UUID, ok bool, err error) {
	name := strings.TrimSpace(p.Name)
	slug := strings.TrimSpace(p.Slug)
	if slug == "" {
		slug = catalog.Slugify(name)
	}
	if name == "" || slug == "" {
		return uuid.Nil, false, nil
	}
	query := `INSERT INTO people (id, name, slug, avatar_url, bio) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (slug) DO UPDATE SET
			name = EXCLUDED.name,
			avatar_url = COALESCE(EXCLUDED.avatar_url, people.avatar_url),
			bio = COALESCE(EXCLUDED.bio, people.bio)
		RETURNING id`
	err = r.db.QueryRowContext(ctx, query, uuid.New(), name, slug,
		catalog.StringPtr(p.AvatarURL), catalog.StringPtr(p.Bio)).Scan(&id)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("upsert person %q: %w", slug, err)
	}
	return id, true, nil
}

// FindPersonByName returns the first person whose trimmed name equals name.
func (r *GraphRepository) FindPersonByName(ctx context.Context, name string) (uuid.UUID, error) {
	return findID(ctx, r.db, `SELECT id FROM people WHERE trim(name) = $1 ORDER BY id LIMIT 1`, strings.TrimSpace(name))
}

// SetAvatarIfMissing fills a person's avatar when it is empty.
func (r *GraphRepository) SetAvatarIfMissing(ctx context.Context, id uuid.UUID, avatarURL string) error {
	query := `UPDATE people SET avatar_url = $1 WHERE id = $2 AND (avatar_url IS NULL OR avatar_url = '')`
	_, err := r.db.ExecContext(ctx, query, avatarURL, id)
	return err
}

// LinkPerson adds a role link if absent.
func (r *GraphRepository) LinkPerson(ctx context.Context, movieID, personID uuid.UUID, role models.RoleType, character *string, order int) error {
	query := `INSERT INTO movie_people (movie_id, person_id, role_type, character_name, order_index)
		VALUES ($1, $2, $3, $4, $5) ON CONFLICT DO NOTHING`
	_, err := r.db.ExecContext(ctx, query, movieID, personID, role, character, order)
	return err
}

// ──────────────────── Seasons & Episodes ────────────────────

func (r *GraphRepository) UpsertSeason(ctx context.Context, movieID uuid.UUID, number int) (uuid.UUID, error) {
	var id uuid.UUID
	query := `INSERT INTO seasons (id, movie_id, season_number, title) VALUES ($1, $2, $3, $4)
		ON CONFLICT (movie_id, season_number) DO UPDATE SET title = EXCLUDED.title
		RETURNING id`
	err := r.db.QueryRowContext(ctx, query, uuid.New(), movieID, number, "Season "+strconv.Itoa(number)).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("upsert season %d: %w", number, err)
	}
	return id, nil
}

// UpsertEpisode upserts by (movie, season, number) and marks it active.
func (r *GraphRepository) UpsertEpisode(ctx context.Context, movieID, seasonID uuid.UUID, number int, name string) (uuid.UUID, error) {
	var id uuid.UUID
	query := `INSERT INTO episodes (id, movie_id, season_id, episode_number, name, is_active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		ON CONFLICT (movie_id, season_id, episode_number) DO UPDATE SET name = EXCLUDED.name, is_active = TRUE
		RETURNING id`
	err := r.db.QueryRowContext(ctx, query, uuid.New(), movieID, seasonID, number, name).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("upsert episode %d: %w", number, err)
	}
	return id, nil
}

// ──────────────────── Servers & Streams ────────────────────

func (r *GraphRepository) UpsertServer(ctx context.Context, episodeID uuid.UUID, name string, kind models.VideoKind, priority int) (uuid.UUID, error) {
	var id uuid.UUID
	query := `INSERT INTO video_servers (id, episode_id, name, kind, priority, is_active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		ON CONFLICT (episode_id, name) DO UPDATE SET kind = EXCLUDED.kind, priority = EXCLUDED.priority, is_active = TRUE
		RETURNING id`
	err := r.db.QueryRowContext(ctx, query, uuid.New(), episodeID, name, kind, priority).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("upsert server %q: %w", name, err)
	}
	return id, nil
}

// UpsertStream upserts by (server, checksum), refreshing its fields and
// forcing it active.
func (r *GraphRepository) UpsertStream(ctx context.Context, serverID uuid.UUID, s catalog.Stream, checksum string, priority int) error {
	headers, err := jsonArg(s.Headers)
	if err != nil {
		return err
	}
	query := `INSERT INTO video_streams (id, server_id, label, url, headers, priority, is_active, checksum)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7)
		ON CONFLICT (server_id, checksum) DO UPDATE SET
			label = EXCLUDED.label,
			url = EXCLUDED.url,
			headers = EXCLUDED.headers,
			priority = EXCLUDED.priority,
			is_active = TRUE`
	_, err = r.db.ExecContext(ctx, query, uuid.New(), serverID, s.Label, s.URL, headers, priority, checksum)
	if err != nil {
		return fmt.Errorf("upsert stream %s: %w", checksum, err)
	}
	return nil
}

// DeactivateStreamsExcept marks inactive every stream of the server whose
// checksum is not in keep. Rows are never deleted.
func (r *GraphRepository) DeactivateStreamsExcept(ctx context.Context, serverID uuid.UUID, keep []string) (int64, error) {
	args := []any{serverID}
	query := `UPDATE video_streams SET is_active = FALSE WHERE server_id = $1 AND is_active = TRUE`
	if len(keep) > 0 {
		marks := make([]string, len(keep))
		for i, c := range keep {
			args = append(args, c)
			marks[i] = "$" + strconv.Itoa(i+2)
		}
		query += ` AND checksum NOT IN (` + strings.Join(marks, ", ") + `)`
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// StreamState is a stream row as seen by liveness checks.
type StreamState struct {
	Checksum string
	URL      string
	Label    string
	Priority int
	IsActive bool
}

// ListServerStreams returns the streams of one episode server keyed by
// checksum.
func (r *GraphRepository) ListServerStreams(ctx context.Context, episodeID uuid.UUID, serverName string) (map[string]StreamState, error) {
	query := `SELECT vs.checksum, vs.url, COALESCE(vs.label, ''), vs.priority, vs.is_active
		FROM video_streams vs JOIN video_servers sv ON sv.id = vs.server_id
		WHERE sv.episode_id = $1 AND sv.name = $2`
	rows, err := r.db.QueryContext(ctx, query, episodeID, serverName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]StreamState{}
	for rows.Next() {
		var s StreamState
		if err := rows.Scan(&s.Checksum, &s.URL, &s.Label, &s.Priority, &s.IsActive); err != nil {
			return nil, err
		}
		out[s.Checksum] = s
	}
	return out, rows.Err()
}

func findID(ctx context.Context, db DBTX, query string, args ...any) (uuid.UUID, error) {
	var id uuid.UUID
	if err := db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return uuid.Nil, notFound(err)
	}
	return id, nil
}
