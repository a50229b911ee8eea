package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ──────────────────── Enums ────────────────────

type CrawlStatus string

const (
	CrawlUnknown CrawlStatus = "unknown"
	CrawlOK      CrawlStatus = "ok"
	CrawlError   CrawlStatus = "error"
)

type MovieType string

const (
	MovieTypeSingle MovieType = "single"
	MovieTypeSeries MovieType = "series"
)

// Valid reports whether t is one of the known movie types.
func (t MovieType) Valid() bool {
	return t == MovieTypeSingle || t == MovieTypeSeries
}

type MovieStatus string

const (
	MovieStatusOngoing   MovieStatus = "ongoing"
	MovieStatusCompleted MovieStatus = "completed"
	MovieStatusUpcoming  MovieStatus = "upcoming"
	MovieStatusUnknown   MovieStatus = "unknown"
)

type MatchedBy string

const (
	MatchedByIMDB      MatchedBy = "imdb"
	MatchedByTMDB      MatchedBy = "tmdb"
	MatchedByTitleYear MatchedBy = "title_year"
	MatchedByOther     MatchedBy = "other"
)

// Confidence is the match confidence stored in movie_source_map.
func (m MatchedBy) Confidence() float64 {
	switch m {
	case MatchedByIMDB:
		return 1.0
	case MatchedByTMDB:
		return 0.95
	case MatchedByTitleYear:
		return 0.8
	default:
		return 0.9
	}
}

type RoleType string

const (
	RoleActor    RoleType = "actor"
	RoleDirector RoleType = "director"
	RoleWriter   RoleType = "writer"
	RoleProducer RoleType = "producer"
	RoleOther    RoleType = "other"
)

type VideoKind string

const (
	VideoKindEmbed    VideoKind = "embed"
	VideoKindHLS      VideoKind = "hls"
	VideoKindMP4      VideoKind = "mp4"
	VideoKindExternal VideoKind = "external"
)

type LogLevel string

const (
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// ──────────────────── Source ────────────────────

type Source struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Code      string    `json:"code" db:"code"`
	BaseURL   *string   `json:"base_url,omitempty" db:"base_url"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ──────────────────── Source Item ────────────────────

type SourceItem struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	SourceID      uuid.UUID       `json:"source_id" db:"source_id"`
	SourceCode    string          `json:"source_code" db:"-"`
	ExternalID    string          `json:"external_id" db:"external_id"`
	ExternalURL   *string         `json:"external_url,omitempty" db:"external_url"`
	Type          *string         `json:"type,omitempty" db:"type"`
	Title         *string         `json:"title,omitempty" db:"title"`
	Year          *int            `json:"year,omitempty" db:"year"`
	Payload       json.RawMessage `json:"payload,omitempty" db:"payload"`
	ContentHash   *string         `json:"content_hash,omitempty" db:"content_hash"`
	CrawlStatus   CrawlStatus     `json:"crawl_status" db:"crawl_status"`
	LastCrawledAt *time.Time      `json:"last_crawled_at,omitempty" db:"last_crawled_at"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

// HasPayload reports whether the item carries a non-empty JSON payload.
func (s *SourceItem) HasPayload() bool {
	if len(s.Payload) == 0 {
		return false
	}
	switch string(s.Payload) {
	case "null", "{}", "[]", `""`:
		return false
	}
	return true
}

// DiscoveredItem is the lightweight view of a program returned by a list page.
type DiscoveredItem struct {
	ExternalID  string     `json:"external_id"`
	ExternalURL *string    `json:"external_url,omitempty"`
	Type        *MovieType `json:"type,omitempty"`
	Title       *string    `json:"title,omitempty"`
	Year        *int       `json:"year,omitempty"`
}

// ──────────────────── Movie ────────────────────

type Movie struct {
	ID            uuid.UUID   `json:"id" db:"id"`
	Slug          string      `json:"slug" db:"slug"`
	Title         string      `json:"title" db:"title"`
	OriginalTitle *string     `json:"original_title,omitempty" db:"original_title"`
	OtherTitles   []string    `json:"other_titles,omitempty" db:"other_titles"`
	Type          MovieType   `json:"type" db:"type"`
	Year          *int        `json:"year,omitempty" db:"year"`
	DurationMin   *int        `json:"duration_min,omitempty" db:"duration_min"`
	Status        MovieStatus `json:"status" db:"status"`
	Quality       *string     `json:"quality,omitempty" db:"quality"`
	Subtitle      *string     `json:"subtitle,omitempty" db:"subtitle"`
	Plot          *string     `json:"plot,omitempty" db:"plot"`
	PosterURL     *string     `json:"poster_url,omitempty" db:"poster_url"`
	BackdropURL   *string     `json:"backdrop_url,omitempty" db:"backdrop_url"`
	TrailerURL    *string     `json:"trailer_url,omitempty" db:"trailer_url"`
	IMDBID        *string     `json:"imdb_id,omitempty" db:"imdb_id"`
	TMDBID        *string     `json:"tmdb_id,omitempty" db:"tmdb_id"`
	ViewCount     int64       `json:"view_count" db:"view_count"`
	RatingAvg     float64     `json:"rating_avg" db:"rating_avg"`
	RatingCount   int         `json:"rating_count" db:"rating_count"`
	IsActive      bool        `json:"is_active" db:"is_active"`
	CreatedAt     time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at" db:"updated_at"`
}

type MovieSourceMap struct {
	ID           uuid.UUID `json:"id" db:"id"`
	MovieID      uuid.UUID `json:"movie_id" db:"movie_id"`
	SourceItemID uuid.UUID `json:"source_item_id" db:"source_item_id"`
	Confidence   float64   `json:"confidence" db:"confidence"`
	IsPrimary    bool      `json:"is_primary" db:"is_primary"`
	MatchedBy    MatchedBy `json:"matched_by" db:"matched_by"`
}

// ──────────────────── Episodes & Streams ────────────────────

type Season struct {
	ID           uuid.UUID `json:"id" db:"id"`
	MovieID      uuid.UUID `json:"movie_id" db:"movie_id"`
	SeasonNumber int       `json:"season_number" db:"season_number"`
	Title        *string   `json:"title,omitempty" db:"title"`
}

type Episode struct {
	ID            uuid.UUID `json:"id" db:"id"`
	MovieID       uuid.UUID `json:"movie_id" db:"movie_id"`
	SeasonID      uuid.UUID `json:"season_id" db:"season_id"`
	EpisodeNumber int       `json:"episode_number" db:"episode_number"`
	Name          string    `json:"name" db:"name"`
	IsActive      bool      `json:"is_active" db:"is_active"`
}

type VideoServer struct {
	ID        uuid.UUID `json:"id" db:"id"`
	EpisodeID uuid.UUID `json:"episode_id" db:"episode_id"`
	Name      string    `json:"name" db:"name"`
	Kind      VideoKind `json:"kind" db:"kind"`
	Priority  int       `json:"priority" db:"priority"`
	IsActive  bool      `json:"is_active" db:"is_active"`
}

type VideoStream struct {
	ID       uuid.UUID         `json:"id" db:"id"`
	ServerID uuid.UUID         `json:"server_id" db:"server_id"`
	Label    string            `json:"label" db:"label"`
	URL      string            `json:"url" db:"url"`
	Headers  map[string]string `json:"headers,omitempty" db:"headers"`
	Priority int               `json:"priority" db:"priority"`
	Checksum string            `json:"checksum" db:"checksum"`
	IsActive bool              `json:"is_active" db:"is_active"`
}

// ──────────────────── Crawl Log ────────────────────

type CrawlLog struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	JobID        *string         `json:"job_id,omitempty" db:"job_id"`
	SourceItemID *uuid.UUID      `json:"source_item_id,omitempty" db:"source_item_id"`
	Level        LogLevel        `json:"level" db:"level"`
	Message      string          `json:"message" db:"message"`
	Meta         json.RawMessage `json:"meta,omitempty" db:"meta"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}
