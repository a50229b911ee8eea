package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/JustinTDCT/CineSync/internal/models"
)

const sourceItemColumns = `si.id, si.source_id, s.code, si.external_id, si.external_url, si.type, si.title,
	si.year, si.payload, si.content_hash, si.crawl_status, si.last_crawled_at, si.created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSourceItem(row rowScanner) (*models.SourceItem, error) {
	item := &models.SourceItem{}
	var payload []byte
	err := row.Scan(&item.ID, &item.SourceID, &item.SourceCode, &item.ExternalID, &item.ExternalURL,
		&item.Type, &item.Title, &item.Year, &payload, &item.ContentHash, &item.CrawlStatus,
		&item.LastCrawledAt, &item.CreatedAt)
	if err != nil {
		return nil, err
	}
	if len(payload) > 0 {
		item.Payload = json.RawMessage(payload)
	}
	return item, nil
}

type SourceItemRepository struct {
	db DBTX
}

func NewSourceItemRepository(db DBTX) *SourceItemRepository {
	return &SourceItemRepository{db: db}
}

// Get loads a source item together with its source code.
func (r *SourceItemRepository) Get(ctx context.Context, id uuid.UUID) (*models.SourceItem, error) {
	query := `SELECT ` + sourceItemColumns + `
		FROM source_items si JOIN sources s ON s.id = si.source_id
		WHERE si.id = $1`
	item, err := scanSourceItem(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err)
	}
	return item, nil
}

func (r *SourceItemRepository) GetByExternalID(ctx context.Context, sourceID uuid.UUID, externalID string) (*models.SourceItem, error) {
	query := `SELECT ` + sourceItemColumns + `
		FROM source_items si JOIN sources s ON s.id = si.source_id
		WHERE si.source_id = $1 AND si.external_id = $2`
	item, err := scanSourceItem(r.db.QueryRowContext(ctx, query, sourceID, externalID))
	if err != nil {
		return nil, notFound(err)
	}
	return item, nil
}

// UpsertDiscovered records a list-page observation. Fields the page did not
// provide keep their stored values; payload and fingerprint are untouched.
func (r *SourceItemRepository) UpsertDiscovered(ctx context.Context, sourceID uuid.UUID, d models.DiscoveredItem) (uuid.UUID, error) {
	var itemType *string
	if d.Type != nil {
		t := string(*d.Type)
		itemType = &t
	}
	var id uuid.UUID
	query := `INSERT INTO source_items (id, source_id, external_id, external_url, type, title, year, crawl_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'unknown')
		ON CONFLICT (source_id, external_id) DO UPDATE SET
			external_url = COALESCE(EXCLUDED.external_url, source_items.external_url),
			type = COALESCE(EXCLUDED.type, source_items.type),
			title = COALESCE(EXCLUDED.title, source_items.title),
			year = COALESCE(EXCLUDED.year, source_items.year)
		RETURNING id`
	err := r.db.QueryRowContext(ctx, query, uuid.New(), sourceID, d.ExternalID, d.ExternalURL,
		itemType, d.Title, d.Year).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("upsert source item %q: %w", d.ExternalID, err)
	}
	return id, nil
}

// CreateDetail stores the first detail fetch of an item. A row created
// concurrently for the same key is overwritten with this payload.
func (r *SourceItemRepository) CreateDetail(ctx context.Context, sourceID uuid.UUID, externalID string, payload json.RawMessage, hash string) (uuid.UUID, error) {
	p, err := jsonArg(payload)
	if err != nil {
		return uuid.Nil, err
	}
	var id uuid.UUID
	query := `INSERT INTO source_items (id, source_id, external_id, payload, content_hash, crawl_status, last_crawled_at)
		VALUES ($1, $2, $3, $4, $5, 'ok', CURRENT_TIMESTAMP)
		ON CONFLICT (source_id, external_id) DO UPDATE SET
			payload = EXCLUDED.payload,
			content_hash = EXCLUDED.content_hash,
			crawl_status = 'ok',
			last_crawled_at = CURRENT_TIMESTAMP
		RETURNING id`
	err = r.db.QueryRowContext(ctx, query, uuid.New(), sourceID, externalID, p, hash).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create source item %q: %w", externalID, err)
	}
	return id, nil
}

// UpdateDetail replaces the payload and fingerprint after a changed fetch.
func (r *SourceItemRepository) UpdateDetail(ctx context.Context, id uuid.UUID, payload json.RawMessage, hash string) error {
	p, err := jsonArg(payload)
	if err != nil {
		return err
	}
	query := `UPDATE source_items
		SET payload = $1, content_hash = $2, crawl_status = 'ok', last_crawled_at = CURRENT_TIMESTAMP
		WHERE id = $3`
	_, err = r.db.ExecContext(ctx, query, p, hash, id)
	return err
}

// TouchCrawled records an unchanged fetch.
func (r *SourceItemRepository) TouchCrawled(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `UPDATE source_items SET last_crawled_at = CURRENT_TIMESTAMP WHERE id = $1`, id)
	return err
}

func (r *SourceItemRepository) MarkError(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `UPDATE source_items SET crawl_status = 'error' WHERE id = $1`, id)
	return err
}

// ListMergeable returns the items mapped to a movie that have a successful
// fetch and a payload, oldest first.
func (r *SourceItemRepository) ListMergeable(ctx context.Context, movieID uuid.UUID) ([]*models.SourceItem, error) {
	query := `SELECT ` + sourceItemColumns + `
		FROM movie_source_map msm
		JOIN source_items si ON si.id = msm.source_item_id
		JOIN sources s ON s.id = si.source_id
		WHERE msm.movie_id = $1 AND si.crawl_status = 'ok' AND si.payload IS NOT NULL
		ORDER BY si.created_at, si.id`
	rows, err := r.db.QueryContext(ctx, query, movieID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*models.SourceItem
	for rows.Next() {
		item, err := scanSourceItem(rows)
		if err != nil {
			return nil, err
		}
		if item.HasPayload() {
			items = append(items, item)
		}
	}
	return items, rows.Err()
}
