package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/JustinTDCT/CineSync/internal/models"
)

type SourceRepository struct {
	db DBTX
}

func NewSourceRepository(db DBTX) *SourceRepository {
	return &SourceRepository{db: db}
}

func (r *SourceRepository) GetByCode(ctx context.Context, code string) (*models.Source, error) {
	s := &models.Source{}
	query := `SELECT id, code, base_url, is_active, created_at FROM sources WHERE code = $1`
	err := r.db.QueryRowContext(ctx, query, code).Scan(&s.ID, &s.Code, &s.BaseURL, &s.IsActive, &s.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("source %q: %w", code, notFound(err))
	}
	return s, nil
}

func (r *SourceRepository) List(ctx context.Context) ([]*models.Source, error) {
	query := `SELECT id, code, base_url, is_active, created_at FROM sources ORDER BY code`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.Source
	for rows.Next() {
		s := &models.Source{}
		if err := rows.Scan(&s.ID, &s.Code, &s.BaseURL, &s.IsActive, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Upsert creates or re-activates a source with the given base URL. Used by
// the seed step.
func (r *SourceRepository) Upsert(ctx context.Context, code, baseURL string) (uuid.UUID, error) {
	var id uuid.UUID
	query := `INSERT INTO sources (id, code, base_url, is_active)
		VALUES ($1, $2, $3, TRUE)
		ON CONFLICT (code) DO UPDATE SET base_url = EXCLUDED.base_url, is_active = TRUE
		RETURNING id`
	err := r.db.QueryRowContext(ctx, query, uuid.New(), code, baseURL).Scan(&id)
	return id, err
}

// FillBaseURL sets the base URL only when none is stored yet.
func (r *SourceRepository) FillBaseURL(ctx context.Context, id uuid.UUID, baseURL string) error {
	query := `UPDATE sources SET base_url = $1 WHERE id = $2 AND (base_url IS NULL OR base_url = '')`
	_, err := r.db.ExecContext(ctx, query, baseURL, id)
	return err
}
