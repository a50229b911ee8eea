package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JustinTDCT/CineSync/internal/models"
)

// CrawlLogRepository stores the audit trail of discover, detail and sync
// failures. Entries are written outside any pipeline transaction.
type CrawlLogRepository struct {
	db DBTX
}

func NewCrawlLogRepository(db DBTX) *CrawlLogRepository {
	return &CrawlLogRepository{db: db}
}

func (r *CrawlLogRepository) Create(ctx context.Context, entry *models.CrawlLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	meta, err := jsonArg(entry.Meta)
	if err != nil {
		return err
	}
	query := `INSERT INTO crawl_logs (id, job_id, source_item_id, level, message, meta)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := r.db.ExecContext(ctx, query, entry.ID, entry.JobID, entry.SourceItemID, entry.Level,
		entry.Message, meta); err != nil {
		return fmt.Errorf("insert crawl log: %w", err)
	}
	entry.CreatedAt = time.Now().UTC()
	return nil
}

// Log is a convenience wrapper that encodes meta as JSON.
func (r *CrawlLogRepository) Log(ctx context.Context, level models.LogLevel, jobID *string, sourceItemID *uuid.UUID, message string, meta map[string]any) error {
	entry := &models.CrawlLog{JobID: jobID, SourceItemID: sourceItemID, Level: level, Message: message}
	if len(meta) > 0 {
		b, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		entry.Meta = b
	}
	return r.Create(ctx, entry)
}

func (r *CrawlLogRepository) ListRecent(ctx context.Context, limit int) ([]*models.CrawlLog, error) {
	query := `SELECT id, job_id, source_item_id, level, message, meta, created_at
		FROM crawl_logs ORDER BY created_at DESC, id LIMIT $1`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var logs []*models.CrawlLog
	for rows.Next() {
		entry := &models.CrawlLog{}
		var meta []byte
		var sourceItemID uuid.NullUUID
		if err := rows.Scan(&entry.ID, &entry.JobID, &sourceItemID, &entry.Level, &entry.Message,
			&meta, &entry.CreatedAt); err != nil {
			return nil, err
		}
		if sourceItemID.Valid {
			id := sourceItemID.UUID
			entry.SourceItemID = &id
		}
		if len(meta) > 0 {
			entry.Meta = json.RawMessage(meta)
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}
