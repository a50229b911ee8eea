package crawl

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/JustinTDCT/CineSync/internal/db"
	"github.com/JustinTDCT/CineSync/internal/repository"
)

// KnownSource is a catalog the seed step registers.
type KnownSource struct {
	Code    string
	BaseURL string
}

var KnownSources = []KnownSource{
	{Code: "ophim", BaseURL: "https://ophim1.com"},
	{Code: "kkphim", BaseURL: "https://phimapi.com"},
}

// Seed upserts every known source as active, in one transaction.
func Seed(ctx context.Context, database *sql.DB, known []KnownSource) error {
	return db.WithTx(ctx, database, func(tx *sql.Tx) error {
		repo := repository.NewSourceRepository(tx)
		for _, s := range known {
			if _, err := repo.Upsert(ctx, s.Code, s.BaseURL); err != nil {
				return fmt.Errorf("seed source %s: %w", s.Code, err)
			}
		}
		return nil
	})
}
