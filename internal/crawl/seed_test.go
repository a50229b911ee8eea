package crawl

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JustinTDCT/CineSync/internal/repository"
	"github.com/JustinTDCT/CineSync/internal/testutil"
)

func TestSeedIsIdempotent(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()

	require.NoError(t, Seed(ctx, db, KnownSources))
	_, err := db.Exec(`UPDATE sources SET is_active = FALSE WHERE code = 'kkphim'`)
	require.NoError(t, err)
	require.NoError(t, Seed(ctx, db, KnownSources))

	assert.Equal(t, 2, testutil.Count(t, db, "sources", "is_active = TRUE"))
	src, err := repository.NewSourceRepository(db).GetByCode(ctx, "ophim")
	require.NoError(t, err)
	require.NotNil(t, src.BaseURL)
	assert.Equal(t, "https://ophim1.com", *src.BaseURL)
}
