package jobs

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Inline runs each enqueued job immediately in the caller's goroutine. The
// CLI uses it to drive the pipeline without Redis; a discover cascades into
// its detail fetches and their syncs.
//
// Crawl is set after construction since the crawl service itself takes the
// enqueuer.
type Inline struct {
	Crawl Crawler
	Sync  Syncer
}

func (e *Inline) EnqueueDiscover(ctx context.Context, source string, page int) error {
	if e.Crawl == nil {
		return errors.New("inline enqueuer: no crawler")
	}
	_, err := e.Crawl.Discover(ctx, source, page)
	return err
}

func (e *Inline) EnqueueDetail(ctx context.Context, source, externalID string) error {
	if e.Crawl == nil {
		return errors.New("inline enqueuer: no crawler")
	}
	res, err := e.Crawl.FetchDetail(ctx, source, externalID)
	if err != nil {
		return err
	}
	if !res.OK {
		return res.Err
	}
	return nil
}

func (e *Inline) EnqueueSync(ctx context.Context, sourceItemID uuid.UUID) error {
	if e.Sync == nil {
		return nil
	}
	_, err := e.Sync.SyncSourceItem(ctx, sourceItemID)
	return err
}
