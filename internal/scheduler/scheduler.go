package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultSpec runs a discover of page 1 every ten minutes.
const DefaultSpec = "@every 10m"

const enqueueTimeout = 30 * time.Second

// DiscoverEnqueuer queues a page 1 discover for a source. Repeated calls for
// the same source collapse into one pending job.
type DiscoverEnqueuer interface {
	EnqueueScheduledDiscover(ctx context.Context, source string) error
}

// Scheduler enqueues a periodic discover for every enabled source.
type Scheduler struct {
	cron     *cron.Cron
	enqueuer DiscoverEnqueuer
	logger   *zap.Logger
}

// New registers one cron entry per source code. spec accepts standard
// five-field expressions and descriptors such as "@every 10m".
func New(spec string, codes []string, enqueuer DiscoverEnqueuer, logger *zap.Logger) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultSpec
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		cron:     cron.New(),
		enqueuer: enqueuer,
		logger:   logger.With(zap.String("component", "scheduler")),
	}
	for _, code := range codes {
		if _, err := s.cron.AddFunc(spec, s.job(code)); err != nil {
			return nil, fmt.Errorf("schedule discover %s with %q: %w", code, spec, err)
		}
		s.logger.Info("discover scheduled", zap.String("source", code), zap.String("spec", spec))
	}
	return s, nil
}

func (s *Scheduler) job(code string) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), enqueueTimeout)
		defer cancel()
		if err := s.enqueuer.EnqueueScheduledDiscover(ctx, code); err != nil {
			s.logger.Error("enqueue scheduled discover failed", zap.String("source", code), zap.Error(err))
			return
		}
		s.logger.Debug("scheduled discover enqueued", zap.String("source", code))
	}
}

// Len reports the number of registered entries.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

// RunNow fires every entry once, synchronously.
func (s *Scheduler) RunNow() {
	for _, e := range s.cron.Entries() {
		e.Job.Run()
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", zap.Int("entries", s.Len()))
}

// Stop stops the cron loop and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}
