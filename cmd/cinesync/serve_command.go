package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JustinTDCT/CineSync/internal/api"
	"github.com/JustinTDCT/CineSync/internal/jobs"
	"github.com/JustinTDCT/CineSync/internal/repository"
	"github.com/JustinTDCT/CineSync/internal/scheduler"
	"github.com/JustinTDCT/CineSync/internal/version"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the workers, the discover schedule and the trigger API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()
			return runServe(cmd.Context(), ctx)
		},
	}
}

func runServe(parent context.Context, ctx *commandContext) error {
	signalCtx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, logger, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	ver, verErr := version.Load("version.json")
	logger.Info("cinesync starting", zap.Stringer("version", ver))
	if verErr != nil {
		logger.Debug("version file unavailable", zap.Error(verErr))
	}

	queue, err := ctx.newQueue(signalCtx)
	if err != nil {
		return err
	}
	p, err := ctx.newPipeline(signalCtx, queue)
	if err != nil {
		return err
	}
	for _, st := range p.crawl.Sources() {
		if !st.Enabled {
			logger.Warn("source disabled", zap.String("source", st.Code), zap.String("reason", st.Reason))
		}
	}

	jobs.RegisterHandlers(queue, p.crawl, p.sync, logger)
	if err := queue.Start(); err != nil {
		return err
	}

	sched, err := scheduler.New(cfg.DiscoverSchedule, p.crawl.EnabledCodes(), queue, logger)
	if err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	httpServer := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      api.NewServer(p.crawl, p.sync, repository.NewCrawlLogRepository(p.db.DB), p.registry, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.Int("port", cfg.Port))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-signalCtx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	logger.Info("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	return httpServer.Shutdown(shutdownCtx)
}
