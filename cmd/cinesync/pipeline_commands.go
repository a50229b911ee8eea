package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/JustinTDCT/CineSync/internal/crawl"
)

// pipelineFor returns inline services, or services that hand work to the
// Redis queue.
func (c *commandContext) pipelineFor(ctx context.Context, inline bool) (*pipeline, error) {
	if inline {
		return c.newPipeline(ctx, nil)
	}
	q, err := c.newQueue(ctx)
	if err != nil {
		return nil, err
	}
	return c.newPipeline(ctx, q)
}

func newDiscoverCommand(ctx *commandContext) *cobra.Command {
	var page, concurrency int
	var inline bool

	cmd := &cobra.Command{
		Use:   "discover [source]",
		Short: "Discover a list page of one source, or of every enabled source",
		Long: "Discover fetches a list page and queues a detail fetch per item. With --inline the\n" +
			"details and their syncs run in this process instead of the Redis queue.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()
			p, err := ctx.pipelineFor(cmd.Context(), inline)
			if err != nil {
				return err
			}
			if len(args) == 0 {
				return writeJSON(cmd, p.crawl.DiscoverAll(cmd.Context(), page, concurrency))
			}
			if !inline {
				if err := p.crawl.EnqueueDiscover(cmd.Context(), args[0], page); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "queued discover %s page %d\n", args[0], page)
				return nil
			}
			res, err := p.crawl.Discover(cmd.Context(), args[0], page)
			if err != nil {
				return err
			}
			return writeJSON(cmd, res)
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "List page to fetch")
	cmd.Flags().IntVar(&concurrency, "concurrency", 2, "Sources discovered at once when no source is given")
	cmd.Flags().BoolVar(&inline, "inline", false, "Run the pipeline in this process")
	return cmd
}

func newDetailCommand(ctx *commandContext) *cobra.Command {
	var inline bool

	cmd := &cobra.Command{
		Use:   "detail <source> <externalId>",
		Short: "Fetch one item's detail payload",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()
			p, err := ctx.pipelineFor(cmd.Context(), inline)
			if err != nil {
				return err
			}
			if !inline {
				if err := p.crawl.EnqueueDetail(cmd.Context(), args[0], args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "queued detail %s/%s\n", args[0], args[1])
				return nil
			}
			res, err := p.crawl.FetchDetail(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return writeJSON(cmd, res)
		},
	}
	cmd.Flags().BoolVar(&inline, "inline", false, "Run the pipeline in this process")
	return cmd
}

func newSyncCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sync <sourceItemId>",
		Short: "Merge one source item into the movie graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid source item id %q: %w", args[0], err)
			}
			p, err := ctx.newPipeline(cmd.Context(), nil)
			if err != nil {
				return err
			}
			res, err := p.sync.SyncSourceItem(cmd.Context(), id)
			if err != nil {
				return err
			}
			if res == nil {
				return fmt.Errorf("source item %s not found", id)
			}
			return writeJSON(cmd, res)
		},
	}
}

func sourceRows(statuses []crawl.SourceStatus) [][]string {
	rows := make([][]string, 0, len(statuses))
	for _, st := range statuses {
		enabled := "no"
		if st.Enabled {
			enabled = "yes"
		}
		rows = append(rows, []string{st.Code, st.BaseURL, enabled, st.Reason})
	}
	return rows
}

func newSourcesCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "sources",
		Short: "List configured sources and whether they are enabled",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()
			p, err := ctx.newPipeline(cmd.Context(), nil)
			if err != nil {
				return err
			}
			statuses := p.crawl.Sources()
			if asJSON {
				return writeJSON(cmd, statuses)
			}
			if len(statuses) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no sources configured")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Source", "Base URL", "Enabled", "Reason"},
				sourceRows(statuses),
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	return cmd
}
