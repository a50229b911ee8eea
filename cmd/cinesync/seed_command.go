package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JustinTDCT/CineSync/internal/crawl"
)

func newSeedCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Register the known catalogs as active sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer ctx.close()
			database, err := ctx.database(cmd.Context())
			if err != nil {
				return err
			}
			if err := crawl.Seed(cmd.Context(), database.DB, crawl.KnownSources); err != nil {
				return err
			}
			for _, s := range crawl.KnownSources {
				fmt.Fprintf(cmd.OutOrStdout(), "seeded %s -> %s\n", s.Code, s.BaseURL)
			}
			return nil
		},
	}
}
