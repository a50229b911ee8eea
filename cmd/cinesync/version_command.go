package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JustinTDCT/CineSync/internal/version"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info, _ := version.Load("version.json")
			fmt.Fprintf(cmd.OutOrStdout(), "cinesync %s\n", info)
			return nil
		},
	}
}
