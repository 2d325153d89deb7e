package main

import (
	"github.com/spf13/cobra"

	"github.com/epalmerini/soundcheck/internal/tui"
)

func newTUICommand(rootOpts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tui [scenario-dir]",
		Short: "Browse and run scenarios interactively",
		Long: `Open the interactive browser over a scenario directory. The
directory defaults to the profile's scenario dir, then to the current
directory.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return commandErr("configuration", err)
			}

			dir := cfg.ScenarioDir
			if len(args) == 1 {
				dir = args[0]
			}
			if dir == "" {
				dir = "."
			}

			return tui.Run(cfg, rootOpts.Profile, dir)
		},
	}
}
