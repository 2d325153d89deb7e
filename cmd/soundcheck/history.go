package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/epalmerini/soundcheck/internal/history"
)

func newHistoryCommand(rootOpts *rootOptions) *cobra.Command {
	var limit int64

	cmd := &cobra.Command{
		Use:           "history",
		Short:         "Show recent scenario runs",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return showHistory(rootOpts, limit, cmd)
		},
	}

	cmd.Flags().Int64VarP(&limit, "limit", "n", 20, "number of runs to show")

	return cmd
}

func showHistory(opts *rootOptions, limit int64, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return commandErr("configuration", err)
	}

	store, err := history.NewStore(cfg.HistoryPath)
	if err != nil {
		return commandErr("open history", err)
	}
	defer func() { _ = store.Close() }()

	runs, err := store.RecentRuns(cmd.Context(), limit)
	if err != nil {
		return commandErr("read history", err)
	}

	w := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded yet.")
		return nil
	}

	for _, run := range runs {
		verdict := failVerdict.Render("FAIL")
		if run.OK {
			verdict = passVerdict.Render("PASS")
		}
		profile := run.Profile
		if profile == "" {
			profile = "-"
		}
		took := run.Finished.Sub(run.Started).Round(time.Millisecond)
		fmt.Fprintf(w, "%s  %s  %-24s %-12s %d/%d checks  %s\n",
			run.Started.Local().Format("2006-01-02 15:04:05"),
			verdict, run.Scenario, profile,
			run.Checks-run.Failed, run.Checks, took)
	}

	return nil
}
