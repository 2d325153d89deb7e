package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/epalmerini/soundcheck"
	"github.com/epalmerini/soundcheck/internal/history"
	"github.com/epalmerini/soundcheck/internal/logging"
	"github.com/epalmerini/soundcheck/internal/randutil"
	"github.com/epalmerini/soundcheck/internal/runner"
)

var (
	passVerdict = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#2ECC71"))
	failVerdict = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#E74C3C"))
)

func newRunCommand(rootOpts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <scenario.toml> [more scenarios...]",
		Short: "Run scenario documents and print their verdicts",
		Long: `Run one or more scenario documents against the backends the
selected profile points at. Every check of every scenario is printed;
finished runs are recorded to the history database.

Exit codes:
  0 - every scenario passed
  1 - at least one scenario had a failed verdict
  2 - a scenario could not run (bad document, unreachable backend)

Examples:
  soundcheck run scenarios/order-flow.toml
  soundcheck run -p staging scenarios/*.toml`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(rootOpts, args, cmd)
		},
	}
	return cmd
}

func runScenarios(opts *rootOptions, paths []string, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return commandErr("configuration", err)
	}

	log := logging.New(opts.Verbose)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// History is best effort; a broken store never blocks a run.
	var hist *history.Store
	if store, err := history.NewStore(cfg.HistoryPath); err == nil {
		hist = store
		defer func() { _ = hist.Close() }()
	} else {
		log.Warn("history disabled", zap.Error(err))
	}

	r := runner.New(cfg, log)
	w := cmd.OutOrStdout()

	failed := 0
	for _, path := range paths {
		rep, err := r.RunFile(ctx, path)

		var verdict *soundcheck.VerdictError
		switch {
		case err == nil:
		case errors.As(err, &verdict):
			failed++
		default:
			return commandErr(fmt.Sprintf("run %s", path), err)
		}

		printReport(w, rep)
		recordRun(hist, opts.Profile, rep, log)
	}

	if failed > 0 {
		return failf("%d of %d scenarios failed", failed, len(paths))
	}
	return nil
}

func printReport(w io.Writer, rep *soundcheck.Report) {
	fmt.Fprint(w, rep.Summary())
	took := rep.Finished.Sub(rep.Started).Round(time.Millisecond)
	if rep.OK() {
		fmt.Fprintf(w, "%s in %s\n\n", passVerdict.Render("PASS"), took)
	} else {
		fmt.Fprintf(w, "%s in %s\n\n", failVerdict.Render("FAIL"), took)
	}
}

// recordRun saves a finished run outside the signal context so an
// interrupt does not lose the result that was just printed.
func recordRun(store *history.Store, profile string, rep *soundcheck.Report, log *zap.Logger) {
	if store == nil || rep == nil {
		return
	}
	run, findings := history.FromReport(randutil.RunID(), profile, rep)
	if _, err := store.SaveRun(context.Background(), run, findings); err != nil {
		log.Warn("failed to record run", zap.Error(err))
	}
}
