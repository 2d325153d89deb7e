package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/epalmerini/soundcheck/internal/config"
	"github.com/epalmerini/soundcheck/internal/xdg"
)

// rootOptions holds the persistent flags shared by all commands.
type rootOptions struct {
	ConfigDir string
	Profile   string
	Verbose   bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "soundcheck",
		Short: "Scenario-based acceptance checks against live backends",
		Long: `soundcheck runs declarative acceptance scenarios against live
backends: it sends and awaits broker messages, seeds databases and
verifies post-conditions, checks produced objects, and reports one
aggregated verdict per scenario.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigDir, "config", "", "config directory (default: $XDG_CONFIG_HOME/soundcheck)")
	cmd.PersistentFlags().StringVarP(&opts.Profile, "profile", "p", "", "config profile to resolve backends from")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newHistoryCommand(opts))
	cmd.AddCommand(newTUICommand(opts))
	cmd.AddCommand(newVersionCommand())

	return cmd
}

// loadConfig resolves the effective configuration for the selected
// profile: config.toml under the config dir, then environment overrides.
func (o *rootOptions) loadConfig() (config.Config, error) {
	dir := o.ConfigDir
	if dir == "" {
		var err error
		dir, err = xdg.Dir("XDG_CONFIG_HOME", ".config")
		if err != nil {
			return config.Config{}, fmt.Errorf("resolve config directory: %w", err)
		}
	}

	fileCfg, err := config.LoadFileConfig(dir)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}

	// Resolve silently skips unknown profiles; surface the typo here.
	if o.Profile != "" {
		if _, ok := fileCfg.Profiles[o.Profile]; !ok {
			names := fileCfg.ProfileNames()
			if len(names) == 0 {
				return config.Config{}, fmt.Errorf("profile %q requested but the config defines none", o.Profile)
			}
			return config.Config{}, fmt.Errorf("unknown profile %q (have: %s)", o.Profile, strings.Join(names, ", "))
		}
	}

	cfg, err := fileCfg.Resolve(o.Profile, dir)
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the soundcheck version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "soundcheck %s\n", version)
		},
	}
}
