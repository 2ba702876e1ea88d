package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/arthur-debert/backhaul/internal/version"
	"github.com/arthur-debert/backhaul/pkg/config"
	"github.com/arthur-debert/backhaul/pkg/controller"
	"github.com/arthur-debert/backhaul/pkg/errors"
	"github.com/arthur-debert/backhaul/pkg/logging"
	"github.com/arthur-debert/backhaul/pkg/run"
	"github.com/arthur-debert/backhaul/pkg/ui"
)

var (
	verbosity int
	cfgFile   string
	output    string
	dryRun    bool

	rootCmd = &cobra.Command{
		Use:   "backhaul",
		Short: "Fetch, decrypt, and securely dispose of encrypted backups",
		Long: `backhaul keeps a local encrypted store in sync with a remote backup
host, decrypts a chosen backup into a transient working store on demand,
and guarantees that decrypted material is either kept in that one known
place or securely destroyed.

Run with no arguments to fetch the newest remote backup if its content
changed.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logging.SetupLogger(verbosity)
			switch output {
			case "text", "json", "yaml":
			default:
				return errors.Newf(errors.ErrConfigInvalid,
					"unknown output format %q (want text, json, or yaml)", output)
			}
			log.Debug().Str("command", cmd.Name()).Msg("Command started")
			return nil
		},
		// No-argument invocation is the default fetch mode.
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd, "")
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute runs the root command. Called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase verbosity (-v INFO, -vv DEBUG, -vvv TRACE)")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default "+config.DefaultPath()+")")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "text", "Output format: text, json, or yaml")

	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(decryptCmd)
	rootCmd.AddCommand(wipeCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(genconfigCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(completionCmd)
}

// setup loads configuration, attaches the run log, and wires the
// component graph. Nothing touches the network or the stores before
// the configuration validates.
func setup() (*config.Config, *controller.Controller, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.EnsureStores(); err != nil {
		return nil, nil, err
	}
	// Best effort: a console-only run is still a run.
	_ = logging.AttachRunLog(cfg.RunLogPath())

	console := ui.NewConsole()
	ctrl := controller.New(cfg, run.NewExecRunner(), console, console)
	return cfg, ctrl, nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("backhaul version %s\n", version.Version)
		fmt.Printf("  commit: %s\n", version.Commit)
		fmt.Printf("  built:  %s\n", version.Date)
	},
}

var completionCmd = &cobra.Command{
	Use:                   "completion [bash|zsh|fish|powershell]",
	Short:                 "Generate shell completion script",
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	Run: func(cmd *cobra.Command, args []string) {
		switch args[0] {
		case "bash":
			if err := cmd.Root().GenBashCompletion(cmd.OutOrStdout()); err != nil {
				log.Error().Err(err).Msg("Failed to generate bash completion")
			}
		case "zsh":
			if err := cmd.Root().GenZshCompletion(cmd.OutOrStdout()); err != nil {
				log.Error().Err(err).Msg("Failed to generate zsh completion")
			}
		case "fish":
			if err := cmd.Root().GenFishCompletion(cmd.OutOrStdout(), true); err != nil {
				log.Error().Err(err).Msg("Failed to generate fish completion")
			}
		case "powershell":
			if err := cmd.Root().GenPowerShellCompletionWithDesc(cmd.OutOrStdout()); err != nil {
				log.Error().Err(err).Msg("Failed to generate powershell completion")
			}
		}
	},
}
