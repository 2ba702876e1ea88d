package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arthur-debert/backhaul/pkg/config"
	"github.com/arthur-debert/backhaul/pkg/logging"
	"github.com/arthur-debert/backhaul/pkg/transfer"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [artifact]",
	Short: "Transfer the newest remote backup if its content changed",
	Long: `Fetch discovers the most recent remote backup matching the configured
prefix, compares content fingerprints with any local copy, and transfers
only when they differ. A diverged remote never overwrites a retained
copy; it lands under a new timestamped name.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		artifact := ""
		if len(args) == 1 {
			artifact = args[0]
		}
		return runFetch(cmd, artifact)
	},
}

var decryptCmd = &cobra.Command{
	Use:   "decrypt [artifact]",
	Short: "Decrypt and expand a retained backup into the working store",
	Long: `Decrypt lists the locally retained encrypted backups, prompts for a
selection (or takes an explicit name), then decrypts and expands it into
the working store. Intermediate plaintext is securely destroyed on every
exit path, success or failure.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := logging.GetLogger("cmd.decrypt")
		_, ctrl, err := setup()
		if err != nil {
			return err
		}

		artifact := ""
		if len(args) == 1 {
			artifact = args[0]
		}
		logger.Info().Str("artifact", artifact).Msg("Starting decrypt")

		report, err := ctrl.Decrypt(cmd.Context(), artifact)
		if err != nil {
			return err
		}
		return renderResult(cmd, report, func() string {
			return successText("Decrypted and expanded "+report.Artifact) +
				"\nContents are in " + pathText(report.WorkingStore) +
				"\nRun 'backhaul wipe' when you are done with them."
		})
	},
}

var wipeCmd = &cobra.Command{
	Use:   "wipe",
	Short: "Securely destroy everything in the working store",
	Long: `Wipe enumerates the working store (sparing the run log) and applies
multi-pass secure deletion to every entry, verifying that each one is
gone. Entries that survive the retry budget are reported for manual
intervention; the encrypted store is never touched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := logging.GetLogger("cmd.wipe")
		_, ctrl, err := setup()
		if err != nil {
			return err
		}
		logger.Info().Msg("Starting bulk wipe")

		outcome, err := ctrl.WipeAll(cmd.Context())
		if outcome != nil {
			if renderErr := renderResult(cmd, outcome, func() string {
				return wipeOutcomeText(outcome)
			}); renderErr != nil {
				return renderErr
			}
		}
		return err
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List locally retained encrypted backups",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, ctrl, err := setup()
		if err != nil {
			return err
		}

		artifacts, err := ctrl.Manager().ListLocal()
		if err != nil {
			return err
		}
		return renderResult(cmd, artifacts, func() string {
			return artifactListText(artifacts)
		})
	},
}

var genconfigCmd = &cobra.Command{
	Use:   "genconfig",
	Short: "Print an annotated sample configuration file",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprint(cmd.OutOrStdout(), config.SampleConfig())
	},
}

func runFetch(cmd *cobra.Command, artifact string) error {
	logger := logging.GetLogger("cmd.fetch")
	_, ctrl, err := setup()
	if err != nil {
		return err
	}
	logger.Info().Str("artifact", artifact).Bool("dryRun", dryRun).Msg("Starting fetch")

	result, err := ctrl.Fetch(cmd.Context(), artifact, dryRun)
	if err != nil {
		return err
	}
	return renderResult(cmd, result, func() string {
		return fetchResultText(result)
	})
}

func fetchResultText(r *transfer.Result) string {
	switch {
	case r.DryRun:
		return "Would transfer " + r.Artifact + " to " + pathText(r.LocalPath)
	case r.Skipped:
		return successText("Skipped, synchronized: ") + pathText(r.LocalPath)
	case r.Diverged:
		return warnText("Remote content changed under "+r.Artifact) +
			"\nPrior copy retained; new copy: " + pathText(r.LocalPath)
	default:
		return successText("Transferred "+r.Artifact) + "\nStored at " + pathText(r.LocalPath)
	}
}

func init() {
	fetchCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report whether a transfer would occur without performing it")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report whether a transfer would occur without performing it")
}
