package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/arthur-debert/backhaul/pkg/controller"
	"github.com/arthur-debert/backhaul/pkg/disposal"
	"github.com/arthur-debert/backhaul/pkg/errors"
	"github.com/arthur-debert/backhaul/pkg/transfer"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	pathStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	dimStyle     = lipgloss.NewStyle().Faint(true)
)

// colorEnabled reports whether styled output makes sense for the
// current terminal.
func colorEnabled() bool {
	return termenv.EnvColorProfile() != termenv.Ascii
}

func styled(style lipgloss.Style, s string) string {
	if !colorEnabled() {
		return s
	}
	return style.Render(s)
}

func successText(s string) string { return styled(successStyle, s) }
func warnText(s string) string    { return styled(warnStyle, s) }
func errorText(s string) string   { return styled(errorStyle, s) }
func pathText(s string) string    { return styled(pathStyle, s) }

// renderResult writes v in the selected output format; text rendering
// is supplied by the caller.
func renderResult(cmd *cobra.Command, v interface{}, text func() string) error {
	out := cmd.OutOrStdout()
	switch output {
	case "text":
		fmt.Fprintln(out, text())
		return nil
	case "json":
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		return nil
	case "yaml":
		data, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		fmt.Fprint(out, string(data))
		return nil
	default:
		return errors.Newf(errors.ErrConfigInvalid, "unknown output format %q (want text, json, or yaml)", output)
	}
}

func wipeOutcomeText(outcome *controller.WipeOutcome) string {
	if outcome.Aborted {
		return dimText("Wipe aborted, nothing was touched.")
	}

	var b strings.Builder
	for _, res := range outcome.Report.Results {
		switch {
		case res.Complete():
			b.WriteString(successText("  destroyed ") + pathText(res.Path) + "\n")
		case res.Status == disposal.StatusToolFailed:
			b.WriteString(warnText("  removed (overwrite unverified) ") + pathText(res.Path) + "\n")
		default:
			b.WriteString(errorText("  STILL PRESENT ") + pathText(res.Path) + "\n")
		}
	}
	if outcome.Report.Complete() {
		b.WriteString(successText("Working store wiped and verified."))
	} else {
		b.WriteString(errorText("Wipe incomplete: inspect the entries above manually."))
	}
	return b.String()
}

func artifactListText(artifacts []transfer.LocalArtifact) string {
	if len(artifacts) == 0 {
		return dimText("No encrypted backups retained locally.")
	}
	var b strings.Builder
	for i, a := range artifacts {
		b.WriteString(fmt.Sprintf("%2d. %s  %s  %s", i+1,
			a.Name, humanSize(a.Size), dimText(a.Modified.Format("2006-01-02 15:04"))))
		if i < len(artifacts)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func dimText(s string) string { return styled(dimStyle, s) }

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
