// cmd/backhaul/formatting_test.go
// TEST TYPE: Unit Test
// DEPENDENCIES: None (forces no-color output via TERM)
// PURPOSE: Test text rendering of command results

package main

import (
	"io"
	"testing"

	"github.com/arthur-debert/backhaul/pkg/controller"
	"github.com/arthur-debert/backhaul/pkg/disposal"
	"github.com/arthur-debert/backhaul/pkg/errors"
	"github.com/arthur-debert/backhaul/pkg/transfer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func plainOutput(t *testing.T) {
	t.Helper()
	t.Setenv("TERM", "dumb")
	t.Setenv("NO_COLOR", "1")
}

func TestFetchResultText(t *testing.T) {
	plainOutput(t)

	tests := []struct {
		name   string
		result transfer.Result
		want   string
	}{
		{
			name:   "skipped",
			result: transfer.Result{Artifact: "a.tar.gz.gpg", LocalPath: "/enc/a.tar.gz.gpg", Skipped: true},
			want:   "Skipped, synchronized: /enc/a.tar.gz.gpg",
		},
		{
			name:   "transferred",
			result: transfer.Result{Artifact: "a.tar.gz.gpg", LocalPath: "/enc/a.tar.gz.gpg"},
			want:   "Transferred a.tar.gz.gpg",
		},
		{
			name:   "diverged",
			result: transfer.Result{Artifact: "a.tar.gz.gpg", LocalPath: "/enc/a_2.tar.gz.gpg", Diverged: true},
			want:   "Prior copy retained",
		},
		{
			name:   "dry_run",
			result: transfer.Result{Artifact: "a.tar.gz.gpg", LocalPath: "/enc/a.tar.gz.gpg", DryRun: true},
			want:   "Would transfer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, fetchResultText(&tt.result), tt.want)
		})
	}
}

func TestWipeOutcomeText(t *testing.T) {
	plainOutput(t)

	t.Run("aborted", func(t *testing.T) {
		got := wipeOutcomeText(&controller.WipeOutcome{Aborted: true})
		assert.Contains(t, got, "aborted")
	})

	t.Run("complete", func(t *testing.T) {
		got := wipeOutcomeText(&controller.WipeOutcome{Report: &disposal.Report{
			Results: []disposal.Result{{Path: "/work/a.tar", Status: disposal.StatusCompleted}},
		}})
		assert.Contains(t, got, "destroyed /work/a.tar")
		assert.Contains(t, got, "wiped and verified")
	})

	t.Run("incomplete", func(t *testing.T) {
		got := wipeOutcomeText(&controller.WipeOutcome{Report: &disposal.Report{
			Results: []disposal.Result{
				{Path: "/work/a.tar", Status: disposal.StatusStillPresent},
				{Path: "/work/b.tar", Status: disposal.StatusToolFailed},
			},
		}})
		assert.Contains(t, got, "STILL PRESENT /work/a.tar")
		assert.Contains(t, got, "overwrite unverified")
		assert.Contains(t, got, "Wipe incomplete")
	})
}

func TestArtifactListText(t *testing.T) {
	plainOutput(t)

	t.Run("empty", func(t *testing.T) {
		assert.Contains(t, artifactListText(nil), "No encrypted backups")
	})

	t.Run("numbered_entries", func(t *testing.T) {
		got := artifactListText([]transfer.LocalArtifact{
			{Name: "odoo_full_backup_20250102_0000.tar.gz.gpg", Size: 2048},
			{Name: "odoo_full_backup_20250101_0000.tar.gz.gpg", Size: 100},
		})
		assert.Contains(t, got, " 1. odoo_full_backup_20250102_0000.tar.gz.gpg")
		assert.Contains(t, got, " 2. odoo_full_backup_20250101_0000.tar.gz.gpg")
		assert.Contains(t, got, "2.0 KiB")
		assert.Contains(t, got, "100 B")
	})
}

func TestHumanSize(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{5 * 1024 * 1024, "5.0 MiB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, humanSize(tt.n))
	}
}

func TestUnknownOutputFormatRejectedBeforeRunning(t *testing.T) {
	t.Cleanup(func() {
		output = "text"
		rootCmd.SetArgs(nil)
	})
	rootCmd.SetOut(io.Discard)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs([]string{"list", "-o", "xml"})

	// The bad format is rejected before the command body runs, so no
	// config is loaded and no store is touched.
	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Equal(t, errors.ErrConfigInvalid, errors.GetCode(err))
}

func TestCommandRegistration(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"fetch", "decrypt", "wipe", "list", "genconfig", "version", "completion"} {
		assert.True(t, names[want], "command %s should be registered", want)
	}
}
