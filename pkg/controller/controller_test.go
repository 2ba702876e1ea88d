// pkg/controller/controller_test.go
// TEST TYPE: Integration Test (in-process, scripted external tools)
// DEPENDENCIES: Filesystem (temp dir), scripted runner
// PURPOSE: Test the operating modes end to end against fake ssh/scp/gpg/tar/shred

package controller_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/arthur-debert/backhaul/pkg/config"
	"github.com/arthur-debert/backhaul/pkg/controller"
	"github.com/arthur-debert/backhaul/pkg/errors"
	"github.com/arthur-debert/backhaul/pkg/testutil"
	"github.com/arthur-debert/backhaul/pkg/ui"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	artifact   = "odoo_full_backup_20250101_0000.tar.gz.gpg"
	ciphertext = "encrypted backup bytes"
)

type world struct {
	cfg    *config.Config
	runner *testutil.ScriptedRunner
	ui     *ui.Scripted
	ctrl   *controller.Controller

	remoteContent string
}

func newWorld(t *testing.T) *world {
	t.Helper()
	cfg := &config.Config{
		Remote: config.RemoteConfig{
			Host:   "backup@backups.example.com",
			Dir:    "/var/backups/odoo",
			Prefix: "odoo_full_backup_",
			Suffix: ".tar.gz.gpg",
		},
		Store: config.StoreConfig{
			Encrypted: filepath.Join(t.TempDir(), "encrypted"),
			Working:   filepath.Join(t.TempDir(), "working"),
		},
		Tools: config.ToolsConfig{
			SSH: "ssh", SCP: "scp", GPG: "gpg",
			Gunzip: "gunzip", Tar: "tar", Wipe: "shred",
		},
		Wipe: config.WipeConfig{Passes: 3, Retries: 2},
		Poll: config.PollConfig{Attempts: 2, Delay: time.Millisecond},
	}
	require.NoError(t, os.MkdirAll(cfg.Store.Encrypted, 0700))
	require.NoError(t, os.MkdirAll(cfg.Store.Working, 0700))

	w := &world{
		cfg:           cfg,
		runner:        testutil.NewScriptedRunner(),
		ui:            &ui.Scripted{Default: true},
		remoteContent: ciphertext,
	}

	w.runner.On("ssh", func(call testutil.Call) (string, error) {
		cmd := call.Args[1]
		switch {
		case strings.HasPrefix(cmd, "ls -1t"):
			return "/var/backups/odoo/" + artifact + "\n", nil
		case strings.HasPrefix(cmd, "sha256sum"):
			sum := sha256.Sum256([]byte(w.remoteContent))
			return hex.EncodeToString(sum[:]) + "  /var/backups/odoo/" + artifact + "\n", nil
		default:
			return "", fmt.Errorf("unexpected remote command %q", cmd)
		}
	})
	w.runner.On("scp", func(call testutil.Call) (string, error) {
		return "", os.WriteFile(call.Args[2], []byte(w.remoteContent), 0600)
	})
	w.runner.On("gpg", func(call testutil.Call) (string, error) {
		return "", os.WriteFile(call.Args[3], []byte("outer gz"), 0600)
	})
	w.runner.On("gunzip", func(call testutil.Call) (string, error) {
		return "", os.WriteFile(strings.TrimSuffix(call.Args[2], ".gz"), []byte("inner tar"), 0600)
	})
	w.runner.On("tar", func(call testutil.Call) (string, error) {
		return "", os.WriteFile(filepath.Join(call.Args[3], "dump.sql"), []byte("plaintext"), 0600)
	})
	w.runner.On("shred", func(call testutil.Call) (string, error) {
		return "", os.Remove(call.Args[len(call.Args)-1])
	})

	w.ctrl = controller.New(cfg, w.runner, w.ui, w.ui)
	return w
}

func TestFetchScenario(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	// First run: no local copy exists, so the artifact is transferred
	// and verified present.
	first, err := w.ctrl.Fetch(ctx, "", false)
	require.NoError(t, err)
	assert.Equal(t, artifact, first.Artifact)
	assert.False(t, first.Skipped)
	assert.FileExists(t, first.LocalPath)

	// Second run with unchanged remote state: fingerprints match, zero
	// transfers happen.
	second, err := w.ctrl.Fetch(ctx, "", false)
	require.NoError(t, err)
	assert.True(t, second.Skipped)
	assert.Equal(t, first.LocalPath, second.LocalPath)
	assert.Len(t, w.runner.CallsTo("scp"), 1)
}

func TestFetchDivergedRemote(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	first, err := w.ctrl.Fetch(ctx, "", false)
	require.NoError(t, err)

	// Remote content changes under the same logical name.
	w.remoteContent = "different encrypted bytes"
	second, err := w.ctrl.Fetch(ctx, "", false)
	require.NoError(t, err)

	assert.True(t, second.Diverged)
	assert.NotEqual(t, first.LocalPath, second.LocalPath)
	assert.FileExists(t, first.LocalPath)
	assert.FileExists(t, second.LocalPath)

	// The prior retained copy still holds the original bytes.
	old, err := os.ReadFile(first.LocalPath)
	require.NoError(t, err)
	assert.Equal(t, ciphertext, string(old))
}

func TestFetchNoRemoteArtifacts(t *testing.T) {
	w := newWorld(t)
	w.runner.OnError("ssh", "ls: cannot access '/var/backups/odoo/odoo_full_backup_*.tar.gz.gpg': No such file or directory")

	_, err := w.ctrl.Fetch(context.Background(), "", false)
	require.Error(t, err)
	assert.Equal(t, errors.ErrNoArtifact, errors.GetCode(err))
}

func TestDecryptModeSelectsAndCleansUp(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	_, err := w.ctrl.Fetch(ctx, "", false)
	require.NoError(t, err)

	w.ui.Choice = 0
	report, err := w.ctrl.Decrypt(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, artifact, report.Artifact)

	// Plaintext contents retained, intermediates destroyed.
	assert.FileExists(t, filepath.Join(w.cfg.Store.Working, "dump.sql"))
	assert.NoFileExists(t, w.cfg.DecryptedArchivePath())
	assert.NoFileExists(t, strings.TrimSuffix(w.cfg.DecryptedArchivePath(), ".gz"))

	// The retained encrypted copy survives decrypt mode.
	assert.FileExists(t, filepath.Join(w.cfg.Store.Encrypted, artifact))
}

func TestDecryptModeNoLocalArtifacts(t *testing.T) {
	w := newWorld(t)
	_, err := w.ctrl.Decrypt(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, errors.ErrNoArtifact, errors.GetCode(err))
}

func TestDecryptModeExplicitMissingName(t *testing.T) {
	w := newWorld(t)
	_, err := w.ctrl.Decrypt(context.Background(), "odoo_full_backup_19990101_0000.tar.gz.gpg")
	require.Error(t, err)
	assert.Equal(t, errors.ErrNoArtifact, errors.GetCode(err))
}

func TestDecryptFailureStillCleansWorkingStore(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	_, err := w.ctrl.Fetch(ctx, "", false)
	require.NoError(t, err)

	tests := []struct {
		name     string
		breakage func(w *world)
		wantCode errors.ErrorCode
	}{
		{
			name:     "decrypt_stage",
			breakage: func(w *world) { w.runner.OnError("gpg", "gpg: decryption failed: No secret key") },
			wantCode: errors.ErrDecryptionFailed,
		},
		{
			name:     "outer_expansion_stage",
			breakage: func(w *world) { w.runner.OnError("gunzip", "gunzip: invalid compressed data") },
			wantCode: errors.ErrExpansionFailed,
		},
		{
			name:     "inner_expansion_stage",
			breakage: func(w *world) { w.runner.OnError("tar", "tar: Unexpected EOF in archive") },
			wantCode: errors.ErrExpansionFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newWorld(t)
			_, err := w.ctrl.Fetch(ctx, "", false)
			require.NoError(t, err)
			tt.breakage(w)

			_, err = w.ctrl.Decrypt(ctx, artifact)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, errors.GetCode(err))

			// Guaranteed cleanup: no decrypted archive, no intermediate
			// tar, on every failing exit path.
			assert.NoFileExists(t, w.cfg.DecryptedArchivePath())
			assert.NoFileExists(t, strings.TrimSuffix(w.cfg.DecryptedArchivePath(), ".gz"))
		})
	}
}

func TestDecryptStuckCleanupEscalates(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	_, err := w.ctrl.Fetch(ctx, "", false)
	require.NoError(t, err)

	w.runner.OnError("tar", "tar: Unexpected EOF in archive")
	w.runner.On("shred", func(call testutil.Call) (string, error) {
		return "", fmt.Errorf("shred: Input/output error")
	})

	_, err = w.ctrl.Decrypt(ctx, artifact)
	require.Error(t, err)
	assert.Equal(t, errors.ErrManualIntervention, errors.GetCode(err))
}

func TestWipeAllConfirmed(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(w.cfg.Store.Working, "leftover.tar"), []byte("x"), 0600))
	require.NoError(t, os.WriteFile(w.cfg.RunLogPath(), []byte("log"), 0600))

	w.ui.Answers = []bool{true}
	outcome, err := w.ctrl.WipeAll(ctx)
	require.NoError(t, err)

	assert.False(t, outcome.Aborted)
	assert.True(t, outcome.Report.Complete())
	assert.NoFileExists(t, filepath.Join(w.cfg.Store.Working, "leftover.tar"))
	assert.FileExists(t, w.cfg.RunLogPath())
}

func TestWipeAllDeclined(t *testing.T) {
	w := newWorld(t)
	require.NoError(t, os.WriteFile(filepath.Join(w.cfg.Store.Working, "leftover.tar"), []byte("x"), 0600))

	w.ui.Answers = []bool{false}
	outcome, err := w.ctrl.WipeAll(context.Background())
	require.NoError(t, err)

	assert.True(t, outcome.Aborted)
	assert.FileExists(t, filepath.Join(w.cfg.Store.Working, "leftover.tar"))
	assert.Empty(t, w.runner.CallsTo("shred"))
}

func TestWipeAllUnverifiedOverwriteReported(t *testing.T) {
	w := newWorld(t)
	require.NoError(t, os.WriteFile(filepath.Join(w.cfg.Store.Working, "flaky.tar"), []byte("x"), 0600))
	// The tool unlinks the file but exits non-zero; the entry is gone
	// but its overwrite is unverified.
	w.runner.On("shred", func(call testutil.Call) (string, error) {
		_ = os.Remove(call.Args[len(call.Args)-1])
		return "", fmt.Errorf("shred: flaky.tar: fdatasync failed")
	})

	w.ui.Answers = []bool{true}
	outcome, err := w.ctrl.WipeAll(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.ErrDisposalIncomplete, errors.GetCode(err))
	require.NotNil(t, outcome)
	assert.False(t, outcome.Report.Complete())
	assert.False(t, outcome.Report.StillPresent())
}

func TestWipeAllIncompleteEscalates(t *testing.T) {
	w := newWorld(t)
	require.NoError(t, os.WriteFile(filepath.Join(w.cfg.Store.Working, "stuck.tar"), []byte("x"), 0600))
	w.runner.On("shred", func(testutil.Call) (string, error) {
		return "", fmt.Errorf("shred: Input/output error")
	})

	w.ui.Answers = []bool{true}
	outcome, err := w.ctrl.WipeAll(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.ErrManualIntervention, errors.GetCode(err))
	require.NotNil(t, outcome)
	assert.False(t, outcome.Report.Complete())
}
