// Package pipeline turns one encrypted archive into expanded plaintext
// in the working store: gpg decrypt, gunzip the outer container, untar
// the inner one, then securely dispose of both intermediates. Any
// failure runs an emergency cleanup before propagating, so no code path
// leaves plaintext behind silently.
package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/arthur-debert/backhaul/pkg/config"
	"github.com/arthur-debert/backhaul/pkg/disposal"
	"github.com/arthur-debert/backhaul/pkg/errors"
	"github.com/arthur-debert/backhaul/pkg/logging"
	"github.com/arthur-debert/backhaul/pkg/retry"
	"github.com/arthur-debert/backhaul/pkg/run"
	"github.com/arthur-debert/backhaul/pkg/ui"
)

// Pipeline decrypts and expands one artifact at a time; the working
// store belongs to a single run.
type Pipeline struct {
	runner   run.Runner
	disposal *disposal.Engine
	confirm  ui.Confirmer

	working string
	archive string // the single well-known DecryptedArchive path
	tools   config.ToolsConfig
	poll    config.PollConfig
}

// New builds a Pipeline from the loaded configuration.
func New(runner run.Runner, engine *disposal.Engine, confirm ui.Confirmer, cfg *config.Config) *Pipeline {
	return &Pipeline{
		runner:   runner,
		disposal: engine,
		confirm:  confirm,
		working:  cfg.Store.Working,
		archive:  cfg.DecryptedArchivePath(),
		tools:    cfg.Tools,
		poll:     cfg.Poll,
	}
}

// DecryptAndExpand runs the full pipeline for the encrypted artifact at
// encryptedPath. On success the working store holds only the expanded
// contents; the decrypted archive and the intermediate tar have been
// securely disposed of. On failure the emergency cleanup has run before
// the error propagates.
func (p *Pipeline) DecryptAndExpand(ctx context.Context, encryptedPath string) (err error) {
	logger := logging.GetLogger("pipeline")

	// Declining the overwrite must leave the existing plaintext alone,
	// so it aborts before any cleanup obligation is created.
	if _, statErr := os.Stat(p.archive); statErr == nil {
		ok, confirmErr := p.confirm.Confirm("A decrypted archive already exists in the working store. Overwrite it?", false)
		if confirmErr != nil {
			return confirmErr
		}
		if !ok {
			return errors.New(errors.ErrAborted, "declined to overwrite existing decrypted archive")
		}
	}

	defer func() {
		if err == nil {
			return
		}
		if cleanupErr := p.EmergencyCleanup(ctx); cleanupErr != nil {
			// Unremovable plaintext outranks the original failure.
			err = cleanupErr
		}
	}()

	if err := p.decrypt(ctx, encryptedPath); err != nil {
		return err
	}

	tarPath, err := p.expandOuter(ctx)
	if err != nil {
		return err
	}

	logger.Info().Str("tar", tarPath).Msg("Expanding inner archive")
	if _, err := p.runner.Run(ctx, p.tools.Tar, "-xf", tarPath, "-C", p.working); err != nil {
		return errors.Wrapf(err, errors.ErrExpansionFailed, "inner expansion of %s failed", tarPath)
	}

	// The plaintext intermediates must not outlive the extraction that
	// consumed them.
	for _, intermediate := range []string{tarPath, p.archive} {
		res := p.disposal.WipeVerified(ctx, intermediate)
		if !res.Complete() {
			if res.Status == disposal.StatusStillPresent {
				return errors.Newf(errors.ErrManualIntervention,
					"intermediate artifact %s could not be destroyed, manual intervention required", intermediate)
			}
			logger.Warn().Str("path", intermediate).Str("status", string(res.Status)).
				Msg("Intermediate removed but disposal may be incomplete")
		}
	}

	logger.Info().Str("artifact", encryptedPath).Msg("Decrypt and expand complete")
	return nil
}

// decrypt runs the public-key decryption into the well-known archive
// path. Overwrite consent was already collected.
func (p *Pipeline) decrypt(ctx context.Context, encryptedPath string) error {
	logger := logging.GetLogger("pipeline")

	logger.Info().Str("source", encryptedPath).Str("target", p.archive).Msg("Decrypting")
	if _, err := p.runner.Run(ctx, p.tools.GPG,
		"--batch", "--yes", "--output", p.archive, "--decrypt", encryptedPath); err != nil {
		return errors.Wrapf(err, errors.ErrDecryptionFailed, "decryption of %s failed", encryptedPath)
	}
	return nil
}

// expandOuter gunzips the decrypted archive and locates the resulting
// tar. The expected name is derived by stripping the compression
// suffix; when it does not show up within the polling budget, the
// working store is scanned for any tar and the first match adopted,
// since the expansion tool's naming is not perfectly predictable.
func (p *Pipeline) expandOuter(ctx context.Context) (string, error) {
	logger := logging.GetLogger("pipeline")

	logger.Info().Str("archive", p.archive).Msg("Expanding outer archive")
	if _, err := p.runner.Run(ctx, p.tools.Gunzip, "-k", "-f", p.archive); err != nil {
		return "", errors.Wrapf(err, errors.ErrExpansionFailed, "outer expansion of %s failed", p.archive)
	}

	expected := strings.TrimSuffix(p.archive, ".gz")
	ok, err := retry.Until(ctx, p.poll.Attempts, p.poll.Delay, func() (bool, error) {
		_, statErr := os.Stat(expected)
		return statErr == nil, nil
	})
	if err != nil {
		return "", err
	}
	if ok {
		return expected, nil
	}

	matches, globErr := filepath.Glob(filepath.Join(p.working, "*.tar"))
	if globErr == nil && len(matches) > 0 {
		logger.Warn().
			Str("expected", expected).
			Str("adopted", matches[0]).
			Msg("Expected intermediate name never appeared, adopting scanned tar instead")
		return matches[0], nil
	}

	return "", errors.Newf(errors.ErrExpansionFailed,
		"outer expansion produced no tar in %s within the polling budget", p.working)
}

// EmergencyCleanup disposes of whatever intermediate or decrypted
// artifacts exist in the working store, then re-scans for strays. If
// absence cannot be confirmed within the disposal retry budget, the
// failure escalates instead of silently succeeding.
func (p *Pipeline) EmergencyCleanup(ctx context.Context) error {
	logger := logging.GetLogger("pipeline")

	targets := []string{p.archive, strings.TrimSuffix(p.archive, ".gz")}
	for _, pattern := range []string{"*.tar", "*.tar.gz"} {
		matches, err := filepath.Glob(filepath.Join(p.working, pattern))
		if err == nil {
			targets = append(targets, matches...)
		}
	}

	var stuck []string
	seen := make(map[string]bool)
	for _, target := range targets {
		if seen[target] {
			continue
		}
		seen[target] = true
		res := p.disposal.WipeVerified(ctx, target)
		if res.Status == disposal.StatusStillPresent {
			stuck = append(stuck, target)
		}
	}

	if len(stuck) > 0 {
		logger.Error().Strs("paths", stuck).Msg("Emergency cleanup could not destroy all plaintext artifacts")
		return errors.Newf(errors.ErrManualIntervention,
			"emergency cleanup left plaintext behind (%s), manual intervention required",
			strings.Join(stuck, ", "))
	}
	logger.Debug().Msg("Emergency cleanup confirmed no intermediate plaintext remains")
	return nil
}

// ArchivePath exposes the well-known decrypt target so the controller
// can enforce its exit-path sweep.
func (p *Pipeline) ArchivePath() string {
	return p.archive
}
