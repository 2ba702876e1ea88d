// Package controller sequences the pipeline's operating modes: default
// fetch (discover, compare, transfer-if-changed), explicit decrypt
// (select, decrypt, expand, dispose), and wipe-all. It owns the
// invariant that plaintext created in decrypt mode is cleaned up on
// every exit path, enforced with a deferred sweep rather than by
// convention.
package controller

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/arthur-debert/backhaul/pkg/config"
	"github.com/arthur-debert/backhaul/pkg/disposal"
	"github.com/arthur-debert/backhaul/pkg/errors"
	"github.com/arthur-debert/backhaul/pkg/fingerprint"
	"github.com/arthur-debert/backhaul/pkg/logging"
	"github.com/arthur-debert/backhaul/pkg/pipeline"
	"github.com/arthur-debert/backhaul/pkg/remote"
	"github.com/arthur-debert/backhaul/pkg/run"
	"github.com/arthur-debert/backhaul/pkg/transfer"
	"github.com/arthur-debert/backhaul/pkg/ui"
)

// State names the coarse lifecycle phases for the run log.
type State string

const (
	StateIdle        State = "idle"
	StateDiscovering State = "discovering"
	StateSyncing     State = "syncing"
	StateDecrypting  State = "decrypting"
	StateDisposing   State = "disposing"
	StateWiping      State = "wiping"
)

// Controller drives one invocation against the two stores.
type Controller struct {
	cfg       *config.Config
	transfers *transfer.Manager
	pipe      *pipeline.Pipeline
	engine    *disposal.Engine
	confirm   ui.Confirmer
	selector  ui.Selector
}

// New wires the full component graph from the loaded configuration.
func New(cfg *config.Config, runner run.Runner, confirm ui.Confirmer, selector ui.Selector) *Controller {
	client := remote.NewClient(runner, cfg)
	comp := fingerprint.NewComparator(client)
	engine := disposal.NewEngine(runner, cfg)
	return &Controller{
		cfg:       cfg,
		transfers: transfer.NewManager(client, comp, cfg),
		pipe:      pipeline.New(runner, engine, confirm, cfg),
		engine:    engine,
		confirm:   confirm,
		selector:  selector,
	}
}

// Manager exposes the transfer manager for listing.
func (c *Controller) Manager() *transfer.Manager {
	return c.transfers
}

func (c *Controller) enter(state State) {
	logger := logging.GetLogger("controller")
	logger.Debug().Str("state", string(state)).Msg("State transition")
}

// Fetch is the default mode: ensure the newest (or named) remote
// artifact is represented in the encrypted store, transferring only
// when content changed.
func (c *Controller) Fetch(ctx context.Context, artifact string, dryRun bool) (*transfer.Result, error) {
	defer logging.LogDuration(time.Now(), "fetch")
	defer c.enter(StateIdle)

	if artifact == "" {
		c.enter(StateDiscovering)
		var err error
		if artifact, err = c.transfers.DiscoverLatest(ctx); err != nil {
			return nil, err
		}
	}

	c.enter(StateSyncing)
	return c.transfers.EnsureLocal(ctx, artifact, dryRun)
}

// DecryptReport is the outcome of an explicit-decrypt run.
type DecryptReport struct {
	Artifact     string `json:"artifact" yaml:"artifact"`
	WorkingStore string `json:"working_store" yaml:"working_store"`
}

// Decrypt is the explicit-decrypt mode: pick a retained encrypted copy
// (prompting unless a name is given), then decrypt and expand it into
// the working store. Whatever the pipeline leaves behind on any exit
// path is swept before returning.
func (c *Controller) Decrypt(ctx context.Context, artifact string) (report *DecryptReport, err error) {
	defer logging.LogDuration(time.Now(), "decrypt")
	defer c.enter(StateIdle)

	if artifact == "" {
		artifacts, listErr := c.transfers.ListLocal()
		if listErr != nil {
			return nil, listErr
		}
		if len(artifacts) == 0 {
			return nil, errors.New(errors.ErrNoArtifact, "no encrypted backups are retained locally; run a fetch first")
		}
		names := make([]string, len(artifacts))
		for i, a := range artifacts {
			names[i] = a.Name
		}
		idx, selErr := c.selector.Select("Select the backup to decrypt", names)
		if selErr != nil {
			return nil, selErr
		}
		artifact = names[idx]
	}

	localPath := c.transfers.Path(artifact)
	if _, statErr := os.Stat(localPath); statErr != nil {
		return nil, errors.Newf(errors.ErrNoArtifact, "no local encrypted copy named %s", artifact)
	}

	// Exit-path guarantee: independent of how the pipeline returns,
	// confirm no decrypted archive or intermediate tar survived. An
	// aborted run created nothing and may be keeping prior plaintext
	// on purpose, so it is exempt.
	defer func() {
		if errors.IsCode(err, errors.ErrAborted) {
			return
		}
		c.enter(StateDisposing)
		if sweepErr := c.sweepIntermediates(ctx); sweepErr != nil && err == nil {
			err = sweepErr
			report = nil
		}
	}()

	c.enter(StateDecrypting)
	if err := c.pipe.DecryptAndExpand(ctx, localPath); err != nil {
		return nil, err
	}

	return &DecryptReport{Artifact: artifact, WorkingStore: c.cfg.Store.Working}, nil
}

// sweepIntermediates re-checks the well-known plaintext locations after
// the pipeline has had its say.
func (c *Controller) sweepIntermediates(ctx context.Context) error {
	var stuck []string
	for _, target := range []string{
		c.pipe.ArchivePath(),
		strings.TrimSuffix(c.pipe.ArchivePath(), ".gz"),
	} {
		if _, err := os.Lstat(target); err != nil {
			continue
		}
		if res := c.engine.WipeVerified(ctx, target); res.Status == disposal.StatusStillPresent {
			stuck = append(stuck, target)
		}
	}
	if len(stuck) > 0 {
		return errors.Newf(errors.ErrManualIntervention,
			"exit sweep left plaintext behind (%s), manual intervention required", strings.Join(stuck, ", "))
	}
	return nil
}

// WipeOutcome is the result of wipe-all mode.
type WipeOutcome struct {
	Aborted bool             `json:"aborted" yaml:"aborted"`
	Report  *disposal.Report `json:"report,omitempty" yaml:"report,omitempty"`
}

// WipeAll securely destroys the entire working store content except the
// run log, after interactive confirmation. An incomplete aggregate is
// escalated.
func (c *Controller) WipeAll(ctx context.Context) (*WipeOutcome, error) {
	defer logging.LogDuration(time.Now(), "wipe")
	defer c.enter(StateIdle)

	ok, err := c.confirm.Confirm(
		"Securely destroy ALL contents of the working store ("+c.cfg.Store.Working+")?", false)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &WipeOutcome{Aborted: true}, nil
	}

	c.enter(StateWiping)
	report, err := c.engine.WipeStore(ctx, c.cfg.Store.Working)
	if err != nil {
		return nil, err
	}
	switch {
	case report.StillPresent():
		return &WipeOutcome{Report: report}, errors.New(errors.ErrManualIntervention,
			"bulk wipe left entries on disk, manual intervention required")
	case !report.Complete():
		return &WipeOutcome{Report: report}, errors.New(errors.ErrDisposalIncomplete,
			"bulk wipe removed every entry but could not verify every overwrite")
	}
	return &WipeOutcome{Report: report}, nil
}
