// Package transfer keeps the encrypted-backups store in sync with the
// remote host: discovery of the newest artifact, skip-when-synchronized,
// and collision-safe transfer of diverged content. The encrypted store
// is append-mostly; an existing copy is never overwritten or deleted
// here.
package transfer

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/arthur-debert/backhaul/pkg/config"
	"github.com/arthur-debert/backhaul/pkg/errors"
	"github.com/arthur-debert/backhaul/pkg/logging"
	"github.com/arthur-debert/backhaul/pkg/retry"
)

// Remote is the slice of the remote channel the manager needs.
type Remote interface {
	ListBackups(ctx context.Context) ([]string, error)
	Copy(ctx context.Context, name, localPath string) error
}

// Comparator decides whether an artifact is already synchronized.
type Comparator interface {
	Synchronized(ctx context.Context, name, localPath string) (bool, error)
}

// Manager fetches remote artifacts into the encrypted-backups store.
type Manager struct {
	remote Remote
	comp   Comparator
	store  string
	suffix string
	poll   config.PollConfig

	// now is injectable so collision-disambiguation names are
	// deterministic in tests.
	now func() time.Time
}

// Result describes the outcome of one sync attempt.
type Result struct {
	Artifact  string `json:"artifact" yaml:"artifact"`
	LocalPath string `json:"local_path" yaml:"local_path"`
	// Skipped means an identical copy was already present.
	Skipped bool `json:"skipped" yaml:"skipped"`
	// Diverged means the remote content changed under an existing name
	// and a new timestamped copy was created.
	Diverged bool `json:"diverged" yaml:"diverged"`
	// DryRun means the transfer was planned but not performed.
	DryRun bool `json:"dry_run,omitempty" yaml:"dry_run,omitempty"`
}

// NewManager builds a Manager over the given channel and store.
func NewManager(remote Remote, comp Comparator, cfg *config.Config) *Manager {
	return &Manager{
		remote: remote,
		comp:   comp,
		store:  cfg.Store.Encrypted,
		suffix: cfg.Remote.Suffix,
		poll:   cfg.Poll,
		now:    time.Now,
	}
}

// WithClock overrides the timestamp source.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// DiscoverLatest returns the most recent remote artifact name.
func (m *Manager) DiscoverLatest(ctx context.Context) (string, error) {
	names, err := m.remote.ListBackups(ctx)
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", errors.New(errors.ErrNoArtifact, "no remote backups match the configured prefix")
	}
	// Listing is sorted by modification recency; first wins.
	return names[0], nil
}

// EnsureLocal makes sure the named remote artifact is represented in
// the encrypted store. Synchronized copies are skipped; diverged
// content goes to a new timestamped name so the prior copy survives.
func (m *Manager) EnsureLocal(ctx context.Context, name string, dryRun bool) (*Result, error) {
	logger := logging.GetLogger("transfer")
	dest := filepath.Join(m.store, name)

	_, statErr := os.Stat(dest)
	switch {
	case statErr == nil:
		synced, err := m.comp.Synchronized(ctx, name, dest)
		if err != nil {
			return nil, err
		}
		if synced {
			logger.Info().Str("artifact", name).Msg("Local copy is synchronized, skipping transfer")
			return &Result{Artifact: name, LocalPath: dest, Skipped: true}, nil
		}
		dest = m.disambiguate(name)
		logger.Warn().
			Str("artifact", name).
			Str("dest", dest).
			Msg("Remote content diverged from local copy, transferring to new name")
		return m.fetch(ctx, name, dest, true, dryRun)
	case os.IsNotExist(statErr):
		return m.fetch(ctx, name, dest, false, dryRun)
	default:
		// A copy may exist behind this error; transferring onto it would
		// break the never-overwrite guarantee.
		return nil, errors.Wrapf(statErr, errors.ErrTransferFailed,
			"cannot inspect the retained copy location %s", dest)
	}
}

func (m *Manager) fetch(ctx context.Context, name, dest string, diverged, dryRun bool) (*Result, error) {
	result := &Result{Artifact: name, LocalPath: dest, Diverged: diverged, DryRun: dryRun}
	if dryRun {
		return result, nil
	}

	logger := logging.GetLogger("transfer")
	if err := m.remote.Copy(ctx, name, dest); err != nil {
		return nil, err
	}

	// The transfer tool has exited, but the destination may lag into
	// visibility; poll before declaring the transfer unverified.
	ok, err := retry.Until(ctx, m.poll.Attempts, m.poll.Delay, func() (bool, error) {
		_, statErr := os.Stat(dest)
		return statErr == nil, nil
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Newf(errors.ErrTransferUnverified, "transfer reported success but %s never appeared", dest).
			WithDetail("attempts", m.poll.Attempts)
	}

	logger.Info().Str("artifact", name).Str("dest", dest).Msg("Transfer complete")
	return result, nil
}

// disambiguate inserts a timestamp before the artifact suffix:
// odoo_full_backup_x.tar.gz.gpg -> odoo_full_backup_x_20250101T101010.tar.gz.gpg.
func (m *Manager) disambiguate(name string) string {
	stamp := m.now().UTC().Format("20060102T150405")
	base := strings.TrimSuffix(name, m.suffix)
	return filepath.Join(m.store, base+"_"+stamp+m.suffix)
}

// LocalArtifact is one retained copy in the encrypted store.
type LocalArtifact struct {
	Name     string    `json:"name" yaml:"name"`
	Size     int64     `json:"size" yaml:"size"`
	Modified time.Time `json:"modified" yaml:"modified"`
}

// ListLocal enumerates retained encrypted copies, most recent first.
func (m *Manager) ListLocal() ([]LocalArtifact, error) {
	entries, err := os.ReadDir(m.store)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var artifacts []LocalArtifact
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), m.suffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		artifacts = append(artifacts, LocalArtifact{
			Name:     entry.Name(),
			Size:     info.Size(),
			Modified: info.ModTime(),
		})
	}

	// Most recent first, matching the remote listing order.
	sort.Slice(artifacts, func(i, j int) bool {
		return artifacts[i].Modified.After(artifacts[j].Modified)
	})
	return artifacts, nil
}

// Path returns the store path for a named artifact.
func (m *Manager) Path(name string) string {
	return filepath.Join(m.store, name)
}
