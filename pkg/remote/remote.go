// Package remote is the channel to the backup producer's host: listing
// artifacts by recency, computing remote digests, and secure-copying a
// named artifact. All three ride on the configured ssh/scp tools.
package remote

import (
	"context"
	"path"
	"strings"

	"github.com/arthur-debert/backhaul/pkg/config"
	"github.com/arthur-debert/backhaul/pkg/errors"
	"github.com/arthur-debert/backhaul/pkg/logging"
	"github.com/arthur-debert/backhaul/pkg/run"
)

// Client talks to the remote backup host.
type Client struct {
	runner run.Runner
	host   string
	dir    string
	prefix string
	suffix string
	ssh    string
	scp    string
}

// NewClient builds a Client from the loaded configuration.
func NewClient(runner run.Runner, cfg *config.Config) *Client {
	return &Client{
		runner: runner,
		host:   cfg.Remote.Host,
		dir:    cfg.Remote.Dir,
		prefix: cfg.Remote.Prefix,
		suffix: cfg.Remote.Suffix,
		ssh:    cfg.Tools.SSH,
		scp:    cfg.Tools.SCP,
	}
}

// ListBackups returns the basenames of remote artifacts matching the
// configured prefix/suffix, most recent first. An empty result is not
// an error here; discovery decides whether that is fatal.
func (c *Client) ListBackups(ctx context.Context) ([]string, error) {
	logger := logging.GetLogger("remote")
	pattern := path.Join(c.dir, c.prefix+"*"+c.suffix)

	out, err := c.runner.Run(ctx, c.ssh, c.host, "ls -1t -- "+pattern)
	if err != nil {
		// A glob with no matches makes ls fail; that is an empty
		// listing, not a broken channel.
		if strings.Contains(err.Error(), "No such file or directory") {
			return nil, nil
		}
		return nil, errors.Wrap(err, errors.ErrRemoteCommand, "remote listing failed")
	}

	var names []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		names = append(names, path.Base(line))
	}
	logger.Debug().Int("count", len(names)).Str("pattern", pattern).Msg("Listed remote backups")
	return names, nil
}

// RemoteSum runs the remote digest command for the named artifact and
// returns its raw output. Parsing belongs to the fingerprint comparator.
func (c *Client) RemoteSum(ctx context.Context, name string) (string, error) {
	return c.runner.Run(ctx, c.ssh, c.host, "sha256sum -- "+path.Join(c.dir, name))
}

// Copy transfers the named artifact to localPath. A non-zero exit from
// the transfer tool is always fatal, regardless of what later existence
// checks find.
func (c *Client) Copy(ctx context.Context, name, localPath string) error {
	source := c.host + ":" + path.Join(c.dir, name)
	if _, err := c.runner.Run(ctx, c.scp, "-q", source, localPath); err != nil {
		return errors.Wrapf(err, errors.ErrTransferFailed, "transfer of %s failed", name)
	}
	return nil
}
