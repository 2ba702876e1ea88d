// Package fingerprint decides whether a remote backup artifact and a
// local copy hold identical bytes, so an unchanged artifact is never
// transferred twice.
package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"strings"

	"github.com/arthur-debert/backhaul/pkg/errors"
	"github.com/arthur-debert/backhaul/pkg/logging"
)

// RemoteHasher produces the raw output of the remote digest command for
// a named artifact.
type RemoteHasher interface {
	RemoteSum(ctx context.Context, name string) (string, error)
}

// Comparator computes and compares content fingerprints.
type Comparator struct {
	remote RemoteHasher
}

// NewComparator returns a Comparator using the given remote channel.
func NewComparator(remote RemoteHasher) *Comparator {
	return &Comparator{remote: remote}
}

// LocalDigest computes the SHA-256 hex digest of a local file.
func (c *Comparator) LocalDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// RemoteDigest obtains the remote digest for the named artifact. The
// remote host computes it; see the trust note in DESIGN.md.
func (c *Comparator) RemoteDigest(ctx context.Context, name string) (string, error) {
	out, err := c.remote.RemoteSum(ctx, name)
	if err != nil {
		return "", errors.Wrapf(err, errors.ErrRemoteCommand, "remote digest of %s failed", name)
	}
	digest, err := ParseSumOutput(out)
	if err != nil {
		return "", errors.Wrapf(err, errors.ErrRemoteCommand, "remote digest of %s returned unparseable output", name)
	}
	return digest, nil
}

// Synchronized reports whether the named remote artifact and the local
// copy at localPath hold identical bytes.
func (c *Comparator) Synchronized(ctx context.Context, name, localPath string) (bool, error) {
	logger := logging.GetLogger("fingerprint")

	remoteDigest, err := c.RemoteDigest(ctx, name)
	if err != nil {
		return false, err
	}
	localDigest, err := c.LocalDigest(localPath)
	if err != nil {
		return false, err
	}

	synced := Equal(remoteDigest, localDigest)
	logger.Debug().
		Str("artifact", name).
		Str("remote", remoteDigest).
		Str("local", localDigest).
		Bool("synchronized", synced).
		Msg("Compared fingerprints")
	return synced, nil
}

// Equal compares two hex digests case-insensitively.
func Equal(a, b string) bool {
	return a != "" && strings.EqualFold(a, b)
}

// ParseSumOutput extracts the digest from sha256sum-style output
// ("<hex>  <path>"). Anything that does not start with a 64-character
// hex field is rejected.
func ParseSumOutput(out string) (string, error) {
	fields := strings.Fields(out)
	if len(fields) == 0 {
		return "", errors.New(errors.ErrRemoteCommand, "empty digest output")
	}
	digest := strings.ToLower(fields[0])
	if len(digest) != sha256.Size*2 {
		return "", errors.Newf(errors.ErrRemoteCommand, "digest field has length %d, want %d", len(digest), sha256.Size*2)
	}
	if _, err := hex.DecodeString(digest); err != nil {
		return "", errors.Newf(errors.ErrRemoteCommand, "digest field is not hex: %q", digest)
	}
	return digest, nil
}
