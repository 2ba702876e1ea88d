// Package run wraps external tool invocation. Every external operation
// in the pipeline (remote listing, remote digest, transfer, decryption,
// expansion, secure deletion) is a blocking subprocess call whose exit
// status is inspected before proceeding; tests substitute a scripted
// Runner.
package run

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/arthur-debert/backhaul/pkg/logging"
)

// Runner executes an external tool and returns its stdout. A non-zero
// exit status is returned as an error carrying the tool's stderr.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// ExecRunner runs tools via os/exec.
type ExecRunner struct{}

// NewExecRunner returns a Runner backed by os/exec.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run executes the tool and waits for completion.
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	logging.LogCommand(name, args)

	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return stdout.String(), fmt.Errorf("%s: %w", name, err)
		}
		return stdout.String(), fmt.Errorf("%s: %w: %s", name, err, msg)
	}
	return stdout.String(), nil
}
