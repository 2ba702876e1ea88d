// Package disposal destroys plaintext so it is unrecoverable by
// ordinary filesystem means. Regular files go through the configured
// multi-pass overwrite tool; directories are walked bottom-up. The
// tool's own exit status is not fully trustworthy (flash media with
// wear-leveling can keep "overwritten" blocks recoverable), so every
// result carries a post-condition verdict and callers that need a
// guarantee must check existence and apply their own retry policy.
package disposal

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/arthur-debert/backhaul/pkg/config"
	"github.com/arthur-debert/backhaul/pkg/logging"
	"github.com/arthur-debert/backhaul/pkg/retry"
	"github.com/arthur-debert/backhaul/pkg/run"
)

// Status is the three-way disposal verdict.
type Status string

const (
	// StatusCompleted: the tool reported success and the path is gone.
	StatusCompleted Status = "completed"
	// StatusToolFailed: the path is gone but the tool reported failure
	// somewhere, so the overwrite may be incomplete.
	StatusToolFailed Status = "tool-failed"
	// StatusStillPresent: the path survived the attempt.
	StatusStillPresent Status = "still-present"
)

// Result is the outcome for one wipe target.
type Result struct {
	Path   string `json:"path" yaml:"path"`
	Status Status `json:"status" yaml:"status"`
	Detail string `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// Complete reports whether the target was verifiably destroyed with the
// tool agreeing at every step.
func (r Result) Complete() bool {
	return r.Status == StatusCompleted
}

// Report aggregates a bulk wipe.
type Report struct {
	Results []Result `json:"results" yaml:"results"`
}

// Complete reports whether every entry was verifiably destroyed.
func (r *Report) Complete() bool {
	for _, res := range r.Results {
		if !res.Complete() {
			return false
		}
	}
	return true
}

// StillPresent reports whether any entry survived on disk, which is
// strictly worse than an unverified overwrite.
func (r *Report) StillPresent() bool {
	for _, res := range r.Results {
		if res.Status == StatusStillPresent {
			return true
		}
	}
	return false
}

// Engine performs secure disposal with the configured external tool.
type Engine struct {
	runner  run.Runner
	tool    string
	passes  int
	retries int
	poll    config.PollConfig
}

// NewEngine builds an Engine from the loaded configuration.
func NewEngine(runner run.Runner, cfg *config.Config) *Engine {
	return &Engine{
		runner:  runner,
		tool:    cfg.Tools.Wipe,
		passes:  cfg.Wipe.Passes,
		retries: cfg.Wipe.Retries,
		poll:    cfg.Poll,
	}
}

// Wipe destroys one target, file or directory. A missing target is
// already complete. It never returns an error for an unsuccessful
// destruction; the Result says what the caller can rely on.
func (e *Engine) Wipe(ctx context.Context, path string) Result {
	logger := logging.GetLogger("disposal")

	info, err := os.Lstat(path)
	if os.IsNotExist(err) {
		return Result{Path: path, Status: StatusCompleted}
	}
	if err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("Cannot stat wipe target")
		return Result{Path: path, Status: StatusStillPresent, Detail: err.Error()}
	}

	toolFailed := ""
	if info.IsDir() {
		toolFailed = e.wipeTree(ctx, path)
	} else if info.Mode().IsRegular() {
		if err := e.overwrite(ctx, path); err != nil {
			toolFailed = err.Error()
		}
	} else {
		// Symlinks and other non-regular entries carry no content to
		// overwrite.
		if err := os.Remove(path); err != nil {
			toolFailed = err.Error()
		}
	}

	if _, err := os.Lstat(path); err == nil {
		logger.Warn().Str("path", path).Msg("Wipe target still exists after disposal attempt")
		return Result{Path: path, Status: StatusStillPresent, Detail: toolFailed}
	}
	if toolFailed != "" {
		logger.Warn().Str("path", path).Str("toolError", toolFailed).
			Msg("Wipe target removed but the secure-delete tool reported failure; overwrite may be incomplete")
		return Result{Path: path, Status: StatusToolFailed, Detail: toolFailed}
	}
	logger.Debug().Str("path", path).Msg("Wipe target destroyed and verified absent")
	return Result{Path: path, Status: StatusCompleted}
}

// WipeVerified retries Wipe for targets that survive, up to the
// configured retry budget. This is the escalation layer the bulk wipe
// and the pipeline's emergency cleanup rely on.
func (e *Engine) WipeVerified(ctx context.Context, path string) Result {
	result := e.Wipe(ctx, path)
	if result.Status != StatusStillPresent || e.retries == 0 {
		return result
	}

	_, _ = retry.Until(ctx, e.retries, e.poll.Delay, func() (bool, error) {
		result = e.Wipe(ctx, path)
		return result.Status != StatusStillPresent, nil
	})
	return result
}

// WipeStore destroys every entry of the working store except the run
// log, one result per top-level entry.
func (e *Engine) WipeStore(ctx context.Context, store string) (*Report, error) {
	entries, err := os.ReadDir(store)
	if err != nil {
		if os.IsNotExist(err) {
			return &Report{}, nil
		}
		return nil, err
	}

	report := &Report{}
	for _, entry := range entries {
		if entry.Name() == config.RunLogName {
			continue
		}
		report.Results = append(report.Results, e.WipeVerified(ctx, filepath.Join(store, entry.Name())))
	}
	return report, nil
}

// wipeTree overwrites every regular file under root (deepest first),
// removes the other entries, then drops the emptied directories. A file
// whose overwrite failed is left in place so the failure stays visible.
func (e *Engine) wipeTree(ctx context.Context, root string) string {
	var files, dirs, others []string
	walkErr := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		switch {
		case d.IsDir():
			dirs = append(dirs, p)
		case d.Type().IsRegular():
			files = append(files, p)
		default:
			others = append(others, p)
		}
		return nil
	})
	if walkErr != nil {
		return walkErr.Error()
	}

	firstErr := ""
	record := func(err error) {
		if err != nil && firstErr == "" {
			firstErr = err.Error()
		}
	}

	for _, f := range files {
		record(e.overwrite(ctx, f))
	}
	for _, o := range others {
		record(os.Remove(o))
	}

	// Deepest directories first so each Remove sees an empty dir.
	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })
	for _, d := range dirs {
		if err := os.Remove(d); err != nil {
			// Non-empty means something above failed; already recorded.
			continue
		}
	}
	return firstErr
}

// overwrite invokes the secure-delete tool on one regular file. The
// tool contract is shred-like: -n passes, zero, then unlink.
func (e *Engine) overwrite(ctx context.Context, path string) error {
	_, err := e.runner.Run(ctx, e.tool, "-n", strconv.Itoa(e.passes), "-z", "-u", path)
	return err
}
