// Package testutil provides shared test doubles for the pipeline's
// external tools.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Call records one Runner invocation.
type Call struct {
	Name string
	Args []string
}

// Command returns the invocation as a single space-joined string, which
// keeps call assertions readable.
func (c Call) Command() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Handler produces the scripted outcome for one invocation.
type Handler func(call Call) (stdout string, err error)

// ScriptedRunner is a run.Runner whose behavior is programmed per tool
// name. Unscripted tools succeed with empty output, so tests only have
// to describe the interesting behavior.
type ScriptedRunner struct {
	mu       sync.Mutex
	handlers map[string]Handler
	calls    []Call
}

// NewScriptedRunner returns an empty scripted runner.
func NewScriptedRunner() *ScriptedRunner {
	return &ScriptedRunner{handlers: make(map[string]Handler)}
}

// On registers the handler invoked whenever the named tool runs.
func (r *ScriptedRunner) On(name string, h Handler) *ScriptedRunner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
	return r
}

// OnOutput registers a fixed stdout for the named tool.
func (r *ScriptedRunner) OnOutput(name, stdout string) *ScriptedRunner {
	return r.On(name, func(Call) (string, error) { return stdout, nil })
}

// OnError registers a fixed failure for the named tool.
func (r *ScriptedRunner) OnError(name, message string) *ScriptedRunner {
	return r.On(name, func(Call) (string, error) {
		return "", fmt.Errorf("%s: exit status 1: %s", name, message)
	})
}

// Run implements run.Runner.
func (r *ScriptedRunner) Run(_ context.Context, name string, args ...string) (string, error) {
	r.mu.Lock()
	call := Call{Name: name, Args: args}
	r.calls = append(r.calls, call)
	h := r.handlers[name]
	r.mu.Unlock()

	if h == nil {
		return "", nil
	}
	return h(call)
}

// Calls returns every recorded invocation in order.
func (r *ScriptedRunner) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// CallsTo returns the recorded invocations of one tool.
func (r *ScriptedRunner) CallsTo(name string) []Call {
	var out []Call
	for _, c := range r.Calls() {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}
