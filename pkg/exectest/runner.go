// Package exectest provides recording fakes for the process runner and
// the provisioner, for tests that must observe exactly what would have
// been executed.
package exectest

import (
	"context"
	"sync"

	"github.com/chartfarm/chartfarm/pkg/cmdexec"
)

// Runner is a cmdexec.Runner that records every argv and answers from a
// stub. Without a stub every command succeeds with empty output.
type Runner struct {
	mu    sync.Mutex
	calls [][]string

	// Stub, when set, produces the result for each invocation.
	Stub func(argv []string) (cmdexec.CommandResult, error)
}

func (r *Runner) Run(ctx context.Context, argv []string) (cmdexec.CommandResult, error) {
	r.mu.Lock()
	recorded := make([]string, len(argv))
	copy(recorded, argv)
	r.calls = append(r.calls, recorded)
	r.mu.Unlock()

	if r.Stub != nil {
		return r.Stub(argv)
	}
	return cmdexec.CommandResult{Argv: argv}, nil
}

// Calls returns a copy of all recorded argument vectors.
func (r *Runner) Calls() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	calls := make([][]string, len(r.calls))
	copy(calls, r.calls)
	return calls
}
