// Package step realizes the semantic effect of a single task.
// The orchestrator only sees the Runner interface; file I/O, command
// execution, and code analysis live behind it.
package step

import "context"

// Runner executes one task and returns its output.
// Implementations must honor ctx cancellation as the abort signal;
// the orchestrator cancels cooperatively, never kills.
type Runner interface {
	Run(ctx context.Context, task Request) (string, error)
}

// Request is the slice of a task a runner needs: the kind selects the
// operation, parameters configure it.
type Request struct {
	TaskID      string
	Description string
	Kind        string
	Parameters  map[string]string
}

// Func adapts a function to the Runner interface.
type Func func(ctx context.Context, task Request) (string, error)

// Run implements Runner.
func (f Func) Run(ctx context.Context, task Request) (string, error) {
	return f(ctx, task)
}
