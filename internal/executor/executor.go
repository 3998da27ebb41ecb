// Package executor runs single tasks under timeout, retry, and
// concurrency policy. It knows nothing about plans or scheduling;
// the controller decides what runs, the executor decides how.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joss/taskpilot/internal/logging"
	"github.com/joss/taskpilot/internal/plan"
	"github.com/joss/taskpilot/internal/step"
)

// Policy holds the execution knobs. Zero values are normalized in New.
type Policy struct {
	// Timeout bounds a single attempt.
	Timeout time.Duration

	// AutoRetry enables retrying failed attempts.
	AutoRetry bool

	// MaxRetries is the number of extra attempts after the first.
	MaxRetries int

	// MaxConcurrent bounds simultaneous attempts across all tasks.
	MaxConcurrent int
}

// Executor executes one task at a time per slot via the step runner.
type Executor struct {
	runner step.Runner
	policy Policy
	slots  chan struct{}
	logger *logging.Logger
}

// New creates an executor around a step runner.
func New(runner step.Runner, policy Policy) *Executor {
	if policy.Timeout <= 0 {
		policy.Timeout = 120 * time.Second
	}
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	if policy.MaxConcurrent < 1 {
		policy.MaxConcurrent = 1
	}
	return &Executor{
		runner: runner,
		policy: policy,
		slots:  make(chan struct{}, policy.MaxConcurrent),
		logger: logging.New("executor"),
	}
}

// Policy returns the normalized policy in effect.
func (e *Executor) Policy() Policy {
	return e.policy
}

// Execute runs the task to a terminal result, blocking for a
// concurrency slot first. The returned result is always non-nil:
// success with the runner's output, or a structured failure carrying
// the last attempt's error and the attempt count. A timed-out attempt
// is a retryable failure, never a success.
func (e *Executor) Execute(ctx context.Context, t plan.Task) *plan.Result {
	select {
	case e.slots <- struct{}{}:
		defer func() { <-e.slots }()
	case <-ctx.Done():
		return &plan.Result{TaskID: t.ID, Success: false, Error: ctx.Err().Error()}
	}

	attempts := e.policy.MaxRetries + 1
	if !e.policy.AutoRetry {
		attempts = 1
	}

	start := time.Now()
	log := e.logger.WithTask(t.ID)
	runID := ulid.Make().String()

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		output, err := e.attempt(ctx, t)
		if err == nil {
			log.TimedEvent("task_completed", start, map[string]interface{}{
				"run_id":  runID,
				"attempt": attempt,
			})
			return &plan.Result{
				TaskID:   t.ID,
				Success:  true,
				Output:   output,
				Attempts: attempt,
				Duration: time.Since(start),
			}
		}
		lastErr = err

		if ctx.Err() != nil {
			// The plan was cancelled; further attempts are pointless.
			lastErr = ctx.Err()
			attempts = attempt
			break
		}

		log.Warn("task_attempt_failed", map[string]interface{}{
			"run_id":  runID,
			"attempt": attempt,
			"of":      attempts,
		}, err)
	}

	log.Error("task_failed", map[string]interface{}{
		"run_id":   runID,
		"attempts": attempts,
	}, lastErr)
	return &plan.Result{
		TaskID:   t.ID,
		Success:  false,
		Error:    lastErr.Error(),
		Attempts: attempts,
		Duration: time.Since(start),
	}
}

// attempt runs one bounded attempt through the step runner.
func (e *Executor) attempt(ctx context.Context, t plan.Task) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, e.policy.Timeout)
	defer cancel()

	output, err := e.runner.Run(attemptCtx, step.Request{
		TaskID:      t.ID,
		Description: t.Description,
		Kind:        string(t.Kind),
		Parameters:  t.Parameters,
	})
	if err != nil {
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return "", fmt.Errorf("attempt timed out after %s: %w", e.policy.Timeout, err)
		}
		return "", err
	}
	// A runner that ignores its context could return success after the
	// deadline; surface that as the timeout it is.
	if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return "", fmt.Errorf("attempt timed out after %s", e.policy.Timeout)
	}
	return output, nil
}
