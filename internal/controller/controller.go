// Package controller owns the current plan and drives its execution.
// All plan mutation happens on the control loop; readers get clones.
package controller

import (
	"context"
	"errors"
	"sync"

	"github.com/joss/taskpilot/internal/executor"
	"github.com/joss/taskpilot/internal/logging"
	"github.com/joss/taskpilot/internal/plan"
)

// Generator revises a plan in response to new user input. It is the
// external plan-generation collaborator; calls may be slow and are
// never made on the control loop.
type Generator interface {
	ModifyPlan(ctx context.Context, current *plan.Plan, request string) (*plan.Plan, error)
}

// Archiver receives plans that reached a terminal status or were
// replaced. Failures are logged, never fatal.
type Archiver interface {
	ArchiveRun(p *plan.Plan) error
}

// ErrMailboxFull reports that a control message was dropped because
// the mailbox is at capacity. Producers decide whether to retry.
var ErrMailboxFull = errors.New("controller mailbox full")

const mailboxCapacity = 256

// completion carries one finished task attempt back to the loop.
type completion struct {
	planID string
	taskID string
	result *plan.Result
}

// Controller serializes all plan mutation behind a mailbox and a
// single scheduling loop.
type Controller struct {
	mu       sync.RWMutex
	current  *plan.Plan
	requests []string // high-priority FIFO of raw user input

	mailbox     chan Message
	completions chan completion

	exec         *executor.Executor
	generator    Generator
	archiver     Archiver
	pauseOnError bool

	inflight     int
	regenPending bool
	planCtx      context.Context
	planCancel   context.CancelFunc

	logger *logging.Logger

	// Callbacks fire from the control loop; keep them fast.
	OnTaskStarted  func(taskID string)
	OnTaskComplete func(taskID string, result *plan.Result)
	OnPlanStatus   func(planID string, status plan.PlanStatus)
}

// Option configures a Controller.
type Option func(*Controller)

// WithGenerator sets the plan-generation collaborator.
func WithGenerator(g Generator) Option {
	return func(c *Controller) { c.generator = g }
}

// WithArchiver sets the run-history sink.
func WithArchiver(a Archiver) Option {
	return func(c *Controller) { c.archiver = a }
}

// WithPauseOnError halts the whole plan on the first exhausted task
// failure instead of continuing with unrelated ready tasks.
func WithPauseOnError(on bool) Option {
	return func(c *Controller) { c.pauseOnError = on }
}

// New creates a controller around an executor.
func New(exec *executor.Executor, opts ...Option) *Controller {
	c := &Controller{
		mailbox:     make(chan Message, mailboxCapacity),
		completions: make(chan completion, 64),
		exec:        exec,
		logger:      logging.New("controller"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send enqueues a control message without blocking. A full mailbox
// returns ErrMailboxFull rather than stalling the producer.
func (c *Controller) Send(m Message) error {
	select {
	case c.mailbox <- m:
		return nil
	default:
		return ErrMailboxFull
	}
}

// StartPlan validates and installs a plan. Validation failures are
// returned to the caller and leave the current plan untouched.
func (c *Controller) StartPlan(p *plan.Plan) error {
	if err := plan.Validate(p); err != nil {
		return err
	}
	return c.Send(Message{Type: MsgStart, Plan: p})
}

// ModifyPlan validates and enqueues a wholesale plan replacement.
func (c *Controller) ModifyPlan(p *plan.Plan) error {
	if err := plan.Validate(p); err != nil {
		return err
	}
	return c.Send(Message{Type: MsgModify, Plan: p})
}

// Pause suspends scheduling of new tasks. No-op unless executing.
func (c *Controller) Pause() error {
	return c.Send(Message{Type: MsgPause})
}

// Resume continues a paused plan. No-op unless paused.
func (c *Controller) Resume() error {
	return c.Send(Message{Type: MsgResume})
}

// Cancel terminates the current plan from any non-terminal state.
func (c *Controller) Cancel() error {
	return c.Send(Message{Type: MsgCancel})
}

// UserRequest queues new user input for plan regeneration.
func (c *Controller) UserRequest(text string) error {
	return c.Send(Message{Type: MsgUserRequest, Text: text})
}

// Snapshot returns a point-in-time clone of the current plan, or nil
// if none is installed. Safe to call concurrently with the loop.
func (c *Controller) Snapshot() *plan.Plan {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return nil
	}
	return c.current.Clone()
}

// PendingRequests returns the queued user requests, oldest first.
func (c *Controller) PendingRequests() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.requests...)
}

// archive hands a finished or replaced plan to the archiver.
func (c *Controller) archive(p *plan.Plan) {
	if c.archiver == nil || p == nil {
		return
	}
	if err := c.archiver.ArchiveRun(p.Clone()); err != nil {
		c.logger.WithPlan(p.ID).Warn("archive_failed", nil, err)
	}
}

func (c *Controller) notifyStatus(p *plan.Plan) {
	if c.OnPlanStatus != nil && p != nil {
		c.OnPlanStatus(p.ID, p.Status)
	}
}
