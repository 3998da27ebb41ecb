package controller

import (
	"context"
	"time"

	"github.com/joss/taskpilot/internal/plan"
)

// idleInterval bounds the wait when nothing is ready and no message
// arrives; the loop is otherwise fully event-driven.
const idleInterval = 250 * time.Millisecond

// Run drives the control loop until ctx is done. Control messages are
// processed strictly before autonomous scheduling progress, so
// external actors always win over the scheduler.
func (c *Controller) Run(ctx context.Context) {
	defer c.shutdown()

	for {
		// Service everything already queued first.
		select {
		case m := <-c.mailbox:
			c.handle(ctx, m)
			continue
		case comp := <-c.completions:
			c.record(comp)
			continue
		case <-ctx.Done():
			return
		default:
		}

		// One autonomous scheduling step.
		if c.dispatch(ctx) {
			continue
		}

		// Nothing to do: block until a message, a completion, or the
		// idle tick.
		select {
		case m := <-c.mailbox:
			c.handle(ctx, m)
		case comp := <-c.completions:
			c.record(comp)
		case <-ctx.Done():
			return
		case <-time.After(idleInterval):
		}
	}
}

func (c *Controller) shutdown() {
	c.mu.Lock()
	if c.planCancel != nil {
		c.planCancel()
		c.planCancel = nil
	}
	c.mu.Unlock()
}

// handle applies one control message. Invalid transitions are silent
// no-ops: external actors race with state they cannot observe.
func (c *Controller) handle(ctx context.Context, m Message) {
	switch m.Type {
	case MsgStart:
		c.install(ctx, m.Plan, "")

	case MsgPause:
		c.mu.Lock()
		p := c.current
		if p != nil && p.Status == plan.PlanExecuting {
			p.Status = plan.PlanPaused
			c.mu.Unlock()
			c.logger.WithPlan(p.ID).Info("plan_paused", nil)
			c.notifyStatus(p)
			return
		}
		c.mu.Unlock()

	case MsgResume:
		c.mu.Lock()
		p := c.current
		if p != nil && p.Status == plan.PlanPaused {
			p.Status = plan.PlanExecuting
			c.mu.Unlock()
			c.logger.WithPlan(p.ID).Info("plan_resumed", nil)
			c.notifyStatus(p)
			c.maybeRegenerate(ctx)
			return
		}
		c.mu.Unlock()

	case MsgCancel:
		c.mu.Lock()
		p := c.current
		if p != nil && !p.Status.Terminal() {
			p.Status = plan.PlanCancelled
			if c.planCancel != nil {
				c.planCancel()
				c.planCancel = nil
			}
			c.mu.Unlock()
			c.logger.WithPlan(p.ID).Info("plan_cancelled", nil)
			c.archive(p)
			c.notifyStatus(p)
			return
		}
		c.mu.Unlock()

	case MsgUserRequest:
		c.mu.Lock()
		c.requests = append(c.requests, m.Text)
		c.mu.Unlock()
		c.logger.Info("user_request_queued", map[string]interface{}{"request": m.Text})
		c.maybeRegenerate(ctx)

	case MsgModify:
		c.install(ctx, m.Plan, m.Text)

	case msgRequestDone:
		// Regeneration finished without a candidate plan; drain the
		// request so scheduling can continue.
		c.mu.Lock()
		c.popRequestLocked(m.Text)
		c.regenPending = false
		c.mu.Unlock()
		c.maybeRegenerate(ctx)
	}
}

// install replaces the current plan wholesale. Execution progress of
// the replaced plan is discarded; its last state goes to the archive.
// fromRequest names the user request this plan answers, if any.
func (c *Controller) install(ctx context.Context, p *plan.Plan, fromRequest string) {
	if p == nil {
		return
	}

	c.mu.Lock()
	old := c.current
	if c.planCancel != nil {
		// In-flight attempts of the old plan stop at their next
		// cancellation check; their results are discarded by plan id.
		c.planCancel()
	}
	planCtx, cancel := context.WithCancel(ctx)
	c.planCtx = planCtx
	c.planCancel = cancel

	p.Status = plan.PlanExecuting
	c.current = p
	if fromRequest != "" {
		c.popRequestLocked(fromRequest)
		c.regenPending = false
	}
	c.mu.Unlock()

	if old != nil {
		c.archive(old)
	}
	c.logger.WithPlan(p.ID).Info("plan_installed", map[string]interface{}{
		"tasks":    len(p.Tasks),
		"replaced": old != nil,
	})
	c.notifyStatus(p)
	c.maybeRegenerate(ctx)
}

// dispatch takes the first ready task, marks it in progress, and hands
// it to the executor on a fresh goroutine. Returns false when there is
// nothing to dispatch this iteration: plan not executing, a user
// request pending regeneration, the concurrency bound reached, or no
// task ready.
func (c *Controller) dispatch(ctx context.Context) bool {
	c.mu.Lock()
	cur := c.current
	if cur == nil || cur.Status != plan.PlanExecuting || len(c.requests) > 0 {
		c.mu.Unlock()
		return false
	}
	if c.inflight >= c.exec.Policy().MaxConcurrent {
		c.mu.Unlock()
		return false
	}
	t := plan.NextReady(cur)
	if t == nil {
		c.mu.Unlock()
		return false
	}

	t.Status = plan.TaskInProgress
	task := *t
	planID := cur.ID
	planCtx := c.planCtx
	c.inflight++
	c.mu.Unlock()

	c.logger.WithPlan(planID).WithTask(task.ID).Info("task_dispatched", map[string]interface{}{
		"kind": string(task.Kind),
	})
	if c.OnTaskStarted != nil {
		c.OnTaskStarted(task.ID)
	}

	go func() {
		res := c.exec.Execute(planCtx, task)
		select {
		case c.completions <- completion{planID: planID, taskID: task.ID, result: res}:
		case <-ctx.Done():
		}
	}()
	return true
}

// record books a finished attempt into the plan. Results for a
// replaced or terminal plan are discarded.
func (c *Controller) record(comp completion) {
	c.mu.Lock()
	c.inflight--
	cur := c.current
	if cur == nil || cur.ID != comp.planID || cur.Status.Terminal() {
		c.mu.Unlock()
		c.logger.WithTask(comp.taskID).Debug("result_discarded", map[string]interface{}{
			"plan": comp.planID,
		})
		return
	}

	// Find may fail only if the plan was mutated outside the loop;
	// treat it as a discard.
	if err := plan.SetTaskResult(cur, comp.taskID, comp.result); err != nil {
		c.mu.Unlock()
		c.logger.WithTask(comp.taskID).Warn("result_unmatched", nil, err)
		return
	}

	terminal := false
	switch {
	case !comp.result.Success && c.pauseOnError:
		cur.Status = plan.PlanFailed
		terminal = true
	case plan.AllCompleted(cur):
		cur.Status = plan.PlanCompleted
		terminal = true
	case plan.AllDone(cur) && cur.Status == plan.PlanExecuting:
		// Every task terminal but not all completed: nothing further
		// can run, so the plan is failed even without pause-on-error.
		cur.Status = plan.PlanFailed
		terminal = true
	}
	c.mu.Unlock()

	if c.OnTaskComplete != nil {
		c.OnTaskComplete(comp.taskID, comp.result)
	}
	if terminal {
		c.logger.WithPlan(cur.ID).Info("plan_finished", map[string]interface{}{
			"status": string(cur.Status),
		})
		c.archive(cur)
		c.notifyStatus(cur)
	}
}

// maybeRegenerate launches one async plan regeneration for the oldest
// queued request. At most one regeneration is in flight; its outcome
// re-enters the loop as MsgModify or msgRequestDone.
func (c *Controller) maybeRegenerate(ctx context.Context) {
	c.mu.Lock()
	if c.regenPending || c.generator == nil || c.current == nil ||
		c.current.Status != plan.PlanExecuting || len(c.requests) == 0 {
		c.mu.Unlock()
		return
	}
	request := c.requests[0]
	snapshot := c.current.Clone()
	c.regenPending = true
	c.mu.Unlock()

	c.logger.WithPlan(snapshot.ID).Info("plan_regeneration_started", map[string]interface{}{
		"request": request,
	})

	go func() {
		candidate, err := c.generator.ModifyPlan(ctx, snapshot, request)
		if err == nil && candidate != nil {
			err = plan.Validate(candidate)
		}
		if err != nil || candidate == nil {
			c.logger.WithPlan(snapshot.ID).Error("plan_regeneration_failed", map[string]interface{}{
				"request": request,
			}, err)
			c.sendOrDrop(ctx, Message{Type: msgRequestDone, Text: request})
			return
		}
		c.sendOrDrop(ctx, Message{Type: MsgModify, Plan: candidate, Text: request})
	}()
}

// sendOrDrop blocks until the loop accepts the message or the run
// context ends. Internal messages must not be lost to a full mailbox,
// or a queued request would stall scheduling forever.
func (c *Controller) sendOrDrop(ctx context.Context, m Message) {
	select {
	case c.mailbox <- m:
	case <-ctx.Done():
	}
}

func (c *Controller) popRequestLocked(text string) {
	for i, r := range c.requests {
		if r == text {
			c.requests = append(c.requests[:i], c.requests[i+1:]...)
			return
		}
	}
}
