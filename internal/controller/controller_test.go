package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/joss/taskpilot/internal/executor"
	"github.com/joss/taskpilot/internal/plan"
	"github.com/joss/taskpilot/internal/step"
)

// stubRunner records dispatch order and lets tests block or fail
// individual tasks by id.
type stubRunner struct {
	mu    sync.Mutex
	order []string
	fail  map[string]bool
	block map[string]chan struct{}
}

func newStubRunner() *stubRunner {
	return &stubRunner{
		fail:  make(map[string]bool),
		block: make(map[string]chan struct{}),
	}
}

func (s *stubRunner) gate(taskID string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := make(chan struct{})
	s.block[taskID] = g
	return g
}

func (s *stubRunner) started() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

func (s *stubRunner) Run(ctx context.Context, task step.Request) (string, error) {
	s.mu.Lock()
	s.order = append(s.order, task.TaskID)
	g := s.block[task.TaskID]
	fail := s.fail[task.TaskID]
	s.mu.Unlock()

	if g != nil {
		select {
		case <-g:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if fail {
		return "", errors.New("task blew up")
	}
	return "done " + task.TaskID, nil
}

type stubArchiver struct {
	mu   sync.Mutex
	runs []*plan.Plan
}

func (a *stubArchiver) ArchiveRun(p *plan.Plan) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runs = append(a.runs, p)
	return nil
}

func (a *stubArchiver) archived() []*plan.Plan {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*plan.Plan(nil), a.runs...)
}

type stubGenerator struct {
	mu    sync.Mutex
	calls []string
	next  *plan.Plan
	err   error
	gate  chan struct{}
}

func (g *stubGenerator) ModifyPlan(ctx context.Context, current *plan.Plan, request string) (*plan.Plan, error) {
	g.mu.Lock()
	g.calls = append(g.calls, request)
	gate := g.gate
	g.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if g.err != nil {
		return nil, g.err
	}
	return g.next.Clone(), nil
}

func (g *stubGenerator) requests() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

func startController(t *testing.T, r step.Runner, policy executor.Policy, opts ...Option) *Controller {
	t.Helper()
	if policy.Timeout == 0 {
		policy.Timeout = 2 * time.Second
	}
	if policy.MaxConcurrent == 0 {
		policy.MaxConcurrent = 1
	}
	ctrl := New(executor.New(r, policy), opts...)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go ctrl.Run(ctx)
	return ctrl
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func linearPlan() *plan.Plan {
	return plan.New("linear", []plan.Task{
		{ID: "a", Description: "first", Kind: plan.KindListDir},
		{ID: "b", Description: "second", Kind: plan.KindListDir, Dependencies: []string{"a"}},
		{ID: "c", Description: "third", Kind: plan.KindListDir, Dependencies: []string{"b"}},
	})
}

func planStatus(c *Controller) plan.PlanStatus {
	s := c.Snapshot()
	if s == nil {
		return ""
	}
	return s.Status
}

func TestLinearPlanRunsToCompletion(t *testing.T) {
	runner := newStubRunner()
	ctrl := startController(t, runner, executor.Policy{}, WithPauseOnError(true))

	if err := ctrl.StartPlan(linearPlan()); err != nil {
		t.Fatalf("StartPlan: %v", err)
	}

	waitFor(t, "plan completion", func() bool { return planStatus(ctrl) == plan.PlanCompleted })

	got := runner.started()
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("execution order %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("execution order %v, want %v", got, want)
		}
	}

	snap := ctrl.Snapshot()
	for _, task := range snap.Tasks {
		if task.Status != plan.TaskCompleted {
			t.Errorf("task %s status %s, want completed", task.ID, task.Status)
		}
		if task.Result == nil || !task.Result.Success {
			t.Errorf("task %s missing success result", task.ID)
		}
	}
}

func TestIndependentTasksRunInInsertionOrder(t *testing.T) {
	runner := newStubRunner()
	ctrl := startController(t, runner, executor.Policy{MaxConcurrent: 1})

	p := plan.New("flat", []plan.Task{
		{ID: "b", Kind: plan.KindListDir},
		{ID: "a", Kind: plan.KindListDir},
	})
	if err := ctrl.StartPlan(p); err != nil {
		t.Fatalf("StartPlan: %v", err)
	}
	waitFor(t, "plan completion", func() bool { return planStatus(ctrl) == plan.PlanCompleted })

	got := runner.started()
	if len(got) != 2 || got[0] != "b" || got[1] != "a" {
		t.Errorf("expected insertion-order dispatch [b a], got %v", got)
	}
}

func TestStartPlanRejectsInvalidPlan(t *testing.T) {
	ctrl := New(executor.New(newStubRunner(), executor.Policy{}))

	cyclic := plan.New("cyclic", []plan.Task{
		{ID: "a", Dependencies: []string{"b"}},
		{ID: "b", Dependencies: []string{"a"}},
	})
	var cycleErr *plan.CycleError
	if err := ctrl.StartPlan(cyclic); !errors.As(err, &cycleErr) {
		t.Fatalf("expected CycleError, got %v", err)
	}

	dangling := plan.New("dangling", []plan.Task{
		{ID: "a", Dependencies: []string{"ghost"}},
	})
	var dangErr *plan.DanglingDependencyError
	if err := ctrl.StartPlan(dangling); !errors.As(err, &dangErr) {
		t.Fatalf("expected DanglingDependencyError, got %v", err)
	}

	if ctrl.Snapshot() != nil {
		t.Error("rejected plans must not be installed")
	}
}

func TestPauseHoldsSchedulingButRecordsInflight(t *testing.T) {
	runner := newStubRunner()
	gateA := runner.gate("a")
	ctrl := startController(t, runner, executor.Policy{})

	if err := ctrl.StartPlan(linearPlan()); err != nil {
		t.Fatalf("StartPlan: %v", err)
	}
	waitFor(t, "task a start", func() bool { return len(runner.started()) == 1 })

	if err := ctrl.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	waitFor(t, "paused status", func() bool { return planStatus(ctrl) == plan.PlanPaused })

	// The in-flight task finishes while paused; its result still lands.
	close(gateA)
	waitFor(t, "task a result", func() bool {
		a := ctrl.Snapshot().Find("a")
		return a != nil && a.Status == plan.TaskCompleted
	})

	// But the successor must not be dispatched until resume.
	time.Sleep(2 * idleInterval)
	if started := runner.started(); len(started) != 1 {
		t.Fatalf("paused plan dispatched new work: %v", started)
	}

	if err := ctrl.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	waitFor(t, "plan completion", func() bool { return planStatus(ctrl) == plan.PlanCompleted })
}

func TestPauseIsNoOpUnlessExecuting(t *testing.T) {
	runner := newStubRunner()
	ctrl := startController(t, runner, executor.Policy{})

	// No plan installed: pause and resume must not install one.
	ctrl.Pause()
	ctrl.Resume()
	time.Sleep(50 * time.Millisecond)
	if ctrl.Snapshot() != nil {
		t.Fatal("pause/resume with no plan must stay a no-op")
	}

	if err := ctrl.StartPlan(linearPlan()); err != nil {
		t.Fatalf("StartPlan: %v", err)
	}
	waitFor(t, "plan completion", func() bool { return planStatus(ctrl) == plan.PlanCompleted })

	// Resume on an executing-then-terminal plan never revives it.
	ctrl.Resume()
	time.Sleep(50 * time.Millisecond)
	if got := planStatus(ctrl); got != plan.PlanCompleted {
		t.Errorf("resume revived a terminal plan: %s", got)
	}
}

func TestFailureHaltsPlanWhenPauseOnError(t *testing.T) {
	runner := newStubRunner()
	runner.fail["a"] = true
	ctrl := startController(t, runner, executor.Policy{}, WithPauseOnError(true))

	if err := ctrl.StartPlan(linearPlan()); err != nil {
		t.Fatalf("StartPlan: %v", err)
	}
	waitFor(t, "plan failure", func() bool { return planStatus(ctrl) == plan.PlanFailed })

	snap := ctrl.Snapshot()
	if a := snap.Find("a"); a.Status != plan.TaskFailed || a.Result == nil || a.Result.Success {
		t.Errorf("task a should carry a failure result, got %+v", a)
	}
	for _, id := range []string{"b", "c"} {
		if task := snap.Find(id); task.Status != plan.TaskPending {
			t.Errorf("task %s should stay pending after halt, got %s", id, task.Status)
		}
	}
}

func TestFailureContinuesUnrelatedWorkWithoutPauseOnError(t *testing.T) {
	runner := newStubRunner()
	runner.fail["a"] = true
	ctrl := startController(t, runner, executor.Policy{}, WithPauseOnError(false))

	p := plan.New("fanout", []plan.Task{
		{ID: "a", Kind: plan.KindListDir},
		{ID: "b", Kind: plan.KindListDir},
		{ID: "child", Kind: plan.KindListDir, Dependencies: []string{"a"}},
	})
	if err := ctrl.StartPlan(p); err != nil {
		t.Fatalf("StartPlan: %v", err)
	}

	// b is independent of the failed a and still completes; child can
	// never run, so the plan drains to failed.
	waitFor(t, "plan terminal", func() bool { return planStatus(ctrl).Terminal() })

	snap := ctrl.Snapshot()
	if snap.Status != plan.PlanFailed {
		t.Errorf("drained plan with a failed task should be failed, got %s", snap.Status)
	}
	if b := snap.Find("b"); b.Status != plan.TaskCompleted {
		t.Errorf("independent task b should complete, got %s", b.Status)
	}
	if child := snap.Find("child"); child.Status == plan.TaskCompleted || child.Status == plan.TaskInProgress {
		t.Errorf("child of failed task must never run, got %s", child.Status)
	}
}

func TestCancelStopsPlan(t *testing.T) {
	runner := newStubRunner()
	runner.gate("a") // never released; cancellation must unblock it
	archiver := &stubArchiver{}
	ctrl := startController(t, runner, executor.Policy{}, WithArchiver(archiver))

	if err := ctrl.StartPlan(linearPlan()); err != nil {
		t.Fatalf("StartPlan: %v", err)
	}
	waitFor(t, "task a start", func() bool { return len(runner.started()) == 1 })

	if err := ctrl.Cancel(); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	waitFor(t, "cancelled status", func() bool { return planStatus(ctrl) == plan.PlanCancelled })

	// The discarded in-flight result must not flip any task to completed.
	time.Sleep(50 * time.Millisecond)
	snap := ctrl.Snapshot()
	for _, task := range snap.Tasks {
		if task.Status == plan.TaskCompleted {
			t.Errorf("cancelled plan recorded completion for %s", task.ID)
		}
	}

	waitFor(t, "archive", func() bool { return len(archiver.archived()) == 1 })

	// Cancel is idempotent on a terminal plan.
	ctrl.Cancel()
	time.Sleep(50 * time.Millisecond)
	if got := planStatus(ctrl); got != plan.PlanCancelled {
		t.Errorf("second cancel changed status to %s", got)
	}
	if len(archiver.archived()) != 1 {
		t.Error("terminal plan must not be archived twice")
	}
}

func TestUserRequestRegeneratesPlan(t *testing.T) {
	runner := newStubRunner()
	runner.gate("a") // old plan parks on its first task
	replacement := plan.New("revised", []plan.Task{
		{ID: "r1", Kind: plan.KindListDir},
	})
	gen := &stubGenerator{next: replacement}
	archiver := &stubArchiver{}
	ctrl := startController(t, runner, executor.Policy{},
		WithGenerator(gen), WithArchiver(archiver))

	original := linearPlan()
	if err := ctrl.StartPlan(original); err != nil {
		t.Fatalf("StartPlan: %v", err)
	}
	waitFor(t, "task a start", func() bool { return len(runner.started()) == 1 })

	if err := ctrl.UserRequest("also add docs"); err != nil {
		t.Fatalf("UserRequest: %v", err)
	}

	waitFor(t, "replacement completion", func() bool {
		s := ctrl.Snapshot()
		return s != nil && s.ID == replacement.ID && s.Status == plan.PlanCompleted
	})

	calls := gen.requests()
	if len(calls) != 1 || calls[0] != "also add docs" {
		t.Errorf("generator calls = %v, want exactly one with the request text", calls)
	}
	if pending := ctrl.PendingRequests(); len(pending) != 0 {
		t.Errorf("request queue should drain after replacement, got %v", pending)
	}

	// The replaced plan is archived in its abandoned state.
	waitFor(t, "old plan archive", func() bool {
		for _, p := range archiver.archived() {
			if p.ID == original.ID {
				return true
			}
		}
		return false
	})
}

func TestPendingRequestBlocksDispatchUntilDrained(t *testing.T) {
	runner := newStubRunner()
	gateA := runner.gate("a")
	gen := &stubGenerator{err: errors.New("model unavailable"), gate: make(chan struct{})}
	ctrl := startController(t, runner, executor.Policy{}, WithGenerator(gen))

	p := plan.New("two", []plan.Task{
		{ID: "a", Kind: plan.KindListDir},
		{ID: "b", Kind: plan.KindListDir},
	})
	if err := ctrl.StartPlan(p); err != nil {
		t.Fatalf("StartPlan: %v", err)
	}
	waitFor(t, "task a start", func() bool { return len(runner.started()) == 1 })

	if err := ctrl.UserRequest("change everything"); err != nil {
		t.Fatalf("UserRequest: %v", err)
	}
	waitFor(t, "regeneration start", func() bool { return len(gen.requests()) == 1 })

	// a finishes, but b must wait while the request is outstanding.
	close(gateA)
	waitFor(t, "task a result", func() bool {
		a := ctrl.Snapshot().Find("a")
		return a != nil && a.Status == plan.TaskCompleted
	})
	time.Sleep(2 * idleInterval)
	if started := runner.started(); len(started) != 1 {
		t.Fatalf("dispatch ran ahead of a pending request: %v", started)
	}

	// Regeneration fails; the request drains and scheduling resumes on
	// the current plan.
	close(gen.gate)
	waitFor(t, "plan completion", func() bool { return planStatus(ctrl) == plan.PlanCompleted })
	if pending := ctrl.PendingRequests(); len(pending) != 0 {
		t.Errorf("failed regeneration must still drain the request, got %v", pending)
	}
}

func TestConcurrentDispatchRespectsBound(t *testing.T) {
	runner := newStubRunner()
	gate1 := runner.gate("p1")
	gate2 := runner.gate("p2")
	ctrl := startController(t, runner, executor.Policy{MaxConcurrent: 2})

	p := plan.New("parallel", []plan.Task{
		{ID: "p1", Kind: plan.KindListDir},
		{ID: "p2", Kind: plan.KindListDir},
		{ID: "p3", Kind: plan.KindListDir},
	})
	if err := ctrl.StartPlan(p); err != nil {
		t.Fatalf("StartPlan: %v", err)
	}

	waitFor(t, "two tasks in flight", func() bool { return len(runner.started()) == 2 })
	time.Sleep(2 * idleInterval)
	if started := runner.started(); len(started) != 2 {
		t.Fatalf("concurrency bound exceeded: %v", started)
	}

	close(gate1)
	close(gate2)
	waitFor(t, "plan completion", func() bool { return planStatus(ctrl) == plan.PlanCompleted })
	if started := runner.started(); len(started) != 3 {
		t.Errorf("all three tasks should run, got %v", started)
	}
}

func TestSendReportsFullMailbox(t *testing.T) {
	// Loop intentionally not running: the mailbox fills.
	ctrl := New(executor.New(newStubRunner(), executor.Policy{}))

	for i := 0; i < mailboxCapacity; i++ {
		if err := ctrl.Send(Message{Type: MsgUserRequest, Text: fmt.Sprintf("r%d", i)}); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	if err := ctrl.Send(Message{Type: MsgPause}); !errors.Is(err, ErrMailboxFull) {
		t.Fatalf("expected ErrMailboxFull, got %v", err)
	}
}

func TestSnapshotIsIsolatedFromLoop(t *testing.T) {
	runner := newStubRunner()
	runner.gate("a")
	ctrl := startController(t, runner, executor.Policy{})

	if err := ctrl.StartPlan(linearPlan()); err != nil {
		t.Fatalf("StartPlan: %v", err)
	}
	waitFor(t, "task a start", func() bool { return len(runner.started()) == 1 })

	snap := ctrl.Snapshot()
	snap.Status = plan.PlanCancelled
	snap.Tasks[0].Status = plan.TaskSkipped

	if got := planStatus(ctrl); got != plan.PlanExecuting {
		t.Errorf("mutating a snapshot leaked into the controller: %s", got)
	}
	if a := ctrl.Snapshot().Find("a"); a.Status != plan.TaskInProgress {
		t.Errorf("snapshot mutation leaked into task state: %s", a.Status)
	}
}
