package render

import (
	"strings"
	"testing"
	"time"

	"github.com/joss/taskpilot/internal/history"
	"github.com/joss/taskpilot/internal/plan"
)

func samplePlan() *plan.Plan {
	p := plan.New("refactor the parser", []plan.Task{
		{ID: "scan", Description: "analyze the tree", Kind: plan.KindAnalyzeCode,
			Status: plan.TaskCompleted,
			Result: &plan.Result{TaskID: "scan", Success: true, Attempts: 1}},
		{ID: "build", Description: "run the build", Kind: plan.KindRunCommand,
			Dependencies: []string{"scan"}, Status: plan.TaskFailed,
			Result: &plan.Result{TaskID: "build", Success: false, Error: "exit status 2", Attempts: 3}},
		{ID: "docs", Description: "update docs", Kind: plan.KindWriteFile,
			Dependencies: []string{"build"}},
	})
	p.Status = plan.PlanFailed
	return p
}

func TestPlanPlain(t *testing.T) {
	out := New(false).Plan(samplePlan())

	for _, want := range []string{
		"Plan: refactor the parser [failed]",
		"✓ scan",
		"✗ build",
		"(after scan)",
		"exit status 2",
		"3 tasks: 1 completed, 1 failed, 1 pending",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestPlanNil(t *testing.T) {
	if got := New(false).Plan(nil); got != "No plan installed" {
		t.Errorf("nil plan rendered as %q", got)
	}
}

func TestPlanTruncatesLongErrors(t *testing.T) {
	p := plan.New("x", []plan.Task{
		{ID: "a", Status: plan.TaskFailed,
			Result: &plan.Result{Success: false, Error: strings.Repeat("e", 300)}},
	})
	out := New(false).Plan(p)
	if strings.Contains(out, strings.Repeat("e", 300)) {
		t.Error("long error should be truncated")
	}
	if !strings.Contains(out, "…") {
		t.Error("truncated error should end with ellipsis")
	}
}

func TestResult(t *testing.T) {
	r := New(false)

	ok := r.Result("scan", &plan.Result{Success: true, Attempts: 1, Duration: 1500 * time.Millisecond})
	if !strings.HasPrefix(ok, "✓ scan") || !strings.Contains(ok, "1.5s") {
		t.Errorf("success line = %q", ok)
	}

	bad := r.Result("build", &plan.Result{Success: false, Error: "exit 1", Attempts: 2})
	if !strings.HasPrefix(bad, "✗ build") || !strings.Contains(bad, "exit 1") {
		t.Errorf("failure line = %q", bad)
	}

	if r.Result("x", nil) != "" {
		t.Error("nil result should render empty")
	}
}

func TestRuns(t *testing.T) {
	r := New(false)

	if got := r.Runs(nil); got != "No archived runs" {
		t.Errorf("empty history rendered as %q", got)
	}

	out := r.Runs([]history.RunSummary{
		{Description: "ship it", Status: "completed", TasksCompleted: 3, TasksTotal: 3,
			ArchivedAt: time.Date(2026, 8, 30, 14, 5, 0, 0, time.UTC)},
	})
	for _, want := range []string{"2026-08-30 14:05", "completed", "3/3 tasks", "ship it"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in %q", want, out)
		}
	}
}
