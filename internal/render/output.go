// Package render provides console output formatting for plans and
// run history.
package render

import (
	"fmt"
	"strings"

	"github.com/fatih/color"

	"github.com/joss/taskpilot/internal/history"
	"github.com/joss/taskpilot/internal/plan"
)

// Renderer handles output formatting.
type Renderer struct {
	pretty bool
}

// New creates a new renderer. pretty false produces plain output
// suitable for pipes.
func New(pretty bool) *Renderer {
	return &Renderer{pretty: pretty}
}

// Plan formats a plan snapshot with per-task status.
func (r *Renderer) Plan(p *plan.Plan) string {
	if p == nil {
		return "No plan installed"
	}

	var sb strings.Builder
	if r.pretty {
		sb.WriteString(color.CyanString("Plan: %s", p.Description))
		sb.WriteString(fmt.Sprintf("  [%s]\n", r.planStatus(p.Status)))
		sb.WriteString(strings.Repeat("─", 60) + "\n")
	} else {
		fmt.Fprintf(&sb, "Plan: %s [%s]\n", p.Description, p.Status)
	}

	for _, t := range p.Tasks {
		r.formatTask(&sb, t)
	}

	c := plan.Tally(p)
	fmt.Fprintf(&sb, "%d tasks: %d completed, %d failed, %d pending\n",
		len(p.Tasks), c.Completed, c.Failed, c.Pending+c.InProgress)
	return sb.String()
}

func (r *Renderer) formatTask(sb *strings.Builder, t plan.Task) {
	marker := " "
	switch t.Status {
	case plan.TaskCompleted:
		marker = "✓"
		if r.pretty {
			marker = color.GreenString("✓")
		}
	case plan.TaskFailed:
		marker = "✗"
		if r.pretty {
			marker = color.RedString("✗")
		}
	case plan.TaskInProgress:
		marker = "►"
		if r.pretty {
			marker = color.YellowString("►")
		}
	case plan.TaskSkipped:
		marker = "-"
	}

	deps := ""
	if len(t.Dependencies) > 0 {
		deps = fmt.Sprintf("  (after %s)", strings.Join(t.Dependencies, ", "))
	}
	fmt.Fprintf(sb, "%s %-14s %s%s\n", marker, t.ID, t.Description, deps)

	if t.Result != nil && !t.Result.Success && t.Result.Error != "" {
		msg := t.Result.Error
		if len(msg) > 120 {
			msg = msg[:120] + "…"
		}
		if r.pretty {
			fmt.Fprintf(sb, "    %s\n", color.HiBlackString(msg))
		} else {
			fmt.Fprintf(sb, "    %s\n", msg)
		}
	}
}

func (r *Renderer) planStatus(s plan.PlanStatus) string {
	if !r.pretty {
		return string(s)
	}
	switch s {
	case plan.PlanCompleted:
		return color.GreenString(string(s))
	case plan.PlanFailed, plan.PlanCancelled:
		return color.RedString(string(s))
	case plan.PlanPaused:
		return color.YellowString(string(s))
	default:
		return string(s)
	}
}

// Result formats one finished task result line.
func (r *Renderer) Result(taskID string, res *plan.Result) string {
	if res == nil {
		return ""
	}
	if res.Success {
		line := fmt.Sprintf("✓ %s (%d attempt(s), %.1fs)", taskID, res.Attempts, res.Duration.Seconds())
		if r.pretty {
			return color.GreenString("✓") + line[len("✓"):]
		}
		return line
	}
	line := fmt.Sprintf("✗ %s: %s (%d attempt(s))", taskID, res.Error, res.Attempts)
	if r.pretty {
		return color.RedString("✗") + line[len("✗"):]
	}
	return line
}

// Runs formats archived run history.
func (r *Renderer) Runs(runs []history.RunSummary) string {
	if len(runs) == 0 {
		return "No archived runs"
	}

	var sb strings.Builder
	if r.pretty {
		sb.WriteString(color.CyanString("Run History\n"))
		sb.WriteString(strings.Repeat("─", 60) + "\n")
	}
	for _, run := range runs {
		status := run.Status
		if r.pretty {
			switch run.Status {
			case string(plan.PlanCompleted):
				status = color.GreenString(run.Status)
			case string(plan.PlanFailed), string(plan.PlanCancelled):
				status = color.RedString(run.Status)
			}
		}
		fmt.Fprintf(&sb, "%s  %-10s %d/%d tasks  %s\n",
			run.ArchivedAt.Format("2006-01-02 15:04"), status,
			run.TasksCompleted, run.TasksTotal, run.Description)
	}
	return sb.String()
}
