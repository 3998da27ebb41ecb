// Package plan defines the task dependency model and its bookkeeping.
// A Plan is the unit of user-requested work; Tasks are its schedulable steps.
package plan

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PlanStatus represents the state of a plan.
type PlanStatus string

const (
	PlanPending   PlanStatus = "pending"
	PlanExecuting PlanStatus = "executing"
	PlanPaused    PlanStatus = "paused"
	PlanCancelled PlanStatus = "cancelled"
	PlanCompleted PlanStatus = "completed"
	PlanFailed    PlanStatus = "failed"
)

// Terminal reports whether no further control message may revive the plan.
func (s PlanStatus) Terminal() bool {
	return s == PlanCancelled || s == PlanCompleted || s == PlanFailed
}

// TaskStatus represents the state of a task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskSkipped    TaskStatus = "skipped"
)

// Terminal reports whether the task has reached a final status.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskSkipped
}

// TaskKind identifies the semantic operation of a task. The orchestrator
// treats it as opaque; only the step runner interprets it.
type TaskKind string

const (
	KindReadFile    TaskKind = "read-file"
	KindWriteFile   TaskKind = "write-file"
	KindListDir     TaskKind = "list-dir"
	KindRunCommand  TaskKind = "run-command"
	KindAnalyzeCode TaskKind = "analyze-code"
)

// Result holds the terminal outcome of a task.
type Result struct {
	TaskID   string        `json:"task_id"`
	Success  bool          `json:"success"`
	Output   string        `json:"output,omitempty"`
	Error    string        `json:"error,omitempty"`
	Attempts int           `json:"attempts"`
	Duration time.Duration `json:"duration"`
}

// Task represents a unit of work assignable to the executor.
// Parameters are immutable after creation; changing them means
// building a new task.
type Task struct {
	ID           string            `json:"id"`
	Description  string            `json:"description"`
	Kind         TaskKind          `json:"kind"`
	Parameters   map[string]string `json:"parameters,omitempty"`
	Dependencies []string          `json:"dependencies,omitempty"`
	Status       TaskStatus        `json:"status"`
	Result       *Result           `json:"result,omitempty"`
}

// Plan represents an ordered collection of tasks plus overall status.
// Task order is insertion order; it is preserved for display and for
// scheduling tie-breaks.
type Plan struct {
	ID          string     `json:"id"`
	Description string     `json:"description"`
	Status      PlanStatus `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	Tasks       []Task     `json:"tasks,omitempty"`
}

// New creates a pending plan with a fresh ID.
func New(description string, tasks []Task) *Plan {
	p := &Plan{
		ID:          fmt.Sprintf("plan-%s", uuid.New().String()[:8]),
		Description: description,
		Status:      PlanPending,
		CreatedAt:   time.Now().UTC(),
		Tasks:       tasks,
	}
	for i := range p.Tasks {
		if p.Tasks[i].Status == "" {
			p.Tasks[i].Status = TaskPending
		}
	}
	return p
}

// NewTaskID returns a fresh task identifier.
func NewTaskID() string {
	return fmt.Sprintf("task-%s", uuid.New().String()[:8])
}

// Find returns the task with the given id, or nil.
func (p *Plan) Find(id string) *Task {
	for i := range p.Tasks {
		if p.Tasks[i].ID == id {
			return &p.Tasks[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the plan. Snapshots handed to readers
// are clones so the controller stays the single writer.
func (p *Plan) Clone() *Plan {
	c := *p
	c.Tasks = make([]Task, len(p.Tasks))
	for i, t := range p.Tasks {
		ct := t
		if t.Parameters != nil {
			ct.Parameters = make(map[string]string, len(t.Parameters))
			for k, v := range t.Parameters {
				ct.Parameters[k] = v
			}
		}
		if t.Dependencies != nil {
			ct.Dependencies = append([]string(nil), t.Dependencies...)
		}
		if t.Result != nil {
			r := *t.Result
			ct.Result = &r
		}
		c.Tasks[i] = ct
	}
	return &c
}
