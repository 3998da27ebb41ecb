package plan

// UpdateTaskStatus sets the status of one task in place.
func UpdateTaskStatus(p *Plan, id string, status TaskStatus) error {
	t := p.Find(id)
	if t == nil {
		return &UnknownTaskError{TaskID: id}
	}
	t.Status = status
	return nil
}

// SetTaskResult records a terminal outcome and moves the task's
// status to match it.
func SetTaskResult(p *Plan, id string, r *Result) error {
	t := p.Find(id)
	if t == nil {
		return &UnknownTaskError{TaskID: id}
	}
	t.Result = r
	if r != nil && r.Success {
		t.Status = TaskCompleted
	} else {
		t.Status = TaskFailed
	}
	return nil
}

// Counts tallies task statuses for display and plan-status decisions.
type Counts struct {
	Pending    int
	InProgress int
	Completed  int
	Failed     int
	Skipped    int
}

// Tally returns the status counts for a plan.
func Tally(p *Plan) Counts {
	var c Counts
	for i := range p.Tasks {
		switch p.Tasks[i].Status {
		case TaskPending:
			c.Pending++
		case TaskInProgress:
			c.InProgress++
		case TaskCompleted:
			c.Completed++
		case TaskFailed:
			c.Failed++
		case TaskSkipped:
			c.Skipped++
		}
	}
	return c
}
