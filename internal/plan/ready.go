package plan

// ReadyTasks returns the tasks eligible to run, in the plan's
// insertion order. A task is ready iff it is pending and every
// dependency has completed. Failed or skipped dependencies never
// satisfy readiness, so dependents of a failed task stay pending.
//
// The ready set is a pure function of current statuses; nothing is
// cached, so there is no staleness to manage.
func ReadyTasks(p *Plan) []*Task {
	index := make(map[string]*Task, len(p.Tasks))
	for i := range p.Tasks {
		index[p.Tasks[i].ID] = &p.Tasks[i]
	}

	var ready []*Task
	for i := range p.Tasks {
		t := &p.Tasks[i]
		if t.Status != TaskPending {
			continue
		}
		ok := true
		for _, dep := range t.Dependencies {
			d, found := index[dep]
			if !found || d.Status != TaskCompleted {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, t)
		}
	}
	return ready
}

// NextReady returns the first ready task per the tie-break policy
// (earliest insertion order), or nil if none is ready.
func NextReady(p *Plan) *Task {
	ready := ReadyTasks(p)
	if len(ready) == 0 {
		return nil
	}
	return ready[0]
}

// AllDone reports whether every task has reached a terminal status.
func AllDone(p *Plan) bool {
	for i := range p.Tasks {
		if !p.Tasks[i].Status.Terminal() {
			return false
		}
	}
	return true
}

// AllCompleted reports whether every task completed successfully.
func AllCompleted(p *Plan) bool {
	for i := range p.Tasks {
		if p.Tasks[i].Status != TaskCompleted {
			return false
		}
	}
	return true
}
