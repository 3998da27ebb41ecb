package plan

// Validate checks a plan before it may transition to executing.
// It rejects duplicate ids, dangling dependency references, and
// dependency cycles. A cyclic plan is refused up front rather than
// deadlocking the scheduler later.
func Validate(p *Plan) error {
	index := make(map[string]int, len(p.Tasks))
	for i, t := range p.Tasks {
		if _, dup := index[t.ID]; dup {
			return &DuplicateTaskError{TaskID: t.ID}
		}
		index[t.ID] = i
	}

	for _, t := range p.Tasks {
		for _, dep := range t.Dependencies {
			if _, ok := index[dep]; !ok {
				return &DanglingDependencyError{TaskID: t.ID, DependsOn: dep}
			}
		}
	}

	if path := findCycle(p, index); path != nil {
		return &CycleError{Path: path}
	}
	return nil
}

// findCycle runs a DFS with white/gray/black coloring over task
// indices in insertion order, so the witness path is deterministic.
func findCycle(p *Plan, index map[string]int) []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)

	color := make([]int, len(p.Tasks))
	parent := make([]int, len(p.Tasks))
	for i := range parent {
		parent[i] = -1
	}

	var cycleStart, cycleEnd = -1, -1

	var visit func(i int) bool
	visit = func(i int) bool {
		color[i] = gray
		for _, dep := range p.Tasks[i].Dependencies {
			j := index[dep]
			switch color[j] {
			case white:
				parent[j] = i
				if visit(j) {
					return true
				}
			case gray:
				cycleStart, cycleEnd = j, i
				return true
			}
		}
		color[i] = black
		return false
	}

	for i := range p.Tasks {
		if color[i] == white && visit(i) {
			break
		}
	}
	if cycleStart < 0 {
		return nil
	}

	var path []string
	for v := cycleEnd; v >= 0; v = parent[v] {
		path = append(path, p.Tasks[v].ID)
		if v == cycleStart {
			break
		}
	}
	// Reverse into dependency order and close the loop.
	for l, r := 0, len(path)-1; l < r; l, r = l+1, r-1 {
		path[l], path[r] = path[r], path[l]
	}
	return append(path, p.Tasks[cycleStart].ID)
}
