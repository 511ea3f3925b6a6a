package scheduler

import (
	"fmt"

	"github.com/gammazero/toposort"
)

// depGraph records the dependency edges of every task registered with a DAG
// scheduler. It is only used to reject cycles and to report an execution
// order; eligibility is decided against the completion set.
type depGraph struct {
	deps  map[string][]string // taskID -> dependency IDs
	order []string            // registration order
}

func newDepGraph() *depGraph {
	return &depGraph{deps: make(map[string][]string)}
}

// add records the task's edges. With check set, the edges are rolled back and
// an error returned if they close a cycle.
func (g *depGraph) add(task *Task, check bool) error {
	prev, existed := g.deps[task.ID]
	g.deps[task.ID] = append([]string(nil), task.Dependencies...)
	if !existed {
		g.order = append(g.order, task.ID)
	}

	if !check {
		return nil
	}
	if _, err := g.sort(); err != nil {
		if existed {
			g.deps[task.ID] = prev
		} else {
			delete(g.deps, task.ID)
			g.order = g.order[:len(g.order)-1]
		}
		return fmt.Errorf("task %q: %v: %w", task.ID, err, ErrInvalidState)
	}
	return nil
}

// sort runs a topological sort over all known edges. Dependencies that were
// never registered still take part, they just have no edges of their own.
func (g *depGraph) sort() ([]string, error) {
	var edges []toposort.Edge
	for _, id := range g.order {
		deps := g.deps[id]
		if len(deps) == 0 {
			// Edge from nil keeps isolated tasks in the result
			edges = append(edges, toposort.Edge{nil, id})
			continue
		}
		for _, depID := range deps {
			// Edge (depID, id) means depID must come before id
			edges = append(edges, toposort.Edge{depID, id})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("dependency cycle: %w", err)
	}

	order := make([]string, 0, len(sorted))
	for _, id := range sorted {
		if id == nil {
			continue
		}
		if s, ok := id.(string); ok {
			if _, known := g.deps[s]; known {
				order = append(order, s)
			}
		}
	}
	return order, nil
}
