// Package plan holds the pure dependency-graph logic for intervention bundles:
// edge mutations, cycle and resource-conflict validation, and timeline
// scheduling. Nothing here touches storage or logs.
package plan

import (
	"slices"

	"intervene/internal/domain"
)

// graph is a forward adjacency list keyed by intervention id.
type graph struct {
	adj map[string][]string
}

// newGraph builds adjacency from edges. When known is non-nil, edges with an
// endpoint outside it are dropped so dangling references stay inert.
func newGraph(edges []domain.DependencyEdge, known map[string]int) graph {
	g := graph{adj: make(map[string][]string)}
	for _, e := range edges {
		if known != nil {
			if _, ok := known[e.FromInterventionID]; !ok {
				continue
			}
			if _, ok := known[e.ToInterventionID]; !ok {
				continue
			}
		}
		g.adj[e.FromInterventionID] = append(g.adj[e.FromInterventionID], e.ToInterventionID)
	}
	return g
}

// search is one depth-first walk with visiting/visited bookkeeping. With an
// empty target it looks for a back edge (a cycle); with a target it looks for
// a path reaching that node and ignores unrelated cycles.
type search struct {
	g        graph
	target   string
	visiting map[string]bool
	visited  map[string]bool
	stack    []string
}

func newSearch(g graph, target string) *search {
	return &search{
		g:        g,
		target:   target,
		visiting: make(map[string]bool),
		visited:  make(map[string]bool),
	}
}

// visit returns the node path that ended the search, or nil.
func (s *search) visit(n string) []string {
	if s.target != "" && n == s.target {
		return append(slices.Clone(s.stack), n)
	}
	if s.visiting[n] {
		if s.target != "" {
			return nil
		}
		i := slices.Index(s.stack, n)
		return append(slices.Clone(s.stack[i:]), n)
	}
	if s.visited[n] {
		return nil
	}
	s.visiting[n] = true
	s.stack = append(s.stack, n)
	for _, next := range s.g.adj[n] {
		if path := s.visit(next); path != nil {
			return path
		}
	}
	s.stack = s.stack[:len(s.stack)-1]
	delete(s.visiting, n)
	s.visited[n] = true
	return nil
}

// cycleFrom returns a closed cycle path reachable from start, e.g. [a b c a].
func (g graph) cycleFrom(start string) []string {
	return newSearch(g, "").visit(start)
}

// pathTo returns a path from -> ... -> to, or nil when to is unreachable.
func (g graph) pathTo(from, to string) []string {
	return newSearch(g, to).visit(from)
}

// WouldCreateCycle reports whether appending edge to edges closes a cycle
// through it. Self loops always do.
func WouldCreateCycle(edges []domain.DependencyEdge, edge domain.DependencyEdge) bool {
	return cycleThrough(edges, edge) != nil
}

// cycleThrough returns the cycle the edge would close, starting and ending at
// edge.From, or nil.
func cycleThrough(edges []domain.DependencyEdge, edge domain.DependencyEdge) []string {
	if edge.FromInterventionID == edge.ToInterventionID {
		return []string{edge.FromInterventionID, edge.FromInterventionID}
	}
	g := newGraph(append(slices.Clone(edges), edge), nil)
	back := g.pathTo(edge.ToInterventionID, edge.FromInterventionID)
	if back == nil {
		return nil
	}
	return append([]string{edge.FromInterventionID}, back...)
}

// FindCycle walks interventions in list order and stops at the first one whose
// search detects a cycle. It returns that intervention id and the cycle path.
// Edges that reference unknown interventions are ignored.
func FindCycle(interventions []domain.Intervention, edges []domain.DependencyEdge) (string, []string, bool) {
	known := indexByID(interventions)
	g := newGraph(edges, known)
	for _, iv := range interventions {
		if path := g.cycleFrom(iv.ID); path != nil {
			return iv.ID, path, true
		}
	}
	return "", nil, false
}

// indexByID maps each id to its first position in the list.
func indexByID(interventions []domain.Intervention) map[string]int {
	idx := make(map[string]int, len(interventions))
	for i, iv := range interventions {
		if _, ok := idx[iv.ID]; !ok {
			idx[iv.ID] = i
		}
	}
	return idx
}
