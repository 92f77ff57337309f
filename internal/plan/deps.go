package plan

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"intervene/internal/domain"
)

var (
	ErrSelfDependency        = errors.New("an intervention cannot depend on itself")
	ErrCreatesCycle          = errors.New("dependency would create a circular dependency")
	ErrInvalidDependencyType = errors.New("invalid dependency type")
)

// EdgePatch lists the edge fields an update may change. Nil fields are kept.
type EdgePatch struct {
	Type         *domain.DependencyType `json:"type,omitempty"`
	CriticalPath *bool                  `json:"critical_path,omitempty"`
	Description  *string                `json:"description,omitempty"`
}

func (p EdgePatch) IsEmpty() bool {
	return p.Type == nil && p.CriticalPath == nil && p.Description == nil
}

// NormalizeEdge defaults an empty type to sequence and rejects unknown types.
func NormalizeEdge(edge domain.DependencyEdge) (domain.DependencyEdge, error) {
	edge.FromInterventionID = strings.TrimSpace(edge.FromInterventionID)
	edge.ToInterventionID = strings.TrimSpace(edge.ToInterventionID)
	if edge.Type == "" {
		edge.Type = domain.DependencySequence
	}
	if !edge.Type.IsValid() {
		return edge, fmt.Errorf("%w %q (want sequence, parallel or conditional)", ErrInvalidDependencyType, edge.Type)
	}
	return edge, nil
}

// AddDependency appends edge to a copy of edges. Self loops and edges that
// would close a cycle are rejected and the input is returned untouched.
// Duplicates of an existing edge are accepted.
func AddDependency(edges []domain.DependencyEdge, edge domain.DependencyEdge) ([]domain.DependencyEdge, error) {
	edge, err := NormalizeEdge(edge)
	if err != nil {
		return edges, err
	}
	if edge.FromInterventionID == edge.ToInterventionID {
		return edges, fmt.Errorf("%w: %s", ErrSelfDependency, edge.FromInterventionID)
	}
	if path := cycleThrough(edges, edge); path != nil {
		return edges, fmt.Errorf("%w: %s", ErrCreatesCycle, strings.Join(path, " -> "))
	}
	out := make([]domain.DependencyEdge, 0, len(edges)+1)
	out = append(out, edges...)
	return append(out, edge), nil
}

// RemoveDependency drops every edge from -> to and returns the count removed.
// A missing pair yields an identical copy and zero.
func RemoveDependency(edges []domain.DependencyEdge, from, to string) ([]domain.DependencyEdge, int) {
	out := make([]domain.DependencyEdge, 0, len(edges))
	removed := 0
	for _, e := range edges {
		if matches(e, from, to) {
			removed++
			continue
		}
		out = append(out, e)
	}
	return out, removed
}

// UpdateDependency applies patch to every edge from -> to.
func UpdateDependency(edges []domain.DependencyEdge, from, to string, patch EdgePatch) ([]domain.DependencyEdge, int, error) {
	if patch.Type != nil && !patch.Type.IsValid() {
		return edges, 0, fmt.Errorf("%w %q", ErrInvalidDependencyType, *patch.Type)
	}
	out := slices.Clone(edges)
	updated := 0
	for i := range out {
		if !matches(out[i], from, to) {
			continue
		}
		if patch.Type != nil {
			out[i].Type = *patch.Type
		}
		if patch.CriticalPath != nil {
			out[i].CriticalPath = *patch.CriticalPath
		}
		if patch.Description != nil {
			out[i].Description = *patch.Description
		}
		updated++
	}
	return out, updated, nil
}

// DependenciesOf returns the edges pointing at id, in list order.
func DependenciesOf(edges []domain.DependencyEdge, id string) []domain.DependencyEdge {
	var out []domain.DependencyEdge
	for _, e := range edges {
		if e.ToInterventionID == id {
			out = append(out, e)
		}
	}
	return out
}

// DropIncident returns edges without any edge touching id.
func DropIncident(edges []domain.DependencyEdge, id string) []domain.DependencyEdge {
	out := make([]domain.DependencyEdge, 0, len(edges))
	for _, e := range edges {
		if e.FromInterventionID == id || e.ToInterventionID == id {
			continue
		}
		out = append(out, e)
	}
	return out
}

func matches(e domain.DependencyEdge, from, to string) bool {
	return e.FromInterventionID == from && e.ToInterventionID == to
}
