package plan

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"intervene/internal/domain"
)

var ErrCycle = errors.New("dependency graph has a cycle")

// Policy is the duration sizing rule: a base per complexity plus one week per
// TasksPerWeek micro tasks (rounded up).
type Policy struct {
	BaseWeeks    map[domain.Complexity]int `json:"base_weeks"`
	TasksPerWeek int                       `json:"tasks_per_week"`
}

func DefaultPolicy() Policy {
	return Policy{
		BaseWeeks: map[domain.Complexity]int{
			domain.ComplexityHigh:   8,
			domain.ComplexityMedium: 4,
			domain.ComplexityLow:    2,
		},
		TasksPerWeek: 4,
	}
}

func (p Policy) base(c domain.Complexity) int {
	if w, ok := p.BaseWeeks[c]; ok {
		return w
	}
	if w, ok := p.BaseWeeks[domain.ComplexityMedium]; ok {
		return w
	}
	return 4
}

// Duration is clamp(base + ceil(tasks/TasksPerWeek), 1, timelineWeeks).
func (p Policy) Duration(iv domain.Intervention, timelineWeeks int) int {
	weeks := normalizeWeeks(timelineWeeks)
	per := p.TasksPerWeek
	if per <= 0 {
		per = 4
	}
	n := len(iv.MicroTasks)
	d := p.base(iv.Complexity) + (n+per-1)/per
	if d > weeks {
		d = weeks
	}
	if d < 1 {
		d = 1
	}
	return d
}

// Duration sizes an intervention with the default policy.
func Duration(iv domain.Intervention, timelineWeeks int) int {
	return DefaultPolicy().Duration(iv, timelineWeeks)
}

func normalizeWeeks(w int) int {
	if w <= 0 {
		return domain.DefaultTimelineWeeks
	}
	return w
}

// Timeline is a computed schedule. Entries follow the intervention list order;
// Order is the topological order used to place them.
type Timeline struct {
	Weeks         int                    `json:"weeks"`
	Entries       []domain.TimelineEntry `json:"entries"`
	Order         []string               `json:"order"`
	TotalWeeks    int                    `json:"total_weeks"`
	CriticalCount int                    `json:"critical_count"`
	LongestPath   []string               `json:"longest_path,omitempty"`
}

// Entry returns the entry for id.
func (t Timeline) Entry(id string) (domain.TimelineEntry, bool) {
	for _, e := range t.Entries {
		if e.InterventionID == id {
			return e, true
		}
	}
	return domain.TimelineEntry{}, false
}

// Schedule places interventions with the default policy.
func Schedule(interventions []domain.Intervention, edges []domain.DependencyEdge, timelineWeeks int) (Timeline, error) {
	return DefaultPolicy().Schedule(interventions, edges, timelineWeeks)
}

// ScheduleBundle schedules the bundle over its own window.
func (p Policy) ScheduleBundle(b domain.Bundle) (Timeline, error) {
	return p.Schedule(b.Interventions, b.Dependencies, b.Weeks())
}

// Schedule runs in two phases: a topological sort over edges between known
// interventions, then placement in that order so every source is final before
// its dependents. An intervention with no incoming edge starts in week 1;
// otherwise it starts the week after its latest source ends.
func (p Policy) Schedule(interventions []domain.Intervention, edges []domain.DependencyEdge, timelineWeeks int) (Timeline, error) {
	weeks := normalizeWeeks(timelineWeeks)
	order, preds, succs, err := topoOrder(interventions, edges)
	if err != nil {
		return Timeline{}, err
	}

	critical := make(map[string]bool)
	for _, e := range edges {
		if e.CriticalPath {
			critical[e.FromInterventionID] = true
			critical[e.ToInterventionID] = true
		}
	}

	entries := make([]domain.TimelineEntry, len(interventions))
	total := 0
	for _, i := range order {
		start := 1
		for _, src := range preds[i] {
			if entries[src].EndWeek+1 > start {
				start = entries[src].EndWeek + 1
			}
		}
		d := p.Duration(interventions[i], weeks)
		end := start + d - 1
		entries[i] = domain.TimelineEntry{
			InterventionID: interventions[i].ID,
			StartWeek:      start,
			Duration:       d,
			EndWeek:        end,
			CriticalPath:   critical[interventions[i].ID],
			ExceedsWindow:  end > weeks,
		}
		if end > total {
			total = end
		}
	}

	longest := applySlack(entries, order, succs, total)

	t := Timeline{Weeks: weeks, Entries: entries, TotalWeeks: total, LongestPath: longest}
	for _, i := range order {
		t.Order = append(t.Order, interventions[i].ID)
	}
	for _, e := range entries {
		if e.CriticalPath {
			t.CriticalCount++
		}
	}
	return t, nil
}

// topoOrder is Kahn's algorithm over list positions. Ties go to the earlier
// position, so an already sorted list keeps its order.
func topoOrder(interventions []domain.Intervention, edges []domain.DependencyEdge) (order []int, preds, succs [][]int, err error) {
	n := len(interventions)
	byID := indexByID(interventions)
	preds = make([][]int, n)
	succs = make([][]int, n)
	indeg := make([]int, n)
	for _, e := range edges {
		from, ok := byID[e.FromInterventionID]
		if !ok {
			continue
		}
		to, ok := byID[e.ToInterventionID]
		if !ok {
			continue
		}
		preds[to] = append(preds[to], from)
		succs[from] = append(succs[from], to)
		indeg[to]++
	}

	var ready []int
	for i := 0; i < n; i++ {
		if indeg[i] == 0 {
			ready = append(ready, i)
		}
	}
	order = make([]int, 0, n)
	for len(ready) > 0 {
		cur := ready[0]
		ready = ready[1:]
		order = append(order, cur)
		grew := false
		for _, next := range succs[cur] {
			indeg[next]--
			if indeg[next] == 0 {
				ready = append(ready, next)
				grew = true
			}
		}
		if grew {
			sort.Ints(ready)
		}
	}
	if len(order) < n {
		var stuck []string
		for i := 0; i < n; i++ {
			if indeg[i] > 0 {
				stuck = append(stuck, interventions[i].ID)
			}
		}
		return nil, nil, nil, fmt.Errorf("%w: %s", ErrCycle, strings.Join(stuck, ", "))
	}
	return order, preds, succs, nil
}
