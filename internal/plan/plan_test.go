package plan_test

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intervene/internal/domain"
	"intervene/internal/plan"
)

func iv(id string, c domain.Complexity, tasks int, res ...domain.Resource) domain.Intervention {
	out := domain.Intervention{ID: id, Name: "Intervention " + id, Complexity: c, Resources: res}
	for i := 0; i < tasks; i++ {
		out.MicroTasks = append(out.MicroTasks, domain.MicroTask{ID: fmt.Sprintf("%s-t%d", id, i)})
	}
	return out
}

func seq(from, to string) domain.DependencyEdge {
	return domain.DependencyEdge{Type: domain.DependencySequence, FromInterventionID: from, ToInterventionID: to}
}

func TestScheduleEndToEnd(t *testing.T) {
	ivs := []domain.Intervention{
		iv("A", domain.ComplexityLow, 0),
		iv("B", domain.ComplexityMedium, 4),
		iv("C", domain.ComplexityHigh, 8),
	}
	tl, err := plan.Schedule(ivs, []domain.DependencyEdge{seq("A", "B"), seq("B", "C")}, 26)
	require.NoError(t, err)

	want := map[string][3]int{"A": {1, 2, 2}, "B": {3, 5, 7}, "C": {8, 10, 17}}
	for id, w := range want {
		e, ok := tl.Entry(id)
		require.True(t, ok, id)
		assert.Equal(t, w, [3]int{e.StartWeek, e.Duration, e.EndWeek}, id)
	}
	assert.Equal(t, 17, tl.TotalWeeks)
	assert.Equal(t, []string{"A", "B", "C"}, tl.LongestPath)
}

func TestScheduleIgnoresListOrder(t *testing.T) {
	ivs := []domain.Intervention{
		iv("C", domain.ComplexityHigh, 8),
		iv("B", domain.ComplexityMedium, 4),
		iv("A", domain.ComplexityLow, 0),
	}
	tl, err := plan.Schedule(ivs, []domain.DependencyEdge{seq("A", "B"), seq("B", "C")}, 26)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, tl.Order)
	c, _ := tl.Entry("C")
	assert.Equal(t, 8, c.StartWeek)
	assert.Equal(t, "C", tl.Entries[0].InterventionID, "entries keep list order")
}

func TestScheduleDefaultsWindow(t *testing.T) {
	tl, err := plan.Schedule([]domain.Intervention{iv("A", domain.ComplexityHigh, 400)}, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 26, tl.Weeks)
	assert.Equal(t, 26, tl.Entries[0].Duration)
}

func TestScheduleReportsCycle(t *testing.T) {
	ivs := []domain.Intervention{iv("A", domain.ComplexityLow, 0), iv("B", domain.ComplexityLow, 0)}
	_, err := plan.Schedule(ivs, []domain.DependencyEdge{seq("A", "B"), seq("B", "A")}, 26)
	require.ErrorIs(t, err, plan.ErrCycle)
	assert.Contains(t, err.Error(), "A")
}

func TestScheduleCriticalFlagIsIncident(t *testing.T) {
	ivs := []domain.Intervention{
		iv("A", domain.ComplexityLow, 0),
		iv("B", domain.ComplexityLow, 0),
		iv("C", domain.ComplexityLow, 0),
	}
	crit := seq("A", "B")
	crit.CriticalPath = true
	tl, err := plan.Schedule(ivs, []domain.DependencyEdge{crit, seq("B", "C")}, 26)
	require.NoError(t, err)
	flags := map[string]bool{}
	for _, e := range tl.Entries {
		flags[e.InterventionID] = e.CriticalPath
	}
	assert.Equal(t, map[string]bool{"A": true, "B": true, "C": false}, flags)
	assert.Equal(t, 2, tl.CriticalCount)
}

func TestScheduleSlack(t *testing.T) {
	ivs := []domain.Intervention{
		iv("A", domain.ComplexityHigh, 0),
		iv("B", domain.ComplexityLow, 0),
		iv("C", domain.ComplexityLow, 0),
	}
	// A (8w) and B (2w) both feed C.
	tl, err := plan.Schedule(ivs, []domain.DependencyEdge{seq("A", "C"), seq("B", "C")}, 26)
	require.NoError(t, err)
	a, _ := tl.Entry("A")
	b, _ := tl.Entry("B")
	c, _ := tl.Entry("C")
	assert.Equal(t, 0, a.Slack)
	assert.True(t, a.OnLongestPath)
	assert.Equal(t, 6, b.Slack)
	assert.False(t, b.OnLongestPath)
	assert.Equal(t, 9, c.StartWeek)
	assert.Equal(t, []string{"A", "C"}, tl.LongestPath)
}

func TestScheduleSkipsDanglingEdges(t *testing.T) {
	ivs := []domain.Intervention{iv("A", domain.ComplexityLow, 0)}
	tl, err := plan.Schedule(ivs, []domain.DependencyEdge{seq("ghost", "A"), seq("A", "ghost")}, 26)
	require.NoError(t, err)
	assert.Equal(t, 1, tl.Entries[0].StartWeek)
}

func TestDurationBoundsAndMonotonicity(t *testing.T) {
	complexities := []domain.Complexity{domain.ComplexityLow, domain.ComplexityMedium, domain.ComplexityHigh}
	for _, weeks := range []int{1, 3, 10, 26} {
		for tasks := 0; tasks < 40; tasks++ {
			prev := 0
			for _, c := range complexities {
				d := plan.Duration(iv("x", c, tasks), weeks)
				assert.GreaterOrEqual(t, d, 1)
				assert.LessOrEqual(t, d, weeks)
				assert.GreaterOrEqual(t, d, prev, "complexity %s tasks %d weeks %d", c, tasks, weeks)
				prev = d
			}
		}
		for _, c := range complexities {
			prev := 0
			for tasks := 0; tasks < 40; tasks++ {
				d := plan.Duration(iv("x", c, tasks), weeks)
				assert.GreaterOrEqual(t, d, prev)
				prev = d
			}
		}
	}
}

func TestPolicyDuration(t *testing.T) {
	p := plan.Policy{BaseWeeks: map[domain.Complexity]int{domain.ComplexityLow: 1}, TasksPerWeek: 2}
	assert.Equal(t, 3, p.Duration(iv("x", domain.ComplexityLow, 3), 26))
	// Unknown complexity falls back to the medium base (missing here, so 4).
	assert.Equal(t, 4, p.Duration(iv("x", "Extreme", 0), 26))
}

func TestAddDependencyRejections(t *testing.T) {
	edges := []domain.DependencyEdge{seq("A", "B"), seq("B", "C")}

	got, err := plan.AddDependency(edges, seq("A", "A"))
	require.ErrorIs(t, err, plan.ErrSelfDependency)
	assert.Equal(t, edges, got)

	got, err = plan.AddDependency(edges, seq("C", "A"))
	require.ErrorIs(t, err, plan.ErrCreatesCycle)
	assert.Equal(t, edges, got)
	assert.Contains(t, err.Error(), "C -> A -> B -> C")

	_, err = plan.AddDependency(edges, domain.DependencyEdge{Type: "blocking", FromInterventionID: "A", ToInterventionID: "C"})
	require.ErrorIs(t, err, plan.ErrInvalidDependencyType)
}

func TestAddDependencyAcceptsDuplicates(t *testing.T) {
	edges, err := plan.AddDependency(nil, domain.DependencyEdge{FromInterventionID: "A", ToInterventionID: "B"})
	require.NoError(t, err)
	assert.Equal(t, domain.DependencySequence, edges[0].Type)
	edges, err = plan.AddDependency(edges, seq("A", "B"))
	require.NoError(t, err)
	assert.Len(t, edges, 2)
}

func TestAcceptedEdgesNeverFormCycles(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	ids := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	var ivs []domain.Intervention
	for _, id := range ids {
		ivs = append(ivs, iv(id, domain.ComplexityMedium, rng.Intn(9)))
	}
	var edges []domain.DependencyEdge
	for i := 0; i < 200; i++ {
		e := seq(ids[rng.Intn(len(ids))], ids[rng.Intn(len(ids))])
		next, err := plan.AddDependency(edges, e)
		if err != nil {
			assert.Equal(t, edges, next)
			continue
		}
		assert.False(t, plan.WouldCreateCycle(edges, e))
		edges = next
	}
	require.NotEmpty(t, edges)
	assert.Empty(t, plan.Validate(ivs, edges))

	tl, err := plan.Schedule(ivs, edges, 26)
	require.NoError(t, err)
	for _, e := range edges {
		from, _ := tl.Entry(e.FromInterventionID)
		to, _ := tl.Entry(e.ToInterventionID)
		assert.Greater(t, to.StartWeek, from.EndWeek, "%s -> %s", e.FromInterventionID, e.ToInterventionID)
	}
}

func TestValidateFindsInjectedCycle(t *testing.T) {
	ivs := []domain.Intervention{
		iv("X", domain.ComplexityLow, 0),
		iv("A", domain.ComplexityLow, 0),
		iv("B", domain.ComplexityLow, 0),
		iv("C", domain.ComplexityLow, 0),
	}
	edges := []domain.DependencyEdge{seq("X", "A"), seq("A", "B"), seq("B", "C"), seq("C", "A")}
	errs := plan.Validate(ivs, edges)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "Intervention A")
	assert.Contains(t, errs[0], "Intervention C")

	r := plan.Check(ivs, edges)
	assert.False(t, r.Valid)
	assert.Equal(t, "X", r.CycleAt)
	assert.Equal(t, []string{"A", "B", "C", "A"}, r.CyclePath)
}

func TestValidateResourceConflict(t *testing.T) {
	staff := domain.Resource{Type: "human", Name: "Staff Allocation"}
	a := iv("A", domain.ComplexityLow, 0, staff)
	b := iv("B", domain.ComplexityLow, 0, staff, domain.Resource{Type: "budget", Name: "Ops"})
	par := domain.DependencyEdge{Type: domain.DependencyParallel, FromInterventionID: "A", ToInterventionID: "B"}

	errs := plan.Validate([]domain.Intervention{a, b}, []domain.DependencyEdge{par})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "Intervention A")
	assert.Contains(t, errs[0], "Intervention B")
	assert.Contains(t, errs[0], "Staff Allocation")

	// Same name, different type is a different resource.
	b.Resources = []domain.Resource{{Type: "budget", Name: "Staff Allocation"}}
	assert.Empty(t, plan.Validate([]domain.Intervention{a, b}, []domain.DependencyEdge{par}))

	b.Resources = nil
	assert.Empty(t, plan.Validate([]domain.Intervention{a, b}, []domain.DependencyEdge{par}))
}

func TestValidateOnlyChecksParallelEdges(t *testing.T) {
	staff := domain.Resource{Type: "human", Name: "Staff Allocation"}
	ivs := []domain.Intervention{iv("A", domain.ComplexityLow, 0, staff), iv("B", domain.ComplexityLow, 0, staff)}
	assert.Empty(t, plan.Validate(ivs, []domain.DependencyEdge{seq("A", "B")}))
}

func TestValidateDanglingEdgesAreInert(t *testing.T) {
	ivs := []domain.Intervention{iv("A", domain.ComplexityLow, 0)}
	edges := []domain.DependencyEdge{
		seq("A", "ghost"),
		seq("ghost", "A"),
		{Type: domain.DependencyParallel, FromInterventionID: "A", ToInterventionID: "ghost"},
	}
	assert.Empty(t, plan.Validate(ivs, edges))
	assert.Empty(t, plan.Validate(nil, nil))
}

func TestRemoveDependency(t *testing.T) {
	edges := []domain.DependencyEdge{seq("A", "B"), seq("B", "C"), seq("A", "B")}

	same, n := plan.RemoveDependency(edges, "C", "A")
	assert.Zero(t, n)
	assert.Equal(t, edges, same)

	out, n := plan.RemoveDependency(edges, "A", "B")
	assert.Equal(t, 2, n)
	assert.Equal(t, []domain.DependencyEdge{seq("B", "C")}, out)
	assert.Len(t, edges, 3, "input untouched")
}

func TestUpdateDependency(t *testing.T) {
	edges := []domain.DependencyEdge{seq("A", "B"), seq("B", "C"), seq("A", "B")}
	on := true
	desc := "needs sign-off"
	out, n, err := plan.UpdateDependency(edges, "A", "B", plan.EdgePatch{CriticalPath: &on, Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, out[0].CriticalPath)
	assert.True(t, out[2].CriticalPath)
	assert.False(t, out[1].CriticalPath)
	assert.Equal(t, "needs sign-off", out[2].Description)
	assert.False(t, edges[0].CriticalPath, "input untouched")

	bad := domain.DependencyType("later")
	_, _, err = plan.UpdateDependency(edges, "A", "B", plan.EdgePatch{Type: &bad})
	require.ErrorIs(t, err, plan.ErrInvalidDependencyType)
}

func TestDropIncident(t *testing.T) {
	edges := []domain.DependencyEdge{seq("A", "B"), seq("B", "C"), seq("C", "D")}
	out := plan.DropIncident(edges, "B")
	assert.Equal(t, []domain.DependencyEdge{seq("C", "D")}, out)
	assert.Len(t, plan.DependenciesOf(edges, "C"), 1)
}

func TestCycleMessageUsesIDWhenUnnamed(t *testing.T) {
	ivs := []domain.Intervention{{ID: "p1"}, {ID: "p2"}}
	errs := plan.Validate(ivs, []domain.DependencyEdge{seq("p1", "p2"), seq("p2", "p1")})
	require.Len(t, errs, 1)
	assert.True(t, strings.Contains(errs[0], "p1 -> p2 -> p1"), errs[0])
}
