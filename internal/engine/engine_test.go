package engine_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intervene/internal/cache"
	"intervene/internal/config"
	"intervene/internal/db"
	"intervene/internal/domain"
	"intervene/internal/engine"
	"intervene/internal/events"
	"intervene/internal/export"
	"intervene/internal/migrate"
	"intervene/internal/plan"
	"intervene/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	Bundle domain.Bundle
	Pub    *recordingPublisher
}

type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
}

func (p *recordingPublisher) Publish(ctx context.Context, subject string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) Subjects() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.subjects...)
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))

	pub := &recordingPublisher{}
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	eng.Logger = log.New(os.Stderr)
	eng.Logger.SetLevel(log.ErrorLevel)
	eng.Publisher = pub
	ctx := context.Background()
	b, err := eng.CreateBundle(ctx, engine.BundleCreateOptions{ID: "b1", Name: "Reform", ActorID: "tester"})
	require.NoError(t, err)
	return testEnv{Engine: eng, Ctx: ctx, Bundle: b, Pub: pub}
}

func (env testEnv) add(t *testing.T, id string, c domain.Complexity, tasks int, res ...domain.Resource) domain.Intervention {
	t.Helper()
	iv, err := env.Engine.AddIntervention(env.Ctx, engine.InterventionCreateOptions{
		BundleID:   env.Bundle.ID,
		ID:         id,
		Name:       id,
		Complexity: c,
		MicroTasks: make([]domain.MicroTask, tasks),
		Resources:  res,
		ActorID:    "tester",
	})
	require.NoError(t, err)
	return iv
}

func (env testEnv) link(t *testing.T, from, to string, typ domain.DependencyType) error {
	t.Helper()
	_, err := env.Engine.AddDependency(env.Ctx, engine.DependencyAddOptions{
		BundleID: env.Bundle.ID,
		Edge:     domain.DependencyEdge{Type: typ, FromInterventionID: from, ToInterventionID: to},
		ActorID:  "tester",
	})
	return err
}

func (env testEnv) countEvents(t *testing.T, typ string) int {
	t.Helper()
	evs, err := env.Engine.Repo.LatestEvents(env.Ctx, 1000, repo.EventFilter{BundleID: env.Bundle.ID, Type: typ})
	require.NoError(t, err)
	return len(evs)
}

func TestCreateBundleDefaults(t *testing.T) {
	env := newTestEnv(t)
	assert.Equal(t, domain.DefaultTimelineWeeks, env.Bundle.TimelineWeeks)
	assert.Equal(t, "2024-01-01T00:00:00Z", env.Bundle.CreatedAt)

	_, err := env.Engine.CreateBundle(env.Ctx, engine.BundleCreateOptions{ID: "b1", Name: "again"})
	assert.ErrorIs(t, err, engine.ErrAlreadyExists)
	_, err = env.Engine.CreateBundle(env.Ctx, engine.BundleCreateOptions{Name: "  "})
	assert.ErrorIs(t, err, engine.ErrInvalid)

	other, err := env.Engine.CreateBundle(env.Ctx, engine.BundleCreateOptions{Name: "Generated"})
	require.NoError(t, err)
	assert.NotEmpty(t, other.ID)
	assert.Contains(t, env.Pub.Subjects(), "intervene.bundle.created")
}

func TestScheduleChain(t *testing.T) {
	env := newTestEnv(t)
	env.add(t, "A", domain.ComplexityLow, 0)
	env.add(t, "B", domain.ComplexityMedium, 4)
	env.add(t, "C", domain.ComplexityHigh, 8)
	require.NoError(t, env.link(t, "A", "B", domain.DependencySequence))
	require.NoError(t, env.link(t, "B", "C", domain.DependencySequence))

	tl, err := env.Engine.ScheduleBundle(env.Ctx, env.Bundle.ID, 0)
	require.NoError(t, err)
	want := map[string][3]int{"A": {1, 2, 2}, "B": {3, 5, 7}, "C": {8, 10, 17}}
	for id, w := range want {
		e, ok := tl.Entry(id)
		require.True(t, ok, id)
		assert.Equal(t, w, [3]int{e.StartWeek, e.Duration, e.EndWeek}, id)
	}
}

func TestScheduleUsesCache(t *testing.T) {
	env := newTestEnv(t)
	mem := cache.NewMemoryCache()
	env.Engine.Cache = mem
	env.add(t, "A", domain.ComplexityHigh, 2)

	first, err := env.Engine.ScheduleBundle(env.Ctx, env.Bundle.ID, 12)
	require.NoError(t, err)
	assert.Equal(t, 12, first.Weeks)
	assert.Equal(t, 1, mem.Len())

	second, err := env.Engine.ScheduleBundle(env.Ctx, env.Bundle.ID, 12)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, mem.Len())

	env.add(t, "B", domain.ComplexityLow, 0)
	_, err = env.Engine.ScheduleBundle(env.Ctx, env.Bundle.ID, 12)
	require.NoError(t, err)
	assert.Equal(t, 2, mem.Len())
}

func TestAddDependencyRejectsCycle(t *testing.T) {
	env := newTestEnv(t)
	for _, id := range []string{"A", "B", "C"} {
		env.add(t, id, domain.ComplexityLow, 0)
	}
	require.NoError(t, env.link(t, "A", "B", ""))
	require.NoError(t, env.link(t, "B", "C", ""))

	err := env.link(t, "C", "A", domain.DependencySequence)
	require.Error(t, err)
	assert.True(t, engine.IsRejected(err))
	assert.ErrorIs(t, err, plan.ErrCreatesCycle)

	err = env.link(t, "B", "B", domain.DependencySequence)
	assert.ErrorIs(t, err, plan.ErrSelfDependency)

	edges, err := env.Engine.ListDependencies(env.Ctx, env.Bundle.ID, "")
	require.NoError(t, err)
	require.Len(t, edges, 2)
	assert.Equal(t, domain.DependencySequence, edges[0].Type)
	assert.Equal(t, 2, env.countEvents(t, events.DependencyAdded))
}

func TestAddDependencyUnknownEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.add(t, "A", domain.ComplexityLow, 0)
	err := env.link(t, "A", "ghost", "")
	assert.ErrorIs(t, err, repo.ErrNotFound)
	err = env.link(t, "A", "A", "bogus")
	assert.ErrorIs(t, err, engine.ErrInvalid)
}

func TestRemoveDependency(t *testing.T) {
	env := newTestEnv(t)
	env.add(t, "A", domain.ComplexityLow, 0)
	env.add(t, "B", domain.ComplexityLow, 0)
	require.NoError(t, env.link(t, "A", "B", ""))
	require.NoError(t, env.link(t, "A", "B", domain.DependencyParallel))

	n, err := env.Engine.RemoveDependency(env.Ctx, env.Bundle.ID, "B", "A", "tester")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, env.countEvents(t, events.DependencyRemoved))

	n, err = env.Engine.RemoveDependency(env.Ctx, env.Bundle.ID, "A", "B", "tester")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, env.countEvents(t, events.DependencyRemoved))

	edges, err := env.Engine.ListDependencies(env.Ctx, env.Bundle.ID, "")
	require.NoError(t, err)
	assert.Empty(t, edges)
}

func TestUpdateDependency(t *testing.T) {
	env := newTestEnv(t)
	env.add(t, "A", domain.ComplexityLow, 0)
	env.add(t, "B", domain.ComplexityLow, 0)
	require.NoError(t, env.link(t, "A", "B", ""))

	critical := true
	typ := domain.DependencyConditional
	n, err := env.Engine.UpdateDependency(env.Ctx, engine.DependencyUpdateOptions{
		BundleID: env.Bundle.ID, From: "A", To: "B",
		Patch: plan.EdgePatch{Type: &typ, CriticalPath: &critical},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	edges, err := env.Engine.ListDependencies(env.Ctx, env.Bundle.ID, "B")
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, domain.DependencyConditional, edges[0].Type)
	assert.True(t, edges[0].CriticalPath)

	_, err = env.Engine.UpdateDependency(env.Ctx, engine.DependencyUpdateOptions{BundleID: env.Bundle.ID, From: "A", To: "B"})
	assert.ErrorIs(t, err, engine.ErrInvalid)
}

func TestRemoveInterventionDropsEdges(t *testing.T) {
	env := newTestEnv(t)
	for _, id := range []string{"A", "B", "C"} {
		env.add(t, id, domain.ComplexityLow, 0)
	}
	require.NoError(t, env.link(t, "A", "B", ""))
	require.NoError(t, env.link(t, "B", "C", ""))
	require.NoError(t, env.link(t, "A", "C", ""))

	dropped, err := env.Engine.RemoveIntervention(env.Ctx, env.Bundle.ID, "B", "tester")
	require.NoError(t, err)
	assert.Equal(t, 2, dropped)

	b, err := env.Engine.GetBundle(env.Ctx, env.Bundle.ID)
	require.NoError(t, err)
	require.Len(t, b.Interventions, 2)
	assert.Equal(t, []domain.DependencyEdge{{Type: domain.DependencySequence, FromInterventionID: "A", ToInterventionID: "C"}}, b.Dependencies)

	_, err = env.Engine.RemoveIntervention(env.Ctx, env.Bundle.ID, "B", "tester")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestUpdateIntervention(t *testing.T) {
	env := newTestEnv(t)
	env.add(t, "A", domain.ComplexityLow, 0)

	c := domain.Complexity("high")
	tasks := []domain.MicroTask{{Title: "draft"}, {Title: "review"}}
	iv, err := env.Engine.UpdateIntervention(env.Ctx, engine.InterventionUpdateOptions{
		BundleID: env.Bundle.ID, ID: "A", Complexity: &c, MicroTasks: &tasks,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ComplexityHigh, iv.Complexity)
	require.Len(t, iv.MicroTasks, 2)
	assert.NotEmpty(t, iv.MicroTasks[0].ID)

	bad := domain.Complexity("extreme")
	_, err = env.Engine.UpdateIntervention(env.Ctx, engine.InterventionUpdateOptions{BundleID: env.Bundle.ID, ID: "A", Complexity: &bad})
	assert.ErrorIs(t, err, engine.ErrInvalid)
}

func TestValidateReportsResourceConflict(t *testing.T) {
	env := newTestEnv(t)
	staff := domain.Resource{Type: "human", Name: "Staff"}
	env.add(t, "A", domain.ComplexityLow, 0, staff)
	env.add(t, "B", domain.ComplexityLow, 0, staff)
	require.NoError(t, env.link(t, "A", "B", domain.DependencyParallel))

	report, err := env.Engine.ValidateBundle(env.Ctx, env.Bundle.ID)
	require.NoError(t, err)
	assert.False(t, report.Valid)
	require.Len(t, report.Conflicts, 1)
	assert.Contains(t, report.Conflicts[0], "Staff")
}

func TestImportKeepsCycleForValidation(t *testing.T) {
	env := newTestEnv(t)
	b, err := env.Engine.ImportBundle(env.Ctx, domain.Bundle{
		ID:   "imported",
		Name: "Imported",
		Interventions: []domain.Intervention{
			{ID: "A", Name: "Alpha", Complexity: domain.ComplexityLow},
			{ID: "B", Name: "Beta", Complexity: domain.ComplexityLow},
		},
		Dependencies: []domain.DependencyEdge{
			{FromInterventionID: "A", ToInterventionID: "B"},
			{FromInterventionID: "B", ToInterventionID: "A"},
		},
	}, "tester")
	require.NoError(t, err)
	require.Len(t, b.Dependencies, 2)

	report, err := env.Engine.ValidateBundle(env.Ctx, "imported")
	require.NoError(t, err)
	assert.False(t, report.Valid)
	assert.Equal(t, "A", report.CycleAt)

	_, err = env.Engine.ScheduleBundle(env.Ctx, "imported", 0)
	assert.ErrorIs(t, err, plan.ErrCycle)

	_, err = env.Engine.ImportBundle(env.Ctx, domain.Bundle{ID: "imported", Name: "dup"}, "tester")
	assert.ErrorIs(t, err, engine.ErrAlreadyExists)
}

func TestPublishExportToFile(t *testing.T) {
	env := newTestEnv(t)
	env.add(t, "A", domain.ComplexityMedium, 1)
	dir := t.TempDir()

	loc, err := env.Engine.PublishExport(env.Ctx, env.Bundle.ID, export.FormatCSV, export.FileDestination{Dir: dir}, "tester")
	require.NoError(t, err)
	data, err := os.ReadFile(loc)
	require.NoError(t, err)
	assert.Contains(t, string(data), "A")
	assert.Equal(t, 1, env.countEvents(t, events.BundleExported))
}

func TestDeleteAndUpdateBundle(t *testing.T) {
	env := newTestEnv(t)
	weeks := 40
	b, err := env.Engine.UpdateBundle(env.Ctx, engine.BundleUpdateOptions{ID: env.Bundle.ID, TimelineWeeks: &weeks})
	require.NoError(t, err)
	assert.Equal(t, 40, b.TimelineWeeks)

	zero := 0
	_, err = env.Engine.UpdateBundle(env.Ctx, engine.BundleUpdateOptions{ID: env.Bundle.ID, TimelineWeeks: &zero})
	assert.ErrorIs(t, err, engine.ErrInvalid)

	require.NoError(t, env.Engine.DeleteBundle(env.Ctx, env.Bundle.ID, "tester"))
	_, err = env.Engine.GetBundle(env.Ctx, env.Bundle.ID)
	assert.ErrorIs(t, err, repo.ErrNotFound)
	assert.ErrorIs(t, env.Engine.DeleteBundle(env.Ctx, env.Bundle.ID, "tester"), repo.ErrNotFound)
}
