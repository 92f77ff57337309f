package intervenesdk

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intervene/internal/config"
	"intervene/internal/db"
	"intervene/internal/engine"
	"intervene/internal/migrate"
	"intervene/internal/server"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	workspace := t.TempDir()
	_, err := db.EnsureWorkspace(workspace)
	require.NoError(t, err)
	conn, err := db.Open(db.Config{Workspace: workspace})
	require.NoError(t, err)
	require.NoError(t, migrate.Migrate(conn))

	logger := log.New(io.Discard)
	e := engine.New(conn, config.Default())
	e.Logger = logger
	handler, err := server.New(server.Config{
		Engine:   e,
		BasePath: "/v0",
		Logger:   logger,
		Auth:     server.AuthConfig{JWTSecret: "sdk-secret", AllowLegacyActorHeader: true},
	})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		srv.Close()
		conn.Close()
	})
	c := New(srv.URL)
	c.ActorID = "sdk-tester"
	return c
}

func TestClientPlansBundle(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	b, err := c.CreateBundle(ctx, "Reform", 0)
	require.NoError(t, err)
	assert.Equal(t, 26, b.TimelineWeeks)

	for _, iv := range []Intervention{
		{ID: "A", Name: "Audit", Complexity: "Low"},
		{ID: "B", Name: "Pilot", Complexity: "Medium", MicroTasks: []MicroTask{{Title: "1"}, {Title: "2"}, {Title: "3"}, {Title: "4"}}},
		{ID: "C", Name: "Rollout", Complexity: "High", MicroTasks: make([]MicroTask, 8)},
	} {
		_, err := c.AddIntervention(ctx, b.ID, iv)
		require.NoError(t, err, iv.ID)
	}
	_, err = c.AddDependency(ctx, b.ID, Dependency{FromInterventionID: "A", ToInterventionID: "B"})
	require.NoError(t, err)
	_, err = c.AddDependency(ctx, b.ID, Dependency{FromInterventionID: "B", ToInterventionID: "C"})
	require.NoError(t, err)

	_, err = c.AddDependency(ctx, b.ID, Dependency{FromInterventionID: "C", ToInterventionID: "A"})
	require.Error(t, err)
	assert.True(t, IsRejected(err))

	tl, err := c.Timeline(ctx, b.ID, 0)
	require.NoError(t, err)
	for id, want := range map[string][3]int{"A": {1, 2, 2}, "B": {3, 5, 7}, "C": {8, 10, 17}} {
		e, ok := tl.Entry(id)
		require.True(t, ok, id)
		assert.Equal(t, want, [3]int{e.StartWeek, e.Duration, e.EndWeek}, id)
	}

	v, err := c.Validate(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, v.Valid)

	critical := true
	n, err := c.UpdateDependency(ctx, b.ID, "A", "B", nil, &critical, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	deps, err := c.Dependencies(ctx, b.ID, "B")
	require.NoError(t, err)
	require.Len(t, deps, 1)
	assert.True(t, deps[0].CriticalPath)

	n, err = c.RemoveDependency(ctx, b.ID, "B", "C")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	dropped, err := c.RemoveIntervention(ctx, b.ID, "A")
	require.NoError(t, err)
	assert.Equal(t, 1, dropped)

	events, err := c.Events(ctx, b.ID, 5)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, "intervention.removed", events[0].Type)
	assert.Equal(t, "sdk-tester", events[0].ActorID)

	require.NoError(t, c.DeleteBundle(ctx, b.ID))
	_, err = c.GetBundle(ctx, b.ID)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 404, apiErr.StatusCode)
	assert.Equal(t, "not_found", apiErr.Code)
}

func TestClientImportKeepsEdges(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	b, err := c.ImportBundle(ctx, Bundle{
		ID:   "loop",
		Name: "Loop",
		Interventions: []Intervention{
			{ID: "X", Name: "X", Complexity: "Low"},
			{ID: "Y", Name: "Y", Complexity: "Low"},
		},
		Dependencies: []Dependency{
			{FromInterventionID: "X", ToInterventionID: "Y"},
			{FromInterventionID: "X", ToInterventionID: "Y"},
			{FromInterventionID: "Y", ToInterventionID: "X"},
		},
	})
	require.NoError(t, err)
	assert.Len(t, b.Dependencies, 3)

	v, err := c.Validate(ctx, "loop")
	require.NoError(t, err)
	assert.False(t, v.Valid)
	assert.Equal(t, "X", v.CycleAt)

	_, err = c.Timeline(ctx, "loop", 0)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "cycle_detected", apiErr.Code)
}
