package repo

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intervene/internal/db"
	"intervene/internal/domain"
	"intervene/internal/migrate"
)

// newMockDB creates a sqlmock database with automatic cleanup and expectation checking.
func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unfulfilled expectations: %v", err)
		}
		conn.Close()
	})
	return conn, mock
}

func newSQLiteRepo(t *testing.T) Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	return Repo{DB: conn}
}

func TestGetBundleNotFound(t *testing.T) {
	conn, mock := newMockDB(t)
	mock.ExpectQuery("SELECT (.+) FROM bundles WHERE id=\\?").WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description", "timeline_weeks", "created_at", "updated_at"}))

	_, err := Repo{DB: conn}.GetBundle(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReplaceDependenciesPropagatesInsertError(t *testing.T) {
	conn, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM dependencies WHERE bundle_id=\\?").WithArgs("b1").WillReturnResult(sqlmock.NewResult(0, 0))
	prep := mock.ExpectPrepare("INSERT INTO dependencies")
	prep.ExpectExec().WithArgs("b1", 0, "sequence", "A", "B", 1, nil).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	tx, err := conn.Begin()
	require.NoError(t, err)
	err = Repo{DB: conn}.ReplaceDependencies(context.Background(), tx, "b1", []domain.DependencyEdge{
		{Type: domain.DependencySequence, FromInterventionID: "A", ToInterventionID: "B", CriticalPath: true},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "A -> B")
	require.NoError(t, tx.Rollback())
}

func TestUpdateBundleMissingRow(t *testing.T) {
	conn, mock := newMockDB(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE bundles SET updated_at=\\?,name=\\? WHERE id=\\?").
		WithArgs("2024-01-01T00:00:00Z", "New", "nope").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	tx, err := conn.Begin()
	require.NoError(t, err)
	name := "New"
	err = Repo{DB: conn}.UpdateBundle(context.Background(), tx, "nope", "2024-01-01T00:00:00Z", &name, nil, nil)
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, tx.Rollback())
}

func TestLoadBundleKeepsListOrderAndDuplicates(t *testing.T) {
	r := newSQLiteRepo(t)
	ctx := context.Background()
	now := "2024-01-01T00:00:00Z"

	tx, err := r.DB.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, r.InsertBundle(ctx, tx, domain.Bundle{ID: "b1", Name: "Reform", TimelineWeeks: 26, CreatedAt: now, UpdatedAt: now}))
	for i, id := range []string{"C", "A", "B"} {
		require.NoError(t, r.InsertIntervention(ctx, tx, domain.Intervention{
			ID: id, BundleID: "b1", Name: id, Complexity: domain.ComplexityLow, Position: i,
			Resources: []domain.Resource{{Type: "human", Name: "Staff"}},
			CreatedAt: now, UpdatedAt: now,
		}))
	}
	edges := []domain.DependencyEdge{
		{Type: domain.DependencySequence, FromInterventionID: "B", ToInterventionID: "C"},
		{Type: domain.DependencyParallel, FromInterventionID: "A", ToInterventionID: "B", CriticalPath: true, Description: "shared staff"},
		{Type: domain.DependencySequence, FromInterventionID: "B", ToInterventionID: "C"},
		{Type: domain.DependencySequence, FromInterventionID: "ghost", ToInterventionID: "A"},
	}
	require.NoError(t, r.ReplaceDependencies(ctx, tx, "b1", edges))
	require.NoError(t, tx.Commit())

	b, err := r.LoadBundle(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, edges, b.Dependencies)
	require.Len(t, b.Interventions, 3)
	assert.Equal(t, "C", b.Interventions[0].ID)
	assert.Equal(t, []domain.Resource{{Type: "human", Name: "Staff"}}, b.Interventions[1].Resources)
	assert.Empty(t, b.Interventions[0].MicroTasks)

	pos, err := r.NextInterventionPosition(ctx, nil, "b1")
	require.NoError(t, err)
	assert.Equal(t, 3, pos)
}

func TestDeleteBundleCascades(t *testing.T) {
	r := newSQLiteRepo(t)
	ctx := context.Background()
	now := "2024-01-01T00:00:00Z"
	tx, err := r.DB.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, r.InsertBundle(ctx, tx, domain.Bundle{ID: "b1", Name: "x", TimelineWeeks: 26, CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, r.InsertIntervention(ctx, tx, domain.Intervention{ID: "A", BundleID: "b1", Name: "A", Complexity: domain.ComplexityHigh, CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, tx.Commit())

	tx, err = r.DB.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, r.DeleteBundle(ctx, tx, "b1"))
	require.NoError(t, tx.Commit())

	ivs, err := r.ListInterventions(ctx, "b1")
	require.NoError(t, err)
	assert.Empty(t, ivs)
	_, err = r.GetBundle(ctx, "b1")
	assert.ErrorIs(t, err, ErrNotFound)
}
