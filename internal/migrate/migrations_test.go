package migrate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intervene/internal/db"
)

func TestMigrateIsIdempotent(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()
	ctx := context.Background()

	st, err := Status(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, 0, st.Current)
	assert.NotEmpty(t, st.Pending)

	require.NoError(t, Migrate(conn))
	require.NoError(t, Migrate(conn))

	st, err = Status(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, st.Latest, st.Current)
	assert.Empty(t, st.Pending)

	var n int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name IN ('bundles','interventions','dependencies','events')`).Scan(&n))
	assert.Equal(t, 4, n)
}
