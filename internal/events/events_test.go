package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intervene/internal/db"
	"intervene/internal/migrate"
)

func TestAppendWritesRow(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, migrate.Migrate(conn))

	ctx := context.Background()
	w := Writer{DB: conn, Now: func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }}
	tx, err := conn.BeginTx(ctx, nil)
	require.NoError(t, err)
	rec, err := w.Append(ctx, tx, DependencyAdded, "b1", "dependency", "A->B", "", EventPayload{"from": "A"})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	assert.Equal(t, "local-user", rec.ActorID)
	assert.Equal(t, "2024-01-01T00:00:00Z", rec.TS)

	var typ, payload string
	require.NoError(t, conn.QueryRow(`SELECT type,payload_json FROM events WHERE bundle_id='b1'`).Scan(&typ, &payload))
	assert.Equal(t, DependencyAdded, typ)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(payload), &decoded))
	assert.Equal(t, "A", decoded["from"])
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "intervene.dependency.added", Subject("", DependencyAdded))
	assert.Equal(t, "gov.bundle.created", Subject("gov.", BundleCreated))
}

func TestOpenWithoutURLIsNoop(t *testing.T) {
	p, err := Open("  ")
	require.NoError(t, err)
	assert.IsType(t, NoopPublisher{}, p)
	assert.NoError(t, p.Publish(context.Background(), "x", map[string]string{}))
	assert.NoError(t, p.Close())
}
