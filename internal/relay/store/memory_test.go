package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	relayerrors "github.com/camdencbrown/relay/infrastructure/errors"
)

func TestRunStatusMonotonicity(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	run, err := m.SaveRun(ctx, PipelineRun{PipelineID: "p1", Status: RunRunning, StartedAt: time.Now().UTC()})
	require.NoError(t, err)

	updated, err := m.UpdateRun(ctx, run.RunID, map[string]interface{}{"status": "success", "rows_processed": 200})
	require.NoError(t, err)
	require.Equal(t, RunSuccess, updated.Status)
	require.NotNil(t, updated.CompletedAt)

	_, err = m.UpdateRun(ctx, run.RunID, map[string]interface{}{"status": "failed"})
	require.Error(t, err)
	relayErr := relayerrors.GetRelayError(err)
	require.NotNil(t, relayErr)
	require.Equal(t, relayerrors.KindInvalidTransition, relayErr.Kind)
}

func TestConnectionDeletionSafety(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	conn, err := m.SaveConnection(ctx, Connection{Name: "prod-db", Type: "postgres"})
	require.NoError(t, err)

	_, err = m.SavePipeline(ctx, Pipeline{
		Name:   "Orders",
		Source: SourceConfig{Type: "postgres", Connection: "prod-db"},
	})
	require.NoError(t, err)

	ok, err := m.DeleteConnection(ctx, conn.ID)
	require.False(t, ok)
	require.Error(t, err)
	relayErr := relayerrors.GetRelayError(err)
	require.NotNil(t, relayErr)
	require.Equal(t, relayerrors.KindConflict, relayErr.Kind)

	still, err := m.GetConnection(ctx, conn.ID)
	require.NoError(t, err)
	require.NotNil(t, still)
}

func TestConnectionDeletionSucceedsWhenUnreferenced(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	conn, err := m.SaveConnection(ctx, Connection{Name: "scratch-db", Type: "mysql"})
	require.NoError(t, err)

	ok, err := m.DeleteConnection(ctx, conn.ID)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestPipelineDeleteCascadesToRuns(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	p, err := m.SavePipeline(ctx, Pipeline{Name: "Demo"})
	require.NoError(t, err)

	_, err = m.SaveRun(ctx, PipelineRun{PipelineID: p.ID, Status: RunRunning, StartedAt: time.Now().UTC()})
	require.NoError(t, err)

	ok, err := m.DeletePipeline(ctx, p.ID)
	require.NoError(t, err)
	require.True(t, ok)

	runs, err := m.ListRuns(ctx, p.ID)
	require.NoError(t, err)
	require.Empty(t, runs)
}

func TestOntologySnapshotOnlyContainsActiveRows(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	active, err := m.SaveEntity(ctx, Entity{Name: "orders", PipelineID: "p1", Status: EntityActive})
	require.NoError(t, err)
	_, err = m.SaveEntity(ctx, Entity{Name: "rejected_entity", PipelineID: "p2", Status: EntityRejected})
	require.NoError(t, err)

	snapshot, err := m.GetOntologySnapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snapshot.Entities, 1)
	require.Equal(t, active.Name, snapshot.Entities[0].Name)
	require.Len(t, snapshot.Lineage.EntityPipelineMap, 1)
	require.Equal(t, "p1", snapshot.Lineage.EntityPipelineMap["orders"])
}
