package pipeline

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/camdencbrown/relay/internal/relay/blobwriter"
	"github.com/camdencbrown/relay/internal/relay/connectors"
	"github.com/camdencbrown/relay/internal/relay/metadata"
	"github.com/camdencbrown/relay/internal/relay/store"
)

func newTestEngine(t *testing.T, m store.Store) *Engine {
	t.Helper()
	registry := connectors.NewRegistry(m, nil)
	writer := blobwriter.NewWriter(blobwriter.NewLocalBackend(t.TempDir()))
	return New(m, registry, writer, metadata.New(m), nil)
}

func syntheticOrdersPipeline(t *testing.T, m store.Store) store.Pipeline {
	t.Helper()
	p, err := m.SavePipeline(context.Background(), store.Pipeline{
		Name: "Demo Orders",
		Kind: store.PipelineRegular,
		Source: store.SourceConfig{
			Type:     "synthetic",
			RowCount: 200,
			Schema:   map[string]string{"id": "integer:1:1000", "amount": "currency"},
		},
		Destination: store.DestinationConfig{Bucket: "demo"},
		Options:     store.PipelineOptions{Format: "parquet"},
	})
	require.NoError(t, err)
	return p
}

func TestExecuteSyntheticRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	engine := newTestEngine(t, m)
	p := syntheticOrdersPipeline(t, m)

	run, err := engine.Execute(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, store.RunSuccess, run.Status)
	require.Equal(t, 200, run.RowsProcessed)
	require.NotNil(t, run.CompletedAt)
	require.GreaterOrEqual(t, run.DurationSeconds, 0.0)
	require.True(t, run.Streaming)
	require.GreaterOrEqual(t, run.ChunksProcessed, 1)
	require.NotEmpty(t, run.OutputFile)
	require.True(t, strings.HasSuffix(run.OutputFile, ".parquet"))

	_, err = os.Stat(run.OutputFile)
	require.NoError(t, err)

	require.True(t, run.MetadataGenerated)
	meta, err := m.GetMetadata(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, meta)
	require.Equal(t, 200, meta.RowCount)
	require.Len(t, meta.Columns, 2)
}

func TestExecuteUnknownPipeline(t *testing.T) {
	engine := newTestEngine(t, store.NewMemory())
	_, err := engine.Execute(context.Background(), "pipe-missing")
	require.Error(t, err)
}

func TestExecuteRecordsFailureOnRun(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	engine := newTestEngine(t, m)

	p, err := m.SavePipeline(ctx, store.Pipeline{
		Name:        "Broken",
		Source:      store.SourceConfig{Type: "no_such_source"},
		Destination: store.DestinationConfig{Bucket: "demo"},
	})
	require.NoError(t, err)

	run, err := engine.Execute(ctx, p.ID)
	require.NoError(t, err) // execution failures land on the run row, not the caller
	require.Equal(t, store.RunFailed, run.Status)
	require.NotEmpty(t, run.Error)
	require.NotNil(t, run.CompletedAt)
}

func TestDispatchReturnsImmediately(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	engine := newTestEngine(t, m)
	p := syntheticOrdersPipeline(t, m)

	run, err := engine.Dispatch(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, store.RunRunning, run.Status)
	require.NotEmpty(t, run.RunID)

	require.Eventually(t, func() bool {
		final, err := m.GetRun(ctx, p.ID, run.RunID)
		return err == nil && final != nil && final.Status == store.RunSuccess
	}, 10*time.Second, 20*time.Millisecond)
}

func TestDecideStreaming(t *testing.T) {
	engine := newTestEngine(t, store.NewMemory())

	auto := store.Pipeline{Source: store.SourceConfig{Type: "synthetic"}}
	require.True(t, engine.decideStreaming(auto))

	auto.Source.Type = "csv_url"
	require.False(t, engine.decideStreaming(auto))

	forced := store.Pipeline{Source: store.SourceConfig{Type: "csv_url"}, Options: store.PipelineOptions{Streaming: "true"}}
	require.True(t, engine.decideStreaming(forced))

	disabled := store.Pipeline{Source: store.SourceConfig{Type: "mysql"}, Options: store.PipelineOptions{Streaming: "false"}}
	require.False(t, engine.decideStreaming(disabled))
}

func TestTestSourcePreviewCapsSample(t *testing.T) {
	engine := newTestEngine(t, store.NewMemory())

	table, err := engine.TestSource(context.Background(), store.SourceConfig{
		Type:     "synthetic",
		RowCount: 1000,
		Schema:   map[string]string{"id": "integer:1:100"},
	})
	require.NoError(t, err)
	require.LessOrEqual(t, len(table.Rows), 200)
	require.NotEmpty(t, table.Rows)
}
