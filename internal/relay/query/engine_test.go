package query

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	relayerrors "github.com/camdencbrown/relay/infrastructure/errors"
	"github.com/camdencbrown/relay/internal/relay/store"
)

func TestHasLimitClause(t *testing.T) {
	require.True(t, hasLimitClause("SELECT * FROM t LIMIT 10"))
	require.True(t, hasLimitClause("select * from t limit 5"))
	require.False(t, hasLimitClause("SELECT * FROM t"))
	require.False(t, hasLimitClause("SELECT limitless FROM t"))
}

func TestFormatFromURI(t *testing.T) {
	require.Equal(t, "csv", formatFromURI("/data/20260801.csv"))
	require.Equal(t, "csv", formatFromURI("/data/20260801.csv.gz"))
	require.Equal(t, "json", formatFromURI("/data/20260801.json"))
	require.Equal(t, "parquet", formatFromURI("/data/20260801.parquet"))
}

func TestResolvePath(t *testing.T) {
	require.Equal(t, "s3://bucket/key.parquet", resolvePath("object://bucket/key.parquet"))
	require.Equal(t, "/abs/key.parquet", resolvePath("/abs/key.parquet"))
}

func TestSanitizeValue(t *testing.T) {
	require.Nil(t, sanitizeValue(math.NaN()))
	require.Nil(t, sanitizeValue(math.Inf(1)))
	require.Equal(t, 1.5, sanitizeValue(1.5))
	require.Nil(t, sanitizeValue((*time.Time)(nil)))
	require.Equal(t, "x", sanitizeValue("x"))
}

// seedArtifact writes a CSV artifact and records a successful run pointing at it.
func seedArtifact(t *testing.T, m store.Store, pipelineName, csvContent string) store.Pipeline {
	t.Helper()
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "artifact.csv")
	require.NoError(t, os.WriteFile(path, []byte(csvContent), 0o644))

	p, err := m.SavePipeline(ctx, store.Pipeline{Name: pipelineName, Source: store.SourceConfig{Type: "csv_url"}})
	require.NoError(t, err)

	run, err := m.SaveRun(ctx, store.PipelineRun{PipelineID: p.ID, Status: store.RunRunning, StartedAt: time.Now().UTC()})
	require.NoError(t, err)
	_, err = m.UpdateRun(ctx, run.RunID, map[string]interface{}{
		"status":      string(store.RunSuccess),
		"output_file": path,
	})
	require.NoError(t, err)
	return p
}

func TestExecuteQueryCountsRows(t *testing.T) {
	m := store.NewMemory()
	p := seedArtifact(t, m, "Demo Orders", "id,amount\n1,10.5\n2,20.0\n3,5.25\n")

	engine := New(m)
	result, err := engine.ExecuteQuery(context.Background(), []string{p.ID}, "SELECT COUNT(*) AS n FROM demo_orders", 100)
	require.NoError(t, err)
	require.Equal(t, 1, result.RowCount)
	require.EqualValues(t, 3, result.Rows[0]["n"])
	require.Equal(t, []string{p.ID}, result.PipelinesUsed)
}

func TestExecuteQueryJoinsPipelines(t *testing.T) {
	m := store.NewMemory()
	customers := seedArtifact(t, m, "Customers", "id,segment\n1,smb\n2,enterprise\n")
	orders := seedArtifact(t, m, "Orders", "id,customer_id,amount\n10,1,5.0\n11,1,7.5\n12,2,100.0\n")

	engine := New(m)
	result, err := engine.ExecuteQuery(context.Background(), []string{customers.ID, orders.ID},
		"SELECT c.segment, COUNT(o.id) AS n FROM customers c JOIN orders o ON c.id = o.customer_id GROUP BY c.segment ORDER BY c.segment", 100)
	require.NoError(t, err)
	require.Equal(t, 2, result.RowCount)

	var total int64
	for _, row := range result.Rows {
		total += row["n"].(int64)
	}
	require.EqualValues(t, 3, total)
}

func TestExecuteQueryAppendsLimit(t *testing.T) {
	m := store.NewMemory()
	p := seedArtifact(t, m, "Demo Orders", "id\n1\n2\n3\n4\n5\n")

	engine := New(m)
	result, err := engine.ExecuteQuery(context.Background(), []string{p.ID}, "SELECT id FROM demo_orders ORDER BY id", 2)
	require.NoError(t, err)
	require.Equal(t, 2, result.RowCount)
	require.Contains(t, result.QueryExecuted, "LIMIT 2")
}

func TestExecuteQueryNoData(t *testing.T) {
	m := store.NewMemory()
	p, err := m.SavePipeline(context.Background(), store.Pipeline{Name: "Empty", Source: store.SourceConfig{Type: "csv_url"}})
	require.NoError(t, err)

	engine := New(m)
	_, err = engine.ExecuteQuery(context.Background(), []string{p.ID}, "SELECT 1", 10)
	require.Error(t, err)
	require.Equal(t, relayerrors.KindNoData, relayerrors.GetRelayError(err).Kind)
}

func TestExecuteQuerySurfacesSQLErrors(t *testing.T) {
	m := store.NewMemory()
	p := seedArtifact(t, m, "Demo Orders", "id\n1\n")

	engine := New(m)
	_, err := engine.ExecuteQuery(context.Background(), []string{p.ID}, "SELECT FROM WHERE", 10)
	require.Error(t, err)
	require.Equal(t, relayerrors.KindQueryFailed, relayerrors.GetRelayError(err).Kind)
}

func TestListPipelineSchemas(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	p, err := m.SavePipeline(ctx, store.Pipeline{Name: "Demo Orders", Source: store.SourceConfig{Type: "synthetic"}})
	require.NoError(t, err)
	_, err = m.SaveMetadata(ctx, store.DatasetMetadata{
		PipelineID: p.ID,
		Columns: []store.ColumnProfile{
			{Name: "amount", Type: "float64", SemanticType: "currency", AutoDescription: "Monetary value (amount)"},
		},
		RowCount: 10,
	})
	require.NoError(t, err)

	engine := New(m)
	schemas, err := engine.ListPipelineSchemas(ctx, []string{p.ID})
	require.NoError(t, err)
	require.Len(t, schemas, 1)
	require.Equal(t, "demo_orders", schemas[0].TableName)
	require.Equal(t, "synthetic", schemas[0].SourceType)
	require.Len(t, schemas[0].Columns, 1)
	require.Equal(t, "currency", schemas[0].Columns[0].SemanticType)
	require.Equal(t, "Monetary value (amount)", schemas[0].Columns[0].Description)
}
