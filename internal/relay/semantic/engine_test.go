package semantic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	relayerrors "github.com/camdencbrown/relay/infrastructure/errors"
	"github.com/camdencbrown/relay/internal/relay/query"
	"github.com/camdencbrown/relay/internal/relay/store"
)

// captureExecutor records the compiled SQL instead of running it, so these
// tests exercise resolution and compilation without an analytic session.
type captureExecutor struct {
	lastSQL         string
	lastPipelineIDs []string
}

func (c *captureExecutor) ExecuteQuery(_ context.Context, pipelineIDs []string, sqlText string, _ int) (query.Result, error) {
	c.lastSQL = sqlText
	c.lastPipelineIDs = pipelineIDs
	return query.Result{QueryExecuted: sqlText}, nil
}

// seedOrdersCustomers builds a small orders/customers ontology: two
// pipelines, two entities, a many_to_one relationship on customer_id=id, a
// revenue metric, and a segment dimension.
func seedOrdersCustomers(t *testing.T) store.Store {
	t.Helper()
	ctx := context.Background()
	m := store.NewMemory()

	ordersPipe, err := m.SavePipeline(ctx, store.Pipeline{Name: "Orders Table", Source: store.SourceConfig{Type: "synthetic"}})
	require.NoError(t, err)
	customersPipe, err := m.SavePipeline(ctx, store.Pipeline{Name: "Customers Table", Source: store.SourceConfig{Type: "synthetic"}})
	require.NoError(t, err)

	_, err = m.SaveEntity(ctx, store.Entity{Name: "orders", PipelineID: ordersPipe.ID, Status: store.EntityActive})
	require.NoError(t, err)
	_, err = m.SaveEntity(ctx, store.Entity{Name: "customers", PipelineID: customersPipe.ID, Status: store.EntityActive})
	require.NoError(t, err)

	_, err = m.SaveRelationship(ctx, store.Relationship{
		Name:             "orders_to_customers",
		FromEntity:       "orders",
		ToEntity:         "customers",
		FromColumn:       "customer_id",
		ToColumn:         "id",
		RelationshipType: store.ManyToOne,
	})
	require.NoError(t, err)

	_, err = m.SaveMetric(ctx, store.Metric{Name: "revenue", EntityName: "orders", Expression: "SUM(orders.total)"})
	require.NoError(t, err)
	_, err = m.SaveDimension(ctx, store.Dimension{Name: "segment", EntityName: "customers", Expression: "customers.segment", DimensionType: store.DimensionDirect})
	require.NoError(t, err)

	return m
}

func TestExecuteCompilesJoinedQuery(t *testing.T) {
	m := seedOrdersCustomers(t)
	exec := &captureExecutor{}
	engine := New(m, exec, "")

	result, err := engine.Execute(context.Background(), Request{
		Metrics:    []string{"revenue"},
		Dimensions: []string{"segment"},
	})
	require.NoError(t, err)

	want := "SELECT SUM(orders_table.total) AS revenue, customers_table.segment AS segment " +
		"FROM orders_table " +
		"LEFT JOIN customers_table ON orders_table.customer_id = customers_table.id " +
		"GROUP BY customers_table.segment"
	require.Equal(t, want, exec.lastSQL)
	require.Equal(t, want, result.GeneratedSQL)
	require.Equal(t, []string{"orders", "customers"}, result.EntitiesUsed)
	require.Len(t, exec.lastPipelineIDs, 2)
}

func TestExecuteSubstitutesFiltersAndOrderBy(t *testing.T) {
	m := seedOrdersCustomers(t)
	exec := &captureExecutor{}
	engine := New(m, exec, "")

	_, err := engine.Execute(context.Background(), Request{
		Metrics:    []string{"revenue"},
		Dimensions: []string{"segment"},
		Filters:    []string{"customers.segment != 'internal'"},
		OrderBy:    []string{"revenue DESC"},
		Limit:      10,
	})
	require.NoError(t, err)
	require.Contains(t, exec.lastSQL, "WHERE customers_table.segment != 'internal'")
	require.Contains(t, exec.lastSQL, "ORDER BY revenue DESC")
	require.Contains(t, exec.lastSQL, "LIMIT 10")
}

func TestComposableMetricExpandsReferences(t *testing.T) {
	ctx := context.Background()
	m := seedOrdersCustomers(t)
	_, err := m.SaveMetric(ctx, store.Metric{Name: "order_count", EntityName: "orders", Expression: "COUNT(*)"})
	require.NoError(t, err)
	_, err = m.SaveMetric(ctx, store.Metric{Name: "aov", EntityName: "orders", Expression: "${revenue} / NULLIF(${order_count},0)"})
	require.NoError(t, err)

	exec := &captureExecutor{}
	engine := New(m, exec, "")

	_, err = engine.Execute(ctx, Request{Metrics: []string{"aov"}})
	require.NoError(t, err)
	require.Contains(t, exec.lastSQL, "SUM(orders_table.total)")
	require.Contains(t, exec.lastSQL, "COUNT(*)")
}

func TestCircularMetricFailsFast(t *testing.T) {
	ctx := context.Background()
	m := seedOrdersCustomers(t)
	_, err := m.SaveMetric(ctx, store.Metric{Name: "a", EntityName: "orders", Expression: "${b}"})
	require.NoError(t, err)
	_, err = m.SaveMetric(ctx, store.Metric{Name: "b", EntityName: "orders", Expression: "${a}"})
	require.NoError(t, err)

	engine := New(m, &captureExecutor{}, "")
	for _, name := range []string{"a", "b"} {
		_, err := engine.Execute(ctx, Request{Metrics: []string{name}})
		require.Error(t, err)
		relayErr := relayerrors.GetRelayError(err)
		require.NotNil(t, relayErr)
		require.Equal(t, relayerrors.KindCircularMetric, relayErr.Kind)
	}
}

func TestUnknownReferences(t *testing.T) {
	m := seedOrdersCustomers(t)
	engine := New(m, &captureExecutor{}, "")

	_, err := engine.Execute(context.Background(), Request{Metrics: []string{"no_such_metric"}})
	require.Equal(t, relayerrors.KindUnknownMetric, relayerrors.GetRelayError(err).Kind)

	_, err = engine.Execute(context.Background(), Request{Dimensions: []string{"no_such_dimension"}})
	require.Equal(t, relayerrors.KindUnknownDimension, relayerrors.GetRelayError(err).Kind)
}

func TestEmptyRequestRejected(t *testing.T) {
	engine := New(store.NewMemory(), &captureExecutor{}, "")
	_, err := engine.Execute(context.Background(), Request{})
	require.Equal(t, relayerrors.KindEmptyQuery, relayerrors.GetRelayError(err).Kind)
}

func TestDisconnectedOntology(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	p1, err := m.SavePipeline(ctx, store.Pipeline{Name: "Orders", Source: store.SourceConfig{Type: "synthetic"}})
	require.NoError(t, err)
	p2, err := m.SavePipeline(ctx, store.Pipeline{Name: "Invoices", Source: store.SourceConfig{Type: "synthetic"}})
	require.NoError(t, err)
	_, err = m.SaveEntity(ctx, store.Entity{Name: "orders", PipelineID: p1.ID, Status: store.EntityActive})
	require.NoError(t, err)
	_, err = m.SaveEntity(ctx, store.Entity{Name: "invoices", PipelineID: p2.ID, Status: store.EntityActive})
	require.NoError(t, err)
	_, err = m.SaveMetric(ctx, store.Metric{Name: "revenue", EntityName: "orders", Expression: "SUM(orders.total)"})
	require.NoError(t, err)
	_, err = m.SaveDimension(ctx, store.Dimension{Name: "region", EntityName: "invoices", Expression: "invoices.region"})
	require.NoError(t, err)

	engine := New(m, &captureExecutor{}, "")
	_, err = engine.Execute(ctx, Request{Metrics: []string{"revenue"}, Dimensions: []string{"region"}})
	require.Error(t, err)
	require.Equal(t, relayerrors.KindDisconnectedOntology, relayerrors.GetRelayError(err).Kind)
}

func TestNaturalLanguageUnavailableWithoutKey(t *testing.T) {
	engine := New(store.NewMemory(), &captureExecutor{}, "")
	_, err := engine.Execute(context.Background(), Request{NaturalLanguage: "revenue by segment"})
	require.Equal(t, relayerrors.KindNLUnavailable, relayerrors.GetRelayError(err).Kind)
}
