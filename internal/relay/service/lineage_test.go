package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	relayerrors "github.com/camdencbrown/relay/infrastructure/errors"
	"github.com/camdencbrown/relay/internal/relay/store"
)

func TestExtractColumnReferences(t *testing.T) {
	require.Equal(t, []string{"orders.total"}, extractColumnReferences("SUM(orders.total)"))
	require.Empty(t, extractColumnReferences("COUNT(*)"))
	require.Equal(t,
		[]string{"orders.total", "orders.discount"},
		extractColumnReferences("SUM(orders.total) - SUM(orders.discount) + SUM(orders.total)"),
	)
}

func seedLineageFixture(t *testing.T) (*Service, store.Pipeline) {
	t.Helper()
	ctx := context.Background()
	m := store.NewMemory()

	p, err := m.SavePipeline(ctx, store.Pipeline{Name: "Orders Table", Source: store.SourceConfig{Type: "postgres", Table: "orders"}})
	require.NoError(t, err)
	_, err = m.SaveEntity(ctx, store.Entity{Name: "orders", PipelineID: p.ID, Status: store.EntityActive})
	require.NoError(t, err)
	_, err = m.SaveEntity(ctx, store.Entity{Name: "customers", PipelineID: p.ID, Status: store.EntityActive})
	require.NoError(t, err)
	_, err = m.SaveEntity(ctx, store.Entity{Name: "refunds", PipelineID: p.ID, Status: store.EntityActive})
	require.NoError(t, err)

	_, err = m.SaveMetric(ctx, store.Metric{Name: "revenue", EntityName: "orders", Expression: "SUM(orders.total)"})
	require.NoError(t, err)
	_, err = m.SaveMetric(ctx, store.Metric{Name: "order_count", EntityName: "orders", Expression: "COUNT(*)"})
	require.NoError(t, err)
	_, err = m.SaveDimension(ctx, store.Dimension{Name: "month", EntityName: "orders", Expression: "DATE_TRUNC('month', orders.created_at)"})
	require.NoError(t, err)

	_, err = m.SaveRelationship(ctx, store.Relationship{
		Name: "orders_to_customers", FromEntity: "orders", ToEntity: "customers",
		FromColumn: "customer_id", ToColumn: "id", RelationshipType: store.ManyToOne,
	})
	require.NoError(t, err)
	_, err = m.SaveRelationship(ctx, store.Relationship{
		Name: "refunds_to_orders", FromEntity: "refunds", ToEntity: "orders",
		FromColumn: "order_id", ToColumn: "id", RelationshipType: store.ManyToOne,
	})
	require.NoError(t, err)

	svc := &Service{Store: m}
	return svc, p
}

func TestLineageTracesEntityNeighborhood(t *testing.T) {
	svc, p := seedLineageFixture(t)

	resp, err := svc.Lineage(context.Background(), store.RoleReader, "orders")
	require.NoError(t, err)
	require.Equal(t, "ok", resp["status"])

	lineage := resp["lineage"].(LineageResult)
	require.Equal(t, "orders", lineage.Entity.Name)
	require.NotNil(t, lineage.Pipeline)
	require.Equal(t, p.ID, lineage.Pipeline.ID)

	require.Len(t, lineage.Metrics, 2)
	byName := map[string][]string{}
	for _, m := range lineage.Metrics {
		byName[m.Name] = m.ColumnReferences
	}
	require.Equal(t, []string{"orders.total"}, byName["revenue"])
	require.Empty(t, byName["order_count"])

	require.Len(t, lineage.Dimensions, 1)
	require.Equal(t, []string{"orders.created_at"}, lineage.Dimensions[0].ColumnReferences)

	require.Len(t, lineage.OutgoingRelationships, 1)
	require.Len(t, lineage.IncomingRelationships, 1)
	require.Equal(t, []string{"customers"}, lineage.DownstreamEntities)
	require.Equal(t, []string{"refunds"}, lineage.UpstreamEntities)
}

func TestLineageIsDeterministicAndReadOnly(t *testing.T) {
	svc, _ := seedLineageFixture(t)
	ctx := context.Background()

	first, err := svc.Lineage(ctx, store.RoleReader, "orders")
	require.NoError(t, err)
	second, err := svc.Lineage(ctx, store.RoleReader, "orders")
	require.NoError(t, err)
	require.Equal(t, first, second)

	// No platform events or other writes from a pure read.
	events, err := svc.Store.ListEvents(ctx, 0)
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestLineageUnknownEntity(t *testing.T) {
	svc, _ := seedLineageFixture(t)
	_, err := svc.Lineage(context.Background(), store.RoleReader, "no_such_entity")
	require.Equal(t, relayerrors.KindNotFound, relayerrors.GetRelayError(err).Kind)
}

func TestRoleHierarchy(t *testing.T) {
	svc := &Service{RequireAuth: true}

	require.NoError(t, svc.RequireRole(store.RoleReader, store.RoleReader))
	require.NoError(t, svc.RequireRole(store.RoleWriter, store.RoleReader))
	require.NoError(t, svc.RequireRole(store.RoleAdmin, store.RoleWriter))

	err := svc.RequireRole(store.RoleReader, store.RoleWriter)
	require.Equal(t, relayerrors.KindForbidden, relayerrors.GetRelayError(err).Kind)
	err = svc.RequireRole(store.RoleWriter, store.RoleAdmin)
	require.Equal(t, relayerrors.KindForbidden, relayerrors.GetRelayError(err).Kind)
	err = svc.RequireRole(store.Role("unknown"), store.RoleReader)
	require.Equal(t, relayerrors.KindForbidden, relayerrors.GetRelayError(err).Kind)

	// Dev mode admits everyone.
	open := &Service{RequireAuth: false}
	require.NoError(t, open.RequireRole(store.Role(""), store.RoleAdmin))
}
