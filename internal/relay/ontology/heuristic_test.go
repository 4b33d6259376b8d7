package ontology

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/camdencbrown/relay/internal/relay/store"
)

func proposalsOfType(proposals []proposal, t store.ProposalType) []proposal {
	var out []proposal
	for _, p := range proposals {
		if p.Type == t {
			out = append(out, p)
		}
	}
	return out
}

func findByName(t *testing.T, proposals []proposal, name string) proposal {
	t.Helper()
	for _, p := range proposals {
		if p.Payload["name"] == name {
			return p
		}
	}
	t.Fatalf("no proposal named %q", name)
	return proposal{}
}

func ordersPipelineFixture() (store.Pipeline, *store.DatasetMetadata) {
	p := store.Pipeline{ID: "pipe-1", Name: "Demo Orders"}
	meta := &store.DatasetMetadata{
		PipelineID: "pipe-1",
		Columns: []store.ColumnProfile{
			{Name: "id", Type: "int64", SemanticType: "identifier", UniqueValues: 200},
			{Name: "customer_id", Type: "int64", SemanticType: "identifier", UniqueValues: 50},
			{Name: "amount", Type: "float64", SemanticType: "currency", UniqueValues: 180},
			{Name: "created_at", Type: "string", SemanticType: "datetime", UniqueValues: 200},
			{Name: "status", Type: "string", SemanticType: "text", UniqueValues: 4},
			{Name: "notes", Type: "string", SemanticType: "text", UniqueValues: 200},
		},
		RowCount: 200,
	}
	return p, meta
}

func TestHeuristicEntityProposal(t *testing.T) {
	p, meta := ordersPipelineFixture()
	proposals := heuristicPropose(p, meta, nil, false, false)

	entities := proposalsOfType(proposals, store.ProposalEntity)
	require.Len(t, entities, 1)
	require.Len(t, proposals, 1)

	payload := entities[0].Payload
	require.Equal(t, "demo_orders", payload["name"])
	require.Equal(t, "Demo Orders", payload["display_name"])
	require.Equal(t, "pipe-1", payload["pipeline_id"])

	annotations := payload["column_annotations"].(map[string]interface{})
	idAnnotation := annotations["id"].(map[string]interface{})
	require.Equal(t, string(store.RolePrimaryKey), idAnnotation["role"])
}

func TestHeuristicRelationshipProposal(t *testing.T) {
	p, meta := ordersPipelineFixture()
	existing := []store.Entity{{Name: "customers", PipelineID: "pipe-2", Status: store.EntityActive}}

	proposals := heuristicPropose(p, meta, existing, true, false)
	relationships := proposalsOfType(proposals, store.ProposalRelationship)
	require.Len(t, relationships, 1)

	payload := relationships[0].Payload
	require.Equal(t, "demo_orders", payload["from_entity"])
	require.Equal(t, "customers", payload["to_entity"])
	require.Equal(t, "customer_id", payload["from_column"])
	require.Equal(t, "id", payload["to_column"])
	require.Equal(t, string(store.ManyToOne), payload["relationship_type"])
}

func TestHeuristicRelationshipSkippedWithoutMatchingEntity(t *testing.T) {
	p, meta := ordersPipelineFixture()
	proposals := heuristicPropose(p, meta, nil, true, false)
	require.Empty(t, proposalsOfType(proposals, store.ProposalRelationship))
}

func TestHeuristicMetricProposals(t *testing.T) {
	p, meta := ordersPipelineFixture()
	proposals := heuristicPropose(p, meta, nil, false, true)
	metrics := proposalsOfType(proposals, store.ProposalMetric)

	// amount yields total_ and avg_; id columns are skipped; one count metric.
	require.Len(t, metrics, 3)

	total := findByName(t, metrics, "total_amount")
	require.Equal(t, "SUM(demo_orders.amount)", total.Payload["expression"])
	require.Equal(t, string(store.FormatCurrency), total.Payload["format_type"])

	avg := findByName(t, metrics, "avg_amount")
	require.Equal(t, "AVG(demo_orders.amount)", avg.Payload["expression"])
	require.Equal(t, string(store.FormatNumber), avg.Payload["format_type"])

	count := findByName(t, metrics, "demo_orders_count")
	require.Equal(t, "COUNT(*)", count.Payload["expression"])
}

func TestHeuristicDimensionProposals(t *testing.T) {
	p, meta := ordersPipelineFixture()
	proposals := heuristicPropose(p, meta, nil, false, true)
	dimensions := proposalsOfType(proposals, store.ProposalDimension)

	// created_at (datetime) and status (4 unique values); notes has too many.
	require.Len(t, dimensions, 2)

	month := findByName(t, dimensions, "created_at_month")
	require.Equal(t, "DATE_TRUNC('month', demo_orders.created_at)", month.Payload["expression"])
	require.Equal(t, string(store.DimensionDerived), month.Payload["dimension_type"])

	status := findByName(t, dimensions, "status")
	require.Equal(t, "demo_orders.status", status.Payload["expression"])
	require.Equal(t, string(store.DimensionDirect), status.Payload["dimension_type"])
}

func TestNormalizeEntityName(t *testing.T) {
	require.Equal(t, "demo_orders", normalizeEntityName("Demo Orders"))
	require.Equal(t, "my_pipeline", normalizeEntityName("my-pipeline"))
	require.Equal(t, "usersv2", normalizeEntityName("users@v2!"))
}
