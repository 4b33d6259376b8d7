package metadata

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/camdencbrown/relay/internal/relay/connectors"
	"github.com/camdencbrown/relay/internal/relay/store"
)

type fakeKnowledge struct {
	entries map[string]*store.ColumnKnowledge
}

func (f *fakeKnowledge) GetColumnKnowledge(_ context.Context, normalizedName string) (*store.ColumnKnowledge, error) {
	return f.entries[normalizedName], nil
}

func TestInferSemanticType(t *testing.T) {
	cases := []struct {
		name   string
		goType string
		want   string
	}{
		{"email", "string", "email"},
		{"contact_phone", "string", "phone"},
		{"id", "int64", "identifier"},
		{"customer_id", "int64", "identifier"},
		{"first_name", "string", "name"},
		{"zip", "string", "postal_code"},
		{"street_address", "string", "address"},
		{"amount", "float64", "currency"},
		{"discount_pct", "float64", "percentage"},
		{"created_at", "string", "datetime"},
		{"is_active", "bool", "boolean"},
		{"quantity", "int64", "numeric"},
		{"notes", "string", "text"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, inferSemanticType(tc.name, tc.goType, nil), "column %s", tc.name)
	}
}

func TestProfileColumnNumerics(t *testing.T) {
	profile := profileColumn("quantity", []interface{}{10, 20, 30, nil})
	require.Equal(t, "int64", profile.Type)
	require.Equal(t, "numeric", profile.SemanticType)
	require.InDelta(t, 25.0, profile.NullPercentage, 0.01)
	require.Equal(t, 3, profile.UniqueValues)
	require.NotNil(t, profile.Min)
	require.NotNil(t, profile.Max)
	require.NotNil(t, profile.Mean)
	require.Equal(t, 10.0, *profile.Min)
	require.Equal(t, 30.0, *profile.Max)
	require.Equal(t, 20.0, *profile.Mean)
}

func TestProfileColumnSampleCap(t *testing.T) {
	values := make([]interface{}, 20)
	for i := range values {
		values[i] = i
	}
	profile := profileColumn("quantity", values)
	require.Len(t, profile.SampleValues, 5)
}

func TestGenerateMarksUnknownColumnsForReview(t *testing.T) {
	g := New(&fakeKnowledge{entries: map[string]*store.ColumnKnowledge{}})
	sample := connectors.Table{
		Columns: []string{"id", "amount"},
		Rows: []map[string]interface{}{
			{"id": 1, "amount": 9.5},
			{"id": 2, "amount": 3.25},
		},
	}

	meta, needsReview, err := g.Generate(context.Background(), "pipe-1", sample, 200)
	require.NoError(t, err)
	require.Equal(t, "pipe-1", meta.PipelineID)
	require.Equal(t, 200, meta.RowCount)
	require.Equal(t, []string{"amount", "id"}, needsReview)
	for _, col := range meta.Columns {
		require.True(t, col.NeedsReview)
		require.False(t, col.HumanVerified)
		require.NotEmpty(t, col.AutoDescription)
	}
}

func TestGenerateMergesVerifiedKnowledge(t *testing.T) {
	g := New(&fakeKnowledge{entries: map[string]*store.ColumnKnowledge{
		"amount": {NormalizedName: "amount", Description: "Order total in USD"},
	}})
	sample := connectors.Table{
		Columns: []string{"Amount "},
		Rows:    []map[string]interface{}{{"Amount ": 9.5}},
	}

	meta, needsReview, err := g.Generate(context.Background(), "pipe-1", sample, 1)
	require.NoError(t, err)
	require.Empty(t, needsReview)
	require.Len(t, meta.Columns, 1)
	require.Equal(t, "Order total in USD", meta.Columns[0].Description)
	require.True(t, meta.Columns[0].HumanVerified)
	require.False(t, meta.Columns[0].NeedsReview)
}

func TestRowCountFallsBackToSampleSize(t *testing.T) {
	g := New(nil)
	sample := connectors.Table{
		Columns: []string{"id"},
		Rows:    []map[string]interface{}{{"id": 1}, {"id": 2}},
	}
	meta, _, err := g.Generate(context.Background(), "pipe-1", sample, 0)
	require.NoError(t, err)
	require.Equal(t, 2, meta.RowCount)
}
