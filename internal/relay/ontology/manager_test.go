package ontology

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	relayerrors "github.com/camdencbrown/relay/infrastructure/errors"
	"github.com/camdencbrown/relay/internal/relay/store"
)

func seedPipelineWithMetadata(t *testing.T, m store.Store) store.Pipeline {
	t.Helper()
	ctx := context.Background()
	p, err := m.SavePipeline(ctx, store.Pipeline{Name: "Demo Orders", Source: store.SourceConfig{Type: "synthetic"}})
	require.NoError(t, err)
	_, err = m.SaveMetadata(ctx, store.DatasetMetadata{
		PipelineID: p.ID,
		Columns: []store.ColumnProfile{
			{Name: "id", Type: "int64", SemanticType: "identifier", UniqueValues: 200},
			{Name: "amount", Type: "float64", SemanticType: "currency", UniqueValues: 180},
		},
		RowCount: 200,
	})
	require.NoError(t, err)
	return p
}

func TestProposalsPendingWhenAuthRequired(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	p := seedPipelineWithMetadata(t, m)

	mgr := New(m, "", true)
	proposals, err := mgr.ProposeForPipeline(ctx, p.ID, false, false)
	require.NoError(t, err)
	require.Len(t, proposals, 1)
	require.Equal(t, store.ProposalPending, proposals[0].Status)
	require.Equal(t, store.ProposedByHeuristic, proposals[0].ProposedBy)

	// Nothing materialized until review.
	entities, err := m.ListEntities(ctx, string(store.EntityActive))
	require.NoError(t, err)
	require.Empty(t, entities)
}

func TestProposalsAutoApprovedInDevMode(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	p := seedPipelineWithMetadata(t, m)

	mgr := New(m, "", false)
	proposals, err := mgr.ProposeForPipeline(ctx, p.ID, false, true)
	require.NoError(t, err)
	require.NotEmpty(t, proposals)
	for _, prop := range proposals {
		require.Equal(t, store.ProposalApproved, prop.Status)
	}

	entities, err := m.ListEntities(ctx, string(store.EntityActive))
	require.NoError(t, err)
	require.Len(t, entities, 1)
	require.Equal(t, "demo_orders", entities[0].Name)

	metrics, err := m.ListMetrics(ctx)
	require.NoError(t, err)
	require.Len(t, metrics, 3)
}

func TestApproveMaterializesEntity(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	p := seedPipelineWithMetadata(t, m)

	mgr := New(m, "", true)
	proposals, err := mgr.ProposeForPipeline(ctx, p.ID, false, false)
	require.NoError(t, err)

	created, err := mgr.ApproveProposal(ctx, proposals[0].ID, "reviewer")
	require.NoError(t, err)
	entity, ok := created.(store.Entity)
	require.True(t, ok)
	require.Equal(t, "demo_orders", entity.Name)
	require.Equal(t, p.ID, entity.PipelineID)
	require.Equal(t, store.EntityActive, entity.Status)

	reviewed, err := m.GetProposal(ctx, proposals[0].ID)
	require.NoError(t, err)
	require.Equal(t, store.ProposalApproved, reviewed.Status)
	require.Equal(t, "reviewer", reviewed.ReviewedBy)
}

func TestRejectIsTerminal(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	p := seedPipelineWithMetadata(t, m)

	mgr := New(m, "", true)
	proposals, err := mgr.ProposeForPipeline(ctx, p.ID, false, false)
	require.NoError(t, err)

	rejected, err := mgr.RejectProposal(ctx, proposals[0].ID, "reviewer", "wrong name")
	require.NoError(t, err)
	require.Equal(t, store.ProposalRejected, rejected.Status)
	require.Equal(t, "wrong name", rejected.ReviewNotes)

	entities, err := m.ListEntities(ctx, "")
	require.NoError(t, err)
	require.Empty(t, entities)

	// Neither approve nor re-reject succeeds after the terminal transition.
	_, err = mgr.ApproveProposal(ctx, proposals[0].ID, "reviewer")
	require.Equal(t, relayerrors.KindInvalidTransition, relayerrors.GetRelayError(err).Kind)
	_, err = mgr.RejectProposal(ctx, proposals[0].ID, "reviewer", "")
	require.Equal(t, relayerrors.KindInvalidTransition, relayerrors.GetRelayError(err).Kind)
}

func TestApproveUnknownProposal(t *testing.T) {
	mgr := New(store.NewMemory(), "", true)
	_, err := mgr.ApproveProposal(context.Background(), "prop-missing", "reviewer")
	require.Equal(t, relayerrors.KindNotFound, relayerrors.GetRelayError(err).Kind)
}
