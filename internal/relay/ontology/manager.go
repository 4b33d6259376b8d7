// Package ontology implements Relay's proposal workflow: proposing entities,
// relationships, metrics, and dimensions from a pipeline's profiled
// metadata, and the approve/reject workflow that materializes them.
package ontology

import (
	"context"
	"time"

	"github.com/google/uuid"

	relayerrors "github.com/camdencbrown/relay/infrastructure/errors"
	"github.com/camdencbrown/relay/internal/relay/store"
)

// Manager generates, reviews, and materializes ontology proposals.
type Manager struct {
	store       store.Store
	llmAPIKey   string
	requireAuth bool
}

// New builds a Manager. llmAPIKey empty means proposals always use the
// heuristic path; requireAuth false means proposals auto-approve and
// materialize immediately, matching a development deployment.
func New(st store.Store, llmAPIKey string, requireAuth bool) *Manager {
	return &Manager{store: st, llmAPIKey: llmAPIKey, requireAuth: requireAuth}
}

func shortID(prefix string) string {
	return prefix + "-" + uuid.NewString()[:8]
}

// ProposeForPipeline analyzes a pipeline's profiled metadata and saves one
// proposal per suggested ontology object, auto-approving and materializing
// each when auth is not required.
func (m *Manager) ProposeForPipeline(ctx context.Context, pipelineID string, includeRelationships, includeMetrics bool) ([]store.Proposal, error) {
	p, err := m.store.GetPipeline(ctx, pipelineID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, relayerrors.NotFound("pipeline", pipelineID)
	}

	meta, err := m.store.GetMetadata(ctx, pipelineID)
	if err != nil {
		return nil, err
	}
	existingEntities, err := m.store.ListEntities(ctx, string(store.EntityActive))
	if err != nil {
		return nil, err
	}

	var proposals []proposal
	proposedBy := store.ProposedByHeuristic
	if m.llmAPIKey != "" {
		if aiProposals := aiPropose(ctx, m.llmAPIKey, *p, meta, existingEntities, includeRelationships, includeMetrics); aiProposals != nil {
			proposals = aiProposals
			proposedBy = store.ProposedByAI
		}
	}
	if proposals == nil {
		proposals = heuristicPropose(*p, meta, existingEntities, includeRelationships, includeMetrics)
	}

	autoApprove := !m.requireAuth
	saved := make([]store.Proposal, 0, len(proposals))
	for _, prop := range proposals {
		status := store.ProposalPending
		if autoApprove {
			status = store.ProposalApproved
		}

		record := store.Proposal{
			ID:               shortID("prop"),
			ProposalType:     prop.Type,
			Payload:          prop.Payload,
			SourcePipelineID: pipelineID,
			ProposedBy:       proposedBy,
			Status:           status,
			CreatedAt:        time.Now().UTC(),
		}
		savedProp, err := m.store.SaveProposal(ctx, record)
		if err != nil {
			return nil, err
		}

		if autoApprove {
			if _, err := m.materialize(ctx, prop); err != nil {
				return nil, err
			}
		}

		saved = append(saved, savedProp)
	}

	return saved, nil
}

// ApproveProposal marks a pending proposal approved and materializes its
// ontology object.
func (m *Manager) ApproveProposal(ctx context.Context, proposalID, reviewedBy string) (interface{}, error) {
	prop, err := m.store.GetProposal(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if prop == nil {
		return nil, relayerrors.NotFound("proposal", proposalID)
	}
	if prop.Status != store.ProposalPending {
		return nil, relayerrors.InvalidTransition("proposal", string(prop.Status), string(store.ProposalApproved))
	}

	now := time.Now().UTC()
	if _, err := m.store.UpdateProposal(ctx, proposalID, map[string]interface{}{
		"status":      string(store.ProposalApproved),
		"reviewed_by": reviewedBy,
		"reviewed_at": now,
	}); err != nil {
		return nil, err
	}

	return m.materialize(ctx, proposal{Type: prop.ProposalType, Payload: prop.Payload})
}

// RejectProposal marks a pending proposal rejected. No ontology object is
// created.
func (m *Manager) RejectProposal(ctx context.Context, proposalID, reviewedBy, notes string) (*store.Proposal, error) {
	prop, err := m.store.GetProposal(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if prop == nil {
		return nil, relayerrors.NotFound("proposal", proposalID)
	}
	if prop.Status != store.ProposalPending {
		return nil, relayerrors.InvalidTransition("proposal", string(prop.Status), string(store.ProposalRejected))
	}

	now := time.Now().UTC()
	return m.store.UpdateProposal(ctx, proposalID, map[string]interface{}{
		"status":       string(store.ProposalRejected),
		"reviewed_by":  reviewedBy,
		"reviewed_at":  now,
		"review_notes": notes,
	})
}

// materialize creates the concrete ontology row a proposal's payload
// describes.
func (m *Manager) materialize(ctx context.Context, prop proposal) (interface{}, error) {
	switch prop.Type {
	case store.ProposalEntity:
		return m.store.SaveEntity(ctx, entityFromPayload(prop.Payload))
	case store.ProposalRelationship:
		return m.store.SaveRelationship(ctx, relationshipFromPayload(prop.Payload))
	case store.ProposalMetric:
		return m.store.SaveMetric(ctx, metricFromPayload(prop.Payload))
	case store.ProposalDimension:
		return m.store.SaveDimension(ctx, dimensionFromPayload(prop.Payload))
	default:
		return nil, relayerrors.Validation("proposal_type", "unknown proposal type")
	}
}

func payloadString(payload map[string]interface{}, key string) string {
	if v, ok := payload[key].(string); ok {
		return v
	}
	return ""
}

func entityFromPayload(payload map[string]interface{}) store.Entity {
	annotations := map[string]store.ColumnAnnotation{}
	if raw, ok := payload["column_annotations"].(map[string]interface{}); ok {
		for col, v := range raw {
			if fields, ok := v.(map[string]interface{}); ok {
				annotations[col] = store.ColumnAnnotation{
					Role:        store.ColumnRole(payloadString(fields, "role")),
					Description: payloadString(fields, "description"),
				}
			}
		}
	}
	return store.Entity{
		ID:                shortID("ent"),
		Name:              payloadString(payload, "name"),
		DisplayName:       payloadString(payload, "display_name"),
		Description:       payloadString(payload, "description"),
		PipelineID:        payloadString(payload, "pipeline_id"),
		ColumnAnnotations: annotations,
		Status:            store.EntityActive,
		CreatedAt:         time.Now().UTC(),
	}
}

func relationshipFromPayload(payload map[string]interface{}) store.Relationship {
	return store.Relationship{
		ID:               shortID("rel"),
		Name:             payloadString(payload, "name"),
		FromEntity:       payloadString(payload, "from_entity"),
		ToEntity:         payloadString(payload, "to_entity"),
		FromColumn:       payloadString(payload, "from_column"),
		ToColumn:         payloadString(payload, "to_column"),
		RelationshipType: store.RelationshipType(payloadString(payload, "relationship_type")),
		Description:      payloadString(payload, "description"),
		CreatedAt:        time.Now().UTC(),
	}
}

func metricFromPayload(payload map[string]interface{}) store.Metric {
	return store.Metric{
		ID:          shortID("met"),
		Name:        payloadString(payload, "name"),
		DisplayName: payloadString(payload, "display_name"),
		EntityName:  payloadString(payload, "entity_name"),
		Expression:  payloadString(payload, "expression"),
		FormatType:  store.FormatType(payloadString(payload, "format_type")),
		Description: payloadString(payload, "description"),
		CreatedAt:   time.Now().UTC(),
	}
}

func dimensionFromPayload(payload map[string]interface{}) store.Dimension {
	return store.Dimension{
		ID:            shortID("dim"),
		Name:          payloadString(payload, "name"),
		DisplayName:   payloadString(payload, "display_name"),
		EntityName:    payloadString(payload, "entity_name"),
		Expression:    payloadString(payload, "expression"),
		DimensionType: store.DimensionType(payloadString(payload, "dimension_type")),
		Description:   payloadString(payload, "description"),
		CreatedAt:     time.Now().UTC(),
	}
}
