package service

import (
	"context"
	"time"

	relayerrors "github.com/camdencbrown/relay/infrastructure/errors"
	"github.com/camdencbrown/relay/internal/relay/store"
)

// Ontology returns the full active ontology snapshot.
func (s *Service) OntologySnapshot(ctx context.Context, callerRole store.Role) (map[string]interface{}, error) {
	if err := s.RequireRole(callerRole, store.RoleReader); err != nil {
		return nil, err
	}
	snapshot, err := s.Store.GetOntologySnapshot(ctx)
	if err != nil {
		return nil, err
	}
	return envelope(map[string]interface{}{"ontology": snapshot},
		"POST /ontology/query with metric/dimension names from this snapshot",
	), nil
}

// CreateEntityRequest is the typed body of POST /ontology/entity.
type CreateEntityRequest struct {
	Name              string                                 `json:"name"`
	DisplayName       string                                  `json:"display_name"`
	Description       string                                  `json:"description"`
	PipelineID        string                                  `json:"pipeline_id"`
	ColumnAnnotations map[string]store.ColumnAnnotation        `json:"column_annotations"`
}

// CreateEntity saves a user-authored entity directly, bypassing proposal review.
func (s *Service) CreateEntity(ctx context.Context, callerRole store.Role, req CreateEntityRequest) (map[string]interface{}, error) {
	if err := s.RequireRole(callerRole, store.RoleWriter); err != nil {
		return nil, err
	}
	if req.Name == "" {
		return nil, relayerrors.Validation("name", "required")
	}
	if existing, err := s.Store.GetEntityByName(ctx, req.Name); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, relayerrors.Conflict("an entity named " + req.Name + " already exists")
	}

	saved, err := s.Store.SaveEntity(ctx, store.Entity{
		Name:              req.Name,
		DisplayName:       req.DisplayName,
		Description:       req.Description,
		PipelineID:        req.PipelineID,
		ColumnAnnotations: req.ColumnAnnotations,
		Status:            store.EntityActive,
		CreatedAt:         time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	s.emitEvent(ctx, "ontology.entity.created", map[string]string{"entity": saved.Name}, nil)
	return envelope(map[string]interface{}{"entity": saved}), nil
}

// ListEntities returns entities filtered by status ("" means all).
func (s *Service) ListEntities(ctx context.Context, callerRole store.Role, status string) (map[string]interface{}, error) {
	if err := s.RequireRole(callerRole, store.RoleReader); err != nil {
		return nil, err
	}
	entities, err := s.Store.ListEntities(ctx, status)
	if err != nil {
		return nil, err
	}
	return envelope(map[string]interface{}{"entities": entities, "count": len(entities)}), nil
}

// DeleteEntity removes an entity.
func (s *Service) DeleteEntity(ctx context.Context, callerRole store.Role, id string) (map[string]interface{}, error) {
	if err := s.RequireRole(callerRole, store.RoleWriter); err != nil {
		return nil, err
	}
	deleted, err := s.Store.DeleteEntity(ctx, id)
	if err != nil {
		return nil, err
	}
	if !deleted {
		return nil, relayerrors.NotFound("entity", id)
	}
	return envelope(map[string]interface{}{"deleted": true}), nil
}

// CreateRelationshipRequest is the typed body of POST /ontology/relationship.
type CreateRelationshipRequest struct {
	Name             string `json:"name"`
	FromEntity       string `json:"from_entity"`
	ToEntity         string `json:"to_entity"`
	FromColumn       string `json:"from_column"`
	ToColumn         string `json:"to_column"`
	RelationshipType string `json:"relationship_type"`
	Description      string `json:"description"`
}

// CreateRelationship saves a user-authored relationship between two entities.
func (s *Service) CreateRelationship(ctx context.Context, callerRole store.Role, req CreateRelationshipRequest) (map[string]interface{}, error) {
	if err := s.RequireRole(callerRole, store.RoleWriter); err != nil {
		return nil, err
	}
	if req.FromEntity == "" || req.ToEntity == "" {
		return nil, relayerrors.Validation("from_entity/to_entity", "both required")
	}
	saved, err := s.Store.SaveRelationship(ctx, store.Relationship{
		Name:             req.Name,
		FromEntity:       req.FromEntity,
		ToEntity:         req.ToEntity,
		FromColumn:       req.FromColumn,
		ToColumn:         req.ToColumn,
		RelationshipType: store.RelationshipType(req.RelationshipType),
		Description:      req.Description,
		CreatedAt:        time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	return envelope(map[string]interface{}{"relationship": saved}), nil
}

// ListRelationships returns every relationship.
func (s *Service) ListRelationships(ctx context.Context, callerRole store.Role) (map[string]interface{}, error) {
	if err := s.RequireRole(callerRole, store.RoleReader); err != nil {
		return nil, err
	}
	rels, err := s.Store.ListRelationships(ctx)
	if err != nil {
		return nil, err
	}
	return envelope(map[string]interface{}{"relationships": rels, "count": len(rels)}), nil
}

// DeleteRelationship removes a relationship.
func (s *Service) DeleteRelationship(ctx context.Context, callerRole store.Role, id string) (map[string]interface{}, error) {
	if err := s.RequireRole(callerRole, store.RoleWriter); err != nil {
		return nil, err
	}
	deleted, err := s.Store.DeleteRelationship(ctx, id)
	if err != nil {
		return nil, err
	}
	if !deleted {
		return nil, relayerrors.NotFound("relationship", id)
	}
	return envelope(map[string]interface{}{"deleted": true}), nil
}

// CreateMetricRequest is the typed body of POST /ontology/metric.
type CreateMetricRequest struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	EntityName  string `json:"entity_name"`
	Expression  string `json:"expression"`
	FormatType  string `json:"format_type"`
	Description string `json:"description"`
}

// CreateMetric saves a user-authored metric.
func (s *Service) CreateMetric(ctx context.Context, callerRole store.Role, req CreateMetricRequest) (map[string]interface{}, error) {
	if err := s.RequireRole(callerRole, store.RoleWriter); err != nil {
		return nil, err
	}
	if req.Name == "" || req.Expression == "" {
		return nil, relayerrors.Validation("name/expression", "both required")
	}
	if existing, err := s.Store.GetMetricByName(ctx, req.Name); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, relayerrors.Conflict("a metric named " + req.Name + " already exists")
	}
	saved, err := s.Store.SaveMetric(ctx, store.Metric{
		Name:        req.Name,
		DisplayName: req.DisplayName,
		EntityName:  req.EntityName,
		Expression:  req.Expression,
		FormatType:  store.FormatType(req.FormatType),
		Description: req.Description,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	return envelope(map[string]interface{}{"metric": saved}), nil
}

// ListMetrics returns every metric.
func (s *Service) ListMetrics(ctx context.Context, callerRole store.Role) (map[string]interface{}, error) {
	if err := s.RequireRole(callerRole, store.RoleReader); err != nil {
		return nil, err
	}
	metrics, err := s.Store.ListMetrics(ctx)
	if err != nil {
		return nil, err
	}
	return envelope(map[string]interface{}{"metrics": metrics, "count": len(metrics)}), nil
}

// DeleteMetric removes a metric.
func (s *Service) DeleteMetric(ctx context.Context, callerRole store.Role, id string) (map[string]interface{}, error) {
	if err := s.RequireRole(callerRole, store.RoleWriter); err != nil {
		return nil, err
	}
	deleted, err := s.Store.DeleteMetric(ctx, id)
	if err != nil {
		return nil, err
	}
	if !deleted {
		return nil, relayerrors.NotFound("metric", id)
	}
	return envelope(map[string]interface{}{"deleted": true}), nil
}

// CreateDimensionRequest is the typed body of POST /ontology/dimension.
type CreateDimensionRequest struct {
	Name          string `json:"name"`
	DisplayName   string `json:"display_name"`
	EntityName    string `json:"entity_name"`
	Expression    string `json:"expression"`
	DimensionType string `json:"dimension_type"`
	Description   string `json:"description"`
}

// CreateDimension saves a user-authored dimension.
func (s *Service) CreateDimension(ctx context.Context, callerRole store.Role, req CreateDimensionRequest) (map[string]interface{}, error) {
	if err := s.RequireRole(callerRole, store.RoleWriter); err != nil {
		return nil, err
	}
	if req.Name == "" || req.Expression == "" {
		return nil, relayerrors.Validation("name/expression", "both required")
	}
	if existing, err := s.Store.GetDimensionByName(ctx, req.Name); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, relayerrors.Conflict("a dimension named " + req.Name + " already exists")
	}
	saved, err := s.Store.SaveDimension(ctx, store.Dimension{
		Name:          req.Name,
		DisplayName:   req.DisplayName,
		EntityName:    req.EntityName,
		Expression:    req.Expression,
		DimensionType: store.DimensionType(req.DimensionType),
		Description:   req.Description,
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	return envelope(map[string]interface{}{"dimension": saved}), nil
}

// ListDimensions returns every dimension.
func (s *Service) ListDimensions(ctx context.Context, callerRole store.Role) (map[string]interface{}, error) {
	if err := s.RequireRole(callerRole, store.RoleReader); err != nil {
		return nil, err
	}
	dims, err := s.Store.ListDimensions(ctx)
	if err != nil {
		return nil, err
	}
	return envelope(map[string]interface{}{"dimensions": dims, "count": len(dims)}), nil
}

// DeleteDimension removes a dimension.
func (s *Service) DeleteDimension(ctx context.Context, callerRole store.Role, id string) (map[string]interface{}, error) {
	if err := s.RequireRole(callerRole, store.RoleWriter); err != nil {
		return nil, err
	}
	deleted, err := s.Store.DeleteDimension(ctx, id)
	if err != nil {
		return nil, err
	}
	if !deleted {
		return nil, relayerrors.NotFound("dimension", id)
	}
	return envelope(map[string]interface{}{"deleted": true}), nil
}

// ProposeRequest is the typed body of POST /ontology/propose.
type ProposeRequest struct {
	PipelineID           string `json:"pipeline_id"`
	IncludeRelationships bool   `json:"include_relationships"`
	IncludeMetrics       bool   `json:"include_metrics"`
}

// Propose analyzes a pipeline's profiled metadata and saves proposed
// ontology elements for review (or auto-materializes them, per configuration).
func (s *Service) Propose(ctx context.Context, callerRole store.Role, req ProposeRequest) (map[string]interface{}, error) {
	if err := s.RequireRole(callerRole, store.RoleWriter); err != nil {
		return nil, err
	}
	if req.PipelineID == "" {
		return nil, relayerrors.Validation("pipeline_id", "required")
	}
	proposals, err := s.Ontology.ProposeForPipeline(ctx, req.PipelineID, req.IncludeRelationships, req.IncludeMetrics)
	if err != nil {
		return nil, err
	}
	s.emitEvent(ctx, "ontology.proposed", map[string]string{"pipeline_id": req.PipelineID}, map[string]interface{}{"count": len(proposals)})
	return envelope(map[string]interface{}{"proposals": proposals, "count": len(proposals)},
		"POST /ontology/proposal/{id}/review to approve or reject each one",
	), nil
}

// ReviewProposalRequest is the typed body of POST /ontology/proposal/{id}/review.
type ReviewProposalRequest struct {
	Decision   string `json:"decision"` // "approve" | "reject"
	ReviewedBy string `json:"reviewed_by"`
	Notes      string `json:"notes"`
}

// ReviewProposal approves or rejects a pending proposal.
func (s *Service) ReviewProposal(ctx context.Context, callerRole store.Role, proposalID string, req ReviewProposalRequest) (map[string]interface{}, error) {
	if err := s.RequireRole(callerRole, store.RoleWriter); err != nil {
		return nil, err
	}
	switch req.Decision {
	case "approve":
		materialized, err := s.Ontology.ApproveProposal(ctx, proposalID, req.ReviewedBy)
		if err != nil {
			return nil, err
		}
		s.emitEvent(ctx, "ontology.proposal.approved", map[string]string{"proposal_id": proposalID}, nil)
		return envelope(map[string]interface{}{"materialized": materialized}), nil
	case "reject":
		prop, err := s.Ontology.RejectProposal(ctx, proposalID, req.ReviewedBy, req.Notes)
		if err != nil {
			return nil, err
		}
		s.emitEvent(ctx, "ontology.proposal.rejected", map[string]string{"proposal_id": proposalID}, nil)
		return envelope(map[string]interface{}{"proposal": prop}), nil
	default:
		return nil, relayerrors.Validation("decision", "must be approve or reject")
	}
}

// ListProposals returns proposals filtered by status ("" means all).
func (s *Service) ListProposals(ctx context.Context, callerRole store.Role, status string) (map[string]interface{}, error) {
	if err := s.RequireRole(callerRole, store.RoleReader); err != nil {
		return nil, err
	}
	proposals, err := s.Store.ListProposals(ctx, status)
	if err != nil {
		return nil, err
	}
	return envelope(map[string]interface{}{"proposals": proposals, "count": len(proposals)}), nil
}
