package service

import (
	"context"
	"regexp"

	relayerrors "github.com/camdencbrown/relay/infrastructure/errors"
	"github.com/camdencbrown/relay/internal/relay/store"
)

var columnReferencePattern = regexp.MustCompile(`\b([a-zA-Z][a-zA-Z0-9_]*)\.([a-zA-Z_][a-zA-Z0-9_]*)\b`)

// MetricWithReferences augments a metric with the entity.column references
// extracted from its expression.
type MetricWithReferences struct {
	store.Metric
	ColumnReferences []string `json:"column_references"`
}

// DimensionWithReferences augments a dimension with the entity.column
// references extracted from its expression.
type DimensionWithReferences struct {
	store.Dimension
	ColumnReferences []string `json:"column_references"`
}

// LineageResult is the pure, read-only response of GET /ontology/lineage/{name}.
type LineageResult struct {
	Entity               store.Entity              `json:"entity"`
	Pipeline             *store.Pipeline           `json:"pipeline"`
	Metrics              []MetricWithReferences    `json:"metrics"`
	Dimensions           []DimensionWithReferences `json:"dimensions"`
	OutgoingRelationships []store.Relationship     `json:"outgoing_relationships"`
	IncomingRelationships []store.Relationship     `json:"incoming_relationships"`
	DownstreamEntities    []string                 `json:"downstream_entities"`
	UpstreamEntities      []string                 `json:"upstream_entities"`
}

func extractColumnReferences(expr string) []string {
	matches := columnReferencePattern.FindAllString(expr, -1)
	seen := map[string]bool{}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}

// Lineage traces one entity's pipeline, metrics, dimensions, and one-hop
// relationship graph. It performs no writes.
func (s *Service) Lineage(ctx context.Context, callerRole store.Role, entityName string) (map[string]interface{}, error) {
	if err := s.RequireRole(callerRole, store.RoleReader); err != nil {
		return nil, err
	}

	entity, err := s.Store.GetEntityByName(ctx, entityName)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, relayerrors.NotFound("entity", entityName)
	}

	var pipeline *store.Pipeline
	if entity.PipelineID != "" {
		pipeline, err = s.Store.GetPipeline(ctx, entity.PipelineID)
		if err != nil {
			return nil, err
		}
	}

	allMetrics, err := s.Store.ListMetrics(ctx)
	if err != nil {
		return nil, err
	}
	var metrics []MetricWithReferences
	for _, m := range allMetrics {
		if m.EntityName == entity.Name {
			metrics = append(metrics, MetricWithReferences{Metric: m, ColumnReferences: extractColumnReferences(m.Expression)})
		}
	}

	allDimensions, err := s.Store.ListDimensions(ctx)
	if err != nil {
		return nil, err
	}
	var dimensions []DimensionWithReferences
	for _, d := range allDimensions {
		if d.EntityName == entity.Name {
			dimensions = append(dimensions, DimensionWithReferences{Dimension: d, ColumnReferences: extractColumnReferences(d.Expression)})
		}
	}

	allRelationships, err := s.Store.ListRelationships(ctx)
	if err != nil {
		return nil, err
	}
	var outgoing, incoming []store.Relationship
	downstreamSeen := map[string]bool{}
	upstreamSeen := map[string]bool{}
	var downstream, upstream []string
	for _, r := range allRelationships {
		if r.FromEntity == entity.Name {
			outgoing = append(outgoing, r)
			if !downstreamSeen[r.ToEntity] {
				downstreamSeen[r.ToEntity] = true
				downstream = append(downstream, r.ToEntity)
			}
		}
		if r.ToEntity == entity.Name {
			incoming = append(incoming, r)
			if !upstreamSeen[r.FromEntity] {
				upstreamSeen[r.FromEntity] = true
				upstream = append(upstream, r.FromEntity)
			}
		}
	}

	result := LineageResult{
		Entity:                *entity,
		Pipeline:              pipeline,
		Metrics:                metrics,
		Dimensions:             dimensions,
		OutgoingRelationships:  outgoing,
		IncomingRelationships:  incoming,
		DownstreamEntities:     downstream,
		UpstreamEntities:       upstream,
	}
	return envelope(map[string]interface{}{"lineage": result}), nil
}
