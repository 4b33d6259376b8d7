package service

import (
	"context"

	"github.com/camdencbrown/relay/internal/relay/store"
)

// AnalyticsSummary aggregates counts across pipelines, runs, connections,
// and ontology objects into a single operator-facing snapshot.
func (s *Service) AnalyticsSummary(ctx context.Context, callerRole store.Role) (map[string]interface{}, error) {
	if err := s.RequireRole(callerRole, store.RoleReader); err != nil {
		return nil, err
	}

	pipelines, err := s.Store.ListPipelines(ctx)
	if err != nil {
		return nil, err
	}
	connections, err := s.Store.ListConnections(ctx)
	if err != nil {
		return nil, err
	}
	snapshot, err := s.Store.GetOntologySnapshot(ctx)
	if err != nil {
		return nil, err
	}

	runCounts := map[string]int{"success": 0, "failed": 0, "running": 0}
	totalRows := 0
	for _, p := range pipelines {
		runs, err := s.Store.ListRuns(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		for _, r := range runs {
			runCounts[string(r.Status)]++
			totalRows += r.RowsProcessed
		}
	}

	return envelope(map[string]interface{}{
		"pipelines":     len(pipelines),
		"connections":   len(connections),
		"entities":      len(snapshot.Entities),
		"relationships": len(snapshot.Relationships),
		"metrics":       len(snapshot.Metrics),
		"dimensions":    len(snapshot.Dimensions),
		"runs":          runCounts,
		"rows_processed": totalRows,
	}), nil
}

// AnalyticsEvents returns the most recent platform events, newest first.
func (s *Service) AnalyticsEvents(ctx context.Context, callerRole store.Role, limit int) (map[string]interface{}, error) {
	if err := s.RequireRole(callerRole, store.RoleReader); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	events, err := s.Store.ListEvents(ctx, limit)
	if err != nil {
		return nil, err
	}
	return envelope(map[string]interface{}{"events": events, "count": len(events)}), nil
}
