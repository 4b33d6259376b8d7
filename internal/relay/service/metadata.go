package service

import (
	"context"

	relayerrors "github.com/camdencbrown/relay/infrastructure/errors"
	"github.com/camdencbrown/relay/internal/relay/store"
)

// Metadata returns the profiled column document for one pipeline.
func (s *Service) Metadata(ctx context.Context, callerRole store.Role, pipelineID string) (map[string]interface{}, error) {
	if err := s.RequireRole(callerRole, store.RoleReader); err != nil {
		return nil, err
	}
	meta, err := s.Store.GetMetadata(ctx, pipelineID)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, relayerrors.NotFound("metadata", pipelineID)
	}
	steps := []string{}
	for _, col := range meta.Columns {
		if col.NeedsReview {
			steps = append(steps, "GET /metadata/review/pending to see columns awaiting human verification")
			break
		}
	}
	return envelope(map[string]interface{}{"metadata": meta}, steps...), nil
}

// ReviewQueueEntry is one pipeline's columns still awaiting human review.
type ReviewQueueEntry struct {
	PipelineID string                `json:"pipeline_id"`
	Columns    []store.ColumnProfile `json:"columns"`
}

// PendingReview lists every column across every pipeline still flagged
// NeedsReview and not yet HumanVerified.
func (s *Service) PendingReview(ctx context.Context, callerRole store.Role) (map[string]interface{}, error) {
	if err := s.RequireRole(callerRole, store.RoleReader); err != nil {
		return nil, err
	}
	pipelines, err := s.Store.ListPipelines(ctx)
	if err != nil {
		return nil, err
	}
	var entries []ReviewQueueEntry
	for _, p := range pipelines {
		meta, err := s.Store.GetMetadata(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		if meta == nil {
			continue
		}
		var pending []store.ColumnProfile
		for _, col := range meta.Columns {
			if col.NeedsReview && !col.HumanVerified {
				pending = append(pending, col)
			}
		}
		if len(pending) > 0 {
			entries = append(entries, ReviewQueueEntry{PipelineID: p.ID, Columns: pending})
		}
	}
	return envelope(map[string]interface{}{"pending": entries, "count": len(entries)},
		"POST /metadata/review/approve to confirm a column's semantic type and description",
	), nil
}

// ApproveReviewRequest is the typed body of POST /metadata/review/approve.
type ApproveReviewRequest struct {
	PipelineID     string `json:"pipeline_id"`
	ColumnName     string `json:"column_name"`
	Description    string `json:"description"`
	VerifiedBy     string `json:"verified_by"`
	SemanticType   string `json:"semantic_type"`
}

// ApproveReview marks one column human-verified, records its confirmed
// description as reusable column knowledge, and persists the update.
func (s *Service) ApproveReview(ctx context.Context, callerRole store.Role, req ApproveReviewRequest) (map[string]interface{}, error) {
	if err := s.RequireRole(callerRole, store.RoleWriter); err != nil {
		return nil, err
	}
	if req.PipelineID == "" || req.ColumnName == "" {
		return nil, relayerrors.Validation("pipeline_id/column_name", "both required")
	}

	meta, err := s.Store.GetMetadata(ctx, req.PipelineID)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, relayerrors.NotFound("metadata", req.PipelineID)
	}

	found := false
	for i := range meta.Columns {
		if meta.Columns[i].Name != req.ColumnName {
			continue
		}
		found = true
		meta.Columns[i].HumanVerified = true
		if req.Description != "" {
			meta.Columns[i].Description = req.Description
		}
		if req.SemanticType != "" {
			meta.Columns[i].SemanticType = req.SemanticType
		}
	}
	if !found {
		return nil, relayerrors.NotFound("column", req.ColumnName)
	}

	saved, err := s.Store.SaveMetadata(ctx, *meta)
	if err != nil {
		return nil, err
	}

	if req.Description != "" {
		if _, err := s.Store.SaveColumnKnowledge(ctx, store.ColumnKnowledge{
			NormalizedName: normalizeColumnKnowledgeName(req.ColumnName),
			Description:    req.Description,
			VerifiedBy:     req.VerifiedBy,
		}); err != nil {
			return nil, err
		}
	}

	s.emitEvent(ctx, "metadata.review.approved", map[string]string{"pipeline_id": req.PipelineID, "column": req.ColumnName}, nil)
	return envelope(map[string]interface{}{"metadata": saved}), nil
}

func normalizeColumnKnowledgeName(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			out = append(out, r)
		case r >= 'A' && r <= 'Z':
			out = append(out, r+32)
		case r == ' ' || r == '-':
			out = append(out, '_')
		}
	}
	return string(out)
}
