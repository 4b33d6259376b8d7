package service

import (
	"context"
	"regexp"

	relayerrors "github.com/camdencbrown/relay/infrastructure/errors"
	"github.com/camdencbrown/relay/internal/relay/connectors"
	"github.com/camdencbrown/relay/internal/relay/store"
)

var connectionNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]{1,62}$`)

var validSourceTypes = map[string]bool{
	"csv_url": true, "json_url": true, "rest_api": true,
	"mysql": true, "postgres": true, "salesforce": true, "synthetic": true,
	"transformation": true,
}

// CreatePipelineRequest is the typed body of POST /pipeline/create.
type CreatePipelineRequest struct {
	Name        string                 `json:"name"`
	Source      store.SourceConfig     `json:"source"`
	Destination store.DestinationConfig `json:"destination"`
	Options     *store.PipelineOptions `json:"options"`
	Schedule    *store.Schedule        `json:"schedule"`
}

func validateSourceType(sourceType string) error {
	if !validSourceTypes[sourceType] {
		return relayerrors.Validation("source.type", "unknown source type: "+sourceType)
	}
	return nil
}

// CreatePipeline validates and persists a new pipeline definition.
func (s *Service) CreatePipeline(ctx context.Context, callerRole store.Role, req CreatePipelineRequest) (map[string]interface{}, error) {
	if err := s.RequireRole(callerRole, store.RoleWriter); err != nil {
		return nil, err
	}
	if req.Name == "" {
		return nil, relayerrors.Validation("name", "required")
	}
	if err := validateSourceType(req.Source.Type); err != nil {
		return nil, err
	}

	opts := store.PipelineOptions{Format: "parquet", Compression: "snappy", Streaming: "auto"}
	if req.Options != nil {
		opts = *req.Options
		if opts.Format == "" {
			opts.Format = "parquet"
		}
		if opts.Streaming == "" {
			opts.Streaming = "auto"
		}
	}
	sched := store.Schedule{}
	if req.Schedule != nil {
		sched = *req.Schedule
	}

	saved, err := s.Store.SavePipeline(ctx, store.Pipeline{
		Name:        req.Name,
		Kind:        store.PipelineRegular,
		Status:      store.PipelineStatusActive,
		Source:      req.Source,
		Destination: req.Destination,
		Options:     opts,
		Schedule:    sched,
	})
	if err != nil {
		return nil, err
	}

	s.emitEvent(ctx, "pipeline.created", map[string]string{"pipeline_id": saved.ID}, map[string]interface{}{"name": saved.Name, "source_type": saved.Source.Type})

	return envelope(map[string]interface{}{"pipeline": saved},
		"POST /pipeline/"+saved.ID+"/run to execute it",
		"POST /ontology/propose with this pipeline id to suggest ontology elements once it has a successful run",
	), nil
}

// CreateTransformationRequest is the typed body of POST /pipeline/create-transformation.
type CreateTransformationRequest struct {
	Name           string                  `json:"name"`
	SourcePipelineIDs []string             `json:"source_pipeline_ids"`
	SQL            string                  `json:"sql"`
	Destination    store.DestinationConfig `json:"destination"`
	Options        *store.PipelineOptions  `json:"options"`
}

// CreateTransformationPipeline persists a pipeline whose source is a SQL
// query over one or more prior pipelines' artifacts.
func (s *Service) CreateTransformationPipeline(ctx context.Context, callerRole store.Role, req CreateTransformationRequest) (map[string]interface{}, error) {
	if err := s.RequireRole(callerRole, store.RoleWriter); err != nil {
		return nil, err
	}
	if req.Name == "" {
		return nil, relayerrors.Validation("name", "required")
	}
	if req.SQL == "" {
		return nil, relayerrors.Validation("sql", "required")
	}
	if len(req.SourcePipelineIDs) == 0 {
		return nil, relayerrors.Validation("source_pipeline_ids", "at least one source pipeline is required")
	}

	opts := store.PipelineOptions{Format: "parquet", Compression: "snappy", Streaming: "false"}
	if req.Options != nil {
		opts = *req.Options
		if opts.Format == "" {
			opts.Format = "parquet"
		}
	}

	saved, err := s.Store.SavePipeline(ctx, store.Pipeline{
		Name:   req.Name,
		Kind:   store.PipelineTransformation,
		Status: store.PipelineStatusActive,
		Source: store.SourceConfig{
			Type:      "transformation",
			Query:     req.SQL,
			Pipelines: req.SourcePipelineIDs,
		},
		Destination: req.Destination,
		Options:     opts,
	})
	if err != nil {
		return nil, err
	}

	s.emitEvent(ctx, "pipeline.created", map[string]string{"pipeline_id": saved.ID}, map[string]interface{}{"kind": "transformation"})

	return envelope(map[string]interface{}{"pipeline": saved},
		"POST /pipeline/"+saved.ID+"/run to execute the transformation",
	), nil
}

// ListPipelines returns every pipeline definition.
func (s *Service) ListPipelines(ctx context.Context, callerRole store.Role) (map[string]interface{}, error) {
	if err := s.RequireRole(callerRole, store.RoleReader); err != nil {
		return nil, err
	}
	pipelines, err := s.Store.ListPipelines(ctx)
	if err != nil {
		return nil, err
	}
	return envelope(map[string]interface{}{"pipelines": pipelines, "count": len(pipelines)}), nil
}

// GetPipeline returns one pipeline definition by id.
func (s *Service) GetPipeline(ctx context.Context, callerRole store.Role, pipelineID string) (map[string]interface{}, error) {
	if err := s.RequireRole(callerRole, store.RoleReader); err != nil {
		return nil, err
	}
	p, err := s.Store.GetPipeline(ctx, pipelineID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, relayerrors.NotFound("pipeline", pipelineID)
	}
	return envelope(map[string]interface{}{"pipeline": p},
		"POST /pipeline/"+pipelineID+"/run to execute it",
		"GET /metadata/"+pipelineID+" to inspect its profiled columns",
	), nil
}

// DeletePipeline removes a pipeline definition. Deletion cascades to runs,
// so it is gated at admin rather than writer.
func (s *Service) DeletePipeline(ctx context.Context, callerRole store.Role, pipelineID string) (map[string]interface{}, error) {
	if err := s.RequireRole(callerRole, store.RoleAdmin); err != nil {
		return nil, err
	}
	deleted, err := s.Store.DeletePipeline(ctx, pipelineID)
	if err != nil {
		return nil, err
	}
	if !deleted {
		return nil, relayerrors.NotFound("pipeline", pipelineID)
	}
	s.emitEvent(ctx, "pipeline.deleted", map[string]string{"pipeline_id": pipelineID}, nil)
	return envelope(map[string]interface{}{"deleted": true}), nil
}

// RunPipeline dispatches a pipeline execution and returns immediately with
// the run's id; the run completes asynchronously in the background.
func (s *Service) RunPipeline(ctx context.Context, callerRole store.Role, pipelineID string) (map[string]interface{}, error) {
	if err := s.RequireRole(callerRole, store.RoleWriter); err != nil {
		return nil, err
	}
	run, err := s.Pipelines.Dispatch(ctx, pipelineID)
	if err != nil {
		return nil, err
	}
	s.emitEvent(ctx, "pipeline.run.started", map[string]string{"pipeline_id": pipelineID, "run_id": run.RunID}, nil)
	return envelope(map[string]interface{}{"run": run},
		"GET /pipeline/"+pipelineID+"/run/"+run.RunID+" to poll its status",
	), nil
}

// GetRun returns one run record by pipeline and run id.
func (s *Service) GetRun(ctx context.Context, callerRole store.Role, pipelineID, runID string) (map[string]interface{}, error) {
	if err := s.RequireRole(callerRole, store.RoleReader); err != nil {
		return nil, err
	}
	run, err := s.Store.GetRun(ctx, pipelineID, runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, relayerrors.NotFound("run", runID)
	}
	steps := []string{}
	if run.Status == store.RunSuccess {
		steps = append(steps, "POST /query with this pipeline id to analyze the result")
	}
	return envelope(map[string]interface{}{"run": run}, steps...), nil
}

// TestSourceRequest is the typed body of POST /test/source.
type TestSourceRequest struct {
	Source store.SourceConfig `json:"source"`
}

// TestSource previews a small sample of rows from a source without
// creating a pipeline or a run.
func (s *Service) TestSource(ctx context.Context, callerRole store.Role, req TestSourceRequest) (map[string]interface{}, error) {
	if err := s.RequireRole(callerRole, store.RoleReader); err != nil {
		return nil, err
	}
	if err := validateSourceType(req.Source.Type); err != nil {
		return nil, err
	}
	table, err := s.Pipelines.TestSource(ctx, req.Source)
	if err != nil {
		return nil, err
	}
	return envelope(sampleResponse(table),
		"POST /pipeline/create to persist this source as a pipeline",
	), nil
}

func sampleResponse(t connectors.Table) map[string]interface{} {
	return map[string]interface{}{
		"columns":    t.Columns,
		"sample_rows": t.Rows,
		"row_count":  len(t.Rows),
	}
}
