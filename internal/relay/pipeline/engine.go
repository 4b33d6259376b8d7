// Package pipeline implements Relay's execution engine: orchestrating a
// fetch from a registered source, a write to object storage or the local
// filesystem, run-record bookkeeping, and optional metadata generation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	relayerrors "github.com/camdencbrown/relay/infrastructure/errors"
	"github.com/camdencbrown/relay/infrastructure/logging"
	"github.com/camdencbrown/relay/internal/relay/blobwriter"
	"github.com/camdencbrown/relay/internal/relay/connectors"
	"github.com/camdencbrown/relay/internal/relay/query"
	"github.com/camdencbrown/relay/internal/relay/store"
)

// streamingDefaultTypes is the set of source types that use streaming mode
// when a pipeline's options.streaming is "auto".
var streamingDefaultTypes = map[string]bool{
	"mysql":      true,
	"postgres":   true,
	"salesforce": true,
	"synthetic":  true,
}

const defaultChunkSize = 500
const defaultSampleSize = 200
const defaultFetchTimeout = 30 * time.Second

// errStopAfterFirstChunk lets TestSource end a streaming fetch early once
// it has its one sample chunk, without treating that as a real failure.
var errStopAfterFirstChunk = errors.New("sample captured")

// MetadataGenerator is the subset of metadata.Generator the engine calls
// after a successful write, kept as an interface so tests can stub it.
type MetadataGenerator interface {
	Generate(ctx context.Context, pipelineID string, sample connectors.Table, totalRowCount int) (store.DatasetMetadata, []string, error)
}

// QueryExecutor runs SQL over prior pipelines' artifacts. Transformation
// pipelines fetch through it instead of the connector registry. Satisfied by
// query.Engine.
type QueryExecutor interface {
	ExecuteQuery(ctx context.Context, pipelineIDs []string, sqlText string, rowLimit int) (query.Result, error)
}

// Engine orchestrates pipeline runs end to end.
type Engine struct {
	store        store.Store
	registry     *connectors.Registry
	writer       *blobwriter.Writer
	metadataGen  MetadataGenerator
	logger       *logging.Logger
	FetchTimeout time.Duration

	// Queries must be set before any transformation pipeline runs; it is
	// assigned after construction because the query engine reads artifacts
	// this engine writes.
	Queries QueryExecutor
}

// New builds a pipeline Engine.
func New(st store.Store, registry *connectors.Registry, writer *blobwriter.Writer, metadataGen MetadataGenerator, logger *logging.Logger) *Engine {
	return &Engine{
		store:        st,
		registry:     registry,
		writer:       writer,
		metadataGen:  metadataGen,
		logger:       logger,
		FetchTimeout: defaultFetchTimeout,
	}
}

// Execute runs a pipeline to completion and returns its final run record.
// Load/validation failures before a run row exists are returned directly;
// every failure that occurs once a run is in flight is recorded on the run
// row instead and never re-raised past this boundary.
func (e *Engine) Execute(ctx context.Context, pipelineID string) (store.PipelineRun, error) {
	p, err := e.store.GetPipeline(ctx, pipelineID)
	if err != nil {
		return store.PipelineRun{}, err
	}
	if p == nil {
		return store.PipelineRun{}, relayerrors.NotFound("pipeline", pipelineID)
	}

	run, err := e.store.SaveRun(ctx, store.PipelineRun{
		PipelineID: pipelineID,
		Status:     store.RunRunning,
		StartedAt:  time.Now().UTC(),
		Progress:   "fetching source",
		Streaming:  e.decideStreaming(*p),
	})
	if err != nil {
		return store.PipelineRun{}, err
	}

	e.runToCompletion(ctx, *p, run.RunID)

	final, err := e.store.GetRun(ctx, pipelineID, run.RunID)
	if err != nil {
		return store.PipelineRun{}, err
	}
	if final == nil {
		return run, nil
	}
	return *final, nil
}

// Dispatch creates a run row and hands the fetch/write work to a background
// goroutine, returning the initial running record immediately so an HTTP
// caller gets a run id without blocking on the pipeline's duration. The
// background work runs detached from the request context so a client
// disconnect never aborts an in-flight run.
func (e *Engine) Dispatch(ctx context.Context, pipelineID string) (store.PipelineRun, error) {
	p, err := e.store.GetPipeline(ctx, pipelineID)
	if err != nil {
		return store.PipelineRun{}, err
	}
	if p == nil {
		return store.PipelineRun{}, relayerrors.NotFound("pipeline", pipelineID)
	}

	run, err := e.store.SaveRun(ctx, store.PipelineRun{
		PipelineID: pipelineID,
		Status:     store.RunRunning,
		StartedAt:  time.Now().UTC(),
		Progress:   "fetching source",
		Streaming:  e.decideStreaming(*p),
	})
	if err != nil {
		return store.PipelineRun{}, err
	}

	pipelineCopy := *p
	go e.runToCompletion(context.Background(), pipelineCopy, run.RunID)

	return run, nil
}

// runToCompletion performs the actual fetch/write/metadata work, recovering
// any panic so a single bad row or connector bug marks the run failed
// instead of crashing the caller.
func (e *Engine) runToCompletion(ctx context.Context, p store.Pipeline, runID string) {
	defer func() {
		if r := recover(); r != nil {
			e.failRun(ctx, runID, fmt.Errorf("panic: %v", r), debug.Stack())
		}
	}()

	streaming := e.decideStreaming(p)
	bucket := p.Destination.Bucket
	opts := blobwriter.Options{
		Format:        p.Options.Format,
		Compression:   p.Options.Compression,
		CombineChunks: p.Options.CombineChunks,
		Parallel:      p.Options.Parallel,
	}
	if opts.Format == "" {
		opts.Format = "parquet"
	}

	fetchCtx, cancel := context.WithTimeout(ctx, e.fetchTimeout())
	defer cancel()

	var (
		result      blobwriter.WriteResult
		sample      connectors.Table
		writeErr    error
	)

	if streaming {
		chunkSize := p.Options.ChunkSize
		if chunkSize <= 0 {
			chunkSize = defaultChunkSize
		}
		var sampleCaptured bool
		result, writeErr = e.writer.WriteChunked(ctx, bucket, func(yield connectors.Yield) error {
			return e.registry.FetchSourceStreaming(fetchCtx, p.Source, chunkSize, func(t connectors.Table) error {
				if !sampleCaptured {
					sample = t
					sampleCaptured = true
				}
				return yield(t)
			})
		}, opts)
	} else {
		table, err := e.fetchWhole(fetchCtx, p.Source)
		if err != nil {
			e.failRun(ctx, runID, err, nil)
			return
		}
		sample = table
		result, writeErr = e.writer.WriteWhole(ctx, bucket, table, opts)
	}

	if writeErr != nil {
		e.failRun(ctx, runID, writeErr, nil)
		return
	}

	generateMetadata := p.Options.GenerateMetadata == nil || *p.Options.GenerateMetadata
	metadataGenerated := false
	var columnsNeedingReview []string
	if generateMetadata && e.metadataGen != nil && len(sample.Columns) > 0 {
		meta, needsReview, err := e.metadataGen.Generate(ctx, p.ID, capSample(sample, defaultSampleSize), result.TotalRows)
		if err == nil {
			if _, saveErr := e.store.SaveMetadata(ctx, meta); saveErr == nil {
				metadataGenerated = true
				columnsNeedingReview = needsReview
			}
		}
	}

	_, _ = e.store.UpdateRun(ctx, runID, map[string]interface{}{
		"status":                 string(store.RunSuccess),
		"progress":               "completed",
		"rows_processed":         result.TotalRows,
		"chunks_processed":       result.TotalChunks,
		"output_file":            result.PrimaryFile,
		"files_written":          result.FilesWritten,
		"metadata_generated":     metadataGenerated,
		"columns_needing_review": columnsNeedingReview,
	})

	if e.logger != nil {
		e.logger.LogPipelineRun(ctx, p.ID, runID, result.TotalRows, nil)
	}
}

func capSample(t connectors.Table, limit int) connectors.Table {
	if len(t.Rows) <= limit {
		return t
	}
	return connectors.Table{Columns: t.Columns, Rows: t.Rows[:limit]}
}

func (e *Engine) failRun(ctx context.Context, runID string, cause error, stack []byte) {
	errMsg := cause.Error()
	if len(stack) > 0 {
		errMsg = fmt.Sprintf("%s\n%s", errMsg, string(stack))
	}
	_, _ = e.store.UpdateRun(ctx, runID, map[string]interface{}{
		"status": string(store.RunFailed),
		"error":  errMsg,
	})
	if e.logger != nil {
		e.logger.LogPipelineRun(ctx, "", runID, 0, cause)
	}
}

// fetchWhole dispatches a whole-table fetch: transformation sources run
// their SQL over upstream artifacts through the query engine, everything
// else goes through the connector registry.
func (e *Engine) fetchWhole(ctx context.Context, source store.SourceConfig) (connectors.Table, error) {
	if source.Type != "transformation" {
		return e.registry.FetchSource(ctx, source)
	}
	if e.Queries == nil {
		return connectors.Table{}, relayerrors.Validation("source.type", "transformation pipelines are not enabled")
	}
	result, err := e.Queries.ExecuteQuery(ctx, source.Pipelines, source.Query, 0)
	if err != nil {
		return connectors.Table{}, err
	}
	return connectors.Table{Columns: result.Columns, Rows: result.Rows}, nil
}

func (e *Engine) fetchTimeout() time.Duration {
	if e.FetchTimeout > 0 {
		return e.FetchTimeout
	}
	return defaultFetchTimeout
}

// decideStreaming applies the source-type default when
// options.streaming is "auto" (or unset), honoring an explicit
// "true"/"false" override otherwise.
func (e *Engine) decideStreaming(p store.Pipeline) bool {
	switch p.Options.Streaming {
	case "true":
		return true
	case "false":
		return false
	default:
		return streamingDefaultTypes[p.Source.Type]
	}
}

// TestSource performs a read-only preview fetch: a small sample of rows
// from the given source, without creating a run or writing anything.
func (e *Engine) TestSource(ctx context.Context, source store.SourceConfig) (connectors.Table, error) {
	ctx, cancel := context.WithTimeout(ctx, e.fetchTimeout())
	defer cancel()

	if streamingDefaultTypes[source.Type] {
		var sample connectors.Table
		err := e.registry.FetchSourceStreaming(ctx, source, defaultSampleSize, func(t connectors.Table) error {
			sample = t
			return errStopAfterFirstChunk
		})
		if err != nil && !errors.Is(err, errStopAfterFirstChunk) {
			return connectors.Table{}, err
		}
		return capSample(sample, defaultSampleSize), nil
	}

	table, err := e.fetchWhole(ctx, source)
	if err != nil {
		return connectors.Table{}, err
	}
	return capSample(table, defaultSampleSize), nil
}
