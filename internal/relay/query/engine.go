// Package query implements Relay's analytic query engine: registering previous
// pipeline runs' parquet artifacts as views in an in-memory analytic SQL
// session and executing arbitrary, joinable SQL against them.
package query

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	relayerrors "github.com/camdencbrown/relay/infrastructure/errors"
	"github.com/camdencbrown/relay/internal/relay/store"
)

const defaultQueryTimeout = 15 * time.Second

// Result is the response shape of ExecuteQuery.
type Result struct {
	Rows           []map[string]interface{} `json:"rows"`
	Columns        []string                  `json:"columns"`
	RowCount       int                       `json:"row_count"`
	ExecutionTime  time.Duration             `json:"-"`
	ExecutionMS    int64                     `json:"execution_time_ms"`
	PipelinesUsed  []string                  `json:"pipelines_used"`
	QueryExecuted  string                    `json:"query_executed"`
}

// ColumnSchema describes one column in list_pipeline_schemas output.
type ColumnSchema struct {
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	SemanticType string   `json:"semantic_type,omitempty"`
	Description  string   `json:"description,omitempty"`
	SampleValues []string `json:"sample_values,omitempty"`
	NullPercent  float64  `json:"null_percentage,omitempty"`
}

// PipelineSchema is one pipeline's entry in list_pipeline_schemas output.
type PipelineSchema struct {
	PipelineID string         `json:"pipeline_id"`
	TableName  string         `json:"table_name"`
	SourceType string         `json:"source_type"`
	Columns    []ColumnSchema `json:"columns,omitempty"`
}

// Engine executes SQL over pipeline artifacts. Each ExecuteQuery call opens its own
// in-memory session; nothing is shared across requests.
type Engine struct {
	store   store.Store
	Timeout time.Duration
}

// New builds a query Engine.
func New(st store.Store) *Engine {
	return &Engine{store: st, Timeout: defaultQueryTimeout}
}

var limitPattern = regexp.MustCompile(`(?i)\blimit\s+\d+`)

func hasLimitClause(sqlText string) bool {
	return limitPattern.MatchString(sqlText)
}

func readExpression(uris []string, format string) (string, error) {
	if len(uris) == 0 {
		return "", fmt.Errorf("no files to register")
	}
	quoted := make([]string, len(uris))
	for i, u := range uris {
		quoted[i] = "'" + strings.ReplaceAll(resolvePath(u), "'", "''") + "'"
	}
	list := quoted[0]
	if len(quoted) > 1 {
		list = "[" + strings.Join(quoted, ", ") + "]"
	}

	switch format {
	case "csv", "csv.gz":
		return fmt.Sprintf("read_csv_auto(%s)", list), nil
	case "json", "json.gz":
		return fmt.Sprintf("read_json_auto(%s)", list), nil
	default:
		return fmt.Sprintf("read_parquet(%s)", list), nil
	}
}

// resolvePath turns a "object://bucket/key" URI into the path shape DuckDB's
// httpfs/S3 extensions expect (s3://bucket/key); local absolute paths pass
// through unchanged.
func resolvePath(uri string) string {
	if strings.HasPrefix(uri, "object://") {
		return "s3://" + strings.TrimPrefix(uri, "object://")
	}
	return uri
}

func formatFromURI(uri string) string {
	switch {
	case strings.HasSuffix(uri, ".csv") || strings.HasSuffix(uri, ".csv.gz"):
		return "csv"
	case strings.HasSuffix(uri, ".json") || strings.HasSuffix(uri, ".json.gz"):
		return "json"
	default:
		return "parquet"
	}
}

type registeredPipeline struct {
	pipeline  store.Pipeline
	tableName string
	uris      []string
}

// resolveArtifacts finds the latest successful run for each pipeline id and
// derives its registration view name.
func (e *Engine) resolveArtifacts(ctx context.Context, pipelineIDs []string) ([]registeredPipeline, error) {
	out := make([]registeredPipeline, 0, len(pipelineIDs))
	for _, id := range pipelineIDs {
		p, err := e.store.GetPipeline(ctx, id)
		if err != nil {
			return nil, err
		}
		if p == nil {
			return nil, relayerrors.NotFound("pipeline", id)
		}
		run, err := e.store.LatestSuccessfulRun(ctx, id)
		if err != nil {
			return nil, err
		}
		if run == nil || run.OutputFile == "" {
			return nil, relayerrors.NoData(id)
		}
		uris := run.FilesWritten
		if len(uris) == 0 {
			uris = []string{run.OutputFile}
		}
		out = append(out, registeredPipeline{
			pipeline:  *p,
			tableName: store.DeriveTableName(p.Name),
			uris:      uris,
		})
	}
	return out, nil
}

// ExecuteQuery registers each pipeline's latest successful artifact as a
// view named by its derived table name, then executes sqlText against them.
func (e *Engine) ExecuteQuery(ctx context.Context, pipelineIDs []string, sqlText string, rowLimit int) (Result, error) {
	start := time.Now()

	pipelines, err := e.resolveArtifacts(ctx, pipelineIDs)
	if err != nil {
		return Result{}, err
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return Result{}, relayerrors.Internal("open analytic sql session", err)
	}
	defer db.Close()

	timeout := e.Timeout
	if timeout <= 0 {
		timeout = defaultQueryTimeout
	}
	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for _, rp := range pipelines {
		expr, err := readExpression(rp.uris, formatFromURI(rp.uris[0]))
		if err != nil {
			return Result{}, relayerrors.Internal("register pipeline view", err)
		}
		view := fmt.Sprintf("CREATE OR REPLACE VIEW %s AS SELECT * FROM %s", rp.tableName, expr)
		if _, err := db.ExecContext(queryCtx, view); err != nil {
			return Result{}, relayerrors.QueryFailed(err)
		}
	}

	finalSQL := sqlText
	if rowLimit > 0 && !hasLimitClause(finalSQL) {
		finalSQL = fmt.Sprintf("%s LIMIT %d", strings.TrimRight(strings.TrimSpace(finalSQL), ";"), rowLimit)
	}

	rows, err := db.QueryContext(queryCtx, finalSQL)
	if err != nil {
		return Result{}, relayerrors.QueryFailed(err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return Result{}, relayerrors.QueryFailed(err)
	}

	var records []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		pointers := make([]interface{}, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return Result{}, relayerrors.QueryFailed(err)
		}
		record := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			record[col] = sanitizeValue(values[i])
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return Result{}, relayerrors.QueryFailed(err)
	}

	pipelinesUsed := make([]string, len(pipelineIDs))
	copy(pipelinesUsed, pipelineIDs)

	elapsed := time.Since(start)
	return Result{
		Rows:          records,
		Columns:       columns,
		RowCount:      len(records),
		ExecutionTime: elapsed,
		ExecutionMS:   elapsed.Milliseconds(),
		PipelinesUsed: pipelinesUsed,
		QueryExecuted: finalSQL,
	}, nil
}

// sanitizeValue converts NaN floats and nil timestamps to the external
// null sentinel (nil) before the row crosses the service boundary.
func sanitizeValue(v interface{}) interface{} {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil
		}
		return t
	case *time.Time:
		if t == nil {
			return nil
		}
		return *t
	default:
		return v
	}
}

// ListPipelineSchemas returns, per pipeline, its derived table name, source
// type, and (if metadata exists) its profiled columns.
func (e *Engine) ListPipelineSchemas(ctx context.Context, pipelineIDs []string) ([]PipelineSchema, error) {
	out := make([]PipelineSchema, 0, len(pipelineIDs))
	for _, id := range pipelineIDs {
		p, err := e.store.GetPipeline(ctx, id)
		if err != nil {
			return nil, err
		}
		if p == nil {
			return nil, relayerrors.NotFound("pipeline", id)
		}
		schema := PipelineSchema{
			PipelineID: id,
			TableName:  store.DeriveTableName(p.Name),
			SourceType: p.Source.Type,
		}

		meta, err := e.store.GetMetadata(ctx, id)
		if err != nil {
			return nil, err
		}
		if meta != nil {
			for _, col := range meta.Columns {
				desc := col.Description
				if desc == "" {
					desc = col.AutoDescription
				}
				schema.Columns = append(schema.Columns, ColumnSchema{
					Name:         col.Name,
					Type:         col.Type,
					SemanticType: col.SemanticType,
					Description:  desc,
					SampleValues: col.SampleValues,
					NullPercent:  col.NullPercentage,
				})
			}
		}
		out = append(out, schema)
	}
	return out, nil
}
