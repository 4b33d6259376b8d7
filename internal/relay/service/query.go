package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"

	relayerrors "github.com/camdencbrown/relay/infrastructure/errors"
	"github.com/camdencbrown/relay/internal/relay/query"
	"github.com/camdencbrown/relay/internal/relay/semantic"
	"github.com/camdencbrown/relay/internal/relay/store"
)

// QueryRequest is the typed body of POST /query.
type QueryRequest struct {
	PipelineIDs []string `json:"pipeline_ids"`
	SQL         string   `json:"sql"`
	RowLimit    int      `json:"row_limit"`
}

// Query executes arbitrary SQL over one or more pipelines' latest artifacts.
func (s *Service) Query(ctx context.Context, callerRole store.Role, req QueryRequest) (map[string]interface{}, error) {
	if err := s.RequireRole(callerRole, store.RoleReader); err != nil {
		return nil, err
	}
	if req.SQL == "" {
		return nil, relayerrors.Validation("sql", "required")
	}
	if len(req.PipelineIDs) == 0 {
		return nil, relayerrors.Validation("pipeline_ids", "at least one pipeline id is required")
	}

	result, err := s.QueryEngine.ExecuteQuery(ctx, req.PipelineIDs, req.SQL, req.RowLimit)
	if err != nil {
		return nil, err
	}
	s.emitEvent(ctx, "query.executed", nil, map[string]interface{}{"pipelines_used": result.PipelinesUsed, "row_count": result.RowCount})
	return envelope(map[string]interface{}{"result": result}), nil
}

// SchemaRequest is the typed body of POST /schema.
type SchemaRequest struct {
	PipelineIDs []string `json:"pipeline_ids"`
}

// Schema returns one DuckDB-facing schema document per pipeline.
func (s *Service) Schema(ctx context.Context, callerRole store.Role, req SchemaRequest) (map[string]interface{}, error) {
	if err := s.RequireRole(callerRole, store.RoleReader); err != nil {
		return nil, err
	}
	if len(req.PipelineIDs) == 0 {
		return nil, relayerrors.Validation("pipeline_ids", "at least one pipeline id is required")
	}
	schemas, err := s.QueryEngine.ListPipelineSchemas(ctx, req.PipelineIDs)
	if err != nil {
		return nil, err
	}
	return envelope(map[string]interface{}{"schemas": schemas},
		"POST /query with these table names in your SQL",
	), nil
}

// ExportRequest is the typed body of POST /export.
type ExportRequest struct {
	PipelineIDs []string `json:"pipeline_ids"`
	SQL         string   `json:"sql"`
	Format      string   `json:"format"`
}

var validExportFormats = map[string]bool{"csv": true, "json": true, "excel": true}

// Export runs a query and re-encodes the result in the requested format,
// returning the encoded bytes and their content type for the transport
// layer to stream back. "excel" degrades to a tab-separated CSV variant,
// since no spreadsheet-writer dependency is otherwise exercised here.
func (s *Service) Export(ctx context.Context, callerRole store.Role, req ExportRequest) ([]byte, string, string, error) {
	if err := s.RequireRole(callerRole, store.RoleReader); err != nil {
		return nil, "", "", err
	}
	if !validExportFormats[req.Format] {
		return nil, "", "", relayerrors.Validation("format", "must be one of csv, json, excel")
	}
	if req.SQL == "" {
		return nil, "", "", relayerrors.Validation("sql", "required")
	}

	result, err := s.QueryEngine.ExecuteQuery(ctx, req.PipelineIDs, req.SQL, 0)
	if err != nil {
		return nil, "", "", err
	}

	content, contentType, extension, err := encodeExport(result, req.Format)
	if err != nil {
		return nil, "", "", err
	}
	s.emitEvent(ctx, "query.exported", nil, map[string]interface{}{"format": req.Format, "row_count": result.RowCount})
	return content, contentType, extension, nil
}

func encodeExport(result query.Result, format string) ([]byte, string, string, error) {
	switch format {
	case "json":
		body, err := json.Marshal(result.Rows)
		if err != nil {
			return nil, "", "", relayerrors.Internal("encode export", err)
		}
		return body, "application/json", "json", nil
	case "csv", "excel":
		var buf bytes.Buffer
		delim := ','
		if format == "excel" {
			delim = '\t'
		}
		w := csv.NewWriter(&buf)
		w.Comma = delim
		if err := w.Write(result.Columns); err != nil {
			return nil, "", "", relayerrors.Internal("encode export", err)
		}
		for _, row := range result.Rows {
			record := make([]string, len(result.Columns))
			for i, col := range result.Columns {
				record[i] = exportCell(row[col])
			}
			if err := w.Write(record); err != nil {
				return nil, "", "", relayerrors.Internal("encode export", err)
			}
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return nil, "", "", relayerrors.Internal("encode export", err)
		}
		if format == "excel" {
			return buf.Bytes(), "text/tab-separated-values", "xls", nil
		}
		return buf.Bytes(), "text/csv", "csv", nil
	default:
		return nil, "", "", relayerrors.Validation("format", "must be one of csv, json, excel")
	}
}

func exportCell(v interface{}) string {
	if v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// OntologyQueryRequest is the typed body of POST /ontology/query.
type OntologyQueryRequest struct {
	Metrics         []string `json:"metrics"`
	Dimensions      []string `json:"dimensions"`
	Filters         []string `json:"filters"`
	OrderBy         []string `json:"order_by"`
	Limit           int      `json:"limit"`
	NaturalLanguage string   `json:"natural_language"`
}

// OntologyQuery resolves a semantic request against the ontology and runs it.
func (s *Service) OntologyQuery(ctx context.Context, callerRole store.Role, req OntologyQueryRequest) (map[string]interface{}, error) {
	if err := s.RequireRole(callerRole, store.RoleReader); err != nil {
		return nil, err
	}
	result, err := s.Semantic.Execute(ctx, semantic.Request{
		Metrics:         req.Metrics,
		Dimensions:      req.Dimensions,
		Filters:         req.Filters,
		OrderBy:         req.OrderBy,
		Limit:           req.Limit,
		NaturalLanguage: req.NaturalLanguage,
	})
	if err != nil {
		return nil, err
	}
	s.emitEvent(ctx, "ontology.query.executed", nil, map[string]interface{}{"entities_used": result.EntitiesUsed})
	return envelope(map[string]interface{}{"result": result}), nil
}
