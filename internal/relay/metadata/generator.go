// Package metadata implements Relay's dataset profiler: column profiling,
// semantic-type inference, and knowledge-base merge into a per-pipeline
// DatasetMetadata document.
package metadata

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/camdencbrown/relay/internal/relay/connectors"
	"github.com/camdencbrown/relay/internal/relay/store"
)

// KnowledgeStore is the subset of store.Store the generator needs to merge
// human-verified column descriptions.
type KnowledgeStore interface {
	GetColumnKnowledge(ctx context.Context, normalizedName string) (*store.ColumnKnowledge, error)
}

// Generator profiles fetched samples into per-pipeline metadata documents.
type Generator struct {
	knowledge KnowledgeStore
}

// New builds a Generator backed by the given knowledge-base reader.
func New(knowledge KnowledgeStore) *Generator {
	return &Generator{knowledge: knowledge}
}

var (
	emailPattern    = regexp.MustCompile(`(?i)email`)
	phonePattern    = regexp.MustCompile(`(?i)phone|mobile|tel(ephone)?$`)
	identifierPat   = regexp.MustCompile(`(?i)^id$|_id$|^uuid$|identifier`)
	namePattern     = regexp.MustCompile(`(?i)^name$|first_name|last_name|full_name`)
	addressPattern  = regexp.MustCompile(`(?i)address|street|city|state`)
	postalPattern   = regexp.MustCompile(`(?i)postal|zip`)
	currencyPattern = regexp.MustCompile(`(?i)price|amount|cost|revenue|salary|currency|total`)
	percentPattern  = regexp.MustCompile(`(?i)percent|pct|rate$`)
	datetimePattern = regexp.MustCompile(`(?i)date|time|_at$|created|updated`)
	booleanPattern  = regexp.MustCompile(`(?i)^is_|^has_|flag$`)
)

// normalizeColumnName matches store.ColumnKnowledge's key convention:
// lower(name).strip().replace(' ', '_').
func normalizeColumnName(name string) string {
	return strings.ReplaceAll(strings.TrimSpace(strings.ToLower(name)), " ", "_")
}

// inferSemanticType classifies a column by name pattern and observed value
// type. Name patterns take priority over the raw Go type since "2" could be
// a numeric id or a percentage depending on context.
func inferSemanticType(name string, goType string, sampleValues []interface{}) string {
	switch {
	case emailPattern.MatchString(name):
		return "email"
	case phonePattern.MatchString(name):
		return "phone"
	case identifierPat.MatchString(name):
		return "identifier"
	case namePattern.MatchString(name):
		return "name"
	case postalPattern.MatchString(name):
		return "postal_code"
	case addressPattern.MatchString(name):
		return "address"
	case currencyPattern.MatchString(name):
		return "currency"
	case percentPattern.MatchString(name):
		return "percentage"
	case datetimePattern.MatchString(name):
		return "datetime"
	case booleanPattern.MatchString(name):
		return "boolean"
	}

	switch goType {
	case "bool":
		return "boolean"
	case "int", "int64", "float64":
		return "numeric"
	}
	if looksLikeBoolSamples(sampleValues) {
		return "boolean"
	}
	return "text"
}

func looksLikeBoolSamples(values []interface{}) bool {
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			return false
		}
		lower := strings.ToLower(s)
		if lower != "true" && lower != "false" {
			return false
		}
	}
	return len(values) > 0
}

func goTypeOf(v interface{}) string {
	switch v.(type) {
	case bool:
		return "bool"
	case int, int32, int64:
		return "int64"
	case float32, float64:
		return "float64"
	case time.Time:
		return "datetime"
	case nil:
		return "null"
	default:
		return "string"
	}
}

func autoDescription(name, semanticType string) string {
	readable := strings.ReplaceAll(name, "_", " ")
	switch semanticType {
	case "identifier":
		return fmt.Sprintf("Unique identifier column (%s)", readable)
	case "email":
		return fmt.Sprintf("Email address (%s)", readable)
	case "phone":
		return fmt.Sprintf("Phone number (%s)", readable)
	case "currency":
		return fmt.Sprintf("Monetary value (%s)", readable)
	case "percentage":
		return fmt.Sprintf("Percentage value (%s)", readable)
	case "datetime":
		return fmt.Sprintf("Date/time value (%s)", readable)
	case "boolean":
		return fmt.Sprintf("Boolean flag (%s)", readable)
	case "numeric":
		return fmt.Sprintf("Numeric measure (%s)", readable)
	case "name":
		return fmt.Sprintf("Name field (%s)", readable)
	case "address":
		return fmt.Sprintf("Address field (%s)", readable)
	case "postal_code":
		return fmt.Sprintf("Postal/ZIP code (%s)", readable)
	default:
		return fmt.Sprintf("Text field (%s)", readable)
	}
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err == nil {
			return f, true
		}
	}
	return 0, false
}

func sampleStrings(values []interface{}, limit int) []string {
	out := make([]string, 0, limit)
	for _, v := range values {
		if len(out) >= limit {
			break
		}
		out = append(out, fmt.Sprintf("%v", v))
	}
	return out
}

// profileColumn computes one column's ColumnProfile from its observed values.
func profileColumn(name string, values []interface{}) store.ColumnProfile {
	nullCount := 0
	distinct := make(map[string]struct{})
	var nonNull []interface{}
	for _, v := range values {
		if v == nil {
			nullCount++
			continue
		}
		distinct[fmt.Sprintf("%v", v)] = struct{}{}
		nonNull = append(nonNull, v)
	}

	goType := "string"
	if len(nonNull) > 0 {
		goType = goTypeOf(nonNull[0])
	}
	semantic := inferSemanticType(name, goType, nonNull)

	profile := store.ColumnProfile{
		Name:         name,
		Type:         goType,
		SemanticType: semantic,
		UniqueValues: len(distinct),
		SampleValues: sampleStrings(nonNull, 5),
	}
	if len(values) > 0 {
		profile.NullPercentage = float64(nullCount) / float64(len(values)) * 100
	}

	if goType == "int64" || goType == "float64" {
		var (
			min, max, sum float64
			count         int
		)
		for _, v := range nonNull {
			f, ok := asFloat(v)
			if !ok {
				continue
			}
			if count == 0 || f < min {
				min = f
			}
			if count == 0 || f > max {
				max = f
			}
			sum += f
			count++
		}
		if count > 0 {
			mean := sum / float64(count)
			profile.Min = &min
			profile.Max = &max
			profile.Mean = &mean
			if math.IsNaN(mean) {
				profile.Mean = nil
			}
		}
	}

	profile.AutoDescription = autoDescription(name, semantic)
	profile.NeedsReview = true
	return profile
}

// Generate profiles a sampled table into a DatasetMetadata document, merging
// any verified ColumnKnowledge entries and overriding auto-generated
// descriptions where a human has verified one.
func (g *Generator) Generate(ctx context.Context, pipelineID string, sample connectors.Table, totalRowCount int) (store.DatasetMetadata, []string, error) {
	columns := make([]store.ColumnProfile, 0, len(sample.Columns))
	needsReview := make([]string, 0)

	for _, col := range sample.Columns {
		values := make([]interface{}, 0, len(sample.Rows))
		for _, row := range sample.Rows {
			values = append(values, row[col])
		}
		profile := profileColumn(col, values)

		if g.knowledge != nil {
			known, err := g.knowledge.GetColumnKnowledge(ctx, normalizeColumnName(col))
			if err != nil {
				return store.DatasetMetadata{}, nil, err
			}
			if known != nil {
				profile.Description = known.Description
				profile.HumanVerified = true
				profile.NeedsReview = false
			}
		}

		if profile.NeedsReview {
			needsReview = append(needsReview, col)
		}
		columns = append(columns, profile)
	}

	sort.Strings(needsReview)

	rowCount := totalRowCount
	if rowCount == 0 {
		rowCount = len(sample.Rows)
	}

	return store.DatasetMetadata{
		PipelineID:  pipelineID,
		Columns:     columns,
		RowCount:    rowCount,
		GeneratedAt: time.Now().UTC(),
	}, needsReview, nil
}
