package ontology

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/camdencbrown/relay/internal/relay/store"
)

// proposal is the manager's internal working shape, decoupled from
// store.Proposal so both the heuristic and AI decorator paths can produce it
// before a proposal ID or timestamp is assigned.
type proposal struct {
	Type    store.ProposalType
	Payload map[string]interface{}
}

var nonEntityChars = regexp.MustCompile(`[^a-z0-9_]`)

// normalizeEntityName mirrors the normalization convention used everywhere
// else in Relay: lowercase, spaces and hyphens to underscores, anything else
// stripped.
func normalizeEntityName(name string) string {
	result := strings.ReplaceAll(strings.ReplaceAll(strings.TrimSpace(strings.ToLower(name)), " ", "_"), "-", "_")
	return nonEntityChars.ReplaceAllString(result, "")
}

func titleWords(s string) string {
	words := strings.Split(strings.ReplaceAll(s, "_", " "), " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

var numericTypes = map[string]bool{
	"int64": true, "float64": true, "numeric": true, "integer": true, "float": true,
}

var numericSemantics = map[string]bool{
	"currency": true, "numeric": true, "amount": true,
}

var textTypes = map[string]bool{
	"object": true, "string": true, "text": true, "category": true,
}

// heuristicPropose builds entity/relationship/metric/dimension proposals
// from a pipeline's profiled metadata, without any LLM involvement.
func heuristicPropose(p store.Pipeline, meta *store.DatasetMetadata, existingEntities []store.Entity, includeRelationships, includeMetrics bool) []proposal {
	var proposals []proposal
	entityName := normalizeEntityName(p.Name)

	var columns []store.ColumnProfile
	if meta != nil {
		columns = meta.Columns
	}

	columnAnnotations := map[string]interface{}{}
	for _, col := range columns {
		if col.Name == "id" || col.SemanticType == "identifier" {
			columnAnnotations[col.Name] = map[string]interface{}{
				"role":        string(store.RolePrimaryKey),
				"description": col.Description,
			}
		}
	}

	description := fmt.Sprintf("Entity from pipeline '%s'", p.Name)
	proposals = append(proposals, proposal{
		Type: store.ProposalEntity,
		Payload: map[string]interface{}{
			"name":               entityName,
			"display_name":       p.Name,
			"description":        description,
			"pipeline_id":        p.ID,
			"column_annotations": columnAnnotations,
			"status":             string(store.EntityActive),
		},
	})

	if includeRelationships {
		existingNames := make(map[string]bool, len(existingEntities))
		for _, e := range existingEntities {
			existingNames[e.Name] = true
		}
		for _, col := range columns {
			if !strings.HasSuffix(col.Name, "_id") || col.Name == "id" {
				continue
			}
			refEntity := strings.TrimSuffix(col.Name, "_id")
			for _, candidate := range []string{refEntity, refEntity + "s"} {
				if !existingNames[candidate] {
					continue
				}
				proposals = append(proposals, proposal{
					Type: store.ProposalRelationship,
					Payload: map[string]interface{}{
						"name":              fmt.Sprintf("%s_to_%s", entityName, candidate),
						"from_entity":       entityName,
						"to_entity":         candidate,
						"from_column":       col.Name,
						"to_column":         "id",
						"relationship_type": string(store.ManyToOne),
						"description":       fmt.Sprintf("%s.%s -> %s.id", entityName, col.Name, candidate),
						"status":            string(store.EntityActive),
					},
				})
				break
			}
		}
	}

	if includeMetrics {
		for _, col := range columns {
			if col.Name == "id" || strings.HasSuffix(col.Name, "_id") {
				continue
			}
			if !numericTypes[col.Type] && !numericSemantics[col.SemanticType] {
				continue
			}
			formatType := string(store.FormatNumber)
			if col.SemanticType == "currency" {
				formatType = string(store.FormatCurrency)
			}
			proposals = append(proposals,
				proposal{
					Type: store.ProposalMetric,
					Payload: map[string]interface{}{
						"name":         fmt.Sprintf("total_%s", col.Name),
						"display_name": fmt.Sprintf("Total %s", titleWords(col.Name)),
						"description":  fmt.Sprintf("Sum of %s.%s", entityName, col.Name),
						"entity_name":  entityName,
						"expression":   fmt.Sprintf("SUM(%s.%s)", entityName, col.Name),
						"format_type":  formatType,
						"status":       string(store.EntityActive),
					},
				},
				proposal{
					Type: store.ProposalMetric,
					Payload: map[string]interface{}{
						"name":         fmt.Sprintf("avg_%s", col.Name),
						"display_name": fmt.Sprintf("Average %s", titleWords(col.Name)),
						"description":  fmt.Sprintf("Average of %s.%s", entityName, col.Name),
						"entity_name":  entityName,
						"expression":   fmt.Sprintf("AVG(%s.%s)", entityName, col.Name),
						"format_type":  string(store.FormatNumber),
						"status":       string(store.EntityActive),
					},
				},
			)
		}

		proposals = append(proposals, proposal{
			Type: store.ProposalMetric,
			Payload: map[string]interface{}{
				"name":         fmt.Sprintf("%s_count", entityName),
				"display_name": fmt.Sprintf("%s Count", p.Name),
				"description":  fmt.Sprintf("Count of %s records", entityName),
				"entity_name":  entityName,
				"expression":   "COUNT(*)",
				"format_type":  string(store.FormatNumber),
				"status":       string(store.EntityActive),
			},
		})

		for _, col := range columns {
			lowerType := strings.ToLower(col.Type)
			switch {
			case col.SemanticType == "date" || col.SemanticType == "datetime" || strings.Contains(lowerType, "date"):
				proposals = append(proposals, proposal{
					Type: store.ProposalDimension,
					Payload: map[string]interface{}{
						"name":           fmt.Sprintf("%s_month", col.Name),
						"display_name":   fmt.Sprintf("%s (Month)", titleWords(col.Name)),
						"description":    fmt.Sprintf("Monthly grouping of %s.%s", entityName, col.Name),
						"entity_name":    entityName,
						"expression":     fmt.Sprintf("DATE_TRUNC('month', %s.%s)", entityName, col.Name),
						"dimension_type": string(store.DimensionDerived),
						"status":         string(store.EntityActive),
					},
				})
			case textTypes[col.Type] && col.UniqueValues > 0 && col.UniqueValues <= 50 &&
				col.Name != "id" && !strings.HasSuffix(col.Name, "_id"):
				proposals = append(proposals, proposal{
					Type: store.ProposalDimension,
					Payload: map[string]interface{}{
						"name":           col.Name,
						"display_name":   titleWords(col.Name),
						"description":    fmt.Sprintf("Group by %s.%s", entityName, col.Name),
						"entity_name":    entityName,
						"expression":     fmt.Sprintf("%s.%s", entityName, col.Name),
						"dimension_type": string(store.DimensionDirect),
						"status":         string(store.EntityActive),
					},
				})
			}
		}
	}

	return proposals
}
