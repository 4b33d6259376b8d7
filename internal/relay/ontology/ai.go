package ontology

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/camdencbrown/relay/internal/relay/store"
)

const anthropicMessagesURL = "https://api.anthropic.com/v1/messages"
const anthropicModel = "claude-sonnet-4-5-20250929"
const anthropicVersion = "2023-06-01"

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

// aiPropose asks the configured LLM to analyze the pipeline and propose
// ontology elements, falling back to nil (never an error) on any failure so
// the caller always has the heuristic path available.
func aiPropose(ctx context.Context, apiKey string, p store.Pipeline, meta *store.DatasetMetadata, existingEntities []store.Entity, includeRelationships, includeMetrics bool) []proposal {
	prompt := buildAIPrompt(p, meta, existingEntities, includeRelationships, includeMetrics)

	body, err := json.Marshal(anthropicRequest{
		Model:     anthropicModel,
		MaxTokens: 2048,
		Messages:  []anthropicMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, anthropicMessagesURL, bytes.NewReader(body))
	if err != nil {
		return nil
	}
	req.Header.Set("content-type", "application/json")
	req.Header.Set("x-api-key", apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	client := &http.Client{Timeout: 20 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}

	var parsed anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil || len(parsed.Content) == 0 {
		return nil
	}

	return parseAIResponse(parsed.Content[0].Text)
}

var jsonArrayFence = regexp.MustCompile(`(?s)` + "```" + `(?:json)?\s*(\[.*?\])\s*` + "```")

// parseAIResponse extracts a JSON array of {"type", "payload"} proposals,
// tolerating a model response wrapped in a markdown code fence.
func parseAIResponse(text string) []proposal {
	if parsed := decodeProposalArray(text); parsed != nil {
		return parsed
	}
	if match := jsonArrayFence.FindStringSubmatch(text); match != nil {
		if parsed := decodeProposalArray(match[1]); parsed != nil {
			return parsed
		}
	}
	return nil
}

func decodeProposalArray(text string) []proposal {
	var raw []struct {
		Type    string                 `json:"type"`
		Payload map[string]interface{} `json:"payload"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &raw); err != nil {
		return nil
	}
	out := make([]proposal, 0, len(raw))
	for _, r := range raw {
		out = append(out, proposal{Type: store.ProposalType(r.Type), Payload: r.Payload})
	}
	return out
}

func buildAIPrompt(p store.Pipeline, meta *store.DatasetMetadata, existingEntities []store.Entity, includeRelationships, includeMetrics bool) string {
	type columnInfo struct {
		Name           string   `json:"name"`
		Type           string   `json:"type"`
		SemanticType   string   `json:"semantic_type"`
		SampleValues   []string `json:"sample_values"`
		NullPercentage float64  `json:"null_percentage"`
		UniqueValues   int      `json:"unique_values"`
	}
	var columns []columnInfo
	if meta != nil {
		for _, col := range meta.Columns {
			samples := col.SampleValues
			if len(samples) > 5 {
				samples = samples[:5]
			}
			columns = append(columns, columnInfo{
				Name:           col.Name,
				Type:           col.Type,
				SemanticType:   col.SemanticType,
				SampleValues:   samples,
				NullPercentage: col.NullPercentage,
				UniqueValues:   col.UniqueValues,
			})
		}
	}
	columnsJSON, _ := json.MarshalIndent(columns, "", "  ")

	type existingInfo struct {
		Name       string `json:"name"`
		PipelineID string `json:"pipeline_id"`
	}
	existing := make([]existingInfo, 0, len(existingEntities))
	for _, e := range existingEntities {
		existing = append(existing, existingInfo{Name: e.Name, PipelineID: e.PipelineID})
	}
	existingJSON, _ := json.Marshal(existing)

	requestParts := []string{"entity (name, display_name, description, column_annotations)"}
	if includeRelationships {
		requestParts = append(requestParts, "relationships (name, from_entity, to_entity, from_column, to_column, relationship_type)")
	}
	if includeMetrics {
		requestParts = append(requestParts,
			"metrics (name, display_name, expression using entity_name.column, format_type)",
			"dimensions (name, display_name, expression using entity_name.column, dimension_type: direct|derived)",
		)
	}

	return fmt.Sprintf(
		"Analyze this pipeline data and propose ontology elements.\n\n"+
			"Pipeline: %s (id: %s)\nColumns: %s\nExisting entities: %s\n\n"+
			"Propose: %s\n\n"+
			"Respond ONLY with a JSON array of objects, each with 'type' (entity/relationship/metric/dimension) "+
			"and 'payload' containing the fields for that type. "+
			"Use the pipeline name (normalized to lowercase/underscores) as the entity name. "+
			"Metric/dimension expressions should use entity_name.column_name format.",
		p.Name, p.ID, string(columnsJSON), string(existingJSON), strings.Join(requestParts, ", "),
	)
}
