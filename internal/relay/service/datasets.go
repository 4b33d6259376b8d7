package service

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/camdencbrown/relay/internal/relay/store"
)

var wordPattern = regexp.MustCompile(`\w+`)

// DatasetMatch is one scored pipeline in a dataset search result.
type DatasetMatch struct {
	PipelineID string    `json:"pipeline_id"`
	Name       string    `json:"name"`
	Confidence float64   `json:"confidence"`
	Reason     string    `json:"reason"`
	SourceType string    `json:"source_type"`
	CreatedAt  interface{} `json:"created_at"`
}

// SearchDatasets scores every pipeline against a free-text query using
// keyword overlap across its name, its source url/query, and its column
// names, returning the top_k highest scoring matches.
func (s *Service) SearchDatasets(ctx context.Context, callerRole store.Role, q string, topK int) (map[string]interface{}, error) {
	if err := s.RequireRole(callerRole, store.RoleReader); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = 5
	}
	pipelines, err := s.Store.ListPipelines(ctx)
	if err != nil {
		return nil, err
	}

	queryWords := wordSet(strings.ToLower(q))
	var scored []DatasetMatch
	for _, p := range pipelines {
		score, reason := scorePipeline(ctx, s, p, queryWords)
		if score > 0 {
			scored = append(scored, DatasetMatch{
				PipelineID: p.ID,
				Name:       p.Name,
				Confidence: score,
				Reason:     reason,
				SourceType: p.Source.Type,
				CreatedAt:  p.CreatedAt,
			})
		}
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].Confidence > scored[j].Confidence })
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return envelope(map[string]interface{}{"matches": scored, "count": len(scored)}), nil
}

func scorePipeline(ctx context.Context, s *Service, p store.Pipeline, queryWords map[string]bool) (float64, string) {
	var score float64
	matched := map[string]bool{}

	for w := range intersect(queryWords, wordSet(strings.ToLower(p.Name))) {
		score += 0.5
		matched[w] = true
	}

	sourceText := p.Source.URL
	if sourceText == "" {
		sourceText = p.Source.Query
	}
	for w := range intersect(queryWords, wordSet(strings.ToLower(sourceText))) {
		score += 0.3
		matched[w] = true
	}

	if meta, err := s.Store.GetMetadata(ctx, p.ID); err == nil && meta != nil {
		for _, col := range meta.Columns {
			lower := strings.ToLower(col.Name)
			for w := range queryWords {
				if strings.Contains(lower, w) {
					score += 0.1
					matched[col.Name] = true
					break
				}
			}
		}
	}

	if score > 1.0 {
		score = 1.0
	}
	if len(matched) == 0 {
		return 0, "Low relevance"
	}
	keys := make([]string, 0, len(matched))
	for k := range matched {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return score, fmt.Sprintf("Matched keywords: %s", strings.Join(keys, ", "))
}

func wordSet(text string) map[string]bool {
	out := map[string]bool{}
	for _, w := range wordPattern.FindAllString(text, -1) {
		out[w] = true
	}
	return out
}

func intersect(a, b map[string]bool) map[string]bool {
	out := map[string]bool{}
	for w := range a {
		if b[w] {
			out[w] = true
		}
	}
	return out
}

// JoinSuggestion proposes a column pair two pipelines could be joined on.
type JoinSuggestion struct {
	LeftColumn  string  `json:"left_column"`
	RightColumn string  `json:"right_column"`
	Confidence  float64 `json:"confidence"`
	Reason      string  `json:"reason"`
}

// JoinSuggestions compares two pipelines' profiled columns and proposes
// likely join keys by exact name match, name similarity, and shared
// identifier semantics.
func (s *Service) JoinSuggestions(ctx context.Context, callerRole store.Role, pipelineID1, pipelineID2 string) (map[string]interface{}, error) {
	if err := s.RequireRole(callerRole, store.RoleReader); err != nil {
		return nil, err
	}
	meta1, err := s.Store.GetMetadata(ctx, pipelineID1)
	if err != nil {
		return nil, err
	}
	meta2, err := s.Store.GetMetadata(ctx, pipelineID2)
	if err != nil {
		return nil, err
	}
	if meta1 == nil || meta2 == nil {
		return envelope(map[string]interface{}{"suggestions": []JoinSuggestion{}}), nil
	}

	var suggestions []JoinSuggestion
	for _, col1 := range meta1.Columns {
		for _, col2 := range meta2.Columns {
			name1, name2 := strings.ToLower(col1.Name), strings.ToLower(col2.Name)
			var confidence float64
			var reasons []string

			switch {
			case name1 == name2:
				confidence = 0.95
				reasons = append(reasons, "Exact name match")
			case namesSimilar(name1, name2):
				confidence = 0.75
				reasons = append(reasons, fmt.Sprintf("Name similarity: %s <-> %s", name1, name2))
			}

			if col1.SemanticType == "identifier" && col2.SemanticType == "identifier" {
				confidence += 0.1
				reasons = append(reasons, "Both are identifiers")
			}

			if confidence > 0.5 {
				if confidence > 1.0 {
					confidence = 1.0
				}
				suggestions = append(suggestions, JoinSuggestion{
					LeftColumn:  col1.Name,
					RightColumn: col2.Name,
					Confidence:  confidence,
					Reason:      strings.Join(reasons, "; "),
				})
			}
		}
	}
	sort.Slice(suggestions, func(i, j int) bool { return suggestions[i].Confidence > suggestions[j].Confidence })
	return envelope(map[string]interface{}{"suggestions": suggestions}), nil
}

var (
	idSuffixPattern    = regexp.MustCompile(`id$`)
	idPrefixPattern    = regexp.MustCompile(`^id`)
	underscoreIDPattern = regexp.MustCompile(`_id$`)
	cleanNamePattern   = regexp.MustCompile(`[_\-\s]`)
)

func namesSimilar(name1, name2 string) bool {
	clean1 := cleanNamePattern.ReplaceAllString(name1, "")
	clean2 := cleanNamePattern.ReplaceAllString(name2, "")
	if strings.Contains(clean2, clean1) || strings.Contains(clean1, clean2) {
		return true
	}
	if idSuffixPattern.MatchString(name1) && idSuffixPattern.MatchString(name2) {
		return true
	}
	if idPrefixPattern.MatchString(name1) && idSuffixPattern.MatchString(name2) {
		return true
	}
	if underscoreIDPattern.MatchString(name1) && idSuffixPattern.MatchString(name2) {
		return true
	}
	return false
}
