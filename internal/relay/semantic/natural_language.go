package semantic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	relayerrors "github.com/camdencbrown/relay/infrastructure/errors"
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

type nlQueryShape struct {
	Metrics    []string `json:"metrics"`
	Dimensions []string `json:"dimensions"`
	Filters    []string `json:"filters"`
	OrderBy    []string `json:"order_by"`
	Limit      int      `json:"limit"`
}

// resolveNaturalLanguage translates a free-text query into a structured
// Request via the configured LLM. Absent a configured key, the natural
// language path is unavailable entirely.
func (e *Engine) resolveNaturalLanguage(ctx context.Context, text string) (Request, error) {
	if e.llmAPIKey == "" {
		return Request{}, relayerrors.NLUnavailable()
	}

	prompt := fmt.Sprintf(
		"Translate this analytics question into a JSON object with fields "+
			"metrics (array of metric names), dimensions (array of dimension names), "+
			"filters (array of SQL boolean expressions using entity_name.column references), "+
			"order_by (array of SQL order expressions), and limit (integer, 0 if unspecified). "+
			"Respond with ONLY the JSON object.\n\nQuestion: %s", text)

	body, err := json.Marshal(anthropicRequest{
		Model:     anthropicModel,
		MaxTokens: 1024,
		Messages:  []anthropicMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return Request{}, relayerrors.NLUnavailable()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, anthropicMessagesURL, bytes.NewReader(body))
	if err != nil {
		return Request{}, relayerrors.NLUnavailable()
	}
	req.Header.Set("content-type", "application/json")
	req.Header.Set("x-api-key", e.llmAPIKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	client := &http.Client{Timeout: 20 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return Request{}, relayerrors.NLUnavailable()
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Request{}, relayerrors.NLUnavailable()
	}

	var parsed anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil || len(parsed.Content) == 0 {
		return Request{}, relayerrors.NLUnavailable()
	}

	var shape nlQueryShape
	if err := json.Unmarshal([]byte(strings.TrimSpace(parsed.Content[0].Text)), &shape); err != nil {
		return Request{}, relayerrors.NLUnavailable()
	}

	return Request{
		Metrics:    shape.Metrics,
		Dimensions: shape.Dimensions,
		Filters:    shape.Filters,
		OrderBy:    shape.OrderBy,
		Limit:      shape.Limit,
	}, nil
}
