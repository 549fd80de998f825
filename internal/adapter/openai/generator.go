// Package openai generates SQL from natural language through the OpenAI
// Responses API, handing the compiled grammar over as a custom tool so the
// model's output space is constrained at generation time. The returned text
// is still untrusted: the validator is the second line of defense.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.openai.com"
	defaultModel   = "gpt-5"

	toolName = "clickhouse_query"

	toolDescription = "Executes read-only ClickHouse SQL queries against the configured dataset. " +
		"Limited to SELECT statements with aggregations, WHERE filters, GROUP BY, ORDER BY, and LIMIT. " +
		"Generate SQL that obeys the grammar."

	systemPrompt = `You are a SQL assistant that converts natural language questions into ClickHouse SQL queries.

Rules:
1. Generate ONLY valid ClickHouse SQL - no explanations, no markdown, just SQL
2. Use only the columns and table provided in the schema
3. For time-based questions like "last N hours/days", use: column >= now() - INTERVAL N UNIT
4. Use appropriate aggregate functions: count(), sum(), avg(), min(), max()
5. Include GROUP BY when using aggregates with non-aggregated columns
6. Add reasonable LIMIT (default 100) to prevent huge result sets
7. Use ORDER BY for meaningful result ordering

Schema context:
%s`
)

var ErrNoSQL = errors.New("no SQL generated in response")

// Generator calls the Responses API with a grammar-constrained custom tool.
type Generator struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

func NewGenerator(apiKey, model, baseURL string, timeout time.Duration) (*Generator, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key is required")
	}
	if model == "" {
		model = defaultModel
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Generator{
		apiKey:  apiKey,
		model:   model,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}, nil
}

type toolFormat struct {
	Type       string `json:"type"`
	Syntax     string `json:"syntax"`
	Definition string `json:"definition"`
}

type customTool struct {
	Type        string     `json:"type"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Format      toolFormat `json:"format"`
}

type responsesRequest struct {
	Model string       `json:"model"`
	Input string       `json:"input"`
	Tools []customTool `json:"tools"`
}

type outputItem struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type responsesResponse struct {
	Output []outputItem `json:"output"`
}

// GenerateSQL asks the model for SQL answering the question, constrained by
// the Lark grammar. The trailing statement terminator, if any, is stripped.
func (g *Generator) GenerateSQL(ctx context.Context, question, grammar, schemaContext string) (string, error) {
	prompt := fmt.Sprintf(systemPrompt, schemaContext) +
		"\n\nUser question: " + question + "\n\nGenerate the SQL query:"

	reqBody := responsesRequest{
		Model: g.model,
		Input: prompt,
		Tools: []customTool{{
			Type:        "custom",
			Name:        toolName,
			Description: toolDescription,
			Format: toolFormat{
				Type:       "grammar",
				Syntax:     "lark",
				Definition: grammar,
			},
		}},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/responses", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling responses api: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("responses api returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed responsesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}

	for _, out := range parsed.Output {
		if out.Type == "custom_tool_use" && out.Content != "" {
			return strings.TrimRight(strings.TrimSpace(out.Content), ";"), nil
		}
	}
	return "", ErrNoSQL
}
