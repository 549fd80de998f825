// Package tinybird executes validated SQL against ClickHouse through
// Tinybird's SQL API. It is the only component that touches the data plane;
// everything upstream of it works on text.
package tinybird

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/guillermoBallester/causeway/internal/core/domain"
)

const defaultHost = "https://api.tinybird.co"

// Executor runs queries against the /v0/sql endpoint.
type Executor struct {
	host   string
	token  string
	client *http.Client
}

func NewExecutor(host, token string, timeout time.Duration) (*Executor, error) {
	if token == "" {
		return nil, errors.New("tinybird token is required")
	}
	if host == "" {
		host = defaultHost
	}
	return &Executor{
		host:   strings.TrimRight(host, "/"),
		token:  token,
		client: &http.Client{Timeout: timeout},
	}, nil
}

// sqlResponse is the FORMAT JSON shape: column metadata plus row objects.
type sqlResponse struct {
	Meta []struct {
		Name string `json:"name"`
		Type string `json:"type"`
	} `json:"meta"`
	Data []map[string]any `json:"data"`
	Rows int              `json:"rows"`
}

// Execute runs the statement and decodes the result rows. The statement is
// expected to already be validated and limit-bounded.
func (e *Executor) Execute(ctx context.Context, sql string) (*domain.QueryResult, error) {
	execSQL := strings.TrimRight(strings.TrimSpace(sql), ";")
	if !strings.Contains(strings.ToLower(execSQL), " format ") {
		execSQL += " FORMAT JSON"
	}

	params := url.Values{}
	params.Set("q", execSQL)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.host+"/v0/sql?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+e.token)

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	defer resp.Body.Close()

	elapsedMS := float64(time.Since(start).Microseconds()) / 1000.0

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tinybird error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed sqlResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	columns := make([]string, 0, len(parsed.Meta))
	for _, col := range parsed.Meta {
		columns = append(columns, col.Name)
	}

	rowCount := parsed.Rows
	if rowCount == 0 {
		rowCount = len(parsed.Data)
	}

	return &domain.QueryResult{
		Columns:   columns,
		Rows:      parsed.Data,
		RowCount:  rowCount,
		ElapsedMS: elapsedMS,
	}, nil
}
