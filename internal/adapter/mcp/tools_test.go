package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/guillermoBallester/causeway/internal/core/domain"
	"github.com/guillermoBallester/causeway/internal/core/port"
	"github.com/guillermoBallester/causeway/internal/core/service"
	"github.com/guillermoBallester/causeway/internal/registry"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchemaJSON = `{
	"table": "trips",
	"columns": [
		{"name": "tpep_pickup_datetime", "type": "DateTime", "filterable": true, "is_datetime": true},
		{"name": "payment_type", "type": "String", "groupable": true, "filterable": true, "allowed_values": ["CSH", "CRE"]},
		{"name": "fare_amount", "type": "Float32", "aggregatable": true, "filterable": true}
	],
	"datetime_column": "tpep_pickup_datetime",
	"supported_aggregates": ["count", "avg"],
	"default_limit": 100,
	"max_limit": 1000
}`

// --- mock SQLGenerator ---

type mockGenerator struct {
	sql string
	err error
}

func (m *mockGenerator) GenerateSQL(_ context.Context, _, _, _ string) (string, error) {
	return m.sql, m.err
}

// --- mock QueryExecutor ---

type mockExecutor struct {
	result  *domain.QueryResult
	err     error
	lastSQL string // captures the SQL passed to Execute
}

func (m *mockExecutor) Execute(_ context.Context, sql string) (*domain.QueryResult, error) {
	m.lastSQL = sql
	return m.result, m.err
}

type discardAuditor struct{}

func (discardAuditor) Record(context.Context, port.AuditEntry) {}
func (discardAuditor) Close() error                            { return nil }

// --- helpers ---

func callTool(t *testing.T, s *server.MCPServer, toolName string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	session := server.NewInProcessSession("test", nil)
	require.NoError(t, s.RegisterSession(ctx, session))
	sessionCtx := s.WithContext(ctx, session)

	// Initialize session.
	initBytes, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0", "id": "init", "method": "initialize",
		"params": map[string]any{
			"protocolVersion": "2025-03-26",
			"capabilities":    map[string]any{},
			"clientInfo":      map[string]any{"name": "test", "version": "1.0"},
		},
	})
	s.HandleMessage(sessionCtx, initBytes)

	// Call tool.
	reqBytes, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0", "id": "call-1", "method": "tools/call",
		"params": map[string]any{
			"name":      toolName,
			"arguments": args,
		},
	})
	resp := s.HandleMessage(sessionCtx, reqBytes)
	respBytes, _ := json.Marshal(resp)

	var rpc struct {
		Result *mcp.CallToolResult       `json:"result"`
		Error  *struct{ Message string } `json:"error,omitempty"`
	}
	require.NoError(t, json.Unmarshal(respBytes, &rpc))
	require.Nil(t, rpc.Error, "unexpected RPC error: %v", rpc.Error)
	require.NotNil(t, rpc.Result)
	return rpc.Result
}

func toolText(result *mcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return ""
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		return ""
	}
	return tc.Text
}

func setupServer(t *testing.T, generator *mockGenerator, executor *mockExecutor) *server.MCPServer {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "trips.json"), []byte(testSchemaJSON), 0644))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	querySvc := service.NewQueryService(registry.New(dir), "trips", generator, executor, discardAuditor{}, logger, nil, nil)
	return NewServer("test", querySvc, logger, nil, nil)
}

// --- ask ---

func TestAskTool(t *testing.T) {
	t.Parallel()
	executor := &mockExecutor{result: &domain.QueryResult{
		Columns:  []string{"count()"},
		Rows:     []map[string]any{{"count()": float64(42)}},
		RowCount: 1,
	}}
	s := setupServer(t, &mockGenerator{sql: "SELECT count() FROM trips"}, executor)

	result := callTool(t, s, "ask", map[string]any{"question": "how many trips?"})
	require.False(t, result.IsError, "tool error: %s", toolText(result))

	var parsed service.AskResult
	require.NoError(t, json.Unmarshal([]byte(toolText(result)), &parsed))
	assert.Equal(t, "SELECT count() FROM trips LIMIT 100", parsed.SQL)
	assert.Equal(t, 1, parsed.RowCount)
	assert.Equal(t, "SELECT count() FROM trips LIMIT 100", executor.lastSQL)
}

func TestAskTool_RejectedSQL(t *testing.T) {
	t.Parallel()
	executor := &mockExecutor{result: &domain.QueryResult{}}
	s := setupServer(t, &mockGenerator{sql: "DROP TABLE trips"}, executor)

	result := callTool(t, s, "ask", map[string]any{"question": "drop it"})
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(result), "forbidden keyword: DROP")
	assert.Empty(t, executor.lastSQL, "rejected SQL must never reach the executor")
}

func TestAskTool_MissingQuestion(t *testing.T) {
	t.Parallel()
	s := setupServer(t, &mockGenerator{}, &mockExecutor{})

	result := callTool(t, s, "ask", map[string]any{})
	assert.True(t, result.IsError)
}

// --- generate_sql ---

func TestGenerateSQLTool(t *testing.T) {
	t.Parallel()
	s := setupServer(t, &mockGenerator{sql: "SELECT avg(fare_amount) FROM trips"}, &mockExecutor{})

	result := callTool(t, s, "generate_sql", map[string]any{"question": "average fare"})
	require.False(t, result.IsError, "tool error: %s", toolText(result))

	var parsed service.GenerateResult
	require.NoError(t, json.Unmarshal([]byte(toolText(result)), &parsed))
	assert.True(t, parsed.Valid)
	assert.Equal(t, "SELECT avg(fare_amount) FROM trips", parsed.SQL)
}

func TestGenerateSQLTool_ReportsViolations(t *testing.T) {
	t.Parallel()
	s := setupServer(t, &mockGenerator{sql: "SELECT secret FROM users"}, &mockExecutor{})

	result := callTool(t, s, "generate_sql", map[string]any{"question": "secrets"})
	require.False(t, result.IsError, "validation failure is data, not a tool error")

	var parsed service.GenerateResult
	require.NoError(t, json.Unmarshal([]byte(toolText(result)), &parsed))
	assert.False(t, parsed.Valid)
	assert.NotEmpty(t, parsed.Violations)
}

// --- validate_sql ---

func TestValidateSQLTool(t *testing.T) {
	t.Parallel()
	s := setupServer(t, &mockGenerator{}, &mockExecutor{})

	result := callTool(t, s, "validate_sql", map[string]any{"sql": "SELECT count() FROM trips"})
	require.False(t, result.IsError, "tool error: %s", toolText(result))

	var parsed struct {
		Valid      bool     `json:"valid"`
		Violations []string `json:"violations"`
		BoundedSQL string   `json:"bounded_sql"`
	}
	require.NoError(t, json.Unmarshal([]byte(toolText(result)), &parsed))
	assert.True(t, parsed.Valid)
	assert.Equal(t, "SELECT count() FROM trips LIMIT 100", parsed.BoundedSQL)
}

func TestValidateSQLTool_Invalid(t *testing.T) {
	t.Parallel()
	s := setupServer(t, &mockGenerator{}, &mockExecutor{})

	result := callTool(t, s, "validate_sql", map[string]any{"sql": "DELETE FROM trips"})
	require.False(t, result.IsError)

	var parsed struct {
		Valid      bool     `json:"valid"`
		Violations []string `json:"violations"`
		BoundedSQL string   `json:"bounded_sql"`
	}
	require.NoError(t, json.Unmarshal([]byte(toolText(result)), &parsed))
	assert.False(t, parsed.Valid)
	assert.Contains(t, parsed.Violations, "forbidden keyword: DELETE")
	assert.Empty(t, parsed.BoundedSQL)
}

// --- schema_context ---

func TestSchemaContextTool(t *testing.T) {
	t.Parallel()
	s := setupServer(t, &mockGenerator{}, &mockExecutor{})

	result := callTool(t, s, "schema_context", map[string]any{})
	require.False(t, result.IsError)

	text := toolText(result)
	assert.Contains(t, text, "Table: trips")
	assert.Contains(t, text, "payment_type")
	assert.Contains(t, text, "Max result limit: 1000")
}
