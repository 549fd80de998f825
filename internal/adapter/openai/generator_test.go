package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func respondWith(t *testing.T, sql string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		resp := responsesResponse{Output: []outputItem{
			{Type: "reasoning", Content: "thinking..."},
			{Type: "custom_tool_use", Content: sql},
		}}
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func TestGenerateSQL(t *testing.T) {
	t.Parallel()
	var gotReq responsesRequest
	var gotAuth, gotPath string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		respondWith(t, "SELECT count() FROM trips")(w, r)
	}))
	defer srv.Close()

	g, err := NewGenerator("sk-test", "gpt-5", srv.URL, 5*time.Second)
	require.NoError(t, err)

	sql, err := g.GenerateSQL(context.Background(), "how many trips?", "start: select_stmt", "Table: trips")
	require.NoError(t, err)
	assert.Equal(t, "SELECT count() FROM trips", sql)

	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "/v1/responses", gotPath)
	assert.Equal(t, "gpt-5", gotReq.Model)
	assert.Contains(t, gotReq.Input, "Table: trips")
	assert.Contains(t, gotReq.Input, "how many trips?")

	// The grammar rides along as a custom tool with lark syntax.
	require.Len(t, gotReq.Tools, 1)
	tool := gotReq.Tools[0]
	assert.Equal(t, "custom", tool.Type)
	assert.Equal(t, "clickhouse_query", tool.Name)
	assert.Equal(t, "grammar", tool.Format.Type)
	assert.Equal(t, "lark", tool.Format.Syntax)
	assert.Equal(t, "start: select_stmt", tool.Format.Definition)
}

func TestGenerateSQL_StripsTrailingSemicolon(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(respondWith(t, "SELECT count() FROM trips;\n"))
	defer srv.Close()

	g, err := NewGenerator("sk-test", "", srv.URL, 5*time.Second)
	require.NoError(t, err)

	sql, err := g.GenerateSQL(context.Background(), "q", "g", "s")
	require.NoError(t, err)
	assert.Equal(t, "SELECT count() FROM trips", sql)
}

func TestGenerateSQL_NoToolOutput(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(responsesResponse{Output: []outputItem{
			{Type: "message", Content: "I cannot answer that."},
		}})
	}))
	defer srv.Close()

	g, err := NewGenerator("sk-test", "", srv.URL, 5*time.Second)
	require.NoError(t, err)

	_, err = g.GenerateSQL(context.Background(), "q", "g", "s")
	assert.ErrorIs(t, err, ErrNoSQL)
}

func TestGenerateSQL_APIError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"message": "invalid api key"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	g, err := NewGenerator("sk-bad", "", srv.URL, 5*time.Second)
	require.NoError(t, err)

	_, err = g.GenerateSQL(context.Background(), "q", "g", "s")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "responses api returned 401")
}

func TestNewGenerator_Defaults(t *testing.T) {
	t.Parallel()
	_, err := NewGenerator("", "", "", time.Second)
	assert.Error(t, err)

	g, err := NewGenerator("sk-test", "", "", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "gpt-5", g.model)
	assert.Equal(t, "https://api.openai.com", g.baseURL)
}
