package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/guillermoBallester/causeway/internal/core/domain"
	"github.com/guillermoBallester/causeway/internal/core/service"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server metadata
const serverName = "causeway"

// Tool descriptions
const (
	descAsk = "Answer a natural-language question about the dataset. " +
		"The question is converted to schema-bound ClickHouse SQL, validated, " +
		"limit-bounded, and executed. Returns the SQL together with the result rows."

	descAskParam = "Question in plain language, e.g. \"how many trips in the last 24 hours?\""

	descGenerateSQL = "Convert a natural-language question to ClickHouse SQL without executing it. " +
		"Returns the generated SQL plus the validator's verdict, so you can inspect " +
		"what would run before calling ask."

	descValidateSQL = "Validate a SQL statement against the schema whitelist without executing it. " +
		"Reports every violation (forbidden keywords, parse errors, unknown tables or columns) " +
		"and the limit-bounded form of the statement."

	descValidateSQLParam = "SQL statement to check (SELECT statements only)"

	descSchemaContext = "Describe the queryable table: columns with types and descriptions, " +
		"allowed filter values, the datetime column for time windows, supported aggregate " +
		"functions, and the maximum row limit. Call this first to see what can be asked."
)

func RegisterTools(s *server.MCPServer, query *service.QueryService) {
	s.AddTool(
		mcp.NewTool("ask",
			mcp.WithDescription(descAsk),
			mcp.WithString("question",
				mcp.Required(),
				mcp.Description(descAskParam),
			),
		),
		askHandler(query),
	)

	s.AddTool(
		mcp.NewTool("generate_sql",
			mcp.WithDescription(descGenerateSQL),
			mcp.WithString("question",
				mcp.Required(),
				mcp.Description(descAskParam),
			),
		),
		generateSQLHandler(query),
	)

	s.AddTool(
		mcp.NewTool("validate_sql",
			mcp.WithDescription(descValidateSQL),
			mcp.WithString("sql",
				mcp.Required(),
				mcp.Description(descValidateSQLParam),
			),
		),
		validateSQLHandler(query),
	)

	s.AddTool(
		mcp.NewTool("schema_context",
			mcp.WithDescription(descSchemaContext),
		),
		schemaContextHandler(query),
	)
}

func askHandler(query *service.QueryService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, ok := request.GetArguments()["question"].(string)
		if !ok || question == "" {
			return mcp.NewToolResultError("question is required"), nil
		}

		ctx = service.WithRequestID(ctx, uuid.NewString())
		result, err := query.Ask(ctx, question)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("ask failed: %v", err)), nil
		}

		data, err := json.Marshal(result)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}

		return mcp.NewToolResultText(string(data)), nil
	}
}

func generateSQLHandler(query *service.QueryService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, ok := request.GetArguments()["question"].(string)
		if !ok || question == "" {
			return mcp.NewToolResultError("question is required"), nil
		}

		result, err := query.Generate(ctx, question)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("generation failed: %v", err)), nil
		}

		data, err := json.Marshal(result)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}

		return mcp.NewToolResultText(string(data)), nil
	}
}

func validateSQLHandler(query *service.QueryService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sql, ok := request.GetArguments()["sql"].(string)
		if !ok || sql == "" {
			return mcp.NewToolResultError("sql is required"), nil
		}

		schema, err := query.Schema()
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("loading schema: %v", err)), nil
		}

		valid, violations := domain.ValidateSQL(sql, schema)
		out := map[string]any{
			"valid":      valid,
			"violations": violations,
		}
		if valid {
			_, bounded, _ := domain.EnforceLimit(sql, schema.DefaultLimit, schema.MaxLimit)
			out["bounded_sql"] = bounded
		}

		data, err := json.Marshal(out)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}

		return mcp.NewToolResultText(string(data)), nil
	}
}

func schemaContextHandler(query *service.QueryService) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		schema, err := query.Schema()
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("loading schema: %v", err)), nil
		}
		return mcp.NewToolResultText(schema.PromptContext()), nil
	}
}
