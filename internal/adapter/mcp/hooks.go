package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/guillermoBallester/causeway/internal/core/port"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// inflightCall tracks one tool call from its before-hook to its after-hook.
type inflightCall struct {
	started time.Time
	span    trace.Span
}

// ToolCallHooks logs every MCP tool call with its duration and outcome, and
// when a tracer or instruments are supplied, records a span and a duration
// metric per call. Calls are correlated across hooks by request id.
func ToolCallHooks(logger *slog.Logger, tracer trace.Tracer, inst port.Instrumentation) *server.Hooks {
	var inflight sync.Map // request id -> *inflightCall

	finish := func(id any) (time.Duration, trace.Span) {
		v, ok := inflight.LoadAndDelete(id)
		if !ok {
			return 0, nil
		}
		call := v.(*inflightCall)
		return time.Since(call.started), call.span
	}

	logCall := func(ctx context.Context, tool string, duration time.Duration, failed bool, errMsg string) {
		level := slog.LevelInfo
		if failed {
			level = slog.LevelError
		}
		attrs := []slog.Attr{
			slog.String("rpc.method", "tools/call"),
			slog.String("mcp.tool", tool),
			slog.Duration("duration", duration),
			slog.Bool("error", failed),
		}
		if errMsg != "" {
			attrs = append(attrs, slog.String("error.message", errMsg))
		}
		logger.LogAttrs(ctx, level, "mcp tool call", attrs...)
	}

	hooks := &server.Hooks{}

	hooks.AddBeforeCallTool(func(ctx context.Context, id any, req *mcp.CallToolRequest) {
		call := &inflightCall{started: time.Now()}
		if tracer != nil {
			_, call.span = tracer.Start(ctx, "mcp.tool.call",
				trace.WithAttributes(attribute.String("mcp.tool", req.Params.Name)),
			)
		}
		inflight.Store(id, call)
	})

	hooks.AddAfterCallTool(func(ctx context.Context, id any, req *mcp.CallToolRequest, result any) {
		duration, span := finish(id)

		failed := false
		if r, ok := result.(*mcp.CallToolResult); ok {
			failed = r.IsError
		}
		logCall(ctx, req.Params.Name, duration, failed, "")

		if inst != nil {
			inst.RecordToolDuration(ctx, float64(duration.Milliseconds()))
		}
		if span != nil {
			if failed {
				span.SetStatus(codes.Error, "tool returned error")
				span.RecordError(fmt.Errorf("tool %s returned error", req.Params.Name))
			}
			span.End()
		}
	})

	hooks.AddOnError(func(ctx context.Context, id any, method mcp.MCPMethod, message any, err error) {
		duration, span := finish(id)

		if req, ok := message.(*mcp.CallToolRequest); ok {
			logCall(ctx, req.Params.Name, duration, true, err.Error())
		}
		if span != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.End()
		}
	})

	return hooks
}
