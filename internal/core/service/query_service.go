package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/guillermoBallester/causeway/internal/core/domain"
	"github.com/guillermoBallester/causeway/internal/core/port"
	"github.com/guillermoBallester/causeway/internal/registry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

type requestIDKey struct{}

// WithRequestID returns a context carrying the caller's request id for audit
// logging.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestIDFromCtx(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

// ValidationError reports SQL that the defense-in-depth validator rejected.
// The generated text is kept so callers can show the user what was refused.
type ValidationError struct {
	SQL        string
	Violations []string
}

func (e *ValidationError) Error() string {
	return "sql validation failed: " + strings.Join(e.Violations, ", ")
}

// GenerateResult is the outcome of generation plus validation, without
// execution.
type GenerateResult struct {
	SQL        string   `json:"sql"`
	Valid      bool     `json:"valid"`
	Violations []string `json:"violations,omitempty"`
}

// AskResult is the outcome of the full question-to-rows pipeline.
type AskResult struct {
	SQL       string           `json:"sql"`
	Columns   []string         `json:"columns"`
	Rows      []map[string]any `json:"data"`
	RowCount  int              `json:"row_count"`
	ElapsedMS float64          `json:"elapsed_ms"`
}

// QueryService orchestrates the safety pipeline: grammar-constrained
// generation, independent validation, limit enforcement, and execution.
// The generated text is never executed unless both the validator and the
// limit enforcer have had their say.
type QueryService struct {
	schemas    *registry.Registry
	schemaName string
	generator  port.SQLGenerator
	executor   port.QueryExecutor
	auditor    port.QueryAuditor
	logger     *slog.Logger
	tracer     trace.Tracer
	inst       port.Instrumentation

	grammarMu sync.Mutex
	grammars  map[string]string
}

func NewQueryService(schemas *registry.Registry, schemaName string, generator port.SQLGenerator, executor port.QueryExecutor, auditor port.QueryAuditor, logger *slog.Logger, tracer trace.Tracer, inst port.Instrumentation) *QueryService {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("noop")
	}
	if inst == nil {
		inst = port.NoopInstrumentation{}
	}
	return &QueryService{
		schemas:    schemas,
		schemaName: schemaName,
		generator:  generator,
		executor:   executor,
		auditor:    auditor,
		logger:     logger,
		tracer:     tracer,
		inst:       inst,
		grammars:   make(map[string]string),
	}
}

// Schema returns the service's schema definition.
func (s *QueryService) Schema() (*domain.SchemaDefinition, error) {
	return s.schemas.Get(s.schemaName)
}

// Grammar returns the compiled grammar for the service's schema, caching the
// text per schema name. Compilation is deterministic, so a racing first call
// at worst recomputes identical bytes.
func (s *QueryService) Grammar() (string, error) {
	s.grammarMu.Lock()
	cached, ok := s.grammars[s.schemaName]
	s.grammarMu.Unlock()
	if ok {
		return cached, nil
	}

	schema, err := s.schemas.Get(s.schemaName)
	if err != nil {
		return "", err
	}
	grammar := domain.CompileGrammar(schema)

	s.grammarMu.Lock()
	s.grammars[s.schemaName] = grammar
	s.grammarMu.Unlock()

	return grammar, nil
}

// Generate turns a question into SQL and runs it through the validator, but
// does not execute it. Validation failure is data here, not an error; the
// eval harness and the generate_sql tool both want to see rejected SQL.
func (s *QueryService) Generate(ctx context.Context, question string) (*GenerateResult, error) {
	ctx, span := s.tracer.Start(ctx, "QueryService.Generate",
		trace.WithAttributes(attribute.String("causeway.question", question)),
	)
	defer span.End()

	schema, err := s.Schema()
	if err != nil {
		return nil, err
	}
	grammar, err := s.Grammar()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	sql, err := s.generator.GenerateSQL(ctx, question, grammar, schema.PromptContext())
	s.inst.RecordGenerateDuration(ctx, float64(time.Since(start).Milliseconds()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("generating sql: %w", err)
	}

	valid, violations := domain.ValidateSQL(sql, schema)
	if !valid {
		s.inst.IncrementValidationRejections(ctx)
		s.logger.WarnContext(ctx, "generated sql rejected",
			slog.String("db.statement", sql),
			slog.Any("violations", violations),
		)
	}

	span.SetAttributes(
		attribute.String("db.statement", sql),
		attribute.Bool("causeway.sql.valid", valid),
	)
	return &GenerateResult{SQL: sql, Valid: valid, Violations: violations}, nil
}

// Ask runs the full pipeline: generate, validate, enforce the row limit,
// execute. Rejected SQL surfaces as a *ValidationError and never reaches the
// executor.
func (s *QueryService) Ask(ctx context.Context, question string) (*AskResult, error) {
	ctx, span := s.tracer.Start(ctx, "QueryService.Ask",
		trace.WithAttributes(
			attribute.String("db.system", "clickhouse"),
			attribute.String("causeway.question", question),
		),
	)
	defer span.End()

	gen, err := s.Generate(ctx, question)
	if err != nil {
		return nil, err
	}

	if !gen.Valid {
		s.auditor.Record(ctx, port.AuditEntry{
			RequestID:  requestIDFromCtx(ctx),
			Question:   question,
			SQL:        gen.SQL,
			Valid:      false,
			Violations: gen.Violations,
		})
		verr := &ValidationError{SQL: gen.SQL, Violations: gen.Violations}
		span.RecordError(verr)
		span.SetStatus(codes.Error, verr.Error())
		return nil, verr
	}

	schema, err := s.Schema()
	if err != nil {
		return nil, err
	}
	_, bounded, _ := domain.EnforceLimit(gen.SQL, schema.DefaultLimit, schema.MaxLimit)
	span.SetAttributes(attribute.String("db.statement", bounded))

	start := time.Now()
	result, err := s.executor.Execute(ctx, bounded)
	durationMS := time.Since(start).Milliseconds()
	s.inst.RecordQueryDuration(ctx, float64(durationMS))

	entry := port.AuditEntry{
		RequestID:  requestIDFromCtx(ctx),
		Question:   question,
		SQL:        bounded,
		Valid:      true,
		DurationMS: durationMS,
		Err:        err,
	}
	if result != nil {
		entry.RowsReturned = result.RowCount
	}
	s.auditor.Record(ctx, entry)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.inst.IncrementQueryErrors(ctx)
		return nil, fmt.Errorf("executing query: %w", err)
	}

	s.inst.IncrementQueryCount(ctx)
	span.SetAttributes(attribute.Int("db.response.rows", result.RowCount))

	return &AskResult{
		SQL:       bounded,
		Columns:   result.Columns,
		Rows:      result.Rows,
		RowCount:  result.RowCount,
		ElapsedMS: result.ElapsedMS,
	}, nil
}
