package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/guillermoBallester/causeway/internal/adapter/httpapi"
	mcpadapter "github.com/guillermoBallester/causeway/internal/adapter/mcp"
	"github.com/guillermoBallester/causeway/internal/adapter/openai"
	"github.com/guillermoBallester/causeway/internal/adapter/tinybird"
	"github.com/guillermoBallester/causeway/internal/audit"
	"github.com/guillermoBallester/causeway/internal/config"
	"github.com/guillermoBallester/causeway/internal/core/port"
	"github.com/guillermoBallester/causeway/internal/core/service"
	"github.com/guillermoBallester/causeway/internal/registry"
	"github.com/guillermoBallester/causeway/internal/telemetry"
)

type serveFlags struct {
	transport    string
	httpAddr     string
	rateLimit    int
	model        string
	tinybirdHost string
	queryTimeout time.Duration
	logLevel     string
	otelEnabled  bool
	auditLog     string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions, version string) *cobra.Command {
	flags := &serveFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the question-to-SQL service",
		Long: `Run the service over HTTP (POST /query, GET /schema, GET /health) or as an
MCP server over stdio. Requires OPENAI_API_KEY and TINYBIRD_TOKEN.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, rootOpts, flags, version)
		},
	}

	cmd.Flags().StringVar(&flags.transport, "transport", "", `transport: "http" or "stdio" (default from env)`)
	cmd.Flags().StringVar(&flags.httpAddr, "http-addr", "", "HTTP listen address")
	cmd.Flags().IntVar(&flags.rateLimit, "rate-limit", 0, "POST /query calls per minute per client IP (0 disables)")
	cmd.Flags().StringVar(&flags.model, "model", "", "generation model name")
	cmd.Flags().StringVar(&flags.tinybirdHost, "tinybird-host", "", "Tinybird API host")
	cmd.Flags().DurationVar(&flags.queryTimeout, "query-timeout", 0, "remote query timeout")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "", "log level (debug|info|warn|error)")
	cmd.Flags().BoolVar(&flags.otelEnabled, "otel", false, "enable OpenTelemetry tracing and metrics")
	cmd.Flags().StringVar(&flags.auditLog, "audit-log", "", "path to NDJSON audit log file")

	return cmd
}

func runServe(cmd *cobra.Command, rootOpts *RootOptions, flags *serveFlags, version string) error {
	overrides := config.Overrides{
		SchemaDir:   &rootOpts.SchemaDir,
		SchemaName:  &rootOpts.SchemaName,
		OTelEnabled: flags.otelEnabled,
		AuditLog:    flags.auditLog,
	}
	if cmd.Flags().Changed("transport") {
		overrides.Transport = &flags.transport
	}
	if cmd.Flags().Changed("http-addr") {
		overrides.HTTPAddr = &flags.httpAddr
	}
	if cmd.Flags().Changed("rate-limit") {
		overrides.RateLimitPerMinute = &flags.rateLimit
	}
	if cmd.Flags().Changed("model") {
		overrides.OpenAIModel = &flags.model
	}
	if cmd.Flags().Changed("tinybird-host") {
		overrides.TinybirdHost = &flags.tinybirdHost
	}
	if cmd.Flags().Changed("query-timeout") {
		overrides.QueryTimeout = &flags.queryTimeout
	}
	if cmd.Flags().Changed("log-level") {
		overrides.LogLevel = &flags.logLevel
	}

	cfg, err := config.Load(overrides)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Logs go to stderr; stdout is reserved for the MCP stdio transport.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	logger.Info("starting causeway",
		slog.String("version", version),
		slog.String("transport", cfg.Transport),
		slog.String("schema", cfg.SchemaName),
		slog.String("log_level", cfg.LogLevel.String()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	tracer := telemetry.NoopTracer()
	var inst port.Instrumentation = port.NoopInstrumentation{}
	if cfg.OTelEnabled {
		provider, err := telemetry.Init(ctx, "causeway", version)
		if err != nil {
			return fmt.Errorf("initializing telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := provider.Shutdown(shutdownCtx); err != nil {
				logger.Error("telemetry shutdown", slog.String("error.message", err.Error()))
			}
		}()
		tracer = otel.Tracer("causeway")
		inst = telemetry.NewInstruments()
	}

	schemas := registry.New(cfg.SchemaDir)
	schema, err := schemas.Get(cfg.SchemaName)
	if err != nil {
		return fmt.Errorf("loading schema: %w", err)
	}
	logger.Info("schema loaded",
		slog.String("table", schema.Table),
		slog.Int("columns", len(schema.Columns)),
	)

	generator, err := openai.NewGenerator(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL, cfg.QueryTimeout)
	if err != nil {
		return fmt.Errorf("creating generator: %w", err)
	}
	executor, err := tinybird.NewExecutor(cfg.TinybirdHost, cfg.TinybirdToken, cfg.QueryTimeout)
	if err != nil {
		return fmt.Errorf("creating executor: %w", err)
	}

	var auditor port.QueryAuditor = audit.NoopAuditor{}
	if cfg.AuditLog != "" {
		fileAuditor, err := audit.NewFileAuditor(cfg.AuditLog)
		if err != nil {
			return fmt.Errorf("opening audit log: %w", err)
		}
		defer func() { _ = fileAuditor.Close() }()
		auditor = fileAuditor
		logger.Info("audit log enabled", slog.String("file", cfg.AuditLog))
	}

	querySvc := service.NewQueryService(schemas, cfg.SchemaName, generator, executor, auditor, logger, tracer, inst)

	switch cfg.Transport {
	case "stdio":
		mcpServer := mcpadapter.NewServer(version, querySvc, logger, tracer, inst)
		stdioServer := mcpserver.NewStdioServer(mcpServer)
		logger.Info("serving MCP over stdio")
		if err := stdioServer.Listen(ctx, os.Stdin, os.Stdout); err != nil {
			return fmt.Errorf("stdio server: %w", err)
		}
	default:
		apiServer := httpapi.NewServer(querySvc, logger, cfg.RateLimitPerMinute)
		srv := &http.Server{
			Addr:    cfg.HTTPAddr,
			Handler: apiServer.Handler(),
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("serving HTTP", slog.String("addr", cfg.HTTPAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		select {
		case err := <-errCh:
			return fmt.Errorf("http server: %w", err)
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}
