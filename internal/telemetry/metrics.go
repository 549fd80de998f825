package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/guillermoBallester/causeway"

// Instruments holds pre-created OTel metric instruments.
type Instruments struct {
	GenerateDuration     metric.Float64Histogram
	ValidationRejections metric.Int64Counter
	QueryCount           metric.Int64Counter
	QueryDuration        metric.Float64Histogram
	QueryErrors          metric.Int64Counter
	ToolDuration         metric.Float64Histogram
}

// NewInstruments creates metric instruments from the global MeterProvider.
func NewInstruments() *Instruments {
	meter := otel.Meter(meterName)
	return newInstrumentsFromMeter(meter)
}

// NoopInstruments returns instruments that record nothing.
func NoopInstruments() *Instruments {
	meter := noop.NewMeterProvider().Meter(meterName)
	return newInstrumentsFromMeter(meter)
}

func newInstrumentsFromMeter(meter metric.Meter) *Instruments {
	// OTel SDK returns noop instruments on error; safe to discard.
	generateDuration, _ := meter.Float64Histogram("causeway.generate.duration",
		metric.WithDescription("NL-to-SQL generation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	validationRejections, _ := meter.Int64Counter("causeway.validation.rejections",
		metric.WithDescription("Total number of generated statements the validator refused"),
	)
	queryCount, _ := meter.Int64Counter("causeway.query.count",
		metric.WithDescription("Total number of SQL queries executed"),
	)
	queryDuration, _ := meter.Float64Histogram("causeway.query.duration",
		metric.WithDescription("SQL query execution duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	queryErrors, _ := meter.Int64Counter("causeway.query.errors",
		metric.WithDescription("Total number of failed SQL queries"),
	)
	toolDuration, _ := meter.Float64Histogram("causeway.tool.duration",
		metric.WithDescription("MCP tool call duration in milliseconds"),
		metric.WithUnit("ms"),
	)

	return &Instruments{
		GenerateDuration:     generateDuration,
		ValidationRejections: validationRejections,
		QueryCount:           queryCount,
		QueryDuration:        queryDuration,
		QueryErrors:          queryErrors,
		ToolDuration:         toolDuration,
	}
}

func (i *Instruments) RecordGenerateDuration(ctx context.Context, ms float64) {
	i.GenerateDuration.Record(ctx, ms)
}

func (i *Instruments) IncrementValidationRejections(ctx context.Context) {
	i.ValidationRejections.Add(ctx, 1)
}

func (i *Instruments) RecordQueryDuration(ctx context.Context, ms float64) {
	i.QueryDuration.Record(ctx, ms)
}

func (i *Instruments) IncrementQueryCount(ctx context.Context) {
	i.QueryCount.Add(ctx, 1)
}

func (i *Instruments) IncrementQueryErrors(ctx context.Context) {
	i.QueryErrors.Add(ctx, 1)
}

func (i *Instruments) RecordToolDuration(ctx context.Context, ms float64) {
	i.ToolDuration.Record(ctx, ms)
}
