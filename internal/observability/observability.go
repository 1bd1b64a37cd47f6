// Package observability installs the process-wide slog logger.
//
// Logs go to the terminal as text or JSON, or through the OpenTelemetry log pipeline to
// stdout or an OTLP collector. The OTLP exporters read the standard OTEL_EXPORTER_OTLP_*
// environment variables for endpoint and headers.
package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
)

// ServiceName identifies log records emitted through OpenTelemetry.
const ServiceName = "tokenward"

// Format selects the log handler.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatOTel Format = "otel"
)

// Exporter selects where OpenTelemetry log records go.
type Exporter string

const (
	ExporterStdout   Exporter = "stdout"
	ExporterOTLPHTTP Exporter = "otlp-http"
	ExporterOTLPGRPC Exporter = "otlp-grpc"
)

// Config configures Instrument.
type Config struct {
	Level    slog.Level
	Format   Format
	Exporter Exporter
	// Output receives text, JSON and stdout-exported records. Defaults to os.Stderr.
	Output io.Writer
}

// Instrument installs the default slog logger described by cfg.
// The returned function flushes and stops the log pipeline.
func Instrument(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	noop := func(context.Context) error { return nil }

	switch cfg.Format {
	case FormatText, "":
		slog.SetDefault(slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: cfg.Level})))
		return noop, nil
	case FormatJSON:
		slog.SetDefault(slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: cfg.Level})))
		return noop, nil
	case FormatOTel:
	default:
		return nil, fmt.Errorf("unsupported log format: %s", cfg.Format)
	}

	processor, err := newProcessor(ctx, cfg.Exporter, out)
	if err != nil {
		return nil, err
	}

	provider := sdklog.NewLoggerProvider(
		sdklog.WithResource(resource.NewSchemaless(attribute.String("service.name", ServiceName))),
		sdklog.WithProcessor(minsev.NewLogProcessor(processor, severity(cfg.Level))),
	)

	slog.SetDefault(slog.New(otelslog.NewHandler(ServiceName, otelslog.WithLoggerProvider(provider))))

	return func(ctx context.Context) error {
		return errors.Join(provider.ForceFlush(ctx), provider.Shutdown(ctx))
	}, nil
}

func newProcessor(ctx context.Context, exporter Exporter, out io.Writer) (sdklog.Processor, error) {
	switch exporter {
	case ExporterStdout, "":
		exp, err := stdoutlog.New(stdoutlog.WithWriter(out))
		if err != nil {
			return nil, fmt.Errorf("creating stdout log exporter: %w", err)
		}
		return sdklog.NewSimpleProcessor(exp), nil
	case ExporterOTLPHTTP:
		exp, err := otlploghttp.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("creating OTLP/HTTP log exporter: %w", err)
		}
		return sdklog.NewBatchProcessor(exp), nil
	case ExporterOTLPGRPC:
		exp, err := otlploggrpc.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("creating OTLP/gRPC log exporter: %w", err)
		}
		return sdklog.NewBatchProcessor(exp), nil
	default:
		return nil, fmt.Errorf("unsupported log exporter: %s", exporter)
	}
}

// severity maps a slog level to the minimum OpenTelemetry severity passed on.
func severity(level slog.Level) minsev.Severity {
	switch {
	case level <= slog.LevelDebug:
		return minsev.SeverityDebug
	case level <= slog.LevelInfo:
		return minsev.SeverityInfo
	case level <= slog.LevelWarn:
		return minsev.SeverityWarn
	default:
		return minsev.SeverityError
	}
}
