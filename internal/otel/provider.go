// Package otel sets up OpenTelemetry log export for the simulation.
package otel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/heatbox/extension/internal/sim"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/metric"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// sessionFlushTimeout bounds the flush done when a session ends.
const sessionFlushTimeout = 5 * time.Second

// Config holds OTel configuration.
type Config struct {
	Enabled      bool
	ServiceName  string
	Version      string
	BatchTimeout time.Duration
	LogWriter    io.Writer // pretty-printed records, usually a file
	Endpoint     string    // OTLP/HTTP endpoint, optional
	Insecure     bool
	// Attributes are added to the resource, e.g. the scenario name.
	Attributes map[string]string
}

// Provider owns the log provider. It also listens to the simulation so a
// finished session's records are exported before the next one starts.
type Provider struct {
	sim.NopListener

	logs   *sdklog.LoggerProvider
	logger *slog.Logger
}

// New builds a Provider. When cfg.Enabled is false every method is a no-op.
func New(cfg Config) (*Provider, error) {
	p := &Provider{logger: slog.Default()}
	if !cfg.Enabled {
		return p, nil
	}

	ctx := context.Background()
	res, err := resource.New(ctx, resource.WithAttributes(cfg.resourceAttrs()...))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporters, err := cfg.exporters(ctx)
	if err != nil {
		return nil, err
	}
	if len(exporters) == 0 {
		return nil, errors.New("OTel enabled but no log writer or endpoint configured")
	}

	opts := []sdklog.LoggerProviderOption{sdklog.WithResource(res)}
	for _, exp := range exporters {
		opts = append(opts, sdklog.WithProcessor(
			sdklog.NewBatchProcessor(exp, sdklog.WithExportTimeout(cfg.BatchTimeout)),
		))
	}
	p.logs = sdklog.NewLoggerProvider(opts...)
	return p, nil
}

func (c Config) resourceAttrs() []attribute.KeyValue {
	attrs := []attribute.KeyValue{semconv.ServiceName(c.ServiceName)}
	if c.Version != "" {
		attrs = append(attrs, semconv.ServiceVersion(c.Version))
	}
	for k, v := range c.Attributes {
		attrs = append(attrs, attribute.String(k, v))
	}
	return attrs
}

func (c Config) exporters(ctx context.Context) ([]sdklog.Exporter, error) {
	var out []sdklog.Exporter
	if c.LogWriter != nil {
		exp, err := stdoutlog.New(stdoutlog.WithWriter(c.LogWriter), stdoutlog.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create file log exporter: %w", err)
		}
		out = append(out, exp)
	}
	if c.Endpoint != "" {
		opts := []otlploghttp.Option{otlploghttp.WithEndpoint(c.Endpoint)}
		if c.Insecure {
			opts = append(opts, otlploghttp.WithInsecure())
		}
		exp, err := otlploghttp.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP log exporter: %w", err)
		}
		out = append(out, exp)
	}
	return out, nil
}

// SetLogger sets where flush failures are reported. The slog pipeline is
// built on top of the provider, so it arrives after New.
func (p *Provider) SetLogger(l *slog.Logger) {
	p.logger = l
}

// LoggerProvider is handed to the otelslog bridge. Nil when disabled.
func (p *Provider) LoggerProvider() *sdklog.LoggerProvider {
	return p.logs
}

// Meter returns a meter from the global provider. Instruments are no-ops
// until a meter provider is installed with otel.SetMeterProvider.
func (p *Provider) Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// Enabled reports whether export is configured.
func (p *Provider) Enabled() bool {
	return p.logs != nil
}

// Flush exports pending records.
func (p *Provider) Flush(ctx context.Context) error {
	if p.logs == nil {
		return nil
	}
	if err := p.logs.ForceFlush(ctx); err != nil {
		return fmt.Errorf("log flush failed: %w", err)
	}
	return nil
}

// SessionEnded flushes what the session logged.
func (p *Provider) SessionEnded(ticks uint64) {
	if p.logs == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sessionFlushTimeout)
	defer cancel()
	if err := p.Flush(ctx); err != nil {
		p.logger.Warn("OTel flush after session failed", "ticks", ticks, "error", err)
	}
}

// Shutdown flushes and stops the exporters.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.logs == nil {
		return nil
	}
	if err := p.logs.Shutdown(ctx); err != nil {
		return fmt.Errorf("log shutdown failed: %w", err)
	}
	return nil
}
