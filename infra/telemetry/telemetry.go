package telemetry

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/webitel/im-presence-service/config"
)

var ErrDisabled = errors.New("telemetry: disabled")

// ServiceInfo identifies the process in every exported resource.
type ServiceInfo struct {
	Name      string
	Namespace string
	Version   string
}

// Provider owns the SDK pipelines installed as the otel globals.
type Provider struct {
	tracer *sdktrace.TracerProvider
	meter  *sdkmetric.MeterProvider
	reader *sdkmetric.ManualReader
	logs   *sdklog.LoggerProvider
}

func New(ctx context.Context, cfg *config.Config, info ServiceInfo) (*Provider, error) {
	tc := cfg.Telemetry
	if !tc.Enabled {
		return &Provider{}, nil
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", info.Name),
		attribute.String("service.namespace", info.Namespace),
		attribute.String("service.version", info.Version),
		attribute.String("service.instance.id", cfg.Service.ID),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry: resource: %w", err)
	}

	p := &Provider{reader: sdkmetric.NewManualReader()}

	traceOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(tc.SampleRatio))),
	}
	if tc.Endpoint != "" {
		exporterOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(tc.Endpoint)}
		if tc.Insecure {
			exporterOpts = append(exporterOpts, otlptracegrpc.WithInsecure())
		}
		exporter, err := otlptracegrpc.New(ctx, exporterOpts...)
		if err != nil {
			return nil, fmt.Errorf("telemetry: trace exporter: %w", err)
		}
		traceOpts = append(traceOpts, sdktrace.WithBatcher(exporter))

		logOpts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(tc.Endpoint)}
		if tc.Insecure {
			logOpts = append(logOpts, otlploggrpc.WithInsecure())
		}
		logExporter, err := otlploggrpc.New(ctx, logOpts...)
		if err != nil {
			return nil, fmt.Errorf("telemetry: log exporter: %w", err)
		}
		p.logs = sdklog.NewLoggerProvider(
			sdklog.WithResource(res),
			sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)),
		)
	}

	p.tracer = sdktrace.NewTracerProvider(traceOpts...)
	p.meter = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(p.reader),
	)

	// [GLOBALS] Instruments created earlier through otel.Meter/otel.Tracer delegate here.
	otel.SetTracerProvider(p.tracer)
	otel.SetMeterProvider(p.meter)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return p, nil
}

func (p *Provider) Enabled() bool { return p.meter != nil }

// LoggerProvider is nil unless an OTLP endpoint is configured.
func (p *Provider) LoggerProvider() otellog.LoggerProvider {
	if p.logs == nil {
		return nil
	}
	return p.logs
}

// Collect snapshots every instrument registered on the meter provider.
func (p *Provider) Collect(ctx context.Context) (*metricdata.ResourceMetrics, error) {
	if p.reader == nil {
		return nil, ErrDisabled
	}
	rm := new(metricdata.ResourceMetrics)
	if err := p.reader.Collect(ctx, rm); err != nil {
		return nil, err
	}
	return rm, nil
}

// Shutdown flushes pending spans and log records.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	if p.tracer != nil {
		errs = append(errs, p.tracer.Shutdown(ctx))
	}
	if p.meter != nil {
		errs = append(errs, p.meter.Shutdown(ctx))
	}
	if p.logs != nil {
		errs = append(errs, p.logs.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
