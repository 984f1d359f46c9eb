package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	ordersCreated    metric.Int64Counter
	ordersCompleted  metric.Int64Counter
	paymentEvents    metric.Int64Counter
	downloadJobs     metric.Int64Counter
	artifactsExpired metric.Int64Counter
	packagingSeconds metric.Float64Histogram
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "soundcrate"
	}
	meter := provider.Meter(name)

	ordersCreated, err := meter.Int64Counter("soundcrate_orders_created_total")
	if err != nil {
		return nil, err
	}
	ordersCompleted, err := meter.Int64Counter("soundcrate_orders_completed_total")
	if err != nil {
		return nil, err
	}
	paymentEvents, err := meter.Int64Counter("soundcrate_payment_events_total")
	if err != nil {
		return nil, err
	}
	downloadJobs, err := meter.Int64Counter("soundcrate_download_jobs_total")
	if err != nil {
		return nil, err
	}
	artifactsExpired, err := meter.Int64Counter("soundcrate_artifacts_expired_total")
	if err != nil {
		return nil, err
	}
	packagingSeconds, err := meter.Float64Histogram("soundcrate_packaging_duration_seconds")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		ordersCreated:    ordersCreated,
		ordersCompleted:  ordersCompleted,
		paymentEvents:    paymentEvents,
		downloadJobs:     downloadJobs,
		artifactsExpired: artifactsExpired,
		packagingSeconds: packagingSeconds,
	}, nil
}

// RecordOrderCreated increments order creation counts.
func (m *Metrics) RecordOrderCreated(ctx context.Context, currency string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("currency", strings.ToUpper(strings.TrimSpace(currency))))
	m.ordersCreated.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordOrderCompleted increments completed order counts.
func (m *Metrics) RecordOrderCompleted(ctx context.Context, provider string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("provider", strings.TrimSpace(provider)))
	m.ordersCompleted.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordPaymentEvent increments gateway event counts.
func (m *Metrics) RecordPaymentEvent(ctx context.Context, provider, eventType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("event_type", strings.TrimSpace(eventType)),
	)
	m.paymentEvents.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordDownloadJob increments packaging job counts per terminal status.
func (m *Metrics) RecordDownloadJob(ctx context.Context, format, status string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("format", strings.TrimSpace(format)),
		attribute.String("status", strings.TrimSpace(status)),
	)
	m.downloadJobs.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordArtifactExpired increments retention sweep eviction counts.
func (m *Metrics) RecordArtifactExpired(ctx context.Context) {
	if m == nil {
		return
	}
	m.artifactsExpired.Add(ctx, 1)
}

// ObservePackagingDuration records how long one job spent assembling an artifact.
func (m *Metrics) ObservePackagingDuration(ctx context.Context, format string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("format", strings.TrimSpace(format)))
	m.packagingSeconds.Record(ctx, d.Seconds(), metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"currency":    {},
	"provider":    {},
	"event_type":  {},
	"format":      {},
	"status":      {},
	"status_code": {},
	"endpoint":    {},
	"reason":      {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
