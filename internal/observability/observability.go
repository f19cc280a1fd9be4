// Package observability wires logging, metrics and tracing.
package observability

import (
	"context"

	"github.com/mutualabs/mutua/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("observability",
	fx.Provide(NewLogger),
	fx.Provide(NewRegistry),
	fx.Provide(NewMetrics),
	fx.Invoke(SetupTracing),
)

func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Server.Mode == "debug" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Metrics holds the domain-level instruments shared across services.
type Metrics struct {
	MovementsPosted    *prometheus.CounterVec
	PublishOutcomes    *prometheus.CounterVec
	PublishDuration    prometheus.Histogram
	RecomputeJobsTotal *prometheus.CounterVec
}

func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		MovementsPosted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mutua",
			Name:      "ledger_movements_posted_total",
			Help:      "Movements appended to the ledger, by origin and direction.",
		}, []string{"origin", "direction"}),
		PublishOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mutua",
			Name:      "publication_affiliate_outcomes_total",
			Help:      "Per-affiliate outcomes of publication recomputation batches.",
		}, []string{"outcome"}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "mutua",
			Name:      "publication_publish_duration_seconds",
			Help:      "Wall time of publication publish batches.",
			Buckets:   prometheus.DefBuckets,
		}),
		RecomputeJobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mutua",
			Name:      "recompute_jobs_total",
			Help:      "Scheduler recompute jobs processed, by status.",
		}, []string{"status"}),
	}
	reg.MustRegister(m.MovementsPosted, m.PublishOutcomes, m.PublishDuration, m.RecomputeJobsTotal)
	return m
}

func SetupTracing(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) {
	if !cfg.Observability.TracingEnabled() {
		return
	}

	var provider *sdktrace.TracerProvider
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			exporter, err := otlptracehttp.New(ctx,
				otlptracehttp.WithEndpoint(cfg.Observability.OTLPEndpoint),
				otlptracehttp.WithInsecure(),
			)
			if err != nil {
				return err
			}
			res, err := sdkresource.New(ctx,
				sdkresource.WithAttributes(semconv.ServiceName(cfg.Observability.ServiceName)),
			)
			if err != nil {
				return err
			}
			provider = sdktrace.NewTracerProvider(
				sdktrace.WithBatcher(exporter),
				sdktrace.WithResource(res),
			)
			otel.SetTracerProvider(provider)
			log.Info("tracing enabled", zap.String("endpoint", cfg.Observability.OTLPEndpoint))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if provider == nil {
				return nil
			}
			return provider.Shutdown(ctx)
		},
	})
}
