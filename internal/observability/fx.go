package observability

import (
	"github.com/smallbiznis/revenue/internal/observability/logger"
	"github.com/smallbiznis/revenue/internal/observability/metrics"
	"github.com/smallbiznis/revenue/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
	gormlogger "gorm.io/gorm/logger"
)

// Module provides logging, tracing, and metrics for every binary. The GORM
// logger is provided here so pkg/db logs through the same zap core.
var Module = fx.Module("observability",
	fx.Provide(
		LoadConfig,
		LoggerConfig,
		logger.New,
		GormLoggerConfig,
		logger.NewGormLogger,
		TracingConfig,
		tracing.NewProvider,
		MetricsConfig,
		metrics.NewProvider,
		metrics.New,
		metrics.NewHTTPMetrics,
	),
	fx.Invoke(startExporters),
)

// startExporters forces the tracer provider and the process-wide scheduler
// collectors to exist before the first request or job run.
func startExporters(_ *sdktrace.TracerProvider, cfg metrics.Config) {
	metrics.SchedulerWithConfig(cfg)
}

func LoggerConfig(cfg Config) logger.Config {
	return logger.Config{
		ServiceName:         cfg.ServiceName,
		Environment:         cfg.Environment,
		Version:             cfg.Version,
		Level:               cfg.LogLevel,
		Format:              cfg.LogFormat,
		Debug:               cfg.Debug(),
		IncludeCaller:       true,
		IncludeStackOnError: cfg.Debug(),
	}
}

// GormLoggerConfig logs every query in debug setups and only failures and
// slow queries otherwise.
func GormLoggerConfig(cfg Config) logger.GormLoggerConfig {
	out := logger.DefaultGormLoggerConfig()
	if cfg.SlowQueryThreshold > 0 {
		out.SlowThreshold = cfg.SlowQueryThreshold
	}
	if cfg.Debug() {
		out.Level = gormlogger.Info
	}
	return out
}

func TracingConfig(cfg Config) tracing.Config {
	return tracing.Config{
		Enabled:          cfg.OtelEnabled,
		ServiceName:      cfg.ServiceName,
		ServiceVersion:   cfg.Version,
		Environment:      cfg.Environment,
		ExporterEndpoint: cfg.OtelExporterEndpoint,
		ExporterProtocol: cfg.OtelExporterProtocol,
		SamplingRatio:    cfg.OtelSamplingRatio,
	}
}

func MetricsConfig(cfg Config) metrics.Config {
	return metrics.Config{
		Enabled:          cfg.OtelEnabled,
		ExporterEndpoint: cfg.OtelExporterEndpoint,
		ExporterProtocol: cfg.OtelExporterProtocol,
		ServiceName:      cfg.ServiceName,
		Environment:      cfg.Environment,
	}
}
