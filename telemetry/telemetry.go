// Package telemetry bootstraps OpenTelemetry for automachine binaries: an
// OTLP/HTTP tracer provider for machine spans and an OTLP/HTTP logger
// provider bridged into log/slog.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

const (
	defaultServiceName    = "automachine"
	defaultServiceVersion = "1.0.0"
	defaultTimeout        = 5 * time.Second

	kubernetesCollector = "http://opentelemetry-collector.opentelemetry.svc.cluster.local:4318"
)

var (
	providersMu    sync.Mutex                //nolint:gochecknoglobals
	tracerProvider *sdktrace.TracerProvider  //nolint:gochecknoglobals
	loggerProvider *sdklog.LoggerProvider    //nolint:gochecknoglobals
	logHandler     slog.Handler              //nolint:gochecknoglobals
)

// Config holds the OpenTelemetry configuration.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	Endpoint       string
	LogsEndpoint   string
	Enabled        bool
	LogsEnabled    bool
	Timeout        time.Duration
}

type envConfig struct {
	Enabled        bool          `env:"OTEL_ENABLED"                      envDefault:"false"`
	LogsEnabled    bool          `env:"OTEL_LOGS_ENABLED"                 envDefault:"false"`
	ServiceName    string        `env:"OTEL_SERVICE_NAME"`
	ServiceVersion string        `env:"OTEL_SERVICE_VERSION"`
	Endpoint       string        `env:"OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"`
	LogsEndpoint   string        `env:"OTEL_EXPORTER_OTLP_LOGS_ENDPOINT"`
	Timeout        time.Duration `env:"OTEL_EXPORTER_OTLP_TRACES_TIMEOUT"`
	KubernetesHost string        `env:"KUBERNETES_SERVICE_HOST"`
}

// LoadConfigFromEnv loads OpenTelemetry configuration from environment variables.
func LoadConfigFromEnv(runningEnv string) (*Config, error) {
	return loadConfig(runningEnv, env.ToMap(os.Environ()))
}

func loadConfig(runningEnv string, environ map[string]string) (*Config, error) {
	var raw envConfig
	if err := env.ParseWithOptions(&raw, env.Options{Environment: environ}); err != nil {
		return nil, fmt.Errorf("parsing telemetry env: %w", err)
	}

	config := &Config{
		ServiceName:    raw.ServiceName,
		ServiceVersion: raw.ServiceVersion,
		Environment:    runningEnv,
		Endpoint:       raw.Endpoint,
		LogsEndpoint:   raw.LogsEndpoint,
		Enabled:        raw.Enabled,
		LogsEnabled:    raw.LogsEnabled,
		Timeout:        raw.Timeout,
	}

	if config.ServiceName == "" {
		config.ServiceName = defaultServiceName
	}

	if config.ServiceVersion == "" {
		config.ServiceVersion = defaultServiceVersion
	}

	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}

	// Inside Kubernetes the cluster collector is the default destination.
	if config.Endpoint == "" && raw.KubernetesHost != "" {
		config.Endpoint = kubernetesCollector
	}

	if config.LogsEndpoint == "" {
		config.LogsEndpoint = config.Endpoint
	}

	return config, nil
}

// Initialize sets up OpenTelemetry tracing, and logging when enabled, with the
// given configuration.
func Initialize(ctx context.Context, config *Config) error {
	if config == nil || !config.Enabled {
		slog.Info("OpenTelemetry is disabled")

		return nil
	}

	if config.Endpoint == "" {
		slog.Warn("OpenTelemetry endpoint not configured, telemetry will be disabled")

		return nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(config.ServiceName),
			semconv.ServiceVersionKey.String(config.ServiceVersion),
			semconv.DeploymentEnvironmentKey.String(config.Environment),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	traceExporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpointURL(config.Endpoint),
		otlptracehttp.WithTimeout(config.Timeout),
	)
	if err != nil {
		return fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	var (
		lp      *sdklog.LoggerProvider
		handler slog.Handler
	)

	if config.LogsEnabled {
		logExporter, err := otlploghttp.New(ctx,
			otlploghttp.WithEndpointURL(config.LogsEndpoint),
			otlploghttp.WithTimeout(config.Timeout),
		)
		if err != nil {
			return errors.Join(fmt.Errorf("failed to create OTLP log exporter: %w", err), tp.Shutdown(ctx))
		}

		lp = sdklog.NewLoggerProvider(
			sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)),
			sdklog.WithResource(res),
		)

		handler = otelslog.NewHandler(config.ServiceName, otelslog.WithLoggerProvider(lp))
	}

	providersMu.Lock()
	tracerProvider, loggerProvider, logHandler = tp, lp, handler
	providersMu.Unlock()

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	slog.Info("OpenTelemetry initialized",
		"service", config.ServiceName,
		"version", config.ServiceVersion,
		"environment", config.Environment,
		"endpoint", config.Endpoint,
		"logs", config.LogsEnabled,
	)

	return nil
}

// LogHandler returns the slog bridge into the OTLP logger provider, or nil
// when log export is not running. Pass it to logger.WithExtraHandler.
func LogHandler() slog.Handler {
	providersMu.Lock()
	defer providersMu.Unlock()

	return logHandler
}

// Enabled reports whether Initialize installed a tracer provider.
func Enabled() bool {
	providersMu.Lock()
	defer providersMu.Unlock()

	return tracerProvider != nil
}

// Shutdown flushes and stops the providers installed by Initialize.
func Shutdown(ctx context.Context) error {
	providersMu.Lock()
	tp, lp := tracerProvider, loggerProvider
	tracerProvider, loggerProvider, logHandler = nil, nil, nil
	providersMu.Unlock()

	if tp == nil && lp == nil {
		return nil
	}

	slog.Info("Shutting down OpenTelemetry providers")

	var errs []error

	if tp != nil {
		errs = append(errs, tp.Shutdown(ctx))
	}

	if lp != nil {
		errs = append(errs, lp.Shutdown(ctx))
	}

	return errors.Join(errs...)
}
