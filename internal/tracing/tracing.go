package tracing

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/maxmcd/nodehome/internal/logger"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
)

const service = "nodehome"

// EnvVar is the host:port of a jaeger agent. Tracing is off when unset.
const EnvVar = "JAEGER_TRACE"

func tracerProvider(hostAndPort string) (*tracesdk.TracerProvider, error) {
	host, port, found := cut(hostAndPort, ":")
	if !found || host == "" || port == "" {
		return nil, errors.Errorf("%s must be host:port, got %q", EnvVar, hostAndPort)
	}
	exporter, err := jaeger.New(jaeger.WithAgentEndpoint(
		jaeger.WithAgentHost(host),
		jaeger.WithAgentPort(port),
	))
	if err != nil {
		return nil, err
	}
	hostname, _ := os.Hostname()
	return tracesdk.NewTracerProvider(
		tracesdk.WithBatcher(exporter),
		tracesdk.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(service),
			attribute.String("host", hostname),
		)),
	), nil
}

func cut(s, sep string) (before, after string, ok bool) {
	if i := strings.LastIndex(s, sep); i >= 0 {
		return s[:i], s[i+len(sep):], true
	}
	return s, "", false
}

var tp *tracesdk.TracerProvider

func init() {
	hostAndPort, found := os.LookupEnv(EnvVar)
	if !found {
		tp = tracesdk.NewTracerProvider(tracesdk.WithSampler(tracesdk.NeverSample()))
		return
	}
	var err error
	if tp, err = tracerProvider(hostAndPort); err != nil {
		logger.Warnw("tracing disabled", "err", err)
		tp = tracesdk.NewTracerProvider(tracesdk.WithSampler(tracesdk.NeverSample()))
		return
	}
	otel.SetTracerProvider(tp)
}

func Tracer(name string) trace.Tracer {
	return tp.Tracer(name)
}

// Stop flushes any buffered spans.
func Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := tp.Shutdown(ctx); err != nil {
		logger.Warnw("tracer shutdown", "err", err)
	}
}
