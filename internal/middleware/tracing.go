package middleware

import (
	"context"
	"fmt"
	"net/http"

	"journal-api/internal/config"
	"journal-api/internal/cors"
	"journal-api/pkg/logger"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.16.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "journal-api"

// TracingMiddleware opens a server span per request. The CORS middleware
// further down the chain annotates that span with its decision.
type TracingMiddleware struct {
	config *config.TracingConfig
	log    logger.Logger
	tracer trace.Tracer
	tp     *sdktrace.TracerProvider
}

// NewTracingMiddleware creates a tracing middleware exporting to Jaeger.
// An exporter failure is logged and leaves tracing off.
func NewTracingMiddleware(cfg *config.TracingConfig, log logger.Logger) *TracingMiddleware {
	if !cfg.Enabled {
		return &TracingMiddleware{config: cfg, log: log}
	}

	tp, err := newJaegerProvider(cfg)
	if err != nil {
		log.Error("Failed to initialize tracing", logger.Error(err))
		return &TracingMiddleware{config: cfg, log: log}
	}

	// Register globally so outgoing clients pick up the same provider
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	log.Info("Tracing initialized",
		logger.String("provider", cfg.Provider),
		logger.String("endpoint", cfg.Endpoint),
		logger.String("service", cfg.ServiceName),
		logger.Any("sample_rate", cfg.SampleRate),
	)

	return NewTracingMiddlewareWithProvider(cfg, log, tp)
}

// NewTracingMiddlewareWithProvider uses an already configured provider
func NewTracingMiddlewareWithProvider(cfg *config.TracingConfig, log logger.Logger, tp *sdktrace.TracerProvider) *TracingMiddleware {
	tm := &TracingMiddleware{config: cfg, log: log}
	if cfg.Enabled && tp != nil {
		tm.tp = tp
		tm.tracer = tp.Tracer(tracerName)
	}
	return tm
}

func newJaegerProvider(cfg *config.TracingConfig) (*sdktrace.TracerProvider, error) {
	if cfg.Provider != "" && cfg.Provider != "jaeger" {
		return nil, fmt.Errorf("unsupported tracing provider %q", cfg.Provider)
	}

	exp, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(cfg.Endpoint)))
	if err != nil {
		return nil, fmt.Errorf("failed to create jaeger exporter: %w", err)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(cfg.ServiceName),
		)),
		// Honour the caller's sampling decision, ratio-sample new traces
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))),
	), nil
}

// Tracing middleware adds a server span to every request
func (t *TracingMiddleware) Tracing(next http.Handler) http.Handler {
	if t.tracer == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Continue the browser's or gateway's trace if it sent one
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		ctx, span := t.tracer.Start(ctx, r.Method+" "+r.URL.Path, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		req := cors.RequestFromHTTP(r)
		span.SetAttributes(
			semconv.HTTPMethodKey.String(r.Method),
			semconv.HTTPTargetKey.String(r.URL.RequestURI()),
			semconv.HTTPUserAgentKey.String(r.UserAgent()),
			attribute.String("http.host", r.Host),
			attribute.Bool("cors.preflight", req.IsPreflight()),
		)
		if req.Origin != "" {
			span.SetAttributes(attribute.String("http.origin", req.Origin))
		}

		recorder := &responseRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}
		next.ServeHTTP(recorder, r.WithContext(ctx))

		span.SetAttributes(semconv.HTTPStatusCodeKey.Int(recorder.statusCode))
		if recorder.statusCode >= http.StatusInternalServerError {
			span.SetAttributes(attribute.Bool("error", true))
			span.SetStatus(codes.Error, http.StatusText(recorder.statusCode))
		}
	})
}

// Shutdown flushes pending spans and stops the provider
func (t *TracingMiddleware) Shutdown(ctx context.Context) error {
	if t.tp == nil {
		return nil
	}
	return t.tp.Shutdown(ctx)
}
