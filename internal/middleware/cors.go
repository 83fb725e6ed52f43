package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"journal-api/internal/cors"
	"journal-api/internal/util"
	"journal-api/pkg/logger"
)

// DecisionRecorder receives every CORS decision that is not a no-op
type DecisionRecorder interface {
	RecordCORSDecision(d cors.Decision)
}

// CORSMiddleware applies the configured CORS policies before routing
type CORSMiddleware struct {
	registry *cors.Registry
	log      logger.Logger
	metrics  DecisionRecorder
}

// NewCORSMiddleware creates a new CORS middleware. metrics may be nil.
func NewCORSMiddleware(registry *cors.Registry, log logger.Logger, metrics DecisionRecorder) *CORSMiddleware {
	return &CORSMiddleware{
		registry: registry,
		log:      log,
		metrics:  metrics,
	}
}

// CORS middleware handles Cross-Origin Resource Sharing
func (c *CORSMiddleware) CORS(next http.Handler) http.Handler {
	// If CORS is disabled, just pass through
	if !c.registry.Enabled() {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d := c.evaluate(r)
		if d.Outcome == cors.NoOp {
			next.ServeHTTP(w, r)
			return
		}

		d.Apply(w.Header())

		// Preflight requests never reach the application
		if d.Preflight {
			w.WriteHeader(preflightStatus(d))
			return
		}
		if answersOptions(r, d) {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		// A denied actual request is still served; without CORS headers
		// the browser withholds the response from the calling page.
		next.ServeHTTP(w, r)
	})
}

// GinCORS returns the same behaviour as a gin middleware
func (c *CORSMiddleware) GinCORS() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		d := c.evaluate(ctx.Request)
		if d.Outcome == cors.NoOp {
			ctx.Next()
			return
		}

		d.Apply(ctx.Writer.Header())

		if d.Preflight {
			ctx.AbortWithStatus(preflightStatus(d))
			return
		}
		if answersOptions(ctx.Request, d) {
			ctx.AbortWithStatus(http.StatusNoContent)
			return
		}
		ctx.Next()
	}
}

// answersOptions reports whether an OPTIONS request without
// Access-Control-Request-Method is answered here. Routes rarely declare
// OPTIONS, so an allowed origin would otherwise get a 405 from the router.
func answersOptions(r *http.Request, d cors.Decision) bool {
	return r.Method == http.MethodOptions && d.Outcome == cors.Allowed
}

func preflightStatus(d cors.Decision) int {
	if d.Outcome == cors.Allowed {
		return http.StatusNoContent
	}
	return http.StatusForbidden
}

// evaluate runs the registry and reports the decision to logs, metrics
// and the active span.
func (c *CORSMiddleware) evaluate(r *http.Request) cors.Decision {
	req := cors.RequestFromHTTP(r)
	d := c.registry.Evaluate(req)
	if d.Outcome == cors.NoOp {
		return d
	}

	fields := []logger.Field{
		logger.String("origin", req.Origin),
		logger.String("method", req.Method),
		logger.String("path", req.Path),
		logger.String("kind", d.Kind()),
	}
	if d.Outcome == cors.Allowed {
		c.log.Debug("CORS request allowed", append(fields, logger.String("pattern", d.Pattern))...)
	} else {
		c.log.Info("CORS request denied", append(fields,
			logger.String("reason", d.Reason),
			logger.String("client_ip", util.ClientIP(r)),
		)...)
	}

	if c.metrics != nil {
		c.metrics.RecordCORSDecision(d)
	}

	if span := trace.SpanFromContext(r.Context()); span.IsRecording() {
		span.SetAttributes(
			attribute.String("cors.outcome", d.Outcome.String()),
			attribute.String("cors.kind", d.Kind()),
			attribute.String("cors.origin", req.Origin),
		)
		if d.Reason != "" {
			span.SetAttributes(attribute.String("cors.reason", d.Reason))
		}
	}

	return d
}
