package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/irfndi/oracle-alpha-go/internal/telemetry"
)

var probePaths = map[string]bool{
	"/health":  true,
	"/ready":   true,
	"/live":    true,
	"/metrics": true,
}

// TelemetryMiddleware traces every request except probes and scrapes, which
// get ProbeTelemetryMiddleware instead.
func TelemetryMiddleware(serviceName string) gin.HandlerFunc {
	return otelgin.Middleware(serviceName,
		otelgin.WithFilter(func(r *http.Request) bool {
			return !probePaths[r.URL.Path]
		}),
	)
}

// RecordError records an error on the current span
func RecordError(c *gin.Context, err error, description string) {
	span := trace.SpanFromContext(c.Request.Context())
	if span.IsRecording() {
		span.RecordError(err)
		span.SetStatus(codes.Error, description)
	}
}

// AddSpanAttribute adds an attribute to the current span
func AddSpanAttribute(c *gin.Context, key string, value interface{}) {
	span := trace.SpanFromContext(c.Request.Context())
	if !span.IsRecording() {
		return
	}
	switch v := value.(type) {
	case string:
		span.SetAttributes(attribute.String(key, v))
	case int:
		span.SetAttributes(attribute.Int(key, v))
	case int64:
		span.SetAttributes(attribute.Int64(key, v))
	case float64:
		span.SetAttributes(attribute.Float64(key, v))
	case bool:
		span.SetAttributes(attribute.Bool(key, v))
	default:
		span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", value)))
	}
}

// ProbeTelemetryMiddleware gives /health, /ready and /live their own
// server spans. A 503 from a probe means a backing service is down while the
// process still answers, so it is reported as degraded rather than down.
func ProbeTelemetryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := telemetry.StartSpan(c.Request.Context(), telemetry.GetHTTPTracer(),
			"probe "+c.Request.URL.Path,
			telemetry.StringAttribute("probe.path", c.Request.URL.Path),
		)
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		start := time.Now()
		c.Next()

		code := c.Writer.Status()
		state := probeState(code)
		telemetry.SetSpanAttributes(span,
			telemetry.Int64Attribute("http.status_code", int64(code)),
			telemetry.Int64Attribute("probe.duration_ms", time.Since(start).Milliseconds()),
			telemetry.StringAttribute("probe.state", state),
		)
		if state == "up" {
			telemetry.SetSpanStatus(span, codes.Ok, "")
			return
		}
		telemetry.SetSpanStatus(span, codes.Error, fmt.Sprintf("probe %s: HTTP %d", state, code))
	}
}

func probeState(code int) string {
	switch {
	case code < 400:
		return "up"
	case code == http.StatusServiceUnavailable:
		return "degraded"
	default:
		return "down"
	}
}
