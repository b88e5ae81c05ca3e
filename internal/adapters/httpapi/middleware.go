package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// statusClientClosed is logged when the caller hung up before a response
// was written.
const statusClientClosed = 499

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(p)
	r.bytes += n
	return n, err
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// observe wraps one request in a server span and logs it once it completes.
// Only the route template is recorded, never the session id.
func (h *Router) observe(w http.ResponseWriter, r *http.Request, rt route, next http.HandlerFunc) {
	started := time.Now()

	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := h.tracer.Start(ctx, r.Method+" "+rt.name,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("http.request.method", r.Method),
			attribute.String("http.route", rt.name),
		),
	)
	defer span.End()

	rec := &statusRecorder{ResponseWriter: w}
	next(rec, r.WithContext(ctx))

	status := rec.status
	switch {
	case status != 0:
	case r.Context().Err() != nil:
		status = statusClientClosed
		span.AddEvent("client disconnected")
	default:
		status = http.StatusOK
	}
	span.SetAttributes(attribute.Int("http.response.status_code", status))
	if status >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, http.StatusText(status))
	}

	level := slog.LevelInfo
	if rt.kind == routeHealth || r.Method == http.MethodOptions {
		level = slog.LevelDebug
	}
	h.logger.Log(ctx, level, "http request",
		"method", r.Method,
		"route", rt.name,
		"status", status,
		"bytes", rec.bytes,
		"duration", time.Since(started),
	)
}
