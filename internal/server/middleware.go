// Package server implements the salesbench HTTP API.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/ashita-ai/salesbench/internal/model"
	"github.com/ashita-ai/salesbench/internal/telemetry"
)

const (
	headerRequestID = "X-Request-ID"
	maxRequestIDLen = 128
	instrumentScope = "salesbench/http"
)

type requestIDKey struct{}

// RequestIDFromContext returns the id assigned by the request-id middleware,
// or "" outside a request.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// acceptableRequestID reports whether a client-supplied id can be echoed
// into logs and headers as is.
func acceptableRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		if id[i] < 0x21 || id[i] > 0x7e {
			return false
		}
	}
	return true
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if !acceptableRequestID(id) {
			id = uuid.NewString()
		}
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

// statusWriter remembers the status and body size of a response. SSE
// handlers reach the real writer through Flush and Unwrap.
type statusWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
	committed  bool
}

func newStatusWriter(w http.ResponseWriter) *statusWriter {
	return &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (w *statusWriter) WriteHeader(code int) {
	if w.committed {
		return
	}
	w.statusCode = code
	w.committed = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.committed = true
	n, err := w.ResponseWriter.Write(b)
	w.written += int64(n)
	return n, err
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func levelForStatus(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		began := time.Now()
		sw := newStatusWriter(w)
		next.ServeHTTP(sw, r)

		ctx := r.Context()
		fields := []any{
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", sw.statusCode),
			slog.Int64("bytes", sw.written),
			slog.Int64("duration_ms", time.Since(began).Milliseconds()),
			slog.String("request_id", RequestIDFromContext(ctx)),
		}
		if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
			fields = append(fields, slog.String("trace_id", sc.TraceID().String()))
		}
		logger.Log(ctx, levelForStatus(sw.statusCode), "http request", fields...)
	})
}

type httpInstruments struct {
	requests otelmetric.Int64Counter
	latency  otelmetric.Float64Histogram
}

// instruments are created on first use so they bind to whichever meter
// provider telemetry.Init installed.
var instruments = sync.OnceValue(func() httpInstruments {
	meter := telemetry.Meter(instrumentScope)
	var in httpInstruments
	in.requests, _ = meter.Int64Counter("http.server.request_count",
		otelmetric.WithDescription("HTTP requests served"))
	in.latency, _ = meter.Float64Histogram("http.server.duration",
		otelmetric.WithUnit("ms"), otelmetric.WithDescription("HTTP request latency"))
	return in
})

// tracingMiddleware continues any incoming W3C trace and records one server
// span plus request metrics. Metric and span names use the matched route
// pattern, never the raw path.
func tracingMiddleware(next http.Handler) http.Handler {
	tracer := otel.Tracer(instrumentScope)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parent := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := tracer.Start(parent, r.Method,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("url.path", r.URL.Path),
				attribute.String("salesbench.request_id", RequestIDFromContext(r.Context())),
			),
		)
		defer span.End()

		began := time.Now()
		sw := newStatusWriter(w)
		r = r.WithContext(ctx)
		next.ServeHTTP(sw, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		} else {
			span.SetName(route)
		}
		span.SetAttributes(
			attribute.String("http.route", route),
			attribute.Int("http.response.status_code", sw.statusCode),
		)
		if sw.statusCode >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(sw.statusCode))
		}

		in := instruments()
		labels := otelmetric.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", route),
			attribute.String("http.status_code", strconv.Itoa(sw.statusCode)),
		)
		if in.requests != nil {
			in.requests.Add(ctx, 1, labels)
		}
		if in.latency != nil {
			in.latency.Record(ctx, float64(time.Since(began).Microseconds())/1000, labels)
		}
	})
}

// recoveryMiddleware answers 500 when a handler panics. http.ErrAbortHandler
// keeps its meaning and is re-raised.
func recoveryMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			v := recover()
			switch v {
			case nil:
				return
			case http.ErrAbortHandler:
				panic(v)
			}
			logger.ErrorContext(r.Context(), "server: handler panic",
				"panic", fmt.Sprint(v),
				"method", r.Method,
				"path", r.URL.Path,
				"request_id", RequestIDFromContext(r.Context()),
				"stack", string(debug.Stack()),
			)
			writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "internal server error")
		}()
		next.ServeHTTP(w, r)
	})
}

func responseMeta(r *http.Request) model.ResponseMeta {
	return model.ResponseMeta{RequestID: RequestIDFromContext(r.Context()), Timestamp: time.Now().UTC()}
}

func encodeBody(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeJSON wraps data in the success envelope.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	encodeBody(w, status, model.APIResponse{Data: data, Meta: responseMeta(r)})
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeErrorDetails(w, r, status, code, message, nil)
}

// writeErrorDetails writes the error envelope; details carries field-level
// validation failures when there are any.
func writeErrorDetails(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	encodeBody(w, status, model.APIError{
		Error: model.ErrorDetail{Code: code, Message: message, Details: details},
		Meta:  responseMeta(r),
	})
}

// decodeJSON reads one JSON value from the body, rejecting unknown fields.
func decodeJSON(r *http.Request, target any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(target)
}
