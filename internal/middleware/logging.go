// Package middleware provides the HTTP middleware chain of the snapshot service.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"
)

type errorCodeKey struct{}

// SetErrorCode attaches a machine-readable error code to ctx. Handlers call
// it before writing an error response so Logging can report it.
func SetErrorCode(ctx context.Context, code string) context.Context {
	return context.WithValue(ctx, errorCodeKey{}, code)
}

// GetErrorCode returns the error code set on ctx, or "".
func GetErrorCode(ctx context.Context) string {
	code, _ := ctx.Value(errorCodeKey{}).(string)
	return code
}

// NewLogger returns a JSON logger at info level for production and a text
// logger at debug level for everything else.
func NewLogger(env string) *slog.Logger {
	if env == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// Logging writes one "request completed" line per request.
//
// The line is skipped if the handler panics; put a recovery middleware
// outside this one if that matters.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r)
			logger.LogAttrs(r.Context(), levelFor(rec.status), "request completed",
				requestAttrs(r, rec, time.Since(start))...)
		})
	}
}

func levelFor(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

func requestAttrs(r *http.Request, rec *statusRecorder, elapsed time.Duration) []slog.Attr {
	attrs := make([]slog.Attr, 0, 9)
	attrs = append(attrs,
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", rec.status),
		slog.Int64("latency_ms", elapsed.Milliseconds()),
		slog.Int64("size", rec.written),
	)
	if id := GetRequestID(r.Context()); id != "" {
		attrs = append(attrs, slog.String("request_id", id))
	}
	if id := GetTraceID(r); id != "" {
		attrs = append(attrs, slog.String("trace_id", id), slog.String("span_id", GetSpanID(r)))
	}
	if rec.status >= 400 {
		if code := GetErrorCode(r.Context()); code != "" {
			attrs = append(attrs, slog.String("error_code", code))
		}
	}
	return attrs
}
