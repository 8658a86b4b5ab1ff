package clog

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

type chiOptions struct {
	filter func(r *http.Request) bool
}

// ChiOption configures SlogChiMiddleware.
type ChiOption func(*chiOptions)

// WithChiFilter suppresses the request log line for requests the filter
// rejects. Attribute accumulation still happens so handlers can log.
func WithChiFilter(filter func(r *http.Request) bool) ChiOption {
	return func(o *chiOptions) {
		o.filter = filter
	}
}

// SlogChiMiddleware attaches an attribute accumulator to each request context
// and emits one log line per request at a level derived from the status code.
func SlogChiMiddleware(opts ...ChiOption) func(http.Handler) http.Handler {
	var o chiOptions
	for _, opt := range opts {
		opt(&o)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			ctx := ContextWithAttrs(r.Context())
			AddAttr(ctx, "method", r.Method)
			AddAttr(ctx, "path", r.URL.Path)
			if reqID := middleware.GetReqID(ctx); reqID != "" {
				AddAttr(ctx, "request_id", reqID)
			}

			next.ServeHTTP(ww, r.WithContext(ctx))

			if o.filter != nil && !o.filter(r) {
				return
			}
			AddAttrs(ctx, map[string]any{
				"status":        ww.Status(),
				"bytes_written": ww.BytesWritten(),
				"duration":      time.Since(start),
			})
			msg := http.StatusText(ww.Status())
			switch HTTPStatusToLevel(ww.Status()) {
			case LevelError:
				slog.ErrorContext(ctx, msg)
			case LevelWarn:
				slog.WarnContext(ctx, msg)
			case LevelInfo:
				slog.InfoContext(ctx, msg)
			case LevelDebug:
				slog.DebugContext(ctx, msg)
			}
		})
	}
}
