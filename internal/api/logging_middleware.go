package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// statusRecorder captures the status, size and error message of a response.
type statusRecorder struct {
	middleware.WrapResponseWriter
	errorMessage string
}

// SetErrorMessage is called by writeError and writeErrorResponse.
func (w *statusRecorder) SetErrorMessage(message string) {
	w.errorMessage = message
}

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

func requestAttrs(r *http.Request) []slog.Attr {
	route := ""
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		route = rctx.RoutePattern()
	}
	return []slog.Attr{
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("route", route),
		slog.String("query", r.URL.RawQuery),
		slog.String("remote_ip", r.RemoteAddr),
		slog.String("user_agent", r.UserAgent()),
	}
}

// requestLoggingMiddleware emits one "http request completed" record per
// request, at a level derived from the response status.
func requestLoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{WrapResponseWriter: middleware.NewWrapResponseWriter(w, r.ProtoMajor)}
			next.ServeHTTP(rec, r)

			status := rec.Status()
			if status == 0 {
				status = http.StatusOK
			}
			attrs := append(requestAttrs(r),
				slog.Int64("content_length", r.ContentLength),
				slog.Int("status", status),
				slog.Int("bytes", rec.BytesWritten()),
				slog.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
			if rec.errorMessage != "" {
				attrs = append(attrs, slog.String("error_message", rec.errorMessage))
			}
			logger.LogAttrs(r.Context(), levelForStatus(status), "http request completed", attrs...)
		})
	}
}

// recoveryLoggingMiddleware turns a handler panic into a 500 response and
// an error record carrying the stack. http.ErrAbortHandler is re-raised.
func recoveryLoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				recovered := recover()
				if recovered == nil {
					return
				}
				if recovered == http.ErrAbortHandler {
					panic(recovered)
				}
				attrs := append(requestAttrs(r),
					slog.String("panic", fmt.Sprint(recovered)),
					slog.String("stack", string(debug.Stack())),
				)
				logger.LogAttrs(r.Context(), slog.LevelError, "panic recovered", attrs...)

				// Headers already went out; nothing useful can be written.
				if sw, ok := w.(interface{ Status() int }); ok && sw.Status() != 0 {
					return
				}
				writeError(w, http.StatusInternalServerError, "internal server error")
			}()
			next.ServeHTTP(w, r)
		})
	}
}
