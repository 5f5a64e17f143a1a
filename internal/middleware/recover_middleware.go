package middleware

import (
	"net/http"

	"tool_gateway/internal/utils"
)

// RecoverMiddleware converts a handler panic into a 500 response. Panics
// raised after the response started are only logged.
func RecoverMiddleware(logger *utils.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tw := &trackingWriter{ResponseWriter: w}
			defer func() {
				p := recover()
				if p == nil {
					return
				}
				if p == http.ErrAbortHandler {
					panic(p)
				}
				logger.Error("Handler panicked", "method", r.Method, "path", r.URL.Path, "panic", p)
				if !tw.wroteHeader {
					utils.RespondWithError(w, http.StatusInternalServerError, "internal_error", "internal error", "")
				}
			}()
			next.ServeHTTP(tw, r)
		})
	}
}

// trackingWriter records whether the status line went out
type trackingWriter struct {
	http.ResponseWriter
	wroteHeader bool
}

func (t *trackingWriter) WriteHeader(code int) {
	t.wroteHeader = true
	t.ResponseWriter.WriteHeader(code)
}

func (t *trackingWriter) Write(b []byte) (int, error) {
	t.wroteHeader = true
	return t.ResponseWriter.Write(b)
}

// Flush passes through so SSE handlers keep working behind the middleware
func (t *trackingWriter) Flush() {
	if f, ok := t.ResponseWriter.(http.Flusher); ok {
		t.wroteHeader = true
		f.Flush()
	}
}

func (t *trackingWriter) Unwrap() http.ResponseWriter {
	return t.ResponseWriter
}
