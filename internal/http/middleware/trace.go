package middleware

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(body []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(body)
	r.bytes += n
	return n, err
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Trace attaches a request scoped logger to the context and logs one line
// per request once the handler returns.
func Trace(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestLogger := logger.With().Str("request_id", GetRequestID(r.Context())).Logger()
			recorder := &statusRecorder{ResponseWriter: w}

			next.ServeHTTP(recorder, r.WithContext(requestLogger.WithContext(r.Context())))

			status := recorder.status
			if status == 0 {
				status = http.StatusOK
			}
			event := requestLogger.Info()
			switch {
			case status >= 500:
				event = requestLogger.Error()
			case status >= 400:
				event = requestLogger.Warn()
			}
			event.
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("bytes", recorder.bytes).
				Int64("duration_ms", time.Since(start).Milliseconds()).
				Msg("request")
		})
	}
}
