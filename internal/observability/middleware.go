package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"ai-call-orchestrator-service/internal/observability/metrics"
)

// RequestLogger returns HTTP middleware that logs each request and records
// request metrics. The metrics path label uses the route pattern, not the
// raw URL, so call IDs do not explode cardinality.
func RequestLogger(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			duration := time.Since(start)
			pattern := chi.RouteContext(r.Context()).RoutePattern()
			if pattern == "" {
				pattern = r.URL.Path
			}
			status := ww.Status()
			if status == 0 {
				// Upgraded connections (websockets) never write a status.
				status = http.StatusSwitchingProtocols
			}

			m.RecordHTTPRequest(r.Method, pattern, strconv.Itoa(status), duration.Seconds())
			log.Info().
				Str("method", r.Method).
				Str("path", pattern).
				Int("status", status).
				Dur("duration", duration).
				Msg("HTTP request")
		})
	}
}
