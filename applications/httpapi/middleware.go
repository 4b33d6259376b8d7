package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/camdencbrown/relay/infrastructure/logging"
	"github.com/camdencbrown/relay/infrastructure/metrics"
	"github.com/google/uuid"
)

// corsConfig controls which origins may call the API from a browser. An
// empty AllowedOrigins disables CORS handling entirely.
type corsConfig struct {
	AllowedOrigins []string
}

// withCORS adds Access-Control-* headers and answers preflight OPTIONS
// requests, so a dashboard served from a different origin can call the API
// directly instead of proxying through a backend-for-frontend.
func withCORS(cfg corsConfig, next http.Handler) http.Handler {
	if len(cfg.AllowedOrigins) == 0 {
		return next
	}
	allowAll := false
	for _, o := range cfg.AllowedOrigins {
		if o == "*" {
			allowAll = true
			break
		}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowed := origin != "" && (allowAll || corsOriginAllowed(cfg.AllowedOrigins, origin))
		if allowed {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+authHeader+", X-Trace-Id")
			w.Header().Set("Access-Control-Max-Age", "3600")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func corsOriginAllowed(allowedOrigins []string, origin string) bool {
	for _, allowed := range allowedOrigins {
		if strings.TrimSpace(allowed) == origin {
			return true
		}
	}
	return false
}

// withRequestLogging assigns each request a trace id, stamps it on the
// context, and logs method/path/status/duration once the handler returns.
func withRequestLogging(logger *logging.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if logger == nil {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		traceID := r.Header.Get("X-Trace-Id")
		if traceID == "" {
			traceID = uuid.NewString()
		}
		ctx := logging.WithTraceID(r.Context(), traceID)
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r.WithContext(ctx))
		logger.LogRequest(ctx, r.Method, r.URL.Path, sw.status, time.Since(start))
	})
}

// withRecovery converts a panicking handler into a 500 response instead of
// crashing the server, logging the panic value.
func withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"status":"error","error":"internal error"}`))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(status int) {
	sw.status = status
	sw.ResponseWriter.WriteHeader(status)
}

// withMetrics records per-request Prometheus counters and histograms. It is a
// no-op when m is nil, so metrics collection stays optional.
func withMetrics(serviceName string, m *metrics.Metrics, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.IncrementInFlight()
		defer m.DecrementInFlight()

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		m.RecordHTTPRequest(serviceName, r.Method, r.URL.Path, strconv.Itoa(sw.status), time.Since(start))
	})
}
