package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

var (
	urlHitCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "motorent_url_hit_count",
			Help: "Number of times the given url was hit",
		},
		[]string{"method", "url", "status"},
	)
	urlLatency = prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:       "motorent_url_latency",
			Help:       "The latency quantiles for the given URL",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"method", "url"},
	)
)

func init() {
	prometheus.MustRegister(urlHitCount)
	prometheus.MustRegister(urlLatency)
}

// Metrics records hits and latency per route pattern, so /transaction/1 and /transaction/2 share a series.
func Metrics(next http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			ctx := chi.RouteContext(r.Context())
			if ctx == nil {
				return
			}
			pattern := routePattern(ctx)
			if pattern == "" {
				return
			}

			dur := float64(time.Since(start).Milliseconds())
			urlLatency.WithLabelValues(r.Method, pattern).Observe(dur)
			urlHitCount.WithLabelValues(r.Method, pattern, http.StatusText(ww.Status())).Inc()
		}()

		next.ServeHTTP(ww, r)
	}
	return http.HandlerFunc(fn)
}

func routePattern(ctx *chi.Context) string {
	pattern := strings.Join(ctx.RoutePatterns, "")
	for strings.Contains(pattern, "/*/") {
		pattern = strings.Replace(pattern, "/*/", "/", -1)
	}
	return pattern
}

func Logging(next http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			log.Trace().
				Str("requestId", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("host", r.Host).
				Str("uri", r.RequestURI).
				Str("proto", r.Proto).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).Send()
		}()
		next.ServeHTTP(ww, r)
	}

	return http.HandlerFunc(fn)
}
