package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/dfsingest/dfsingest/internal/logger"
	"github.com/dfsingest/dfsingest/pkg/api/middleware"
	"github.com/dfsingest/dfsingest/pkg/ingest"
	"github.com/dfsingest/dfsingest/pkg/maintenance"
	"github.com/dfsingest/dfsingest/pkg/metrics"
)

// RouterDeps collects the collaborators NewRouter wires into routes.
type RouterDeps struct {
	Coordinator    *ingest.Coordinator
	Resolver       *middleware.Resolver
	RateLimiter    *middleware.RateLimiter
	Sweeper        *maintenance.Sweeper
	Metrics        *metrics.Collector
	AppVersion     string
	QueueBackend   string
	StorageBackend string
}

// NewRouter builds the chi router for the ingestion service. Routes:
//   - GET  /health, /version, /metrics          — unauthenticated
//   - POST /v1/uploads/init                      — authenticated
//   - PUT  /v1/uploads/{id}/chunks/{index}       — authenticated
//   - GET  /v1/uploads/{id}/missing-chunks       — authenticated
//   - POST /v1/uploads/{id}/complete             — authenticated
//   - GET  /v1/uploads/{id}/download             — authenticated
//   - POST /v1/admin/cleanup                     — authenticated, admin only
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger)
	r.Use(chimw.Recoverer)
	// No blanket request timeout: GET /v1/uploads/{id}/download streams
	// large files and must not be cut off by a fixed deadline. Each
	// component that can hang (queue dequeue, object store I/O) carries
	// its own timeout instead.

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		BeginResponse(w, r, deps.AppVersion)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		BeginResponse(w, r, deps.AppVersion)
		writeJSON(w, http.StatusOK, map[string]string{
			"app_name":        "dfsingest",
			"app_version":     deps.AppVersion,
			"queue_backend":   deps.QueueBackend,
			"storage_backend": deps.StorageBackend,
		})
	})

	metricsHandler := deps.Metrics.Handler()
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		BeginResponse(w, r, deps.AppVersion)
		metricsHandler.ServeHTTP(w, r)
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Authenticate(deps.Resolver, deps.AppVersion))
		r.Use(deps.RateLimiter.Middleware(deps.AppVersion))

		r.Post("/uploads/init", Wrap(deps.Coordinator.Init, deps.AppVersion))
		r.Put("/uploads/{id}/chunks/{index}", Wrap(deps.Coordinator.UploadChunk, deps.AppVersion))
		r.Get("/uploads/{id}/missing-chunks", Wrap(deps.Coordinator.MissingChunks, deps.AppVersion))
		r.Post("/uploads/{id}/complete", Wrap(deps.Coordinator.Complete, deps.AppVersion))
		r.Get("/uploads/{id}/download", Wrap(deps.Coordinator.Download, deps.AppVersion))

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireAdmin(deps.AppVersion))
			r.Post("/cleanup", Wrap(adminCleanup(deps.Sweeper), deps.AppVersion))
		})
	})

	return r
}

// adminCleanup runs the maintenance sweep synchronously and returns its
// stats.
func adminCleanup(sweeper *maintenance.Sweeper) HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		stats, err := sweeper.Run(r.Context())
		if err != nil {
			return err
		}
		return writeJSON(w, http.StatusOK, stats)
	}
}

// requestLogger logs request start and completion via internal/logger,
// the way the original control-plane router does.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := chimw.GetReqID(r.Context())

		logger.Debug("request started",
			logger.RequestID(requestID),
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logger.Info("request completed",
			logger.RequestID(requestID),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			logger.DurationMs(float64(time.Since(start).Microseconds())/1000.0),
		)
	})
}
