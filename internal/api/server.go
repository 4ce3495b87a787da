package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"hlsfarm/internal/catalog"
	"hlsfarm/internal/config"
	"hlsfarm/internal/logging"
)

// Presigner issues direct-upload URLs for the upload bucket.
type Presigner interface {
	PresignPut(ctx context.Context, bucket, key string, expiry time.Duration) (string, error)
}

// Server exposes the catalog and the direct-upload endpoint over HTTP.
type Server struct {
	cfg       *config.Config
	log       *slog.Logger
	catalog   *catalog.Store
	presigner Presigner
	router    chi.Router
}

// New wires the HTTP surface. Route registration happens here; listening
// is deferred to Run.
func New(cfg *config.Config, log *slog.Logger, store *catalog.Store, presigner Presigner) *Server {
	s := &Server{
		cfg:       cfg,
		log:       log.With(logging.String(logging.FieldComponent, "api")),
		catalog:   store,
		presigner: presigner,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.S3.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/videos", s.handleListVideos)
		r.Get("/jobs", s.handleListJobs)
		r.Get("/workers", s.handleListWorkers)
		r.Post("/video/upload", s.handleCreateUpload)
	})
	s.router = r
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx is canceled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.cfg.API.Bind,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("api listening", logging.String("bind", s.cfg.API.Bind))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		s.log.Info("api stopped")
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
