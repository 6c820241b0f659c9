package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/vitapersonal/authserver/config"
	"github.com/vitapersonal/authserver/internal/db"
	"github.com/vitapersonal/authserver/internal/geo"
	"github.com/vitapersonal/authserver/internal/handlers"
	"github.com/vitapersonal/authserver/internal/jobs"
	"github.com/vitapersonal/authserver/internal/services"
	"github.com/vitapersonal/authserver/internal/storage"
	"github.com/vitapersonal/authserver/internal/store"
)

// Server wraps the HTTP server, the router, and the shared resources
// behind the handlers.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	logger     *zap.Logger
	queue      jobs.Queue
	resolver   geo.Resolver
}

// New constructs a Server with the full handler stack wired up.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}

	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	userRepo := store.NewUserRepository(dbConn)
	resetRepo := store.NewResetRepository(dbConn)
	profileRepo := store.NewProfileRepository(dbConn)
	companyRepo := store.NewCompanyRepository(dbConn)

	// Geo resolution is best-effort. A missing database disables
	// country/timezone derivation but never blocks startup.
	var resolver geo.Resolver
	if cfg.Geo.DatabasePath != "" {
		resolver, err = geo.NewMaxMindResolver(cfg.Geo.DatabasePath)
		if err != nil {
			logger.Warn("geo database unavailable, locale derivation disabled",
				zap.String("path", cfg.Geo.DatabasePath), zap.Error(err))
			resolver = nil
		}
	}

	userService := services.NewUserService(userRepo)
	resetService := services.NewResetService(resetRepo)
	profileService := services.NewProfileService(profileRepo)
	companyService := services.NewCompanyService(companyRepo)
	activityService := services.NewActivityService(userRepo, resolver, logger)

	queue, err := newQueue(ctx, cfg)
	if err != nil {
		// Side jobs degrade gracefully: the dispatcher drops
		// jobs when no broker is reachable.
		logger.Warn("queue unavailable, side jobs disabled", zap.Error(err))
		queue = nil
	}
	dispatcher := jobs.NewDispatcher(queue, logger)

	images, err := newImageStore(ctx, cfg)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}
	if err := images.EnsureBucket(ctx); err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	tokenTTL := time.Duration(cfg.Auth.TokenTTLHours) * time.Hour
	auth := handlers.NewAuthMiddleware(userService, activityService, cfg.Auth.JWTSecret, logger)

	authHandler := handlers.NewAuthHandler(handlers.AuthHandlerConfig{
		Users:             userService,
		Resets:            resetService,
		Dispatcher:        dispatcher,
		JWTSecret:         cfg.Auth.JWTSecret,
		TokenTTL:          tokenTTL,
		MinPasswordLength: cfg.Auth.MinPasswordLength,
		External:          cfg.External,
		SenderName:        cfg.SMTP.FromName,
	})
	imageHandler := handlers.NewImageHandler(userService, images, dispatcher, cfg.Uploads, cfg.External)
	userHandler := handlers.NewUserHandler(handlers.UserHandlerConfig{
		Users:             userService,
		Activity:          activityService,
		Images:            imageHandler,
		JWTSecret:         cfg.Auth.JWTSecret,
		TokenTTL:          tokenTTL,
		MinPasswordLength: cfg.Auth.MinPasswordLength,
		External:          cfg.External,
	})
	profileHandler := handlers.NewProfileHandler(profileService)
	companyHandler := handlers.NewCompanyHandler(companyService)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	// Every request passes through Resolve: it attaches the identity
	// (anonymous if need be) and runs the activity bookkeeping.
	router.Use(auth.Resolve)

	router.Get("/", handlers.APIRoot)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, authHandler)
	})
	router.Route("/users", func(r chi.Router) {
		handlers.UsersRouter(r, userHandler, auth)
		handlers.ProfilesRouter(r, profileHandler, auth)
	})
	router.Route("/profiles", func(r chi.Router) {
		handlers.StandaloneProfilesRouter(r, profileHandler, auth)
	})
	router.Route("/companies", func(r chi.Router) {
		handlers.CompaniesRouter(r, companyHandler, auth)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		logger:     logger,
		queue:      queue,
		resolver:   resolver,
	}, nil
}

func newQueue(ctx context.Context, cfg config.Config) (jobs.Queue, error) {
	switch cfg.Queue.Backend {
	case "pubsub":
		return jobs.NewPubSubQueue(ctx, cfg.PubSub)
	case "rabbitmq":
		return jobs.NewRabbitMQQueue(cfg.RabbitMQ)
	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.Queue.Backend)
	}
}

func newImageStore(ctx context.Context, cfg config.Config) (*storage.ImageStore, error) {
	switch cfg.Storage.Backend {
	case "gcs":
		client, err := storage.NewGCSClient(ctx, cfg.GCS)
		if err != nil {
			return nil, err
		}
		return storage.NewImageStore(client), nil
	case "minio":
		client, err := storage.NewMinioClient(cfg.Minio)
		if err != nil {
			return nil, err
		}
		return storage.NewImageStore(client), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown attempts a graceful shutdown.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.queue != nil {
		_ = s.queue.Close()
	}
	if s.resolver != nil {
		_ = s.resolver.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	_ = s.logger.Sync()
	return err
}
