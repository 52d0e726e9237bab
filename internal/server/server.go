package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fitpick/apiserver/config"
	"github.com/fitpick/apiserver/internal/archive"
	"github.com/fitpick/apiserver/internal/db"
	"github.com/fitpick/apiserver/internal/events"
	"github.com/fitpick/apiserver/internal/handlers"
	"github.com/fitpick/apiserver/internal/provider"
	"github.com/fitpick/apiserver/internal/services"
	"github.com/fitpick/apiserver/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	publisher  events.Publisher
}

// New constructs a Server with basic middleware and defaults. Startup
// fails closed when the signing secret or provider credential is absent.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	userRepo := store.NewUserRepository(dbConn)
	outfitRepo := store.NewOutfitRepository(dbConn)

	userService := services.NewUserService(userRepo)

	jwtSecret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if jwtSecret == "" {
		_ = dbConn.Close()
		return nil, errors.New("JWT_SECRET is required")
	}

	generator, err := provider.NewOpenAIClient(cfg.OpenAI)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	publisher, err := events.New(ctx, cfg.Events)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	objectStore, err := archive.New(ctx, cfg.Archive)
	if err != nil {
		closeAll(dbConn, publisher)
		return nil, err
	}
	if objectStore != nil {
		if err := objectStore.EnsureBucket(ctx); err != nil {
			closeAll(dbConn, publisher)
			return nil, err
		}
	}

	outfitService := services.NewOutfitService(outfitRepo, generator, objectStore, publisher)

	authMiddleware := handlers.RequireAuth(userService, jwtSecret)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, userService, jwtSecret)
	})
	router.Route("/outfits", func(r chi.Router) {
		handlers.OutfitRouter(r, outfitService, authMiddleware)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		publisher:  publisher,
	}, nil
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
func (s *Server) Shutdown() error {
	closeAll(s.db, s.publisher)
	return s.httpServer.Close()
}

func closeAll(dbConn *sql.DB, publisher events.Publisher) {
	if dbConn != nil {
		_ = dbConn.Close()
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			log.Printf("close publisher: %v", err)
		}
	}
}
