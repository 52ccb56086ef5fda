//	@title			Omnistore API
//	@version		1.0
//	@description	Multi-backend file upload orchestrator with pluggable storage providers.
//
//	@host		localhost:8080
//	@BasePath	/api/v1
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT Bearer token. Format: **Bearer {token}**

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/omnistore/service/internal/auth"
	"github.com/omnistore/service/internal/config"
	"github.com/omnistore/service/internal/db"
	"github.com/omnistore/service/internal/file"
	"github.com/omnistore/service/internal/instance"
	appMiddleware "github.com/omnistore/service/internal/middleware"
	"github.com/omnistore/service/internal/progress"
	"github.com/omnistore/service/internal/provider"
	"github.com/omnistore/service/internal/provider/dood"
	"github.com/omnistore/service/internal/provider/s3"
	"github.com/omnistore/service/internal/stream"
	"github.com/omnistore/service/internal/template"
	"github.com/omnistore/service/internal/upload"
	"github.com/omnistore/service/internal/user"
	"github.com/omnistore/service/internal/vault"

	_ "github.com/omnistore/service/docs/swagger"
)

func main() {
	cfg := config.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg),
	}))
	slog.SetDefault(logger)

	pool, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		logger.Error("database migration failed", "error", err)
		os.Exit(1)
	}

	credVault, err := vault.New(cfg.EncryptionKey)
	if err != nil {
		logger.Error("vault init failed", "error", err)
		os.Exit(1)
	}

	// One capability per provider code; the registry is read-only after this.
	registry := provider.NewRegistry(
		s3.New(logger),
		dood.New(logger),
	)

	hub := progress.NewHub(logger)

	// Wire dependencies: repository → service → handler
	userRepo := user.NewRepository(pool)
	userSvc := user.NewService(userRepo)
	userHandler := user.NewHandler(userSvc)

	authSvc := auth.NewService(userSvc, cfg)
	authHandler := auth.NewHandler(authSvc)

	templateRepo := template.NewPostgresRepository(pool)
	templateSvc := template.NewService(templateRepo, registry)
	templateHandler := template.NewHandler(templateSvc)

	fileRepo := file.NewPostgresRepository(pool)
	fileSvc := file.NewService(fileRepo)
	fileHandler := file.NewHandler(fileSvc)

	instanceRepo := instance.NewPostgresRepository(pool)
	instanceSvc := instance.NewService(instanceRepo, templateRepo, registry, credVault, fileRepo, logger)
	instanceHandler := instance.NewHandler(instanceSvc)

	orchestrator := upload.NewOrchestrator(registry, instanceSvc, fileRepo, hub, logger)
	uploadHandler := upload.NewHandler(orchestrator, fileSvc, cfg.UploadTmpDir, cfg.MaxUploadBytes, logger)

	streamSvc := stream.NewService(fileRepo, instanceSvc, registry)
	streamHandler := stream.NewHandler(streamSvc, logger)

	progressHandler := progress.NewHandler(hub, logger)

	// Router
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(appMiddleware.Logger(logger))
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "Range"},
		ExposedHeaders: []string{"Content-Range", "Accept-Ranges", "Content-Length"},
		MaxAge:         300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Swagger UI — available at http://localhost:8080/swagger/
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		// Public auth endpoints
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
		})

		// Everything below requires a valid token
		r.Group(func(r chi.Router) {
			r.Use(appMiddleware.RequireAuth(cfg.JWTSecret))

			r.Get("/users/me", userHandler.GetMe)

			r.Route("/provider-templates", func(r chi.Router) {
				r.Get("/", templateHandler.List)
				r.Get("/available", templateHandler.Available)
				r.Post("/", templateHandler.Create)
				r.Get("/{id}", templateHandler.Get)
				r.Put("/{id}", templateHandler.Update)
				r.Delete("/{id}", templateHandler.Delete)
			})

			r.Route("/storage-providers", func(r chi.Router) {
				r.Get("/", instanceHandler.List)
				r.Post("/", instanceHandler.Create)
				r.Get("/{id}", instanceHandler.Get)
				r.Post("/{id}/test-connection", instanceHandler.TestConnection)
				r.Delete("/{id}", instanceHandler.Delete)
			})

			r.Post("/uploads/file", uploadHandler.Upload)

			r.Route("/files", func(r chi.Router) {
				r.Get("/folders", fileHandler.ListFolders)
				r.Get("/folders/{id}", fileHandler.FolderFiles)
				r.Get("/{id}", fileHandler.Get)
				r.Delete("/{id}", uploadHandler.Delete)
				r.Get("/{id}/stream", streamHandler.Stream)
			})

			r.Get("/ws", progressHandler.Serve)
		})
	})

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		// Streaming responses can outlive a short write timeout, so only
		// idle connections are bounded here.
		IdleTimeout: 60 * time.Second,
	}

	// Start server in goroutine; wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("server listening", "port", cfg.Port, "env", cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-quit
	logger.Info("shutting down gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

func logLevel(cfg *config.Config) slog.Level {
	if cfg.IsProduction() {
		return slog.LevelInfo
	}
	return slog.LevelDebug
}
