package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"clarivid/internal/adapters/ffmpeg"
	"clarivid/internal/adapters/gemini"
	"clarivid/internal/adapters/jsonstore"
	"clarivid/internal/adapters/localstorage"
	"clarivid/internal/adapters/manim"
	"clarivid/internal/adapters/miniostore"
	"clarivid/internal/adapters/postgres"
	"clarivid/internal/config"
	"clarivid/internal/core/ports"
	"clarivid/internal/httpapi"
	"clarivid/internal/limiter"
	"clarivid/internal/progress"
	"clarivid/internal/service"
)

func main() {
	// Load .env in dev only; production injects env vars through infra.
	if os.Getenv("APP_ENV") != "production" {
		godotenv.Load()
	}

	logger := log.New(os.Stdout, "", log.LstdFlags)

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Fatal("Invalid configuration: ", err)
	}

	// Initialize job store: Postgres in production, JSON files otherwise
	var store ports.JobStore
	if cfg.StorageBackend == "postgres" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("Failed to open DB: ", err)
		}
		defer db.Close()
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer pingCancel()
		if err := db.PingContext(pingCtx); err != nil {
			logger.Fatal("Database ping failed: ", err)
		}

		pgStore := postgres.NewStore(db)
		if err := pgStore.EnsureSchema(context.Background()); err != nil {
			logger.Fatal("Schema setup failed: ", err)
		}
		store = pgStore
		logger.Println("Using postgres job store")
	} else {
		js, err := jsonstore.NewStore(cfg.DataDir)
		if err != nil {
			logger.Fatal("Failed to init JSON store: ", err)
		}
		store = js
		logger.Println("Using JSON job store at", cfg.DataDir)
	}

	// Initialize workspace and artifact publishing
	workspace := localstorage.NewStorage(cfg.DataDir, cfg.BaseURL)

	var artifacts ports.ArtifactStore = workspace
	if cfg.ArtifactBackend == "minio" {
		mstore, err := miniostore.NewStore(context.Background(), miniostore.Options{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to init MinIO: ", err)
		}
		artifacts = mstore
		logger.Println("Publishing videos to MinIO bucket", cfg.MinIOBucket)
	}

	// Initialize pipeline services
	llm, err := gemini.NewClient(context.Background(), cfg.GeminiAPIKey, cfg.FastModel, cfg.QualityModel)
	if err != nil {
		logger.Fatal("Failed to init Gemini client: ", err)
	}
	defer llm.Close()

	hub := progress.NewHub()
	usage := limiter.NewMemoryLimiter(cfg.Pipeline.DailyJobLimit, cfg.Pipeline.ConcurrentJobLimit)

	splitter := service.NewSceneSplitter(llm, logger)
	generator := service.NewSceneCodeGenerator(llm, logger)
	executor := manim.NewExecutor(cfg.ManimBinary, hub, logger)
	loop := service.NewAttemptLoop(generator, executor, workspace, hub,
		cfg.Pipeline.MaxAttempts, cfg.Pipeline.RenderTimeout, logger)
	scheduler := service.NewRenderScheduler(loop, cfg.Pipeline.SceneConcurrency, hub, logger)
	stitcher := ffmpeg.NewStitcher(cfg.FFmpegBinary, logger)

	orchestrator := service.NewOrchestrator(
		splitter, scheduler, stitcher, workspace, artifacts, store, usage, hub, logger)

	// Setup router
	r := mux.NewRouter()

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	api := &httpapi.Handler{Jobs: orchestrator, Events: hub, Limiter: usage, Logger: logger}
	api.Register(r)

	// Serve locally stored videos; unused when MinIO serves them directly.
	r.PathPrefix("/videos/").Handler(
		http.StripPrefix("/videos/", http.FileServer(http.Dir(workspace.VideosDir()))),
	)

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{cfg.AllowedOrigins}),
		handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     cors(r),
		ReadTimeout: 10 * time.Second,
		// No write timeout: the SSE event stream stays open for the life of
		// a generation job.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown: finish in-flight requests on SIGTERM
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Printf("clarivid server running on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server error: ", err)
		}
	}()

	<-quit
	logger.Println("Shutdown signal received, draining requests...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Forced shutdown: ", err)
	}
	logger.Println("Server stopped cleanly")
}
