package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"clarivid/internal/adapters/ffmpeg"
	"clarivid/internal/adapters/gemini"
	"clarivid/internal/adapters/jsonstore"
	"clarivid/internal/adapters/localstorage"
	"clarivid/internal/adapters/manim"
	"clarivid/internal/config"
	"clarivid/internal/core/domain"
	"clarivid/internal/limiter"
	"clarivid/internal/progress"
	"clarivid/internal/service"
)

func main() {
	// Load .env if it exists; env vars may also be set manually.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	conceptName := flag.String("concept", "", "Concept name to explain")
	description := flag.String("description", "", "Concept description")
	quality := flag.String("quality", "fast", "Model quality tier: fast or quality")
	dataDir := flag.String("data-dir", "./data", "Base directory for job data and videos")
	flag.Parse()

	if *conceptName == "" || *description == "" {
		fmt.Println("Usage: clarivid-cli -concept <name> -description <text> [-quality fast|quality] [-data-dir <path>]")
		fmt.Println("\nExample:")
		fmt.Println(`  clarivid-cli -concept "Fourier Transform" -description "Decomposing a signal into frequencies."`)
		os.Exit(1)
	}

	logger := log.New(os.Stdout, "", log.LstdFlags)

	cfg, err := config.FromEnv()
	if err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}

	logger.Println("=== clarivid CLI ===")
	logger.Printf("Concept: %s", *conceptName)
	logger.Printf("Data Directory: %s", *dataDir)

	store, err := jsonstore.NewStore(*dataDir)
	if err != nil {
		logger.Fatalf("Failed to init store: %v", err)
	}
	workspace := localstorage.NewStorage(*dataDir, cfg.BaseURL)

	llm, err := gemini.NewClient(context.Background(), cfg.GeminiAPIKey, cfg.FastModel, cfg.QualityModel)
	if err != nil {
		logger.Fatalf("Failed to init Gemini client: %v", err)
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
		splitter, scheduler, stitcher, workspace, workspace, store, usage, hub, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Println("\nReceived interrupt signal, cancelling...")
		cancel()
	}()

	job, err := orchestrator.RunJob(ctx, service.StartJobRequest{
		PaperID:            "cli",
		ConceptID:          "cli",
		ConceptName:        *conceptName,
		ConceptDescription: *description,
		UserID:             "cli",
		Tier:               domain.QualityTier(*quality),
	})
	if err != nil {
		logger.Fatalf("Job failed to start: %v", err)
	}

	fmt.Println("\n=== Job Summary ===")
	fmt.Printf("Job ID:       %s\n", job.ID)
	fmt.Printf("Status:       %s\n", job.Status)
	if job.Status == domain.StatusFailed {
		fmt.Printf("Error:        %s\n", job.Error)
	} else {
		fmt.Printf("Video:        %s\n", job.VideoURL)
	}
	fmt.Println("Scene guide:")
	for _, c := range service.BuildSceneGuide(job.Outcomes) {
		mark := "rendered"
		if !c.Rendered {
			mark = "skipped"
		}
		fmt.Printf("  %d. [%s] %s\n", c.Index+1, mark, c.Text)
	}
	if job.CompletedAt != nil {
		fmt.Printf("Completed At: %s\n", job.CompletedAt.Format("2006-01-02 15:04:05 UTC"))
	}
	if job.Status == domain.StatusFailed {
		os.Exit(1)
	}
}
