package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config carries the server's environment-driven settings.
type Config struct {
	Port           string
	AllowedOrigins string
	BaseURL        string

	// Storage backend: "postgres" uses DatabaseURL, anything else stores
	// job snapshots as JSON files under DataDir.
	StorageBackend string
	DatabaseURL    string
	DataDir        string

	GeminiAPIKey string
	FastModel    string
	QualityModel string

	ManimBinary  string
	FFmpegBinary string

	// Artifact backend: "minio" uploads finished videos, "local" serves
	// them from DataDir.
	ArtifactBackend string
	MinIOEndpoint   string
	MinIOAccessKey  string
	MinIOSecretKey  string
	MinIOBucket     string
	MinIOUseSSL     bool

	PolicyFile string
	Pipeline   Pipeline
}

// Pipeline holds the policy constants of the generation pipeline. The values
// are deliberately configuration, not code: the defaults match observed
// practice but nothing depends on these exact numbers.
type Pipeline struct {
	MaxAttempts        int           `yaml:"max_attempts"`
	SceneConcurrency   int           `yaml:"scene_concurrency"`
	RenderTimeout      time.Duration `yaml:"-"`
	RenderTimeoutSecs  int           `yaml:"render_timeout_seconds"`
	DailyJobLimit      int           `yaml:"daily_job_limit"`
	ConcurrentJobLimit int           `yaml:"concurrent_job_limit"`
}

// FromEnv builds a Config from environment variables, applying defaults for
// anything unset. If CLARIVID_POLICY_FILE points at a YAML file, its values
// override the pipeline policy.
func FromEnv() (Config, error) {
	cfg := Config{
		Port:           getenv("PORT", "8080"),
		AllowedOrigins: getenv("ALLOWED_ORIGINS", "http://localhost:5173"),
		BaseURL:        getenv("BASE_URL", "http://localhost:8080"),

		StorageBackend: getenv("STORAGE_BACKEND", "json"),
		DatabaseURL:    getenv("DATABASE_URL", ""),
		DataDir:        getenv("DATA_DIR", "./data"),

		GeminiAPIKey: getenv("GEMINI_API_KEY", ""),
		FastModel:    getenv("GEMINI_FAST_MODEL", "gemini-1.5-flash"),
		QualityModel: getenv("GEMINI_QUALITY_MODEL", "gemini-1.5-pro"),

		ManimBinary:  getenv("MANIM_BINARY", "manim"),
		FFmpegBinary: getenv("FFMPEG_BINARY", "ffmpeg"),

		ArtifactBackend: getenv("ARTIFACT_BACKEND", "local"),
		MinIOEndpoint:   getenv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:  getenv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:  getenv("MINIO_SECRET_KEY", ""),
		MinIOBucket:     getenv("MINIO_BUCKET", "clarivid-videos"),
		MinIOUseSSL:     getenvBool("MINIO_USE_SSL", false),

		PolicyFile: getenv("CLARIVID_POLICY_FILE", ""),
		Pipeline: Pipeline{
			MaxAttempts:        getenvInt("MAX_RENDER_ATTEMPTS", 3),
			SceneConcurrency:   getenvInt("SCENE_CONCURRENCY", 3),
			RenderTimeoutSecs:  getenvInt("RENDER_TIMEOUT_SECONDS", 240),
			DailyJobLimit:      getenvInt("DAILY_JOB_LIMIT", 5),
			ConcurrentJobLimit: getenvInt("CONCURRENT_JOB_LIMIT", 3),
		},
	}

	if cfg.PolicyFile != "" {
		if err := loadPolicy(cfg.PolicyFile, &cfg.Pipeline); err != nil {
			return cfg, fmt.Errorf("load policy file %s: %w", cfg.PolicyFile, err)
		}
	}
	cfg.Pipeline.RenderTimeout = time.Duration(cfg.Pipeline.RenderTimeoutSecs) * time.Second

	if cfg.StorageBackend == "postgres" && cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required when STORAGE_BACKEND=postgres")
	}
	return cfg, nil
}

// loadPolicy overlays non-zero values from a YAML policy file onto p.
func loadPolicy(path string, p *Pipeline) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var file Pipeline
	if err := yaml.Unmarshal(data, &file); err != nil {
		return err
	}
	if file.MaxAttempts > 0 {
		p.MaxAttempts = file.MaxAttempts
	}
	if file.SceneConcurrency > 0 {
		p.SceneConcurrency = file.SceneConcurrency
	}
	if file.RenderTimeoutSecs > 0 {
		p.RenderTimeoutSecs = file.RenderTimeoutSecs
	}
	if file.DailyJobLimit > 0 {
		p.DailyJobLimit = file.DailyJobLimit
	}
	if file.ConcurrentJobLimit > 0 {
		p.ConcurrentJobLimit = file.ConcurrentJobLimit
	}
	return nil
}

func getenv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	switch v {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return fallback
	}
}
