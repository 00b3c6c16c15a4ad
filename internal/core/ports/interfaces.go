package ports

import (
	"context"
	"errors"
	"time"

	"clarivid/internal/core/domain"
)

// ErrLimitExceeded is returned by a UsageLimiter when a job may not start.
var ErrLimitExceeded = errors.New("usage limit exceeded")

// GenerateRequest is one LLM call. Tier selects the backing model.
type GenerateRequest struct {
	Prompt string
	Tier   domain.QualityTier
}

// TextGenerator defines the contract for LLM-backed text generation.
// Implementations are stateless per call and non-deterministic across calls.
type TextGenerator interface {
	// Generate returns the model's text for the prompt, or a generation
	// error when the call itself fails (unreachable, empty response).
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// RenderRequest describes one out-of-process render of generated code.
// WorkDir must be scene-local: no two concurrent renders share a path.
type RenderRequest struct {
	JobID      string
	Scene      int // 1-based, used to tag streamed log lines
	Code       string
	WorkDir    string
	OutputName string
	Timeout    time.Duration
}

// RenderExecutor runs untrusted generated code in an isolated process.
type RenderExecutor interface {
	// Execute renders the code and returns the path of the produced media
	// artifact. Failures (crash, timeout, missing artifact) come back as an
	// error whose text is suitable as corrective feedback for the next
	// generation attempt; the caller's state is never corrupted.
	Execute(ctx context.Context, req RenderRequest) (string, error)
}

// Concatenator joins ordered media artifacts into one output file without
// re-encoding.
type Concatenator interface {
	Concat(ctx context.Context, orderedPaths []string, outputPath string) error
}

// Workspace provides scene-local and job-local working directories.
type Workspace interface {
	// InitJob creates the directory structure for a job.
	InitJob(ctx context.Context, jobID string) error

	// SceneDir returns (creating if needed) an isolated working directory
	// for one scene's render attempts.
	SceneDir(ctx context.Context, jobID string, index int) (string, error)

	// FinalVideoPath returns where the stitched video for a job is written.
	FinalVideoPath(jobID string) string
}

// ArtifactStore publishes a finished video and returns its client-facing URL.
type ArtifactStore interface {
	PublishVideo(ctx context.Context, jobID, localPath string) (string, error)
}

// JobStore persists jobs and finished video records.
type JobStore interface {
	// SaveJob persists a newly created job.
	SaveJob(ctx context.Context, job *domain.ConceptJob) error

	// UpdateJob persists the current snapshot of a job. Called on every
	// status transition.
	UpdateJob(ctx context.Context, job *domain.ConceptJob) error

	// GetJob returns the stored snapshot for a job ID.
	GetJob(ctx context.Context, jobID string) (*domain.ConceptJob, error)

	// SaveVideoRecord persists the final video reference and scene guide.
	SaveVideoRecord(ctx context.Context, rec *domain.VideoRecord) error
}

// UsageStats summarizes a user's quota consumption.
type UsageStats struct {
	DailyLimit      int `json:"daily_limit"`
	UsedToday       int `json:"used_today"`
	RemainingToday  int `json:"remaining_today"`
	Generating      int `json:"currently_generating"`
	ConcurrentLimit int `json:"max_concurrent"`
}

// UsageLimiter gates job starts per user. Denials surface synchronously to
// the caller; they never become async job failures.
type UsageLimiter interface {
	// CheckAndReserve consumes one daily unit and one concurrency slot, or
	// returns an error wrapping ErrLimitExceeded with the denial reason.
	CheckAndReserve(userID string) error

	// Release frees the concurrency slot on job completion or failure.
	Release(userID string)

	// Stats reports current quota consumption for a user.
	Stats(userID string) UsageStats
}

// ProgressSink is the append-only push channel a job writes progress and log
// events to. Writes from concurrent scene workers must interleave safely.
type ProgressSink interface {
	Publish(ev domain.Event)
}
