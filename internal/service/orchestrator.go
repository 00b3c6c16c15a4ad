package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"clarivid/internal/core/domain"
	"clarivid/internal/core/ports"
)

// ErrNoScenesRendered is the job-level failure condition: every scene's
// attempt loop exhausted, so there is no footage to stitch.
var ErrNoScenesRendered = errors.New("no scenes rendered")

// StartJobRequest is a generate-video request accepted from the transport
// layer.
type StartJobRequest struct {
	PaperID            string
	ConceptID          string
	ConceptName        string
	ConceptDescription string
	UserID             string
	Tier               domain.QualityTier
}

// Orchestrator coordinates the video-generation workflow for one concept:
// split into scenes, render them in parallel with self-correction, stitch
// the surviving clips, persist the result. It owns all job status
// transitions.
type Orchestrator struct {
	splitter  *SceneSplitter
	scheduler *RenderScheduler
	stitcher  ports.Concatenator
	workspace ports.Workspace
	artifacts ports.ArtifactStore
	store     ports.JobStore
	limiter   ports.UsageLimiter
	sink      ports.ProgressSink
	logger    *log.Logger
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(
	splitter *SceneSplitter,
	scheduler *RenderScheduler,
	stitcher ports.Concatenator,
	workspace ports.Workspace,
	artifacts ports.ArtifactStore,
	store ports.JobStore,
	limiter ports.UsageLimiter,
	sink ports.ProgressSink,
	logger *log.Logger,
) *Orchestrator {
	return &Orchestrator{
		splitter:  splitter,
		scheduler: scheduler,
		stitcher:  stitcher,
		workspace: workspace,
		artifacts: artifacts,
		store:     store,
		limiter:   limiter,
		sink:      sink,
		logger:    logger,
	}
}

// StartJob checks the usage limiter, persists a queued job, and runs the
// pipeline in the background. The job is detached from the caller's context:
// a disconnecting client does not stop a running generation. Limiter denials
// are returned synchronously and never become async job failures.
func (o *Orchestrator) StartJob(ctx context.Context, req StartJobRequest) (*domain.ConceptJob, error) {
	job, err := o.createJob(ctx, req)
	if err != nil {
		return nil, err
	}
	// The pipeline owns the job struct for its lifetime; the caller gets a
	// snapshot and follows further progress through GetJob or the event
	// stream.
	snapshot := *job
	go o.run(context.Background(), job)
	return &snapshot, nil
}

// RunJob is the synchronous variant of StartJob, used by the CLI: it drives
// the job to a terminal status before returning.
func (o *Orchestrator) RunJob(ctx context.Context, req StartJobRequest) (*domain.ConceptJob, error) {
	job, err := o.createJob(ctx, req)
	if err != nil {
		return nil, err
	}
	o.run(ctx, job)
	return job, nil
}

// GetJob returns the persisted snapshot for a job ID.
func (o *Orchestrator) GetJob(ctx context.Context, jobID string) (*domain.ConceptJob, error) {
	return o.store.GetJob(ctx, jobID)
}

func (o *Orchestrator) createJob(ctx context.Context, req StartJobRequest) (*domain.ConceptJob, error) {
	if err := o.limiter.CheckAndReserve(req.UserID); err != nil {
		return nil, err
	}

	tier := req.Tier
	if tier == "" {
		tier = domain.TierFast
	}
	job := &domain.ConceptJob{
		ID:                 uuid.New().String(),
		PaperID:            req.PaperID,
		ConceptID:          req.ConceptID,
		ConceptName:        req.ConceptName,
		ConceptDescription: req.ConceptDescription,
		UserID:             req.UserID,
		Tier:               tier,
		Status:             domain.StatusQueued,
		CreatedAt:          time.Now().UTC(),
	}

	if err := o.store.SaveJob(ctx, job); err != nil {
		o.limiter.Release(req.UserID)
		return nil, fmt.Errorf("failed to persist job: %w", err)
	}
	o.logger.Printf("[JOB %s] Created for concept %q (user %s, tier %s)", job.ID, job.ConceptName, job.UserID, job.Tier)
	return job, nil
}

// run drives the job to a terminal status. The failure boundary is absolute:
// whatever goes wrong, the job ends in completed or failed, never stuck in a
// non-terminal status.
func (o *Orchestrator) run(ctx context.Context, job *domain.ConceptJob) {
	defer o.limiter.Release(job.UserID)
	defer func() {
		if r := recover(); r != nil {
			o.failJob(ctx, job, fmt.Errorf("pipeline panic: %v", r))
		}
	}()

	if err := o.workspace.InitJob(ctx, job.ID); err != nil {
		o.failJob(ctx, job, fmt.Errorf("failed to init job workspace: %w", err))
		return
	}

	// Stage 1: split the concept into scenes. Fail-fast, no retry.
	o.transition(ctx, job, domain.StatusSplitting)
	o.sink.Publish(domain.ProgressEvent(job.ID, "splitting", 0, 0))
	specs, err := o.splitter.Split(ctx, job)
	if err != nil {
		o.failJob(ctx, job, err)
		return
	}

	// Stage 2: render all scenes under the concurrency cap. Never errors;
	// every scene resolves to an outcome, success or skip.
	o.transition(ctx, job, domain.StatusRendering)
	o.sink.Publish(domain.ProgressEvent(job.ID, "rendering", 0, len(specs)))
	job.Outcomes = o.scheduler.RenderAll(ctx, job, specs)

	// Stage 3: stitch the surviving clips in scene order.
	o.transition(ctx, job, domain.StatusStitching)
	o.sink.Publish(domain.ProgressEvent(job.ID, "stitching", 0, 0))

	var clipPaths []string
	for _, outcome := range job.Outcomes {
		if outcome.Rendered {
			clipPaths = append(clipPaths, outcome.ArtifactPath)
		}
	}
	if len(clipPaths) == 0 {
		o.failJob(ctx, job, ErrNoScenesRendered)
		return
	}

	finalPath := o.workspace.FinalVideoPath(job.ID)
	if err := o.stitcher.Concat(ctx, clipPaths, finalPath); err != nil {
		o.failJob(ctx, job, fmt.Errorf("stitching failed: %w", err))
		return
	}

	videoURL, err := o.artifacts.PublishVideo(ctx, job.ID, finalPath)
	if err != nil {
		o.failJob(ctx, job, fmt.Errorf("failed to publish video: %w", err))
		return
	}

	now := time.Now().UTC()
	job.VideoURL = videoURL
	job.CompletedAt = &now
	job.Status = domain.StatusCompleted
	if err := o.store.UpdateJob(ctx, job); err != nil {
		o.logger.Printf("[JOB %s] WARNING: failed to persist completion: %v", job.ID, err)
	}
	if err := o.store.SaveVideoRecord(ctx, &domain.VideoRecord{
		JobID:     job.ID,
		PaperID:   job.PaperID,
		ConceptID: job.ConceptID,
		VideoURL:  videoURL,
		Captions:  BuildSceneGuide(job.Outcomes),
		CreatedAt: now,
	}); err != nil {
		o.logger.Printf("[JOB %s] WARNING: failed to persist video record: %v", job.ID, err)
	}

	o.sink.Publish(domain.LogEvent(job.ID, fmt.Sprintf("video ready: %s (%d/%d scenes)", videoURL, len(clipPaths), len(job.Outcomes))))
	o.logger.Printf("[JOB %s] Completed: %s", job.ID, videoURL)
}

// transition moves the job to a new status and persists the snapshot. A
// persistence error is logged but does not abort the pipeline; the in-memory
// job stays authoritative for its lifetime.
func (o *Orchestrator) transition(ctx context.Context, job *domain.ConceptJob, to domain.JobStatus) {
	if !domain.CanTransition(job.Status, to) {
		o.logger.Printf("[JOB %s] WARNING: illegal transition %s -> %s", job.ID, job.Status, to)
		return
	}
	job.Status = to
	if err := o.store.UpdateJob(ctx, job); err != nil {
		o.logger.Printf("[JOB %s] WARNING: failed to persist status %s: %v", job.ID, to, err)
	}
}

// failJob forces the terminal failed status with a human-readable error.
func (o *Orchestrator) failJob(ctx context.Context, job *domain.ConceptJob, cause error) {
	now := time.Now().UTC()
	job.Status = domain.StatusFailed
	job.Error = cause.Error()
	job.CompletedAt = &now
	if err := o.store.UpdateJob(ctx, job); err != nil {
		o.logger.Printf("[JOB %s] WARNING: failed to persist failure: %v", job.ID, err)
	}
	o.sink.Publish(domain.LogEvent(job.ID, fmt.Sprintf("job failed: %s", job.Error)))
	o.logger.Printf("[JOB %s] Failed: %s", job.ID, job.Error)
}
