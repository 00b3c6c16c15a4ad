package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"clarivid/internal/core/domain"
	"clarivid/internal/core/ports"
)

// AttemptLoop is the self-correcting generate-execute-retry cycle for a
// single scene. It is the unit of isolation: whatever happens inside, it
// always resolves to a SceneOutcome, success or skip, never an error.
type AttemptLoop struct {
	generator     *SceneCodeGenerator
	executor      ports.RenderExecutor
	workspace     ports.Workspace
	sink          ports.ProgressSink
	maxAttempts   int
	renderTimeout time.Duration
	logger        *log.Logger
}

// NewAttemptLoop creates an AttemptLoop with the given retry budget and
// per-render timeout.
func NewAttemptLoop(
	generator *SceneCodeGenerator,
	executor ports.RenderExecutor,
	workspace ports.Workspace,
	sink ports.ProgressSink,
	maxAttempts int,
	renderTimeout time.Duration,
	logger *log.Logger,
) *AttemptLoop {
	return &AttemptLoop{
		generator:     generator,
		executor:      executor,
		workspace:     workspace,
		sink:          sink,
		maxAttempts:   maxAttempts,
		renderTimeout: renderTimeout,
		logger:        logger,
	}
}

// Run drives one scene to a terminal outcome. On each retry the previous
// attempt's code and error text are fed back to the generator. A failed LLM
// call consumes one attempt just like a failed render, keeping the retry
// budget uniform.
func (l *AttemptLoop) Run(ctx context.Context, job *domain.ConceptJob, spec domain.SceneSpec) domain.SceneOutcome {
	scene := spec.Index + 1
	caption := captionFor(spec)

	workDir, err := l.workspace.SceneDir(ctx, job.ID, spec.Index)
	if err != nil {
		l.logger.Printf("[JOB %s SCENE %d] Cannot create work dir: %v", job.ID, scene, err)
		l.sink.Publish(domain.SceneLogEvent(job.ID, scene, fmt.Sprintf("scene skipped: %v", err)))
		return domain.SceneOutcome{Index: spec.Index, Rendered: false, Caption: caption}
	}

	var prev *domain.RenderAttempt
	for attempt := 1; attempt <= l.maxAttempts; attempt++ {
		l.sink.Publish(domain.SceneLogEvent(job.ID, scene,
			fmt.Sprintf("attempt %d/%d", attempt, l.maxAttempts)))

		code, genErr := l.generator.Generate(ctx, job.Tier, spec, prev)
		if genErr != nil {
			// Generation-level failure: no code to run, but the attempt
			// still counts. Feedback context is left as it was.
			l.logger.Printf("[JOB %s SCENE %d] Attempt %d generation failed: %v", job.ID, scene, attempt, genErr)
			l.sink.Publish(domain.SceneLogEvent(job.ID, scene, genErr.Error()))
			continue
		}

		start := time.Now()
		artifact, execErr := l.executor.Execute(ctx, ports.RenderRequest{
			JobID:      job.ID,
			Scene:      scene,
			Code:       code,
			WorkDir:    workDir,
			OutputName: fmt.Sprintf("scene_%d.mp4", spec.Index),
			Timeout:    l.renderTimeout,
		})
		elapsed := time.Since(start)

		if execErr == nil {
			l.logger.Printf("[JOB %s SCENE %d] Rendered on attempt %d (%.1fs)", job.ID, scene, attempt, elapsed.Seconds())
			l.sink.Publish(domain.SceneLogEvent(job.ID, scene,
				fmt.Sprintf("rendered successfully on attempt %d", attempt)))
			return domain.SceneOutcome{
				Index:        spec.Index,
				Rendered:     true,
				ArtifactPath: artifact,
				Caption:      caption,
				Attempts:     attempt,
			}
		}

		l.logger.Printf("[JOB %s SCENE %d] Attempt %d failed: %v", job.ID, scene, attempt, execErr)
		prev = &domain.RenderAttempt{
			Number:  attempt,
			Code:    code,
			Error:   execErr.Error(),
			Elapsed: elapsed,
		}
	}

	l.logger.Printf("[JOB %s SCENE %d] Exhausted %d attempts, skipping scene", job.ID, scene, l.maxAttempts)
	l.sink.Publish(domain.SceneLogEvent(job.ID, scene,
		fmt.Sprintf("all %d attempts failed, scene skipped", l.maxAttempts)))
	return domain.SceneOutcome{
		Index:    spec.Index,
		Rendered: false,
		Caption:  caption,
		Attempts: l.maxAttempts,
	}
}

// captionFor derives the scene-guide caption from the spec alone, so skipped
// scenes stay documented even without a successful render.
func captionFor(spec domain.SceneSpec) string {
	return strings.TrimSpace(spec.Description)
}
