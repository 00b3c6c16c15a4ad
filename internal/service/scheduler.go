package service

import (
	"context"
	"log"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"clarivid/internal/core/domain"
	"clarivid/internal/core/ports"
)

// RenderScheduler fans scene attempt loops out over a bounded worker pool.
// Scenes beyond the pool size queue and backfill as slots free up; one
// scene's exhaustion never cancels its siblings.
type RenderScheduler struct {
	loop        *AttemptLoop
	concurrency int
	sink        ports.ProgressSink
	logger      *log.Logger
}

// NewRenderScheduler creates a scheduler with the given concurrency cap.
func NewRenderScheduler(loop *AttemptLoop, concurrency int, sink ports.ProgressSink, logger *log.Logger) *RenderScheduler {
	if concurrency < 1 {
		concurrency = 1
	}
	return &RenderScheduler{loop: loop, concurrency: concurrency, sink: sink, logger: logger}
}

// RenderAll runs every scene to resolution and returns the outcomes in
// sequence-index order, regardless of completion order. It waits for all
// scenes; the result always has exactly one outcome per spec.
func (s *RenderScheduler) RenderAll(ctx context.Context, job *domain.ConceptJob, specs []domain.SceneSpec) []domain.SceneOutcome {
	total := len(specs)
	outcomes := make([]domain.SceneOutcome, total)
	var resolved atomic.Int64

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, spec := range specs {
		spec := spec
		g.Go(func() error {
			// Each slot writes only its own index; ordering is restored by
			// construction, not by sorting completion events.
			outcomes[spec.Index] = s.loop.Run(ctx, job, spec)
			done := int(resolved.Add(1))
			s.sink.Publish(domain.ProgressEvent(job.ID, "rendering", done, total))
			return nil
		})
	}
	_ = g.Wait() // attempt loops never return errors

	rendered := 0
	for _, o := range outcomes {
		if o.Rendered {
			rendered++
		}
	}
	s.logger.Printf("[JOB %s] Rendering finished: %d/%d scenes succeeded", job.ID, rendered, total)
	return outcomes
}
