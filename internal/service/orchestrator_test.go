package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"clarivid/internal/core/domain"
	"clarivid/internal/core/ports"
)

type orchestratorFixture struct {
	llm     *stubLLM
	exec    *stubExecutor
	store   *stubStore
	limiter *stubLimiter
	concat  *stubConcat
	sink    *recordSink
	orch    *Orchestrator
}

func newOrchestratorFixture(maxAttempts int) *orchestratorFixture {
	f := &orchestratorFixture{
		store:   newStubStore(),
		limiter: &stubLimiter{},
		concat:  &stubConcat{},
		sink:    &recordSink{},
	}
	f.llm = &stubLLM{}
	f.exec = &stubExecutor{}

	logger := testLogger()
	gen := NewSceneCodeGenerator(f.llm, logger)
	loop := NewAttemptLoop(gen, f.exec, fakeWorkspace{}, f.sink, maxAttempts, 0, logger)
	scheduler := NewRenderScheduler(loop, 3, f.sink, logger)
	splitter := NewSceneSplitter(f.llm, logger)

	f.orch = NewOrchestrator(
		splitter, scheduler, f.concat, fakeWorkspace{}, stubArtifacts{},
		f.store, f.limiter, f.sink, logger)
	return f
}

// splitThenCode answers the scene-split prompt with the given scene list and
// every later prompt with trivially valid code.
func splitThenCode(scenes []string) func(call int, req ports.GenerateRequest) (string, error) {
	payload, _ := json.Marshal(scenes)
	return func(call int, req ports.GenerateRequest) (string, error) {
		if strings.Contains(req.Prompt, "JSON array") {
			return string(payload), nil
		}
		return "from manim import *\nclass A(Scene): pass", nil
	}
}

func TestRunJobCompletesWithSelfCorrection(t *testing.T) {
	f := newOrchestratorFixture(3)
	f.llm.fn = splitThenCode([]string{"intro", "build-up", "hard part", "outro"})

	// Scene 3 renders only on its third attempt; the rest pass immediately.
	var mu sync.Mutex
	failures := map[int]int{}
	f.exec.fn = func(call int, req ports.RenderRequest) (string, error) {
		if req.Scene == 3 {
			mu.Lock()
			failures[req.Scene]++
			n := failures[req.Scene]
			mu.Unlock()
			if n < 3 {
				return "", fmt.Errorf("ValueError: bad animation")
			}
		}
		return fmt.Sprintf("clip_%d.mp4", req.Scene-1), nil
	}

	job, err := f.orch.RunJob(context.Background(), StartJobRequest{
		PaperID: "p1", ConceptID: "c1", ConceptName: "Attention",
		ConceptDescription: "Weighted token mixing.", UserID: "u1",
	})
	if err != nil {
		t.Fatalf("RunJob failed: %v", err)
	}

	if job.Status != domain.StatusCompleted {
		t.Fatalf("status %s, want completed (error: %s)", job.Status, job.Error)
	}
	if job.VideoURL == "" || job.CompletedAt == nil {
		t.Error("completed job missing video URL or completion time")
	}
	if job.Tier != domain.TierFast {
		t.Errorf("empty tier must default to fast, got %q", job.Tier)
	}

	if len(job.Outcomes) != 4 {
		t.Fatalf("expected 4 outcomes, got %d", len(job.Outcomes))
	}
	if got := job.Outcomes[2].Attempts; got != 3 {
		t.Errorf("self-corrected scene used %d attempts, want 3", got)
	}

	// Stitch input must be every clip, in scene order.
	f.concat.mu.Lock()
	paths := append([]string(nil), f.concat.paths...)
	f.concat.mu.Unlock()
	if len(paths) != 4 {
		t.Fatalf("stitched %d clips, want 4", len(paths))
	}
	for i, p := range paths {
		if want := fmt.Sprintf("clip_%d.mp4", i); p != want {
			t.Errorf("stitch position %d is %q, want %q", i, p, want)
		}
	}

	guide := BuildSceneGuide(job.Outcomes)
	for i, c := range guide {
		if !c.Rendered {
			t.Errorf("guide entry %d not marked rendered", i)
		}
	}

	if len(f.store.records) != 1 {
		t.Fatalf("expected 1 video record, got %d", len(f.store.records))
	}
	if len(f.store.records[0].Captions) != 4 {
		t.Errorf("video record has %d captions, want 4", len(f.store.records[0].Captions))
	}
	if f.limiter.released != 1 {
		t.Errorf("limiter released %d times, want 1", f.limiter.released)
	}

	persisted, err := f.orch.GetJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if persisted.Status != domain.StatusCompleted {
		t.Errorf("persisted status %s, want completed", persisted.Status)
	}
}

func TestRunJobFailsWhenNoSceneRenders(t *testing.T) {
	f := newOrchestratorFixture(2)
	f.llm.fn = splitThenCode([]string{"first idea", "second idea"})
	f.exec.fn = func(call int, req ports.RenderRequest) (string, error) {
		return "", fmt.Errorf("manim exited with status 1")
	}

	job, err := f.orch.RunJob(context.Background(), StartJobRequest{
		ConceptName: "Doomed", UserID: "u1",
	})
	if err != nil {
		t.Fatalf("RunJob failed: %v", err)
	}

	if job.Status != domain.StatusFailed {
		t.Fatalf("status %s, want failed", job.Status)
	}
	if !strings.Contains(job.Error, ErrNoScenesRendered.Error()) {
		t.Errorf("job error %q does not name the cause", job.Error)
	}
	if job.VideoURL != "" {
		t.Errorf("failed job must not carry a video URL, got %q", job.VideoURL)
	}
	if job.CompletedAt == nil {
		t.Error("failed job missing completion time")
	}

	// The outcomes and their captions survive so the client can show what
	// was attempted.
	guide := BuildSceneGuide(job.Outcomes)
	if len(guide) != 2 {
		t.Fatalf("expected 2 guide entries, got %d", len(guide))
	}
	for i, c := range guide {
		if c.Rendered {
			t.Errorf("guide entry %d marked rendered", i)
		}
		if c.Text == "" {
			t.Errorf("guide entry %d missing caption", i)
		}
	}

	f.concat.mu.Lock()
	stitched := len(f.concat.paths)
	f.concat.mu.Unlock()
	if stitched != 0 {
		t.Error("stitcher must not run with no rendered clips")
	}
	if f.limiter.released != 1 {
		t.Errorf("limiter released %d times, want 1", f.limiter.released)
	}
}

func TestRunJobCompletesWithSkippedScene(t *testing.T) {
	f := newOrchestratorFixture(2)
	f.llm.fn = splitThenCode([]string{"opening", "too ambitious", "closing"})

	// The middle scene exhausts its budget; its neighbors render fine.
	f.exec.fn = func(call int, req ports.RenderRequest) (string, error) {
		if req.Scene == 2 {
			return "", fmt.Errorf("TimeoutError: render exceeded limit")
		}
		return fmt.Sprintf("clip_%d.mp4", req.Scene-1), nil
	}

	job, err := f.orch.RunJob(context.Background(), StartJobRequest{
		ConceptName: "Partial", UserID: "u1",
	})
	if err != nil {
		t.Fatalf("RunJob failed: %v", err)
	}

	if job.Status != domain.StatusCompleted {
		t.Fatalf("partial success must still complete, got %s (error: %s)", job.Status, job.Error)
	}

	// Only the rendered clips are stitched, still in scene order.
	f.concat.mu.Lock()
	paths := append([]string(nil), f.concat.paths...)
	f.concat.mu.Unlock()
	want := []string{"clip_0.mp4", "clip_2.mp4"}
	if len(paths) != len(want) {
		t.Fatalf("stitched %d clips, want %d", len(paths), len(want))
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("stitch position %d is %q, want %q", i, paths[i], want[i])
		}
	}

	guide := BuildSceneGuide(job.Outcomes)
	if len(guide) != 3 {
		t.Fatalf("expected 3 guide entries, got %d", len(guide))
	}
	if !guide[0].Rendered || guide[1].Rendered || !guide[2].Rendered {
		t.Errorf("unexpected rendered flags: %v %v %v",
			guide[0].Rendered, guide[1].Rendered, guide[2].Rendered)
	}
	if guide[1].Text != "too ambitious" {
		t.Errorf("skipped scene lost its caption: %q", guide[1].Text)
	}
}

func TestRunJobFailsOnUnparseableSplit(t *testing.T) {
	f := newOrchestratorFixture(3)
	f.llm.fn = func(call int, req ports.GenerateRequest) (string, error) {
		return "I'd rather not answer in JSON today.", nil
	}

	job, err := f.orch.RunJob(context.Background(), StartJobRequest{
		ConceptName: "Anything", UserID: "u1",
	})
	if err != nil {
		t.Fatalf("RunJob failed: %v", err)
	}
	if job.Status != domain.StatusFailed {
		t.Fatalf("status %s, want failed", job.Status)
	}
	if f.exec.callCount() != 0 {
		t.Error("no renders may start after a failed split")
	}
}

func TestStartJobReturnsDetachedSnapshot(t *testing.T) {
	f := newOrchestratorFixture(1)

	// Hold the pipeline at the split stage until the caller has inspected
	// the returned job.
	release := make(chan struct{})
	f.llm.fn = func(call int, req ports.GenerateRequest) (string, error) {
		if strings.Contains(req.Prompt, "JSON array") {
			<-release
			return `["only scene"]`, nil
		}
		return "from manim import *\nclass A(Scene): pass", nil
	}
	f.exec.fn = func(call int, req ports.RenderRequest) (string, error) {
		return "clip_0.mp4", nil
	}

	job, err := f.orch.StartJob(context.Background(), StartJobRequest{
		ConceptName: "Detach", UserID: "u1",
	})
	if err != nil {
		t.Fatalf("StartJob failed: %v", err)
	}
	if job.Status != domain.StatusQueued {
		t.Fatalf("fresh job status %s, want queued", job.Status)
	}

	close(release)

	deadline := time.After(5 * time.Second)
	for {
		persisted, err := f.orch.GetJob(context.Background(), job.ID)
		if err == nil && persisted.Status.IsTerminal() {
			if persisted.Status != domain.StatusCompleted {
				t.Fatalf("persisted status %s, want completed (error: %s)", persisted.Status, persisted.Error)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("job never reached a terminal status")
		case <-time.After(5 * time.Millisecond):
		}
	}

	// The caller's struct is a snapshot: the background pipeline must never
	// write to it, so it still shows the state at submission time.
	if job.Status != domain.StatusQueued {
		t.Errorf("caller's job snapshot mutated to %s", job.Status)
	}
	if job.VideoURL != "" || job.CompletedAt != nil {
		t.Error("caller's job snapshot picked up pipeline writes")
	}
}

func TestStartJobDeniedByLimiter(t *testing.T) {
	f := newOrchestratorFixture(3)
	f.limiter.denyWith = fmt.Errorf("daily quota reached: %w", ports.ErrLimitExceeded)

	_, err := f.orch.StartJob(context.Background(), StartJobRequest{
		ConceptName: "Anything", UserID: "u1",
	})
	if !errors.Is(err, ports.ErrLimitExceeded) {
		t.Fatalf("expected ErrLimitExceeded, got %v", err)
	}

	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	if len(f.store.jobs) != 0 {
		t.Error("denied request must not persist a job")
	}
}
