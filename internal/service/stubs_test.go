package service

import (
	"context"
	"fmt"
	"sync"

	"clarivid/internal/core/domain"
	"clarivid/internal/core/ports"
)

// stubLLM records every prompt and answers through fn.
type stubLLM struct {
	mu      sync.Mutex
	prompts []string
	fn      func(call int, req ports.GenerateRequest) (string, error)
}

func (s *stubLLM) Generate(ctx context.Context, req ports.GenerateRequest) (string, error) {
	s.mu.Lock()
	s.prompts = append(s.prompts, req.Prompt)
	call := len(s.prompts)
	s.mu.Unlock()
	return s.fn(call, req)
}

func (s *stubLLM) promptCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}

func (s *stubLLM) prompt(i int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prompts[i]
}

// stubExecutor records every render request and answers through fn.
type stubExecutor struct {
	mu       sync.Mutex
	requests []ports.RenderRequest
	fn       func(call int, req ports.RenderRequest) (string, error)
}

func (s *stubExecutor) Execute(ctx context.Context, req ports.RenderRequest) (string, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	call := len(s.requests)
	s.mu.Unlock()
	return s.fn(call, req)
}

func (s *stubExecutor) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// fakeWorkspace hands out deterministic paths without touching the disk.
type fakeWorkspace struct{}

func (fakeWorkspace) InitJob(ctx context.Context, jobID string) error { return nil }

func (fakeWorkspace) SceneDir(ctx context.Context, jobID string, index int) (string, error) {
	return fmt.Sprintf("/fake/%s/scenes/%d", jobID, index), nil
}

func (fakeWorkspace) FinalVideoPath(jobID string) string {
	return fmt.Sprintf("/fake/%s/final.mp4", jobID)
}

// recordSink collects published events.
type recordSink struct {
	mu     sync.Mutex
	events []domain.Event
}

func (s *recordSink) Publish(ev domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

// stubStore keeps job snapshots in memory and records status history.
type stubStore struct {
	mu       sync.Mutex
	jobs     map[string]domain.ConceptJob
	statuses []domain.JobStatus
	records  []domain.VideoRecord
}

func newStubStore() *stubStore {
	return &stubStore{jobs: make(map[string]domain.ConceptJob)}
}

func (s *stubStore) SaveJob(ctx context.Context, job *domain.ConceptJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = *job
	s.statuses = append(s.statuses, job.Status)
	return nil
}

func (s *stubStore) UpdateJob(ctx context.Context, job *domain.ConceptJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = *job
	s.statuses = append(s.statuses, job.Status)
	return nil
}

func (s *stubStore) GetJob(ctx context.Context, jobID string) (*domain.ConceptJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("job %s not found", jobID)
	}
	return &job, nil
}

func (s *stubStore) SaveVideoRecord(ctx context.Context, rec *domain.VideoRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, *rec)
	return nil
}

// stubLimiter optionally denies and counts releases.
type stubLimiter struct {
	mu       sync.Mutex
	denyWith error
	reserved int
	released int
}

func (l *stubLimiter) CheckAndReserve(userID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.denyWith != nil {
		return l.denyWith
	}
	l.reserved++
	return nil
}

func (l *stubLimiter) Release(userID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.released++
}

func (l *stubLimiter) Stats(userID string) ports.UsageStats { return ports.UsageStats{} }

// stubConcat records the paths handed to it.
type stubConcat struct {
	mu    sync.Mutex
	paths []string
	err   error
}

func (c *stubConcat) Concat(ctx context.Context, orderedPaths []string, outputPath string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paths = append([]string(nil), orderedPaths...)
	return c.err
}

// stubArtifacts maps a local path to a fixed URL.
type stubArtifacts struct{ err error }

func (a stubArtifacts) PublishVideo(ctx context.Context, jobID, localPath string) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	return "http://videos.test/" + jobID + ".mp4", nil
}
