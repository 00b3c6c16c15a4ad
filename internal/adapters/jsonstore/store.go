package jsonstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"clarivid/internal/core/domain"
)

// Store persists job snapshots and video records as JSON files. It is the
// zero-infrastructure backend for development and single-node deployments;
// production uses the postgres store behind the same interface.
type Store struct {
	dir string
	mu  sync.Mutex
}

// NewStore creates the storage directories under dir.
func NewStore(dir string) (*Store, error) {
	for _, sub := range []string{"jobs", "video_records"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s dir: %w", sub, err)
		}
	}
	return &Store{dir: dir}, nil
}

// SaveJob persists a newly created job.
func (s *Store) SaveJob(ctx context.Context, job *domain.ConceptJob) error {
	return s.writeJSON(s.jobPath(job.ID), job)
}

// UpdateJob persists the current snapshot of a job.
func (s *Store) UpdateJob(ctx context.Context, job *domain.ConceptJob) error {
	if _, err := os.Stat(s.jobPath(job.ID)); err != nil {
		return fmt.Errorf("job %s not found: %w", job.ID, err)
	}
	return s.writeJSON(s.jobPath(job.ID), job)
}

// GetJob loads the stored snapshot for a job ID.
func (s *Store) GetJob(ctx context.Context, jobID string) (*domain.ConceptJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.jobPath(jobID))
	if err != nil {
		return nil, fmt.Errorf("job %s not found: %w", jobID, err)
	}
	var job domain.ConceptJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("corrupt job record %s: %w", jobID, err)
	}
	return &job, nil
}

// SaveVideoRecord persists the final video reference and scene guide.
func (s *Store) SaveVideoRecord(ctx context.Context, rec *domain.VideoRecord) error {
	path := filepath.Join(s.dir, "video_records", rec.JobID+".json")
	return s.writeJSON(path, rec)
}

// writeJSON writes atomically: temp file then rename, so a crash mid-write
// never leaves a truncated record.
func (s *Store) writeJSON(path string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

func (s *Store) jobPath(jobID string) string {
	return filepath.Join(s.dir, "jobs", jobID+".json")
}
