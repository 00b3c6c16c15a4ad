package localstorage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Storage keeps job workspaces and finished videos on the local filesystem.
// Layout under BaseDir:
//
//	jobs/<jobID>/scenes/scene_<n>/   per-scene render workspace
//	videos/<jobID>.mp4               stitched output
//
// Scene dirs are per-scene so concurrent renders never share a path.
type Storage struct {
	BaseDir string
	BaseURL string
}

// NewStorage creates a Storage rooted at baseDir. baseURL prefixes the URLs
// returned for published videos (e.g. "http://localhost:8080").
func NewStorage(baseDir, baseURL string) *Storage {
	return &Storage{BaseDir: baseDir, BaseURL: strings.TrimRight(baseURL, "/")}
}

// InitJob creates the job's directory structure.
func (s *Storage) InitJob(ctx context.Context, jobID string) error {
	path := s.jobPath(jobID)
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("failed to create job directory %s: %w", path, err)
	}
	return nil
}

// SceneDir returns an isolated working directory for one scene, creating it
// if needed.
func (s *Storage) SceneDir(ctx context.Context, jobID string, index int) (string, error) {
	path := filepath.Join(s.jobPath(jobID), "scenes", fmt.Sprintf("scene_%d", index))
	if err := os.MkdirAll(path, 0755); err != nil {
		return "", fmt.Errorf("failed to create scene directory %s: %w", path, err)
	}
	return path, nil
}

// FinalVideoPath returns where the stitched video for a job is written.
func (s *Storage) FinalVideoPath(jobID string) string {
	return filepath.Join(s.BaseDir, "videos", jobID+".mp4")
}

// VideosDir returns the directory the HTTP layer serves finished videos from.
func (s *Storage) VideosDir() string {
	return filepath.Join(s.BaseDir, "videos")
}

// PublishVideo returns the client-facing URL for a locally stored video. The
// file is already at its final location; only the URL mapping happens here.
func (s *Storage) PublishVideo(ctx context.Context, jobID, localPath string) (string, error) {
	if _, err := os.Stat(localPath); err != nil {
		return "", fmt.Errorf("video file missing: %w", err)
	}
	return fmt.Sprintf("%s/videos/%s", s.BaseURL, filepath.Base(localPath)), nil
}

func (s *Storage) jobPath(jobID string) string {
	return filepath.Join(s.BaseDir, "jobs", jobID)
}
