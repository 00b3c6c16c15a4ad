package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Stitcher concatenates rendered clips into one video with ffmpeg's concat
// demuxer. Stream copy only: clips from the same renderer share codecs, so
// no re-encoding is needed.
type Stitcher struct {
	binaryPath string
	logger     *log.Logger
}

// NewStitcher creates a Stitcher using the given ffmpeg binary ("ffmpeg"
// from PATH when empty).
func NewStitcher(binaryPath string, logger *log.Logger) *Stitcher {
	if binaryPath == "" {
		binaryPath = "ffmpeg"
	}
	return &Stitcher{binaryPath: binaryPath, logger: logger}
}

// Concat joins the clips in the given order into outputPath.
func (s *Stitcher) Concat(ctx context.Context, orderedPaths []string, outputPath string) error {
	if len(orderedPaths) == 0 {
		return fmt.Errorf("no clips to concatenate")
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	listPath := outputPath + ".concat.txt"
	if err := os.WriteFile(listPath, []byte(concatList(orderedPaths)), 0644); err != nil {
		return fmt.Errorf("failed to write concat list: %w", err)
	}
	defer os.Remove(listPath)

	cmd := exec.CommandContext(ctx, s.binaryPath,
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		outputPath,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg concat failed: %w, stderr: %s", err, strings.TrimSpace(stderr.String()))
	}
	s.logger.Printf("Stitched %d clips into %s", len(orderedPaths), outputPath)
	return nil
}

// concatList renders the ffmpeg concat demuxer input: one quoted path per
// line, single quotes escaped the way the demuxer expects.
func concatList(paths []string) string {
	var b strings.Builder
	for _, p := range paths {
		safe := strings.ReplaceAll(filepath.ToSlash(p), "'", `'\''`)
		fmt.Fprintf(&b, "file '%s'\n", safe)
	}
	return b.String()
}
