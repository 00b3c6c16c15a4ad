package manim

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"clarivid/internal/core/domain"
	"clarivid/internal/core/ports"
)

const defaultTimeout = 4 * time.Minute

// Executor renders generated Manim code by invoking the manim binary in a
// separate process. Generated code never runs inside this process: a crash,
// infinite loop, or resource blowup in the code is contained by the child
// process and its timeout.
type Executor struct {
	binaryPath string
	sink       ports.ProgressSink
	logger     *log.Logger
}

// NewExecutor creates an Executor using the given manim binary ("manim" from
// PATH when empty).
func NewExecutor(binaryPath string, sink ports.ProgressSink, logger *log.Logger) *Executor {
	if binaryPath == "" {
		binaryPath = "manim"
	}
	return &Executor{binaryPath: binaryPath, sink: sink, logger: logger}
}

// Execute writes the code into the scene-local work dir, renders it under
// the request timeout, and returns the path of the produced video file.
// Stdout and stderr lines are streamed to the progress sink as they appear,
// tagged with the owning scene.
func (e *Executor) Execute(ctx context.Context, req ports.RenderRequest) (string, error) {
	scenePath := filepath.Join(req.WorkDir, "scene.py")
	if err := os.WriteFile(scenePath, []byte(req.Code), 0644); err != nil {
		return "", fmt.Errorf("failed to write scene file: %w", err)
	}

	className := detectClassName(req.Code)

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// -ql: low quality for fast turnaround, -v WARNING: keep the stream
	// readable, --media_dir: confine all output to the scene's own dir.
	cmd := exec.CommandContext(ctx, e.binaryPath,
		scenePath, className,
		"-o", req.OutputName,
		"--media_dir", req.WorkDir,
		"-v", "WARNING",
		"-ql",
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("failed to open stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", fmt.Errorf("failed to open stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("failed to start renderer: %w", err)
	}

	var stderrBuf strings.Builder
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		e.streamLines(req.JobID, req.Scene, stdout, nil)
	}()
	go func() {
		defer wg.Done()
		e.streamLines(req.JobID, req.Scene, stderr, &stderrBuf)
	}()
	wg.Wait()

	err = cmd.Wait()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "", fmt.Errorf("timed out after %s", timeout)
	}
	if err != nil {
		return "", fmt.Errorf("render failed: %v\nstderr:\n%s", err, strings.TrimSpace(stderrBuf.String()))
	}

	artifact, found := findArtifact(req.WorkDir, req.OutputName)
	if !found {
		return "", fmt.Errorf("render reported success but no %s was produced", req.OutputName)
	}
	return artifact, nil
}

// streamLines forwards each line of a child pipe to the progress sink. When
// capture is non-nil the lines are also kept for the error report.
func (e *Executor) streamLines(jobID string, scene int, r io.Reader, capture *strings.Builder) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if capture != nil {
			capture.WriteString(line)
			capture.WriteString("\n")
		}
		e.sink.Publish(domain.SceneLogEvent(jobID, scene, line))
	}
}

// detectClassName finds the Scene subclass to render; manim needs the class
// name on the command line. Falls back to "Scene".
func detectClassName(code string) string {
	for _, line := range strings.Split(code, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "class ") || !strings.Contains(trimmed, "Scene") {
			continue
		}
		rest := strings.TrimPrefix(trimmed, "class ")
		if idx := strings.IndexAny(rest, "(:"); idx > 0 {
			return strings.TrimSpace(rest[:idx])
		}
	}
	return "Scene"
}

// findArtifact locates the rendered output file under the media dir, skipping
// manim's partial_movie_files intermediates.
func findArtifact(mediaDir, outputName string) (string, bool) {
	var found string
	_ = filepath.WalkDir(mediaDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if d.Name() == "partial_movie_files" {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() == outputName {
			found = path
			return filepath.SkipAll
		}
		return nil
	})
	return found, found != ""
}
