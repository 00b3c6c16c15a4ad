package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"context"

	"clarivid/internal/core/domain"
	"clarivid/internal/core/ports"
)

// ErrEmptySceneList means the LLM produced no usable scene decomposition.
// A bad split poisons everything downstream, so this is job-fatal.
var ErrEmptySceneList = errors.New("splitter returned no scenes")

const splitScenesPrompt = `You are planning a short educational explainer video in the style of 3blue1brown.

Concept: %s
Description: %s

Split this concept into an ordered list of 2 to 6 scenes. Each scene is one
self-contained visual segment of about 10-15 seconds. Describe each scene in
one or two sentences of plain language stating what should be shown.

Return ONLY a JSON array of strings, one string per scene, in playback order:
["scene one description", "scene two description"]`

// SceneSplitter decomposes a concept into an ordered scene list with a
// single LLM call. It is fail-fast: no retries, any failure is terminal for
// the job.
type SceneSplitter struct {
	llm    ports.TextGenerator
	logger *log.Logger
}

// NewSceneSplitter creates a SceneSplitter.
func NewSceneSplitter(llm ports.TextGenerator, logger *log.Logger) *SceneSplitter {
	return &SceneSplitter{llm: llm, logger: logger}
}

// Split produces the ordered, immutable SceneSpec list for a job.
func (s *SceneSplitter) Split(ctx context.Context, job *domain.ConceptJob) ([]domain.SceneSpec, error) {
	prompt := fmt.Sprintf(splitScenesPrompt, job.ConceptName, job.ConceptDescription)

	s.logger.Printf("[JOB %s] Splitting concept into scenes...", job.ID)
	text, err := s.llm.Generate(ctx, ports.GenerateRequest{Prompt: prompt, Tier: job.Tier})
	if err != nil {
		return nil, fmt.Errorf("scene split call failed: %w", err)
	}

	descriptions, err := parseSceneArray(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmptySceneList, err)
	}

	specs := make([]domain.SceneSpec, 0, len(descriptions))
	for i, desc := range descriptions {
		specs = append(specs, domain.SceneSpec{
			Index:        i,
			Description:  desc,
			DurationHint: "10-15s",
		})
	}
	s.logger.Printf("[JOB %s] Split into %d scenes", job.ID, len(specs))
	return specs, nil
}

// parseSceneArray extracts a JSON string array from an LLM response that may
// wrap it in prose or markdown fences.
func parseSceneArray(text string) ([]string, error) {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array in response")
	}

	var raw []string
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("invalid scene array: %v", err)
	}

	scenes := make([]string, 0, len(raw))
	for _, s := range raw {
		if t := strings.TrimSpace(s); t != "" {
			scenes = append(scenes, t)
		}
	}
	if len(scenes) == 0 {
		return nil, fmt.Errorf("scene array is empty")
	}
	return scenes, nil
}
