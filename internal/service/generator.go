package service

import (
	"context"
	"fmt"
	"log"
	"strings"

	"clarivid/internal/core/domain"
	"clarivid/internal/core/ports"
)

const generateCodePrompt = `Generate Manim Python code for one scene of an educational animation in the style of 3blue1brown.

Scene description: %s
Target length: %s

Requirements:
- Use ONLY standard Manim imports.
- Define exactly one class inheriting from Scene, with a construct method.
- Use Write() for text and Create() for shapes and math objects.
- Keep every element on screen and well spaced.
- Fade out all objects at the end of the scene.

Return ONLY the Python code, no markdown formatting or explanations.`

const correctCodePrompt = `The following Manim code failed to render. Fix it.

Code:
%s

Error:
%s

Return ONLY the corrected Python code, no markdown formatting or explanations.
Keep the same scene content; change only what is needed to make it render.`

// SceneCodeGenerator produces one candidate unit of renderable code per call.
// It is a pure function of its inputs; the backing LLM makes it
// non-deterministic across identical calls.
type SceneCodeGenerator struct {
	llm    ports.TextGenerator
	logger *log.Logger
}

// NewSceneCodeGenerator creates a SceneCodeGenerator.
func NewSceneCodeGenerator(llm ports.TextGenerator, logger *log.Logger) *SceneCodeGenerator {
	return &SceneCodeGenerator{llm: llm, logger: logger}
}

// Generate returns code intended to render the scene. When prev is non-nil
// the call is a correction: the previous attempt's code and error are fed
// back so the model can fix its own mistake. Errors here are
// generation-level, distinct from render failures.
func (g *SceneCodeGenerator) Generate(ctx context.Context, tier domain.QualityTier, spec domain.SceneSpec, prev *domain.RenderAttempt) (string, error) {
	var prompt string
	if prev == nil {
		prompt = fmt.Sprintf(generateCodePrompt, spec.Description, spec.DurationHint)
	} else {
		prompt = fmt.Sprintf(correctCodePrompt, prev.Code, prev.Error)
	}

	text, err := g.llm.Generate(ctx, ports.GenerateRequest{Prompt: prompt, Tier: tier})
	if err != nil {
		return "", fmt.Errorf("code generation failed: %w", err)
	}

	code := sanitizeCode(text)
	if strings.TrimSpace(code) == "" {
		return "", fmt.Errorf("code generation failed: model returned empty code")
	}
	return code, nil
}

// sanitizeCode strips markdown fences the model tends to wrap code in and
// guarantees the Manim import line is present.
func sanitizeCode(text string) string {
	code := strings.TrimSpace(text)

	if idx := strings.Index(code, "```python"); idx >= 0 {
		code = code[idx+len("```python"):]
		if end := strings.Index(code, "```"); end >= 0 {
			code = code[:end]
		}
	} else if idx := strings.Index(code, "```"); idx >= 0 {
		code = code[idx+len("```"):]
		if end := strings.Index(code, "```"); end >= 0 {
			code = code[:end]
		}
	}
	code = strings.TrimSpace(code)

	if code != "" && !strings.Contains(code, "from manim import *") {
		code = "from manim import *\n\n" + code
	}
	return code
}
