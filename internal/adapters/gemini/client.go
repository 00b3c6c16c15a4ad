package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"clarivid/internal/core/domain"
	"clarivid/internal/core/ports"
)

// Client implements ports.TextGenerator on the Gemini API. The quality tier
// of a request selects between the fast and quality models.
type Client struct {
	client       *genai.Client
	fastModel    string
	qualityModel string
	temperature  float32
}

// NewClient creates a Gemini-backed text generator.
func NewClient(ctx context.Context, apiKey, fastModel, qualityModel string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	c, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &Client{
		client:       c,
		fastModel:    fastModel,
		qualityModel: qualityModel,
		temperature:  0.3,
	}, nil
}

// Close releases the underlying API client.
func (c *Client) Close() error {
	return c.client.Close()
}

// Generate runs one model call and returns the response text.
func (c *Client) Generate(ctx context.Context, req ports.GenerateRequest) (string, error) {
	name := c.fastModel
	if req.Tier == domain.TierQuality {
		name = c.qualityModel
	}

	model := c.client.GenerativeModel(name)
	model.SetTemperature(c.temperature)

	resp, err := model.GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generate failed: %w", err)
	}

	text := responseText(resp)
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("gemini returned an empty response")
	}
	return text, nil
}

// responseText flattens the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}
