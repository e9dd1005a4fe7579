// Package gemini is the Google Gemini backend used for grading and for vision transcription.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

var ErrEmptyResponse = errors.New("gemini: empty response")

type Client struct {
	APIKey      string
	Model       string
	VisionModel string

	attempts int
	backoff  time.Duration
}

func New(apiKey, model, visionModel string) *Client {
	model = strings.TrimSpace(model)
	visionModel = strings.TrimSpace(visionModel)
	if visionModel == "" {
		visionModel = model
	}
	return &Client{
		APIKey:      strings.TrimSpace(apiKey),
		Model:       model,
		VisionModel: visionModel,
		attempts:    3,
		backoff:     300 * time.Millisecond,
	}
}

func (c *Client) Name() string { return "gemini" }

// Generate sends a text prompt and asks for a JSON reply.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, c.Model, "application/json", nil, genai.Text(prompt))
}

// GenerateFromImage sends one image with a system instruction and returns plain text.
func (c *Client) GenerateFromImage(ctx context.Context, instruction, mimeType string, image []byte) (string, error) {
	system := &genai.Content{Parts: []genai.Part{genai.Text(instruction)}}
	return c.generate(ctx, c.VisionModel, "text/plain", system,
		genai.Text("Transcribe this page."),
		&genai.Blob{MIMEType: mimeType, Data: image},
	)
}

func (c *Client) generate(ctx context.Context, model, mime string, system *genai.Content, parts ...genai.Part) (string, error) {
	if c.APIKey == "" {
		return "", errors.New("GEMINI_API_KEY is empty")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(c.APIKey))
	if err != nil {
		return "", err
	}
	defer cl.Close()

	m := cl.GenerativeModel(model)
	if m == nil {
		return "", fmt.Errorf("gemini: model is nil")
	}
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:      ptrFloat32(0),
		ResponseMIMEType: mime,
	}
	m.SystemInstruction = system

	// retry transient failures, the caller's deadline still bounds the whole loop
	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		resp, err := m.GenerateContent(ctx, parts...)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			select {
			case <-ctx.Done():
			case <-time.After(time.Duration(attempt) * c.backoff):
			}
			continue
		}
		txt := strings.TrimSpace(firstText(resp))
		if txt == "" {
			return "", ErrEmptyResponse
		}
		return txt, nil
	}
	if lastErr == nil {
		lastErr = ctx.Err()
	}
	return "", fmt.Errorf("gemini %s: %w", model, lastErr)
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		var b strings.Builder
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		if b.Len() > 0 {
			return b.String()
		}
	}
	return ""
}

func ptrFloat32(v float32) *float32 { return &v }
