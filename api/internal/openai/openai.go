// Package openai is the chat-completions backend for grading and vision OCR.
package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var ErrEmptyResponse = errors.New("openai: empty response")

type Client struct {
	APIKey  string
	Model   string
	BaseURL string

	httpc *http.Client
}

func New(key, model, baseURL string) *Client {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &Client{
		APIKey:  key,
		Model:   model,
		BaseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: 120 * time.Second},
	}
}

func (c *Client) Name() string { return "openai" }

// Generate sends prompt as a single user message and asks for a JSON object back.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	messages := []any{
		map[string]any{"role": "user", "content": prompt},
	}
	return c.complete(ctx, "grade", messages, true)
}

// GenerateFromImage transcribes image following instruction.
func (c *Client) GenerateFromImage(ctx context.Context, instruction, mimeType string, image []byte) (string, error) {
	dataURL := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(image)
	messages := []any{
		map[string]any{"role": "system", "content": instruction},
		map[string]any{
			"role": "user",
			"content": []any{
				map[string]any{"type": "text", "text": "Transcribe this page."},
				map[string]any{"type": "image_url", "image_url": map[string]any{"url": dataURL, "detail": "high"}},
			},
		},
	}
	return c.complete(ctx, "vision", messages, false)
}

func (c *Client) complete(ctx context.Context, op string, messages []any, jsonMode bool) (string, error) {
	if c.APIKey == "" {
		return "", errors.New("OPENAI_API_KEY is empty")
	}
	body := map[string]any{
		"model":       c.Model,
		"messages":    messages,
		"temperature": 0,
	}
	if jsonMode {
		body["response_format"] = map[string]any{"type": "json_object"}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("openai %s: %w", op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		x, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return "", fmt.Errorf("openai %s %d: %s", op, resp.StatusCode, strings.TrimSpace(string(x)))
	}

	var raw struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return "", fmt.Errorf("openai %s: decode: %w", op, err)
	}
	if len(raw.Choices) == 0 || strings.TrimSpace(raw.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}
	return raw.Choices[0].Message.Content, nil
}
