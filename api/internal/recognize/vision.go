package recognize

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"exam-grader/api/internal/document"
	"exam-grader/api/internal/util"
)

// VisionInstruction asks for a transcription only. Grading happens later, on the text.
const VisionInstruction = `You are transcribing a scanned page of a student's handwritten exam answer.
Return the text exactly as written, line by line, in reading order.
Do not correct spelling, do not summarize, do not add commentary or formatting.
If the page contains no readable text, return an empty response.`

// ImageGenerator is the multimodal call the vision strategy needs.
type ImageGenerator interface {
	GenerateFromImage(ctx context.Context, instruction, mimeType string, image []byte) (string, error)
}

type VisionConfig struct {
	MaxSide int
	Quality int
	Timeout time.Duration
	RPS     float64 // <= 0 disables throttling
}

type Vision struct {
	gen     ImageGenerator
	cfg     VisionConfig
	limiter *rate.Limiter
}

func NewVision(gen ImageGenerator, cfg VisionConfig) *Vision {
	if cfg.MaxSide <= 0 {
		cfg.MaxSide = 1600
	}
	if cfg.Quality <= 0 || cfg.Quality > 100 {
		cfg.Quality = 75
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), 1)
	}
	return &Vision{gen: gen, cfg: cfg, limiter: limiter}
}

func (*Vision) Name() string { return "vision" }

func (v *Vision) RecognizePage(ctx context.Context, page document.RasterPage) (string, error) {
	if page.Image == nil {
		return "", errors.New("page has no image")
	}
	ctx, cancel := context.WithTimeout(ctx, v.cfg.Timeout)
	defer cancel()

	if err := v.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit: %w", err)
	}

	data, err := document.EncodeJPEG(document.Fit(page.Image, v.cfg.MaxSide), v.cfg.Quality)
	if err != nil {
		return "", fmt.Errorf("encode page: %w", err)
	}
	text, err := v.gen.GenerateFromImage(ctx, VisionInstruction, "image/jpeg", data)
	if err != nil {
		return "", err
	}
	return util.StripCodeFences(text), nil
}
