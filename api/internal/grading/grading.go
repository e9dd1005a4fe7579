// Package grading asks a generative model to mark a student answer. It returns the model's raw
// text untouched; bounding and validation belong to the evaluation package.
package grading

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	ErrGradingUnavailable = errors.New("grading backend unavailable")
	ErrInvalidRequest     = errors.New("invalid grading request")
)

// GradingUnavailableError covers every backend failure: transport, API, timeout, empty reply.
type GradingUnavailableError struct {
	Backend string
	Err     error
}

func (e *GradingUnavailableError) Error() string {
	return fmt.Sprintf("grading backend %s unavailable: %v", e.Backend, e.Err)
}

func (e *GradingUnavailableError) Unwrap() []error {
	return []error{ErrGradingUnavailable, e.Err}
}

type Request struct {
	StudentText string
	ModelAnswer string
	MaxMarks    int
	Question    string // optional
}

func (r Request) Validate() error {
	if r.MaxMarks <= 0 {
		return fmt.Errorf("%w: max marks must be positive, got %d", ErrInvalidRequest, r.MaxMarks)
	}
	if strings.TrimSpace(r.ModelAnswer) == "" {
		return fmt.Errorf("%w: model answer is empty", ErrInvalidRequest)
	}
	return nil
}

// Generator is a single prompt in, single free text out model call.
type Generator interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

type Engine struct {
	gen     Generator
	timeout time.Duration
	log     logrus.FieldLogger
}

func NewEngine(gen Generator, timeout time.Duration, log logrus.FieldLogger) *Engine {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Engine{gen: gen, timeout: timeout, log: log}
}

// Grade returns the raw model output for req.
func (e *Engine) Grade(ctx context.Context, req Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	raw, err := e.gen.Generate(ctx, BuildPrompt(req))
	if err == nil && strings.TrimSpace(raw) == "" {
		err = errors.New("empty response")
	}
	if err != nil {
		if ctx.Err() != nil && !errors.Is(err, ctx.Err()) {
			err = fmt.Errorf("%w (%w)", err, ctx.Err())
		}
		return "", &GradingUnavailableError{Backend: e.gen.Name(), Err: err}
	}
	e.log.WithFields(logrus.Fields{
		"backend":   e.gen.Name(),
		"max_marks": req.MaxMarks,
		"chars":     len(raw),
		"took":      time.Since(start).Round(time.Millisecond).String(),
	}).Debug("grading response received")
	return raw, nil
}
