// Package recognize turns one page into text. Each Strategy has its own cost and
// accuracy profile and is picked explicitly by the caller.
package recognize

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"exam-grader/api/internal/document"
)

type Strategy string

const (
	StrategyNative Strategy = "native" // embedded PDF text, typed documents only
	StrategyLocal  Strategy = "local"  // tesseract on this host
	StrategyVision Strategy = "vision" // remote multimodal model
)

func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "native", "text":
		return StrategyNative, nil
	case "local", "tesseract", "ocr":
		return StrategyLocal, nil
	case "vision", "gemini":
		return StrategyVision, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
}

var (
	ErrUnknownStrategy    = errors.New("unknown extraction strategy")
	ErrPageRecognition    = errors.New("page recognition failed")
	ErrLocalOCRNotEnabled = errors.New("local OCR not enabled; rebuild with -tags ocr")
)

// PageRecognitionError is logged and folded into a placeholder page. It never fails a request.
type PageRecognitionError struct {
	Page       int // 0-based
	Recognizer string
	Err        error
}

func (e *PageRecognitionError) Error() string {
	return fmt.Sprintf("%s: page %d: %v", e.Recognizer, e.Page+1, e.Err)
}

func (e *PageRecognitionError) Unwrap() []error {
	return []error{ErrPageRecognition, e.Err}
}

type Status string

const (
	StatusOK         Status = "ok"
	StatusError      Status = "error"
	StatusNoText     Status = "no_text_detected"
	NoTextPlaceholder       = "[No text detected]"
)

// PageExtraction is the outcome for one page.
type PageExtraction struct {
	PageIndex int    `json:"page_index"`
	Text      string `json:"text"`
	Status    Status `json:"status"`
}

// Recognized builds the entry for a successful call. Blank text counts as no text.
func Recognized(index int, text string) PageExtraction {
	text = strings.TrimSpace(text)
	if text == "" {
		return PageExtraction{PageIndex: index, Text: NoTextPlaceholder, Status: StatusNoText}
	}
	return PageExtraction{PageIndex: index, Text: text, Status: StatusOK}
}

// Failed builds the placeholder entry for a page whose recognition failed.
func Failed(index int, err error) PageExtraction {
	cause := err
	var pe *PageRecognitionError
	if errors.As(err, &pe) && pe.Err != nil {
		cause = pe.Err
	}
	return PageExtraction{
		PageIndex: index,
		Text:      fmt.Sprintf("[Error processing page %d: %v]", index+1, cause),
		Status:    StatusError,
	}
}

// PageRecognizer reads text off a rendered page.
type PageRecognizer interface {
	Name() string
	RecognizePage(ctx context.Context, page document.RasterPage) (string, error)
}

// TextExtractor reads text embedded in the document itself, without rendering.
// It returns at most maxPages entries and the uncapped page count.
type TextExtractor interface {
	Name() string
	ExtractPages(ctx context.Context, data []byte, maxPages int) ([]PageExtraction, int, error)
}
