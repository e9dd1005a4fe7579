//go:build !ocr

package recognize

import (
	"context"

	"exam-grader/api/internal/document"
)

type TesseractConfig struct {
	Langs []string
}

// Tesseract without the ocr build tag. Every page fails with ErrLocalOCRNotEnabled.
type Tesseract struct{}

func NewTesseract(TesseractConfig) *Tesseract { return &Tesseract{} }

func (*Tesseract) Name() string { return "tesseract" }

func (*Tesseract) Ready() error { return ErrLocalOCRNotEnabled }

func (*Tesseract) RecognizePage(context.Context, document.RasterPage) (string, error) {
	return "", ErrLocalOCRNotEnabled
}
