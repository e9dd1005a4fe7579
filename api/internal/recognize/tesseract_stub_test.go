//go:build !ocr

package recognize

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"exam-grader/api/internal/document"
)

func TestTesseractStub(t *testing.T) {
	ts := NewTesseract(TesseractConfig{Langs: []string{"eng"}})
	assert.Equal(t, "tesseract", ts.Name())
	assert.ErrorIs(t, ts.Ready(), ErrLocalOCRNotEnabled)

	_, err := ts.RecognizePage(context.Background(), document.RasterPage{})
	assert.ErrorIs(t, err, ErrLocalOCRNotEnabled)
}
