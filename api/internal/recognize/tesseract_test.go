//go:build ocr

package recognize

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exam-grader/api/internal/document"
)

func TestTesseract_BlankPage(t *testing.T) {
	ts := NewTesseract(TesseractConfig{Langs: []string{"eng"}})
	if err := ts.Ready(); err != nil {
		t.Skipf("tesseract not usable here: %v", err)
	}

	img := image.NewGray(image.Rect(0, 0, 200, 100))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)

	text, err := ts.RecognizePage(context.Background(), document.RasterPage{Image: img, Width: 200, Height: 100})
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestTesseract_MissingLanguage(t *testing.T) {
	ts := NewTesseract(TesseractConfig{Langs: []string{"zzz-not-a-language"}})
	err := ts.Ready()
	require.Error(t, err)
	assert.Equal(t, err, ts.Ready(), "checked once")
}
