package recognize

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exam-grader/api/internal/document"
)

type fakeImageGen struct {
	mime  string
	image []byte
	reply string
	err   error
	block bool
}

func (f *fakeImageGen) GenerateFromImage(ctx context.Context, _, mimeType string, img []byte) (string, error) {
	f.mime, f.image = mimeType, img
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.reply, f.err
}

func testPage(w, h int) document.RasterPage {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	img.Set(1, 1, color.Black)
	return document.RasterPage{Image: img, Width: w, Height: h}
}

func TestVision_SendsDownscaledJPEG(t *testing.T) {
	gen := &fakeImageGen{reply: "```text\nH2O boils at 100C\n```"}
	v := NewVision(gen, VisionConfig{MaxSide: 100, Quality: 60, Timeout: time.Second})

	text, err := v.RecognizePage(context.Background(), testPage(400, 200))
	require.NoError(t, err)
	assert.Equal(t, "H2O boils at 100C", text)
	assert.Equal(t, "image/jpeg", gen.mime)

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(gen.image))
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Width)
	assert.Equal(t, 50, cfg.Height)
}

func TestVision_Errors(t *testing.T) {
	gen := &fakeImageGen{err: errors.New("quota")}
	v := NewVision(gen, VisionConfig{})
	_, err := v.RecognizePage(context.Background(), testPage(10, 10))
	assert.EqualError(t, err, "quota")

	_, err = v.RecognizePage(context.Background(), document.RasterPage{})
	assert.Error(t, err)
}

func TestVision_Timeout(t *testing.T) {
	v := NewVision(&fakeImageGen{block: true}, VisionConfig{Timeout: 20 * time.Millisecond})
	_, err := v.RecognizePage(context.Background(), testPage(10, 10))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
