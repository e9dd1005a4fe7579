package document

import (
	"context"
	"errors"
	"image/color"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exam-grader/api/internal/testutil"
)

type fakeRunner struct {
	mu    sync.Mutex
	calls [][]string
	out   []byte
	err   error
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string{name}, args...))
	return f.out, f.err
}

func TestOpen_PDFCapsPages(t *testing.T) {
	pages := make([]string, 12)
	for i := range pages {
		pages[i] = "page text"
	}
	runner := &fakeRunner{out: testutil.PNG(20, 30, color.White)}
	r := NewRasterizerWithRunner(runner, "pdftoppm")

	doc, err := r.Open(context.Background(), testutil.PDF(pages...), Options{MaxPages: 5, DPI: 150})
	require.NoError(t, err)
	defer doc.Close()

	assert.Equal(t, 12, doc.TotalPages())
	assert.Equal(t, 5, doc.PageCount())

	p, err := doc.Render(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, 4, p.Index)
	assert.Equal(t, 20, p.Width)
	assert.Equal(t, 30, p.Height)

	require.Len(t, runner.calls, 1)
	assert.Equal(t, []string{"pdftoppm", "-png", "-r", "150", "-f", "5", "-l", "5"}, runner.calls[0][:8])

	_, err = doc.Render(context.Background(), 5)
	assert.Error(t, err, "pages past the cap are not renderable")
}

func TestRasterize_ReturnsOrderedPages(t *testing.T) {
	runner := &fakeRunner{out: testutil.PNG(10, 10, color.Black)}
	r := NewRasterizerWithRunner(runner, "")

	pages, err := r.Rasterize(context.Background(), testutil.PDF("a", "b", "c"), Options{})
	require.NoError(t, err)
	require.Len(t, pages, 3)
	for i, p := range pages {
		assert.Equal(t, i, p.Index)
		p.Release()
		assert.Nil(t, p.Image)
	}
	assert.Equal(t, "150", runner.calls[0][3], "default dpi")
}

func TestRasterize_RenderFailureFailsWhole(t *testing.T) {
	runner := &fakeRunner{err: errors.New("boom")}
	r := NewRasterizerWithRunner(runner, "pdftoppm")

	_, err := r.Rasterize(context.Background(), testutil.PDF("a"), Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestOpen_Image(t *testing.T) {
	r := NewRasterizerWithRunner(&fakeRunner{}, "pdftoppm")
	doc, err := r.Open(context.Background(), testutil.PNG(40, 10, color.White), Options{MaxPixels: 100})
	require.NoError(t, err)
	defer doc.Close()

	assert.Equal(t, 1, doc.PageCount())
	p, err := doc.Render(context.Background(), 0)
	require.NoError(t, err)
	assert.LessOrEqual(t, p.Width*p.Height, 100, "downscaled to MaxPixels")
}

func TestOpenImages_OnePagePerPhoto(t *testing.T) {
	r := NewRasterizerWithRunner(&fakeRunner{}, "pdftoppm")
	photos := [][]byte{
		testutil.PNG(30, 40, color.White),
		testutil.PNG(50, 20, color.Black),
		testutil.PNG(10, 10, color.White),
	}
	doc, err := r.OpenImages(context.Background(), photos, Options{MaxPages: 2})
	require.NoError(t, err)
	defer doc.Close()

	assert.Equal(t, 3, doc.TotalPages())
	assert.Equal(t, 2, doc.PageCount())
	p, err := doc.Render(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Index)
	assert.Equal(t, 50, p.Width, "page keeps its own size")
	assert.Equal(t, 20, p.Height)

	_, err = doc.Render(context.Background(), 2)
	assert.Error(t, err, "pages past the cap are not rendered")
}

func TestOpenImages_Errors(t *testing.T) {
	r := NewRasterizerWithRunner(&fakeRunner{}, "pdftoppm")
	cases := map[string][][]byte{
		"none":       nil,
		"pdf inside": {testutil.PNG(5, 5, color.White), testutil.PDF("x")},
		"bad png":    {testutil.PNG(5, 5, color.White), append([]byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}, "trash"...)},
	}
	for name, images := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := r.OpenImages(context.Background(), images, Options{})
			assert.ErrorIs(t, err, ErrDocumentFormat)
		})
	}
}

func TestOpen_FormatErrors(t *testing.T) {
	r := NewRasterizerWithRunner(&fakeRunner{}, "pdftoppm")
	cases := map[string][]byte{
		"empty":       nil,
		"text":        []byte("just some words"),
		"corrupt pdf": []byte("%PDF-1.4\nthis is not a pdf body"),
		"zero pages":  testutil.PDF(),
		"bad png":     append([]byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}, "trash"...),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := r.Open(context.Background(), data, Options{})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrDocumentFormat)
			var fe *DocumentFormatError
			assert.ErrorAs(t, err, &fe)
		})
	}
}

func TestClose_RemovesTempFile(t *testing.T) {
	r := NewRasterizerWithRunner(&fakeRunner{}, "pdftoppm")
	doc, err := r.Open(context.Background(), testutil.PDF("x"), Options{})
	require.NoError(t, err)

	path := doc.src.(*pdfSource).path
	_, err = os.Stat(path)
	require.NoError(t, err)

	require.NoError(t, doc.Close())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, doc.Close())
}

func TestOpen_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewRasterizer("pdftoppm").Open(ctx, testutil.PNG(2, 2, color.White), Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFit(t *testing.T) {
	img := decodePNG(t, testutil.PNG(400, 200, color.White))
	out := Fit(img, 100)
	assert.Equal(t, 100, out.Bounds().Dx())
	assert.Equal(t, 50, out.Bounds().Dy())
	assert.Same(t, img, Fit(img, 1000))
}
