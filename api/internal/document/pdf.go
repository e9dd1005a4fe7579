package document

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"strconv"

	"github.com/ledongthuc/pdf"
)

type pdfSource struct {
	r     *Rasterizer
	path  string
	count int
}

// CountPDFPages parses the page tree. The parser panics on some malformed files, so that is
// turned into an error.
func CountPDFPages(data []byte) (n int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			n, err = 0, fmt.Errorf("pdf parser: %v", rec)
		}
	}()
	rd, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, err
	}
	return rd.NumPage(), nil
}

func openPDF(data []byte, r *Rasterizer) (*pdfSource, error) {
	n, err := CountPDFPages(data)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return &pdfSource{r: r}, nil
	}

	// pdftoppm reads from a path, not stdin.
	f, err := os.CreateTemp("", "exam-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("temp file: %w", err)
	}
	return &pdfSource{r: r, path: f.Name(), count: n}, nil
}

func (s *pdfSource) pages() int { return s.count }

func (s *pdfSource) render(ctx context.Context, index int, opts Options) (image.Image, error) {
	page := strconv.Itoa(index + 1)
	// No output root: pdftoppm writes the single PNG to stdout.
	out, err := s.r.runner.Run(ctx, s.r.pdftoppm,
		"-png", "-r", strconv.Itoa(opts.DPI), "-f", page, "-l", page, s.path)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("pdftoppm produced no output")
	}
	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		return nil, fmt.Errorf("decode rendered page: %w", err)
	}
	return img, nil
}

func (s *pdfSource) close() error {
	if s.path == "" {
		return nil
	}
	err := os.Remove(s.path)
	s.path = ""
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
