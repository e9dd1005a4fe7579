//go:build ocr

package recognize

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"

	"exam-grader/api/internal/document"
)

type TesseractConfig struct {
	Langs []string
}

// Tesseract is the local OCR strategy. Setup is checked once; after that the value is read-only
// and every page gets its own short-lived client, so it is safe for concurrent pages.
type Tesseract struct {
	langs     []string
	newClient func() *gosseract.Client

	once    sync.Once
	initErr error
	version string
}

func NewTesseract(cfg TesseractConfig) *Tesseract {
	langs := cfg.Langs
	if len(langs) == 0 {
		langs = []string{"eng"}
	}
	return &Tesseract{langs: slices.Clone(langs), newClient: gosseract.NewClient}
}

func (*Tesseract) Name() string { return "tesseract" }

// Ready performs the one-time check of the tesseract install and language data.
func (t *Tesseract) Ready() error {
	t.once.Do(func() {
		t.version = gosseract.Version()
		avail, err := gosseract.GetAvailableLanguages()
		if err != nil {
			t.initErr = fmt.Errorf("tesseract languages: %w", err)
			return
		}
		var missing []string
		for _, l := range t.langs {
			if !slices.Contains(avail, l) {
				missing = append(missing, l)
			}
		}
		if len(missing) > 0 {
			t.initErr = fmt.Errorf("tesseract %s: missing language data %s", t.version, strings.Join(missing, "+"))
		}
	})
	return t.initErr
}

func (t *Tesseract) RecognizePage(ctx context.Context, page document.RasterPage) (string, error) {
	if err := t.Ready(); err != nil {
		return "", err
	}
	if page.Image == nil {
		return "", errors.New("page has no image")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	buf, err := document.EncodePNG(page.Image)
	if err != nil {
		return "", fmt.Errorf("encode page: %w", err)
	}

	c := t.newClient()
	defer c.Close()
	if err := c.SetLanguage(t.langs...); err != nil {
		return "", fmt.Errorf("set languages: %w", err)
	}
	if err := c.SetImageFromBytes(buf); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}

	if lines, err := c.GetBoundingBoxes(gosseract.RIL_TEXTLINE); err == nil && len(lines) > 0 {
		parts := make([]string, 0, len(lines))
		for _, l := range lines {
			if s := strings.TrimSpace(l.Word); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "\n"), nil
	}
	text, err := c.Text()
	if err != nil {
		return "", fmt.Errorf("recognize text: %w", err)
	}
	return strings.TrimSpace(text), nil
}
