// Package extraction runs a recognition strategy over every page of an upload and folds the
// results into one ordered, page-marked text.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"exam-grader/api/internal/document"
	"exam-grader/api/internal/recognize"
)

var ErrStrategyUnavailable = errors.New("extraction strategy not configured")

// Rasterizer is the part of document.Rasterizer the pipeline uses.
type Rasterizer interface {
	Open(ctx context.Context, data []byte, opts document.Options) (*document.Document, error)
	OpenImages(ctx context.Context, images [][]byte, opts document.Options) (*document.Document, error)
}

// ExtractedDocument holds one entry per processed page, ascending by index.
type ExtractedDocument struct {
	Pages      []recognize.PageExtraction `json:"pages"`
	FullText   string                     `json:"full_text"`
	Strategy   recognize.Strategy         `json:"strategy"`
	TotalPages int                        `json:"total_pages"`
}

// Text rebuilds FullText from Pages.
func (d ExtractedDocument) Text() string {
	return Join(d.Pages)
}

// FailedPages counts pages that ended up as error placeholders.
func (d ExtractedDocument) FailedPages() int {
	n := 0
	for _, p := range d.Pages {
		if p.Status == recognize.StatusError {
			n++
		}
	}
	return n
}

// Join renders pages as "--- Page N ---" blocks separated by a blank line.
func Join(pages []recognize.PageExtraction) string {
	var b strings.Builder
	for i, p := range pages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "--- Page %d ---\n%s", p.PageIndex+1, p.Text)
	}
	return b.String()
}

type Config struct {
	Options     document.Options
	Workers     int
	Recognizers map[recognize.Strategy]recognize.PageRecognizer
	Native      recognize.TextExtractor
}

// Pipeline keeps no per-document state and may serve concurrent requests.
type Pipeline struct {
	raster      Rasterizer
	native      recognize.TextExtractor
	recognizers map[recognize.Strategy]recognize.PageRecognizer
	opts        document.Options
	workers     int
	log         logrus.FieldLogger
}

func New(r Rasterizer, log logrus.FieldLogger, cfg Config) *Pipeline {
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	recs := make(map[recognize.Strategy]recognize.PageRecognizer, len(cfg.Recognizers))
	for s, rec := range cfg.Recognizers {
		if rec != nil {
			recs[s] = rec
		}
	}
	return &Pipeline{
		raster:      r,
		native:      cfg.Native,
		recognizers: recs,
		opts:        cfg.Options,
		workers:     workers,
		log:         log,
	}
}

// Supports reports whether strategy can be served.
func (p *Pipeline) Supports(strategy recognize.Strategy) bool {
	if strategy == recognize.StrategyNative {
		return p.native != nil
	}
	_, ok := p.recognizers[strategy]
	return ok
}

// Extract fails only when the document cannot be opened, the strategy is not configured, or ctx
// ends. Every page-level failure becomes a placeholder entry instead.
func (p *Pipeline) Extract(ctx context.Context, data []byte, strategy recognize.Strategy) (ExtractedDocument, error) {
	return p.run(ctx, strategy, func(log logrus.FieldLogger) (ExtractedDocument, error) {
		if strategy == recognize.StrategyNative {
			return p.extractNative(ctx, data, log)
		}
		doc, err := p.raster.Open(ctx, data, p.opts)
		if err != nil {
			return ExtractedDocument{}, err
		}
		return p.extractRaster(ctx, doc, p.recognizers[strategy], log)
	})
}

// ExtractImages treats each picture as one page of a single document, in order.
func (p *Pipeline) ExtractImages(ctx context.Context, images [][]byte, strategy recognize.Strategy) (ExtractedDocument, error) {
	return p.run(ctx, strategy, func(log logrus.FieldLogger) (ExtractedDocument, error) {
		if strategy == recognize.StrategyNative {
			return ExtractedDocument{}, &document.DocumentFormatError{Kind: "image", Err: errors.New("native text needs a PDF")}
		}
		doc, err := p.raster.OpenImages(ctx, images, p.opts)
		if err != nil {
			return ExtractedDocument{}, err
		}
		return p.extractRaster(ctx, doc, p.recognizers[strategy], log)
	})
}

func (p *Pipeline) run(ctx context.Context, strategy recognize.Strategy, extract func(logrus.FieldLogger) (ExtractedDocument, error)) (ExtractedDocument, error) {
	if !p.Supports(strategy) {
		return ExtractedDocument{}, fmt.Errorf("%w: %s", ErrStrategyUnavailable, strategy)
	}
	start := time.Now()
	log := p.log.WithField("strategy", strategy)

	out, err := extract(log)
	if err != nil {
		return ExtractedDocument{}, err
	}
	out.Strategy = strategy
	out.FullText = out.Text()

	log.WithFields(logrus.Fields{
		"pages":       len(out.Pages),
		"total_pages": out.TotalPages,
		"failed":      out.FailedPages(),
		"took":        time.Since(start).Round(time.Millisecond).String(),
	}).Info("extraction done")
	return out, nil
}

func (p *Pipeline) extractNative(ctx context.Context, data []byte, log logrus.FieldLogger) (ExtractedDocument, error) {
	maxPages := p.opts.MaxPages
	if maxPages <= 0 {
		maxPages = document.DefaultMaxPages
	}
	pages, total, err := p.native.ExtractPages(ctx, data, maxPages)
	if err != nil {
		return ExtractedDocument{}, err
	}
	for _, pg := range pages {
		if pg.Status == recognize.StatusError {
			log.WithField("page", pg.PageIndex+1).Warn(pg.Text)
		}
	}
	return ExtractedDocument{Pages: pages, TotalPages: total}, nil
}

func (p *Pipeline) extractRaster(ctx context.Context, doc *document.Document, rec recognize.PageRecognizer, log logrus.FieldLogger) (ExtractedDocument, error) {
	defer doc.Close()

	n := doc.PageCount()
	if doc.TotalPages() > n {
		log.WithFields(logrus.Fields{"total_pages": doc.TotalPages(), "cap": n}).Info("page cap applied")
	}

	// each worker writes only its own slot
	pages := make([]recognize.PageExtraction, n)
	var g errgroup.Group
	g.SetLimit(p.workers)
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			// Go may have blocked on the limit while ctx ended
			if ctx.Err() != nil {
				return nil
			}
			pages[i] = p.page(ctx, doc, rec, i, log)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return ExtractedDocument{}, err
	}
	return ExtractedDocument{Pages: pages, TotalPages: doc.TotalPages()}, nil
}

func (p *Pipeline) page(ctx context.Context, doc *document.Document, rec recognize.PageRecognizer, i int, log logrus.FieldLogger) (res recognize.PageExtraction) {
	fail := func(err error) recognize.PageExtraction {
		perr := &recognize.PageRecognitionError{Page: i, Recognizer: rec.Name(), Err: err}
		log.WithError(perr).WithField("page", i+1).Warn("page recognition failed")
		return recognize.Failed(i, perr)
	}
	defer func() {
		if r := recover(); r != nil {
			res = fail(fmt.Errorf("panic: %v", r))
		}
	}()

	page, err := doc.Render(ctx, i)
	if err != nil {
		return fail(err)
	}
	text, err := rec.RecognizePage(ctx, page)
	page.Release()
	if err != nil {
		return fail(err)
	}
	return recognize.Recognized(i, text)
}
