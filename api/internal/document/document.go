package document

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os/exec"

	"exam-grader/api/internal/util"
)

const (
	DefaultMaxPages  = 10
	DefaultDPI       = 150
	DefaultMaxPixels = 18_000_000
)

// Options bound the cost of one document. Zero values fall back to the defaults.
type Options struct {
	MaxPages  int
	DPI       int
	MaxPixels int
}

func (o Options) normalized() Options {
	if o.MaxPages <= 0 {
		o.MaxPages = DefaultMaxPages
	}
	if o.DPI <= 0 {
		o.DPI = DefaultDPI
	}
	if o.MaxPixels <= 0 {
		o.MaxPixels = DefaultMaxPixels
	}
	return o
}

// RasterPage is one rendered page. It belongs to a single pipeline run.
type RasterPage struct {
	Index  int
	Image  image.Image
	Width  int
	Height int
}

// Release drops the bitmap so the page can be collected before the next one is rendered.
func (p *RasterPage) Release() {
	p.Image = nil
}

type source interface {
	pages() int
	render(ctx context.Context, index int, opts Options) (image.Image, error)
	close() error
}

// Rasterizer turns uploads into page images. PDFs are rendered by poppler's pdftoppm.
type Rasterizer struct {
	runner   CommandRunner
	pdftoppm string
}

func NewRasterizer(pdftoppmPath string) *Rasterizer {
	return NewRasterizerWithRunner(execRunner{}, pdftoppmPath)
}

func NewRasterizerWithRunner(runner CommandRunner, pdftoppmPath string) *Rasterizer {
	if pdftoppmPath == "" {
		pdftoppmPath = "pdftoppm"
	}
	return &Rasterizer{runner: runner, pdftoppm: pdftoppmPath}
}

// CheckRenderer reports whether pdftoppm can be found. Image uploads work without it.
func (r *Rasterizer) CheckRenderer() error {
	if _, ok := r.runner.(execRunner); !ok {
		return nil
	}
	if _, err := exec.LookPath(r.pdftoppm); err != nil {
		return fmt.Errorf("pdf renderer %q: %w", r.pdftoppm, err)
	}
	return nil
}

// Document is an opened upload. Call Close when done.
type Document struct {
	Kind  string
	src   source
	opts  Options
	total int
}

// Open sniffs and validates data. It never returns a partially usable document.
func (r *Rasterizer) Open(ctx context.Context, data []byte, opts Options) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	opts = opts.normalized()
	kind := util.SniffKind(data)

	var (
		src source
		err error
	)
	switch kind {
	case util.KindPDF:
		src, err = openPDF(data, r)
	case util.KindPNG, util.KindJPEG, util.KindTIFF, util.KindBMP, util.KindWEBP:
		src, err = openImages([][]byte{data})
	case "":
		return nil, formatErr("", errors.New("unrecognized file signature"))
	default:
		return nil, formatErr(kind, errors.New("unsupported kind"))
	}
	if err != nil {
		return nil, formatErr(kind, err)
	}
	total := src.pages()
	if total <= 0 {
		_ = src.close()
		return nil, formatErr(kind, errors.New("document has no pages"))
	}
	return &Document{Kind: kind, src: src, opts: opts, total: total}, nil
}

// OpenImages treats each picture as one page, in the given order, so a batch of photos goes
// through the same page cap and per-page handling as a PDF.
func (r *Rasterizer) OpenImages(ctx context.Context, images [][]byte, opts Options) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, formatErr("", errors.New("document has no pages"))
	}
	for i, b := range images {
		if kind := util.SniffKind(b); !isImageKind(kind) {
			return nil, formatErr(kind, fmt.Errorf("page %d is not an image", i+1))
		}
	}
	kind := util.SniffKind(images[0])
	src, err := openImages(images)
	if err != nil {
		return nil, formatErr(kind, err)
	}
	return &Document{Kind: kind, src: src, opts: opts.normalized(), total: src.pages()}, nil
}

// PageCount is the number of pages that will be processed, after the cap.
func (d *Document) PageCount() int {
	return min(d.total, d.opts.MaxPages)
}

// TotalPages is the page count before the cap.
func (d *Document) TotalPages() int {
	return d.total
}

// Render rasterizes page index (0-based) at the configured DPI.
func (d *Document) Render(ctx context.Context, index int) (RasterPage, error) {
	if index < 0 || index >= d.PageCount() {
		return RasterPage{}, fmt.Errorf("page %d out of range [0,%d)", index, d.PageCount())
	}
	if err := ctx.Err(); err != nil {
		return RasterPage{}, err
	}
	img, err := d.src.render(ctx, index, d.opts)
	if err != nil {
		return RasterPage{}, fmt.Errorf("render page %d: %w", index+1, err)
	}
	img = FitPixels(img, d.opts.MaxPixels)
	b := img.Bounds()
	return RasterPage{Index: index, Image: img, Width: b.Dx(), Height: b.Dy()}, nil
}

func (d *Document) Close() error {
	if d == nil || d.src == nil {
		return nil
	}
	return d.src.close()
}

// Rasterize renders every page up to the cap. Any render failure fails the whole call.
func (r *Rasterizer) Rasterize(ctx context.Context, data []byte, opts Options) ([]RasterPage, error) {
	doc, err := r.Open(ctx, data, opts)
	if err != nil {
		return nil, err
	}
	defer doc.Close()

	pages := make([]RasterPage, 0, doc.PageCount())
	for i := 0; i < doc.PageCount(); i++ {
		p, err := doc.Render(ctx, i)
		if err != nil {
			return nil, err
		}
		pages = append(pages, p)
	}
	return pages, nil
}
