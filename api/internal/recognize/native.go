package recognize

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/ledongthuc/pdf"

	"exam-grader/api/internal/document"
	"exam-grader/api/internal/util"
)

// NativeExtractor reads the text layer of typed PDFs. Scanned pages have none and come back as
// no_text_detected.
type NativeExtractor struct{}

func NewNativeExtractor() *NativeExtractor { return &NativeExtractor{} }

func (*NativeExtractor) Name() string { return string(StrategyNative) }

func (n *NativeExtractor) ExtractPages(ctx context.Context, data []byte, maxPages int) ([]PageExtraction, int, error) {
	if kind := util.SniffKind(data); kind != util.KindPDF {
		return nil, 0, &document.DocumentFormatError{Kind: kind, Err: errors.New("native text needs a PDF")}
	}
	rd, err := openReader(data)
	if err != nil {
		return nil, 0, &document.DocumentFormatError{Kind: util.KindPDF, Err: err}
	}
	total := rd.NumPage()
	if total == 0 {
		return nil, 0, &document.DocumentFormatError{Kind: util.KindPDF, Err: errors.New("document has no pages")}
	}
	limit := total
	if maxPages > 0 && maxPages < limit {
		limit = maxPages
	}

	out := make([]PageExtraction, 0, limit)
	for i := 0; i < limit; i++ {
		if err := ctx.Err(); err != nil {
			return nil, total, err
		}
		text, err := pageText(rd, i+1)
		if err != nil {
			out = append(out, Failed(i, &PageRecognitionError{Page: i, Recognizer: n.Name(), Err: err}))
			continue
		}
		out = append(out, Recognized(i, text))
	}
	return out, total, nil
}

func openReader(data []byte) (rd *pdf.Reader, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			rd, err = nil, fmt.Errorf("pdf parser: %v", rec)
		}
	}()
	return pdf.NewReader(bytes.NewReader(data), int64(len(data)))
}

// pageText recovers from parser panics on odd content streams.
func pageText(rd *pdf.Reader, num int) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			text, err = "", fmt.Errorf("pdf text: %v", rec)
		}
	}()
	p := rd.Page(num)
	if p.V.IsNull() {
		return "", nil
	}
	return p.GetPlainText(nil)
}
