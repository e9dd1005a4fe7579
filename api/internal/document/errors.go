package document

import (
	"errors"
	"fmt"
)

// ErrDocumentFormat is the sentinel behind every DocumentFormatError.
var ErrDocumentFormat = errors.New("unsupported or corrupt document")

// DocumentFormatError means the upload cannot be paginated at all. It aborts the request.
type DocumentFormatError struct {
	Kind string // sniffed kind, "" when unknown
	Err  error
}

func (e *DocumentFormatError) Error() string {
	kind := e.Kind
	if kind == "" {
		kind = "unknown"
	}
	if e.Err == nil {
		return fmt.Sprintf("document format (%s): %s", kind, ErrDocumentFormat)
	}
	return fmt.Sprintf("document format (%s): %v", kind, e.Err)
}

func (e *DocumentFormatError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrDocumentFormat}
	}
	return []error{ErrDocumentFormat, e.Err}
}

func formatErr(kind string, err error) error {
	return &DocumentFormatError{Kind: kind, Err: err}
}
