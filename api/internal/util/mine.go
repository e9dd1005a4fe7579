package util

import "bytes"

// Kinds of upload the grader understands.
const (
	KindPDF  = "pdf"
	KindPNG  = "png"
	KindJPEG = "jpeg"
	KindTIFF = "tiff"
	KindBMP  = "bmp"
	KindWEBP = "webp"
)

// SniffKind detects the upload kind by magic bytes. Empty string means unknown.
func SniffKind(b []byte) string {
	switch {
	// PDF: viewers tolerate junk or a BOM before the header, so do we
	case bytes.Contains(head(b, 1024), []byte("%PDF-")):
		return KindPDF
	case len(b) >= 2 && b[0] == 0xFF && b[1] == 0xD8:
		return KindJPEG
	case len(b) >= 8 &&
		b[0] == 0x89 && b[1] == 0x50 && b[2] == 0x4E && b[3] == 0x47 &&
		b[4] == 0x0D && b[5] == 0x0A && b[6] == 0x1A && b[7] == 0x0A:
		return KindPNG
	case len(b) >= 4 && (bytes.Equal(b[:4], []byte("II*\x00")) || bytes.Equal(b[:4], []byte("MM\x00*"))):
		return KindTIFF
	case len(b) >= 2 && b[0] == 'B' && b[1] == 'M':
		return KindBMP
	case len(b) >= 12 && bytes.Equal(b[:4], []byte("RIFF")) && bytes.Equal(b[8:12], []byte("WEBP")):
		return KindWEBP
	}
	return ""
}

// SniffMimeHTTP returns a MIME type suitable for HTTP headers and genai blobs.
func SniffMimeHTTP(b []byte) string {
	switch SniffKind(b) {
	case KindPDF:
		return "application/pdf"
	case KindJPEG:
		return "image/jpeg"
	case KindPNG:
		return "image/png"
	case KindTIFF:
		return "image/tiff"
	case KindBMP:
		return "image/bmp"
	case KindWEBP:
		return "image/webp"
	}
	return "application/octet-stream"
}

func head(b []byte, n int) []byte {
	if len(b) < n {
		return b
	}
	return b[:n]
}
