package recognize

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exam-grader/api/internal/document"
	"exam-grader/api/internal/testutil"
)

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		in   string
		want Strategy
	}{
		{"native", StrategyNative},
		{"TEXT", StrategyNative},
		{"local", StrategyLocal},
		{" tesseract ", StrategyLocal},
		{"ocr", StrategyLocal},
		{"vision", StrategyVision},
		{"gemini", StrategyVision},
	}
	for _, tt := range tests {
		got, err := ParseStrategy(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseStrategy("magic")
	assert.ErrorIs(t, err, ErrUnknownStrategy)
}

func TestRecognizedAndFailed(t *testing.T) {
	ok := Recognized(0, "  answer  ")
	assert.Equal(t, PageExtraction{PageIndex: 0, Text: "answer", Status: StatusOK}, ok)

	empty := Recognized(2, "\n\t")
	assert.Equal(t, StatusNoText, empty.Status)
	assert.Equal(t, NoTextPlaceholder, empty.Text)

	perr := &PageRecognitionError{Page: 1, Recognizer: "vision", Err: errors.New("timeout")}
	assert.ErrorIs(t, perr, ErrPageRecognition)
	failed := Failed(1, perr)
	assert.Equal(t, StatusError, failed.Status)
	assert.Equal(t, "[Error processing page 2: timeout]", failed.Text)
}

func TestNativeExtractor(t *testing.T) {
	data := testutil.PDF("Water boils at 100 degrees", "", "Third page")
	pages, total, err := NewNativeExtractor().ExtractPages(context.Background(), data, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, pages, 3)

	assert.Equal(t, StatusOK, pages[0].Status)
	assert.Contains(t, pages[0].Text, "Water boils at 100 degrees")
	assert.Equal(t, StatusNoText, pages[1].Status)
	assert.Contains(t, pages[2].Text, "Third page")
	for i, p := range pages {
		assert.Equal(t, i, p.PageIndex)
	}
}

func TestNativeExtractor_Cap(t *testing.T) {
	data := testutil.PDF("1", "2", "3", "4", "5", "6", "7", "8", "9", "10", "11", "12")
	pages, total, err := NewNativeExtractor().ExtractPages(context.Background(), data, 5)
	require.NoError(t, err)
	assert.Equal(t, 12, total)
	assert.Len(t, pages, 5)
}

func TestNativeExtractor_RejectsNonPDF(t *testing.T) {
	_, _, err := NewNativeExtractor().ExtractPages(context.Background(), []byte("plain"), 10)
	assert.ErrorIs(t, err, document.ErrDocumentFormat)

	_, _, err = NewNativeExtractor().ExtractPages(context.Background(), []byte("%PDF-1.4 broken"), 10)
	assert.ErrorIs(t, err, document.ErrDocumentFormat)
}
