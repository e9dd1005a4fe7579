package document

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"exam-grader/api/internal/util"
)

// imageSource holds uploaded pictures, one page each, in upload order.
type imageSource struct {
	images [][]byte
}

func isImageKind(kind string) bool {
	switch kind {
	case util.KindPNG, util.KindJPEG, util.KindTIFF, util.KindBMP, util.KindWEBP:
		return true
	}
	return false
}

func openImages(images [][]byte) (*imageSource, error) {
	for i, b := range images {
		if _, _, err := image.DecodeConfig(bytes.NewReader(b)); err != nil {
			if len(images) > 1 {
				return nil, fmt.Errorf("page %d: %w", i+1, err)
			}
			return nil, err
		}
	}
	return &imageSource{images: images}, nil
}

func (s *imageSource) pages() int { return len(s.images) }

// render ignores DPI: the scan already has its resolution.
func (s *imageSource) render(_ context.Context, index int, _ Options) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(s.images[index]))
	return img, err
}

func (s *imageSource) close() error {
	s.images = nil
	return nil
}
