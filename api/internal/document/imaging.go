package document

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"
	"math"

	"golang.org/x/image/draw"
)

// Fit scales img down so that its longest side is at most maxSide.
// The original is returned when it already fits or maxSide <= 0.
func Fit(img image.Image, maxSide int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxSide <= 0 || (w <= maxSide && h <= maxSide) {
		return img
	}
	scale := float64(maxSide) / float64(max(w, h))
	return scaleTo(img, int(float64(w)*scale+0.5), int(float64(h)*scale+0.5))
}

// FitPixels scales img down to at most maxPixels total pixels.
func FitPixels(img image.Image, maxPixels int) image.Image {
	b := img.Bounds()
	total := b.Dx() * b.Dy()
	if maxPixels <= 0 || total <= maxPixels {
		return img
	}
	scale := math.Sqrt(float64(maxPixels) / float64(total))
	return scaleTo(img, int(float64(b.Dx())*scale), int(float64(b.Dy())*scale))
}

func scaleTo(src image.Image, w, h int) *image.RGBA {
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

// EncodeJPEG is the compressed, quality-reduced encoding sent to vision models.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var out bytes.Buffer
	if err := jpeg.Encode(&out, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// EncodePNG is the lossless encoding handed to local OCR.
func EncodePNG(img image.Image) ([]byte, error) {
	var out bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&out, img); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
