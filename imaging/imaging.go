// Package imaging decodes, resizes and re-encodes images for icons and
// editor uploads.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"
)

const (
	MaxUploadWidth = 800
	JPEGQuality    = 80
	MaxUploadSize  = 10 << 20 // 10MB

	maxNameAttempts = 1000
)

// Decode reads any registered image format.
func Decode(src io.Reader) (image.Image, error) {
	img, _, err := image.Decode(src)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// FitWidth scales img down to maxWidth, keeping its aspect ratio. Narrower
// images are returned unchanged.
func FitWidth(img image.Image, maxWidth int) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= maxWidth {
		return img
	}
	newH := max(h*maxWidth/w, 1)
	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}

// Square scales img into a size x size canvas, centred and letterboxed on a
// transparent background.
func Square(img image.Image, size int) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	dw, dh := size, size
	if w > h {
		dh = max(h*size/w, 1)
	} else if h > w {
		dw = max(w*size/h, 1)
	}
	dst := image.NewNRGBA(image.Rect(0, 0, size, size))
	x0, y0 := (size-dw)/2, (size-dh)/2
	draw.CatmullRom.Scale(dst, image.Rect(x0, y0, x0+dw, y0+dh), img, bounds, draw.Over, nil)
	return dst
}

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Upload is an image accepted from the editor.
type Upload struct {
	Filename     string
	OriginalName string
	Width        int
	Height       int
	Size         int
}

// ProcessUpload decodes an image from src, resizes it to MaxUploadWidth
// when wider, and encodes it as JPEG.
func ProcessUpload(src io.Reader, originalName string, slugify func(string) string) (Upload, []byte, error) {
	img, err := Decode(src)
	if err != nil {
		return Upload{}, nil, err
	}
	img = FitWidth(img, MaxUploadWidth)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return Upload{}, nil, fmt.Errorf("encode jpeg: %w", err)
	}

	base := slugify(strings.TrimSuffix(originalName, filepath.Ext(originalName)))
	if base == "" {
		base = "image"
	}
	b := img.Bounds()
	return Upload{
		Filename:     base + ".jpg",
		OriginalName: originalName,
		Width:        b.Dx(),
		Height:       b.Dy(),
		Size:         buf.Len(),
	}, buf.Bytes(), nil
}

// UniqueName appends a counter to filename until exists reports false. It
// gives up after maxNameAttempts candidates or on the first lookup error.
func UniqueName(filename string, exists func(string) (bool, error)) (string, error) {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)
	candidate := filename
	for counter := 2; counter <= maxNameAttempts+1; counter++ {
		taken, err := exists(candidate)
		if err != nil {
			return "", fmt.Errorf("check %s: %w", candidate, err)
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d%s", base, counter, ext)
	}
	return "", fmt.Errorf("no free name for %s after %d attempts", filename, maxNameAttempts)
}
