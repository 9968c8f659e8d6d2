package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif" // register gif
	"image/jpeg"
	_ "image/png" // register png
	"io"
	"net/http"

	"golang.org/x/image/draw"
)

const (
	// SelfieSize is the edge length of the stored square selfie.
	SelfieSize = 300
	// MaxSelfieBytes caps the accepted upload size.
	MaxSelfieBytes = 5 << 20

	jpegQuality = 85
)

// ErrInvalidImage is returned for uploads that are too large or not a
// supported image format.
var ErrInvalidImage = errors.New("invalid image")

var allowedTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
}

// PrepareSelfie validates an uploaded image and returns it as a
// SelfieSize x SelfieSize JPEG, center-cropped to fill the square.
func PrepareSelfie(r io.Reader) ([]byte, error) {
	raw, err := io.ReadAll(io.LimitReader(r, MaxSelfieBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read selfie: %w", err)
	}
	if len(raw) > MaxSelfieBytes {
		return nil, fmt.Errorf("%w: selfie must be at most 5MB", ErrInvalidImage)
	}
	if contentType := http.DetectContentType(raw); !allowedTypes[contentType] {
		return nil, fmt.Errorf("%w: selfie must be a jpg, jpeg, png or gif image", ErrInvalidImage)
	}

	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	var out bytes.Buffer
	if err := jpeg.Encode(&out, FillSquare(src, SelfieSize), &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode selfie: %w", err)
	}
	return out.Bytes(), nil
}

// FillSquare crops the centered square of src and scales it to size x size.
func FillSquare(src image.Image, size int) *image.RGBA {
	b := src.Bounds()
	side := min(b.Dx(), b.Dy())
	x0 := b.Min.X + (b.Dx()-side)/2
	y0 := b.Min.Y + (b.Dy()-side)/2
	crop := image.Rect(x0, y0, x0+side, y0+side)

	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, crop, draw.Over, nil)
	return dst
}
