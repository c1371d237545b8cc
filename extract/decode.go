package extract

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // register GIF
	_ "image/jpeg" // register JPEG
	_ "image/png"  // register PNG

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"  // register BMP
	_ "golang.org/x/image/tiff" // register TIFF
	_ "golang.org/x/image/webp" // register WebP
)

// DefaultMaxPixels bounds decoded image size (64 megapixels).
const DefaultMaxPixels = 64 << 20

// Decoder turns raw bytes into a canonical RGBA pixel grid.
type Decoder struct {
	// MaxPixels rejects images whose width*height exceeds it.
	// Zero means DefaultMaxPixels.
	MaxPixels int
}

// NewDecoder returns a decoder with default limits.
func NewDecoder() *Decoder {
	return &Decoder{MaxPixels: DefaultMaxPixels}
}

// Decode decodes data and converts it to *image.RGBA with origin (0, 0).
// Every failure is a *DecodeError.
func (d *Decoder) Decode(data []byte) (*image.RGBA, error) {
	if len(data) == 0 {
		return nil, &DecodeError{Err: ErrEmptyImage}
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	limit := d.MaxPixels
	if limit <= 0 {
		limit = DefaultMaxPixels
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > limit {
		return nil, &DecodeError{
			Format: format,
			Err:    fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height),
		}
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Format: format, Err: err}
	}
	return ToRGBA(img), nil
}

// ToRGBA converts img to *image.RGBA anchored at (0, 0). An RGBA image
// already in that shape is returned as is.
func ToRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	if rgba, ok := img.(*image.RGBA); ok && b.Min == (image.Point{}) {
		return rgba
	}
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}
