package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
)

// Palette is a set of clearly distinct colours for synthetic photos.
var Palette = []color.RGBA{
	{R: 200, G: 40, B: 40, A: 255},
	{R: 40, G: 180, B: 60, A: 255},
	{R: 40, G: 60, B: 200, A: 255},
	{R: 220, G: 200, B: 40, A: 255},
	{R: 150, G: 60, B: 190, A: 255},
	{R: 30, G: 190, B: 190, A: 255},
}

// PatternImage draws a w x h image whose quadrants are filled with palette
// colours chosen by seed. Different seeds give visibly different images.
func PatternImage(seed, w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	n := len(Palette)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			q := 0
			if x >= w/2 {
				q++
			}
			if y >= h/2 {
				q += 2
			}
			img.SetRGBA(x, y, Palette[(seed+q*(seed+1))%n])
		}
	}
	return img
}

// PNG encodes PatternImage(seed, 32, 32) as PNG.
func PNG(seed int) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, PatternImage(seed, 32, 32)); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// JPEG encodes PatternImage(seed, 32, 32) as JPEG.
func JPEG(seed int) []byte {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, PatternImage(seed, 32, 32), &jpeg.Options{Quality: 95}); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// CorruptImage returns bytes that look like a JPEG but cannot be decoded.
func CorruptImage() []byte {
	return []byte{0xFF, 0xD8, 0xFF, 0xE0, 'n', 'o', 't', ' ', 'a', 'n', ' ', 'i', 'm', 'a', 'g', 'e'}
}
