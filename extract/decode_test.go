package extract

import (
	"bytes"
	"image"
	"image/gif"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/hupe1980/pawprint/testutil"
)

func encodeWith(t *testing.T, enc func(*bytes.Buffer, image.Image) error) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, enc(&buf, testutil.PatternImage(2, 16, 12)))
	return buf.Bytes()
}

func TestDecoderFormats(t *testing.T) {
	d := NewDecoder()

	tests := []struct {
		name string
		data []byte
	}{
		{"png", testutil.PNG(1)},
		{"jpeg", testutil.JPEG(1)},
		{"gif", encodeWith(t, func(b *bytes.Buffer, img image.Image) error { return gif.Encode(b, img, nil) })},
		{"bmp", encodeWith(t, func(b *bytes.Buffer, img image.Image) error { return bmp.Encode(b, img) })},
		{"tiff", encodeWith(t, func(b *bytes.Buffer, img image.Image) error { return tiff.Encode(b, img, nil) })},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := d.Decode(tt.data)
			require.NoError(t, err)
			assert.Equal(t, image.Point{}, img.Bounds().Min)
			assert.False(t, img.Bounds().Empty())
		})
	}
}

func TestDecoderPreservesPixels(t *testing.T) {
	img, err := NewDecoder().Decode(testutil.PNG(3))
	require.NoError(t, err)
	assert.Equal(t, testutil.PatternImage(3, 32, 32).Pix, img.Pix)
}

func TestDecoderErrors(t *testing.T) {
	d := NewDecoder()

	_, err := d.Decode(nil)
	require.ErrorIs(t, err, ErrEmptyImage)
	assert.True(t, IsDecodeError(err))

	_, err = d.Decode(testutil.CorruptImage())
	assert.True(t, IsDecodeError(err))

	_, err = d.Decode([]byte("plain text, not an image"))
	assert.True(t, IsDecodeError(err))

	small := &Decoder{MaxPixels: 100}
	_, err = small.Decode(testutil.PNG(1))
	assert.ErrorIs(t, err, ErrImageTooLarge)
}

func TestToRGBA(t *testing.T) {
	src := testutil.PatternImage(4, 10, 10)
	assert.Same(t, src, ToRGBA(src))

	sub := src.SubImage(image.Rect(5, 5, 10, 10))
	out := ToRGBA(sub)
	assert.Equal(t, image.Rect(0, 0, 5, 5), out.Bounds())
	assert.Equal(t, src.RGBAAt(7, 7), out.RGBAAt(2, 2))
}
