package extract

import (
	"context"
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

// ImageNet channel statistics used for input normalization.
var (
	imageNetMean = [3]float64{0.485, 0.456, 0.406}
	imageNetStd  = [3]float64{0.229, 0.224, 0.225}
)

// GridModel is a deterministic pure-Go baseline feature model. It resizes
// the input to Size x Size, normalizes channels with ImageNet statistics
// and emits the mean normalized colour of every cell of a Cells x Cells
// grid followed by a Bins-bucket histogram per channel.
type GridModel struct {
	Size  int
	Cells int
	Bins  int
	Tag   string
}

// NewGridModel returns a GridModel with 224px input, a 4x4 grid and
// 8-bin histograms (72 dimensions).
func NewGridModel(optFns ...func(*GridModel)) *GridModel {
	m := &GridModel{Size: 224, Cells: 4, Bins: 8}
	for _, fn := range optFns {
		fn(m)
	}
	return m
}

// Dimension returns Cells*Cells*3 + 3*Bins.
func (m *GridModel) Dimension() int {
	return m.Cells*m.Cells*3 + 3*m.Bins
}

// Version returns Tag or a name derived from the geometry.
func (m *GridModel) Version() string {
	if m.Tag != "" {
		return m.Tag
	}
	return fmt.Sprintf("grid-%dpx-%dx%d-h%d-v1", m.Size, m.Cells, m.Cells, m.Bins)
}

// Close is a no-op.
func (m *GridModel) Close() error { return nil }

// Embed computes the grid features.
func (m *GridModel) Embed(ctx context.Context, img *image.RGBA) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.Size < m.Cells || m.Cells <= 0 || m.Bins <= 0 {
		return nil, fmt.Errorf("extract: invalid grid geometry size=%d cells=%d bins=%d", m.Size, m.Cells, m.Bins)
	}
	if img.Bounds().Empty() {
		return nil, ErrEmptyImage
	}

	resized := image.NewRGBA(image.Rect(0, 0, m.Size, m.Size))
	draw.BiLinear.Scale(resized, resized.Bounds(), img, img.Bounds(), draw.Src, nil)

	cellSums := make([][3]float64, m.Cells*m.Cells)
	cellCounts := make([]float64, m.Cells*m.Cells)
	hist := make([][]float64, 3)
	for c := range hist {
		hist[c] = make([]float64, m.Bins)
	}

	for y := 0; y < m.Size; y++ {
		cy := y * m.Cells / m.Size
		for x := 0; x < m.Size; x++ {
			cx := x * m.Cells / m.Size
			cell := cy*m.Cells + cx
			px := resized.RGBAAt(x, y)
			raw := [3]uint8{px.R, px.G, px.B}
			for c, v := range raw {
				unit := float64(v) / 255
				cellSums[cell][c] += (unit - imageNetMean[c]) / imageNetStd[c]
				bin := int(v) * m.Bins / 256
				hist[c][bin]++
			}
			cellCounts[cell]++
		}
	}

	out := make([]float32, 0, m.Dimension())
	for cell := range cellSums {
		for c := range 3 {
			out = append(out, float32(cellSums[cell][c]/cellCounts[cell]))
		}
	}
	total := float64(m.Size * m.Size)
	for c := range hist {
		for _, n := range hist[c] {
			out = append(out, float32(n/total))
		}
	}
	return out, nil
}
