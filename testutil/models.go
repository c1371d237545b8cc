package testutil

import (
	"context"
	"errors"
	"image"
	"sync/atomic"
)

// QuadrantModel is a deterministic embedding model for tests.
// It emits the mean RGB of each image quadrant (12 values in [0, 1]).
// It satisfies extract.Model.
type QuadrantModel struct {
	Tag   string
	calls atomic.Int64
}

// Embed computes the quadrant means.
func (m *QuadrantModel) Embed(ctx context.Context, img *image.RGBA) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.calls.Add(1)

	b := img.Bounds()
	var sums [4][3]float64
	var counts [4]float64
	midX := b.Min.X + b.Dx()/2
	midY := b.Min.Y + b.Dy()/2
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			q := 0
			if x >= midX {
				q++
			}
			if y >= midY {
				q += 2
			}
			c := img.RGBAAt(x, y)
			sums[q][0] += float64(c.R)
			sums[q][1] += float64(c.G)
			sums[q][2] += float64(c.B)
			counts[q]++
		}
	}

	out := make([]float32, 0, 12)
	for q := range 4 {
		for c := range 3 {
			if counts[q] == 0 {
				out = append(out, 0)
				continue
			}
			out = append(out, float32(sums[q][c]/counts[q]/255))
		}
	}
	return out, nil
}

// Dimension returns 12.
func (m *QuadrantModel) Dimension() int { return 12 }

// Version returns the model tag.
func (m *QuadrantModel) Version() string {
	if m.Tag == "" {
		return "quadrant-v1"
	}
	return m.Tag
}

// Close is a no-op.
func (m *QuadrantModel) Close() error { return nil }

// Calls returns how many times Embed ran.
func (m *QuadrantModel) Calls() int64 { return m.calls.Load() }

// ErrModelFailure is returned by FailingModel.
var ErrModelFailure = errors.New("testutil: model failure")

// FailingModel always fails inference.
type FailingModel struct {
	Dim int
}

// Embed returns ErrModelFailure.
func (m *FailingModel) Embed(context.Context, *image.RGBA) ([]float32, error) {
	return nil, ErrModelFailure
}

// Dimension returns the configured dimension.
func (m *FailingModel) Dimension() int { return m.Dim }

// Version returns "failing".
func (m *FailingModel) Version() string { return "failing" }

// Close is a no-op.
func (m *FailingModel) Close() error { return nil }
