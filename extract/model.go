package extract

import (
	"context"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
)

// Model is a deterministic feature model: two calls on identical pixels
// return identical vectors.
type Model interface {
	// Embed returns a vector of length Dimension().
	Embed(ctx context.Context, img *image.RGBA) ([]float32, error)

	// Dimension is the fixed embedding length.
	Dimension() int

	// Version identifies weights and preprocessing. Embeddings from
	// different versions are not comparable.
	Version() string

	// Close releases the model.
	Close() error
}

type modelBox struct {
	m Model
}

// ModelHandle is the process-wide holder of the loaded model. The model is
// created once at startup and only replaced through Swap.
type ModelHandle struct {
	current atomic.Pointer[modelBox]
	swapMu  sync.Mutex
}

// NewModelHandle wraps an already loaded model.
func NewModelHandle(m Model) *ModelHandle {
	h := &ModelHandle{}
	if m != nil {
		h.current.Store(&modelBox{m: m})
	}
	return h
}

// Current returns the loaded model, or nil.
func (h *ModelHandle) Current() Model {
	if b := h.current.Load(); b != nil {
		return b.m
	}
	return nil
}

// Version returns the current model version, or "".
func (h *ModelHandle) Version() string {
	if m := h.Current(); m != nil {
		return m.Version()
	}
	return ""
}

// Swap installs next and returns the model it replaced. In-flight calls
// keep using the old model; the caller decides when to Close it.
// The new model must keep the embedding dimension.
func (h *ModelHandle) Swap(next Model) (Model, error) {
	if next == nil {
		return nil, ErrNoModel
	}
	h.swapMu.Lock()
	defer h.swapMu.Unlock()

	prev := h.Current()
	if prev != nil && prev.Dimension() != next.Dimension() {
		return nil, fmt.Errorf("%w: %d -> %d", ErrDimensionChanged, prev.Dimension(), next.Dimension())
	}
	h.current.Store(&modelBox{m: next})
	return prev, nil
}

// Close closes the current model and empties the handle.
func (h *ModelHandle) Close() error {
	h.swapMu.Lock()
	defer h.swapMu.Unlock()

	b := h.current.Swap(nil)
	if b == nil {
		return nil
	}
	return b.m.Close()
}
