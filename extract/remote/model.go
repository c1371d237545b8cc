package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	json "github.com/goccy/go-json"
	"github.com/sony/gobreaker"
)

var (
	// ErrEmptyEndpoint is returned by New without an endpoint.
	ErrEmptyEndpoint = errors.New("remote: endpoint is required")

	// ErrDimension is returned when the service answers with a vector of
	// the wrong length.
	ErrDimension = errors.New("remote: unexpected embedding dimension")
)

// StatusError reports a non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote: inference service returned %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether the request may succeed when retried.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Options configures a remote model.
type Options struct {
	// Version is reported by Model.Version. Defaults to "remote".
	Version string

	HTTPClient  *http.Client
	Header      http.Header
	JPEGQuality int

	// MaxRetries bounds retries per call.
	MaxRetries uint64
	// InitialInterval is the first backoff delay.
	InitialInterval time.Duration
	// MaxElapsedTime caps the total time spent retrying one call.
	MaxElapsedTime time.Duration

	// Breaker settings. ReadyToTrip defaults to five consecutive failures.
	Breaker gobreaker.Settings
}

// Model calls a remote inference service.
type Model struct {
	endpoint string
	dim      int
	opts     Options
	client   *http.Client
	cb       *gobreaker.CircuitBreaker
}

// New creates a remote model for endpoint emitting dim-length vectors.
func New(endpoint string, dim int, optFns ...func(o *Options)) (*Model, error) {
	if endpoint == "" {
		return nil, ErrEmptyEndpoint
	}
	if dim <= 0 {
		return nil, fmt.Errorf("remote: dimension must be positive, got %d", dim)
	}

	opts := Options{
		JPEGQuality:     95,
		MaxRetries:      3,
		InitialInterval: 200 * time.Millisecond,
		MaxElapsedTime:  30 * time.Second,
		Breaker: gobreaker.Settings{
			Name:    "pawprint-inference",
			Timeout: 30 * time.Second,
		},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Breaker.ReadyToTrip == nil {
		opts.Breaker.ReadyToTrip = func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		}
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}

	return &Model{
		endpoint: endpoint,
		dim:      dim,
		opts:     opts,
		client:   client,
		cb:       gobreaker.NewCircuitBreaker(opts.Breaker),
	}, nil
}

// Dimension returns the configured dimension.
func (m *Model) Dimension() int { return m.dim }

// Version returns the configured version.
func (m *Model) Version() string {
	if m.opts.Version != "" {
		return m.opts.Version
	}
	return "remote"
}

// Close releases idle connections.
func (m *Model) Close() error {
	m.client.CloseIdleConnections()
	return nil
}

// State exposes the breaker state.
func (m *Model) State() gobreaker.State { return m.cb.State() }

type response struct {
	Embedding []float32 `json:"embedding"`
}

// Embed JPEG-encodes img and posts it to the service.
func (m *Model) Embed(ctx context.Context, img *image.RGBA) ([]float32, error) {
	var body bytes.Buffer
	if err := jpeg.Encode(&body, img, &jpeg.Options{Quality: m.opts.JPEGQuality}); err != nil {
		return nil, fmt.Errorf("remote: encode jpeg: %w", err)
	}
	payload := body.Bytes()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = m.opts.InitialInterval
	bo.MaxElapsedTime = m.opts.MaxElapsedTime

	var vec []float32
	operation := func() error {
		res, err := m.cb.Execute(func() (interface{}, error) {
			return m.call(ctx, payload)
		})
		if err != nil {
			if !retryable(ctx, err) {
				return backoff.Permanent(err)
			}
			return err
		}
		vec = res.([]float32)
		return nil
	}

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, m.opts.MaxRetries), ctx))
	if err != nil {
		return nil, err
	}
	return vec, nil
}

func (m *Model) call(ctx context.Context, payload []byte) ([]float32, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "image/jpeg")
	req.Header.Set("Accept", "application/json")
	for k, vs := range m.opts.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(msg))}
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("remote: decode response: %w", err)
	}
	if len(out.Embedding) != m.dim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimension, len(out.Embedding), m.dim)
	}
	return out.Embedding, nil
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	if errors.Is(err, ErrDimension) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return true
}
