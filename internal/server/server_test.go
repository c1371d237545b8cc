package server

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pawprint"
	"github.com/hupe1980/pawprint/catalog"
	"github.com/hupe1980/pawprint/dataset"
	"github.com/hupe1980/pawprint/distance"
	"github.com/hupe1980/pawprint/extract"
	"github.com/hupe1980/pawprint/persistence"
	"github.com/hupe1980/pawprint/testutil"
)

type records map[string]*catalog.Record

func (r records) Get(_ context.Context, id string) (*catalog.Record, error) {
	if rec, ok := r[id]; ok {
		return rec, nil
	}
	return nil, catalog.ErrNotFound
}

func newTestServer(t *testing.T, optFns ...func(o *Options)) (*httptest.Server, *pawprint.Engine) {
	t.Helper()
	ctx := context.Background()

	h := extract.NewModelHandle(&testutil.QuadrantModel{})
	t.Cleanup(func() { _ = h.Close() })
	ex := extract.NewExtractor(h)

	target := persistence.NewLocalTarget(filepath.Join(t.TempDir(), "dogs.paw"))
	b, err := pawprint.NewBuilder(ex, target)
	require.NoError(t, err)
	_, err = b.Build(ctx, dataset.Slice(
		dataset.Bytes("rex", "rex/1.png", testutil.PNG(0)),
		dataset.Bytes("bella", "bella/1.png", testutil.PNG(2)),
	))
	require.NoError(t, err)

	eng, err := pawprint.Open(ctx, ex, target)
	require.NoError(t, err)

	srv := httptest.NewServer(New(eng, optFns...).Handler())
	t.Cleanup(srv.Close)
	return srv, eng
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestMatch(t *testing.T) {
	sector := "B"
	srv, _ := newTestServer(t, func(o *Options) {
		o.Records = records{"bella": {ID: "bella", Name: "Bella", Sector: &sector}}
	})

	resp, err := http.Post(srv.URL+"/v1/match", "image/png", bytes.NewReader(testutil.PNG(2)))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	m := decode[matchResponse](t, resp)
	assert.True(t, m.Found)
	assert.Equal(t, "bella", m.IdentityID)
	assert.InDelta(t, 1.0, m.Score, 1e-4)
	require.NotNil(t, m.Record)
	assert.Equal(t, "Bella", m.Record.Name)
	assert.Equal(t, "B", *m.Record.Sector)
	assert.Nil(t, m.Record.Pen)
}

func TestMatch_Multipart(t *testing.T) {
	srv, _ := newTestServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("photo", "rex.png")
	require.NoError(t, err)
	_, err = fw.Write(testutil.PNG(0))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(srv.URL+"/v1/match", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	m := decode[matchResponse](t, resp)
	assert.Equal(t, "rex", m.IdentityID)
	assert.Nil(t, m.Record)
}

func TestMatch_NoMatch(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/v1/match?identity=rex", "image/png", bytes.NewReader(testutil.PNG(2)))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// bella's photo against rex only: cosine 0.72
	m := decode[matchResponse](t, resp)
	assert.False(t, m.Found)
	assert.Empty(t, m.IdentityID)
}

func TestMatch_ZeroDistanceScore(t *testing.T) {
	ctx := context.Background()
	h := extract.NewModelHandle(&testutil.QuadrantModel{})
	t.Cleanup(func() { _ = h.Close() })
	ex := extract.NewExtractor(h)

	target := persistence.NewLocalTarget(filepath.Join(t.TempDir(), "dogs.paw"))
	b, err := pawprint.NewBuilder(ex, target, pawprint.WithMetric(distance.MetricL2))
	require.NoError(t, err)
	_, err = b.Build(ctx, dataset.Slice(dataset.Bytes("rex", "rex/1.png", testutil.PNG(0))))
	require.NoError(t, err)

	eng, err := pawprint.Open(ctx, ex, target, pawprint.WithPolicy(pawprint.Policy{MaxDistance: 0.1}))
	require.NoError(t, err)
	srv := httptest.NewServer(New(eng).Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Post(srv.URL+"/v1/match", "image/png", bytes.NewReader(testutil.PNG(0)))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// An exact L2 hit scores 0 and must still carry the field.
	m := decode[map[string]any](t, resp)
	assert.Equal(t, true, m["found"])
	assert.Equal(t, "rex", m["identity_id"])
	require.Contains(t, m, "score")
	assert.InDelta(t, 0.0, m["score"], 1e-6)
}

func TestMatch_Errors(t *testing.T) {
	srv, _ := newTestServer(t, func(o *Options) { o.MaxUploadBytes = 1 << 10 })

	tests := []struct {
		name   string
		body   []byte
		status int
	}{
		{"corrupt image", testutil.CorruptImage(), http.StatusUnprocessableEntity},
		{"empty body", nil, http.StatusBadRequest},
		{"too large", make([]byte, 4<<10), http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/v1/match", "application/octet-stream", bytes.NewReader(tt.body))
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}

	resp, err := http.Get(srv.URL + "/v1/match")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestSearch(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/v1/search?k=2", "image/png", bytes.NewReader(testutil.PNG(0)))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	res := decode[searchResponse](t, resp)
	require.Len(t, res.Results, 2)
	assert.Equal(t, "rex", res.Results[0].IdentityID)
	assert.Equal(t, "bella", res.Results[1].IdentityID)

	resp, err = http.Post(srv.URL+"/v1/search?k=zero", "image/png", bytes.NewReader(testutil.PNG(0)))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthAndReload(t *testing.T) {
	srv, eng := newTestServer(t)
	info, _ := eng.Info()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	health := decode[map[string]any](t, resp)
	assert.Equal(t, info.BuildID, health["build_id"])
	assert.EqualValues(t, 2, health["vectors"])

	resp, err = http.Post(srv.URL+"/v1/reload", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealth_NotLoaded(t *testing.T) {
	eng, err := pawprint.NewEngine(nil)
	require.NoError(t, err)
	srv := httptest.NewServer(New(eng).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/v1/reload", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestMetricsRoute(t *testing.T) {
	srv, _ := newTestServer(t, func(o *Options) {
		o.Metrics = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("pawprint_matches_total 0\n"))
		})
	})

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
