// Package server exposes an Engine over HTTP.
package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	json "github.com/goccy/go-json"

	"github.com/hupe1980/pawprint"
	"github.com/hupe1980/pawprint/catalog"
	"github.com/hupe1980/pawprint/index"
)

// DefaultMaxUploadBytes bounds request bodies.
const DefaultMaxUploadBytes = 16 << 20

// RecordStore resolves identities to catalog records for display.
type RecordStore interface {
	Get(ctx context.Context, id string) (*catalog.Record, error)
}

// Options configures a Server.
type Options struct {
	Records        RecordStore
	Logger         *pawprint.Logger
	MaxUploadBytes int64

	// Metrics is mounted at MetricsPath when set.
	Metrics     http.Handler
	MetricsPath string
}

// Server serves match queries.
type Server struct {
	eng  *pawprint.Engine
	opts Options
}

// New creates a server over eng.
func New(eng *pawprint.Engine, optFns ...func(o *Options)) *Server {
	opts := Options{
		MaxUploadBytes: DefaultMaxUploadBytes,
		MetricsPath:    "/metrics",
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = pawprint.NoopLogger()
	}
	return &Server{eng: eng, opts: opts}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/match", s.handleMatch)
	mux.HandleFunc("POST /v1/search", s.handleSearch)
	mux.HandleFunc("POST /v1/reload", s.handleReload)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.opts.Metrics != nil {
		mux.Handle("GET "+s.opts.MetricsPath, s.opts.Metrics)
	}
	return mux
}

type candidate struct {
	IdentityID string  `json:"identity_id"`
	Score      float32 `json:"score"`
}

type record struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Category    string  `json:"category,omitempty"`
	Sector      *string `json:"sector,omitempty"`
	Pen         *string `json:"pen,omitempty"`
	Status      string  `json:"status,omitempty"`
	Description string  `json:"description,omitempty"`
}

type matchResponse struct {
	Found      bool        `json:"found"`
	IdentityID string      `json:"identity_id,omitempty"`
	Score      float32     `json:"score"`
	Candidates []candidate `json:"candidates,omitempty"`
	Record     *record     `json:"record,omitempty"`
}

type searchResponse struct {
	Results []candidate `json:"results"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	data, ok := s.readImage(w, r)
	if !ok {
		return
	}
	m, err := s.eng.MatchByImage(r.Context(), data, s.matchOptions(r)...)
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := matchResponse{
		Found:      m.Found(),
		IdentityID: m.IdentityID,
		Score:      m.Score,
		Candidates: candidates(m.Candidates),
	}
	if m.Found() && s.opts.Records != nil {
		rec, err := s.opts.Records.Get(r.Context(), m.IdentityID)
		switch {
		case err == nil:
			resp.Record = toRecord(rec)
		case !errors.Is(err, catalog.ErrNotFound):
			s.opts.Logger.WarnContext(r.Context(), "record lookup failed", "identity", m.IdentityID, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	k := 5
	if v := r.URL.Query().Get("k"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "k must be a positive integer"})
			return
		}
		k = n
	}
	data, ok := s.readImage(w, r)
	if !ok {
		return
	}
	results, err := s.eng.SearchByImage(r.Context(), data, k, s.matchOptions(r)...)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, searchResponse{Results: candidates(results)})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.eng.Reload(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	s.handleHealth(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	info, ok := s.eng.Info()
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: pawprint.ErrNotLoaded.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"build_id":      info.BuildID,
		"model_version": info.ModelVersion,
		"vectors":       info.Vectors,
		"identities":    info.Identities,
		"created_at":    info.CreatedAt,
	})
}

// readImage reads the request body, or the "photo" part of a multipart
// form.
func (s *Server) readImage(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)

	var (
		data []byte
		err  error
	)
	if f, _, ferr := r.FormFile("photo"); ferr == nil {
		defer f.Close()
		data, err = io.ReadAll(f)
	} else if errors.Is(ferr, http.ErrNotMultipart) {
		data, err = io.ReadAll(r.Body)
	} else {
		err = ferr
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: err.Error()})
			return nil, false
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return nil, false
	}
	if len(data) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "empty image"})
		return nil, false
	}
	return data, true
}

func (s *Server) matchOptions(r *http.Request) []pawprint.MatchOption {
	var opts []pawprint.MatchOption
	if ids := r.URL.Query()["identity"]; len(ids) > 0 {
		opts = append(opts, pawprint.WithIdentities(ids...))
	}
	return opts
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var dimErr *pawprint.ErrDimensionMismatch
	switch {
	case pawprint.IsExtractionError(err):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, pawprint.ErrNotLoaded), errors.Is(err, pawprint.ErrNoTarget):
		status = http.StatusServiceUnavailable
	case errors.As(err, &dimErr), errors.Is(err, pawprint.ErrInvalidK):
		status = http.StatusBadRequest
	case errors.Is(err, context.Canceled):
		// client went away
		return
	}
	if status == http.StatusInternalServerError {
		s.opts.Logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func candidates(results []index.Result) []candidate {
	if len(results) == 0 {
		return nil
	}
	out := make([]candidate, len(results))
	for i, r := range results {
		out[i] = candidate{IdentityID: r.IdentityID, Score: r.Score}
	}
	return out
}

func toRecord(r *catalog.Record) *record {
	return &record{
		ID:          r.ID,
		Name:        r.Name,
		Category:    r.Category,
		Sector:      r.Sector,
		Pen:         r.Pen,
		Status:      r.Status,
		Description: r.Description,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
