package catalog

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/ncruces"
	_ "github.com/ncruces/go-sqlite3/driver"
)

var (
	// ErrNotFound is returned when no record has the requested id.
	ErrNotFound = errors.New("catalog: record not found")

	// ErrEmptyID is returned for records without an id.
	ErrEmptyID = errors.New("catalog: empty id")
)

// Record describes one identity. Sector and Pen are optional.
type Record struct {
	ID          string
	Name        string
	Category    string
	Sector      *string
	Pen         *string
	Status      string
	Description string
	PhotoPath   string
}

// Location formats sector and pen for display, omitting absent parts.
func (r *Record) Location() string {
	switch {
	case r.Sector != nil && r.Pen != nil:
		return fmt.Sprintf("sector %s, pen %s", *r.Sector, *r.Pen)
	case r.Sector != nil:
		return "sector " + *r.Sector
	case r.Pen != nil:
		return "pen " + *r.Pen
	default:
		return ""
	}
}

// Store is a SQLite-backed catalog.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the catalog at path and migrates it.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return s.runMigrations()
}

// runMigrations handles schema changes for existing databases
func (s *Store) runMigrations() error {
	// migration: record which model produced the stored embedding
	if !s.columnExists("dogs", "embedding_model") {
		if _, err := s.db.Exec("ALTER TABLE dogs ADD COLUMN embedding_model TEXT"); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) columnExists(table, column string) bool {
	rows, err := s.db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		return false
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, colType string
		var notNull, pk int
		var dfltValue any
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			continue
		}
		if name == column {
			return true
		}
	}
	return false
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Put inserts or updates a record. Stored embeddings are kept.
func (s *Store) Put(ctx context.Context, r *Record) error {
	if r.ID == "" {
		return ErrEmptyID
	}
	_, err := s.db.ExecContext(ctx, queryUpsert,
		r.ID, r.Name, r.Category, nullable(r.Sector), nullable(r.Pen), r.Status, r.Description, r.PhotoPath)
	if err != nil {
		return fmt.Errorf("catalog: put %s: %w", r.ID, err)
	}
	return nil
}

// Get returns the record for id.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	r, err := scanRecord(s.db.QueryRowContext(ctx, queryGet, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: get %s: %w", id, err)
	}
	return r, nil
}

// List returns all records ordered by id.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	return s.query(ctx, queryList)
}

// InSector returns the records of one sector ordered by id.
func (s *Store) InSector(ctx context.Context, sector string) ([]Record, error) {
	return s.query(ctx, querySector, sector)
}

// IDs returns the ids of records, in order.
func IDs(records []Record) []string {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return ids
}

func (s *Store) query(ctx context.Context, q string, args ...any) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: list: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("catalog: scan: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// Delete removes a record. Deleting a missing record is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, queryDelete, id)
	return err
}

// SetEmbedding stores vec as the record's embedding BLOB.
func (s *Store) SetEmbedding(ctx context.Context, id string, vec []float32, modelVersion string) error {
	blob, err := sqlite_vec.SerializeFloat32(vec)
	if err != nil {
		return fmt.Errorf("catalog: serialize embedding: %w", err)
	}
	res, err := s.db.ExecContext(ctx, querySetEmbedding, blob, modelVersion, id)
	if err != nil {
		return fmt.Errorf("catalog: set embedding %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Embedding is a vector to store on the record with ID.
type Embedding struct {
	ID     string
	Vector []float32
}

// SetEmbeddings stores all embeddings in one transaction. Either every
// row is updated or none is.
func (s *Store) SetEmbeddings(ctx context.Context, embeddings []Embedding, modelVersion string) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("catalog: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, querySetEmbedding)
	if err != nil {
		return fmt.Errorf("catalog: prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range embeddings {
		blob, err := sqlite_vec.SerializeFloat32(e.Vector)
		if err != nil {
			return fmt.Errorf("catalog: serialize embedding %s: %w", e.ID, err)
		}
		res, err := stmt.ExecContext(ctx, blob, modelVersion, e.ID)
		if err != nil {
			return fmt.Errorf("catalog: set embedding %s: %w", e.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, e.ID)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("catalog: commit: %w", err)
	}
	return nil
}

// Embedding returns the stored embedding and the model version that
// produced it. A record without an embedding returns a nil vector.
func (s *Store) Embedding(ctx context.Context, id string) ([]float32, string, error) {
	var (
		blob  []byte
		model sql.NullString
	)
	err := s.db.QueryRowContext(ctx, queryGetEmbedding, id).Scan(&blob, &model)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, "", fmt.Errorf("catalog: embedding %s: %w", id, err)
	}
	if blob == nil {
		return nil, "", nil
	}
	vec, err := deserializeFloat32(blob)
	if err != nil {
		return nil, "", fmt.Errorf("catalog: embedding %s: %w", id, err)
	}
	return vec, model.String, nil
}

// ClearEmbeddings drops every stored embedding, e.g. after a model change.
func (s *Store) ClearEmbeddings(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, queryClearEmbeddings)
	return err
}

// Stats counts records and records with an embedding.
func (s *Store) Stats(ctx context.Context) (total, embedded int, err error) {
	err = s.db.QueryRowContext(ctx, queryCountEmbedded).Scan(&total, &embedded)
	return total, embedded, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		r           Record
		sector, pen sql.NullString
	)
	if err := row.Scan(&r.ID, &r.Name, &r.Category, &sector, &pen, &r.Status, &r.Description, &r.PhotoPath); err != nil {
		return nil, err
	}
	if sector.Valid {
		r.Sector = &sector.String
	}
	if pen.Valid {
		r.Pen = &pen.String
	}
	return &r, nil
}

func nullable(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// deserializeFloat32 reverses sqlite_vec.SerializeFloat32 (little-endian
// float32 values).
func deserializeFloat32(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(blob))
	}
	out := make([]float32, len(blob)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return out, nil
}
