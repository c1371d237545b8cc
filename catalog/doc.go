// Package catalog is the relational record store for identities (dogs).
//
// Records live in a SQLite database (ncruces/go-sqlite3, pure Go via
// wazero) together with an optional embedding BLOB per record. The store
// is both the RecordStore used to describe a match and a dataset.Source
// for builds: Pending yields only records that have no embedding yet and,
// as a dataset.Acker, writes the embeddings back once the snapshot that
// contains them has been saved.
package catalog
