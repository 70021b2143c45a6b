// Package storage provides SQLite access for hybrid search over user tables.
//
// The storage layer manages:
//   - Column inspection of arbitrary user tables
//   - Row reads with vector columns kept out of payloads
//   - Vector columns stored inside the user table itself
//   - Provenance of every stored vector (content hash, model, dimension)
//   - The change-aware upsert that invalidates stale vectors
//
// # Database Schema
//
// Internal tables:
//   - schema_version: Applied migrations (semver)
//   - embedding_columns: Vector column registry (text sources, model, dimension)
//   - embedding_meta: Per-row content hash of the text a vector was built from
//
// User tables are never created or dropped here. The only schema change this
// package makes is adding a BLOB vector column on first provisioning.
//
// # Basic Usage
//
//	store, err := storage.NewSQLiteStorage("/var/lib/hybridsearch/data.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	cols, err := store.Columns(ctx, "notes", storage.DefaultVectorColumn)
//	textCols := storage.TextColumns(cols)
//
//	rows, err := store.ListRows(ctx, "notes", storage.DefaultVectorColumn)
//	for _, row := range rows {
//	    // row.Values never holds the vector; row.Vector holds the raw blob
//	}
//
// # Vector Encoding
//
// Vectors are little-endian float32 blobs (4 bytes per component, no length
// prefix). DecodeVectorValue also reads JSON arrays stored as TEXT.
//
// # Staleness
//
// Upsert clears a row's vector (and deletes its provenance) in the same
// transaction when a registered text source column changes. WriteEmbeddings
// re-reads the source text inside its transaction and refuses to store a
// vector computed from text that has since changed.
//
// # Build Modes
//
// The default build uses modernc.org/sqlite. Build with -tags sqlite_cgo to
// use github.com/mattn/go-sqlite3 instead.
package storage
