package ledger

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/press-vault/internal/content"
)

// SQLiteLedger implements the Ledger interface using SQLite.
type SQLiteLedger struct {
	db *sql.DB
}

// NewSQLiteLedger opens (or creates) a SQLite ledger and initializes the
// schema.
func NewSQLiteLedger(dbPath string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time keeps per-id version assignment serial.
	db.SetMaxOpenConns(1)

	l := &SQLiteLedger{db: db}
	if err := l.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return l, nil
}

// migrate creates the database schema if it doesn't exist
func (l *SQLiteLedger) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		id TEXT PRIMARY KEY,
		access_count INTEGER NOT NULL DEFAULT 0,
		last_accessed DATETIME
	);

	CREATE TABLE IF NOT EXISTS versions (
		id TEXT NOT NULL REFERENCES records(id),
		version INTEGER NOT NULL,
		content TEXT NOT NULL,
		hash TEXT NOT NULL,
		size INTEGER NOT NULL,
		data TEXT NOT NULL DEFAULT '{}',
		blob_key TEXT NOT NULL DEFAULT '',
		stored_at DATETIME NOT NULL,
		PRIMARY KEY (id, version)
	);

	CREATE INDEX IF NOT EXISTS idx_versions_stored_at ON versions(stored_at);
	`

	_, err := l.db.Exec(schema)
	return err
}

// Close closes the database connection
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}

// StoreContent appends rec as the next version of rec.ID.
func (l *SQLiteLedger) StoreContent(rec *content.Record) (*content.Record, error) {
	tx, err := l.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin store: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO records (id) VALUES (?)
		ON CONFLICT(id) DO NOTHING
	`, rec.ID); err != nil {
		return nil, fmt.Errorf("failed to upsert record: %w", err)
	}

	data, err := json.Marshal(rec.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode data: %w", err)
	}

	stored := *rec
	if stored.StoredAt.IsZero() {
		stored.StoredAt = time.Now().UTC()
	}

	err = tx.QueryRow(`
		INSERT INTO versions (id, version, content, hash, size, data, blob_key, stored_at)
		VALUES (?, (SELECT COALESCE(MAX(version), 0) + 1 FROM versions WHERE id = ?), ?, ?, ?, ?, ?, ?)
		RETURNING version
	`, rec.ID, rec.ID, rec.Content, rec.Hash, rec.Size, string(data), rec.BlobKey, stored.StoredAt).Scan(&stored.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to insert version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit store: %w", err)
	}

	return &stored, nil
}

// GetContent retrieves a record by id, latest version when version is 0.
func (l *SQLiteLedger) GetContent(id string, version int) (*content.Record, error) {
	query := `
		SELECT v.id, v.version, v.content, v.hash, v.size, v.data, v.blob_key, v.stored_at,
		       r.access_count, r.last_accessed
		FROM versions v
		JOIN records r ON r.id = v.id
		WHERE v.id = ?`
	args := []any{id}
	if version > 0 {
		query += ` AND v.version = ?`
		args = append(args, version)
	} else {
		query += ` ORDER BY v.version DESC LIMIT 1`
	}

	rec, err := scanRecord(l.db.QueryRow(query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get content: %w", err)
	}
	return rec, nil
}

// ListContent returns the latest version of every record.
func (l *SQLiteLedger) ListContent() ([]content.Record, error) {
	rows, err := l.db.Query(`
		SELECT v.id, v.version, v.content, v.hash, v.size, v.data, v.blob_key, v.stored_at,
		       r.access_count, r.last_accessed
		FROM versions v
		JOIN records r ON r.id = v.id
		WHERE v.version = (SELECT MAX(version) FROM versions WHERE id = v.id)
		ORDER BY v.id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list content: %w", err)
	}
	defer rows.Close()

	var records []content.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record row: %w", err)
		}
		records = append(records, *rec)
	}

	return records, rows.Err()
}

// GetVersionHistory returns all versions of a record, newest first.
func (l *SQLiteLedger) GetVersionHistory(id string) ([]content.VersionInfo, error) {
	rows, err := l.db.Query(`
		SELECT version, hash, size, stored_at
		FROM versions WHERE id = ?
		ORDER BY version DESC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get version history: %w", err)
	}
	defer rows.Close()

	var versions []content.VersionInfo
	for rows.Next() {
		var v content.VersionInfo
		var storedAt sql.NullString
		if err := rows.Scan(&v.Version, &v.Hash, &v.Size, &storedAt); err != nil {
			return nil, fmt.Errorf("failed to scan version row: %w", err)
		}
		if storedAt.Valid {
			v.StoredAt = parseTime(storedAt.String)
		}
		versions = append(versions, v)
	}

	return versions, rows.Err()
}

// StoreMetadata writes back usage counters for the given records.
func (l *SQLiteLedger) StoreMetadata(records []content.Record) (int, error) {
	stored := 0
	for _, rec := range records {
		res, err := l.db.Exec(`
			UPDATE records SET access_count = ?, last_accessed = ? WHERE id = ?
		`, rec.AccessCount, rec.LastAccessed, rec.ID)
		if err != nil {
			return stored, fmt.Errorf("failed to store metadata for %s: %w", rec.ID, err)
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			stored++
		}
	}
	return stored, nil
}

// TouchAccess bumps the access counter for a record.
func (l *SQLiteLedger) TouchAccess(id string, at time.Time) error {
	_, err := l.db.Exec(`
		UPDATE records SET access_count = access_count + 1, last_accessed = ? WHERE id = ?
	`, at, id)
	return err
}

// DeleteVersions removes specific historical versions of a record.
func (l *SQLiteLedger) DeleteVersions(id string, versions []int) error {
	for _, v := range versions {
		if _, err := l.db.Exec(`DELETE FROM versions WHERE id = ? AND version = ?`, id, v); err != nil {
			return fmt.Errorf("failed to delete version %d of %s: %w", v, id, err)
		}
	}
	return nil
}

// DeleteContent removes a record and all its versions.
func (l *SQLiteLedger) DeleteContent(id string) ([]string, error) {
	rows, err := l.db.Query(`SELECT DISTINCT blob_key FROM versions WHERE id = ? AND blob_key != ''`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to collect blob keys: %w", err)
	}
	var blobKeys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan blob key: %w", err)
		}
		blobKeys = append(blobKeys, key)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if _, err := l.db.Exec(`DELETE FROM versions WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("failed to delete versions: %w", err)
	}
	if _, err := l.db.Exec(`DELETE FROM records WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("failed to delete record: %w", err)
	}

	return blobKeys, nil
}

// ListBlobKeys returns every blob key referenced by any stored version.
func (l *SQLiteLedger) ListBlobKeys() ([]string, error) {
	rows, err := l.db.Query(`SELECT DISTINCT blob_key FROM versions WHERE blob_key != ''`)
	if err != nil {
		return nil, fmt.Errorf("failed to list blob keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan blob key: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// DatabaseSize returns the physical database size in bytes.
func (l *SQLiteLedger) DatabaseSize() (int64, error) {
	var pageCount, pageSize int64
	if err := l.db.QueryRow(`PRAGMA page_count`).Scan(&pageCount); err != nil {
		return 0, fmt.Errorf("failed to read page count: %w", err)
	}
	if err := l.db.QueryRow(`PRAGMA page_size`).Scan(&pageSize); err != nil {
		return 0, fmt.Errorf("failed to read page size: %w", err)
	}
	return pageCount * pageSize, nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanRecord scans one record row in the column order used by all queries.
func scanRecord(row rowScanner) (*content.Record, error) {
	var rec content.Record
	var data string
	var storedAt, lastAccessed sql.NullString

	err := row.Scan(&rec.ID, &rec.Version, &rec.Content, &rec.Hash, &rec.Size,
		&data, &rec.BlobKey, &storedAt, &rec.AccessCount, &lastAccessed)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(data), &rec.Data); err != nil {
		rec.Data = map[string]any{}
	}
	if rec.Data == nil {
		rec.Data = map[string]any{}
	}
	if storedAt.Valid {
		rec.StoredAt = parseTime(storedAt.String)
	}
	if lastAccessed.Valid {
		rec.LastAccessed = parseTime(lastAccessed.String)
	}

	return &rec, nil
}

// parseTime parses a SQLite datetime string into time.Time
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}

	// Try various SQLite datetime formats
	formats := []string{
		"2006-01-02 15:04:05",
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02T15:04:05Z",
		"2006-01-02T15:04:05.000Z",
		time.RFC3339,
		time.RFC3339Nano,
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}

	return time.Time{}
}
