package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/lib/pq"

	"github.com/press-vault/internal/content"
)

const postgresOperationTimeout = 5 * time.Second

// PostgresLedger implements the Ledger interface on Postgres. The
// connection is opened lazily on first use.
type PostgresLedger struct {
	dsn string

	initOnce sync.Once
	initErr  error
	db       *sql.DB
}

// NewPostgresLedger creates a Postgres-backed ledger from a DSN.
func NewPostgresLedger(dsn string) (*PostgresLedger, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("postgres ledger requires a dsn")
	}
	return &PostgresLedger{dsn: dsn}, nil
}

func (l *PostgresLedger) ensureReady() error {
	l.initOnce.Do(func() {
		db, err := sql.Open("postgres", l.dsn)
		if err != nil {
			l.initErr = fmt.Errorf("failed to open postgres: %w", err)
			return
		}
		ctx, cancel := opCtx()
		defer cancel()
		if _, err := db.ExecContext(ctx, `
			CREATE TABLE IF NOT EXISTS records (
				id TEXT PRIMARY KEY,
				access_count BIGINT NOT NULL DEFAULT 0,
				last_accessed TIMESTAMPTZ
			);
			CREATE TABLE IF NOT EXISTS versions (
				id TEXT NOT NULL REFERENCES records(id),
				version BIGINT NOT NULL,
				content TEXT NOT NULL,
				hash TEXT NOT NULL,
				size BIGINT NOT NULL,
				data JSONB NOT NULL DEFAULT '{}',
				blob_key TEXT NOT NULL DEFAULT '',
				stored_at TIMESTAMPTZ NOT NULL,
				PRIMARY KEY (id, version)
			);
		`); err != nil {
			db.Close()
			l.initErr = fmt.Errorf("failed to migrate postgres: %w", err)
			return
		}
		l.db = db
	})
	return l.initErr
}

func opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), postgresOperationTimeout)
}

func (l *PostgresLedger) Close() error {
	if l.db == nil {
		return nil
	}
	return l.db.Close()
}

// StoreContent appends rec as the next version of rec.ID. The insert runs
// in one transaction; the (id, version) primary key rejects any write that
// would rewrite history.
func (l *PostgresLedger) StoreContent(rec *content.Record) (*content.Record, error) {
	if err := l.ensureReady(); err != nil {
		return nil, err
	}
	ctx, cancel := opCtx()
	defer cancel()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin store: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO records (id) VALUES ($1) ON CONFLICT (id) DO NOTHING
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

	err = tx.QueryRowContext(ctx, `
		INSERT INTO versions (id, version, content, hash, size, data, blob_key, stored_at)
		VALUES ($1, (SELECT COALESCE(MAX(version), 0) + 1 FROM versions WHERE id = $1), $2, $3, $4, $5, $6, $7)
		RETURNING version
	`, rec.ID, rec.Content, rec.Hash, rec.Size, string(data), rec.BlobKey, stored.StoredAt).Scan(&stored.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to insert version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit store: %w", err)
	}

	return &stored, nil
}

func (l *PostgresLedger) GetContent(id string, version int) (*content.Record, error) {
	if err := l.ensureReady(); err != nil {
		return nil, err
	}
	ctx, cancel := opCtx()
	defer cancel()

	query := `
		SELECT v.id, v.version, v.content, v.hash, v.size, v.data, v.blob_key, v.stored_at,
		       r.access_count, r.last_accessed
		FROM versions v
		JOIN records r ON r.id = v.id
		WHERE v.id = $1`
	args := []any{id}
	if version > 0 {
		query += ` AND v.version = $2`
		args = append(args, version)
	} else {
		query += ` ORDER BY v.version DESC LIMIT 1`
	}

	rec, err := scanPostgresRecord(l.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get content: %w", err)
	}
	return rec, nil
}

func (l *PostgresLedger) ListContent() ([]content.Record, error) {
	if err := l.ensureReady(); err != nil {
		return nil, err
	}
	ctx, cancel := opCtx()
	defer cancel()

	rows, err := l.db.QueryContext(ctx, `
		SELECT DISTINCT ON (v.id)
		       v.id, v.version, v.content, v.hash, v.size, v.data, v.blob_key, v.stored_at,
		       r.access_count, r.last_accessed
		FROM versions v
		JOIN records r ON r.id = v.id
		ORDER BY v.id, v.version DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list content: %w", err)
	}
	defer rows.Close()

	var records []content.Record
	for rows.Next() {
		rec, err := scanPostgresRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record row: %w", err)
		}
		records = append(records, *rec)
	}

	return records, rows.Err()
}

func (l *PostgresLedger) GetVersionHistory(id string) ([]content.VersionInfo, error) {
	if err := l.ensureReady(); err != nil {
		return nil, err
	}
	ctx, cancel := opCtx()
	defer cancel()

	rows, err := l.db.QueryContext(ctx, `
		SELECT version, hash, size, stored_at
		FROM versions WHERE id = $1
		ORDER BY version DESC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get version history: %w", err)
	}
	defer rows.Close()

	var versions []content.VersionInfo
	for rows.Next() {
		var v content.VersionInfo
		if err := rows.Scan(&v.Version, &v.Hash, &v.Size, &v.StoredAt); err != nil {
			return nil, fmt.Errorf("failed to scan version row: %w", err)
		}
		versions = append(versions, v)
	}

	return versions, rows.Err()
}

func (l *PostgresLedger) StoreMetadata(records []content.Record) (int, error) {
	if err := l.ensureReady(); err != nil {
		return 0, err
	}
	ctx, cancel := opCtx()
	defer cancel()

	stored := 0
	for _, rec := range records {
		res, err := l.db.ExecContext(ctx, `
			UPDATE records SET access_count = $1, last_accessed = $2 WHERE id = $3
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

func (l *PostgresLedger) TouchAccess(id string, at time.Time) error {
	if err := l.ensureReady(); err != nil {
		return err
	}
	ctx, cancel := opCtx()
	defer cancel()

	_, err := l.db.ExecContext(ctx, `
		UPDATE records SET access_count = access_count + 1, last_accessed = $1 WHERE id = $2
	`, at, id)
	return err
}

func (l *PostgresLedger) DeleteVersions(id string, versions []int) error {
	if err := l.ensureReady(); err != nil {
		return err
	}
	ctx, cancel := opCtx()
	defer cancel()

	for _, v := range versions {
		if _, err := l.db.ExecContext(ctx, `DELETE FROM versions WHERE id = $1 AND version = $2`, id, v); err != nil {
			return fmt.Errorf("failed to delete version %d of %s: %w", v, id, err)
		}
	}
	return nil
}

func (l *PostgresLedger) DeleteContent(id string) ([]string, error) {
	if err := l.ensureReady(); err != nil {
		return nil, err
	}
	ctx, cancel := opCtx()
	defer cancel()

	rows, err := l.db.QueryContext(ctx, `
		SELECT DISTINCT blob_key FROM versions WHERE id = $1 AND blob_key != ''
	`, id)
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

	if _, err := l.db.ExecContext(ctx, `DELETE FROM versions WHERE id = $1`, id); err != nil {
		return nil, fmt.Errorf("failed to delete versions: %w", err)
	}
	if _, err := l.db.ExecContext(ctx, `DELETE FROM records WHERE id = $1`, id); err != nil {
		return nil, fmt.Errorf("failed to delete record: %w", err)
	}

	return blobKeys, nil
}

func (l *PostgresLedger) ListBlobKeys() ([]string, error) {
	if err := l.ensureReady(); err != nil {
		return nil, err
	}
	ctx, cancel := opCtx()
	defer cancel()

	rows, err := l.db.QueryContext(ctx, `SELECT DISTINCT blob_key FROM versions WHERE blob_key != ''`)
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

func (l *PostgresLedger) DatabaseSize() (int64, error) {
	if err := l.ensureReady(); err != nil {
		return 0, err
	}
	ctx, cancel := opCtx()
	defer cancel()

	var size int64
	if err := l.db.QueryRowContext(ctx, `SELECT pg_database_size(current_database())`).Scan(&size); err != nil {
		return 0, fmt.Errorf("failed to read database size: %w", err)
	}
	return size, nil
}

// scanPostgresRecord scans one record row; Postgres returns native
// timestamps so no string parsing is needed.
func scanPostgresRecord(row rowScanner) (*content.Record, error) {
	var rec content.Record
	var data []byte
	var lastAccessed sql.NullTime

	err := row.Scan(&rec.ID, &rec.Version, &rec.Content, &rec.Hash, &rec.Size,
		&data, &rec.BlobKey, &rec.StoredAt, &rec.AccessCount, &lastAccessed)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(data, &rec.Data); err != nil || rec.Data == nil {
		rec.Data = map[string]any{}
	}
	if lastAccessed.Valid {
		rec.LastAccessed = lastAccessed.Time
	}

	return &rec, nil
}
