package ledger

import (
	"time"

	"github.com/press-vault/internal/content"
)

// Ledger is the keyed durable store behind the versioned record store.
// Implementations serialize writes per id, so version assignment is never
// racy within a key; callers must not add their own per-id locking on top.
type Ledger interface {
	// StoreContent persists rec as the next version of rec.ID and returns
	// the stored record with Version and StoredAt assigned. History is
	// append-only; no call ever mutates an existing version.
	StoreContent(rec *content.Record) (*content.Record, error)

	// GetContent returns a specific version of a record, or the latest
	// when version is 0. Absence is (nil, nil).
	GetContent(id string, version int) (*content.Record, error)

	// ListContent returns the latest version of every record.
	ListContent() ([]content.Record, error)

	// GetVersionHistory returns all versions of a record, newest first.
	GetVersionHistory(id string) ([]content.VersionInfo, error)

	// StoreMetadata writes back mutable usage counters (access count,
	// last-accessed) for the given records and returns how many were
	// updated. Counters are not part of version identity.
	StoreMetadata(records []content.Record) (int, error)

	// TouchAccess bumps a record's access counter.
	TouchAccess(id string, at time.Time) error

	// DeleteVersions removes specific historical versions of a record.
	// Missing versions are ignored; the call is idempotent.
	DeleteVersions(id string, versions []int) error

	// DeleteContent removes a record and all of its versions, returning
	// the blob keys the deleted versions referenced.
	DeleteContent(id string) ([]string, error)

	// ListBlobKeys returns every blob key referenced by any stored
	// version. Used for orphan detection against the physical bucket.
	ListBlobKeys() ([]string, error)

	// DatabaseSize returns the physical size of the ledger in bytes.
	DatabaseSize() (int64, error)

	Close() error
}
