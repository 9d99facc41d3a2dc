package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/press-vault/internal/blob"
	"github.com/press-vault/internal/content"
	"github.com/press-vault/internal/ledger"
)

// VersionedStore is the tiered, versioned record store. It owns the
// ContentRecord lifecycle: creation, hydration, tiering, promotion, and
// deletion. Per-id write serialization is the ledger's guarantee; the
// store adds no locking of its own.
type VersionedStore struct {
	ledger ledger.Ledger
	bucket blob.Bucket
	now    func() time.Time
}

// New creates a VersionedStore over a ledger and a blob bucket.
func New(l ledger.Ledger, b blob.Bucket) *VersionedStore {
	return &VersionedStore{ledger: l, bucket: b, now: time.Now}
}

// SetClock overrides the store's time source. Tests only.
func (s *VersionedStore) SetClock(now func() time.Time) {
	s.now = now
}

// Store writes body as a new version of id. Frontmatter parse failures
// degrade to an empty data map and never block the write. Bodies over the
// overflow threshold land in the bucket; the ledger record then carries
// an empty body and the blob key.
func (s *VersionedStore) Store(ctx context.Context, id, body string) (*content.Record, error) {
	rec := &content.Record{
		ID:       id,
		Hash:     content.Hash(body),
		Size:     int64(len(body)),
		Data:     content.ParseFrontmatter(body),
		StoredAt: s.now().UTC(),
	}

	if content.ShouldOverflow(rec.Size) {
		key := blob.Key(id, rec.Hash)
		if _, err := s.bucket.Put(ctx, key, []byte(body)); err != nil {
			return nil, fmt.Errorf("failed to overflow content for %s: %w", id, err)
		}
		rec.BlobKey = key
	} else {
		rec.Content = body
	}

	stored, err := s.ledger.StoreContent(rec)
	if err != nil {
		return nil, err
	}
	// Hand callers the full body regardless of where it was written.
	stored.Content = body
	return stored, nil
}

// Get returns the latest version of id, or a specific version when
// version > 0. Absence is (nil, nil). Overflowed bodies are hydrated from
// the bucket before returning; a record whose blob cannot be fetched is
// unusable and surfaces an error.
func (s *VersionedStore) Get(ctx context.Context, id string, version int) (*content.Record, error) {
	rec, err := s.ledger.GetContent(id, version)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}

	if rec.BlobKey != "" {
		body, err := s.bucket.Get(ctx, rec.BlobKey)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch blob for %s: %w", id, err)
		}
		if body == nil {
			return nil, fmt.Errorf("blob %s for record %s is missing", rec.BlobKey, id)
		}
		rec.Content = string(body)
	}

	now := s.now().UTC()
	rec.AccessCount++
	rec.LastAccessed = now
	if err := s.ledger.TouchAccess(id, now); err != nil {
		return nil, fmt.Errorf("failed to record access for %s: %w", id, err)
	}

	return rec, nil
}

// CurrentHash returns the latest stored hash for id without hydrating the
// body or counting an access. The second result is false when no record
// exists.
func (s *VersionedStore) CurrentHash(ctx context.Context, id string) (string, bool, error) {
	rec, err := s.ledger.GetContent(id, 0)
	if err != nil {
		return "", false, err
	}
	if rec == nil {
		return "", false, nil
	}
	return rec.Hash, true, nil
}

// Tier classifies a record under the current clock.
func (s *VersionedStore) Tier(rec *content.Record) content.Tier {
	return content.Classify(rec, s.now().UTC())
}

// Promote rewrites an overflowed record inline as a new hot version. A
// record already stored inline is returned unchanged.
func (s *VersionedStore) Promote(ctx context.Context, id string) (*content.Record, error) {
	rec, err := s.ledger.GetContent(id, 0)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("cannot promote %s: record not found", id)
	}
	if rec.BlobKey == "" {
		return rec, nil
	}

	body, err := s.bucket.Get(ctx, rec.BlobKey)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch blob for promotion of %s: %w", id, err)
	}
	if body == nil {
		return nil, fmt.Errorf("blob %s for record %s is missing", rec.BlobKey, id)
	}

	promoted := &content.Record{
		ID:       id,
		Hash:     rec.Hash,
		Content:  string(body),
		Size:     rec.Size,
		Data:     rec.Data,
		StoredAt: s.now().UTC(),
	}
	return s.ledger.StoreContent(promoted)
}

// ListVersionsOptions controls history ordering and truncation.
type ListVersionsOptions struct {
	// OrderBy is "version" (default) or "timestamp".
	OrderBy string
	// Limit truncates from the head of the ordered list; 0 means all.
	Limit int
}

// ListVersions returns a record's version history, newest first.
func (s *VersionedStore) ListVersions(ctx context.Context, id string, opts ListVersionsOptions) ([]content.VersionInfo, error) {
	versions, err := s.ledger.GetVersionHistory(id)
	if err != nil {
		return nil, err
	}

	if opts.OrderBy == "timestamp" {
		sort.SliceStable(versions, func(i, j int) bool {
			return versions[i].StoredAt.After(versions[j].StoredAt)
		})
	}

	if opts.Limit > 0 && opts.Limit < len(versions) {
		versions = versions[:opts.Limit]
	}

	return versions, nil
}

// Rollback re-stores the body of targetVersion as a brand-new version.
// History stays append-only; rollback never moves pointers.
func (s *VersionedStore) Rollback(ctx context.Context, id string, targetVersion int) (*content.Record, error) {
	target, err := s.Get(ctx, id, targetVersion)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, fmt.Errorf("cannot roll back %s: version %d not found", id, targetVersion)
	}
	return s.Store(ctx, id, target.Content)
}

// Delete removes a record, all of its versions, and any blobs those
// versions referenced.
func (s *VersionedStore) Delete(ctx context.Context, id string) error {
	blobKeys, err := s.ledger.DeleteContent(id)
	if err != nil {
		return err
	}
	for _, key := range blobKeys {
		if err := s.bucket.Delete(ctx, key); err != nil {
			return fmt.Errorf("failed to delete blob %s: %w", key, err)
		}
	}
	return nil
}

// List returns the latest version of every record without hydrating
// overflowed bodies or counting accesses.
func (s *VersionedStore) List(ctx context.Context) ([]content.Record, error) {
	return s.ledger.ListContent()
}

// Metrics aggregates storage statistics across all records.
type Metrics struct {
	LedgerSize  int64                `json:"ledger_size"`
	BlobSize    int64                `json:"blob_size"`
	TotalSize   int64                `json:"total_size"`
	RecordCount int                  `json:"record_count"`
	CountByType map[string]int       `json:"count_by_type"`
	TierCounts  map[content.Tier]int `json:"tier_counts"`
}

// Metrics computes storage statistics on demand.
func (s *VersionedStore) Metrics(ctx context.Context) (*Metrics, error) {
	records, err := s.ledger.ListContent()
	if err != nil {
		return nil, err
	}

	ledgerSize, err := s.ledger.DatabaseSize()
	if err != nil {
		return nil, err
	}

	m := &Metrics{
		LedgerSize:  ledgerSize,
		RecordCount: len(records),
		CountByType: map[string]int{},
		TierCounts:  map[content.Tier]int{},
	}

	now := s.now().UTC()
	for i := range records {
		rec := &records[i]
		if rec.BlobKey != "" {
			m.BlobSize += rec.Size
		}
		m.CountByType[content.TypeOf(rec)]++
		m.TierCounts[content.Classify(rec, now)]++
	}
	m.TotalSize = m.LedgerSize + m.BlobSize

	return m, nil
}

// BatchError pairs a failed item with its error.
type BatchError struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// BatchResult collects per-item outcomes of a batch call. One failing
// item never aborts the rest.
type BatchResult struct {
	Records []content.Record `json:"records,omitempty"`
	Errors  []BatchError     `json:"errors,omitempty"`
}

// BatchItem is one document in a BatchStore call.
type BatchItem struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// BatchStore stores items sequentially, isolating per-item failures.
func (s *VersionedStore) BatchStore(ctx context.Context, items []BatchItem) *BatchResult {
	result := &BatchResult{}
	for _, item := range items {
		rec, err := s.Store(ctx, item.ID, item.Content)
		if err != nil {
			result.Errors = append(result.Errors, BatchError{ID: item.ID, Error: err.Error()})
			continue
		}
		result.Records = append(result.Records, *rec)
	}
	return result
}

// BatchGet fetches the latest version of each id. Missing records are
// simply absent from the result, not errors.
func (s *VersionedStore) BatchGet(ctx context.Context, ids []string) *BatchResult {
	result := &BatchResult{}
	for _, id := range ids {
		rec, err := s.Get(ctx, id, 0)
		if err != nil {
			result.Errors = append(result.Errors, BatchError{ID: id, Error: err.Error()})
			continue
		}
		if rec != nil {
			result.Records = append(result.Records, *rec)
		}
	}
	return result
}

// BatchDelete deletes records sequentially, isolating per-item failures.
func (s *VersionedStore) BatchDelete(ctx context.Context, ids []string) *BatchResult {
	result := &BatchResult{}
	for _, id := range ids {
		if err := s.Delete(ctx, id); err != nil {
			result.Errors = append(result.Errors, BatchError{ID: id, Error: err.Error()})
		}
	}
	return result
}
