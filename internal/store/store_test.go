package store

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/press-vault/internal/blob"
	"github.com/press-vault/internal/content"
	"github.com/press-vault/internal/ledger"
)

func newTestStore(t *testing.T) (*VersionedStore, *blob.MemoryBucket) {
	t.Helper()
	l, err := ledger.NewSQLiteLedger(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	bucket := blob.NewMemoryBucket()
	return New(l, bucket), bucket
}

func bigBody() string {
	return "---\ntitle: Big\n---\n" + strings.Repeat("x", content.OverflowThreshold)
}

func TestStoreAndGet(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	body := "---\ntitle: Hello\n$type: post\n---\n# Hello\n"
	rec, err := s.Store(ctx, "posts/hello.md", body)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Version)
	assert.Equal(t, content.Hash(body), rec.Hash)
	assert.Equal(t, body, rec.Content)
	assert.Empty(t, rec.BlobKey)
	assert.Equal(t, "Hello", rec.Data["title"])

	got, err := s.Get(ctx, "posts/hello.md", 0)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, body, got.Content)
	assert.Equal(t, 1, got.AccessCount)
}

func TestGetAbsent(t *testing.T) {
	s, _ := newTestStore(t)

	rec, err := s.Get(context.Background(), "missing", 0)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestStoreVersioning(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.Store(ctx, "doc", "first body")
	require.NoError(t, err)
	second, err := s.Store(ctx, "doc", "second body")
	require.NoError(t, err)
	assert.Equal(t, 2, second.Version)

	// Earlier versions stay reachable with their original body.
	v1, err := s.Get(ctx, "doc", 1)
	require.NoError(t, err)
	require.NotNil(t, v1)
	assert.Equal(t, "first body", v1.Content)

	latest, err := s.Get(ctx, "doc", 0)
	require.NoError(t, err)
	assert.Equal(t, "second body", latest.Content)
}

func TestStoreOverflow(t *testing.T) {
	s, bucket := newTestStore(t)
	ctx := context.Background()
	body := bigBody()

	rec, err := s.Store(ctx, "book.md", body)
	require.NoError(t, err)
	assert.NotEmpty(t, rec.BlobKey)
	assert.Equal(t, blob.Key("book.md", rec.Hash), rec.BlobKey)
	assert.Equal(t, body, rec.Content)

	// The ledger row carries no body; the bucket does.
	data, err := bucket.Get(ctx, rec.BlobKey)
	require.NoError(t, err)
	assert.Equal(t, body, string(data))

	// Get hydrates transparently.
	got, err := s.Get(ctx, "book.md", 0)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, body, got.Content)
	assert.Equal(t, "Big", got.Data["title"])
}

func TestGetMissingBlobFails(t *testing.T) {
	s, bucket := newTestStore(t)
	ctx := context.Background()

	rec, err := s.Store(ctx, "book.md", bigBody())
	require.NoError(t, err)
	require.NoError(t, bucket.Delete(ctx, rec.BlobKey))

	_, err = s.Get(ctx, "book.md", 0)
	require.Error(t, err)
}

func TestAccessCounting(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.Store(ctx, "doc", "body")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := s.Get(ctx, "doc", 0)
		require.NoError(t, err)
	}

	// CurrentHash does not count as an access.
	hash, ok, err := s.CurrentHash(ctx, "doc")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, content.Hash("body"), hash)

	got, err := s.Get(ctx, "doc", 0)
	require.NoError(t, err)
	assert.Equal(t, 4, got.AccessCount)
}

func TestCurrentHashAbsent(t *testing.T) {
	s, _ := newTestStore(t)

	_, ok, err := s.CurrentHash(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTier(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return base })

	rec, err := s.Store(ctx, "doc", "small body")
	require.NoError(t, err)
	assert.Equal(t, content.TierHot, s.Tier(rec))

	big, err := s.Store(ctx, "big", bigBody())
	require.NoError(t, err)
	assert.Equal(t, content.TierWarm, s.Tier(big))

	// Untouched for 31 days.
	rec.LastAccessed = base
	s.SetClock(func() time.Time { return base.AddDate(0, 0, 31) })
	assert.Equal(t, content.TierCold, s.Tier(rec))
}

func TestPromote(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	body := bigBody()

	_, err := s.Store(ctx, "book.md", body)
	require.NoError(t, err)

	promoted, err := s.Promote(ctx, "book.md")
	require.NoError(t, err)
	assert.Equal(t, 2, promoted.Version)
	assert.Empty(t, promoted.BlobKey)
	assert.Equal(t, body, promoted.Content)
	// Classification is a pure function of the record: a promoted body
	// over the overflow threshold still counts as warm by size.
	assert.Equal(t, content.TierWarm, s.Tier(promoted))

	t.Run("inline record is a no-op", func(t *testing.T) {
		_, err := s.Store(ctx, "small.md", "inline body")
		require.NoError(t, err)

		rec, err := s.Promote(ctx, "small.md")
		require.NoError(t, err)
		assert.Equal(t, 1, rec.Version)
	})

	t.Run("missing record is an error", func(t *testing.T) {
		_, err := s.Promote(ctx, "nope")
		require.Error(t, err)
	})
}

func TestListVersions(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	for _, body := range []string{"one", "two", "three", "four"} {
		_, err := s.Store(ctx, "doc", body)
		require.NoError(t, err)
	}

	t.Run("newest first by default", func(t *testing.T) {
		versions, err := s.ListVersions(ctx, "doc", ListVersionsOptions{})
		require.NoError(t, err)
		require.Len(t, versions, 4)
		assert.Equal(t, 4, versions[0].Version)
	})

	t.Run("limit truncates from the head", func(t *testing.T) {
		versions, err := s.ListVersions(ctx, "doc", ListVersionsOptions{Limit: 2})
		require.NoError(t, err)
		require.Len(t, versions, 2)
		assert.Equal(t, 4, versions[0].Version)
		assert.Equal(t, 3, versions[1].Version)
	})

	t.Run("timestamp ordering", func(t *testing.T) {
		versions, err := s.ListVersions(ctx, "doc", ListVersionsOptions{OrderBy: "timestamp"})
		require.NoError(t, err)
		require.Len(t, versions, 4)
		for i := 1; i < len(versions); i++ {
			assert.False(t, versions[i].StoredAt.After(versions[i-1].StoredAt))
		}
	})
}

func TestRollback(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.Store(ctx, "doc", "original")
	require.NoError(t, err)
	_, err = s.Store(ctx, "doc", "edited")
	require.NoError(t, err)

	rec, err := s.Rollback(ctx, "doc", 1)
	require.NoError(t, err)
	assert.Equal(t, 3, rec.Version)
	assert.Equal(t, "original", rec.Content)

	// History is append-only: the intermediate version survives.
	v2, err := s.Get(ctx, "doc", 2)
	require.NoError(t, err)
	require.NotNil(t, v2)
	assert.Equal(t, "edited", v2.Content)

	_, err = s.Rollback(ctx, "doc", 99)
	require.Error(t, err)
}

func TestDelete(t *testing.T) {
	s, bucket := newTestStore(t)
	ctx := context.Background()

	rec, err := s.Store(ctx, "book.md", bigBody())
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, "book.md"))

	gone, err := s.Get(ctx, "book.md", 0)
	require.NoError(t, err)
	assert.Nil(t, gone)

	data, err := bucket.Get(ctx, rec.BlobKey)
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestMetrics(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.Store(ctx, "posts/a.md", "---\n$type: post\n---\nbody a")
	require.NoError(t, err)
	_, err = s.Store(ctx, "posts/b.md", "---\n$type: post\n---\nbody b")
	require.NoError(t, err)
	_, err = s.Store(ctx, "big.md", bigBody())
	require.NoError(t, err)

	m, err := s.Metrics(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, m.RecordCount)
	assert.Equal(t, 2, m.CountByType["post"])
	assert.Equal(t, 1, m.CountByType["unknown"])
	assert.Greater(t, m.LedgerSize, int64(0))
	assert.Greater(t, m.BlobSize, int64(content.OverflowThreshold))
	assert.Equal(t, m.LedgerSize+m.BlobSize, m.TotalSize)
	assert.Equal(t, 2, m.TierCounts[content.TierHot])
	assert.Equal(t, 1, m.TierCounts[content.TierWarm])
}

func TestBatchOperations(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	t.Run("store", func(t *testing.T) {
		result := s.BatchStore(ctx, []BatchItem{
			{ID: "a", Content: "body a"},
			{ID: "b", Content: "body b"},
		})
		assert.Len(t, result.Records, 2)
		assert.Empty(t, result.Errors)
	})

	t.Run("get skips missing ids", func(t *testing.T) {
		result := s.BatchGet(ctx, []string{"a", "missing", "b"})
		assert.Len(t, result.Records, 2)
		assert.Empty(t, result.Errors)
	})

	t.Run("delete", func(t *testing.T) {
		result := s.BatchDelete(ctx, []string{"a", "b"})
		assert.Empty(t, result.Errors)

		gone, err := s.Get(ctx, "a", 0)
		require.NoError(t, err)
		assert.Nil(t, gone)
	})
}
