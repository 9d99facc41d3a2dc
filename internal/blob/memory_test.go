package blob

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "content/posts/hello.md/abc123", Key("posts/hello.md", "abc123"))
}

func TestMemoryBucket(t *testing.T) {
	b := NewMemoryBucket()
	ctx := context.Background()

	t.Run("put and get", func(t *testing.T) {
		res, err := b.Put(ctx, "k1", []byte("hello"))
		require.NoError(t, err)
		assert.Equal(t, "k1", res.Key)
		assert.Equal(t, int64(5), res.Size)

		body, err := b.Get(ctx, "k1")
		require.NoError(t, err)
		assert.Equal(t, "hello", string(body))
	})

	t.Run("absent key is not an error", func(t *testing.T) {
		body, err := b.Get(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, body)
	})

	t.Run("stored bytes are isolated from the caller", func(t *testing.T) {
		buf := []byte("original")
		_, err := b.Put(ctx, "k2", buf)
		require.NoError(t, err)
		buf[0] = 'X'

		body, err := b.Get(ctx, "k2")
		require.NoError(t, err)
		assert.Equal(t, "original", string(body))
	})

	t.Run("head and delete", func(t *testing.T) {
		_, err := b.Put(ctx, "k3", []byte("x"))
		require.NoError(t, err)

		exists, err := b.Head(ctx, "k3")
		require.NoError(t, err)
		assert.True(t, exists)

		require.NoError(t, b.Delete(ctx, "k3"))
		require.NoError(t, b.Delete(ctx, "k3")) // idempotent

		exists, err = b.Head(ctx, "k3")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("list", func(t *testing.T) {
		fresh := NewMemoryBucket()
		_, err := fresh.Put(ctx, "a", []byte("1"))
		require.NoError(t, err)
		_, err = fresh.Put(ctx, "b", []byte("2"))
		require.NoError(t, err)

		keys, err := fresh.List(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"a", "b"}, keys)
	})
}
