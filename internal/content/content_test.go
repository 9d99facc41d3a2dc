package content

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHash(t *testing.T) {
	t.Run("deterministic and content-derived", func(t *testing.T) {
		require.Equal(t, Hash("hello"), Hash("hello"))
		require.NotEqual(t, Hash("hello"), Hash("hello!"))
	})

	t.Run("truncated hex digest", func(t *testing.T) {
		h := Hash("anything")
		require.Len(t, h, 16)
	})

	t.Run("independent of any id", func(t *testing.T) {
		a := Record{ID: "a", Content: "same body"}
		b := Record{ID: "b", Content: "same body"}
		require.Equal(t, Hash(a.Content), Hash(b.Content))
	})
}

func TestShouldOverflow(t *testing.T) {
	assert.False(t, ShouldOverflow(0))
	assert.False(t, ShouldOverflow(OverflowThreshold))
	assert.True(t, ShouldOverflow(OverflowThreshold+1))
}

func TestClassify(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("size dominates everything", func(t *testing.T) {
		rec := &Record{Size: OverflowThreshold + 1, AccessCount: 500, LastAccessed: now}
		assert.Equal(t, TierWarm, Classify(rec, now))
	})

	t.Run("blob-backed records are warm", func(t *testing.T) {
		rec := &Record{Size: 10, BlobKey: "content/x/abc", AccessCount: 500}
		assert.Equal(t, TierWarm, Classify(rec, now))
	})

	t.Run("frequently read stays hot even when old", func(t *testing.T) {
		rec := &Record{Size: 10, AccessCount: 50, LastAccessed: now.Add(-90 * 24 * time.Hour)}
		assert.Equal(t, TierHot, Classify(rec, now))
	})

	t.Run("stale lightly-used records go cold", func(t *testing.T) {
		rec := &Record{Size: 10, AccessCount: 3, LastAccessed: now.Add(-31 * 24 * time.Hour)}
		assert.Equal(t, TierCold, Classify(rec, now))
	})

	t.Run("new records default hot", func(t *testing.T) {
		rec := &Record{Size: 10}
		assert.Equal(t, TierHot, Classify(rec, now))
	})
}

func TestParseFrontmatter(t *testing.T) {
	t.Run("extracts structured data", func(t *testing.T) {
		body := "---\ntitle: Hello\n$type: post\ntags:\n  - go\n---\n\n# Hello\n"
		data := ParseFrontmatter(body)
		assert.Equal(t, "Hello", data["title"])
		assert.Equal(t, "post", data["$type"])
	})

	t.Run("no frontmatter yields empty map", func(t *testing.T) {
		data := ParseFrontmatter("# Just a heading\n")
		require.NotNil(t, data)
		assert.Empty(t, data)
	})

	t.Run("unparseable frontmatter degrades to empty map", func(t *testing.T) {
		body := "---\ntitle: [unclosed\n  broken: : :\n---\nbody\n"
		data := ParseFrontmatter(body)
		require.NotNil(t, data)
		assert.Empty(t, data)
	})

	t.Run("windows line endings", func(t *testing.T) {
		body := "---\r\ntitle: CRLF\r\n---\r\nbody"
		data := ParseFrontmatter(body)
		assert.Equal(t, "CRLF", data["title"])
	})
}

func TestTypeOf(t *testing.T) {
	assert.Equal(t, "post", TypeOf(&Record{Data: map[string]any{"$type": "post"}}))
	assert.Equal(t, "unknown", TypeOf(&Record{Data: map[string]any{}}))
	assert.Equal(t, "unknown", TypeOf(&Record{}))

	body := strings.Join([]string{"---", "$type: page", "---", "content"}, "\n")
	assert.Equal(t, "page", TypeOf(&Record{Data: ParseFrontmatter(body)}))
}
