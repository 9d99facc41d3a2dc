package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeIdentical(t *testing.T) {
	d := Compute("a\nb\nc", "a\nb\nc")
	assert.False(t, d.HasChanges)
	assert.Empty(t, d.Operations)
}

func TestComputeReplace(t *testing.T) {
	d := Compute("a\nb\nc", "a\nB\nc")
	require.True(t, d.HasChanges)
	require.Len(t, d.Operations, 1)

	op := d.Operations[0]
	assert.Equal(t, OpReplace, op.Type)
	assert.Equal(t, 2, op.Position)
	assert.Equal(t, 1, op.Length)
	assert.Equal(t, "B", op.Content)
}

func TestComputeTailDelete(t *testing.T) {
	d := Compute("a\nb\nc", "a")
	require.Len(t, d.Operations, 2)
	assert.Equal(t, OpDelete, d.Operations[0].Type)
	assert.Equal(t, OpDelete, d.Operations[1].Type)
}

func TestComputeTailInsert(t *testing.T) {
	d := Compute("a", "a\nb\nc")
	require.Len(t, d.Operations, 2)
	for _, op := range d.Operations {
		assert.Equal(t, OpInsert, op.Type)
	}
	// Distinct positions keep relative order through Apply.
	assert.Less(t, d.Operations[0].Position, d.Operations[1].Position)
}

func TestApplyRoundTrip(t *testing.T) {
	cases := []struct {
		name     string
		old, new string
	}{
		{"identical", "a\nb\nc", "a\nb\nc"},
		{"single replace", "a\nb\nc", "a\nB\nc"},
		{"multiple replaces", "one\ntwo\nthree", "uno\ntwo\ntres"},
		{"grow at tail", "a\nb", "a\nb\nc\nd"},
		{"shrink at tail", "a\nb\nc\nd", "a\nb"},
		{"replace and grow", "a\nb", "A\nb\nc"},
		{"replace and shrink", "a\nb\nc", "A\nb"},
		{"empty to content", "", "hello\nworld"},
		{"content to empty", "hello\nworld", ""},
		{"both empty", "", ""},
		{"blank lines", "a\n\nb\n\n", "a\n\nB\n"},
		{"full rewrite", "x\ny\nz", "p\nq"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := Compute(tc.old, tc.new)
			assert.Equal(t, tc.new, Apply(tc.old, d))
		})
	}
}

func TestApplyNilDiff(t *testing.T) {
	assert.Equal(t, "unchanged", Apply("unchanged", nil))
	assert.Equal(t, "unchanged", Apply("unchanged", &ContentDiff{}))
}

func TestStats(t *testing.T) {
	d := Compute("a\nb\nc\nd", "A\nb\nx\ny\nz")
	s := d.Stats()
	assert.Equal(t, 3, s.Replaces)
	assert.Equal(t, 1, s.Inserts)
	assert.Equal(t, 0, s.Deletes)
}
