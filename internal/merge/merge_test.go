package merge

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/press-vault/internal/content"
)

type fakeBase struct {
	records map[int]*content.Record
	err     error
}

func (f *fakeBase) Get(_ context.Context, _ string, version int) (*content.Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.records[version], nil
}

func TestResolveIdenticalSides(t *testing.T) {
	res, err := Resolve(context.Background(), "doc", Side{Content: "same"}, Side{Content: "same"}, StrategyMerge, nil)
	require.NoError(t, err)
	assert.Equal(t, "same", res.Content)
	assert.False(t, res.HadConflict)
	assert.False(t, res.HasUnresolvedConflicts)
}

func TestResolveLocalStrategy(t *testing.T) {
	res, err := Resolve(context.Background(), "doc", Side{Content: "mine"}, Side{Content: "theirs"}, StrategyLocal, nil)
	require.NoError(t, err)
	assert.Equal(t, "mine", res.Content)
	assert.True(t, res.HadConflict)
	assert.Equal(t, StrategyLocal, res.Applied)
}

func TestResolveRemoteStrategy(t *testing.T) {
	res, err := Resolve(context.Background(), "doc", Side{Content: "mine"}, Side{Content: "theirs"}, StrategyRemote, nil)
	require.NoError(t, err)
	assert.Equal(t, "theirs", res.Content)
	assert.True(t, res.HadConflict)
	assert.Equal(t, StrategyRemote, res.Applied)
}

func TestResolveMergeWithoutBase(t *testing.T) {
	t.Run("no base version on the local side", func(t *testing.T) {
		res, err := Resolve(context.Background(), "doc", Side{Content: "mine"}, Side{Content: "theirs"}, StrategyMerge, &fakeBase{})
		require.NoError(t, err)
		assert.Equal(t, "theirs", res.Content)
		assert.Equal(t, StrategyRemote, res.Applied)
		assert.NotEmpty(t, res.Note)
	})

	t.Run("base version not in the store", func(t *testing.T) {
		res, err := Resolve(context.Background(), "doc",
			Side{Content: "mine", BaseVersion: 7}, Side{Content: "theirs"},
			StrategyMerge, &fakeBase{records: map[int]*content.Record{}})
		require.NoError(t, err)
		assert.Equal(t, "theirs", res.Content)
		assert.Equal(t, StrategyRemote, res.Applied)
		assert.NotEmpty(t, res.Note)
	})

	t.Run("base fetch failure propagates", func(t *testing.T) {
		_, err := Resolve(context.Background(), "doc",
			Side{Content: "mine", BaseVersion: 1}, Side{Content: "theirs"},
			StrategyMerge, &fakeBase{err: errors.New("ledger offline")})
		require.Error(t, err)
	})
}

func TestResolveCleanMerge(t *testing.T) {
	base := &fakeBase{records: map[int]*content.Record{
		1: {ID: "doc", Version: 1, Content: "a\nb\nc"},
	}}

	res, err := Resolve(context.Background(), "doc",
		Side{Content: "a\nB\nc", BaseVersion: 1},
		Side{Content: "a\nb\nC"},
		StrategyMerge, base)
	require.NoError(t, err)

	assert.Equal(t, "a\nB\nC", res.Content)
	assert.True(t, res.HadConflict)
	assert.False(t, res.HasUnresolvedConflicts)
	assert.Equal(t, StrategyMerge, res.Applied)
}

func TestResolveConflictingMerge(t *testing.T) {
	base := &fakeBase{records: map[int]*content.Record{
		1: {ID: "doc", Version: 1, Content: "a\nb\nc"},
	}}

	res, err := Resolve(context.Background(), "doc",
		Side{Content: "a\nX\nc", BaseVersion: 1},
		Side{Content: "a\nY\nc"},
		StrategyMerge, base)
	require.NoError(t, err)

	assert.True(t, res.HasUnresolvedConflicts)
	assert.Contains(t, res.Content, markerLocal)
	assert.Contains(t, res.Content, markerSeparator)
	assert.Contains(t, res.Content, markerRemote)
	assert.Contains(t, res.Content, "X")
	assert.Contains(t, res.Content, "Y")

	// Marker block sits where the divergent line was.
	lines := strings.Split(res.Content, "\n")
	assert.Equal(t, "a", lines[0])
	assert.Equal(t, markerLocal, lines[1])
}

func TestThreeWay(t *testing.T) {
	t.Run("identical change on both sides kept once", func(t *testing.T) {
		merged, unresolved := threeWay("a\nb", "a\nZ", "a\nZ")
		assert.Equal(t, "a\nZ", merged)
		assert.False(t, unresolved)
	})

	t.Run("remote deletion of an untouched local line", func(t *testing.T) {
		merged, unresolved := threeWay("a\nb\nc", "a\nb\nc", "a\nc")
		assert.False(t, unresolved)
		assert.Equal(t, "a\nc", merged)
	})

	t.Run("local addition past the base", func(t *testing.T) {
		merged, unresolved := threeWay("a", "a\nextra", "a")
		assert.False(t, unresolved)
		assert.Equal(t, "a\nextra", merged)
	})
}

func TestResolveUnknownStrategy(t *testing.T) {
	res, err := Resolve(context.Background(), "doc", Side{Content: "mine"}, Side{Content: "theirs"}, Strategy("bogus"), nil)
	require.NoError(t, err)
	assert.Equal(t, "theirs", res.Content)
	assert.Equal(t, StrategyRemote, res.Applied)
	assert.NotEmpty(t, res.Note)
}
