package webhook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"ref":"refs/heads/main"}`)
	secret := "hunter2"

	t.Run("valid signature", func(t *testing.T) {
		assert.True(t, VerifySignature(payload, Sign(payload, secret), secret))
	})

	t.Run("wrong secret", func(t *testing.T) {
		assert.False(t, VerifySignature(payload, Sign(payload, "other"), secret))
	})

	t.Run("tampered payload", func(t *testing.T) {
		sig := Sign(payload, secret)
		assert.False(t, VerifySignature([]byte(`{"ref":"refs/heads/evil"}`), sig, secret))
	})

	t.Run("flipped byte in signature", func(t *testing.T) {
		sig := []byte(Sign(payload, secret))
		last := sig[len(sig)-1]
		if last == 'a' {
			sig[len(sig)-1] = 'b'
		} else {
			sig[len(sig)-1] = 'a'
		}
		assert.False(t, VerifySignature(payload, string(sig), secret))
	})

	t.Run("missing prefix", func(t *testing.T) {
		sig := Sign(payload, secret)
		assert.False(t, VerifySignature(payload, sig[len("sha256="):], secret))
	})

	t.Run("malformed inputs never panic", func(t *testing.T) {
		assert.False(t, VerifySignature(payload, "", secret))
		assert.False(t, VerifySignature(payload, "sha256=", secret))
		assert.False(t, VerifySignature(payload, "sha256=zz", secret))
		assert.False(t, VerifySignature(payload, "sha256=abcd", secret))
		assert.False(t, VerifySignature(nil, Sign(payload, secret), secret))
	})
}

func TestDecode(t *testing.T) {
	t.Run("ping", func(t *testing.T) {
		ev, err := Decode("ping", []byte(`{"zen":"Keep it simple."}`))
		require.NoError(t, err)
		assert.IsType(t, PingEvent{}, ev)
	})

	t.Run("unknown type passes through", func(t *testing.T) {
		ev, err := Decode("issues", []byte(`{}`))
		require.NoError(t, err)
		unknown, ok := ev.(UnknownEvent)
		require.True(t, ok)
		assert.Equal(t, "issues", unknown.Type)
	})

	t.Run("push parses the payload", func(t *testing.T) {
		ev, err := Decode("push", []byte(`{"ref":"refs/heads/main","after":"abc123"}`))
		require.NoError(t, err)
		push, ok := ev.(*PushEvent)
		require.True(t, ok)
		assert.Equal(t, "main", push.Branch)
		assert.Equal(t, "abc123", push.SHA)
	})

	t.Run("push with invalid json fails", func(t *testing.T) {
		_, err := Decode("push", []byte(`not json`))
		require.Error(t, err)
	})
}

func TestParsePushEvent(t *testing.T) {
	payload := []byte(`{
		"ref": "refs/heads/feature/new-docs",
		"before": "aaa111",
		"after": "bbb222",
		"forced": true,
		"repository": {"full_name": "acme/site", "default_branch": "main"},
		"commits": [
			{"id": "c1", "message": "add docs", "added": ["docs/a.md"], "modified": [], "removed": []},
			{"id": "c2", "message": "edit docs", "added": [], "modified": ["docs/a.md", "docs/b.md"], "removed": ["old.md"]}
		]
	}`)

	event, err := ParsePushEvent(payload)
	require.NoError(t, err)

	assert.Equal(t, "feature/new-docs", event.Branch)
	assert.Equal(t, "acme/site", event.Repository)
	assert.Equal(t, "bbb222", event.SHA)
	assert.Equal(t, "aaa111", event.Before)
	assert.Equal(t, "main", event.DefaultBranch)
	assert.True(t, event.IsForced)
	assert.False(t, event.IsTag)
	assert.Len(t, event.Commits, 2)
}

func TestParsePushEventRefs(t *testing.T) {
	cases := []struct {
		ref    string
		branch string
		isTag  bool
	}{
		{"refs/heads/main", "main", false},
		{"refs/heads/feature/x", "feature/x", false},
		{"refs/tags/v1.2.0", "v1.2.0", true},
		{"refs/pull/42/head", "refs/pull/42/head", false},
	}

	for _, tc := range cases {
		t.Run(tc.ref, func(t *testing.T) {
			event, err := ParsePushEvent([]byte(`{"ref":"` + tc.ref + `"}`))
			require.NoError(t, err)
			assert.Equal(t, tc.branch, event.Branch)
			assert.Equal(t, tc.isTag, event.IsTag)
		})
	}
}

func TestPushEventFileFlattening(t *testing.T) {
	event := &PushEvent{Commits: []Commit{
		{Added: []string{"a.md", "b.md"}, Modified: []string{"c.md"}},
		{Added: []string{"b.md", "d.md"}, Modified: []string{"c.md"}, Removed: []string{"gone.md"}},
	}}

	assert.Equal(t, []string{"a.md", "b.md", "d.md"}, event.AddedFiles())
	assert.Equal(t, []string{"c.md"}, event.ModifiedFiles())
	assert.Equal(t, []string{"gone.md"}, event.RemovedFiles())

	empty := &PushEvent{}
	assert.Empty(t, empty.AddedFiles())
}
