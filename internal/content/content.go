package content

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// OverflowThreshold is the logical content size above which the body is
// stored out-of-band in the blob bucket instead of inline in the ledger.
const OverflowThreshold = 1 << 20 // 1 MiB

// Tier classifies where a record should live based on size and usage.
type Tier string

const (
	TierHot  Tier = "hot"
	TierWarm Tier = "warm"
	TierCold Tier = "cold"
)

const (
	// HotAccessCount is the access count at which a record is considered
	// frequently read regardless of age.
	HotAccessCount = 50
	// ColdAfter is how long a record can go unread before it is cold.
	ColdAfter = 30 * 24 * time.Hour
)

// Record is a single stored document version.
type Record struct {
	ID      string `json:"id"`
	Hash    string `json:"hash"`
	Content string `json:"content"`
	// Data is the structured frontmatter extracted from Content. Opaque to
	// the storage layer.
	Data    map[string]any `json:"data"`
	Size    int64          `json:"size"`
	Version int            `json:"version"`
	// BlobKey points into the bucket when the body lives out-of-band. A
	// record with BlobKey set has empty Content in the ledger.
	BlobKey      string    `json:"blob_key,omitempty"`
	StoredAt     time.Time `json:"stored_at"`
	AccessCount  int       `json:"access_count"`
	LastAccessed time.Time `json:"last_accessed"`
}

// VersionInfo is a lightweight history entry for a record.
type VersionInfo struct {
	Version  int       `json:"version"`
	Hash     string    `json:"hash"`
	Size     int64     `json:"size"`
	StoredAt time.Time `json:"stored_at"`
}

// Hash returns the content fingerprint: a truncated hex SHA-256 digest.
// Two equal bodies always hash equal regardless of record ID.
func Hash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])[:16]
}

// ShouldOverflow reports whether a body of the given size must be stored
// in the bucket rather than inline.
func ShouldOverflow(size int64) bool {
	return size > OverflowThreshold
}

// Classify returns the storage tier for a record. Size and physical
// location dominate access recency: anything over the overflow threshold
// or already living in the bucket is warm, then frequently-read records
// are hot, then stale records are cold, and everything else defaults hot.
func Classify(rec *Record, now time.Time) Tier {
	if rec.Size > OverflowThreshold || rec.BlobKey != "" {
		return TierWarm
	}
	if rec.AccessCount >= HotAccessCount {
		return TierHot
	}
	if !rec.LastAccessed.IsZero() && now.Sub(rec.LastAccessed) > ColdAfter {
		return TierCold
	}
	return TierHot
}

// ParseFrontmatter extracts the YAML frontmatter block from a Markdown
// body. A body without a frontmatter block, or with one that fails to
// parse, yields an empty map: storage is never blocked by an unparseable
// presentation-layer header.
func ParseFrontmatter(body string) map[string]any {
	data := map[string]any{}
	raw, ok := frontmatterBlock(body)
	if !ok {
		return data
	}
	if err := yaml.Unmarshal([]byte(raw), &data); err != nil {
		return map[string]any{}
	}
	if data == nil {
		return map[string]any{}
	}
	return data
}

// frontmatterBlock returns the raw YAML between leading "---" fences.
func frontmatterBlock(body string) (string, bool) {
	rest, ok := strings.CutPrefix(body, "---\n")
	if !ok {
		rest, ok = strings.CutPrefix(body, "---\r\n")
		if !ok {
			return "", false
		}
	}
	for _, fence := range []string{"\n---\n", "\n---\r\n"} {
		if idx := strings.Index(rest, fence); idx >= 0 {
			return rest[:idx], true
		}
	}
	// Frontmatter that runs to the end of the body.
	if idx := strings.Index(rest, "\n---"); idx >= 0 && strings.TrimRight(rest[idx+4:], "\r\n ") == "" {
		return rest[:idx], true
	}
	return "", false
}

// TypeOf reads the document type from a record's frontmatter, defaulting
// to "unknown".
func TypeOf(rec *Record) string {
	if rec.Data != nil {
		if t, ok := rec.Data["$type"].(string); ok && t != "" {
			return t
		}
	}
	return "unknown"
}
