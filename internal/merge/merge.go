package merge

import (
	"context"
	"strings"

	"github.com/press-vault/internal/content"
)

// Strategy selects how a local/remote conflict is resolved.
type Strategy string

const (
	StrategyLocal  Strategy = "local"
	StrategyRemote Strategy = "remote"
	StrategyMerge  Strategy = "merge"
)

const (
	markerLocal     = "<<<<<<< LOCAL"
	markerSeparator = "======="
	markerRemote    = ">>>>>>> REMOTE"
)

// Side is one edit in a conflict: the full body plus, for the local side,
// the common-ancestor version both edits branched from.
type Side struct {
	Content     string `json:"content"`
	BaseVersion int    `json:"base_version,omitempty"`
}

// Result is the outcome of a conflict resolution. Content with unresolved
// conflict markers is returned to the caller as-is; deciding whether such
// content may be written back is the caller's obligation, never this
// package's.
type Result struct {
	Content                string   `json:"content"`
	HadConflict            bool     `json:"had_conflict"`
	HasUnresolvedConflicts bool     `json:"has_unresolved_conflicts"`
	Applied                Strategy `json:"applied"`
	// Note explains a strategy downgrade, e.g. merge requested without a
	// base version.
	Note string `json:"note,omitempty"`
}

// BaseFetcher retrieves the common-ancestor version for a merge. The
// versioned record store satisfies this.
type BaseFetcher interface {
	Get(ctx context.Context, id string, version int) (*content.Record, error)
}

// Resolve reconciles a local and a remote edit of the same record.
// Identical sides are never a conflict regardless of the requested
// strategy. A merge request without a reachable base version falls back
// to remote with an explicit note rather than failing silently.
func Resolve(ctx context.Context, id string, local, remote Side, strategy Strategy, base BaseFetcher) (*Result, error) {
	if local.Content == remote.Content {
		return &Result{Content: local.Content, Applied: strategy}, nil
	}

	switch strategy {
	case StrategyLocal:
		return &Result{Content: local.Content, HadConflict: true, Applied: StrategyLocal}, nil

	case StrategyRemote:
		return &Result{Content: remote.Content, HadConflict: true, Applied: StrategyRemote}, nil

	case StrategyMerge:
		if local.BaseVersion <= 0 || base == nil {
			return &Result{
				Content:     remote.Content,
				HadConflict: true,
				Applied:     StrategyRemote,
				Note:        "no base version available for merge; kept remote",
			}, nil
		}
		ancestor, err := base.Get(ctx, id, local.BaseVersion)
		if err != nil {
			return nil, err
		}
		if ancestor == nil {
			return &Result{
				Content:     remote.Content,
				HadConflict: true,
				Applied:     StrategyRemote,
				Note:        "base version not found; kept remote",
			}, nil
		}

		merged, unresolved := threeWay(ancestor.Content, local.Content, remote.Content)
		return &Result{
			Content:                merged,
			HadConflict:            true,
			HasUnresolvedConflicts: unresolved,
			Applied:                StrategyMerge,
		}, nil

	default:
		return &Result{
			Content:     remote.Content,
			HadConflict: true,
			Applied:     StrategyRemote,
			Note:        "unknown strategy; kept remote",
		}, nil
	}
}

// threeWay merges line-positionally against the common ancestor: a side
// that left a line untouched adopts the other side's line, identical
// changes on both sides keep one copy, and divergent changes render
// inline conflict markers.
func threeWay(base, local, remote string) (string, bool) {
	baseLines := strings.Split(base, "\n")
	localLines := strings.Split(local, "\n")
	remoteLines := strings.Split(remote, "\n")

	n := len(baseLines)
	if len(localLines) > n {
		n = len(localLines)
	}
	if len(remoteLines) > n {
		n = len(remoteLines)
	}

	var out []string
	unresolved := false

	for i := 0; i < n; i++ {
		b, hasB := lineAt(baseLines, i)
		l, hasL := lineAt(localLines, i)
		r, hasR := lineAt(remoteLines, i)

		switch {
		case hasL && hasR && l == r:
			out = append(out, l)
		case hasL == hasR && !hasL:
			// Both sides dropped past this index.
		case hasB && hasL && l == b:
			// Local untouched, adopt remote (which may have deleted it).
			if hasR {
				out = append(out, r)
			}
		case hasB && hasR && r == b:
			if hasL {
				out = append(out, l)
			}
		case !hasB && hasL && !hasR:
			// Line added only by local past every other body.
			out = append(out, l)
		case !hasB && !hasL && hasR:
			out = append(out, r)
		default:
			unresolved = true
			out = append(out, markerLocal)
			if hasL {
				out = append(out, l)
			}
			out = append(out, markerSeparator)
			if hasR {
				out = append(out, r)
			}
			out = append(out, markerRemote)
		}
	}

	return strings.Join(out, "\n"), unresolved
}

func lineAt(lines []string, i int) (string, bool) {
	if i < len(lines) {
		return lines[i], true
	}
	return "", false
}
