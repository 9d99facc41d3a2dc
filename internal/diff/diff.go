package diff

import (
	"sort"
	"strings"
)

// OpType is the kind of a single diff operation.
type OpType string

const (
	OpInsert  OpType = "insert"
	OpDelete  OpType = "delete"
	OpReplace OpType = "replace"
)

// Operation is one line-granular edit. Position is a byte offset at a
// line boundary of the old content; Length is the byte length of the old
// line for delete/replace; Content is the replacement or inserted line.
type Operation struct {
	Type     OpType `json:"type"`
	Position int    `json:"position"`
	Length   int    `json:"length,omitempty"`
	Content  string `json:"content,omitempty"`
}

// ContentDiff is a derived change report between two bodies. Full content
// stays the canonical representation; a ContentDiff only measures and
// reports change magnitude and is never persisted as the source of truth.
type ContentDiff struct {
	Operations []Operation `json:"operations"`
	HasChanges bool        `json:"has_changes"`
}

// Stats summarizes a diff's magnitude.
type Stats struct {
	Inserts  int `json:"inserts"`
	Deletes  int `json:"deletes"`
	Replaces int `json:"replaces"`
}

// Stats counts operations by type.
func (d *ContentDiff) Stats() Stats {
	var s Stats
	for _, op := range d.Operations {
		switch op.Type {
		case OpInsert:
			s.Inserts++
		case OpDelete:
			s.Deletes++
		case OpReplace:
			s.Replaces++
		}
	}
	return s
}

// Compute walks both bodies line-by-line positionally: a line present in
// both at the same index is unchanged, a differing line at the same index
// is a replace, and the longer side's tail becomes inserts or deletes.
// This is intentionally a cheap position-aligned diff, not a minimal edit
// script; Apply is written against exactly this alignment and the pair
// must not be swapped for a general diff algorithm independently.
func Compute(oldContent, newContent string) *ContentDiff {
	d := &ContentDiff{}
	if oldContent == newContent {
		return d
	}

	oldLines := strings.Split(oldContent, "\n")
	newLines := strings.Split(newContent, "\n")
	offsets := lineOffsets(oldLines)
	oldSize := len(oldContent)

	common := len(oldLines)
	if len(newLines) < common {
		common = len(newLines)
	}

	for i := 0; i < common; i++ {
		if oldLines[i] != newLines[i] {
			d.Operations = append(d.Operations, Operation{
				Type:     OpReplace,
				Position: offsets[i],
				Length:   len(oldLines[i]),
				Content:  newLines[i],
			})
		}
	}

	for i := common; i < len(oldLines); i++ {
		d.Operations = append(d.Operations, Operation{
			Type:     OpDelete,
			Position: offsets[i],
			Length:   len(oldLines[i]),
		})
	}

	for i := common; i < len(newLines); i++ {
		// Tail inserts get distinct positions past the old body's end so
		// application keeps them ordered.
		d.Operations = append(d.Operations, Operation{
			Type:     OpInsert,
			Position: oldSize + (i - common),
			Content:  newLines[i],
		})
	}

	d.HasChanges = len(d.Operations) > 0
	return d
}

// Apply replays a diff produced by Compute onto the old content. Replace
// and delete operations apply in descending position order so earlier
// splices never invalidate later offsets; tail inserts then append in
// ascending order. Apply(old, Compute(old, new)) == new always holds.
func Apply(oldContent string, d *ContentDiff) string {
	if d == nil || !d.HasChanges {
		return oldContent
	}

	lines := strings.Split(oldContent, "\n")
	offsets := lineOffsets(lines)

	var splices, inserts []Operation
	for _, op := range d.Operations {
		if op.Type == OpInsert {
			inserts = append(inserts, op)
		} else {
			splices = append(splices, op)
		}
	}

	sort.Slice(splices, func(i, j int) bool {
		return splices[i].Position > splices[j].Position
	})
	for _, op := range splices {
		idx := lineIndex(offsets, op.Position)
		if idx < 0 || idx >= len(lines) {
			continue
		}
		switch op.Type {
		case OpReplace:
			lines[idx] = op.Content
		case OpDelete:
			lines = append(lines[:idx], lines[idx+1:]...)
		}
	}

	sort.Slice(inserts, func(i, j int) bool {
		return inserts[i].Position < inserts[j].Position
	})
	for _, op := range inserts {
		lines = append(lines, op.Content)
	}

	return strings.Join(lines, "\n")
}

// lineOffsets returns the byte offset of each line's start.
func lineOffsets(lines []string) []int {
	offsets := make([]int, len(lines))
	pos := 0
	for i, line := range lines {
		offsets[i] = pos
		pos += len(line) + 1 // +1 for the newline
	}
	return offsets
}

// lineIndex maps a byte position back to the line starting there.
func lineIndex(offsets []int, pos int) int {
	idx := sort.SearchInts(offsets, pos)
	if idx < len(offsets) && offsets[idx] == pos {
		return idx
	}
	return -1
}
