package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// VerifySignature recomputes the HMAC-SHA256 of the raw payload and
// compares it to the supplied signature header in constant time. The
// header carries a "sha256=" prefix. Any malformed or length-mismatched
// signature is a verification failure, never a panic.
func VerifySignature(payload []byte, signature, secret string) bool {
	sigHex, ok := strings.CutPrefix(signature, "sha256=")
	if !ok {
		return false
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(sig, mac.Sum(nil))
}

// Sign produces the signature header value for a payload. Used by tests
// and outbound redeliveries.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Event is an inbound webhook event, one variant per delivery type.
type Event interface {
	isEvent()
}

// PingEvent is the sender's connectivity check; acknowledged, never acted on.
type PingEvent struct{}

// PushEvent is a normalized push delivery.
type PushEvent struct {
	Branch        string   `json:"branch"`
	Repository    string   `json:"repository"`
	SHA           string   `json:"sha"`
	Before        string   `json:"before"`
	IsTag         bool     `json:"is_tag"`
	IsForced      bool     `json:"is_forced"`
	Commits       []Commit `json:"commits"`
	DefaultBranch string   `json:"default_branch"`
}

// UnknownEvent is any delivery type this engine does not handle.
type UnknownEvent struct {
	Type string `json:"type"`
}

func (PingEvent) isEvent()    {}
func (*PushEvent) isEvent()   {}
func (UnknownEvent) isEvent() {}

// Commit is one commit in a push delivery.
type Commit struct {
	ID       string   `json:"id"`
	Message  string   `json:"message"`
	Added    []string `json:"added"`
	Modified []string `json:"modified"`
	Removed  []string `json:"removed"`
}

// rawPushPayload is the wire shape of a push delivery.
type rawPushPayload struct {
	Ref        string `json:"ref"`
	Before     string `json:"before"`
	After      string `json:"after"`
	Forced     bool   `json:"forced"`
	Repository struct {
		FullName      string `json:"full_name"`
		DefaultBranch string `json:"default_branch"`
	} `json:"repository"`
	Commits []Commit `json:"commits"`
}

// Decode turns a delivery type header and raw payload into a tagged
// event. Only push payloads are parsed; everything else passes through as
// its variant so the entry point can acknowledge without processing.
func Decode(eventType string, payload []byte) (Event, error) {
	switch eventType {
	case "ping":
		return PingEvent{}, nil
	case "push":
		return ParsePushEvent(payload)
	default:
		return UnknownEvent{Type: eventType}, nil
	}
}

// ParsePushEvent normalizes a raw push payload. The branch name comes
// from the ref string: refs/heads/* is a branch, refs/tags/* is a tag,
// anything else passes through verbatim.
func ParsePushEvent(payload []byte) (*PushEvent, error) {
	var raw rawPushPayload
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse push payload: %w", err)
	}

	event := &PushEvent{
		Repository:    raw.Repository.FullName,
		SHA:           raw.After,
		Before:        raw.Before,
		IsForced:      raw.Forced,
		Commits:       raw.Commits,
		DefaultBranch: raw.Repository.DefaultBranch,
	}

	switch {
	case strings.HasPrefix(raw.Ref, "refs/heads/"):
		event.Branch = strings.TrimPrefix(raw.Ref, "refs/heads/")
	case strings.HasPrefix(raw.Ref, "refs/tags/"):
		event.Branch = strings.TrimPrefix(raw.Ref, "refs/tags/")
		event.IsTag = true
	default:
		event.Branch = raw.Ref
	}

	return event, nil
}

// AddedFiles flattens the added paths across all commits, de-duplicated
// in first-seen order.
func (e *PushEvent) AddedFiles() []string {
	return flatten(e.Commits, func(c Commit) []string { return c.Added })
}

// ModifiedFiles flattens the modified paths across all commits.
func (e *PushEvent) ModifiedFiles() []string {
	return flatten(e.Commits, func(c Commit) []string { return c.Modified })
}

// RemovedFiles flattens the removed paths across all commits.
func (e *PushEvent) RemovedFiles() []string {
	return flatten(e.Commits, func(c Commit) []string { return c.Removed })
}

func flatten(commits []Commit, pick func(Commit) []string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, c := range commits {
		for _, path := range pick(c) {
			if _, ok := seen[path]; ok {
				continue
			}
			seen[path] = struct{}{}
			out = append(out, path)
		}
	}
	return out
}
