package deploy

import (
	"context"
	"log"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/press-vault/internal/config"
	"github.com/press-vault/internal/content"
	"github.com/press-vault/internal/store"
	"github.com/press-vault/internal/webhook"
)

// FetchContentFunc reads a document's bytes from the source repository at
// the pushed commit. The orchestrator never reads the repository itself.
type FetchContentFunc func(ctx context.Context, path string) (string, error)

// FileError is one per-file deploy failure.
type FileError struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// Result is the outcome of one deployment run. Success is false iff the
// error list is non-empty; a failing file never aborts the rest.
type Result struct {
	ID            string        `json:"id"`
	Environment   Environment   `json:"environment"`
	Branch        string        `json:"branch"`
	SHA           string        `json:"sha"`
	Incremental   bool          `json:"incremental"`
	DeployedFiles []string      `json:"deployed_files"`
	SkippedFiles  []string      `json:"skipped_files"`
	DeletedFiles  []string      `json:"deleted_files"`
	Errors        []FileError   `json:"errors,omitempty"`
	Success       bool          `json:"success"`
	StartedAt     time.Time     `json:"started_at"`
	Duration      time.Duration `json:"duration"`
}

// Orchestrator drives full and incremental synchronization of pushed
// documents into the versioned record store. It owns the push event and
// the derived environment for the duration of one webhook cycle.
type Orchestrator struct {
	store *store.VersionedStore
	cfg   config.DeployConfig
	now   func() time.Time
}

// New creates a deployment orchestrator.
func New(st *store.VersionedStore, cfg config.DeployConfig) *Orchestrator {
	return &Orchestrator{store: st, cfg: cfg, now: time.Now}
}

// Environment maps the event's branch through the configured overrides.
func (o *Orchestrator) Environment(event *webhook.PushEvent) Environment {
	return MapBranchToEnvironment(event.Branch, o.cfg.BranchMappings, o.cfg.SiteBaseURL)
}

// IsDocument reports whether a path carries a configured document
// extension.
func (o *Orchestrator) IsDocument(filePath string) bool {
	ext := strings.ToLower(path.Ext(filePath))
	for _, allowed := range o.cfg.DocumentExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// FullDeploy stores every added and modified document from the push and
// deletes removed ones. Non-document files are skipped, not errors.
func (o *Orchestrator) FullDeploy(ctx context.Context, event *webhook.PushEvent, fetch FetchContentFunc) *Result {
	result := o.newResult(event, false)

	changed := union(event.AddedFiles(), event.ModifiedFiles())
	for _, filePath := range changed {
		if !o.IsDocument(filePath) {
			result.SkippedFiles = append(result.SkippedFiles, filePath)
			continue
		}
		if err := o.fetchAndStore(ctx, filePath, fetch); err != nil {
			result.Errors = append(result.Errors, FileError{Path: filePath, Error: err.Error()})
			continue
		}
		result.DeployedFiles = append(result.DeployedFiles, filePath)
	}

	o.deleteRemoved(ctx, event, result)
	return o.finish(result)
}

// IncrementalOptions configures an incremental deploy. Hash defaults to
// the content fingerprint used by the store.
type IncrementalOptions struct {
	Fetch FetchContentFunc
	Hash  func(string) string
}

// IncrementalDeploy stores added documents unconditionally but compares
// each modified document's fetched hash against the store's current hash
// first, skipping identical content. Redelivered webhooks and touch-only
// pushes therefore cost one fetch and no writes.
func (o *Orchestrator) IncrementalDeploy(ctx context.Context, event *webhook.PushEvent, opts IncrementalOptions) *Result {
	result := o.newResult(event, true)

	hash := opts.Hash
	if hash == nil {
		hash = content.Hash
	}

	for _, filePath := range event.AddedFiles() {
		if !o.IsDocument(filePath) {
			result.SkippedFiles = append(result.SkippedFiles, filePath)
			continue
		}
		if err := o.fetchAndStore(ctx, filePath, opts.Fetch); err != nil {
			result.Errors = append(result.Errors, FileError{Path: filePath, Error: err.Error()})
			continue
		}
		result.DeployedFiles = append(result.DeployedFiles, filePath)
	}

	for _, filePath := range event.ModifiedFiles() {
		if !o.IsDocument(filePath) {
			result.SkippedFiles = append(result.SkippedFiles, filePath)
			continue
		}

		body, err := opts.Fetch(ctx, filePath)
		if err != nil {
			result.Errors = append(result.Errors, FileError{Path: filePath, Error: err.Error()})
			continue
		}

		current, exists, err := o.store.CurrentHash(ctx, filePath)
		if err != nil {
			result.Errors = append(result.Errors, FileError{Path: filePath, Error: err.Error()})
			continue
		}
		if exists && current == hash(body) {
			result.SkippedFiles = append(result.SkippedFiles, filePath)
			continue
		}

		if _, err := o.store.Store(ctx, filePath, body); err != nil {
			result.Errors = append(result.Errors, FileError{Path: filePath, Error: err.Error()})
			continue
		}
		result.DeployedFiles = append(result.DeployedFiles, filePath)
	}

	o.deleteRemoved(ctx, event, result)
	return o.finish(result)
}

func (o *Orchestrator) newResult(event *webhook.PushEvent, incremental bool) *Result {
	return &Result{
		ID:          uuid.NewString(),
		Environment: o.Environment(event),
		Branch:      event.Branch,
		SHA:         event.SHA,
		Incremental: incremental,
		StartedAt:   o.now().UTC(),
	}
}

func (o *Orchestrator) fetchAndStore(ctx context.Context, filePath string, fetch FetchContentFunc) error {
	body, err := fetch(ctx, filePath)
	if err != nil {
		return err
	}
	_, err = o.store.Store(ctx, filePath, body)
	return err
}

func (o *Orchestrator) deleteRemoved(ctx context.Context, event *webhook.PushEvent, result *Result) {
	for _, filePath := range event.RemovedFiles() {
		if !o.IsDocument(filePath) {
			result.SkippedFiles = append(result.SkippedFiles, filePath)
			continue
		}
		if err := o.store.Delete(ctx, filePath); err != nil {
			result.Errors = append(result.Errors, FileError{Path: filePath, Error: err.Error()})
			continue
		}
		result.DeletedFiles = append(result.DeletedFiles, filePath)
	}
}

func (o *Orchestrator) finish(result *Result) *Result {
	result.Duration = o.now().UTC().Sub(result.StartedAt)
	result.Success = len(result.Errors) == 0
	log.Printf("Deploy %s to %s: %d deployed, %d skipped, %d deleted, %d errors",
		result.ID, result.Environment.Name, len(result.DeployedFiles),
		len(result.SkippedFiles), len(result.DeletedFiles), len(result.Errors))
	return result
}

func union(a, b []string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, s := range append(append([]string{}, a...), b...) {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
