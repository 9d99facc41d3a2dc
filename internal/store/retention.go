package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/press-vault/internal/content"
)

// CleanupOptions bounds which historical versions survive a cleanup.
type CleanupOptions struct {
	// RetentionDays keeps versions newer than now - RetentionDays.
	RetentionDays int
	// MinVersions keeps at least this many newest versions regardless of age.
	MinVersions int
}

func (o CleanupOptions) withDefaults() CleanupOptions {
	if o.RetentionDays <= 0 {
		o.RetentionDays = 30
	}
	if o.MinVersions <= 0 {
		o.MinVersions = 1
	}
	return o
}

// CleanupPlan lists which versions a cleanup would remove and keep. The
// plan is a pure computation; applying it is RunCleanup's job, so a crash
// between the two never loses a live version.
type CleanupPlan struct {
	ID       string                `json:"id"`
	Cleaned  []content.VersionInfo `json:"cleaned"`
	Retained []content.VersionInfo `json:"retained"`
}

// PlanCleanup computes which of a record's versions are eligible for
// removal. The newest MinVersions entries are always retained; of the
// remainder, versions inside the retention window are retained and the
// rest are marked for cleanup.
func (s *VersionedStore) PlanCleanup(ctx context.Context, id string, opts CleanupOptions) (*CleanupPlan, error) {
	opts = opts.withDefaults()

	versions, err := s.ledger.GetVersionHistory(id)
	if err != nil {
		return nil, err
	}

	// Newest first.
	sort.SliceStable(versions, func(i, j int) bool {
		return versions[i].Version > versions[j].Version
	})

	cutoff := s.now().UTC().AddDate(0, 0, -opts.RetentionDays)
	plan := &CleanupPlan{ID: id}
	for i, v := range versions {
		if i < opts.MinVersions || v.StoredAt.After(cutoff) {
			plan.Retained = append(plan.Retained, v)
			continue
		}
		plan.Cleaned = append(plan.Cleaned, v)
	}

	return plan, nil
}

// RunCleanup applies a cleanup plan: it deletes the planned versions from
// the ledger, then removes any bucket blobs no surviving version still
// references. The call is idempotent; re-running a partially applied plan
// is safe.
func (s *VersionedStore) RunCleanup(ctx context.Context, plan *CleanupPlan) error {
	if plan == nil || len(plan.Cleaned) == 0 {
		return nil
	}

	// Collect candidate blob keys before the versions disappear.
	candidates := map[string]struct{}{}
	versionNums := make([]int, 0, len(plan.Cleaned))
	for _, v := range plan.Cleaned {
		versionNums = append(versionNums, v.Version)
		rec, err := s.ledger.GetContent(plan.ID, v.Version)
		if err != nil {
			return err
		}
		if rec != nil && rec.BlobKey != "" {
			candidates[rec.BlobKey] = struct{}{}
		}
	}

	if err := s.ledger.DeleteVersions(plan.ID, versionNums); err != nil {
		return err
	}

	if len(candidates) == 0 {
		return nil
	}

	// Identical content across versions shares a blob key, so a retained
	// version may still reference a candidate.
	live, err := s.ledger.ListBlobKeys()
	if err != nil {
		return err
	}
	for _, key := range live {
		delete(candidates, key)
	}

	for key := range candidates {
		if err := s.bucket.Delete(ctx, key); err != nil {
			return fmt.Errorf("failed to delete blob %s: %w", key, err)
		}
	}

	return nil
}

// BucketKeys lists every physical key currently in the bucket.
func (s *VersionedStore) BucketKeys(ctx context.Context) ([]string, error) {
	return s.bucket.List(ctx)
}

// FindOrphanedBlobs returns the physical bucket keys no ledger version
// references. Orphans are the residue of interrupted overflow writes.
func (s *VersionedStore) FindOrphanedBlobs(ctx context.Context, knownBlobKeys []string) ([]string, error) {
	referenced, err := s.ledger.ListBlobKeys()
	if err != nil {
		return nil, err
	}

	refSet := make(map[string]struct{}, len(referenced))
	for _, key := range referenced {
		refSet[key] = struct{}{}
	}

	var orphans []string
	for _, key := range knownBlobKeys {
		if _, ok := refSet[key]; !ok {
			orphans = append(orphans, key)
		}
	}

	return orphans, nil
}
