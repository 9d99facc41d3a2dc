package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/press-vault/internal/content"
	"github.com/press-vault/internal/diff"
	"github.com/press-vault/internal/merge"
	"github.com/press-vault/internal/store"
)

// getPathParam extracts and URL-decodes a path parameter from the request
func getPathParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw // return original if decode fails
	}
	return decoded
}

// APIError represents an error response
type APIError struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Printf("Error encoding JSON response: %v", err)
		}
	}
}

// respondError writes an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, APIError{Error: http.StatusText(status), Message: message})
}

// handleHealth returns the health status of the service
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// handleListContent returns the latest version of every record
func (s *Server) handleListContent(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.List(r.Context())
	if err != nil {
		log.Printf("Error listing content: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to list content")
		return
	}
	if records == nil {
		records = []content.Record{}
	}
	respondJSON(w, http.StatusOK, records)
}

type storeContentRequest struct {
	Content string `json:"content"`
}

// handleStoreContent stores a new version of a record
func (s *Server) handleStoreContent(w http.ResponseWriter, r *http.Request) {
	id := getPathParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "ID is required")
		return
	}

	var req storeContentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	rec, err := s.store.Store(r.Context(), id, req.Content)
	if err != nil {
		log.Printf("Error storing content %s: %v", id, err)
		respondError(w, http.StatusInternalServerError, "Failed to store content")
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"record": rec,
		"tier":   s.store.Tier(rec),
	})
}

// handleGetContent returns a record, latest version by default
func (s *Server) handleGetContent(w http.ResponseWriter, r *http.Request) {
	id := getPathParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "ID is required")
		return
	}

	version := 0
	if v := r.URL.Query().Get("version"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			respondError(w, http.StatusBadRequest, "Invalid version")
			return
		}
		version = parsed
	}

	rec, err := s.store.Get(r.Context(), id, version)
	if err != nil {
		log.Printf("Error getting content %s: %v", id, err)
		respondError(w, http.StatusInternalServerError, "Failed to get content")
		return
	}
	if rec == nil {
		respondError(w, http.StatusNotFound, "Content not found")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"record": rec,
		"tier":   s.store.Tier(rec),
	})
}

// handleDeleteContent removes a record and all its versions
func (s *Server) handleDeleteContent(w http.ResponseWriter, r *http.Request) {
	id := getPathParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "ID is required")
		return
	}

	if err := s.store.Delete(r.Context(), id); err != nil {
		log.Printf("Error deleting content %s: %v", id, err)
		respondError(w, http.StatusInternalServerError, "Failed to delete content")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"success": true, "id": id})
}

// handleListVersions returns a record's version history
func (s *Server) handleListVersions(w http.ResponseWriter, r *http.Request) {
	id := getPathParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "ID is required")
		return
	}

	opts := store.ListVersionsOptions{OrderBy: r.URL.Query().Get("order_by")}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		parsed, err := strconv.Atoi(limit)
		if err != nil || parsed < 0 {
			respondError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		opts.Limit = parsed
	}

	versions, err := s.store.ListVersions(r.Context(), id, opts)
	if err != nil {
		log.Printf("Error listing versions for %s: %v", id, err)
		respondError(w, http.StatusInternalServerError, "Failed to list versions")
		return
	}
	if versions == nil {
		versions = []content.VersionInfo{}
	}

	respondJSON(w, http.StatusOK, versions)
}

// handleDiff returns the change set between two versions of a record
func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request) {
	id := getPathParam(r, "id")

	v1, err := strconv.Atoi(chi.URLParam(r, "v1"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid version v1")
		return
	}
	v2, err := strconv.Atoi(chi.URLParam(r, "v2"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid version v2")
		return
	}

	rec1, err := s.store.Get(r.Context(), id, v1)
	if err != nil {
		log.Printf("Error getting version %d of %s: %v", v1, id, err)
		respondError(w, http.StatusInternalServerError, "Failed to get version")
		return
	}
	if rec1 == nil {
		respondError(w, http.StatusNotFound, "Version v1 not found")
		return
	}

	rec2, err := s.store.Get(r.Context(), id, v2)
	if err != nil {
		log.Printf("Error getting version %d of %s: %v", v2, id, err)
		respondError(w, http.StatusInternalServerError, "Failed to get version")
		return
	}
	if rec2 == nil {
		respondError(w, http.StatusNotFound, "Version v2 not found")
		return
	}

	d := diff.Compute(rec1.Content, rec2.Content)
	respondJSON(w, http.StatusOK, map[string]any{
		"diff":  d,
		"stats": d.Stats(),
		"unified": diff.Unified(rec1.Content, rec2.Content,
			fmt.Sprintf("%s (v%d)", id, v1),
			fmt.Sprintf("%s (v%d)", id, v2)),
	})
}

// handleRollback re-stores an old version's body as a new version
func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) {
	id := getPathParam(r, "id")

	version, err := strconv.Atoi(chi.URLParam(r, "version"))
	if err != nil || version < 1 {
		respondError(w, http.StatusBadRequest, "Invalid version")
		return
	}

	rec, err := s.store.Rollback(r.Context(), id, version)
	if err != nil {
		log.Printf("Error rolling back %s to version %d: %v", id, version, err)
		respondError(w, http.StatusInternalServerError, "Failed to roll back")
		return
	}

	log.Printf("Rolled back %s to version %d (new version %d)", id, version, rec.Version)
	respondJSON(w, http.StatusOK, map[string]any{"record": rec})
}

// handlePromote rewrites an overflowed record inline
func (s *Server) handlePromote(w http.ResponseWriter, r *http.Request) {
	id := getPathParam(r, "id")

	rec, err := s.store.Promote(r.Context(), id)
	if err != nil {
		log.Printf("Error promoting %s: %v", id, err)
		respondError(w, http.StatusInternalServerError, "Failed to promote")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"record": rec, "tier": s.store.Tier(rec)})
}

type resolveRequest struct {
	LocalContent  string `json:"local_content"`
	BaseVersion   int    `json:"base_version,omitempty"`
	RemoteContent string `json:"remote_content"`
	Strategy      string `json:"strategy"`
	// Store persists a clean result as a new version. Force persists even
	// with unresolved conflict markers.
	Store bool `json:"store,omitempty"`
	Force bool `json:"force,omitempty"`
}

// handleResolve reconciles a local and remote edit of a record. Whether
// a result with unresolved markers may be written is the caller's call:
// it is persisted only with force set.
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	id := getPathParam(r, "id")

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := merge.Resolve(r.Context(), id,
		merge.Side{Content: req.LocalContent, BaseVersion: req.BaseVersion},
		merge.Side{Content: req.RemoteContent},
		merge.Strategy(req.Strategy), s.store)
	if err != nil {
		log.Printf("Error resolving conflict for %s: %v", id, err)
		respondError(w, http.StatusInternalServerError, "Failed to resolve conflict")
		return
	}

	stored := false
	if req.Store {
		if result.HasUnresolvedConflicts && !req.Force {
			respondJSON(w, http.StatusConflict, map[string]any{
				"result": result,
				"stored": false,
			})
			return
		}
		if _, err := s.store.Store(r.Context(), id, result.Content); err != nil {
			log.Printf("Error storing resolved content for %s: %v", id, err)
			respondError(w, http.StatusInternalServerError, "Failed to store resolved content")
			return
		}
		stored = true
	}

	respondJSON(w, http.StatusOK, map[string]any{"result": result, "stored": stored})
}

type cleanupRequest struct {
	RetentionDays int  `json:"retention_days,omitempty"`
	MinVersions   int  `json:"min_versions,omitempty"`
	DryRun        bool `json:"dry_run,omitempty"`
}

// handleCleanup plans and, unless dry_run, applies version retention
func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	id := getPathParam(r, "id")

	req := cleanupRequest{
		RetentionDays: s.retention.Days,
		MinVersions:   s.retention.MinVersions,
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	plan, err := s.store.PlanCleanup(r.Context(), id, store.CleanupOptions{
		RetentionDays: req.RetentionDays,
		MinVersions:   req.MinVersions,
	})
	if err != nil {
		log.Printf("Error planning cleanup for %s: %v", id, err)
		respondError(w, http.StatusInternalServerError, "Failed to plan cleanup")
		return
	}

	applied := false
	if !req.DryRun {
		if err := s.store.RunCleanup(r.Context(), plan); err != nil {
			log.Printf("Error running cleanup for %s: %v", id, err)
			respondError(w, http.StatusInternalServerError, "Failed to run cleanup")
			return
		}
		applied = true
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"plan":     plan,
		"cleaned":  len(plan.Cleaned),
		"retained": len(plan.Retained),
		"applied":  applied,
	})
}

type batchStoreRequest struct {
	Items []store.BatchItem `json:"items"`
}

type batchIDsRequest struct {
	IDs []string `json:"ids"`
}

// handleBatchStore stores several documents, isolating per-item failures
func (s *Server) handleBatchStore(w http.ResponseWriter, r *http.Request) {
	var req batchStoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	respondJSON(w, http.StatusOK, s.store.BatchStore(r.Context(), req.Items))
}

// handleBatchGet fetches several records
func (s *Server) handleBatchGet(w http.ResponseWriter, r *http.Request) {
	var req batchIDsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	respondJSON(w, http.StatusOK, s.store.BatchGet(r.Context(), req.IDs))
}

// handleBatchDelete deletes several records
func (s *Server) handleBatchDelete(w http.ResponseWriter, r *http.Request) {
	var req batchIDsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	respondJSON(w, http.StatusOK, s.store.BatchDelete(r.Context(), req.IDs))
}

// handleMetrics returns on-demand storage statistics
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := s.store.Metrics(r.Context())
	if err != nil {
		log.Printf("Error computing metrics: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to compute metrics")
		return
	}
	respondJSON(w, http.StatusOK, metrics)
}

// handleOrphanedBlobs reports bucket keys no ledger version references
func (s *Server) handleOrphanedBlobs(w http.ResponseWriter, r *http.Request) {
	keys, err := s.store.BucketKeys(r.Context())
	if err != nil {
		log.Printf("Error listing bucket keys: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to list bucket")
		return
	}

	orphans, err := s.store.FindOrphanedBlobs(r.Context(), keys)
	if err != nil {
		log.Printf("Error finding orphaned blobs: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to find orphans")
		return
	}
	if orphans == nil {
		orphans = []string{}
	}

	respondJSON(w, http.StatusOK, map[string]any{"orphans": orphans})
}
