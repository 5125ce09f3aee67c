package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"github.com/camden-git/catalogmirror/models"
	"github.com/camden-git/catalogmirror/reconcile"
	"github.com/camden-git/catalogmirror/repository"
)

type ReconcileHandler struct {
	Service *reconcile.Service
	Merges  repository.MergeRepositoryInterface
}

// ListOrphans returns tombstoned rows that still carry user activity,
// optionally filtered to one entity type via ?type=.
func (rh *ReconcileHandler) ListOrphans(w http.ResponseWriter, r *http.Request) {
	types := models.AllEntityTypes
	if raw := r.URL.Query().Get("type"); raw != "" {
		t := models.EntityType(raw)
		if !models.IsValidEntityType(t) {
			WriteAPIError(w, http.StatusBadRequest, "invalid_entity_type", "unknown entity type: "+raw)
			return
		}
		types = []models.EntityType{t}
	}

	orphans := []reconcile.Orphan{}
	for _, t := range types {
		found, err := rh.Service.FindOrphanedEntitiesWithActivity(t)
		if err != nil {
			log.Printf("Error listing %s orphans: %v", t, err)
			WriteAPIError(w, http.StatusInternalServerError, "orphan_lookup_failed", "failed to list orphans")
			return
		}
		orphans = append(orphans, found...)
	}
	writeJSON(w, http.StatusOK, orphans)
}

// ListMatches scores surviving candidates for one orphan.
func (rh *ReconcileHandler) ListMatches(w http.ResponseWriter, r *http.Request) {
	t, ok := entityTypeParam(w, r)
	if !ok {
		return
	}
	key := models.EntityKey{
		ExternalID:       chi.URLParam(r, "external_id"),
		SourceInstanceID: chi.URLParam(r, "instance_id"),
	}
	matches, err := rh.Service.FindMatches(t, key)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			WriteAPIError(w, http.StatusNotFound, "entity_not_found", "no such entity")
			return
		}
		log.Printf("Error matching %s %s/%s: %v", t, key.SourceInstanceID, key.ExternalID, err)
		WriteAPIError(w, http.StatusInternalServerError, "match_failed", "failed to compute matches")
		return
	}
	if matches == nil {
		matches = []reconcile.Match{}
	}
	writeJSON(w, http.StatusOK, matches)
}

type mergeRequest struct {
	EntityType       string `json:"entity_type"`
	SourceEntityID   string `json:"source_entity_id"`
	SourceInstanceID string `json:"source_instance_id"`
	TargetEntityID   string `json:"target_entity_id"`
	TargetInstanceID string `json:"target_instance_id"`
	ActorID          uint   `json:"actor_id"`
}

// Merge transfers an orphan's activity onto a surviving row.
func (rh *ReconcileHandler) Merge(w http.ResponseWriter, r *http.Request) {
	var req mergeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_body", "Invalid request body: "+err.Error())
		return
	}
	t := models.EntityType(req.EntityType)
	if !models.IsValidEntityType(t) {
		WriteAPIError(w, http.StatusBadRequest, "invalid_entity_type", "unknown entity type: "+req.EntityType)
		return
	}
	source := models.EntityKey{ExternalID: req.SourceEntityID, SourceInstanceID: req.SourceInstanceID}
	target := models.EntityKey{ExternalID: req.TargetEntityID, SourceInstanceID: req.TargetInstanceID}
	if source.ExternalID == "" || target.ExternalID == "" {
		WriteAPIError(w, http.StatusBadRequest, "missing_entity", "source and target entity ids are required")
		return
	}

	if err := rh.Service.Reconcile(t, source, target, req.ActorID); err != nil {
		log.Printf("Error merging %s %s/%s: %v", t, source.SourceInstanceID, source.ExternalID, err)
		WriteAPIError(w, http.StatusConflict, "merge_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "merged"})
}

type discardRequest struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	InstanceID string `json:"instance_id"`
}

// Discard drops an orphan together with all of its activity.
func (rh *ReconcileHandler) Discard(w http.ResponseWriter, r *http.Request) {
	var req discardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_body", "Invalid request body: "+err.Error())
		return
	}
	t := models.EntityType(req.EntityType)
	if !models.IsValidEntityType(t) {
		WriteAPIError(w, http.StatusBadRequest, "invalid_entity_type", "unknown entity type: "+req.EntityType)
		return
	}
	if req.EntityID == "" {
		WriteAPIError(w, http.StatusBadRequest, "missing_entity", "entity_id is required")
		return
	}

	key := models.EntityKey{ExternalID: req.EntityID, SourceInstanceID: req.InstanceID}
	if err := rh.Service.Discard(t, key); err != nil {
		log.Printf("Error discarding %s %s/%s: %v", t, key.SourceInstanceID, key.ExternalID, err)
		WriteAPIError(w, http.StatusInternalServerError, "discard_failed", "failed to discard orphan")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "discarded"})
}

// Auto runs the automatic exact-match batch, optionally for one type.
func (rh *ReconcileHandler) Auto(w http.ResponseWriter, r *http.Request) {
	types := models.AllEntityTypes
	if raw := r.URL.Query().Get("type"); raw != "" {
		t := models.EntityType(raw)
		if !models.IsValidEntityType(t) {
			WriteAPIError(w, http.StatusBadRequest, "invalid_entity_type", "unknown entity type: "+raw)
			return
		}
		types = []models.EntityType{t}
	}

	total := reconcile.ReconcileAllResult{}
	for _, t := range types {
		result, err := rh.Service.ReconcileAll(t)
		if err != nil {
			log.Printf("Error running automatic reconcile for %s: %v", t, err)
			WriteAPIError(w, http.StatusInternalServerError, "auto_reconcile_failed", "automatic reconcile failed")
			return
		}
		total.Merged += result.Merged
		total.Skipped += result.Skipped
	}
	writeJSON(w, http.StatusOK, total)
}

// History lists recent merge records, newest first.
func (rh *ReconcileHandler) History(w http.ResponseWriter, r *http.Request) {
	limit := intQuery(r, "limit", 100)
	records, err := rh.Merges.ListRecent(limit)
	if err != nil {
		log.Printf("Error listing merge records: %v", err)
		WriteAPIError(w, http.StatusInternalServerError, "history_failed", "failed to list merge records")
		return
	}
	if records == nil {
		records = []models.MergeRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}
