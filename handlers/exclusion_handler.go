package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/camden-git/catalogmirror/models"
	"github.com/camden-git/catalogmirror/repository"
	"github.com/camden-git/catalogmirror/workers"
)

type ExclusionHandler struct {
	Processor  *workers.ExclusionProcessor
	Exclusions repository.ExclusionRepositoryInterface
	Users      repository.UserRepositoryInterface
}

type recomputeRequest struct {
	UserID     *uint  `json:"user_id,omitempty"`
	EntityType string `json:"entity_type,omitempty"`
}

// Recompute queues an exclusion rebuild for one user or for everyone with a
// visibility policy.
func (eh *ExclusionHandler) Recompute(w http.ResponseWriter, r *http.Request) {
	var req recomputeRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteAPIError(w, http.StatusBadRequest, "invalid_body", "Invalid request body: "+err.Error())
			return
		}
	}

	job := workers.ExclusionJob{Scope: workers.ScopeAllUsers, Reason: "admin request"}
	if req.UserID != nil {
		if _, err := eh.Users.GetByID(*req.UserID); err != nil {
			WriteAPIError(w, http.StatusNotFound, "user_not_found", "no such user")
			return
		}
		job.Scope = workers.ScopeOneUser
		job.UserID = *req.UserID
		if req.EntityType != "" {
			t := models.EntityType(req.EntityType)
			if !models.IsValidEntityType(t) {
				WriteAPIError(w, http.StatusBadRequest, "invalid_entity_type", "unknown entity type: "+req.EntityType)
				return
			}
			job.EntityType = t
		}
	}

	if !eh.Processor.QueueJob(job) {
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "already_pending"})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

// Stats aggregates exclusion rows by user, type and reason.
func (eh *ExclusionHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := eh.Exclusions.Stats()
	if err != nil {
		log.Printf("Error aggregating exclusion stats: %v", err)
		WriteAPIError(w, http.StatusInternalServerError, "stats_failed", "failed to aggregate exclusion stats")
		return
	}
	if stats == nil {
		stats = []models.ExclusionStat{}
	}
	writeJSON(w, http.StatusOK, stats)
}
