package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/camden-git/catalogmirror/models"
	"github.com/camden-git/catalogmirror/repository"
	"github.com/camden-git/catalogmirror/workers"
)

type UserHandler struct {
	Users     repository.UserRepositoryInterface
	Activity  repository.ActivityRepositoryInterface
	Processor *workers.ExclusionProcessor
}

func userIDParam(w http.ResponseWriter, r *http.Request) (uint, bool) {
	raw := chi.URLParam(r, "user_id")
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_user_id", "user id must be numeric")
		return 0, false
	}
	return uint(id), true
}

// Create registers a local account.
func (uh *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
		IsAdmin  bool   `json:"is_admin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_body", "Invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		WriteAPIError(w, http.StatusBadRequest, "missing_fields", "username and password are required")
		return
	}

	user := models.User{Username: strings.TrimSpace(req.Username), IsAdmin: req.IsAdmin}
	if err := user.SetPassword(req.Password); err != nil {
		log.Printf("Error hashing password for user '%s': %v", req.Username, err)
		WriteAPIError(w, http.StatusInternalServerError, "create_failed", "failed to create user")
		return
	}
	if err := uh.Users.Create(&user); err != nil {
		log.Printf("Error creating user '%s': %v", req.Username, err)
		WriteAPIError(w, http.StatusInternalServerError, "create_failed", "failed to create user")
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// SetRestrictionRule replaces one user's visibility rule for a (target type,
// mode) pair and queues a recompute. Mode none clears the target type's rules.
func (uh *UserHandler) SetRestrictionRule(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}
	var req struct {
		TargetType    string             `json:"target_type"`
		Mode          string             `json:"mode"`
		EntityIDs     []models.EntityKey `json:"entity_ids"`
		RestrictEmpty bool               `json:"restrict_empty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_body", "Invalid request body: "+err.Error())
		return
	}
	if !models.IsRestrictableType(models.EntityType(req.TargetType)) {
		WriteAPIError(w, http.StatusBadRequest, "invalid_target_type", "entity type cannot carry restriction rules: "+req.TargetType)
		return
	}
	if !models.IsValidRestrictionMode(req.Mode) {
		WriteAPIError(w, http.StatusBadRequest, "invalid_mode", "mode must be none, exclude or include")
		return
	}

	rule := models.RestrictionRule{
		UserID:        userID,
		TargetType:    req.TargetType,
		Mode:          req.Mode,
		EntityIDs:     req.EntityIDs,
		RestrictEmpty: req.RestrictEmpty,
	}
	if err := uh.Users.SetRestrictionRule(&rule); err != nil {
		log.Printf("Error setting restriction rule for user %d: %v", userID, err)
		WriteAPIError(w, http.StatusInternalServerError, "rule_failed", "failed to set restriction rule")
		return
	}

	uh.Processor.QueueJob(workers.ExclusionJob{
		Scope: workers.ScopeOneUser, UserID: userID, Reason: "restriction rule changed",
	})
	writeJSON(w, http.StatusOK, rule)
}

// ListRestrictionRules returns one user's rules.
func (uh *UserHandler) ListRestrictionRules(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}
	rules, err := uh.Users.GetRestrictionRules(userID)
	if err != nil {
		log.Printf("Error listing restriction rules for user %d: %v", userID, err)
		WriteAPIError(w, http.StatusInternalServerError, "rules_failed", "failed to list restriction rules")
		return
	}
	if rules == nil {
		rules = []models.RestrictionRule{}
	}
	writeJSON(w, http.StatusOK, rules)
}

type entityRef struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	InstanceID string `json:"instance_id"`
}

func (ref entityRef) validate(w http.ResponseWriter) (models.EntityType, bool) {
	t := models.EntityType(ref.EntityType)
	if !models.IsValidEntityType(t) {
		WriteAPIError(w, http.StatusBadRequest, "invalid_entity_type", "unknown entity type: "+ref.EntityType)
		return "", false
	}
	if ref.EntityID == "" || ref.InstanceID == "" {
		WriteAPIError(w, http.StatusBadRequest, "missing_entity", "entity_id and instance_id are required")
		return "", false
	}
	return t, true
}

// HideEntity records an explicit per-user hide and queues a recompute of the
// affected type.
func (uh *UserHandler) HideEntity(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}
	var req entityRef
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_body", "Invalid request body: "+err.Error())
		return
	}
	t, ok := req.validate(w)
	if !ok {
		return
	}

	h := models.HiddenEntity{
		UserID:     userID,
		EntityType: string(t),
		EntityID:   req.EntityID,
		InstanceID: req.InstanceID,
		CreatedAt:  time.Now().Unix(),
	}
	if err := uh.Users.HideEntity(&h); err != nil {
		log.Printf("Error hiding %s %s/%s for user %d: %v", t, req.InstanceID, req.EntityID, userID, err)
		WriteAPIError(w, http.StatusInternalServerError, "hide_failed", "failed to hide entity")
		return
	}

	uh.Processor.QueueJob(workers.ExclusionJob{
		Scope: workers.ScopeOneUser, UserID: userID, EntityType: t, Reason: "entity hidden",
	})
	writeJSON(w, http.StatusCreated, h)
}

// Rate sets one user's rating of one entity.
func (uh *UserHandler) Rate(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}
	var req struct {
		entityRef
		Rating int `json:"rating"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_body", "Invalid request body: "+err.Error())
		return
	}
	t, ok := req.validate(w)
	if !ok {
		return
	}
	if req.Rating < 0 || req.Rating > 100 {
		WriteAPIError(w, http.StatusBadRequest, "invalid_rating", "rating must be between 0 and 100")
		return
	}

	rating := models.Rating{
		UserID:     userID,
		EntityType: string(t),
		EntityID:   req.EntityID,
		InstanceID: req.InstanceID,
		Rating:     req.Rating,
	}
	if err := uh.Activity.UpsertRating(&rating); err != nil {
		log.Printf("Error rating %s %s/%s for user %d: %v", t, req.InstanceID, req.EntityID, userID, err)
		WriteAPIError(w, http.StatusInternalServerError, "rating_failed", "failed to save rating")
		return
	}
	writeJSON(w, http.StatusOK, rating)
}

// AddWatch appends a playback event.
func (uh *UserHandler) AddWatch(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDParam(w, r)
	if !ok {
		return
	}
	var req struct {
		entityRef
		ResumePosition *int `json:"resume_position,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_body", "Invalid request body: "+err.Error())
		return
	}
	t, ok := req.validate(w)
	if !ok {
		return
	}

	entry := models.WatchHistory{
		UserID:         userID,
		EntityType:     string(t),
		EntityID:       req.EntityID,
		InstanceID:     req.InstanceID,
		WatchedAt:      time.Now().Unix(),
		ResumePosition: req.ResumePosition,
	}
	if err := uh.Activity.AddWatchHistory(&entry); err != nil {
		log.Printf("Error recording watch of %s %s/%s for user %d: %v", t, req.InstanceID, req.EntityID, userID, err)
		WriteAPIError(w, http.StatusInternalServerError, "watch_failed", "failed to record watch history")
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}
