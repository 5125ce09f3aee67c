package handlers

import (
	"log"
	"net/http"

	sq "github.com/Masterminds/squirrel"
	"gorm.io/gorm"

	"github.com/camden-git/catalogmirror/models"
	"github.com/camden-git/catalogmirror/repository"
)

// sortColumns whitelists the scene sort keys exposed to clients.
var sortColumns = map[string]string{
	"title":      "s.title",
	"date":       "s.date",
	"updated_at": "s.updated_at",
	"created_at": "s.created_at",
}

type BrowseHandler struct {
	DB         *gorm.DB
	Exclusions repository.ExclusionRepositoryInterface
}

type sceneListItem struct {
	ExternalID       string  `json:"external_id"`
	SourceInstanceID string  `json:"source_instance_id"`
	Title            string  `json:"title"`
	Date             *string `json:"date,omitempty"`
	Duration         *int    `json:"duration,omitempty"`
	StudioID         *string `json:"studio_id,omitempty"`
	UpdatedAt        int64   `json:"updated_at"`
}

type sceneListResponse struct {
	Scenes  []sceneListItem `json:"scenes"`
	Total   int64           `json:"total"`
	Page    int             `json:"page"`
	PerPage int             `json:"per_page"`
}

// ListScenes is the read path that the exclusion table exists for: active
// scenes, minus the requesting user's excluded set, applied as one indexed
// anti-join instead of a per-request graph walk.
func (bh *BrowseHandler) ListScenes(w http.ResponseWriter, r *http.Request) {
	page := intQuery(r, "page", 1)
	if page < 1 {
		page = 1
	}
	perPage := intQuery(r, "per_page", 50)
	if perPage < 1 || perPage > 250 {
		perPage = 50
	}
	userID := uint(intQuery(r, "user_id", 0))
	tag := r.URL.Query().Get("tag")
	studio := r.URL.Query().Get("studio")

	orderCol, ok := sortColumns[r.URL.Query().Get("sort")]
	if !ok {
		orderCol = "s.title"
	}

	q := sq.Select(
		"s.external_id", "s.source_instance_id", "s.title",
		"s.date", "s.duration", "s.studio_id", "s.updated_at").
		From("scenes s").
		Where(sq.Eq{"s.state": models.StateActive})

	filtered := false
	if tag != "" {
		q = q.Join("scene_tags st ON st.scene_id = s.external_id AND st.scene_instance_id = s.source_instance_id").
			Where(sq.Eq{"st.tag_id": tag})
		filtered = true
	}
	if studio != "" {
		q = q.Where(sq.Eq{"s.studio_id": studio})
		filtered = true
	}
	if userID > 0 {
		q = q.LeftJoin(`user_exclusions ue ON ue.user_id = ?
			AND ue.entity_type = 'scene'
			AND ue.entity_id = s.external_id
			AND ue.instance_id = s.source_instance_id`, userID).
			Where("ue.entity_id IS NULL")
	}

	sqlStr, args, err := q.
		OrderBy(orderCol + " ASC").
		Limit(uint64(perPage)).
		Offset(uint64((page - 1) * perPage)).
		ToSql()
	if err != nil {
		log.Printf("Error building scene query: %v", err)
		WriteAPIError(w, http.StatusInternalServerError, "query_failed", "failed to build scene query")
		return
	}

	var scenes []sceneListItem
	if err := bh.DB.Raw(sqlStr, args...).Scan(&scenes).Error; err != nil {
		log.Printf("Error listing scenes: %v", err)
		WriteAPIError(w, http.StatusInternalServerError, "query_failed", "failed to list scenes")
		return
	}
	if scenes == nil {
		scenes = []sceneListItem{}
	}

	total, err := bh.countScenes(userID, filtered, tag, studio)
	if err != nil {
		log.Printf("Error counting scenes: %v", err)
		WriteAPIError(w, http.StatusInternalServerError, "query_failed", "failed to count scenes")
		return
	}

	writeJSON(w, http.StatusOK, sceneListResponse{
		Scenes:  scenes,
		Total:   total,
		Page:    page,
		PerPage: perPage,
	})
}

// countScenes serves unfiltered per-user totals from the visible-count cache
// and falls back to a count query when filters are in play.
func (bh *BrowseHandler) countScenes(userID uint, filtered bool, tag, studio string) (int64, error) {
	if userID > 0 && !filtered {
		cached, err := bh.Exclusions.VisibleCount(userID, models.EntityScene)
		if err != nil {
			return 0, err
		}
		// zero means no computed rows for this user yet; count directly
		if cached > 0 {
			return cached, nil
		}
	}

	q := sq.Select("COUNT(*)").
		From("scenes s").
		Where(sq.Eq{"s.state": models.StateActive})
	if tag != "" {
		q = q.Join("scene_tags st ON st.scene_id = s.external_id AND st.scene_instance_id = s.source_instance_id").
			Where(sq.Eq{"st.tag_id": tag})
	}
	if studio != "" {
		q = q.Where(sq.Eq{"s.studio_id": studio})
	}
	if userID > 0 {
		q = q.LeftJoin(`user_exclusions ue ON ue.user_id = ?
			AND ue.entity_type = 'scene'
			AND ue.entity_id = s.external_id
			AND ue.instance_id = s.source_instance_id`, userID).
			Where("ue.entity_id IS NULL")
	}

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return 0, err
	}
	var total int64
	if err := bh.DB.Raw(sqlStr, args...).Scan(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}
