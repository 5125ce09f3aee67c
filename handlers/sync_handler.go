package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/camden-git/catalogmirror/models"
	"github.com/camden-git/catalogmirror/repository"
	"github.com/camden-git/catalogmirror/sync"
)

type SyncHandler struct {
	Scheduler *sync.Scheduler
	Cursors   repository.CursorRepositoryInterface
}

// syncStatusResponse joins the scheduler snapshot with the per-type cursor
// table.
type syncStatusResponse struct {
	sync.Status
	Cursors []models.SyncCursor `json:"cursors"`
}

// TriggerFull starts a full sweep in the background.
func (sh *SyncHandler) TriggerFull(w http.ResponseWriter, r *http.Request) {
	sh.trigger(w, true)
}

// TriggerIncremental starts a delta pass in the background.
func (sh *SyncHandler) TriggerIncremental(w http.ResponseWriter, r *http.Request) {
	sh.trigger(w, false)
}

func (sh *SyncHandler) trigger(w http.ResponseWriter, full bool) {
	if err := sh.Scheduler.Trigger(full); err != nil {
		if errors.Is(err, sync.ErrSyncInProgress) {
			WriteAPIError(w, http.StatusConflict, "sync_in_progress", err.Error())
			return
		}
		log.Printf("Error triggering sync: %v", err)
		WriteAPIError(w, http.StatusInternalServerError, "sync_trigger_failed", "failed to trigger sync")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"started": true, "full": full})
}

// Abort requests a cooperative stop of the running pass.
func (sh *SyncHandler) Abort(w http.ResponseWriter, r *http.Request) {
	if err := sh.Scheduler.Abort(); err != nil {
		if errors.Is(err, sync.ErrNotRunning) {
			WriteAPIError(w, http.StatusConflict, "not_running", err.Error())
			return
		}
		log.Printf("Error aborting sync: %v", err)
		WriteAPIError(w, http.StatusInternalServerError, "sync_abort_failed", "failed to abort sync")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"aborting": true})
}

// Status reports the scheduler state, the last run summary and every entity
// type's cursor row.
func (sh *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	cursors, err := sh.Cursors.ListAll()
	if err != nil {
		log.Printf("Error listing sync cursors: %v", err)
		WriteAPIError(w, http.StatusInternalServerError, "status_failed", "failed to load sync cursors")
		return
	}
	if cursors == nil {
		cursors = []models.SyncCursor{}
	}
	writeJSON(w, http.StatusOK, syncStatusResponse{Status: sh.Scheduler.Status(), Cursors: cursors})
}

// UpdateSettings patches the runtime sync settings: the periodic interval
// within the allowed bounds, the webhook gate, and the periodic-sync toggle.
// Omitted fields are left unchanged.
func (sh *SyncHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IntervalMinutes *int  `json:"interval_minutes"`
		WebhookEnabled  *bool `json:"webhook_enabled"`
		PeriodicEnabled *bool `json:"periodic_enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_body", "Invalid request body: "+err.Error())
		return
	}
	patch := sync.SettingsPatch{
		IntervalMinutes: req.IntervalMinutes,
		WebhookEnabled:  req.WebhookEnabled,
		PeriodicEnabled: req.PeriodicEnabled,
	}
	if err := sh.Scheduler.UpdateSettings(patch); err != nil {
		WriteAPIError(w, http.StatusBadRequest, "invalid_settings", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sh.Scheduler.Status())
}
