package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/camden-git/catalogmirror/config"
	"github.com/camden-git/catalogmirror/database"
	"github.com/camden-git/catalogmirror/models"
	"github.com/camden-git/catalogmirror/repository"
	"github.com/camden-git/catalogmirror/upstream"
)

// Scheduler states. Transitions are idle -> running -> idle and
// running -> aborting -> idle; nothing else.
const (
	StateIdle     = "idle"
	StateRunning  = "running"
	StateAborting = "aborting"
)

// ErrSyncInProgress is returned when a trigger arrives while a run is
// already underway.
var ErrSyncInProgress = errors.New("a sync is already in progress")

// ErrNotRunning is returned when an abort is requested with no run underway.
var ErrNotRunning = errors.New("no sync is in progress")

// ClientFactory builds an upstream client for a source instance. Tests swap
// this for a fake.
type ClientFactory func(src models.SourceInstance) upstream.Client

// EventSink receives lifecycle events for fan-out to connected clients.
type EventSink interface {
	Publish(event string, payload interface{})
}

// Recomputer is the hook into the exclusion worker pool; a completed run
// that changed anything queues a recompute of every user's exclusion set.
type Recomputer interface {
	EnqueueAll(reason string)
}

// TypeOutcome is the per-entity-type slice of a run summary.
type TypeOutcome struct {
	EntityType string `json:"entity_type"`
	Upserted   int64  `json:"upserted"`
	Tombstoned int64  `json:"tombstoned"`
	Error      string `json:"error,omitempty"`
}

// RunSummary describes the most recently finished run.
type RunSummary struct {
	Full       bool          `json:"full"`
	StartedAt  int64         `json:"started_at"`
	FinishedAt int64         `json:"finished_at"`
	Aborted    bool          `json:"aborted"`
	Outcomes   []TypeOutcome `json:"outcomes"`
}

// Status is the scheduler's externally visible state. Kind names the mode of
// the in-flight run and is empty while idle.
type Status struct {
	State           string      `json:"state"`
	Kind            string      `json:"kind,omitempty"`
	CurrentType     string      `json:"current_type,omitempty"`
	CurrentInstance string      `json:"current_instance,omitempty"`
	StartedAt       *int64      `json:"started_at,omitempty"`
	IntervalMinutes int         `json:"interval_minutes"`
	WebhookEnabled  bool        `json:"webhook_enabled"`
	PeriodicEnabled bool        `json:"periodic_enabled"`
	LastRun         *RunSummary `json:"last_run,omitempty"`
}

// Scheduler owns sync coordination: the single-flight state machine, the
// periodic ticker, the startup policy, and cursor advancement. All mirror
// writes go through the Engine it wraps.
type Scheduler struct {
	engine   *Engine
	cursors  repository.CursorRepositoryInterface
	sources  repository.SourceRepositoryInterface
	appState *repository.AppStateRepository
	clients  ClientFactory
	events   EventSink
	recomp   Recomputer

	mu              sync.Mutex
	state           string
	abortRequested  bool
	currentFull     bool
	currentType     string
	currentInstance string
	startedAt       int64
	lastRun         *RunSummary
	intervalMinutes int
	webhookEnabled  bool
	periodicEnabled bool

	tickerReset chan int
	stopChan    chan struct{}
	wg          sync.WaitGroup
}

func NewScheduler(engine *Engine, cursors repository.CursorRepositoryInterface,
	sources repository.SourceRepositoryInterface, appState *repository.AppStateRepository,
	clients ClientFactory, events EventSink, recomp Recomputer, cfg *config.Config) *Scheduler {
	return &Scheduler{
		engine:          engine,
		cursors:         cursors,
		sources:         sources,
		appState:        appState,
		clients:         clients,
		events:          events,
		recomp:          recomp,
		state:           StateIdle,
		intervalMinutes: cfg.SyncIntervalMinutes,
		webhookEnabled:  cfg.WebhookEnabled,
		periodicEnabled: cfg.PeriodicSyncEnabled,
		tickerReset:     make(chan int, 1),
		stopChan:        make(chan struct{}),
	}
}

// Start applies the startup policy and launches the periodic ticker. The
// startup sync runs in the background; Start returns immediately.
func (s *Scheduler) Start() {
	full, reason, err := s.startupMode()
	if err != nil {
		log.Printf("Sync: failed to determine startup mode, defaulting to full: %v", err)
		full, reason = true, "startup check failed"
	}
	log.Printf("Sync: startup sync mode=%s (%s)", modeName(full), reason)
	if err := s.Trigger(full); err != nil {
		log.Printf("Sync: startup trigger failed: %v", err)
	}

	s.wg.Add(1)
	go s.tickerLoop()
}

// Stop aborts any in-flight run and shuts the ticker down. It blocks until
// the run has reached a transaction boundary and exited.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.state == StateRunning {
		s.state = StateAborting
		s.abortRequested = true
	}
	s.mu.Unlock()

	close(s.stopChan)
	s.wg.Wait()
}

// startupMode decides whether the first run after boot must be a full sweep:
// yes when no full sync has ever completed, when the previous run was
// aborted, or when the schema version changed since the last run.
func (s *Scheduler) startupMode() (full bool, reason string, err error) {
	hasFull, err := s.cursors.HasAnyFullSync()
	if err != nil {
		return false, "", err
	}
	if !hasFull {
		return true, "no full sync on record", nil
	}
	aborted, err := s.cursors.AnyAborted()
	if err != nil {
		return false, "", err
	}
	if aborted {
		return true, "previous sync was aborted", nil
	}
	state, err := s.appState.Get()
	if err != nil {
		return false, "", err
	}
	if state.SchemaVersion != database.SchemaVersion {
		return true, fmt.Sprintf("schema version changed (%d -> %d)", state.SchemaVersion, database.SchemaVersion), nil
	}
	return false, "cursors clean", nil
}

func modeName(full bool) string {
	if full {
		return "full"
	}
	return "incremental"
}

// Trigger starts a run in the background. It returns ErrSyncInProgress when
// a run is already underway; the caller does not wait for completion.
func (s *Scheduler) Trigger(full bool) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrSyncInProgress
	}
	s.state = StateRunning
	s.abortRequested = false
	s.currentFull = full
	s.startedAt = time.Now().Unix()
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(full)
	}()
	return nil
}

// Abort requests a cooperative stop of the in-flight run. The run exits at
// the next page boundary; committed work stays committed.
func (s *Scheduler) Abort() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRunning {
		return ErrNotRunning
	}
	s.state = StateAborting
	s.abortRequested = true
	return nil
}

func (s *Scheduler) abortRequestedNow() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.abortRequested
}

// Status returns a snapshot of the scheduler state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		State:           s.state,
		IntervalMinutes: s.intervalMinutes,
		WebhookEnabled:  s.webhookEnabled,
		PeriodicEnabled: s.periodicEnabled,
		LastRun:         s.lastRun,
	}
	if s.state != StateIdle {
		st.Kind = modeName(s.currentFull)
		st.CurrentType = s.currentType
		st.CurrentInstance = s.currentInstance
		started := s.startedAt
		st.StartedAt = &started
	}
	return st
}

// SettingsPatch is a partial update of the runtime sync settings. Nil fields
// are left unchanged.
type SettingsPatch struct {
	IntervalMinutes *int
	WebhookEnabled  *bool
	PeriodicEnabled *bool
}

// UpdateSettings applies a settings patch. The interval is bounds-checked and
// the ticker reset so a new interval takes effect immediately.
func (s *Scheduler) UpdateSettings(p SettingsPatch) error {
	if p.IntervalMinutes != nil {
		if err := config.ValidateSyncInterval(*p.IntervalMinutes); err != nil {
			return err
		}
	}
	s.mu.Lock()
	if p.IntervalMinutes != nil {
		s.intervalMinutes = *p.IntervalMinutes
	}
	if p.WebhookEnabled != nil {
		s.webhookEnabled = *p.WebhookEnabled
	}
	if p.PeriodicEnabled != nil {
		s.periodicEnabled = *p.PeriodicEnabled
	}
	s.mu.Unlock()
	if p.IntervalMinutes != nil {
		select {
		case s.tickerReset <- *p.IntervalMinutes:
		default:
		}
	}
	return nil
}

// WebhookEnabled reports whether webhook-driven syncs are currently accepted.
func (s *Scheduler) WebhookEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.webhookEnabled
}

func (s *Scheduler) tickerLoop() {
	defer s.wg.Done()

	s.mu.Lock()
	interval := s.intervalMinutes
	s.mu.Unlock()

	ticker := time.NewTicker(time.Duration(interval) * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopChan:
			return
		case minutes := <-s.tickerReset:
			ticker.Reset(time.Duration(minutes) * time.Minute)
		case <-ticker.C:
			s.mu.Lock()
			enabled := s.periodicEnabled
			s.mu.Unlock()
			if !enabled {
				continue
			}
			if err := s.Trigger(false); err != nil {
				// an operator-triggered run is already going; skip this tick
				log.Printf("Sync: skipping scheduled run: %v", err)
			}
		}
	}
}

// run executes one pass over every entity type in dependency order, against
// every enabled source instance. A failure in one type's pass is logged and
// the run moves on to the next type; an abort stops the whole run.
func (s *Scheduler) run(full bool) {
	summary := &RunSummary{Full: full, StartedAt: time.Now().Unix()}
	s.publish("sync_started", map[string]interface{}{"full": full})

	srcs, err := s.sources.ListEnabled()
	if err != nil {
		log.Printf("Sync: failed to list enabled sources: %v", err)
		s.finish(summary)
		return
	}
	if len(srcs) == 0 {
		log.Println("Sync: no enabled source instances, nothing to do")
		s.finish(summary)
		return
	}

	ctx := context.Background()
	var changed, tombstoned int64
	for _, t := range models.AllEntityTypes {
		outcome, aborted := s.runType(ctx, full, t, srcs)
		summary.Outcomes = append(summary.Outcomes, outcome)
		changed += outcome.Upserted + outcome.Tombstoned
		tombstoned += outcome.Tombstoned
		if aborted {
			summary.Aborted = true
			break
		}
	}

	// tombstoned rows leave junction rows behind; sweep those out before
	// anything reads the relation graph
	if tombstoned > 0 {
		if purged, err := s.engine.PurgeDanglingJunctions(); err != nil {
			log.Printf("Sync: failed to purge dangling junction rows: %v", err)
		} else if purged > 0 {
			log.Printf("Sync: purged %d dangling junction rows", purged)
		}
	}

	if full && !summary.Aborted && allSucceeded(summary.Outcomes) {
		if err := s.appState.SetSchemaVersion(database.SchemaVersion); err != nil {
			log.Printf("Sync: failed to record schema version: %v", err)
		}
		if err := s.appState.MarkFirstRunDone(); err != nil {
			log.Printf("Sync: failed to mark first run done: %v", err)
		}
	}

	if changed > 0 && s.recomp != nil {
		s.recomp.EnqueueAll("sync completed with changes")
	}
	s.finish(summary)
}

// runType runs one entity type against every source, then advances the
// cursor only when every source committed cleanly.
func (s *Scheduler) runType(ctx context.Context, full bool, t models.EntityType, srcs []models.SourceInstance) (TypeOutcome, bool) {
	outcome := TypeOutcome{EntityType: string(t)}

	cursor, err := s.cursors.GetOrInit(t)
	if err != nil {
		outcome.Error = err.Error()
		log.Printf("Sync: failed to load %s cursor: %v", t, err)
		return outcome, false
	}

	// a type that has never completed a full sweep cannot sync
	// incrementally; promote it
	typeFull := full || cursor.LastFullSync == nil
	var since int64
	if !typeFull {
		since = *cursor.LastFullSync
		if cursor.LastIncrementalSync != nil && *cursor.LastIncrementalSync > since {
			since = *cursor.LastIncrementalSync
		}
	}

	var maxUpdated int64
	for _, src := range srcs {
		s.setCurrent(string(t), src.ID)
		client := s.clients(src)

		var stats *PassStats
		var passErr error
		if typeFull {
			stats, passErr = s.engine.FullSyncType(ctx, client, src.ID, t, s.abortRequestedNow)
		} else {
			stats, passErr = s.engine.IncrementalSyncType(ctx, client, src.ID, t, since, s.abortRequestedNow)
		}
		if stats != nil {
			outcome.Upserted += stats.Upserted
			outcome.Tombstoned += stats.Tombstoned
			if stats.MaxUpdatedAt > maxUpdated {
				maxUpdated = stats.MaxUpdatedAt
			}
		}
		if errors.Is(passErr, ErrAborted) {
			if err := s.cursors.MarkAborted(t); err != nil {
				log.Printf("Sync: failed to mark %s cursor aborted: %v", t, err)
			}
			outcome.Error = ErrAborted.Error()
			log.Printf("Sync: %s pass aborted during instance %s", t, src.ID)
			return outcome, true
		}
		if passErr != nil {
			outcome.Error = passErr.Error()
			log.Printf("Sync: %s pass failed for instance %s: %v", t, src.ID, passErr)
			return outcome, false
		}
	}

	// the cursor moves to the max updated_at actually observed, never to
	// local now, so records landing between pages are re-covered next run
	if maxUpdated == 0 {
		if typeFull && cursor.LastFullSync != nil {
			maxUpdated = *cursor.LastFullSync
		} else if !typeFull {
			maxUpdated = since
		}
	}
	var advErr error
	if typeFull {
		advErr = s.cursors.AdvanceFull(t, maxUpdated, outcome.Upserted)
	} else {
		advErr = s.cursors.AdvanceIncremental(t, maxUpdated, outcome.Upserted)
	}
	if advErr != nil {
		outcome.Error = advErr.Error()
		log.Printf("Sync: failed to advance %s cursor: %v", t, advErr)
	}
	return outcome, false
}

// SyncEntity refreshes a single record, used by the webhook path. It does
// not take the single-flight slot; single-record writes are one transaction
// and safe to interleave with a running sweep.
func (s *Scheduler) SyncEntity(ctx context.Context, src models.SourceInstance, t models.EntityType, externalID string) error {
	client := s.clients(src)
	if err := s.engine.SyncSingle(ctx, client, src.ID, t, externalID); err != nil {
		return err
	}
	if s.recomp != nil {
		s.recomp.EnqueueAll("webhook entity change")
	}
	s.publish("entity_synced", map[string]interface{}{
		"entity_type":        string(t),
		"external_id":        externalID,
		"source_instance_id": src.ID,
	})
	return nil
}

func (s *Scheduler) setCurrent(entityType, instanceID string) {
	s.mu.Lock()
	s.currentType = entityType
	s.currentInstance = instanceID
	s.mu.Unlock()
}

func (s *Scheduler) finish(summary *RunSummary) {
	summary.FinishedAt = time.Now().Unix()

	s.mu.Lock()
	s.state = StateIdle
	s.abortRequested = false
	s.currentType = ""
	s.currentInstance = ""
	s.lastRun = summary
	s.mu.Unlock()

	var upserted, tombstoned int64
	for _, o := range summary.Outcomes {
		upserted += o.Upserted
		tombstoned += o.Tombstoned
	}
	log.Printf("Sync: run finished mode=%s upserted=%d tombstoned=%d aborted=%v in %ds",
		modeName(summary.Full), upserted, tombstoned, summary.Aborted,
		summary.FinishedAt-summary.StartedAt)
	s.publish("sync_finished", summary)
}

func (s *Scheduler) publish(event string, payload interface{}) {
	if s.events != nil {
		s.events.Publish(event, payload)
	}
}

func allSucceeded(outcomes []TypeOutcome) bool {
	for _, o := range outcomes {
		if o.Error != "" {
			return false
		}
	}
	return true
}
