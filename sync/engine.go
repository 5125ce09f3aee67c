package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/camden-git/catalogmirror/models"
	"github.com/camden-git/catalogmirror/repository"
	"github.com/camden-git/catalogmirror/upstream"
	"github.com/camden-git/catalogmirror/utils"
)

// ErrAborted is returned when a pass stops early because an abort was
// requested. Work already committed stays committed; the cursor for the
// affected type is not advanced.
var ErrAborted = errors.New("sync pass aborted")

// PassStats summarizes one pass of one entity type against one source
// instance.
type PassStats struct {
	Upserted     int64
	Tombstoned   int64
	MaxUpdatedAt int64 // source clock, 0 if no records were seen
}

// Engine fetches pages from an upstream source and applies them to the local
// mirror. It is stateless between calls; the scheduler owns cursors and
// single-flight coordination.
type Engine struct {
	entities  repository.EntityRepositoryInterface
	pageSize  int
	batchSize int
	now       func() int64
}

func NewEngine(entities repository.EntityRepositoryInterface, pageSize, batchSize int) *Engine {
	return &Engine{
		entities:  entities,
		pageSize:  pageSize,
		batchSize: batchSize,
		now:       func() int64 { return time.Now().UTC().Unix() },
	}
}

// FullSyncType runs a full sweep of one entity type against one source
// instance: every page is fetched and upserted, then active rows the sweep
// never saw are tombstoned. abort is checked between pages so a requested
// stop lands on a transaction boundary.
func (e *Engine) FullSyncType(ctx context.Context, client upstream.Client, instanceID string, t models.EntityType, abort func() bool) (*PassStats, error) {
	decode, ok := decoders[t]
	if !ok {
		return nil, fmt.Errorf("no decoder for entity type %s", t)
	}

	stats := &PassStats{}
	seen := make(map[string]struct{})
	page := 1
	for {
		if abort() {
			return stats, ErrAborted
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		res, err := client.Find(ctx, string(t), upstream.FindFilter{Page: page, PerPage: e.pageSize})
		if err != nil {
			return stats, fmt.Errorf("failed to fetch %s page %d from %s: %w", t, page, instanceID, err)
		}
		if len(res.Records) == 0 {
			break
		}

		decoded, err := decode(res.Records, instanceID, e.now())
		if err != nil {
			return stats, err
		}
		decoded.batch.BatchSize = e.batchSize
		if err := e.entities.ApplyBatch(decoded.batch); err != nil {
			return stats, err
		}
		for _, id := range decoded.ids {
			seen[id] = struct{}{}
		}
		stats.Upserted += int64(decoded.batch.RowCount)
		if decoded.maxUpdated > stats.MaxUpdatedAt {
			stats.MaxUpdatedAt = decoded.maxUpdated
		}

		if page*e.pageSize >= res.Total {
			break
		}
		page++
	}

	if abort() {
		return stats, ErrAborted
	}

	tombstoned, err := e.sweepAbsent(t, instanceID, seen)
	if err != nil {
		return stats, err
	}
	stats.Tombstoned = tombstoned
	return stats, nil
}

// sweepAbsent tombstones active rows of one instance that the completed
// sweep never returned. Rows from other source instances are untouched.
func (e *Engine) sweepAbsent(t models.EntityType, instanceID string, seen map[string]struct{}) (int64, error) {
	active, err := e.entities.ListActiveIDs(t, instanceID)
	if err != nil {
		return 0, err
	}
	var absent []string
	for _, id := range active {
		if _, ok := seen[id]; !ok {
			absent = append(absent, id)
		}
	}
	if len(absent) == 0 {
		return 0, nil
	}
	if err := e.entities.SoftDeleteByIDs(t, instanceID, absent, e.now()); err != nil {
		return 0, err
	}
	log.Printf("Sync: tombstoned %d absent %s rows for instance %s", len(absent), t, instanceID)
	return int64(len(absent)), nil
}

// IncrementalSyncType fetches only records changed after the given source
// cursor and applies them. Records flagged deleted upstream are tombstoned
// individually; no sweep runs.
func (e *Engine) IncrementalSyncType(ctx context.Context, client upstream.Client, instanceID string, t models.EntityType, since int64, abort func() bool) (*PassStats, error) {
	decode, ok := decoders[t]
	if !ok {
		return nil, fmt.Errorf("no decoder for entity type %s", t)
	}

	stats := &PassStats{}
	// the upstream filter is strictly after its argument, while the cursor
	// holds the max updated_at already observed. Querying from one second
	// behind keeps a record stamped exactly at the cursor inside the window;
	// upserts are idempotent so the overlap re-applies cleanly.
	if since > 0 {
		since--
	}
	updatedAfter := utils.FormatCursorTimestamp(since)
	page := 1
	for {
		if abort() {
			return stats, ErrAborted
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		res, err := client.Find(ctx, string(t), upstream.FindFilter{
			Page:         page,
			PerPage:      e.pageSize,
			UpdatedAfter: updatedAfter,
		})
		if err != nil {
			return stats, fmt.Errorf("failed to fetch %s delta page %d from %s: %w", t, page, instanceID, err)
		}
		if len(res.Records) == 0 {
			break
		}

		decoded, err := decode(res.Records, instanceID, e.now())
		if err != nil {
			return stats, err
		}
		decoded.batch.BatchSize = e.batchSize
		if err := e.entities.ApplyBatch(decoded.batch); err != nil {
			return stats, err
		}
		for _, key := range decoded.deletes {
			if err := e.entities.SoftDeleteOne(t, key, e.now()); err != nil {
				return stats, err
			}
		}
		stats.Upserted += int64(decoded.batch.RowCount)
		stats.Tombstoned += int64(len(decoded.deletes))
		if decoded.maxUpdated > stats.MaxUpdatedAt {
			stats.MaxUpdatedAt = decoded.maxUpdated
		}

		if page*e.pageSize >= res.Total {
			break
		}
		page++
	}
	return stats, nil
}

// PurgeDanglingJunctions sweeps out junction rows whose entity side is gone
// or tombstoned. The scheduler runs it after any pass that tombstoned rows;
// single-row tombstones purge their own junctions inline.
func (e *Engine) PurgeDanglingJunctions() (int64, error) {
	return e.entities.PurgeDanglingJunctions()
}

// SyncSingle refreshes one record by id, tombstoning it when the upstream no
// longer has it. Used by the webhook path.
func (e *Engine) SyncSingle(ctx context.Context, client upstream.Client, instanceID string, t models.EntityType, externalID string) error {
	decode, ok := decoders[t]
	if !ok {
		return fmt.Errorf("no decoder for entity type %s", t)
	}
	key := models.EntityKey{ExternalID: externalID, SourceInstanceID: instanceID}

	raw, err := client.FindByID(ctx, string(t), externalID)
	if errors.Is(err, upstream.ErrNotFound) {
		return e.entities.SoftDeleteOne(t, key, e.now())
	}
	if err != nil {
		return fmt.Errorf("failed to fetch %s %s from %s: %w", t, externalID, instanceID, err)
	}

	decoded, err := decode([]json.RawMessage{raw}, instanceID, e.now())
	if err != nil {
		return err
	}
	if len(decoded.deletes) > 0 {
		return e.entities.SoftDeleteOne(t, key, e.now())
	}
	decoded.batch.BatchSize = e.batchSize
	return e.entities.ApplyBatch(decoded.batch)
}
