package reconcile

import (
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/facette/natsort"
	"gorm.io/gorm"

	"github.com/camden-git/catalogmirror/models"
	"github.com/camden-git/catalogmirror/repository"
)

// Match classification by fingerprint distance.
const (
	MatchExact = "exact"
	MatchNear  = "near"
	MatchNone  = "none"
)

// Orphan is a tombstoned row that still carries user activity and therefore
// needs an operator (or the automatic batch) to decide its fate.
type Orphan struct {
	EntityType string                     `json:"entity_type"`
	Entity     repository.EntityInfo      `json:"entity"`
	Activity   repository.ActivitySummary `json:"activity"`
}

// Match is one surviving candidate for an orphan's activity.
type Match struct {
	Candidate repository.EntityInfo `json:"candidate"`
	Distance  int                   `json:"distance"`
	Kind      string                `json:"kind"`
}

// Service owns identity reconciliation: finding orphaned activity, matching
// orphans to surviving rows by fingerprint, and transferring activity in a
// single transaction. Transfers for the same orphan are serialized by a
// per-orphan lock so a double-submitted merge cannot run twice.
type Service struct {
	db         *gorm.DB
	entities   repository.EntityRepositoryInterface
	activity   repository.ActivityRepositoryInterface
	merges     repository.MergeRepositoryInterface
	exclusions repository.ExclusionRepositoryInterface

	candidateLimit  int
	nearMaxDistance int

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

func NewService(db *gorm.DB, entities repository.EntityRepositoryInterface,
	activity repository.ActivityRepositoryInterface, merges repository.MergeRepositoryInterface,
	exclusions repository.ExclusionRepositoryInterface, candidateLimit, nearMaxDistance int) *Service {
	return &Service{
		db:              db,
		entities:        entities,
		activity:        activity,
		merges:          merges,
		exclusions:      exclusions,
		candidateLimit:  candidateLimit,
		nearMaxDistance: nearMaxDistance,
		locks:           make(map[string]*sync.Mutex),
	}
}

func (s *Service) orphanLock(t models.EntityType, key models.EntityKey) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	id := string(t) + "|" + key.SourceInstanceID + "|" + key.ExternalID
	if mu, ok := s.locks[id]; ok {
		return mu
	}
	mu := &sync.Mutex{}
	s.locks[id] = mu
	return mu
}

// FindOrphanedEntitiesWithActivity returns every tombstoned row of one type
// that still has ratings, watch history, favorites or hidden markers
// attached.
func (s *Service) FindOrphanedEntitiesWithActivity(t models.EntityType) ([]Orphan, error) {
	keys, err := s.activity.ListEntityKeysWithActivity(t)
	if err != nil {
		return nil, err
	}
	var orphans []Orphan
	for _, key := range keys {
		info, err := s.entities.Get(t, key)
		if err == gorm.ErrRecordNotFound {
			// activity referencing a hard-deleted row; surface it anyway so
			// the operator can discard it
			info = &repository.EntityInfo{
				ExternalID:       key.ExternalID,
				SourceInstanceID: key.SourceInstanceID,
				State:            models.StateSoftDeleted,
			}
		} else if err != nil {
			return nil, err
		}
		if info.State != models.StateSoftDeleted {
			continue
		}
		summary, err := s.activity.Summarize(t, key)
		if err != nil {
			return nil, err
		}
		if summary.Total() == 0 {
			continue
		}
		orphans = append(orphans, Orphan{
			EntityType: string(t),
			Entity:     *info,
			Activity:   *summary,
		})
	}
	return orphans, nil
}

// FindMatches scores surviving rows against an orphan by fingerprint
// distance. Types without a fingerprint column, and orphans without a stored
// fingerprint, produce no matches. Exact matches sort before near ones;
// within a distance, candidates order naturally by display name.
func (s *Service) FindMatches(t models.EntityType, key models.EntityKey) ([]Match, error) {
	if !repository.HasFingerprint(t) {
		return nil, nil
	}
	orphan, err := s.entities.Get(t, key)
	if err != nil {
		return nil, err
	}
	if orphan.Phash == nil || *orphan.Phash == "" {
		return nil, nil
	}

	candidates, err := s.entities.ListFingerprinted(t, key, s.candidateLimit)
	if err != nil {
		return nil, err
	}

	var matches []Match
	for _, cand := range candidates {
		dist, err := HammingDistance(*orphan.Phash, *cand.Phash)
		if err != nil {
			log.Printf("reconcile: skipping candidate %s/%s: %v", cand.SourceInstanceID, cand.ExternalID, err)
			continue
		}
		kind := MatchNone
		switch {
		case dist == 0:
			kind = MatchExact
		case dist <= s.nearMaxDistance:
			kind = MatchNear
		default:
			continue
		}
		matches = append(matches, Match{Candidate: cand, Distance: dist, Kind: kind})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		if matches[i].Candidate.DisplayName != matches[j].Candidate.DisplayName {
			return natsort.Compare(matches[i].Candidate.DisplayName, matches[j].Candidate.DisplayName)
		}
		return natsort.Compare(matches[i].Candidate.ExternalID, matches[j].Candidate.ExternalID)
	})
	return matches, nil
}

// Reconcile moves all activity from a tombstoned source row to a surviving
// target row, writes the audit record, and removes the source row and its
// junctions, all in one transaction. Where source and target both carry a
// row for the same user (a rating on each), the target's row wins.
func (s *Service) Reconcile(t models.EntityType, source, target models.EntityKey, actorID uint) error {
	if source == target {
		return fmt.Errorf("source and target are the same entity")
	}
	mu := s.orphanLock(t, source)
	mu.Lock()
	defer mu.Unlock()

	targetInfo, err := s.entities.Get(t, target)
	if err != nil {
		return fmt.Errorf("failed to load merge target: %w", err)
	}
	if targetInfo.State != models.StateActive {
		return fmt.Errorf("merge target %s/%s is not active", target.SourceInstanceID, target.ExternalID)
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.activity.TransferAll(tx, t, source, target); err != nil {
			return err
		}
		if err := s.merges.Create(tx, &models.MergeRecord{
			EntityType:       string(t),
			SourceEntityID:   source.ExternalID,
			SourceInstanceID: source.SourceInstanceID,
			TargetEntityID:   target.ExternalID,
			TargetInstanceID: target.SourceInstanceID,
			ActorID:          actorID,
		}); err != nil {
			return err
		}
		if err := s.exclusions.PurgeForEntity(tx, t, source); err != nil {
			return err
		}
		return s.entities.HardDelete(tx, t, source)
	})
	if err != nil {
		return fmt.Errorf("failed to reconcile %s %s/%s: %w", t, source.SourceInstanceID, source.ExternalID, err)
	}
	log.Printf("reconcile: merged %s %s/%s into %s/%s (actor %d)",
		t, source.SourceInstanceID, source.ExternalID, target.SourceInstanceID, target.ExternalID, actorID)
	return nil
}

// Discard drops an orphan and every piece of activity attached to it.
func (s *Service) Discard(t models.EntityType, key models.EntityKey) error {
	mu := s.orphanLock(t, key)
	mu.Lock()
	defer mu.Unlock()

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.activity.DeleteAllFor(tx, t, key); err != nil {
			return err
		}
		if err := s.exclusions.PurgeForEntity(tx, t, key); err != nil {
			return err
		}
		return s.entities.HardDelete(tx, t, key)
	})
	if err != nil {
		return fmt.Errorf("failed to discard %s %s/%s: %w", t, key.SourceInstanceID, key.ExternalID, err)
	}
	return nil
}

// ReconcileAllResult summarizes one automatic batch.
type ReconcileAllResult struct {
	Merged  int `json:"merged"`
	Skipped int `json:"skipped"`
}

// ReconcileAll merges every orphan of one type that has exactly one exact
// fingerprint match. Near matches and ambiguous exact sets are skipped for
// operator review.
func (s *Service) ReconcileAll(t models.EntityType) (*ReconcileAllResult, error) {
	orphans, err := s.FindOrphanedEntitiesWithActivity(t)
	if err != nil {
		return nil, err
	}
	result := &ReconcileAllResult{}
	for _, orphan := range orphans {
		key := models.EntityKey{
			ExternalID:       orphan.Entity.ExternalID,
			SourceInstanceID: orphan.Entity.SourceInstanceID,
		}
		matches, err := s.FindMatches(t, key)
		if err != nil {
			log.Printf("reconcile: match lookup failed for %s %s/%s: %v", t, key.SourceInstanceID, key.ExternalID, err)
			result.Skipped++
			continue
		}
		var exact []Match
		for _, m := range matches {
			if m.Kind == MatchExact {
				exact = append(exact, m)
			}
		}
		if len(exact) != 1 {
			result.Skipped++
			continue
		}
		target := models.EntityKey{
			ExternalID:       exact[0].Candidate.ExternalID,
			SourceInstanceID: exact[0].Candidate.SourceInstanceID,
		}
		if err := s.Reconcile(t, key, target, 0); err != nil {
			log.Printf("reconcile: automatic merge failed for %s %s/%s: %v", t, key.SourceInstanceID, key.ExternalID, err)
			result.Skipped++
			continue
		}
		result.Merged++
	}
	return result, nil
}
