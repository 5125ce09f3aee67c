package exclusion

import (
	"fmt"
	"log"
	"time"

	"github.com/camden-git/catalogmirror/models"
	"github.com/camden-git/catalogmirror/repository"
)

// Computer rebuilds the per-user exclusion tables from visibility policies.
// Every recompute fully replaces the (user, entity type) slice of the table;
// rows are never patched in place.
type Computer struct {
	entities   repository.EntityRepositoryInterface
	graph      *repository.GraphRepository
	users      repository.UserRepositoryInterface
	exclusions repository.ExclusionRepositoryInterface

	// CascadeDepth is the number of relationship hops a restriction
	// propagates beyond direct membership. Depth 0 hides only entities
	// directly carrying a restricted id; depth 1 additionally walks one hop
	// of hierarchy (tag/studio/group children) and one indirect relation
	// (performer tags onto scenes, galleries onto images, scenes onto
	// clips); higher depths keep descending the hierarchies.
	cascadeDepth int
}

func NewComputer(entities repository.EntityRepositoryInterface, graph *repository.GraphRepository,
	users repository.UserRepositoryInterface, exclusions repository.ExclusionRepositoryInterface,
	cascadeDepth int) *Computer {
	return &Computer{
		entities:     entities,
		graph:        graph,
		users:        users,
		exclusions:   exclusions,
		cascadeDepth: cascadeDepth,
	}
}

// keySet is an exclusion-reason map keyed by entity. The first reason written
// for a key wins, so callers add reasons in precedence order.
type keySet map[models.EntityKey]string

func (s keySet) add(keys []models.EntityKey, reason string) {
	for _, k := range keys {
		if _, ok := s[k]; !ok {
			s[k] = reason
		}
	}
}

func (s keySet) keys() []models.EntityKey {
	out := make([]models.EntityKey, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	return out
}

// expandClosure widens a rule's id list by descending the target hierarchy
// (tag parents to children, studio parents to children, group to sub-groups)
// up to the cascade depth. The visited set keeps cyclic hierarchies from
// looping.
func (c *Computer) expandClosure(target models.EntityType, seed []models.EntityKey) ([]models.EntityKey, error) {
	visited := make(map[models.EntityKey]struct{}, len(seed))
	closure := make([]models.EntityKey, 0, len(seed))
	for _, k := range seed {
		visited[k] = struct{}{}
		closure = append(closure, k)
	}

	frontier := seed
	for hop := 0; hop < c.cascadeDepth && len(frontier) > 0; hop++ {
		children, err := c.graph.ChildrenOf(target, frontier)
		if err != nil {
			return nil, err
		}
		frontier = frontier[:0]
		for _, child := range children {
			if _, ok := visited[child]; ok {
				continue
			}
			visited[child] = struct{}{}
			closure = append(closure, child)
			frontier = append(frontier, child)
		}
	}
	return closure, nil
}

// relatedTo returns the entities of one content type that are related to any
// of the given target-type ids: direct membership always, plus the one-hop
// indirect relations when the cascade depth allows.
func (c *Computer) relatedTo(t models.EntityType, target models.EntityType, ids []models.EntityKey) ([]models.EntityKey, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if t == target {
		// restricting a tag also hides the tag row itself
		return ids, nil
	}
	switch t {
	case models.EntityScene:
		switch target {
		case models.EntityTag:
			direct, err := c.graph.ScenesWithTagIn(ids)
			if err != nil {
				return nil, err
			}
			if c.cascadeDepth < 1 {
				return direct, nil
			}
			viaPerformer, err := c.graph.ScenesWithPerformerTagIn(ids)
			if err != nil {
				return nil, err
			}
			return append(direct, viaPerformer...), nil
		case models.EntityStudio:
			return c.graph.ScenesWithStudioIn(ids)
		case models.EntityGroup:
			return c.graph.ScenesInGroupIn(ids)
		case models.EntityGallery:
			return c.graph.ScenesInGalleryIn(ids)
		}
	case models.EntityPerformer:
		if target == models.EntityTag {
			return c.graph.PerformersWithTagIn(ids)
		}
	case models.EntityGallery:
		if target == models.EntityStudio {
			return c.graph.GalleriesWithStudioIn(ids)
		}
	case models.EntityGroup:
		if target == models.EntityStudio {
			return c.graph.GroupsWithStudioIn(ids)
		}
	case models.EntityImage:
		if target == models.EntityGallery {
			return c.graph.ImagesInGalleryIn(ids)
		}
	}
	return nil, nil
}

// ruleApplies reports whether a rule on one target type can constrain the
// given content type at all. Include rules on unrelated pairs must not hide
// everything.
func (c *Computer) ruleApplies(t models.EntityType, target models.EntityType) bool {
	if t == target {
		return true
	}
	switch t {
	case models.EntityScene:
		return true // scenes relate to every restrictable type
	case models.EntityPerformer:
		return target == models.EntityTag
	case models.EntityGallery, models.EntityGroup:
		return target == models.EntityStudio
	case models.EntityImage:
		return target == models.EntityGallery
	}
	return false
}

// computeExcluded builds the full exclusion set for one user and one content
// type: explicit hides first, then restriction rules (include rules
// intersect, exclude rules union, restrict-empty per rule), then the derived
// relations that flow through already-excluded parents.
func (c *Computer) computeExcluded(userID uint, t models.EntityType, memo map[models.EntityType]keySet) (keySet, error) {
	if cached, ok := memo[t]; ok {
		return cached, nil
	}

	excluded := make(keySet)

	hidden, err := c.users.GetHiddenEntities(userID, t)
	if err != nil {
		return nil, err
	}
	for _, h := range hidden {
		excluded.add([]models.EntityKey{{ExternalID: h.EntityID, SourceInstanceID: h.InstanceID}}, models.ExclusionReasonHidden)
	}

	rules, err := c.users.GetRestrictionRules(userID)
	if err != nil {
		return nil, err
	}

	var active []models.EntityKey
	activeLoaded := false
	loadActive := func() ([]models.EntityKey, error) {
		if !activeLoaded {
			active, err = c.entities.ListActiveKeys(t)
			if err != nil {
				return nil, err
			}
			activeLoaded = true
		}
		return active, nil
	}

	for _, rule := range rules {
		target := models.EntityType(rule.TargetType)
		if rule.Mode == models.RestrictionModeNone && !rule.RestrictEmpty {
			continue
		}
		if !c.ruleApplies(t, target) {
			continue
		}

		closure, err := c.expandClosure(target, rule.EntityIDs)
		if err != nil {
			return nil, err
		}
		related, err := c.relatedTo(t, target, closure)
		if err != nil {
			return nil, err
		}

		switch rule.Mode {
		case models.RestrictionModeExclude:
			excluded.add(related, models.ExclusionReasonRestricted)
		case models.RestrictionModeInclude:
			universe, err := loadActive()
			if err != nil {
				return nil, err
			}
			allowed := make(map[models.EntityKey]struct{}, len(related))
			for _, k := range related {
				allowed[k] = struct{}{}
			}
			for _, k := range universe {
				if _, ok := allowed[k]; !ok {
					excluded.add([]models.EntityKey{k}, models.ExclusionReasonRestricted)
				}
			}
		}

		if rule.RestrictEmpty && t != target {
			empty, err := c.graph.KeysWithNoRelation(t, target)
			if err != nil {
				return nil, err
			}
			excluded.add(empty, models.ExclusionReasonEmpty)
		}
	}

	// exclusions flow downward: an image in an excluded gallery, and a clip
	// of an excluded scene, are excluded too
	if c.cascadeDepth >= 1 {
		switch t {
		case models.EntityImage:
			galleries, err := c.computeExcluded(userID, models.EntityGallery, memo)
			if err != nil {
				return nil, err
			}
			if len(galleries) > 0 {
				derived, err := c.graph.ImagesInGalleryIn(galleries.keys())
				if err != nil {
					return nil, err
				}
				excluded.add(derived, models.ExclusionReasonRestricted)
			}
		case models.EntityClip:
			scenes, err := c.computeExcluded(userID, models.EntityScene, memo)
			if err != nil {
				return nil, err
			}
			if len(scenes) > 0 {
				derived, err := c.graph.ClipsOfSceneIn(scenes.keys())
				if err != nil {
					return nil, err
				}
				excluded.add(derived, models.ExclusionReasonRestricted)
			}
		}
	}

	memo[t] = excluded
	return excluded, nil
}

// RecomputeUser rebuilds one user's exclusion rows and visible counts for
// one entity type in a single transaction.
func (c *Computer) RecomputeUser(userID uint, t models.EntityType) error {
	memo := make(map[models.EntityType]keySet)
	return c.recomputeWithMemo(userID, t, memo)
}

func (c *Computer) recomputeWithMemo(userID uint, t models.EntityType, memo map[models.EntityType]keySet) error {
	excluded, err := c.computeExcluded(userID, t, memo)
	if err != nil {
		return fmt.Errorf("failed to compute %s exclusions for user %d: %w", t, userID, err)
	}

	now := time.Now().Unix()
	rows := make([]models.UserExclusion, 0, len(excluded))
	for key, reason := range excluded {
		rows = append(rows, models.UserExclusion{
			UserID:     userID,
			EntityType: string(t),
			EntityID:   key.ExternalID,
			InstanceID: key.SourceInstanceID,
			Reason:     reason,
			ComputedAt: now,
		})
	}

	active, err := c.entities.ListActiveKeys(t)
	if err != nil {
		return fmt.Errorf("failed to count visible %s rows for user %d: %w", t, userID, err)
	}
	visible := make(map[string]int64)
	for _, key := range active {
		if _, ok := excluded[key]; !ok {
			visible[key.SourceInstanceID]++
		}
	}
	counts := make([]models.UserVisibleCount, 0, len(visible))
	for instanceID, n := range visible {
		counts = append(counts, models.UserVisibleCount{
			UserID:       userID,
			EntityType:   string(t),
			InstanceID:   instanceID,
			VisibleCount: n,
			ComputedAt:   now,
		})
	}

	if err := c.exclusions.ReplaceForUserAndType(userID, t, rows, counts); err != nil {
		return fmt.Errorf("failed to replace %s exclusions for user %d: %w", t, userID, err)
	}
	return nil
}

// RecomputeUserAll rebuilds every entity type for one user. The shared memo
// lets the derived image/clip passes reuse the gallery/scene sets instead of
// recomputing them.
func (c *Computer) RecomputeUserAll(userID uint) error {
	memo := make(map[models.EntityType]keySet)
	for _, t := range models.AllEntityTypes {
		if err := c.recomputeWithMemo(userID, t, memo); err != nil {
			return err
		}
	}
	return nil
}

// RecomputeAll rebuilds exclusions for every user carrying a visibility
// policy. One user's failure is logged and the rest still recompute.
func (c *Computer) RecomputeAll() error {
	userIDs, err := c.users.ListIDsWithVisibilityPolicies()
	if err != nil {
		return fmt.Errorf("failed to list users with visibility policies: %w", err)
	}
	var failed int
	for _, id := range userIDs {
		if err := c.RecomputeUserAll(id); err != nil {
			failed++
			log.Printf("exclusion: recompute failed for user %d: %v", id, err)
		}
	}
	if failed > 0 {
		return fmt.Errorf("exclusion recompute failed for %d of %d users", failed, len(userIDs))
	}
	return nil
}
