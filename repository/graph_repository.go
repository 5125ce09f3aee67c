package repository

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/camden-git/catalogmirror/models"
)

// GraphRepository reads the relationship graph: junction rows, adjacency
// hierarchies, and the "has no relation at all" sets the restrict-empty rule
// needs. All reads consider only active rows on both sides.
type GraphRepository struct {
	DB *gorm.DB
}

// NewGraphRepository creates a new instance of GraphRepository
func NewGraphRepository(db *gorm.DB) *GraphRepository {
	return &GraphRepository{DB: db}
}

var adjacencyTables = map[models.EntityType]string{
	models.EntityTag:    "tag_relations",
	models.EntityStudio: "studio_relations",
	models.EntityGroup:  "group_relations",
}

func keyPairs(keys []models.EntityKey) [][]interface{} {
	pairs := make([][]interface{}, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, []interface{}{k.ExternalID, k.SourceInstanceID})
	}
	return pairs
}

// chunkedKeyQuery runs query once per chunk of keys and appends the resulting
// composite keys. The query must select exactly (external id, instance id)
// columns aliased to match models.EntityKey.
func (r *GraphRepository) chunkedKeyQuery(keys []models.EntityKey, run func(pairs [][]interface{}) ([]models.EntityKey, error)) ([]models.EntityKey, error) {
	var out []models.EntityKey
	for start := 0; start < len(keys); start += keyChunkSize {
		end := start + keyChunkSize
		if end > len(keys) {
			end = len(keys)
		}
		got, err := run(keyPairs(keys[start:end]))
		if err != nil {
			return nil, err
		}
		out = append(out, got...)
	}
	return out, nil
}

// ChildrenOf returns the direct children of the given parents in the type's
// adjacency hierarchy. Returns an error for types with no hierarchy.
func (r *GraphRepository) ChildrenOf(t models.EntityType, parents []models.EntityKey) ([]models.EntityKey, error) {
	table, ok := adjacencyTables[t]
	if !ok {
		return nil, fmt.Errorf("%s entities have no hierarchy", t)
	}
	return r.chunkedKeyQuery(parents, func(pairs [][]interface{}) ([]models.EntityKey, error) {
		var keys []models.EntityKey
		err := r.DB.Table(table).
			Select("child_id AS external_id, child_instance_id AS source_instance_id").
			Where("(parent_id, parent_instance_id) IN ?", pairs).
			Scan(&keys).Error
		if err != nil {
			return nil, fmt.Errorf("failed to expand %s children: %w", t, err)
		}
		return keys, nil
	})
}

// junctionQuery is a generic "left ids whose right side is in the set" read.
func (r *GraphRepository) junctionQuery(table, leftID, leftInst, rightID, rightInst string, rights []models.EntityKey) ([]models.EntityKey, error) {
	return r.chunkedKeyQuery(rights, func(pairs [][]interface{}) ([]models.EntityKey, error) {
		var keys []models.EntityKey
		err := r.DB.Table(table).
			Select(leftID+" AS external_id, "+leftInst+" AS source_instance_id").
			Where("("+rightID+", "+rightInst+") IN ?", pairs).
			Scan(&keys).Error
		if err != nil {
			return nil, fmt.Errorf("failed to query %s: %w", table, err)
		}
		return keys, nil
	})
}

// ScenesWithTagIn returns scenes directly tagged with any of the given tags.
func (r *GraphRepository) ScenesWithTagIn(tags []models.EntityKey) ([]models.EntityKey, error) {
	return r.junctionQuery("scene_tags", "scene_id", "scene_instance_id", "tag_id", "tag_instance_id", tags)
}

// ScenesWithPerformerTagIn returns scenes one hop away from a tag via their
// performers: any scene featuring a performer who carries one of the tags.
func (r *GraphRepository) ScenesWithPerformerTagIn(tags []models.EntityKey) ([]models.EntityKey, error) {
	return r.chunkedKeyQuery(tags, func(pairs [][]interface{}) ([]models.EntityKey, error) {
		var keys []models.EntityKey
		err := r.DB.Table("scene_performers sp").
			Select("sp.scene_id AS external_id, sp.scene_instance_id AS source_instance_id").
			Joins("JOIN performer_tags pt ON pt.performer_id = sp.performer_id AND pt.performer_instance_id = sp.performer_instance_id").
			Where("(pt.tag_id, pt.tag_instance_id) IN ?", pairs).
			Scan(&keys).Error
		if err != nil {
			return nil, fmt.Errorf("failed to query scenes by performer tags: %w", err)
		}
		return keys, nil
	})
}

// PerformersWithTagIn returns performers carrying any of the given tags.
func (r *GraphRepository) PerformersWithTagIn(tags []models.EntityKey) ([]models.EntityKey, error) {
	return r.junctionQuery("performer_tags", "performer_id", "performer_instance_id", "tag_id", "tag_instance_id", tags)
}

// ScenesWithStudioIn returns scenes belonging to any of the given studios.
func (r *GraphRepository) ScenesWithStudioIn(studios []models.EntityKey) ([]models.EntityKey, error) {
	return r.chunkedKeyQuery(studios, func(pairs [][]interface{}) ([]models.EntityKey, error) {
		var keys []models.EntityKey
		err := r.DB.Table("scenes").
			Select("external_id, source_instance_id").
			Where("(studio_id, studio_instance_id) IN ?", pairs).
			Scan(&keys).Error
		if err != nil {
			return nil, fmt.Errorf("failed to query scenes by studio: %w", err)
		}
		return keys, nil
	})
}

// GalleriesWithStudioIn returns galleries belonging to any of the given studios.
func (r *GraphRepository) GalleriesWithStudioIn(studios []models.EntityKey) ([]models.EntityKey, error) {
	return r.chunkedKeyQuery(studios, func(pairs [][]interface{}) ([]models.EntityKey, error) {
		var keys []models.EntityKey
		err := r.DB.Table("galleries").
			Select("external_id, source_instance_id").
			Where("(studio_id, studio_instance_id) IN ?", pairs).
			Scan(&keys).Error
		if err != nil {
			return nil, fmt.Errorf("failed to query galleries by studio: %w", err)
		}
		return keys, nil
	})
}

// GroupsWithStudioIn returns groups belonging to any of the given studios.
func (r *GraphRepository) GroupsWithStudioIn(studios []models.EntityKey) ([]models.EntityKey, error) {
	return r.chunkedKeyQuery(studios, func(pairs [][]interface{}) ([]models.EntityKey, error) {
		var keys []models.EntityKey
		err := r.DB.Table("groups").
			Select("external_id, source_instance_id").
			Where("(studio_id, studio_instance_id) IN ?", pairs).
			Scan(&keys).Error
		if err != nil {
			return nil, fmt.Errorf("failed to query groups by studio: %w", err)
		}
		return keys, nil
	})
}

// ScenesInGroupIn returns scenes that are members of any of the given groups.
func (r *GraphRepository) ScenesInGroupIn(groups []models.EntityKey) ([]models.EntityKey, error) {
	return r.junctionQuery("scene_groups", "scene_id", "scene_instance_id", "group_id", "group_instance_id", groups)
}

// ScenesInGalleryIn returns scenes linked to any of the given galleries.
func (r *GraphRepository) ScenesInGalleryIn(galleries []models.EntityKey) ([]models.EntityKey, error) {
	return r.junctionQuery("scene_galleries", "scene_id", "scene_instance_id", "gallery_id", "gallery_instance_id", galleries)
}

// ImagesInGalleryIn returns images contained in any of the given galleries.
func (r *GraphRepository) ImagesInGalleryIn(galleries []models.EntityKey) ([]models.EntityKey, error) {
	return r.junctionQuery("gallery_images", "image_id", "image_instance_id", "gallery_id", "gallery_instance_id", galleries)
}

// ClipsOfSceneIn returns clips cut from any of the given scenes.
func (r *GraphRepository) ClipsOfSceneIn(scenes []models.EntityKey) ([]models.EntityKey, error) {
	return r.chunkedKeyQuery(scenes, func(pairs [][]interface{}) ([]models.EntityKey, error) {
		var keys []models.EntityKey
		err := r.DB.Table("clips").
			Select("external_id, source_instance_id").
			Where("(scene_id, scene_instance_id) IN ?", pairs).
			Scan(&keys).Error
		if err != nil {
			return nil, fmt.Errorf("failed to query clips by scene: %w", err)
		}
		return keys, nil
	})
}

// emptyRelation names the junction whose absence makes a content row "empty"
// toward one target type. A blank junction means the relation lives on the
// content table's nullable studio column instead.
type emptyRelation struct {
	junction string
	idCol    string
	instCol  string
}

var emptyRelations = map[models.EntityType]map[models.EntityType]emptyRelation{
	models.EntityScene: {
		models.EntityTag:     {junction: "scene_tags", idCol: "scene_id", instCol: "scene_instance_id"},
		models.EntityStudio:  {},
		models.EntityGroup:   {junction: "scene_groups", idCol: "scene_id", instCol: "scene_instance_id"},
		models.EntityGallery: {junction: "scene_galleries", idCol: "scene_id", instCol: "scene_instance_id"},
	},
	models.EntityPerformer: {
		models.EntityTag: {junction: "performer_tags", idCol: "performer_id", instCol: "performer_instance_id"},
	},
	models.EntityGallery: {
		models.EntityStudio: {},
	},
	models.EntityGroup: {
		models.EntityStudio: {},
	},
	models.EntityImage: {
		models.EntityGallery: {junction: "gallery_images", idCol: "image_id", instCol: "image_instance_id"},
	},
}

// KeysWithNoRelation returns active rows of one content type with no value at
// all for the target relation: scenes with zero tags, performers with zero
// tags, images in no gallery, rows with a null studio. Content/target pairs
// with no direct relation have no empty set. Used by the restrict-empty rule.
func (r *GraphRepository) KeysWithNoRelation(t, target models.EntityType) ([]models.EntityKey, error) {
	rel, ok := emptyRelations[t][target]
	if !ok {
		return nil, nil
	}
	q := r.DB.Table(TableForEntityType(t) + " c").
		Select("c.external_id, c.source_instance_id").
		Where("c.state = ?", models.StateActive)
	if rel.junction == "" {
		q = q.Where("c.studio_id IS NULL")
	} else {
		q = q.Where(fmt.Sprintf(
			"NOT EXISTS (SELECT 1 FROM %s j WHERE j.%s = c.external_id AND j.%s = c.source_instance_id)",
			rel.junction, rel.idCol, rel.instCol))
	}
	var keys []models.EntityKey
	if err := q.Scan(&keys).Error; err != nil {
		return nil, fmt.Errorf("failed to query %s with no %s: %w", t, target, err)
	}
	return keys, nil
}
