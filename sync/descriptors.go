package sync

import (
	"encoding/json"
	"fmt"

	"github.com/camden-git/catalogmirror/models"
	"github.com/camden-git/catalogmirror/repository"
	"github.com/camden-git/catalogmirror/upstream"
	"github.com/camden-git/catalogmirror/utils"
)

// decodedPage is one upstream page normalized into local rows: the upsert
// batch, the external ids seen (for full-sweep diffing), any incremental
// delete signals, and the max source updated_at observed.
type decodedPage struct {
	batch      repository.EntityBatch
	ids        []string
	deletes    []models.EntityKey
	maxUpdated int64
}

// decodeFunc normalizes one page of raw upstream records for one entity type.
type decodeFunc func(raw []json.RawMessage, instanceID string, now int64) (*decodedPage, error)

var decoders = map[models.EntityType]decodeFunc{
	models.EntityScene:     decodeScenes,
	models.EntityPerformer: decodePerformers,
	models.EntityStudio:    decodeStudios,
	models.EntityTag:       decodeTags,
	models.EntityGroup:     decodeGroups,
	models.EntityGallery:   decodeGalleries,
	models.EntityImage:     decodeImages,
	models.EntityClip:      decodeClips,
}

// parseHeader validates the common record fields and normalizes both source
// timestamps into UTC unix seconds.
func parseHeader(hdr upstream.RecordHeader, entityType models.EntityType) (createdAt, updatedAt int64, err error) {
	if hdr.ID == "" {
		return 0, 0, fmt.Errorf("%s record missing id", entityType)
	}
	createdAt, err = utils.ParseSourceTimestamp(hdr.CreatedAt)
	if err != nil {
		return 0, 0, fmt.Errorf("%s %s has bad created_at: %w", entityType, hdr.ID, err)
	}
	updatedAt, err = utils.ParseSourceTimestamp(hdr.UpdatedAt)
	if err != nil {
		return 0, 0, fmt.Errorf("%s %s has bad updated_at: %w", entityType, hdr.ID, err)
	}
	return createdAt, updatedAt, nil
}

func newCatalogRow(id, instanceID string, createdAt, updatedAt, now int64) models.CatalogRow {
	return models.CatalogRow{
		ExternalID:       id,
		SourceInstanceID: instanceID,
		State:            models.StateActive,
		CreatedAt:        createdAt,
		UpdatedAt:        updatedAt,
		SyncedAt:         now,
	}
}

func (p *decodedPage) observe(id string, updatedAt int64) {
	p.ids = append(p.ids, id)
	if updatedAt > p.maxUpdated {
		p.maxUpdated = updatedAt
	}
}

func (p *decodedPage) observeDelete(key models.EntityKey, updatedAt int64) {
	p.deletes = append(p.deletes, key)
	if updatedAt > p.maxUpdated {
		p.maxUpdated = updatedAt
	}
}

func decodeScenes(raw []json.RawMessage, instanceID string, now int64) (*decodedPage, error) {
	page := &decodedPage{}
	var rows []models.Scene
	var owners []models.EntityKey
	var performers []models.ScenePerformer
	var tags []models.SceneTag
	var groups []models.SceneGroup
	var galleries []models.SceneGallery

	for _, r := range raw {
		var rec upstream.SceneRecord
		if err := json.Unmarshal(r, &rec); err != nil {
			return nil, fmt.Errorf("failed to decode scene record: %w", err)
		}
		createdAt, updatedAt, err := parseHeader(rec.RecordHeader, models.EntityScene)
		if err != nil {
			return nil, err
		}
		key := models.EntityKey{ExternalID: rec.ID, SourceInstanceID: instanceID}
		if rec.Deleted {
			page.observeDelete(key, updatedAt)
			continue
		}

		scene := models.Scene{
			CatalogRow: newCatalogRow(rec.ID, instanceID, createdAt, updatedAt, now),
			Title:      rec.Title,
			Details:    rec.Details,
			URL:        rec.URL,
			Date:       rec.Date,
			Duration:   rec.Duration,
			Phash:      rec.Phash,
		}
		if rec.Studio != nil {
			scene.StudioID = &rec.Studio.ID
			scene.StudioInstanceID = &instanceID
		}
		rows = append(rows, scene)
		owners = append(owners, key)
		page.observe(rec.ID, updatedAt)

		for _, ref := range rec.Performers {
			performers = append(performers, models.ScenePerformer{
				SceneID: rec.ID, SceneInstanceID: instanceID,
				PerformerID: ref.ID, PerformerInstanceID: instanceID,
			})
		}
		for _, ref := range rec.Tags {
			tags = append(tags, models.SceneTag{
				SceneID: rec.ID, SceneInstanceID: instanceID,
				TagID: ref.ID, TagInstanceID: instanceID,
			})
		}
		for _, ref := range rec.Groups {
			groups = append(groups, models.SceneGroup{
				SceneID: rec.ID, SceneInstanceID: instanceID,
				GroupID: ref.ID, GroupInstanceID: instanceID,
			})
		}
		for _, ref := range rec.Galleries {
			galleries = append(galleries, models.SceneGallery{
				SceneID: rec.ID, SceneInstanceID: instanceID,
				GalleryID: ref.ID, GalleryInstanceID: instanceID,
			})
		}
	}

	page.batch = repository.EntityBatch{
		Type:     models.EntityScene,
		Rows:     rows,
		RowCount: len(rows),
		Junctions: []repository.JunctionReplace{
			{Model: &models.ScenePerformer{}, OwnerIDCol: "scene_id", OwnerInstCol: "scene_instance_id",
				Owners: owners, Rows: performers, RowCount: len(performers)},
			{Model: &models.SceneTag{}, OwnerIDCol: "scene_id", OwnerInstCol: "scene_instance_id",
				Owners: owners, Rows: tags, RowCount: len(tags)},
			{Model: &models.SceneGroup{}, OwnerIDCol: "scene_id", OwnerInstCol: "scene_instance_id",
				Owners: owners, Rows: groups, RowCount: len(groups)},
			{Model: &models.SceneGallery{}, OwnerIDCol: "scene_id", OwnerInstCol: "scene_instance_id",
				Owners: owners, Rows: galleries, RowCount: len(galleries)},
		},
	}
	return page, nil
}

func decodePerformers(raw []json.RawMessage, instanceID string, now int64) (*decodedPage, error) {
	page := &decodedPage{}
	var rows []models.Performer
	var owners []models.EntityKey
	var tags []models.PerformerTag

	for _, r := range raw {
		var rec upstream.PerformerRecord
		if err := json.Unmarshal(r, &rec); err != nil {
			return nil, fmt.Errorf("failed to decode performer record: %w", err)
		}
		createdAt, updatedAt, err := parseHeader(rec.RecordHeader, models.EntityPerformer)
		if err != nil {
			return nil, err
		}
		key := models.EntityKey{ExternalID: rec.ID, SourceInstanceID: instanceID}
		if rec.Deleted {
			page.observeDelete(key, updatedAt)
			continue
		}

		rows = append(rows, models.Performer{
			CatalogRow:     newCatalogRow(rec.ID, instanceID, createdAt, updatedAt, now),
			Name:           rec.Name,
			Disambiguation: rec.Disambiguation,
			Gender:         rec.Gender,
			Birthdate:      rec.Birthdate,
			Country:        rec.Country,
			Favorite:       rec.Favorite,
		})
		owners = append(owners, key)
		page.observe(rec.ID, updatedAt)

		for _, ref := range rec.Tags {
			tags = append(tags, models.PerformerTag{
				PerformerID: rec.ID, PerformerInstanceID: instanceID,
				TagID: ref.ID, TagInstanceID: instanceID,
			})
		}
	}

	page.batch = repository.EntityBatch{
		Type:     models.EntityPerformer,
		Rows:     rows,
		RowCount: len(rows),
		Junctions: []repository.JunctionReplace{
			{Model: &models.PerformerTag{}, OwnerIDCol: "performer_id", OwnerInstCol: "performer_instance_id",
				Owners: owners, Rows: tags, RowCount: len(tags)},
		},
	}
	return page, nil
}

func decodeStudios(raw []json.RawMessage, instanceID string, now int64) (*decodedPage, error) {
	page := &decodedPage{}
	var rows []models.Studio
	var owners []models.EntityKey
	var relations []models.StudioRelation

	for _, r := range raw {
		var rec upstream.StudioRecord
		if err := json.Unmarshal(r, &rec); err != nil {
			return nil, fmt.Errorf("failed to decode studio record: %w", err)
		}
		createdAt, updatedAt, err := parseHeader(rec.RecordHeader, models.EntityStudio)
		if err != nil {
			return nil, err
		}
		key := models.EntityKey{ExternalID: rec.ID, SourceInstanceID: instanceID}
		if rec.Deleted {
			page.observeDelete(key, updatedAt)
			continue
		}

		rows = append(rows, models.Studio{
			CatalogRow: newCatalogRow(rec.ID, instanceID, createdAt, updatedAt, now),
			Name:       rec.Name,
			URL:        rec.URL,
			Details:    rec.Details,
		})
		owners = append(owners, key)
		page.observe(rec.ID, updatedAt)

		if rec.Parent != nil {
			relations = append(relations, models.StudioRelation{
				ParentID: rec.Parent.ID, ParentInstanceID: instanceID,
				ChildID: rec.ID, ChildInstanceID: instanceID,
			})
		}
	}

	page.batch = repository.EntityBatch{
		Type:     models.EntityStudio,
		Rows:     rows,
		RowCount: len(rows),
		Junctions: []repository.JunctionReplace{
			// the child side owns its parent edges: re-syncing a studio
			// replaces where it hangs in the hierarchy
			{Model: &models.StudioRelation{}, OwnerIDCol: "child_id", OwnerInstCol: "child_instance_id",
				Owners: owners, Rows: relations, RowCount: len(relations)},
		},
	}
	return page, nil
}

func decodeTags(raw []json.RawMessage, instanceID string, now int64) (*decodedPage, error) {
	page := &decodedPage{}
	var rows []models.Tag
	var owners []models.EntityKey
	var relations []models.TagRelation

	for _, r := range raw {
		var rec upstream.TagRecord
		if err := json.Unmarshal(r, &rec); err != nil {
			return nil, fmt.Errorf("failed to decode tag record: %w", err)
		}
		createdAt, updatedAt, err := parseHeader(rec.RecordHeader, models.EntityTag)
		if err != nil {
			return nil, err
		}
		key := models.EntityKey{ExternalID: rec.ID, SourceInstanceID: instanceID}
		if rec.Deleted {
			page.observeDelete(key, updatedAt)
			continue
		}

		rows = append(rows, models.Tag{
			CatalogRow:  newCatalogRow(rec.ID, instanceID, createdAt, updatedAt, now),
			Name:        rec.Name,
			Description: rec.Description,
		})
		owners = append(owners, key)
		page.observe(rec.ID, updatedAt)

		for _, parent := range rec.Parents {
			relations = append(relations, models.TagRelation{
				ParentID: parent.ID, ParentInstanceID: instanceID,
				ChildID: rec.ID, ChildInstanceID: instanceID,
			})
		}
	}

	page.batch = repository.EntityBatch{
		Type:     models.EntityTag,
		Rows:     rows,
		RowCount: len(rows),
		Junctions: []repository.JunctionReplace{
			{Model: &models.TagRelation{}, OwnerIDCol: "child_id", OwnerInstCol: "child_instance_id",
				Owners: owners, Rows: relations, RowCount: len(relations)},
		},
	}
	return page, nil
}

func decodeGroups(raw []json.RawMessage, instanceID string, now int64) (*decodedPage, error) {
	page := &decodedPage{}
	var rows []models.Group
	var owners []models.EntityKey
	var relations []models.GroupRelation

	for _, r := range raw {
		var rec upstream.GroupRecord
		if err := json.Unmarshal(r, &rec); err != nil {
			return nil, fmt.Errorf("failed to decode group record: %w", err)
		}
		createdAt, updatedAt, err := parseHeader(rec.RecordHeader, models.EntityGroup)
		if err != nil {
			return nil, err
		}
		key := models.EntityKey{ExternalID: rec.ID, SourceInstanceID: instanceID}
		if rec.Deleted {
			page.observeDelete(key, updatedAt)
			continue
		}

		group := models.Group{
			CatalogRow: newCatalogRow(rec.ID, instanceID, createdAt, updatedAt, now),
			Name:       rec.Name,
			Synopsis:   rec.Synopsis,
			Date:       rec.Date,
		}
		if rec.Studio != nil {
			group.StudioID = &rec.Studio.ID
			group.StudioInstanceID = &instanceID
		}
		rows = append(rows, group)
		owners = append(owners, key)
		page.observe(rec.ID, updatedAt)

		for _, sub := range rec.ContainingOf {
			relations = append(relations, models.GroupRelation{
				ParentID: rec.ID, ParentInstanceID: instanceID,
				ChildID: sub.ID, ChildInstanceID: instanceID,
			})
		}
	}

	page.batch = repository.EntityBatch{
		Type:     models.EntityGroup,
		Rows:     rows,
		RowCount: len(rows),
		Junctions: []repository.JunctionReplace{
			// the containing group owns its sub-group edges
			{Model: &models.GroupRelation{}, OwnerIDCol: "parent_id", OwnerInstCol: "parent_instance_id",
				Owners: owners, Rows: relations, RowCount: len(relations)},
		},
	}
	return page, nil
}

func decodeGalleries(raw []json.RawMessage, instanceID string, now int64) (*decodedPage, error) {
	page := &decodedPage{}
	var rows []models.Gallery
	var owners []models.EntityKey
	var images []models.GalleryImage

	for _, r := range raw {
		var rec upstream.GalleryRecord
		if err := json.Unmarshal(r, &rec); err != nil {
			return nil, fmt.Errorf("failed to decode gallery record: %w", err)
		}
		createdAt, updatedAt, err := parseHeader(rec.RecordHeader, models.EntityGallery)
		if err != nil {
			return nil, err
		}
		key := models.EntityKey{ExternalID: rec.ID, SourceInstanceID: instanceID}
		if rec.Deleted {
			page.observeDelete(key, updatedAt)
			continue
		}

		gallery := models.Gallery{
			CatalogRow: newCatalogRow(rec.ID, instanceID, createdAt, updatedAt, now),
			Title:      rec.Title,
			Details:    rec.Details,
			Date:       rec.Date,
		}
		if rec.Studio != nil {
			gallery.StudioID = &rec.Studio.ID
			gallery.StudioInstanceID = &instanceID
		}
		rows = append(rows, gallery)
		owners = append(owners, key)
		page.observe(rec.ID, updatedAt)

		for _, ref := range rec.Images {
			images = append(images, models.GalleryImage{
				GalleryID: rec.ID, GalleryInstanceID: instanceID,
				ImageID: ref.ID, ImageInstanceID: instanceID,
			})
		}
	}

	page.batch = repository.EntityBatch{
		Type:     models.EntityGallery,
		Rows:     rows,
		RowCount: len(rows),
		Junctions: []repository.JunctionReplace{
			{Model: &models.GalleryImage{}, OwnerIDCol: "gallery_id", OwnerInstCol: "gallery_instance_id",
				Owners: owners, Rows: images, RowCount: len(images)},
		},
	}
	return page, nil
}

func decodeImages(raw []json.RawMessage, instanceID string, now int64) (*decodedPage, error) {
	page := &decodedPage{}
	var rows []models.Image

	for _, r := range raw {
		var rec upstream.ImageRecord
		if err := json.Unmarshal(r, &rec); err != nil {
			return nil, fmt.Errorf("failed to decode image record: %w", err)
		}
		createdAt, updatedAt, err := parseHeader(rec.RecordHeader, models.EntityImage)
		if err != nil {
			return nil, err
		}
		key := models.EntityKey{ExternalID: rec.ID, SourceInstanceID: instanceID}
		if rec.Deleted {
			page.observeDelete(key, updatedAt)
			continue
		}

		rows = append(rows, models.Image{
			CatalogRow: newCatalogRow(rec.ID, instanceID, createdAt, updatedAt, now),
			Title:      rec.Title,
			Width:      rec.Width,
			Height:     rec.Height,
			Phash:      rec.Phash,
		})
		page.observe(rec.ID, updatedAt)
	}

	page.batch = repository.EntityBatch{
		Type:     models.EntityImage,
		Rows:     rows,
		RowCount: len(rows),
	}
	return page, nil
}

func decodeClips(raw []json.RawMessage, instanceID string, now int64) (*decodedPage, error) {
	page := &decodedPage{}
	var rows []models.Clip

	for _, r := range raw {
		var rec upstream.ClipRecord
		if err := json.Unmarshal(r, &rec); err != nil {
			return nil, fmt.Errorf("failed to decode clip record: %w", err)
		}
		createdAt, updatedAt, err := parseHeader(rec.RecordHeader, models.EntityClip)
		if err != nil {
			return nil, err
		}
		key := models.EntityKey{ExternalID: rec.ID, SourceInstanceID: instanceID}
		if rec.Deleted {
			page.observeDelete(key, updatedAt)
			continue
		}

		clip := models.Clip{
			CatalogRow: newCatalogRow(rec.ID, instanceID, createdAt, updatedAt, now),
			Title:      rec.Title,
			Duration:   rec.Duration,
			Phash:      rec.Phash,
		}
		if rec.Scene != nil {
			clip.SceneID = &rec.Scene.ID
			clip.SceneInstanceID = &instanceID
		}
		rows = append(rows, clip)
		page.observe(rec.ID, updatedAt)
	}

	page.batch = repository.EntityBatch{
		Type:     models.EntityClip,
		Rows:     rows,
		RowCount: len(rows),
	}
	return page, nil
}
