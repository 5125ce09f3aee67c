package models

// Junction tables carry the relationship graph between mirrored entities.
// Every junction row is keyed by both sides' full composite identity so that
// multiple source instances never collide. A junction row is valid only while
// both referenced rows exist and are active; sweeps and reconciliation purge
// rows whose sides go away.

// ScenePerformer links a scene to a performer.
type ScenePerformer struct {
	SceneID             string `gorm:"primaryKey" json:"scene_id"`
	SceneInstanceID     string `gorm:"primaryKey" json:"scene_instance_id"`
	PerformerID         string `gorm:"primaryKey;index:idx_sp_performer" json:"performer_id"`
	PerformerInstanceID string `gorm:"primaryKey;index:idx_sp_performer" json:"performer_instance_id"`
}

func (ScenePerformer) TableName() string { return "scene_performers" }

// SceneTag links a scene to a tag.
type SceneTag struct {
	SceneID         string `gorm:"primaryKey" json:"scene_id"`
	SceneInstanceID string `gorm:"primaryKey" json:"scene_instance_id"`
	TagID           string `gorm:"primaryKey;index:idx_st_tag" json:"tag_id"`
	TagInstanceID   string `gorm:"primaryKey;index:idx_st_tag" json:"tag_instance_id"`
}

func (SceneTag) TableName() string { return "scene_tags" }

// SceneGroup links a scene to a group.
type SceneGroup struct {
	SceneID         string `gorm:"primaryKey" json:"scene_id"`
	SceneInstanceID string `gorm:"primaryKey" json:"scene_instance_id"`
	GroupID         string `gorm:"primaryKey;index:idx_sg_group" json:"group_id"`
	GroupInstanceID string `gorm:"primaryKey;index:idx_sg_group" json:"group_instance_id"`
}

func (SceneGroup) TableName() string { return "scene_groups" }

// SceneGallery links a scene to a gallery.
type SceneGallery struct {
	SceneID           string `gorm:"primaryKey" json:"scene_id"`
	SceneInstanceID   string `gorm:"primaryKey" json:"scene_instance_id"`
	GalleryID         string `gorm:"primaryKey;index:idx_sgal_gallery" json:"gallery_id"`
	GalleryInstanceID string `gorm:"primaryKey;index:idx_sgal_gallery" json:"gallery_instance_id"`
}

func (SceneGallery) TableName() string { return "scene_galleries" }

// GalleryImage links a gallery to an image.
type GalleryImage struct {
	GalleryID         string `gorm:"primaryKey" json:"gallery_id"`
	GalleryInstanceID string `gorm:"primaryKey" json:"gallery_instance_id"`
	ImageID           string `gorm:"primaryKey;index:idx_gi_image" json:"image_id"`
	ImageInstanceID   string `gorm:"primaryKey;index:idx_gi_image" json:"image_instance_id"`
}

func (GalleryImage) TableName() string { return "gallery_images" }

// PerformerTag links a performer to a tag.
type PerformerTag struct {
	PerformerID         string `gorm:"primaryKey" json:"performer_id"`
	PerformerInstanceID string `gorm:"primaryKey" json:"performer_instance_id"`
	TagID               string `gorm:"primaryKey;index:idx_pt_tag" json:"tag_id"`
	TagInstanceID       string `gorm:"primaryKey;index:idx_pt_tag" json:"tag_instance_id"`
}

func (PerformerTag) TableName() string { return "performer_tags" }

// Self-referential hierarchies are stored as adjacency rows rather than
// embedded parent pointers so cascade traversal stays iterative even when the
// source data contains cycles.

// TagRelation is one parent/child edge in the tag hierarchy.
type TagRelation struct {
	ParentID         string `gorm:"primaryKey" json:"parent_id"`
	ParentInstanceID string `gorm:"primaryKey" json:"parent_instance_id"`
	ChildID          string `gorm:"primaryKey;index:idx_tr_child" json:"child_id"`
	ChildInstanceID  string `gorm:"primaryKey;index:idx_tr_child" json:"child_instance_id"`
}

func (TagRelation) TableName() string { return "tag_relations" }

// StudioRelation is one parent/child edge in the studio hierarchy.
type StudioRelation struct {
	ParentID         string `gorm:"primaryKey" json:"parent_id"`
	ParentInstanceID string `gorm:"primaryKey" json:"parent_instance_id"`
	ChildID          string `gorm:"primaryKey;index:idx_sr_child" json:"child_id"`
	ChildInstanceID  string `gorm:"primaryKey;index:idx_sr_child" json:"child_instance_id"`
}

func (StudioRelation) TableName() string { return "studio_relations" }

// GroupRelation is one containing/sub-group edge in the group hierarchy.
type GroupRelation struct {
	ParentID         string `gorm:"primaryKey" json:"parent_id"`
	ParentInstanceID string `gorm:"primaryKey" json:"parent_instance_id"`
	ChildID          string `gorm:"primaryKey;index:idx_gr_child" json:"child_id"`
	ChildInstanceID  string `gorm:"primaryKey;index:idx_gr_child" json:"child_instance_id"`
}

func (GroupRelation) TableName() string { return "group_relations" }
