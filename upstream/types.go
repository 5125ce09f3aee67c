package upstream

import "encoding/json"

// FindFilter is the paging/filtering shape the upstream query endpoint
// accepts. Pages are 1-based; results are always ordered by ascending id so
// paging is stable across requests.
type FindFilter struct {
	Page         int
	PerPage      int
	UpdatedAfter string // optional, UTC without offset; empty means no filter
}

// FindResult is one page of records plus the total count across all pages.
type FindResult struct {
	Records []json.RawMessage `json:"records"`
	Total   int               `json:"total"`
}

// IDRef is a reference to another entity within the same source instance.
type IDRef struct {
	ID string `json:"id"`
}

// Common fields every upstream record carries. Type-specific records embed it.
type RecordHeader struct {
	ID        string `json:"id"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
	// Deleted is only set on incremental responses, signalling that the
	// record was removed upstream since the requested cursor.
	Deleted bool `json:"deleted,omitempty"`
}

// SceneRecord is the upstream shape of a scene.
type SceneRecord struct {
	RecordHeader
	Title      string  `json:"title"`
	Details    *string `json:"details"`
	URL        *string `json:"url"`
	Date       *string `json:"date"`
	Duration   *int    `json:"duration"`
	Phash      *string `json:"phash"`
	Studio     *IDRef  `json:"studio"`
	Performers []IDRef `json:"performers"`
	Tags       []IDRef `json:"tags"`
	Groups     []IDRef `json:"groups"`
	Galleries  []IDRef `json:"galleries"`
}

// PerformerRecord is the upstream shape of a performer.
type PerformerRecord struct {
	RecordHeader
	Name           string  `json:"name"`
	Disambiguation *string `json:"disambiguation"`
	Gender         *string `json:"gender"`
	Birthdate      *string `json:"birthdate"`
	Country        *string `json:"country"`
	Favorite       bool    `json:"favorite"`
	Tags           []IDRef `json:"tags"`
}

// StudioRecord is the upstream shape of a studio.
type StudioRecord struct {
	RecordHeader
	Name    string  `json:"name"`
	URL     *string `json:"url"`
	Details *string `json:"details"`
	Parent  *IDRef  `json:"parent"`
}

// TagRecord is the upstream shape of a tag.
type TagRecord struct {
	RecordHeader
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Parents     []IDRef `json:"parents"`
}

// GroupRecord is the upstream shape of a group.
type GroupRecord struct {
	RecordHeader
	Name         string  `json:"name"`
	Synopsis     *string `json:"synopsis"`
	Date         *string `json:"date"`
	Studio       *IDRef  `json:"studio"`
	ContainingOf []IDRef `json:"containing_of"`
}

// GalleryRecord is the upstream shape of a gallery.
type GalleryRecord struct {
	RecordHeader
	Title   string  `json:"title"`
	Details *string `json:"details"`
	Date    *string `json:"date"`
	Studio  *IDRef  `json:"studio"`
	Images  []IDRef `json:"images"`
}

// ImageRecord is the upstream shape of an image.
type ImageRecord struct {
	RecordHeader
	Title  *string `json:"title"`
	Width  *int    `json:"width"`
	Height *int    `json:"height"`
	Phash  *string `json:"phash"`
}

// ClipRecord is the upstream shape of a clip.
type ClipRecord struct {
	RecordHeader
	Title    string  `json:"title"`
	Duration *int    `json:"duration"`
	Phash    *string `json:"phash"`
	Scene    *IDRef  `json:"scene"`
}
