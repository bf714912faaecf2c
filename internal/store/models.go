package store

import "github.com/lumin-project/lumin/internal/mediatype"

// MediaItem is a persisted media file row (§3.2).
type MediaItem struct {
	ObjectID       string    `gorm:"column:object_id;primaryKey"`
	ParentFolderID string    `gorm:"column:parent_folder_id;index"`
	AbsolutePath   string    `gorm:"column:absolute_path;uniqueIndex"`
	DisplayTitle   string    `gorm:"column:display_title"`
	SizeBytes      int64     `gorm:"column:size_bytes"`
	Mtime          int64     `gorm:"column:mtime;index"`
	MimeType       string    `gorm:"column:mime_type"`
	MediaClass     string    `gorm:"column:media_class;index"`
	DurationSecs   *float64  `gorm:"column:duration_seconds"`
	Resolution     *string   `gorm:"column:resolution"`
	CreatedAt      int64     `gorm:"column:created_at"`
	UpdatedAt      int64     `gorm:"column:updated_at"`
}

// TableName pins the table name independent of GORM's pluralization rules.
func (MediaItem) TableName() string { return "media_items" }

// Class returns the item's media class as the mediatype.Class enum.
func (m MediaItem) Class() mediatype.Class { return mediatype.Class(m.MediaClass) }

// Folder is a persisted directory node (§3.2 FolderNode).
type Folder struct {
	ObjectID     string `gorm:"column:object_id;primaryKey"`
	ParentID     string `gorm:"column:parent_id;index"`
	AbsolutePath string `gorm:"column:absolute_path;uniqueIndex"`
	DisplayTitle string `gorm:"column:display_title"`
}

// TableName pins the table name independent of GORM's pluralization rules.
func (Folder) TableName() string { return "folders" }

// systemState is a single-row counter table holding the monotonic
// SystemUpdateID (§3.2 I4). Row id is always 1.
type systemState struct {
	ID             uint  `gorm:"primaryKey"`
	SystemUpdateID int64 `gorm:"column:system_update_id"`
}

func (systemState) TableName() string { return "system_state" }
