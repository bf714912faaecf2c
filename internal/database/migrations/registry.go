package migrations

import "gorm.io/gorm"

// All returns the ordered set of migrations that build the media store schema.
func All() []Migration {
	return []Migration{
		migration001InitialSchema(),
	}
}

func migration001InitialSchema() Migration {
	return Migration{
		Version:     "001",
		Description: "create media_items, folders and system_state tables",
		Up: func(tx *gorm.DB) error {
			if err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS folders (
					object_id     TEXT PRIMARY KEY,
					parent_id     TEXT NOT NULL,
					absolute_path TEXT NOT NULL,
					display_title TEXT NOT NULL
				)
			`).Error; err != nil {
				return err
			}
			if err := tx.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_folders_absolute_path ON folders(absolute_path)`).Error; err != nil {
				return err
			}
			if err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_folders_parent_id ON folders(parent_id)`).Error; err != nil {
				return err
			}

			if err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS media_items (
					object_id        TEXT PRIMARY KEY,
					parent_folder_id TEXT NOT NULL,
					absolute_path    TEXT NOT NULL,
					display_title    TEXT NOT NULL,
					size_bytes       INTEGER NOT NULL,
					mtime            INTEGER NOT NULL,
					mime_type        TEXT NOT NULL,
					media_class      TEXT NOT NULL,
					duration_seconds REAL,
					resolution       TEXT,
					created_at       INTEGER NOT NULL,
					updated_at       INTEGER NOT NULL
				)
			`).Error; err != nil {
				return err
			}
			if err := tx.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_media_items_absolute_path ON media_items(absolute_path)`).Error; err != nil {
				return err
			}
			if err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_media_items_parent_folder_id ON media_items(parent_folder_id)`).Error; err != nil {
				return err
			}
			if err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_media_items_media_class ON media_items(media_class)`).Error; err != nil {
				return err
			}
			if err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_media_items_mtime ON media_items(mtime)`).Error; err != nil {
				return err
			}

			if err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS system_state (
					id               INTEGER PRIMARY KEY,
					system_update_id INTEGER NOT NULL
				)
			`).Error; err != nil {
				return err
			}
			return tx.Exec(`INSERT OR IGNORE INTO system_state (id, system_update_id) VALUES (1, 0)`).Error
		},
		Down: func(tx *gorm.DB) error {
			if err := tx.Exec(`DROP TABLE IF EXISTS media_items`).Error; err != nil {
				return err
			}
			if err := tx.Exec(`DROP TABLE IF EXISTS folders`).Error; err != nil {
				return err
			}
			return tx.Exec(`DROP TABLE IF EXISTS system_state`).Error
		},
	}
}
