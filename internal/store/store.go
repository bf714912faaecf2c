package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/lumin-project/lumin/internal/coreerr"
	"github.com/lumin-project/lumin/internal/config"
	"github.com/lumin-project/lumin/internal/database/migrations"
	"github.com/lumin-project/lumin/internal/objectid"
)

// Store is the MediaStore (C2): an embedded transactional catalog of media
// items and folders with atomic CRUD and a monotonic SystemUpdateID.
//
// Writes are serialized by writeMu — one writer at a time, as §4.2 requires
// — while readers use GORM's normal snapshot-isolated reads against the
// WAL-mode connection opened in db.go.
type Store struct {
	db      *DB
	logger  *slog.Logger
	path    string
	writeMu sync.Mutex
}

// Page is one page of listed or searched rows plus the SUID snapshot used
// to render it.
type Page struct {
	Items   []MediaItem
	Folders []Folder
	Total   int
	SUID    int64
}

// Open opens (or creates) the store at cfg.Path, running an integrity
// check and, on failure, quarantining the corrupt file and rebuilding a
// fresh empty schema (§4.2 recovery). The caller is still responsible for
// triggering a full Indexer pass after a rebuild.
func Open(ctx context.Context, cfg config.DatabaseConfig, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}

	db, err := openAndVerify(ctx, cfg.Path, cfg, log)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db, logger: log, path: cfg.Path}
	return s, nil
}

func openAndVerify(ctx context.Context, path string, cfg config.DatabaseConfig, log *slog.Logger) (*DB, error) {
	db, err := openDB(path, cfg, log, nil)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	if err := runMigrations(ctx, db, log); err != nil {
		_ = db.Close()

		if path == ":memory:" {
			return nil, fmt.Errorf("running migrations: %w", err)
		}

		quarantined := fmt.Sprintf("%s.corrupt-%d", path, time.Now().Unix())
		log.Warn("store failed integrity check, quarantining and rebuilding",
			slog.String("error", err.Error()),
			slog.String("quarantined_to", quarantined),
		)
		if renameErr := os.Rename(path, quarantined); renameErr != nil && !os.IsNotExist(renameErr) {
			return nil, fmt.Errorf("quarantining corrupt store: %w", renameErr)
		}

		freshDB, freshErr := openDB(path, cfg, log, nil)
		if freshErr != nil {
			return nil, fmt.Errorf("rebuilding store after quarantine: %w", freshErr)
		}
		if migErr := runMigrations(ctx, freshDB, log); migErr != nil {
			return nil, coreerr.New(coreerr.KindStoreCorruption, "rebuilt store still fails migrations", migErr)
		}
		return freshDB, nil
	}

	return db, nil
}

func runMigrations(ctx context.Context, db *DB, log *slog.Logger) error {
	migrator := migrations.NewMigrator(db.DB, log)
	migrator.RegisterAll(migrations.All())
	return migrator.Up(ctx)
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying connection for StartStatsMonitor/Stats callers.
func (s *Store) DB() *DB {
	return s.db
}

// currentSUID reads the SystemUpdateID row within tx, creating it at 0 if
// somehow absent (defensive; migration 001 always seeds it).
func currentSUID(tx *gorm.DB) (int64, error) {
	var row systemState
	if err := tx.First(&row, 1).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			row = systemState{ID: 1, SystemUpdateID: 0}
			if err := tx.Create(&row).Error; err != nil {
				return 0, err
			}
			return 0, nil
		}
		return 0, err
	}
	return row.SystemUpdateID, nil
}

// bumpSUID increments and persists the counter within tx, returning the new value.
func bumpSUID(tx *gorm.DB) (int64, error) {
	suid, err := currentSUID(tx)
	if err != nil {
		return 0, err
	}
	next := suid + 1
	if err := tx.Model(&systemState{}).Where("id = 1").Update("system_update_id", next).Error; err != nil {
		return 0, err
	}
	return next, nil
}

// SystemUpdateID returns the current SUID with no write side effect.
func (s *Store) SystemUpdateID(ctx context.Context) (int64, error) {
	var row systemState
	if err := s.db.WithContext(ctx).First(&row, 1).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading system_update_id: %w", err)
	}
	return row.SystemUpdateID, nil
}

// EnsureFolder creates the folder row for absPath (and, recursively, every
// missing ancestor up to a root) if it does not already exist, returning
// its object_id. It does not bump SUID by itself — callers fold it into
// the same transaction as the item write that required it.
func (s *Store) EnsureFolder(tx *gorm.DB, absPath, rootPath string) (string, error) {
	folderID := objectid.Folder(absPath)

	var existing Folder
	err := tx.First(&existing, "object_id = ?", folderID).Error
	if err == nil {
		return folderID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", err
	}

	parentID := objectid.ContainerByFolder
	if absPath != rootPath {
		parent := filepath.Dir(absPath)
		if parent != absPath {
			var parentErr error
			parentID, parentErr = s.EnsureFolder(tx, parent, rootPath)
			if parentErr != nil {
				return "", parentErr
			}
		}
	}

	folder := Folder{
		ObjectID:     folderID,
		ParentID:     parentID,
		AbsolutePath: absPath,
		DisplayTitle: filepath.Base(absPath),
	}
	if err := tx.Create(&folder).Error; err != nil {
		return "", err
	}
	return folderID, nil
}

// UpsertItem inserts or updates a MediaItem and bumps SUID in the same
// transaction (§4.2: data change and SUID bump commit together or not at all).
func (s *Store) UpsertItem(ctx context.Context, item MediaItem, rootPath string) (int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	now := time.Now().Unix()
	var newSUID int64

	err := s.db.Transaction(ctx, func(tx *gorm.DB) error {
		folderID, err := s.EnsureFolder(tx, filepath.Dir(item.AbsolutePath), rootPath)
		if err != nil {
			return err
		}
		item.ParentFolderID = folderID

		var existing MediaItem
		err = tx.First(&existing, "object_id = ?", item.ObjectID).Error
		switch {
		case err == nil:
			item.CreatedAt = existing.CreatedAt
			item.UpdatedAt = now
			if saveErr := tx.Model(&existing).Updates(item).Error; saveErr != nil {
				return saveErr
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			item.CreatedAt = now
			item.UpdatedAt = now
			if createErr := tx.Create(&item).Error; createErr != nil {
				return coreerr.New(coreerr.KindProtocolMalformed, "inserting media item", createErr)
			}
		default:
			return err
		}

		newSUID, err = bumpSUID(tx)
		return err
	})
	if err != nil {
		return 0, err
	}
	return newSUID, nil
}

// DeleteByPath removes the item at path (if present) and bumps SUID only
// when a row was actually deleted.
func (s *Store) DeleteByPath(ctx context.Context, path string) (int, int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var count int64
	var newSUID int64

	err := s.db.Transaction(ctx, func(tx *gorm.DB) error {
		res := tx.Where("absolute_path = ?", path).Delete(&MediaItem{})
		if res.Error != nil {
			return res.Error
		}
		count = res.RowsAffected
		if count == 0 {
			suid, err := currentSUID(tx)
			newSUID = suid
			return err
		}

		suid, err := bumpSUID(tx)
		newSUID = suid
		return err
	})
	if err != nil {
		return 0, 0, err
	}
	return int(count), newSUID, nil
}

// DeleteMissing purges every item under root whose absolute_path is not in
// keptPaths, bumping SUID once for the whole batch if anything was removed.
func (s *Store) DeleteMissing(ctx context.Context, root string, keptPaths []string) (int, int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	kept := make(map[string]struct{}, len(keptPaths))
	for _, p := range keptPaths {
		kept[p] = struct{}{}
	}

	var count int64
	var newSUID int64

	err := s.db.Transaction(ctx, func(tx *gorm.DB) error {
		var candidates []MediaItem
		prefix := strings.TrimSuffix(root, string(filepath.Separator)) + string(filepath.Separator)
		if err := tx.Where("absolute_path LIKE ?", prefix+"%").Find(&candidates).Error; err != nil {
			return err
		}

		var toDelete []string
		for _, c := range candidates {
			if _, ok := kept[c.AbsolutePath]; !ok {
				toDelete = append(toDelete, c.ObjectID)
			}
		}
		if len(toDelete) == 0 {
			suid, err := currentSUID(tx)
			newSUID = suid
			return err
		}

		res := tx.Where("object_id IN ?", toDelete).Delete(&MediaItem{})
		if res.Error != nil {
			return res.Error
		}
		count = res.RowsAffected

		suid, err := bumpSUID(tx)
		newSUID = suid
		return err
	})
	if err != nil {
		return 0, 0, err
	}
	return int(count), newSUID, nil
}

// GetByID looks up a MediaItem or Folder by object_id, distinguishing by
// the objectid package's prefix convention.
func (s *Store) GetByID(ctx context.Context, id string) (*MediaItem, *Folder, error) {
	if objectid.IsItem(id) {
		var item MediaItem
		err := s.db.WithContext(ctx).First(&item, "object_id = ?", id).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, nil, coreerr.ErrObjectNotFound
			}
			return nil, nil, err
		}
		return &item, nil, nil
	}

	if objectid.IsFolder(id) {
		var folder Folder
		err := s.db.WithContext(ctx).First(&folder, "object_id = ?", id).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, nil, coreerr.ErrObjectNotFound
			}
			return nil, nil, err
		}
		return nil, &folder, nil
	}

	return nil, nil, coreerr.ErrObjectNotFound
}

// ListChildren pages the direct children of parentID (§4.6.2). Folders are
// listed before items; items are sorted per sortCriteria, folders always by
// title.
func (s *Store) ListChildren(ctx context.Context, parentID string, offset, limit int, sortCriteria string) (Page, error) {
	suid, err := s.SystemUpdateID(ctx)
	if err != nil {
		return Page{}, err
	}

	var folders []Folder
	if err := s.db.WithContext(ctx).Where("parent_id = ?", parentID).Find(&folders).Error; err != nil {
		return Page{}, err
	}
	var items []MediaItem
	if err := s.db.WithContext(ctx).Where("parent_folder_id = ?", parentID).Find(&items).Error; err != nil {
		return Page{}, err
	}

	sortFolders(folders, sortCriteria)
	sortItems(items, sortCriteria)

	total := len(folders) + len(items)
	pagedFolders, pagedItems := paginate(folders, items, offset, limit)

	return Page{Items: pagedItems, Folders: pagedFolders, Total: total, SUID: suid}, nil
}

// SearchPredicate is the parsed form of a supported Search() criteria
// string (§4.6.2): a required media class plus an optional title substring.
type SearchPredicate struct {
	Class       string
	TitleSubstr string
}

// Search evaluates predicate against every item in the catalog. It takes no
// container scope, so a Search request's ContainerID does not narrow the
// result; Browse of the fixed class containers ("1".."3") calls it with the
// container's class as the predicate.
func (s *Store) Search(ctx context.Context, predicate SearchPredicate, offset, limit int) (Page, error) {
	suid, err := s.SystemUpdateID(ctx)
	if err != nil {
		return Page{}, err
	}

	q := s.db.WithContext(ctx).Model(&MediaItem{})
	if predicate.Class != "" {
		q = q.Where("media_class = ?", predicate.Class)
	}
	if predicate.TitleSubstr != "" {
		q = q.Where("display_title LIKE ?", "%"+predicate.TitleSubstr+"%")
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return Page{}, err
	}

	var items []MediaItem
	q = q.Order("display_title ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	if err := q.Find(&items).Error; err != nil {
		return Page{}, err
	}

	return Page{Items: items, Total: int(total), SUID: suid}, nil
}

func sortFolders(folders []Folder, criteria string) {
	sort.Slice(folders, func(i, j int) bool {
		return folders[i].DisplayTitle < folders[j].DisplayTitle
	})
	_ = criteria // folders only ever sort by title; criteria affects items below
}

func sortItems(items []MediaItem, criteria string) {
	type sortKey struct {
		field   string
		reverse bool
	}
	var keys []sortKey
	for _, tok := range strings.Split(criteria, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		reverse := strings.HasPrefix(tok, "-")
		field := strings.TrimPrefix(strings.TrimPrefix(tok, "+"), "-")
		switch field {
		case "dc:title", "dc:date", "upnp:class":
			keys = append(keys, sortKey{field: field, reverse: reverse})
		}
	}
	if len(keys) == 0 {
		keys = []sortKey{{field: "dc:title"}}
	}

	sort.SliceStable(items, func(i, j int) bool {
		for _, k := range keys {
			var less, greater bool
			switch k.field {
			case "dc:title":
				less = items[i].DisplayTitle < items[j].DisplayTitle
				greater = items[i].DisplayTitle > items[j].DisplayTitle
			case "dc:date":
				less = items[i].Mtime < items[j].Mtime
				greater = items[i].Mtime > items[j].Mtime
			case "upnp:class":
				less = items[i].MediaClass < items[j].MediaClass
				greater = items[i].MediaClass > items[j].MediaClass
			}
			if less || greater {
				if k.reverse {
					return greater
				}
				return less
			}
		}
		return false
	})
}

// paginate applies StartingIndex/RequestedCount semantics (§4.6.2) across
// the combined folders-then-items ordering, capping RequestedCount=0 ("all
// remaining") at 1000 rows.
func paginate(folders []Folder, items []MediaItem, offset, limit int) ([]Folder, []MediaItem) {
	const maxPage = 1000

	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > maxPage {
		limit = maxPage
	}

	total := len(folders) + len(items)
	if offset >= total {
		return nil, nil
	}

	end := offset + limit
	if end > total {
		end = total
	}

	var pagedFolders []Folder
	var pagedItems []MediaItem
	for i := offset; i < end; i++ {
		if i < len(folders) {
			pagedFolders = append(pagedFolders, folders[i])
		} else {
			pagedItems = append(pagedItems, items[i-len(folders)])
		}
	}
	return pagedFolders, pagedItems
}
