package indexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lumin-project/lumin/internal/config"
	"github.com/lumin-project/lumin/internal/objectid"
	"github.com/lumin-project/lumin/internal/store"
	"github.com/lumin-project/lumin/internal/watcher"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	cfg := config.DatabaseConfig{
		Path:            ":memory:",
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 30 * time.Minute,
		LogLevel:        "silent",
	}
	s, err := store.Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestIndexer(t *testing.T, root string) (*Indexer, chan watcher.Event, *store.Store) {
	t.Helper()
	s := newTestStore(t)
	events := make(chan watcher.Event, 16)
	ix := New(nil, s, events, []config.MediaDirectory{
		{Path: root, Recursive: true, Extensions: []string{"mp4"}},
	})
	return ix, events, s
}

func TestScanRoot_InsertsNewFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "movie.mp4"), []byte("x"), 0o644))

	ix, _, s := newTestIndexer(t, dir)
	require.NoError(t, ix.scanRoot(context.Background(), dir))

	id := objectid.Item(filepath.Join(dir, "movie.mp4"))
	item, _, err := s.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, item)
	require.Equal(t, StateSteady, ix.State(dir))
}

func TestScanRoot_RescanWithNoChangeDoesNotBumpSUID(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "movie.mp4"), []byte("x"), 0o644))

	ix, _, s := newTestIndexer(t, dir)
	ctx := context.Background()
	require.NoError(t, ix.scanRoot(ctx, dir))

	suid1, err := s.SystemUpdateID(ctx)
	require.NoError(t, err)

	require.NoError(t, ix.scanRoot(ctx, dir))
	suid2, err := s.SystemUpdateID(ctx)
	require.NoError(t, err)

	require.Equal(t, suid1, suid2)
}

func TestScanRoot_PurgesDeletedFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "movie.mp4")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	ix, _, s := newTestIndexer(t, dir)
	ctx := context.Background()
	require.NoError(t, ix.scanRoot(ctx, dir))

	require.NoError(t, os.Remove(path))
	require.NoError(t, ix.scanRoot(ctx, dir))

	_, _, err := s.GetByID(ctx, objectid.Item(path))
	require.Error(t, err)
}

func TestHandleEvent_CreatedUpsertsItem(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "movie.mp4")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	ix, _, s := newTestIndexer(t, dir)
	ctx := context.Background()
	ix.handleEvent(ctx, dir, watcher.Event{Kind: watcher.Created, Root: dir, Path: path})

	item, _, err := s.GetByID(ctx, objectid.Item(path))
	require.NoError(t, err)
	require.NotNil(t, item)
}

func TestHandleEvent_DeletedRemovesItem(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "movie.mp4")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	ix, _, s := newTestIndexer(t, dir)
	ctx := context.Background()
	ix.handleEvent(ctx, dir, watcher.Event{Kind: watcher.Created, Root: dir, Path: path})
	ix.handleEvent(ctx, dir, watcher.Event{Kind: watcher.Deleted, Root: dir, Path: path})

	_, _, err := s.GetByID(ctx, objectid.Item(path))
	require.Error(t, err)
}

func TestHandleEvent_RenamedMovesItem(t *testing.T) {
	dir := t.TempDir()
	from := filepath.Join(dir, "old.mp4")
	to := filepath.Join(dir, "new.mp4")
	require.NoError(t, os.WriteFile(from, []byte("x"), 0o644))

	ix, _, s := newTestIndexer(t, dir)
	ctx := context.Background()
	ix.handleEvent(ctx, dir, watcher.Event{Kind: watcher.Created, Root: dir, Path: from})

	require.NoError(t, os.Rename(from, to))
	ix.handleEvent(ctx, dir, watcher.Event{Kind: watcher.Renamed, Root: dir, From: from, To: to})

	_, _, err := s.GetByID(ctx, objectid.Item(from))
	require.Error(t, err)

	item, _, err := s.GetByID(ctx, objectid.Item(to))
	require.NoError(t, err)
	require.NotNil(t, item)
}

func TestHandleEvent_ResyncRequiredRescans(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "movie.mp4"), []byte("x"), 0o644))

	ix, _, s := newTestIndexer(t, dir)
	ctx := context.Background()
	ix.handleEvent(ctx, dir, watcher.Event{Kind: watcher.ResyncRequired, Root: dir})

	item, _, err := s.GetByID(ctx, objectid.Item(filepath.Join(dir, "movie.mp4")))
	require.NoError(t, err)
	require.NotNil(t, item)
}

func TestExcluded(t *testing.T) {
	require.True(t, excluded([]string{"*.tmp"}, "/media/a.tmp"))
	require.False(t, excluded([]string{"*.tmp"}, "/media/a.mp4"))
}

func TestAcceptedExtension(t *testing.T) {
	require.True(t, acceptedExtension([]string{"mp4"}, "/media/a.mp4"))
	require.False(t, acceptedExtension([]string{"mp4"}, "/media/a.txt"))
	require.True(t, acceptedExtension(nil, "/media/a.mkv"))
}

func TestStart_DispatchesWatcherEventsToCorrectRoot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "movie.mp4")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	ix, events, s := newTestIndexer(t, dir)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, ix.Start(ctx, 0))
	defer ix.Stop()

	newPath := filepath.Join(dir, "second.mp4")
	require.NoError(t, os.WriteFile(newPath, []byte("y"), 0o644))
	events <- watcher.Event{Kind: watcher.Created, Root: dir, Path: newPath}

	require.Eventually(t, func() bool {
		item, _, err := s.GetByID(ctx, objectid.Item(newPath))
		return err == nil && item != nil
	}, 2*time.Second, 20*time.Millisecond)
}
