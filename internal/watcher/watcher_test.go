package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestWatcher(t *testing.T, root Root) *Watcher {
	t.Helper()
	w, err := New(nil, []Root{root})
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func waitForEvent(t *testing.T, w *Watcher) Event {
	t.Helper()
	select {
	case ev := <-w.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestWatcher_EmitsCreatedForNewFile(t *testing.T) {
	dir := t.TempDir()
	w := newTestWatcher(t, Root{Path: dir, Extensions: []string{"mp4"}})

	path := filepath.Join(dir, "movie.mp4")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	ev := waitForEvent(t, w)
	require.Equal(t, Created, ev.Kind)
	require.Equal(t, path, ev.Path)
}

func TestWatcher_IgnoresExcludedPattern(t *testing.T) {
	dir := t.TempDir()
	w := newTestWatcher(t, Root{Path: dir, Extensions: []string{"mp4"}, ExcludePatterns: []string{".*"}})

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden.mp4"), []byte("x"), 0o644))

	select {
	case ev := <-w.Events():
		t.Fatalf("expected no event, got %+v", ev)
	case <-time.After(700 * time.Millisecond):
	}
}

func TestWatcher_IgnoresUnrecognizedExtension(t *testing.T) {
	dir := t.TempDir()
	w := newTestWatcher(t, Root{Path: dir, Extensions: []string{"mp4"}})

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	select {
	case ev := <-w.Events():
		t.Fatalf("expected no event, got %+v", ev)
	case <-time.After(700 * time.Millisecond):
	}
}

func TestWatcher_CoalescesCreateThenWriteIntoCreated(t *testing.T) {
	dir := t.TempDir()
	w := newTestWatcher(t, Root{Path: dir, Extensions: []string{"mp4"}})

	path := filepath.Join(dir, "movie.mp4")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(path, []byte("xx"), 0o644))

	ev := waitForEvent(t, w)
	require.Equal(t, Created, ev.Kind)
	require.Equal(t, path, ev.Path)
}

func TestWatcher_DeleteAfterCreateCoalescesToDeleted(t *testing.T) {
	dir := t.TempDir()
	w := newTestWatcher(t, Root{Path: dir, Extensions: []string{"mp4"}})

	path := filepath.Join(dir, "movie.mp4")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	require.NoError(t, os.Remove(path))

	ev := waitForEvent(t, w)
	require.Equal(t, Deleted, ev.Kind)
	require.Equal(t, path, ev.Path)
}

func TestWatcher_WatchesNewSubdirectory(t *testing.T) {
	dir := t.TempDir()
	w := newTestWatcher(t, Root{Path: dir, Extensions: []string{"mp4"}})

	sub := filepath.Join(dir, "season1")
	require.NoError(t, os.Mkdir(sub, 0o755))
	time.Sleep(100 * time.Millisecond) // let the watcher arm the new subdirectory

	path := filepath.Join(sub, "ep1.mp4")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	ev := waitForEvent(t, w)
	require.Equal(t, Created, ev.Kind)
	require.Equal(t, path, ev.Path)
}

func TestCoalesce(t *testing.T) {
	require.Equal(t, Created, coalesce(Created, Modified))
	require.Equal(t, Deleted, coalesce(Modified, Deleted))
	require.Equal(t, Deleted, coalesce(Created, Deleted))
	require.Equal(t, Modified, coalesce(Deleted, Modified))
}

func TestRootExcluded(t *testing.T) {
	r := Root{Path: "/media", ExcludePatterns: []string{"*.tmp", ".*"}}
	require.True(t, r.excluded("/media/foo.tmp"))
	require.True(t, r.excluded("/media/.hidden"))
	require.False(t, r.excluded("/media/movie.mp4"))
}

func TestRootAcceptedExtension(t *testing.T) {
	r := Root{Path: "/media", Extensions: []string{"mp4", "mkv"}}
	require.True(t, r.acceptedExtension("/media/a.mp4"))
	require.True(t, r.acceptedExtension("/media/a.MKV"))
	require.False(t, r.acceptedExtension("/media/a.txt"))
}
