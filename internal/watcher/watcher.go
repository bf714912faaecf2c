package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/lumin-project/lumin/internal/mediatype"
)

const (
	eventQueueSize  = 4096
	debounceWindow  = 500 * time.Millisecond
	renamePairDelay = 100 * time.Millisecond
)

// Root is one configured watch root.
type Root struct {
	Path            string
	ExcludePatterns []string
	Extensions      []string
}

func (r Root) excluded(path string) bool {
	base := filepath.Base(path)
	for _, pat := range r.ExcludePatterns {
		if ok, _ := filepath.Match(pat, base); ok {
			return true
		}
		if ok, _ := filepath.Match(pat, path); ok {
			return true
		}
	}
	return false
}

func (r Root) acceptedExtension(path string) bool {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if len(r.Extensions) == 0 {
		return mediatype.Recognized(ext)
	}
	for _, e := range r.Extensions {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}

// pendingEvent is the debounce-window state for one path.
type pendingEvent struct {
	kind       EventKind
	root       string
	timer      *time.Timer
	renameFrom string
}

// Watcher watches a set of roots recursively and emits debounced,
// filtered events on Events(). An unbounded queue is forbidden by §4.3, so
// Events is a bounded channel; on overflow the watcher drops everything
// pending and emits a single ResyncRequired for the affected root.
type Watcher struct {
	logger *slog.Logger
	roots  map[string]Root
	fsw    *fsnotify.Watcher

	events chan Event

	mu            sync.Mutex
	pending       map[string]*pendingEvent
	recentDeletes map[string]time.Time // path -> delete time, for rename pairing
}

// New creates a Watcher over roots. Call Start to begin watching; call
// Close to release OS resources.
func New(logger *slog.Logger, roots []Root) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	rootsByPath := make(map[string]Root, len(roots))
	for _, r := range roots {
		rootsByPath[filepath.Clean(r.Path)] = r
	}

	w := &Watcher{
		logger:        logger,
		roots:         rootsByPath,
		fsw:           fsw,
		events:        make(chan Event, eventQueueSize),
		pending:       make(map[string]*pendingEvent),
		recentDeletes: make(map[string]time.Time),
	}
	return w, nil
}

// Events returns the channel events are delivered on. The Indexer must
// drain it promptly; the channel is bounded and the watcher does not block
// forever waiting for a slow consumer (see flush's select-with-default on
// overflow).
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Start arms the underlying fsnotify watches (recursively walking every
// configured root) and begins the event-processing loop. It returns once
// the initial walk completes; the loop itself runs until ctx is canceled.
func (w *Watcher) Start(ctx context.Context) error {
	for rootPath := range w.roots {
		if err := w.addTree(rootPath); err != nil {
			return err
		}
	}
	go w.run(ctx)
	return nil
}

// Close releases the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil //nolint: the path may have vanished mid-walk; skip it
		}
		if d.IsDir() {
			if addErr := w.fsw.Add(path); addErr != nil {
				w.logger.Warn("failed to watch directory", slog.String("path", path), slog.String("error", addErr.Error()))
			}
		}
		return nil
	})
}

func (w *Watcher) rootFor(path string) (string, Root, bool) {
	for rootPath, r := range w.roots {
		if path == rootPath || strings.HasPrefix(path, rootPath+string(filepath.Separator)) {
			return rootPath, r, true
		}
	}
	return "", Root{}, false
}

func (w *Watcher) run(ctx context.Context) {
	defer w.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case fsEvent, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleFsEvent(fsEvent)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("filesystem watcher error, attempting to re-arm", slog.String("error", err.Error()))
			w.emitResyncAll()
		}
	}
}

func (w *Watcher) handleFsEvent(fsEvent fsnotify.Event) {
	path := fsEvent.Name
	rootPath, root, ok := w.rootFor(path)
	if !ok {
		return
	}

	info, statErr := os.Stat(path)
	isDir := statErr == nil && info.IsDir()

	switch {
	case fsEvent.Op&fsnotify.Create != 0:
		if isDir {
			if addErr := w.fsw.Add(path); addErr != nil {
				w.logger.Warn("failed to watch new directory", slog.String("path", path), slog.String("error", addErr.Error()))
			}
			return
		}
		if root.excluded(path) || !root.acceptedExtension(path) {
			return
		}
		if from, ok := w.takeRecentDelete(); ok {
			w.schedule(rootPath, path, Renamed, from)
			return
		}
		w.schedule(rootPath, path, Created, "")

	case fsEvent.Op&fsnotify.Write != 0:
		if isDir || root.excluded(path) || !root.acceptedExtension(path) {
			return
		}
		w.schedule(rootPath, path, Modified, "")

	case fsEvent.Op&fsnotify.Remove != 0, fsEvent.Op&fsnotify.Rename != 0:
		if root.excluded(path) || !root.acceptedExtension(path) {
			return
		}
		w.markRecentDelete(path)
		w.schedule(rootPath, path, Deleted, "")
	}
}

// takeRecentDelete pops the single most recent delete recorded within
// renamePairDelay, used to pair a Remove+Create sequence into a Renamed
// event. fsnotify does not report renames as one atomic event on every
// platform, so this is a best-effort heuristic, not a guarantee.
func (w *Watcher) takeRecentDelete() (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := time.Now().Add(-renamePairDelay)
	var newest string
	var newestAt time.Time
	for path, at := range w.recentDeletes {
		if at.Before(cutoff) {
			delete(w.recentDeletes, path)
			continue
		}
		if at.After(newestAt) {
			newest, newestAt = path, at
		}
	}
	if newest == "" {
		return "", false
	}
	delete(w.recentDeletes, newest)
	return newest, true
}

func (w *Watcher) markRecentDelete(path string) {
	w.mu.Lock()
	w.recentDeletes[path] = time.Now()
	w.mu.Unlock()
}

// schedule applies the debounce coalescing rules in §4.3 and (re)arms a
// timer that flushes the terminal event after debounceWindow of quiet.
func (w *Watcher) schedule(root, path string, kind EventKind, renameFrom string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	existing, ok := w.pending[path]
	if ok {
		existing.timer.Stop()
		existing.kind = coalesce(existing.kind, kind)
		if renameFrom != "" {
			existing.renameFrom = renameFrom
		}
	} else {
		existing = &pendingEvent{kind: kind, root: root, renameFrom: renameFrom}
		w.pending[path] = existing
	}

	existing.timer = time.AfterFunc(debounceWindow, func() { w.flush(path) })
}

// coalesce implements §4.3's collapse rules: Created+Modified -> Created;
// Modified+Deleted -> Deleted. Any other transition takes the newer kind.
func coalesce(prev, next EventKind) EventKind {
	switch {
	case prev == Created && next == Modified:
		return Created
	case prev == Modified && next == Deleted:
		return Deleted
	case prev == Created && next == Deleted:
		return Deleted
	default:
		return next
	}
}

func (w *Watcher) flush(path string) {
	w.mu.Lock()
	pe, ok := w.pending[path]
	if ok {
		delete(w.pending, path)
	}
	w.mu.Unlock()
	if !ok {
		return
	}

	event := Event{Kind: pe.kind, Root: pe.root, Path: path}
	if pe.kind == Renamed {
		event.From = pe.renameFrom
		event.To = path
	}

	select {
	case w.events <- event:
	default:
		w.logger.Warn("event queue overflow, dropping pending events and requesting resync", slog.String("root", pe.root))
		w.drainAndResync(pe.root)
	}
}

// drainAndResync implements §4.3's backpressure rule: on overflow, drop
// every pending event and emit a single ResyncRequired instead of blocking
// the filesystem watcher goroutine.
func (w *Watcher) drainAndResync(root string) {
	w.mu.Lock()
	for path, pe := range w.pending {
		pe.timer.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()

loop:
	for {
		select {
		case <-w.events:
		default:
			break loop
		}
	}

	select {
	case w.events <- Event{Kind: ResyncRequired, Root: root}:
	default:
	}
}

func (w *Watcher) emitResyncAll() {
	for root := range w.roots {
		select {
		case w.events <- Event{Kind: ResyncRequired, Root: root}:
		default:
		}
	}
}
