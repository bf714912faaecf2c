// Package indexer mediates between the FileWatcher and the MediaStore: it
// performs the startup scan of every configured root, consumes steady-state
// watcher events, and drives the safety-net reconcile on a cron schedule.
package indexer

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lumin-project/lumin/internal/config"
	"github.com/lumin-project/lumin/internal/coreerr"
	"github.com/lumin-project/lumin/internal/mediatype"
	"github.com/lumin-project/lumin/internal/metadata"
	"github.com/lumin-project/lumin/internal/objectid"
	"github.com/lumin-project/lumin/internal/store"
	"github.com/lumin-project/lumin/internal/watcher"
	"github.com/lumin-project/lumin/pkg/format"
)

// State is one root's position in the per-root state machine:
// Unscanned -> Scanning -> Steady -> Resyncing -> Steady.
type State int

const (
	StateUnscanned State = iota
	StateScanning
	StateSteady
	StateResyncing
)

func (s State) String() string {
	switch s {
	case StateScanning:
		return "scanning"
	case StateSteady:
		return "steady"
	case StateResyncing:
		return "resyncing"
	default:
		return "unscanned"
	}
}

const rootQueueSize = 256

// Indexer owns the per-root worker goroutines that keep MediaStore in sync
// with the filesystem. Events for a given root are always processed in
// arrival order on that root's own worker; different roots make progress
// concurrently.
type Indexer struct {
	logger *slog.Logger
	store  *store.Store
	events <-chan watcher.Event
	roots  map[string]config.MediaDirectory

	cron *cron.Cron

	mu     sync.Mutex
	states map[string]State

	queues map[string]chan watcher.Event
	wg     sync.WaitGroup

	onChange func()
}

// OnChange registers a callback invoked after any successful store mutation
// (upsert, delete, or a scan's final purge). The HTTP layer uses this to
// push a GENA SystemUpdateID notification to subscribed renderers.
func (ix *Indexer) OnChange(fn func()) {
	ix.onChange = fn
}

func (ix *Indexer) notifyChange() {
	if ix.onChange != nil {
		ix.onChange()
	}
}

// New constructs an Indexer over roots, consuming events from the given
// channel (ordinarily a watcher.Watcher's Events()).
func New(logger *slog.Logger, mediaStore *store.Store, events <-chan watcher.Event, roots []config.MediaDirectory) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}

	byPath := make(map[string]config.MediaDirectory, len(roots))
	for _, r := range roots {
		byPath[filepath.Clean(r.Path)] = r
	}

	return &Indexer{
		logger: logger,
		store:  mediaStore,
		events: events,
		roots:  byPath,
		cron:   cron.New(),
		states: make(map[string]State, len(roots)),
		queues: make(map[string]chan watcher.Event, len(roots)),
	}
}

// State reports root's current position in the state machine.
func (ix *Indexer) State(root string) State {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.states[filepath.Clean(root)]
}

func (ix *Indexer) setState(root string, s State) {
	ix.mu.Lock()
	ix.states[filepath.Clean(root)] = s
	ix.mu.Unlock()
}

// Start performs the startup scan of every root, then launches the
// steady-state event consumer and the safety-net reconcile schedule.
// reconcileIntervalMinutes <= 0 disables the scheduled reconcile.
func (ix *Indexer) Start(ctx context.Context, reconcileIntervalMinutes int) error {
	for rootPath := range ix.roots {
		queue := make(chan watcher.Event, rootQueueSize)
		ix.queues[rootPath] = queue

		ix.wg.Add(1)
		go ix.runRoot(ctx, rootPath, queue)
	}

	for rootPath := range ix.roots {
		if err := ix.scanRoot(ctx, rootPath); err != nil {
			return err
		}
	}

	go ix.dispatch(ctx)

	if reconcileIntervalMinutes > 0 {
		spec := "@every " + (time.Duration(reconcileIntervalMinutes) * time.Minute).String()
		if _, err := ix.cron.AddFunc(spec, func() { ix.requestReconcileAll() }); err != nil {
			return err
		}
		ix.cron.Start()
	}

	return nil
}

// Stop stops the reconcile schedule and waits for every root worker to
// drain its queue and exit.
func (ix *Indexer) Stop() {
	ix.cron.Stop()
	for _, q := range ix.queues {
		close(q)
	}
	ix.wg.Wait()
}

// dispatch reads from the shared watcher channel and routes each event to
// its root's own serial queue. Events for a root not configured here are
// dropped (the watcher is expected to only watch configured roots).
func (ix *Indexer) dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ix.events:
			if !ok {
				return
			}
			ix.mu.Lock()
			queue, ok := ix.queues[filepath.Clean(ev.Root)]
			ix.mu.Unlock()
			if !ok {
				continue
			}
			select {
			case queue <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

// runRoot is the single worker for one root: it consumes events from queue
// strictly in order, so Store invariants for that root are never raced.
func (ix *Indexer) runRoot(ctx context.Context, rootPath string, queue chan watcher.Event) {
	defer ix.wg.Done()
	for ev := range queue {
		ix.handleEvent(ctx, rootPath, ev)
	}
}

func (ix *Indexer) handleEvent(ctx context.Context, rootPath string, ev watcher.Event) {
	switch ev.Kind {
	case watcher.Created, watcher.Modified:
		ix.upsertPath(ctx, rootPath, ev.Path)
	case watcher.Deleted:
		ix.deletePath(ctx, ev.Path)
	case watcher.Renamed:
		ix.deletePath(ctx, ev.From)
		ix.upsertPath(ctx, rootPath, ev.To)
	case watcher.ResyncRequired:
		if err := ix.scanRoot(ctx, rootPath); err != nil {
			ix.logger.Error("resync scan failed", slog.String("root", rootPath), slog.String("error", err.Error()))
		}
	}
}

func (ix *Indexer) requestReconcileAll() {
	for rootPath, queue := range ix.queues {
		select {
		case queue <- watcher.Event{Kind: watcher.ResyncRequired, Root: rootPath}:
		default:
			ix.logger.Warn("reconcile queue full, skipping this cycle", slog.String("root", rootPath))
		}
	}
}

func (ix *Indexer) upsertPath(ctx context.Context, rootPath, path string) {
	root, ok := ix.roots[filepath.Clean(rootPath)]
	if !ok {
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		ix.deletePath(ctx, path)
		return
	}

	id := objectid.Item(path)
	existing, _, getErr := ix.store.GetByID(ctx, id)
	if getErr == nil && existing != nil && existing.SizeBytes == info.Size() && existing.Mtime == info.ModTime().Unix() {
		return
	}
	if getErr != nil && !errors.Is(getErr, coreerr.ErrObjectNotFound) {
		ix.logger.Error("lookup failed before upsert", slog.String("path", path), slog.String("error", getErr.Error()))
		return
	}

	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	mime, class, ok := mediatype.Lookup(ext)
	if !ok {
		return
	}

	item := store.MediaItem{
		ObjectID:     id,
		AbsolutePath: path,
		DisplayTitle: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		SizeBytes:    info.Size(),
		Mtime:        info.ModTime().Unix(),
		MimeType:     mime,
		MediaClass:   string(class),
	}

	if _, err := ix.store.UpsertItem(ctx, item, root.Path); err != nil {
		ix.logger.Error("upsert failed", slog.String("path", path), slog.String("error", err.Error()))
		return
	}
	ix.notifyChange()

	if metadata.Candidate(ext) {
		ix.enrichMetadataAsync(root.Path, item)
	}
}

// enrichMetadataAsync runs go-mp4 box parsing off the serial per-root
// worker, since it is purely optional and must never stall ingestion on a
// malformed file. A successful probe is folded back in with a second
// upsert; a failure or timeout leaves duration_seconds/resolution unset.
func (ix *Indexer) enrichMetadataAsync(rootPath string, item store.MediaItem) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), metadata.DefaultTimeout)
		defer cancel()

		info, err := metadata.Extract(ctx, item.AbsolutePath)
		if err != nil || info == nil {
			return
		}

		item.DurationSecs = &info.DurationSeconds
		if info.Resolution != "" {
			item.Resolution = &info.Resolution
		}
		if _, err := ix.store.UpsertItem(context.Background(), item, rootPath); err != nil {
			ix.logger.Debug("metadata enrichment upsert failed", slog.String("path", item.AbsolutePath), slog.String("error", err.Error()))
			return
		}
		ix.notifyChange()
	}()
}

func (ix *Indexer) deletePath(ctx context.Context, path string) {
	n, _, err := ix.store.DeleteByPath(ctx, path)
	if err != nil {
		ix.logger.Error("delete failed", slog.String("path", path), slog.String("error", err.Error()))
		return
	}
	if n > 0 {
		ix.notifyChange()
	}
}

// scanRoot implements the startup/reconcile sequence: walk the tree honoring
// recursive/exclude_patterns/extensions, upsert every candidate whose
// (size, mtime) changed or is new, then purge everything not seen.
func (ix *Indexer) scanRoot(ctx context.Context, rootPath string) error {
	root, ok := ix.roots[filepath.Clean(rootPath)]
	if !ok {
		return nil
	}

	prevState := ix.State(rootPath)
	if prevState == StateSteady {
		ix.setState(rootPath, StateResyncing)
	} else {
		ix.setState(rootPath, StateScanning)
	}
	defer ix.setState(rootPath, StateSteady)

	var kept []string
	var totalBytes int64

	err := filepath.WalkDir(root.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != root.Path && !root.Recursive {
				return filepath.SkipDir
			}
			if excluded(root.ExcludePatterns, path) {
				return filepath.SkipDir
			}
			return nil
		}

		if excluded(root.ExcludePatterns, path) || !acceptedExtension(root.Extensions, path) {
			return nil
		}

		kept = append(kept, path)
		ix.upsertPath(ctx, rootPath, path)
		if info, statErr := d.Info(); statErr == nil {
			totalBytes += info.Size()
		}
		return nil
	})
	if err != nil {
		return err
	}

	n, _, err := ix.store.DeleteMissing(ctx, root.Path, kept)
	if err != nil {
		return err
	}
	if n > 0 {
		ix.notifyChange()
	}

	ix.logger.Info("scan complete",
		slog.String("root", root.Path),
		slog.Int("kept", len(kept)),
		slog.String("total_size", format.Bytes(totalBytes)),
	)
	return nil
}

func excluded(patterns []string, path string) bool {
	base := filepath.Base(path)
	for _, pat := range patterns {
		if ok, _ := filepath.Match(pat, base); ok {
			return true
		}
		if ok, _ := filepath.Match(pat, path); ok {
			return true
		}
	}
	return false
}

func acceptedExtension(extensions []string, path string) bool {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if len(extensions) == 0 {
		return mediatype.Recognized(ext)
	}
	for _, e := range extensions {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}
