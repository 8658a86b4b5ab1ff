package group

import (
	"context"
	"log/slog"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/humangate/humangate/pkg/panicerr"
)

// CachedRepository caches group lookups in memory and invalidates the cache
// when the backing directory changes on disk, so membership edits made by an
// administrator (or another process) reach the assignment resolver without a
// restart. Only meaningful for directory-backed stores; for remote stores use
// the inner repository directly.
type CachedRepository struct {
	inner   Repository
	mu      sync.RWMutex
	cache   map[string]*Group
	watcher *fsnotify.Watcher
}

// NewCachedRepository wraps inner and watches watchDir for changes.
func NewCachedRepository(inner Repository, watchDir string) (*CachedRepository, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(watchDir); err != nil {
		_ = watcher.Close()
		return nil, err
	}
	r := &CachedRepository{
		inner:   inner,
		cache:   make(map[string]*Group),
		watcher: watcher,
	}
	panicerr.Go(r.watch)
	return r, nil
}

func (r *CachedRepository) watch() {
	for {
		select {
		case ev, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				r.invalidateAll()
			}
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("group cache watcher error", "error", err)
		}
	}
}

func (r *CachedRepository) invalidateAll() {
	r.mu.Lock()
	r.cache = make(map[string]*Group)
	r.mu.Unlock()
}

func (r *CachedRepository) invalidate(id string) {
	r.mu.Lock()
	delete(r.cache, id)
	r.mu.Unlock()
}

// Close stops the filesystem watcher.
func (r *CachedRepository) Close() error {
	return r.watcher.Close()
}

func (r *CachedRepository) Get(ctx context.Context, id string) (*Group, error) {
	r.mu.RLock()
	g, ok := r.cache[id]
	r.mu.RUnlock()
	if ok {
		return g, nil
	}
	g, err := r.inner.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.cache[id] = g
	r.mu.Unlock()
	return g, nil
}

func (r *CachedRepository) List(ctx context.Context) ([]*Group, error) {
	return r.inner.List(ctx)
}

func (r *CachedRepository) Create(ctx context.Context, g *Group) error {
	if err := r.inner.Create(ctx, g); err != nil {
		return err
	}
	r.invalidate(g.ID)
	return nil
}

func (r *CachedRepository) Update(ctx context.Context, g *Group) error {
	if err := r.inner.Update(ctx, g); err != nil {
		return err
	}
	r.invalidate(g.ID)
	return nil
}

func (r *CachedRepository) Delete(ctx context.Context, id string) error {
	if err := r.inner.Delete(ctx, id); err != nil {
		return err
	}
	r.invalidate(id)
	return nil
}
