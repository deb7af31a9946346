// Package muninn provides the cached knowledge-graph manager: the layer
// between callers and the flat-file store that makes queries cheap.
//
// Each backing file path owns at most one cache entry holding a deep-copied
// graph snapshot, the file's modification time at load, and five derived
// indexes (entity-by-name, entities-by-type, relations-by-from,
// relations-by-to, relations-by-type). Reads compare the file's current
// modification time against the entry; a newer or absent file forces a full
// reload and index rebuild. Every write through this layer deletes the
// entry outright; the next read rebuilds from disk. There is no
// incremental index update path, which trades write-then-read latency for
// freedom from index/snapshot divergence bugs.
//
// Capabilities are resolved once at construction via Options: lazy loading,
// full-text search, write batching, and the shared bounded result cache
// each compose a strategy object instead of being checked ad hoc per call.
//
// Example:
//
//	shared := cache.New(cache.Config{})
//	mgr := muninn.Open("./memory.jsonl", muninn.Options{
//		FullTextSearch: true,
//		MemoryBounded:  true,
//		Memory:         shared,
//	})
//
//	created, err := mgr.CreateEntities(ctx, []storage.Entity{
//		{Name: "Alice", EntityType: "Person", Observations: []string{"likes tea"}},
//	})
package muninn

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/muninndb/muninn/pkg/cache"
	"github.com/muninndb/muninn/pkg/search"
	"github.com/muninndb/muninn/pkg/storage"
)

// Errors returned by Manager operations.
var (
	// ErrBatchingDisabled is returned by the Queue* operations when the
	// manager was constructed without WriteBatching.
	ErrBatchingDisabled = errors.New("muninn: write batching not enabled")
)

// DefaultDebounceWindow is the write-batcher flush delay applied when
// Options.DebounceWindow is zero.
const DefaultDebounceWindow = 100 * time.Millisecond

// Options are the capability flags and collaborators resolved once at
// construction.
type Options struct {
	// LazyLoading attaches a LazyLoader for skeletal reads with on-demand
	// observation fetches.
	LazyLoading bool
	// FullTextSearch builds an inverted term index per cache entry and
	// routes SearchNodes through it instead of substring scanning.
	FullTextSearch bool
	// WriteBatching attaches the debounced write batcher behind the
	// Queue* operations.
	WriteBatching bool
	// MemoryBounded caches derived query results (search, statistics) in
	// the shared bounded cache. Requires Memory.
	MemoryBounded bool

	// Memory is the process-wide bounded cache, owned by the composition
	// root and shared across manager instances.
	Memory *cache.Bounded

	// DebounceWindow overrides the batcher's flush delay.
	DebounceWindow time.Duration

	Logger *zap.Logger
}

// cacheEntry is the materialized state for one backing file: the snapshot,
// the file modification time recorded at load, and the derived indexes.
type cacheEntry struct {
	graph        *storage.KnowledgeGraph
	lastModified time.Time
	idx          *graphIndexes
	fulltext     *search.Index
}

// Manager is the cached graph manager. All reads are served from cache
// entries validated by file modification time; all writes go straight to
// the store and invalidate.
//
// The embedding dispatcher is expected to serialize calls; internal locks
// exist only because the batcher's debounce timer fires on its own
// goroutine, not to arbitrate concurrent external writers.
type Manager struct {
	store *storage.FileStore
	log   *zap.Logger

	fullText      bool
	memoryBounded bool
	memory        *cache.Bounded

	mu      sync.RWMutex
	entries map[string]*cacheEntry
	loads   singleflight.Group

	lazy    *storage.LazyLoader
	batcher *Batcher
}

// Open creates a manager for the graph file at path, composing the
// strategies selected in opts.
func Open(path string, opts Options) *Manager {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	m := &Manager{
		store:         storage.NewFileStore(path, log),
		log:           log,
		fullText:      opts.FullTextSearch,
		memoryBounded: opts.MemoryBounded && opts.Memory != nil,
		memory:        opts.Memory,
		entries:       make(map[string]*cacheEntry),
	}
	if opts.LazyLoading {
		m.lazy = storage.NewLazyLoader(m.store, log)
	}
	if opts.WriteBatching {
		window := opts.DebounceWindow
		if window <= 0 {
			window = DefaultDebounceWindow
		}
		m.batcher = NewBatcher(m.store, window, log, m.invalidate)
	}
	return m
}

// Store exposes the underlying file store (the uncached fallback path).
func (m *Manager) Store() *storage.FileStore { return m.store }

// Lazy returns the lazy loader, or nil when the capability is off.
func (m *Manager) Lazy() *storage.LazyLoader { return m.lazy }

// Path returns the backing file path serving as this manager's cache key.
func (m *Manager) Path() string { return m.store.Path() }

// entry returns the current cache entry, reloading when the backing file is
// newer than the recorded modification time or no entry exists. Concurrent
// misses for the same path collapse into one load.
func (m *Manager) entry() (*cacheEntry, error) {
	path := m.store.Path()
	modTime, exists := m.store.ModTime()

	m.mu.RLock()
	e, ok := m.entries[path]
	m.mu.RUnlock()
	if ok && exists && !modTime.After(e.lastModified) {
		return e, nil
	}

	v, err, _ := m.loads.Do(path, func() (any, error) {
		return m.loadEntry(path)
	})
	if err != nil {
		return nil, err
	}
	return v.(*cacheEntry), nil
}

// loadEntry loads the full graph, builds all indexes in one pass, and
// installs the entry. The modification time is taken before the read so a
// write racing the load is detected as stale on the next access rather
// than masked.
func (m *Manager) loadEntry(path string) (*cacheEntry, error) {
	modTime, _ := m.store.ModTime()
	graph, err := m.store.Load()
	if err != nil {
		return nil, err
	}

	snapshot := storage.CopyGraph(graph)
	e := &cacheEntry{
		graph:        snapshot,
		lastModified: modTime,
		idx:          buildIndexes(snapshot),
	}
	if m.fullText {
		ft := search.NewIndex()
		ft.Build(snapshot.Entities)
		e.fulltext = ft
	}

	m.mu.Lock()
	m.entries[path] = e
	m.mu.Unlock()

	m.log.Debug("cache entry rebuilt",
		zap.String("path", path),
		zap.Int("entities", len(snapshot.Entities)),
		zap.Int("relations", len(snapshot.Relations)))
	return e, nil
}

// invalidate deletes the cache entry for this manager's path and drops all
// derived state: the lazy loader's skeleton and any bounded-cache results
// keyed under the path.
func (m *Manager) invalidate() {
	path := m.store.Path()

	m.mu.Lock()
	delete(m.entries, path)
	m.mu.Unlock()

	if m.lazy != nil {
		m.lazy.Invalidate()
	}
	if m.memoryBounded {
		m.memory.DeletePrefix(path + "|")
	}
}

// ReadGraph returns a deep copy of the whole graph through the cache.
func (m *Manager) ReadGraph(ctx context.Context) (*storage.KnowledgeGraph, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, err := m.entry()
	if err != nil {
		return nil, err
	}
	return storage.CopyGraph(e.graph), nil
}

// CreateEntities adds the entities not already present and invalidates.
// Returns only the entities actually added.
func (m *Manager) CreateEntities(ctx context.Context, entities []storage.Entity) ([]storage.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	added, err := m.store.CreateEntities(entities)
	if err != nil {
		return nil, err
	}
	m.invalidate()
	return added, nil
}

// CreateRelations adds the relations not already present and invalidates.
// Endpoints are not validated; dangling references are permitted.
func (m *Manager) CreateRelations(ctx context.Context, relations []storage.Relation) ([]storage.Relation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	added, err := m.store.CreateRelations(relations)
	if err != nil {
		return nil, err
	}
	m.invalidate()
	return added, nil
}

// UpdateEntity replaces an entity whole-record and invalidates.
func (m *Manager) UpdateEntity(ctx context.Context, e storage.Entity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.store.UpdateEntity(e); err != nil {
		return err
	}
	m.invalidate()
	return nil
}

// UpdateRelation replaces a relation whole-record and invalidates.
func (m *Manager) UpdateRelation(ctx context.Context, r storage.Relation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.store.UpdateRelation(r); err != nil {
		return err
	}
	m.invalidate()
	return nil
}

// DeleteEntities removes entities by name, cascades to their relations,
// and invalidates.
func (m *Manager) DeleteEntities(ctx context.Context, names []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.store.DeleteEntities(names); err != nil {
		return err
	}
	m.invalidate()
	return nil
}

// DeleteRelations removes exact relation triples and invalidates.
func (m *Manager) DeleteRelations(ctx context.Context, relations []storage.Relation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.store.DeleteRelations(relations); err != nil {
		return err
	}
	m.invalidate()
	return nil
}

// AddObservations appends observations to an entity and invalidates.
func (m *Manager) AddObservations(ctx context.Context, name string, contents []string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	added, err := m.store.AddObservations(name, contents)
	if err != nil {
		return nil, err
	}
	m.invalidate()
	return added, nil
}

// DeleteObservations removes observations from an entity and invalidates.
func (m *Manager) DeleteObservations(ctx context.Context, name string, contents []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.store.DeleteObservations(name, contents); err != nil {
		return err
	}
	m.invalidate()
	return nil
}

// QueueEntity hands an entity upsert to the write batcher.
func (m *Manager) QueueEntity(e storage.Entity) error {
	if m.batcher == nil {
		return ErrBatchingDisabled
	}
	m.batcher.QueueEntity(e)
	return nil
}

// QueueRelation hands a relation upsert to the write batcher.
func (m *Manager) QueueRelation(r storage.Relation) error {
	if m.batcher == nil {
		return ErrBatchingDisabled
	}
	m.batcher.QueueRelation(r)
	return nil
}

// QueueDeletion hands an entity deletion (with cascade) to the batcher.
func (m *Manager) QueueDeletion(name string) error {
	if m.batcher == nil {
		return ErrBatchingDisabled
	}
	m.batcher.QueueDeletion(name)
	return nil
}

// FlushBatchNow cancels any pending debounce timer and flushes queued
// operations immediately. The durability point for batched writes.
func (m *Manager) FlushBatchNow() error {
	if m.batcher == nil {
		return ErrBatchingDisabled
	}
	return m.batcher.Flush()
}

// Close flushes any pending batched writes.
func (m *Manager) Close() error {
	if m.batcher != nil {
		return m.batcher.Flush()
	}
	return nil
}
