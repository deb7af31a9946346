package muninn

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/muninndb/muninn/pkg/storage"
)

// Batcher coalesces bursts of create/update/delete calls into one
// read-modify-write cycle against the backing file.
//
// Every enqueue restarts the debounce timer, so the flush fires only after
// a full quiet window. This is pure debounce with no maximum-wait ceiling:
// a sustained stream of sub-window enqueues defers the flush indefinitely.
// Flush is the explicit durability point for callers that cannot accept
// that deferral.
type Batcher struct {
	store  *storage.FileStore
	window time.Duration
	log    *zap.Logger

	// onFlush runs after a successful flush; the manager hooks cache
	// invalidation here.
	onFlush func()

	mu               sync.Mutex
	pendingEntities  []storage.Entity
	pendingRelations []storage.Relation
	pendingDeletions []string
	timer            *time.Timer
}

// NewBatcher creates a batcher flushing after window of enqueue inactivity.
func NewBatcher(store *storage.FileStore, window time.Duration, log *zap.Logger, onFlush func()) *Batcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Batcher{
		store:   store,
		window:  window,
		log:     log,
		onFlush: onFlush,
	}
}

// QueueEntity schedules an entity upsert (replace-if-name-exists, else
// append) for the next flush.
func (b *Batcher) QueueEntity(e storage.Entity) {
	b.mu.Lock()
	b.pendingEntities = append(b.pendingEntities, storage.CopyEntity(e))
	b.rescheduleLocked()
	b.mu.Unlock()
}

// QueueRelation schedules a relation upsert (replace-if-key-exists, else
// append) for the next flush.
func (b *Batcher) QueueRelation(r storage.Relation) {
	b.mu.Lock()
	b.pendingRelations = append(b.pendingRelations, r)
	b.rescheduleLocked()
	b.mu.Unlock()
}

// QueueDeletion schedules an entity deletion, with relation cascade, for
// the next flush.
func (b *Batcher) QueueDeletion(name string) {
	b.mu.Lock()
	b.pendingDeletions = append(b.pendingDeletions, name)
	b.rescheduleLocked()
	b.mu.Unlock()
}

// Pending reports the queued operation counts, for introspection and tests.
func (b *Batcher) Pending() (entities, relations, deletions int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pendingEntities), len(b.pendingRelations), len(b.pendingDeletions)
}

// Flush cancels any pending timer and flushes queued operations now.
func (b *Batcher) Flush() error {
	_, err := b.flush()
	return err
}

// rescheduleLocked restarts the debounce timer. Caller holds b.mu.
func (b *Batcher) rescheduleLocked() {
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(b.window, func() {
		if flushID, err := b.flush(); err != nil {
			b.log.Warn("debounced batch flush failed",
				zap.String("flush_id", flushID), zap.Error(err))
		}
	})
}

// flush drains the pending lists and applies them in one
// load-modify-save cycle: deletions first (with cascade), then entity
// upserts, then relation upserts. The returned flush ID correlates
// success and failure logs for one cycle; it is empty for a no-op.
func (b *Batcher) flush() (string, error) {
	b.mu.Lock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	entities := b.pendingEntities
	relations := b.pendingRelations
	deletions := b.pendingDeletions
	b.pendingEntities = nil
	b.pendingRelations = nil
	b.pendingDeletions = nil
	b.mu.Unlock()

	if len(entities) == 0 && len(relations) == 0 && len(deletions) == 0 {
		return "", nil
	}

	flushID := uuid.NewString()
	graph, err := b.store.Load()
	if err != nil {
		return flushID, err
	}

	storage.ApplyDeletions(graph, deletions)
	now := time.Now()
	for _, e := range entities {
		if e.UpdatedAt.IsZero() {
			e.UpdatedAt = now
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		if e.Version == 0 {
			e.Version = 1
		}
		storage.UpsertEntity(graph, e)
	}
	for _, r := range relations {
		if r.UpdatedAt.IsZero() {
			r.UpdatedAt = now
		}
		if r.CreatedAt.IsZero() {
			r.CreatedAt = now
		}
		if r.Version == 0 {
			r.Version = 1
		}
		storage.UpsertRelation(graph, r)
	}

	if err := b.store.Save(graph); err != nil {
		return flushID, err
	}

	b.log.Debug("batch flushed",
		zap.String("flush_id", flushID),
		zap.Int("entities", len(entities)),
		zap.Int("relations", len(relations)),
		zap.Int("deletions", len(deletions)))

	if b.onFlush != nil {
		b.onFlush()
	}
	return flushID, nil
}
