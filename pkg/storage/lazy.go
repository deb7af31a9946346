package storage

import (
	"bufio"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
)

// LazyLoader loads a skeletal graph (entities without their observations)
// and fetches observations per entity on demand. The bulk load stays cheap
// because no large observation arrays are retained; the price is one full
// unindexed file scan per on-demand fetch. That trade holds when existence
// and metadata are read far more often than observation bodies.
type LazyLoader struct {
	store *FileStore
	log   *zap.Logger

	mu        sync.Mutex
	entities  map[string]*Entity
	relations []Relation
	hydrated  map[string]struct{}
}

// NewLazyLoader creates a lazy loader over the given store.
func NewLazyLoader(store *FileStore, log *zap.Logger) *LazyLoader {
	if log == nil {
		log = zap.NewNop()
	}
	return &LazyLoader{
		store:    store,
		log:      log,
		entities: make(map[string]*Entity),
		hydrated: make(map[string]struct{}),
	}
}

// LoadGraphLazy parses the backing file but leaves every entity's
// observations as an empty placeholder, caching the skeletal entities by
// name. The returned graph is a deep copy of the skeleton.
func (l *LazyLoader) LoadGraphLazy() (*KnowledgeGraph, error) {
	graph, err := l.store.Load()
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.entities = make(map[string]*Entity, len(graph.Entities))
	l.hydrated = make(map[string]struct{})
	l.relations = graph.Relations
	for i := range graph.Entities {
		skeletal := graph.Entities[i]
		skeletal.Observations = []string{}
		l.entities[skeletal.Name] = &skeletal
	}
	l.mu.Unlock()

	return l.snapshot(), nil
}

// LoadObservationsOnDemand performs a targeted scan for one entity's
// observations, backfills the cached skeletal entity, and returns the
// observations. Returns ErrNotFound for an unknown entity.
func (l *LazyLoader) LoadObservationsOnDemand(name string) ([]string, error) {
	l.mu.Lock()
	if entity, ok := l.entities[name]; ok {
		if _, done := l.hydrated[name]; done {
			obs := make([]string, len(entity.Observations))
			copy(obs, entity.Observations)
			l.mu.Unlock()
			return obs, nil
		}
	}
	l.mu.Unlock()

	observations, err := l.store.EntityObservations(name)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	if entity, ok := l.entities[name]; ok {
		entity.Observations = observations
		l.hydrated[name] = struct{}{}
	}
	l.mu.Unlock()

	out := make([]string, len(observations))
	copy(out, observations)
	return out, nil
}

// Entity returns a deep copy of the cached entity, if present. Observations
// are only populated after LoadObservationsOnDemand for that name.
func (l *LazyLoader) Entity(name string) (Entity, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entity, ok := l.entities[name]
	if !ok {
		return Entity{}, false
	}
	return CopyEntity(*entity), true
}

// Invalidate drops the cached skeleton so the next LoadGraphLazy rebuilds
// it from disk. Call after any write to the backing file.
func (l *LazyLoader) Invalidate() {
	l.mu.Lock()
	l.entities = make(map[string]*Entity)
	l.hydrated = make(map[string]struct{})
	l.relations = nil
	l.mu.Unlock()
}

func (l *LazyLoader) snapshot() *KnowledgeGraph {
	l.mu.Lock()
	defer l.mu.Unlock()
	graph := &KnowledgeGraph{
		Entities:  make([]Entity, 0, len(l.entities)),
		Relations: make([]Relation, 0, len(l.relations)),
	}
	for _, e := range l.entities {
		graph.Entities = append(graph.Entities, CopyEntity(*e))
	}
	graph.Relations = append(graph.Relations, l.relations...)
	return graph
}

// EntityObservations scans the backing file for a single entity's
// observations without materializing the rest of the graph. Returns
// ErrNotFound if no entity record with that name exists.
func (s *FileStore) EntityObservations(name string) ([]string, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("entity %q: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("open %s: %w", s.path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		entity, _, err := decodeRecord(line)
		if err != nil || entity == nil {
			continue
		}
		if entity.Name == name {
			return entity.Observations, nil
		}
	}
	if err := scanner.Err(); err != nil {
		s.log.Warn("observation scan interrupted",
			zap.String("path", s.path), zap.String("entity", name), zap.Error(err))
	}
	return nil, fmt.Errorf("entity %q: %w", name, ErrNotFound)
}
