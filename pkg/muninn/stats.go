package muninn

import (
	"context"
	"time"

	"github.com/muninndb/muninn/pkg/storage"
)

// GetGraphStatistics computes statistics from the cache entry's index
// bucket sizes rather than re-scanning entities and relations. The
// observation average and lastUpdated still walk the entity snapshot once.
func (m *Manager) GetGraphStatistics(ctx context.Context) (*storage.GraphStatistics, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, err := m.entry()
	if err != nil {
		return nil, err
	}

	cacheKey := m.resultKey(e, "stats", "")
	if cached, ok := m.cachedResult(cacheKey); ok {
		return copyStatistics(cached.(*storage.GraphStatistics)), nil
	}

	stats := &storage.GraphStatistics{
		TotalEntities:  len(e.graph.Entities),
		TotalRelations: len(e.graph.Relations),
		EntityTypes:    make(map[string]int, len(e.idx.entitiesByType)),
		RelationTypes:  make(map[string]int, len(e.idx.relationsByType)),
	}
	for entityType, bucket := range e.idx.entitiesByType {
		stats.EntityTypes[entityType] = len(bucket)
	}
	for relationType, bucket := range e.idx.relationsByType {
		stats.RelationTypes[relationType] = len(bucket)
	}

	totalObservations := 0
	for i := range e.graph.Entities {
		ent := &e.graph.Entities[i]
		totalObservations += len(ent.Observations)
		if ent.UpdatedAt.After(stats.LastUpdated) {
			stats.LastUpdated = ent.UpdatedAt
		}
	}
	if stats.TotalEntities > 0 {
		stats.AvgObservationsPerNode = float64(totalObservations) / float64(stats.TotalEntities)
	}

	m.storeResult(cacheKey, copyStatistics(stats))
	return stats, nil
}

// copyStatistics deep-copies the type-count maps so cached statistics stay
// isolated from caller mutation, matching the search result convention.
func copyStatistics(s *storage.GraphStatistics) *storage.GraphStatistics {
	out := *s
	out.EntityTypes = make(map[string]int, len(s.EntityTypes))
	for k, v := range s.EntityTypes {
		out.EntityTypes[k] = v
	}
	out.RelationTypes = make(map[string]int, len(s.RelationTypes))
	for k, v := range s.RelationTypes {
		out.RelationTypes[k] = v
	}
	return &out
}

// ExportGraph wraps the current snapshot in the export envelope.
func (m *Manager) ExportGraph(ctx context.Context) (*storage.ExportedGraph, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, err := m.entry()
	if err != nil {
		return nil, err
	}
	return &storage.ExportedGraph{
		ExportedAt: time.Now(),
		Version:    storage.ExportFormatVersion,
		Graph:      *storage.CopyGraph(e.graph),
	}, nil
}

// ImportGraph validates, persists, and invalidates. A payload missing the
// top-level entities/relations arrays fails with storage.ErrInvalidImport;
// individually malformed records are filtered with a warning.
func (m *Manager) ImportGraph(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.store.ImportGraph(data); err != nil {
		return err
	}
	m.invalidate()
	return nil
}
