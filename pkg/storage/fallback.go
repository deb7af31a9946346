package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Uncached query fallbacks. These walk the whole graph on every call and
// exist so the store is usable without the caching layer; pkg/muninn
// provides the index-accelerated variants with identical contracts.

// ReadGraph loads and returns the whole graph.
func (s *FileStore) ReadGraph() (*KnowledgeGraph, error) {
	return s.Load()
}

// EntitySummary returns the entity with its outgoing/incoming relations and
// resolved related entities. Returns (nil, nil) if the entity is absent.
func (s *FileStore) EntitySummary(name string) (*EntitySummary, error) {
	graph, err := s.Load()
	if err != nil {
		return nil, err
	}
	return SummarizeEntity(graph, name), nil
}

// FindPathBetweenEntities returns a shortest path treating every relation
// as traversable in both directions, or nil if either endpoint is absent or
// no path exists.
func (s *FileStore) FindPathBetweenEntities(from, to string) (*PathResult, error) {
	graph, err := s.Load()
	if err != nil {
		return nil, err
	}
	return FindPathInGraph(graph, from, to), nil
}

// GetGraphStatistics computes statistics by scanning the whole graph.
func (s *FileStore) GetGraphStatistics() (*GraphStatistics, error) {
	graph, err := s.Load()
	if err != nil {
		return nil, err
	}
	return StatisticsFor(graph), nil
}

// ExportGraph wraps the current graph in the export envelope.
func (s *FileStore) ExportGraph() (*ExportedGraph, error) {
	graph, err := s.Load()
	if err != nil {
		return nil, err
	}
	return &ExportedGraph{
		ExportedAt: time.Now(),
		Version:    ExportFormatVersion,
		Graph:      *graph,
	}, nil
}

// ImportGraph validates and persists an imported payload, replacing the
// current graph. The payload must carry top-level entities and relations
// arrays (an export envelope with a "graph" wrapper is also accepted);
// anything else returns ErrInvalidImport. Individually malformed records
// are filtered with a warning, never fatally.
func (s *FileStore) ImportGraph(data []byte) error {
	graph, err := s.decodeImport(data)
	if err != nil {
		return err
	}
	return s.Save(graph)
}

func (s *FileStore) decodeImport(data []byte) (*KnowledgeGraph, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImport, err)
	}

	// Accept the export envelope by descending into its graph field.
	if inner, ok := top["graph"]; ok {
		if err := json.Unmarshal(inner, &top); err != nil {
			return nil, fmt.Errorf("%w: graph field: %v", ErrInvalidImport, err)
		}
	}

	rawEntities, ok := top["entities"]
	if !ok {
		return nil, fmt.Errorf("%w: missing entities array", ErrInvalidImport)
	}
	rawRelations, ok := top["relations"]
	if !ok {
		return nil, fmt.Errorf("%w: missing relations array", ErrInvalidImport)
	}

	var entityItems, relationItems []json.RawMessage
	if err := json.Unmarshal(rawEntities, &entityItems); err != nil {
		return nil, fmt.Errorf("%w: entities is not an array", ErrInvalidImport)
	}
	if err := json.Unmarshal(rawRelations, &relationItems); err != nil {
		return nil, fmt.Errorf("%w: relations is not an array", ErrInvalidImport)
	}

	now := time.Now()
	graph := &KnowledgeGraph{Entities: []Entity{}, Relations: []Relation{}}
	for i, raw := range entityItems {
		var e Entity
		if err := json.Unmarshal(raw, &e); err != nil || e.Name == "" {
			s.log.Warn("import: dropping malformed entity record",
				zap.Int("index", i), zap.Error(err))
			continue
		}
		graph.Entities = append(graph.Entities, stampEntity(e, now))
	}
	for i, raw := range relationItems {
		var r Relation
		if err := json.Unmarshal(raw, &r); err != nil || r.From == "" || r.To == "" {
			s.log.Warn("import: dropping malformed relation record",
				zap.Int("index", i), zap.Error(err))
			continue
		}
		graph.Relations = append(graph.Relations, stampRelation(r, now))
	}
	return graph, nil
}

// SummarizeEntity builds an EntitySummary from a loaded graph, or nil if
// the entity is absent. Related entities exclude the entity itself and are
// deduplicated; dangling endpoints that resolve to no entity are skipped.
func SummarizeEntity(g *KnowledgeGraph, name string) *EntitySummary {
	entity := FindEntity(g, name)
	if entity == nil {
		return nil
	}

	summary := &EntitySummary{
		Entity:          CopyEntity(*entity),
		Outgoing:        []Relation{},
		Incoming:        []Relation{},
		RelatedEntities: []Entity{},
	}

	related := map[string]struct{}{}
	addRelated := func(other string) {
		if other == name {
			return
		}
		if _, seen := related[other]; seen {
			return
		}
		if e := FindEntity(g, other); e != nil {
			related[other] = struct{}{}
			summary.RelatedEntities = append(summary.RelatedEntities, CopyEntity(*e))
		}
	}

	for _, r := range g.Relations {
		if r.From == name {
			summary.Outgoing = append(summary.Outgoing, r)
			addRelated(r.To)
		}
		if r.To == name {
			summary.Incoming = append(summary.Incoming, r)
			addRelated(r.From)
		}
	}
	return summary
}

// FindPathInGraph runs breadth-first search over g, treating every relation
// as bidirectional. Returns nil if either endpoint is absent or the nodes
// are disconnected. Ties break in first-discovered order.
func FindPathInGraph(g *KnowledgeGraph, from, to string) *PathResult {
	if FindEntity(g, from) == nil || FindEntity(g, to) == nil {
		return nil
	}
	if from == to {
		return &PathResult{Path: []string{from}, Relations: []Relation{}, Distance: 0}
	}

	adjacency := map[string][]string{}
	for _, r := range g.Relations {
		adjacency[r.From] = append(adjacency[r.From], r.To)
		adjacency[r.To] = append(adjacency[r.To], r.From)
	}

	parent := map[string]string{from: from}
	queue := []string{from}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, next := range adjacency[current] {
			if _, visited := parent[next]; visited {
				continue
			}
			parent[next] = current
			if next == to {
				return buildPath(g, parent, from, to)
			}
			queue = append(queue, next)
		}
	}
	return nil
}

// buildPath walks the BFS parent pointers back from to, then resolves the
// relation traversed per hop by checking either direction.
func buildPath(g *KnowledgeGraph, parent map[string]string, from, to string) *PathResult {
	names := []string{to}
	for current := to; current != from; {
		current = parent[current]
		names = append(names, current)
	}
	// Reverse into from→to order.
	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}

	relations := make([]Relation, 0, len(names)-1)
	for i := 0; i+1 < len(names); i++ {
		if r := relationBetween(g, names[i], names[i+1]); r != nil {
			relations = append(relations, *r)
		}
	}
	return &PathResult{Path: names, Relations: relations, Distance: len(names) - 1}
}

func relationBetween(g *KnowledgeGraph, a, b string) *Relation {
	for i := range g.Relations {
		r := &g.Relations[i]
		if (r.From == a && r.To == b) || (r.From == b && r.To == a) {
			return r
		}
	}
	return nil
}

// StatisticsFor computes statistics for a loaded graph.
func StatisticsFor(g *KnowledgeGraph) *GraphStatistics {
	stats := &GraphStatistics{
		TotalEntities:  len(g.Entities),
		TotalRelations: len(g.Relations),
		EntityTypes:    map[string]int{},
		RelationTypes:  map[string]int{},
	}

	totalObservations := 0
	for i := range g.Entities {
		e := &g.Entities[i]
		stats.EntityTypes[e.EntityType]++
		totalObservations += len(e.Observations)
		if e.UpdatedAt.After(stats.LastUpdated) {
			stats.LastUpdated = e.UpdatedAt
		}
	}
	if len(g.Entities) > 0 {
		stats.AvgObservationsPerNode = float64(totalObservations) / float64(len(g.Entities))
	}
	for i := range g.Relations {
		stats.RelationTypes[g.Relations[i].RelationType]++
	}
	return stats
}
