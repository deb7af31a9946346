package muninn

import (
	"context"

	"github.com/muninndb/muninn/pkg/storage"
)

// FindShortestPath runs breadth-first search between two entities, treating
// every relation as traversable in both directions. Returns (nil, nil) when
// either endpoint is absent from the name index or no path exists. Ties
// break in first-discovered order; the result carries the node-name path,
// the relation record traversed per hop (matched in either direction), and
// the hop count as distance.
func (m *Manager) FindShortestPath(ctx context.Context, from, to string) (*storage.PathResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, err := m.entry()
	if err != nil {
		return nil, err
	}

	idx := e.idx
	if _, ok := idx.entityByName[from]; !ok {
		return nil, nil
	}
	if _, ok := idx.entityByName[to]; !ok {
		return nil, nil
	}
	if from == to {
		return &storage.PathResult{Path: []string{from}, Relations: []storage.Relation{}, Distance: 0}, nil
	}

	// Adjacency in snapshot order, every edge usable both ways. Iterating
	// the relations slice rather than an index map keeps neighbor order,
	// and therefore tie-breaks, identical across calls on the same entry.
	adjacency := make(map[string][]string, len(idx.entityByName))
	for i := range e.graph.Relations {
		r := &e.graph.Relations[i]
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
				return m.buildPathResult(idx, parent, from, to), nil
			}
			queue = append(queue, next)
		}
	}
	return nil, nil
}

func (m *Manager) buildPathResult(idx *graphIndexes, parent map[string]string, from, to string) *storage.PathResult {
	names := []string{to}
	for current := to; current != from; {
		current = parent[current]
		names = append(names, current)
	}
	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}

	relations := make([]storage.Relation, 0, len(names)-1)
	for i := 0; i+1 < len(names); i++ {
		if r := idx.relationBetween(names[i], names[i+1]); r != nil {
			relations = append(relations, *r)
		}
	}
	return &storage.PathResult{Path: names, Relations: relations, Distance: len(names) - 1}
}
