package muninn

import (
	"github.com/muninndb/muninn/pkg/storage"
)

// graphIndexes are the five derived lookup structures for one cache entry.
// They are always rebuilt together from the same snapshot and never patched
// incrementally, so they cannot diverge from the snapshot they describe.
// All pointers alias the entry's snapshot; reads must copy before handing
// records to callers.
type graphIndexes struct {
	entityByName    map[string]*storage.Entity
	entitiesByType  map[string][]*storage.Entity
	relationsByFrom map[string][]*storage.Relation
	relationsByTo   map[string][]*storage.Relation
	relationsByType map[string][]*storage.Relation
}

// buildIndexes builds all five indexes in one pass over the snapshot.
// Bucket order follows snapshot order, which keeps unsorted query results
// deterministic.
func buildIndexes(g *storage.KnowledgeGraph) *graphIndexes {
	idx := &graphIndexes{
		entityByName:    make(map[string]*storage.Entity, len(g.Entities)),
		entitiesByType:  make(map[string][]*storage.Entity),
		relationsByFrom: make(map[string][]*storage.Relation),
		relationsByTo:   make(map[string][]*storage.Relation),
		relationsByType: make(map[string][]*storage.Relation),
	}
	for i := range g.Entities {
		e := &g.Entities[i]
		idx.entityByName[e.Name] = e
		idx.entitiesByType[e.EntityType] = append(idx.entitiesByType[e.EntityType], e)
	}
	for i := range g.Relations {
		r := &g.Relations[i]
		idx.relationsByFrom[r.From] = append(idx.relationsByFrom[r.From], r)
		idx.relationsByTo[r.To] = append(idx.relationsByTo[r.To], r)
		idx.relationsByType[r.RelationType] = append(idx.relationsByType[r.RelationType], r)
	}
	return idx
}

// relationsTouching returns the deduplicated union of relations with the
// given name on either side, in from-bucket-then-to-bucket order.
func (idx *graphIndexes) relationsTouching(name string, seen map[storage.RelationKey]struct{}, out []storage.Relation) []storage.Relation {
	for _, r := range idx.relationsByFrom[name] {
		if _, dup := seen[r.Key()]; dup {
			continue
		}
		seen[r.Key()] = struct{}{}
		out = append(out, *r)
	}
	for _, r := range idx.relationsByTo[name] {
		if _, dup := seen[r.Key()]; dup {
			continue
		}
		seen[r.Key()] = struct{}{}
		out = append(out, *r)
	}
	return out
}

// relationBetween returns the first indexed relation connecting a and b in
// either direction, or nil.
func (idx *graphIndexes) relationBetween(a, b string) *storage.Relation {
	for _, r := range idx.relationsByFrom[a] {
		if r.To == b {
			return r
		}
	}
	for _, r := range idx.relationsByFrom[b] {
		if r.To == a {
			return r
		}
	}
	return nil
}
