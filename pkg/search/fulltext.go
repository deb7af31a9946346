// Package search provides the full-text index over knowledge-graph
// entities: an inverted term index built from entity names, types, and
// observations, with OR-union lookup and hit-count scoring.
package search

import (
	"sort"
	"strings"

	"github.com/muninndb/muninn/pkg/storage"
)

// minTokenLength: tokens this short or shorter are discarded. Filters
// articles, pronouns and most glue words without a stopword list.
const minTokenLength = 2

// Index is an inverted term index over a fixed set of entities. Build it
// once per graph snapshot; it is never patched incrementally, matching the
// snapshot/index coherence rule of the caching layer.
type Index struct {
	postings map[string]map[string]struct{}
	entities map[string]storage.Entity
	// rank preserves build order for deterministic result ordering and
	// score tie-breaks.
	rank map[string]int
}

// Result pairs an entity with its query score.
type Result struct {
	Entity storage.Entity
	Score  int
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{
		postings: make(map[string]map[string]struct{}),
		entities: make(map[string]storage.Entity),
		rank:     make(map[string]int),
	}
}

// Build replaces the index contents from the given entities. Each entity is
// indexed under every token of its name, type, and observations.
func (idx *Index) Build(entities []storage.Entity) {
	idx.postings = make(map[string]map[string]struct{})
	idx.entities = make(map[string]storage.Entity, len(entities))
	idx.rank = make(map[string]int, len(entities))

	for i, e := range entities {
		idx.entities[e.Name] = storage.CopyEntity(e)
		idx.rank[e.Name] = i

		var sb strings.Builder
		sb.WriteString(e.Name)
		sb.WriteByte(' ')
		sb.WriteString(e.EntityType)
		for _, o := range e.Observations {
			sb.WriteByte(' ')
			sb.WriteString(o)
		}
		for _, term := range Tokenize(sb.String()) {
			set, ok := idx.postings[term]
			if !ok {
				set = make(map[string]struct{})
				idx.postings[term] = set
			}
			set[e.Name] = struct{}{}
		}
	}
}

// Tokenize lowercases, splits on whitespace, and discards tokens of length
// <= 2. Queries and documents must tokenize identically.
func Tokenize(s string) []string {
	fields := strings.Fields(strings.ToLower(s))
	terms := fields[:0]
	for _, f := range fields {
		if len(f) > minTokenLength {
			terms = append(terms, f)
		}
	}
	return terms
}

// Search returns the entities matching any query term (OR semantics),
// ordered by index build order.
func (idx *Index) Search(query string) []storage.Entity {
	matched := map[string]struct{}{}
	for _, term := range Tokenize(query) {
		for name := range idx.postings[term] {
			matched[name] = struct{}{}
		}
	}

	names := make([]string, 0, len(matched))
	for name := range matched {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return idx.rank[names[i]] < idx.rank[names[j]]
	})

	out := make([]storage.Entity, 0, len(names))
	for _, name := range names {
		out = append(out, storage.CopyEntity(idx.entities[name]))
	}
	return out
}

// SearchScored accumulates one point per query-term hit per entity
// (repeated query terms score repeatedly) and returns entities ranked by
// descending score. Ties keep index build order.
func (idx *Index) SearchScored(query string) []Result {
	scores := map[string]int{}
	for _, term := range Tokenize(query) {
		for name := range idx.postings[term] {
			scores[name]++
		}
	}

	results := make([]Result, 0, len(scores))
	for name, score := range scores {
		results = append(results, Result{Entity: storage.CopyEntity(idx.entities[name]), Score: score})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return idx.rank[results[i].Entity.Name] < idx.rank[results[j].Entity.Name]
	})
	return results
}

// Len returns the number of indexed entities.
func (idx *Index) Len() int { return len(idx.entities) }
