package muninn

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/muninndb/muninn/pkg/storage"
)

// DefaultSearchLimit is applied when SearchOptions.Limit is zero.
const DefaultSearchLimit = 50

// Sort keys accepted by SearchOptions.SortBy. An empty SortBy preserves
// match order (snapshot order, or relevance order under full-text search).
const (
	SortByName      = "name"
	SortByType      = "type"
	SortByCreatedAt = "createdAt"
	SortByUpdatedAt = "updatedAt"
)

// Sort directions accepted by SearchOptions.SortOrder.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// SearchOptions control pagination and ordering of entity queries.
type SearchOptions struct {
	Limit     int    `json:"limit"`
	Offset    int    `json:"offset"`
	SortBy    string `json:"sortBy"`
	SortOrder string `json:"sortOrder"`
}

// SearchResult is a page of matched entities, the deduplicated union of
// relations touching any matched entity (pre-pagination), and the
// pre-pagination total match count.
type SearchResult struct {
	Entities  []storage.Entity   `json:"entities"`
	Relations []storage.Relation `json:"relations"`
	Total     int                `json:"total"`
}

// SearchNodes matches entities whose name, type, or any observation
// contains the query case-insensitively, or, with full-text search
// enabled, entities matching any query term. An empty query matches
// everything. Results are stably sorted and paginated per opts.
func (m *Manager) SearchNodes(ctx context.Context, query string, opts SearchOptions) (*SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, err := m.entry()
	if err != nil {
		return nil, err
	}

	cacheKey := m.resultKey(e, "search", fmt.Sprintf("%s|%d|%d|%s|%s",
		query, opts.Limit, opts.Offset, opts.SortBy, opts.SortOrder))
	if cached, ok := m.cachedResult(cacheKey); ok {
		return copySearchResult(cached.(*SearchResult)), nil
	}

	var matched []storage.Entity
	if e.fulltext != nil && query != "" {
		matched = e.fulltext.Search(query)
	} else {
		needle := strings.ToLower(query)
		for i := range e.graph.Entities {
			if entityMatches(&e.graph.Entities[i], needle) {
				matched = append(matched, storage.CopyEntity(e.graph.Entities[i]))
			}
		}
	}

	result := m.finishEntityQuery(e, matched, opts)
	m.storeResult(cacheKey, copySearchResult(result))
	return result, nil
}

// SearchByType returns the entities of exactly the given type via the type
// index, with the same sorting, pagination, and relation union as
// SearchNodes.
func (m *Manager) SearchByType(ctx context.Context, entityType string, opts SearchOptions) (*SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, err := m.entry()
	if err != nil {
		return nil, err
	}

	cacheKey := m.resultKey(e, "bytype", fmt.Sprintf("%s|%d|%d|%s|%s",
		entityType, opts.Limit, opts.Offset, opts.SortBy, opts.SortOrder))
	if cached, ok := m.cachedResult(cacheKey); ok {
		return copySearchResult(cached.(*SearchResult)), nil
	}

	bucket := e.idx.entitiesByType[entityType]
	matched := make([]storage.Entity, 0, len(bucket))
	for _, ent := range bucket {
		matched = append(matched, storage.CopyEntity(*ent))
	}

	result := m.finishEntityQuery(e, matched, opts)
	m.storeResult(cacheKey, copySearchResult(result))
	return result, nil
}

// OpenNodes resolves the requested names through the name index. Unmatched
// names are silently omitted, duplicates collapse, and the relative order
// of results versus the input list is unspecified. Relations are included
// when both endpoints are among the opened entities.
func (m *Manager) OpenNodes(ctx context.Context, names []string) (*storage.KnowledgeGraph, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, err := m.entry()
	if err != nil {
		return nil, err
	}

	opened := map[string]struct{}{}
	graph := &storage.KnowledgeGraph{Entities: []storage.Entity{}, Relations: []storage.Relation{}}
	for _, name := range names {
		if _, dup := opened[name]; dup {
			continue
		}
		ent, ok := e.idx.entityByName[name]
		if !ok {
			continue
		}
		opened[name] = struct{}{}
		graph.Entities = append(graph.Entities, storage.CopyEntity(*ent))
	}

	seen := map[storage.RelationKey]struct{}{}
	for name := range opened {
		for _, r := range e.idx.relationsByFrom[name] {
			if _, ok := opened[r.To]; !ok {
				continue
			}
			if _, dup := seen[r.Key()]; dup {
				continue
			}
			seen[r.Key()] = struct{}{}
			graph.Relations = append(graph.Relations, *r)
		}
	}
	return graph, nil
}

// GetEntitySummary returns the entity with its outgoing/incoming relations
// and resolved related entities, all via index lookups. Returns (nil, nil)
// when the entity is absent.
func (m *Manager) GetEntitySummary(ctx context.Context, name string) (*storage.EntitySummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, err := m.entry()
	if err != nil {
		return nil, err
	}

	ent, ok := e.idx.entityByName[name]
	if !ok {
		return nil, nil
	}

	summary := &storage.EntitySummary{
		Entity:          storage.CopyEntity(*ent),
		Outgoing:        []storage.Relation{},
		Incoming:        []storage.Relation{},
		RelatedEntities: []storage.Entity{},
	}

	related := map[string]struct{}{}
	addRelated := func(other string) {
		if other == name {
			return
		}
		if _, dup := related[other]; dup {
			return
		}
		if rel, ok := e.idx.entityByName[other]; ok {
			related[other] = struct{}{}
			summary.RelatedEntities = append(summary.RelatedEntities, storage.CopyEntity(*rel))
		}
	}

	for _, r := range e.idx.relationsByFrom[name] {
		summary.Outgoing = append(summary.Outgoing, *r)
		addRelated(r.To)
	}
	for _, r := range e.idx.relationsByTo[name] {
		summary.Incoming = append(summary.Incoming, *r)
		addRelated(r.From)
	}
	return summary, nil
}

// copySearchResult deep-copies a result page. The bounded cache holds its
// own copy and every hit returns one, so a caller mutating what it received
// never corrupts what later callers see.
func copySearchResult(r *SearchResult) *SearchResult {
	out := &SearchResult{
		Entities:  make([]storage.Entity, 0, len(r.Entities)),
		Relations: make([]storage.Relation, len(r.Relations)),
		Total:     r.Total,
	}
	for i := range r.Entities {
		out.Entities = append(out.Entities, storage.CopyEntity(r.Entities[i]))
	}
	copy(out.Relations, r.Relations)
	return out
}

// finishEntityQuery applies stable sorting and pagination, and collects the
// deduplicated relation union for the full (pre-pagination) match set.
func (m *Manager) finishEntityQuery(e *cacheEntry, matched []storage.Entity, opts SearchOptions) *SearchResult {
	sortEntities(matched, opts.SortBy, opts.SortOrder)

	seen := map[storage.RelationKey]struct{}{}
	relations := []storage.Relation{}
	for i := range matched {
		relations = e.idx.relationsTouching(matched[i].Name, seen, relations)
	}

	total := len(matched)
	page := paginate(matched, opts.Offset, opts.Limit)

	return &SearchResult{Entities: page, Relations: relations, Total: total}
}

func entityMatches(e *storage.Entity, needle string) bool {
	if needle == "" {
		return true
	}
	if strings.Contains(strings.ToLower(e.Name), needle) {
		return true
	}
	if strings.Contains(strings.ToLower(e.EntityType), needle) {
		return true
	}
	for _, o := range e.Observations {
		if strings.Contains(strings.ToLower(o), needle) {
			return true
		}
	}
	return false
}

// sortEntities sorts stably in place. An empty sortBy leaves match order
// untouched; ties always preserve prior order.
func sortEntities(entities []storage.Entity, sortBy, sortOrder string) {
	if sortBy == "" {
		return
	}
	desc := sortOrder == SortDesc

	less := func(a, b *storage.Entity) bool {
		switch sortBy {
		case SortByType:
			return a.EntityType < b.EntityType
		case SortByCreatedAt:
			return a.CreatedAt.Before(b.CreatedAt)
		case SortByUpdatedAt:
			return a.UpdatedAt.Before(b.UpdatedAt)
		default:
			return a.Name < b.Name
		}
	}
	sort.SliceStable(entities, func(i, j int) bool {
		if desc {
			return less(&entities[j], &entities[i])
		}
		return less(&entities[i], &entities[j])
	})
}

// paginate slices out [offset, offset+limit), clamped to the data. A zero
// limit applies DefaultSearchLimit.
func paginate(entities []storage.Entity, offset, limit int) []storage.Entity {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(entities) {
		return []storage.Entity{}
	}
	end := offset + limit
	if end > len(entities) {
		end = len(entities)
	}
	return entities[offset:end]
}

// resultKey builds a bounded-cache key scoped by path and snapshot
// modification time, so stale results age out naturally after external
// file changes.
func (m *Manager) resultKey(e *cacheEntry, op, args string) string {
	if !m.memoryBounded {
		return ""
	}
	return fmt.Sprintf("%s|%s|%d|%s", m.store.Path(), op, e.lastModified.UnixNano(), args)
}

func (m *Manager) cachedResult(key string) (any, bool) {
	if !m.memoryBounded || key == "" {
		return nil, false
	}
	return m.memory.Get(key)
}

func (m *Manager) storeResult(key string, value any) {
	if !m.memoryBounded || key == "" {
		return
	}
	m.memory.Set(key, value)
}
