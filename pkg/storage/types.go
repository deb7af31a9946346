// Package storage provides the flat-file persistence layer for Muninn.
//
// A knowledge graph is persisted as a line-delimited JSON record file: one
// record per non-blank line, each tagged with a "type" discriminator of
// either "entity" or "relation". The package offers:
//   - FileStore: load/save plus keyed create/update/delete operations and
//     linear-scan query fallbacks
//   - LazyLoader: skeletal loads with on-demand observation backfill
//
// All reads return deep copies. Callers must never mutate a returned graph
// in place.
package storage

import (
	"errors"
	"time"
)

// Errors returned by storage operations.
var (
	// ErrNotFound indicates the named entity or relation does not exist.
	ErrNotFound = errors.New("storage: not found")
	// ErrInvalidData indicates a nil or structurally unusable argument.
	ErrInvalidData = errors.New("storage: invalid data")
	// ErrInvalidImport indicates an import payload whose top-level shape is
	// wrong (entities/relations missing or not arrays).
	ErrInvalidImport = errors.New("storage: invalid import payload")
)

// Entity is a named node with a type and an ordered list of free-text
// observations. Names are unique within a graph and act as the key.
type Entity struct {
	Name         string    `json:"name"`
	EntityType   string    `json:"entityType"`
	Observations []string  `json:"observations"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	Version      int64     `json:"version"`
}

// Relation is a directed, typed edge between two entities. The
// (From, To, RelationType) triple is unique within a graph.
//
// Creating a relation does not require its endpoints to exist; deleting an
// entity cascades to every relation referencing it on either side.
type Relation struct {
	From         string    `json:"from"`
	To           string    `json:"to"`
	RelationType string    `json:"relationType"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	Version      int64     `json:"version"`
}

// RelationKey identifies a relation by its unique triple.
type RelationKey struct {
	From string
	To   string
	Type string
}

// Key returns the relation's identifying triple.
func (r Relation) Key() RelationKey {
	return RelationKey{From: r.From, To: r.To, Type: r.RelationType}
}

// KnowledgeGraph is the entity/relation aggregate for one backing file.
type KnowledgeGraph struct {
	Entities  []Entity   `json:"entities"`
	Relations []Relation `json:"relations"`
}

// ExportedGraph wraps a graph snapshot for export/import.
type ExportedGraph struct {
	ExportedAt time.Time      `json:"exportedAt"`
	Version    string         `json:"version"`
	Graph      KnowledgeGraph `json:"graph"`
}

// ExportFormatVersion is the version stamped into export wrappers.
const ExportFormatVersion = "1.0"

// EntitySummary describes one entity together with its immediate
// neighborhood: outgoing and incoming relations, and the resolved related
// entities (deduplicated, never including the entity itself).
type EntitySummary struct {
	Entity          Entity     `json:"entity"`
	Outgoing        []Relation `json:"outgoing"`
	Incoming        []Relation `json:"incoming"`
	RelatedEntities []Entity   `json:"relatedEntities"`
}

// PathResult is a shortest path between two entities. Path holds the node
// names in order, Relations the record traversed per hop, and Distance the
// hop count (len(Path)-1).
type PathResult struct {
	Path      []string   `json:"path"`
	Relations []Relation `json:"relations"`
	Distance  int        `json:"distance"`
}

// GraphStatistics summarizes a graph: totals, per-type breakdowns, the
// average observation count per entity, and the most recent entity update.
type GraphStatistics struct {
	TotalEntities          int            `json:"totalEntities"`
	TotalRelations         int            `json:"totalRelations"`
	EntityTypes            map[string]int `json:"entityTypes"`
	RelationTypes          map[string]int `json:"relationTypes"`
	AvgObservationsPerNode float64        `json:"avgObservationsPerEntity"`
	LastUpdated            time.Time      `json:"lastUpdated"`
}

// CopyEntity returns a deep copy of e.
func CopyEntity(e Entity) Entity {
	copied := e
	copied.Observations = make([]string, len(e.Observations))
	copy(copied.Observations, e.Observations)
	return copied
}

// CopyGraph returns a deep copy of g. A nil graph copies to an empty graph.
func CopyGraph(g *KnowledgeGraph) *KnowledgeGraph {
	if g == nil {
		return &KnowledgeGraph{Entities: []Entity{}, Relations: []Relation{}}
	}
	copied := &KnowledgeGraph{
		Entities:  make([]Entity, 0, len(g.Entities)),
		Relations: make([]Relation, 0, len(g.Relations)),
	}
	for _, e := range g.Entities {
		copied.Entities = append(copied.Entities, CopyEntity(e))
	}
	// Relations contain no reference types; value copy is a deep copy.
	copied.Relations = append(copied.Relations, g.Relations...)
	return copied
}

// stampEntity fills defaulted bookkeeping fields on a new entity.
func stampEntity(e Entity, now time.Time) Entity {
	if e.Observations == nil {
		e.Observations = []string{}
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = now
	}
	if e.Version == 0 {
		e.Version = 1
	}
	return e
}

// stampRelation fills defaulted bookkeeping fields on a new relation.
func stampRelation(r Relation, now time.Time) Relation {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = now
	}
	if r.Version == 0 {
		r.Version = 1
	}
	return r
}
