package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
)

// Record type discriminators used in the backing file.
const (
	recordTypeEntity   = "entity"
	recordTypeRelation = "relation"
)

// entityRecord and relationRecord are the on-disk line formats; the "type"
// field is the discriminator a reader probes before full decoding.
type entityRecord struct {
	Type         string    `json:"type"`
	Name         string    `json:"name"`
	EntityType   string    `json:"entityType"`
	Observations []string  `json:"observations"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	Version      int64     `json:"version"`
}

type relationRecord struct {
	Type         string    `json:"type"`
	From         string    `json:"from"`
	To           string    `json:"to"`
	RelationType string    `json:"relationType"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	Version      int64     `json:"version"`
}

// FileStore persists one knowledge graph in a line-delimited JSON record
// file. It performs no caching; every operation is a full read (and, for
// mutations, a full rewrite). The cached layer in pkg/muninn sits on top.
type FileStore struct {
	path string
	log  *zap.Logger
}

// NewFileStore creates a store backed by the file at path. The file does
// not need to exist; loading a missing file yields an empty graph.
func NewFileStore(path string, log *zap.Logger) *FileStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &FileStore{path: path, log: log}
}

// Path returns the backing file path. It is the cache key upstream.
func (s *FileStore) Path() string { return s.path }

// ModTime returns the backing file's current modification time.
// A missing file reports ok=false.
func (s *FileStore) ModTime() (time.Time, bool) {
	info, err := os.Stat(s.path)
	if err != nil {
		return time.Time{}, false
	}
	return info.ModTime(), true
}

// Load parses the backing file into a graph. Malformed lines are skipped
// with a warning and never abort the load. A missing file, or any other
// read failure, degrades to an empty graph: availability over strictness.
func (s *FileStore) Load() (*KnowledgeGraph, error) {
	graph := &KnowledgeGraph{Entities: []Entity{}, Relations: []Relation{}}

	f, err := os.Open(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("graph file unreadable, treating as empty",
				zap.String("path", s.path), zap.Error(err))
		}
		return graph, nil
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		entity, relation, err := decodeRecord(line)
		switch {
		case err != nil:
			s.log.Warn("skipping malformed record",
				zap.String("path", s.path), zap.Int("line", lineNo), zap.Error(err))
		case entity != nil:
			graph.Entities = append(graph.Entities, *entity)
		case relation != nil:
			graph.Relations = append(graph.Relations, *relation)
		}
	}
	if err := scanner.Err(); err != nil {
		s.log.Warn("graph file read interrupted, returning partial graph",
			zap.String("path", s.path), zap.Error(err))
	}
	return graph, nil
}

// Save serializes the graph, entities first, then relations, one record
// per line, overwriting the file. The write is not atomic: a crash
// mid-write can leave a truncated file. Implementations needing crash
// safety can switch to a temp-file-plus-rename without changing callers.
func (s *FileStore) Save(g *KnowledgeGraph) error {
	if g == nil {
		return ErrInvalidData
	}

	f, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("create %s: %w", s.path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for i := range g.Entities {
		if err := writeLine(w, newEntityRecord(g.Entities[i])); err != nil {
			return fmt.Errorf("write entity %q: %w", g.Entities[i].Name, err)
		}
	}
	for i := range g.Relations {
		if err := writeLine(w, newRelationRecord(g.Relations[i])); err != nil {
			return fmt.Errorf("write relation %v: %w", g.Relations[i].Key(), err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush %s: %w", s.path, err)
	}
	return f.Close()
}

// CreateEntities adds entities that are not already present, keyed by name.
// Existing entities are never overwritten. Timestamps and version default
// when unset. Returns only the entities actually added.
func (s *FileStore) CreateEntities(entities []Entity) ([]Entity, error) {
	graph, err := s.Load()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	existing := make(map[string]struct{}, len(graph.Entities))
	for i := range graph.Entities {
		existing[graph.Entities[i].Name] = struct{}{}
	}

	added := []Entity{}
	for _, e := range entities {
		if e.Name == "" {
			continue
		}
		if _, ok := existing[e.Name]; ok {
			continue
		}
		stamped := stampEntity(CopyEntity(e), now)
		graph.Entities = append(graph.Entities, stamped)
		existing[e.Name] = struct{}{}
		added = append(added, stamped)
	}

	if len(added) == 0 {
		return added, nil
	}
	if err := s.Save(graph); err != nil {
		return nil, err
	}
	return added, nil
}

// CreateRelations adds relations that are not already present, keyed by the
// (from, to, relationType) triple. Endpoint existence is not checked;
// dangling references are permitted. Returns only the relations
// actually added.
func (s *FileStore) CreateRelations(relations []Relation) ([]Relation, error) {
	graph, err := s.Load()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	existing := make(map[RelationKey]struct{}, len(graph.Relations))
	for i := range graph.Relations {
		existing[graph.Relations[i].Key()] = struct{}{}
	}

	added := []Relation{}
	for _, r := range relations {
		if r.From == "" || r.To == "" {
			continue
		}
		if _, ok := existing[r.Key()]; ok {
			continue
		}
		stamped := stampRelation(r, now)
		graph.Relations = append(graph.Relations, stamped)
		existing[stamped.Key()] = struct{}{}
		added = append(added, stamped)
	}

	if len(added) == 0 {
		return added, nil
	}
	if err := s.Save(graph); err != nil {
		return nil, err
	}
	return added, nil
}

// UpdateEntity replaces the entity with the same name. The whole record is
// overwritten; there is no field merge. Returns ErrNotFound if absent.
func (s *FileStore) UpdateEntity(e Entity) error {
	graph, err := s.Load()
	if err != nil {
		return err
	}
	if FindEntity(graph, e.Name) == nil {
		return fmt.Errorf("update entity %q: %w", e.Name, ErrNotFound)
	}
	e.UpdatedAt = time.Now()
	UpsertEntity(graph, stampEntity(CopyEntity(e), e.UpdatedAt))
	return s.Save(graph)
}

// UpdateRelation replaces the relation with the same key triple.
// Returns ErrNotFound if absent.
func (s *FileStore) UpdateRelation(r Relation) error {
	graph, err := s.Load()
	if err != nil {
		return err
	}
	if !HasRelation(graph, r.Key()) {
		return fmt.Errorf("update relation %v: %w", r.Key(), ErrNotFound)
	}
	r.UpdatedAt = time.Now()
	UpsertRelation(graph, stampRelation(r, r.UpdatedAt))
	return s.Save(graph)
}

// DeleteEntities removes entities by name and cascades to every relation
// referencing a deleted name on either side. Unknown names are ignored.
func (s *FileStore) DeleteEntities(names []string) error {
	graph, err := s.Load()
	if err != nil {
		return err
	}
	ApplyDeletions(graph, names)
	return s.Save(graph)
}

// DeleteRelations removes relations matching the given key triples exactly.
// Unknown triples are ignored.
func (s *FileStore) DeleteRelations(relations []Relation) error {
	graph, err := s.Load()
	if err != nil {
		return err
	}

	doomed := make(map[RelationKey]struct{}, len(relations))
	for _, r := range relations {
		doomed[r.Key()] = struct{}{}
	}
	kept := graph.Relations[:0]
	for _, r := range graph.Relations {
		if _, gone := doomed[r.Key()]; gone {
			continue
		}
		kept = append(kept, r)
	}
	graph.Relations = kept
	return s.Save(graph)
}

// AddObservations appends observations to the named entity, skipping any
// it already holds. Returns the observations actually added, and
// ErrNotFound if the entity does not exist.
func (s *FileStore) AddObservations(name string, contents []string) ([]string, error) {
	graph, err := s.Load()
	if err != nil {
		return nil, err
	}
	entity := FindEntity(graph, name)
	if entity == nil {
		return nil, fmt.Errorf("add observations to %q: %w", name, ErrNotFound)
	}

	have := make(map[string]struct{}, len(entity.Observations))
	for _, o := range entity.Observations {
		have[o] = struct{}{}
	}
	added := []string{}
	for _, o := range contents {
		if _, ok := have[o]; ok {
			continue
		}
		entity.Observations = append(entity.Observations, o)
		have[o] = struct{}{}
		added = append(added, o)
	}

	if len(added) == 0 {
		return added, nil
	}
	entity.UpdatedAt = time.Now()
	entity.Version++
	if err := s.Save(graph); err != nil {
		return nil, err
	}
	return added, nil
}

// DeleteObservations removes the given observations from the named entity.
// Observations the entity does not hold are ignored. Returns ErrNotFound if
// the entity does not exist.
func (s *FileStore) DeleteObservations(name string, contents []string) error {
	graph, err := s.Load()
	if err != nil {
		return err
	}
	entity := FindEntity(graph, name)
	if entity == nil {
		return fmt.Errorf("delete observations from %q: %w", name, ErrNotFound)
	}

	doomed := make(map[string]struct{}, len(contents))
	for _, o := range contents {
		doomed[o] = struct{}{}
	}
	kept := entity.Observations[:0]
	for _, o := range entity.Observations {
		if _, gone := doomed[o]; gone {
			continue
		}
		kept = append(kept, o)
	}
	entity.Observations = kept
	entity.UpdatedAt = time.Now()
	entity.Version++
	return s.Save(graph)
}

// decodeRecord parses one line. Exactly one of the returns is non-nil on
// success; an unknown or malformed record is an error.
func decodeRecord(line []byte) (*Entity, *Relation, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(line, &probe); err != nil {
		return nil, nil, err
	}
	switch probe.Type {
	case recordTypeEntity:
		var rec entityRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, nil, err
		}
		if rec.Name == "" {
			return nil, nil, fmt.Errorf("entity record missing name")
		}
		obs := rec.Observations
		if obs == nil {
			obs = []string{}
		}
		return &Entity{
			Name:         rec.Name,
			EntityType:   rec.EntityType,
			Observations: obs,
			CreatedAt:    rec.CreatedAt,
			UpdatedAt:    rec.UpdatedAt,
			Version:      rec.Version,
		}, nil, nil
	case recordTypeRelation:
		var rec relationRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, nil, err
		}
		if rec.From == "" || rec.To == "" {
			return nil, nil, fmt.Errorf("relation record missing endpoint")
		}
		return nil, &Relation{
			From:         rec.From,
			To:           rec.To,
			RelationType: rec.RelationType,
			CreatedAt:    rec.CreatedAt,
			UpdatedAt:    rec.UpdatedAt,
			Version:      rec.Version,
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown record type %q", probe.Type)
	}
}

func writeLine(w *bufio.Writer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.Write(b); err != nil {
		return err
	}
	return w.WriteByte('\n')
}

func newEntityRecord(e Entity) entityRecord {
	obs := e.Observations
	if obs == nil {
		obs = []string{}
	}
	return entityRecord{
		Type:         recordTypeEntity,
		Name:         e.Name,
		EntityType:   e.EntityType,
		Observations: obs,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
		Version:      e.Version,
	}
}

func newRelationRecord(r Relation) relationRecord {
	return relationRecord{
		Type:         recordTypeRelation,
		From:         r.From,
		To:           r.To,
		RelationType: r.RelationType,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
		Version:      r.Version,
	}
}
