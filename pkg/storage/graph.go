package storage

// In-memory graph mutation helpers. FileStore and the write batcher share
// these so cascade and upsert semantics have exactly one implementation.

// FindEntity returns a pointer into g for the named entity, or nil.
func FindEntity(g *KnowledgeGraph, name string) *Entity {
	for i := range g.Entities {
		if g.Entities[i].Name == name {
			return &g.Entities[i]
		}
	}
	return nil
}

// HasRelation reports whether g contains a relation with the given key.
func HasRelation(g *KnowledgeGraph, key RelationKey) bool {
	for i := range g.Relations {
		if g.Relations[i].Key() == key {
			return true
		}
	}
	return false
}

// UpsertEntity replaces the entity with the same name, or appends.
func UpsertEntity(g *KnowledgeGraph, e Entity) {
	for i := range g.Entities {
		if g.Entities[i].Name == e.Name {
			g.Entities[i] = e
			return
		}
	}
	g.Entities = append(g.Entities, e)
}

// UpsertRelation replaces the relation with the same key, or appends.
func UpsertRelation(g *KnowledgeGraph, r Relation) {
	for i := range g.Relations {
		if g.Relations[i].Key() == r.Key() {
			g.Relations[i] = r
			return
		}
	}
	g.Relations = append(g.Relations, r)
}

// ApplyDeletions removes the named entities from g and cascades to every
// relation referencing a requested name on either side. Unknown names are
// ignored for entities but still cascade, so dangling relations to a name
// are cleaned up by deleting that name. Returns how many entities were
// removed.
func ApplyDeletions(g *KnowledgeGraph, names []string) int {
	if len(names) == 0 {
		return 0
	}
	doomed := make(map[string]struct{}, len(names))
	for _, name := range names {
		doomed[name] = struct{}{}
	}

	kept := g.Entities[:0]
	removed := 0
	for _, e := range g.Entities {
		if _, gone := doomed[e.Name]; gone {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	g.Entities = kept

	keptRels := g.Relations[:0]
	for _, r := range g.Relations {
		if _, gone := doomed[r.From]; gone {
			continue
		}
		if _, gone := doomed[r.To]; gone {
			continue
		}
		keptRels = append(keptRels, r)
	}
	g.Relations = keptRels
	return removed
}
