package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	return NewFileStore(filepath.Join(t.TempDir(), "memory.jsonl"), nil)
}

func TestNewFileStore(t *testing.T) {
	store := NewFileStore("/tmp/graph.jsonl", nil)
	require.NotNil(t, store)
	assert.Equal(t, "/tmp/graph.jsonl", store.Path())
}

func TestFileStore_LoadMissingFile(t *testing.T) {
	store := newTestStore(t)

	graph, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, graph)
	assert.Empty(t, graph.Entities)
	assert.Empty(t, graph.Relations)

	_, exists := store.ModTime()
	assert.False(t, exists)
}

func TestFileStore_SaveLoadRoundtrip(t *testing.T) {
	store := newTestStore(t)

	graph := &KnowledgeGraph{
		Entities: []Entity{
			{Name: "Alice", EntityType: "person", Observations: []string{"likes tea"}},
			{Name: "Bob", EntityType: "person", Observations: []string{}},
		},
		Relations: []Relation{
			{From: "Alice", To: "Bob", RelationType: "knows"},
		},
	}
	require.NoError(t, store.Save(graph))

	loaded, err := store.Load()
	require.NoError(t, err)
	require.Len(t, loaded.Entities, 2)
	require.Len(t, loaded.Relations, 1)
	assert.Equal(t, "Alice", loaded.Entities[0].Name)
	assert.Equal(t, []string{"likes tea"}, loaded.Entities[0].Observations)
	assert.Equal(t, "knows", loaded.Relations[0].RelationType)

	_, exists := store.ModTime()
	assert.True(t, exists)
}

func TestFileStore_LoadSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.jsonl")
	lines := `{"type":"entity","name":"Alice","entityType":"person","observations":[]}
this is not json
{"type":"entity","name":"Bob","entityType":"person","observations":[]}
{"type":"unknown","what":"is this"}
{"type":"relation","from":"Alice","to":"Bob","relationType":"knows"}
`
	require.NoError(t, os.WriteFile(path, []byte(lines), 0o644))

	store := NewFileStore(path, nil)
	graph, err := store.Load()
	require.NoError(t, err)
	assert.Len(t, graph.Entities, 2)
	assert.Len(t, graph.Relations, 1)
}

func TestFileStore_LoadSkipsBlankLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.jsonl")
	lines := "\n{\"type\":\"entity\",\"name\":\"Alice\",\"entityType\":\"person\",\"observations\":[]}\n\n"
	require.NoError(t, os.WriteFile(path, []byte(lines), 0o644))

	store := NewFileStore(path, nil)
	graph, err := store.Load()
	require.NoError(t, err)
	assert.Len(t, graph.Entities, 1)
}

func TestFileStore_CreateEntities(t *testing.T) {
	t.Run("adds new entities with stamps", func(t *testing.T) {
		store := newTestStore(t)

		added, err := store.CreateEntities([]Entity{
			{Name: "Alice", EntityType: "person"},
		})
		require.NoError(t, err)
		require.Len(t, added, 1)
		assert.False(t, added[0].CreatedAt.IsZero())
		assert.False(t, added[0].UpdatedAt.IsZero())
		assert.Equal(t, int64(1), added[0].Version)
		assert.NotNil(t, added[0].Observations)
	})

	t.Run("skips existing names", func(t *testing.T) {
		store := newTestStore(t)
		_, err := store.CreateEntities([]Entity{{Name: "Alice", EntityType: "person"}})
		require.NoError(t, err)

		added, err := store.CreateEntities([]Entity{
			{Name: "Alice", EntityType: "robot"},
			{Name: "Bob", EntityType: "person"},
		})
		require.NoError(t, err)
		require.Len(t, added, 1)
		assert.Equal(t, "Bob", added[0].Name)

		graph, err := store.Load()
		require.NoError(t, err)
		ent := FindEntity(graph, "Alice")
		require.NotNil(t, ent)
		assert.Equal(t, "person", ent.EntityType, "existing entity must not be overwritten")
	})

	t.Run("duplicate within one batch", func(t *testing.T) {
		store := newTestStore(t)
		added, err := store.CreateEntities([]Entity{
			{Name: "Alice", EntityType: "person"},
			{Name: "Alice", EntityType: "robot"},
		})
		require.NoError(t, err)
		assert.Len(t, added, 1)
	})
}

func TestFileStore_CreateRelations(t *testing.T) {
	t.Run("adds and skips duplicates", func(t *testing.T) {
		store := newTestStore(t)
		added, err := store.CreateRelations([]Relation{
			{From: "Alice", To: "Bob", RelationType: "knows"},
			{From: "Alice", To: "Bob", RelationType: "knows"},
			{From: "Alice", To: "Bob", RelationType: "manages"},
		})
		require.NoError(t, err)
		assert.Len(t, added, 2)
	})

	t.Run("dangling endpoints permitted", func(t *testing.T) {
		store := newTestStore(t)
		added, err := store.CreateRelations([]Relation{
			{From: "Ghost", To: "Nobody", RelationType: "haunts"},
		})
		require.NoError(t, err)
		assert.Len(t, added, 1)
	})
}

func TestFileStore_UpdateEntity(t *testing.T) {
	store := newTestStore(t)
	_, err := store.CreateEntities([]Entity{{Name: "Alice", EntityType: "person"}})
	require.NoError(t, err)

	t.Run("replaces whole record", func(t *testing.T) {
		err := store.UpdateEntity(Entity{
			Name:         "Alice",
			EntityType:   "engineer",
			Observations: []string{"writes Go"},
		})
		require.NoError(t, err)

		graph, err := store.Load()
		require.NoError(t, err)
		ent := FindEntity(graph, "Alice")
		require.NotNil(t, ent)
		assert.Equal(t, "engineer", ent.EntityType)
		assert.Equal(t, []string{"writes Go"}, ent.Observations)
	})

	t.Run("missing entity", func(t *testing.T) {
		err := store.UpdateEntity(Entity{Name: "Nobody", EntityType: "ghost"})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestFileStore_UpdateRelation(t *testing.T) {
	store := newTestStore(t)
	_, err := store.CreateRelations([]Relation{{From: "Alice", To: "Bob", RelationType: "knows"}})
	require.NoError(t, err)

	t.Run("replaces by triple", func(t *testing.T) {
		err := store.UpdateRelation(Relation{From: "Alice", To: "Bob", RelationType: "knows", Version: 7})
		require.NoError(t, err)
	})

	t.Run("missing relation", func(t *testing.T) {
		err := store.UpdateRelation(Relation{From: "Alice", To: "Bob", RelationType: "hates"})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestFileStore_DeleteEntities(t *testing.T) {
	t.Run("cascades to relations on both sides", func(t *testing.T) {
		store := newTestStore(t)
		_, err := store.CreateEntities([]Entity{
			{Name: "Alice", EntityType: "person"},
			{Name: "Bob", EntityType: "person"},
			{Name: "Carol", EntityType: "person"},
		})
		require.NoError(t, err)
		_, err = store.CreateRelations([]Relation{
			{From: "Alice", To: "Bob", RelationType: "knows"},
			{From: "Carol", To: "Alice", RelationType: "manages"},
			{From: "Bob", To: "Carol", RelationType: "knows"},
		})
		require.NoError(t, err)

		require.NoError(t, store.DeleteEntities([]string{"Alice"}))

		graph, err := store.Load()
		require.NoError(t, err)
		assert.Len(t, graph.Entities, 2)
		require.Len(t, graph.Relations, 1)
		assert.Equal(t, "Bob", graph.Relations[0].From)
	})

	t.Run("unknown names ignored", func(t *testing.T) {
		store := newTestStore(t)
		_, err := store.CreateEntities([]Entity{{Name: "Alice", EntityType: "person"}})
		require.NoError(t, err)

		require.NoError(t, store.DeleteEntities([]string{"Nobody"}))

		graph, err := store.Load()
		require.NoError(t, err)
		assert.Len(t, graph.Entities, 1)
	})

	t.Run("cascades dangling relations for absent entity", func(t *testing.T) {
		store := newTestStore(t)
		_, err := store.CreateRelations([]Relation{
			{From: "Ghost", To: "Nobody", RelationType: "haunts"},
		})
		require.NoError(t, err)

		require.NoError(t, store.DeleteEntities([]string{"Ghost"}))

		graph, err := store.Load()
		require.NoError(t, err)
		assert.Empty(t, graph.Relations)
	})
}

func TestFileStore_DeleteRelations(t *testing.T) {
	store := newTestStore(t)
	_, err := store.CreateRelations([]Relation{
		{From: "Alice", To: "Bob", RelationType: "knows"},
		{From: "Alice", To: "Bob", RelationType: "manages"},
	})
	require.NoError(t, err)

	require.NoError(t, store.DeleteRelations([]Relation{
		{From: "Alice", To: "Bob", RelationType: "knows"},
		{From: "Never", To: "Existed", RelationType: "nope"},
	}))

	graph, err := store.Load()
	require.NoError(t, err)
	require.Len(t, graph.Relations, 1)
	assert.Equal(t, "manages", graph.Relations[0].RelationType)
}

func TestFileStore_AddObservations(t *testing.T) {
	store := newTestStore(t)
	_, err := store.CreateEntities([]Entity{
		{Name: "Alice", EntityType: "person", Observations: []string{"likes tea"}},
	})
	require.NoError(t, err)

	t.Run("appends and dedupes", func(t *testing.T) {
		added, err := store.AddObservations("Alice", []string{"likes tea", "writes Go", "writes Go"})
		require.NoError(t, err)
		assert.Equal(t, []string{"writes Go"}, added)

		graph, err := store.Load()
		require.NoError(t, err)
		ent := FindEntity(graph, "Alice")
		require.NotNil(t, ent)
		assert.Equal(t, []string{"likes tea", "writes Go"}, ent.Observations)
	})

	t.Run("missing entity", func(t *testing.T) {
		_, err := store.AddObservations("Nobody", []string{"anything"})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestFileStore_DeleteObservations(t *testing.T) {
	store := newTestStore(t)
	_, err := store.CreateEntities([]Entity{
		{Name: "Alice", EntityType: "person", Observations: []string{"likes tea", "writes Go"}},
	})
	require.NoError(t, err)

	require.NoError(t, store.DeleteObservations("Alice", []string{"likes tea", "not present"}))

	graph, err := store.Load()
	require.NoError(t, err)
	ent := FindEntity(graph, "Alice")
	require.NotNil(t, ent)
	assert.Equal(t, []string{"writes Go"}, ent.Observations)
}

func TestFileStore_EntityObservations(t *testing.T) {
	store := newTestStore(t)
	_, err := store.CreateEntities([]Entity{
		{Name: "Alice", EntityType: "person", Observations: []string{"likes tea"}},
	})
	require.NoError(t, err)

	t.Run("found", func(t *testing.T) {
		obs, err := store.EntityObservations("Alice")
		require.NoError(t, err)
		assert.Equal(t, []string{"likes tea"}, obs)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := store.EntityObservations("Nobody")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestFileStore_ImportGraph(t *testing.T) {
	t.Run("plain payload", func(t *testing.T) {
		store := newTestStore(t)
		payload := `{
			"entities": [{"name":"Alice","entityType":"person","observations":["likes tea"]}],
			"relations": [{"from":"Alice","to":"Bob","relationType":"knows"}]
		}`
		require.NoError(t, store.ImportGraph([]byte(payload)))

		graph, err := store.Load()
		require.NoError(t, err)
		assert.Len(t, graph.Entities, 1)
		assert.Len(t, graph.Relations, 1)
	})

	t.Run("export envelope", func(t *testing.T) {
		store := newTestStore(t)
		payload := `{
			"exportedAt": "2026-01-01T00:00:00Z",
			"version": "1.0",
			"graph": {
				"entities": [{"name":"Alice","entityType":"person","observations":[]}],
				"relations": []
			}
		}`
		require.NoError(t, store.ImportGraph([]byte(payload)))

		graph, err := store.Load()
		require.NoError(t, err)
		assert.Len(t, graph.Entities, 1)
	})

	t.Run("missing arrays rejected", func(t *testing.T) {
		store := newTestStore(t)
		err := store.ImportGraph([]byte(`{"entities": []}`))
		assert.ErrorIs(t, err, ErrInvalidImport)
	})

	t.Run("not json rejected", func(t *testing.T) {
		store := newTestStore(t)
		err := store.ImportGraph([]byte(`not json at all`))
		assert.ErrorIs(t, err, ErrInvalidImport)
	})

	t.Run("malformed records filtered", func(t *testing.T) {
		store := newTestStore(t)
		payload := `{
			"entities": [
				{"name":"Alice","entityType":"person","observations":[]},
				{"name": 42}
			],
			"relations": [
				{"from":"Alice","to":"Bob","relationType":"knows"},
				"not an object"
			]
		}`
		require.NoError(t, store.ImportGraph([]byte(payload)))

		graph, err := store.Load()
		require.NoError(t, err)
		assert.Len(t, graph.Entities, 1)
		assert.Len(t, graph.Relations, 1)
	})
}

func TestFileStore_Fallbacks(t *testing.T) {
	store := newTestStore(t)
	_, err := store.CreateEntities([]Entity{
		{Name: "Alice", EntityType: "person", Observations: []string{"likes tea", "writes Go"}},
		{Name: "Bob", EntityType: "person"},
		{Name: "Carol", EntityType: "manager"},
	})
	require.NoError(t, err)
	_, err = store.CreateRelations([]Relation{
		{From: "Alice", To: "Bob", RelationType: "knows"},
		{From: "Carol", To: "Alice", RelationType: "manages"},
	})
	require.NoError(t, err)

	t.Run("ReadGraph", func(t *testing.T) {
		graph, err := store.ReadGraph()
		require.NoError(t, err)
		assert.Len(t, graph.Entities, 3)
		assert.Len(t, graph.Relations, 2)
	})

	t.Run("EntitySummary", func(t *testing.T) {
		summary, err := store.EntitySummary("Alice")
		require.NoError(t, err)
		require.NotNil(t, summary)
		assert.Len(t, summary.Outgoing, 1)
		assert.Len(t, summary.Incoming, 1)
		assert.Len(t, summary.RelatedEntities, 2)
	})

	t.Run("EntitySummary absent entity", func(t *testing.T) {
		summary, err := store.EntitySummary("Nobody")
		require.NoError(t, err)
		assert.Nil(t, summary)
	})

	t.Run("FindPathBetweenEntities", func(t *testing.T) {
		result, err := store.FindPathBetweenEntities("Bob", "Carol")
		require.NoError(t, err)
		require.NotNil(t, result)
		assert.Equal(t, []string{"Bob", "Alice", "Carol"}, result.Path)
		assert.Equal(t, 2, result.Distance)
	})

	t.Run("GetGraphStatistics", func(t *testing.T) {
		stats, err := store.GetGraphStatistics()
		require.NoError(t, err)
		assert.Equal(t, 3, stats.TotalEntities)
		assert.Equal(t, 2, stats.TotalRelations)
		assert.Equal(t, 2, stats.EntityTypes["person"])
		assert.Equal(t, 1, stats.EntityTypes["manager"])
		assert.InDelta(t, 2.0/3.0, stats.AvgObservationsPerNode, 1e-9)
	})

	t.Run("ExportGraph", func(t *testing.T) {
		exported, err := store.ExportGraph()
		require.NoError(t, err)
		assert.Equal(t, ExportFormatVersion, exported.Version)
		assert.False(t, exported.ExportedAt.IsZero())
		assert.Len(t, exported.Graph.Entities, 3)

		// The envelope round-trips through ImportGraph.
		payload, err := json.Marshal(exported)
		require.NoError(t, err)
		require.NoError(t, store.ImportGraph(payload))
	})
}

func TestApplyDeletions(t *testing.T) {
	graph := &KnowledgeGraph{
		Entities: []Entity{
			{Name: "Alice"}, {Name: "Bob"},
		},
		Relations: []Relation{
			{From: "Alice", To: "Bob", RelationType: "knows"},
			{From: "Bob", To: "Alice", RelationType: "knows"},
		},
	}

	removed := ApplyDeletions(graph, []string{"Alice"})
	assert.Equal(t, 1, removed)
	assert.Len(t, graph.Entities, 1)
	assert.Empty(t, graph.Relations)
}

func TestCopyGraphIsolation(t *testing.T) {
	t.Run("nil graph", func(t *testing.T) {
		copied := CopyGraph(nil)
		require.NotNil(t, copied)
		assert.Empty(t, copied.Entities)
	})

	t.Run("mutating the copy leaves the original intact", func(t *testing.T) {
		original := &KnowledgeGraph{
			Entities: []Entity{
				{Name: "Alice", EntityType: "person", Observations: []string{"likes tea"}},
			},
			Relations: []Relation{
				{From: "Alice", To: "Bob", RelationType: "knows"},
			},
		}

		copied := CopyGraph(original)
		copied.Entities[0].Observations[0] = "mutated"
		copied.Entities[0].Name = "Mallory"
		copied.Relations[0].From = "Mallory"

		assert.Equal(t, "Alice", original.Entities[0].Name)
		assert.Equal(t, "likes tea", original.Entities[0].Observations[0])
		assert.Equal(t, "Alice", original.Relations[0].From)
	})
}

func TestLazyLoader(t *testing.T) {
	store := newTestStore(t)
	_, err := store.CreateEntities([]Entity{
		{Name: "Alice", EntityType: "person", Observations: []string{"likes tea", "writes Go"}},
		{Name: "Bob", EntityType: "person", Observations: []string{"plays chess"}},
	})
	require.NoError(t, err)

	loader := NewLazyLoader(store, nil)

	t.Run("skeletal load omits observations", func(t *testing.T) {
		graph, err := loader.LoadGraphLazy()
		require.NoError(t, err)
		require.Len(t, graph.Entities, 2)
		for _, e := range graph.Entities {
			assert.Empty(t, e.Observations)
			assert.NotEmpty(t, e.Name)
			assert.NotEmpty(t, e.EntityType)
		}
	})

	t.Run("observations fetched on demand", func(t *testing.T) {
		obs, err := loader.LoadObservationsOnDemand("Alice")
		require.NoError(t, err)
		assert.Equal(t, []string{"likes tea", "writes Go"}, obs)

		// Second fetch is served from the hydrated cache.
		obs, err = loader.LoadObservationsOnDemand("Alice")
		require.NoError(t, err)
		assert.Equal(t, []string{"likes tea", "writes Go"}, obs)
	})

	t.Run("missing entity", func(t *testing.T) {
		_, err := loader.LoadObservationsOnDemand("Nobody")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("invalidate drops the skeleton", func(t *testing.T) {
		loader.Invalidate()
		_, err := store.CreateEntities([]Entity{{Name: "Carol", EntityType: "person"}})
		require.NoError(t, err)

		graph, err := loader.LoadGraphLazy()
		require.NoError(t, err)
		assert.Len(t, graph.Entities, 3)
	})
}

func TestStampEntityDefaults(t *testing.T) {
	now := time.Now()
	e := stampEntity(Entity{Name: "Alice", EntityType: "person"}, now)

	assert.Equal(t, now, e.CreatedAt)
	assert.Equal(t, now, e.UpdatedAt)
	assert.Equal(t, int64(1), e.Version)
	assert.NotNil(t, e.Observations)

	// Pre-set fields survive stamping.
	fixed := now.Add(-time.Hour)
	e2 := stampEntity(Entity{Name: "Bob", EntityType: "person", CreatedAt: fixed, Version: 3}, now)
	assert.Equal(t, fixed, e2.CreatedAt)
	assert.Equal(t, int64(3), e2.Version)
}
