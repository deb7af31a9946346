package muninn

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/muninndb/muninn/pkg/storage"
)

func TestBatcher_FlushFailureCarriesFlushID(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	log := zap.New(core)

	// A directory as the backing path makes Save fail while Load still
	// degrades to an empty graph, so the failure surfaces at write time.
	store := storage.NewFileStore(t.TempDir(), log)
	b := NewBatcher(store, 10*time.Millisecond, log, nil)

	b.QueueEntity(storage.Entity{Name: "Alice", EntityType: "person"})

	require.Eventually(t, func() bool {
		return logs.FilterMessage("debounced batch flush failed").Len() > 0
	}, time.Second, 5*time.Millisecond)

	entry := logs.FilterMessage("debounced batch flush failed").All()[0]
	flushID, ok := entry.ContextMap()["flush_id"].(string)
	require.True(t, ok, "failure log must carry the flush correlation id")
	assert.NotEmpty(t, flushID)
}

func TestBatcher_EmptyFlushIsNoop(t *testing.T) {
	store := storage.NewFileStore(t.TempDir()+"/memory.jsonl", zap.NewNop())
	flushed := 0
	b := NewBatcher(store, time.Hour, zap.NewNop(), func() { flushed++ })

	require.NoError(t, b.Flush())
	assert.Zero(t, flushed, "nothing queued, nothing flushed")
}
