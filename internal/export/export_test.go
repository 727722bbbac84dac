package export_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	datummem "github.com/duotrack/substrate/internal/datum/memory"
	"github.com/duotrack/substrate/internal/eventbus"
	"github.com/duotrack/substrate/internal/export"
	"github.com/duotrack/substrate/internal/types"
)

func TestEdgeLogRecordsOnlyEdgeAddedEvents(t *testing.T) {
	log := export.NewEdgeLog()
	ctx := context.Background()

	require.NoError(t, log.Handle(ctx, &eventbus.Event{
		Type:      eventbus.EventEdgeAdded,
		Namespace: "ns1",
		Edge:      &types.Edge{ID: "e1", SourceID: "a", TargetID: "b", Kind: types.EdgeContradicts},
	}))
	require.NoError(t, log.Handle(ctx, &eventbus.Event{
		Type:      eventbus.EventDatumInserted,
		Namespace: "ns1",
	}))

	edges := log.Edges("ns1")
	require.Len(t, edges, 1)
	assert.Equal(t, types.ID("e1"), edges[0].Edge.ID)
}

func TestEdgeLogEdgesFiltersByNamespace(t *testing.T) {
	log := export.NewEdgeLog()
	ctx := context.Background()

	require.NoError(t, log.Handle(ctx, &eventbus.Event{
		Type: eventbus.EventEdgeAdded, Namespace: "ns1",
		Edge: &types.Edge{ID: "e1", CreatedAt: time.Unix(1, 0)},
	}))
	require.NoError(t, log.Handle(ctx, &eventbus.Event{
		Type: eventbus.EventEdgeAdded, Namespace: "ns2",
		Edge: &types.Edge{ID: "e2", CreatedAt: time.Unix(2, 0)},
	}))

	assert.Len(t, log.Edges("ns1"), 1)
	assert.Len(t, log.Edges("ns2"), 1)
	assert.Len(t, log.Edges(""), 2)
}

func TestDumpEdgesWritesValidYAML(t *testing.T) {
	log := export.NewEdgeLog()
	require.NoError(t, log.Handle(context.Background(), &eventbus.Event{
		Type: eventbus.EventEdgeAdded, Namespace: "ns1",
		Edge: &types.Edge{ID: "e1", SourceID: "a", TargetID: "b", Kind: types.EdgeContradicts},
	}))

	var buf bytes.Buffer
	require.NoError(t, export.DumpEdges(&buf, log, "ns1"))

	var decoded []map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "ns1", decoded[0]["namespace"])
}

func TestExportAppendLogWritesEveryDatumInNamespace(t *testing.T) {
	store := datummem.New()
	ctx := context.Background()
	_, err := store.Put(ctx, "ns1", []byte("hello"), "", nil)
	require.NoError(t, err)
	_, err = store.Put(ctx, "ns1", []byte("world"), "", nil)
	require.NoError(t, err)
	_, err = store.Put(ctx, "ns2", []byte("other"), "", nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, export.ExportAppendLog(ctx, store, "ns1", &buf))

	var decoded []map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "hello", decoded[0]["content"])
	assert.Equal(t, "world", decoded[1]["content"])
}
