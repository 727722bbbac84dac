package coordinator_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duotrack/substrate/internal/oracle"
	"github.com/duotrack/substrate/internal/types"
)

func TestReclassifyRecordForcesReclassificationRegardlessOfCurrentLayer(t *testing.T) {
	c, ds, _, bus := newTestCoordinator(t, oracle.Mock{})
	ctx := context.Background()

	result, err := c.Ingest(ctx, types.RecordDescriptor{NamespaceOrTable: "notes", Content: []byte("already classified")})
	require.NoError(t, err)

	ch, unsubscribe := bus.Subscribe(4)
	defer unsubscribe()

	classification, err := c.ReclassifyRecord(ctx, result.ID)
	require.NoError(t, err)
	assert.NotEqual(t, types.LayerUnknown, classification.Layer)

	stored, err := ds.Get(ctx, result.ID)
	require.NoError(t, err)
	assert.Equal(t, string(classification.Layer), stored.Metadata["layer"])

	select {
	case e := <-ch:
		assert.Equal(t, types.ID(result.ID), e.RecordID)
	default:
		t.Fatal("expected a ClassificationAssigned event from the forced reclassification")
	}
}

func TestReclassifyRecordRejectsAFrozenAxiomCandidate(t *testing.T) {
	c, ds, _, _ := newTestCoordinator(t, oracle.Mock{})
	ctx := context.Background()

	result, err := c.Ingest(ctx, types.RecordDescriptor{NamespaceOrTable: "notes", Content: []byte("frozen")})
	require.NoError(t, err)

	require.NoError(t, ds.UpdateMetadata(ctx, result.ID, types.Metadata{"axiom_candidate": true}))

	_, err = c.ReclassifyRecord(ctx, result.ID)
	require.Error(t, err)
	assert.True(t, types.IsAxiomTampered(err))

	// The rejection must not have touched the frozen metadata.
	stored, err := ds.Get(ctx, result.ID)
	require.NoError(t, err)
	assert.Equal(t, true, stored.Metadata["axiom_candidate"])
}

func TestReclassifySweepSkipsFrozenAxiomCandidatesEvenIfTaggedUnknown(t *testing.T) {
	c, ds, _, _ := newTestCoordinator(t, oracle.Mock{})
	ctx := context.Background()

	id, err := ds.Put(ctx, "notes", []byte("degraded but frozen"), "", types.Metadata{
		"layer":           string(types.LayerUnknown),
		"axiom_candidate": true,
	})
	require.NoError(t, err)

	n, err := c.ReclassifySweep(ctx, "notes")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	stored, err := ds.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, string(types.LayerUnknown), stored.Metadata["layer"])
}
