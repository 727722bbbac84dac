package bridge_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/duotrack/substrate/internal/bridge"
	"github.com/duotrack/substrate/internal/schema"
	"github.com/duotrack/substrate/internal/schema/memory"
	"github.com/duotrack/substrate/internal/types"
)

func agentsTable() schema.Table {
	return schema.Table{
		Name:       "agents",
		PrimaryKey: "id",
		Columns: []types.Column{
			{Name: "id"},
			{Name: "name"},
		},
	}
}

func jsonSerializer(values map[string]types.Scalar) ([]byte, error) {
	return json.Marshal(values)
}

func jsonDeserializer(content []byte) (map[string]types.Scalar, error) {
	var values map[string]types.Scalar
	if err := json.Unmarshal(content, &values); err != nil {
		return nil, err
	}
	return values, nil
}

func TestBridgeRoundTripIsObservationallyEqualModuloMetadata(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.RegisterTable(ctx, agentsTable()))

	adapter := bridge.NewTableAdapter(store, agentsTable(), jsonSerializer, jsonDeserializer)

	payload, err := jsonSerializer(map[string]types.Scalar{"id": "a1", "name": "Ada"})
	require.NoError(t, err)

	id, err := adapter.Put(ctx, "agents", payload, "", nil)
	require.NoError(t, err)
	require.Equal(t, types.ID("a1"), id)

	d, err := adapter.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "schema-track", d.Metadata["source"])

	gotValues, err := jsonDeserializer(d.Content)
	require.NoError(t, err)
	require.Equal(t, "Ada", gotValues["name"])
}

func TestBridgeCarriesCausalParent(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.RegisterTable(ctx, agentsTable()))
	adapter := bridge.NewTableAdapter(store, agentsTable(), jsonSerializer, jsonDeserializer)

	p1, _ := jsonSerializer(map[string]types.Scalar{"id": "a1", "name": "Ada"})
	parent, err := adapter.Put(ctx, "agents", p1, "", nil)
	require.NoError(t, err)

	p2, _ := jsonSerializer(map[string]types.Scalar{"id": "a2", "name": "Grace"})
	child, err := adapter.Put(ctx, "agents", p2, parent, nil)
	require.NoError(t, err)

	chain, err := adapter.Parents(ctx, child)
	require.NoError(t, err)
	require.Equal(t, []types.ID{child, parent}, chain)
}

func TestBridgeUpdateMetadataIsANoOpThatStillChecksExistence(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.RegisterTable(ctx, agentsTable()))
	adapter := bridge.NewTableAdapter(store, agentsTable(), jsonSerializer, jsonDeserializer)

	payload, err := jsonSerializer(map[string]types.Scalar{"id": "a1", "name": "Ada"})
	require.NoError(t, err)
	id, err := adapter.Put(ctx, "agents", payload, "", nil)
	require.NoError(t, err)

	require.NoError(t, adapter.UpdateMetadata(ctx, id, types.Metadata{"layer": "L1"}))

	err = adapter.UpdateMetadata(ctx, types.ID("missing"), types.Metadata{"layer": "L1"})
	require.Error(t, err)
}

func TestBridgeListSerializesEveryRow(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	require.NoError(t, store.RegisterTable(ctx, agentsTable()))
	adapter := bridge.NewTableAdapter(store, agentsTable(), jsonSerializer, jsonDeserializer)

	for _, name := range []string{"Ada", "Grace"} {
		p, _ := jsonSerializer(map[string]types.Scalar{"id": name, "name": name})
		_, err := adapter.Put(ctx, "agents", p, "", nil)
		require.NoError(t, err)
	}

	count := 0
	for d, err := range adapter.List(ctx, "agents", 0, 0) {
		require.NoError(t, err)
		require.Equal(t, "schema-track", d.Metadata["source"])
		count++
	}
	require.Equal(t, 2, count)
}
