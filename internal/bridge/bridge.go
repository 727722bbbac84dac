// Package bridge implements the Bridge Functor (spec.md §4.D): it lifts
// a typed Schema Track table into the Datum Store interface so the lens
// algebra, the coordinator, and the loss engine can all treat a typed
// row exactly like a Datum.
//
// There is no teacher equivalent to adapt — beads has one storage layer,
// not two tracks — so this package is original engineering within the
// teacher's small-struct-plus-adapter-methods idiom (see
// internal/storage/provider.go's StorageProvider).
package bridge

import (
	"context"
	"fmt"
	"iter"

	"github.com/duotrack/substrate/internal/schema"
	"github.com/duotrack/substrate/internal/types"
)

// Serializer turns a typed row's values into an opaque byte payload.
type Serializer func(values map[string]types.Scalar) ([]byte, error)

// Deserializer parses a byte payload back into typed row values.
type Deserializer func(content []byte) (map[string]types.Scalar, error)

// sourceTag is attached to every Datum produced by the bridge's Get and
// List.
const sourceTag = "schema-track"

// TableAdapter lifts one Schema Track table into the Datum Store
// interface. put(d) deserializes d.Content and upserts the row under the
// table's primary key; get(id) reads the row back, serializes its
// values, and returns a Datum carrying the row's causal_parent and a
// "source": "schema-track" metadata tag.
type TableAdapter struct {
	store        schema.Store
	table        string
	primaryKey   string
	serialize    Serializer
	deserialize  Deserializer
}

// NewTableAdapter constructs the adapter for an already-registered table.
func NewTableAdapter(store schema.Store, table schema.Table, serialize Serializer, deserialize Deserializer) *TableAdapter {
	return &TableAdapter{
		store:       store,
		table:       table.Name,
		primaryKey:  table.PrimaryKey,
		serialize:   serialize,
		deserialize: deserialize,
	}
}

// Put implements datum.Store's Put by deserializing content into row
// values and upserting them. metadata is accepted for interface
// conformance but carries no information the row itself doesn't: the
// bridge always attaches the "source": "schema-track" tag on read,
// regardless of what was passed on write.
func (a *TableAdapter) Put(ctx context.Context, namespace string, content []byte, causalParent types.ID, metadata types.Metadata) (types.ID, error) {
	values, err := a.deserialize(content)
	if err != nil {
		return "", fmt.Errorf("bridge.Put: deserialize: %w", err)
	}

	row := types.Row{
		Table:        a.table,
		PrimaryKey:   a.primaryKey,
		Values:       values,
		CausalParent: causalParent,
	}
	pk, err := a.store.Upsert(ctx, a.table, row)
	if err != nil {
		return "", fmt.Errorf("bridge.Put: %w", err)
	}
	return types.ID(pk), nil
}

// UpdateMetadata implements datum.Store's UpdateMetadata. A bridged row
// carries no metadata of its own beyond the fixed "source": "schema-track"
// tag Get always attaches, so there is nothing durable to overwrite:
// this is a no-op that still validates the row exists, the same
// existence contract UpdateMetadata promises on any other backend.
func (a *TableAdapter) UpdateMetadata(ctx context.Context, id types.ID, _ types.Metadata) error {
	_, err := a.store.Get(ctx, a.table, string(id))
	return err
}

// Get implements datum.Store's Get by reading the row and serializing
// its values back into a byte payload.
func (a *TableAdapter) Get(ctx context.Context, id types.ID) (*types.Datum, error) {
	row, err := a.store.Get(ctx, a.table, string(id))
	if err != nil {
		return nil, err
	}
	content, err := a.serialize(row.Values)
	if err != nil {
		return nil, fmt.Errorf("bridge.Get: serialize: %w", err)
	}
	return &types.Datum{
		ID:           id,
		Namespace:    a.table,
		Content:      content,
		CreatedAt:    row.CreatedAt,
		CausalParent: row.CausalParent,
		Metadata:     types.Metadata{"source": sourceTag},
	}, nil
}

// List implements datum.Store's List by querying every row of the
// adapted table and serializing each one.
func (a *TableAdapter) List(ctx context.Context, namespace string, since, until int64) iter.Seq2[*types.Datum, error] {
	return func(yield func(*types.Datum, error) bool) {
		for row, err := range a.store.Query(ctx, a.table, nil) {
			if err != nil {
				if !yield(nil, err) {
					return
				}
				continue
			}
			content, serErr := a.serialize(row.Values)
			if serErr != nil {
				if !yield(nil, fmt.Errorf("bridge.List: serialize: %w", serErr)) {
					return
				}
				continue
			}
			pk, _ := row.PrimaryKeyValue()
			d := &types.Datum{
				ID:           types.ID(pk),
				Namespace:    a.table,
				Content:      content,
				CreatedAt:    row.CreatedAt,
				CausalParent: row.CausalParent,
				Metadata:     types.Metadata{"source": sourceTag},
			}
			if !yield(d, nil) {
				return
			}
		}
	}
}

// Parents implements datum.Store's Parents by following causal_parent
// through successive Get calls, same as the plain Datum Store backends.
func (a *TableAdapter) Parents(ctx context.Context, id types.ID) ([]types.ID, error) {
	var chain []types.ID
	cur := id
	seen := make(map[types.ID]bool)
	for cur != "" {
		if seen[cur] {
			return nil, types.Wrap("bridge.Parents", types.ErrIntegrityViolation, nil)
		}
		seen[cur] = true
		d, err := a.Get(ctx, cur)
		if err != nil {
			return nil, err
		}
		chain = append(chain, cur)
		cur = d.CausalParent
	}
	return chain, nil
}
