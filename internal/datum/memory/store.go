// Package memory implements the Track A Datum Store over plain in-memory
// maps — the bottom tier of the projection lattice. It is grounded on the
// teacher's per-namespace locking discipline (internal/storage/memory),
// generalized from the teacher's single-table issue store to the Datum
// Store's per-namespace write log plus a secondary id index.
package memory

import (
	"context"
	"iter"
	"sync"
	"time"

	"github.com/duotrack/substrate/internal/idgen"
	"github.com/duotrack/substrate/internal/types"
)

type namespaceLog struct {
	mu      sync.RWMutex
	entries []types.ID // insertion order within the namespace
}

// Store is an in-memory Datum Store. Zero value is not usable; use New.
type Store struct {
	mu sync.RWMutex // protects the id index and the namespaces map itself
	// byID indexes every datum regardless of namespace. A stored Datum's
	// Metadata field is only replaced while mu is held for writing, and
	// Get hands out a copy.
	byID map[types.ID]*types.Datum

	nsMu       sync.Mutex // protects creation of new namespaceLog entries
	namespaces map[string]*namespaceLog
}

// New returns an empty in-memory Datum Store.
func New() *Store {
	return &Store{
		byID:       make(map[types.ID]*types.Datum),
		namespaces: make(map[string]*namespaceLog),
	}
}

func (s *Store) namespaceLogFor(ns string) *namespaceLog {
	s.nsMu.Lock()
	defer s.nsMu.Unlock()
	nl, ok := s.namespaces[ns]
	if !ok {
		nl = &namespaceLog{}
		s.namespaces[ns] = nl
	}
	return nl
}

// Put implements datum.Store.
func (s *Store) Put(ctx context.Context, namespace string, content []byte, causalParent types.ID, metadata types.Metadata) (types.ID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := types.ID(idgen.DatumID(namespace, content))
	nl := s.namespaceLogFor(namespace)

	// Writes are serialized per namespace (spec.md §5).
	nl.mu.Lock()
	defer nl.mu.Unlock()

	s.mu.Lock()
	existing, exists := s.byID[id]
	s.mu.Unlock()
	if exists {
		if metadata != nil {
			s.mu.Lock()
			existing.Metadata = existing.Metadata.MergeNonConflicting(metadata)
			s.mu.Unlock()
		}
		return id, nil
	}

	if causalParent != "" {
		s.mu.RLock()
		_, parentExists := s.byID[causalParent]
		s.mu.RUnlock()
		if !parentExists {
			return "", types.Wrap("memory.Put", types.ErrCausalMissing, nil)
		}
	}

	d := &types.Datum{
		ID:           id,
		Namespace:    namespace,
		Content:      append([]byte(nil), content...),
		CreatedAt:    time.Now().UTC(),
		CausalParent: causalParent,
		Metadata:     metadata.Clone(),
	}

	s.mu.Lock()
	s.byID[id] = d
	s.mu.Unlock()

	nl.entries = append(nl.entries, id)
	return id, nil
}

// UpdateMetadata implements datum.Store.
func (s *Store) UpdateMetadata(ctx context.Context, id types.ID, metadata types.Metadata) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.byID[id]
	if !ok {
		return types.Wrap("memory.UpdateMetadata", types.ErrNotFound, nil)
	}
	d.Metadata = d.Metadata.Overlay(metadata)
	return nil
}

// Get implements datum.Store.
func (s *Store) Get(ctx context.Context, id types.ID) (*types.Datum, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.byID[id]
	if !ok {
		return nil, types.Wrap("memory.Get", types.ErrNotFound, nil)
	}
	cp := *d
	return &cp, nil
}

// List implements datum.Store.
func (s *Store) List(ctx context.Context, namespace string, since, until int64) iter.Seq2[*types.Datum, error] {
	return func(yield func(*types.Datum, error) bool) {
		nl := s.namespaceLogFor(namespace)
		nl.mu.RLock()
		ids := append([]types.ID(nil), nl.entries...)
		nl.mu.RUnlock()

		for i, id := range ids {
			ordinal := int64(i + 1)
			if ordinal <= since {
				continue
			}
			if until > 0 && ordinal > until {
				return
			}
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			d, err := s.Get(ctx, id)
			if !yield(d, err) {
				return
			}
		}
	}
}

// Parents implements datum.Store.
func (s *Store) Parents(ctx context.Context, id types.ID) ([]types.ID, error) {
	var chain []types.ID
	cur := id
	seen := make(map[types.ID]bool)
	for cur != "" {
		if seen[cur] {
			return nil, types.Wrap("memory.Parents", types.ErrIntegrityViolation, nil)
		}
		seen[cur] = true
		d, err := s.Get(ctx, cur)
		if err != nil {
			return nil, err
		}
		chain = append(chain, cur)
		cur = d.CausalParent
	}
	return chain, nil
}
