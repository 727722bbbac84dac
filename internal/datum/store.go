// Package datum defines the Track A contract: a content-addressed,
// append-only store of immutable records with causal parent links. A
// conforming backend realizes one tier of the projection lattice
// (in-memory, on-disk append log, indexed key-value store, replicated
// log) but all tiers share the same semantics. Each backend has its own
// test file; there is no shared acceptance suite.
package datum

import (
	"context"
	"iter"

	"github.com/duotrack/substrate/internal/types"
)

// Store is the Track A contract (spec.md §4.A).
type Store interface {
	// Put writes content under namespace, returning its content-hash id.
	// If a datum with that id already exists, Put is a no-op that returns
	// the existing id, merging any non-conflicting metadata keys.
	Put(ctx context.Context, namespace string, content []byte, causalParent types.ID, metadata types.Metadata) (types.ID, error)

	// Get returns the datum with the given id, or types.ErrNotFound.
	Get(ctx context.Context, id types.ID) (*types.Datum, error)

	// UpdateMetadata overwrites the given keys on an existing datum,
	// unlike Put's merge-only semantics. It is for superseding previously
	// recorded values in place (spec.md §4.F's reclassification pass), not
	// for writing new content. Returns types.ErrNotFound if id is absent.
	UpdateMetadata(ctx context.Context, id types.ID, metadata types.Metadata) error

	// List returns datums in namespace in insertion order, starting after
	// the since cursor (0 for the beginning) and stopping at until
	// (0 means no upper bound). The cursor is the insertion ordinal within
	// the namespace and is stable across restarts.
	List(ctx context.Context, namespace string, since, until int64) iter.Seq2[*types.Datum, error]

	// Parents returns the causal-parent chain from id to its root,
	// inclusive of id itself, nearest first.
	Parents(ctx context.Context, id types.ID) ([]types.ID, error)
}

// VerifyAcyclic walks the causal-parent chain from id and returns
// types.ErrIntegrityViolation if it does not terminate within maxSteps —
// the only way a content-addressed chain can fail to terminate is a
// corrupted backend, since ids are deterministic functions of content and
// therefore cannot legitimately cycle (spec.md §9, "Causal graph
// representation").
func VerifyAcyclic(ctx context.Context, s Store, id types.ID, maxSteps int) error {
	seen := make(map[types.ID]bool, maxSteps)
	cur := id
	for i := 0; i < maxSteps; i++ {
		if cur == "" {
			return nil
		}
		if seen[cur] {
			return types.Wrap("datum.VerifyAcyclic", types.ErrIntegrityViolation, nil)
		}
		seen[cur] = true
		d, err := s.Get(ctx, cur)
		if err != nil {
			return err
		}
		cur = d.CausalParent
	}
	return types.Wrap("datum.VerifyAcyclic", types.ErrIntegrityViolation, nil)
}
