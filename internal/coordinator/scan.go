package coordinator

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/duotrack/substrate/internal/eventbus"
	"github.com/duotrack/substrate/internal/types"
)

// ScanNamespace runs an all-pairs contradiction scan over every record
// currently in namespaceOrTable and publishes an EdgeAdded event for
// each contradiction found, returning the number of edges emitted. It
// exists for the administrative "dump the edge graph" surface (spec.md
// §6): Ingest's own scanForContradictions only ever compares a newly
// written record against its tail window, and edges are not persisted,
// so a namespace populated by an earlier process (or loaded by a bulk
// migration that bypassed Ingest) has no edges to dump until a scan like
// this one runs. Cost is O(n²) oracle calls bounded by oracleConcurrency
// in flight at once; callers with large namespaces should expect this to
// take a while.
func (c *Coordinator) ScanNamespace(ctx context.Context, namespaceOrTable string, track types.Track) (int, error) {
	// Unlike tail, which bounds the comparison set to the most recent
	// tailWindow records for a single new write, a namespace-wide scan
	// must consider every record, so it gathers directly rather than
	// reusing tail's truncation.
	all, err := c.allEntries(ctx, namespaceOrTable, track)
	if err != nil {
		return 0, err
	}

	var mu sync.Mutex
	var edges []types.Edge
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(oracleConcurrency)
	for i := range all {
		for j := i + 1; j < len(all); j++ {
			a, b := all[i], all[j]
			g.Go(func() error {
				edge, err := c.engine.DetectContradiction(gctx, a.id, b.id, a.text, b.text)
				if err != nil {
					return err
				}
				if edge != nil {
					mu.Lock()
					edges = append(edges, *edge)
					mu.Unlock()
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].TargetID < edges[j].TargetID })

	for _, e := range edges {
		edge := e
		if err := c.publish(ctx, &eventbus.Event{
			Type:      eventbus.EventEdgeAdded,
			Namespace: namespaceOrTable,
			Edge:      &edge,
		}); err != nil {
			return len(edges), err
		}
	}
	return len(edges), nil
}
