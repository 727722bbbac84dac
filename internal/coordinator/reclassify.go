package coordinator

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/duotrack/substrate/internal/eventbus"
	"github.com/duotrack/substrate/internal/types"
)

// ReclassifySweep re-runs classification for every datum in namespace
// whose recorded layer is unknown, overwriting the stale classification
// via UpdateMetadata. It is the background pass spec.md §4.F's "fails
// gracefully" clause promises: records degraded to layer=unknown at
// ingest time get a second chance once the oracle recovers. Returns the
// number of records successfully reclassified.
//
// This must use UpdateMetadata rather than Put: Put's merge-on-conflict
// contract exists to make re-ingesting identical content a no-op, which
// means it can never replace a key a prior write already set, including
// layer=unknown itself.
func (c *Coordinator) ReclassifySweep(ctx context.Context, namespace string) (int, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(oracleConcurrency)

	var mu sync.Mutex
	reclassified := 0

	for d, err := range c.datumStore.List(ctx, namespace, 0, 0) {
		if err != nil {
			return reclassified, err
		}
		if !isUnknownLayer(d.Metadata) {
			continue
		}
		if isAxiomFrozen(d.Metadata) {
			// Can't currently co-occur with isUnknownLayer (Classify only
			// sets AxiomCandidate on the success path, never alongside
			// layer=unknown), but the sweep must honor the freeze exactly
			// like ReclassifyRecord does if that ever changes.
			continue
		}
		d := d
		g.Go(func() error {
			classification := c.engine.Classify(gctx, string(d.Content))
			if classification.Layer == types.LayerUnknown {
				return nil // still unavailable; leave it for the next sweep
			}
			if err := c.datumStore.UpdateMetadata(gctx, d.ID, classificationMetadata(classification)); err != nil {
				return err
			}
			mu.Lock()
			reclassified++
			mu.Unlock()
			classCopy := classification
			return c.publish(gctx, &eventbus.Event{
				Type:         eventbus.EventClassificationAssigned,
				Namespace:    namespace,
				RecordID:     d.ID,
				ClassifiedAs: &classCopy,
			})
		})
	}

	if err := g.Wait(); err != nil {
		return reclassified, err
	}
	return reclassified, nil
}

func isUnknownLayer(metadata types.Metadata) bool {
	layer, ok := metadata["layer"]
	if !ok {
		return false
	}
	s, ok := layer.(string)
	return ok && s == string(types.LayerUnknown)
}

// isAxiomFrozen reports whether metadata tags a record as an axiom
// candidate. Fixed-point convergence (spec.md §4.F) freezes such a
// record against restructure: any operation that would re-invoke the
// oracle's Restructure on it must refuse instead.
func isAxiomFrozen(metadata types.Metadata) bool {
	v, ok := metadata["axiom_candidate"]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

// ReclassifyRecord forces a single record's classification to be
// re-measured regardless of its current layer, the explicit,
// operator-triggered reclassification spec.md §9 allows alongside
// ReclassifySweep's periodic pass over layer=unknown records only. A
// record tagged axiom_candidate is frozen against restructure: forcing
// it anyway returns ErrAxiomTampered instead of calling the oracle again.
func (c *Coordinator) ReclassifyRecord(ctx context.Context, id types.ID) (types.Classification, error) {
	d, err := c.datumStore.Get(ctx, id)
	if err != nil {
		return types.Classification{}, err
	}
	if isAxiomFrozen(d.Metadata) {
		return types.Classification{}, types.Wrap("coordinator.ReclassifyRecord", types.ErrAxiomTampered, nil)
	}

	classification := c.engine.Classify(ctx, string(d.Content))
	if err := c.datumStore.UpdateMetadata(ctx, id, classificationMetadata(classification)); err != nil {
		return classification, err
	}
	classCopy := classification
	if err := c.publish(ctx, &eventbus.Event{
		Type:         eventbus.EventClassificationAssigned,
		Namespace:    d.Namespace,
		RecordID:     id,
		ClassifiedAs: &classCopy,
	}); err != nil {
		return classification, err
	}
	return classification, nil
}

// Run sweeps every namespace in namespaces on interval until ctx is
// cancelled.
func (c *Coordinator) Run(ctx context.Context, interval time.Duration, namespaces []string) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, ns := range namespaces {
				if _, err := c.ReclassifySweep(ctx, ns); err != nil {
					return err
				}
			}
		}
	}
}
