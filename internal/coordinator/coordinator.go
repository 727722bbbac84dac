// Package coordinator orchestrates ingestion (spec.md §4.G): it routes
// a record descriptor to the Datum Store or Schema Track, requests
// classification and contradiction detection from the Galois Loss
// Engine, and emits derived events on the event bus.
//
// The persist -> classify -> scan -> emit ordering, and the convention
// of running the classify and contradiction-scan phases concurrently
// rather than serially, is grounded on the teacher's
// internal/storage/dolt/store.go retry-wrapped-operation idiom and
// internal/eventbus/bus.go's "publish after the side effect that
// justifies the event" ordering.
package coordinator

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/duotrack/substrate/internal/datum"
	"github.com/duotrack/substrate/internal/eventbus"
	"github.com/duotrack/substrate/internal/idgen"
	"github.com/duotrack/substrate/internal/loss"
	"github.com/duotrack/substrate/internal/schema"
	"github.com/duotrack/substrate/internal/types"
)

// DefaultTailWindow is the bounded contradiction-scan window spec.md
// §4.G names (128 records).
const DefaultTailWindow = 128

// oracleConcurrency bounds concurrent DetectContradiction calls to the
// same budget the Oracle Interface itself enforces (spec.md §5).
const oracleConcurrency = 8

// Coordinator ties the Datum Store, Schema Track, Loss Engine, and
// event bus together behind a single ingestion operation.
type Coordinator struct {
	datumStore  datum.Store
	schemaStore schema.Store
	engine      *loss.Engine
	bus         *eventbus.Bus
	tailWindow  int
}

// New constructs a Coordinator. tailWindow <= 0 uses DefaultTailWindow.
// bus may be nil, in which case no events are emitted.
func New(datumStore datum.Store, schemaStore schema.Store, engine *loss.Engine, bus *eventbus.Bus, tailWindow int) *Coordinator {
	if tailWindow <= 0 {
		tailWindow = DefaultTailWindow
	}
	return &Coordinator{
		datumStore:  datumStore,
		schemaStore: schemaStore,
		engine:      engine,
		bus:         bus,
		tailWindow:  tailWindow,
	}
}

// Result is what Ingest returns: the persisted id, the track it landed
// on, its classification, and any derived edges.
type Result struct {
	ID                 types.ID
	Track              types.Track
	Classification     types.Classification
	ContradictionEdges []types.Edge
	EthicalViolation   *types.Edge
	AlreadyExisted     bool
}

// Ingest persists desc via the auto-routed track, classifies it,
// scans the namespace's recent tail for contradictions, and emits
// derived events. Re-ingesting identical content is idempotent: it
// returns the existing id and produces no new classification or edges
// (spec.md §4.G, "Idempotence").
func (c *Coordinator) Ingest(ctx context.Context, desc types.RecordDescriptor) (*Result, error) {
	track := desc.AutoTrack()

	var (
		id             types.ID
		text           string
		alreadyExisted bool
		err            error
	)
	switch track {
	case types.TrackDatum:
		id, text, alreadyExisted, err = c.persistDatum(ctx, desc)
	case types.TrackSchema:
		id, text, alreadyExisted, err = c.persistRow(ctx, desc)
	default:
		return nil, fmt.Errorf("coordinator.Ingest: unsupported track %q", track)
	}
	if err != nil {
		return nil, err
	}

	result := &Result{ID: id, Track: track, AlreadyExisted: alreadyExisted}
	if alreadyExisted {
		return result, nil
	}

	var edges []types.Edge
	var classification types.Classification
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		classification = c.engine.Classify(gctx, text)
		return nil
	})
	g.Go(func() error {
		var scanErr error
		edges, scanErr = c.scanForContradictions(gctx, desc.NamespaceOrTable, track, id, text)
		return scanErr
	})
	if err := g.Wait(); err != nil {
		return result, err
	}
	result.Classification = classification
	result.ContradictionEdges = edges

	if track == types.TrackDatum {
		if err := c.datumStore.UpdateMetadata(ctx, id, classificationMetadata(classification)); err != nil {
			return result, err
		}
	}

	if err := c.publish(ctx, &eventbus.Event{Type: eventTypeForTrack(track), Namespace: desc.NamespaceOrTable, RecordID: id}); err != nil {
		return result, err
	}
	classCopy := classification
	if err := c.publish(ctx, &eventbus.Event{Type: eventbus.EventClassificationAssigned, Namespace: desc.NamespaceOrTable, RecordID: id, ClassifiedAs: &classCopy}); err != nil {
		return result, err
	}
	for _, e := range edges {
		edgeCopy := e
		if err := c.publish(ctx, &eventbus.Event{Type: eventbus.EventEdgeAdded, Namespace: desc.NamespaceOrTable, RecordID: id, Edge: &edgeCopy}); err != nil {
			return result, err
		}
	}

	if violation := c.checkEthicalFloor(desc, id); violation != nil {
		result.EthicalViolation = violation
		result.Classification.EthicalFloorViolated = true
		if track == types.TrackDatum {
			if err := c.datumStore.UpdateMetadata(ctx, id, types.Metadata{"ethical_floor_violated": true}); err != nil {
				return result, err
			}
		}
		if err := c.publish(ctx, &eventbus.Event{Type: eventbus.EventEdgeAdded, Namespace: desc.NamespaceOrTable, RecordID: id, Edge: violation}); err != nil {
			return result, err
		}
	}

	return result, nil
}

// ethicalScoreKey is the metadata key a caller sets to the oracle's
// computed ethical-dimension score, if it has one available at
// ingest time. Absent the key, no floor check runs.
const ethicalScoreKey = "ethical_score"

func (c *Coordinator) checkEthicalFloor(desc types.RecordDescriptor, id types.ID) *types.Edge {
	raw, ok := desc.Metadata[ethicalScoreKey]
	if !ok {
		return nil
	}
	score, ok := raw.(float64)
	if !ok {
		return nil
	}
	if !c.engine.CheckEthicalFloor(loss.PrincipleScores{loss.EthicalDimension: score}) {
		return nil
	}
	edge := loss.ViolationEdge(id)
	return &edge
}

func (c *Coordinator) persistDatum(ctx context.Context, desc types.RecordDescriptor) (types.ID, string, bool, error) {
	id := types.ID(idgen.DatumID(desc.NamespaceOrTable, desc.Content))

	existed := false
	if _, err := c.datumStore.Get(ctx, id); err == nil {
		existed = true
	} else if !types.IsNotFound(err) {
		return "", "", false, err
	}

	gotID, err := c.datumStore.Put(ctx, desc.NamespaceOrTable, desc.Content, desc.CausalParent, desc.Metadata)
	if err != nil {
		return "", "", false, err
	}
	return gotID, string(desc.Content), existed, nil
}

func (c *Coordinator) persistRow(ctx context.Context, desc types.RecordDescriptor) (types.ID, string, bool, error) {
	if desc.Row == nil {
		return "", "", false, fmt.Errorf("coordinator.Ingest: schema track requires a Row")
	}
	row := *desc.Row
	row.Table = desc.NamespaceOrTable
	row.CausalParent = desc.CausalParent

	pkVal, ok := row.PrimaryKeyValue()
	if !ok {
		return "", "", false, fmt.Errorf("coordinator.Ingest: row missing primary key value")
	}

	existed := false
	if existing, err := c.schemaStore.Get(ctx, desc.NamespaceOrTable, pkVal); err == nil {
		existed = reflect.DeepEqual(existing.Values, row.Values)
	} else if !types.IsNotFound(err) {
		return "", "", false, err
	}

	id, err := c.schemaStore.Upsert(ctx, desc.NamespaceOrTable, row)
	if err != nil {
		return "", "", false, err
	}
	return types.ID(id), rowText(row), existed, nil
}

type tailEntry struct {
	id   types.ID
	text string
}

func (c *Coordinator) scanForContradictions(ctx context.Context, namespaceOrTable string, track types.Track, newID types.ID, newText string) ([]types.Edge, error) {
	tail, err := c.tail(ctx, namespaceOrTable, track, newID)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	var edges []types.Edge
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(oracleConcurrency)
	for _, old := range tail {
		old := old
		g.Go(func() error {
			edge, err := c.engine.DetectContradiction(gctx, newID, old.id, newText, old.text)
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
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].TargetID < edges[j].TargetID })
	return edges, nil
}

func (c *Coordinator) tail(ctx context.Context, namespaceOrTable string, track types.Track, excludeID types.ID) ([]tailEntry, error) {
	all, err := c.allEntriesExcluding(ctx, namespaceOrTable, track, excludeID)
	if err != nil {
		return nil, err
	}
	if len(all) <= c.tailWindow {
		return all, nil
	}
	return all[len(all)-c.tailWindow:], nil
}

// allEntries returns every record currently in namespaceOrTable, oldest
// first, with no tailWindow truncation.
func (c *Coordinator) allEntries(ctx context.Context, namespaceOrTable string, track types.Track) ([]tailEntry, error) {
	return c.allEntriesExcluding(ctx, namespaceOrTable, track, "")
}

func (c *Coordinator) allEntriesExcluding(ctx context.Context, namespaceOrTable string, track types.Track, excludeID types.ID) ([]tailEntry, error) {
	var all []tailEntry
	switch track {
	case types.TrackDatum:
		for d, err := range c.datumStore.List(ctx, namespaceOrTable, 0, 0) {
			if err != nil {
				return nil, err
			}
			if d.ID == excludeID {
				continue
			}
			all = append(all, tailEntry{id: d.ID, text: string(d.Content)})
		}
	case types.TrackSchema:
		for r, err := range c.schemaStore.Query(ctx, namespaceOrTable, nil) {
			if err != nil {
				return nil, err
			}
			pk, ok := r.PrimaryKeyValue()
			if !ok || types.ID(pk) == excludeID {
				continue
			}
			all = append(all, tailEntry{id: types.ID(pk), text: rowText(*r)})
		}
	}
	return all, nil
}

func (c *Coordinator) publish(ctx context.Context, e *eventbus.Event) error {
	if c.bus == nil {
		return nil
	}
	e.CreatedAt = time.Now().UTC()
	return c.bus.Publish(ctx, e)
}

func eventTypeForTrack(t types.Track) eventbus.EventType {
	if t == types.TrackSchema {
		return eventbus.EventRowUpserted
	}
	return eventbus.EventDatumInserted
}

func classificationMetadata(c types.Classification) types.Metadata {
	m := types.Metadata{
		"layer":           string(c.Layer),
		"complexity":      string(c.Complexity),
		"confidence":      c.Confidence,
		"axiom_candidate": c.AxiomCandidate,
		"timeout":         c.Timeout,
	}
	if c.Loss != nil {
		m["loss"] = *c.Loss
	}
	return m
}

func rowText(row types.Row) string {
	keys := make([]string, 0, len(row.Values))
	for k := range row.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b []byte
	for i, k := range keys {
		if i > 0 {
			b = append(b, "; "...)
		}
		b = append(b, fmt.Sprintf("%s=%v", k, row.Values[k])...)
	}
	return string(b)
}
