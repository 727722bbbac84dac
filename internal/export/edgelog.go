// Package export implements the administrative "dump the edge graph" and
// "export a per-namespace append log" surface spec.md §6 names. Edges are
// derived records with no track of their own — they only ever reach the
// rest of the system as eventbus.EdgeAdded events — so this package's
// EdgeLog subscribes as an ordinary eventbus.Handler and accumulates an
// append-only record of every edge seen for a namespace, the same
// handler-registration idiom internal/eventbus/handler.go already defines
// for every other derived-effect consumer.
package export

import (
	"context"
	"sort"
	"sync"

	"github.com/duotrack/substrate/internal/eventbus"
	"github.com/duotrack/substrate/internal/types"
)

// handlerPriority places the edge log after any handler that might
// reject or transform an event, but it never does either, so its exact
// position relative to other low-priority handlers is not load-bearing.
const handlerPriority = 100

// EdgeRecord pairs an edge with the namespace or table its source event
// was raised against, since types.Edge itself carries no namespace.
type EdgeRecord struct {
	Namespace string     `yaml:"namespace"`
	Edge      types.Edge `yaml:"edge"`
}

// EdgeLog accumulates EdgeAdded events in arrival order, keyed by
// namespace, for later retrieval by DumpEdges.
type EdgeLog struct {
	mu      sync.RWMutex
	records []EdgeRecord
}

// NewEdgeLog returns an empty log. Register it on a bus with
// bus.Register to begin accumulating.
func NewEdgeLog() *EdgeLog {
	return &EdgeLog{}
}

func (l *EdgeLog) ID() string                    { return "export.edgelog" }
func (l *EdgeLog) Handles() []eventbus.EventType { return []eventbus.EventType{eventbus.EventEdgeAdded} }
func (l *EdgeLog) Priority() int                 { return handlerPriority }

// Handle records the edge carried by e. Events of any other type are
// ignored (Handles restricts what the bus dispatches here, but Handle
// stays defensive since a misconfigured caller could invoke it directly).
func (l *EdgeLog) Handle(ctx context.Context, e *eventbus.Event) error {
	if e.Type != eventbus.EventEdgeAdded || e.Edge == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, EdgeRecord{Namespace: e.Namespace, Edge: *e.Edge})
	return nil
}

// Edges returns every recorded edge for namespace, oldest first. An empty
// namespace returns every recorded edge regardless of namespace.
func (l *EdgeLog) Edges(namespace string) []EdgeRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]EdgeRecord, 0, len(l.records))
	for _, r := range l.records {
		if namespace == "" || r.Namespace == namespace {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Edge.CreatedAt.Before(out[j].Edge.CreatedAt)
	})
	return out
}
