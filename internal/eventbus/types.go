package eventbus

import (
	"time"

	"github.com/duotrack/substrate/internal/types"
)

// EventType enumerates the derived-effect events the Coordinator emits
// during ingestion.
type EventType string

const (
	EventDatumInserted          EventType = "DatumInserted"
	EventRowUpserted            EventType = "RowUpserted"
	EventEdgeAdded              EventType = "EdgeAdded"
	EventClassificationAssigned EventType = "ClassificationAssigned"
	EventContradictionDetected  EventType = "ContradictionDetected"
)

// Event is a single envelope flowing through the bus. ID is assigned by
// Publish and is unique per envelope, independent of the record id it
// describes — two events about the same record never collide.
type Event struct {
	ID        string
	Type      EventType
	Namespace string
	RecordID  types.ID
	Edge      *types.Edge
	ClassifiedAs *types.Classification
	CreatedAt time.Time
}
