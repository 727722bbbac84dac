package export

import (
	"context"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/duotrack/substrate/internal/datum"
)

// DumpEdges writes every edge recorded for namespace to w as a YAML
// sequence, oldest first.
func DumpEdges(w io.Writer, log *EdgeLog, namespace string) error {
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(log.Edges(namespace))
}

// datumRecord is the wire-stable shape exported for a Track A namespace's
// append log, matching the field set spec.md §6's "Datum wire form"
// names (content rendered as a raw string since the export format is
// meant to be read, not content-hash-verified).
type datumRecord struct {
	ID           string         `yaml:"id"`
	Namespace    string         `yaml:"namespace"`
	Content      string         `yaml:"content"`
	CreatedAt    string         `yaml:"created_at"`
	CausalParent string         `yaml:"causal_parent,omitempty"`
	Metadata     map[string]any `yaml:"metadata,omitempty"`
}

// ExportAppendLog writes namespace's full Track A write log to w, in
// insertion order, as a YAML sequence of datumRecord.
func ExportAppendLog(ctx context.Context, store datum.Store, namespace string, w io.Writer) error {
	var records []datumRecord
	for d, err := range store.List(ctx, namespace, 0, 0) {
		if err != nil {
			return fmt.Errorf("export.ExportAppendLog: %w", err)
		}
		records = append(records, datumRecord{
			ID:           string(d.ID),
			Namespace:    d.Namespace,
			Content:      string(d.Content),
			CreatedAt:    d.CreatedAt.Format("2006-01-02T15:04:05.000000000Z07:00"),
			CausalParent: string(d.CausalParent),
			Metadata:     d.Metadata,
		})
	}
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(records)
}
