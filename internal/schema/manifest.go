package schema

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/duotrack/substrate/internal/types"
)

// manifestDoc mirrors the on-disk TOML shape for a migration manifest
// file: one or more [[migration]] tables, each declaring its changes as
// a flat list of typed entries.
type manifestDoc struct {
	Migration []manifestMigration `toml:"migration"`
}

type manifestMigration struct {
	Table   string            `toml:"table"`
	Version int               `toml:"version"`
	Name    string            `toml:"name"`
	Changes []manifestChange  `toml:"changes"`
}

type manifestChange struct {
	Kind      string   `toml:"kind"`
	Column    string   `toml:"column"`
	Nullable  bool     `toml:"nullable"`
	Default   any      `toml:"default"`
	FromName  string   `toml:"from"`
	IndexName string   `toml:"index_name"`
	IndexCols []string `toml:"index_columns"`
}

// LoadManifest reads a TOML migration manifest from path and returns the
// declared migrations in file order (not yet sorted by version — callers
// should pass the result to ApplyOrdered, which sorts per table).
func LoadManifest(path string) ([]Migration, error) {
	var doc manifestDoc
	if _, err := toml.DecodeFile(path, &doc); err != nil {
		return nil, fmt.Errorf("schema.LoadManifest: %w", err)
	}

	out := make([]Migration, 0, len(doc.Migration))
	for _, md := range doc.Migration {
		m := Migration{Table: md.Table, Version: md.Version, Name: md.Name}
		for _, mc := range md.Changes {
			change, err := toChange(mc)
			if err != nil {
				return nil, fmt.Errorf("schema.LoadManifest: migration %q: %w", md.Name, err)
			}
			m.Changes = append(m.Changes, change)
		}
		out = append(out, m)
	}
	return out, nil
}

func toChange(mc manifestChange) (Change, error) {
	switch ChangeKind(mc.Kind) {
	case ChangeAddColumn:
		return Change{
			Kind:   ChangeAddColumn,
			Column: types.Column{Name: mc.Column, Nullable: mc.Nullable, Default: mc.Default},
		}, nil
	case ChangeDropColumn:
		return Change{Kind: ChangeDropColumn, Column: types.Column{Name: mc.Column}}, nil
	case ChangeRenameColumn:
		return Change{
			Kind:     ChangeRenameColumn,
			FromName: mc.FromName,
			Column:   types.Column{Name: mc.Column, Nullable: mc.Nullable, Default: mc.Default},
		}, nil
	case ChangeAddIndex:
		return Change{Kind: ChangeAddIndex, IndexName: mc.IndexName, IndexCols: mc.IndexCols}, nil
	default:
		return Change{}, fmt.Errorf("unknown change kind %q", mc.Kind)
	}
}

// WriteManifestTemplate writes a starter manifest to path, used by
// `dtsctl migrate init`.
func WriteManifestTemplate(path string) error {
	const template = `# Schema Track migration manifest.
# Each [[migration]] block is applied in ascending version order per table.

# [[migration]]
# table = "agents"
# version = 1
# name = "add_display_name"
#
#   [[migration.changes]]
#   kind = "add_column"
#   column = "display_name"
#   nullable = true
`
	return os.WriteFile(path, []byte(template), 0o644)
}
