// Package schema implements the Track C contract: a versioned, typed
// table store with forward-only, monotone migrations. It mirrors the
// Track A Datum Store shape (an interface plus multiple interchangeable
// backends) but replaces content-addressing with primary-key upserts.
package schema

import (
	"fmt"

	"github.com/duotrack/substrate/internal/types"
)

// Table declares the shape of a typed relation: its columns and which
// column is the primary key.
type Table struct {
	Name       string
	Columns    []types.Column
	PrimaryKey string
}

// Column looks up a column by name.
func (t Table) Column(name string) (types.Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return types.Column{}, false
}

// Validate checks that the table has a name and that the primary key is
// a declared column. It does not check columns for nullability or
// defaults; that rule is enforced for added columns by
// Migration.Validate.
func (t Table) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("schema: table has empty name")
	}
	if _, ok := t.Column(t.PrimaryKey); !ok {
		return fmt.Errorf("schema: table %q: primary key %q is not a declared column", t.Name, t.PrimaryKey)
	}
	return nil
}
