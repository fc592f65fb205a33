// Package diff computes object-level changes between two schema models and
// orders them into a valid migration script.
package diff

import (
	"github.com/shem-sql/shem/internal/schema"
)

// Action classifies one object-level change.
type Action string

const (
	ActionCreate   Action = "create"
	ActionDrop     Action = "drop"
	ActionAlter    Action = "alter"
	ActionRecreate Action = "recreate"
)

// Change is one object-level difference between current and desired.
type Change struct {
	Action Action
	ID     schema.Identity
	Old    schema.Object // nil for creates
	New    schema.Object // nil for drops
}

// Warning is a non-fatal observation about the migration.
type Warning struct {
	// Destructive marks statements from the destructive set. Recreates that
	// take dependent objects down with them carry the list in Detail.
	Destructive bool
	Statement   string
	Detail      string
}

// ChangeSet is the full result of a diff: the per-object changes, the
// ordered SQL script implementing them, and any warnings.
type ChangeSet struct {
	Changes    []Change
	Statements []string
	Warnings   []Warning
}

// Empty reports whether the diff found no differences.
func (cs *ChangeSet) Empty() bool {
	return len(cs.Changes) == 0 && len(cs.Statements) == 0
}
