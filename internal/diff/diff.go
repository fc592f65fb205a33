package diff

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/shem-sql/shem/internal/emit"
	"github.com/shem-sql/shem/internal/schema"
)

// Options controls script generation.
type Options struct {
	// Cascade emits DROP ... CASCADE instead of the default RESTRICT.
	Cascade bool
}

// Plan compares current against desired and produces the ordered migration
// implementing the difference. It fails fast on the first structural error.
func Plan(current, desired *schema.Schema, opts Options) (*ChangeSet, error) {
	cs := &ChangeSet{}
	changes := computeChanges(current, desired)
	if len(changes) == 0 && grantsEqual(current, desired) {
		return cs, nil
	}
	changes = expandRecreates(changes, current, desired)
	cs.Changes = changes

	byAction := map[Action][]Change{}
	byID := map[schema.Identity]Change{}
	for _, change := range changes {
		byAction[change.Action] = append(byAction[change.Action], change)
		byID[change.ID] = change
	}

	// Drop phase: everything going away, in reverse dependency order.
	// Recreate drops travel with plain drops so transient name collisions
	// cannot happen.
	var dropIDs []schema.Identity
	for _, change := range byAction[ActionDrop] {
		dropIDs = append(dropIDs, change.ID)
	}
	for _, change := range byAction[ActionRecreate] {
		dropIDs = append(dropIDs, change.ID)
	}
	dropOrder, err := topoSort(dropIDs, current)
	if err != nil {
		return nil, err
	}
	dropOrder = reverse(dropOrder)

	// Create phase: new objects, recreated objects, and in-place alters, in
	// forward dependency order against the desired model.
	var createIDs []schema.Identity
	for _, change := range byAction[ActionCreate] {
		createIDs = append(createIDs, change.ID)
	}
	for _, change := range byAction[ActionRecreate] {
		createIDs = append(createIDs, change.ID)
	}
	for _, change := range byAction[ActionAlter] {
		createIDs = append(createIDs, change.ID)
	}
	createOrder, err := topoSort(createIDs, desired)
	if err != nil {
		return nil, err
	}

	var pre, body, post []string

	// Constraint removals come first: they can reference tables that are
	// about to be dropped.
	for _, change := range byAction[ActionAlter] {
		if change.ID.Kind != schema.KindTable {
			continue
		}
		alterPre, _, _ := emit.AlterTableStatements(change.Old.(*schema.Table), change.New.(*schema.Table))
		pre = append(pre, alterPre...)
	}
	pre = append(pre, fkDropsForDroppedTables(dropOrder, byID, current)...)

	for _, id := range dropOrder {
		change := byID[id]
		if change.Action == ActionRecreate {
			collateral := schema.DependentsOf(id, current)
			if len(collateral) > 0 {
				cs.Warnings = append(cs.Warnings, Warning{
					Statement: emit.DropStatement(change.Old, opts.Cascade),
					Detail:    recreateCollateralDetail(id, collateral),
				})
			}
		}
		pre = append(pre, emit.DropStatement(change.Old, opts.Cascade))
	}

	for _, id := range createOrder {
		change := byID[id]
		switch change.Action {
		case ActionCreate, ActionRecreate:
			stmts, fks := emit.CreateStatements(change.New)
			body = append(body, stmts...)
			post = append(post, fks...)
		case ActionAlter:
			stmts, fks, err := alterStatements(change)
			if err != nil {
				return nil, err
			}
			body = append(body, stmts...)
			post = append(post, fks...)
		}
	}

	post = append(post, grantDelta(current, desired)...)

	cs.Statements = append(append(append(cs.Statements, pre...), body...), post...)
	flagDestructive(cs)

	logrus.WithFields(logrus.Fields{
		"changes":    len(cs.Changes),
		"statements": len(cs.Statements),
	}).Debug("computed migration plan")
	return cs, nil
}

// computeChanges classifies every identity in the union of the two models.
func computeChanges(current, desired *schema.Schema) []Change {
	union := make(map[schema.Identity]bool)
	for id := range current.Objects {
		union[id] = true
	}
	for id := range desired.Objects {
		union[id] = true
	}
	ids := make([]schema.Identity, 0, len(union))
	for id := range union {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return idLess(ids[i], ids[j]) })

	var changes []Change
	for _, id := range ids {
		old, inCurrent := current.Lookup(id)
		new_, inDesired := desired.Lookup(id)
		switch {
		case inDesired && !inCurrent:
			changes = append(changes, Change{Action: ActionCreate, ID: id, New: new_})
		case inCurrent && !inDesired:
			changes = append(changes, Change{Action: ActionDrop, ID: id, Old: old})
		case schema.ObjectsEqual(old, new_):
			// No change.
		case supportsAlter(id.Kind, old, new_):
			changes = append(changes, Change{Action: ActionAlter, ID: id, Old: old, New: new_})
		default:
			changes = append(changes, Change{Action: ActionRecreate, ID: id, Old: old, New: new_})
		}
	}
	return changes
}

// expandRecreates closes the recreate set over its dependents: rebuilding
// an object takes everything that references it down too, so unchanged
// dependents present on both sides are rebuilt as well. Runs to a fixpoint
// because recreating a dependent can strand its own dependents.
func expandRecreates(changes []Change, current, desired *schema.Schema) []Change {
	changed := make(map[schema.Identity]Action, len(changes))
	for _, change := range changes {
		changed[change.ID] = change.Action
	}

	for {
		grew := false
		for id, obj := range current.Objects {
			if _, alreadyChanged := changed[id]; alreadyChanged {
				continue
			}
			counterpart, inDesired := desired.Lookup(id)
			if !inDesired {
				continue
			}
			for _, dep := range schema.DependenciesOf(obj, current) {
				if changed[dep] != ActionRecreate {
					continue
				}
				changes = append(changes, Change{Action: ActionRecreate, ID: id, Old: obj, New: counterpart})
				changed[id] = ActionRecreate
				grew = true
				break
			}
		}
		if !grew {
			sort.Slice(changes, func(i, j int) bool { return idLess(changes[i].ID, changes[j].ID) })
			return changes
		}
	}
}

// supportsAlter is the in-place alter matrix.
func supportsAlter(kind schema.ObjectKind, old, new_ schema.Object) bool {
	switch kind {
	case schema.KindTable:
		ot, nt := old.(*schema.Table), new_.(*schema.Table)
		// Partitioning and inheritance changes rebuild the table.
		return ot.PartitionBy == nt.PartitionBy && equalStrings(ot.Inherits, nt.Inherits)
	case schema.KindSequence:
		return true
	case schema.KindEnum:
		// Only appends can be altered.
		oe, ne := old.(*schema.Enum), new_.(*schema.Enum)
		return len(ne.Labels) > len(oe.Labels) && equalStrings(ne.Labels[:len(oe.Labels)], oe.Labels)
	case schema.KindFunction, schema.KindProcedure:
		// Identity pins the argument signature; the return type is the one
		// remaining shape CREATE OR REPLACE cannot change.
		of, nf := old.(*schema.Function), new_.(*schema.Function)
		return of.Returns == nf.Returns
	case schema.KindComment:
		return true
	}
	return false
}

// alterStatements renders one in-place alter.
func alterStatements(change Change) (stmts, fkAdds []string, err error) {
	switch change.ID.Kind {
	case schema.KindTable:
		_, body, fks := emit.AlterTableStatements(change.Old.(*schema.Table), change.New.(*schema.Table))
		return body, fks, nil
	case schema.KindSequence:
		return emit.AlterSequenceStatements(change.Old.(*schema.Sequence), change.New.(*schema.Sequence)), nil, nil
	case schema.KindEnum:
		return emit.AlterEnumStatements(change.Old.(*schema.Enum), change.New.(*schema.Enum)), nil, nil
	case schema.KindFunction, schema.KindProcedure:
		return emit.ReplaceFunctionStatements(change.New.(*schema.Function)), nil, nil
	case schema.KindComment:
		stmts, _ := emit.CreateStatements(change.New)
		return stmts, nil, nil
	}
	return nil, nil, fmt.Errorf("no alter emitter for %s", change.ID)
}

// fkDropsForDroppedTables detaches foreign keys between tables that are
// both going away, so the drop order inside the phase cannot matter.
func fkDropsForDroppedTables(dropOrder []schema.Identity, byID map[schema.Identity]Change, current *schema.Schema) []string {
	dropped := make(map[schema.Identity]bool)
	for _, id := range dropOrder {
		if id.Kind == schema.KindTable {
			dropped[id] = true
		}
	}
	var stmts []string
	for _, id := range dropOrder {
		if id.Kind != schema.KindTable {
			continue
		}
		table := byID[id].Old.(*schema.Table)
		for _, con := range table.Constraints {
			if con.Type != schema.ConstraintForeignKey || con.RefTable == "" {
				continue
			}
			refSchema, refName := schema.SplitQualified(con.RefTable)
			ref := schema.Identity{Schema: refSchema, Name: refName, Kind: schema.KindTable}
			if dropped[ref] && ref != id {
				stmts = append(stmts, emit.DropConstraintStatement(table, con.Name))
			}
		}
	}
	return stmts
}

// flagDestructive scans the final script for the destructive statement set.
func flagDestructive(cs *ChangeSet) {
	for _, stmt := range cs.Statements {
		if emit.IsDestructive(stmt) {
			cs.Warnings = append(cs.Warnings, Warning{Destructive: true, Statement: stmt})
		}
	}
}

func recreateCollateralDetail(id schema.Identity, collateral []schema.Identity) string {
	names := make([]string, len(collateral))
	for i, dep := range collateral {
		names[i] = dep.String()
	}
	return fmt.Sprintf("recreating %s drops dependents: %s", id, strings.Join(names, ", "))
}

// grantDelta emits desired grants that the current model lacks. Grants are
// opaque pass-through statements, compared textually.
func grantDelta(current, desired *schema.Schema) []string {
	have := make(map[string]bool, len(current.Grants))
	for _, g := range current.Grants {
		have[g] = true
	}
	var out []string
	for _, g := range desired.Grants {
		if !have[g] {
			out = append(out, g)
		}
	}
	return out
}

func grantsEqual(current, desired *schema.Schema) bool {
	return len(grantDelta(current, desired)) == 0
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
