// Package schema holds the canonical in-memory representation of a
// PostgreSQL database's logical shape. Both the declarative parser and the
// live introspector populate the same types, so two models are directly
// comparable regardless of where they came from.
//
// A model is a passive value: built in one pass, compared, serialized,
// never mutated after construction. Nothing in it holds a database handle.
package schema

import "strings"

// Object is the closed sum over all supported object kinds.
type Object interface {
	ID() Identity
}

// Table represents a base table.
type Table struct {
	Schema      string
	Name        string
	Columns     []Column
	Constraints []Constraint
	Inherits    []string // fully qualified parent names
	PartitionBy string   // e.g. "RANGE (created_at)", empty when not partitioned
}

func (t *Table) ID() Identity {
	return Identity{Schema: t.Schema, Name: t.Name, Kind: KindTable}
}

// Column represents one table column. Default and Generated hold the
// canonical expression text produced by round-tripping through the grammar.
type Column struct {
	Name      string
	Type      string // fully qualified for non-builtins
	NotNull   bool
	Default   string
	Identity  string // "", "ALWAYS", or "BY DEFAULT"
	Generated string // generation expression, empty when not generated
	Collation string
}

// ConstraintType enumerates table-level constraint forms.
type ConstraintType string

const (
	ConstraintPrimaryKey ConstraintType = "PRIMARY KEY"
	ConstraintUnique     ConstraintType = "UNIQUE"
	ConstraintCheck      ConstraintType = "CHECK"
	ConstraintExclusion  ConstraintType = "EXCLUDE"
	ConstraintForeignKey ConstraintType = "FOREIGN KEY"
)

// Constraint is a table-level constraint. Expression holds the check or
// exclusion body; the Ref* fields are set only for foreign keys.
type Constraint struct {
	Name              string
	Type              ConstraintType
	Columns           []string
	Expression        string
	RefTable          string // fully qualified
	RefColumns        []string
	OnDelete          string
	OnUpdate          string
	Deferrable        bool
	InitiallyDeferred bool
}

// IndexKey is one key column or expression of an index.
type IndexKey struct {
	Expr    string // column name or canonical expression
	Opclass string
	Desc    bool
}

// Index represents a secondary index.
type Index struct {
	Schema    string
	Table     string
	Name      string
	Method    string // btree, hash, gist, spgist, gin, brin
	Unique    bool
	Keys      []IndexKey
	Include   []string
	Predicate string   // partial index predicate, canonical text
	Storage   []string // storage parameters as "k=v"
}

func (i *Index) ID() Identity {
	return Identity{Schema: i.Schema, Name: i.Name, Kind: KindIndex}
}

// View represents a regular view.
type View struct {
	Schema          string
	Name            string
	Query           string // normalized query text
	CheckOption     string // "", "LOCAL", or "CASCADED"
	SecurityBarrier bool
}

func (v *View) ID() Identity {
	return Identity{Schema: v.Schema, Name: v.Name, Kind: KindView}
}

// MaterializedView represents a materialized view. Its indexes are ordinary
// Index objects targeting the view's relation.
type MaterializedView struct {
	Schema   string
	Name     string
	Query    string
	WithData bool
}

func (m *MaterializedView) ID() Identity {
	return Identity{Schema: m.Schema, Name: m.Name, Kind: KindMaterializedView}
}

// ArgMode is a function argument mode.
type ArgMode string

const (
	ArgIn       ArgMode = "IN"
	ArgOut      ArgMode = "OUT"
	ArgInOut    ArgMode = "INOUT"
	ArgVariadic ArgMode = "VARIADIC"
	ArgTable    ArgMode = "TABLE"
)

// Argument is one function or procedure argument.
type Argument struct {
	Name    string
	Mode    ArgMode
	Type    string
	Default string
}

// Function represents a function or, when Procedure is set, a procedure.
// Identity includes the input argument type signature so overloads are
// distinct objects. Body is opaque text, trimmed with the shared rule.
type Function struct {
	Schema          string
	Name            string
	Args            []Argument
	Returns         string // includes SETOF / TABLE(...) forms; empty for procedures
	Language        string
	Body            string
	Volatility      string // IMMUTABLE, STABLE, VOLATILE
	Strict          bool
	SecurityDefiner bool
	Procedure       bool
}

// Signature returns the comma-joined input argument types.
func (f *Function) Signature() string {
	var types []string
	for _, a := range f.Args {
		if a.Mode == ArgOut || a.Mode == ArgTable {
			continue
		}
		types = append(types, a.Type)
	}
	return strings.Join(types, ", ")
}

func (f *Function) ID() Identity {
	kind := KindFunction
	if f.Procedure {
		kind = KindProcedure
	}
	return Identity{Schema: f.Schema, Name: f.Name, Kind: kind, Signature: f.Signature()}
}

// Sequence represents a sequence. Zero Min/Max mean the PostgreSQL defaults
// for the sequence's type.
type Sequence struct {
	Schema    string
	Name      string
	Type      string // smallint, integer, bigint; empty means bigint
	Start     int64
	Increment int64
	Min       int64
	Max       int64
	Cache     int64
	Cycle     bool
	OwnedBy   string // "table.column", empty when unowned
}

func (s *Sequence) ID() Identity {
	return Identity{Schema: s.Schema, Name: s.Name, Kind: KindSequence}
}

// Enum represents an enumerated type. Label order is significant.
type Enum struct {
	Schema string
	Name   string
	Labels []string
}

func (e *Enum) ID() Identity {
	return Identity{Schema: e.Schema, Name: e.Name, Kind: KindEnum}
}

// TypeAttribute is one attribute of a composite type.
type TypeAttribute struct {
	Name string
	Type string
}

// CompositeType represents a composite type.
type CompositeType struct {
	Schema     string
	Name       string
	Attributes []TypeAttribute
}

func (c *CompositeType) ID() Identity {
	return Identity{Schema: c.Schema, Name: c.Name, Kind: KindCompositeType}
}

// DomainCheck is a named check constraint on a domain.
type DomainCheck struct {
	Name       string
	Expression string
}

// Domain represents a domain over a base type.
type Domain struct {
	Schema   string
	Name     string
	BaseType string
	NotNull  bool
	Default  string
	Checks   []DomainCheck
}

func (d *Domain) ID() Identity {
	return Identity{Schema: d.Schema, Name: d.Name, Kind: KindDomain}
}

// RangeType represents a range type.
type RangeType struct {
	Schema         string
	Name           string
	Subtype        string
	SubtypeOpclass string
	Collation      string
	Canonical      string
	SubtypeDiff    string
	Multirange     string
}

func (r *RangeType) ID() Identity {
	return Identity{Schema: r.Schema, Name: r.Name, Kind: KindRangeType}
}

// Extension represents an installed extension.
type Extension struct {
	Name    string
	Version string // requested version, empty for default
	Schema  string // target schema, empty for default
}

func (e *Extension) ID() Identity {
	return Identity{Name: e.Name, Kind: KindExtension}
}

// Trigger represents a trigger or, when Constraint is set, a constraint
// trigger. Function holds the complete target call, e.g. "audit.log('t')".
type Trigger struct {
	Schema            string
	Table             string
	Name              string
	Timing            string   // BEFORE, AFTER, INSTEAD OF
	Events            []string // subset of INSERT, UPDATE, DELETE, TRUNCATE
	UpdateColumns     []string // UPDATE OF columns, when given
	ForEachRow        bool
	Function          string
	When              string // canonical condition text
	OldTable          string // REFERENCING OLD TABLE AS
	NewTable          string
	Constraint        bool
	Deferrable        bool
	InitiallyDeferred bool
}

func (t *Trigger) ID() Identity {
	return Identity{Schema: t.Schema, Name: t.Name, Kind: KindTrigger, Signature: t.Table}
}

// EventTrigger represents an event trigger.
type EventTrigger struct {
	Name     string
	Event    string // ddl_command_start, ddl_command_end, sql_drop, table_rewrite
	Tags     []string
	Function string
}

func (e *EventTrigger) ID() Identity {
	return Identity{Name: e.Name, Kind: KindEventTrigger}
}

// Policy represents a row-level security policy.
type Policy struct {
	Schema     string
	Table      string
	Name       string
	Command    string // ALL, SELECT, INSERT, UPDATE, DELETE
	Roles      []string
	Using      string
	WithCheck  string
	Permissive bool
}

func (p *Policy) ID() Identity {
	return Identity{Schema: p.Schema, Name: p.Name, Kind: KindPolicy, Signature: p.Table}
}

// Rule represents a rewrite rule.
type Rule struct {
	Schema  string
	Table   string
	Name    string
	Event   string // SELECT, INSERT, UPDATE, DELETE
	Where   string
	Instead bool
	Actions string // command list as canonical text, "NOTHING" for DO NOTHING
}

func (r *Rule) ID() Identity {
	return Identity{Schema: r.Schema, Name: r.Name, Kind: KindRule, Signature: r.Table}
}

// ForeignServer represents a foreign server definition.
type ForeignServer struct {
	Name    string
	Wrapper string
	Options map[string]string
}

func (f *ForeignServer) ID() Identity {
	return Identity{Name: f.Name, Kind: KindForeignServer}
}

// Collation represents a collation.
type Collation struct {
	Schema        string
	Name          string
	Provider      string // icu or libc
	Locale        string
	Deterministic bool
}

func (c *Collation) ID() Identity {
	return Identity{Schema: c.Schema, Name: c.Name, Kind: KindCollation}
}

// NamedSchema represents a namespace.
type NamedSchema struct {
	Name  string
	Owner string
}

func (n *NamedSchema) ID() Identity {
	return Identity{Name: n.Name, Kind: KindSchema}
}

// Comment attaches a comment to another object by identity.
type Comment struct {
	Target Identity
	Text   string
}

func (c *Comment) ID() Identity {
	return Identity{
		Schema:    c.Target.Schema,
		Name:      c.Target.Name,
		Kind:      KindComment,
		Signature: string(c.Target.Kind) + ":" + c.Target.Signature,
	}
}
