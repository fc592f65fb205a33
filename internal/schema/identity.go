package schema

import "fmt"

// ObjectKind identifies one of the supported PostgreSQL object kinds.
// The set is closed: emitters, introspectors, and the dependency oracle
// dispatch on it explicitly.
type ObjectKind string

const (
	KindSchema           ObjectKind = "schema"
	KindExtension        ObjectKind = "extension"
	KindCollation        ObjectKind = "collation"
	KindEnum             ObjectKind = "enum"
	KindCompositeType    ObjectKind = "composite_type"
	KindDomain           ObjectKind = "domain"
	KindRangeType        ObjectKind = "range_type"
	KindSequence         ObjectKind = "sequence"
	KindTable            ObjectKind = "table"
	KindIndex            ObjectKind = "index"
	KindView             ObjectKind = "view"
	KindMaterializedView ObjectKind = "materialized_view"
	KindFunction         ObjectKind = "function"
	KindProcedure        ObjectKind = "procedure"
	KindTrigger          ObjectKind = "trigger"
	KindEventTrigger     ObjectKind = "event_trigger"
	KindPolicy           ObjectKind = "policy"
	KindRule             ObjectKind = "rule"
	KindForeignServer    ObjectKind = "foreign_server"
	KindComment          ObjectKind = "comment"
)

// Identity distinguishes one object from all others in a model.
//
// Schema is empty for global objects (extensions, event triggers, foreign
// servers). Signature carries the discriminator for objects whose name alone
// is not unique: the argument type list for functions and procedures, the
// unqualified table name for triggers, policies, and rules, and
// "<target kind>:<target signature>" for comments.
type Identity struct {
	Schema    string
	Name      string
	Kind      ObjectKind
	Signature string
}

func (id Identity) String() string {
	qualified := id.Name
	if id.Schema != "" {
		qualified = id.Schema + "." + id.Name
	}
	if id.Signature != "" {
		return fmt.Sprintf("%s %s(%s)", id.Kind, qualified, id.Signature)
	}
	return fmt.Sprintf("%s %s", id.Kind, qualified)
}

// Less orders identities lexicographically by (schema, name, signature),
// the tie-break used inside a topological layer.
func (id Identity) Less(other Identity) bool {
	if id.Schema != other.Schema {
		return id.Schema < other.Schema
	}
	if id.Name != other.Name {
		return id.Name < other.Name
	}
	if id.Signature != other.Signature {
		return id.Signature < other.Signature
	}
	return id.Kind < other.Kind
}
