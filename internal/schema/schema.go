package schema

import (
	"reflect"
	"sort"
	"strings"
)

// Schema is a complete model: a mapping from object identity to descriptor,
// plus opaque GRANT/REVOKE statements carried through verbatim.
type Schema struct {
	Objects map[Identity]Object
	Grants  []string
}

// New returns an empty model.
func New() *Schema {
	return &Schema{Objects: make(map[Identity]Object)}
}

// Add inserts an object. A duplicate identity is a semantic error.
func (s *Schema) Add(obj Object) error {
	id := obj.ID()
	if _, exists := s.Objects[id]; exists {
		return &SemanticError{ID: id, Reason: "duplicate object"}
	}
	s.Objects[id] = obj
	return nil
}

// Put inserts or replaces an object. Used where CREATE OR REPLACE semantics
// apply.
func (s *Schema) Put(obj Object) {
	s.Objects[obj.ID()] = obj
}

// Lookup returns the object with the given identity, if present.
func (s *Schema) Lookup(id Identity) (Object, bool) {
	obj, ok := s.Objects[id]
	return obj, ok
}

// Sorted returns all objects ordered by (schema, name, signature, kind).
func (s *Schema) Sorted() []Object {
	ids := make([]Identity, 0, len(s.Objects))
	for id := range s.Objects {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
	objs := make([]Object, len(ids))
	for i, id := range ids {
		objs[i] = s.Objects[id]
	}
	return objs
}

// OfKind returns all objects of one kind in sorted order.
func (s *Schema) OfKind(kind ObjectKind) []Object {
	var objs []Object
	for _, obj := range s.Sorted() {
		if obj.ID().Kind == kind {
			objs = append(objs, obj)
		}
	}
	return objs
}

// Equal reports whether two models describe the same database shape.
// Descriptors are normalized at construction, so deep value equality is the
// comparison.
func (s *Schema) Equal(other *Schema) bool {
	if len(s.Objects) != len(other.Objects) {
		return false
	}
	for id, obj := range s.Objects {
		theirs, ok := other.Objects[id]
		if !ok || !reflect.DeepEqual(obj, theirs) {
			return false
		}
	}
	return reflect.DeepEqual(s.Grants, other.Grants)
}

// ObjectsEqual compares two descriptors of the same identity.
func ObjectsEqual(a, b Object) bool {
	return reflect.DeepEqual(a, b)
}

// Validate enforces the model invariants: every referenced object must exist
// in the model or be a known built-in. All violations are collected so a
// single pass reports as many problems as possible.
func (s *Schema) Validate() []error {
	var errs []error
	missing := func(id Identity, ref string, what string) {
		errs = append(errs, &SemanticError{ID: id, Reason: "references unknown " + what + " " + ref})
	}

	for id, obj := range s.Objects {
		for _, dep := range DependenciesOf(obj, s) {
			if _, ok := s.Objects[dep]; !ok {
				missing(id, dep.String(), string(dep.Kind))
			}
		}
		// Type references resolve against the model or the built-in set.
		switch o := obj.(type) {
		case *Table:
			for _, col := range o.Columns {
				if !s.typeKnown(col.Type) {
					missing(id, col.Type, "type")
				}
			}
		case *Domain:
			if !s.typeKnown(o.BaseType) {
				missing(id, o.BaseType, "type")
			}
		case *CompositeType:
			for _, attr := range o.Attributes {
				if !s.typeKnown(attr.Type) {
					missing(id, attr.Type, "type")
				}
			}
		case *RangeType:
			if !s.typeKnown(o.Subtype) {
				missing(id, o.Subtype, "type")
			}
		case *Function:
			for _, arg := range o.Args {
				if !s.typeKnown(arg.Type) {
					missing(id, arg.Type, "type")
				}
			}
		}
	}
	return errs
}

// typeKnown reports whether a type name resolves to a built-in or to a type
// object in this model. Array and typmod decorations are stripped first.
func (s *Schema) typeKnown(name string) bool {
	base := BaseTypeName(name)
	if IsBuiltinType(base) {
		return true
	}
	for _, kind := range []ObjectKind{KindEnum, KindDomain, KindCompositeType, KindRangeType} {
		if s.hasType(base, kind) {
			return true
		}
	}
	// Tables double as row types.
	return s.hasType(base, KindTable) || s.hasType(base, KindView)
}

func (s *Schema) hasType(qualified string, kind ObjectKind) bool {
	schemaName, name := SplitQualified(qualified)
	if _, ok := s.Objects[Identity{Schema: schemaName, Name: name, Kind: kind}]; ok {
		return true
	}
	if schemaName == "public" {
		_, ok := s.Objects[Identity{Schema: "", Name: name, Kind: kind}]
		return ok
	}
	return false
}

// SplitQualified splits "schema.name" into its parts, defaulting the schema
// to public for bare names.
func SplitQualified(qualified string) (schemaName, name string) {
	if i := strings.IndexByte(qualified, '.'); i >= 0 {
		return qualified[:i], qualified[i+1:]
	}
	return "public", qualified
}

// BaseTypeName strips array bounds and type modifiers: "numeric(10,2)[]"
// becomes "numeric".
func BaseTypeName(name string) string {
	name = strings.TrimSpace(name)
	for strings.HasSuffix(name, "[]") {
		name = strings.TrimSuffix(name, "[]")
	}
	if i := strings.IndexByte(name, '('); i >= 0 {
		name = name[:i]
	}
	return strings.TrimSpace(name)
}
