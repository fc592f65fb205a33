package schema

import (
	"sort"
	"strings"
)

// DependenciesOf is the dependency oracle: it yields the identities of
// every object in the model that obj references. It is deliberately
// conservative — a false positive only costs ordering redundancy, while a
// false negative would let invalid SQL be emitted.
//
// References inside free-form expression text (view queries, function
// bodies, predicates) are resolved by scanning the text for names the model
// knows; semantic resolution beyond that is out of scope.
func DependenciesOf(obj Object, s *Schema) []Identity {
	var deps []Identity
	add := func(id Identity, ok bool) {
		if ok {
			deps = append(deps, id)
		}
	}

	switch o := obj.(type) {
	case *Table:
		add(s.namespaceOf(o.Schema))
		for _, col := range o.Columns {
			add(s.typeObject(col.Type))
			if col.Collation != "" {
				add(s.findQualified(col.Collation, KindCollation))
			}
			if col.Default != "" {
				deps = append(deps, s.scanText(col.Default, KindSequence, KindFunction)...)
			}
		}
		for _, con := range o.Constraints {
			if con.Type == ConstraintForeignKey && con.RefTable != "" {
				add(s.findQualified(con.RefTable, KindTable))
			}
		}
		for _, parent := range o.Inherits {
			add(s.findQualified(parent, KindTable))
		}

	case *Index:
		add(s.namespaceOf(o.Schema))
		target, ok := s.findQualified(o.Schema+"."+o.Table, KindTable)
		if !ok {
			target, ok = s.findQualified(o.Schema+"."+o.Table, KindMaterializedView)
		}
		add(target, ok)
		for _, key := range o.Keys {
			deps = append(deps, s.scanText(key.Expr, KindFunction)...)
		}

	case *View:
		add(s.namespaceOf(o.Schema))
		deps = append(deps, s.scanText(o.Query,
			KindTable, KindView, KindMaterializedView, KindFunction)...)

	case *MaterializedView:
		add(s.namespaceOf(o.Schema))
		deps = append(deps, s.scanText(o.Query,
			KindTable, KindView, KindMaterializedView, KindFunction)...)

	case *Function:
		add(s.namespaceOf(o.Schema))
		for _, arg := range o.Args {
			add(s.typeObject(arg.Type))
		}
		if o.Returns != "" {
			ret := strings.TrimPrefix(o.Returns, "SETOF ")
			if !strings.HasPrefix(ret, "TABLE(") {
				add(s.typeObject(ret))
			}
		}
		deps = append(deps, s.scanText(o.Body, KindTable, KindView, KindEnum, KindDomain)...)

	case *Sequence:
		add(s.namespaceOf(o.Schema))
		if o.OwnedBy != "" {
			table := o.OwnedBy
			if i := strings.LastIndexByte(table, '.'); i >= 0 {
				table = table[:i]
			}
			if !strings.Contains(table, ".") {
				table = o.Schema + "." + table
			}
			add(s.findQualified(table, KindTable))
		}

	case *Enum:
		add(s.namespaceOf(o.Schema))

	case *CompositeType:
		add(s.namespaceOf(o.Schema))
		for _, attr := range o.Attributes {
			add(s.typeObject(attr.Type))
		}

	case *Domain:
		add(s.namespaceOf(o.Schema))
		add(s.typeObject(o.BaseType))

	case *RangeType:
		add(s.namespaceOf(o.Schema))
		add(s.typeObject(o.Subtype))
		if o.Canonical != "" {
			deps = append(deps, s.scanText(o.Canonical, KindFunction)...)
		}
		if o.SubtypeDiff != "" {
			deps = append(deps, s.scanText(o.SubtypeDiff, KindFunction)...)
		}

	case *Extension:
		// Extensions depend on nothing.

	case *Trigger:
		add(s.namespaceOf(o.Schema))
		add(s.findQualified(o.Schema+"."+o.Table, KindTable))
		deps = append(deps, s.scanText(o.Function, KindFunction)...)

	case *EventTrigger:
		deps = append(deps, s.scanText(o.Function, KindFunction)...)

	case *Policy:
		add(s.namespaceOf(o.Schema))
		add(s.findQualified(o.Schema+"."+o.Table, KindTable))

	case *Rule:
		add(s.namespaceOf(o.Schema))
		target, ok := s.findQualified(o.Schema+"."+o.Table, KindTable)
		if !ok {
			target, ok = s.findQualified(o.Schema+"."+o.Table, KindView)
		}
		add(target, ok)
		deps = append(deps, s.scanText(o.Actions, KindTable, KindView)...)

	case *ForeignServer, *Collation, *NamedSchema:
		// Leaves.

	case *Comment:
		if _, ok := s.Objects[o.Target]; ok {
			deps = append(deps, o.Target)
		}
	}

	return dedupe(deps, obj.ID())
}

// DependentsOf inverts the oracle over the whole model: every object whose
// dependencies include id.
func DependentsOf(id Identity, s *Schema) []Identity {
	var out []Identity
	for _, obj := range s.Sorted() {
		for _, dep := range DependenciesOf(obj, s) {
			if dep == id {
				out = append(out, obj.ID())
				break
			}
		}
	}
	return out
}

// typeObject resolves a type name against the model's type kinds.
func (s *Schema) typeObject(typeName string) (Identity, bool) {
	base := BaseTypeName(typeName)
	if IsBuiltinType(base) {
		return Identity{}, false
	}
	for _, kind := range []ObjectKind{KindEnum, KindDomain, KindCompositeType, KindRangeType, KindTable} {
		if id, ok := s.findQualified(base, kind); ok {
			return id, true
		}
	}
	return Identity{}, false
}

func (s *Schema) findQualified(qualified string, kind ObjectKind) (Identity, bool) {
	schemaName, name := SplitQualified(qualified)
	id := Identity{Schema: schemaName, Name: name, Kind: kind}
	if _, ok := s.Objects[id]; ok {
		return id, true
	}
	return Identity{}, false
}

func (s *Schema) namespaceOf(schemaName string) (Identity, bool) {
	if schemaName == "" || schemaName == "public" {
		return Identity{}, false
	}
	id := Identity{Name: schemaName, Kind: KindSchema}
	_, ok := s.Objects[id]
	return id, ok
}

// scanText finds model objects of the given kinds whose names appear as
// identifiers in free-form SQL text.
func (s *Schema) scanText(text string, kinds ...ObjectKind) []Identity {
	if text == "" {
		return nil
	}
	words := identifierSet(text)
	var out []Identity
	for id := range s.Objects {
		for _, kind := range kinds {
			if id.Kind != kind {
				continue
			}
			if _, ok := words[id.Name]; ok {
				out = append(out, id)
			}
		}
	}
	return out
}

func identifierSet(text string) map[string]struct{} {
	words := make(map[string]struct{})
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			words[cur.String()] = struct{}{}
			cur.Reset()
		}
	}
	for _, r := range text {
		if r == '_' || r == '$' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			cur.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return words
}

func dedupe(ids []Identity, self Identity) []Identity {
	seen := map[Identity]struct{}{self: {}}
	var out []Identity
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}
