package emit

import (
	"sort"
	"strconv"
	"strings"

	"github.com/shem-sql/shem/internal/schema"
)

// CreateStatements renders the DDL creating one object. The second return
// carries foreign-key attachments that belong to the late phase. Dispatch
// is exhaustive over the closed kind set; a new kind must extend it.
func CreateStatements(obj schema.Object) (stmts, fkAdds []string) {
	switch o := obj.(type) {
	case *schema.Table:
		stmt, fks := CreateTableStatement(o)
		return []string{stmt}, fks
	case *schema.Index:
		return []string{createIndexStatement(o)}, nil
	case *schema.View:
		return []string{createViewStatement(o)}, nil
	case *schema.MaterializedView:
		return []string{createMaterializedViewStatement(o)}, nil
	case *schema.Function:
		return []string{functionStatement(o, false)}, nil
	case *schema.Sequence:
		return []string{createSequenceStatement(o)}, nil
	case *schema.Enum:
		return []string{createEnumStatement(o)}, nil
	case *schema.CompositeType:
		return []string{createCompositeStatement(o)}, nil
	case *schema.Domain:
		return []string{createDomainStatement(o)}, nil
	case *schema.RangeType:
		return []string{createRangeStatement(o)}, nil
	case *schema.Extension:
		return []string{createExtensionStatement(o)}, nil
	case *schema.Trigger:
		return []string{createTriggerStatement(o)}, nil
	case *schema.EventTrigger:
		return []string{createEventTriggerStatement(o)}, nil
	case *schema.Policy:
		return []string{createPolicyStatement(o)}, nil
	case *schema.Rule:
		return []string{createRuleStatement(o)}, nil
	case *schema.ForeignServer:
		return []string{createForeignServerStatement(o)}, nil
	case *schema.Collation:
		return []string{createCollationStatement(o)}, nil
	case *schema.NamedSchema:
		return []string{createSchemaStatement(o)}, nil
	case *schema.Comment:
		return []string{commentStatement(o)}, nil
	}
	return nil, nil
}

// DropStatement renders the DDL dropping one object. CASCADE is appended
// only when enabled; the default is RESTRICT semantics.
func DropStatement(obj schema.Object, cascade bool) string {
	suffix := ";"
	if cascade {
		suffix = " CASCADE;"
	}
	switch o := obj.(type) {
	case *schema.Table:
		return "DROP TABLE " + QualifyName(o.Schema, o.Name) + suffix
	case *schema.Index:
		return "DROP INDEX " + QualifyName(o.Schema, o.Name) + suffix
	case *schema.View:
		return "DROP VIEW " + QualifyName(o.Schema, o.Name) + suffix
	case *schema.MaterializedView:
		return "DROP MATERIALIZED VIEW " + QualifyName(o.Schema, o.Name) + suffix
	case *schema.Function:
		keyword := "FUNCTION"
		if o.Procedure {
			keyword = "PROCEDURE"
		}
		return "DROP " + keyword + " " + QualifyName(o.Schema, o.Name) + "(" + o.Signature() + ")" + suffix
	case *schema.Sequence:
		return "DROP SEQUENCE " + QualifyName(o.Schema, o.Name) + suffix
	case *schema.Enum, *schema.CompositeType, *schema.RangeType:
		id := obj.ID()
		return "DROP TYPE " + QualifyName(id.Schema, id.Name) + suffix
	case *schema.Domain:
		return "DROP DOMAIN " + QualifyName(o.Schema, o.Name) + suffix
	case *schema.Extension:
		return "DROP EXTENSION " + QuoteIdentifier(o.Name) + suffix
	case *schema.Trigger:
		return "DROP TRIGGER " + QuoteIdentifier(o.Name) + " ON " + QualifyName(o.Schema, o.Table) + suffix
	case *schema.EventTrigger:
		return "DROP EVENT TRIGGER " + QuoteIdentifier(o.Name) + suffix
	case *schema.Policy:
		return "DROP POLICY " + QuoteIdentifier(o.Name) + " ON " + QualifyName(o.Schema, o.Table) + suffix
	case *schema.Rule:
		return "DROP RULE " + QuoteIdentifier(o.Name) + " ON " + QualifyName(o.Schema, o.Table) + suffix
	case *schema.ForeignServer:
		return "DROP SERVER " + QuoteIdentifier(o.Name) + suffix
	case *schema.Collation:
		return "DROP COLLATION " + QualifyName(o.Schema, o.Name) + suffix
	case *schema.NamedSchema:
		return "DROP SCHEMA " + QuoteIdentifier(o.Name) + suffix
	case *schema.Comment:
		return commentDropStatement(o)
	}
	return ""
}

func createIndexStatement(idx *schema.Index) string {
	var b strings.Builder
	b.WriteString("CREATE ")
	if idx.Unique {
		b.WriteString("UNIQUE ")
	}
	b.WriteString("INDEX " + QuoteIdentifier(idx.Name) + " ON " + QualifyName(idx.Schema, idx.Table))
	if idx.Method != "" && idx.Method != "btree" {
		b.WriteString(" USING " + idx.Method)
	}
	var keys []string
	for _, key := range idx.Keys {
		part := key.Expr
		if !isPlainColumn(part) {
			part = "(" + part + ")"
		} else {
			part = QuoteIdentifier(part)
		}
		if key.Opclass != "" {
			part += " " + key.Opclass
		}
		if key.Desc {
			part += " DESC"
		}
		keys = append(keys, part)
	}
	b.WriteString(" (" + strings.Join(keys, ", ") + ")")
	if len(idx.Include) > 0 {
		b.WriteString(" INCLUDE (" + identifierList(idx.Include) + ")")
	}
	if len(idx.Storage) > 0 {
		b.WriteString(" WITH (" + strings.Join(idx.Storage, ", ") + ")")
	}
	if idx.Predicate != "" {
		b.WriteString(" WHERE " + idx.Predicate)
	}
	b.WriteString(";")
	return b.String()
}

func isPlainColumn(expr string) bool {
	return !strings.ContainsAny(expr, " ()")
}

func createViewStatement(v *schema.View) string {
	var b strings.Builder
	b.WriteString("CREATE VIEW " + QualifyName(v.Schema, v.Name))
	if v.SecurityBarrier {
		b.WriteString(" WITH (security_barrier = true)")
	}
	b.WriteString(" AS " + v.Query)
	if v.CheckOption != "" {
		b.WriteString(" WITH " + v.CheckOption + " CHECK OPTION")
	}
	b.WriteString(";")
	return b.String()
}

func createMaterializedViewStatement(m *schema.MaterializedView) string {
	stmt := "CREATE MATERIALIZED VIEW " + QualifyName(m.Schema, m.Name) + " AS " + m.Query
	if !m.WithData {
		stmt += " WITH NO DATA"
	}
	return stmt + ";"
}

// functionStatement renders CREATE [OR REPLACE] FUNCTION/PROCEDURE.
func functionStatement(fn *schema.Function, orReplace bool) string {
	var b strings.Builder
	b.WriteString("CREATE ")
	if orReplace {
		b.WriteString("OR REPLACE ")
	}
	if fn.Procedure {
		b.WriteString("PROCEDURE ")
	} else {
		b.WriteString("FUNCTION ")
	}
	b.WriteString(QualifyName(fn.Schema, fn.Name) + "(" + argumentList(fn.Args) + ")")
	if !fn.Procedure && fn.Returns != "" {
		b.WriteString(" RETURNS " + fn.Returns)
	}
	b.WriteString(" LANGUAGE " + fn.Language)
	if !fn.Procedure {
		if fn.Volatility != "" && fn.Volatility != "VOLATILE" {
			b.WriteString(" " + fn.Volatility)
		}
		if fn.Strict {
			b.WriteString(" STRICT")
		}
	}
	if fn.SecurityDefiner {
		b.WriteString(" SECURITY DEFINER")
	}
	b.WriteString(" AS " + dollarQuote(fn.Body) + ";")
	return b.String()
}

// ReplaceFunctionStatements renders the in-place form for an unchanged
// signature.
func ReplaceFunctionStatements(fn *schema.Function) []string {
	return []string{functionStatement(fn, true)}
}

func argumentList(args []schema.Argument) string {
	var parts []string
	for _, arg := range args {
		var b strings.Builder
		if arg.Mode != "" && arg.Mode != schema.ArgIn {
			b.WriteString(string(arg.Mode) + " ")
		}
		if arg.Name != "" {
			b.WriteString(QuoteIdentifier(arg.Name) + " ")
		}
		b.WriteString(arg.Type)
		if arg.Default != "" {
			b.WriteString(" DEFAULT " + arg.Default)
		}
		parts = append(parts, b.String())
	}
	return strings.Join(parts, ", ")
}

// dollarQuote wraps a body in a dollar-quoted string, widening the tag
// until it cannot collide with the payload.
func dollarQuote(body string) string {
	tag := "$shem$"
	for strings.Contains(body, tag) {
		tag = "$" + strings.TrimSuffix(strings.TrimPrefix(tag, "$"), "$") + "_$"
	}
	return tag + body + tag
}

func createSequenceStatement(seq *schema.Sequence) string {
	var b strings.Builder
	b.WriteString("CREATE SEQUENCE " + QualifyName(seq.Schema, seq.Name))
	if seq.Type != "" {
		b.WriteString(" AS " + seq.Type)
	}
	if seq.Increment != 0 && seq.Increment != 1 {
		b.WriteString(" INCREMENT BY " + strconv.FormatInt(seq.Increment, 10))
	}
	if seq.Min != 0 {
		b.WriteString(" MINVALUE " + strconv.FormatInt(seq.Min, 10))
	}
	if seq.Max != 0 {
		b.WriteString(" MAXVALUE " + strconv.FormatInt(seq.Max, 10))
	}
	if seq.Start != 0 && seq.Start != 1 {
		b.WriteString(" START WITH " + strconv.FormatInt(seq.Start, 10))
	}
	if seq.Cache != 0 && seq.Cache != 1 {
		b.WriteString(" CACHE " + strconv.FormatInt(seq.Cache, 10))
	}
	if seq.Cycle {
		b.WriteString(" CYCLE")
	}
	if seq.OwnedBy != "" {
		b.WriteString(" OWNED BY " + ownedByTarget(seq))
	}
	return b.String() + ";"
}

func ownedByTarget(seq *schema.Sequence) string {
	table, column := seq.OwnedBy, ""
	if i := strings.LastIndexByte(seq.OwnedBy, '.'); i >= 0 {
		table, column = seq.OwnedBy[:i], seq.OwnedBy[i+1:]
	}
	return QualifyName(seq.Schema, table) + "." + QuoteIdentifier(column)
}

// AlterSequenceStatements renders every changed attribute; ownership uses
// its own OWNED BY clause.
func AlterSequenceStatements(old, new_ *schema.Sequence) []string {
	var clauses []string
	if old.Type != new_.Type && new_.Type != "" {
		clauses = append(clauses, "AS "+new_.Type)
	}
	if old.Increment != new_.Increment {
		clauses = append(clauses, "INCREMENT BY "+strconv.FormatInt(orDefault(new_.Increment, 1), 10))
	}
	if old.Min != new_.Min {
		if new_.Min == 0 {
			clauses = append(clauses, "NO MINVALUE")
		} else {
			clauses = append(clauses, "MINVALUE "+strconv.FormatInt(new_.Min, 10))
		}
	}
	if old.Max != new_.Max {
		if new_.Max == 0 {
			clauses = append(clauses, "NO MAXVALUE")
		} else {
			clauses = append(clauses, "MAXVALUE "+strconv.FormatInt(new_.Max, 10))
		}
	}
	if old.Start != new_.Start {
		clauses = append(clauses, "START WITH "+strconv.FormatInt(orDefault(new_.Start, 1), 10))
	}
	if old.Cache != new_.Cache {
		clauses = append(clauses, "CACHE "+strconv.FormatInt(orDefault(new_.Cache, 1), 10))
	}
	if old.Cycle != new_.Cycle {
		if new_.Cycle {
			clauses = append(clauses, "CYCLE")
		} else {
			clauses = append(clauses, "NO CYCLE")
		}
	}

	target := QualifyName(new_.Schema, new_.Name)
	var stmts []string
	if len(clauses) > 0 {
		stmts = append(stmts, "ALTER SEQUENCE "+target+" "+strings.Join(clauses, " ")+";")
	}
	if old.OwnedBy != new_.OwnedBy {
		owner := "NONE"
		if new_.OwnedBy != "" {
			owner = ownedByTarget(new_)
		}
		stmts = append(stmts, "ALTER SEQUENCE "+target+" OWNED BY "+owner+";")
	}
	return stmts
}

func orDefault(v, fallback int64) int64 {
	if v == 0 {
		return fallback
	}
	return v
}

func createEnumStatement(e *schema.Enum) string {
	labels := make([]string, len(e.Labels))
	for i, label := range e.Labels {
		labels[i] = quoteLiteral(label)
	}
	return "CREATE TYPE " + QualifyName(e.Schema, e.Name) + " AS ENUM (" + strings.Join(labels, ", ") + ");"
}

// AlterEnumStatements appends the new labels; the differ guarantees the
// change is append-only before routing here.
func AlterEnumStatements(old, new_ *schema.Enum) []string {
	var stmts []string
	for _, label := range new_.Labels[len(old.Labels):] {
		stmts = append(stmts, "ALTER TYPE "+QualifyName(new_.Schema, new_.Name)+" ADD VALUE "+quoteLiteral(label)+";")
	}
	return stmts
}

func createCompositeStatement(c *schema.CompositeType) string {
	attrs := make([]string, len(c.Attributes))
	for i, attr := range c.Attributes {
		attrs[i] = QuoteIdentifier(attr.Name) + " " + attr.Type
	}
	return "CREATE TYPE " + QualifyName(c.Schema, c.Name) + " AS (" + strings.Join(attrs, ", ") + ");"
}

func createDomainStatement(d *schema.Domain) string {
	var b strings.Builder
	b.WriteString("CREATE DOMAIN " + QualifyName(d.Schema, d.Name) + " AS " + d.BaseType)
	if d.Default != "" {
		b.WriteString(" DEFAULT " + d.Default)
	}
	if d.NotNull {
		b.WriteString(" NOT NULL")
	}
	for _, check := range d.Checks {
		b.WriteString(" CONSTRAINT " + QuoteIdentifier(check.Name) + " CHECK (" + check.Expression + ")")
	}
	return b.String() + ";"
}

func createRangeStatement(r *schema.RangeType) string {
	clauses := []string{"subtype = " + r.Subtype}
	if r.SubtypeOpclass != "" {
		clauses = append(clauses, "subtype_opclass = "+r.SubtypeOpclass)
	}
	if r.Collation != "" {
		clauses = append(clauses, "collation = "+QualifyDotted(r.Collation))
	}
	if r.Canonical != "" {
		clauses = append(clauses, "canonical = "+r.Canonical)
	}
	if r.SubtypeDiff != "" {
		clauses = append(clauses, "subtype_diff = "+r.SubtypeDiff)
	}
	if r.Multirange != "" {
		clauses = append(clauses, "multirange_type_name = "+r.Multirange)
	}
	return "CREATE TYPE " + QualifyName(r.Schema, r.Name) + " AS RANGE (" + strings.Join(clauses, ", ") + ");"
}

func createExtensionStatement(e *schema.Extension) string {
	stmt := "CREATE EXTENSION IF NOT EXISTS " + QuoteIdentifier(e.Name)
	if e.Schema != "" {
		stmt += " SCHEMA " + QuoteIdentifier(e.Schema)
	}
	if e.Version != "" {
		stmt += " VERSION " + quoteLiteral(e.Version)
	}
	return stmt + ";"
}

func createTriggerStatement(t *schema.Trigger) string {
	var b strings.Builder
	if t.Constraint {
		b.WriteString("CREATE CONSTRAINT TRIGGER ")
	} else {
		b.WriteString("CREATE TRIGGER ")
	}
	b.WriteString(QuoteIdentifier(t.Name) + " " + t.Timing + " ")
	var events []string
	for _, event := range t.Events {
		if event == "UPDATE" && len(t.UpdateColumns) > 0 {
			events = append(events, "UPDATE OF "+identifierList(t.UpdateColumns))
		} else {
			events = append(events, event)
		}
	}
	b.WriteString(strings.Join(events, " OR "))
	b.WriteString(" ON " + QualifyName(t.Schema, t.Table))
	if t.Constraint {
		if t.Deferrable {
			b.WriteString(" DEFERRABLE")
			if t.InitiallyDeferred {
				b.WriteString(" INITIALLY DEFERRED")
			} else {
				b.WriteString(" INITIALLY IMMEDIATE")
			}
		} else {
			b.WriteString(" NOT DEFERRABLE")
		}
	}
	if t.OldTable != "" || t.NewTable != "" {
		b.WriteString(" REFERENCING")
		if t.OldTable != "" {
			b.WriteString(" OLD TABLE AS " + QuoteIdentifier(t.OldTable))
		}
		if t.NewTable != "" {
			b.WriteString(" NEW TABLE AS " + QuoteIdentifier(t.NewTable))
		}
	}
	if t.ForEachRow {
		b.WriteString(" FOR EACH ROW")
	} else {
		b.WriteString(" FOR EACH STATEMENT")
	}
	if t.When != "" {
		b.WriteString(" WHEN (" + t.When + ")")
	}
	b.WriteString(" EXECUTE FUNCTION " + t.Function + ";")
	return b.String()
}

func createEventTriggerStatement(e *schema.EventTrigger) string {
	var b strings.Builder
	b.WriteString("CREATE EVENT TRIGGER " + QuoteIdentifier(e.Name) + " ON " + e.Event)
	if len(e.Tags) > 0 {
		tags := make([]string, len(e.Tags))
		for i, tag := range e.Tags {
			tags[i] = quoteLiteral(tag)
		}
		b.WriteString(" WHEN TAG IN (" + strings.Join(tags, ", ") + ")")
	}
	b.WriteString(" EXECUTE FUNCTION " + e.Function + ";")
	return b.String()
}

func createPolicyStatement(p *schema.Policy) string {
	var b strings.Builder
	b.WriteString("CREATE POLICY " + QuoteIdentifier(p.Name) + " ON " + QualifyName(p.Schema, p.Table))
	if !p.Permissive {
		b.WriteString(" AS RESTRICTIVE")
	}
	if p.Command != "" && p.Command != "ALL" {
		b.WriteString(" FOR " + p.Command)
	}
	if len(p.Roles) > 0 && !(len(p.Roles) == 1 && p.Roles[0] == "PUBLIC") {
		b.WriteString(" TO " + strings.Join(p.Roles, ", "))
	}
	if p.Using != "" {
		b.WriteString(" USING (" + p.Using + ")")
	}
	if p.WithCheck != "" {
		b.WriteString(" WITH CHECK (" + p.WithCheck + ")")
	}
	b.WriteString(";")
	return b.String()
}

func createRuleStatement(r *schema.Rule) string {
	var b strings.Builder
	b.WriteString("CREATE RULE " + QuoteIdentifier(r.Name) + " AS ON " + r.Event)
	b.WriteString(" TO " + QualifyName(r.Schema, r.Table))
	if r.Where != "" {
		b.WriteString(" WHERE " + r.Where)
	}
	b.WriteString(" DO")
	if r.Instead {
		b.WriteString(" INSTEAD")
	}
	if r.Actions == "NOTHING" || r.Actions == "" {
		b.WriteString(" NOTHING")
	} else {
		b.WriteString(" " + r.Actions)
	}
	b.WriteString(";")
	return b.String()
}

func createForeignServerStatement(f *schema.ForeignServer) string {
	var b strings.Builder
	b.WriteString("CREATE SERVER " + QuoteIdentifier(f.Name) + " FOREIGN DATA WRAPPER " + QuoteIdentifier(f.Wrapper))
	if len(f.Options) > 0 {
		keys := make([]string, 0, len(f.Options))
		for key := range f.Options {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		opts := make([]string, len(keys))
		for i, key := range keys {
			opts[i] = QuoteIdentifier(key) + " " + quoteLiteral(f.Options[key])
		}
		b.WriteString(" OPTIONS (" + strings.Join(opts, ", ") + ")")
	}
	b.WriteString(";")
	return b.String()
}

func createCollationStatement(c *schema.Collation) string {
	clauses := []string{"provider = " + c.Provider, "locale = " + quoteLiteral(c.Locale)}
	if !c.Deterministic {
		clauses = append(clauses, "deterministic = false")
	}
	return "CREATE COLLATION " + QualifyName(c.Schema, c.Name) + " (" + strings.Join(clauses, ", ") + ");"
}

func createSchemaStatement(n *schema.NamedSchema) string {
	stmt := "CREATE SCHEMA " + QuoteIdentifier(n.Name)
	if n.Owner != "" {
		stmt += " AUTHORIZATION " + QuoteIdentifier(n.Owner)
	}
	return stmt + ";"
}

func commentStatement(c *schema.Comment) string {
	return "COMMENT ON " + commentTargetSQL(c.Target) + " IS " + quoteLiteral(c.Text) + ";"
}

func commentDropStatement(c *schema.Comment) string {
	return "COMMENT ON " + commentTargetSQL(c.Target) + " IS NULL;"
}

func commentTargetSQL(target schema.Identity) string {
	qualified := QualifyName(target.Schema, target.Name)
	if column, isColumn := strings.CutPrefix(target.Signature, "column:"); isColumn && target.Kind == schema.KindTable {
		return "COLUMN " + qualified + "." + QuoteIdentifier(column)
	}
	switch target.Kind {
	case schema.KindTable:
		return "TABLE " + qualified
	case schema.KindView:
		return "VIEW " + qualified
	case schema.KindMaterializedView:
		return "MATERIALIZED VIEW " + qualified
	case schema.KindIndex:
		return "INDEX " + qualified
	case schema.KindSequence:
		return "SEQUENCE " + qualified
	case schema.KindEnum, schema.KindCompositeType, schema.KindRangeType:
		return "TYPE " + qualified
	case schema.KindDomain:
		return "DOMAIN " + qualified
	case schema.KindFunction:
		return "FUNCTION " + qualified + "(" + target.Signature + ")"
	case schema.KindSchema:
		return "SCHEMA " + QuoteIdentifier(target.Name)
	case schema.KindExtension:
		return "EXTENSION " + QuoteIdentifier(target.Name)
	}
	return string(target.Kind) + " " + qualified
}

// IsDestructive reports whether a statement falls in the destructive set:
// any DROP, a column type rewrite without an explicit cast, DROP COLUMN,
// and TRUNCATE.
func IsDestructive(stmt string) bool {
	upper := strings.ToUpper(stmt)
	switch {
	case strings.HasPrefix(upper, "DROP "):
		return true
	case strings.HasPrefix(upper, "TRUNCATE"):
		return true
	case strings.Contains(upper, " DROP COLUMN "):
		return true
	case strings.Contains(upper, " TYPE ") && strings.Contains(upper, " ALTER COLUMN ") && !strings.Contains(upper, " USING "):
		return true
	}
	return false
}
