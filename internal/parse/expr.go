package parse

import (
	"strconv"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// Expression text is canonicalized by round-tripping through the grammar
// and re-printing, so two spellings that differ only in whitespace or
// parenthesization compare equal. Semantically-but-not-textually equivalent
// expressions (a+b vs b+a) remain different.

// deparseExprNode renders an expression node back to canonical SQL by
// wrapping it in a transient SELECT and cutting the prefix.
func deparseExprNode(expr *pg_query.Node) string {
	if expr == nil {
		return ""
	}
	sel := &pg_query.SelectStmt{
		TargetList: []*pg_query.Node{{
			Node: &pg_query.Node_ResTarget{
				ResTarget: &pg_query.ResTarget{Val: expr},
			},
		}},
	}
	result := &pg_query.ParseResult{
		Stmts: []*pg_query.RawStmt{{
			Stmt: &pg_query.Node{Node: &pg_query.Node_SelectStmt{SelectStmt: sel}},
		}},
	}
	deparsed, err := pg_query.Deparse(result)
	if err != nil {
		return ""
	}
	if cut, found := strings.CutPrefix(deparsed, "SELECT "); found {
		return strings.TrimSpace(cut)
	}
	return strings.TrimSpace(deparsed)
}

// deparseStmtNode renders a full statement node back to canonical SQL.
func deparseStmtNode(stmt *pg_query.Node) string {
	if stmt == nil {
		return ""
	}
	result := &pg_query.ParseResult{
		Stmts: []*pg_query.RawStmt{{Stmt: stmt}},
	}
	deparsed, err := pg_query.Deparse(result)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(deparsed)
}

// NormalizeExpr canonicalizes free-form expression text. The introspector
// feeds catalog-reported expressions through this so both sides of a diff
// print identically.
func NormalizeExpr(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	result, err := pg_query.Parse("SELECT " + text)
	if err != nil || len(result.Stmts) != 1 {
		return text
	}
	sel := result.Stmts[0].Stmt.GetSelectStmt()
	if sel == nil || len(sel.TargetList) != 1 {
		return text
	}
	target := sel.TargetList[0].GetResTarget()
	if target == nil {
		return text
	}
	if normalized := deparseExprNode(target.Val); normalized != "" {
		return normalized
	}
	return text
}

// NormalizeQuery canonicalizes a complete query (view bodies). Statement
// terminators are stripped so parser- and catalog-sourced text agree.
func NormalizeQuery(text string) string {
	text = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), ";"))
	if text == "" {
		return ""
	}
	result, err := pg_query.Parse(text)
	if err != nil || len(result.Stmts) != 1 {
		return text
	}
	if normalized := deparseStmtNode(result.Stmts[0].Stmt); normalized != "" {
		return normalized
	}
	return text
}

// NormalizeBody applies the shared trim rule for opaque function bodies.
// PostgreSQL trims stored definitions the same way, so parser- and
// catalog-sourced bodies agree byte for byte.
func NormalizeBody(body string) string {
	return strings.Trim(body, "\n\r\t ")
}

// qualifiedName joins a name list ("schema"."name") into dotted text,
// returning the default schema when the list is unqualified.
func qualifiedName(names []*pg_query.Node, defaultSchema string) (schemaName, name string) {
	schemaName = defaultSchema
	var parts []string
	for _, node := range names {
		if str := node.GetString_(); str != nil {
			parts = append(parts, str.Sval)
		}
	}
	switch len(parts) {
	case 0:
	case 1:
		name = parts[0]
	default:
		schemaName = parts[len(parts)-2]
		name = parts[len(parts)-1]
	}
	return
}

// rangeVarName resolves a RangeVar against the default schema.
func rangeVarName(rv *pg_query.RangeVar, defaultSchema string) (schemaName, name string) {
	if rv == nil {
		return defaultSchema, ""
	}
	schemaName = rv.Schemaname
	if schemaName == "" {
		schemaName = defaultSchema
	}
	return schemaName, rv.Relname
}

// typeNameText renders a TypeName into canonical, qualified text with
// modifiers and array bounds.
func typeNameText(tn *pg_query.TypeName) string {
	if tn == nil {
		return ""
	}
	var parts []string
	for _, node := range tn.Names {
		if str := node.GetString_(); str != nil {
			parts = append(parts, str.Sval)
		}
	}
	// pg_catalog-qualified internal names resolve to their SQL spellings.
	if len(parts) == 2 && parts[0] == "pg_catalog" {
		parts = parts[1:]
	}
	name := strings.Join(parts, ".")
	name = canonicalTypeAlias(name)

	if len(tn.Typmods) > 0 {
		var mods []string
		for _, mod := range tn.Typmods {
			if aConst := mod.GetAConst(); aConst != nil {
				if ival := aConst.GetIval(); ival != nil {
					mods = append(mods, strconv.Itoa(int(ival.Ival)))
				}
			}
		}
		if len(mods) > 0 {
			name += "(" + strings.Join(mods, ",") + ")"
		}
	}
	for range tn.ArrayBounds {
		name += "[]"
	}
	if tn.Setof {
		name = "SETOF " + name
	}
	return name
}

// canonicalTypeAlias maps internal catalog spellings to the SQL names the
// emitter produces, so parser and introspector store one form.
func canonicalTypeAlias(name string) string {
	switch strings.ToLower(name) {
	case "int4", "int":
		return "integer"
	case "int2":
		return "smallint"
	case "int8":
		return "bigint"
	case "float4":
		return "real"
	case "float8":
		return "double precision"
	case "bool":
		return "boolean"
	case "varchar":
		return "character varying"
	case "bpchar":
		return "character"
	case "timestamptz":
		return "timestamp with time zone"
	case "timetz":
		return "time with time zone"
	case "decimal":
		return "numeric"
	}
	return name
}
