package parse

import (
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/shem-sql/shem/internal/schema"
)

func (p *Parser) lowerCreateView(stmt *pg_query.ViewStmt) *schema.View {
	schemaName, viewName := rangeVarName(stmt.View, p.defaultSchema)
	view := &schema.View{
		Schema: schemaName,
		Name:   viewName,
		Query:  deparseStmtNode(stmt.Query),
	}
	switch stmt.WithCheckOption {
	case pg_query.ViewCheckOption_LOCAL_CHECK_OPTION:
		view.CheckOption = "LOCAL"
	case pg_query.ViewCheckOption_CASCADED_CHECK_OPTION:
		view.CheckOption = "CASCADED"
	}
	for _, node := range stmt.Options {
		def := node.GetDefElem()
		if def == nil {
			continue
		}
		switch def.Defname {
		case "security_barrier":
			view.SecurityBarrier = defElemBool(def)
		case "check_option":
			view.CheckOption = strings.ToUpper(defElemString(def))
		}
	}
	return view
}

// lowerCreateTableAs handles CREATE MATERIALIZED VIEW, which the grammar
// reports as CreateTableAsStmt. Plain CREATE TABLE AS carries data, not
// schema, and is rejected.
func (p *Parser) lowerCreateTableAs(file string, line int, stmt *pg_query.CreateTableAsStmt) {
	if stmt.Objtype != pg_query.ObjectType_OBJECT_MATVIEW {
		p.errs = append(p.errs, &schema.UnsupportedStatement{
			File: file,
			Line: line,
			Tag:  "CreateTableAs",
		})
		return
	}
	schemaName, viewName := rangeVarName(stmt.Into.Rel, p.defaultSchema)
	p.add(file, line, &schema.MaterializedView{
		Schema:   schemaName,
		Name:     viewName,
		Query:    deparseStmtNode(stmt.Query),
		WithData: !stmt.Into.SkipData,
	})
}

func (p *Parser) lowerCreateIndex(stmt *pg_query.IndexStmt) *schema.Index {
	schemaName, tableName := rangeVarName(stmt.Relation, p.defaultSchema)

	index := &schema.Index{
		Schema: schemaName,
		Table:  tableName,
		Name:   stmt.Idxname,
		Method: "btree",
		Unique: stmt.Unique,
	}
	if stmt.AccessMethod != "" {
		index.Method = stmt.AccessMethod
	}

	for _, node := range stmt.IndexParams {
		elem := node.GetIndexElem()
		if elem == nil {
			continue
		}
		key := schema.IndexKey{}
		if elem.Name != "" {
			key.Expr = elem.Name
		} else if elem.Expr != nil {
			key.Expr = deparseExprNode(elem.Expr)
		}
		if len(elem.Opclass) > 0 {
			key.Opclass = strings.Join(stringItems(elem.Opclass), ".")
		}
		if elem.Ordering == pg_query.SortByDir_SORTBY_DESC {
			key.Desc = true
		}
		index.Keys = append(index.Keys, key)
	}
	for _, node := range stmt.IndexIncludingParams {
		if elem := node.GetIndexElem(); elem != nil && elem.Name != "" {
			index.Include = append(index.Include, elem.Name)
		}
	}
	if stmt.WhereClause != nil {
		index.Predicate = deparseExprNode(stmt.WhereClause)
	}
	for _, node := range stmt.Options {
		if def := node.GetDefElem(); def != nil {
			index.Storage = append(index.Storage, def.Defname+"="+defElemString(def))
		}
	}

	if index.Name == "" {
		index.Name = defaultIndexName(tableName, index.Keys)
	}
	return index
}

// defaultIndexName mirrors PostgreSQL's generated index naming.
func defaultIndexName(tableName string, keys []schema.IndexKey) string {
	parts := []string{tableName}
	for _, key := range keys {
		if !strings.ContainsAny(key.Expr, " (") {
			parts = append(parts, key.Expr)
		} else {
			parts = append(parts, "expr")
		}
	}
	return strings.Join(append(parts, "idx"), "_")
}

func (p *Parser) lowerCreatePolicy(stmt *pg_query.CreatePolicyStmt) *schema.Policy {
	schemaName, tableName := rangeVarName(stmt.Table, p.defaultSchema)

	policy := &schema.Policy{
		Schema:     schemaName,
		Table:      tableName,
		Name:       stmt.PolicyName,
		Command:    strings.ToUpper(stmt.CmdName),
		Permissive: stmt.Permissive,
	}
	if policy.Command == "" {
		policy.Command = "ALL"
	}
	if stmt.Qual != nil {
		policy.Using = deparseExprNode(stmt.Qual)
	}
	if stmt.WithCheck != nil {
		policy.WithCheck = deparseExprNode(stmt.WithCheck)
	}
	for _, node := range stmt.Roles {
		if role := roleName(node); role != "" {
			policy.Roles = append(policy.Roles, role)
		}
	}
	if len(policy.Roles) == 0 {
		policy.Roles = []string{"PUBLIC"}
	}
	return policy
}

func roleName(node *pg_query.Node) string {
	spec := node.GetRoleSpec()
	if spec == nil {
		if str := node.GetString_(); str != nil {
			return str.Sval
		}
		return ""
	}
	if spec.Rolename != "" {
		return spec.Rolename
	}
	switch spec.Roletype {
	case pg_query.RoleSpecType_ROLESPEC_PUBLIC:
		return "PUBLIC"
	case pg_query.RoleSpecType_ROLESPEC_CURRENT_USER:
		return "CURRENT_USER"
	case pg_query.RoleSpecType_ROLESPEC_CURRENT_ROLE:
		return "CURRENT_ROLE"
	case pg_query.RoleSpecType_ROLESPEC_SESSION_USER:
		return "SESSION_USER"
	}
	return ""
}

func (p *Parser) lowerCreateRule(stmt *pg_query.RuleStmt) *schema.Rule {
	schemaName, tableName := rangeVarName(stmt.Relation, p.defaultSchema)

	rule := &schema.Rule{
		Schema:  schemaName,
		Table:   tableName,
		Name:    stmt.Rulename,
		Instead: stmt.Instead,
	}
	switch stmt.Event {
	case pg_query.CmdType_CMD_SELECT:
		rule.Event = "SELECT"
	case pg_query.CmdType_CMD_INSERT:
		rule.Event = "INSERT"
	case pg_query.CmdType_CMD_UPDATE:
		rule.Event = "UPDATE"
	case pg_query.CmdType_CMD_DELETE:
		rule.Event = "DELETE"
	}
	if stmt.WhereClause != nil {
		rule.Where = deparseExprNode(stmt.WhereClause)
	}
	var actions []string
	for _, node := range stmt.Actions {
		if sql := deparseStmtNode(node); sql != "" {
			actions = append(actions, sql)
		}
	}
	if len(actions) == 0 {
		rule.Actions = "NOTHING"
	} else {
		rule.Actions = strings.Join(actions, "; ")
	}
	return rule
}
