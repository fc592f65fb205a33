package parse

import (
	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/shem-sql/shem/internal/schema"
)

// lowerGrant canonicalizes relation and sequence grants so they compare
// against introspected ACLs: one statement per grantee, privileges sorted,
// ALL PRIVILEGES expanded, names schema qualified. Everything the ACL
// model cannot express (REVOKE, column grants, ALL TABLES IN SCHEMA,
// non-relation object classes) passes through verbatim and diffs one-way.
func (p *Parser) lowerGrant(stmt *pg_query.Node, grant *pg_query.GrantStmt) []string {
	fallback := func() []string {
		if sql := deparseStmtNode(stmt); sql != "" {
			return []string{sql + ";"}
		}
		return nil
	}

	if !grant.IsGrant || grant.Targtype != pg_query.GrantTargetType_ACL_TARGET_OBJECT {
		return fallback()
	}

	var keyword string
	var allPrivileges []string
	switch grant.Objtype {
	case pg_query.ObjectType_OBJECT_TABLE:
		keyword = "TABLE"
		allPrivileges = schema.TablePrivileges
	case pg_query.ObjectType_OBJECT_SEQUENCE:
		keyword = "SEQUENCE"
		allPrivileges = schema.SequencePrivileges
	default:
		return fallback()
	}

	privileges := allPrivileges
	if len(grant.Privileges) > 0 {
		privileges = nil
		for _, node := range grant.Privileges {
			priv := node.GetAccessPriv()
			if priv == nil {
				continue
			}
			if len(priv.Cols) > 0 {
				// Column-level grants have no canonical ACL counterpart.
				return fallback()
			}
			privileges = append(privileges, priv.PrivName)
		}
	}

	var out []string
	for _, objNode := range grant.Objects {
		rv := objNode.GetRangeVar()
		if rv == nil {
			return fallback()
		}
		schemaName, name := rangeVarName(rv, p.defaultSchema)
		qualified := schemaName + "." + name
		for _, granteeNode := range grant.Grantees {
			grantee := roleName(granteeNode)
			if grantee == "" {
				continue
			}
			out = append(out, schema.FormatGrant(keyword, qualified, privileges, grantee, grant.GrantOption))
		}
	}
	return out
}
