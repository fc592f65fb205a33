package introspect

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/shem-sql/shem/internal/schema"
)

// grants materializes relation and sequence ACL entries in the same
// canonical form the parser produces for declarative GRANT statements, so
// a grant that is already live stops showing up in every diff. The
// owner's implicit self-grant is not user-declared state and is skipped.
func (in *Introspector) grants(ctx context.Context, tx pgx.Tx) ([]string, error) {
	query := fmt.Sprintf(`
		SELECT n.nspname, c.relname, c.relkind,
		       CASE WHEN a.grantee = 0 THEN 'PUBLIC'
		            ELSE pg_get_userbyid(a.grantee) END,
		       a.is_grantable,
		       array_agg(a.privilege_type ORDER BY a.privilege_type)
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace,
		     aclexplode(c.relacl) a
		WHERE c.relkind IN ('r', 'p', 'v', 'm', 'S')
		  AND a.grantee <> c.relowner
		  AND c.relname <> '_shem_migrations'
		  AND %s AND %s
		GROUP BY n.nspname, c.relname, c.relkind, a.grantee, a.is_grantable
		ORDER BY n.nspname, c.relname, 4, 5`,
		userNamespace("c.relnamespace"), extFilter("pg_class", "c.oid"))

	rows, err := tx.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grants []string
	for rows.Next() {
		var schemaName, relName, relkind, grantee string
		var grantable bool
		var privileges []string
		if err := rows.Scan(&schemaName, &relName, &relkind, &grantee, &grantable, &privileges); err != nil {
			return nil, err
		}
		keyword := "TABLE"
		if relkind == "S" {
			keyword = "SEQUENCE"
		}
		grants = append(grants, schema.FormatGrant(
			keyword, schemaName+"."+relName, privileges, grantee, grantable))
	}
	return grants, rows.Err()
}
