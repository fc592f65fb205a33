package introspect

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/shem-sql/shem/internal/parse"
	"github.com/shem-sql/shem/internal/schema"
)

// schemas materializes user namespaces. public is the implicit default on
// both sides and is not modeled.
func (in *Introspector) schemas(ctx context.Context, tx pgx.Tx) ([]schema.Object, error) {
	query := `
		SELECT n.nspname, pg_get_userbyid(n.nspowner)
		FROM pg_namespace n
		WHERE n.nspname NOT IN ('pg_catalog', 'information_schema', 'pg_toast', 'public')
		  AND n.nspname NOT LIKE 'pg_temp%'
		  AND n.nspname NOT LIKE 'pg_toast%'
		  AND NOT EXISTS (SELECT 1 FROM pg_depend d
		                  WHERE d.classid = 'pg_namespace'::regclass
		                    AND d.objid = n.oid AND d.deptype = 'e')
		ORDER BY n.nspname`

	rows, err := tx.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var objs []schema.Object
	for rows.Next() {
		ns := &schema.NamedSchema{}
		if err := rows.Scan(&ns.Name, &ns.Owner); err != nil {
			return nil, err
		}
		objs = append(objs, ns)
	}
	return objs, rows.Err()
}

// extensions skips plpgsql, which every database carries by default.
func (in *Introspector) extensions(ctx context.Context, tx pgx.Tx) ([]schema.Object, error) {
	query := `
		SELECT e.extname, e.extversion, n.nspname
		FROM pg_extension e
		JOIN pg_namespace n ON n.oid = e.extnamespace
		WHERE e.extname <> 'plpgsql'
		ORDER BY e.extname`

	rows, err := tx.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var objs []schema.Object
	for rows.Next() {
		ext := &schema.Extension{}
		if err := rows.Scan(&ext.Name, &ext.Version, &ext.Schema); err != nil {
			return nil, err
		}
		if ext.Schema == "public" {
			ext.Schema = ""
		}
		objs = append(objs, ext)
	}
	return objs, rows.Err()
}

func (in *Introspector) collations(ctx context.Context, tx pgx.Tx) ([]schema.Object, error) {
	query := fmt.Sprintf(`
		SELECT n.nspname, c.collname, c.collprovider,
		       COALESCE(c.colliculocale, c.collcollate, ''),
		       c.collisdeterministic
		FROM pg_collation c
		JOIN pg_namespace n ON n.oid = c.collnamespace
		WHERE %s AND %s
		ORDER BY n.nspname, c.collname`,
		userNamespace("c.collnamespace"), extFilter("pg_collation", "c.oid"))

	rows, err := tx.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var objs []schema.Object
	for rows.Next() {
		coll := &schema.Collation{}
		var provider string
		if err := rows.Scan(&coll.Schema, &coll.Name, &provider, &coll.Locale, &coll.Deterministic); err != nil {
			return nil, err
		}
		switch provider {
		case "i":
			coll.Provider = "icu"
		default:
			coll.Provider = "libc"
		}
		objs = append(objs, coll)
	}
	return objs, rows.Err()
}

func (in *Introspector) enums(ctx context.Context, tx pgx.Tx) ([]schema.Object, error) {
	query := fmt.Sprintf(`
		SELECT n.nspname, t.typname,
		       array(SELECT e.enumlabel FROM pg_enum e
		             WHERE e.enumtypid = t.oid ORDER BY e.enumsortorder)
		FROM pg_type t
		JOIN pg_namespace n ON n.oid = t.typnamespace
		WHERE t.typtype = 'e' AND %s AND %s
		ORDER BY n.nspname, t.typname`,
		userNamespace("t.typnamespace"), extFilter("pg_type", "t.oid"))

	rows, err := tx.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var objs []schema.Object
	for rows.Next() {
		enum := &schema.Enum{}
		if err := rows.Scan(&enum.Schema, &enum.Name, &enum.Labels); err != nil {
			return nil, err
		}
		objs = append(objs, enum)
	}
	return objs, rows.Err()
}

// compositeTypes excludes the implicit row types tables and views carry.
func (in *Introspector) compositeTypes(ctx context.Context, tx pgx.Tx) ([]schema.Object, error) {
	query := fmt.Sprintf(`
		SELECT n.nspname, t.typname, t.typrelid
		FROM pg_type t
		JOIN pg_namespace n ON n.oid = t.typnamespace
		JOIN pg_class c ON c.oid = t.typrelid
		WHERE t.typtype = 'c' AND c.relkind = 'c' AND %s AND %s
		ORDER BY n.nspname, t.typname`,
		userNamespace("t.typnamespace"), extFilter("pg_type", "t.oid"))

	rows, err := tx.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type compRow struct {
		comp  *schema.CompositeType
		relid uint32
	}
	var comps []compRow
	for rows.Next() {
		cr := compRow{comp: &schema.CompositeType{}}
		if err := rows.Scan(&cr.comp.Schema, &cr.comp.Name, &cr.relid); err != nil {
			return nil, err
		}
		comps = append(comps, cr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, cr := range comps {
		attrRows, err := tx.Query(ctx, `
			SELECT a.attname, format_type(a.atttypid, a.atttypmod)
			FROM pg_attribute a
			WHERE a.attrelid = $1 AND a.attnum > 0 AND NOT a.attisdropped
			ORDER BY a.attnum`, cr.relid)
		if err != nil {
			return nil, err
		}
		for attrRows.Next() {
			var attr schema.TypeAttribute
			if err := attrRows.Scan(&attr.Name, &attr.Type); err != nil {
				attrRows.Close()
				return nil, err
			}
			cr.comp.Attributes = append(cr.comp.Attributes, attr)
		}
		if err := attrRows.Err(); err != nil {
			attrRows.Close()
			return nil, err
		}
		attrRows.Close()
	}

	objs := make([]schema.Object, len(comps))
	for i, cr := range comps {
		objs[i] = cr.comp
	}
	return objs, nil
}

func (in *Introspector) domains(ctx context.Context, tx pgx.Tx) ([]schema.Object, error) {
	query := fmt.Sprintf(`
		SELECT n.nspname, t.typname, t.oid,
		       format_type(t.typbasetype, t.typtypmod),
		       t.typnotnull,
		       COALESCE(t.typdefault, '')
		FROM pg_type t
		JOIN pg_namespace n ON n.oid = t.typnamespace
		WHERE t.typtype = 'd' AND %s AND %s
		ORDER BY n.nspname, t.typname`,
		userNamespace("t.typnamespace"), extFilter("pg_type", "t.oid"))

	rows, err := tx.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type domainRow struct {
		domain *schema.Domain
		oid    uint32
	}
	var domains []domainRow
	for rows.Next() {
		dr := domainRow{domain: &schema.Domain{}}
		var def string
		if err := rows.Scan(&dr.domain.Schema, &dr.domain.Name, &dr.oid,
			&dr.domain.BaseType, &dr.domain.NotNull, &def); err != nil {
			return nil, err
		}
		if def != "" {
			dr.domain.Default = parse.NormalizeExpr(def)
		}
		domains = append(domains, dr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, dr := range domains {
		checkRows, err := tx.Query(ctx, `
			SELECT con.conname, pg_get_expr(con.conbin, 0)
			FROM pg_constraint con
			WHERE con.contypid = $1 AND con.contype = 'c'
			ORDER BY con.conname`, dr.oid)
		if err != nil {
			return nil, err
		}
		for checkRows.Next() {
			var check schema.DomainCheck
			if err := checkRows.Scan(&check.Name, &check.Expression); err != nil {
				checkRows.Close()
				return nil, err
			}
			check.Expression = parse.NormalizeExpr(check.Expression)
			dr.domain.Checks = append(dr.domain.Checks, check)
		}
		if err := checkRows.Err(); err != nil {
			checkRows.Close()
			return nil, err
		}
		checkRows.Close()
	}

	objs := make([]schema.Object, len(domains))
	for i, dr := range domains {
		objs[i] = dr.domain
	}
	return objs, nil
}

func (in *Introspector) rangeTypes(ctx context.Context, tx pgx.Tx) ([]schema.Object, error) {
	query := fmt.Sprintf(`
		SELECT n.nspname, t.typname,
		       format_type(r.rngsubtype, NULL),
		       COALESCE(opc.opcname, ''),
		       COALESCE(cn.nspname || '.' || co.collname, ''),
		       COALESCE(r.rngcanonical::text, '-'),
		       COALESCE(r.rngsubdiff::text, '-'),
		       COALESCE(mt.typname, '')
		FROM pg_range r
		JOIN pg_type t ON t.oid = r.rngtypid
		JOIN pg_namespace n ON n.oid = t.typnamespace
		LEFT JOIN pg_opclass opc ON opc.oid = r.rngsubopc AND opc.opcdefault = false
		LEFT JOIN pg_collation co ON co.oid = r.rngcollation
		LEFT JOIN pg_namespace cn ON cn.oid = co.collnamespace
		LEFT JOIN pg_type mt ON mt.oid = r.rngmultitypid
		WHERE %s AND %s
		ORDER BY n.nspname, t.typname`,
		userNamespace("t.typnamespace"), extFilter("pg_type", "t.oid"))

	rows, err := tx.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var objs []schema.Object
	for rows.Next() {
		rt := &schema.RangeType{}
		if err := rows.Scan(&rt.Schema, &rt.Name, &rt.Subtype, &rt.SubtypeOpclass,
			&rt.Collation, &rt.Canonical, &rt.SubtypeDiff, &rt.Multirange); err != nil {
			return nil, err
		}
		if rt.Canonical == "-" {
			rt.Canonical = ""
		}
		if rt.SubtypeDiff == "-" {
			rt.SubtypeDiff = ""
		}
		objs = append(objs, rt)
	}
	return objs, rows.Err()
}

func (in *Introspector) foreignServers(ctx context.Context, tx pgx.Tx) ([]schema.Object, error) {
	query := fmt.Sprintf(`
		SELECT s.srvname, w.fdwname, COALESCE(s.srvoptions, '{}')
		FROM pg_foreign_server s
		JOIN pg_foreign_data_wrapper w ON w.oid = s.srvfdw
		WHERE %s
		ORDER BY s.srvname`,
		extFilter("pg_foreign_server", "s.oid"))

	rows, err := tx.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var objs []schema.Object
	for rows.Next() {
		server := &schema.ForeignServer{Options: make(map[string]string)}
		var options []string
		if err := rows.Scan(&server.Name, &server.Wrapper, &options); err != nil {
			return nil, err
		}
		for _, opt := range options {
			if k, v, found := cutOption(opt); found {
				server.Options[k] = v
			}
		}
		objs = append(objs, server)
	}
	return objs, rows.Err()
}

func cutOption(opt string) (key, value string, found bool) {
	for i := 0; i < len(opt); i++ {
		if opt[i] == '=' {
			return opt[:i], opt[i+1:], true
		}
	}
	return "", "", false
}
