package introspect

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/shem-sql/shem/internal/parse"
	"github.com/shem-sql/shem/internal/schema"
)

// tables materializes base and partitioned tables with their columns and
// constraints. Columns come from pg_attribute, defaults from pg_attrdef
// re-parsed into canonical text, constraints from pg_constraint.
func (in *Introspector) tables(ctx context.Context, tx pgx.Tx) ([]schema.Object, error) {
	query := fmt.Sprintf(`
		SELECT n.nspname, c.oid, c.relname,
		       COALESCE(pg_get_partkeydef(c.oid), '')
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE c.relkind IN ('r', 'p')
		  AND NOT c.relispartition
		  AND c.relname <> '_shem_migrations'
		  AND %s AND %s
		ORDER BY n.nspname, c.relname`,
		userNamespace("c.relnamespace"), extFilter("pg_class", "c.oid"))

	rows, err := tx.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type tableRow struct {
		oid   uint32
		table *schema.Table
	}
	var tableRows []tableRow
	for rows.Next() {
		var tr tableRow
		tr.table = &schema.Table{}
		if err := rows.Scan(&tr.table.Schema, &tr.oid, &tr.table.Name, &tr.table.PartitionBy); err != nil {
			return nil, err
		}
		tableRows = append(tableRows, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range tableRows {
		t := &tableRows[i]
		if err := in.tableColumns(ctx, tx, t.oid, t.table); err != nil {
			return nil, err
		}
		if err := in.tableConstraints(ctx, tx, t.oid, t.table); err != nil {
			return nil, err
		}
		if err := in.tableInherits(ctx, tx, t.oid, t.table); err != nil {
			return nil, err
		}
	}

	objs := make([]schema.Object, len(tableRows))
	for i, tr := range tableRows {
		objs[i] = tr.table
	}
	return objs, nil
}

func (in *Introspector) tableColumns(ctx context.Context, tx pgx.Tx, oid uint32, table *schema.Table) error {
	query := `
		SELECT a.attname,
		       format_type(a.atttypid, a.atttypmod),
		       a.attnotnull,
		       COALESCE(pg_get_expr(ad.adbin, ad.adrelid), ''),
		       a.attidentity,
		       a.attgenerated,
		       CASE WHEN a.attcollation <> t.typcollation
		            THEN cn.nspname || '.' || co.collname ELSE '' END
		FROM pg_attribute a
		JOIN pg_type t ON t.oid = a.atttypid
		LEFT JOIN pg_attrdef ad ON ad.adrelid = a.attrelid AND ad.adnum = a.attnum
		LEFT JOIN pg_collation co ON co.oid = a.attcollation
		LEFT JOIN pg_namespace cn ON cn.oid = co.collnamespace
		WHERE a.attrelid = $1 AND a.attnum > 0 AND NOT a.attisdropped
		ORDER BY a.attnum`

	rows, err := tx.Query(ctx, query, oid)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var col schema.Column
		var expr, identity, generated string
		if err := rows.Scan(&col.Name, &col.Type, &col.NotNull, &expr,
			&identity, &generated, &col.Collation); err != nil {
			return err
		}
		switch identity {
		case "a":
			col.Identity = "ALWAYS"
		case "d":
			col.Identity = "BY DEFAULT"
		}
		if generated == "s" {
			col.Generated = parse.NormalizeExpr(expr)
		} else if expr != "" {
			col.Default = parse.NormalizeExpr(expr)
		}
		table.Columns = append(table.Columns, col)
	}
	return rows.Err()
}

func (in *Introspector) tableConstraints(ctx context.Context, tx pgx.Tx, oid uint32, table *schema.Table) error {
	query := `
		SELECT con.conname, con.contype,
		       COALESCE((SELECT array_agg(a.attname ORDER BY k.ord)
		                 FROM unnest(con.conkey) WITH ORDINALITY AS k(attnum, ord)
		                 JOIN pg_attribute a ON a.attrelid = con.conrelid AND a.attnum = k.attnum), '{}'),
		       COALESCE(pg_get_expr(con.conbin, con.conrelid), ''),
		       COALESCE(rn.nspname || '.' || rc.relname, ''),
		       COALESCE((SELECT array_agg(a.attname ORDER BY k.ord)
		                 FROM unnest(con.confkey) WITH ORDINALITY AS k(attnum, ord)
		                 JOIN pg_attribute a ON a.attrelid = con.confrelid AND a.attnum = k.attnum), '{}'),
		       con.confdeltype, con.confupdtype,
		       con.condeferrable, con.condeferred,
		       pg_get_constraintdef(con.oid)
		FROM pg_constraint con
		LEFT JOIN pg_class rc ON rc.oid = con.confrelid
		LEFT JOIN pg_namespace rn ON rn.oid = rc.relnamespace
		WHERE con.conrelid = $1 AND con.contype IN ('p', 'u', 'c', 'f', 'x')
		ORDER BY con.conname`

	rows, err := tx.Query(ctx, query, oid)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var con schema.Constraint
		var contype, delAction, updAction, checkExpr, condef string
		if err := rows.Scan(&con.Name, &contype, &con.Columns, &checkExpr,
			&con.RefTable, &con.RefColumns, &delAction, &updAction,
			&con.Deferrable, &con.InitiallyDeferred, &condef); err != nil {
			return err
		}
		switch contype {
		case "p":
			con.Type = schema.ConstraintPrimaryKey
			con.RefTable, con.RefColumns = "", nil
		case "u":
			con.Type = schema.ConstraintUnique
			con.RefTable, con.RefColumns = "", nil
		case "c":
			con.Type = schema.ConstraintCheck
			con.Columns = nil
			con.RefTable, con.RefColumns = "", nil
			con.Expression = parse.NormalizeExpr(checkExpr)
		case "f":
			con.Type = schema.ConstraintForeignKey
			con.OnDelete = constraintAction(delAction)
			con.OnUpdate = constraintAction(updAction)
		case "x":
			con.Type = schema.ConstraintExclusion
			con.Columns = nil
			con.RefTable, con.RefColumns = "", nil
			con.Expression = strings.TrimPrefix(condef, "EXCLUDE ")
		}
		table.Constraints = append(table.Constraints, con)
	}
	return rows.Err()
}

func (in *Introspector) tableInherits(ctx context.Context, tx pgx.Tx, oid uint32, table *schema.Table) error {
	query := `
		SELECT pn.nspname || '.' || pc.relname
		FROM pg_inherits i
		JOIN pg_class pc ON pc.oid = i.inhparent
		JOIN pg_namespace pn ON pn.oid = pc.relnamespace
		WHERE i.inhrelid = $1
		ORDER BY i.inhseqno`

	rows, err := tx.Query(ctx, query, oid)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var parent string
		if err := rows.Scan(&parent); err != nil {
			return err
		}
		table.Inherits = append(table.Inherits, parent)
	}
	return rows.Err()
}

// indexes materializes non-constraint indexes by lowering pg_get_indexdef
// output through the parser, so key expressions normalize identically.
func (in *Introspector) indexes(ctx context.Context, tx pgx.Tx) ([]schema.Object, error) {
	query := fmt.Sprintf(`
		SELECT pg_get_indexdef(i.indexrelid)
		FROM pg_index i
		JOIN pg_class ic ON ic.oid = i.indexrelid
		JOIN pg_class tc ON tc.oid = i.indrelid
		WHERE %s AND %s
		  AND NOT EXISTS (SELECT 1 FROM pg_constraint con WHERE con.conindid = i.indexrelid)
		ORDER BY ic.relname`,
		userNamespace("ic.relnamespace"), extFilter("pg_class", "ic.oid"))

	rows, err := tx.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []string
	for rows.Next() {
		var def string
		if err := rows.Scan(&def); err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var objs []schema.Object
	for _, def := range defs {
		obj, err := parse.LowerStatement(def)
		if err != nil {
			return nil, fmt.Errorf("lowering index definition %q: %w", def, err)
		}
		objs = append(objs, obj)
	}
	return objs, nil
}

// views come from pg_get_viewdef with pretty-printing on, re-normalized
// through the grammar.
func (in *Introspector) views(ctx context.Context, tx pgx.Tx) ([]schema.Object, error) {
	query := fmt.Sprintf(`
		SELECT n.nspname, c.relname,
		       pg_get_viewdef(c.oid, true),
		       COALESCE((SELECT option_value FROM pg_options_to_table(c.reloptions)
		                 WHERE option_name = 'check_option'), ''),
		       COALESCE((SELECT option_value::bool FROM pg_options_to_table(c.reloptions)
		                 WHERE option_name = 'security_barrier'), false)
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE c.relkind = 'v' AND %s AND %s
		ORDER BY n.nspname, c.relname`,
		userNamespace("c.relnamespace"), extFilter("pg_class", "c.oid"))

	rows, err := tx.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var views []*schema.View
	for rows.Next() {
		v := &schema.View{}
		var checkOption string
		if err := rows.Scan(&v.Schema, &v.Name, &v.Query, &checkOption, &v.SecurityBarrier); err != nil {
			return nil, err
		}
		v.CheckOption = strings.ToUpper(checkOption)
		views = append(views, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	objs := make([]schema.Object, len(views))
	for i, v := range views {
		v.Query = parse.NormalizeQuery(v.Query)
		objs[i] = v
	}
	return objs, nil
}

func (in *Introspector) materializedViews(ctx context.Context, tx pgx.Tx) ([]schema.Object, error) {
	query := fmt.Sprintf(`
		SELECT n.nspname, c.relname, pg_get_viewdef(c.oid, true), c.relispopulated
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE c.relkind = 'm' AND %s AND %s
		ORDER BY n.nspname, c.relname`,
		userNamespace("c.relnamespace"), extFilter("pg_class", "c.oid"))

	rows, err := tx.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var views []*schema.MaterializedView
	for rows.Next() {
		m := &schema.MaterializedView{}
		if err := rows.Scan(&m.Schema, &m.Name, &m.Query, &m.WithData); err != nil {
			return nil, err
		}
		views = append(views, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	objs := make([]schema.Object, len(views))
	for i, m := range views {
		m.Query = parse.NormalizeQuery(m.Query)
		objs[i] = m
	}
	return objs, nil
}

// sequences excludes identity-backing sequences (deptype 'i'), which are a
// column detail, while keeping serial-style owned sequences.
func (in *Introspector) sequences(ctx context.Context, tx pgx.Tx) ([]schema.Object, error) {
	query := fmt.Sprintf(`
		SELECT n.nspname, c.relname,
		       format_type(s.seqtypid, NULL),
		       s.seqstart, s.seqincrement, s.seqmin, s.seqmax, s.seqcache, s.seqcycle,
		       COALESCE((SELECT tc.relname || '.' || a.attname
		                 FROM pg_depend d
		                 JOIN pg_class tc ON tc.oid = d.refobjid
		                 JOIN pg_attribute a ON a.attrelid = d.refobjid AND a.attnum = d.refobjsubid
		                 WHERE d.objid = c.oid AND d.classid = 'pg_class'::regclass
		                   AND d.deptype = 'a'
		                 LIMIT 1), '')
		FROM pg_sequence s
		JOIN pg_class c ON c.oid = s.seqrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE %s AND %s
		  AND NOT EXISTS (SELECT 1 FROM pg_depend d
		                  WHERE d.objid = c.oid AND d.deptype = 'i')
		ORDER BY n.nspname, c.relname`,
		userNamespace("c.relnamespace"), extFilter("pg_class", "c.oid"))

	rows, err := tx.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var objs []schema.Object
	for rows.Next() {
		seq := &schema.Sequence{}
		if err := rows.Scan(&seq.Schema, &seq.Name, &seq.Type,
			&seq.Start, &seq.Increment, &seq.Min, &seq.Max, &seq.Cache, &seq.Cycle,
			&seq.OwnedBy); err != nil {
			return nil, err
		}
		normalizeSequence(seq)
		objs = append(objs, seq)
	}
	return objs, rows.Err()
}

// normalizeSequence clears catalog-reported values that equal the defaults
// the parser leaves unset, so both sides store one canonical form.
func normalizeSequence(seq *schema.Sequence) {
	if seq.Type == "bigint" {
		seq.Type = ""
	}
	if seq.Min == 1 && seq.Increment > 0 {
		seq.Min = 0
	}
	switch seq.Max {
	case 9223372036854775807, 2147483647, 32767:
		if seq.Increment > 0 {
			seq.Max = 0
		}
	}
	if seq.Cache == 1 {
		seq.Cache = 0
	}
}

func constraintAction(code string) string {
	switch code {
	case "r":
		return "RESTRICT"
	case "c":
		return "CASCADE"
	case "n":
		return "SET NULL"
	case "d":
		return "SET DEFAULT"
	}
	return "" // 'a' NO ACTION stays unspelled
}
