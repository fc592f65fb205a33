package introspect

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/shem-sql/shem/internal/parse"
	"github.com/shem-sql/shem/internal/schema"
)

// functions covers both functions and procedures: pg_get_functiondef
// renders the complete CREATE statement, which is lowered through the same
// path as a declarative file so bodies, argument lists, and options
// normalize identically.
func (in *Introspector) functions(ctx context.Context, tx pgx.Tx) ([]schema.Object, error) {
	query := fmt.Sprintf(`
		SELECT pg_get_functiondef(p.oid)
		FROM pg_proc p
		JOIN pg_namespace n ON n.oid = p.pronamespace
		WHERE p.prokind IN ('f', 'p') AND %s AND %s
		ORDER BY n.nspname, p.proname, p.oid`,
		userNamespace("p.pronamespace"), extFilter("pg_proc", "p.oid"))

	return in.lowerDefinitions(ctx, tx, query)
}

// triggers excludes internally generated constraint-enforcement triggers.
func (in *Introspector) triggers(ctx context.Context, tx pgx.Tx) ([]schema.Object, error) {
	query := fmt.Sprintf(`
		SELECT pg_get_triggerdef(t.oid)
		FROM pg_trigger t
		JOIN pg_class c ON c.oid = t.tgrelid
		WHERE NOT t.tgisinternal AND %s AND %s
		ORDER BY c.relname, t.tgname`,
		userNamespace("c.relnamespace"), extFilter("pg_trigger", "t.oid"))

	return in.lowerDefinitions(ctx, tx, query)
}

func (in *Introspector) rules(ctx context.Context, tx pgx.Tx) ([]schema.Object, error) {
	query := fmt.Sprintf(`
		SELECT pg_get_ruledef(r.oid)
		FROM pg_rewrite r
		JOIN pg_class c ON c.oid = r.ev_class
		WHERE r.rulename <> '_RETURN' AND %s AND %s
		ORDER BY c.relname, r.rulename`,
		userNamespace("c.relnamespace"), extFilter("pg_rewrite", "r.oid"))

	return in.lowerDefinitions(ctx, tx, query)
}

// lowerDefinitions runs a single-column query of pg_get_*def output and
// lowers each row through the parser.
func (in *Introspector) lowerDefinitions(ctx context.Context, tx pgx.Tx, query string) ([]schema.Object, error) {
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
			return nil, fmt.Errorf("lowering definition %q: %w", def, err)
		}
		objs = append(objs, obj)
	}
	return objs, nil
}

func (in *Introspector) policies(ctx context.Context, tx pgx.Tx) ([]schema.Object, error) {
	query := fmt.Sprintf(`
		SELECT n.nspname, c.relname, p.polname,
		       CASE p.polcmd
		            WHEN 'r' THEN 'SELECT'
		            WHEN 'a' THEN 'INSERT'
		            WHEN 'w' THEN 'UPDATE'
		            WHEN 'd' THEN 'DELETE'
		            ELSE 'ALL' END,
		       p.polpermissive,
		       COALESCE((SELECT array_agg(pg_get_userbyid(r) ORDER BY pg_get_userbyid(r))
		                 FROM unnest(p.polroles) AS r WHERE r <> 0), '{}'),
		       COALESCE(pg_get_expr(p.polqual, p.polrelid), ''),
		       COALESCE(pg_get_expr(p.polwithcheck, p.polrelid), '')
		FROM pg_policy p
		JOIN pg_class c ON c.oid = p.polrelid
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE %s
		ORDER BY n.nspname, c.relname, p.polname`,
		userNamespace("c.relnamespace"))

	rows, err := tx.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var objs []schema.Object
	for rows.Next() {
		policy := &schema.Policy{}
		var using, withCheck string
		if err := rows.Scan(&policy.Schema, &policy.Table, &policy.Name,
			&policy.Command, &policy.Permissive, &policy.Roles,
			&using, &withCheck); err != nil {
			return nil, err
		}
		if len(policy.Roles) == 0 {
			policy.Roles = []string{"PUBLIC"}
		}
		policy.Using = parse.NormalizeExpr(using)
		policy.WithCheck = parse.NormalizeExpr(withCheck)
		objs = append(objs, policy)
	}
	return objs, rows.Err()
}

func (in *Introspector) eventTriggers(ctx context.Context, tx pgx.Tx) ([]schema.Object, error) {
	query := `
		SELECT e.evtname, e.evtevent,
		       COALESCE(e.evttags, '{}'),
		       pn.nspname || '.' || p.proname || '()'
		FROM pg_event_trigger e
		JOIN pg_proc p ON p.oid = e.evtfoid
		JOIN pg_namespace pn ON pn.oid = p.pronamespace
		WHERE NOT EXISTS (SELECT 1 FROM pg_depend d
		                  WHERE d.classid = 'pg_event_trigger'::regclass
		                    AND d.objid = e.oid AND d.deptype = 'e')
		ORDER BY e.evtname`

	rows, err := tx.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var objs []schema.Object
	for rows.Next() {
		trigger := &schema.EventTrigger{}
		if err := rows.Scan(&trigger.Name, &trigger.Event, &trigger.Tags, &trigger.Function); err != nil {
			return nil, err
		}
		objs = append(objs, trigger)
	}
	return objs, rows.Err()
}

// comments covers the object kinds the parser accepts COMMENT ON for.
func (in *Introspector) comments(ctx context.Context, tx pgx.Tx) ([]schema.Object, error) {
	var objs []schema.Object

	relQuery := fmt.Sprintf(`
		SELECT n.nspname, c.relname, c.relkind, d.objsubid,
		       COALESCE(a.attname, ''), d.description
		FROM pg_description d
		JOIN pg_class c ON c.oid = d.objoid AND d.classoid = 'pg_class'::regclass
		JOIN pg_namespace n ON n.oid = c.relnamespace
		LEFT JOIN pg_attribute a ON a.attrelid = c.oid AND a.attnum = d.objsubid AND d.objsubid > 0
		WHERE c.relkind IN ('r', 'p', 'v', 'm', 'i', 'S') AND %s AND %s
		ORDER BY n.nspname, c.relname, d.objsubid`,
		userNamespace("c.relnamespace"), extFilter("pg_class", "c.oid"))

	rows, err := tx.Query(ctx, relQuery)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var schemaName, relName, relkind, attName, text string
		var subid int
		if err := rows.Scan(&schemaName, &relName, &relkind, &subid, &attName, &text); err != nil {
			rows.Close()
			return nil, err
		}
		target := schema.Identity{Schema: schemaName, Name: relName}
		switch relkind {
		case "r", "p":
			target.Kind = schema.KindTable
		case "v":
			target.Kind = schema.KindView
		case "m":
			target.Kind = schema.KindMaterializedView
		case "i":
			target.Kind = schema.KindIndex
		case "S":
			target.Kind = schema.KindSequence
		}
		if subid > 0 {
			target.Kind = schema.KindTable
			target.Signature = "column:" + attName
		}
		objs = append(objs, &schema.Comment{Target: target, Text: text})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	typeQuery := fmt.Sprintf(`
		SELECT n.nspname, t.typname, t.typtype, d.description
		FROM pg_description d
		JOIN pg_type t ON t.oid = d.objoid AND d.classoid = 'pg_type'::regclass
		JOIN pg_namespace n ON n.oid = t.typnamespace
		WHERE t.typtype IN ('e', 'c', 'd', 'r') AND %s AND %s
		ORDER BY n.nspname, t.typname`,
		userNamespace("t.typnamespace"), extFilter("pg_type", "t.oid"))

	typeRows, err := tx.Query(ctx, typeQuery)
	if err != nil {
		return nil, err
	}
	for typeRows.Next() {
		var schemaName, typeName, typtype, text string
		if err := typeRows.Scan(&schemaName, &typeName, &typtype, &text); err != nil {
			typeRows.Close()
			return nil, err
		}
		target := schema.Identity{Schema: schemaName, Name: typeName}
		switch typtype {
		case "e":
			target.Kind = schema.KindEnum
		case "c":
			target.Kind = schema.KindCompositeType
		case "d":
			target.Kind = schema.KindDomain
		case "r":
			target.Kind = schema.KindRangeType
		}
		objs = append(objs, &schema.Comment{Target: target, Text: text})
	}
	if err := typeRows.Err(); err != nil {
		typeRows.Close()
		return nil, err
	}
	typeRows.Close()

	funcQuery := fmt.Sprintf(`
		SELECT n.nspname, p.proname,
		       pg_get_function_identity_arguments(p.oid),
		       d.description
		FROM pg_description d
		JOIN pg_proc p ON p.oid = d.objoid AND d.classoid = 'pg_proc'::regclass
		JOIN pg_namespace n ON n.oid = p.pronamespace
		WHERE %s AND %s
		ORDER BY n.nspname, p.proname`,
		userNamespace("p.pronamespace"), extFilter("pg_proc", "p.oid"))

	funcRows, err := tx.Query(ctx, funcQuery)
	if err != nil {
		return nil, err
	}
	for funcRows.Next() {
		var schemaName, funcName, args, text string
		if err := funcRows.Scan(&schemaName, &funcName, &args, &text); err != nil {
			funcRows.Close()
			return nil, err
		}
		objs = append(objs, &schema.Comment{
			Target: schema.Identity{
				Schema:    schemaName,
				Name:      funcName,
				Kind:      schema.KindFunction,
				Signature: parse.NormalizeArgSignature(args),
			},
			Text: text,
		})
	}
	if err := funcRows.Err(); err != nil {
		funcRows.Close()
		return nil, err
	}
	funcRows.Close()

	return objs, nil
}
