package parse

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shem-sql/shem/internal/schema"
)

func parseOne(t *testing.T, sql string) *schema.Schema {
	t.Helper()
	model, errs := NewParser().ParseSQL("test.sql", sql)
	require.Empty(t, errs)
	return model
}

func TestParseCreateTable(t *testing.T) {
	model := parseOne(t, `
		CREATE TABLE users (
			id bigint GENERATED ALWAYS AS IDENTITY,
			email text NOT NULL UNIQUE,
			created_at timestamptz NOT NULL DEFAULT now(),
			PRIMARY KEY (id)
		);
	`)

	obj, ok := model.Lookup(schema.Identity{Schema: "public", Name: "users", Kind: schema.KindTable})
	require.True(t, ok)
	table := obj.(*schema.Table)

	require.Len(t, table.Columns, 3)
	assert.Equal(t, "bigint", table.Columns[0].Type)
	assert.Equal(t, "ALWAYS", table.Columns[0].Identity)
	assert.True(t, table.Columns[0].NotNull)
	assert.Equal(t, "timestamp with time zone", table.Columns[2].Type)
	assert.Equal(t, "now()", table.Columns[2].Default)

	names := map[string]schema.ConstraintType{}
	for _, con := range table.Constraints {
		names[con.Name] = con.Type
	}
	assert.Equal(t, schema.ConstraintPrimaryKey, names["users_pkey"])
	assert.Equal(t, schema.ConstraintUnique, names["users_email_key"])
}

func TestSerialExpandsToSequence(t *testing.T) {
	model := parseOne(t, `CREATE TABLE t (id serial PRIMARY KEY);`)

	obj, ok := model.Lookup(schema.Identity{Schema: "public", Name: "t", Kind: schema.KindTable})
	require.True(t, ok)
	table := obj.(*schema.Table)
	assert.Equal(t, "integer", table.Columns[0].Type)
	assert.True(t, table.Columns[0].NotNull)
	assert.Contains(t, table.Columns[0].Default, "nextval")

	seq, ok := model.Lookup(schema.Identity{Schema: "public", Name: "t_id_seq", Kind: schema.KindSequence})
	require.True(t, ok)
	assert.Equal(t, "t.id", seq.(*schema.Sequence).OwnedBy)
}

func TestParseEnumAndForwardReference(t *testing.T) {
	// The table precedes the type it uses; resolution is two-pass.
	model := parseOne(t, `
		CREATE TABLE p (m mood);
		CREATE TYPE mood AS ENUM ('happy', 'sad');
	`)

	enum, ok := model.Lookup(schema.Identity{Schema: "public", Name: "mood", Kind: schema.KindEnum})
	require.True(t, ok)
	assert.Equal(t, []string{"happy", "sad"}, enum.(*schema.Enum).Labels)
}

func TestParseForeignKeyReference(t *testing.T) {
	model := parseOne(t, `
		CREATE TABLE a (id int PRIMARY KEY, b_id int REFERENCES b(id));
		CREATE TABLE b (id int PRIMARY KEY, a_id int);
		ALTER TABLE b ADD CONSTRAINT b_a_id_fkey FOREIGN KEY (a_id) REFERENCES a(id) ON DELETE CASCADE;
	`)

	obj, _ := model.Lookup(schema.Identity{Schema: "public", Name: "b", Kind: schema.KindTable})
	table := obj.(*schema.Table)
	require.Len(t, table.Constraints, 2)
	var fk schema.Constraint
	for _, con := range table.Constraints {
		if con.Type == schema.ConstraintForeignKey {
			fk = con
		}
	}
	assert.Equal(t, "b_a_id_fkey", fk.Name)
	assert.Equal(t, "public.a", fk.RefTable)
	assert.Equal(t, "CASCADE", fk.OnDelete)
}

func TestParseFunctionAndTrigger(t *testing.T) {
	model := parseOne(t, `
		CREATE TABLE t (id int PRIMARY KEY, updated_at timestamptz);
		CREATE FUNCTION touch() RETURNS trigger LANGUAGE plpgsql AS $$
		BEGIN
			NEW.updated_at := now();
			RETURN NEW;
		END;
		$$;
		CREATE TRIGGER t_touch BEFORE UPDATE ON t FOR EACH ROW EXECUTE FUNCTION touch();
	`)

	fnObj, ok := model.Lookup(schema.Identity{Schema: "public", Name: "touch", Kind: schema.KindFunction})
	require.True(t, ok)
	fn := fnObj.(*schema.Function)
	assert.Equal(t, "plpgsql", fn.Language)
	assert.Equal(t, "trigger", fn.Returns)
	assert.Contains(t, fn.Body, "NEW.updated_at")
	// The shared trim rule strips the grammar's surrounding whitespace.
	assert.NotEqual(t, " ", fn.Body[:1])

	trigObj, ok := model.Lookup(schema.Identity{
		Schema: "public", Name: "t_touch", Kind: schema.KindTrigger, Signature: "t",
	})
	require.True(t, ok)
	trigger := trigObj.(*schema.Trigger)
	assert.Equal(t, "BEFORE", trigger.Timing)
	assert.Equal(t, []string{"UPDATE"}, trigger.Events)
	assert.True(t, trigger.ForEachRow)
	assert.Equal(t, "public.touch()", trigger.Function)
}

func TestOverloadsGetDistinctIdentities(t *testing.T) {
	model := parseOne(t, `
		CREATE FUNCTION f(x integer) RETURNS integer LANGUAGE sql AS 'SELECT x';
		CREATE FUNCTION f(x text) RETURNS text LANGUAGE sql AS 'SELECT x';
	`)

	_, okInt := model.Lookup(schema.Identity{Schema: "public", Name: "f", Kind: schema.KindFunction, Signature: "integer"})
	_, okText := model.Lookup(schema.Identity{Schema: "public", Name: "f", Kind: schema.KindFunction, Signature: "text"})
	assert.True(t, okInt)
	assert.True(t, okText)
}

func TestCreateOrReplaceIsCreate(t *testing.T) {
	model := parseOne(t, `
		CREATE VIEW v AS SELECT 1 AS one;
		CREATE OR REPLACE VIEW v AS SELECT 2 AS one;
	`)
	obj, ok := model.Lookup(schema.Identity{Schema: "public", Name: "v", Kind: schema.KindView})
	require.True(t, ok)
	assert.Contains(t, obj.(*schema.View).Query, "2")
}

func TestUnsupportedStatementReported(t *testing.T) {
	_, errs := NewParser().ParseSQL("test.sql", `VACUUM;`)
	require.Len(t, errs, 1)
	var unsupported *schema.UnsupportedStatement
	require.ErrorAs(t, errs[0], &unsupported)
	assert.Equal(t, 1, unsupported.Line)
}

func TestParseErrorCarriesLocation(t *testing.T) {
	_, errs := NewParser().ParseSQL("broken.sql", "CREATE TABLE t (\nid integer,\nWRONG!!!\n);")
	require.NotEmpty(t, errs)
	var parseErr *schema.ParseError
	require.ErrorAs(t, errs[0], &parseErr)
	assert.Equal(t, "broken.sql", parseErr.File)
}

func TestErrorsAccumulateAcrossStatements(t *testing.T) {
	_, errs := NewParser().ParseSQL("test.sql", `
		VACUUM;
		CHECKPOINT;
	`)
	assert.Len(t, errs, 2)
}

func TestDanglingReferenceFailsValidation(t *testing.T) {
	_, errs := NewParser().ParseSQL("test.sql", `CREATE TABLE t (m mood);`)
	require.NotEmpty(t, errs)
	var semErr *schema.SemanticError
	assert.ErrorAs(t, errs[0], &semErr)
}

func TestGrantsCanonicalized(t *testing.T) {
	model := parseOne(t, `
		CREATE TABLE t (id int PRIMARY KEY);
		GRANT update, SELECT ON t TO PUBLIC;
	`)
	require.Len(t, model.Grants, 1)
	assert.Equal(t, "GRANT SELECT, UPDATE ON TABLE public.t TO PUBLIC;", model.Grants[0])
}

func TestGrantAllExpandsPrivileges(t *testing.T) {
	model := parseOne(t, `
		CREATE SEQUENCE s;
		GRANT ALL ON SEQUENCE s TO bob;
	`)
	require.Len(t, model.Grants, 1)
	assert.Equal(t, "GRANT SELECT, UPDATE, USAGE ON SEQUENCE public.s TO bob;", model.Grants[0])
}

func TestGrantPerGranteeAndGrantOption(t *testing.T) {
	model := parseOne(t, `
		CREATE TABLE t (id int PRIMARY KEY);
		GRANT SELECT ON t TO alice, bob WITH GRANT OPTION;
	`)
	require.Len(t, model.Grants, 2)
	assert.Equal(t, "GRANT SELECT ON TABLE public.t TO alice WITH GRANT OPTION;", model.Grants[0])
	assert.Equal(t, "GRANT SELECT ON TABLE public.t TO bob WITH GRANT OPTION;", model.Grants[1])
}

func TestRevokePassesThroughVerbatim(t *testing.T) {
	model := parseOne(t, `
		CREATE TABLE t (id int PRIMARY KEY);
		REVOKE SELECT ON t FROM PUBLIC;
	`)
	require.Len(t, model.Grants, 1)
	assert.Contains(t, model.Grants[0], "REVOKE")
}

func TestParseGlobsLexicographicOrder(t *testing.T) {
	dir := t.TempDir()
	// 01 defines the type the table in 02 uses; glob order must load it
	// first, though two-pass resolution would tolerate either order.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "01_types.sql"),
		[]byte(`CREATE TYPE mood AS ENUM ('ok');`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "02_tables.sql"),
		[]byte(`CREATE TABLE t (m mood);`), 0o644))

	model, errs := NewParser().ParseGlobs([]string{filepath.Join(dir, "*.sql")})
	require.Empty(t, errs)
	assert.Len(t, model.Objects, 2)
}

func TestParsePolicy(t *testing.T) {
	model := parseOne(t, `
		CREATE TABLE docs (id int PRIMARY KEY, owner text);
		CREATE POLICY docs_owner ON docs FOR SELECT USING (owner = current_user);
	`)
	obj, ok := model.Lookup(schema.Identity{
		Schema: "public", Name: "docs_owner", Kind: schema.KindPolicy, Signature: "docs",
	})
	require.True(t, ok)
	policy := obj.(*schema.Policy)
	assert.Equal(t, "SELECT", policy.Command)
	assert.True(t, policy.Permissive)
	assert.Equal(t, []string{"PUBLIC"}, policy.Roles)
	assert.NotEmpty(t, policy.Using)
}

func TestParseDomain(t *testing.T) {
	model := parseOne(t, `
		CREATE DOMAIN email AS text NOT NULL CHECK (VALUE ~ '@');
	`)
	obj, ok := model.Lookup(schema.Identity{Schema: "public", Name: "email", Kind: schema.KindDomain})
	require.True(t, ok)
	domain := obj.(*schema.Domain)
	assert.Equal(t, "text", domain.BaseType)
	assert.True(t, domain.NotNull)
	require.Len(t, domain.Checks, 1)
}

func TestParseIndex(t *testing.T) {
	model := parseOne(t, `
		CREATE TABLE t (id int PRIMARY KEY, email text, data jsonb);
		CREATE UNIQUE INDEX t_email_idx ON t (email) WHERE email IS NOT NULL;
		CREATE INDEX t_data_idx ON t USING gin (data);
	`)
	obj, ok := model.Lookup(schema.Identity{Schema: "public", Name: "t_email_idx", Kind: schema.KindIndex})
	require.True(t, ok)
	partial := obj.(*schema.Index)
	assert.True(t, partial.Unique)
	assert.NotEmpty(t, partial.Predicate)

	obj, ok = model.Lookup(schema.Identity{Schema: "public", Name: "t_data_idx", Kind: schema.KindIndex})
	require.True(t, ok)
	assert.Equal(t, "gin", obj.(*schema.Index).Method)
}

func TestParseCommentAttachesToTarget(t *testing.T) {
	model := parseOne(t, `
		CREATE TABLE t (id int PRIMARY KEY);
		COMMENT ON TABLE t IS 'people';
		COMMENT ON COLUMN t.id IS 'surrogate key';
	`)
	tableComment := schema.Identity{
		Schema: "public", Name: "t", Kind: schema.KindComment, Signature: "table:",
	}
	_, ok := model.Lookup(tableComment)
	assert.True(t, ok)

	columnComment := schema.Identity{
		Schema: "public", Name: "t", Kind: schema.KindComment, Signature: "table:column:id",
	}
	_, ok = model.Lookup(columnComment)
	assert.True(t, ok)
}
