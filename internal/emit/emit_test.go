package emit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shem-sql/shem/internal/schema"
)

func TestQuoteIdentifier(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"users", "users"},
		{"user_2", "user_2"},
		{"User", `"User"`},
		{"order", `"order"`}, // reserved
		{"2fast", `"2fast"`}, // leading digit
		{"with space", `"with space"`},
		{`he"llo`, `"he""llo"`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, QuoteIdentifier(tt.in), "input %q", tt.in)
	}
}

func TestCreateTableStatement(t *testing.T) {
	table := &schema.Table{
		Schema: "public", Name: "t",
		Columns: []schema.Column{{Name: "id", Type: "integer", NotNull: true}},
		Constraints: []schema.Constraint{
			{Name: "t_pkey", Type: schema.ConstraintPrimaryKey, Columns: []string{"id"}},
		},
	}
	stmt, fks := CreateTableStatement(table)
	assert.Equal(t, "CREATE TABLE public.t (id integer NOT NULL, CONSTRAINT t_pkey PRIMARY KEY (id));", stmt)
	assert.Empty(t, fks)
}

func TestCreateTableSplitsForeignKeys(t *testing.T) {
	table := &schema.Table{
		Schema: "public", Name: "orders",
		Columns: []schema.Column{{Name: "user_id", Type: "integer"}},
		Constraints: []schema.Constraint{
			{Name: "orders_user_id_fkey", Type: schema.ConstraintForeignKey,
				Columns: []string{"user_id"}, RefTable: "public.users", RefColumns: []string{"id"},
				OnDelete: "SET NULL"},
		},
	}
	stmt, fks := CreateTableStatement(table)
	assert.NotContains(t, stmt, "FOREIGN KEY")
	require.Len(t, fks, 1)
	assert.Equal(t,
		"ALTER TABLE public.orders ADD CONSTRAINT orders_user_id_fkey FOREIGN KEY (user_id) REFERENCES public.users (id) ON DELETE SET NULL;",
		fks[0])
}

func TestColumnRendering(t *testing.T) {
	tests := []struct {
		name string
		col  schema.Column
		want string
	}{
		{
			name: "default",
			col:  schema.Column{Name: "created_at", Type: "timestamp with time zone", NotNull: true, Default: "now()"},
			want: "created_at timestamp with time zone NOT NULL DEFAULT now()",
		},
		{
			name: "identity",
			col:  schema.Column{Name: "id", Type: "bigint", NotNull: true, Identity: "ALWAYS"},
			want: "id bigint NOT NULL GENERATED ALWAYS AS IDENTITY",
		},
		{
			name: "generated",
			col:  schema.Column{Name: "total", Type: "numeric", Generated: "price * qty"},
			want: "total numeric GENERATED ALWAYS AS (price * qty) STORED",
		},
		{
			name: "collated",
			col:  schema.Column{Name: "name", Type: "text", Collation: "public.nocase"},
			want: "name text COLLATE public.nocase",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, columnDef(tt.col))
		})
	}
}

func TestCreateStatementsPerKind(t *testing.T) {
	tests := []struct {
		name string
		obj  schema.Object
		want string
	}{
		{
			name: "enum",
			obj:  &schema.Enum{Schema: "public", Name: "mood", Labels: []string{"happy", "sad"}},
			want: "CREATE TYPE public.mood AS ENUM ('happy', 'sad');",
		},
		{
			name: "composite",
			obj: &schema.CompositeType{Schema: "public", Name: "pair",
				Attributes: []schema.TypeAttribute{{Name: "a", Type: "integer"}, {Name: "b", Type: "text"}}},
			want: "CREATE TYPE public.pair AS (a integer, b text);",
		},
		{
			name: "domain",
			obj: &schema.Domain{Schema: "public", Name: "email", BaseType: "text", NotNull: true,
				Checks: []schema.DomainCheck{{Name: "email_check", Expression: "value ~ '@'"}}},
			want: "CREATE DOMAIN public.email AS text NOT NULL CONSTRAINT email_check CHECK (value ~ '@');",
		},
		{
			name: "extension",
			obj:  &schema.Extension{Name: "pgcrypto"},
			want: "CREATE EXTENSION IF NOT EXISTS pgcrypto;",
		},
		{
			name: "schema",
			obj:  &schema.NamedSchema{Name: "app", Owner: "app_owner"},
			want: "CREATE SCHEMA app AUTHORIZATION app_owner;",
		},
		{
			name: "collation",
			obj:  &schema.Collation{Schema: "public", Name: "nocase", Provider: "icu", Locale: "und-u-ks-level2", Deterministic: false},
			want: "CREATE COLLATION public.nocase (provider = icu, locale = 'und-u-ks-level2', deterministic = false);",
		},
		{
			name: "view with check option",
			obj:  &schema.View{Schema: "public", Name: "v", Query: "SELECT 1 AS one", CheckOption: "CASCADED"},
			want: "CREATE VIEW public.v AS SELECT 1 AS one WITH CASCADED CHECK OPTION;",
		},
		{
			name: "materialized view",
			obj:  &schema.MaterializedView{Schema: "public", Name: "m", Query: "SELECT 1 AS one", WithData: true},
			want: "CREATE MATERIALIZED VIEW public.m AS SELECT 1 AS one;",
		},
		{
			name: "event trigger",
			obj: &schema.EventTrigger{Name: "audit_ddl", Event: "ddl_command_end",
				Tags: []string{"CREATE TABLE"}, Function: "public.audit()"},
			want: "CREATE EVENT TRIGGER audit_ddl ON ddl_command_end WHEN TAG IN ('CREATE TABLE') EXECUTE FUNCTION public.audit();",
		},
		{
			name: "foreign server",
			obj: &schema.ForeignServer{Name: "films", Wrapper: "postgres_fdw",
				Options: map[string]string{"host": "remote", "dbname": "films"}},
			want: "CREATE SERVER films FOREIGN DATA WRAPPER postgres_fdw OPTIONS (dbname 'films', host 'remote');",
		},
		{
			name: "comment",
			obj: &schema.Comment{
				Target: schema.Identity{Schema: "public", Name: "t", Kind: schema.KindTable},
				Text:   "it's people",
			},
			want: "COMMENT ON TABLE public.t IS 'it''s people';",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmts, fks := CreateStatements(tt.obj)
			require.Len(t, stmts, 1)
			assert.Equal(t, tt.want, stmts[0])
			assert.Empty(t, fks)
		})
	}
}

func TestConstraintTrigger(t *testing.T) {
	trigger := &schema.Trigger{
		Schema: "public", Table: "t", Name: "check_total",
		Timing: "AFTER", Events: []string{"INSERT", "UPDATE"}, ForEachRow: true,
		Function: "public.check_total()", Constraint: true,
		Deferrable: true, InitiallyDeferred: true,
	}
	stmts, _ := CreateStatements(trigger)
	require.Len(t, stmts, 1)
	assert.Equal(t,
		"CREATE CONSTRAINT TRIGGER check_total AFTER INSERT OR UPDATE ON public.t DEFERRABLE INITIALLY DEFERRED FOR EACH ROW EXECUTE FUNCTION public.check_total();",
		stmts[0])
}

func TestFunctionRendering(t *testing.T) {
	fn := &schema.Function{
		Schema: "public", Name: "add",
		Args: []schema.Argument{
			{Name: "a", Mode: schema.ArgIn, Type: "integer"},
			{Name: "b", Mode: schema.ArgIn, Type: "integer", Default: "0"},
		},
		Returns: "integer", Language: "sql", Volatility: "IMMUTABLE", Strict: true,
		Body: "SELECT a + b",
	}
	stmts, _ := CreateStatements(fn)
	require.Len(t, stmts, 1)
	assert.Equal(t,
		"CREATE FUNCTION public.add(a integer, b integer DEFAULT 0) RETURNS integer LANGUAGE sql IMMUTABLE STRICT AS $shem$SELECT a + b$shem$;",
		stmts[0])
}

func TestDollarQuoteAvoidsCollision(t *testing.T) {
	quoted := dollarQuote("SELECT '$shem$'")
	assert.NotEqual(t, "$shem$", quoted[:6])
}

func TestDropStatements(t *testing.T) {
	enum := &schema.Enum{Schema: "public", Name: "mood"}
	assert.Equal(t, "DROP TYPE public.mood;", DropStatement(enum, false))
	assert.Equal(t, "DROP TYPE public.mood CASCADE;", DropStatement(enum, true))

	trigger := &schema.Trigger{Schema: "public", Table: "t", Name: "trg"}
	assert.Equal(t, "DROP TRIGGER trg ON public.t;", DropStatement(trigger, false))

	fn := &schema.Function{Schema: "public", Name: "f",
		Args: []schema.Argument{{Name: "x", Mode: schema.ArgIn, Type: "integer"}}}
	assert.Equal(t, "DROP FUNCTION public.f(integer);", DropStatement(fn, false))
}

func TestIsDestructive(t *testing.T) {
	destructive := []string{
		"DROP TABLE public.t;",
		"ALTER TABLE public.t DROP COLUMN name;",
		"TRUNCATE public.t;",
	}
	for _, stmt := range destructive {
		assert.True(t, IsDestructive(stmt), stmt)
	}
	safe := []string{
		"CREATE TABLE public.t (id integer);",
		"ALTER TABLE public.t ADD COLUMN name text;",
		"ALTER TABLE public.t ALTER COLUMN n TYPE bigint USING n::bigint;",
	}
	for _, stmt := range safe {
		assert.False(t, IsDestructive(stmt), stmt)
	}
}

func TestAlterTableConstraintReplacement(t *testing.T) {
	old := &schema.Table{Schema: "public", Name: "t",
		Columns: []schema.Column{{Name: "n", Type: "integer"}},
		Constraints: []schema.Constraint{
			{Name: "t_n_check", Type: schema.ConstraintCheck, Expression: "n > 0"},
		}}
	new_ := &schema.Table{Schema: "public", Name: "t",
		Columns: []schema.Column{{Name: "n", Type: "integer"}},
		Constraints: []schema.Constraint{
			{Name: "t_n_check", Type: schema.ConstraintCheck, Expression: "n > 1"},
		}}

	pre, body, fkAdds := AlterTableStatements(old, new_)
	assert.Equal(t, []string{"ALTER TABLE public.t DROP CONSTRAINT t_n_check;"}, pre)
	assert.Equal(t, []string{"ALTER TABLE public.t ADD CONSTRAINT t_n_check CHECK (n > 1);"}, body)
	assert.Empty(t, fkAdds)
}
