package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shem-sql/shem/internal/schema"
)

func TestNormalizeExprIgnoresWhitespaceAndParens(t *testing.T) {
	pairs := [][2]string{
		{"a + b", "a+b"},
		{"(a + b)", "a + b"},
		{"price  >  0", "price > 0"},
		{"now( )", "now()"},
	}
	for _, pair := range pairs {
		left := NormalizeExpr(pair[0])
		right := NormalizeExpr(pair[1])
		assert.Equal(t, left, right, "%q vs %q", pair[0], pair[1])
		assert.NotEmpty(t, left)
	}
}

func TestNormalizeExprKeepsSemanticDifferences(t *testing.T) {
	// Textual comparison only: commutations stay distinct.
	assert.NotEqual(t, NormalizeExpr("a + b"), NormalizeExpr("b + a"))
}

func TestNormalizeExprIdempotent(t *testing.T) {
	for _, expr := range []string{"a > (b + 1)", "lower(email)", "'x'::text"} {
		once := NormalizeExpr(expr)
		assert.Equal(t, once, NormalizeExpr(once), "input %q", expr)
	}
}

func TestNormalizeQueryEquatesSpellings(t *testing.T) {
	a := NormalizeQuery("SELECT id,name FROM users WHERE active")
	b := NormalizeQuery("select  id , name\nfrom users\nwhere active;")
	assert.Equal(t, a, b)
}

func TestNormalizeBodySharedTrimRule(t *testing.T) {
	assert.Equal(t, "SELECT 1", NormalizeBody("\n\tSELECT 1\n  "))
	assert.Equal(t, "a\n\nb", NormalizeBody("a\n\nb"))
}

func TestLowerStatementIndexDef(t *testing.T) {
	// The introspector feeds pg_get_indexdef output through here.
	obj, err := LowerStatement(
		"CREATE UNIQUE INDEX users_email_idx ON public.users USING btree (lower(email))")
	require.NoError(t, err)
	idx := obj.(*schema.Index)
	assert.Equal(t, "users_email_idx", idx.Name)
	assert.True(t, idx.Unique)
	assert.Equal(t, "btree", idx.Method)
	require.Len(t, idx.Keys, 1)
	assert.Contains(t, idx.Keys[0].Expr, "lower")
}

func TestLowerStatementFunctionDef(t *testing.T) {
	obj, err := LowerStatement(`CREATE OR REPLACE FUNCTION public.add(a integer, b integer)
 RETURNS integer
 LANGUAGE sql
 IMMUTABLE
AS $function$SELECT a + b$function$`)
	require.NoError(t, err)
	fn := obj.(*schema.Function)
	assert.Equal(t, "add", fn.Name)
	assert.Equal(t, "integer, integer", fn.Signature())
	assert.Equal(t, "IMMUTABLE", fn.Volatility)
	assert.Equal(t, "SELECT a + b", fn.Body)
}

func TestLowerStatementRejectsOtherKinds(t *testing.T) {
	_, err := LowerStatement("CREATE TABLE t (id int)")
	require.Error(t, err)
}

func TestNormalizeArgSignature(t *testing.T) {
	assert.Equal(t, "integer, text", NormalizeArgSignature("a integer, b text"))
	assert.Equal(t, "", NormalizeArgSignature(""))
}

func TestTypeAliasCanonicalization(t *testing.T) {
	model := parseOne(t, `CREATE TABLE t (a int4, b varchar(20), c bool, d float8);`)
	obj, _ := model.Lookup(schema.Identity{Schema: "public", Name: "t", Kind: schema.KindTable})
	table := obj.(*schema.Table)
	assert.Equal(t, "integer", table.Columns[0].Type)
	assert.Equal(t, "character varying(20)", table.Columns[1].Type)
	assert.Equal(t, "boolean", table.Columns[2].Type)
	assert.Equal(t, "double precision", table.Columns[3].Type)
}
