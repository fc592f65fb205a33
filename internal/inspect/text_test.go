package inspect

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shem-sql/shem/internal/schema"
)

func TestFormatSummary(t *testing.T) {
	model := schema.New()
	require.NoError(t, model.Add(&schema.Enum{Schema: "public", Name: "mood", Labels: []string{"happy", "sad"}}))
	require.NoError(t, model.Add(&schema.Table{
		Schema: "public", Name: "users",
		Columns: []schema.Column{
			{Name: "id", Type: "bigint", NotNull: true},
			{Name: "mood", Type: "mood", Default: "'happy'::mood"},
		},
		Constraints: []schema.Constraint{
			{Name: "users_pkey", Type: schema.ConstraintPrimaryKey, Columns: []string{"id"}},
		},
	}))
	require.NoError(t, model.Add(&schema.Function{
		Schema: "public", Name: "f", Returns: "integer", Language: "sql", Body: "SELECT 1",
		Args: []schema.Argument{{Name: "x", Mode: schema.ArgIn, Type: "integer"}},
	}))

	var buf bytes.Buffer
	require.NoError(t, NewTextFormatter(&buf).Format(model))
	out := buf.String()

	assert.Contains(t, out, "ENUM public.mood (happy|sad)")
	assert.Contains(t, out, "TABLE public.users (PK: id)")
	assert.Contains(t, out, "  id: bigint NOT NULL")
	assert.Contains(t, out, "DEFAULT 'happy'::mood")
	assert.Contains(t, out, "FUNCTION public.f(integer) -> integer")

	// Types come before the tables that use them.
	assert.Less(t, strings.Index(out, "ENUM"), strings.Index(out, "TABLE"))
}

func TestFormatTableRelations(t *testing.T) {
	model := schema.New()
	require.NoError(t, model.Add(&schema.Table{
		Schema: "public", Name: "orders",
		Columns: []schema.Column{{Name: "user_id", Type: "integer"}},
		Constraints: []schema.Constraint{
			{Name: "orders_user_id_fkey", Type: schema.ConstraintForeignKey,
				Columns: []string{"user_id"}, RefTable: "public.users", RefColumns: []string{"id"}},
		},
	}))

	var buf bytes.Buffer
	require.NoError(t, NewTextFormatter(&buf).Format(model))
	assert.Contains(t, buf.String(), "RELATIONS:")
	assert.Contains(t, buf.String(), "user_id → public.users (id)")
}
