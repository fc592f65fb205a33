package shem

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shem-sql/shem/internal/diff"
	"github.com/shem-sql/shem/internal/schema"
)

func writeSchema(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, sql := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(sql), 0o644))
	}
	return dir
}

func TestParseSchema(t *testing.T) {
	dir := writeSchema(t, map[string]string{
		"types.sql":  `CREATE TYPE mood AS ENUM ('happy', 'sad');`,
		"tables.sql": `CREATE TABLE t (id int PRIMARY KEY, m mood);`,
	})

	model, err := ParseSchema([]string{filepath.Join(dir, "*.sql")})
	require.NoError(t, err)
	assert.Len(t, model.Objects, 2)
}

func TestParseSchemaJoinsErrors(t *testing.T) {
	dir := writeSchema(t, map[string]string{
		"bad.sql": `VACUUM; CHECKPOINT;`,
	})
	_, err := ParseSchema([]string{filepath.Join(dir, "*.sql")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Vacuum")
	assert.Contains(t, err.Error(), "CheckPoint")
}

func TestValidateSchemaReportsEverything(t *testing.T) {
	dir := writeSchema(t, map[string]string{
		"schema.sql": `CREATE TABLE a (x missing_type); CREATE TABLE b (y other_missing);`,
	})
	errs := ValidateSchema([]string{filepath.Join(dir, "*.sql")})
	assert.Len(t, errs, 2)
}

func TestScript(t *testing.T) {
	cs := &diff.ChangeSet{Statements: []string{"CREATE TABLE public.t (id integer);", "DROP VIEW public.v;"}}
	assert.Equal(t, "CREATE TABLE public.t (id integer);\nDROP VIEW public.v;\n", Script(cs))
	assert.Empty(t, Script(&diff.ChangeSet{}))
}

func TestFullDeclarativePlan(t *testing.T) {
	dir := writeSchema(t, map[string]string{
		"schema.sql": `
			CREATE TYPE status AS ENUM ('open', 'closed');
			CREATE TABLE tickets (
				id bigint GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
				state status NOT NULL DEFAULT 'open'
			);
			CREATE INDEX tickets_state_idx ON tickets (state);
		`,
	})

	desired, err := ParseSchema([]string{filepath.Join(dir, "*.sql")})
	require.NoError(t, err)

	cs, err := diff.Plan(schema.New(), desired, diff.Options{})
	require.NoError(t, err)
	require.Len(t, cs.Statements, 3)
	assert.Contains(t, cs.Statements[0], "CREATE TYPE public.status")
	assert.Contains(t, cs.Statements[1], "CREATE TABLE public.tickets")
	assert.Contains(t, cs.Statements[2], "CREATE INDEX tickets_state_idx")
}
