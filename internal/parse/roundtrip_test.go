package parse

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shem-sql/shem/internal/emit"
	"github.com/shem-sql/shem/internal/schema"
)

// Reparsing the emitter's rendering of a parsed model must yield an equal
// model: Parse(Emit(Parse(F))) == Parse(F).
func TestIdentityUnderReparse(t *testing.T) {
	source := `
		CREATE TYPE mood AS ENUM ('happy', 'sad');
		CREATE DOMAIN email AS text CHECK (VALUE ~ '@');
		CREATE SEQUENCE counter INCREMENT BY 2 START WITH 10;
		CREATE TABLE users (
			id bigint GENERATED ALWAYS AS IDENTITY,
			address email,
			m mood,
			note text DEFAULT 'none',
			PRIMARY KEY (id)
		);
		CREATE TABLE posts (
			id int PRIMARY KEY,
			author_id bigint REFERENCES users(id) ON DELETE CASCADE
		);
		CREATE INDEX posts_author_idx ON posts (author_id);
		CREATE VIEW post_authors AS SELECT u.id, p.id AS post_id FROM users u JOIN posts p ON p.author_id = u.id;
		CREATE FUNCTION touch() RETURNS trigger LANGUAGE plpgsql AS $$BEGIN RETURN NEW; END;$$;
		CREATE TRIGGER posts_touch BEFORE UPDATE ON posts FOR EACH ROW EXECUTE FUNCTION public.touch();
		CREATE POLICY posts_all ON posts USING (true);
	`

	first, errs := NewParser().ParseSQL("first.sql", source)
	require.Empty(t, errs)

	rendered := renderModel(t, first)
	second, errs := NewParser().ParseSQL("second.sql", rendered)
	require.Empty(t, errs, "emitted SQL must reparse cleanly:\n%s", rendered)

	require.Equal(t, len(first.Objects), len(second.Objects),
		"object counts differ\nemitted:\n%s", rendered)
	for id, obj := range first.Objects {
		reparsed, ok := second.Objects[id]
		require.True(t, ok, "missing %s after reparse", id)
		assert.Equal(t, obj, reparsed, "object %s changed across reparse", id)
	}
}

// renderModel emits creation DDL for every object, foreign keys last,
// mirroring the migration script layout.
func renderModel(t *testing.T, model *schema.Schema) string {
	t.Helper()
	var stmts, fks []string
	for _, obj := range model.Sorted() {
		s, f := emit.CreateStatements(obj)
		stmts = append(stmts, s...)
		fks = append(fks, f...)
	}
	return strings.Join(append(stmts, fks...), "\n")
}
