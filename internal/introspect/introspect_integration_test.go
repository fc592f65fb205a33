//go:build integration
// +build integration

package introspect

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shem-sql/shem/internal/db"
	"github.com/shem-sql/shem/internal/diff"
	"github.com/shem-sql/shem/internal/parse"
	"github.com/shem-sql/shem/internal/schema"
	"github.com/shem-sql/shem/internal/shadow"
)

// testURL must point at a disposable database; the round-trip test applies
// and drops objects in it.
func testURL(t *testing.T) string {
	t.Helper()
	url := os.Getenv("SHEM_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("SHEM_TEST_DATABASE_URL not set")
	}
	return url
}

// Round-trip property: introspecting a database produced by applying the
// emitted migration to an empty instance yields a model equal to the
// desired model.
func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	url := testURL(t)

	desired, errs := parse.NewParser().ParseSQL("roundtrip.sql", `
		CREATE TYPE mood AS ENUM ('happy', 'sad');
		CREATE TABLE users (
			id bigint GENERATED ALWAYS AS IDENTITY,
			email text NOT NULL,
			m mood DEFAULT 'happy',
			PRIMARY KEY (id),
			UNIQUE (email)
		);
		CREATE INDEX users_m_idx ON users (m);
		CREATE VIEW happy_users AS SELECT id FROM users WHERE m = 'happy';
		CREATE FUNCTION user_count() RETURNS bigint LANGUAGE sql STABLE AS 'SELECT count(*) FROM users';
	`)
	require.Empty(t, errs)

	plan, err := diff.Plan(schema.New(), desired, diff.Options{})
	require.NoError(t, err)

	client, err := db.NewPostgresClient(ctx, url)
	require.NoError(t, err)
	defer func() { _ = client.Close(ctx) }()
	for _, stmt := range plan.Statements {
		require.NoError(t, client.Execute(ctx, stmt))
	}
	defer func() {
		_ = client.Execute(ctx, "DROP SCHEMA public CASCADE")
		_ = client.Execute(ctx, "CREATE SCHEMA public")
	}()

	actual, err := New(url).Introspect(ctx)
	require.NoError(t, err)

	delta := shadow.Delta(desired, actual)
	require.Empty(t, delta, "round-trip mismatch:\n%s", delta)

	// A second diff against the live state must be empty.
	followup, err := diff.Plan(actual, desired, diff.Options{})
	require.NoError(t, err)
	require.True(t, followup.Empty(), "unexpected statements: %v", followup.Statements)
}

// Grants already applied to the live database must not re-emit on the
// next diff.
func TestGrantsRoundTrip(t *testing.T) {
	ctx := context.Background()
	url := testURL(t)

	desired, errs := parse.NewParser().ParseSQL("grants.sql", `
		CREATE TABLE t (id int PRIMARY KEY);
		GRANT SELECT ON t TO PUBLIC;
	`)
	require.Empty(t, errs)

	plan, err := diff.Plan(schema.New(), desired, diff.Options{})
	require.NoError(t, err)

	client, err := db.NewPostgresClient(ctx, url)
	require.NoError(t, err)
	defer func() { _ = client.Close(ctx) }()
	for _, stmt := range plan.Statements {
		require.NoError(t, client.Execute(ctx, stmt))
	}
	defer func() {
		_ = client.Execute(ctx, "DROP SCHEMA public CASCADE")
		_ = client.Execute(ctx, "CREATE SCHEMA public")
	}()

	actual, err := New(url).Introspect(ctx)
	require.NoError(t, err)
	require.Equal(t, desired.Grants, actual.Grants)

	followup, err := diff.Plan(actual, desired, diff.Options{})
	require.NoError(t, err)
	require.True(t, followup.Empty(), "grants re-emitted: %v", followup.Statements)
}

func TestShadowValidation(t *testing.T) {
	ctx := context.Background()
	url := testURL(t)

	desired, errs := parse.NewParser().ParseSQL("shadow.sql",
		`CREATE TABLE t (id int PRIMARY KEY);`)
	require.Empty(t, errs)

	plan, err := diff.Plan(schema.New(), desired, diff.Options{})
	require.NoError(t, err)

	validator := shadow.NewValidator(url)
	require.NoError(t, validator.Sweep(ctx))
	require.NoError(t, validator.Validate(ctx, plan.Statements, desired))
}
