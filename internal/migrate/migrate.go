package migrate

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/shem-sql/shem/internal/db"
	"github.com/shem-sql/shem/internal/schema"
)

// HistoryTable is the idempotent migration ledger.
const HistoryTable = "_shem_migrations"

const ensureHistorySQL = `CREATE TABLE IF NOT EXISTS ` + HistoryTable + ` (
	version TEXT PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	checksum TEXT NOT NULL
)`

// Runner applies pending migrations against one database connection.
type Runner struct {
	client *db.PostgresClient
	dir    string
	log    *logrus.Entry
}

// NewRunner returns a runner over an established connection and a
// migrations directory.
func NewRunner(client *db.PostgresClient, dir string) *Runner {
	return &Runner{
		client: client,
		dir:    dir,
		log:    logrus.WithField("component", "migrate"),
	}
}

// EnsureHistory creates the history table when missing.
func (r *Runner) EnsureHistory(ctx context.Context) error {
	if err := r.client.Execute(ctx, ensureHistorySQL); err != nil {
		return fmt.Errorf("creating history table: %w", err)
	}
	return nil
}

// Applied returns version -> checksum for every recorded migration.
func (r *Runner) Applied(ctx context.Context) (map[string]string, error) {
	rows, err := r.client.Conn().Query(ctx, "SELECT version, checksum FROM "+HistoryTable+" ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("reading history table: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]string)
	for rows.Next() {
		var version, checksum string
		if err := rows.Scan(&version, &checksum); err != nil {
			return nil, err
		}
		applied[version] = checksum
	}
	return applied, rows.Err()
}

// Status pairs each migration file with whether the history records it.
type Status struct {
	Migration Migration
	Applied   bool
}

// StatusList reports every migration file's state, verifying checksums of
// applied ones along the way.
func (r *Runner) StatusList(ctx context.Context) ([]Status, error) {
	if err := r.EnsureHistory(ctx); err != nil {
		return nil, err
	}
	migrations, err := LoadDir(r.dir)
	if err != nil {
		return nil, err
	}
	applied, err := r.Applied(ctx)
	if err != nil {
		return nil, err
	}

	var statuses []Status
	for _, m := range migrations {
		recorded, ok := applied[m.Version]
		if ok && recorded != m.Checksum {
			return nil, &schema.HistoryDivergence{
				Version:  m.Version,
				Expected: recorded,
				Actual:   m.Checksum,
			}
		}
		statuses = append(statuses, Status{Migration: m, Applied: ok})
	}
	return statuses, nil
}

// Apply runs every pending migration, one transaction each. A failure
// rolls back the failing migration only; earlier ones stay committed.
func (r *Runner) Apply(ctx context.Context) ([]Migration, error) {
	statuses, err := r.StatusList(ctx)
	if err != nil {
		return nil, err
	}

	var ran []Migration
	for _, status := range statuses {
		if status.Applied {
			continue
		}
		if err := r.applyOne(ctx, status.Migration); err != nil {
			return ran, err
		}
		ran = append(ran, status.Migration)
	}
	return ran, nil
}

func (r *Runner) applyOne(ctx context.Context, m Migration) error {
	statements, err := m.Statements()
	if err != nil {
		return err
	}

	tx, err := r.client.Conn().Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction for %s: %w", m.Version, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %s: executing %q: %w", m.Version, stmt, err)
		}
	}
	if _, err := tx.Exec(ctx,
		"INSERT INTO "+HistoryTable+" (version, checksum) VALUES ($1, $2)",
		m.Version, m.Checksum); err != nil {
		return fmt.Errorf("recording migration %s: %w", m.Version, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing migration %s: %w", m.Version, err)
	}

	r.log.WithFields(logrus.Fields{"version": m.Version, "name": m.Name}).Info("applied migration")
	return nil
}

// Reset rebuilds the target database to the state at the given version:
// the public schema is dropped and the migration chain replayed up to and
// including version. Destructive by nature.
func (r *Runner) Reset(ctx context.Context, version string) error {
	migrations, err := LoadDir(r.dir)
	if err != nil {
		return err
	}
	found := false
	for _, m := range migrations {
		if m.Version == version {
			found = true
			break
		}
	}
	if !found && version != "" {
		return fmt.Errorf("no migration with version %s", version)
	}

	if err := r.client.Execute(ctx, "DROP SCHEMA public CASCADE"); err != nil {
		return fmt.Errorf("dropping schema for reset: %w", err)
	}
	if err := r.client.Execute(ctx, "CREATE SCHEMA public"); err != nil {
		return fmt.Errorf("recreating schema for reset: %w", err)
	}
	if err := r.EnsureHistory(ctx); err != nil {
		return err
	}

	for _, m := range migrations {
		if version != "" && m.Version > version {
			break
		}
		if err := r.applyOne(ctx, m); err != nil {
			return err
		}
	}
	return nil
}
