// Package shadow validates desired-state SQL against a transient database
// before any migration is written. The shadow database lives on the same
// server, carries a unique name, and is dropped unconditionally.
package shadow

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/shem-sql/shem/internal/db"
	"github.com/shem-sql/shem/internal/introspect"
	"github.com/shem-sql/shem/internal/schema"
)

const namePrefix = "shem_shadow_"

// maxAge is how long an orphaned shadow database may linger before the
// startup sweep removes it.
const maxAge = time.Hour

// Validator owns the lifecycle of one shadow database per run.
type Validator struct {
	adminURL string
	log      *logrus.Entry
}

// NewValidator takes a connection string for the administrative database
// on the target server.
func NewValidator(adminURL string) *Validator {
	return &Validator{
		adminURL: adminURL,
		log:      logrus.WithField("component", "shadow"),
	}
}

// shadowName embeds the creation time so the sweep can age orphans without
// any catalog support.
func shadowName(now time.Time) string {
	return fmt.Sprintf("%s%d_%s", namePrefix, now.Unix(),
		strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}

// Validate creates a shadow database, runs the scripts in order, then
// introspects the result and compares it against desired. A mismatch is a
// ShadowDivergence carrying the delta. The shadow database is dropped on
// every exit path.
func (v *Validator) Validate(ctx context.Context, scripts []string, desired *schema.Schema) error {
	admin, err := db.NewPostgresClient(ctx, v.adminURL)
	if err != nil {
		return err
	}
	defer func() { _ = admin.Close(ctx) }()

	name := shadowName(time.Now())
	if err := admin.Execute(ctx, "CREATE DATABASE "+name); err != nil {
		return fmt.Errorf("creating shadow database: %w", err)
	}
	defer func() {
		dropCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := admin.Execute(dropCtx, "DROP DATABASE "+name+" WITH (FORCE)"); err != nil {
			v.log.WithError(err).Warn("failed to drop shadow database")
		}
	}()

	shadowURL, err := db.WithDatabase(v.adminURL, name)
	if err != nil {
		return err
	}
	shadowClient, err := db.NewPostgresClient(ctx, shadowURL)
	if err != nil {
		return err
	}
	for _, script := range scripts {
		if err := shadowClient.Execute(ctx, script); err != nil {
			_ = shadowClient.Close(ctx)
			return fmt.Errorf("executing desired-state SQL on shadow database: %w", err)
		}
	}
	if err := shadowClient.Close(ctx); err != nil {
		return err
	}

	actual, err := introspect.New(shadowURL).Introspect(ctx)
	if err != nil {
		return err
	}

	if delta := Delta(desired, actual); delta != "" {
		return &schema.ShadowDivergence{Delta: delta}
	}
	v.log.Debug("shadow database matches desired state")
	return nil
}

// Sweep force-drops shadow databases older than an hour, covering runs
// that died before their cleanup could fire.
func (v *Validator) Sweep(ctx context.Context) error {
	admin, err := db.NewPostgresClient(ctx, v.adminURL)
	if err != nil {
		return err
	}
	defer func() { _ = admin.Close(ctx) }()

	rows, err := admin.Conn().Query(ctx,
		"SELECT datname FROM pg_database WHERE datname LIKE $1", namePrefix+"%")
	if err != nil {
		return fmt.Errorf("listing shadow databases: %w", err)
	}
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return err
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, name := range names {
		if !Stale(name, time.Now()) {
			continue
		}
		if err := admin.Execute(ctx, "DROP DATABASE "+name+" WITH (FORCE)"); err != nil {
			v.log.WithError(err).WithField("database", name).Warn("failed to sweep shadow database")
			continue
		}
		v.log.WithField("database", name).Info("swept stale shadow database")
	}
	return nil
}

// Stale reports whether a shadow database name is old enough to sweep.
// Unparseable names count as stale; they can only be left over from a
// crashed run.
func Stale(name string, now time.Time) bool {
	rest := strings.TrimPrefix(name, namePrefix)
	i := strings.IndexByte(rest, '_')
	if i < 0 {
		return true
	}
	unix, err := strconv.ParseInt(rest[:i], 10, 64)
	if err != nil {
		return true
	}
	return now.Sub(time.Unix(unix, 0)) > maxAge
}
