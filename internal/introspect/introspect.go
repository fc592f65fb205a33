// Package introspect extracts a schema model from a live PostgreSQL
// instance by querying system catalogs. The model it produces matches what
// the declarative parser would build for an equivalent SQL file: catalog
// expression text is re-normalized through the grammar, and objects whose
// catalogs expose a complete pg_get_*def rendering are lowered through the
// same statement lowering the parser uses.
package introspect

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/shem-sql/shem/internal/db"
	"github.com/shem-sql/shem/internal/schema"
)

// maxWorkers bounds the connections used for concurrent catalog queries.
const maxWorkers = 4

// Introspector materializes one object kind per catalog query. All queries
// observe a single REPEATABLE READ snapshot, so parallel execution is
// equivalent to any serial ordering.
type Introspector struct {
	url string
	log *logrus.Entry
}

// New returns an introspector for the given connection string.
func New(url string) *Introspector {
	return &Introspector{
		url: url,
		log: logrus.WithField("component", "introspect"),
	}
}

type builder struct {
	kind schema.ObjectKind
	fn   func(context.Context, pgx.Tx) ([]schema.Object, error)
}

// Introspect builds the complete model. Any catalog query failure aborts
// the pass; partial models are never returned.
func (in *Introspector) Introspect(ctx context.Context) (*schema.Schema, error) {
	primary, err := db.NewPostgresClient(ctx, in.url)
	if err != nil {
		return nil, err
	}
	defer func() { _ = primary.Close(ctx) }()

	tx, err := primary.Conn().BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return nil, &schema.IntrospectionError{Kind: "", Err: err}
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var snapshot string
	if err := tx.QueryRow(ctx, "SELECT pg_export_snapshot()").Scan(&snapshot); err != nil {
		return nil, &schema.IntrospectionError{Kind: "", Err: err}
	}

	builders := []builder{
		{schema.KindSchema, in.schemas},
		{schema.KindExtension, in.extensions},
		{schema.KindCollation, in.collations},
		{schema.KindEnum, in.enums},
		{schema.KindCompositeType, in.compositeTypes},
		{schema.KindDomain, in.domains},
		{schema.KindRangeType, in.rangeTypes},
		{schema.KindSequence, in.sequences},
		{schema.KindTable, in.tables},
		{schema.KindIndex, in.indexes},
		{schema.KindView, in.views},
		{schema.KindMaterializedView, in.materializedViews},
		{schema.KindFunction, in.functions},
		{schema.KindTrigger, in.triggers},
		{schema.KindEventTrigger, in.eventTriggers},
		{schema.KindPolicy, in.policies},
		{schema.KindRule, in.rules},
		{schema.KindForeignServer, in.foreignServers},
		{schema.KindComment, in.comments},
	}

	results := make([][]schema.Object, len(builders))
	jobs := make(chan int)

	eg, egCtx := errgroup.WithContext(ctx)
	workers := maxWorkers
	if workers > len(builders) {
		workers = len(builders)
	}
	for w := 0; w < workers; w++ {
		eg.Go(func() error {
			return in.runWorker(egCtx, snapshot, jobs, builders, results)
		})
	}
	eg.Go(func() error {
		defer close(jobs)
		for idx := range builders {
			select {
			case jobs <- idx:
			case <-egCtx.Done():
				return egCtx.Err()
			}
		}
		return nil
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	model := schema.New()
	for _, objs := range results {
		for _, obj := range objs {
			if err := model.Add(obj); err != nil {
				return nil, err
			}
		}
	}

	// Grants ride on the model as canonical statements, not objects; they
	// reuse the primary transaction's snapshot.
	grants, err := in.grants(ctx, tx)
	if err != nil {
		return nil, &schema.IntrospectionError{Kind: "", Err: err}
	}
	model.Grants = grants

	in.log.WithField("objects", len(model.Objects)).Debug("introspected live schema")
	return model, nil
}

// runWorker opens its own connection, pins the exported snapshot, and
// drains the job queue.
func (in *Introspector) runWorker(ctx context.Context, snapshot string, jobs <-chan int, builders []builder, results [][]schema.Object) error {
	client, err := db.NewPostgresClient(ctx, in.url)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close(ctx) }()

	tx, err := client.Conn().BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return &schema.IntrospectionError{Kind: "", Err: err}
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, fmt.Sprintf("SET TRANSACTION SNAPSHOT '%s'", snapshot)); err != nil {
		return &schema.IntrospectionError{Kind: "", Err: err}
	}

	for idx := range jobs {
		b := builders[idx]
		objs, err := b.fn(ctx, tx)
		if err != nil {
			return &schema.IntrospectionError{Kind: b.kind, Err: err}
		}
		results[idx] = objs
	}
	return nil
}

// notExtensionOwned filters out objects that belong to an extension: they
// reappear when the extension is recreated and would be double-emitted.
// The placeholder names the catalog and the oid column of the outer query.
const notExtensionOwned = `NOT EXISTS (
		SELECT 1 FROM pg_depend d
		WHERE d.classid = '%s'::regclass AND d.objid = %s AND d.deptype = 'e')`

func extFilter(catalog, oidExpr string) string {
	return fmt.Sprintf(notExtensionOwned, catalog, oidExpr)
}

// userNamespace excludes system schemas from a query; the placeholder is
// the namespace oid column.
func userNamespace(nspOID string) string {
	return fmt.Sprintf(`%s IN (
		SELECT oid FROM pg_namespace
		WHERE nspname NOT IN ('pg_catalog', 'information_schema', 'pg_toast')
		  AND nspname NOT LIKE 'pg_temp%%'
		  AND nspname NOT LIKE 'pg_toast%%')`, nspOID)
}
