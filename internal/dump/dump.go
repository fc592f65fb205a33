// Package dump writes a schema model back out as declarative SQL files,
// one file per object-kind group plus an overview, for seeding a project
// from a live database.
package dump

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shem-sql/shem/internal/emit"
	"github.com/shem-sql/shem/internal/schema"
)

// group maps object kinds to the file that declares them. File name order
// matches a valid load order for the common case; the parser tolerates
// forward references anyway.
type group struct {
	filename string
	kinds    []schema.ObjectKind
}

var groups = []group{
	{"01_schemas.sql", []schema.ObjectKind{schema.KindSchema}},
	{"02_extensions.sql", []schema.ObjectKind{schema.KindExtension, schema.KindForeignServer}},
	{"03_collations.sql", []schema.ObjectKind{schema.KindCollation}},
	{"04_types.sql", []schema.ObjectKind{
		schema.KindEnum, schema.KindCompositeType, schema.KindDomain, schema.KindRangeType,
	}},
	{"05_sequences.sql", []schema.ObjectKind{schema.KindSequence}},
	{"06_tables.sql", []schema.ObjectKind{schema.KindTable}},
	{"07_indexes.sql", []schema.ObjectKind{schema.KindIndex}},
	{"08_views.sql", []schema.ObjectKind{schema.KindView, schema.KindMaterializedView}},
	{"09_functions.sql", []schema.ObjectKind{schema.KindFunction, schema.KindProcedure}},
	{"10_triggers.sql", []schema.ObjectKind{schema.KindTrigger, schema.KindEventTrigger}},
	{"11_policies.sql", []schema.ObjectKind{schema.KindPolicy, schema.KindRule}},
	{"12_comments.sql", []schema.ObjectKind{schema.KindComment}},
}

// WriteDir writes the model into dir, returning the files created.
func WriteDir(model *schema.Schema, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	var written []string
	var fkStatements []string
	counts := make(map[string]int)

	for _, g := range groups {
		var b strings.Builder
		count := 0
		for _, kind := range g.kinds {
			for _, obj := range model.OfKind(kind) {
				stmts, fks := emit.CreateStatements(obj)
				for _, stmt := range stmts {
					b.WriteString(stmt + "\n\n")
				}
				fkStatements = append(fkStatements, fks...)
				count++
			}
		}
		if count == 0 {
			continue
		}
		path := filepath.Join(dir, g.filename)
		if err := os.WriteFile(path, []byte(strings.TrimSuffix(b.String(), "\n")), 0o644); err != nil {
			return nil, err
		}
		written = append(written, path)
		counts[g.filename] = count
	}

	// Foreign keys load last, after every table exists.
	if len(fkStatements) > 0 {
		path := filepath.Join(dir, "13_foreign_keys.sql")
		content := strings.Join(fkStatements, "\n\n") + "\n"
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return nil, err
		}
		written = append(written, path)
		counts["13_foreign_keys.sql"] = len(fkStatements)
	}

	if len(model.Grants) > 0 {
		path := filepath.Join(dir, "14_grants.sql")
		if err := os.WriteFile(path, []byte(strings.Join(model.Grants, "\n")+"\n"), 0o644); err != nil {
			return nil, err
		}
		written = append(written, path)
		counts["14_grants.sql"] = len(model.Grants)
	}

	if err := writeOverview(dir, written, counts); err != nil {
		return nil, err
	}
	return written, nil
}

func writeOverview(dir string, files []string, counts map[string]int) error {
	var b strings.Builder
	b.WriteString("-- Declarative schema dump.\n")
	b.WriteString("-- Files load in name order; foreign keys attach last.\n")
	for _, path := range files {
		name := filepath.Base(path)
		b.WriteString(fmt.Sprintf("--   %s (%d objects)\n", name, counts[name]))
	}
	return os.WriteFile(filepath.Join(dir, "_overview.sql"), []byte(b.String()), 0o644)
}
