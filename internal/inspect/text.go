// Package inspect prints a compact human-readable summary of a schema
// model.
package inspect

import (
	"fmt"
	"io"
	"strings"

	"github.com/shem-sql/shem/internal/schema"
)

// TextFormatter writes model summaries as compact text.
type TextFormatter struct {
	writer io.Writer
}

// NewTextFormatter creates a new text formatter.
func NewTextFormatter(w io.Writer) *TextFormatter {
	return &TextFormatter{writer: w}
}

// Format writes one line per object, grouped by kind, with tables
// expanded column by column.
func (f *TextFormatter) Format(model *schema.Schema) error {
	var lastKind schema.ObjectKind
	first := true
	for _, obj := range sortedByKind(model) {
		id := obj.ID()
		if id.Kind != lastKind {
			if !first {
				_, _ = fmt.Fprintln(f.writer)
			}
			lastKind = id.Kind
			first = false
		}
		switch o := obj.(type) {
		case *schema.Table:
			f.formatTable(o)
		case *schema.Enum:
			_, _ = fmt.Fprintf(f.writer, "ENUM %s.%s (%s)\n", o.Schema, o.Name, strings.Join(o.Labels, "|"))
		case *schema.View:
			_, _ = fmt.Fprintf(f.writer, "VIEW %s.%s\n", o.Schema, o.Name)
		case *schema.MaterializedView:
			_, _ = fmt.Fprintf(f.writer, "MATERIALIZED VIEW %s.%s\n", o.Schema, o.Name)
		case *schema.Function:
			kind := "FUNCTION"
			if o.Procedure {
				kind = "PROCEDURE"
			}
			_, _ = fmt.Fprintf(f.writer, "%s %s.%s(%s)", kind, o.Schema, o.Name, o.Signature())
			if o.Returns != "" {
				_, _ = fmt.Fprintf(f.writer, " -> %s", o.Returns)
			}
			_, _ = fmt.Fprintln(f.writer)
		case *schema.Index:
			unique := ""
			if o.Unique {
				unique = " UNIQUE"
			}
			_, _ = fmt.Fprintf(f.writer, "INDEX %s.%s ON %s%s\n", o.Schema, o.Name, o.Table, unique)
		case *schema.Sequence:
			_, _ = fmt.Fprintf(f.writer, "SEQUENCE %s.%s\n", o.Schema, o.Name)
		case *schema.Trigger:
			_, _ = fmt.Fprintf(f.writer, "TRIGGER %s ON %s.%s (%s %s)\n",
				o.Name, o.Schema, o.Table, o.Timing, strings.Join(o.Events, "/"))
		case *schema.Policy:
			_, _ = fmt.Fprintf(f.writer, "POLICY %s ON %s.%s (%s)\n", o.Name, o.Schema, o.Table, o.Command)
		default:
			_, _ = fmt.Fprintf(f.writer, "%s\n", strings.ToUpper(strings.ReplaceAll(string(id.Kind), "_", " "))+" "+idName(id))
		}
	}
	return nil
}

func (f *TextFormatter) formatTable(table *schema.Table) {
	pk := ""
	for _, con := range table.Constraints {
		if con.Type == schema.ConstraintPrimaryKey {
			pk = fmt.Sprintf(" (PK: %s)", strings.Join(con.Columns, ", "))
		}
	}
	_, _ = fmt.Fprintf(f.writer, "TABLE %s.%s%s\n", table.Schema, table.Name, pk)

	for _, col := range table.Columns {
		parts := []string{col.Name + ":", col.Type}
		if col.NotNull {
			parts = append(parts, "NOT NULL")
		}
		if col.Default != "" {
			parts = append(parts, "DEFAULT "+col.Default)
		}
		if col.Identity != "" {
			parts = append(parts, "IDENTITY "+col.Identity)
		}
		_, _ = fmt.Fprintf(f.writer, "  %s\n", strings.Join(parts, " "))
	}

	var fks []string
	for _, con := range table.Constraints {
		if con.Type == schema.ConstraintForeignKey {
			fks = append(fks, fmt.Sprintf("    %s → %s (%s)",
				strings.Join(con.Columns, ", "), con.RefTable, strings.Join(con.RefColumns, ", ")))
		}
	}
	if len(fks) > 0 {
		_, _ = fmt.Fprintln(f.writer, "  RELATIONS:")
		for _, fk := range fks {
			_, _ = fmt.Fprintln(f.writer, fk)
		}
	}
}

func idName(id schema.Identity) string {
	if id.Schema == "" {
		return id.Name
	}
	return id.Schema + "." + id.Name
}

// sortedByKind orders objects by kind group first, then identity, so the
// summary reads top-down the way the schema loads.
func sortedByKind(model *schema.Schema) []schema.Object {
	order := []schema.ObjectKind{
		schema.KindSchema, schema.KindExtension, schema.KindCollation,
		schema.KindEnum, schema.KindCompositeType, schema.KindDomain, schema.KindRangeType,
		schema.KindSequence, schema.KindTable, schema.KindIndex,
		schema.KindView, schema.KindMaterializedView,
		schema.KindFunction, schema.KindProcedure,
		schema.KindTrigger, schema.KindEventTrigger,
		schema.KindPolicy, schema.KindRule,
		schema.KindForeignServer, schema.KindComment,
	}
	var objs []schema.Object
	for _, kind := range order {
		objs = append(objs, model.OfKind(kind)...)
	}
	return objs
}
