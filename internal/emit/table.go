package emit

import (
	"fmt"
	"strings"

	"github.com/shem-sql/shem/internal/schema"
)

// CreateTableStatement renders a table body. Foreign keys are returned
// separately: they attach after every table exists, which is also what
// makes mutual references emittable.
func CreateTableStatement(t *schema.Table) (string, []string) {
	var items []string
	for _, col := range t.Columns {
		items = append(items, columnDef(col))
	}
	for _, con := range t.Constraints {
		if con.Type == schema.ConstraintForeignKey {
			continue
		}
		items = append(items, "CONSTRAINT "+QuoteIdentifier(con.Name)+" "+constraintBody(con))
	}

	stmt := "CREATE TABLE " + QualifyName(t.Schema, t.Name) + " (" + strings.Join(items, ", ") + ")"
	if len(t.Inherits) > 0 {
		parents := make([]string, len(t.Inherits))
		for i, parent := range t.Inherits {
			parents[i] = QualifyDotted(parent)
		}
		stmt += " INHERITS (" + strings.Join(parents, ", ") + ")"
	}
	if t.PartitionBy != "" {
		stmt += " PARTITION BY " + t.PartitionBy
	}
	stmt += ";"

	var fks []string
	for _, con := range t.Constraints {
		if con.Type == schema.ConstraintForeignKey {
			fks = append(fks, addConstraintStatement(t, con))
		}
	}
	return stmt, fks
}

func columnDef(col schema.Column) string {
	parts := []string{QuoteIdentifier(col.Name), col.Type}
	if col.Collation != "" {
		parts = append(parts, "COLLATE "+QualifyDotted(col.Collation))
	}
	if col.NotNull {
		parts = append(parts, "NOT NULL")
	}
	switch {
	case col.Generated != "":
		parts = append(parts, "GENERATED ALWAYS AS ("+col.Generated+") STORED")
	case col.Identity != "":
		parts = append(parts, "GENERATED "+col.Identity+" AS IDENTITY")
	case col.Default != "":
		parts = append(parts, "DEFAULT "+col.Default)
	}
	return strings.Join(parts, " ")
}

func constraintBody(con schema.Constraint) string {
	switch con.Type {
	case schema.ConstraintPrimaryKey:
		return "PRIMARY KEY (" + identifierList(con.Columns) + ")"
	case schema.ConstraintUnique:
		body := "UNIQUE (" + identifierList(con.Columns) + ")"
		return body + deferrableSuffix(con)
	case schema.ConstraintCheck:
		return "CHECK (" + con.Expression + ")"
	case schema.ConstraintExclusion:
		return "EXCLUDE " + con.Expression
	case schema.ConstraintForeignKey:
		body := "FOREIGN KEY (" + identifierList(con.Columns) + ") REFERENCES " +
			QualifyDotted(con.RefTable)
		if len(con.RefColumns) > 0 {
			body += " (" + identifierList(con.RefColumns) + ")"
		}
		if con.OnDelete != "" {
			body += " ON DELETE " + con.OnDelete
		}
		if con.OnUpdate != "" {
			body += " ON UPDATE " + con.OnUpdate
		}
		return body + deferrableSuffix(con)
	}
	return ""
}

func deferrableSuffix(con schema.Constraint) string {
	if !con.Deferrable {
		return ""
	}
	if con.InitiallyDeferred {
		return " DEFERRABLE INITIALLY DEFERRED"
	}
	return " DEFERRABLE"
}

func addConstraintStatement(t *schema.Table, con schema.Constraint) string {
	return "ALTER TABLE " + QualifyName(t.Schema, t.Name) +
		" ADD CONSTRAINT " + QuoteIdentifier(con.Name) + " " + constraintBody(con) + ";"
}

// DropConstraintStatement detaches one named constraint.
func DropConstraintStatement(t *schema.Table, name string) string {
	return "ALTER TABLE " + QualifyName(t.Schema, t.Name) +
		" DROP CONSTRAINT " + QuoteIdentifier(name) + ";"
}

// AlterTableStatements computes the in-place delta between two versions of
// a table. pre holds constraint drops (safe to run before any object
// drops), body holds column work and non-FK constraint adds, fkAdds holds
// foreign-key attachments for the late phase.
func AlterTableStatements(old, new_ *schema.Table) (pre, body, fkAdds []string) {
	target := QualifyName(new_.Schema, new_.Name)

	oldCols := make(map[string]schema.Column, len(old.Columns))
	for _, col := range old.Columns {
		oldCols[col.Name] = col
	}
	newCols := make(map[string]schema.Column, len(new_.Columns))
	for _, col := range new_.Columns {
		newCols[col.Name] = col
	}

	// Constraints compare by name and body.
	oldCons := make(map[string]schema.Constraint, len(old.Constraints))
	for _, con := range old.Constraints {
		oldCons[con.Name] = con
	}
	newCons := make(map[string]schema.Constraint, len(new_.Constraints))
	for _, con := range new_.Constraints {
		newCons[con.Name] = con
	}
	for _, con := range old.Constraints {
		replacement, kept := newCons[con.Name]
		if kept && constraintBody(replacement) == constraintBody(con) {
			continue
		}
		pre = append(pre, DropConstraintStatement(old, con.Name))
	}

	for _, col := range old.Columns {
		if _, kept := newCols[col.Name]; !kept {
			body = append(body, "ALTER TABLE "+target+" DROP COLUMN "+QuoteIdentifier(col.Name)+";")
		}
	}

	for _, col := range new_.Columns {
		prev, existed := oldCols[col.Name]
		if !existed {
			body = append(body, "ALTER TABLE "+target+" ADD COLUMN "+columnDef(col)+";")
			continue
		}
		if prev.Identity != col.Identity || prev.Generated != col.Generated {
			// Identity and generation cannot be rewritten in place; rebuild
			// the column.
			body = append(body,
				"ALTER TABLE "+target+" DROP COLUMN "+QuoteIdentifier(col.Name)+";",
				"ALTER TABLE "+target+" ADD COLUMN "+columnDef(col)+";")
			continue
		}
		if prev.Type != col.Type {
			body = append(body, fmt.Sprintf(
				"ALTER TABLE %s ALTER COLUMN %s TYPE %s USING %s::%s;",
				target, QuoteIdentifier(col.Name), col.Type, QuoteIdentifier(col.Name), col.Type))
		}
		if prev.Default != col.Default {
			if col.Default == "" {
				body = append(body, "ALTER TABLE "+target+" ALTER COLUMN "+QuoteIdentifier(col.Name)+" DROP DEFAULT;")
			} else {
				body = append(body, "ALTER TABLE "+target+" ALTER COLUMN "+QuoteIdentifier(col.Name)+" SET DEFAULT "+col.Default+";")
			}
		}
		if prev.NotNull != col.NotNull {
			if col.NotNull {
				body = append(body, "ALTER TABLE "+target+" ALTER COLUMN "+QuoteIdentifier(col.Name)+" SET NOT NULL;")
			} else {
				body = append(body, "ALTER TABLE "+target+" ALTER COLUMN "+QuoteIdentifier(col.Name)+" DROP NOT NULL;")
			}
		}
		if prev.Collation != col.Collation {
			body = append(body,
				"ALTER TABLE "+target+" DROP COLUMN "+QuoteIdentifier(col.Name)+";",
				"ALTER TABLE "+target+" ADD COLUMN "+columnDef(col)+";")
		}
	}

	for _, con := range new_.Constraints {
		prev, existed := oldCons[con.Name]
		if existed && constraintBody(prev) == constraintBody(con) {
			continue
		}
		if con.Type == schema.ConstraintForeignKey {
			fkAdds = append(fkAdds, addConstraintStatement(new_, con))
		} else {
			body = append(body, addConstraintStatement(new_, con))
		}
	}

	return pre, body, fkAdds
}
