package shadow

import (
	"fmt"
	"strings"

	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/hexops/gotextdiff/span"

	"github.com/shem-sql/shem/internal/emit"
	"github.com/shem-sql/shem/internal/schema"
)

// Delta renders the difference between two models as a unified diff over
// their canonical DDL renderings. Empty means the models match. Only the
// objects are rendered; the models' Grants are not part of the comparison.
func Delta(desired, actual *schema.Schema) string {
	want := renderModel(desired)
	got := renderModel(actual)
	if want == got {
		return ""
	}
	edits := myers.ComputeEdits(span.URIFromPath("desired"), want, got)
	unified := gotextdiff.ToUnified("desired", "shadow", want, edits)
	return strings.TrimSpace(fmt.Sprintf("%s", unified))
}

// renderModel prints every object as its creation DDL in identity order,
// giving the diff a stable, readable form.
func renderModel(model *schema.Schema) string {
	var b strings.Builder
	for _, obj := range model.Sorted() {
		stmts, fks := emit.CreateStatements(obj)
		for _, stmt := range stmts {
			b.WriteString(stmt + "\n")
		}
		for _, fk := range fks {
			b.WriteString(fk + "\n")
		}
	}
	return b.String()
}
