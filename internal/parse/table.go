package parse

import (
	"fmt"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/shem-sql/shem/internal/schema"
)

func (p *Parser) lowerCreateTable(stmt *pg_query.CreateStmt) *schema.Table {
	schemaName, tableName := rangeVarName(stmt.Relation, p.defaultSchema)

	table := &schema.Table{
		Schema: schemaName,
		Name:   tableName,
	}

	if stmt.Partspec != nil {
		table.PartitionBy = partitionSpecText(stmt.Partspec)
	}
	for _, parent := range stmt.InhRelations {
		if rv := parent.GetRangeVar(); rv != nil {
			ps, pn := rangeVarName(rv, p.defaultSchema)
			table.Inherits = append(table.Inherits, ps+"."+pn)
		}
	}

	for _, element := range stmt.TableElts {
		switch elt := element.Node.(type) {
		case *pg_query.Node_ColumnDef:
			col, inline := p.lowerColumnDef(elt.ColumnDef, tableName)
			table.Columns = append(table.Columns, col)
			table.Constraints = append(table.Constraints, inline...)
		case *pg_query.Node_Constraint:
			if con, ok := p.lowerConstraint(elt.Constraint, tableName); ok {
				table.Constraints = append(table.Constraints, con)
			}
		case *pg_query.Node_TableLikeClause:
			// LIKE expands server-side into state the model cannot see;
			// declarative files must spell columns out.
			p.errs = append(p.errs, &schema.SemanticError{
				ID:     table.ID(),
				Reason: "LIKE clauses are not supported in declarative tables",
			})
		}
	}

	// Primary key columns are not null even without an explicit marking.
	for _, con := range table.Constraints {
		if con.Type != schema.ConstraintPrimaryKey {
			continue
		}
		for _, name := range con.Columns {
			for i := range table.Columns {
				if table.Columns[i].Name == name {
					table.Columns[i].NotNull = true
				}
			}
		}
	}

	p.expandSerialColumns(table)
	return table
}

// lowerColumnDef lowers one column definition, returning the column and any
// inline constraints promoted to table level.
func (p *Parser) lowerColumnDef(colDef *pg_query.ColumnDef, tableName string) (schema.Column, []schema.Constraint) {
	col := schema.Column{
		Name: colDef.Colname,
		Type: typeNameText(colDef.TypeName),
	}
	if colDef.CollClause != nil {
		cs, cn := qualifiedName(colDef.CollClause.Collname, "")
		if cs != "" {
			col.Collation = cs + "." + cn
		} else {
			col.Collation = cn
		}
	}

	var inline []schema.Constraint
	for _, node := range colDef.Constraints {
		cons := node.GetConstraint()
		if cons == nil {
			continue
		}
		switch cons.Contype {
		case pg_query.ConstrType_CONSTR_NOTNULL:
			col.NotNull = true
		case pg_query.ConstrType_CONSTR_NULL:
			col.NotNull = false
		case pg_query.ConstrType_CONSTR_DEFAULT:
			col.Default = deparseExprNode(cons.RawExpr)
		case pg_query.ConstrType_CONSTR_IDENTITY:
			switch cons.GeneratedWhen {
			case "a":
				col.Identity = "ALWAYS"
			case "d":
				col.Identity = "BY DEFAULT"
			}
			col.NotNull = true
		case pg_query.ConstrType_CONSTR_GENERATED:
			col.Generated = deparseExprNode(cons.RawExpr)
		case pg_query.ConstrType_CONSTR_PRIMARY:
			col.NotNull = true
			inline = append(inline, schema.Constraint{
				Name:    constraintName(cons.Conname, tableName, "", "pkey"),
				Type:    schema.ConstraintPrimaryKey,
				Columns: []string{col.Name},
			})
		case pg_query.ConstrType_CONSTR_UNIQUE:
			inline = append(inline, schema.Constraint{
				Name:    constraintName(cons.Conname, tableName, col.Name, "key"),
				Type:    schema.ConstraintUnique,
				Columns: []string{col.Name},
			})
		case pg_query.ConstrType_CONSTR_CHECK:
			inline = append(inline, schema.Constraint{
				Name:       constraintName(cons.Conname, tableName, col.Name, "check"),
				Type:       schema.ConstraintCheck,
				Expression: deparseExprNode(cons.RawExpr),
			})
		case pg_query.ConstrType_CONSTR_FOREIGN:
			fk := p.lowerForeignKey(cons, tableName, []string{col.Name})
			fk.Name = constraintName(cons.Conname, tableName, col.Name, "fkey")
			inline = append(inline, fk)
		}
	}
	return col, inline
}

// lowerConstraint lowers a table-level constraint.
func (p *Parser) lowerConstraint(cons *pg_query.Constraint, tableName string) (schema.Constraint, bool) {
	columns := nameList(cons.Keys)

	switch cons.Contype {
	case pg_query.ConstrType_CONSTR_PRIMARY:
		return schema.Constraint{
			Name:    constraintName(cons.Conname, tableName, "", "pkey"),
			Type:    schema.ConstraintPrimaryKey,
			Columns: columns,
		}, true
	case pg_query.ConstrType_CONSTR_UNIQUE:
		return schema.Constraint{
			Name:              constraintName(cons.Conname, tableName, strings.Join(columns, "_"), "key"),
			Type:              schema.ConstraintUnique,
			Columns:           columns,
			Deferrable:        cons.Deferrable,
			InitiallyDeferred: cons.Initdeferred,
		}, true
	case pg_query.ConstrType_CONSTR_CHECK:
		name := cons.Conname
		if name == "" {
			name = tableName + "_check"
		}
		return schema.Constraint{
			Name:       name,
			Type:       schema.ConstraintCheck,
			Expression: deparseExprNode(cons.RawExpr),
		}, true
	case pg_query.ConstrType_CONSTR_EXCLUSION:
		name := cons.Conname
		if name == "" {
			name = tableName + "_excl"
		}
		return schema.Constraint{
			Name:       name,
			Type:       schema.ConstraintExclusion,
			Expression: exclusionText(cons),
		}, true
	case pg_query.ConstrType_CONSTR_FOREIGN:
		fkColumns := nameList(cons.FkAttrs)
		fk := p.lowerForeignKey(cons, tableName, fkColumns)
		fk.Name = constraintName(cons.Conname, tableName, strings.Join(fkColumns, "_"), "fkey")
		return fk, true
	}
	return schema.Constraint{}, false
}

func (p *Parser) lowerForeignKey(cons *pg_query.Constraint, tableName string, columns []string) schema.Constraint {
	fk := schema.Constraint{
		Type:              schema.ConstraintForeignKey,
		Columns:           columns,
		RefColumns:        nameList(cons.PkAttrs),
		OnDelete:          referentialAction(cons.FkDelAction),
		OnUpdate:          referentialAction(cons.FkUpdAction),
		Deferrable:        cons.Deferrable,
		InitiallyDeferred: cons.Initdeferred,
	}
	if cons.Pktable != nil {
		rs, rn := rangeVarName(cons.Pktable, p.defaultSchema)
		fk.RefTable = rs + "." + rn
	}
	return fk
}

// expandSerialColumns rewrites SERIAL pseudo-types into the integer type
// plus the implicit sequence and nextval default PostgreSQL creates.
func (p *Parser) expandSerialColumns(table *schema.Table) {
	for i := range table.Columns {
		col := &table.Columns[i]
		var base string
		switch strings.ToLower(col.Type) {
		case "serial", "serial4":
			base = "integer"
		case "smallserial", "serial2":
			base = "smallint"
		case "bigserial", "serial8":
			base = "bigint"
		default:
			continue
		}
		seqName := fmt.Sprintf("%s_%s_seq", table.Name, col.Name)
		col.Type = base
		col.NotNull = true
		col.Default = fmt.Sprintf("nextval('%s.%s'::regclass)", table.Schema, seqName)
		p.model.Put(&schema.Sequence{
			Schema:    table.Schema,
			Name:      seqName,
			Start:     1,
			Increment: 1,
			OwnedBy:   table.Name + "." + col.Name,
		})
	}
}

// lowerAlterTable folds supported ALTER TABLE forms into the already
// registered table: declarative files commonly attach constraints and
// defaults this way.
func (p *Parser) lowerAlterTable(file string, line int, stmt *pg_query.AlterTableStmt) {
	schemaName, tableName := rangeVarName(stmt.Relation, p.defaultSchema)
	id := schema.Identity{Schema: schemaName, Name: tableName, Kind: schema.KindTable}
	obj, ok := p.model.Lookup(id)
	if !ok {
		p.errs = append(p.errs, &schema.SemanticError{ID: id, Reason: "ALTER TABLE targets unknown table"})
		return
	}
	table := obj.(*schema.Table)

	for _, cmdNode := range stmt.Cmds {
		cmd := cmdNode.GetAlterTableCmd()
		if cmd == nil {
			continue
		}
		switch cmd.Subtype {
		case pg_query.AlterTableType_AT_AddConstraint:
			cons := cmd.Def.GetConstraint()
			if cons == nil {
				continue
			}
			if con, ok := p.lowerConstraint(cons, tableName); ok {
				table.Constraints = append(table.Constraints, con)
			}
		case pg_query.AlterTableType_AT_AddColumn:
			colDef := cmd.Def.GetColumnDef()
			if colDef == nil {
				continue
			}
			col, inline := p.lowerColumnDef(colDef, tableName)
			table.Columns = append(table.Columns, col)
			table.Constraints = append(table.Constraints, inline...)
		case pg_query.AlterTableType_AT_ColumnDefault:
			for i := range table.Columns {
				if table.Columns[i].Name == cmd.Name {
					table.Columns[i].Default = deparseExprNode(cmd.Def)
				}
			}
		case pg_query.AlterTableType_AT_SetNotNull:
			for i := range table.Columns {
				if table.Columns[i].Name == cmd.Name {
					table.Columns[i].NotNull = true
				}
			}
		case pg_query.AlterTableType_AT_DropNotNull:
			for i := range table.Columns {
				if table.Columns[i].Name == cmd.Name {
					table.Columns[i].NotNull = false
				}
			}
		case pg_query.AlterTableType_AT_EnableRowSecurity,
			pg_query.AlterTableType_AT_ForceRowSecurity:
			// Row security enablement follows from declared policies.
		default:
			p.errs = append(p.errs, &schema.UnsupportedStatement{
				File: file,
				Line: line,
				Tag:  "AlterTable/" + strings.TrimPrefix(cmd.Subtype.String(), "AT_"),
			})
		}
	}
	p.model.Put(table)
}

// constraintName applies PostgreSQL's default constraint naming when none
// was given.
func constraintName(given, tableName, middle, suffix string) string {
	if given != "" {
		return given
	}
	name := tableName + "_" + suffix
	if middle != "" {
		name = tableName + "_" + middle + "_" + suffix
	}
	if len(name) > 63 {
		name = name[:63-len(suffix)-1] + "_" + suffix
	}
	return name
}

func nameList(nodes []*pg_query.Node) []string {
	var names []string
	for _, node := range nodes {
		if str := node.GetString_(); str != nil {
			names = append(names, str.Sval)
		}
	}
	return names
}

func referentialAction(action string) string {
	switch action {
	case "a", "":
		return "" // NO ACTION, the default, stays unspelled
	case "r":
		return "RESTRICT"
	case "c":
		return "CASCADE"
	case "n":
		return "SET NULL"
	case "d":
		return "SET DEFAULT"
	}
	return ""
}

func partitionSpecText(spec *pg_query.PartitionSpec) string {
	strategy := strings.TrimPrefix(spec.GetStrategy().String(), "PARTITION_STRATEGY_")
	var keys []string
	for _, param := range spec.GetPartParams() {
		if elem := param.GetPartitionElem(); elem != nil {
			if elem.Name != "" {
				keys = append(keys, elem.Name)
			} else if elem.Expr != nil {
				keys = append(keys, deparseExprNode(elem.Expr))
			}
		}
	}
	return strategy + " (" + strings.Join(keys, ", ") + ")"
}

// exclusionText renders an EXCLUDE constraint body from its element list.
func exclusionText(cons *pg_query.Constraint) string {
	var elems []string
	for _, ex := range cons.Exclusions {
		list := ex.GetList()
		if list == nil || len(list.Items) != 2 {
			continue
		}
		elem := list.Items[0].GetIndexElem()
		var lhs string
		if elem != nil {
			if elem.Name != "" {
				lhs = elem.Name
			} else if elem.Expr != nil {
				lhs = deparseExprNode(elem.Expr)
			}
		}
		var op string
		if opList := list.Items[1].GetList(); opList != nil {
			op = strings.Join(stringItems(opList.Items), ".")
		} else if str := list.Items[1].GetString_(); str != nil {
			op = str.Sval
		}
		if lhs != "" && op != "" {
			elems = append(elems, lhs+" WITH "+op)
		}
	}
	method := cons.AccessMethod
	if method == "" {
		method = "gist"
	}
	text := "USING " + method + " (" + strings.Join(elems, ", ") + ")"
	if cons.WhereClause != nil {
		text += " WHERE (" + deparseExprNode(cons.WhereClause) + ")"
	}
	return text
}

func stringItems(nodes []*pg_query.Node) []string {
	var out []string
	for _, node := range nodes {
		if str := node.GetString_(); str != nil {
			out = append(out, str.Sval)
		}
	}
	return out
}
