package parse

import (
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/shem-sql/shem/internal/schema"
)

func (p *Parser) lowerCreateFunction(stmt *pg_query.CreateFunctionStmt) *schema.Function {
	schemaName, funcName := qualifiedName(stmt.Funcname, p.defaultSchema)

	fn := &schema.Function{
		Schema:     schemaName,
		Name:       funcName,
		Language:   "sql",
		Volatility: "VOLATILE",
		Procedure:  stmt.IsProcedure,
	}

	for _, node := range stmt.Parameters {
		param := node.GetFunctionParameter()
		if param == nil {
			continue
		}
		arg := schema.Argument{
			Name: param.Name,
			Type: typeNameText(param.ArgType),
		}
		switch param.Mode {
		case pg_query.FunctionParameterMode_FUNC_PARAM_OUT:
			arg.Mode = schema.ArgOut
		case pg_query.FunctionParameterMode_FUNC_PARAM_INOUT:
			arg.Mode = schema.ArgInOut
		case pg_query.FunctionParameterMode_FUNC_PARAM_VARIADIC:
			arg.Mode = schema.ArgVariadic
		case pg_query.FunctionParameterMode_FUNC_PARAM_TABLE:
			arg.Mode = schema.ArgTable
		default:
			arg.Mode = schema.ArgIn
		}
		if param.Defexpr != nil {
			arg.Default = deparseExprNode(param.Defexpr)
		}
		fn.Args = append(fn.Args, arg)
	}

	if !stmt.IsProcedure {
		fn.Returns = functionReturns(stmt, fn.Args)
	}

	for _, node := range stmt.Options {
		def := node.GetDefElem()
		if def == nil {
			continue
		}
		switch def.Defname {
		case "language":
			fn.Language = defElemString(def)
		case "as":
			fn.Body = functionBody(def)
		case "volatility":
			switch defElemString(def) {
			case "immutable", "i":
				fn.Volatility = "IMMUTABLE"
			case "stable", "s":
				fn.Volatility = "STABLE"
			case "volatile", "v":
				fn.Volatility = "VOLATILE"
			}
		case "strict":
			fn.Strict = defElemBool(def)
		case "security":
			fn.SecurityDefiner = defElemBool(def)
		}
	}

	// SQL-standard bodies (BEGIN ATOMIC ... END) arrive as a parsed tree
	// rather than an AS payload.
	if fn.Body == "" && stmt.SqlBody != nil {
		fn.Body = deparseExprNode(stmt.SqlBody)
	}
	fn.Body = NormalizeBody(fn.Body)
	return fn
}

// functionReturns renders the declared return type, reconstructing the
// TABLE(...) form from TABLE-mode parameters.
func functionReturns(stmt *pg_query.CreateFunctionStmt, args []schema.Argument) string {
	if stmt.ReturnType == nil {
		return "void"
	}
	if stmt.ReturnType.Setof {
		last := ""
		if n := len(stmt.ReturnType.Names); n > 0 {
			if str := stmt.ReturnType.Names[n-1].GetString_(); str != nil {
				last = str.Sval
			}
		}
		if last == "record" {
			var cols []string
			for _, arg := range args {
				if arg.Mode != schema.ArgTable {
					continue
				}
				if arg.Name != "" {
					cols = append(cols, arg.Name+" "+arg.Type)
				} else {
					cols = append(cols, arg.Type)
				}
			}
			if len(cols) > 0 {
				return "TABLE(" + strings.Join(cols, ", ") + ")"
			}
		}
	}
	return typeNameText(stmt.ReturnType)
}

// functionBody extracts the AS payload: a single opaque string, or the
// two-part obj_file/link_symbol form for C functions.
func functionBody(def *pg_query.DefElem) string {
	if def.Arg == nil {
		return ""
	}
	if list := def.Arg.GetList(); list != nil {
		var parts []string
		for _, item := range list.Items {
			if str := item.GetString_(); str != nil {
				parts = append(parts, str.Sval)
			}
		}
		return strings.Join(parts, "\n")
	}
	if str := def.Arg.GetString_(); str != nil {
		return str.Sval
	}
	return ""
}

func (p *Parser) lowerCreateTrigger(stmt *pg_query.CreateTrigStmt) *schema.Trigger {
	schemaName, tableName := rangeVarName(stmt.Relation, p.defaultSchema)

	trigger := &schema.Trigger{
		Schema:            schemaName,
		Table:             tableName,
		Name:              stmt.Trigname,
		ForEachRow:        stmt.Row,
		Constraint:        stmt.Isconstraint,
		Deferrable:        stmt.Deferrable,
		InitiallyDeferred: stmt.Initdeferred,
	}

	// Timing and event bits mirror pg_trigger's tgtype encoding.
	switch stmt.Timing {
	case 2:
		trigger.Timing = "BEFORE"
	case 64:
		trigger.Timing = "INSTEAD OF"
	default:
		trigger.Timing = "AFTER"
	}
	if stmt.Events&4 != 0 {
		trigger.Events = append(trigger.Events, "INSERT")
	}
	if stmt.Events&8 != 0 {
		trigger.Events = append(trigger.Events, "DELETE")
	}
	if stmt.Events&16 != 0 {
		trigger.Events = append(trigger.Events, "UPDATE")
	}
	if stmt.Events&32 != 0 {
		trigger.Events = append(trigger.Events, "TRUNCATE")
	}
	trigger.UpdateColumns = nameList(stmt.Columns)

	trigger.Function = triggerFunctionCall(stmt, p.defaultSchema)
	if stmt.WhenClause != nil {
		trigger.When = deparseExprNode(stmt.WhenClause)
	}
	for _, node := range stmt.TransitionRels {
		rel := node.GetTriggerTransition()
		if rel == nil {
			continue
		}
		if rel.IsNew {
			trigger.NewTable = rel.Name
		} else {
			trigger.OldTable = rel.Name
		}
	}
	return trigger
}

// triggerFunctionCall renders the trigger's target as a complete call.
func triggerFunctionCall(stmt *pg_query.CreateTrigStmt, defaultSchema string) string {
	schemaName, name := qualifiedName(stmt.Funcname, defaultSchema)
	call := schemaName + "." + name
	var args []string
	for _, node := range stmt.Args {
		if str := node.GetString_(); str != nil {
			args = append(args, "'"+str.Sval+"'")
		}
	}
	return call + "(" + strings.Join(args, ", ") + ")"
}

func (p *Parser) lowerEventTrigger(stmt *pg_query.CreateEventTrigStmt) *schema.EventTrigger {
	trigger := &schema.EventTrigger{
		Name:  stmt.Trigname,
		Event: stmt.Eventname,
	}
	schemaName, name := qualifiedName(stmt.Funcname, p.defaultSchema)
	trigger.Function = schemaName + "." + name + "()"
	for _, node := range stmt.Whenclause {
		def := node.GetDefElem()
		if def == nil || def.Defname != "tag" {
			continue
		}
		if list := def.Arg.GetList(); list != nil {
			for _, item := range list.Items {
				if str := item.GetString_(); str != nil {
					trigger.Tags = append(trigger.Tags, str.Sval)
				}
				if aConst := item.GetAConst(); aConst != nil {
					if sval := aConst.GetSval(); sval != nil {
						trigger.Tags = append(trigger.Tags, sval.Sval)
					}
				}
			}
		}
	}
	return trigger
}
