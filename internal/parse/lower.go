package parse

import (
	"fmt"

	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/shem-sql/shem/internal/schema"
)

// LowerStatement lowers a single CREATE statement into its model
// descriptor. The introspector feeds pg_get_indexdef, pg_get_functiondef,
// pg_get_triggerdef, and pg_get_ruledef output through this so catalog-
// sourced objects normalize exactly like parser-sourced ones.
func LowerStatement(sql string) (schema.Object, error) {
	result, err := pg_query.Parse(sql)
	if err != nil {
		return nil, fmt.Errorf("parsing definition: %w", err)
	}
	if len(result.Stmts) != 1 || result.Stmts[0].Stmt == nil {
		return nil, fmt.Errorf("expected exactly one statement, got %d", len(result.Stmts))
	}

	p := NewParser()
	stmt := result.Stmts[0].Stmt
	switch node := stmt.Node.(type) {
	case *pg_query.Node_IndexStmt:
		return p.lowerCreateIndex(node.IndexStmt), nil
	case *pg_query.Node_CreateFunctionStmt:
		return p.lowerCreateFunction(node.CreateFunctionStmt), nil
	case *pg_query.Node_CreateTrigStmt:
		return p.lowerCreateTrigger(node.CreateTrigStmt), nil
	case *pg_query.Node_RuleStmt:
		return p.lowerCreateRule(node.RuleStmt), nil
	}
	return nil, fmt.Errorf("unsupported definition statement %s", statementTag(stmt))
}

// NormalizeArgSignature canonicalizes an identity argument list as reported
// by pg_get_function_identity_arguments into the model's signature form, by
// lowering a synthetic function declaration.
func NormalizeArgSignature(args string) string {
	obj, err := LowerStatement("CREATE FUNCTION __sig(" + args + ") RETURNS void LANGUAGE sql AS ''")
	if err != nil {
		return args
	}
	fn, ok := obj.(*schema.Function)
	if !ok {
		return args
	}
	return fn.Signature()
}
