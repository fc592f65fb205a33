// Package parse turns declarative SQL files into a schema model. Raw
// SQL-to-AST conversion is delegated to the embedded PostgreSQL grammar;
// this package lowers the raw statement trees into model descriptors.
package parse

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
	"github.com/pganalyze/pg_query_go/v6/parser"
	"github.com/sirupsen/logrus"

	"github.com/shem-sql/shem/internal/schema"
)

// Parser lowers declarative SQL into a schema model. Errors accumulate
// across a pass so one run reports as many problems as possible.
type Parser struct {
	defaultSchema string
	model         *schema.Schema
	errs          []error
	log           *logrus.Entry

	// Relation-scoped statements are deferred until every relation has been
	// registered, so file order between a table and its triggers does not
	// matter.
	deferred []pendingStmt
}

type pendingStmt struct {
	file string
	line int
	node *pg_query.Node
}

// NewParser returns a parser targeting the public schema by default.
func NewParser() *Parser {
	return &Parser{
		defaultSchema: "public",
		model:         schema.New(),
		log:           logrus.WithField("component", "parser"),
	}
}

// ParseGlobs resolves the given glob patterns, orders matches by
// lexicographic path, and parses them into one model.
func (p *Parser) ParseGlobs(patterns []string) (*schema.Schema, []error) {
	var files []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, []error{fmt.Errorf("invalid glob %q: %w", pattern, err)}
		}
		files = append(files, matches...)
	}
	sort.Strings(files)
	return p.ParseFiles(files)
}

// ParseFiles parses the given files, in order, into one model.
func (p *Parser) ParseFiles(files []string) (*schema.Schema, []error) {
	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			p.errs = append(p.errs, fmt.Errorf("reading %s: %w", file, err))
			continue
		}
		p.parseSource(file, string(content))
	}
	return p.finish()
}

// ParseSQL parses a single in-memory SQL payload. The name is used for
// error locations only.
func (p *Parser) ParseSQL(name, sql string) (*schema.Schema, []error) {
	p.parseSource(name, sql)
	return p.finish()
}

func (p *Parser) parseSource(file, content string) {
	result, err := pg_query.Parse(content)
	if err != nil {
		p.errs = append(p.errs, &schema.ParseError{
			File: file,
			Line: lineOfParseError(content, err),
			Err:  err,
		})
		return
	}
	for _, raw := range result.Stmts {
		if raw.Stmt == nil {
			continue
		}
		line := lineAt(content, int(raw.StmtLocation))
		p.dispatch(file, line, raw.Stmt)
	}
}

func (p *Parser) finish() (*schema.Schema, []error) {
	for _, pending := range p.deferred {
		p.dispatchDeferred(pending.file, pending.line, pending.node)
	}
	p.deferred = nil
	if len(p.errs) > 0 {
		return nil, p.errs
	}
	if verrs := p.model.Validate(); len(verrs) > 0 {
		return nil, verrs
	}
	p.log.WithField("objects", len(p.model.Objects)).Debug("parsed declarative schema")
	return p.model, nil
}

// dispatch lowers one statement, deferring relation-scoped kinds to the
// second phase.
func (p *Parser) dispatch(file string, line int, stmt *pg_query.Node) {
	defer p.recordFailure(file, line)

	switch node := stmt.Node.(type) {
	case *pg_query.Node_CreateStmt:
		p.add(file, line, p.lowerCreateTable(node.CreateStmt))
	case *pg_query.Node_CreateEnumStmt:
		p.add(file, line, p.lowerCreateEnum(node.CreateEnumStmt))
	case *pg_query.Node_CompositeTypeStmt:
		p.add(file, line, p.lowerCompositeType(node.CompositeTypeStmt))
	case *pg_query.Node_CreateDomainStmt:
		p.add(file, line, p.lowerCreateDomain(node.CreateDomainStmt))
	case *pg_query.Node_CreateRangeStmt:
		p.add(file, line, p.lowerCreateRange(node.CreateRangeStmt))
	case *pg_query.Node_CreateSeqStmt:
		p.add(file, line, p.lowerCreateSequence(node.CreateSeqStmt))
	case *pg_query.Node_CreateExtensionStmt:
		p.add(file, line, p.lowerCreateExtension(node.CreateExtensionStmt))
	case *pg_query.Node_CreateSchemaStmt:
		p.add(file, line, p.lowerCreateSchema(node.CreateSchemaStmt))
	case *pg_query.Node_CreateForeignServerStmt:
		p.add(file, line, p.lowerForeignServer(node.CreateForeignServerStmt))
	case *pg_query.Node_DefineStmt:
		p.lowerDefine(file, line, node.DefineStmt)
	case *pg_query.Node_ViewStmt:
		p.put(p.lowerCreateView(node.ViewStmt), node.ViewStmt.Replace)
	case *pg_query.Node_CreateTableAsStmt:
		p.lowerCreateTableAs(file, line, node.CreateTableAsStmt)
	case *pg_query.Node_CreateFunctionStmt:
		p.put(p.lowerCreateFunction(node.CreateFunctionStmt), node.CreateFunctionStmt.Replace)
	case *pg_query.Node_CreateEventTrigStmt:
		p.add(file, line, p.lowerEventTrigger(node.CreateEventTrigStmt))

	case *pg_query.Node_IndexStmt,
		*pg_query.Node_CreateTrigStmt,
		*pg_query.Node_CreatePolicyStmt,
		*pg_query.Node_RuleStmt,
		*pg_query.Node_CommentStmt,
		*pg_query.Node_AlterTableStmt:
		p.deferred = append(p.deferred, pendingStmt{file: file, line: line, node: stmt})

	case *pg_query.Node_GrantStmt:
		p.model.Grants = append(p.model.Grants, p.lowerGrant(stmt, node.GrantStmt)...)
	case *pg_query.Node_VariableSetStmt, *pg_query.Node_DoStmt, *pg_query.Node_SelectStmt:
		// Session settings and ad-hoc statements carry no schema state.

	default:
		p.errs = append(p.errs, &schema.UnsupportedStatement{
			File: file,
			Line: line,
			Tag:  statementTag(stmt),
		})
	}
}

func (p *Parser) dispatchDeferred(file string, line int, stmt *pg_query.Node) {
	defer p.recordFailure(file, line)

	switch node := stmt.Node.(type) {
	case *pg_query.Node_IndexStmt:
		p.add(file, line, p.lowerCreateIndex(node.IndexStmt))
	case *pg_query.Node_CreateTrigStmt:
		p.put(p.lowerCreateTrigger(node.CreateTrigStmt), node.CreateTrigStmt.Replace)
	case *pg_query.Node_CreatePolicyStmt:
		p.add(file, line, p.lowerCreatePolicy(node.CreatePolicyStmt))
	case *pg_query.Node_RuleStmt:
		p.put(p.lowerCreateRule(node.RuleStmt), node.RuleStmt.Replace)
	case *pg_query.Node_CommentStmt:
		p.lowerComment(file, line, node.CommentStmt)
	case *pg_query.Node_AlterTableStmt:
		p.lowerAlterTable(file, line, node.AlterTableStmt)
	}
}

// add registers an object, recording a duplicate-identity violation.
func (p *Parser) add(file string, line int, obj schema.Object) {
	if obj == nil {
		return
	}
	if err := p.model.Add(obj); err != nil {
		p.errs = append(p.errs, err)
	}
}

// recordFailure converts a lowering panic into an accumulated parse error.
// Lowerings index deeply into grammar trees; a malformed-but-parseable
// statement must not take down the whole pass.
func (p *Parser) recordFailure(file string, line int) {
	if r := recover(); r != nil {
		p.errs = append(p.errs, &schema.ParseError{
			File: file,
			Line: line,
			Err:  fmt.Errorf("internal lowering failure: %v", r),
		})
	}
}

func (p *Parser) put(obj schema.Object, replace bool) {
	if obj == nil {
		return
	}
	if replace {
		p.model.Put(obj)
		return
	}
	if err := p.model.Add(obj); err != nil {
		p.errs = append(p.errs, err)
	}
}

// statementTag names a statement node for UnsupportedStatement reports.
func statementTag(stmt *pg_query.Node) string {
	tag := fmt.Sprintf("%T", stmt.Node)
	tag = strings.TrimPrefix(tag, "*pg_query.Node_")
	return strings.TrimSuffix(tag, "Stmt")
}

// lineAt converts a byte offset into a 1-based line number.
func lineAt(content string, offset int) int {
	if offset < 0 {
		return 1
	}
	if offset > len(content) {
		offset = len(content)
	}
	return strings.Count(content[:offset], "\n") + 1
}

// lineOfParseError recovers the source line from the grammar's cursor
// position when available.
func lineOfParseError(content string, err error) int {
	if pqErr, ok := err.(*parser.Error); ok && pqErr.Cursorpos > 0 {
		return lineAt(content, pqErr.Cursorpos-1)
	}
	return 1
}
