// Package emit renders schema model objects into PostgreSQL DDL. Every
// name is emitted schema-qualified and identifier-quoted when necessary;
// the model stores names already unquoted.
package emit

import "strings"

// reservedWords is the subset of PostgreSQL reserved keywords that cannot
// appear as bare identifiers.
var reservedWords = map[string]struct{}{
	"all": {}, "analyse": {}, "analyze": {}, "and": {}, "any": {}, "array": {},
	"as": {}, "asc": {}, "asymmetric": {}, "both": {}, "case": {}, "cast": {},
	"check": {}, "collate": {}, "column": {}, "constraint": {}, "create": {},
	"current_catalog": {}, "current_date": {}, "current_role": {},
	"current_time": {}, "current_timestamp": {}, "current_user": {},
	"default": {}, "deferrable": {}, "desc": {}, "distinct": {}, "do": {},
	"else": {}, "end": {}, "except": {}, "false": {}, "fetch": {}, "for": {},
	"foreign": {}, "from": {}, "grant": {}, "group": {}, "having": {},
	"in": {}, "initially": {}, "intersect": {}, "into": {}, "lateral": {},
	"leading": {}, "limit": {}, "localtime": {}, "localtimestamp": {},
	"not": {}, "null": {}, "offset": {}, "on": {}, "only": {}, "or": {},
	"order": {}, "placing": {}, "primary": {}, "references": {},
	"returning": {}, "select": {}, "session_user": {}, "some": {},
	"symmetric": {}, "table": {}, "then": {}, "to": {}, "trailing": {},
	"true": {}, "union": {}, "unique": {}, "user": {}, "using": {},
	"variadic": {}, "when": {}, "where": {}, "window": {}, "with": {},
}

// QuoteIdentifier quotes an identifier only when PostgreSQL requires it:
// non-lowercase characters, a leading digit, or a reserved word.
func QuoteIdentifier(name string) string {
	if name == "" {
		return `""`
	}
	if _, reserved := reservedWords[name]; !reserved && plainIdentifier(name) {
		return name
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func plainIdentifier(name string) bool {
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r == '_':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		case r == '$' && i > 0:
		default:
			return false
		}
	}
	return true
}

// QualifyName renders schema.name with each part quoted as needed.
func QualifyName(schemaName, name string) string {
	if schemaName == "" {
		schemaName = "public"
	}
	return QuoteIdentifier(schemaName) + "." + QuoteIdentifier(name)
}

// QualifyDotted quotes an already dotted "schema.name" string.
func QualifyDotted(qualified string) string {
	if i := strings.IndexByte(qualified, '.'); i >= 0 {
		return QualifyName(qualified[:i], qualified[i+1:])
	}
	return QualifyName("public", qualified)
}

// quoteLiteral renders a string literal.
func quoteLiteral(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}

// identifierList quotes and joins a column list.
func identifierList(names []string) string {
	quoted := make([]string, len(names))
	for i, name := range names {
		quoted[i] = QuoteIdentifier(name)
	}
	return strings.Join(quoted, ", ")
}
