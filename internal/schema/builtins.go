package schema

import "strings"

// builtinTypes covers the PostgreSQL types a declarative file can name
// without declaring them. Multi-word SQL spellings and the pg_catalog
// internal names are both listed because the grammar produces either.
var builtinTypes = map[string]struct{}{
	"bigint": {}, "int8": {}, "bigserial": {}, "serial8": {},
	"bit": {}, "bit varying": {}, "varbit": {},
	"boolean": {}, "bool": {},
	"box": {}, "bytea": {},
	"character": {}, "char": {}, "bpchar": {},
	"character varying": {}, "varchar": {},
	"cidr": {}, "circle": {},
	"date":             {},
	"double precision": {}, "float8": {},
	"inet":    {},
	"integer": {}, "int": {}, "int4": {},
	"interval": {},
	"json":     {}, "jsonb": {}, "jsonpath": {},
	"line": {}, "lseg": {},
	"macaddr": {}, "macaddr8": {},
	"money":   {},
	"numeric": {}, "decimal": {},
	"path": {}, "pg_lsn": {}, "pg_snapshot": {}, "point": {}, "polygon": {},
	"real": {}, "float4": {},
	"smallint": {}, "int2": {}, "smallserial": {}, "serial2": {},
	"serial": {}, "serial4": {},
	"text": {},
	"time": {}, "time without time zone": {},
	"time with time zone": {}, "timetz": {},
	"timestamp": {}, "timestamp without time zone": {},
	"timestamp with time zone": {}, "timestamptz": {},
	"tsquery": {}, "tsvector": {},
	"txid_snapshot": {},
	"uuid":          {}, "xml": {},
	"name": {}, "oid": {}, "regclass": {}, "regconfig": {}, "regdictionary": {},
	"regnamespace": {}, "regoper": {}, "regoperator": {}, "regproc": {},
	"regprocedure": {}, "regrole": {}, "regtype": {},
	"record": {}, "void": {}, "trigger": {}, "event_trigger": {},
	"anyarray": {}, "anyelement": {}, "anyenum": {}, "anynonarray": {},
	"anyrange": {}, "anycompatible": {}, "anycompatiblearray": {},
	"int4range": {}, "int8range": {}, "numrange": {},
	"tsrange": {}, "tstzrange": {}, "daterange": {},
	"int4multirange": {}, "int8multirange": {}, "nummultirange": {},
	"tsmultirange": {}, "tstzmultirange": {}, "datemultirange": {},
	"cstring": {}, "internal": {}, "language_handler": {},
	"unknown": {},
}

// IsBuiltinType reports whether a bare type name is a PostgreSQL built-in.
// pg_catalog qualification is accepted.
func IsBuiltinType(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.TrimPrefix(name, "pg_catalog.")
	_, ok := builtinTypes[name]
	return ok
}
