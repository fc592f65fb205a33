package parse

import (
	"strconv"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"

	"github.com/shem-sql/shem/internal/schema"
)

func (p *Parser) lowerCreateEnum(stmt *pg_query.CreateEnumStmt) *schema.Enum {
	schemaName, typeName := qualifiedName(stmt.TypeName, p.defaultSchema)
	enum := &schema.Enum{Schema: schemaName, Name: typeName}
	for _, val := range stmt.Vals {
		if str := val.GetString_(); str != nil {
			enum.Labels = append(enum.Labels, str.Sval)
		}
	}
	return enum
}

func (p *Parser) lowerCompositeType(stmt *pg_query.CompositeTypeStmt) *schema.CompositeType {
	schemaName, typeName := rangeVarName(stmt.Typevar, p.defaultSchema)
	comp := &schema.CompositeType{Schema: schemaName, Name: typeName}
	for _, node := range stmt.Coldeflist {
		if colDef := node.GetColumnDef(); colDef != nil {
			comp.Attributes = append(comp.Attributes, schema.TypeAttribute{
				Name: colDef.Colname,
				Type: typeNameText(colDef.TypeName),
			})
		}
	}
	return comp
}

func (p *Parser) lowerCreateDomain(stmt *pg_query.CreateDomainStmt) *schema.Domain {
	schemaName, domainName := qualifiedName(stmt.Domainname, p.defaultSchema)
	domain := &schema.Domain{
		Schema:   schemaName,
		Name:     domainName,
		BaseType: typeNameText(stmt.TypeName),
	}
	for _, node := range stmt.Constraints {
		cons := node.GetConstraint()
		if cons == nil {
			continue
		}
		switch cons.Contype {
		case pg_query.ConstrType_CONSTR_NOTNULL:
			domain.NotNull = true
		case pg_query.ConstrType_CONSTR_DEFAULT:
			domain.Default = deparseExprNode(cons.RawExpr)
		case pg_query.ConstrType_CONSTR_CHECK:
			name := cons.Conname
			if name == "" {
				name = domainName + "_check"
			}
			domain.Checks = append(domain.Checks, schema.DomainCheck{
				Name:       name,
				Expression: deparseExprNode(cons.RawExpr),
			})
		}
	}
	return domain
}

func (p *Parser) lowerCreateRange(stmt *pg_query.CreateRangeStmt) *schema.RangeType {
	schemaName, typeName := qualifiedName(stmt.TypeName, p.defaultSchema)
	rt := &schema.RangeType{Schema: schemaName, Name: typeName}
	for _, node := range stmt.Params {
		def := node.GetDefElem()
		if def == nil {
			continue
		}
		switch def.Defname {
		case "subtype":
			if tn := def.Arg.GetTypeName(); tn != nil {
				rt.Subtype = typeNameText(tn)
			}
		case "subtype_opclass", "opclass":
			rt.SubtypeOpclass = defElemString(def)
		case "collation":
			rt.Collation = defElemString(def)
		case "canonical":
			rt.Canonical = defElemString(def)
		case "subtype_diff":
			rt.SubtypeDiff = defElemString(def)
		case "multirange_type_name":
			rt.Multirange = defElemString(def)
		}
	}
	return rt
}

func (p *Parser) lowerCreateSequence(stmt *pg_query.CreateSeqStmt) *schema.Sequence {
	schemaName, seqName := rangeVarName(stmt.Sequence, p.defaultSchema)
	seq := &schema.Sequence{
		Schema:    schemaName,
		Name:      seqName,
		Start:     1,
		Increment: 1,
	}
	for _, node := range stmt.Options {
		def := node.GetDefElem()
		if def == nil {
			continue
		}
		switch def.Defname {
		case "as":
			if tn := def.Arg.GetTypeName(); tn != nil {
				seq.Type = typeNameText(tn)
			}
		case "start":
			seq.Start = defElemInt(def, 1)
		case "increment":
			seq.Increment = defElemInt(def, 1)
		case "minvalue":
			seq.Min = defElemInt(def, 0)
		case "maxvalue":
			seq.Max = defElemInt(def, 0)
		case "cache":
			seq.Cache = defElemInt(def, 0)
		case "cycle":
			seq.Cycle = defElemBool(def)
		case "owned_by":
			if list := def.Arg.GetList(); list != nil {
				parts := stringItems(list.Items)
				if len(parts) >= 2 {
					seq.OwnedBy = strings.Join(parts[len(parts)-2:], ".")
				}
			}
		}
	}
	return seq
}

func (p *Parser) lowerCreateExtension(stmt *pg_query.CreateExtensionStmt) *schema.Extension {
	ext := &schema.Extension{Name: stmt.Extname}
	for _, node := range stmt.Options {
		def := node.GetDefElem()
		if def == nil {
			continue
		}
		switch def.Defname {
		case "schema":
			ext.Schema = defElemString(def)
		case "new_version":
			ext.Version = defElemString(def)
		}
	}
	return ext
}

func (p *Parser) lowerCreateSchema(stmt *pg_query.CreateSchemaStmt) *schema.NamedSchema {
	ns := &schema.NamedSchema{Name: stmt.Schemaname}
	if stmt.Authrole != nil {
		ns.Owner = stmt.Authrole.Rolename
	}
	return ns
}

func (p *Parser) lowerForeignServer(stmt *pg_query.CreateForeignServerStmt) *schema.ForeignServer {
	server := &schema.ForeignServer{
		Name:    stmt.Servername,
		Wrapper: stmt.Fdwname,
		Options: make(map[string]string),
	}
	for _, node := range stmt.Options {
		if def := node.GetDefElem(); def != nil {
			server.Options[def.Defname] = defElemString(def)
		}
	}
	return server
}

// lowerDefine handles DefineStmt forms; only CREATE COLLATION carries
// schema state we model.
func (p *Parser) lowerDefine(file string, line int, stmt *pg_query.DefineStmt) {
	if stmt.Kind != pg_query.ObjectType_OBJECT_COLLATION {
		p.errs = append(p.errs, &schema.UnsupportedStatement{
			File: file,
			Line: line,
			Tag:  "Define/" + strings.TrimPrefix(stmt.Kind.String(), "OBJECT_"),
		})
		return
	}
	schemaName, collName := qualifiedName(stmt.Defnames, p.defaultSchema)
	coll := &schema.Collation{
		Schema:        schemaName,
		Name:          collName,
		Provider:      "libc",
		Deterministic: true,
	}
	for _, node := range stmt.Definition {
		def := node.GetDefElem()
		if def == nil {
			continue
		}
		switch def.Defname {
		case "provider":
			coll.Provider = defElemString(def)
		case "locale", "lc_collate":
			coll.Locale = defElemString(def)
		case "deterministic":
			coll.Deterministic = defElemBool(def)
		}
	}
	p.add(file, line, coll)
}

// lowerComment attaches a COMMENT ON to its target identity.
func (p *Parser) lowerComment(file string, line int, stmt *pg_query.CommentStmt) {
	target, ok := p.commentTarget(stmt)
	if !ok {
		p.errs = append(p.errs, &schema.UnsupportedStatement{
			File: file,
			Line: line,
			Tag:  "Comment/" + strings.TrimPrefix(stmt.Objtype.String(), "OBJECT_"),
		})
		return
	}
	p.add(file, line, &schema.Comment{Target: target, Text: stmt.Comment})
}

func (p *Parser) commentTarget(stmt *pg_query.CommentStmt) (schema.Identity, bool) {
	var kind schema.ObjectKind
	switch stmt.Objtype {
	case pg_query.ObjectType_OBJECT_TABLE:
		kind = schema.KindTable
	case pg_query.ObjectType_OBJECT_VIEW:
		kind = schema.KindView
	case pg_query.ObjectType_OBJECT_MATVIEW:
		kind = schema.KindMaterializedView
	case pg_query.ObjectType_OBJECT_INDEX:
		kind = schema.KindIndex
	case pg_query.ObjectType_OBJECT_SEQUENCE:
		kind = schema.KindSequence
	case pg_query.ObjectType_OBJECT_TYPE:
		kind = schema.KindEnum
	case pg_query.ObjectType_OBJECT_DOMAIN:
		kind = schema.KindDomain
	case pg_query.ObjectType_OBJECT_FUNCTION:
		kind = schema.KindFunction
	case pg_query.ObjectType_OBJECT_SCHEMA:
		kind = schema.KindSchema
	case pg_query.ObjectType_OBJECT_EXTENSION:
		kind = schema.KindExtension
	case pg_query.ObjectType_OBJECT_COLUMN:
		// Column comments attach to the owning table's identity with the
		// column recorded in the signature.
		if list := stmt.Object.GetList(); list != nil {
			parts := stringItems(list.Items)
			if len(parts) >= 2 {
				col := parts[len(parts)-1]
				rel := parts[len(parts)-2]
				schemaName := p.defaultSchema
				if len(parts) >= 3 {
					schemaName = parts[len(parts)-3]
				}
				return schema.Identity{
					Schema:    schemaName,
					Name:      rel,
					Kind:      schema.KindTable,
					Signature: "column:" + col,
				}, true
			}
		}
		return schema.Identity{}, false
	default:
		return schema.Identity{}, false
	}

	switch kind {
	case schema.KindSchema, schema.KindExtension:
		if str := stmt.Object.GetString_(); str != nil {
			return schema.Identity{Name: str.Sval, Kind: kind}, true
		}
	case schema.KindFunction:
		if objWithArgs := stmt.Object.GetObjectWithArgs(); objWithArgs != nil {
			schemaName, name := qualifiedName(objWithArgs.Objname, p.defaultSchema)
			var argTypes []string
			for _, arg := range objWithArgs.Objargs {
				if tn := arg.GetTypeName(); tn != nil {
					argTypes = append(argTypes, typeNameText(tn))
				}
			}
			return schema.Identity{
				Schema:    schemaName,
				Name:      name,
				Kind:      kind,
				Signature: strings.Join(argTypes, ", "),
			}, true
		}
	default:
		if list := stmt.Object.GetList(); list != nil {
			schemaName, name := qualifiedName(list.Items, p.defaultSchema)
			id := schema.Identity{Schema: schemaName, Name: name, Kind: kind}
			if kind == schema.KindEnum {
				id = p.resolveTypeComment(schemaName, name)
			}
			return id, true
		}
	}
	return schema.Identity{}, false
}

// resolveTypeComment finds which type kind a COMMENT ON TYPE refers to.
func (p *Parser) resolveTypeComment(schemaName, name string) schema.Identity {
	for _, kind := range []schema.ObjectKind{
		schema.KindEnum, schema.KindCompositeType, schema.KindDomain, schema.KindRangeType,
	} {
		id := schema.Identity{Schema: schemaName, Name: name, Kind: kind}
		if _, ok := p.model.Lookup(id); ok {
			return id
		}
	}
	return schema.Identity{Schema: schemaName, Name: name, Kind: schema.KindEnum}
}

func defElemString(def *pg_query.DefElem) string {
	if def.Arg == nil {
		return ""
	}
	if str := def.Arg.GetString_(); str != nil {
		return str.Sval
	}
	if aConst := def.Arg.GetAConst(); aConst != nil {
		if sval := aConst.GetSval(); sval != nil {
			return sval.Sval
		}
	}
	return ""
}

func defElemInt(def *pg_query.DefElem, fallback int64) int64 {
	if def.Arg == nil {
		return fallback
	}
	if integer := def.Arg.GetInteger(); integer != nil {
		return int64(integer.Ival)
	}
	if f := def.Arg.GetFloat(); f != nil {
		if v, err := strconv.ParseInt(f.Fval, 10, 64); err == nil {
			return v
		}
	}
	if aConst := def.Arg.GetAConst(); aConst != nil {
		if ival := aConst.GetIval(); ival != nil {
			return int64(ival.Ival)
		}
	}
	return fallback
}

func defElemBool(def *pg_query.DefElem) bool {
	if def.Arg == nil {
		return true
	}
	if boolean := def.Arg.GetBoolean(); boolean != nil {
		return boolean.Boolval
	}
	if str := def.Arg.GetString_(); str != nil {
		return strings.EqualFold(str.Sval, "true")
	}
	if integer := def.Arg.GetInteger(); integer != nil {
		return integer.Ival != 0
	}
	return true
}
