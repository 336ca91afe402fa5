package meta

import "strings"

// CellType names the semantic editor type resolved for a column.
type CellType string

const (
	CellTypeText      CellType = "text"
	CellTypeNumber    CellType = "number"
	CellTypeBoolean   CellType = "boolean"
	CellTypeTimestamp CellType = "timestamp"
	CellTypeDate      CellType = "date"
	CellTypeJSON      CellType = "json"
	CellTypeUUID      CellType = "uuid"
	CellTypeUnknown   CellType = "unknown"
)

var pgCellTypes = map[string]CellType{
	"text":                        CellTypeText,
	"varchar":                     CellTypeText,
	"character varying":           CellTypeText,
	"char":                        CellTypeText,
	"character":                   CellTypeText,
	"citext":                      CellTypeText,
	"int":                         CellTypeNumber,
	"int2":                        CellTypeNumber,
	"int4":                        CellTypeNumber,
	"int8":                        CellTypeNumber,
	"smallint":                    CellTypeNumber,
	"integer":                     CellTypeNumber,
	"bigint":                      CellTypeNumber,
	"numeric":                     CellTypeNumber,
	"decimal":                     CellTypeNumber,
	"real":                        CellTypeNumber,
	"float4":                      CellTypeNumber,
	"float8":                      CellTypeNumber,
	"double precision":            CellTypeNumber,
	"serial":                      CellTypeNumber,
	"bigserial":                   CellTypeNumber,
	"bool":                        CellTypeBoolean,
	"boolean":                     CellTypeBoolean,
	"timestamp":                   CellTypeTimestamp,
	"timestamptz":                 CellTypeTimestamp,
	"timestamp without time zone": CellTypeTimestamp,
	"timestamp with time zone":    CellTypeTimestamp,
	"date":                        CellTypeDate,
	"json":                        CellTypeJSON,
	"jsonb":                       CellTypeJSON,
	"uuid":                        CellTypeUUID,
}

var gqlCellTypes = map[string]CellType{
	"string":   CellTypeText,
	"int":      CellTypeNumber,
	"float":    CellTypeNumber,
	"bigint":   CellTypeNumber,
	"bigfloat": CellTypeNumber,
	"boolean":  CellTypeBoolean,
	"datetime": CellTypeTimestamp,
	"date":     CellTypeDate,
	"json":     CellTypeJSON,
	"uuid":     CellTypeUUID,
}

// ResolveCellType maps a raw field descriptor to its semantic cell type.
// The Postgres alias wins over the storage type, which wins over the GraphQL
// type name; the subtype resolves element types for array columns.
func ResolveCellType(field FieldType) CellType {
	candidates := []string{field.PgAlias, field.PgType, field.Subtype}
	for _, candidate := range candidates {
		if cellType, ok := pgCellTypes[normalizeTypeName(candidate)]; ok {
			return cellType
		}
	}
	if cellType, ok := gqlCellTypes[normalizeTypeName(field.GqlType)]; ok {
		return cellType
	}
	return CellTypeUnknown
}

func normalizeTypeName(rawName string) string {
	trimmed := strings.ToLower(strings.TrimSpace(rawName))
	trimmed = strings.TrimPrefix(trimmed, "_")
	return strings.TrimSuffix(trimmed, "[]")
}

// DefaultRegistry resolves a default-value factory for a cell type. The draft
// core deep-clones whatever the factory returns, so factories may share state.
type DefaultRegistry interface {
	DefaultValue(cellType CellType) (interface{}, bool)
}

// RegistryFunc adapts a plain function to the DefaultRegistry interface.
type RegistryFunc func(cellType CellType) (interface{}, bool)

// DefaultValue implements DefaultRegistry.
func (fn RegistryFunc) DefaultValue(cellType CellType) (interface{}, bool) {
	return fn(cellType)
}

// NewStandardRegistry returns the defaults the grid editor seeds new cells
// with. Unregistered cell types fall back to null in the template builder.
func NewStandardRegistry() DefaultRegistry {
	defaults := map[CellType]func() interface{}{
		CellTypeText:    func() interface{} { return "" },
		CellTypeBoolean: func() interface{} { return false },
		CellTypeJSON:    func() interface{} { return map[string]interface{}{} },
	}
	return RegistryFunc(func(cellType CellType) (interface{}, bool) {
		factory, ok := defaults[cellType]
		if !ok {
			return nil, false
		}
		return factory(), true
	})
}
