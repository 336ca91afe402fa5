package drafts

import (
	"sort"

	"github.com/griddeck/griddeck/internal/meta"
)

// EnsureColumnOrder returns the effective column order for a table. An
// explicit order wins verbatim; without one the union of metadata and
// relation column names is returned sorted, which keeps the fallback
// deterministic when no display order is known.
func EnsureColumnOrder(explicitOrder []string, fields map[string]meta.FieldType, relations map[string]meta.Relation) []string {
	if len(explicitOrder) > 0 {
		ordered := make([]string, len(explicitOrder))
		copy(ordered, explicitOrder)
		return ordered
	}

	seen := make(map[string]bool, len(fields)+len(relations))
	columns := make([]string, 0, len(fields)+len(relations))
	for column := range fields {
		if !seen[column] {
			seen[column] = true
			columns = append(columns, column)
		}
	}
	for column := range relations {
		if !seen[column] {
			seen[column] = true
			columns = append(columns, column)
		}
	}
	sort.Strings(columns)
	return columns
}

// BuildTemplate computes the canonical default value for every column in the
// effective order. Multi-valued relations and array fields default to an
// empty list, single-valued relations to null, and scalar fields to whatever
// the default registry produces for their resolved cell type.
func BuildTemplate(columnOrder []string, fields map[string]meta.FieldType, relations map[string]meta.Relation, defaults meta.DefaultRegistry) map[string]interface{} {
	template := make(map[string]interface{}, len(columnOrder))
	for _, column := range columnOrder {
		if relation, ok := relations[column]; ok {
			if relation.Kind.IsMulti() {
				template[column] = []interface{}{}
			} else {
				template[column] = nil
			}
			continue
		}

		field, ok := fields[column]
		if !ok {
			template[column] = nil
			continue
		}
		if field.IsArray {
			template[column] = []interface{}{}
			continue
		}
		if defaults != nil {
			if value, registered := defaults.DefaultValue(meta.ResolveCellType(field)); registered {
				template[column] = cloneValue(value)
				continue
			}
		}
		template[column] = nil
	}
	return template
}
