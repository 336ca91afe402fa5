package drafts

import "github.com/griddeck/griddeck/internal/meta"

// BuildSubmitPayload converts a draft row's values into a create-mutation
// payload. The synthetic draft id is dropped (the destination assigns its
// own), untouched null columns are omitted, relation display columns are
// skipped in favor of their foreign-key columns, and foreign-key values are
// normalized down to bare identifiers.
func BuildSubmitPayload(values map[string]interface{}, allowedColumns []string, relations map[string]meta.Relation) map[string]interface{} {
	allowed := make(map[string]bool, len(allowedColumns))
	for _, column := range allowedColumns {
		allowed[column] = true
	}

	foreignKeys := make(map[string]bool, len(relations))
	displays := make(map[string]bool, len(relations))
	for column, relation := range relations {
		foreignKeyField := relation.ForeignKeyField
		if foreignKeyField == "" {
			foreignKeyField = column
		}
		foreignKeys[foreignKeyField] = true
		if column != foreignKeyField {
			displays[column] = true
		}
		if relation.RelationField != "" && relation.RelationField != foreignKeyField {
			displays[relation.RelationField] = true
		}
	}

	payload := make(map[string]interface{}, len(values))
	for column, value := range values {
		if column == "id" {
			continue
		}
		if len(allowed) > 0 && !allowed[column] {
			continue
		}
		if value == nil {
			continue
		}
		if displays[column] {
			continue
		}
		if foreignKeys[column] {
			if normalized, ok := normalizeForeignKey(value); ok {
				payload[column] = normalized
			}
			continue
		}
		payload[column] = value
	}
	return payload
}

// normalizeForeignKey reduces a foreign-key cell to plain identifiers:
// related-record objects collapse to their id, arrays map element-wise with
// null entries dropped, scalars pass through.
func normalizeForeignKey(value interface{}) (interface{}, bool) {
	switch typed := value.(type) {
	case []interface{}:
		identifiers := make([]interface{}, 0, len(typed))
		for _, entry := range typed {
			if entry == nil {
				continue
			}
			if identifier, ok := normalizeForeignKey(entry); ok {
				identifiers = append(identifiers, identifier)
			}
		}
		return identifiers, true
	case map[string]interface{}:
		identifier, ok := typed["id"]
		if !ok || identifier == nil {
			return nil, false
		}
		return identifier, true
	default:
		return typed, true
	}
}
