package meta

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// ComputeVersion derives a stable fingerprint for a metadata snapshot. The
// hash is order-sensitive over the column sequence and covers every type and
// relation descriptor field, so any schema change (including a reorder)
// yields a different version string.
func ComputeVersion(columnOrder []string, fields map[string]FieldType, relations map[string]Relation) string {
	digest := sha256.New()
	for _, column := range columnOrder {
		writeVersionPart(digest, "c", column)
		if field, ok := fields[column]; ok {
			writeVersionPart(digest, "f", fmt.Sprintf("%s|%t|%s|%s|%s",
				field.GqlType, field.IsArray, field.PgAlias, field.PgType, field.Subtype))
		}
		if relation, ok := relations[column]; ok {
			writeVersionPart(digest, "r", fmt.Sprintf("%s|%s|%s|%s",
				relation.Kind, relation.RelatedTable, relation.RelationField, relation.ForeignKeyField))
		}
	}
	return hex.EncodeToString(digest.Sum(nil))[:16]
}

func writeVersionPart(destination io.Writer, tag, value string) {
	fmt.Fprintf(destination, "%s:%d:%s;", tag, len(value), value)
}
