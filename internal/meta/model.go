package meta

import (
	"errors"
	"fmt"
	"strings"
)

// RelationKind enumerates supported relation cardinalities.
type RelationKind string

const (
	// RelationBelongsTo links a row to a single parent record.
	RelationBelongsTo RelationKind = "belongs_to"
	// RelationHasOne links a row to a single child record.
	RelationHasOne RelationKind = "has_one"
	// RelationHasMany links a row to multiple child records.
	RelationHasMany RelationKind = "has_many"
	// RelationManyToMany links a row to multiple records through a join table.
	RelationManyToMany RelationKind = "many_to_many"
)

// ErrInvalidRelationKind indicates a relation descriptor arrived with an unknown kind.
var ErrInvalidRelationKind = errors.New("meta: invalid relation kind")

// ParseRelationKind validates raw input from the metadata provider boundary.
func ParseRelationKind(rawInput string) (RelationKind, error) {
	switch RelationKind(strings.ToLower(strings.TrimSpace(rawInput))) {
	case RelationBelongsTo:
		return RelationBelongsTo, nil
	case RelationHasOne:
		return RelationHasOne, nil
	case RelationHasMany:
		return RelationHasMany, nil
	case RelationManyToMany:
		return RelationManyToMany, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRelationKind, rawInput)
	}
}

// IsMulti reports whether the relation holds more than one related record.
func (kind RelationKind) IsMulti() bool {
	return kind == RelationHasMany || kind == RelationManyToMany
}

// String returns the underlying kind label.
func (kind RelationKind) String() string {
	return string(kind)
}

// FieldType describes the raw type of a table column as reported by the
// metadata provider. All fields are optional; absent values stay empty.
type FieldType struct {
	GqlType string `json:"gql_type,omitempty"`
	IsArray bool   `json:"is_array,omitempty"`
	PgAlias string `json:"pg_alias,omitempty"`
	PgType  string `json:"pg_type,omitempty"`
	Subtype string `json:"subtype,omitempty"`
}

// Relation describes how a column participates in a relation. RelationField
// names the human-readable display column, ForeignKeyField the column that
// actually carries the key on submission.
type Relation struct {
	Kind            RelationKind `json:"kind"`
	RelatedTable    string       `json:"related_table,omitempty"`
	RelationField   string       `json:"relation_field,omitempty"`
	ForeignKeyField string       `json:"foreign_key_field,omitempty"`
}

// TableMeta is the snapshot a metadata provider hands to the draft core.
type TableMeta struct {
	ColumnOrder []string
	Fields      map[string]FieldType
	Relations   map[string]Relation
	Version     string
}
