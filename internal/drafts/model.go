package drafts

import "strings"

// RowStatus tracks where a draft row sits in the submission lifecycle.
type RowStatus string

const (
	// StatusIdle marks a row that is editable and not being submitted.
	StatusIdle RowStatus = "idle"
	// StatusSaving marks a row whose create mutation is in flight.
	StatusSaving RowStatus = "saving"
	// StatusError marks a row whose last submission failed.
	StatusError RowStatus = "error"
)

// ErrorKeySubmit is the logical operation name draft submission failures are
// recorded under in DraftRow.Errors.
const ErrorKeySubmit = "submit"

const (
	draftIDPrefix     = "draft:"
	tableKeyDelimiter = "::"
)

// TableKey scopes draft state to one logical table. It encodes a schema
// context, an optional database identifier, and the table name.
type TableKey string

// NewTableKey builds a table key from its segments. The database identifier
// may be empty for tables addressed without a database scope.
func NewTableKey(schemaContext, databaseID, tableName string) TableKey {
	if databaseID == "" {
		return TableKey(schemaContext + tableKeyDelimiter + tableName)
	}
	return TableKey(schemaContext + tableKeyDelimiter + databaseID + tableKeyDelimiter + tableName)
}

// String returns the raw key.
func (key TableKey) String() string {
	return string(key)
}

// ParsedTableKey holds the decoded segments of a table key.
type ParsedTableKey struct {
	SchemaContext string
	DatabaseID    string
	TableName     string
}

// ParseTableKey decodes a table key. Malformed keys (wrong segment count or
// any empty segment) report ok=false instead of an error; callers use the
// parse only for best-effort database-scoped cleanup.
func ParseTableKey(key TableKey) (ParsedTableKey, bool) {
	segments := strings.Split(string(key), tableKeyDelimiter)
	for _, segment := range segments {
		if segment == "" {
			return ParsedTableKey{}, false
		}
	}
	switch len(segments) {
	case 2:
		return ParsedTableKey{SchemaContext: segments[0], TableName: segments[1]}, true
	case 3:
		return ParsedTableKey{SchemaContext: segments[0], DatabaseID: segments[1], TableName: segments[2]}, true
	default:
		return ParsedTableKey{}, false
	}
}

// IsDraftRowID reports whether an identifier names a not-yet-persisted row.
func IsDraftRowID(id string) bool {
	return strings.HasPrefix(id, draftIDPrefix)
}

// DraftRow is one staged, not-yet-persisted grid row.
type DraftRow struct {
	ID              string                 `json:"id"`
	Values          map[string]interface{} `json:"values"`
	Status          RowStatus              `json:"status"`
	Errors          map[string]string      `json:"errors,omitempty"`
	CreatedAtMillis int64                  `json:"created_at_ms"`
	MetaVersion     string                 `json:"meta_version"`
}

// TableState holds every draft row staged for one table key. Instances are
// treated as immutable once published by the store; mutations replace the
// whole state so consumers can rely on reference equality for change
// detection.
type TableState struct {
	Order       []string               `json:"order"`
	Rows        map[string]DraftRow    `json:"rows"`
	Template    map[string]interface{} `json:"template"`
	MetaVersion string                 `json:"meta_version"`
	ColumnOrder []string               `json:"column_order"`
}
