package drafts

import "github.com/griddeck/griddeck/internal/meta"

// SyncParams carries the latest metadata snapshot for a table.
type SyncParams struct {
	TableKey    TableKey
	ColumnOrder []string
	Fields      map[string]meta.FieldType
	Relations   map[string]meta.Relation
	MetaVersion string
}

// SyncWithMeta reconciles staged draft rows with a changed table schema.
// Surviving columns keep their user-entered values, removed columns
// disappear, and newly added columns pick up their template default. When
// neither the version nor the column order changed the call is a no-op and
// the published state pointer is left untouched.
func (s *Store) SyncWithMeta(params SyncParams) {
	columnOrder := EnsureColumnOrder(params.ColumnOrder, params.Fields, params.Relations)

	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.tables[params.TableKey]
	if !ok {
		if len(columnOrder) == 0 {
			return
		}
		s.tables[params.TableKey] = &TableState{
			Order:       []string{},
			Rows:        map[string]DraftRow{},
			Template:    BuildTemplate(columnOrder, params.Fields, params.Relations, s.defaults),
			MetaVersion: params.MetaVersion,
			ColumnOrder: columnOrder,
		}
		return
	}

	if state.MetaVersion == params.MetaVersion && sameColumns(state.ColumnOrder, columnOrder) {
		return
	}

	template := BuildTemplate(columnOrder, params.Fields, params.Relations, s.defaults)
	rows := make(map[string]DraftRow, len(state.Rows))
	for _, draftRowID := range state.Order {
		row, ok := state.Rows[draftRowID]
		if !ok {
			continue
		}
		rows[draftRowID] = mergeRowWithTemplate(row, template, params.MetaVersion)
	}

	s.tables[params.TableKey] = &TableState{
		Order:       state.Order,
		Rows:        rows,
		Template:    template,
		MetaVersion: params.MetaVersion,
		ColumnOrder: columnOrder,
	}
}

// mergeRowWithTemplate rebases a draft row onto a new template, overlaying
// every old value whose column survived the schema change.
func mergeRowWithTemplate(row DraftRow, template map[string]interface{}, metaVersion string) DraftRow {
	values := cloneValues(template)
	for column, value := range row.Values {
		if column == "id" {
			values[column] = value
			continue
		}
		if _, survives := template[column]; survives {
			values[column] = cloneValue(value)
		}
	}
	row.Values = values
	row.MetaVersion = metaVersion
	return row
}

func sameColumns(left, right []string) bool {
	if len(left) != len(right) {
		return false
	}
	for index, column := range left {
		if right[index] != column {
			return false
		}
	}
	return true
}
