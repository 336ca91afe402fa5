package drafts

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/griddeck/griddeck/internal/meta"
	"go.uber.org/zap"
)

const opCreateDraftRow = "drafts.create_draft_row"

var (
	errIDGenerationFailed = errors.New("drafts: draft id generation failed")
	noOpLogger            = zap.NewNop()
)

// StoreError carries a coded draft store failure.
type StoreError struct {
	code string
	err  error
}

func (e *StoreError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *StoreError) Unwrap() error {
	return e.err
}

// Code returns the operation.reason code for the failure.
func (e *StoreError) Code() string {
	return e.code
}

func newStoreError(operation, reason string, cause error) error {
	return &StoreError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// StoreConfig describes the dependencies of a draft row store. Every field
// is optional; zero values fall back to production defaults.
type StoreConfig struct {
	Clock      func() time.Time
	IDProvider IDProvider
	Defaults   meta.DefaultRegistry
	Logger     *zap.Logger
}

// Store stages draft rows per table key. It is an explicitly constructed
// instance rather than a package singleton so tests and shells can own
// isolated stores. Published TableState values are immutable; every mutation
// installs fresh containers.
type Store struct {
	mu         sync.RWMutex
	tables     map[TableKey]*TableState
	clock      func() time.Time
	idProvider IDProvider
	defaults   meta.DefaultRegistry
	logger     *zap.Logger
}

// NewStore constructs an empty draft row store.
func NewStore(cfg StoreConfig) *Store {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = NewUUIDProvider()
	}
	defaults := cfg.Defaults
	if defaults == nil {
		defaults = meta.NewStandardRegistry()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Store{
		tables:     make(map[TableKey]*TableState),
		clock:      clock,
		idProvider: idProvider,
		defaults:   defaults,
		logger:     logger,
	}
}

// CreateParams carries the metadata snapshot a draft row is created against.
type CreateParams struct {
	TableKey    TableKey
	ColumnOrder []string
	Fields      map[string]meta.FieldType
	Relations   map[string]meta.Relation
	MetaVersion string
}

// CreateDraftRow stages a new draft row seeded from the table template and
// returns its identifier so the caller can focus the new grid row.
func (s *Store) CreateDraftRow(params CreateParams) (string, error) {
	suffix, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreateDraftRow, "id_generation_failed", err, zap.String("table_key", params.TableKey.String()))
		return "", newStoreError(opCreateDraftRow, "id_generation_failed", errIDGenerationFailed)
	}
	draftRowID := draftIDPrefix + suffix

	columnOrder := EnsureColumnOrder(params.ColumnOrder, params.Fields, params.Relations)
	template := BuildTemplate(columnOrder, params.Fields, params.Relations, s.defaults)

	values := cloneValues(template)
	if _, templated := template["id"]; !templated {
		values["id"] = draftRowID
	}
	row := DraftRow{
		ID:              draftRowID,
		Values:          values,
		Status:          StatusIdle,
		Errors:          nil,
		CreatedAtMillis: s.clock().UnixMilli(),
		MetaVersion:     params.MetaVersion,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.tables[params.TableKey]
	if !ok {
		s.tables[params.TableKey] = &TableState{
			Order:       []string{draftRowID},
			Rows:        map[string]DraftRow{draftRowID: row},
			Template:    template,
			MetaVersion: params.MetaVersion,
			ColumnOrder: columnOrder,
		}
		return draftRowID, nil
	}

	next := appendRow(existing, row)
	s.tables[params.TableKey] = next
	return draftRowID, nil
}

func appendRow(state *TableState, row DraftRow) *TableState {
	order := make([]string, 0, len(state.Order)+1)
	order = append(order, state.Order...)
	order = append(order, row.ID)
	rows := make(map[string]DraftRow, len(state.Rows)+1)
	for id, existing := range state.Rows {
		rows[id] = existing
	}
	rows[row.ID] = row
	return &TableState{
		Order:       order,
		Rows:        rows,
		Template:    state.Template,
		MetaVersion: state.MetaVersion,
		ColumnOrder: state.ColumnOrder,
	}
}

// UpdateCellParams addresses one cell edit, optionally fanning out to extra
// columns when a single UI edit writes several logical columns at once.
type UpdateCellParams struct {
	TableKey    TableKey
	DraftRowID  string
	ColumnKey   string
	Value       interface{}
	ExtraValues map[string]interface{}
}

// UpdateDraftCell writes a cell value into a draft row. Editing a row that
// previously failed submission resets it to idle and clears its errors.
// Missing tables or rows are silently ignored.
func (s *Store) UpdateDraftCell(params UpdateCellParams) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.tables[params.TableKey]
	if !ok {
		return
	}
	row, ok := state.Rows[params.DraftRowID]
	if !ok {
		return
	}

	values := cloneValues(row.Values)
	values[params.ColumnKey] = cloneValue(params.Value)
	for column, value := range params.ExtraValues {
		values[column] = cloneValue(value)
	}

	row.Values = values
	if row.Status == StatusError {
		row.Status = StatusIdle
		row.Errors = nil
	}

	s.tables[params.TableKey] = replaceRow(state, row)
}

func replaceRow(state *TableState, row DraftRow) *TableState {
	rows := make(map[string]DraftRow, len(state.Rows))
	for id, existing := range state.Rows {
		rows[id] = existing
	}
	rows[row.ID] = row
	return &TableState{
		Order:       state.Order,
		Rows:        rows,
		Template:    state.Template,
		MetaVersion: state.MetaVersion,
		ColumnOrder: state.ColumnOrder,
	}
}

// RemoveDraftRow drops a draft row. When the last row of a table is removed
// the whole table state goes with it.
func (s *Store) RemoveDraftRow(tableKey TableKey, draftRowID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.tables[tableKey]
	if !ok {
		return
	}
	if _, ok := state.Rows[draftRowID]; !ok {
		return
	}
	if len(state.Order) == 1 {
		delete(s.tables, tableKey)
		return
	}

	order := make([]string, 0, len(state.Order)-1)
	for _, id := range state.Order {
		if id != draftRowID {
			order = append(order, id)
		}
	}
	rows := make(map[string]DraftRow, len(state.Rows)-1)
	for id, existing := range state.Rows {
		if id != draftRowID {
			rows[id] = existing
		}
	}
	s.tables[tableKey] = &TableState{
		Order:       order,
		Rows:        rows,
		Template:    state.Template,
		MetaVersion: state.MetaVersion,
		ColumnOrder: state.ColumnOrder,
	}
}

// ClearTable drops every draft row staged for a table key.
func (s *Store) ClearTable(tableKey TableKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tables, tableKey)
}

// ClearDatabase drops draft state for every table key scoped to the given
// database. Parseable keys match on their database segment; unparseable keys
// fall back to a substring heuristic on the raw key.
func (s *Store) ClearDatabase(databaseID string) {
	if databaseID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for tableKey := range s.tables {
		if parsed, ok := ParseTableKey(tableKey); ok {
			if parsed.DatabaseID == databaseID {
				delete(s.tables, tableKey)
			}
			continue
		}
		if strings.Contains(tableKey.String(), databaseID) {
			delete(s.tables, tableKey)
		}
	}
}

// ClearAll drops every staged draft row.
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables = make(map[TableKey]*TableState)
}

// SetStatusParams carries a direct status assignment for a draft row.
type SetStatusParams struct {
	TableKey   TableKey
	DraftRowID string
	Status     RowStatus
	Errors     map[string]string
}

// SetRowStatus assigns a row's lifecycle status and error map directly. The
// submission pipeline uses it to flip rows between saving and error states.
func (s *Store) SetRowStatus(params SetStatusParams) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.tables[params.TableKey]
	if !ok {
		return
	}
	row, ok := state.Rows[params.DraftRowID]
	if !ok {
		return
	}

	row.Status = params.Status
	if params.Errors == nil {
		row.Errors = nil
	} else {
		copied := make(map[string]string, len(params.Errors))
		for key, message := range params.Errors {
			copied[key] = message
		}
		row.Errors = copied
	}
	s.tables[params.TableKey] = replaceRow(state, row)
}

// Row returns the staged draft row for an identifier. The returned value
// shares immutable containers with the store and must not be mutated.
func (s *Store) Row(tableKey TableKey, draftRowID string) (DraftRow, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.tables[tableKey]
	if !ok {
		return DraftRow{}, false
	}
	row, ok := state.Rows[draftRowID]
	return row, ok
}

// Table returns the published state for a table key. Successive calls return
// the same pointer until a mutation installs a new state, so callers may use
// reference equality for change detection.
func (s *Store) Table(tableKey TableKey) (*TableState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.tables[tableKey]
	return state, ok
}

// Snapshot returns the full per-table draft state for serialization. The
// states themselves are immutable and shared, not copied.
func (s *Store) Snapshot() map[TableKey]*TableState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot := make(map[TableKey]*TableState, len(s.tables))
	for tableKey, state := range s.tables {
		snapshot[tableKey] = state
	}
	return snapshot
}

// Restore replaces the store contents from a deserialized snapshot. Missing
// arrays and maps default to empty, and tables restored without rows are
// dropped rather than kept as empty shells.
func (s *Store) Restore(snapshot map[TableKey]*TableState) {
	tables := make(map[TableKey]*TableState, len(snapshot))
	for tableKey, state := range snapshot {
		if state == nil || len(state.Order) == 0 {
			continue
		}
		tables[tableKey] = normalizeState(state)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables = tables
}

func normalizeState(state *TableState) *TableState {
	normalized := &TableState{
		Order:       state.Order,
		Rows:        state.Rows,
		Template:    state.Template,
		MetaVersion: state.MetaVersion,
		ColumnOrder: state.ColumnOrder,
	}
	if normalized.Order == nil {
		normalized.Order = []string{}
	}
	if normalized.Rows == nil {
		normalized.Rows = map[string]DraftRow{}
	}
	if normalized.Template == nil {
		normalized.Template = map[string]interface{}{}
	}
	if normalized.ColumnOrder == nil {
		normalized.ColumnOrder = []string{}
	}
	rows := make(map[string]DraftRow, len(normalized.Rows))
	for id, row := range normalized.Rows {
		if row.Values == nil {
			row.Values = map[string]interface{}{}
		}
		rows[id] = row
	}
	normalized.Rows = rows
	return normalized
}

func (s *Store) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("draft store error", attrs...)
}
