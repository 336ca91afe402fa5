package drafts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/griddeck/griddeck/internal/meta"
	"go.uber.org/zap"
)

const (
	opSubmitEntries   = "drafts.submit_entries"
	opSubmitForEditor = "drafts.submit_for_editor"

	// OperationTypeDraftRows labels batch draft submissions in progress
	// callbacks.
	OperationTypeDraftRows = "draft_rows"

	genericSubmitFailure = "Failed to submit draft row"
)

var (
	errMissingStore   = errors.New("drafts: store is required")
	errMissingCreator = errors.New("drafts: row creator is required")
	errRowNotFound    = errors.New("drafts: draft row not found")
)

// RowCreator persists one payload as a real row in the destination table.
// Success or failure is decided purely by the returned error.
type RowCreator interface {
	CreateRow(ctx context.Context, tableName string, payload map[string]interface{}) (map[string]interface{}, error)
}

// CompletionStatus summarizes a batch submission outcome.
type CompletionStatus string

const (
	CompletionSuccess CompletionStatus = "success"
	CompletionPartial CompletionStatus = "partial"
	CompletionError   CompletionStatus = "error"
)

// Callbacks are the optional feedback hooks the owning UI shell injects.
type Callbacks struct {
	OnStart    func(operationType string, total int) string
	OnProgress func(operationID string, completed, failed int)
	OnComplete func(operationID string, status CompletionStatus, message string)
}

// SubmitEntry selects one draft row for submission along with the column
// filter and relation descriptors its payload is normalized against.
type SubmitEntry struct {
	TableKey   TableKey
	DraftRowID string
	Columns    []string
	Relations  map[string]meta.Relation
}

// Tally counts per-row submission outcomes.
type Tally struct {
	Success int `json:"success"`
	Failed  int `json:"failed"`
}

// SubmitterConfig describes the dependencies of a submission pipeline.
type SubmitterConfig struct {
	Store     *Store
	Creator   RowCreator
	Callbacks Callbacks
	Logger    *zap.Logger
}

// Submitter persists selected draft rows through a caller-supplied creator,
// one row at a time.
type Submitter struct {
	store     *Store
	creator   RowCreator
	callbacks Callbacks
	logger    *zap.Logger
	inFlight  atomic.Bool
}

// NewSubmitter constructs the submission pipeline.
func NewSubmitter(cfg SubmitterConfig) (*Submitter, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	if cfg.Creator == nil {
		return nil, errMissingCreator
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Submitter{
		store:     cfg.Store,
		creator:   cfg.Creator,
		callbacks: cfg.Callbacks,
		logger:    logger,
	}, nil
}

// InFlight reports whether a submission is currently running; the UI uses it
// to disable the submit control.
func (s *Submitter) InFlight() bool {
	return s.inFlight.Load()
}

// SubmitEntries submits the given rows strictly in order. Rows in the same
// batch may depend on rows created earlier (relation targets, auto-increment
// expectations), and a failure must attribute to exactly one row, so the loop
// is sequential and must stay that way. Individual failures are recorded on
// the row and counted, never propagated; a failed row stays in the store for
// the user to fix and retry.
func (s *Submitter) SubmitEntries(ctx context.Context, entries []SubmitEntry, operationID string) Tally {
	tally := Tally{}
	if len(entries) == 0 {
		return tally
	}

	s.inFlight.Store(true)
	defer s.inFlight.Store(false)

	for _, entry := range entries {
		if _, err := s.submitEntry(ctx, entry); err != nil {
			tally.Failed++
			message := submitFailureMessage(err)
			s.store.SetRowStatus(SetStatusParams{
				TableKey:   entry.TableKey,
				DraftRowID: entry.DraftRowID,
				Status:     StatusError,
				Errors:     map[string]string{ErrorKeySubmit: message},
			})
			s.logger.Warn("draft row submission failed",
				zap.String("operation", opSubmitEntries),
				zap.String("table_key", entry.TableKey.String()),
				zap.String("draft_row_id", entry.DraftRowID),
				zap.Error(err))
		} else {
			tally.Success++
			s.store.RemoveDraftRow(entry.TableKey, entry.DraftRowID)
		}

		if operationID != "" && s.callbacks.OnProgress != nil {
			s.callbacks.OnProgress(operationID, tally.Success, tally.Failed)
		}
	}
	return tally
}

func (s *Submitter) submitEntry(ctx context.Context, entry SubmitEntry) (map[string]interface{}, error) {
	row, ok := s.store.Row(entry.TableKey, entry.DraftRowID)
	if !ok {
		return nil, errRowNotFound
	}

	s.store.SetRowStatus(SetStatusParams{
		TableKey:   entry.TableKey,
		DraftRowID: entry.DraftRowID,
		Status:     StatusSaving,
	})

	payload := BuildSubmitPayload(row.Values, entry.Columns, entry.Relations)
	return s.creator.CreateRow(ctx, tableNameFor(entry.TableKey), payload)
}

// SubmitSelected submits a user-selected batch, reporting start, progress,
// and exactly one completion outcome. The returned flag tells the caller
// whether to clear the grid selection: a total failure keeps the selection
// intact so the same set can be retried.
func (s *Submitter) SubmitSelected(ctx context.Context, entries []SubmitEntry) (Tally, bool) {
	if len(entries) == 0 {
		return Tally{}, false
	}

	operationID := ""
	if s.callbacks.OnStart != nil {
		operationID = s.callbacks.OnStart(OperationTypeDraftRows, len(entries))
	}

	tally := s.SubmitEntries(ctx, entries, operationID)

	status, message := completionFor(tally)
	if s.callbacks.OnComplete != nil {
		s.callbacks.OnComplete(operationID, status, message)
	}
	return tally, tally.Success > 0
}

// SubmitSingle submits exactly one row with no operation-level progress
// tracking; the row's own status is the only feedback surface.
func (s *Submitter) SubmitSingle(ctx context.Context, entry SubmitEntry) Tally {
	return s.SubmitEntries(ctx, []SubmitEntry{entry}, "")
}

// SubmitForEditor submits one row and hands the created row back to the
// calling editor. No completion callbacks fire: the editor triggers any
// downstream refresh itself after its follow-up work, so a premature cache
// invalidation cannot race it. Failures are recorded on the row and then
// propagated, unlike the batch path.
func (s *Submitter) SubmitForEditor(ctx context.Context, entry SubmitEntry) (map[string]interface{}, error) {
	s.inFlight.Store(true)
	defer s.inFlight.Store(false)

	createdRow, err := s.submitEntry(ctx, entry)
	if err != nil {
		s.store.SetRowStatus(SetStatusParams{
			TableKey:   entry.TableKey,
			DraftRowID: entry.DraftRowID,
			Status:     StatusError,
			Errors:     map[string]string{ErrorKeySubmit: submitFailureMessage(err)},
		})
		return nil, newStoreError(opSubmitForEditor, "create_failed", err)
	}

	s.store.RemoveDraftRow(entry.TableKey, entry.DraftRowID)
	return createdRow, nil
}

// SubmitDisabled derives the submit-control disabled flag from the in-flight
// state and the current selection size.
func (s *Submitter) SubmitDisabled(selectedCount int) bool {
	return s.InFlight() || selectedCount == 0
}

// SubmitLabel derives the submit-control label for the current selection.
func SubmitLabel(selectedCount int) string {
	if selectedCount == 0 {
		return "Submit draft rows"
	}
	return fmt.Sprintf("Submit %d %s", selectedCount, rowWord(selectedCount))
}

func completionFor(tally Tally) (CompletionStatus, string) {
	switch {
	case tally.Failed == 0:
		return CompletionSuccess, fmt.Sprintf("Submitted %d draft %s", tally.Success, rowWord(tally.Success))
	case tally.Success == 0:
		return CompletionError, fmt.Sprintf("Failed to submit %d draft %s", tally.Failed, rowWord(tally.Failed))
	default:
		return CompletionPartial, fmt.Sprintf("Submitted %d draft %s, %d %s failed",
			tally.Success, rowWord(tally.Success), tally.Failed, rowWord(tally.Failed))
	}
}

func rowWord(count int) string {
	if count == 1 {
		return "row"
	}
	return "rows"
}

func submitFailureMessage(err error) string {
	if err == nil {
		return genericSubmitFailure
	}
	message := strings.TrimSpace(err.Error())
	if message == "" {
		return genericSubmitFailure
	}
	return message
}

// tableNameFor resolves the destination table from a table key, falling back
// to the raw key when it does not parse.
func tableNameFor(tableKey TableKey) string {
	if parsed, ok := ParseTableKey(tableKey); ok {
		return parsed.TableName
	}
	return tableKey.String()
}
