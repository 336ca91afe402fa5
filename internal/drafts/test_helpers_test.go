package drafts

import (
	"fmt"
	"testing"
	"time"

	"github.com/griddeck/griddeck/internal/meta"
)

type sequenceIDProvider struct {
	next int
}

func (p *sequenceIDProvider) NewID() (string, error) {
	p.next++
	return fmt.Sprintf("%04d", p.next), nil
}

type failingIDProvider struct{}

func (failingIDProvider) NewID() (string, error) {
	return "", fmt.Errorf("entropy exhausted")
}

func fixedClock() time.Time {
	return time.UnixMilli(1700000000000)
}

func newTestStore() *Store {
	return NewStore(StoreConfig{
		Clock:      fixedClock,
		IDProvider: &sequenceIDProvider{},
	})
}

func textField() meta.FieldType {
	return meta.FieldType{PgType: "text"}
}

func mustCreateDraftRow(t *testing.T, store *Store, params CreateParams) string {
	t.Helper()
	draftRowID, err := store.CreateDraftRow(params)
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	return draftRowID
}

func mustRow(t *testing.T, store *Store, tableKey TableKey, draftRowID string) DraftRow {
	t.Helper()
	row, ok := store.Row(tableKey, draftRowID)
	if !ok {
		t.Fatalf("expected draft row %s in %s", draftRowID, tableKey)
	}
	return row
}

func mustTable(t *testing.T, store *Store, tableKey TableKey) *TableState {
	t.Helper()
	state, ok := store.Table(tableKey)
	if !ok {
		t.Fatalf("expected table state for %s", tableKey)
	}
	return state
}
