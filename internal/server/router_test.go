package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/griddeck/griddeck/internal/drafts"
	"github.com/griddeck/griddeck/internal/meta"
)

type fakeMetaProvider struct {
	snapshots map[string]meta.TableMeta
	err       error
}

func (p *fakeMetaProvider) TableMeta(_ context.Context, tableName string) (meta.TableMeta, error) {
	if p.err != nil {
		return meta.TableMeta{}, p.err
	}
	snapshot, ok := p.snapshots[tableName]
	if !ok {
		return meta.TableMeta{}, fmt.Errorf("unknown table %q", tableName)
	}
	return snapshot, nil
}

type fakeRowCreator struct {
	payloads []map[string]interface{}
	err      error
}

func (c *fakeRowCreator) CreateRow(_ context.Context, _ string, payload map[string]interface{}) (map[string]interface{}, error) {
	c.payloads = append(c.payloads, payload)
	if c.err != nil {
		return nil, c.err
	}
	return map[string]interface{}{"id": "real-1"}, nil
}

func postsMetaProvider() *fakeMetaProvider {
	fields := map[string]meta.FieldType{
		"title":     {PgType: "text"},
		"author_id": {PgType: "uuid"},
	}
	relations := map[string]meta.Relation{
		"author_id": {Kind: meta.RelationBelongsTo, RelatedTable: "users", RelationField: "author", ForeignKeyField: "author_id"},
	}
	columnOrder := []string{"title", "author_id"}
	return &fakeMetaProvider{snapshots: map[string]meta.TableMeta{
		"posts": {
			ColumnOrder: columnOrder,
			Fields:      fields,
			Relations:   relations,
			Version:     meta.ComputeVersion(columnOrder, fields, relations),
		},
	}}
}

type testServer struct {
	handler http.Handler
	store   *drafts.Store
	creator *fakeRowCreator
}

func newTestServer(t *testing.T, provider meta.Provider) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := drafts.NewStore(drafts.StoreConfig{})
	creator := &fakeRowCreator{}
	var submitter *drafts.Submitter
	if provider != nil {
		var err error
		submitter, err = drafts.NewSubmitter(drafts.SubmitterConfig{Store: store, Creator: creator})
		if err != nil {
			t.Fatalf("unexpected submitter error: %v", err)
		}
	}

	handler, err := NewHTTPHandler(Dependencies{
		Store:     store,
		Submitter: submitter,
		Metadata:  provider,
	})
	if err != nil {
		t.Fatalf("unexpected handler error: %v", err)
	}
	return &testServer{handler: handler, store: store, creator: creator}
}

func (s *testServer) do(t *testing.T, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("unexpected marshal error: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	request := httptest.NewRequest(method, target, reader)
	request.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var decoded map[string]interface{}
	if err := json.Unmarshal(recorder.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("unexpected response body %q: %v", recorder.Body.String(), err)
	}
	return decoded
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(t, postsMetaProvider())
	recorder := server.do(t, http.MethodGet, "/healthz", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", recorder.Code)
	}
}

func TestCreateRowRejectsInvalidTableKey(t *testing.T) {
	server := newTestServer(t, postsMetaProvider())
	recorder := server.do(t, http.MethodPost, "/drafts/rows", gin.H{"table_key": "posts"})
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("single-segment keys should be rejected, got %d", recorder.Code)
	}
	if decodeBody(t, recorder)["error"] != "invalid_table_key" {
		t.Fatalf("unexpected error body %s", recorder.Body.String())
	}
}

func TestCreateRowWithoutMetadataProvider(t *testing.T) {
	server := newTestServer(t, nil)
	recorder := server.do(t, http.MethodPost, "/drafts/rows", gin.H{"table_key": "dashboard::db1::posts"})
	if recorder.Code != http.StatusServiceUnavailable {
		t.Fatalf("missing provider should yield 503, got %d", recorder.Code)
	}
}

func TestCreateRowMetadataFetchFailure(t *testing.T) {
	server := newTestServer(t, &fakeMetaProvider{err: fmt.Errorf("connection refused")})
	recorder := server.do(t, http.MethodPost, "/drafts/rows", gin.H{"table_key": "dashboard::db1::posts"})
	if recorder.Code != http.StatusBadGateway {
		t.Fatalf("fetch failures should yield 502, got %d", recorder.Code)
	}
}

func TestDraftRowLifecycleOverHTTP(t *testing.T) {
	server := newTestServer(t, postsMetaProvider())
	tableKey := "dashboard::db1::posts"

	created := server.do(t, http.MethodPost, "/drafts/rows", gin.H{"table_key": tableKey})
	if created.Code != http.StatusCreated {
		t.Fatalf("unexpected create status %d: %s", created.Code, created.Body.String())
	}
	draftRowID, _ := decodeBody(t, created)["draft_row_id"].(string)
	if !drafts.IsDraftRowID(draftRowID) {
		t.Fatalf("expected a draft row id, got %q", draftRowID)
	}

	updated := server.do(t, http.MethodPost, "/drafts/cells", gin.H{
		"table_key":    tableKey,
		"draft_row_id": draftRowID,
		"column_key":   "title",
		"value":        "Hello",
	})
	if updated.Code != http.StatusNoContent {
		t.Fatalf("unexpected update status %d", updated.Code)
	}

	state := server.do(t, http.MethodGet, "/drafts/state?table_key="+tableKey, nil)
	if state.Code != http.StatusOK {
		t.Fatalf("unexpected state status %d", state.Code)
	}
	stateBody := decodeBody(t, state)
	rows, _ := stateBody["rows"].(map[string]interface{})
	if len(rows) != 1 {
		t.Fatalf("expected one staged row, got %s", state.Body.String())
	}

	submitted := server.do(t, http.MethodPost, "/drafts/submit", gin.H{
		"table_key":     tableKey,
		"draft_row_ids": []string{draftRowID},
	})
	if submitted.Code != http.StatusOK {
		t.Fatalf("unexpected submit status %d: %s", submitted.Code, submitted.Body.String())
	}
	submitBody := decodeBody(t, submitted)
	if submitBody["success"] != float64(1) || submitBody["failed"] != float64(0) {
		t.Fatalf("unexpected submit tally %s", submitted.Body.String())
	}
	if submitBody["clear_selection"] != true {
		t.Fatalf("a fully successful batch should clear the selection")
	}

	if len(server.creator.payloads) != 1 {
		t.Fatalf("creator should see one row, got %d", len(server.creator.payloads))
	}
	payload := server.creator.payloads[0]
	if len(payload) != 1 || payload["title"] != "Hello" {
		t.Fatalf("payload should carry only the edited cell, got %#v", payload)
	}

	if _, ok := server.store.Table(drafts.TableKey(tableKey)); ok {
		t.Fatalf("submitting the last row should drop the table state")
	}
}

func TestSubmitWithoutSubmitter(t *testing.T) {
	server := newTestServer(t, nil)
	recorder := server.do(t, http.MethodPost, "/drafts/submit", gin.H{
		"table_key":     "dashboard::db1::posts",
		"draft_row_ids": []string{"draft:0001"},
	})
	if recorder.Code != http.StatusServiceUnavailable {
		t.Fatalf("missing submitter should yield 503, got %d", recorder.Code)
	}
	if decodeBody(t, recorder)["error"] != "submission_unavailable" {
		t.Fatalf("unexpected error body %s", recorder.Body.String())
	}
}

func TestSubmitRejectsEmptySelection(t *testing.T) {
	server := newTestServer(t, postsMetaProvider())
	recorder := server.do(t, http.MethodPost, "/drafts/submit", gin.H{
		"table_key":     "dashboard::db1::posts",
		"draft_row_ids": []string{},
	})
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("empty selections should be rejected, got %d", recorder.Code)
	}
}

func TestSyncEndpointRebuildsAgainstFreshMetadata(t *testing.T) {
	provider := postsMetaProvider()
	server := newTestServer(t, provider)
	tableKey := "dashboard::db1::posts"

	created := server.do(t, http.MethodPost, "/drafts/rows", gin.H{"table_key": tableKey})
	if created.Code != http.StatusCreated {
		t.Fatalf("unexpected create status %d", created.Code)
	}

	next := provider.snapshots["posts"]
	next.ColumnOrder = []string{"title"}
	next.Fields = map[string]meta.FieldType{"title": {PgType: "text"}}
	next.Relations = nil
	next.Version = meta.ComputeVersion(next.ColumnOrder, next.Fields, nil)
	provider.snapshots["posts"] = next

	synced := server.do(t, http.MethodPost, "/drafts/sync", gin.H{"table_key": tableKey})
	if synced.Code != http.StatusOK {
		t.Fatalf("unexpected sync status %d", synced.Code)
	}
	if decodeBody(t, synced)["meta_version"] != next.Version {
		t.Fatalf("sync should report the fresh version, got %s", synced.Body.String())
	}

	state, ok := server.store.Table(drafts.TableKey(tableKey))
	if !ok {
		t.Fatalf("table state should survive the sync")
	}
	if state.MetaVersion != next.Version {
		t.Fatalf("stored state should adopt the fresh version, got %q", state.MetaVersion)
	}
	row := state.Rows[state.Order[0]]
	if _, stale := row.Values["author_id"]; stale {
		t.Fatalf("dropped columns should leave reconciled rows, got %#v", row.Values)
	}
}

func TestClearEndpoints(t *testing.T) {
	server := newTestServer(t, postsMetaProvider())
	tableKey := "dashboard::db1::posts"
	server.do(t, http.MethodPost, "/drafts/rows", gin.H{"table_key": tableKey})

	cleared := server.do(t, http.MethodDelete, "/drafts/tables?table_key="+tableKey, nil)
	if cleared.Code != http.StatusNoContent {
		t.Fatalf("unexpected clear status %d", cleared.Code)
	}
	if _, ok := server.store.Table(drafts.TableKey(tableKey)); ok {
		t.Fatalf("clearing the table should drop its state")
	}

	server.do(t, http.MethodPost, "/drafts/rows", gin.H{"table_key": tableKey})
	if code := server.do(t, http.MethodDelete, "/drafts/databases/db1", nil).Code; code != http.StatusNoContent {
		t.Fatalf("unexpected database clear status %d", code)
	}
	if _, ok := server.store.Table(drafts.TableKey(tableKey)); ok {
		t.Fatalf("clearing the database should drop its tables")
	}

	server.do(t, http.MethodPost, "/drafts/rows", gin.H{"table_key": tableKey})
	if code := server.do(t, http.MethodDelete, "/drafts", nil).Code; code != http.StatusNoContent {
		t.Fatalf("unexpected clear-all status %d", code)
	}
	if len(server.store.Snapshot()) != 0 {
		t.Fatalf("clear-all should empty the store")
	}
}
