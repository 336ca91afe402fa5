package server

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/griddeck/griddeck/internal/drafts"
	"github.com/griddeck/griddeck/internal/meta"
	"go.uber.org/zap"
)

var errMissingDraftStore = errors.New("draft store dependency required")

// Dependencies wires the HTTP surface to the draft core. Metadata and
// Submitter are optional: a server without a Postgres connection still
// serves the in-memory draft store, returning 503 for the endpoints that
// need the remote database.
type Dependencies struct {
	Store     *drafts.Store
	Submitter *drafts.Submitter
	Metadata  meta.Provider
	Progress  *ProgressDispatcher
	Logger    *zap.Logger
}

// NewHTTPHandler builds the console API router.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Store == nil {
		return nil, errMissingDraftStore
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	progress := deps.Progress
	if progress == nil {
		progress = NewProgressDispatcher()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		store:     deps.Store,
		submitter: deps.Submitter,
		metadata:  deps.Metadata,
		progress:  progress,
		logger:    logger,
	}

	router.GET("/healthz", handler.handleHealth)
	router.GET("/drafts/state", handler.handleTableState)
	router.POST("/drafts/rows", handler.handleCreateRow)
	router.POST("/drafts/cells", handler.handleUpdateCell)
	router.DELETE("/drafts/rows", handler.handleRemoveRow)
	router.POST("/drafts/sync", handler.handleSync)
	router.POST("/drafts/submit", handler.handleSubmit)
	router.POST("/drafts/submit-row", handler.handleSubmitRow)
	router.DELETE("/drafts/tables", handler.handleClearTable)
	router.DELETE("/drafts/databases/:databaseID", handler.handleClearDatabase)
	router.DELETE("/drafts", handler.handleClearAll)
	router.GET("/drafts/events", handler.handleEvents)

	return router, nil
}

type httpHandler struct {
	store     *drafts.Store
	submitter *drafts.Submitter
	metadata  meta.Provider
	progress  *ProgressDispatcher
	logger    *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type tableKeyPayload struct {
	TableKey string `json:"table_key"`
}

// requireTableMeta parses the table key, fetches fresh metadata for its
// table, and reconciles staged drafts against it. Every metadata-dependent
// endpoint funnels through here so drafts never outlive a schema change
// unreconciled.
func (h *httpHandler) requireTableMeta(c *gin.Context, rawKey string) (drafts.TableKey, meta.TableMeta, bool) {
	tableKey := drafts.TableKey(rawKey)
	parsed, ok := drafts.ParseTableKey(tableKey)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_table_key"})
		return "", meta.TableMeta{}, false
	}
	if h.metadata == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "metadata_unavailable"})
		return "", meta.TableMeta{}, false
	}

	snapshot, err := h.metadata.TableMeta(c.Request.Context(), parsed.TableName)
	if err != nil {
		h.logger.Error("table metadata fetch failed",
			zap.String("table", parsed.TableName), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "metadata_fetch_failed"})
		return "", meta.TableMeta{}, false
	}

	h.store.SyncWithMeta(drafts.SyncParams{
		TableKey:    tableKey,
		ColumnOrder: snapshot.ColumnOrder,
		Fields:      snapshot.Fields,
		Relations:   snapshot.Relations,
		MetaVersion: snapshot.Version,
	})
	return tableKey, snapshot, true
}

func (h *httpHandler) handleTableState(c *gin.Context) {
	tableKey := drafts.TableKey(c.Query("table_key"))
	if _, ok := drafts.ParseTableKey(tableKey); !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_table_key"})
		return
	}
	state, ok := h.store.Table(tableKey)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"order": []string{}, "rows": gin.H{}})
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h *httpHandler) handleCreateRow(c *gin.Context) {
	var request tableKeyPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	tableKey, snapshot, ok := h.requireTableMeta(c, request.TableKey)
	if !ok {
		return
	}

	draftRowID, err := h.store.CreateDraftRow(drafts.CreateParams{
		TableKey:    tableKey,
		ColumnOrder: snapshot.ColumnOrder,
		Fields:      snapshot.Fields,
		Relations:   snapshot.Relations,
		MetaVersion: snapshot.Version,
	})
	if err != nil {
		h.logger.Error("draft row creation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create_failed"})
		return
	}

	row, _ := h.store.Row(tableKey, draftRowID)
	c.JSON(http.StatusCreated, gin.H{"draft_row_id": draftRowID, "row": row})
}

type updateCellPayload struct {
	TableKey    string                 `json:"table_key"`
	DraftRowID  string                 `json:"draft_row_id"`
	ColumnKey   string                 `json:"column_key"`
	Value       interface{}            `json:"value"`
	ExtraValues map[string]interface{} `json:"extra_values"`
}

func (h *httpHandler) handleUpdateCell(c *gin.Context) {
	var request updateCellPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.DraftRowID == "" || request.ColumnKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	h.store.UpdateDraftCell(drafts.UpdateCellParams{
		TableKey:    drafts.TableKey(request.TableKey),
		DraftRowID:  request.DraftRowID,
		ColumnKey:   request.ColumnKey,
		Value:       request.Value,
		ExtraValues: request.ExtraValues,
	})
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleRemoveRow(c *gin.Context) {
	tableKey := drafts.TableKey(c.Query("table_key"))
	draftRowID := c.Query("draft_row_id")
	if draftRowID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	h.store.RemoveDraftRow(tableKey, draftRowID)
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleSync(c *gin.Context) {
	var request tableKeyPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	_, snapshot, ok := h.requireTableMeta(c, request.TableKey)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"meta_version": snapshot.Version,
		"column_order": snapshot.ColumnOrder,
	})
}

type submitPayload struct {
	TableKey    string   `json:"table_key"`
	DraftRowIDs []string `json:"draft_row_ids"`
}

func (h *httpHandler) handleSubmit(c *gin.Context) {
	var request submitPayload
	if err := c.ShouldBindJSON(&request); err != nil || len(request.DraftRowIDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if h.submitter == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "submission_unavailable"})
		return
	}
	tableKey, snapshot, ok := h.requireTableMeta(c, request.TableKey)
	if !ok {
		return
	}

	entries := make([]drafts.SubmitEntry, 0, len(request.DraftRowIDs))
	for _, draftRowID := range request.DraftRowIDs {
		entries = append(entries, drafts.SubmitEntry{
			TableKey:   tableKey,
			DraftRowID: draftRowID,
			Relations:  snapshot.Relations,
		})
	}

	tally, clearSelection := h.submitter.SubmitSelected(c.Request.Context(), entries)
	c.JSON(http.StatusOK, gin.H{
		"success":         tally.Success,
		"failed":          tally.Failed,
		"clear_selection": clearSelection,
	})
}

type submitRowPayload struct {
	TableKey   string `json:"table_key"`
	DraftRowID string `json:"draft_row_id"`
}

func (h *httpHandler) handleSubmitRow(c *gin.Context) {
	var request submitRowPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.DraftRowID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if h.submitter == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "submission_unavailable"})
		return
	}
	tableKey, snapshot, ok := h.requireTableMeta(c, request.TableKey)
	if !ok {
		return
	}

	tally := h.submitter.SubmitSingle(c.Request.Context(), drafts.SubmitEntry{
		TableKey:   tableKey,
		DraftRowID: request.DraftRowID,
		Relations:  snapshot.Relations,
	})
	c.JSON(http.StatusOK, gin.H{"success": tally.Success, "failed": tally.Failed})
}

func (h *httpHandler) handleClearTable(c *gin.Context) {
	tableKey := drafts.TableKey(c.Query("table_key"))
	if _, ok := drafts.ParseTableKey(tableKey); !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_table_key"})
		return
	}
	h.store.ClearTable(tableKey)
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleClearDatabase(c *gin.Context) {
	h.store.ClearDatabase(c.Param("databaseID"))
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleClearAll(c *gin.Context) {
	h.store.ClearAll()
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleEvents(c *gin.Context) {
	stream, cleanup := h.progress.Subscribe(c.Request.Context())
	defer cleanup()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(event.EventType, event)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
