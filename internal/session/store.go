package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/griddeck/griddeck/internal/drafts"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var errMissingDatabase = errors.New("session: database handle is required")

// Snapshot persists the serialized draft state for one console context so an
// editing session can be restored after a reload.
type Snapshot struct {
	ContextKey       string `gorm:"column:context_key;primaryKey;size:190;not null"`
	PayloadJSON      string `gorm:"column:payload_json;type:text;not null"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Snapshot) TableName() string {
	return "draft_snapshots"
}

// StoreConfig describes the dependencies of the snapshot store.
type StoreConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Store saves and restores whole draft-state snapshots. Persistence failures
// are swallowed at this boundary: the draft core never depends on a snapshot
// surviving, so a failed save logs and moves on and a failed load restores an
// empty session.
type Store struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewStore constructs the snapshot store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: cfg.Database, clock: clock, logger: logger}, nil
}

// Save serializes the per-table draft state verbatim and upserts it under
// the context key.
func (s *Store) Save(ctx context.Context, contextKey string, tables map[drafts.TableKey]*drafts.TableState) {
	if contextKey == "" {
		return
	}

	payload, err := json.Marshal(tables)
	if err != nil {
		s.logger.Warn("draft snapshot serialization failed",
			zap.String("context_key", contextKey), zap.Error(err))
		return
	}

	record := Snapshot{
		ContextKey:       contextKey,
		PayloadJSON:      string(payload),
		UpdatedAtSeconds: s.clock().UTC().Unix(),
	}
	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&record).Error
	if err != nil {
		s.logger.Warn("draft snapshot save failed",
			zap.String("context_key", contextKey), zap.Error(err))
	}
}

// Load restores the draft state saved under the context key. Missing or
// unreadable snapshots yield an empty state rather than an error.
func (s *Store) Load(ctx context.Context, contextKey string) map[drafts.TableKey]*drafts.TableState {
	empty := map[drafts.TableKey]*drafts.TableState{}
	if contextKey == "" {
		return empty
	}

	var record Snapshot
	err := s.db.WithContext(ctx).
		Where("context_key = ?", contextKey).
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return empty
	}
	if err != nil {
		s.logger.Warn("draft snapshot load failed",
			zap.String("context_key", contextKey), zap.Error(err))
		return empty
	}

	var tables map[drafts.TableKey]*drafts.TableState
	if err := json.Unmarshal([]byte(record.PayloadJSON), &tables); err != nil {
		s.logger.Warn("draft snapshot payload unreadable",
			zap.String("context_key", contextKey), zap.Error(err))
		return empty
	}
	if tables == nil {
		return empty
	}
	return tables
}
