package repository

import (
	"context"

	"github.com/timmy/jobtide/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SourceRepository persists per-source registry rows: the operator
// enabled flag plus the last written health snapshot.
type SourceRepository struct {
	db *gorm.DB
}

// NewSourceRepository creates a new SourceRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *SourceRepository: repository instance bound to db.
func NewSourceRepository(db *gorm.DB) *SourceRepository {
	return &SourceRepository{db: db}
}

// SaveHealth writes a source's health snapshot as a whole-row upsert.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - sourceID: source identifier.
//   - status: snapshot to persist.
// Returns:
//   - error: non-nil if the upsert fails.
func (r *SourceRepository) SaveHealth(ctx context.Context, sourceID string, status domain.HealthStatus) error {
	row := domain.SourceRecord{
		SourceID:            sourceID,
		Enabled:             true,
		ConsecutiveFailures: status.ConsecutiveFailures,
		LastStatus:          status.Availability,
		LastErrorClass:      status.LastErrorClass,
		LastSuccessAt:       status.LastSuccessAt,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "source_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"consecutive_failures", "last_status", "last_error_class",
			"last_success_at", "updated_at",
		}),
	}).Create(&row).Error
}

// SaveEnabled stores the operator override for a source.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - sourceID: source identifier.
//   - enabled: whether the source participates in collections.
// Returns:
//   - error: non-nil if the upsert fails.
func (r *SourceRepository) SaveEnabled(ctx context.Context, sourceID string, enabled bool) error {
	row := domain.SourceRecord{
		SourceID:   sourceID,
		Enabled:    enabled,
		LastStatus: domain.AvailabilityAvailable,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "source_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"enabled", "updated_at"}),
	}).Create(&row).Error
}

// GetAll retrieves every persisted source row, used to rehydrate the
// registries on startup.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - []domain.SourceRecord: all rows.
//   - error: non-nil if the query fails.
func (r *SourceRepository) GetAll(ctx context.Context) ([]domain.SourceRecord, error) {
	var rows []domain.SourceRecord
	if err := r.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
