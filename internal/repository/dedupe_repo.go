package repository

import (
	"context"
	"errors"
	"time"

	"github.com/timmy/jobtide/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DedupeRepository persists deduplication cache entries.
type DedupeRepository struct {
	db *gorm.DB
}

// NewDedupeRepository creates a new DedupeRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *DedupeRepository: repository instance bound to db.
func NewDedupeRepository(db *gorm.DB) *DedupeRepository {
	return &DedupeRepository{db: db}
}

// Get retrieves the entry for a fingerprint.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - fingerprint: normalized-URL fingerprint.
// Returns:
//   - *domain.DedupeEntry: entry if present, nil when unknown.
//   - error: non-nil if lookup fails.
func (r *DedupeRepository) Get(ctx context.Context, fingerprint string) (*domain.DedupeEntry, error) {
	var entry domain.DedupeEntry
	err := r.db.WithContext(ctx).First(&entry, "fingerprint = ?", fingerprint).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// Insert records a fingerprint if it is not already present. Concurrent
// inserts of the same fingerprint converge: exactly one caller wins.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - entry: entry to persist.
// Returns:
//   - bool: true when this call created the row.
//   - error: non-nil if the insert fails.
func (r *DedupeRepository) Insert(ctx context.Context, entry *domain.DedupeEntry) (bool, error) {
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "fingerprint"}},
		DoNothing: true,
	}).Create(entry)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ListSince retrieves entries first seen at or after the given time,
// the candidate set for fuzzy matching.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - since: inclusive lower bound on first-seen time.
// Returns:
//   - []domain.DedupeEntry: matching entries.
//   - error: non-nil if the query fails.
func (r *DedupeRepository) ListSince(ctx context.Context, since time.Time) ([]domain.DedupeEntry, error) {
	var entries []domain.DedupeEntry
	if err := r.db.WithContext(ctx).
		Where("first_seen_at >= ?", since).
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// SetApplied updates the applied flag for a fingerprint.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - fingerprint: normalized-URL fingerprint.
//   - applied: new flag value.
// Returns:
//   - error: domain.ErrFingerprintUnknown if no row matches, or the
//     underlying database error.
func (r *DedupeRepository) SetApplied(ctx context.Context, fingerprint string, applied bool) error {
	result := r.db.WithContext(ctx).
		Model(&domain.DedupeEntry{}).
		Where("fingerprint = ?", fingerprint).
		Update("applied", applied)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrFingerprintUnknown
	}
	return nil
}

// PurgeBefore deletes entries first seen before the cutoff. Entries
// flagged as applied are kept so application history survives the
// retention window.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - cutoff: exclusive upper bound on first-seen time.
// Returns:
//   - int64: number of deleted rows.
//   - error: non-nil if the delete fails.
func (r *DedupeRepository) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("first_seen_at < ? AND applied = ?", cutoff, false).
		Delete(&domain.DedupeEntry{})
	return result.RowsAffected, result.Error
}
