package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/datenight/internal/db"
	svcErr "github.com/oggyb/datenight/internal/errors"
)

// BlockRepository provides data access for block edges and reports.
type BlockRepository struct {
	db *gorm.DB
}

// NewBlockRepository creates a new repository bound to the given DB connection.
func NewBlockRepository(database *gorm.DB) *BlockRepository {
	return &BlockRepository{db: database}
}

// CreateBlock inserts a directed block edge. A duplicate edge is an
// integrity violation, surfaced rather than swallowed.
func (r *BlockRepository) CreateBlock(ctx context.Context, blockerID, blockedID uint64, reason string) error {
	edge := db.BlockedPair{BlockerID: blockerID, BlockedID: blockedID, Reason: reason}
	err := r.db.WithContext(ctx).Omit(clause.Associations).Create(&edge).Error
	if err != nil {
		if svcErr.IsDuplicateKey(err) {
			return svcErr.Integrity("block edge %d -> %d already exists", blockerID, blockedID)
		}
		return svcErr.Map(err)
	}
	return nil
}

// BlockedEitherWay reports whether a block edge exists in either
// direction between two users.
func (r *BlockRepository) BlockedEitherWay(ctx context.Context, a, b uint64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&db.BlockedPair{}).
		Where("(blocker_id = ? AND blocked_id = ?) OR (blocker_id = ? AND blocked_id = ?)",
			a, b, b, a).
		Count(&count).Error
	if err != nil {
		return false, svcErr.Map(err)
	}
	return count > 0, nil
}

// CreateReport appends a moderation record. Reports never change
// matching state.
func (r *BlockRepository) CreateReport(ctx context.Context, reporterID, reportedID uint64, reason string) (*db.Report, error) {
	report := db.Report{ReporterID: reporterID, ReportedID: reportedID, Reason: reason}
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(&report).Error; err != nil {
		return nil, svcErr.Map(err)
	}
	return &report, nil
}
