package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/datenight/internal/db"
	svcErr "github.com/oggyb/datenight/internal/errors"
)

// PremiumRepository provides data access for premium activation and the
// immutable transaction ledger.
type PremiumRepository struct {
	db *gorm.DB
}

// NewPremiumRepository creates a new repository bound to the given DB connection.
func NewPremiumRepository(database *gorm.DB) *PremiumRepository {
	return &PremiumRepository{db: database}
}

// Activate applies a confirmed purchase: one immutable transaction row
// plus the projection onto the user's premium fields, in a single
// transaction. The new window stacks onto remaining time:
// expiry = max(now, current expiry) + duration.
func (r *PremiumRepository) Activate(
	ctx context.Context,
	userID uint64,
	planName string,
	starsCost, durationDays int,
	paymentRef *string,
	now time.Time,
) (time.Time, error) {
	var expiresAt time.Time

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user db.User
		if err := tx.First(&user, "user_id = ?", userID).Error; err != nil {
			return err
		}

		base := now
		if user.PremiumExpiresAt != nil && user.PremiumExpiresAt.After(now) {
			base = *user.PremiumExpiresAt
		}
		expiresAt = base.AddDate(0, 0, durationDays)

		record := db.PremiumTransaction{
			UserID:       userID,
			PlanName:     planName,
			StarsCost:    starsCost,
			DurationDays: durationDays,
			PaymentRef:   paymentRef,
		}
		if err := tx.Omit(clause.Associations).Create(&record).Error; err != nil {
			return err
		}

		return tx.Model(&db.User{}).
			Where("user_id = ?", userID).
			Updates(map[string]any{
				"is_premium":         true,
				"premium_plan":       planName,
				"premium_expires_at": expiresAt,
			}).Error
	})
	if err != nil {
		return time.Time{}, svcErr.Map(err)
	}
	return expiresAt, nil
}

// Transactions returns a user's purchase history, newest first.
func (r *PremiumRepository) Transactions(ctx context.Context, userID uint64) ([]db.PremiumTransaction, error) {
	var records []db.PremiumTransaction
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, transaction_id DESC").
		Find(&records).Error
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return records, nil
}
