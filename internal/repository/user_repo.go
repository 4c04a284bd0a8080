package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/datenight/internal/db"
	svcErr "github.com/oggyb/datenight/internal/errors"
)

// UserRepository provides data access for the User model. Every state
// write is conditional on the current state so concurrent handlers can
// never race a user into an invalid transition.
type UserRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new repository bound to the given DB connection.
func NewUserRepository(database *gorm.DB) *UserRepository {
	return &UserRepository{db: database}
}

// Create inserts a user with the platform-assigned id. Idempotent:
// re-registering an existing id leaves the row untouched.
func (r *UserRepository) Create(ctx context.Context, userID uint64, username string) error {
	user := db.User{
		UserID:   userID,
		Username: username,
		State:    db.StateNew,
	}
	return svcErr.Map(r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&user).Error)
}

// Get returns a user by id.
func (r *UserRepository) Get(ctx context.Context, userID uint64) (*db.User, error) {
	var user db.User
	if err := r.db.WithContext(ctx).First(&user, "user_id = ?", userID).Error; err != nil {
		return nil, svcErr.Map(err)
	}
	return &user, nil
}

// UpdateProfile writes the onboarding fields and moves the user to IDLE.
// Coordinates may be nil when geo resolution degraded.
// The write is conditional on the user being in ONBOARDING or IDLE.
func (r *UserRepository) UpdateProfile(
	ctx context.Context,
	userID uint64,
	age int,
	gender, preference, city string,
	lat, lon *float64,
) error {
	res := r.db.WithContext(ctx).Model(&db.User{}).
		Where("user_id = ? AND state IN ?", userID, []db.UserState{db.StateOnboarding, db.StateIdle}).
		Updates(map[string]any{
			"age":        age,
			"gender":     gender,
			"preference": preference,
			"city":       city,
			"latitude":   lat,
			"longitude":  lon,
			"state":      db.StateIdle,
		})
	if res.Error != nil {
		return svcErr.Map(res.Error)
	}
	if res.RowsAffected == 0 {
		return svcErr.Validation("user %d cannot update profile in current state", userID)
	}
	return nil
}

// Transition atomically moves a user from one state to another.
// Returns false without error when the user was no longer in `from`
// (somebody else won the race); the caller decides what that means.
func (r *UserRepository) Transition(ctx context.Context, userID uint64, from, to db.UserState) (bool, error) {
	if !from.CanTransition(to) {
		return false, svcErr.Integrity("illegal state transition %s -> %s for user %d", from, to, userID)
	}

	updates := map[string]any{"state": to}
	switch {
	case to == db.StateSearching:
		updates["search_start_time"] = time.Now().UTC()
	case from == db.StateSearching:
		updates["search_start_time"] = nil
	}

	res := r.db.WithContext(ctx).Model(&db.User{}).
		Where("user_id = ? AND state = ?", userID, from).
		Updates(updates)
	if res.Error != nil {
		return false, svcErr.Map(res.Error)
	}
	return res.RowsAffected == 1, nil
}

// SetAdminBlock flips the administrative block flag. Blocking also moves
// the user to BLOCKED; unblocking parks them in IDLE.
func (r *UserRepository) SetAdminBlock(ctx context.Context, userID uint64, blocked bool) error {
	state := db.StateBlocked
	if !blocked {
		state = db.StateIdle
	}
	res := r.db.WithContext(ctx).Model(&db.User{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"is_blocked":        blocked,
			"state":             state,
			"search_start_time": nil,
		})
	if res.Error != nil {
		return svcErr.Map(res.Error)
	}
	if res.RowsAffected == 0 {
		return svcErr.NotFound("user %d", userID)
	}
	return nil
}

// DowngradePremium clears the premium fields once the window has passed.
// Conditional on the expiry still being in the past so a concurrent
// activation is never clobbered.
func (r *UserRepository) DowngradePremium(ctx context.Context, userID uint64, now time.Time) error {
	return svcErr.Map(r.db.WithContext(ctx).Model(&db.User{}).
		Where("user_id = ? AND is_premium = ? AND (premium_expires_at IS NULL OR premium_expires_at <= ?)",
			userID, true, now).
		Updates(map[string]any{
			"is_premium":         false,
			"premium_plan":       nil,
			"premium_expires_at": nil,
		}).Error)
}
