package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/datenight/internal/db"
	svcErr "github.com/oggyb/datenight/internal/errors"
)

// MatchRepository provides data access for matches and their messages.
// Allocate is the concurrency-critical path: it performs the conditional
// two-user claim that upholds the one-open-match-per-user invariant.
type MatchRepository struct {
	db *gorm.DB
}

// NewMatchRepository creates a new repository bound to the given DB connection.
func NewMatchRepository(database *gorm.DB) *MatchRepository {
	return &MatchRepository{db: database}
}

// FindCandidates returns users eligible to be matched with the seeker:
// currently SEARCHING, not the seeker, mutually preference-compatible,
// no block edge in either direction, never matched with the seeker
// before, and not admin-blocked. excluded holds candidates already tried
// during this search request.
//
// Ordering here is only the coarse search_start_time order; the service
// layer ranks by proximity on top of this snapshot.
func (r *MatchRepository) FindCandidates(ctx context.Context, seeker *db.User, excluded []uint64) ([]db.User, error) {
	q := r.db.WithContext(ctx).Model(&db.User{}).
		Where("user_id <> ?", seeker.UserID).
		Where("state = ?", db.StateSearching).
		Where("is_blocked = ?", false).
		// candidate accepts the seeker's gender
		Where("(preference = ? OR preference = ?)", seeker.Gender, db.PrefAny).
		// no block edge in either direction
		Where(`user_id NOT IN (
			SELECT blocked_id FROM blocked_pairs WHERE blocker_id = ?
			UNION
			SELECT blocker_id FROM blocked_pairs WHERE blocked_id = ?)`,
			seeker.UserID, seeker.UserID).
		// pairs that have ever matched are permanently excluded
		Where(`user_id NOT IN (
			SELECT user_high_id FROM matches WHERE user_low_id = ?
			UNION
			SELECT user_low_id FROM matches WHERE user_high_id = ?)`,
			seeker.UserID, seeker.UserID)

	// the seeker accepts the candidate's gender
	if seeker.Preference != db.PrefAny {
		q = q.Where("gender = ?", seeker.Preference)
	}

	if len(excluded) > 0 {
		q = q.Where("user_id NOT IN ?", excluded)
	}

	var candidates []db.User
	if err := q.Order("search_start_time ASC, user_id ASC").Find(&candidates).Error; err != nil {
		return nil, svcErr.Map(err)
	}
	return candidates, nil
}

// Allocate atomically transitions both users from SEARCHING to MATCHED,
// charges quota for each party without an active premium window, and
// inserts the match row. All-or-nothing: if either user was claimed by a
// concurrent allocation in the interim, the whole transaction rolls back
// with ErrAllocationConflict and nothing is charged.
func (r *MatchRepository) Allocate(ctx context.Context, seekerID, candidateID uint64, now time.Time) (*db.Match, error) {
	if seekerID == candidateID {
		return nil, svcErr.Integrity("cannot match user %d with themselves", seekerID)
	}

	low, high := db.NormalizePair(seekerID, candidateID)
	match := &db.Match{UserLowID: low, UserHighID: high, StartedAt: now}
	pair := []uint64{seekerID, candidateID}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// claim both users in one conditional statement; anything other
		// than exactly two rows means a concurrent allocation got there first
		res := tx.Model(&db.User{}).
			Where("user_id IN ? AND state = ? AND is_blocked = ?", pair, db.StateSearching, false).
			Updates(map[string]any{
				"state":             db.StateMatched,
				"search_start_time": nil,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 2 {
			return svcErr.ErrAllocationConflict
		}

		// each non-premium party consumes one unit of their own quota
		if err := tx.Model(&db.User{}).
			Where("user_id IN ? AND (is_premium = ? OR premium_expires_at IS NULL OR premium_expires_at <= ?)",
				pair, false, now).
			UpdateColumn("free_matches_used", gorm.Expr("free_matches_used + 1")).Error; err != nil {
			return err
		}

		if err := tx.Omit(clause.Associations).Create(match).Error; err != nil {
			if svcErr.IsDuplicateKey(err) {
				return svcErr.Integrity("match pair (%d,%d) already exists", low, high)
			}
			return err
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, svcErr.ErrAllocationConflict) || errors.Is(err, svcErr.ErrIntegrity) {
			return nil, err
		}
		return nil, svcErr.Map(err)
	}
	return match, nil
}

// HasMatched reports whether the user was ever party to a match,
// open or ended.
func (r *MatchRepository) HasMatched(ctx context.Context, userID uint64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&db.Match{}).
		Where("user_low_id = ? OR user_high_id = ?", userID, userID).
		Count(&count).Error
	if err != nil {
		return false, svcErr.Map(err)
	}
	return count > 0, nil
}

// Get returns a match by id.
func (r *MatchRepository) Get(ctx context.Context, matchID uint64) (*db.Match, error) {
	var match db.Match
	if err := r.db.WithContext(ctx).First(&match, "match_id = ?", matchID).Error; err != nil {
		return nil, svcErr.Map(err)
	}
	return &match, nil
}

// OpenMatchFor returns the user's open match, or nil when there is none.
func (r *MatchRepository) OpenMatchFor(ctx context.Context, userID uint64) (*db.Match, error) {
	var match db.Match
	err := r.db.WithContext(ctx).
		Where("(user_low_id = ? OR user_high_id = ?) AND ended_at IS NULL", userID, userID).
		First(&match).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return &match, nil
}

// End closes an open match and frees both parties from MATCHED.
// Conditional on the match still being open; a second end attempt
// returns ErrNotFound since ended matches are permanent.
func (r *MatchRepository) End(ctx context.Context, matchID, endedBy uint64, now time.Time) (*db.Match, error) {
	var match db.Match
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&match, "match_id = ?", matchID).Error; err != nil {
			return err
		}

		res := tx.Model(&db.Match{}).
			Where("match_id = ? AND ended_at IS NULL", matchID).
			Updates(map[string]any{"ended_at": now, "ended_by": endedBy})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return svcErr.NotFound("match %d is not open", matchID)
		}

		// free both users; a party moved to BLOCKED meanwhile stays there
		if err := tx.Model(&db.User{}).
			Where("user_id IN ? AND state = ?",
				[]uint64{match.UserLowID, match.UserHighID}, db.StateMatched).
			Update("state", db.StateIdle).Error; err != nil {
			return err
		}

		match.EndedAt = &now
		match.EndedBy = &endedBy
		return nil
	})
	if err != nil {
		if errors.Is(err, svcErr.ErrNotFound) {
			return nil, err
		}
		return nil, svcErr.Map(err)
	}
	return &match, nil
}

// CreateMessage appends a message to a match.
func (r *MatchRepository) CreateMessage(ctx context.Context, matchID, senderID uint64, content string) (*db.Message, error) {
	msg := db.Message{MatchID: matchID, SenderID: senderID, Content: content}
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(&msg).Error; err != nil {
		return nil, svcErr.Map(err)
	}
	return &msg, nil
}

// ListMessages returns a match's messages in send order.
func (r *MatchRepository) ListMessages(ctx context.Context, matchID uint64) ([]db.Message, error) {
	var messages []db.Message
	err := r.db.WithContext(ctx).
		Where("match_id = ?", matchID).
		Order("created_at ASC, message_id ASC").
		Find(&messages).Error
	if err != nil {
		return nil, svcErr.Map(err)
	}
	return messages, nil
}
