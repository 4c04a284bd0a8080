package matching_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/oggyb/datenight/internal/app"
	"github.com/oggyb/datenight/internal/cache"
	"github.com/oggyb/datenight/internal/config"
	"github.com/oggyb/datenight/internal/db"
	svcErr "github.com/oggyb/datenight/internal/errors"
	"github.com/oggyb/datenight/internal/geo"
	"github.com/oggyb/datenight/internal/repository"
	"github.com/oggyb/datenight/internal/service/matching"
)

//
// Test helpers
//

// recordingNotifier captures emitted lifecycle events for assertions.
type recordingNotifier struct {
	mu            sync.Mutex
	created       []uint64 // match ids
	ended         []uint64 // match ids
	quotaExceeded []uint64 // user ids
	reports       int
}

func (n *recordingNotifier) MatchCreated(_ context.Context, matchID, _, _ uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.created = append(n.created, matchID)
}

func (n *recordingNotifier) MatchEnded(_ context.Context, matchID, _ uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ended = append(n.ended, matchID)
}

func (n *recordingNotifier) QuotaExceeded(_ context.Context, userID uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.quotaExceeded = append(n.quotaExceeded, userID)
}

func (n *recordingNotifier) PremiumActivated(_ context.Context, _ uint64, _ time.Time) {}

func (n *recordingNotifier) ReportFiled(_ context.Context, _, _ uint64, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reports++
}

// setupService spins up an in-memory SQLite DB, applies migrations,
// seeds the minimal dataset, starts a miniredis, and wires everything
// into a matching service. Each test gets its own isolated DB + Redis.
func setupService(t *testing.T) (*matching.Service, *gorm.DB, *recordingNotifier) {
	t.Helper()

	dbName := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	dbase, err := gorm.Open(sqlite.Open(dbName), &gorm.Config{
		NowFunc:                func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	sqlDB, err := dbase.DB()
	require.NoError(t, err)
	// a single connection keeps concurrent sqlite writers from tripping
	// over table locks; contention then exercises the conditional
	// transitions rather than the driver
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, dbase.AutoMigrate(db.Models()...))
	require.NoError(t, db.SeedMinimalTestData(dbase))

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(func() { mr.Close() })

	cfg := config.New()
	cfg.Redis.Addr = mr.Addr()

	redisCache := cache.NewRedisCache(cfg)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // discard logs in tests
	notifier := &recordingNotifier{}
	resolver := geo.NewResolver(dbase, redisCache, geo.NewStaticGeocoder())

	appCtx := app.New(cfg, dbase, redisCache, logger, resolver, notifier)
	return matching.NewService(appCtx), dbase, notifier
}

func getUser(t *testing.T, dbase *gorm.DB, id uint64) *db.User {
	t.Helper()
	var user db.User
	require.NoError(t, dbase.First(&user, "user_id = ?", id).Error)
	return &user
}

//
// Tests
//

// TestSearch_PairsCompatibleSameCityUsers covers the canonical scenario:
// two mutually compatible Bengaluru users both SEARCHING, a search by
// one yields a match containing both, both transition to MATCHED, and
// both free counters increment by one.
func TestSearch_PairsCompatibleSameCityUsers(t *testing.T) {
	ctx := context.Background()
	svc, dbase, notifier := setupService(t)

	result, err := svc.Search(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, result.Match)
	assert.Equal(t, uint64(2), result.Partner)
	assert.Equal(t, uint64(1), result.Match.UserLowID)
	assert.Equal(t, uint64(2), result.Match.UserHighID)

	for _, id := range []uint64{1, 2} {
		u := getUser(t, dbase, id)
		assert.Equal(t, db.StateMatched, u.State)
		assert.Equal(t, 1, u.FreeMatchesUsed)
	}

	// user 3 (male, seeking female) was never eligible and keeps waiting
	assert.Equal(t, db.StateSearching, getUser(t, dbase, 3).State)

	require.Len(t, notifier.created, 1)
	assert.Equal(t, result.Match.MatchID, notifier.created[0])
}

func TestSearch_NoCandidatesIsNotAnError(t *testing.T) {
	ctx := context.Background()
	svc, dbase, _ := setupService(t)

	// nobody compatible left for user 3
	require.NoError(t, dbase.Model(&db.User{}).
		Where("user_id = ?", 2).
		Update("state", db.StateIdle).Error)

	result, err := svc.Search(ctx, 3)
	require.NoError(t, err)
	assert.Nil(t, result.Match)

	// still parked in SEARCHING, waiting
	assert.Equal(t, db.StateSearching, getUser(t, dbase, 3).State)
}

func TestSearch_QuotaExceeded(t *testing.T) {
	ctx := context.Background()
	svc, dbase, notifier := setupService(t)

	require.NoError(t, dbase.Model(&db.User{}).
		Where("user_id = ?", 1).
		Update("free_matches_used", 2).Error)

	_, err := svc.Search(ctx, 1)
	assert.ErrorIs(t, err, svcErr.ErrQuotaExceeded)
	assert.Equal(t, []uint64{1}, notifier.quotaExceeded)

	// candidate availability is irrelevant: nothing was allocated
	assert.Equal(t, db.StateSearching, getUser(t, dbase, 2).State)
}

func TestSearch_PremiumBypassesQuota(t *testing.T) {
	ctx := context.Background()
	svc, dbase, _ := setupService(t)

	future := time.Now().UTC().Add(24 * time.Hour)
	require.NoError(t, dbase.Model(&db.User{}).
		Where("user_id = ?", 1).
		Updates(map[string]any{
			"free_matches_used":  5,
			"is_premium":         true,
			"premium_expires_at": future,
		}).Error)

	result, err := svc.Search(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, result.Match)

	// the premium seeker is not charged; the free partner is
	assert.Equal(t, 5, getUser(t, dbase, 1).FreeMatchesUsed)
	assert.Equal(t, 1, getUser(t, dbase, 2).FreeMatchesUsed)
}

// TestSearch_LazyDowngrade verifies that a lapsed premium window flips
// is_premium on the very next quota check and the free-tier rule then
// applies.
func TestSearch_LazyDowngrade(t *testing.T) {
	ctx := context.Background()
	svc, dbase, _ := setupService(t)

	past := time.Now().UTC().Add(-time.Hour)
	plan := "1 Month"
	require.NoError(t, dbase.Model(&db.User{}).
		Where("user_id = ?", 1).
		Updates(map[string]any{
			"is_premium":         true,
			"premium_plan":       plan,
			"premium_expires_at": past,
			"free_matches_used":  2,
		}).Error)

	_, err := svc.Search(ctx, 1)
	assert.ErrorIs(t, err, svcErr.ErrQuotaExceeded)

	u := getUser(t, dbase, 1)
	assert.False(t, u.IsPremium)
	assert.Nil(t, u.PremiumPlan)
	assert.Nil(t, u.PremiumExpiresAt)
}

func TestSearch_IncompleteProfileRejected(t *testing.T) {
	ctx := context.Background()
	svc, dbase, _ := setupService(t)

	require.NoError(t, dbase.Create(&db.User{UserID: 99, State: db.StateNew}).Error)

	_, err := svc.Search(ctx, 99)
	assert.ErrorIs(t, err, svcErr.ErrValidation)
}

// TestSearch_PermanentExclusion: a pair that has matched before never
// receives a second match row, even after the first one ended.
func TestSearch_PermanentExclusion(t *testing.T) {
	ctx := context.Background()
	svc, dbase, _ := setupService(t)

	first, err := svc.Search(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, first.Match)

	_, err = svc.EndMatch(ctx, first.Match.MatchID, 1)
	require.NoError(t, err)

	// both re-enter the pool
	users := repository.NewUserRepository(dbase)
	for _, id := range []uint64{1, 2} {
		moved, err := users.Transition(ctx, id, db.StateIdle, db.StateSearching)
		require.NoError(t, err)
		require.True(t, moved)
	}

	second, err := svc.Search(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, second.Match, "previously matched pair must never re-match")

	var count int64
	require.NoError(t, dbase.Model(&db.Match{}).
		Where("user_low_id = ? AND user_high_id = ?", 1, 2).
		Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

// TestSearch_RanksByProximityThenWaitTime pins the candidate ordering:
// nearest resolved candidate first, resolved candidates ahead of ones
// without coordinates regardless of wait time, unresolved candidates
// still matchable last.
func TestSearch_RanksByProximityThenWaitTime(t *testing.T) {
	ctx := context.Background()
	svc, dbase, _ := setupService(t)

	// park the seeded Bengaluru candidate; this test brings its own pool
	require.NoError(t, dbase.Model(&db.User{}).
		Where("user_id = ?", 2).
		Update("state", db.StateIdle).Error)

	// premium seeker so quota never cuts the sequence short
	future := time.Now().UTC().Add(24 * time.Hour)
	require.NoError(t, dbase.Model(&db.User{}).
		Where("user_id = ?", 1).
		Updates(map[string]any{"is_premium": true, "premium_expires_at": future}).Error)

	bengaluruLat, bengaluruLon := 12.9716, 77.5946
	mumbaiLat, mumbaiLon := 19.0760, 72.8777
	now := time.Now().UTC()
	recent := now.Add(-time.Minute)
	older := now.Add(-10 * time.Minute)
	oldest := now.Add(-20 * time.Minute)

	candidates := []db.User{
		{
			UserID: 11, Gender: db.GenderFemale, Preference: db.PrefMale,
			City: "Bengaluru", Latitude: &bengaluruLat, Longitude: &bengaluruLon,
			State: db.StateSearching, SearchStartTime: &recent,
		},
		{
			UserID: 12, Gender: db.GenderFemale, Preference: db.PrefMale,
			City: "Mumbai", Latitude: &mumbaiLat, Longitude: &mumbaiLon,
			State: db.StateSearching, SearchStartTime: &older,
		},
		{
			// city never resolved: no coordinates, longest wait
			UserID: 13, Gender: db.GenderFemale, Preference: db.PrefMale,
			City: "Atlantis",
			State: db.StateSearching, SearchStartTime: &oldest,
		},
	}
	require.NoError(t, dbase.Create(&candidates).Error)

	// same-city candidate wins despite the shortest wait
	result, err := svc.Search(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, result.Match)
	assert.Equal(t, uint64(11), result.Partner)

	_, err = svc.EndMatch(ctx, result.Match.MatchID, 1)
	require.NoError(t, err)

	// a resolved far candidate outranks an unresolved one that waited longer
	result, err = svc.Reconnect(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, result.Match)
	assert.Equal(t, uint64(12), result.Partner)

	_, err = svc.EndMatch(ctx, result.Match.MatchID, 1)
	require.NoError(t, err)

	// the unresolved candidate ranks last but stays matchable
	result, err = svc.Reconnect(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, result.Match)
	assert.Equal(t, uint64(13), result.Partner)
}

func TestReconnect(t *testing.T) {
	ctx := context.Background()
	svc, dbase, _ := setupService(t)

	// no match history yet
	_, err := svc.Reconnect(ctx, 1)
	assert.ErrorIs(t, err, svcErr.ErrValidation)

	result, err := svc.Search(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, result.Match)

	// still in an open match
	_, err = svc.Reconnect(ctx, 1)
	assert.ErrorIs(t, err, svcErr.ErrValidation)

	_, err = svc.EndMatch(ctx, result.Match.MatchID, 1)
	require.NoError(t, err)

	second, err := svc.Reconnect(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, second.Match, "only the excluded former partner was compatible")
	assert.Equal(t, db.StateSearching, getUser(t, dbase, 1).State)
}

func TestCancelSearch(t *testing.T) {
	ctx := context.Background()
	svc, dbase, _ := setupService(t)

	require.NoError(t, svc.CancelSearch(ctx, 3))
	assert.Equal(t, db.StateIdle, getUser(t, dbase, 3).State)

	// nothing left to cancel
	err := svc.CancelSearch(ctx, 3)
	assert.ErrorIs(t, err, svcErr.ErrValidation)
}

func TestEndMatch_VoluntaryEnd(t *testing.T) {
	ctx := context.Background()
	svc, dbase, notifier := setupService(t)

	result, err := svc.Search(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, result.Match)

	ended, err := svc.EndMatch(ctx, result.Match.MatchID, 2)
	require.NoError(t, err)
	require.NotNil(t, ended.EndedBy)
	assert.Equal(t, uint64(2), *ended.EndedBy)

	for _, id := range []uint64{1, 2} {
		assert.Equal(t, db.StateIdle, getUser(t, dbase, id).State)
	}
	assert.Contains(t, notifier.ended, result.Match.MatchID)

	// an outsider cannot end someone else's match
	other, err := svc.Search(ctx, 3)
	require.NoError(t, err)
	assert.Nil(t, other.Match)
	_, err = svc.EndMatch(ctx, result.Match.MatchID, 3)
	assert.ErrorIs(t, err, svcErr.ErrValidation)
}

// TestBlock_ForceEndsOpenMatch: creating a block edge between two users
// currently in an open match together force-ends it with the blocker as
// ended_by.
func TestBlock_ForceEndsOpenMatch(t *testing.T) {
	ctx := context.Background()
	svc, dbase, notifier := setupService(t)

	result, err := svc.Search(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, result.Match)

	require.NoError(t, svc.Block(ctx, 2, 1, "creep"))

	var match db.Match
	require.NoError(t, dbase.First(&match, "match_id = ?", result.Match.MatchID).Error)
	require.NotNil(t, match.EndedAt)
	require.NotNil(t, match.EndedBy)
	assert.Equal(t, uint64(2), *match.EndedBy)

	for _, id := range []uint64{1, 2} {
		assert.Equal(t, db.StateIdle, getUser(t, dbase, id).State)
	}
	assert.Contains(t, notifier.ended, result.Match.MatchID)
}

func TestBlock_UnknownUsers(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setupService(t)

	// both sides of the edge must exist
	err := svc.Block(ctx, 999, 1, "ghost blocker")
	assert.ErrorIs(t, err, svcErr.ErrNotFound)

	err = svc.Block(ctx, 1, 999, "ghost target")
	assert.ErrorIs(t, err, svcErr.ErrNotFound)

	err = svc.Report(ctx, 999, 1, "ghost reporter")
	assert.ErrorIs(t, err, svcErr.ErrNotFound)
}

func TestReport_DoesNotTouchMatchState(t *testing.T) {
	ctx := context.Background()
	svc, dbase, notifier := setupService(t)

	result, err := svc.Search(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, result.Match)

	require.NoError(t, svc.Report(ctx, 1, 2, "rude"))
	assert.Equal(t, 1, notifier.reports)

	var match db.Match
	require.NoError(t, dbase.First(&match, "match_id = ?", result.Match.MatchID).Error)
	assert.Nil(t, match.EndedAt, "reports never change match state")

	var count int64
	require.NoError(t, dbase.Model(&db.Report{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestSendMessage_OnlyPartiesOfOpenMatch(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setupService(t)

	result, err := svc.Search(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, result.Match)
	matchID := result.Match.MatchID

	msg, err := svc.SendMessage(ctx, matchID, 1, "hello there")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), msg.SenderID)

	_, err = svc.SendMessage(ctx, matchID, 3, "let me in")
	assert.ErrorIs(t, err, svcErr.ErrValidation)

	messages, err := svc.Messages(ctx, matchID, 2)
	require.NoError(t, err)
	assert.Len(t, messages, 1)

	_, err = svc.EndMatch(ctx, matchID, 1)
	require.NoError(t, err)
	_, err = svc.SendMessage(ctx, matchID, 1, "too late")
	assert.ErrorIs(t, err, svcErr.ErrValidation)
}

// TestConcurrentSearchers_ExclusivityInvariant stresses the allocator
// with many simultaneous searchers racing on the same candidate pool and
// asserts the central invariant: at most one open match per user, and at
// most one match row per pair ever.
func TestConcurrentSearchers_ExclusivityInvariant(t *testing.T) {
	ctx := context.Background()
	svc, dbase, _ := setupService(t)

	// widen the pool: 6 men seeking women, 6 women seeking men, all in
	// the same city, all premium so quota never interferes
	lat, lon := 12.9716, 77.5946
	future := time.Now().UTC().Add(24 * time.Hour)
	now := time.Now().UTC()
	var ids []uint64
	for i := uint64(101); i <= 112; i++ {
		gender, pref := db.GenderMale, db.PrefFemale
		if i > 106 {
			gender, pref = db.GenderFemale, db.PrefMale
		}
		start := now.Add(-time.Duration(i) * time.Second)
		require.NoError(t, dbase.Create(&db.User{
			UserID: i, Gender: gender, Preference: pref,
			City: "Bengaluru", Latitude: &lat, Longitude: &lon,
			State: db.StateSearching, SearchStartTime: &start,
			IsPremium: true, PremiumExpiresAt: &future,
		}).Error)
		ids = append(ids, i)
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(userID uint64) {
			defer wg.Done()
			// errors here are acceptable (transient conflicts); the
			// invariant below is what must hold regardless
			_, _ = svc.Search(ctx, userID)
		}(id)
	}
	wg.Wait()

	// at most one open match per user
	for _, id := range ids {
		var open int64
		require.NoError(t, dbase.Model(&db.Match{}).
			Where("(user_low_id = ? OR user_high_id = ?) AND ended_at IS NULL", id, id).
			Count(&open).Error)
		assert.LessOrEqual(t, open, int64(1), "user %d has %d open matches", id, open)
	}

	// no duplicate pair rows
	type pairCount struct {
		UserLowID  uint64
		UserHighID uint64
		N          int64
	}
	var pairs []pairCount
	require.NoError(t, dbase.Model(&db.Match{}).
		Select("user_low_id, user_high_id, COUNT(*) as n").
		Group("user_low_id, user_high_id").
		Find(&pairs).Error)
	for _, p := range pairs {
		assert.Equal(t, int64(1), p.N, "pair (%d,%d) allocated more than once", p.UserLowID, p.UserHighID)
	}

	// every MATCHED user has exactly one open match; every matched pair
	// consists of two MATCHED users
	var matched []db.User
	require.NoError(t, dbase.Where("state = ? AND user_id >= ?", db.StateMatched, 100).Find(&matched).Error)
	for _, u := range matched {
		var open int64
		require.NoError(t, dbase.Model(&db.Match{}).
			Where("(user_low_id = ? OR user_high_id = ?) AND ended_at IS NULL", u.UserID, u.UserID).
			Count(&open).Error)
		assert.Equal(t, int64(1), open, "MATCHED user %d must be in exactly one open match", u.UserID)
	}
}
