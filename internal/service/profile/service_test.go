package profile_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
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
	"github.com/oggyb/datenight/internal/notify"
	"github.com/oggyb/datenight/internal/service/profile"
)

func setupService(t *testing.T) (*profile.Service, *gorm.DB) {
	t.Helper()

	dbName := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	dbase, err := gorm.Open(sqlite.Open(dbName), &gorm.Config{
		NowFunc:                func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	sqlDB, err := dbase.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, dbase.AutoMigrate(db.Models()...))

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(func() { mr.Close() })

	cfg := config.New()
	cfg.Redis.Addr = mr.Addr()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	redisCache := cache.NewRedisCache(cfg)
	resolver := geo.NewResolver(dbase, redisCache, geo.NewStaticGeocoder())
	appCtx := app.New(cfg, dbase, redisCache, logger, resolver, notify.NewLogNotifier(logger))

	return profile.NewService(appCtx), dbase
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupService(t)

	user, err := svc.Register(ctx, 1, "  aarav ")
	require.NoError(t, err)
	assert.Equal(t, "aarav", user.Username)
	assert.Equal(t, db.StateNew, user.State)

	// repeat registration returns the existing row untouched
	again, err := svc.Register(ctx, 1, "impostor")
	require.NoError(t, err)
	assert.Equal(t, "aarav", again.Username)

	_, err = svc.Register(ctx, 0, "nobody")
	assert.ErrorIs(t, err, svcErr.ErrValidation)
}

func TestCompleteProfile_ResolvesCity(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupService(t)

	_, err := svc.Register(ctx, 1, "aarav")
	require.NoError(t, err)

	user, err := svc.CompleteProfile(ctx, 1, 27, " Male ", "FEMALE", " Bengaluru ")
	require.NoError(t, err)
	assert.Equal(t, db.StateIdle, user.State)
	assert.Equal(t, db.GenderMale, user.Gender)
	assert.Equal(t, db.PrefFemale, user.Preference)
	assert.Equal(t, "Bengaluru", user.City)
	require.NotNil(t, user.Latitude)
	require.NotNil(t, user.Longitude)
	assert.InDelta(t, 12.9716, *user.Latitude, 1e-6)
	assert.InDelta(t, 77.5946, *user.Longitude, 1e-6)
}

// TestCompleteProfile_GeoDegradation: an unresolvable city is not fatal.
// The profile still completes to IDLE with the city name kept and no
// coordinates; such users simply rank after coordinate-resolved ones.
func TestCompleteProfile_GeoDegradation(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupService(t)

	_, err := svc.Register(ctx, 1, "aarav")
	require.NoError(t, err)

	user, err := svc.CompleteProfile(ctx, 1, 27, "male", "female", "Atlantis")
	require.NoError(t, err)
	assert.Equal(t, db.StateIdle, user.State)
	assert.Equal(t, "Atlantis", user.City)
	assert.Nil(t, user.Latitude)
	assert.Nil(t, user.Longitude)
}

func TestCompleteProfile_Validation(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupService(t)

	_, err := svc.Register(ctx, 1, "aarav")
	require.NoError(t, err)

	cases := []struct {
		name       string
		age        int
		gender     string
		preference string
		city       string
	}{
		{"underage", 17, "male", "female", "Bengaluru"},
		{"over limit", 100, "male", "female", "Bengaluru"},
		{"bad gender", 27, "robot", "female", "Bengaluru"},
		{"bad preference", 27, "male", "everyone", "Bengaluru"},
		{"empty city", 27, "male", "female", "   "},
	}
	for _, tc := range cases {
		_, err := svc.CompleteProfile(ctx, 1, tc.age, tc.gender, tc.preference, tc.city)
		assert.ErrorIs(t, err, svcErr.ErrValidation, tc.name)
	}
}

func TestCompleteProfile_BlockedUserRejected(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupService(t)

	_, err := svc.Register(ctx, 1, "aarav")
	require.NoError(t, err)
	require.NoError(t, svc.SetAdminBlock(ctx, 1, true))

	_, err = svc.CompleteProfile(ctx, 1, 27, "male", "female", "Bengaluru")
	assert.ErrorIs(t, err, svcErr.ErrValidation)
}

func TestCompleteProfile_EditableAfterCompletion(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupService(t)

	_, err := svc.Register(ctx, 1, "aarav")
	require.NoError(t, err)

	_, err = svc.CompleteProfile(ctx, 1, 27, "male", "female", "Bengaluru")
	require.NoError(t, err)

	// a second pass updates the profile in place
	user, err := svc.CompleteProfile(ctx, 1, 28, "male", "any", "Mumbai")
	require.NoError(t, err)
	assert.Equal(t, db.StateIdle, user.State)
	assert.Equal(t, 28, user.Age)
	assert.Equal(t, db.PrefAny, user.Preference)
	assert.Equal(t, "Mumbai", user.City)
	require.NotNil(t, user.Latitude)
	assert.InDelta(t, 19.0760, *user.Latitude, 1e-6)
}
