package profile

import (
	"context"
	"errors"
	"strings"

	"github.com/oggyb/datenight/internal/app"
	"github.com/oggyb/datenight/internal/db"
	svcErr "github.com/oggyb/datenight/internal/errors"
	"github.com/oggyb/datenight/internal/repository"
)

const (
	minAge = 18
	maxAge = 99
)

// Service handles registration and onboarding. Location resolution
// degrades gracefully: an unresolvable city keeps its name with no
// coordinates and the profile still completes.
type Service struct {
	appCtx *app.AppContext
	users  *repository.UserRepository
}

// NewService creates the profile service with dependencies from AppContext.
func NewService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx: appCtx,
		users:  repository.NewUserRepository(appCtx.DB),
	}
}

// Register creates the user row for a platform id. Idempotent; a repeat
// registration returns the existing row untouched.
func (s *Service) Register(ctx context.Context, userID uint64, username string) (*db.User, error) {
	if userID == 0 {
		return nil, svcErr.Validation("user id is required")
	}
	if err := s.users.Create(ctx, userID, strings.TrimSpace(username)); err != nil {
		return nil, err
	}
	return s.users.Get(ctx, userID)
}

// CompleteProfile validates and writes the matching profile, resolves the
// city, and parks the user in IDLE ready to search.
func (s *Service) CompleteProfile(ctx context.Context, userID uint64, age int, gender, preference, city string) (*db.User, error) {
	gender = strings.ToLower(strings.TrimSpace(gender))
	preference = strings.ToLower(strings.TrimSpace(preference))
	city = strings.TrimSpace(city)

	if age < minAge || age > maxAge {
		return nil, svcErr.Validation("age must be between %d and %d", minAge, maxAge)
	}
	if gender != db.GenderMale && gender != db.GenderFemale {
		return nil, svcErr.Validation("gender must be %q or %q", db.GenderMale, db.GenderFemale)
	}
	if preference != db.PrefMale && preference != db.PrefFemale && preference != db.PrefAny {
		return nil, svcErr.Validation("preference must be %q, %q or %q", db.PrefMale, db.PrefFemale, db.PrefAny)
	}
	if city == "" {
		return nil, svcErr.Validation("city is required")
	}

	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.IsBlocked || user.State == db.StateBlocked {
		return nil, svcErr.Validation("user %d is blocked from the service", userID)
	}
	if user.State == db.StateNew {
		if _, err := s.users.Transition(ctx, userID, db.StateNew, db.StateOnboarding); err != nil {
			return nil, err
		}
	}

	var lat, lon *float64
	coords, err := s.appCtx.Geo.Resolve(ctx, city)
	switch {
	case err == nil:
		lat, lon = &coords.Latitude, &coords.Longitude
	case errors.Is(err, svcErr.ErrGeoLookup):
		// keep the name, proceed without coordinates
		s.appCtx.Logger.Warn("city not resolved, profile kept without coordinates",
			"user_id", userID, "city", city, "err", err)
	default:
		return nil, err
	}

	if err := s.users.UpdateProfile(ctx, userID, age, gender, preference, city, lat, lon); err != nil {
		return nil, err
	}

	s.appCtx.Logger.Info("profile completed", "user_id", userID, "city", city)
	return s.users.Get(ctx, userID)
}

// SetAdminBlock flips the administrative block for a user.
func (s *Service) SetAdminBlock(ctx context.Context, userID uint64, blocked bool) error {
	return s.users.SetAdminBlock(ctx, userID, blocked)
}

// Get returns a user profile.
func (s *Service) Get(ctx context.Context, userID uint64) (*db.User, error) {
	return s.users.Get(ctx, userID)
}
