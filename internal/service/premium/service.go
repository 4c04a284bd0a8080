package premium

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/oggyb/datenight/internal/app"
	"github.com/oggyb/datenight/internal/db"
	svcErr "github.com/oggyb/datenight/internal/errors"
	"github.com/oggyb/datenight/internal/repository"
)

// Plan is a purchasable premium window.
type Plan struct {
	ID           string
	Name         string
	StarsCost    int
	DurationDays int
}

// Plans is the catalog of purchasable windows, priced in platform stars.
var Plans = map[string]Plan{
	"week_1":  {ID: "week_1", Name: "1 Week", StarsCost: 100, DurationDays: 7},
	"week_2":  {ID: "week_2", Name: "2 Weeks", StarsCost: 150, DurationDays: 14},
	"month_1": {ID: "month_1", Name: "1 Month", StarsCost: 250, DurationDays: 30},
	"month_3": {ID: "month_3", Name: "3 Months", StarsCost: 500, DurationDays: 90},
}

// Receipt is the user-facing confirmation of an activation.
type Receipt struct {
	ReceiptID    string    `json:"receipt_id"`
	UserID       uint64    `json:"user_id"`
	PlanName     string    `json:"plan_name"`
	StarsCost    int       `json:"stars_cost"`
	DurationDays int       `json:"duration_days"`
	PaymentRef   string    `json:"payment_ref,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Status is the current premium/quota projection for a user.
type Status struct {
	IsPremium     bool       `json:"is_premium"`
	Plan          string     `json:"plan,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	FreeUsed      int        `json:"free_matches_used"`
	FreeRemaining int        `json:"free_matches_remaining"`
}

// Service is the subscription activator. It trusts its caller that the
// payment reference was already confirmed by the payment collaborator;
// the core never initiates a charge itself.
type Service struct {
	appCtx  *app.AppContext
	users   *repository.UserRepository
	premium *repository.PremiumRepository

	freeLimit int
}

// NewService creates the premium service with dependencies from AppContext.
func NewService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx:    appCtx,
		users:     repository.NewUserRepository(appCtx.DB),
		premium:   repository.NewPremiumRepository(appCtx.DB),
		freeLimit: appCtx.Config.Match.FreeLimit,
	}
}

// Activate applies a confirmed purchase: one immutable transaction row
// plus the premium window extension, atomically. Renewing before expiry
// stacks the new duration onto the remaining time.
func (s *Service) Activate(ctx context.Context, userID uint64, planName string, starsCost, durationDays int, paymentRef string) (*Receipt, error) {
	if planName == "" {
		return nil, svcErr.Validation("plan name is required")
	}
	if starsCost <= 0 || durationDays <= 0 {
		return nil, svcErr.Validation("plan cost and duration must be positive")
	}
	if _, err := s.users.Get(ctx, userID); err != nil {
		return nil, err
	}

	var ref *string
	if paymentRef != "" {
		ref = &paymentRef
	}

	expiresAt, err := s.premium.Activate(ctx, userID, planName, starsCost, durationDays, ref, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	s.appCtx.Logger.Info("premium activated",
		"user_id", userID, "plan", planName, "expires_at", expiresAt)
	s.appCtx.Notifier.PremiumActivated(ctx, userID, expiresAt)

	return &Receipt{
		ReceiptID:    uuid.NewString(),
		UserID:       userID,
		PlanName:     planName,
		StarsCost:    starsCost,
		DurationDays: durationDays,
		PaymentRef:   paymentRef,
		ExpiresAt:    expiresAt,
	}, nil
}

// ActivatePlan resolves a catalog plan id and activates it.
func (s *Service) ActivatePlan(ctx context.Context, userID uint64, planID, paymentRef string) (*Receipt, error) {
	plan, ok := Plans[planID]
	if !ok {
		return nil, svcErr.Validation("unknown plan %q", planID)
	}
	return s.Activate(ctx, userID, plan.Name, plan.StarsCost, plan.DurationDays, paymentRef)
}

// Status returns the user's premium window and remaining free quota.
// A lapsed window reads as non-premium here; the flag itself is only
// flipped lazily by the quota ledger.
func (s *Service) Status(ctx context.Context, userID uint64) (*Status, error) {
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	st := &Status{
		FreeUsed:      user.FreeMatchesUsed,
		FreeRemaining: max(0, s.freeLimit-user.FreeMatchesUsed),
	}
	if user.PremiumActive(time.Now().UTC()) {
		st.IsPremium = true
		if user.PremiumPlan != nil {
			st.Plan = *user.PremiumPlan
		}
		st.ExpiresAt = user.PremiumExpiresAt
	}
	return st, nil
}

// History returns the user's immutable purchase ledger, newest first.
func (s *Service) History(ctx context.Context, userID uint64) ([]db.PremiumTransaction, error) {
	return s.premium.Transactions(ctx, userID)
}
