package matching

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/oggyb/datenight/internal/app"
	"github.com/oggyb/datenight/internal/db"
	svcErr "github.com/oggyb/datenight/internal/errors"
	"github.com/oggyb/datenight/internal/geo"
	"github.com/oggyb/datenight/internal/repository"
)

// Service is the matching and lifecycle engine: quota checks, candidate
// selection, atomic allocation, and match termination.
//
// Geo degradation policy: a seeker or candidate whose city never
// resolved simply has no coordinates; such candidates rank after all
// coordinate-resolved ones but stay matchable. Search never aborts on a
// geo failure.
type Service struct {
	appCtx  *app.AppContext
	users   *repository.UserRepository
	matches *repository.MatchRepository
	blocks  *repository.BlockRepository

	freeLimit    int
	allocRetries int
}

// NewService creates the matching service with dependencies from AppContext.
func NewService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx:       appCtx,
		users:        repository.NewUserRepository(appCtx.DB),
		matches:      repository.NewMatchRepository(appCtx.DB),
		blocks:       repository.NewBlockRepository(appCtx.DB),
		freeLimit:    appCtx.Config.Match.FreeLimit,
		allocRetries: appCtx.Config.Match.AllocRetries,
	}
}

// SearchResult reports the outcome of one search request. Match is nil
// while the user stays in SEARCHING waiting for a counterpart.
type SearchResult struct {
	Match   *db.Match
	Partner uint64
}

// CanSearch is the quota ledger decision: premium users with an active
// window search without limit; a premium flag whose window has passed is
// lazily downgraded here, then the free-tier rule applies.
func (s *Service) CanSearch(ctx context.Context, user *db.User) (bool, error) {
	now := time.Now().UTC()

	if user.PremiumActive(now) {
		return true, nil
	}

	if user.IsPremium {
		// expired window: downgrade as a side effect, then fall through
		// to the free-tier rule
		if err := s.users.DowngradePremium(ctx, user.UserID, now); err != nil {
			return false, err
		}
		user.IsPremium = false
		user.PremiumPlan = nil
		user.PremiumExpiresAt = nil
		s.appCtx.Logger.Info("premium expired, downgraded", "user_id", user.UserID)
	}

	return user.FreeMatchesUsed < s.freeLimit, nil
}

// Search runs one allocation attempt for the user: quota check, move to
// SEARCHING, rank the candidate snapshot, and try to claim the best
// candidate. A nil Match in the result is the normal waiting condition,
// not an error.
func (s *Service) Search(ctx context.Context, userID uint64) (*SearchResult, error) {
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	if user.IsBlocked || user.State == db.StateBlocked {
		return nil, svcErr.Validation("user %d is blocked from the service", userID)
	}
	if user.State == db.StateNew || user.State == db.StateOnboarding {
		return nil, svcErr.Validation("user %d has not completed their profile", userID)
	}
	if user.State == db.StateMatched {
		return nil, svcErr.Validation("user %d already has an open match", userID)
	}

	ok, err := s.CanSearch(ctx, user)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.appCtx.Notifier.QuotaExceeded(ctx, userID)
		return nil, svcErr.ErrQuotaExceeded
	}

	// enter SEARCHING; idempotent when already searching
	if user.State != db.StateSearching {
		moved, err := s.users.Transition(ctx, userID, user.State, db.StateSearching)
		if err != nil {
			return nil, err
		}
		if !moved {
			// state changed under us; surface as the waiting condition
			return &SearchResult{}, nil
		}
		user.State = db.StateSearching
	}

	return s.allocate(ctx, user)
}

// allocate retries the pick-and-claim loop up to the configured bound,
// excluding candidates lost to concurrent allocations.
func (s *Service) allocate(ctx context.Context, seeker *db.User) (*SearchResult, error) {
	var excluded []uint64

	for attempt := 0; attempt <= s.allocRetries; attempt++ {
		candidates, err := s.matches.FindCandidates(ctx, seeker, excluded)
		if err != nil {
			return nil, err
		}
		if len(candidates) == 0 {
			return &SearchResult{}, nil // keep waiting in SEARCHING
		}

		best := s.rank(seeker, candidates)[0]

		match, err := s.matches.Allocate(ctx, seeker.UserID, best.UserID, time.Now().UTC())
		if err != nil {
			if errors.Is(err, svcErr.ErrAllocationConflict) {
				// someone claimed the candidate, or claimed us
				open, oerr := s.matches.OpenMatchFor(ctx, seeker.UserID)
				if oerr != nil {
					return nil, oerr
				}
				if open != nil {
					return &SearchResult{Match: open, Partner: open.OtherUser(seeker.UserID)}, nil
				}
				excluded = append(excluded, best.UserID)
				continue
			}
			return nil, err
		}

		s.appCtx.Logger.Info("match allocated",
			"match_id", match.MatchID, "seeker", seeker.UserID, "partner", best.UserID)
		s.appCtx.Notifier.MatchCreated(ctx, match.MatchID, match.UserLowID, match.UserHighID)
		return &SearchResult{Match: match, Partner: best.UserID}, nil
	}

	return &SearchResult{}, nil // retries exhausted: no match yet
}

// rank orders candidates: ascending distance first, candidates without
// resolved coordinates after all resolved ones, then oldest
// search_start_time, then user id as the final deterministic key.
func (s *Service) rank(seeker *db.User, candidates []db.User) []db.User {
	type ranked struct {
		user     db.User
		distance float64
		resolved bool
	}

	rs := make([]ranked, 0, len(candidates))
	for _, c := range candidates {
		entry := ranked{user: c}
		if seeker.HasCoordinates() && c.HasCoordinates() {
			entry.resolved = true
			entry.distance = geo.Haversine(
				geo.Coordinates{Latitude: *seeker.Latitude, Longitude: *seeker.Longitude},
				geo.Coordinates{Latitude: *c.Latitude, Longitude: *c.Longitude},
			)
		}
		rs = append(rs, entry)
	}

	sort.SliceStable(rs, func(i, j int) bool {
		a, b := rs[i], rs[j]
		if a.resolved != b.resolved {
			return a.resolved
		}
		if a.resolved && a.distance != b.distance {
			return a.distance < b.distance
		}
		at, bt := a.user.SearchStartTime, b.user.SearchStartTime
		switch {
		case at != nil && bt != nil && !at.Equal(*bt):
			return at.Before(*bt)
		case at != nil && bt == nil:
			return true
		case at == nil && bt != nil:
			return false
		}
		return a.user.UserID < b.user.UserID
	})

	out := make([]db.User, len(rs))
	for i, r := range rs {
		out[i] = r.user
	}
	return out
}

// Reconnect re-enters the search pool after a previous match ended. It
// exists so clients can distinguish "search again" from a first search;
// the allocation path is the same, but a user who never matched or still
// has an open match is rejected.
func (s *Service) Reconnect(ctx context.Context, userID uint64) (*SearchResult, error) {
	open, err := s.matches.OpenMatchFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	if open != nil {
		return nil, svcErr.Validation("user %d still has an open match", userID)
	}

	matched, err := s.matches.HasMatched(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !matched {
		return nil, svcErr.Validation("user %d has no previous match to reconnect after", userID)
	}

	return s.Search(ctx, userID)
}

// CancelSearch reverts SEARCHING back to IDLE. The revert is conditional
// so it can never race a concurrent allocation: if the user was matched
// in the interim the cancel fails and the open match stands.
func (s *Service) CancelSearch(ctx context.Context, userID uint64) error {
	moved, err := s.users.Transition(ctx, userID, db.StateSearching, db.StateIdle)
	if err != nil {
		return err
	}
	if !moved {
		return svcErr.Validation("user %d has no active search to cancel", userID)
	}
	return nil
}

// OpenMatch returns the user's current open match, or nil.
func (s *Service) OpenMatch(ctx context.Context, userID uint64) (*db.Match, error) {
	return s.matches.OpenMatchFor(ctx, userID)
}

// EndMatch closes an open match on behalf of one of its parties. Both
// users are freed to IDLE; ended matches are permanent.
func (s *Service) EndMatch(ctx context.Context, matchID, endedBy uint64) (*db.Match, error) {
	match, err := s.matches.Get(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if !match.Involves(endedBy) {
		return nil, svcErr.Validation("user %d is not part of match %d", endedBy, matchID)
	}

	ended, err := s.matches.End(ctx, matchID, endedBy, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	s.appCtx.Notifier.MatchEnded(ctx, matchID, endedBy)
	return ended, nil
}

// Block records a directed block edge. If the two users are currently in
// an open match together the match is force-ended with the blocker as
// ended_by.
func (s *Service) Block(ctx context.Context, blockerID, blockedID uint64, reason string) error {
	if blockerID == blockedID {
		return svcErr.Validation("cannot block yourself")
	}
	if _, err := s.users.Get(ctx, blockerID); err != nil {
		return err
	}
	if _, err := s.users.Get(ctx, blockedID); err != nil {
		return err
	}

	if err := s.blocks.CreateBlock(ctx, blockerID, blockedID, reason); err != nil {
		return err
	}

	open, err := s.matches.OpenMatchFor(ctx, blockerID)
	if err != nil {
		return err
	}
	if open != nil && open.Involves(blockedID) {
		if _, err := s.matches.End(ctx, open.MatchID, blockerID, time.Now().UTC()); err != nil {
			// a concurrent voluntary end already closed it
			if !errors.Is(err, svcErr.ErrNotFound) {
				return err
			}
		} else {
			s.appCtx.Notifier.MatchEnded(ctx, open.MatchID, blockerID)
		}
	}
	return nil
}

// Report files a moderation record and hands it to the collaborator.
// Match state is untouched.
func (s *Service) Report(ctx context.Context, reporterID, reportedID uint64, reason string) error {
	if reporterID == reportedID {
		return svcErr.Validation("cannot report yourself")
	}
	if _, err := s.users.Get(ctx, reporterID); err != nil {
		return err
	}
	if _, err := s.users.Get(ctx, reportedID); err != nil {
		return err
	}

	if _, err := s.blocks.CreateReport(ctx, reporterID, reportedID, reason); err != nil {
		return err
	}
	s.appCtx.Notifier.ReportFiled(ctx, reporterID, reportedID, reason)
	return nil
}

// SendMessage appends a message to an open match. The sender must be a
// party to the match.
func (s *Service) SendMessage(ctx context.Context, matchID, senderID uint64, content string) (*db.Message, error) {
	if content == "" {
		return nil, svcErr.Validation("message content is empty")
	}

	match, err := s.matches.Get(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if !match.Involves(senderID) {
		return nil, svcErr.Validation("user %d is not part of match %d", senderID, matchID)
	}
	if !match.Open() {
		return nil, svcErr.Validation("match %d has ended", matchID)
	}

	return s.matches.CreateMessage(ctx, matchID, senderID, content)
}

// Messages lists a match's conversation for one of its parties.
func (s *Service) Messages(ctx context.Context, matchID, userID uint64) ([]db.Message, error) {
	match, err := s.matches.Get(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if !match.Involves(userID) {
		return nil, svcErr.Validation("user %d is not part of match %d", userID, matchID)
	}
	return s.matches.ListMessages(ctx, matchID)
}
