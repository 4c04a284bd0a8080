package db

import (
	"time"
)

// UserState is the lifecycle state of a user. It is stored as a string
// column but only the constants below are valid; every transition goes
// through CanTransition so an invalid state can never be written.
type UserState string

const (
	// StateNew: account exists, onboarding not started.
	StateNew UserState = "NEW"
	// StateOnboarding: profile incomplete, not matchable.
	StateOnboarding UserState = "ONBOARDING"
	// StateIdle: profile complete, not searching.
	StateIdle UserState = "IDLE"
	// StateSearching: actively eligible to be matched.
	StateSearching UserState = "SEARCHING"
	// StateMatched: party to the one open match allowed per user.
	StateMatched UserState = "MATCHED"
	// StateBlocked: blocked from the service by an admin.
	StateBlocked UserState = "BLOCKED"
)

func (s UserState) Valid() bool {
	switch s {
	case StateNew, StateOnboarding, StateIdle, StateSearching, StateMatched, StateBlocked:
		return true
	}
	return false
}

// transitions is the closed edge set of the user state machine.
var transitions = map[UserState][]UserState{
	StateNew:        {StateOnboarding, StateBlocked},
	StateOnboarding: {StateIdle, StateBlocked},
	StateIdle:       {StateSearching, StateOnboarding, StateBlocked},
	StateSearching:  {StateMatched, StateIdle, StateOnboarding, StateBlocked},
	StateMatched:    {StateIdle, StateSearching, StateBlocked},
	StateBlocked:    {StateIdle},
}

// CanTransition reports whether moving from s to next is a legal edge.
// Self-transitions are allowed (idempotent writes).
func (s UserState) CanTransition(next UserState) bool {
	if s == next {
		return true
	}
	for _, n := range transitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

// Gender / preference values. Preference is the set of genders a user
// accepts; PrefAny matches either.
const (
	GenderMale   = "male"
	GenderFemale = "female"

	PrefMale   = "male"
	PrefFemale = "female"
	PrefAny    = "any"
)

// PreferenceAccepts reports whether a stated preference accepts a gender.
func PreferenceAccepts(preference, gender string) bool {
	return preference == PrefAny || preference == gender
}

// User is the profile plus all matching state. The ID is assigned by the
// platform (not auto-incremented), so two devices registering the same
// account converge on one row.
//
// Premium invariant: IsPremium true implies PremiumExpiresAt was in the
// future when it was last set; expiry is checked lazily on quota checks,
// never push-expired.
type User struct {
	UserID           uint64    `gorm:"primaryKey;autoIncrement:false"`
	Username         string    `gorm:"size:255"`
	Age              int       `gorm:"default:0"`
	Gender           string    `gorm:"size:10"`
	Preference       string    `gorm:"size:10"`
	City             string    `gorm:"size:100"`
	Latitude         *float64
	Longitude        *float64
	State            UserState `gorm:"size:50;not null;default:NEW;index"`
	IsPremium        bool      `gorm:"not null;default:false"`
	PremiumPlan      *string   `gorm:"size:100"`
	PremiumExpiresAt *time.Time
	IsBlocked        bool      `gorm:"not null;default:false"`
	FreeMatchesUsed  int       `gorm:"not null;default:0"`
	SearchStartTime  *time.Time
	CreatedAt        time.Time `gorm:"autoCreateTime"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime"`
}

// HasCoordinates reports whether the profile has a resolved location.
func (u *User) HasCoordinates() bool {
	return u.Latitude != nil && u.Longitude != nil
}

// PremiumActive reports whether the premium window covers now.
// A true IsPremium with a past expiry is stale and due for lazy downgrade.
func (u *User) PremiumActive(now time.Time) bool {
	return u.IsPremium && u.PremiumExpiresAt != nil && u.PremiumExpiresAt.After(now)
}

// CityCoordinate caches a resolved location name. Append-only, unique on
// the normalized name; concurrent first-inserts for the same name are
// settled by the unique index.
type CityCoordinate struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	Name      string    `gorm:"uniqueIndex;size:100;not null"`
	Latitude  float64   `gorm:"not null"`
	Longitude float64   `gorm:"not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// Match is an unordered pair of users. The pair is normalized so
// UserLowID < UserHighID; the composite unique index then enforces
// at most one match row per pair ever, regardless of request order.
//
// Open match: EndedAt IS NULL. At most one open match may reference a
// given user; the allocator's conditional two-row state transition is
// what upholds that.
type Match struct {
	MatchID    uint64    `gorm:"primaryKey;autoIncrement"`
	UserLowID  uint64    `gorm:"not null;uniqueIndex:idx_match_pair,priority:1;index"`
	UserHighID uint64    `gorm:"not null;uniqueIndex:idx_match_pair,priority:2;index"`
	StartedAt  time.Time `gorm:"autoCreateTime"`
	EndedAt    *time.Time
	EndedBy    *uint64

	UserLow  User `gorm:"foreignKey:UserLowID;references:UserID;constraint:OnDelete:CASCADE"`
	UserHigh User `gorm:"foreignKey:UserHighID;references:UserID;constraint:OnDelete:CASCADE"`
}

// Open reports whether the match has not been ended.
func (m *Match) Open() bool { return m.EndedAt == nil }

// Involves reports whether userID is one of the two parties.
func (m *Match) Involves(userID uint64) bool {
	return m.UserLowID == userID || m.UserHighID == userID
}

// OtherUser returns the counterpart of userID in the pair.
func (m *Match) OtherUser(userID uint64) uint64 {
	if m.UserLowID == userID {
		return m.UserHighID
	}
	return m.UserLowID
}

// NormalizePair orders two user ids as (low, high).
func NormalizePair(a, b uint64) (uint64, uint64) {
	if a < b {
		return a, b
	}
	return b, a
}

// Message belongs to exactly one match; sender must be a party to it
// (checked at the service layer). Deleting a match cascades its messages.
type Message struct {
	MessageID uint64    `gorm:"primaryKey;autoIncrement"`
	MatchID   uint64    `gorm:"not null;index:idx_msg_match_created,priority:1"`
	SenderID  uint64    `gorm:"not null"`
	Content   string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"autoCreateTime;index:idx_msg_match_created,priority:2"`

	Match  Match `gorm:"foreignKey:MatchID;references:MatchID;constraint:OnDelete:CASCADE"`
	Sender User  `gorm:"foreignKey:SenderID;references:UserID;constraint:OnDelete:CASCADE"`
}

// BlockedPair is a directed block edge. Unique per ordered pair; either
// direction excludes the pair from future eligibility.
type BlockedPair struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	BlockerID uint64    `gorm:"not null;uniqueIndex:idx_block_pair,priority:1"`
	BlockedID uint64    `gorm:"not null;uniqueIndex:idx_block_pair,priority:2;index"`
	Reason    string    `gorm:"size:255"`
	CreatedAt time.Time `gorm:"autoCreateTime"`

	Blocker User `gorm:"foreignKey:BlockerID;references:UserID;constraint:OnDelete:CASCADE"`
	Blocked User `gorm:"foreignKey:BlockedID;references:UserID;constraint:OnDelete:CASCADE"`
}

// Report is a directed moderation record. It never changes matching
// state; the moderation collaborator consumes it.
type Report struct {
	ReportID   uint64    `gorm:"primaryKey;autoIncrement"`
	ReporterID uint64    `gorm:"not null;index"`
	ReportedID uint64    `gorm:"not null;index"`
	Reason     string    `gorm:"size:255"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`

	Reporter User `gorm:"foreignKey:ReporterID;references:UserID;constraint:OnDelete:CASCADE"`
	Reported User `gorm:"foreignKey:ReportedID;references:UserID;constraint:OnDelete:CASCADE"`
}

// PremiumTransaction is the immutable audit row of a completed purchase.
// Rows are inserted once and never updated or deleted; the users table
// premium fields are the projection of the latest activation.
type PremiumTransaction struct {
	TransactionID uint64    `gorm:"primaryKey;autoIncrement"`
	UserID        uint64    `gorm:"not null;index"`
	PlanName      string    `gorm:"size:100;not null"`
	StarsCost     int       `gorm:"not null"`
	DurationDays  int       `gorm:"not null"`
	PaymentRef    *string   `gorm:"size:128"`
	CreatedAt     time.Time `gorm:"autoCreateTime"`

	User User `gorm:"foreignKey:UserID;references:UserID;constraint:OnDelete:CASCADE"`
}
