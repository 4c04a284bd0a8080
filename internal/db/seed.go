package db

import (
	"fmt"
	"log"
	"math/rand"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SeedTestData resets the database and populates it with demo users.
//
// Behavior:
//  1. Clears all matchmaking tables.
//  2. Creates 20 users (10 male, 10 female) spread over the launch
//     cities, profiles complete, half of them already SEARCHING.
//  3. Marks two users premium (one active window, one lapsed for
//     exercising the lazy downgrade).
//
// Compatible with both MySQL and SQLite.
func SeedTestData(database *gorm.DB) error {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	// --- Fresh start ---
	for _, table := range []string{
		"messages", "matches", "blocked_pairs", "reports",
		"premium_transactions", "city_coordinates", "users",
	} {
		if err := database.Exec("DELETE FROM " + table).Error; err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	log.Println("Cleared existing data")

	cities := []struct {
		name     string
		lat, lon float64
	}{
		{"Bengaluru", 12.9716, 77.5946},
		{"Mumbai", 19.0760, 72.8777},
		{"Delhi", 28.7041, 77.1025},
		{"Hyderabad", 17.3850, 78.4867},
		{"Chennai", 13.0827, 80.2707},
	}

	now := time.Now().UTC()
	for i := 1; i <= 20; i++ {
		gender, preference := GenderMale, PrefFemale
		if i > 10 {
			gender, preference = GenderFemale, PrefMale
		}

		city := cities[r.Intn(len(cities))]
		lat, lon := city.lat, city.lon

		state := StateIdle
		var searchStart *time.Time
		if i%2 == 0 {
			state = StateSearching
			ts := now.Add(-time.Duration(r.Intn(600)) * time.Second)
			searchStart = &ts
		}

		user := User{
			UserID:          uint64(1000 + i),
			Username:        fmt.Sprintf("user%d", i),
			Age:             20 + r.Intn(15),
			Gender:          gender,
			Preference:      preference,
			City:            city.name,
			Latitude:        &lat,
			Longitude:       &lon,
			State:           state,
			SearchStartTime: searchStart,
		}
		if err := database.Clauses(clause.OnConflict{DoNothing: true}).Create(&user).Error; err != nil {
			return fmt.Errorf("failed to seed user: %w", err)
		}
	}
	log.Println("Seeded 20 users.")

	// one active premium window, one lapsed
	activeExpiry := now.AddDate(0, 0, 30)
	lapsedExpiry := now.AddDate(0, 0, -5)
	plan := "1 Month"
	if err := database.Model(&User{}).Where("user_id = ?", 1001).Updates(map[string]any{
		"is_premium": true, "premium_plan": plan, "premium_expires_at": activeExpiry,
	}).Error; err != nil {
		return err
	}
	if err := database.Model(&User{}).Where("user_id = ?", 1002).Updates(map[string]any{
		"is_premium": true, "premium_plan": plan, "premium_expires_at": lapsedExpiry,
	}).Error; err != nil {
		return err
	}
	if err := database.Omit(clause.Associations).Create(&PremiumTransaction{
		UserID: 1001, PlanName: plan, StarsCost: 250, DurationDays: 30,
	}).Error; err != nil {
		return err
	}

	return nil
}

// SeedMinimalTestData wipes the tables and inserts a small deterministic
// dataset for repeatable tests: one compatible searching pair in
// Bengaluru plus an incompatible third user.
func SeedMinimalTestData(database *gorm.DB) error {
	for _, table := range []string{
		"messages", "matches", "blocked_pairs", "reports",
		"premium_transactions", "city_coordinates", "users",
	} {
		if err := database.Exec("DELETE FROM " + table).Error; err != nil {
			return err
		}
	}

	lat, lon := 12.9716, 77.5946
	now := time.Now().UTC()
	earlier := now.Add(-time.Minute)

	users := []User{
		{
			UserID: 1, Username: "aarav", Age: 27,
			Gender: GenderMale, Preference: PrefFemale,
			City: "Bengaluru", Latitude: &lat, Longitude: &lon,
			State: StateSearching, SearchStartTime: &earlier,
		},
		{
			UserID: 2, Username: "diya", Age: 25,
			Gender: GenderFemale, Preference: PrefMale,
			City: "Bengaluru", Latitude: &lat, Longitude: &lon,
			State: StateSearching, SearchStartTime: &now,
		},
		{
			UserID: 3, Username: "rohan", Age: 30,
			Gender: GenderMale, Preference: PrefFemale,
			City: "Bengaluru", Latitude: &lat, Longitude: &lon,
			State: StateSearching, SearchStartTime: &now,
		},
	}
	return database.Create(&users).Error
}
