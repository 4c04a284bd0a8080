package geo

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/oggyb/datenight/internal/cache"
	"github.com/oggyb/datenight/internal/db"
	svcErr "github.com/oggyb/datenight/internal/errors"
)

// Resolver maps a location name to stable coordinates.
//
// Lookup order: redis → city_coordinates table → geocoding collaborator.
// First-time resolutions are appended to the table keyed by normalized
// name; the unique index settles concurrent first-inserts for the same
// city, so no locking is needed beyond the store's own.
type Resolver struct {
	database *gorm.DB
	redis    *cache.RedisCache
	geocoder Geocoder
}

// NewResolver creates a resolver. redis may be nil (cache is skipped).
func NewResolver(database *gorm.DB, redis *cache.RedisCache, geocoder Geocoder) *Resolver {
	return &Resolver{database: database, redis: redis, geocoder: geocoder}
}

// Resolve returns coordinates for a location name.
// Returns ErrGeoLookup when the geocoding collaborator cannot resolve
// the name; callers treat that as non-fatal to the overall search.
func (r *Resolver) Resolve(ctx context.Context, name string) (Coordinates, error) {
	normalized := Normalize(name)
	if normalized == "" {
		return Coordinates{}, fmt.Errorf("%w: empty location name", svcErr.ErrGeoLookup)
	}

	// redis first
	if r.redis != nil {
		if lat, lon, ok, err := r.redis.GetCityCoordinates(ctx, normalized); err == nil && ok {
			return Coordinates{Latitude: lat, Longitude: lon}, nil
		}
	}

	// then the append-only table
	var row db.CityCoordinate
	err := r.database.WithContext(ctx).
		Where("name = ?", normalized).
		First(&row).Error
	if err == nil {
		coords := Coordinates{Latitude: row.Latitude, Longitude: row.Longitude}
		r.backfillRedis(ctx, normalized, coords)
		return coords, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return Coordinates{}, svcErr.Map(err)
	}

	// cache miss on both layers: ask the collaborator
	coords, ok, err := r.geocoder.Geocode(ctx, normalized)
	if err != nil {
		return Coordinates{}, fmt.Errorf("%w: %v", svcErr.ErrGeoLookup, err)
	}
	if !ok {
		return Coordinates{}, fmt.Errorf("%w: unknown location %q", svcErr.ErrGeoLookup, name)
	}

	entry := db.CityCoordinate{
		Name:      normalized,
		Latitude:  coords.Latitude,
		Longitude: coords.Longitude,
	}
	if err := r.database.WithContext(ctx).Create(&entry).Error; err != nil {
		// a concurrent first-insert won the race; the stored row is
		// equivalent, keep going
		if !svcErr.IsDuplicateKey(err) {
			return Coordinates{}, svcErr.Map(err)
		}
	}

	r.backfillRedis(ctx, normalized, coords)
	return coords, nil
}

func (r *Resolver) backfillRedis(ctx context.Context, normalized string, coords Coordinates) {
	if r.redis == nil {
		return
	}
	_ = r.redis.SetCityCoordinates(ctx, normalized, coords.Latitude, coords.Longitude)
}
