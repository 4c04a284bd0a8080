package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/oggyb/datenight/internal/config"
	"github.com/redis/go-redis/v9"
)

// GeoTTL bounds how long a resolved city sits in redis before falling
// back to the city_coordinates table.
const GeoTTL = 24 * time.Hour

type RedisCache struct {
	Client *redis.Client
}

// NewRedisCache initializes Redis client from config.
// Only Addr is mandatory, Password/DB are optional.
func NewRedisCache(cfg *config.Config) *RedisCache {
	opts := &redis.Options{
		Addr: cfg.Redis.Addr,
	}
	if cfg.Redis.Password != "" {
		opts.Password = cfg.Redis.Password
	}
	if cfg.Redis.DB != 0 {
		opts.DB = cfg.Redis.DB
	}
	return &RedisCache{Client: redis.NewClient(opts)}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}

func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return c.Client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, error) {
	return c.Client.Get(ctx, key).Result()
}

func (c *RedisCache) Del(ctx context.Context, key string) error {
	return c.Client.Del(ctx, key).Err()
}

// KeyForCity generates the redis key for a normalized city name.
func (c *RedisCache) KeyForCity(name string) string {
	return fmt.Sprintf("geo:city:%s", name)
}

// SetCityCoordinates caches a resolved city as "lat,lon".
func (c *RedisCache) SetCityCoordinates(ctx context.Context, name string, lat, lon float64) error {
	val := fmt.Sprintf("%s,%s",
		strconv.FormatFloat(lat, 'f', -1, 64),
		strconv.FormatFloat(lon, 'f', -1, 64),
	)
	return c.Client.Set(ctx, c.KeyForCity(name), val, GeoTTL).Err()
}

// GetCityCoordinates returns cached coordinates for a city.
// ok is false on cache miss; the TTL is refreshed on every hit.
func (c *RedisCache) GetCityCoordinates(ctx context.Context, name string) (lat, lon float64, ok bool, err error) {
	key := c.KeyForCity(name)
	val, err := c.Client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, 0, false, nil // cache miss
	} else if err != nil {
		return 0, 0, false, err
	}

	parts := strings.SplitN(val, ",", 2)
	if len(parts) != 2 {
		return 0, 0, false, nil // unparseable entry, treat as miss
	}
	lat, err = strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, 0, false, nil
	}
	lon, err = strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return 0, 0, false, nil
	}

	// refresh TTL on access
	_ = c.Client.Expire(ctx, key, GeoTTL).Err()
	return lat, lon, true, nil
}
