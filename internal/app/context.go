package app

import (
	"log/slog"

	"gorm.io/gorm"

	"github.com/oggyb/datenight/internal/cache"
	"github.com/oggyb/datenight/internal/config"
	"github.com/oggyb/datenight/internal/geo"
	"github.com/oggyb/datenight/internal/notify"
)

// AppContext holds shared dependencies (DB, Redis, Logger, collaborators).
type AppContext struct {
	Config     *config.Config
	DB         *gorm.DB
	RedisCache *cache.RedisCache
	Logger     *slog.Logger
	Geo        *geo.Resolver
	Notifier   notify.Notifier
}

// New creates a new AppContext.
func New(cfg *config.Config, database *gorm.DB, rdb *cache.RedisCache, logger *slog.Logger, resolver *geo.Resolver, notifier notify.Notifier) *AppContext {
	return &AppContext{
		Config:     cfg,
		DB:         database,
		RedisCache: rdb,
		Logger:     logger,
		Geo:        resolver,
		Notifier:   notifier,
	}
}
