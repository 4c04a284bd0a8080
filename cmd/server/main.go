package main

import (
	"context"

	"github.com/joho/godotenv"

	"github.com/oggyb/datenight/internal/app"
	"github.com/oggyb/datenight/internal/cache"
	"github.com/oggyb/datenight/internal/config"
	"github.com/oggyb/datenight/internal/db"
	"github.com/oggyb/datenight/internal/geo"
	"github.com/oggyb/datenight/internal/logger"
	"github.com/oggyb/datenight/internal/notify"
	"github.com/oggyb/datenight/internal/server"
	"github.com/oggyb/datenight/internal/service/matching"
	"github.com/oggyb/datenight/internal/service/premium"
	"github.com/oggyb/datenight/internal/service/profile"
)

func main() {
	_ = godotenv.Load()
	cfg := config.New()

	// Init logger (global singleton)
	logger.InitFromConfig(cfg)
	log := logger.L()

	// Init DB
	database, err := db.NewDB(cfg)
	if err != nil {
		log.Error("failed to init db", "err", err)
		return
	}

	// Init Redis
	redisCache := cache.NewRedisCache(cfg)
	if err := redisCache.Ping(context.Background()); err != nil {
		log.Error("failed to connect to redis", "err", err)
		return
	}

	resolver := geo.NewResolver(database, redisCache, geo.NewStaticGeocoder())
	notifier := notify.NewLogNotifier(log)

	appCtx := app.New(cfg, database, redisCache, log, resolver, notifier)

	registrars := []server.Registrar{
		profile.NewRegistrar(appCtx),
		matching.NewRegistrar(appCtx),
		premium.NewRegistrar(appCtx),
	}

	if cfg.App.ENV == "development" {
		if err := db.SeedTestData(database); err != nil {
			log.Error("failed to seed", "err", err)
		}
	}

	addr := cfg.HTTP.Host + ":" + cfg.HTTP.Port
	log.Info("starting HTTP server", "addr", addr)

	if err := server.StartHTTPServer(cfg, registrars...); err != nil {
		log.Error("failed to start HTTP server", "err", err)
	}
}
