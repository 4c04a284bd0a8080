package server

import (
	"fmt"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/oggyb/datenight/internal/config"
)

// NewRouter builds the gin engine with middleware and all service routes.
func NewRouter(cfg *config.Config, registrars ...Registrar) *gin.Engine {
	if cfg.App.ENV != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(), cors.Default())

	if cfg.Telegram.BotToken != "" {
		router.Use(TelegramAuth(cfg.Telegram.BotToken))
	}

	v1 := router.Group("/v1")
	for _, r := range registrars {
		r.Register(v1)
	}

	return router
}

// StartHTTPServer boots the HTTP server and blocks.
func StartHTTPServer(cfg *config.Config, registrars ...Registrar) error {
	router := NewRouter(cfg, registrars...)
	addr := fmt.Sprintf("%s:%s", cfg.HTTP.Host, cfg.HTTP.Port)
	return router.Run(addr)
}
