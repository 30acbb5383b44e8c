package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/chirm-app/chirm-server/config"
	"github.com/chirm-app/chirm-server/internal/handlers"
	"github.com/chirm-app/chirm-server/internal/middleware"
	"github.com/chirm-app/chirm-server/internal/presence"
	"github.com/chirm-app/chirm-server/internal/redis"
	"github.com/chirm-app/chirm-server/internal/registry"
	"github.com/chirm-app/chirm-server/internal/router"
)

func main() {
	// Load configuration
	cfg := config.Load()

	level := slog.LevelInfo
	if cfg.Environment == "development" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	reg := registry.New(logger)

	// Presence mirroring is optional; the registry works without Redis.
	var pres router.Presence
	if cfg.Redis.Enabled {
		if err := redis.Connect(context.Background(), cfg.Redis); err != nil {
			logger.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		defer redis.Close()
		logger.Info("Redis connection established")
		pres = presence.New(redis.GetClient(), logger)
	}

	rt := router.New(reg, pres, logger)

	// Setup Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()

	// Global CORS middleware (runs before routing)
	r.Use(handlers.OriginFilter(cfg.AllowedOrigins))

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	apiGroup := r.Group("/api")
	{
		// Login endpoint (public)
		apiGroup.POST("/auth/login", handlers.Login(cfg.JWTSecret))

		// Connected-client snapshot (requires JWT)
		apiGroup.GET("/clients", middleware.JWTAuth(cfg.JWTSecret), handlers.ListClients(reg))
	}

	// WebSocket signaling endpoint
	r.GET("/ws", handlers.HandleSignaling(rt, logger))

	logger.Info("signaling server listening", "url", "ws://localhost:"+cfg.Port+"/ws")
	if err := r.Run(":" + cfg.Port); err != nil {
		logger.Error("failed to start server", "error", err)
		os.Exit(1)
	}
}
