package main

import (
	"context"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"chat-sync-service/internal/config"
	"chat-sync-service/internal/db"
	"chat-sync-service/internal/handlers"
	"chat-sync-service/internal/middleware"
	"chat-sync-service/internal/observability"
	"chat-sync-service/internal/repositories"
	"chat-sync-service/internal/telemetry"
	"chat-sync-service/internal/ws"
)

const serviceName = "chat-sync-service"

func main() {
	cfg := config.Load()

	if cfg.IsDevelopment() {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	ctx := context.Background()

	shutdownTracing, err := telemetry.SetupTracing(ctx, serviceName, cfg.OTLPEndpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up tracing")
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Warn().Err(err).Msg("tracing shutdown failed")
		}
	}()

	publisher := observability.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	observability.SetPublisher(publisher)

	auditEmitter := telemetry.NewAuditEmitter(publisher, "audit.chat_sync", serviceName, cfg.Env)

	messageRepo, cleanup, err := buildMessageRepo(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.MessageBackend).Msg("failed to set up message store")
	}
	defer cleanup()

	hub := ws.NewHub(messageRepo, cfg.TypingTTL)

	messageHandler := handlers.NewMessageHandler(messageRepo)
	wsHandler := ws.NewWebSocketHandler(hub, auditEmitter)

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/messages/:conversation_id", messageHandler.GetMessages)
	router.GET("/ws", wsHandler.Handle)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) { c.JSON(200, gin.H{"status": "ok"}) })

	handlers.RegisterDebugRoutes(router, auditEmitter, cfg.DebugRoutes)

	log.Info().Str("port", cfg.Port).Str("backend", cfg.MessageBackend).Msg("server starting")
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}

func buildMessageRepo(ctx context.Context, cfg *config.Config) (repositories.MessageRepository, func(), error) {
	switch cfg.MessageBackend {
	case config.BackendRedis:
		repo, err := repositories.NewRedisMessageRepo(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return repo, func() { _ = repo.Close() }, nil
	default:
		database, err := db.Connect(cfg.DatabaseDSN)
		if err != nil {
			return nil, nil, err
		}
		return repositories.NewMessageRepo(database), func() { _ = database.Close() }, nil
	}
}
