package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/gin-gonic/gin"
	apirest "github.com/nvoropaev/concord/api/rest"
	"github.com/nvoropaev/concord/api/sse"
	apows "github.com/nvoropaev/concord/api/ws"
	"github.com/nvoropaev/concord/audit"
	"github.com/nvoropaev/concord/cache"
	"github.com/nvoropaev/concord/chat"
	"github.com/nvoropaev/concord/config"
	dbadapter "github.com/nvoropaev/concord/db"
	mw "github.com/nvoropaev/concord/middleware"
	"github.com/nvoropaev/concord/model"
	"github.com/nvoropaev/concord/moderation"
	"github.com/nvoropaev/concord/realtime"
	"github.com/nvoropaev/concord/scheduler"
	"github.com/nvoropaev/concord/social"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	logger.Info("DB initialized")

	// ---- Cache / PubSub ----
	cacheConfig := cache.Config{
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		LocalGCInterval: cfg.Cache.LocalGCInterval,
		LocalPubSubBuf:  cfg.Cache.LocalPubSubBuf,
	}
	c, err := cache.NewCache(cacheConfig)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	pubsub, err := cache.NewPubSub(cacheConfig)
	if err != nil {
		log.Fatalf("pubsub: %v", err)
	}
	logger.Info("Cache initialized")

	// ---- Services ----
	auditSvc := audit.New(db, logger)
	sanctions := moderation.New(db, auditSvc, logger)
	socialMgr := social.New(db, logger)
	ledger := chat.New(db, sanctions, chat.Limits{
		HistoryLimit:  cfg.Chat.HistoryLimit,
		SearchLimit:   cfg.Chat.SearchLimit,
		MaxContentLen: cfg.Chat.MaxContentLen,
	}, logger)

	// ---- Realtime ----
	sm := realtime.NewSessionManager(logger)
	bc := realtime.NewBroadcaster(sm, pubsub, logger)
	if err := bc.Start(context.Background()); err != nil {
		log.Fatalf("broadcaster: %v", err)
	}
	defer bc.Close()
	defer sm.CloseAll()

	// ---- Scheduler ----
	sched := scheduler.New(logger)
	defer sched.Stop()
	if cfg.Chat.MuteSweepEvery > 0 {
		grace := cfg.Chat.MuteSweepGrace
		sched.AddTicker("mute-sweep", cfg.Chat.MuteSweepEvery, func() {
			if _, err := sanctions.SweepExpired(context.Background(), grace); err != nil {
				logger.Warn("mute sweep failed", zap.Error(err))
			}
		})
	}

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst))

	// Health check
	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	// ---- REST API routes ----
	authH := apirest.NewAuthHandler(db, c, sanctions, cfg.Security)
	socialH := apirest.NewSocialHandler(socialMgr, sm, bc, logger)
	msgH := apirest.NewMessagesHandler(ledger, bc, logger)
	adminH := apirest.NewAdminHandler(db, sanctions, auditSvc, sm, bc, pubsub, cfg.Chat.AuditListLimit, logger)

	api := r.Group("/api")
	{
		authG := api.Group("/auth")
		authG.POST("/login", authH.Login)
		authG.POST("/logout", mw.Auth(cfg.Security, c), authH.Logout)
		authG.POST("/refresh", mw.Auth(cfg.Security, c), authH.Refresh)

		friendsG := api.Group("/friends")
		friendsG.Use(mw.Auth(cfg.Security, c))
		friendsG.GET("", socialH.ListFriends)
		friendsG.GET("/pending", socialH.ListPending)
		friendsG.POST("/request", socialH.SendRequest)
		friendsG.POST("/accept", socialH.AcceptRequest)
		friendsG.POST("/reject", socialH.RejectRequest)
		friendsG.DELETE("/:id", socialH.RemoveFriend)

		msgG := api.Group("/messages")
		msgG.Use(mw.Auth(cfg.Security, c))
		msgG.GET("", msgH.List)
		msgG.POST("", msgH.Create)
		msgG.GET("/pinned", msgH.ListPinned)
		msgG.GET("/search", msgH.Search)
		msgG.PUT("/:id", msgH.Edit)
		msgG.DELETE("/:id", msgH.Delete)
		msgG.POST("/:id/pin", msgH.Pin)
		msgG.POST("/:id/unpin", msgH.Unpin)

		adminG := api.Group("/admin")
		adminG.Use(mw.Auth(cfg.Security, c), mw.AdminAuth(db))
		if len(cfg.Server.AdminIPs) > 0 {
			adminG.Use(mw.IPWhitelist(cfg.Server.AdminIPs))
		}
		adminG.POST("/ban", adminH.Ban)
		adminG.POST("/unban", adminH.Unban)
		adminG.POST("/mute", adminH.Mute)
		adminG.POST("/unmute", adminH.Unmute)
		adminG.GET("/banned", adminH.ListBanned)
		adminG.GET("/muted", adminH.ListMuted)
		adminG.GET("/logs", adminH.ListLogs)
		adminG.GET("/users", adminH.ListUsers)
		adminG.POST("/announce", adminH.Announce)
	}

	// ---- WebSocket ----
	wsRouter := apows.NewRouter(logger)
	apows.RegisterChatHandlers(wsRouter, ledger, bc, logger)
	wsH := apows.NewHandler(db, c, cfg.Security, sm, bc, wsRouter, logger)
	r.GET("/ws", wsH.ServeWS)

	// ---- SSE ----
	sseH := sse.NewHandler(pubsub, c, cfg.Security, logger)
	r.GET("/sse", sseH.ServeSSE)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Info("Server listening", zap.String("addr", addr))
	if err := r.Run(addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
