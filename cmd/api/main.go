package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/expensetrack/expense-api/api/swagger"
	"github.com/expensetrack/expense-api/internal/handler"
	"github.com/expensetrack/expense-api/internal/middleware"
	"github.com/expensetrack/expense-api/internal/models"
	"github.com/expensetrack/expense-api/internal/repository"
	"github.com/expensetrack/expense-api/internal/service"
	"github.com/expensetrack/expense-api/internal/session"
	"github.com/expensetrack/expense-api/pkg/cache"
	"github.com/expensetrack/expense-api/pkg/config"
	"github.com/expensetrack/expense-api/pkg/database"
	"github.com/expensetrack/expense-api/pkg/logger"
	corsmiddleware "github.com/expensetrack/expense-api/pkg/middleware/cors"
	"github.com/expensetrack/expense-api/pkg/middleware/ratelimit"
	reqidmiddleware "github.com/expensetrack/expense-api/pkg/middleware/requestid"
	"github.com/expensetrack/expense-api/pkg/middleware/secureheaders"
	"github.com/expensetrack/expense-api/pkg/storage"
)

// @title ExpenseTrack API
// @version 1.0.0
// @description Expense reimbursement service with session-based authentication
// @BasePath /api
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	// Redis is required for the redis session backend and for stats
	// caching; with the memory backend a missing Redis only disables
	// the cache.
	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		if cfg.Session.Backend == config.SessionBackendRedis {
			logr.Sugar().Fatalw("failed to connect to redis", "error", err)
		}
		logr.Sugar().Warnw("redis unavailable, stats caching disabled", "error", err)
		redisClient = nil
	}

	var sessionStore session.Store
	switch cfg.Session.Backend {
	case config.SessionBackendRedis:
		sessionStore = session.NewRedisStore(redisClient, cfg.Session.IdleTimeout)
	default:
		sessionStore = session.NewMemoryStore()
	}

	files, err := storage.NewLocalStorage(cfg.Uploads.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init upload storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Uploads.SignedURLSecret, cfg.Uploads.SignedURLTTL)

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	expenseRepo := repository.NewExpenseRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	auditSvc := service.NewAuditService(auditRepo, logr, metricsSvc)
	authSvc := service.NewAuthService(userRepo, sessionStore, auditSvc, validate, logr, metricsSvc, service.AuthConfig{
		JWTSecret:   cfg.Auth.JWTSecret,
		TokenTTL:    cfg.Auth.TokenTTL,
		IdleTimeout: cfg.Session.IdleTimeout,
		Issuer:      cfg.Auth.Issuer,
	})
	expenseSvc := service.NewExpenseService(expenseRepo, cacheRepo, files, signer, auditSvc, validate, logr, service.ExpenseConfig{
		MaxReceiptBytes: cfg.Uploads.MaxFileSizeBytes,
		AllowedMIMEs:    cfg.Uploads.AllowedMIMEs,
		StatsCacheTTL:   cfg.Stats.CacheTTL,
	})
	userSvc := service.NewUserService(userRepo, authSvc, auditSvc, validate, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	expenseHandler := handler.NewExpenseHandler(expenseSvc)
	userHandler := handler.NewUserHandler(userSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(secureheaders.Middleware())
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	apiLimiter := ratelimit.New(cfg.RateLimit.GlobalMax, cfg.RateLimit.GlobalWindow)
	authLimiter := ratelimit.New(cfg.RateLimit.AuthMax, cfg.RateLimit.AuthWindow)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group("/api", apiLimiter.Middleware())

	auth := api.Group("/auth")
	{
		auth.POST("/register", authLimiter.Middleware(), authHandler.Register)
		auth.POST("/login", authLimiter.Middleware(), authHandler.Login)

		authed := auth.Group("", middleware.Session(authSvc))
		authed.POST("/logout", authHandler.Logout)
		authed.GET("/me", authHandler.Me)
		authed.GET("/sessions", authHandler.Sessions)
		authed.POST("/sessions/end-all", authHandler.EndAllSessions)
		authed.POST("/change-password", authHandler.ChangePassword)
	}

	expenses := api.Group("/expenses", middleware.Session(authSvc))
	{
		expenses.POST("", expenseHandler.Submit)
		expenses.GET("/my", expenseHandler.MyExpenses)
		expenses.GET("/stats", expenseHandler.Stats)
		expenses.GET("/export", expenseHandler.Export)
		expenses.GET("", middleware.RequireRoles(models.RoleManager, models.RoleAdmin), expenseHandler.List)
		expenses.GET("/:id", expenseHandler.Get)
		expenses.PUT("/:id", expenseHandler.Update)
		expenses.DELETE("/:id", expenseHandler.Delete)
		expenses.PATCH("/:id/status", middleware.RequireRoles(models.RoleManager, models.RoleAdmin), expenseHandler.Review)
		expenses.GET("/:id/receipt-link", expenseHandler.ReceiptLink)
	}

	// Signed link carries its own credential, so no session middleware.
	api.GET("/expenses/:id/receipt", expenseHandler.DownloadReceipt)

	users := api.Group("/users", middleware.Session(authSvc), middleware.RequireRoles(models.RoleAdmin))
	{
		users.GET("", userHandler.List)
		users.PATCH("/:id", userHandler.Update)
		users.PATCH("/:id/role", userHandler.ChangeRole)
		users.DELETE("/:id", userHandler.Deactivate)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env, "session_backend", cfg.Session.Backend)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
