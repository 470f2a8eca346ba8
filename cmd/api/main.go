package main

import (
	"context"
	"log"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	limiter "github.com/ulule/limiter/v3"
	"go.uber.org/zap"

	_ "backend/api/swagger" // swagger docs
	"backend/internal/auth"
	"backend/internal/config"
	"backend/internal/database"
	"backend/internal/handler"
	"backend/internal/middleware"
	"backend/internal/repository"
	"backend/internal/service"
	"backend/pkg/logging"
)

// @title           Access Control API
// @version         1.0
// @description     User management with role-based access control and JWT authentication.
// @host            localhost:8080
// @BasePath        /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	if err := godotenv.Load("configs/.env"); err != nil {
		log.Println("No configs/.env file found or error loading it")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Configuration failed: %v", err)
	}

	logger := logging.Init(cfg.GinMode)
	defer logging.Sync()

	gin.SetMode(cfg.GinMode)

	db, err := database.NewConnection(cfg.DSN())
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	logger.Info("connected to postgres")

	redisClient, err := database.NewRedis(cfg.RedisAddr)
	if err != nil {
		logger.Fatal("redis connection failed", zap.Error(err))
	}
	logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))

	tokenManager := auth.NewManager(auth.ManagerConfig{
		Secret:        []byte(cfg.JWTSecret),
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
		RotateRefresh: cfg.RotateRefreshTokens,
		Blacklist:     auth.NewRedisBlacklist(redisClient),
	})

	// Repository -> Service -> Gate -> Handler
	userRepo := repository.NewUserRepository(db)
	roleRepo := repository.NewRoleRepository(db)
	permRepo := repository.NewPermissionRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	txManager := repository.NewTransactionManager(db)

	userService := service.NewUserService(userRepo, auditRepo, logger)
	rbacService := service.NewRBACService(userRepo, roleRepo, permRepo, auditRepo, txManager, logger)
	authService := service.NewAuthService(userRepo, tokenManager, userService, auditRepo, logger)
	auditService := service.NewAuditService(auditRepo)

	gate := middleware.NewGate(tokenManager, authService, roleRepo, logger)

	limitStore, err := middleware.NewRedisRateLimitStore(redisClient)
	if err != nil {
		logger.Fatal("rate limit store init failed", zap.Error(err))
	}
	authRate, err := limiter.NewRateFromFormatted(cfg.AuthRateLimit)
	if err != nil {
		logger.Fatal("invalid AUTH_RATE_LIMIT", zap.Error(err))
	}
	apiRate, err := limiter.NewRateFromFormatted(cfg.APIRateLimit)
	if err != nil {
		logger.Fatal("invalid API_RATE_LIMIT", zap.Error(err))
	}
	loginLimit := middleware.RateLimit(limitStore, authRate)
	apiLimit := middleware.RateLimit(limitStore, apiRate)

	authHandler := handler.NewAuthHandler(authService, gate, loginLimit, apiLimit)
	userHandler := handler.NewUserHandler(userService, gate)
	roleHandler := handler.NewRoleHandler(rbacService, gate)
	auditHandler := handler.NewAuditHandler(auditService, gate)

	if cfg.SeedRBAC {
		result, err := rbacService.Seed(context.Background())
		if err != nil {
			logger.Fatal("rbac seed failed", zap.Error(err))
		}
		logger.Info("rbac catalog seeded",
			zap.Int("permissions_created", result.PermissionsCreated),
			zap.Int("roles_created", result.RolesCreated))
	}

	router := gin.Default()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "OK"})
	})

	api := router.Group("/api/v1")
	authHandler.RegisterRoutes(api)
	userHandler.RegisterRoutes(api)
	roleHandler.RegisterRoutes(api)
	auditHandler.RegisterRoutes(api)

	logger.Info("server listening", zap.String("port", cfg.Port))
	if err := router.Run(":" + cfg.Port); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}
