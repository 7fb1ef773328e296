// Package main 是服务端的入口点
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"letter-learning-server/internal/cache"
	"letter-learning-server/internal/config"
	"letter-learning-server/internal/coze"
	"letter-learning-server/internal/handler"
	"letter-learning-server/internal/middleware"
	"letter-learning-server/internal/model"
	"letter-learning-server/internal/repository"
	"letter-learning-server/internal/service"
	"letter-learning-server/pkg/jwt"
	applog "letter-learning-server/pkg/logger"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func main() {
	// 加载配置
	cfg, err := config.Load("./configs")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化日志
	logg, err := applog.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logg.Sync()

	// 初始化数据库
	db, err := initDatabase(cfg)
	if err != nil {
		logg.Fatal("Failed to init database", "error", err)
	}

	// 自动迁移数据库表
	if err := autoMigrate(db); err != nil {
		logg.Fatal("Failed to migrate database", "error", err)
	}

	// 初始化 Redis
	redisCache, err := cache.NewRedisCache(cfg)
	if err != nil {
		logg.Fatal("Failed to init redis", "error", err)
	}

	// 初始化 JWT 服务
	jwtService := jwt.NewJWTService(
		cfg.JWT.Secret,
		cfg.JWT.AccessExpire,
		cfg.JWT.RefreshExpire,
	)

	// 初始化 Coze 客户端
	cozeClient := coze.NewClient(cfg.Coze)

	// 初始化 Repository 层
	userRepo := repository.NewUserRepository(db)
	storyRepo := repository.NewWordStoryRepository(db)
	planRepo := repository.NewUserWordBookRepository(db)
	chatRepo := repository.NewAiChatRepository(db)

	// 初始化 Service 层
	authService := service.NewAuthService(userRepo, redisCache, jwtService)
	userService := service.NewUserService(userRepo)
	storyService := service.NewWordStoryService(storyRepo, planRepo, cozeClient, redisCache, logg)
	chatService := service.NewAiChatService(chatRepo, cozeClient, logg)

	// 初始化 Handler 层
	authHandler := handler.NewAuthHandler(authService)
	userHandler := handler.NewUserHandler(userService)
	storyHandler := handler.NewWordStoryHandler(storyService, userService)
	chatHandler := handler.NewAiChatHandler(chatService, userService)

	// 设置 Gin 模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建 Gin 引擎
	router := gin.New()

	// 全局中间件
	router.Use(middleware.RecoveryMiddleware(logg))        // 恢复 panic
	router.Use(middleware.RequestIDMiddleware())           // 请求标识
	router.Use(middleware.LoggerMiddleware(logg))          // 请求日志
	router.Use(middleware.CORSMiddleware(cfg.Server.CORS)) // CORS

	// 注册路由
	registerRoutes(router, jwtService, redisCache, authHandler, userHandler, storyHandler, chatHandler)

	// 创建 HTTP 服务器
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: router,
		// 写超时必须覆盖 Coze 流式调用的完整耗时
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.Coze.RequestTimeout + 30*time.Second,
	}

	// 在 goroutine 中启动服务器
	go func() {
		logg.Info("Server starting", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logg.Fatal("Server failed", "error", err)
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logg.Info("Shutting down server...")

	// 创建关闭上下文，设置超时
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// 关闭 HTTP 服务器
	if err := server.Shutdown(ctx); err != nil {
		logg.Fatal("Server forced to shutdown", "error", err)
	}

	// 关闭 Redis 连接
	if err := redisCache.Close(); err != nil {
		logg.Warn("Failed to close redis", "error", err)
	}

	logg.Info("Server exited")
}

// initDatabase 初始化数据库连接
func initDatabase(cfg *config.Config) (*gorm.DB, error) {
	// 构建 DSN (Data Source Name)
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=Local",
		cfg.MySQL.Username,
		cfg.MySQL.Password,
		cfg.MySQL.Host,
		cfg.MySQL.Port,
		cfg.MySQL.Database,
		cfg.MySQL.Charset,
	)

	// 配置 GORM logger
	gormLogger := gormlogger.Default.LogMode(gormlogger.Info)
	if cfg.Server.Mode == "release" {
		gormLogger = gormlogger.Default.LogMode(gormlogger.Warn)
	}

	// 连接数据库
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	// 获取底层 sql.DB
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	// 配置连接池
	sqlDB.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.MySQL.MaxLifetime) * time.Second)

	return db, nil
}

// autoMigrate 自动迁移数据库表
func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.User{},
		&model.WordBook{},
		&model.WordBookWord{},
		&model.UserWordBook{},
		&model.UserWordBookWord{},
		&model.WordStory{},
		&model.AiChatSession{},
		&model.AiChatMessage{},
	)
}

// registerRoutes 注册所有路由
func registerRoutes(
	router *gin.Engine,
	jwtService *jwt.JWTService,
	redisCache *cache.RedisCache,
	authHandler *handler.AuthHandler,
	userHandler *handler.UserHandler,
	storyHandler *handler.WordStoryHandler,
	chatHandler *handler.AiChatHandler,
) {
	// 健康检查
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")

	// 认证相关（无需登录）
	auth := api.Group("/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.RefreshToken) // 刷新 Token
		// 登出需要携带有效 Token
		auth.POST("/logout", middleware.AuthMiddleware(jwtService, redisCache), authHandler.Logout)
	}

	// 用户相关（需要登录）
	users := api.Group("/users")
	users.Use(middleware.AuthMiddleware(jwtService, redisCache))
	{
		users.GET("/me", userHandler.GetProfile)
		users.PUT("/me", userHandler.UpdateProfile)
		users.PUT("/me/password", userHandler.ChangePassword)
	}

	// 每日短文（需要登录）
	stories := api.Group("/word-stories")
	stories.Use(middleware.AuthMiddleware(jwtService, redisCache))
	{
		stories.GET("/today", storyHandler.GetToday)
		stories.POST("/generate", storyHandler.Generate)
		stories.GET("/history", storyHandler.History)
	}

	// AI 对话（需要登录）
	chats := api.Group("/ai-chats")
	chats.Use(middleware.AuthMiddleware(jwtService, redisCache))
	{
		chats.POST("", chatHandler.Start)
		chats.GET("/:id", chatHandler.Detail)
		chats.POST("/:id/messages", chatHandler.Send)
	}
}
