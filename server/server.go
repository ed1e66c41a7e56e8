package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"OctaMuse/cache"
	"OctaMuse/config"
	"OctaMuse/core/credit"
	"OctaMuse/core/generation"
	"OctaMuse/core/media"
	"OctaMuse/core/provider"
	"OctaMuse/db"
	"OctaMuse/logger"
	"OctaMuse/model"
	"OctaMuse/repository"
	"OctaMuse/storage"

	"github.com/gorilla/mux"
)

// Start initializes and starts the HTTP server.
func Start() {
	cfg := config.Load()

	server := &http.Server{
		Addr:         cfg.ServerAddr,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// 初始化 MinIO 客户端
	if err := storage.InitMinio(cfg); err != nil {
		logger.Fatal("Failed to initialize MinIO", logger.ErrorField(err))
	}

	// Connect to the database
	if err := db.ConnectDB(cfg); err != nil {
		logger.Fatal("Failed to connect to database", logger.ErrorField(err))
	}
	defer db.DB.Close()

	if err := db.InitDB(); err != nil {
		logger.Fatal("Failed to initialize database", logger.ErrorField(err))
	}

	// GORM 连接，积分账本模块使用
	if err := db.ConnectGormDB(cfg); err != nil {
		logger.Fatal("Failed to connect GORM", logger.ErrorField(err))
	}
	defer db.CloseGormDB()
	if err := db.AutoMigrateModels(&model.UserStats{}); err != nil {
		logger.Fatal("Failed to migrate models", logger.ErrorField(err))
	}

	// Connect to Redis
	if err := db.ConnectRedis(cfg); err != nil {
		logger.Fatal("Failed to connect to Redis", logger.ErrorField(err))
	}
	defer db.CloseRedis()

	userRepo := repository.NewMySQLUserRepository(db.DB)
	trackRepo := repository.NewMySQLTrackRepository(db.DB)
	statsRepo := repository.NewGormStatsRepository(db.GormDB)

	sessions := cache.NewSessionStore(db.RedisClient, cfg.PendingTaskTTL)
	ledger := credit.NewLedger(statsRepo, cfg.CreditCostPerGeneration)
	providerClient := provider.NewClient(&provider.ClientConfig{
		APIBaseURL: cfg.MusicAPIBaseURL,
		APIKey:     cfg.MusicAPIKey,
	})
	republisher := media.NewRepublisher(storage.NewMinioUploader(cfg))
	orchestrator := generation.NewOrchestrator(providerClient, sessions, trackRepo, ledger, republisher, generation.Config{
		PollInterval:       cfg.PollInterval,
		PollMaxAttempts:    cfg.PollMaxAttempts,
		ResultDisplayDelay: cfg.ResultDisplayDelay,
	})

	apiHandler := NewAPIHandler(userRepo, trackRepo, ledger, orchestrator, sessions, cfg)

	router := mux.NewRouter()

	// 添加 CORS 中间件
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, HEAD")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	// 用户认证相关的API端点
	router.HandleFunc("/api/auth/register", apiHandler.RegisterHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/login", apiHandler.LoginHandler).Methods(http.MethodPost)

	// 音乐生成相关的API端点
	router.HandleFunc("/api/generate", apiHandler.AuthMiddleware(apiHandler.StartGenerationHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/generate/resume", apiHandler.AuthMiddleware(apiHandler.ResumeGenerationHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/generate/state", apiHandler.AuthMiddleware(apiHandler.GenerationStateHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/generate/stream", apiHandler.AuthMiddleware(apiHandler.GenerationStreamHandler)).Methods(http.MethodGet)

	// 曲库相关的API端点
	router.HandleFunc("/api/tracks", apiHandler.AuthMiddleware(apiHandler.ListTracksHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/tracks/{id}", apiHandler.AuthMiddleware(apiHandler.GetTrackHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/tracks/{id}", apiHandler.AuthMiddleware(apiHandler.DeleteTrackHandler)).Methods(http.MethodDelete)

	// 用户统计与积分相关的API端点
	router.HandleFunc("/api/stats", apiHandler.AuthMiddleware(apiHandler.GetStatsHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/stats/genre", apiHandler.AuthMiddleware(apiHandler.SetFavoriteGenreHandler)).Methods(http.MethodPut)
	router.HandleFunc("/api/stats/membership", apiHandler.AuthMiddleware(apiHandler.SetMembershipHandler)).Methods(http.MethodPut)

	server.Handler = router

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Server starting", logger.String("addr", cfg.ServerAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", logger.ErrorField(err))
		}
	}()

	<-stop
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", logger.ErrorField(err))
	}

	logger.Info("Server stopped")
}
