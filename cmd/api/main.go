package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/aheroglu/devbattle-api/internal/config"
	"github.com/aheroglu/devbattle-api/internal/handler"
	"github.com/aheroglu/devbattle-api/internal/middleware"
	pgRepo "github.com/aheroglu/devbattle-api/internal/repository/postgres"
	redisRepo "github.com/aheroglu/devbattle-api/internal/repository/redis"
	"github.com/aheroglu/devbattle-api/internal/service"
	"github.com/aheroglu/devbattle-api/internal/service/battlemanager"
	"github.com/aheroglu/devbattle-api/internal/service/judge"
	ws "github.com/aheroglu/devbattle-api/internal/websocket"
	"github.com/aheroglu/devbattle-api/pkg/auth"
	"github.com/aheroglu/devbattle-api/pkg/database"
)

func main() {
	// Загружаем конфигурацию
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	log.Printf("Загрузка конфигурации из %s", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		os.Exit(1)
	}

	// Инициализируем подключение к PostgreSQL
	db, err := database.NewPostgresDB(cfg.Database.PostgresConnectionString())
	if err != nil {
		log.Printf("Failed to connect to database: %v", err)
		os.Exit(1)
	}

	// Применяем миграции
	if err := database.MigrateDB(db); err != nil {
		log.Printf("Failed to migrate database: %v", err)
		os.Exit(1)
	}

	// Инициализируем подключение к Redis
	redisClient, err := database.NewUniversalRedisClient(cfg.Redis)
	if err != nil {
		log.Printf("Failed to connect to Redis: %v", err)
		os.Exit(1)
	}
	log.Println("Successfully connected to Redis")

	// Инициализируем репозитории
	userRepo := pgRepo.NewUserRepo(db)
	battleRepo := pgRepo.NewBattleRepo(db)
	participantRepo := pgRepo.NewParticipantRepo(db)
	problemRepo := pgRepo.NewProblemRepo(db)
	submissionRepo := pgRepo.NewSubmissionRepo(db)

	cacheRepo, err := redisRepo.NewCacheRepo(redisClient)
	if err != nil {
		log.Printf("Failed to initialize CacheRepo: %v", err)
		os.Exit(1)
	}

	// Корневой контекст приложения: управляет жизненным циклом фоновых горутин
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// JWT
	jwtService, err := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpirationHrs, cfg.JWT.WSTicketExpirySec)
	if err != nil {
		log.Printf("Failed to initialize JWTService: %v", err)
		os.Exit(1)
	}

	// WebSocket: хаб + менеджер
	wsHub := ws.NewHub()
	wsManager := ws.NewManager(wsHub)

	// Координатор битв: планировщик дедлайнов, нотификатор, присутствие
	bmConfig := battlemanager.DefaultConfig()
	if cfg.Battle.PresenceSweepIntervalSec > 0 {
		bmConfig.PresenceSweepInterval = time.Duration(cfg.Battle.PresenceSweepIntervalSec) * time.Second
	}
	bmDeps := &battlemanager.Dependencies{
		BattleRepo: battleRepo,
		CacheRepo:  cacheRepo,
		WSManager:  wsManager,
		Config:     bmConfig,
	}
	scheduler := battlemanager.NewScheduler(ctx, bmConfig, bmDeps)
	notifier := battlemanager.NewNotifier(wsManager)
	presence := battlemanager.NewPresence(bmConfig, bmDeps, notifier)

	// Присутствие подключается к жизненному циклу соединений хаба
	wsHub.SetConnectionCallbacks(presence.HandleConnect, presence.HandleDisconnect)
	go wsHub.Run()
	go presence.Run(ctx)

	// Судейский клиент (заглушка при пустом JUDGE_BASE_URL)
	judgeClient := judge.NewClient(cfg.Judge)

	// Сервисы
	authService, err := service.NewAuthService(userRepo, jwtService)
	if err != nil {
		log.Printf("Failed to initialize AuthService: %v", err)
		os.Exit(1)
	}
	battleService := service.NewBattleService(battleRepo, participantRepo, problemRepo, userRepo, scheduler, notifier, cfg.Battle.MinSolversToStart)
	participantService := service.NewParticipantService(battleRepo, participantRepo, submissionRepo, userRepo, cacheRepo, battleService, notifier)
	submissionService := service.NewSubmissionService(battleRepo, participantRepo, submissionRepo, problemRepo, judgeClient, participantService, notifier, cfg.Battle.MaxCodeSize)

	// Восстанавливаем таймеры активных битв после рестарта
	if err := battleService.RearmActiveBattles(); err != nil {
		log.Printf("Warning: failed to re-arm active battle timers: %v", err)
	}
	go battleService.RunTimeoutLoop(ctx)

	// Обработчики
	authHandler := handler.NewAuthHandler(authService)
	battleHandler := handler.NewBattleHandler(battleService, participantService, submissionService)
	adminHandler := handler.NewAdminHandler(battleService, participantService, submissionService, problemRepo, notifier)
	wsHandler := handler.NewWSHandler(wsHub, wsManager, battleService, participantService, presence, notifier, jwtService)

	// Middleware
	authMiddleware := middleware.NewAuthMiddleware(jwtService)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Роутер Gin
	router := gin.Default()

	isProduction := gin.Mode() == gin.ReleaseMode
	if isProduction {
		// Production: не доверять прокси-заголовкам
		if err := router.SetTrustedProxies(nil); err != nil {
			log.Printf("Warning: failed to set trusted proxies: %v", err)
		}
	} else {
		if err := router.SetTrustedProxies([]string{"127.0.0.1", "::1"}); err != nil {
			log.Printf("Warning: failed to set trusted proxies: %v", err)
		}
	}

	// Настройка CORS
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"https://devbattle.app", "http://localhost:5173", "http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Настраиваем маршруты API
	api := router.Group("/api")
	{
		// Аутентификация
		authGroup := api.Group("/auth")
		{
			authGroup.POST("/register", rateLimiter.Limit(middleware.StrictAuthRateLimitConfig()), authHandler.Register)
			authGroup.POST("/login", rateLimiter.Limit(middleware.StrictAuthRateLimitConfig()), authHandler.Login)

			authedAuth := authGroup.Group("/")
			authedAuth.Use(authMiddleware.RequireAuth())
			{
				authedAuth.GET("/me", authHandler.GetMe)
				authedAuth.POST("/ws-ticket", authHandler.GenerateWsTicket)
			}
		}

		// Битвы
		battles := api.Group("/battles")
		battles.Use(authMiddleware.RequireAuth())
		{
			battles.POST("", battleHandler.Create)
			battles.GET("", battleHandler.List)

			battleWithID := battles.Group("/:id")
			battleWithID.Use(middleware.ExtractUintParam("id", "battle_id"))
			{
				battleWithID.GET("", battleHandler.Get)
				battleWithID.PUT("", battleHandler.Update)
				battleWithID.DELETE("", battleHandler.Delete)
				battleWithID.POST("/join", battleHandler.Join)
				battleWithID.POST("/leave", battleHandler.Leave)
				battleWithID.POST("/start", battleHandler.Start)
				battleWithID.POST("/end", battleHandler.End)
				battleWithID.GET("/participants", battleHandler.Participants)
				battleWithID.POST("/submissions", rateLimiter.Limit(middleware.SubmitRateLimitConfig()), battleHandler.Submit)
				battleWithID.GET("/submissions", battleHandler.Submissions)
			}
		}

		// Администрирование
		admin := api.Group("/admin")
		admin.Use(authMiddleware.RequireAuth(), authMiddleware.AdminOnly())
		{
			adminBattle := admin.Group("/battles/:id")
			adminBattle.Use(middleware.ExtractUintParam("id", "battle_id"))
			{
				adminBattle.POST("/timeout", adminHandler.ForceTimeout)
				adminBattle.GET("/export", adminHandler.ExportBattle)
			}

			admin.POST("/notify", adminHandler.Notify)

			problems := admin.Group("/problems")
			{
				problems.POST("", adminHandler.CreateProblem)
				problems.GET("", adminHandler.ListProblems)

				problemWithID := problems.Group("/:id")
				problemWithID.Use(middleware.ExtractUintParam("id", "problem_id"))
				{
					problemWithID.GET("", adminHandler.GetProblem)
					problemWithID.PUT("", adminHandler.UpdateProblem)
					problemWithID.DELETE("", adminHandler.DeleteProblem)
				}
			}
		}
	}

	// WebSocket маршрут
	router.GET("/ws", wsHandler.HandleConnection)

	// HTTP сервер с тайм-аутами для защиты от slow client attacks
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		log.Printf("Starting server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Failed to start server: %v", err)
		}
	}()

	log.Printf("Server started on port %s", cfg.Server.Port)

	// Graceful shutdown по SIGINT/SIGTERM
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Останавливаем фоновые горутины (таймеры, чистку присутствия)
	cancel()
	wsHub.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
		os.Exit(1)
	}

	log.Println("Server exited properly")
}
