package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	ginprometheus "github.com/zsais/go-gin-prometheus"

	"github.com/titabash/gemini-hackathon-game-sub000/internal/clients"
	"github.com/titabash/gemini-hackathon-game-sub000/internal/config"
	"github.com/titabash/gemini-hackathon-game-sub000/internal/handler"
	"github.com/titabash/gemini-hackathon-game-sub000/internal/logger"
	"github.com/titabash/gemini-hackathon-game-sub000/internal/middleware"
	"github.com/titabash/gemini-hackathon-game-sub000/internal/repository"
	"github.com/titabash/gemini-hackathon-game-sub000/internal/service"
	"github.com/titabash/gemini-hackathon-game-sub000/migrations"
	"github.com/titabash/gemini-hackathon-game-sub000/pkg/migration"
)

func main() {
	// --- Configuration ---
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using environment variables")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// --- Logger Setup ---
	log, err := logger.New(logger.Config{
		Level:    cfg.LogLevel,
		Encoding: cfg.LogEncoding,
	})
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	zap.ReplaceGlobals(log)
	zap.L().Info("Logger initialized successfully", zap.String("logLevel", cfg.LogLevel))

	// --- External Connections ---
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pgPool, err := setupPostgres(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer pgPool.Close()
	zap.L().Info("Connected to PostgreSQL")

	migrator := migration.NewMigrator(migration.Config{
		MigrationsPath: ".",
		MigrationsFS:   migrations.FS,
	}, pgPool, log)
	if err := migrator.Up(); err != nil {
		zap.L().Fatal("Failed to apply database migrations", zap.Error(err))
	}
	zap.L().Info("Database migrations applied")

	redisClient, err := setupRedis(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	zap.L().Info("Connected to Redis")

	// --- Clients ---
	llmClient, err := clients.NewOpenAIClient(clients.OpenAIConfig{
		APIKey:     cfg.LLMAPIKey,
		BaseURL:    cfg.LLMBaseURL,
		ModelName:  cfg.LLMModel,
		ImageModel: cfg.ImageModel,
		Timeout:    cfg.LLMTimeout,
		MaxRetries: cfg.LLMMaxRetries,
	}, log)
	if err != nil {
		zap.L().Fatal("Failed to initialize LLM client", zap.Error(err))
	}

	musicClient, err := clients.NewHTTPMusicClient(clients.MusicConfig{
		APIKey:  cfg.MusicAPIKey,
		BaseURL: cfg.MusicBaseURL,
		Model:   cfg.MusicModel,
		Timeout: cfg.MusicTimeout,
	}, log)
	if err != nil {
		zap.L().Fatal("Failed to initialize music client", zap.Error(err))
	}

	storageClient := clients.NewSupabaseStorageClient(cfg.StorageBaseURL, cfg.StorageServiceKey, log)

	// --- Repositories ---
	sessionRepo := repository.NewPgSessionRepository(pgPool, log)
	scenarioRepo := repository.NewPgScenarioRepository(pgPool, log)
	playerRepo := repository.NewPgPlayerCharacterRepository(pgPool, log)
	npcRepo := repository.NewPgNpcRepository(pgPool, log)
	relationRepo := repository.NewPgNpcRelationshipRepository(pgPool, log)
	turnRepo := repository.NewPgTurnRepository(pgPool, log)
	summaryRepo := repository.NewPgContextSummaryRepository(pgPool, log)
	objectiveRepo := repository.NewPgObjectiveRepository(pgPool, log)
	itemRepo := repository.NewPgItemRepository(pgPool, log)
	backgroundRepo := repository.NewPgSceneBackgroundRepository(pgPool, log)
	bgmRepo := repository.NewPgBgmRepository(pgPool, log)
	lockRepo := repository.NewRedisTurnLockRepository(redisClient, log)

	// --- Services ---
	contextSvc := service.NewContextService(service.ContextServiceDeps{
		Sessions:    sessionRepo,
		Scenarios:   scenarioRepo,
		Players:     playerRepo,
		Npcs:        npcRepo,
		Relations:   relationRepo,
		Turns:       turnRepo,
		Summaries:   summaryRepo,
		Objectives:  objectiveRepo,
		Items:       itemRepo,
		Backgrounds: backgroundRepo,
		LLM:         llmClient,
	}, log)
	conditionSvc := service.NewConditionService(log)
	turnLimitSvc := service.NewTurnLimitService()
	actionSvc := service.NewActionResolutionService(rand.New(rand.NewSource(time.Now().UnixNano())))
	mutationSvc := service.NewStateMutationService(sessionRepo, playerRepo, itemRepo, npcRepo, relationRepo, objectiveRepo, log)
	cloneSvc := service.NewNpcCloneService(npcRepo, relationRepo, log)
	bridge := service.NewGenUIBridge(log)
	assetSvc := service.NewAssetService(backgroundRepo, npcRepo, llmClient, storageClient, log)
	bgmSvc := service.NewBgmService(pgPool, bgmRepo, musicClient, storageClient, log)

	turnSvc := service.NewGmTurnService(service.GmTurnServiceDeps{
		Pool:       pgPool,
		Locks:      lockRepo,
		Sessions:   sessionRepo,
		Scenarios:  scenarioRepo,
		Turns:      turnRepo,
		Npcs:       npcRepo,
		LLM:        llmClient,
		Context:    contextSvc,
		Conditions: conditionSvc,
		TurnLimits: turnLimitSvc,
		Actions:    actionSvc,
		Mutations:  mutationSvc,
		Cloner:     cloneSvc,
		Bridge:     bridge,
		Assets:     assetSvc,
		Bgm:        bgmSvc,
	}, log)

	gmHandler := handler.NewGmHandler(turnSvc, log)
	bgmHandler := handler.NewBgmHandler(bgmSvc, cfg.JWTSecret, log)

	// --- HTTP Server Setup (Gin) ---
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.RedirectTrailingSlash = true
	router.Use(middleware.ZapLogger(log))
	router.Use(gin.Recovery())

	p := ginprometheus.NewPrometheus("gin")

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	healthHandler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
	router.GET("/health", healthHandler)
	router.HEAD("/health", healthHandler)

	gmHandler.RegisterRoutes(router)
	bgmHandler.RegisterRoutes(router)

	// Применяем Prometheus middleware после регистрации роутов
	p.Use(router)

	// --- Start HTTP Server ---
	// WriteTimeout нулевой: SSE-поток хода и WebSocket BGM живут дольше
	// любого разумного фиксированного таймаута записи.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	zap.L().Info("Starting HTTP server", zap.String("port", cfg.Port))

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zap.L().Fatal("HTTP Server listen error", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zap.L().Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.L().Error("HTTP Server forced to shutdown", zap.Error(err))
	}

	zap.L().Info("Server exiting")
}

// setupPostgres initializes the PostgreSQL connection pool with retry logic.
func setupPostgres(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	zap.L().Debug("Setting up PostgreSQL connection...")

	poolConfig, err := pgxpool.ParseConfig(cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("unable to parse postgres config: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.DBMaxConns)
	poolConfig.MaxConnIdleTime = cfg.DBIdleTimeout

	var pool *pgxpool.Pool
	var lastErr error
	maxRetries := 50
	retryDelay := 3 * time.Second

	zap.L().Info("Attempting to connect to PostgreSQL", zap.Int("max_retries", maxRetries), zap.Duration("retry_delay", retryDelay))

	for i := 0; i < maxRetries; i++ {
		attempt := i + 1
		connectCtx, connectCancel := context.WithTimeout(context.Background(), 5*time.Second)
		pool, err = pgxpool.NewWithConfig(connectCtx, poolConfig)
		connectCancel()

		if err != nil {
			lastErr = fmt.Errorf("unable to create postgres connection pool (attempt %d/%d): %w", attempt, maxRetries, err)
			zap.L().Warn("Postgres connection pool creation failed, retrying...",
				zap.Int("attempt", attempt),
				zap.Int("max_retries", maxRetries),
				zap.Error(err),
			)
			if i < maxRetries-1 {
				time.Sleep(retryDelay)
			}
			continue
		}

		pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
		err = pool.Ping(pingCtx)
		pingCancel()
		if err != nil {
			lastErr = fmt.Errorf("unable to ping postgres (attempt %d/%d): %w", attempt, maxRetries, err)
			pool.Close()
			zap.L().Warn("Postgres ping failed, retrying...",
				zap.Int("attempt", attempt),
				zap.Int("max_retries", maxRetries),
				zap.Error(err),
			)
			if i < maxRetries-1 {
				time.Sleep(retryDelay)
			}
			continue
		}

		zap.L().Info("PostgreSQL connection established", zap.Int("attempt", attempt))
		return pool, nil
	}

	return nil, fmt.Errorf("postgres connection failed after %d attempts: %w", maxRetries, lastErr)
}

// setupRedis initializes the Redis client used for per-session turn locks.
func setupRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
	defer pingCancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("unable to connect to redis: %w", err)
	}
	return client, nil
}
