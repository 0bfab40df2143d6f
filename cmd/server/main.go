package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/aiamusic/api/internal/auth"
	"github.com/aiamusic/api/internal/client"
	"github.com/aiamusic/api/internal/config"
	"github.com/aiamusic/api/internal/handler"
	"github.com/aiamusic/api/internal/middleware"
	"github.com/aiamusic/api/internal/model"
	"github.com/aiamusic/api/internal/service"
	"github.com/aiamusic/api/internal/store"
	"github.com/aiamusic/api/internal/worker"
	ws "github.com/aiamusic/api/internal/websocket"
	"github.com/aiamusic/api/pkg/response"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to MySQL and run migrations
	db, err := store.Open(&cfg.Database, cfg.Server.LogLevel)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx := context.Background()
	redisAvailable := true
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
		redisAvailable = false
	}

	// Initialize Asynq client
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	// Initialize validator
	validate := validator.New()

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Initialize external clients
	sunoClient := client.NewSunoClient(&cfg.Suno, cfg.CallbackURL())

	// Initialize R2 client (optional - continues if not configured)
	var storage client.StorageClient
	if cfg.R2.AccessKeyID != "" && cfg.R2.SecretAccessKey != "" {
		r2Client, err := client.NewR2Client(&cfg.R2)
		if err != nil {
			log.Printf("Warning: R2 client not initialized: %v", err)
		} else {
			storage = r2Client
		}
	} else {
		log.Println("Info: R2 storage not configured, archival disabled")
	}

	// Initialize OIDC JWKS verifier (optional - falls back to first-party JWT)
	var jwksVerifier *auth.JWKSVerifier
	if cfg.OIDC.Issuer != "" {
		jwksVerifier, err = auth.NewJWKSVerifier(&cfg.OIDC)
		if err != nil {
			log.Printf("Warning: JWKS verifier not initialized: %v", err)
		} else {
			defer jwksVerifier.Close()
		}
	}

	// Initialize services
	archiveService := service.NewArchiveService(db.Songs, storage, hub)
	var scheduler service.ArchiveScheduler
	if redisAvailable {
		scheduler = worker.NewAsynqArchiveScheduler(asynqClient)
	} else {
		scheduler = worker.NewSyncArchiveScheduler(archiveService)
	}
	songService := service.NewSongService(db.Songs, db.Styles, sunoClient, storage, archiveService)
	reconcileService := service.NewReconcileService(db.Songs, sunoClient, scheduler, hub)
	authService := service.NewAuthService(db.Users, cfg.JWT.Secret, cfg.JWT.Expiration)

	// Initialize handlers
	authHandler := handler.NewAuthHandler(authService, db.Users, validate, cfg.JWT.Secret)
	songHandler := handler.NewSongHandler(songService, reconcileService, archiveService, validate)
	webhookHandler := handler.NewWebhookHandler(reconcileService, db.Songs)
	styleHandler := handler.NewStyleHandler(db.Styles, validate)
	playlistHandler := handler.NewPlaylistHandler(db.Playlists, db.Songs, validate)

	// Initialize auth middleware
	var apiAuthMiddleware fiber.Handler
	if cfg.Gateway.Enabled {
		log.Println("Info: Gateway mode enabled — using header-based auth")
		apiAuthMiddleware = middleware.GatewayAuthMiddleware()
	} else if jwksVerifier != nil {
		resolver := func(ctx context.Context, claims *auth.Claims) (*model.User, error) {
			return db.Users.GetByUsername(ctx, claims.PreferredUsername)
		}
		apiAuthMiddleware = middleware.NewAuthMiddlewareWithOIDC(jwksVerifier, resolver, cfg.JWT.Secret).Authenticate()
	} else {
		apiAuthMiddleware = middleware.NewAuthMiddleware(cfg.JWT.Secret).Authenticate()
	}
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    110 * 1024 * 1024, // room for 100MB uploads
	})

	// Global middleware
	app.Use(recover.New())
	isDebug := strings.EqualFold(cfg.Server.LogLevel, "debug")
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if isDebug {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body} ${reqHeaders}\n"
		log.Println("Debug logging enabled")
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Base URL - timestamp
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"suno":  sunoClient.IsConfigured(),
				"r2":    storage != nil,
				"redis": redisAvailable,
			},
		})
	})

	api := app.Group("/api/v1")

	// ForwardAuth verification endpoint (internal, called by the gateway)
	api.Get("/auth/verify", authHandler.Verify)

	// Auth issuance (unauthenticated)
	api.Post("/auth/register", authHandler.Register)
	api.Post("/auth/login", authHandler.Login)

	// Webhooks (unauthenticated: the provider calls these)
	api.Post("/webhooks/suno-callback", webhookHandler.SunoCallback)
	api.Post("/webhooks/suno-submitted", webhookHandler.SunoSubmitted)

	// Authenticated routes
	authed := api.Group("", apiAuthMiddleware)
	authed.Get("/auth/me", authHandler.Me)
	authed.Get("/auth/users", authHandler.Users)

	songs := authed.Group("/songs")
	songs.Get("", songHandler.List)
	songs.Post("", rateLimiter.SubmitLimit(cfg.RateLimit.SongsPerHour), songHandler.Create)
	songs.Get("/stats", songHandler.Stats)
	songs.Get("/storage/stats", songHandler.StorageStats)
	songs.Post("/check-submitted", rateLimiter.PollLimit(cfg.RateLimit.PollsPerMin), songHandler.CheckSubmitted)
	songs.Post("/archive-all", rateLimiter.ArchiveLimit(cfg.RateLimit.ArchivePerHour), songHandler.ArchiveAll)
	songs.Post("/upload", rateLimiter.UploadLimit(cfg.RateLimit.UploadPerHour), songHandler.Upload)
	songs.Get("/:id", songHandler.Get)
	songs.Put("/:id", songHandler.Update)
	songs.Delete("/:id", songHandler.Delete)
	songs.Post("/:id/check-status", rateLimiter.PollLimit(cfg.RateLimit.PollsPerMin), songHandler.CheckStatus)
	songs.Post("/:id/archive", rateLimiter.ArchiveLimit(cfg.RateLimit.ArchivePerHour), songHandler.Archive)
	songs.Get("/:id/download", songHandler.Download)

	styles := authed.Group("/styles")
	styles.Get("", styleHandler.List)
	styles.Post("", styleHandler.Create)
	styles.Get("/:id", styleHandler.Get)
	styles.Put("/:id", styleHandler.Update)
	styles.Delete("/:id", styleHandler.Delete)

	playlists := authed.Group("/playlists")
	playlists.Get("", playlistHandler.List)
	playlists.Post("", playlistHandler.Create)
	playlists.Get("/:id", playlistHandler.Get)
	playlists.Put("/:id", playlistHandler.Update)
	playlists.Delete("/:id", playlistHandler.Delete)
	playlists.Post("/:id/songs/:songId", playlistHandler.AddSong)
	playlists.Delete("/:id/songs/:songId", playlistHandler.RemoveSong)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/songs/:songId", websocket.New(func(c *websocket.Conn) {
		songID, err := strconv.ParseUint(c.Params("songId"), 10, 64)
		if err != nil {
			c.Close()
			return
		}
		hub.HandleConnection(c, uint(songID))
	}))

	// Start Asynq worker server
	if redisAvailable {
		go startWorkerServer(cfg, archiveService)
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func startWorkerServer(cfg *config.Config, archiveService *service.ArchiveService) {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				worker.QueueArchive: 10,
			},
			LogLevel: asynqLogLevel,
		},
	)

	archiveWorker := worker.NewArchiveWorker(archiveService)

	mux := asynq.NewServeMux()
	mux.HandleFunc(worker.TaskTypeArchiveSong, archiveWorker.ProcessTask)

	if err := srv.Run(mux); err != nil {
		log.Printf("Asynq worker error: %v", err)
	}
}

// customErrorHandler renders unhandled Fiber errors in the standard
// error envelope.
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}
	return response.Error(c, code, response.CodeServiceError, err.Error(), nil)
}
