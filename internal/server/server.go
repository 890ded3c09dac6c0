// Package server contains HTTP and WebSocket handlers for the blog API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	_ "inkwell/docs" // swagger docs
	"inkwell/internal/auth"
	"inkwell/internal/cache"
	"inkwell/internal/config"
	"inkwell/internal/database"
	"inkwell/internal/middleware"
	"inkwell/internal/models"
	"inkwell/internal/notifications"
	"inkwell/internal/repository"
	"inkwell/internal/service"
	"inkwell/internal/storage"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const (
	globalRateLimit  = 100
	globalRateWindow = time.Minute
	bodyLimit        = 10 * 1024 * 1024
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc

	auth     auth.Provider
	cache    *cache.Cache
	hub      *notifications.Hub
	notifier *notifications.Notifier
	limiter  middleware.Limiter
	local    *middleware.LocalLimiter
	store    storage.Store

	// in-process limiters created by routeLimit, swept alongside local
	routeLimiters []*middleware.LocalLimiter
	sweepers      sync.WaitGroup

	postService    *service.PostService
	likeService    *service.LikeService
	commentService *service.CommentService
	userService    *service.UserService
	uploadService  *service.UploadService
}

// NewServer creates a new server instance with all dependencies
func NewServer(cfg *config.Config) (*Server, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	// nil when Redis is unreachable
	redisClient := cache.InitRedis(cfg.RedisURL)

	return NewServerWithDeps(cfg, db, redisClient)
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// redisClient may be nil, in which case caching, token revocation and
// cross-instance events are disabled and session mode is unavailable.
func NewServerWithDeps(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) (*Server, error) {
	provider, err := newAuthProvider(cfg, redisClient)
	if err != nil {
		return nil, err
	}

	store, presigner, err := newUploadStore(cfg)
	if err != nil {
		return nil, err
	}

	userRepo := repository.NewUserRepository(db)
	postRepo := repository.NewPostRepository(db)
	commentRepo := repository.NewCommentRepository(db)
	likeRepo := repository.NewLikeRepository(db)
	viewRepo := repository.NewViewRepository(db)

	hub := notifications.NewHub()
	notifier := notifications.NewNotifier(redisClient, hub)
	c := cache.New(redisClient)

	server := &Server{
		config:         cfg,
		db:             db,
		redis:          redisClient,
		promMiddleware: middleware.InitMetrics("inkwell-api"),
		auth:           provider,
		cache:          c,
		hub:            hub,
		notifier:       notifier,
		store:          store,
	}

	if redisClient != nil {
		server.limiter = middleware.NewRedisLimiter(redisClient, globalRateLimit, globalRateWindow)
	} else {
		server.local = middleware.NewLocalLimiter(globalRateLimit, globalRateWindow)
		server.limiter = server.local
	}

	server.postService = service.NewPostService(postRepo, likeRepo, viewRepo, c, notifier)
	server.likeService = service.NewLikeService(likeRepo, postRepo, c, notifier)
	server.commentService = service.NewCommentService(commentRepo, postRepo, c, notifier)
	server.userService = service.NewUserService(userRepo, c)
	server.uploadService = service.NewUploadService(store, presigner, int64(cfg.UploadMaxSizeMB)*1024*1024)

	return server, nil
}

func newAuthProvider(cfg *config.Config, rdb *redis.Client) (auth.Provider, error) {
	if cfg.AuthMode == config.AuthModeSession {
		ttl := time.Duration(cfg.SessionTTLHours) * time.Hour
		return auth.NewSessionProvider(rdb, ttl, cfg.IsProduction())
	}
	ttl := time.Duration(cfg.TokenTTLHours) * time.Hour
	refreshTTL := time.Duration(cfg.RefreshTTLHours) * time.Hour
	return auth.NewTokenProvider(cfg.JWTSecret, ttl, refreshTTL, rdb), nil
}

func newUploadStore(cfg *config.Config) (storage.Store, storage.Presigner, error) {
	if cfg.UploadBackend == config.UploadS3 {
		s3Store, err := storage.NewS3Store(storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			PublicBaseURL:   cfg.PublicBaseURL,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("s3 storage: %w", err)
		}
		return s3Store, s3Store, nil
	}

	local, err := storage.NewLocalStore(cfg.UploadDir)
	if err != nil {
		return nil, nil, err
	}
	return local, nil, nil
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	// Panic recovery
	app.Use(recover.New())

	// Request ID for tracing
	app.Use(requestid.New())

	// Context Middleware to propagate Request ID and User ID
	app.Use(middleware.ContextMiddleware())

	app.Use(middleware.TracingMiddleware())

	// Prometheus Metrics
	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	// Security headers
	app.Use(helmet.New(helmet.Config{
		CrossOriginResourcePolicy: "cross-origin",
	}))

	// Structured Logging middleware (after requestid and context middleware)
	app.Use(middleware.StructuredLogger())

	// CORS runs before the limiter so rejected requests still carry CORS headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000"
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowCredentials: origins != "*",
		MaxAge:           86400, // 24 hours
	}))

	// Global rate limiting per user or IP; preflight requests are never limited.
	limit := middleware.RateLimit(s.limiter, middleware.FailOpen, "global")
	app.Use(func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodOptions {
			return c.Next()
		}
		return limit(c)
	})
}

// SetupRoutes configures all API routes
func (s *Server) SetupRoutes(app *fiber.App) {
	s.routeLimiters = nil

	// Health checks
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	// Metrics endpoint for Prometheus
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	if local, ok := s.store.(*storage.LocalStore); ok {
		app.Static(storage.LocalURLPrefix, local.Dir(), fiber.Static{MaxAge: 3600})
	}

	resolver := auth.ExistingAccounts(s.auth, s.userService.GetUser)
	optional := auth.Optional(resolver)
	required := auth.Required(resolver)

	app.Get("/ws", optional, s.WebsocketHandler())

	api := app.Group("/api")
	api.Get("/metrics/dashboard", monitor.New(monitor.Config{
		Title: "Inkwell Metrics Dashboard",
	}))

	// Swagger documentation
	api.Get("/swagger/*", swagger.HandlerDefault)

	authRoutes := api.Group("/auth")
	authRoutes.Post("/signup", s.routeLimit(10, 10*time.Minute, "signup"), s.Signup)
	authRoutes.Post("/login", s.routeLimit(20, 5*time.Minute, "login"), s.Login)
	authRoutes.Post("/check-email", s.routeLimit(30, time.Minute, "check-email"), s.CheckEmail)
	authRoutes.Post("/refresh", s.routeLimit(30, 5*time.Minute, "refresh"), s.Refresh)
	authRoutes.Post("/logout", required, s.Logout)
	authRoutes.Get("/session", required, s.Session)

	users := api.Group("/users", required)
	users.Get("/", s.GetUsers)
	users.Get("/me", s.GetMyProfile)
	users.Put("/me", s.UpdateMyProfile)
	users.Delete("/me", s.DeleteMyAccount)
	users.Put("/reset-password", s.ResetPassword)

	// Specific /:id/:resource routes are registered before the generic /:id route.
	posts := api.Group("/posts")
	posts.Get("/", optional, s.GetPosts)
	posts.Post("/", required, s.CreatePost)
	posts.Get("/:id/meta", s.GetPostMeta)
	posts.Get("/:id/comments", s.GetComments)
	posts.Post("/:id/comments", required, s.CreateComment)
	posts.Post("/:id/like", required, s.ToggleLike)
	posts.Get("/:id/like-status", required, s.GetLikeStatus)
	posts.Get("/:id", optional, s.GetPost)
	posts.Put("/:id", required, s.UpdatePost)
	posts.Delete("/:id", required, s.DeletePost)

	comments := api.Group("/comments")
	comments.Get("/:id", s.GetComment)
	comments.Put("/:id", required, s.UpdateComment)
	comments.Delete("/:id", required, s.DeleteComment)

	uploads := api.Group("/uploads", required)
	uploads.Post("/images", s.routeLimit(30, 10*time.Minute, "uploads"), s.UploadImage)
	uploads.Get("/presign", s.PresignUpload)
}

// routeLimit applies a tighter limit on top of the global one for a single
// route family.
func (s *Server) routeLimit(limit int, window time.Duration, name string) fiber.Handler {
	if s.redis != nil {
		return middleware.RateLimit(middleware.NewRedisLimiter(s.redis, limit, window), middleware.FailOpen, name)
	}
	local := middleware.NewLocalLimiter(limit, window)
	s.routeLimiters = append(s.routeLimiters, local)
	return middleware.RateLimit(local, middleware.FailOpen, name)
}

// localLimiters returns every in-process limiter the current app uses.
func (s *Server) localLimiters() []*middleware.LocalLimiter {
	out := make([]*middleware.LocalLimiter, 0, len(s.routeLimiters)+1)
	if s.local != nil {
		out = append(out, s.local)
	}
	return append(out, s.routeLimiters...)
}

// sweepLimiters drops idle buckets from every in-process limiter each
// interval until ctx is done.
func (s *Server) sweepLimiters(ctx context.Context, interval time.Duration) {
	for _, l := range s.localLimiters() {
		s.sweepers.Add(1)
		go func() {
			defer s.sweepers.Done()
			l.Run(ctx, interval)
		}()
	}
}

// LivenessCheck handles liveness check requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck reports whether the database, and Redis when configured,
// are reachable.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "disabled"
	if s.redis != nil {
		redisStatus = "healthy"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus == "unhealthy" || redisStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"time": time.Now(),
	})
}

// errorHandler is the single place where returned errors become responses.
func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	withDetails := !s.config.IsProduction()

	var appErr *models.AppError
	if errors.As(err, &appErr) {
		if appErr.Status() >= fiber.StatusInternalServerError {
			middleware.Logger.ErrorContext(c.UserContext(), "request error", "error", err.Error())
		}
		return models.RespondWithError(c, appErr.Status(), appErr, withDetails)
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return models.RespondWithError(c, fiberErr.Code, &models.AppError{
			Code:    codeForStatus(fiberErr.Code),
			Message: fiberErr.Message,
		}, withDetails)
	}

	middleware.Logger.ErrorContext(c.UserContext(), "unhandled error", "error", err.Error())
	return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err), withDetails)
}

func codeForStatus(status int) string {
	switch status {
	case fiber.StatusBadRequest, fiber.StatusRequestEntityTooLarge, fiber.StatusUnprocessableEntity,
		fiber.StatusUpgradeRequired:
		return models.CodeValidation
	case fiber.StatusUnauthorized:
		return models.CodeUnauthorized
	case fiber.StatusForbidden:
		return models.CodeForbidden
	case fiber.StatusNotFound, fiber.StatusMethodNotAllowed:
		return models.CodeNotFound
	case fiber.StatusConflict:
		return models.CodeConflict
	case fiber.StatusTooManyRequests:
		return models.CodeTooManyRequest
	default:
		return models.CodeInternal
	}
}

// NewApp builds the Fiber application with middleware and routes installed.
func (s *Server) NewApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "Inkwell API",
		BodyLimit:    bodyLimit,
		ErrorHandler: s.errorHandler,
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

// Start wires realtime fan-out and serves HTTP until the app is shut down.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	s.app = s.NewApp()

	if err := s.notifier.Start(s.shutdownCtx); err != nil {
		log.Printf("failed to start %s wiring: %v", s.hub.Name(), err)
	}
	s.sweepLimiters(s.shutdownCtx, time.Minute)

	log.Printf("Server starting on port %s...", s.config.Port)
	return s.app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	// Stop the subscriber and cleanup goroutines
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			log.Printf("error shutting down HTTP server: %v", err)
		}
	}

	// Close WebSocket connections gracefully
	if err := s.hub.Shutdown(ctx); err != nil {
		log.Printf("error shutting down %s: %v", s.hub.Name(), err)
	}

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			log.Printf("error closing sql DB: %v", cerr)
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			log.Printf("error closing redis: %v", rerr)
		}
	}

	log.Println("Server shutdown complete")
	return nil
}
