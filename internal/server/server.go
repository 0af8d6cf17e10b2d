package server

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/agriview/console-gateway/internal/config"
	"github.com/agriview/console-gateway/internal/credstore"
	"github.com/agriview/console-gateway/internal/domain"
	"github.com/agriview/console-gateway/internal/guard"
	"github.com/agriview/console-gateway/internal/handler"
	"github.com/agriview/console-gateway/internal/rbac"
	"github.com/agriview/console-gateway/internal/session"
	"github.com/agriview/console-gateway/internal/telemetry"
	"github.com/agriview/console-gateway/internal/transport"
)

// AppDependencies holds the dependencies required to start the gateway
type AppDependencies struct {
	Config      *config.Config
	Logger      *zap.Logger
	RedisClient *redis.Client // nil when Redis is disabled

	// HTTPClient overrides the upstream client, used by tests.
	HTTPClient *http.Client
}

// NewApp creates and configures the Fiber application with the given dependencies
func NewApp(deps AppDependencies) *fiber.App {
	cfg := deps.Config
	log := deps.Logger

	// Credential store: the single profile's durable credential pair.
	var store credstore.Store
	if cfg.Profile.StoreBackend == "redis" && deps.RedisClient != nil {
		store = credstore.NewRedisStore(deps.RedisClient, log)
	} else {
		store = credstore.NewFileStore(cfg.Profile.Dir, log)
	}

	// Session core. Bootstrap happens once, before any request is served,
	// so no caller ever observes the unknown state.
	sessions := session.NewManager(store, log)
	sessions.Bootstrap()

	if deps.HTTPClient == nil {
		deps.HTTPClient = &http.Client{Timeout: cfg.Upstream.Timeout}
	}
	client := transport.NewClient(
		cfg.Upstream.BaseURL,
		deps.HTTPClient,
		store,
		sessions,
		cfg.Upstream.SignInPath,
		log,
	)

	var matrixCache rbac.MatrixCache
	if deps.RedisClient != nil {
		matrixCache = rbac.NewRedisMatrixCache(deps.RedisClient)
	}
	resolver := rbac.NewResolver(sessions, client, matrixCache, cfg.Permissions.CacheTTL, log)

	sessionHandler := handler.NewSessionHandler(sessions, resolver, client, log)
	consoleHandler := handler.NewConsoleHandler(sessions, resolver, client, log)
	kycHandler := handler.NewKYCHandler(resolver, client, log)

	app := fiber.New(fiber.Config{
		AppName:      "Agriview Console Gateway",
		ErrorHandler: errorHandler(cfg.Upstream.SignInPath, log),
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(telemetry.FiberMiddleware())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Console-Route",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	// Health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"service": "console-gateway",
		})
	})

	// API v1 routes
	v1 := app.Group("/v1")

	// Session endpoints (login is public)
	sess := v1.Group("/session")
	sess.Post("/login", sessionHandler.Login)
	sess.Post("/logout", sessionHandler.Logout)
	sess.Get("/me", sessionHandler.Me)
	sess.Get("/permissions", sessionHandler.Permissions)
	sess.Post("/permissions/refresh", sessionHandler.RefreshPermissions)

	// Console surface, authenticated callers only
	console := v1.Group("/console")
	console.Use(guard.RequireSession(sessions, cfg.Upstream.SignInPath))
	console.Get("/modules", consoleHandler.Modules)
	console.Get("/fragments/:module", consoleHandler.Fragment)

	// Configuration routes are admin territory
	consoleConfig := console.Group("/config")
	consoleConfig.Use(guard.RequireRoles(sessions, cfg.Upstream.SignInPath,
		domain.RoleAdmin, domain.RoleSuperAdmin))
	consoleConfig.Get("/", consoleHandler.Configuration)

	// KYC decisions, issued upstream through the fallback protocol
	kyc := v1.Group("/kyc")
	kyc.Use(guard.RequireSession(sessions, cfg.Upstream.SignInPath))
	kyc.Post("/:farmerId/approve", kycHandler.Approve)
	kyc.Post("/:farmerId/reject", kycHandler.Reject)

	return app
}

// errorHandler maps upstream failures onto console responses. A failure that
// closed the session becomes a redirect to sign-in, everything else stays an
// ordinary error payload.
func errorHandler(signInPath string, log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var statusErr *transport.StatusError
		if errors.As(err, &statusErr) {
			if statusErr.SessionEnded {
				return c.Redirect(signInPath, fiber.StatusSeeOther)
			}
			return c.Status(statusErr.StatusCode).JSON(fiber.Map{
				"error": statusErr.Error(),
			})
		}

		code := fiber.StatusInternalServerError
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			code = fiberErr.Code
		}
		log.Error("request failed", zap.Int("status", code), zap.Error(err))
		return c.Status(code).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
}
