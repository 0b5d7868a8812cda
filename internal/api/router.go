package api

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/jackc/pgx/v5/pgxpool"

	swagger "github.com/go-swagno/swagno-fiber/swagger"

	"github.com/eventsnap/facefinder/internal/api/docs"
	"github.com/eventsnap/facefinder/internal/api/handler"
	"github.com/eventsnap/facefinder/internal/api/middleware"
	"github.com/eventsnap/facefinder/internal/index"
	"github.com/eventsnap/facefinder/internal/session"
	"github.com/eventsnap/facefinder/internal/ws"
)

type Dependencies struct {
	Sessions   *session.Service
	Queue      *session.Queue
	Sweeper    *session.Sweeper
	IndexAdmin *index.Manager
	Hub        *ws.Hub
	DB         *pgxpool.Pool
}

type Router struct {
	app           *fiber.App
	logger        *slog.Logger
	deps          *Dependencies
	rateLimiter   *middleware.RateLimiter
	cancelHub     context.CancelFunc
	cancelQueue   context.CancelFunc
	cancelSweeper context.CancelFunc
}

func NewRouter(logger *slog.Logger, deps *Dependencies) *Router {
	app := fiber.New(fiber.Config{
		ErrorHandler: middleware.ErrorHandler(logger),
		AppName:      "FaceFinder API",
		BodyLimit:    64 * 1024 * 1024,
	})

	return &Router{
		app:    app,
		logger: logger,
		deps:   deps,
	}
}

func (r *Router) Setup() {
	// Global middlewares
	r.app.Use(requestid.New())
	r.app.Use(middleware.Recover(r.logger))
	r.app.Use(middleware.Logger(r.logger))
	r.app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	// Swagger documentation
	sw := docs.NewSwagger()
	swagger.SwaggerHandler(r.app, sw.MustToJson())

	// Health check endpoints
	var pinger handler.Pinger
	if r.deps != nil && r.deps.DB != nil {
		pinger = r.deps.DB
	}
	healthHandler := handler.NewHealthHandler(pinger)
	r.app.Get("/health", healthHandler.Health)
	r.app.Get("/ready", healthHandler.Ready)

	v1 := r.app.Group("/v1")

	// Only configure application routes if dependencies were provided
	if r.deps == nil {
		return
	}

	// Progress push hub
	hubCtx, hubCancel := context.WithCancel(context.Background())
	r.cancelHub = hubCancel
	go r.deps.Hub.Run(hubCtx)

	// Matching workers
	queueCtx, queueCancel := context.WithCancel(context.Background())
	r.cancelQueue = queueCancel
	go r.deps.Queue.Run(queueCtx)

	// Session expiry and crop cleanup
	sweeperCtx, sweeperCancel := context.WithCancel(context.Background())
	r.cancelSweeper = sweeperCancel
	go r.deps.Sweeper.Run(sweeperCtx)

	// Session creation runs the full detection pipeline, keep a lid on it
	r.rateLimiter = middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())

	// Session routes
	sessionHandler := handler.NewSessionHandler(r.deps.Sessions, r.logger)
	v1.Post("/sessions", r.rateLimiter.Handler(), sessionHandler.Create)
	v1.Get("/sessions/:id", sessionHandler.Status)
	v1.Get("/sessions/:id/detections", sessionHandler.Detections)
	v1.Post("/sessions/:id/faces", sessionHandler.SelectFaces)
	v1.Get("/sessions/:id/results/:model", sessionHandler.Results)

	// WebSocket progress push
	v1.Get("/ws/:session", ws.UpgradeMiddleware(), ws.Handler(r.deps.Hub))

	// Admin routes
	indexHandler := handler.NewIndexHandler(r.deps.IndexAdmin, r.logger)
	adminGroup := v1.Group("/admin")
	adminGroup.Post("/indexes/:model/rebuild", indexHandler.Rebuild)
	adminGroup.Get("/indexes", indexHandler.List)
	adminGroup.Get("/indexes/builds/:id", indexHandler.Job)
	adminGroup.Delete("/indexes/:model", indexHandler.Delete)
}

func (r *Router) App() *fiber.App {
	return r.app
}

func (r *Router) Listen(addr string) error {
	return r.app.Listen(addr)
}

func (r *Router) Shutdown() error {
	if r.cancelQueue != nil {
		r.cancelQueue()
	}

	if r.cancelSweeper != nil {
		r.cancelSweeper()
	}

	if r.cancelHub != nil {
		r.cancelHub()
	}

	if r.rateLimiter != nil {
		r.rateLimiter.Stop()
	}

	return r.app.Shutdown()
}
