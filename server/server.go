package server

import (
	"context"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/sirupsen/logrus"
	"guardex/config"
)

const bodyLimit = 25 << 20

// Server is the REST API.
type Server struct {
	cfg config.ServerConfig
	app *fiber.App
}

// New builds the fiber app and its routes.
func New(cfg config.ServerConfig, h *Handler) *Server {
	app := fiber.New(fiber.Config{
		AppName:   "guardex",
		BodyLimit: bodyLimit,
	})

	origins := cfg.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	app.Use(cors.New(cors.Config{
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Origin", "Accept", "Authorization"},
		AllowOrigins: origins,
	}))
	app.Use(accessLog)

	// Define routes
	app.Get("/", h.IndexHandler)

	api := app.Group("/api")
	authGroup := api.Group("/auth")
	authGroup.Post("/signup", h.SignupHandler)
	authGroup.Post("/login", h.LoginHandler)
	authGroup.Get("/verify/:token", h.VerifyHandler)

	scans := api.Group("/scan", optionalBearer(h.auth.Tokens()))
	scans.Get("/", h.ScansHandler)
	scans.Get("/:id", h.ScanHandler)

	api.Post("/voice-agent", h.VoiceAgentHandler)

	return &Server{cfg: cfg, app: app}
}

// App exposes the fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Listen(ctx context.Context) error {
	logrus.Infof("API server listening on %s", s.cfg.Addr())
	return s.app.Listen(s.cfg.Addr(), fiber.ListenConfig{
		GracefulContext:       ctx,
		DisableStartupMessage: true,
	})
}
