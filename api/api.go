package api

import (
	"errors"
	"log/slog"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
)

const (
	defaultAckMessage = "processing ⚙️..."
	defaultListLimit  = 20
)

// Server is the API server for mnemo.
type Server struct {
	config Config
	logger *slog.Logger
	app    *fiber.App
}

// NewServer creates a new API server. Storage and services are injected so
// they can be shared with the worker pool and reconciler.
func NewServer(config Config, logger *slog.Logger) (*Server, error) {
	if config.Driver == nil {
		return nil, errors.New("storage driver is required")
	}
	if config.Ingest == nil || config.Identity == nil || config.Recorder == nil || config.Searcher == nil {
		return nil, errors.New("ingest, identity, recorder and searcher are required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	if config.AckMessage == "" {
		config.AckMessage = defaultAckMessage
	}
	if config.ListLimit <= 0 {
		config.ListLimit = defaultListLimit
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config: config,
		logger: logger,
		app:    app,
	}

	app.Get("/ping", s.handlePing)
	app.Get("/stats", s.handleStats)
	app.Post("/webhook", s.handleWebhook)

	app.Post("/memories", s.handleCreateMemory)
	app.Get("/memories", s.handleSearchMemories)
	app.Post("/memories/list", s.handleListMemories)
	app.Patch("/memories/:external_id", s.handleUpdateMemory)
	app.Delete("/memories/:external_id", s.handleDeleteMemory)
	app.Get("/interactions/recent", s.handleRecentInteractions)

	if config.MCP != nil {
		app.All("/mcp", adaptor.HTTPHandler(config.MCP))
	}

	return s, nil
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server", "listen", s.config.ListenAddr)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
