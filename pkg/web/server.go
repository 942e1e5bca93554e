// Package web exposes the HTTP surface of the voice backend: health and
// session routes, tool and event-log endpoints, and the Twilio webhook
// plus media-stream WebSocket that feed the bridge.
package web

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/starshield/voicebridge/internal/log"
	"github.com/starshield/voicebridge/pkg/bridge"
	"github.com/starshield/voicebridge/pkg/convlog"
	"github.com/starshield/voicebridge/pkg/crm"
	"github.com/starshield/voicebridge/pkg/realtime"
)

// Options carries the collaborators the routes need. Nil values disable
// the corresponding route with an explicit error response.
type Options struct {
	Port string
	// CORSAllowOrigins is a comma-separated allowlist; empty allows all.
	CORSAllowOrigins string

	Sessions *realtime.SessionService
	Cache    *realtime.SessionCache
	Bridge   *bridge.Bridge

	Searcher bridge.DocSearcher
	Leads    crm.LeadCreator
	Recorder convlog.Recorder

	// TwilioEnabled gates the webhook and media-stream routes.
	TwilioEnabled bool
	// StreamURL overrides the derived wss:// media-stream URL in TwiML.
	StreamURL string
}

// Server is the voicebridge HTTP server.
type Server struct {
	app  *fiber.App
	opts Options
}

// NewServer builds the fiber app and registers all routes.
func NewServer(opts Options) *Server {
	s := &Server{opts: opts}

	app := fiber.New(fiber.Config{
		AppName:               "StarShield Voice Bridge",
		DisableStartupMessage: true,
	})

	corsConfig := cors.Config{}
	if opts.CORSAllowOrigins != "" {
		corsConfig.AllowOrigins = opts.CORSAllowOrigins
	}
	app.Use(cors.New(corsConfig))

	app.Get("/health", s.handleHealth)
	app.Get("/session", s.handleSession)

	tool := app.Group("/tool")
	tool.Post("/search_docs", s.handleSearchDocs)
	tool.Post("/create_lead", s.handleCreateLead)
	tool.Post("/:toolName", s.handleToolByName)

	app.Post("/events/log", s.handleLogEvent)

	app.Post("/twilio/voice", s.handleVoice)
	app.Get("/twilio/voice", s.handleVoice)
	app.Post("/twilio/voice/completed", s.handleVoiceCompleted)

	// WebSocket upgrade middleware
	app.Use("/twilio/stream", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/twilio/stream", websocket.New(s.handleStream))

	s.app = app
	return s
}

// Start listens on the configured port and blocks.
func (s *Server) Start() error {
	log.Info("voice backend running", "port", s.opts.Port)
	return s.app.Listen(":" + s.opts.Port)
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// handleStream hands the upgraded media-stream socket to the bridge,
// which owns it for the rest of the call.
func (s *Server) handleStream(conn *websocket.Conn) {
	if !s.opts.TwilioEnabled {
		conn.Close()
		return
	}
	s.opts.Bridge.HandleStream(conn)
}
