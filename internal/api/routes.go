// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Sessions       SessionManager
	Objects        ObjectOpener // nil unless objects are served locally
	Version        string
	StreamInterval time.Duration
	Now            func() time.Time
}

// Handlers holds all handler instances
type Handlers struct {
	Health    HealthHandler
	Session   SessionHandler
	Workflow  WorkflowHandler
	Object    ObjectHandler
	WebSocket *WebSocketHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	h := &Handlers{
		Health:    NewHealthHandler(deps.Version, deps.Sessions),
		Session:   NewSessionHandler(deps.Sessions, now),
		Workflow:  NewWorkflowHandler(deps.Sessions, now, deps.StreamInterval),
		WebSocket: NewWebSocketHandler(deps.Sessions, now, deps.StreamInterval),
	}
	if deps.Objects != nil {
		h.Object = NewObjectHandler(deps.Objects)
	}
	return h
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	apiGroup := e.Group("/api")

	// Health check
	apiGroup.GET("/health", handlers.Health.HandleHealth)

	// Session lifecycle
	apiGroup.POST("/sessions", handlers.Session.HandleCreateSession)
	apiGroup.GET("/sessions/:id", handlers.Session.HandleGetSession)
	apiGroup.DELETE("/sessions/:id", handlers.Session.HandleDeleteSession)

	// Upload workflow
	sessionGroup := apiGroup.Group("/sessions/:id")
	sessionGroup.POST("/select", handlers.Workflow.HandleSelectFile)
	sessionGroup.POST("/submit", handlers.Workflow.HandleSubmit)
	sessionGroup.POST("/check", handlers.Workflow.HandleCheckResult)
	sessionGroup.GET("/download", handlers.Workflow.HandleDownload)
	sessionGroup.GET("/tables/:region", handlers.Workflow.HandleGetTable)
	sessionGroup.GET("/tables/:region/msgpack", handlers.Workflow.HandleGetTableMsgpack)
	sessionGroup.GET("/events", handlers.Workflow.HandleViewStream)

	// WebSocket view stream
	apiGroup.GET("/ws/sessions/:id", handlers.WebSocket.HandleWebSocket)

	// Signed object downloads
	if handlers.Object != nil {
		apiGroup.GET("/objects/:bucket/*", handlers.Object.HandleGetObject)
	}
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo) {
	// Use custom error handler
	e.HTTPErrorHandler = ErrorHandler

	// Add recovery
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 1024 * 4,
	}))
}
