package router

import (
	"github.com/cloudwego/hertz/pkg/app/server"

	"github.com/mbeoliero/pawchat/internal/config"
	"github.com/mbeoliero/pawchat/internal/handler"
	"github.com/mbeoliero/pawchat/internal/middleware"
)

// Handlers holds all HTTP handlers
type Handlers struct {
	Room   *handler.RoomHandler
	Signal *handler.SignalHandler
}

// SetupRouter sets up all routes
func SetupRouter(h *server.Hertz, handlers *Handlers, cfg *config.Config) {
	h.Use(middleware.CORS(cfg.Server.AllowedOrigins))

	// Health check (no auth required)
	h.GET("/health", handlers.Signal.Health)

	auth := middleware.ControlAuth(cfg.Control.Secret)

	roomGroup := h.Group("/rooms", auth)
	{
		roomGroup.GET("", handlers.Room.ListRooms)
		roomGroup.GET("/open", handlers.Room.ListOpenRooms)
		roomGroup.GET("/:room_id", handlers.Room.GetRoom)
		roomGroup.POST("/:room_id/enter", handlers.Room.EnterRoom)
		roomGroup.POST("/:room_id/close", handlers.Room.CloseRoom)
		roomGroup.POST("/:room_id/leave", handlers.Room.LeaveRoom)
	}

	listGroup := h.Group("/chat-list", auth)
	{
		listGroup.POST("/open", handlers.Room.OpenChatList)
		listGroup.POST("/close", handlers.Room.CloseChatList)
	}

	signalGroup := h.Group("/signals", auth)
	{
		signalGroup.POST("/refresh", handlers.Signal.Refresh)
		signalGroup.POST("/live", handlers.Signal.EnsureLive)
	}

	sessionGroup := h.Group("/session", auth)
	{
		sessionGroup.POST("/start", handlers.Signal.StartSession)
		sessionGroup.POST("/logout", handlers.Signal.Logout)
	}

	h.GET("/events", auth, handlers.Signal.Events)
}
