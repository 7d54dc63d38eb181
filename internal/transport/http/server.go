package http

import (
	stdhttp "net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/akudrin/lobbywire/internal/config"
)

// NewServer builds the read-only ops HTTP server. It rides on a separate
// listener from the lobby protocol; game peers never touch it.
func NewServer(snap Snapshotter, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())

	handlers := NewStatusHandlers(snap, logger)
	router.GET("/health", handlers.Health)

	api := router.Group("/api")
	api.GET("/rooms", handlers.ListRooms)
	api.GET("/sessions", handlers.ListSessions)

	return &stdhttp.Server{
		Addr:              cfg.OpsAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
