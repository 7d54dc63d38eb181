package http

import (
	"context"
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/akudrin/lobbywire/internal/transport/tcp"
)

// Snapshotter hands out consistent registry snapshots; implemented by the
// connection engine.
type Snapshotter interface {
	Snapshot(ctx context.Context) (tcp.Snapshot, error)
}

// StatusHandlers provides the read-only ops endpoints.
type StatusHandlers struct {
	snap Snapshotter
	log  *zerolog.Logger
}

// NewStatusHandlers creates a new status handlers instance.
func NewStatusHandlers(snap Snapshotter, logger *zerolog.Logger) *StatusHandlers {
	return &StatusHandlers{snap: snap, log: logger}
}

// ErrorResponse is the error body shape for ops endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Health reports process liveness.
// GET /health
func (h *StatusHandlers) Health(c *gin.Context) {
	c.JSON(stdhttp.StatusOK, gin.H{"status": "ok"})
}

// ListRooms returns every live room with its recomputed occupancy.
// GET /api/rooms
func (h *StatusHandlers) ListRooms(c *gin.Context) {
	snap, err := h.snap.Snapshot(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("snapshot for room listing")
		c.JSON(stdhttp.StatusServiceUnavailable, ErrorResponse{Error: "engine unavailable"})
		return
	}
	c.JSON(stdhttp.StatusOK, gin.H{"rooms": snap.Rooms})
}

// ListSessions returns every connected session.
// GET /api/sessions
func (h *StatusHandlers) ListSessions(c *gin.Context) {
	snap, err := h.snap.Snapshot(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("snapshot for session listing")
		c.JSON(stdhttp.StatusServiceUnavailable, ErrorResponse{Error: "engine unavailable"})
		return
	}
	c.JSON(stdhttp.StatusOK, gin.H{"sessions": snap.Sessions})
}
