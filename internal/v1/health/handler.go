// Package health serves the admin listener's liveness and readiness
// probes.
package health

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// GameListener is the slice of the transport server the readiness probe
// needs: whether the game port is bound and accepting.
type GameListener interface {
	Ready() bool
}

// RoomCounter is the slice of the room store the readiness probe needs.
type RoomCounter interface {
	Size() int
}

// Handler manages health check endpoints.
type Handler struct {
	listener GameListener
	rooms    RoomCounter
}

// NewHandler creates a health check handler over the game listener and the
// room store.
func NewHandler(listener GameListener, rooms RoomCounter) *Handler {
	return &Handler{listener: listener, rooms: rooms}
}

// LivenessResponse represents the liveness probe response.
type LivenessResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// ReadinessResponse represents the readiness probe response.
type ReadinessResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	RoomCount int               `json:"room_count"`
	Timestamp string            `json:"timestamp"`
}

// Liveness handles GET /health/live. It returns 200 whenever the process
// is alive; no dependency is consulted.
func (h *Handler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, LivenessResponse{
		Status:    "alive",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Readiness handles GET /health/ready. It returns 200 only while the game
// listener is accepting connections and the room store is reachable,
// 503 otherwise.
func (h *Handler) Readiness(c *gin.Context) {
	checks := make(map[string]string)
	allHealthy := true

	listenerStatus := "healthy"
	if h.listener == nil || !h.listener.Ready() {
		listenerStatus = "unhealthy"
		allHealthy = false
	}
	checks["game_listener"] = listenerStatus

	roomCount := 0
	storeStatus := "healthy"
	if h.rooms == nil {
		storeStatus = "unhealthy"
		allHealthy = false
	} else {
		roomCount = h.rooms.Size()
	}
	checks["room_store"] = storeStatus

	status := "ready"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "unavailable"
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, ReadinessResponse{
		Status:    status,
		Checks:    checks,
		RoomCount: roomCount,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
