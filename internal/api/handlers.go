// handlers.go - REST handlers for the dashboard API
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/mmdvm-dashboard/backend/internal/broadcast"
	"github.com/mmdvm-dashboard/backend/internal/config"
	"github.com/mmdvm-dashboard/backend/internal/lcdproc"
	"github.com/mmdvm-dashboard/backend/internal/livelog"
	"github.com/mmdvm-dashboard/backend/internal/state"
)

// Handler serves the REST API. Display is nil when the LCDproc server is
// disabled in config.
type Handler struct {
	store   *state.Store
	hub     *broadcast.Hub
	live    *livelog.Viewer
	overlay *config.Manager
	display *lcdproc.Server
	cfg     *config.AppConfig
	version string
	started time.Time
	log     *zap.Logger
}

// Dependencies holds everything the handlers need.
type Dependencies struct {
	Store   *state.Store
	Hub     *broadcast.Hub
	Live    *livelog.Viewer
	Overlay *config.Manager
	Display *lcdproc.Server
	Config  *config.AppConfig
	Version string
	Logger  *zap.Logger
}

// NewHandler creates the API handler.
func NewHandler(deps Dependencies) *Handler {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		store:   deps.Store,
		hub:     deps.Hub,
		live:    deps.Live,
		overlay: deps.Overlay,
		display: deps.Display,
		cfg:     deps.Config,
		version: deps.Version,
		started: time.Now(),
		log:     log,
	}
}

// RegisterRoutes registers all API routes with the Echo instance.
func RegisterRoutes(e *echo.Echo, h *Handler, ws *WebSocketHandler) {
	e.GET("/api/health", h.HandleHealth)
	e.GET("/api/config", h.HandleConfig)
	e.GET("/api/status", h.HandleStatus)
	e.GET("/api/status/msgpack", h.HandleStatusMsgpack)
	e.GET("/api/transmissions", h.HandleTransmissions)
	e.GET("/api/events", h.HandleEvents)
	e.GET("/api/stats", h.HandleStats)
	e.GET("/api/log", h.HandleLog)
	e.GET("/api/display", h.HandleDisplay)
	e.GET("/ws", ws.HandleWebSocket)
}

// HandleHealth returns server health status.
func (h *Handler) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":        "ok",
		"version":       h.version,
		"uptimeSeconds": int(time.Since(h.started).Seconds()),
		"subscribers":   h.hub.SubscriberCount(),
	})
}

// HandleConfig returns the expected system state from the INI files plus
// the dashboard's own settings.
func (h *Handler) HandleConfig(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"expected": h.overlay.Overlay(),
		"monitoring": map[string]interface{}{
			"pollIntervalMs": h.cfg.Monitoring.PollIntervalMs,
			"debounceMs":     h.cfg.Monitoring.DebounceMs,
			"backfillDays":   h.cfg.Monitoring.BackfillDays,
		},
		"displayEnabled": h.display != nil,
	})
}

// HandleStatus returns current system status.
func (h *Handler) HandleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, h.store.Status())
}

// HandleStatusMsgpack returns the status in MessagePack format for
// bandwidth-constrained frontends.
func (h *Handler) HandleStatusMsgpack(c echo.Context) error {
	data, err := msgpack.Marshal(h.store.Status())
	if err != nil {
		return NewInternalError("failed to encode status", err)
	}
	return c.Blob(http.StatusOK, "application/msgpack", data)
}

// HandleTransmissions returns active and recent transmissions.
func (h *Handler) HandleTransmissions(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"active": h.store.Active(),
		"recent": h.store.RecentCalls(20),
	})
}

// HandleEvents returns recent activity events, newest first.
func (h *Handler) HandleEvents(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit < 1 {
		limit = 50
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"events": h.store.Events(limit),
	})
}

// HandleStats returns aggregate call statistics.
func (h *Handler) HandleStats(c echo.Context) error {
	status := h.store.Status()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"totalCallsToday":     status.TotalCallsToday,
		"callsByMode":         status.CallsByMode,
		"activeUsers":         status.DistinctSources,
		"activeTransmissions": status.ActiveTransmissions,
		"networks":            status.Networks,
		"currentMode":         status.CurrentMode,
	})
}

// HandleLog returns the live log buffer with its color scheme.
func (h *Handler) HandleLog(c echo.Context) error {
	lines, _ := strconv.Atoi(c.QueryParam("lines"))
	if lines < 1 {
		lines = 100
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"lines":  h.live.RecentLines(lines),
		"colors": livelog.ColorScheme(),
	})
}

// HandleDisplay returns the virtual LCD state.
func (h *Handler) HandleDisplay(c echo.Context) error {
	if h.display == nil {
		return NewServiceUnavailableError("display server is disabled")
	}
	return c.JSON(http.StatusOK, h.display.State())
}
