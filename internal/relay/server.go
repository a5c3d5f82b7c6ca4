package relay

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// Handlers registers the relay HTTP control-plane routes onto a shared echo
// instance (the directory server owns the actual listener; relay just
// contributes routes, the way punch does).
type Handlers struct {
	reg     *Registry
	address string
	port    int
}

// NewHandlers binds reg to the advertised relay address/port used in
// GET /api/relay/info and POST /api/relay/allocate responses.
func NewHandlers(reg *Registry, address string, port int) *Handlers {
	return &Handlers{reg: reg, address: address, port: port}
}

// Register mounts every relay route on e.
func (h *Handlers) Register(e *echo.Echo) {
	e.GET("/api/relay/info", h.handleInfo)
	e.POST("/api/relay/allocate", h.handleAllocate)
	e.DELETE("/api/relay/:sessionId", h.handleRelease)
	e.GET("/api/relay/stats", h.handleStats)
}

type infoResponse struct {
	Available bool   `json:"available"`
	Address   string `json:"address"`
	Port      int    `json:"port"`
	Message   string `json:"message"`
}

func (h *Handlers) handleInfo(c echo.Context) error {
	return c.JSON(http.StatusOK, infoResponse{
		Available: h.reg != nil,
		Address:   h.address,
		Port:      h.port,
		Message:   "ok",
	})
}

type allocateRequest struct {
	LobbyID uuid.UUID `json:"lobbyId"`
}

type allocateResponse struct {
	Success      bool      `json:"success"`
	SessionID    uuid.UUID `json:"sessionId"`
	RelayAddress string    `json:"relayAddress"`
	RelayPort    int       `json:"relayPort"`
	Message      string    `json:"message"`
}

func (h *Handlers) handleAllocate(c echo.Context) error {
	var req allocateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.LobbyID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "lobbyId is required")
	}

	sessionID := h.reg.Allocate(req.LobbyID)
	return c.JSON(http.StatusOK, allocateResponse{
		Success:      true,
		SessionID:    sessionID,
		RelayAddress: h.address,
		RelayPort:    h.port,
		Message:      "allocated",
	})
}

func (h *Handlers) handleRelease(c echo.Context) error {
	sessionID, err := uuid.Parse(c.Param("sessionId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid session id")
	}
	released := h.reg.Release(sessionID)
	return c.JSON(http.StatusOK, map[string]bool{"released": released})
}

func (h *Handlers) handleStats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.reg.Stats())
}
