package punch

import (
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// Handlers registers the punch control-plane routes onto a shared echo
// instance; the actual hole-punch happens on the UDP plane via Coordinator.
type Handlers struct {
	coord   *Coordinator
	address string
	port    int
}

// NewHandlers binds coord to the advertised UDP address/port reported by
// GET /api/punch/info.
func NewHandlers(coord *Coordinator, address string, port int) *Handlers {
	return &Handlers{coord: coord, address: address, port: port}
}

// Register mounts every punch route on e.
func (h *Handlers) Register(e *echo.Echo) {
	e.GET("/api/punch/info", h.handleInfo)
	e.POST("/api/punch/register", h.handleRegister)
	e.POST("/api/punch/request", h.handleRequest)
	e.DELETE("/api/punch/register/:lobbyId", h.handleUnregister)
}

type infoResponse struct {
	Available bool   `json:"available"`
	Address   string `json:"address"`
	Port      int    `json:"port"`
	Message   string `json:"message"`
}

func (h *Handlers) handleInfo(c echo.Context) error {
	return c.JSON(http.StatusOK, infoResponse{
		Available: h.coord != nil,
		Address:   h.address,
		Port:      h.port,
		Message:   "ok",
	})
}

type registerRequest struct {
	LobbyID          uuid.UUID `json:"lobbyId"`
	InternalEndpoint string    `json:"internalEndpoint"`
	ExternalPort     int       `json:"externalPort"`
}

func (h *Handlers) handleRegister(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.LobbyID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "lobbyId is required")
	}

	// The HTTP-reported endpoint is a hint only; a UDP-observed endpoint
	// recorded via handleToken takes precedence and is never overwritten by
	// this path, since NAT port mappings drift.
	peerIP := clientIP(c)
	ext := peerIP
	if req.ExternalPort != 0 {
		ext = peerIP + ":" + PortString(req.ExternalPort)
	}
	h.coord.RegisterHostHint(req.LobbyID, Endpoint{Internal: req.InternalEndpoint, External: ext})

	return c.JSON(http.StatusOK, map[string]any{"registered": true, "lobbyId": req.LobbyID})
}

type requestRequest struct {
	LobbyID                uuid.UUID `json:"lobbyId"`
	ClientInternalEndpoint string    `json:"clientInternalEndpoint"`
	ClientPort             int       `json:"clientPort"`
	ClientToken            string    `json:"clientToken"`
}

type requestResponse struct {
	Success    bool   `json:"success"`
	PunchToken string `json:"punchToken"`
	Message    string `json:"message"`
}

func (h *Handlers) handleRequest(c echo.Context) error {
	var req requestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.LobbyID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "lobbyId is required")
	}
	token := req.ClientToken
	if token == "" {
		token = uuid.New().String()
	}

	peerIP := clientIP(c)
	ext := peerIP
	if req.ClientPort != 0 {
		ext = peerIP + ":" + PortString(req.ClientPort)
	}
	h.coord.RequestIntroduction(req.LobbyID, token, Endpoint{Internal: req.ClientInternalEndpoint, External: ext})

	return c.JSON(http.StatusOK, requestResponse{Success: true, PunchToken: token, Message: "queued"})
}

func (h *Handlers) handleUnregister(c echo.Context) error {
	lobbyID, err := uuid.Parse(c.Param("lobbyId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid lobby id")
	}
	h.coord.mu.Lock()
	_, existed := h.coord.hosts[lobbyID]
	delete(h.coord.hosts, lobbyID)
	h.coord.mu.Unlock()

	return c.JSON(http.StatusOK, map[string]bool{"unregistered": existed})
}

// clientIP extracts the caller's address the same way directory.
// ResolveClientAddress does: first X-Forwarded-For hop, else the TCP peer,
// with an IPv4-mapped IPv6 address unmapped to plain IPv4.
func clientIP(c echo.Context) string {
	addr := c.Request().RemoteAddr
	if xff := c.Request().Header.Get("X-Forwarded-For"); xff != "" {
		addr = strings.TrimSpace(strings.Split(xff, ",")[0])
	} else if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	if ip := net.ParseIP(addr); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			return v4.String()
		}
	}
	return addr
}
