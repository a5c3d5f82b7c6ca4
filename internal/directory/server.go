package directory

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

// SubsystemStatus reports whether the punch/relay subsystems are up, for
// the /health aggregate response.
type SubsystemStatus struct {
	PunchServerRunning  bool
	PunchServerPort     int
	RelayServerRunning  bool
	RelayServerPort     int
	RelayActiveSessions int
}

// StatusSource is polled once per /health request.
type StatusSource func() SubsystemStatus

// Server is the echo-backed HTTP surface for the lobby directory, plus the
// aggregate /health endpoint.
type Server struct {
	dir    *Directory
	status StatusSource
	echo   *echo.Echo

	// codeLimiters throttles short-code allocation per remote address; it is
	// a retry-heavy, crypto-random operation and a single misbehaving host
	// must not be able to degrade it for everyone else.
	codeLimitersMu sync.Mutex
	codeLimiters   map[string]*rate.Limiter
}

// NewServer constructs a Server and registers all routes.
func NewServer(dir *Directory, status StatusSource) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod: true,
		LogURI:    true,
		LogStatus: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			log.Printf("[directory] %s %s %d", v.Method, v.URI, v.Status)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = jsonErrorHandler

	s := &Server{
		dir:          dir,
		status:       status,
		echo:         e,
		codeLimiters: make(map[string]*rate.Limiter),
	}
	s.registerRoutes()
	return s
}

// allowCodeAllocation reports whether addr may attempt another short-code
// allocation right now, lazily creating its limiter on first use.
func (s *Server) allowCodeAllocation(addr string) bool {
	s.codeLimitersMu.Lock()
	l, ok := s.codeLimiters[addr]
	if !ok {
		l = rate.NewLimiter(rate.Limit(5), 10)
		s.codeLimiters[addr] = l
	}
	s.codeLimitersMu.Unlock()
	return l.Allow()
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/api/lobbies", s.handleList)
	s.echo.POST("/api/lobbies", s.handleUpsert)
	s.echo.DELETE("/api/lobbies/:id", s.handleDelete)
	s.echo.POST("/api/lobbies/code", s.handleAllocateCode)
	s.echo.GET("/api/lobbies/code/:code", s.handleLookupCode)
	s.echo.DELETE("/api/lobbies/code/:code", s.handleReleaseCode)
}

// Echo exposes the underlying echo instance so sibling subsystems (punch,
// relay) can register their own routes on the same server and share one
// /health surface, instead of each opening its own listener.
func (s *Server) Echo() *echo.Echo { return s.echo }

// Run starts the server and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) {
	go func() {
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Printf("[directory] server error: %v", err)
		}
	}()
	<-ctx.Done()
	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.echo.Shutdown(shutCtx); err != nil {
		log.Printf("[directory] shutdown: %v", err)
	}
}

type healthResponse struct {
	Status              string `json:"status"`
	Timestamp           string `json:"timestamp"`
	PunchServerRunning  bool   `json:"punchServerRunning"`
	PunchServerPort     int    `json:"punchServerPort"`
	RelayServerRunning  bool   `json:"relayServerRunning"`
	RelayServerPort     int    `json:"relayServerPort"`
	RelayActiveSessions int    `json:"relayActiveSessions"`
}

func (s *Server) handleHealth(c echo.Context) error {
	st := s.status()
	return c.JSON(http.StatusOK, healthResponse{
		Status:              "ok",
		Timestamp:           time.Now().UTC().Format(time.RFC3339),
		PunchServerRunning:  st.PunchServerRunning,
		PunchServerPort:     st.PunchServerPort,
		RelayServerRunning:  st.RelayServerRunning,
		RelayServerPort:     st.RelayServerPort,
		RelayActiveSessions: st.RelayActiveSessions,
	})
}

type entryDTO struct {
	LobbyID          uuid.UUID `json:"lobbyId"`
	LobbyName        string    `json:"lobbyName"`
	HostName         string    `json:"hostName"`
	Address          string    `json:"address"`
	Port             int       `json:"port"`
	CurrentPlayers   int       `json:"currentPlayers"`
	MaxPlayers       int       `json:"maxPlayers"`
	HasPassword      bool      `json:"hasPassword"`
	Version          string    `json:"version"`
	LastHeartbeatUTC time.Time `json:"lastHeartbeatUtc"`
}

func toDTO(e Entry) entryDTO {
	return entryDTO{
		LobbyID:          e.LobbyID,
		LobbyName:        e.LobbyName,
		HostName:         e.HostName,
		Address:          e.Address,
		Port:             e.Port,
		CurrentPlayers:   e.CurrentPlayers,
		MaxPlayers:       e.MaxPlayers,
		HasPassword:      e.HasPassword,
		Version:          e.Version,
		LastHeartbeatUTC: e.LastHeartbeatUTC,
	}
}

func (s *Server) handleList(c echo.Context) error {
	entries := s.dir.List()
	out := make([]entryDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, toDTO(e))
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleUpsert(c echo.Context) error {
	var req entryDTO
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.LobbyID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "lobbyId is required")
	}

	resolved := ResolveClientAddress(c.Request().Header.Get("X-Forwarded-For"), c.Request().RemoteAddr)
	entry := s.dir.Upsert(Entry{
		LobbyID:        req.LobbyID,
		LobbyName:      req.LobbyName,
		HostName:       req.HostName,
		Address:        req.Address,
		Port:           req.Port,
		CurrentPlayers: req.CurrentPlayers,
		MaxPlayers:     req.MaxPlayers,
		HasPassword:    req.HasPassword,
		Version:        req.Version,
	}, resolved)

	return c.JSON(http.StatusOK, toDTO(entry))
}

func (s *Server) handleDelete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid lobby id")
	}
	removed := s.dir.Remove(id)
	return c.JSON(http.StatusOK, map[string]bool{"removed": removed})
}

type codeRequest struct {
	LobbyID uuid.UUID `json:"lobbyId"`
}

func (s *Server) handleAllocateCode(c echo.Context) error {
	addr := ResolveClientAddress(c.Request().Header.Get("X-Forwarded-For"), c.Request().RemoteAddr)
	if !s.allowCodeAllocation(addr) {
		return echo.NewHTTPError(http.StatusTooManyRequests, "rate limited")
	}

	var req codeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	code, err := s.dir.AllocateCode(req.LobbyID)
	if errors.Is(err, ErrLobbyNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{"code": code, "lobbyId": req.LobbyID})
}

func (s *Server) handleLookupCode(c echo.Context) error {
	code := c.Param("code")
	if len(code) != 6 {
		return echo.NewHTTPError(http.StatusBadRequest, "code must be 6 characters")
	}
	entry, ok := s.dir.LookupCode(code)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "code not found")
	}
	return c.JSON(http.StatusOK, toDTO(entry))
}

func (s *Server) handleReleaseCode(c echo.Context) error {
	released := s.dir.ReleaseCode(c.Param("code"))
	return c.JSON(http.StatusOK, map[string]bool{"released": released})
}

// jsonErrorHandler mirrors the teacher's single consistent error body
// across every endpoint: {"error": "message"}.
func jsonErrorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	msg := err.Error()
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		}
	}
	if !c.Response().Committed {
		if c.Request().Method == http.MethodHead {
			c.NoContent(code) //nolint:errcheck
		} else {
			c.JSON(code, map[string]string{"error": msg}) //nolint:errcheck
		}
	}
}
