package punch

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func newTestHandlers() (*Handlers, *echo.Echo) {
	c := newTestCoordinator()
	e := echo.New()
	h := NewHandlers(c, "203.0.113.1", 9051)
	h.Register(e)
	return h, e
}

func TestHandleInfoReportsAvailability(t *testing.T) {
	h, e := newTestHandlers()

	req := httptest.NewRequest(http.MethodGet, "/api/punch/info", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.handleInfo(c); err != nil {
		t.Fatalf("handleInfo: %v", err)
	}
	var resp infoResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !resp.Available || resp.Port != 9051 {
		t.Fatalf("unexpected info response: %+v", resp)
	}
}

func TestHandleRegisterThenRequestIntroducesImmediately(t *testing.T) {
	h, e := newTestHandlers()
	lobby := uuid.New()

	var introduced bool
	h.coord.OnIntroduce = func(uuid.UUID, string, string, string, string, string) { introduced = true }

	regBody := `{"lobbyId":"` + lobby.String() + `","internalEndpoint":"10.0.0.5:7000","externalPort":7000}`
	req := httptest.NewRequest(http.MethodPost, "/api/punch/register", strings.NewReader(regBody))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "198.51.100.2:5000"
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := h.handleRegister(c); err != nil {
		t.Fatalf("handleRegister: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("register status = %d", rec.Code)
	}

	reqBody := `{"lobbyId":"` + lobby.String() + `","clientPort":8000}`
	req2 := httptest.NewRequest(http.MethodPost, "/api/punch/request", strings.NewReader(reqBody))
	req2.Header.Set("Content-Type", "application/json")
	req2.RemoteAddr = "198.51.100.3:6000"
	rec2 := httptest.NewRecorder()
	c2 := e.NewContext(req2, rec2)
	if err := h.handleRequest(c2); err != nil {
		t.Fatalf("handleRequest: %v", err)
	}

	var resp requestResponse
	if err := json.Unmarshal(rec2.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !resp.Success || resp.PunchToken == "" {
		t.Fatalf("unexpected request response: %+v", resp)
	}
	if !introduced {
		t.Fatal("expected introduction once both host and client registered")
	}
}

func TestHandleRegisterDoesNotOverwriteUDPObservedEndpoint(t *testing.T) {
	h, e := newTestHandlers()
	lobby := uuid.New()

	h.coord.RegisterHost(lobby, Endpoint{External: "203.0.113.9:30500"})

	regBody := `{"lobbyId":"` + lobby.String() + `","internalEndpoint":"10.0.0.5:7000","externalPort":7000}`
	req := httptest.NewRequest(http.MethodPost, "/api/punch/register", strings.NewReader(regBody))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "198.51.100.2:5000"
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := h.handleRegister(c); err != nil {
		t.Fatalf("handleRegister: %v", err)
	}

	got := h.coord.hosts[lobby]
	if got.endpoint.External != "203.0.113.9:30500" {
		t.Fatalf("expected UDP-observed endpoint preserved, got %+v", got.endpoint)
	}
	if !got.fromUDP {
		t.Fatal("expected host entry to remain marked fromUDP")
	}
}

func TestHandleUnregisterDropsHost(t *testing.T) {
	h, e := newTestHandlers()
	lobby := uuid.New()
	h.coord.RegisterHost(lobby, Endpoint{External: "1.2.3.4:1000"})

	req := httptest.NewRequest(http.MethodDelete, "/api/punch/register/"+lobby.String(), nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("lobbyId")
	c.SetParamValues(lobby.String())

	if err := h.handleUnregister(c); err != nil {
		t.Fatalf("handleUnregister: %v", err)
	}
	var resp map[string]bool
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !resp["unregistered"] {
		t.Fatal("expected unregistered=true")
	}
	if _, ok := h.coord.hosts[lobby]; ok {
		t.Fatal("expected host entry removed")
	}
}

func TestClientIPPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "198.51.100.9, 10.0.0.1")
	req.RemoteAddr = "192.0.2.1:5000"
	e := echo.New()
	c := e.NewContext(req, httptest.NewRecorder())

	if got := clientIP(c); got != "198.51.100.9" {
		t.Fatalf("clientIP = %q, want forwarded hop", got)
	}
}
