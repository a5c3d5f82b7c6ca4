package relay

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
	reg := NewRegistry()
	e := echo.New()
	h := NewHandlers(reg, "203.0.113.1", 9052)
	h.Register(e)
	return h, e
}

func TestHandleAllocateIsIdempotent(t *testing.T) {
	h, e := newTestHandlers()
	lobby := uuid.New()
	body := `{"lobbyId":"` + lobby.String() + `"}`

	call := func() allocateResponse {
		req := httptest.NewRequest(http.MethodPost, "/api/relay/allocate", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		if err := h.handleAllocate(c); err != nil {
			t.Fatalf("handleAllocate: %v", err)
		}
		var resp allocateResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return resp
	}

	r1 := call()
	r2 := call()
	if !r1.Success || r1.SessionID != r2.SessionID {
		t.Fatalf("expected idempotent allocation, got %+v then %+v", r1, r2)
	}
}

func TestHandleReleaseTearsDownSession(t *testing.T) {
	h, e := newTestHandlers()
	sid := h.reg.Allocate(uuid.New())

	req := httptest.NewRequest(http.MethodDelete, "/api/relay/"+sid.String(), nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("sessionId")
	c.SetParamValues(sid.String())

	if err := h.handleRelease(c); err != nil {
		t.Fatalf("handleRelease: %v", err)
	}
	var resp map[string]bool
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !resp["released"] {
		t.Fatal("expected released=true")
	}
}

func TestHandleStatsReflectsTraffic(t *testing.T) {
	h, e := newTestHandlers()
	sid := h.reg.Allocate(uuid.New())
	h.reg.Register(sid, SlotHost, "host:1")
	h.reg.Register(sid, SlotClient, "client:1")
	h.reg.Forward(sid, "host:1", 42)

	req := httptest.NewRequest(http.MethodGet, "/api/relay/stats", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := h.handleStats(c); err != nil {
		t.Fatalf("handleStats: %v", err)
	}
	var st Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if st.ActiveSessions != 1 || st.PacketsRelayed != 1 || st.BytesRelayed != 42 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}
