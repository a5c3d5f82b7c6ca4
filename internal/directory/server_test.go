package directory

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func newTestServer() *Server {
	return NewServer(New(0), func() SubsystemStatus { return SubsystemStatus{} })
}

func TestHandleAllocateCodeUnknownLobbyReturns404(t *testing.T) {
	s := newTestServer()

	body := `{"lobbyId":"` + uuid.New().String() + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/lobbies/code", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "198.51.100.9:5000"
	rec := httptest.NewRecorder()
	c := s.echo.NewContext(req, rec)

	err := s.handleAllocateCode(c)
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %T (%v)", err, err)
	}
	if he.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", he.Code, http.StatusNotFound)
	}
}

func TestHandleAllocateCodeSucceedsForKnownLobby(t *testing.T) {
	s := newTestServer()
	id := uuid.New()
	s.dir.Upsert(Entry{LobbyID: id}, "198.51.100.9")

	body := `{"lobbyId":"` + id.String() + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/lobbies/code", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "198.51.100.9:5000"
	rec := httptest.NewRecorder()
	c := s.echo.NewContext(req, rec)

	if err := s.handleAllocateCode(c); err != nil {
		t.Fatalf("handleAllocateCode: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
