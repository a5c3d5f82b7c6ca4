package punch

import (
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestCoordinator() *Coordinator {
	return &Coordinator{
		hosts:   make(map[uuid.UUID]hostReg),
		pending: make(map[uuid.UUID][]pendingRequest),
	}
}

func TestIntroductionFiresImmediatelyWhenHostAlreadyRegistered(t *testing.T) {
	c := newTestCoordinator()
	lobby := uuid.New()

	var introduced bool
	c.OnIntroduce = func(gotLobby uuid.UUID, hostInt, hostExt, cliInt, cliExt, token string) {
		introduced = true
		if gotLobby != lobby || token != "tok1" {
			t.Fatalf("unexpected introduce args: %v %v %v %v %v %v", gotLobby, hostInt, hostExt, cliInt, cliExt, token)
		}
	}
	var result *bool
	c.OnResult = func(_ uuid.UUID, success bool) { result = &success }

	c.RegisterHost(lobby, Endpoint{External: "1.2.3.4:1000"})
	c.RequestIntroduction(lobby, "tok1", Endpoint{External: "5.6.7.8:2000"})

	if !introduced {
		t.Fatal("expected immediate introduction once host is registered")
	}
	if result == nil || !*result {
		t.Fatal("expected a success result")
	}
}

func TestRequestQueuedBeforeHostRegisters(t *testing.T) {
	c := newTestCoordinator()
	lobby := uuid.New()

	introducedCount := 0
	c.OnIntroduce = func(uuid.UUID, string, string, string, string, string) { introducedCount++ }

	c.RequestIntroduction(lobby, "tok1", Endpoint{External: "5.6.7.8:2000"})
	if introducedCount != 0 {
		t.Fatal("expected no introduction before the host registers")
	}

	c.RegisterHost(lobby, Endpoint{External: "1.2.3.4:1000"})
	if introducedCount != 1 {
		t.Fatalf("expected exactly one introduction once the host registers, got %d", introducedCount)
	}
}

func TestPendingRequestExpiresAfterTTL(t *testing.T) {
	c := newTestCoordinator()
	lobby := uuid.New()

	var results []bool
	c.OnResult = func(_ uuid.UUID, success bool) { results = append(results, success) }

	c.pending[lobby] = []pendingRequest{{
		clientToken: "tok1",
		endpoint:    Endpoint{External: "5.6.7.8:2000"},
		requestedAt: time.Now().Add(-PendingRequestTTL - time.Second),
	}}

	c.RegisterHost(lobby, Endpoint{External: "1.2.3.4:1000"})

	if len(results) != 1 || results[0] {
		t.Fatalf("expected a single failed result for the expired request, got %v", results)
	}
}

func TestExpirePendingDropsStaleHostRegistrations(t *testing.T) {
	c := newTestCoordinator()
	lobby := uuid.New()
	c.hosts[lobby] = hostReg{endpoint: Endpoint{External: "1.2.3.4:1000"}, lastSeen: time.Now().Add(-HostRegistrationTTL - time.Second)}

	c.ExpirePending(time.Now())

	if _, ok := c.hosts[lobby]; ok {
		t.Fatal("expected stale host registration to be dropped")
	}
}

func TestHandleTokenParsesHostAndClientForms(t *testing.T) {
	c := newTestCoordinator()
	lobby := uuid.New()

	c.handleToken("host:"+lobby.String(), mustResolve(t, "1.2.3.4:1000"))
	if _, ok := c.hosts[lobby]; !ok {
		t.Fatal("expected host token to register the host")
	}

	lobby2 := uuid.New()
	c.handleToken("client:"+lobby2.String()+":tok9", mustResolve(t, "5.6.7.8:2000"))
	if _, ok := c.pending[lobby2]; !ok {
		t.Fatal("expected client token to queue a pending request")
	}
}

func mustResolve(t *testing.T, addr string) *net.UDPAddr {
	t.Helper()
	a, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		t.Fatalf("ResolveUDPAddr: %v", err)
	}
	return a
}
