// Package punch implements the NAT hole-punch coordinator: a single UDP
// socket that doubles as the introduction rendezvous and as an observer of
// peers' externally-visible endpoints. §4.10 is explicitly a stdlib fit —
// one net.UDPConn is the whole transport surface here, nothing in the pack
// wraps raw UDP listening in a third-party library.
package punch

import (
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// HostRegistrationTTL bounds how long a host's registration stays valid
// without a refresh.
const HostRegistrationTTL = 90 * time.Second

// PendingRequestTTL bounds how long a client's punch request waits for a
// host to register before being dropped.
const PendingRequestTTL = 30 * time.Second

// Endpoint is a UDP address observed or reported for one side of a punch.
type Endpoint struct {
	Internal string
	External string
}

type hostReg struct {
	endpoint Endpoint
	lastSeen time.Time
	// fromUDP marks an entry recorded from handleToken's UDP-observed
	// endpoint. NAT port mappings drift, so a UDP-sourced entry is
	// authoritative and must not be clobbered by a later HTTP-reported hint.
	fromUDP bool
}

type pendingRequest struct {
	clientToken string
	endpoint    Endpoint
	requestedAt time.Time
}

// ResultFunc is invoked once per punch attempt with its outcome.
type ResultFunc func(lobbyID uuid.UUID, success bool)

// IntroduceFunc is invoked when both sides of a punch are known, carrying
// the NatIntroduce payload the transport library would emit to both peers.
type IntroduceFunc func(lobbyID uuid.UUID, hostInternal, hostExternal, clientInternal, clientExternal, token string)

// Coordinator owns the UDP socket and the registration/pending-request
// bookkeeping. It does not dial out beyond the unconnected hint packets
// sent as part of the introduction procedure.
type Coordinator struct {
	conn *net.UDPConn

	mu      sync.Mutex
	hosts   map[uuid.UUID]hostReg
	pending map[uuid.UUID][]pendingRequest

	OnResult    ResultFunc
	OnIntroduce IntroduceFunc
}

// Listen opens the UDP socket on addr (e.g. ":30500") and returns a
// Coordinator ready to run.
func Listen(addr string) (*Coordinator, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("punch: resolve %q: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("punch: listen %q: %w", addr, err)
	}
	return &Coordinator{
		conn:    conn,
		hosts:   make(map[uuid.UUID]hostReg),
		pending: make(map[uuid.UUID][]pendingRequest),
	}, nil
}

// LocalPort returns the UDP port this coordinator is bound to.
func (c *Coordinator) LocalPort() int {
	if c.conn == nil {
		return 0
	}
	return c.conn.LocalAddr().(*net.UDPAddr).Port
}

// Close releases the UDP socket.
func (c *Coordinator) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// Run reads registration tokens from the UDP socket until the socket is
// closed. Tokens are sent as the "additional info" payload per §4.10:
// "host:<lobbyId>" or "client:<lobbyId>:<clientToken>".
func (c *Coordinator) Run() {
	buf := make([]byte, 2048)
	for {
		n, src, err := c.conn.ReadFromUDP(buf)
		if err != nil {
			return // socket closed
		}
		c.handleToken(string(buf[:n]), src)
	}
}

func (c *Coordinator) handleToken(token string, src *net.UDPAddr) {
	switch {
	case strings.HasPrefix(token, "host:"):
		lobbyID, err := uuid.Parse(strings.TrimPrefix(token, "host:"))
		if err != nil {
			log.Printf("[punch] malformed host token: %q", token)
			return
		}
		c.registerHost(lobbyID, Endpoint{External: src.String()}, true)

	case strings.HasPrefix(token, "client:"):
		rest := strings.TrimPrefix(token, "client:")
		parts := strings.SplitN(rest, ":", 2)
		if len(parts) != 2 {
			log.Printf("[punch] malformed client token: %q", token)
			return
		}
		lobbyID, err := uuid.Parse(parts[0])
		if err != nil {
			log.Printf("[punch] malformed client lobby id: %q", token)
			return
		}
		c.RequestIntroduction(lobbyID, parts[1], Endpoint{External: src.String()})

	default:
		log.Printf("[punch] unrecognized token: %q", token)
	}
}

// RegisterHost records the host's UDP-observed external endpoint for
// lobbyID and drains any pending client requests younger than
// PendingRequestTTL. This is the authoritative path, the same one
// handleToken takes; it always overwrites whatever was previously recorded.
func (c *Coordinator) RegisterHost(lobbyID uuid.UUID, ep Endpoint) {
	c.registerHost(lobbyID, ep, true)
}

// RegisterHostHint records an HTTP-self-reported endpoint for lobbyID. Per
// §4.10, a UDP-observed endpoint is authoritative because NAT port mappings
// drift; a hint therefore never overwrites an existing UDP-sourced entry and
// only fills in before one arrives.
func (c *Coordinator) RegisterHostHint(lobbyID uuid.UUID, ep Endpoint) {
	c.mu.Lock()
	if existing, ok := c.hosts[lobbyID]; ok && existing.fromUDP {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.registerHost(lobbyID, ep, false)
}

func (c *Coordinator) registerHost(lobbyID uuid.UUID, ep Endpoint, fromUDP bool) {
	c.mu.Lock()
	c.hosts[lobbyID] = hostReg{endpoint: ep, lastSeen: time.Now(), fromUDP: fromUDP}
	pending := c.pending[lobbyID]
	delete(c.pending, lobbyID)
	c.mu.Unlock()

	now := time.Now()
	for _, req := range pending {
		if now.Sub(req.requestedAt) > PendingRequestTTL {
			c.reportResult(lobbyID, false)
			continue
		}
		c.introduce(lobbyID, ep, req.endpoint, req.clientToken)
	}
}

// RequestIntroduction registers a client's observed endpoint and introduces
// it to the host immediately if the host is already registered; otherwise
// the request is queued.
func (c *Coordinator) RequestIntroduction(lobbyID uuid.UUID, clientToken string, ep Endpoint) {
	c.mu.Lock()
	host, ok := c.hosts[lobbyID]
	if !ok {
		c.pending[lobbyID] = append(c.pending[lobbyID], pendingRequest{
			clientToken: clientToken,
			endpoint:    ep,
			requestedAt: time.Now(),
		})
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.introduce(lobbyID, host.endpoint, ep, clientToken)
}

func (c *Coordinator) introduce(lobbyID uuid.UUID, hostEP, clientEP Endpoint, token string) {
	if c.OnIntroduce != nil {
		c.OnIntroduce(lobbyID, hostEP.Internal, hostEP.External, clientEP.Internal, clientEP.External, token)
	}
	c.sendHint(hostEP.External)
	c.sendHint(clientEP.External)
	c.reportResult(lobbyID, true)
}

// sendHint fires one unconnected UDP packet at addr so intervening
// middleboxes observe outbound traffic toward the peer, per the
// introduction procedure.
func (c *Coordinator) sendHint(addr string) {
	if addr == "" || c.conn == nil {
		return
	}
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return
	}
	_, _ = c.conn.WriteToUDP([]byte("punch-hint"), udpAddr)
}

func (c *Coordinator) reportResult(lobbyID uuid.UUID, success bool) {
	if c.OnResult != nil {
		c.OnResult(lobbyID, success)
	}
}

// ExpirePending drops queued client requests older than PendingRequestTTL
// and host registrations older than HostRegistrationTTL. Intended to run
// periodically from the caller's own ticker.
func (c *Coordinator) ExpirePending(now time.Time) {
	var expired []uuid.UUID

	c.mu.Lock()
	for lobbyID, reqs := range c.pending {
		var kept []pendingRequest
		for _, r := range reqs {
			if now.Sub(r.requestedAt) > PendingRequestTTL {
				expired = append(expired, lobbyID)
				continue
			}
			kept = append(kept, r)
		}
		if len(kept) == 0 {
			delete(c.pending, lobbyID)
		} else {
			c.pending[lobbyID] = kept
		}
	}
	for lobbyID, h := range c.hosts {
		if now.Sub(h.lastSeen) > HostRegistrationTTL {
			delete(c.hosts, lobbyID)
		}
	}
	c.mu.Unlock()

	for _, lobbyID := range expired {
		c.reportResult(lobbyID, false)
	}
}

// PortString renders an int port as the string form the HTTP handlers join
// onto an IP to build an "ip:port" endpoint.
func PortString(port int) string { return strconv.Itoa(port) }
