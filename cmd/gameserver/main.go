// Command gameserver is the reference game-process binary: it wires the
// transport-agnostic protocol core (C1-C8, C12) onto the concrete
// WebTransport adapter in internal/transport/wt, the same end-to-end
// assembly main.go performs for Room/APIServer/Server, just over the
// lobby/session protocol instead of voice chat.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"

	"github.com/yarg-net/backplane/internal/dispatch"
	"github.com/yarg-net/backplane/internal/gameserver"
	"github.com/yarg-net/backplane/internal/handshake"
	"github.com/yarg-net/backplane/internal/lobby"
	"github.com/yarg-net/backplane/internal/scorereplay"
	"github.com/yarg-net/backplane/internal/session"
	"github.com/yarg-net/backplane/internal/tlsutil"
	"github.com/yarg-net/backplane/internal/transport/wt"
	"github.com/yarg-net/backplane/internal/wireproto"
)

func main() {
	addr := flag.String("addr", ":9443", "WebTransport listen address")
	certValidity := flag.Duration("cert-validity", 24*time.Hour, "self-signed TLS certificate validity")
	protocolVersion := flag.String("protocol-version", "yarg-net/1", "expected client protocol version string")
	maxPlayers := flag.Int("max-players", 8, "maximum concurrent sessions")
	flag.Parse()

	tlsConfig, fingerprint, err := tlsutil.GenerateConfig(*certValidity, "")
	if err != nil {
		log.Fatalf("[gameserver] generate TLS config: %v", err)
	}
	log.Printf("[gameserver] TLS certificate fingerprint: %s", fingerprint)

	sessions := session.New(*maxPlayers)
	validator := &handshake.Validator{ExpectedVersion: *protocolVersion, Sessions: sessions}

	conns := gameserver.NewConnectionManager()
	replay := scorereplay.New()
	relayTable := gameserver.NewRelayTable(conns).WithReplay(replay)

	var coord *gameserver.ServerLobbyCoordinator
	lb := lobby.New(uuid.New(), func(lobbyID uuid.UUID, events []lobby.Event) {
		coord.HandleEvents(lobbyID, events)
	})
	coord = gameserver.NewServerLobbyCoordinator(lb, conns)

	disp := dispatch.New()
	if err := disp.RegisterHandler(wireproto.HandshakeRequest, handshakeHandler(validator, coord, conns, *protocolVersion)); err != nil {
		log.Fatalf("[gameserver] register handshake handler: %v", err)
	}

	transport := wt.New(*addr, tlsConfig)
	transport.OnConnect = func(conn gameserver.Connection) {
		conns.AddPending(conn)
	}
	transport.OnDisconnect = func(connID uuid.UUID, reason string) {
		if playerID, ok := conns.PlayerOf(connID); ok {
			coord.Leave(playerID)
		}
		replay.Forget(connID)
		conns.Remove(connID)
	}
	transport.OnPayload = func(conn gameserver.Connection, data []byte, channel gameserver.Channel) {
		if len(data) == 0 {
			return
		}
		if wireproto.IsJSONEnvelope(data[0]) {
			if !conns.AllowControlMessage(conn.Id()) {
				return
			}
			// ConnectionID carries the live Connection handle (not just its
			// uuid): handlers that run before authentication — the
			// handshake itself — have no other way to reply, since
			// ConnectionManager.ByConnection only resolves authenticated
			// connections.
			ctx := dispatch.Context{ConnectionID: conn, Role: dispatch.RoleClient}
			if _, err := disp.Dispatch(ctx, data); err != nil {
				log.Printf("[gameserver] dispatch error from %s: %v", conn.Id(), err)
			}
			return
		}
		relayTable.Forward(conn.Id(), data)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		log.Println("[gameserver] shutting down...")
		cancel()
		transport.Close()
	}()

	go gameserver.RunPollLoop(ctx, transport, func(err error) {
		log.Printf("[gameserver] poll error: %v", err)
	})

	log.Printf("[gameserver] listening on %s", *addr)
	if err := transport.ListenAndServe(); err != nil && ctx.Err() == nil {
		log.Fatalf("[gameserver] %v", err)
	}
}

// handshakeHandler validates an incoming HandshakeRequest, creates a
// session and lobby membership on acceptance, and always replies with a
// HandshakeResponse envelope — the JSON-protocol analogue of client.go's
// join handshake over the control stream.
func handshakeHandler(validator *handshake.Validator, coord *gameserver.ServerLobbyCoordinator, conns *gameserver.ConnectionManager, protocolVersion string) dispatch.Handler {
	return func(ctx dispatch.Context, env wireproto.Envelope) error {
		conn, ok := ctx.ConnectionID.(gameserver.Connection)
		if !ok {
			return nil
		}
		connID := conn.Id()

		var req handshake.Request
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			return err
		}

		resp, rec := validator.Validate(connID, req)
		if err := sendEnvelope(conn, wireproto.HandshakeResponse, protocolVersion, resp); err != nil {
			return err
		}

		if resp.Accepted && rec != nil {
			conns.Authenticate(connID, resp.SessionID)
			coord.Join(resp.SessionID, rec.PlayerName, false)
		}
		return nil
	}
}

func sendEnvelope(conn gameserver.Connection, t wireproto.PacketType, protocolVersion string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	raw, err := wireproto.Serialize(wireproto.Envelope{Type: t, Payload: data, Version: protocolVersion})
	if err != nil {
		return err
	}
	return conn.Send(raw, gameserver.ReliableOrdered)
}
