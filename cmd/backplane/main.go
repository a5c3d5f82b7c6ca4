// Command backplane runs the rendezvous process: the HTTP lobby directory,
// the UDP NAT hole-punch coordinator, and the session-multiplexed relay
// fallback (both its raw-UDP and WebTransport dialects), sharing one echo
// instance the way the teacher's main.go wires Room/APIServer/Server
// together around one flag.Parse() and one graceful-shutdown context.
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/quic-go/quic-go/http3"
	"github.com/quic-go/webtransport-go"

	"github.com/yarg-net/backplane/internal/directory"
	"github.com/yarg-net/backplane/internal/punch"
	"github.com/yarg-net/backplane/internal/relay"
	"github.com/yarg-net/backplane/internal/tlsutil"
)

func main() {
	httpAddr := flag.String("http-addr", ":8080", "directory/punch-control/relay-control HTTP listen address")
	punchPort := flag.Int("punch-port", envInt("PUNCH_PORT", 9051), "UDP port for NAT hole-punch coordination")
	relayPort := flag.Int("relay-port", envInt("RELAY_PORT", 9052), "UDP port for the raw-UDP relay dialect")
	relayWTAddr := flag.String("relay-wt-addr", ":9053", "WebTransport listen address for the relay's reliable-datagram dialect")
	lobbyTTL := flag.Duration("lobby-ttl", directory.DefaultTTL, "how long a lobby advertisement survives without a refreshing heartbeat")
	idleTimeout := flag.Duration("idle-timeout", 30*time.Second, "HTTP idle timeout")
	certValidity := flag.Duration("cert-validity", 24*time.Hour, "self-signed TLS certificate validity for the WebTransport relay listener")
	flag.Parse()

	logFlyDiagnostics()

	dir := directory.New(*lobbyTTL)

	coord, err := punch.Listen(":" + strconv.Itoa(*punchPort))
	if err != nil {
		log.Fatalf("[punch] %v", err)
	}
	defer coord.Close()
	go coord.Run()

	reg := relay.NewRegistry()

	relayListener, err := relay.ListenA(":"+strconv.Itoa(*relayPort), reg)
	if err != nil {
		log.Fatalf("[relay] %v", err)
	}
	defer relayListener.Close()
	go relayListener.Run()

	wtRelay := relay.NewWTRelay(reg)
	tlsConfig, fingerprint, err := tlsutil.GenerateConfig(*certValidity, "")
	if err != nil {
		log.Fatalf("[relay] generate TLS config: %v", err)
	}
	log.Printf("[relay] WebTransport relay TLS certificate fingerprint: %s", fingerprint)

	wtServer := newRelayWTServer(*relayWTAddr, tlsConfig, wtRelay)
	defer wtServer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		log.Println("[backplane] shutting down...")
		cancel()
		wtServer.Close()
	}()

	go func() {
		if err := wtServer.ListenAndServe(); err != nil && ctx.Err() == nil {
			log.Printf("[relay] WebTransport listener: %v", err)
		}
	}()

	go runRelayGC(ctx, reg, 1*time.Minute)

	status := func() directory.SubsystemStatus {
		stats := reg.Stats()
		return directory.SubsystemStatus{
			PunchServerRunning:  true,
			PunchServerPort:     *punchPort,
			RelayServerRunning:  true,
			RelayServerPort:     *relayPort,
			RelayActiveSessions: stats.ActiveSessions,
		}
	}

	srv := directory.NewServer(dir, status)
	punch.NewHandlers(coord, "", *punchPort).Register(srv.Echo())
	relay.NewHandlers(reg, "", *relayPort).Register(srv.Echo())
	srv.Echo().Server.IdleTimeout = *idleTimeout

	srv.Run(ctx, *httpAddr)
}

// newRelayWTServer wires a WebTransport/HTTP3 listener around wtRelay: one
// "/relay" route accepting sessions and handing each straight to
// wtRelay.HandleSession, mirroring internal/transport/wt's
// webtransport.Server{H3: http3.Server{...}} construction but with a single
// route and no control-stream handshake — dialect B's registration is
// itself the first datagram, there is no out-of-band join step.
func newRelayWTServer(addr string, tlsConfig *tls.Config, wtRelay *relay.WTRelay) *webtransport.Server {
	wt := &webtransport.Server{
		H3: http3.Server{
			Addr:      addr,
			TLSConfig: tlsConfig,
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/relay", func(w http.ResponseWriter, r *http.Request) {
		sess, err := wt.Upgrade(w, r)
		if err != nil {
			log.Printf("[relay] webtransport upgrade failed: %v", err)
			return
		}
		wtRelay.HandleSession(r.Context(), sess)
	})
	wt.H3.Handler = mux
	return wt
}

func runRelayGC(ctx context.Context, reg *relay.Registry, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if dropped := reg.GC(now); len(dropped) > 0 {
				log.Printf("[relay] GC dropped %d inactive session(s)", len(dropped))
			}
		}
	}
}

// envInt reads an integer environment variable, falling back to def when
// unset or unparsable.
func envInt(name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// logFlyDiagnostics logs Fly.io placement metadata once at startup, the
// same "log once, diagnostics only" treatment main.go gives its TLS
// fingerprint.
func logFlyDiagnostics() {
	app := os.Getenv("FLY_APP_NAME")
	ip := os.Getenv("FLY_PUBLIC_IP")
	alloc := os.Getenv("FLY_ALLOC_ID")
	if app == "" && ip == "" && alloc == "" {
		return
	}
	log.Printf("[backplane] fly diagnostics: app=%q public_ip=%q alloc=%q", app, ip, alloc)
}
