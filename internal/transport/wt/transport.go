// Package wt is the reference WebTransport implementation of
// gameserver.Connection/gameserver.Transport. §4.12 treats the transport as
// a pluggable abstraction; this package is one concrete choice, built on
// the same quic-go/webtransport-go session API the voice-chat teacher used
// for its own client sessions (client.go's handleClient/readDatagrams),
// with the HTTP3/WebTransport server-side listener wired up fresh since the
// teacher never constructed one itself (it only ever consumed an
// already-accepted *webtransport.Session).
package wt

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"io"
	"log"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/quic-go/quic-go/http3"
	"github.com/quic-go/webtransport-go"

	"github.com/yarg-net/backplane/internal/gameserver"
)

// maxStreamFrame bounds a single length-prefixed ReliableOrdered message,
// mirroring client.go's MaxDatagramSize-style sanity bound but sized for
// the larger JSON envelopes this channel carries.
const maxStreamFrame = 1 << 20

// OnPayload is invoked once per received frame, on whichever connection it
// arrived on, from Transport.Poll.
type OnPayload func(conn gameserver.Connection, data []byte, channel gameserver.Channel)

// OnConnect / OnDisconnect notify the caller's connection manager.
type OnConnect func(conn gameserver.Connection)
type OnDisconnect func(connID uuid.UUID, reason string)

type inbound struct {
	conn    *Connection
	data    []byte
	channel gameserver.Channel
}

// Transport owns the WebTransport/HTTP3 listener and buffers received
// frames for Poll to drain, reconciling webtransport-go's callback-driven
// API with §4.12's "advance the transport once per tick" poll model.
type Transport struct {
	OnPayload    OnPayload
	OnConnect    OnConnect
	OnDisconnect OnDisconnect

	wt  webtransport.Server
	mu  sync.Mutex
	buf []inbound
}

// New constructs a Transport serving WebTransport sessions on addr with the
// given TLS config (see internal/tlsutil.GenerateConfig). The returned
// Transport does not start listening until ListenAndServe is called.
func New(addr string, tlsConfig *tls.Config) *Transport {
	t := &Transport{}
	mux := http.NewServeMux()
	mux.HandleFunc("/connect", t.handleUpgrade)
	t.wt = webtransport.Server{
		H3: http3.Server{
			Addr:      addr,
			TLSConfig: tlsConfig,
			Handler:   mux,
		},
	}
	return t
}

// ListenAndServe starts accepting QUIC/WebTransport connections and blocks
// until the underlying listener returns an error (including on Close).
func (t *Transport) ListenAndServe() error {
	return t.wt.ListenAndServe()
}

// Close shuts down the listener.
func (t *Transport) Close() error {
	return t.wt.Close()
}

func (t *Transport) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	sess, err := t.wt.Upgrade(w, r)
	if err != nil {
		log.Printf("[wt] upgrade failed: %v", err)
		return
	}
	t.handleSession(r.Context(), sess)
}

func (t *Transport) handleSession(ctx context.Context, sess *webtransport.Session) {
	ctx, cancel := context.WithCancel(ctx)
	conn := &Connection{id: uuid.New(), sess: sess, cancel: cancel}

	stream, err := sess.AcceptStream(ctx)
	if err != nil {
		log.Printf("[wt] accept stream: %v", err)
		cancel()
		return
	}
	conn.stream = stream

	if t.OnConnect != nil {
		t.OnConnect(conn)
	}

	go t.readStream(ctx, conn)
	go t.readDatagrams(ctx, conn)

	<-ctx.Done()
	if t.OnDisconnect != nil {
		t.OnDisconnect(conn.id, "session closed")
	}
}

// readStream reads length-prefixed ReliableOrdered frames, mirroring
// client.go's newline-delimited control stream but with a 4-byte length
// prefix instead of a newline terminator (this channel carries binary
// relay frames too, which may themselves contain newline bytes).
func (t *Transport) readStream(ctx context.Context, conn *Connection) {
	defer conn.cancel()
	var lenBuf [4]byte
	for {
		if _, err := io.ReadFull(conn.stream, lenBuf[:]); err != nil {
			if ctx.Err() == nil {
				log.Printf("[wt conn %s] stream read error: %v", conn.id, err)
			}
			return
		}
		n := binary.BigEndian.Uint32(lenBuf[:])
		if n > maxStreamFrame {
			log.Printf("[wt conn %s] oversized frame %d, dropping connection", conn.id, n)
			return
		}
		data := make([]byte, n)
		if _, err := io.ReadFull(conn.stream, data); err != nil {
			return
		}
		t.enqueue(inbound{conn: conn, data: data, channel: gameserver.ReliableOrdered})
	}
}

// readDatagrams relays incoming Unreliable-channel frames, the same shape
// as client.go's readDatagrams but without its voice-specific header
// rewriting/caching (there is no sender-spoofing concern here: packets
// already carry player/band ids validated by their own packet bodies).
func (t *Transport) readDatagrams(ctx context.Context, conn *Connection) {
	for {
		data, err := conn.sess.ReceiveDatagram(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("[wt conn %s] datagram read error: %v", conn.id, err)
			}
			return
		}
		t.enqueue(inbound{conn: conn, data: data, channel: gameserver.Unreliable})
	}
}

func (t *Transport) enqueue(in inbound) {
	t.mu.Lock()
	t.buf = append(t.buf, in)
	t.mu.Unlock()
}

// Poll drains whatever frames arrived since the last tick and dispatches
// them via OnPayload. Implements gameserver.Transport.
func (t *Transport) Poll() error {
	t.mu.Lock()
	pending := t.buf
	t.buf = nil
	t.mu.Unlock()

	for _, in := range pending {
		if t.OnPayload != nil {
			t.OnPayload(in.conn, in.data, in.channel)
		}
	}
	return nil
}

// Connection adapts a *webtransport.Session to gameserver.Connection.
// stream is narrowed to io.ReadWriter (rather than the concrete
// webtransport.Stream) so tests can substitute an in-memory pipe, the same
// trick client.go's Client.ctrl field uses to stay testable without a real
// WebTransport session.
type Connection struct {
	id     uuid.UUID
	sess   *webtransport.Session
	stream io.ReadWriter
	cancel context.CancelFunc

	writeMu sync.Mutex
}

// Id implements gameserver.Connection.
func (c *Connection) Id() uuid.UUID { return c.id }

// Send implements gameserver.Connection: Unreliable frames go out as a
// single datagram, ReliableOrdered frames are length-prefixed onto the
// control stream.
func (c *Connection) Send(data []byte, channel gameserver.Channel) error {
	if channel == gameserver.Unreliable {
		return c.sess.SendDatagram(data)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	if _, err := c.stream.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := c.stream.Write(data)
	return err
}

// Disconnect implements gameserver.Connection.
func (c *Connection) Disconnect(reason string) error {
	c.cancel()
	return c.sess.CloseWithError(0, reason)
}
