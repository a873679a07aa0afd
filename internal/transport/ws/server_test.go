package ws

import (
	"context"
	"io"
	"log"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"manhunt.gg/internal/protocol"
	"manhunt.gg/internal/session"
)

func newTestSession() *session.Session {
	layout := session.NewStaticLayout()
	layout.AddArea("command", session.Position{Area: "command", Slot: 0, X: 4, Z: 4})
	layout.AddArea("docks", session.Position{Area: "docks", Slot: 0, X: 40, Z: 12})
	// Slow ticks keep the WELCOME queued in the session loop long enough
	// for the test to kill the connection first.
	cfg := session.SessionConfig{TickRateHz: 5, CommandArea: "command"}
	return session.New(cfg, layout, log.New(io.Discard, "", 0))
}

// A connection that dies between HELLO and WELCOME must not leave its
// participant registered with a dead out channel.
func TestConnDeathDuringHandshakeLeavesNoZombie(t *testing.T) {
	sess := newTestSession()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = sess.Run(ctx) }()

	srv := NewServer(sess, log.New(io.Discard, "", 0))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		Name:            "doomed",
	}
	if err := conn.WriteJSON(hello); err != nil {
		t.Fatalf("write hello: %v", err)
	}

	// Give the server time to read the HELLO and park on the join
	// response, then reset the connection so the WELCOME write fails.
	time.Sleep(50 * time.Millisecond)
	if tcp, ok := conn.UnderlyingConn().(*net.TCPConn); ok {
		_ = tcp.SetLinger(0)
	}
	_ = conn.UnderlyingConn().Close()

	waitFor(t, "join applied", func() bool {
		return sess.Metrics().Seq > 0
	})
	waitFor(t, "participant torn down", func() bool {
		m := sess.Metrics()
		return m.Participants == 0 && m.Peers == 0
	})
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
