package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/gorilla/websocket"

	"manhunt.gg/internal/mirror"
	"manhunt.gg/internal/protocol"
)

// Probe peer: joins the session, mirrors the broadcast stream, and
// optionally presses START once connected. Useful for smoke-testing a
// running server.
func main() {
	var (
		url    = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name   = flag.String("name", "probe", "participant name")
		start  = flag.Bool("start", false, "send a START request after WELCOME")
		resume = flag.String("resume", "", "resume token from a previous run")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		Name:            *name,
	}
	if *resume != "" {
		hello.Auth = &protocol.HelloAuth{ResumeToken: *resume}
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	m := mirror.New()
	reqN := 0

	for {
		select {
		case <-stop:
			return
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			m.Seed(w)
			logger.Printf("WELCOME session=%s participant=%d phase=%s resume_token=%s",
				w.SessionID, w.ParticipantID, w.Phase, w.ResumeToken)
			if *start {
				reqN++
				req := protocol.RequestMsg{
					Type:            protocol.TypeRequest,
					ProtocolVersion: protocol.Version,
					ReqID:           fmt.Sprintf("R_probe_%d", reqN),
					Kind:            protocol.ReqStart,
				}
				_ = conn.WriteJSON(req)
			}

		case protocol.TypeAck:
			var ack protocol.AckMsg
			if err := json.Unmarshal(msg, &ack); err != nil {
				continue
			}
			logger.Printf("ACK %s accepted=%v code=%s %s", ack.AckFor, ack.Accepted, ack.Code, ack.Message)

		case protocol.TypeEvent:
			var ev protocol.EventMsg
			if err := json.Unmarshal(msg, &ev); err != nil {
				continue
			}
			m.Apply(ev)
			logger.Printf("EVENT seq=%d tick=%d %s phase=%s peers=%d extras=%d",
				ev.Seq, ev.Tick, ev.Kind, m.Phase, len(m.Peers), len(m.Extras))
			if ev.Kind == protocol.EvSessionEnded {
				logger.Printf("session ended: winner=%s reason=%s", m.Winner, m.Reason)
			}
		}
	}
}
