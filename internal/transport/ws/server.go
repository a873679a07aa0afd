package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"manhunt.gg/internal/protocol"
	"manhunt.gg/internal/session"
)

const outQueueSize = 32

type Server struct {
	sess *session.Session
	log  *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(sess *session.Session, logger *log.Logger) *Server {
	s := &Server{
		sess: sess,
		log:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	return s
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		participantID, out := s.handshake(conn)
		if participantID == 0 {
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				continue
			}
			if base.Type != protocol.TypeRequest {
				continue
			}
			var req protocol.RequestMsg
			if err := json.Unmarshal(msg, &req); err != nil {
				continue
			}
			if req.ProtocolVersion != protocol.Version {
				continue
			}
			s.sess.Inbox() <- session.RequestEnvelope{ParticipantID: participantID, Req: req}
		}

		// Cleanup.
		s.sess.Leave() <- participantID
	}
}

func (s *Server) handshake(conn *websocket.Conn) (participantID int64, out chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return 0, nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return 0, nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return 0, nil
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return 0, nil
	}
	if hello.Name == "" {
		hello.Name = "peer"
	}

	out = make(chan []byte, outQueueSize)

	// Optional: resume a recent participant (reconnect).
	resumeToken := ""
	if hello.Auth != nil {
		resumeToken = strings.TrimSpace(hello.Auth.ResumeToken)
	}

	var resp session.JoinResponse
	if resumeToken != "" {
		respCh := make(chan session.JoinResponse, 1)
		s.sess.Attach() <- session.AttachRequest{
			ResumeToken: resumeToken,
			Out:         out,
			Resp:        respCh,
		}
		resp = <-respCh
	}
	if resp.Welcome.SessionID == "" {
		// Fresh join.
		respCh := make(chan session.JoinResponse, 1)
		s.sess.Join() <- session.JoinRequest{
			Name: hello.Name,
			Out:  out,
			Resp: respCh,
		}
		resp = <-respCh
	}
	if resp.Welcome.SessionID == "" {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "join failed"), time.Now().Add(time.Second))
		return 0, nil
	}

	if err := writeJSON(conn, resp.Welcome); err != nil {
		// The join or attach already applied. Tear it down here, or the
		// participant lingers with a dead out channel and stays eligible
		// for the role draw.
		s.sess.Leave() <- resp.Welcome.ParticipantID
		return 0, nil
	}

	return resp.Welcome.ParticipantID, out
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
