package session

import (
	"encoding/json"
	"io"
	"log"
	"math/rand"
	"testing"

	"manhunt.gg/internal/protocol"
)

func testConfig() SessionConfig {
	c := SessionConfig{
		TickRateHz:           20,
		ClockTicks:           200,
		JoinGraceTicks:       2,
		DisconnectGraceTicks: 5,
		DedupeWindowTicks:    10,
		ContentWaitTicks:     20,
		ContentPollTicks:     1,
		ExtraCount:           2,
		CommandArea:          "command",
	}
	return c
}

func testLayout() *StaticLayout {
	l := NewStaticLayout()
	l.AddArea("command",
		Position{Area: "command", Slot: 0, X: 4, Z: 4},
		Position{Area: "command", Slot: 1, X: 8, Z: 4},
	)
	l.AddArea("docks",
		Position{Area: "docks", Slot: 0, X: 40, Z: 12},
		Position{Area: "docks", Slot: 1, X: 44, Z: 18},
		Position{Area: "docks", Slot: 2, X: 52, Z: 10},
	)
	l.AddArea("warrens",
		Position{Area: "warrens", Slot: 0, X: 20, Z: 80},
		Position{Area: "warrens", Slot: 1, X: 28, Z: 88},
		Position{Area: "warrens", Slot: 2, X: 34, Z: 76},
		Position{Area: "warrens", Slot: 3, X: 42, Z: 92},
	)
	return l
}

func newTestSession(t *testing.T) *Session {
	t.Helper()
	s := New(testConfig(), testLayout(), log.New(io.Discard, "", 0))
	s.SetRoleSource(rand.NewSource(42))
	s.SetRandSource(rand.NewSource(7))
	return s
}

type peer struct {
	ID      int64
	Out     chan []byte
	Welcome protocol.WelcomeMsg
}

// joinPeer drives one step containing a single join.
func joinPeer(t *testing.T, s *Session, name string) *peer {
	t.Helper()
	out := make(chan []byte, 256)
	resp := make(chan JoinResponse, 1)
	s.step([]JoinRequest{{Name: name, Out: out, Resp: resp}}, nil, nil, nil)
	r := <-resp
	if r.Welcome.SessionID == "" {
		t.Fatalf("join %q refused", name)
	}
	return &peer{ID: r.Welcome.ParticipantID, Out: out, Welcome: r.Welcome}
}

func sendReq(t *testing.T, s *Session, from int64, req protocol.RequestMsg) {
	t.Helper()
	req.Type = protocol.TypeRequest
	req.ProtocolVersion = protocol.Version
	s.step(nil, nil, nil, []RequestEnvelope{{ParticipantID: from, Req: req}})
}

// attachPeer drives one step containing a single reattach by resume token.
func attachPeer(t *testing.T, s *Session, token string) (JoinResponse, chan []byte) {
	t.Helper()
	out := make(chan []byte, 256)
	resp := make(chan JoinResponse, 1)
	s.step(nil, []AttachRequest{{ResumeToken: token, Out: out, Resp: resp}}, nil, nil)
	return <-resp, out
}

func stepN(s *Session, n int) {
	for i := 0; i < n; i++ {
		s.step(nil, nil, nil, nil)
	}
}

// drain decodes everything queued on a peer's out channel.
func drain(t *testing.T, p *peer) (events []protocol.EventMsg, acks []protocol.AckMsg) {
	t.Helper()
	for {
		select {
		case b := <-p.Out:
			base, err := protocol.DecodeBase(b)
			if err != nil {
				t.Fatalf("decode frame: %v", err)
			}
			switch base.Type {
			case protocol.TypeEvent:
				var ev protocol.EventMsg
				if err := json.Unmarshal(b, &ev); err != nil {
					t.Fatalf("decode event: %v", err)
				}
				events = append(events, ev)
			case protocol.TypeAck:
				var ack protocol.AckMsg
				if err := json.Unmarshal(b, &ack); err != nil {
					t.Fatalf("decode ack: %v", err)
				}
				acks = append(acks, ack)
			default:
				t.Fatalf("unexpected frame type %q", base.Type)
			}
		default:
			return events, acks
		}
	}
}

func eventsOfKind(events []protocol.EventMsg, kind string) []protocol.EventMsg {
	var out []protocol.EventMsg
	for _, ev := range events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

// startSession joins n peers, presses START from the first, and steps until
// the session is ACTIVE.
func startSession(t *testing.T, s *Session, n int) []*peer {
	t.Helper()
	peers := make([]*peer, 0, n)
	for i := 0; i < n; i++ {
		peers = append(peers, joinPeer(t, s, "peer"))
	}
	sendReq(t, s, peers[0].ID, protocol.RequestMsg{ReqID: "r_start", Kind: protocol.ReqStart})
	stepN(s, int(s.cfg.JoinGraceTicks)+1)
	if s.phase != PhaseActive {
		t.Fatalf("phase = %s, want ACTIVE", s.phase)
	}
	return peers
}

func eventID(t *testing.T, ev protocol.EventMsg, field string) int64 {
	t.Helper()
	v, ok := ev.Data[field]
	if !ok {
		t.Fatalf("event %s missing %q", ev.Kind, field)
	}
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	default:
		t.Fatalf("event %s field %q has type %T", ev.Kind, field, v)
		return 0
	}
}
