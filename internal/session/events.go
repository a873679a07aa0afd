package session

import (
	"encoding/json"

	"manhunt.gg/internal/protocol"
)

// emit queues a broadcast event. Seq is assigned at emit time so the
// broadcast order equals the apply order within and across ticks.
func (s *Session) emit(kind string, data protocol.Event) {
	s.seq++
	s.outbox = append(s.outbox, protocol.EventMsg{
		Type:            protocol.TypeEvent,
		ProtocolVersion: protocol.Version,
		Seq:             s.seq,
		Kind:            kind,
		Data:            data,
	})
	if s.prom != nil {
		s.prom.broadcastsTotal.Inc()
	}
}

// flush marshals each queued event once and fans it out to every connected
// client. Slow clients lose their oldest queued frame rather than stalling
// the tick.
func (s *Session) flush(nowTick uint64) {
	if len(s.outbox) == 0 {
		return
	}
	for i := range s.outbox {
		ev := &s.outbox[i]
		ev.Tick = nowTick
		b, err := json.Marshal(ev)
		if err != nil {
			s.log.Printf("ERROR marshal event %s: %v", ev.Kind, err)
			continue
		}
		for _, c := range s.clients {
			sendLatest(c.Out, b)
		}
		if s.journal != nil {
			if err := s.journal.Write(ev); err != nil {
				s.log.Printf("WARN journal write: %v", err)
			}
		}
	}
	s.outbox = s.outbox[:0]
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}

func (s *Session) ackOK(env RequestEnvelope, nowTick uint64, code string) {
	s.sendAck(env, protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          env.Req.ReqID,
		Accepted:        true,
		Code:            code,
		Tick:            nowTick,
	})
}

func (s *Session) ackErr(env RequestEnvelope, nowTick uint64, code, msg string) {
	s.sendAck(env, protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          env.Req.ReqID,
		Accepted:        false,
		Code:            code,
		Message:         msg,
		Tick:            nowTick,
	})
}

func (s *Session) sendAck(env RequestEnvelope, ack protocol.AckMsg) {
	c, ok := s.clients[env.ParticipantID]
	if !ok {
		return
	}
	b, err := json.Marshal(ack)
	if err != nil {
		s.log.Printf("ERROR marshal ack: %v", err)
		return
	}
	sendLatest(c.Out, b)
}
