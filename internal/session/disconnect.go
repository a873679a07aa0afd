package session

import "manhunt.gg/internal/protocol"

// handleLeave removes a departed participant while keeping a ghost record so
// a reconnect within the grace window restores them. The hunter leaving
// during play arms the session end timer rather than ending immediately.
func (s *Session) handleLeave(id int64, nowTick uint64) {
	delete(s.clients, id)

	p := s.reg.Get(id)
	if p == nil {
		s.log.Printf("WARN leave for unknown participant %d", id)
		return
	}
	if err := s.reg.Remove(id); err != nil {
		s.log.Printf("WARN leave %d: %v", id, err)
		return
	}
	for i, pid := range s.pendingAssign {
		if pid == id {
			s.pendingAssign = append(s.pendingAssign[:i], s.pendingAssign[i+1:]...)
			break
		}
	}

	g := &ghost{
		p:           *p,
		epoch:       s.epoch,
		expiresTick: nowTick + s.cfg.DisconnectGraceTicks,
	}
	if pos, ok := s.spawns.ClaimOf(id); ok {
		g.claim = pos
		g.hadClaim = true
	}
	s.ghosts[p.ResumeToken] = g
	s.spawns.ReleaseClaim(id)
	s.recent[id] = nowTick + s.cfg.DisconnectGraceTicks

	s.emit(protocol.EvParticipantDisconnected, protocol.Event{"id": id})
	if s.prom != nil {
		s.prom.connectedPeers.Set(float64(len(s.clients)))
	}

	if s.phase.InPlay() && id == s.hunterID {
		s.hunterGrace.arm(s.epoch, nowTick+s.cfg.DisconnectGraceTicks)
		s.log.Printf("hunter %d disconnected, session ends in %d ticks unless they return", id, s.cfg.DisconnectGraceTicks)
	}
}
