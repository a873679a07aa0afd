package session

import (
	"github.com/google/uuid"

	"manhunt.gg/internal/protocol"
)

// handleJoin registers a fresh participant. Joins are never refused: a late
// joiner during play becomes an infiltrator immediately, and a joiner after
// the session ended idles with no role until the next reset.
func (s *Session) handleJoin(req JoinRequest, nowTick uint64) {
	id := s.newParticipantID()
	p := &Participant{
		ID:          id,
		Name:        req.Name,
		Role:        RoleNone,
		Alive:       true,
		ResumeToken: uuid.NewString(),
		JoinedTick:  nowTick,
	}
	if err := s.reg.Add(p); err != nil {
		s.log.Printf("WARN join %q rejected: %v", req.Name, err)
		req.Resp <- JoinResponse{}
		return
	}
	s.clients[id] = &clientState{Out: req.Out}
	s.emit(protocol.EvParticipantConnected, protocol.Event{"id": id, "name": p.Name})

	switch s.phase {
	case PhaseWaiting, PhaseStarting:
		s.pendingAssign = append(s.pendingAssign, id)
	case PhaseActive, PhaseEscalated:
		// Late joiner. The hunter role is frozen for the session.
		s.assignRole(nowTick, id, RoleInfiltrator, func(area string) bool {
			return area != s.cfg.CommandArea
		})
		s.assignedInfiltrators++
	case PhaseEnded:
		// Idle until reset.
	}

	if s.prom != nil {
		s.prom.connectedPeers.Set(float64(len(s.clients)))
	}
	req.Resp <- JoinResponse{Welcome: s.buildWelcome(p)}
}

// handleAttach resumes a live or ghosted participant by resume token. It
// runs after leaves within the same step, so a reconnect racing its own
// queued leave lands on the ghost instead of being torn down a tick later.
func (s *Session) handleAttach(req AttachRequest, nowTick uint64) {
	// Live participant: transport reconnected before the leave was seen.
	for _, id := range s.reg.IDsInOrder() {
		p := s.reg.Get(id)
		if p == nil || p.ResumeToken != req.ResumeToken {
			continue
		}
		p.ResumeToken = uuid.NewString()
		s.clients[id] = &clientState{Out: req.Out}
		req.Resp <- JoinResponse{Welcome: s.buildWelcome(p)}
		return
	}

	g, ok := s.ghosts[req.ResumeToken]
	if !ok || g.epoch != s.epoch || nowTick >= g.expiresTick {
		// Unknown or expired token. Empty response tells the transport to
		// fall back to a fresh join.
		req.Resp <- JoinResponse{}
		return
	}
	delete(s.ghosts, req.ResumeToken)

	p := g.p
	p.ResumeToken = uuid.NewString()
	if err := s.reg.Add(&p); err != nil {
		s.log.Printf("WARN reattach %d: %v", p.ID, err)
		req.Resp <- JoinResponse{}
		return
	}
	delete(s.recent, p.ID)
	s.clients[p.ID] = &clientState{Out: req.Out}

	if g.hadClaim && !s.spawns.RestoreClaim(p.ID, g.claim) {
		allow := func(area string) bool { return area != s.cfg.CommandArea }
		if p.Role == RoleHunter {
			allow = func(area string) bool { return area == s.cfg.CommandArea }
		}
		pos, despawned := s.spawns.ClaimSpawnFor(p.ID, s.layout, s.rng, allow, s.log)
		for _, ex := range despawned {
			s.emit(protocol.EvExtraDespawned, protocol.Event{"extra_id": ex})
		}
		s.emit(protocol.EvSpawnAssigned, protocol.Event{
			"participant_id": p.ID, "area": pos.Area, "slot": pos.Slot, "x": pos.X, "z": pos.Z,
		})
	}

	if s.phase == PhaseStarting || s.phase == PhaseWaiting {
		s.pendingAssign = append(s.pendingAssign, p.ID)
	}
	if p.ID == s.hunterID && s.hunterGrace.armed {
		s.hunterGrace.clear()
		s.log.Printf("hunter %d reattached, end timer cancelled", p.ID)
	}
	s.emit(protocol.EvParticipantConnected, protocol.Event{"id": p.ID, "name": p.Name})
	if p.Role != RoleNone {
		s.emit(protocol.EvRoleAssigned, protocol.Event{"participant_id": p.ID, "role": string(p.Role)})
	}
	if s.prom != nil {
		s.prom.connectedPeers.Set(float64(len(s.clients)))
	}
	req.Resp <- JoinResponse{Welcome: s.buildWelcome(&p)}
}

func (s *Session) buildWelcome(p *Participant) protocol.WelcomeMsg {
	hz := s.cfg.TickRateHz
	w := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       s.id,
		ParticipantID:   p.ID,
		ResumeToken:     p.ResumeToken,
		Phase:           string(s.phase),
		Params: protocol.SessionParams{
			TickRateHz:        hz,
			SessionClockMs:    ticksToMs(s.cfg.ClockTicks, hz),
			JoinGraceMs:       ticksToMs(s.cfg.JoinGraceTicks, hz),
			DisconnectGraceMs: ticksToMs(s.cfg.DisconnectGraceTicks, hz),
			DedupeWindowMs:    ticksToMs(s.cfg.DedupeWindowTicks, hz),
		},
	}
	for _, id := range s.reg.IDsInOrder() {
		rp := s.reg.Get(id)
		if rp == nil {
			continue
		}
		entry := protocol.RosterEntry{
			ID:    rp.ID,
			Name:  rp.Name,
			Role:  string(rp.Role),
			Alive: rp.Alive,
		}
		if pos, ok := s.spawns.ClaimOf(rp.ID); ok {
			entry.Spawn = &protocol.SpawnRef{Area: pos.Area, Slot: pos.Slot, X: pos.X, Z: pos.Z}
		}
		w.Roster = append(w.Roster, entry)
	}
	for _, ex := range s.spawns.ExtraIDs() {
		pos, ok := s.spawns.ClaimOf(ex)
		if !ok {
			continue
		}
		w.Roster = append(w.Roster, protocol.RosterEntry{
			ID:    ex,
			Extra: true,
			Spawn: &protocol.SpawnRef{Area: pos.Area, Slot: pos.Slot, X: pos.X, Z: pos.Z},
		})
	}
	return w
}
