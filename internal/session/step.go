package session

import (
	"time"

	"github.com/google/uuid"

	"manhunt.gg/internal/protocol"
)

// step advances the session by one tick. Ordering is fixed: leaves,
// attaches, joins, expiry sweeps, requests in arrival order, then phase
// logic and broadcast.
func (s *Session) step(joins []JoinRequest, attaches []AttachRequest, leaves []int64, reqs []RequestEnvelope) {
	stepStart := time.Now()
	nowTick := s.tick.Load()

	for _, id := range leaves {
		s.handleLeave(id, nowTick)
	}
	for _, req := range attaches {
		s.handleAttach(req, nowTick)
	}
	for _, req := range joins {
		s.handleJoin(req, nowTick)
	}

	s.expireDedupe(nowTick)
	s.expireGhosts(nowTick)
	s.expireRecent(nowTick)

	for _, env := range reqs {
		s.handleRequest(env, nowTick)
	}

	s.tickPhase(nowTick)
	s.flush(nowTick)

	s.tick.Add(1)
	s.storeMetrics(nowTick, time.Since(stepStart))
}

func (s *Session) expireDedupe(nowTick uint64) {
	for k, e := range s.dedupe {
		if nowTick >= e.ExpiresTick {
			delete(s.dedupe, k)
		}
	}
}

func (s *Session) expireGhosts(nowTick uint64) {
	for token, g := range s.ghosts {
		if g.epoch != s.epoch || nowTick >= g.expiresTick {
			delete(s.ghosts, token)
		}
	}
}

// recent maps departed ids to the tick their suppression window ends.
// Requests naming them are dropped without an error broadcast.
func (s *Session) expireRecent(nowTick uint64) {
	for id, until := range s.recent {
		if nowTick >= until {
			delete(s.recent, id)
		}
	}
}

func (s *Session) tickPhase(nowTick uint64) {
	switch s.phase {
	case PhaseStarting:
		s.tickStarting(nowTick)
	case PhaseActive, PhaseEscalated:
		s.tickInPlay(nowTick)
	}
}

func (s *Session) tickStarting(nowTick uint64) {
	if !s.worldReady && nowTick >= s.nextContentPoll {
		s.nextContentPoll = nowTick + s.cfg.ContentPollTicks
		if s.layout != nil && s.layout.Ready() {
			s.worldReady = true
			s.emit(protocol.EvWorldReady, protocol.Event{})
			s.joinGrace.arm(s.epoch, nowTick+s.cfg.JoinGraceTicks)
			s.log.Printf("world ready after %d ticks in STARTING", nowTick-s.startingSince)
		}
	}
	if !s.worldReady {
		if s.contentDeadline.due(s.epoch, nowTick) {
			s.stalledTicks++
			if s.stalledTicks == 1 || s.stalledTicks%100 == 0 {
				s.log.Printf("WARN session %s stalled in STARTING: content not ready after %d ticks", s.id, nowTick-s.startingSince)
			}
		}
		return
	}
	if s.rosterSatisfied() || s.joinGrace.due(s.epoch, nowTick) {
		s.beginActive(nowTick)
	}
}

func (s *Session) rosterSatisfied() bool {
	if s.roster == nil {
		return false
	}
	want := s.roster.ExpectedParticipantCount()
	return want > 0 && s.reg.Len() >= want
}

func (s *Session) tickInPlay(nowTick uint64) {
	if s.hunterGrace.due(s.epoch, nowTick) {
		s.hunterGrace.clear()
		s.end(nowTick, RoleInfiltrator, "hunter_disconnect")
		return
	}
	if s.clockRemaining > 0 {
		s.clockRemaining--
		if s.clockRemaining == 0 {
			s.end(nowTick, RoleInfiltrator, "clock_expiry")
			return
		}
	}
	// Guard on assignedInfiltrators so a solo session does not end the
	// instant it starts with zero infiltrators ever assigned.
	if s.assignedInfiltrators > 0 && s.reg.CountAliveWithRole(RoleInfiltrator) == 0 {
		s.end(nowTick, RoleHunter, "all_infiltrators_down")
	}
}

// beginActive performs the one-shot transition out of STARTING: role draw,
// extra placement, spawn claims, then the phase flip. Participants who left
// during STARTING were already pruned from pendingAssign by handleLeave.
func (s *Session) beginActive(nowTick uint64) {
	ids := make([]int64, 0, len(s.pendingAssign))
	for _, id := range s.pendingAssign {
		if s.reg.Get(id) != nil {
			ids = append(ids, id)
		}
	}
	s.pendingAssign = s.pendingAssign[:0]

	draw, ok := AssignRoles(ids, s.roleSrc, s.log)
	if !ok {
		// Everyone left during STARTING. Wait another grace window.
		s.joinGrace.arm(s.epoch, nowTick+s.cfg.JoinGraceTicks)
		return
	}

	for i := 0; i < s.cfg.ExtraCount; i++ {
		id := s.newExtraID()
		pos, placed := s.spawns.PlaceExtra(id, s.layout, s.rng)
		if !placed {
			break
		}
		s.emit(protocol.EvExtraSpawned, protocol.Event{
			"extra_id": id, "area": pos.Area, "slot": pos.Slot, "x": pos.X, "z": pos.Z,
		})
	}

	s.hunterID = draw.HunterID
	s.assignRole(nowTick, draw.HunterID, RoleHunter, func(area string) bool {
		return area == s.cfg.CommandArea
	})
	for _, id := range draw.InfiltratorIDs {
		s.assignRole(nowTick, id, RoleInfiltrator, func(area string) bool {
			return area != s.cfg.CommandArea
		})
	}
	s.assignedInfiltrators = len(draw.InfiltratorIDs)

	s.clockRemaining = s.cfg.ClockTicks
	s.setPhase(PhaseActive)
	s.joinGrace.clear()
	s.log.Printf("session %s active: hunter=%d infiltrators=%d extras=%d",
		s.id, s.hunterID, s.assignedInfiltrators, len(s.spawns.ExtraIDs()))

	if s.match != nil {
		s.match.SessionStarted(s.id, nowTick, s.hunterID, s.reg.Len())
		for _, id := range ids {
			if p := s.reg.Get(id); p != nil {
				s.match.ParticipantSeen(s.id, p.ID, p.Name, string(p.Role))
			}
		}
	}
}

func (s *Session) assignRole(nowTick uint64, id int64, role Role, allow func(string) bool) {
	if err := s.reg.SetRole(id, role); err != nil {
		s.log.Printf("WARN assign role %s to %d: %v", role, id, err)
		return
	}
	s.emit(protocol.EvRoleAssigned, protocol.Event{"participant_id": id, "role": string(role)})
	pos, despawned := s.spawns.ClaimSpawnFor(id, s.layout, s.rng, allow, s.log)
	for _, ex := range despawned {
		s.emit(protocol.EvExtraDespawned, protocol.Event{"extra_id": ex})
	}
	s.emit(protocol.EvSpawnAssigned, protocol.Event{
		"participant_id": id, "area": pos.Area, "slot": pos.Slot, "x": pos.X, "z": pos.Z,
	})
}

func (s *Session) setPhase(p Phase) {
	if s.phase == p {
		return
	}
	s.phase = p
	s.emit(protocol.EvPhaseChanged, protocol.Event{"phase": string(p)})
}

// end is idempotent per session: once ENDED, the in-play tickers that call
// it are no longer run.
func (s *Session) end(nowTick uint64, winner Role, reason string) {
	s.setPhase(PhaseEnded)
	s.hunterGrace.clear()
	s.emit(protocol.EvSessionEnded, protocol.Event{
		"winning_role": string(winner), "reason": reason,
	})
	s.log.Printf("session %s ended: winner=%s reason=%s tick=%d", s.id, winner, reason, nowTick)
	if s.match != nil {
		s.match.SessionEnded(s.id, nowTick, string(winner), reason)
	}
}

// resetSession tears the session back to WAITING. The phase notice is
// flushed to the current clients before they are dropped; everything else
// starts from zero under a new epoch.
func (s *Session) resetSession(nowTick uint64) {
	s.phase = PhaseWaiting
	s.emit(protocol.EvPhaseChanged, protocol.Event{"phase": string(PhaseWaiting)})
	s.flush(nowTick)

	s.epoch++
	s.reg.Reset()
	s.pendingAssign = s.pendingAssign[:0]
	s.spawns.Reset()
	s.dedupe = map[dedupeKey]dedupeEntry{}
	s.ghosts = map[string]*ghost{}
	s.recent = map[int64]uint64{}
	s.clients = map[int64]*clientState{}
	s.outbox = s.outbox[:0]
	s.seq = 0

	s.clockRemaining = 0
	s.hunterID = 0
	s.worldReady = false
	s.assignedInfiltrators = 0
	s.stalledTicks = 0
	s.contentDeadline.clear()
	s.joinGrace.clear()
	s.hunterGrace.clear()

	prev := s.id
	s.id = uuid.NewString()
	s.log.Printf("session reset: %s -> %s epoch=%d", prev, s.id, s.epoch)
}
