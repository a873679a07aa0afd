package session

import (
	"fmt"

	"manhunt.gg/internal/protocol"
)

// hunterEffects is the ability set gated to the hunter role. Infiltrator
// abilities are unrestricted.
var hunterEffects = map[string]bool{
	"sweep":    true,
	"lockdown": true,
}

// handleRequest validates and applies one participant request at the tick
// boundary. Every outcome is acked to the sender; gameplay effects are
// additionally broadcast.
func (s *Session) handleRequest(env RequestEnvelope, nowTick uint64) {
	sender := s.reg.Get(env.ParticipantID)
	if sender == nil {
		if _, recent := s.recent[env.ParticipantID]; recent {
			// Request raced a disconnect. Drop silently.
			return
		}
		s.ackErr(env, nowTick, protocol.ErrUnknownParticipant, "sender not registered")
		return
	}

	var code string
	switch env.Req.Kind {
	case protocol.ReqStart:
		code = s.applyStart(env, nowTick)
	case protocol.ReqReset:
		code = s.applyReset(env, nowTick)
	case protocol.ReqEscalate:
		code = s.applyEscalate(env, nowTick)
	case protocol.ReqEliminationReport:
		code = s.applyElimination(env, sender, nowTick)
	case protocol.ReqAbilityEffect:
		code = s.applyAbility(env, sender, nowTick)
	case protocol.ReqInteract:
		code = s.applyInteract(env, sender, nowTick)
	default:
		code = protocol.ErrBadRequest
		s.ackErr(env, nowTick, code, fmt.Sprintf("unknown request kind %q", env.Req.Kind))
		s.countRequest(env.Req.Kind, code)
		return
	}
	s.countRequest(env.Req.Kind, code)
}

func (s *Session) countRequest(kind, code string) {
	if s.prom == nil {
		return
	}
	status := "accepted"
	switch code {
	case "":
	case protocol.ErrDuplicate:
		status = "duplicate"
	default:
		status = "rejected"
	}
	s.prom.requestsTotal.WithLabelValues(kind, status).Inc()
}

func (s *Session) applyStart(env RequestEnvelope, nowTick uint64) string {
	switch s.phase {
	case PhaseWaiting:
		s.setPhase(PhaseStarting)
		s.startingSince = nowTick
		s.worldReady = false
		s.nextContentPoll = nowTick
		s.contentDeadline.arm(s.epoch, nowTick+s.cfg.ContentWaitTicks)
		s.ackOK(env, nowTick, "")
		return ""
	case PhaseStarting:
		// Concurrent start presses are expected; the second is harmless.
		s.ackOK(env, nowTick, protocol.ErrDuplicate)
		return protocol.ErrDuplicate
	default:
		s.ackErr(env, nowTick, protocol.ErrWrongPhase, fmt.Sprintf("cannot start from %s", s.phase))
		return protocol.ErrWrongPhase
	}
}

func (s *Session) applyReset(env RequestEnvelope, nowTick uint64) string {
	s.ackOK(env, nowTick, "")
	s.resetSession(nowTick)
	return ""
}

func (s *Session) applyEscalate(env RequestEnvelope, nowTick uint64) string {
	switch s.phase {
	case PhaseActive:
		s.setPhase(PhaseEscalated)
		s.ackOK(env, nowTick, "")
		return ""
	case PhaseEscalated:
		s.ackOK(env, nowTick, protocol.ErrDuplicate)
		return protocol.ErrDuplicate
	default:
		s.ackErr(env, nowTick, protocol.ErrWrongPhase, fmt.Sprintf("cannot escalate from %s", s.phase))
		return protocol.ErrWrongPhase
	}
}

func (s *Session) applyElimination(env RequestEnvelope, sender *Participant, nowTick uint64) string {
	if !s.phase.InPlay() {
		s.ackErr(env, nowTick, protocol.ErrWrongPhase, "no eliminations outside play")
		return protocol.ErrWrongPhase
	}
	targetID := env.Req.TargetID
	target := s.reg.Get(targetID)
	if target == nil {
		if _, recent := s.recent[targetID]; recent {
			// Target disconnected moments ago. Accept-and-drop keeps the
			// reporter from retrying into an error loop.
			s.ackOK(env, nowTick, protocol.ErrDuplicate)
			return protocol.ErrDuplicate
		}
		s.ackErr(env, nowTick, protocol.ErrInvalidTarget, fmt.Sprintf("target %d not in session", targetID))
		return protocol.ErrInvalidTarget
	}

	key := dedupeKey{Kind: "ELIMINATION", Scope: fmt.Sprintf("target:%d", targetID)}
	if s.isDuplicate(key, nowTick) {
		s.ackOK(env, nowTick, protocol.ErrDuplicate)
		if s.prom != nil {
			s.prom.dedupeDrops.Inc()
		}
		return protocol.ErrDuplicate
	}
	if !target.Alive {
		s.ackErr(env, nowTick, protocol.ErrInvalidTarget, fmt.Sprintf("target %d already down", targetID))
		return protocol.ErrInvalidTarget
	}
	s.markSeen(key, nowTick)

	wasHunter := target.Role == RoleHunter
	if err := s.reg.SetAlive(targetID, false); err != nil {
		s.log.Printf("WARN eliminate %d: %v", targetID, err)
		s.ackErr(env, nowTick, protocol.ErrInternal, "state update failed")
		return protocol.ErrInternal
	}
	s.spawns.ReleaseClaim(targetID)
	s.emit(protocol.EvEliminationConfirmed, protocol.Event{
		"target_id":         targetID,
		"target_was_hunter": wasHunter,
		"reporter_id":       sender.ID,
	})
	if s.match != nil {
		s.match.EliminationRecorded(s.id, nowTick, sender.ID, targetID, wasHunter)
	}
	s.ackOK(env, nowTick, "")

	if wasHunter {
		s.end(nowTick, RoleInfiltrator, "hunter_eliminated")
	}
	return ""
}

func (s *Session) applyAbility(env RequestEnvelope, sender *Participant, nowTick uint64) string {
	if !s.phase.InPlay() {
		s.ackErr(env, nowTick, protocol.ErrWrongPhase, "no abilities outside play")
		return protocol.ErrWrongPhase
	}
	if !sender.Alive {
		s.ackErr(env, nowTick, protocol.ErrNoPermission, "eliminated participants cannot act")
		return protocol.ErrNoPermission
	}
	if env.Req.Effect == "" {
		s.ackErr(env, nowTick, protocol.ErrBadRequest, "missing effect")
		return protocol.ErrBadRequest
	}
	if hunterEffects[env.Req.Effect] && sender.Role != RoleHunter {
		s.ackErr(env, nowTick, protocol.ErrNoPermission, fmt.Sprintf("effect %q is hunter-only", env.Req.Effect))
		return protocol.ErrNoPermission
	}

	key := dedupeKey{Kind: "ABILITY", Scope: fmt.Sprintf("by:%d effect:%s object:%s", sender.ID, env.Req.Effect, env.Req.Object)}
	if s.isDuplicate(key, nowTick) {
		s.ackOK(env, nowTick, protocol.ErrDuplicate)
		if s.prom != nil {
			s.prom.dedupeDrops.Inc()
		}
		return protocol.ErrDuplicate
	}
	s.markSeen(key, nowTick)

	s.emit(protocol.EvAbilityTriggered, protocol.Event{
		"by": sender.ID, "effect": env.Req.Effect, "object": env.Req.Object,
	})
	s.ackOK(env, nowTick, "")
	return ""
}

func (s *Session) applyInteract(env RequestEnvelope, sender *Participant, nowTick uint64) string {
	if !s.phase.InPlay() {
		s.ackErr(env, nowTick, protocol.ErrWrongPhase, "no interactions outside play")
		return protocol.ErrWrongPhase
	}
	if !sender.Alive {
		s.ackErr(env, nowTick, protocol.ErrNoPermission, "eliminated participants cannot act")
		return protocol.ErrNoPermission
	}
	if env.Req.Object == "" {
		s.ackErr(env, nowTick, protocol.ErrBadRequest, "missing object")
		return protocol.ErrBadRequest
	}

	key := dedupeKey{Kind: "INTERACT", Scope: fmt.Sprintf("by:%d object:%s", sender.ID, env.Req.Object)}
	if s.isDuplicate(key, nowTick) {
		s.ackOK(env, nowTick, protocol.ErrDuplicate)
		if s.prom != nil {
			s.prom.dedupeDrops.Inc()
		}
		return protocol.ErrDuplicate
	}
	s.markSeen(key, nowTick)

	s.emit(protocol.EvInteractableUsed, protocol.Event{
		"by": sender.ID, "object": env.Req.Object,
	})
	s.ackOK(env, nowTick, "")
	return ""
}

func (s *Session) isDuplicate(key dedupeKey, nowTick uint64) bool {
	e, ok := s.dedupe[key]
	return ok && nowTick < e.ExpiresTick
}

func (s *Session) markSeen(key dedupeKey, nowTick uint64) {
	s.dedupe[key] = dedupeEntry{ExpiresTick: nowTick + s.cfg.DedupeWindowTicks}
}
