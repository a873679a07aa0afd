package session

import (
	"testing"

	"manhunt.gg/internal/protocol"
)

func TestHunterDisconnectEndsSessionAfterGrace(t *testing.T) {
	s := newTestSession(t)
	peers := startSession(t, s, 3)
	observer := infiltratorsOf(s, peers)[0]
	drainAll(t, peers)

	s.step(nil, nil, []int64{s.hunterID}, nil)
	if s.phase != PhaseActive {
		t.Fatalf("session ended immediately, want grace window")
	}

	stepN(s, int(s.cfg.DisconnectGraceTicks))
	if s.phase != PhaseEnded {
		t.Fatalf("phase = %s after grace, want ENDED", s.phase)
	}

	events, _ := drain(t, observer)
	ended := eventsOfKind(events, protocol.EvSessionEnded)
	if len(ended) != 1 {
		t.Fatalf("SESSION_ENDED count = %d, want exactly 1", len(ended))
	}
	if ended[0].Data["winning_role"] != string(RoleInfiltrator) {
		t.Fatalf("winner = %v, want INFILTRATOR", ended[0].Data["winning_role"])
	}
	if ended[0].Data["reason"] != "hunter_disconnect" {
		t.Fatalf("reason = %v", ended[0].Data["reason"])
	}
}

func TestHunterReattachWithinGraceCancelsEnd(t *testing.T) {
	s := newTestSession(t)
	peers := startSession(t, s, 3)
	hunter := hunterOf(s, peers)
	token := hunter.Welcome.ResumeToken

	s.step(nil, nil, []int64{hunter.ID}, nil)
	stepN(s, 2)

	r, _ := attachPeer(t, s, token)
	if r.Welcome.SessionID == "" {
		t.Fatalf("reattach refused")
	}
	if r.Welcome.ParticipantID != hunter.ID {
		t.Fatalf("reattach id = %d, want %d", r.Welcome.ParticipantID, hunter.ID)
	}

	stepN(s, int(s.cfg.DisconnectGraceTicks)+2)
	if s.phase != PhaseActive {
		t.Fatalf("phase = %s, want ACTIVE after reattach", s.phase)
	}
	rp := s.reg.Get(hunter.ID)
	if rp == nil || rp.Role != RoleHunter {
		t.Fatalf("reattached hunter role = %v", rp)
	}
}

func TestReattachRacingQueuedLeaveIsNotTornDown(t *testing.T) {
	s := newTestSession(t)
	peers := startSession(t, s, 3)
	hunter := hunterOf(s, peers)
	token := hunter.Welcome.ResumeToken

	// Transport drops and reconnects fast enough that the leave and the
	// reattach land in the same step. The leave must be applied first so
	// the reattach restores the ghost instead of being undone next tick.
	out := make(chan []byte, 256)
	resp := make(chan JoinResponse, 1)
	s.step(nil,
		[]AttachRequest{{ResumeToken: token, Out: out, Resp: resp}},
		[]int64{hunter.ID}, nil)
	r := <-resp
	if r.Welcome.ParticipantID != hunter.ID {
		t.Fatalf("reattach id = %d, want %d", r.Welcome.ParticipantID, hunter.ID)
	}
	if s.hunterGrace.armed {
		t.Fatalf("end timer armed despite live reconnect")
	}
	if rp := s.reg.Get(hunter.ID); rp == nil || rp.Role != RoleHunter {
		t.Fatalf("hunter state after reconnect = %v", rp)
	}

	stepN(s, int(s.cfg.DisconnectGraceTicks)+2)
	if s.phase != PhaseActive {
		t.Fatalf("phase = %s, want ACTIVE", s.phase)
	}
	if _, ok := s.clients[hunter.ID]; !ok {
		t.Fatalf("reattached client torn down by the stale leave")
	}
}

func TestInfiltratorReattachRestoresSpawnClaim(t *testing.T) {
	s := newTestSession(t)
	peers := startSession(t, s, 3)
	inf := infiltratorsOf(s, peers)[0]
	token := inf.Welcome.ResumeToken
	before, ok := s.spawns.ClaimOf(inf.ID)
	if !ok {
		t.Fatalf("infiltrator has no claim before disconnect")
	}

	s.step(nil, nil, []int64{inf.ID}, nil)
	if _, still := s.spawns.ClaimOf(inf.ID); still {
		t.Fatalf("claim not released on disconnect")
	}

	r, _ := attachPeer(t, s, token)
	if r.Welcome.ParticipantID != inf.ID {
		t.Fatalf("reattach id = %d, want %d", r.Welcome.ParticipantID, inf.ID)
	}
	after, ok := s.spawns.ClaimOf(inf.ID)
	if !ok {
		t.Fatalf("claim not restored on reattach")
	}
	if after != before {
		t.Fatalf("claim moved: %v -> %v", before, after)
	}
}

func TestExpiredTokenFallsBackToFreshJoin(t *testing.T) {
	s := newTestSession(t)
	peers := startSession(t, s, 3)
	inf := infiltratorsOf(s, peers)[0]
	token := inf.Welcome.ResumeToken

	s.step(nil, nil, []int64{inf.ID}, nil)
	stepN(s, int(s.cfg.DisconnectGraceTicks)+1)

	r, _ := attachPeer(t, s, token)
	if r.Welcome.SessionID != "" {
		t.Fatalf("expired token accepted")
	}
}

func TestRequestNamingRecentlyDepartedIsDroppedSilently(t *testing.T) {
	s := newTestSession(t)
	peers := startSession(t, s, 3)
	hunter := hunterOf(s, peers)
	target := infiltratorsOf(s, peers)[0]

	s.step(nil, nil, []int64{target.ID}, nil)
	drain(t, hunter)

	sendReq(t, s, hunter.ID, protocol.RequestMsg{ReqID: "r1", Kind: protocol.ReqEliminationReport, TargetID: target.ID})
	events, acks := drain(t, hunter)
	if n := len(eventsOfKind(events, protocol.EvEliminationConfirmed)); n != 0 {
		t.Fatalf("elimination confirmed for departed target")
	}
	for _, a := range acks {
		if a.AckFor == "r1" && !a.Accepted {
			t.Fatalf("report against recent leaver hard-rejected: %+v", a)
		}
	}
}

func TestResetReturnsToWaitingAndLeaksNothing(t *testing.T) {
	s := newTestSession(t)
	peers := startSession(t, s, 3)
	hunter := hunterOf(s, peers)
	oldID := s.id
	oldEpoch := s.epoch

	// Leave one peer disconnected so a ghost exists at reset time.
	inf := infiltratorsOf(s, peers)[0]
	s.step(nil, nil, []int64{inf.ID}, nil)
	drainAll(t, peers)

	sendReq(t, s, hunter.ID, protocol.RequestMsg{ReqID: "r_reset", Kind: protocol.ReqReset})

	if s.phase != PhaseWaiting {
		t.Fatalf("phase = %s, want WAITING", s.phase)
	}
	if s.id == oldID {
		t.Fatalf("session id not rotated on reset")
	}
	if s.epoch != oldEpoch+1 {
		t.Fatalf("epoch = %d, want %d", s.epoch, oldEpoch+1)
	}
	if s.reg.Len() != 0 {
		t.Fatalf("registry holds %d participants after reset", s.reg.Len())
	}
	if len(s.clients) != 0 {
		t.Fatalf("%d clients survive reset", len(s.clients))
	}
	if len(s.ghosts) != 0 || len(s.recent) != 0 || len(s.dedupe) != 0 {
		t.Fatalf("stale maps after reset: ghosts=%d recent=%d dedupe=%d", len(s.ghosts), len(s.recent), len(s.dedupe))
	}
	if len(s.spawns.claims) != 0 {
		t.Fatalf("%d spawn claims survive reset", len(s.spawns.claims))
	}
	if s.seq != 0 || s.hunterID != 0 || s.assignedInfiltrators != 0 || s.worldReady {
		t.Fatalf("scalar state survives reset")
	}

	// The WAITING notice reached the old peers before they were dropped.
	events, _ := drain(t, hunter)
	var sawWaiting bool
	for _, ev := range eventsOfKind(events, protocol.EvPhaseChanged) {
		if ev.Data["phase"] == "WAITING" {
			sawWaiting = true
		}
	}
	if !sawWaiting {
		t.Fatalf("reset did not broadcast WAITING to the old cohort")
	}

	// Armed deadlines from the old epoch never fire in the new one.
	stepN(s, int(s.cfg.DisconnectGraceTicks)+int(s.cfg.JoinGraceTicks)+2)
	if s.phase != PhaseWaiting {
		t.Fatalf("phase drifted to %s after reset with no input", s.phase)
	}
}

func TestGhostFromPreviousEpochCannotReattach(t *testing.T) {
	s := newTestSession(t)
	peers := startSession(t, s, 3)
	inf := infiltratorsOf(s, peers)[0]
	token := inf.Welcome.ResumeToken
	s.step(nil, nil, []int64{inf.ID}, nil)

	sendReq(t, s, s.hunterID, protocol.RequestMsg{ReqID: "r_reset", Kind: protocol.ReqReset})

	r, _ := attachPeer(t, s, token)
	if r.Welcome.SessionID != "" {
		t.Fatalf("pre-reset token resumed into the new session")
	}
}
