package session

// Phase is the authoritative lifecycle state of a session. Escalated is
// one-way; Ended is terminal except for a full reset back to Waiting.
type Phase string

const (
	PhaseWaiting   Phase = "WAITING"
	PhaseStarting  Phase = "STARTING"
	PhaseActive    Phase = "ACTIVE"
	PhaseEscalated Phase = "ESCALATED"
	PhaseEnded     Phase = "ENDED"
)

// InPlay reports whether gameplay requests (eliminations, abilities,
// interactions) are accepted in this phase.
func (p Phase) InPlay() bool {
	return p == PhaseActive || p == PhaseEscalated
}

// deadline is a bounded wait keyed to the session clock. It is tagged with
// the epoch it was armed in so that a deadline surviving a reset is a
// detectable no-op rather than a corruption of the new session.
type deadline struct {
	epoch uint64
	tick  uint64
	armed bool
}

func (d *deadline) arm(epoch, tick uint64) {
	d.epoch = epoch
	d.tick = tick
	d.armed = true
}

func (d *deadline) clear() {
	d.armed = false
}

func (d *deadline) due(epoch, nowTick uint64) bool {
	return d.armed && d.epoch == epoch && nowTick >= d.tick
}
