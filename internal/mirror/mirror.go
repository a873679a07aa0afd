// Package mirror maintains a client-side replica of the session from the
// broadcast event stream. The probe bot and integration tests use it to
// check convergence against server welcomes.
package mirror

import (
	"encoding/json"

	"manhunt.gg/internal/protocol"
)

type Peer struct {
	ID    int64
	Name  string
	Role  string
	Alive bool
	Spawn *protocol.SpawnRef
}

type Mirror struct {
	SessionID string
	Phase     string

	Peers  map[int64]*Peer
	Extras map[int64]protocol.SpawnRef

	Winner string
	Reason string

	lastSeq uint64
}

func New() *Mirror {
	return &Mirror{
		Phase:  "WAITING",
		Peers:  map[int64]*Peer{},
		Extras: map[int64]protocol.SpawnRef{},
	}
}

// Seed loads the WELCOME roster snapshot. Events older than the snapshot
// are expected to be absent from the stream; newer ones reapply cleanly.
func (m *Mirror) Seed(w protocol.WelcomeMsg) {
	m.SessionID = w.SessionID
	m.Phase = w.Phase
	m.Peers = map[int64]*Peer{}
	m.Extras = map[int64]protocol.SpawnRef{}
	for _, e := range w.Roster {
		if e.Extra {
			if e.Spawn != nil {
				m.Extras[e.ID] = *e.Spawn
			}
			continue
		}
		m.Peers[e.ID] = &Peer{ID: e.ID, Name: e.Name, Role: e.Role, Alive: e.Alive, Spawn: e.Spawn}
	}
}

// Apply folds one broadcast event into the replica. Replayed or reordered
// frames at or below the high-water seq are ignored.
func (m *Mirror) Apply(ev protocol.EventMsg) {
	if ev.Seq <= m.lastSeq {
		return
	}
	m.lastSeq = ev.Seq

	switch ev.Kind {
	case protocol.EvParticipantConnected:
		id := asID(ev.Data["id"])
		name, _ := ev.Data["name"].(string)
		if p, ok := m.Peers[id]; ok {
			p.Name = name
		} else {
			m.Peers[id] = &Peer{ID: id, Name: name, Role: "NONE", Alive: true}
		}
	case protocol.EvParticipantDisconnected:
		delete(m.Peers, asID(ev.Data["id"]))
	case protocol.EvRoleAssigned:
		id := asID(ev.Data["participant_id"])
		role, _ := ev.Data["role"].(string)
		if p, ok := m.Peers[id]; ok {
			p.Role = role
		} else {
			m.Peers[id] = &Peer{ID: id, Role: role, Alive: true}
		}
	case protocol.EvPhaseChanged:
		if phase, ok := ev.Data["phase"].(string); ok {
			m.Phase = phase
		}
	case protocol.EvSpawnAssigned:
		id := asID(ev.Data["participant_id"])
		ref := spawnRef(ev.Data)
		if p, ok := m.Peers[id]; ok {
			p.Spawn = &ref
		}
	case protocol.EvExtraSpawned:
		m.Extras[asID(ev.Data["extra_id"])] = spawnRef(ev.Data)
	case protocol.EvExtraDespawned:
		delete(m.Extras, asID(ev.Data["extra_id"]))
	case protocol.EvEliminationConfirmed:
		id := asID(ev.Data["target_id"])
		if p, ok := m.Peers[id]; ok {
			p.Alive = false
			p.Spawn = nil
		}
	case protocol.EvSessionEnded:
		m.Phase = "ENDED"
		m.Winner, _ = ev.Data["winning_role"].(string)
		m.Reason, _ = ev.Data["reason"].(string)
	}
}

func (m *Mirror) LastSeq() uint64 { return m.lastSeq }

func (m *Mirror) AliveWithRole(role string) int {
	n := 0
	for _, p := range m.Peers {
		if p.Role == role && p.Alive {
			n++
		}
	}
	return n
}

// asID tolerates the numeric encodings a JSON decode can produce for ids.
func asID(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case json.Number:
		i, _ := n.Int64()
		return i
	default:
		return 0
	}
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()
		return f
	default:
		return 0
	}
}

func spawnRef(data protocol.Event) protocol.SpawnRef {
	area, _ := data["area"].(string)
	return protocol.SpawnRef{
		Area: area,
		Slot: int(asID(data["slot"])),
		X:    asFloat(data["x"]),
		Z:    asFloat(data["z"]),
	}
}
