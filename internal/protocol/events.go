package protocol

// Event is a loosely-typed broadcast payload. The authoritative side fills
// it; mirrors read the fields they understand.
type Event map[string]any

// Broadcast event kinds.
const (
	EvParticipantConnected    = "PARTICIPANT_CONNECTED"
	EvParticipantDisconnected = "PARTICIPANT_DISCONNECTED"
	EvRoleAssigned            = "ROLE_ASSIGNED"
	EvPhaseChanged            = "PHASE_CHANGED"
	EvWorldReady              = "WORLD_READY"
	EvSpawnAssigned           = "SPAWN_ASSIGNED"
	EvExtraSpawned            = "EXTRA_SPAWNED"
	EvExtraDespawned          = "EXTRA_DESPAWNED"
	EvEliminationConfirmed    = "ELIMINATION_CONFIRMED"
	EvAbilityTriggered        = "ABILITY_TRIGGERED"
	EvInteractableUsed        = "INTERACTABLE_USED"
	EvSessionEnded            = "SESSION_ENDED"
)

// EVENT (server -> client, broadcast to every peer including the sender of
// the originating request). Seq is a per-session total order.
type EventMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Seq             uint64 `json:"seq"`
	Tick            uint64 `json:"tick"`
	Kind            string `json:"kind"`
	Data            Event  `json:"data,omitempty"`
}
