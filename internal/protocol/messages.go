package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	Name            string     `json:"name"`
	Auth            *HelloAuth `json:"auth,omitempty"`
}

type HelloAuth struct {
	ResumeToken string `json:"resume_token,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string        `json:"type"`
	ProtocolVersion string        `json:"protocol_version"`
	SessionID       string        `json:"session_id"`
	ParticipantID   int64         `json:"participant_id"`
	ResumeToken     string        `json:"resume_token"`
	Params          SessionParams `json:"params"`
	Phase           string        `json:"phase"`
	Roster          []RosterEntry `json:"roster"`
}

type SessionParams struct {
	TickRateHz        int   `json:"tick_rate_hz"`
	SessionClockMs    int64 `json:"session_clock_ms"`
	JoinGraceMs       int64 `json:"join_grace_ms"`
	DisconnectGraceMs int64 `json:"disconnect_grace_ms"`
	DedupeWindowMs    int64 `json:"dedupe_window_ms"`
}

// RosterEntry is the late-join snapshot of one participant or extra.
type RosterEntry struct {
	ID    int64     `json:"id"`
	Name  string    `json:"name,omitempty"`
	Role  string    `json:"role"`
	Alive bool      `json:"alive"`
	Extra bool      `json:"extra,omitempty"`
	Spawn *SpawnRef `json:"spawn,omitempty"`
}

// SpawnRef identifies a claimed spawn slot. Area+slot pairs are unique
// among simultaneously alive occupants.
type SpawnRef struct {
	Area string  `json:"area"`
	Slot int     `json:"slot"`
	X    float64 `json:"x"`
	Z    float64 `json:"z"`
}

// Request kinds (client -> server, validated and applied authoritatively).
const (
	ReqStart             = "START"
	ReqReset             = "RESET"
	ReqEscalate          = "ESCALATE"
	ReqEliminationReport = "ELIMINATION_REPORT"
	ReqAbilityEffect     = "ABILITY_EFFECT"
	ReqInteract          = "INTERACT"
)

// REQUEST (client -> server)
type RequestMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id"`
	Kind            string `json:"kind"`

	// ELIMINATION_REPORT
	TargetID        int64 `json:"target_id,omitempty"`
	TargetWasHunter bool  `json:"target_was_hunter,omitempty"`

	// ABILITY_EFFECT / INTERACT
	Effect string `json:"effect,omitempty"`
	Object string `json:"object,omitempty"`
}

// ACK (server -> client). Rejections are informational; peers converge from
// broadcasts, not from acks.
type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AckFor          string `json:"ack_for"`
	Accepted        bool   `json:"accepted"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	Tick            uint64 `json:"tick,omitempty"`
}
