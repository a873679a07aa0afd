package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Request layer.
	ErrBadRequest         = "E_BAD_REQUEST"
	ErrUnknownParticipant = "E_UNKNOWN_PARTICIPANT"
	ErrInvalidTarget      = "E_INVALID_TARGET"
	ErrWrongPhase         = "E_WRONG_PHASE"
	ErrNoPermission       = "E_NO_PERMISSION"
	ErrDuplicate          = "E_DUPLICATE"
	ErrInternal           = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest:    {},
	ErrBadRequest:         {},
	ErrUnknownParticipant: {},
	ErrInvalidTarget:      {},
	ErrWrongPhase:         {},
	ErrNoPermission:       {},
	ErrDuplicate:          {},
	ErrInternal:           {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
