package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Command layer.
	ErrBadRequest   = "E_BAD_REQUEST"
	ErrNameTaken    = "E_NAME_TAKEN"
	ErrNotFound     = "E_NOT_FOUND"
	ErrUnauthorized = "E_UNAUTHORIZED"
	ErrRateLimit    = "E_RATE_LIMIT"
	ErrInternal     = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrBadRequest:      {},
	ErrNameTaken:       {},
	ErrNotFound:        {},
	ErrUnauthorized:    {},
	ErrRateLimit:       {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
