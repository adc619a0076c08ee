package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrProtoVersion    = "E_PROTO_VERSION"

	// Run outcomes.
	ErrInvalidConfig = "E_INVALID_CONFIG"
	ErrInvalidInput  = "E_INVALID_INPUT"
	ErrEmptyPalette  = "E_EMPTY_PALETTE"
	ErrExport        = "E_EXPORT"
	ErrCancelled     = "E_CANCELLED"
	ErrInternal      = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrProtoVersion:    {},
	ErrInvalidConfig:   {},
	ErrInvalidInput:    {},
	ErrEmptyPalette:    {},
	ErrExport:          {},
	ErrCancelled:       {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
