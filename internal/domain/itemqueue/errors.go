package itemqueue

import "errors"

// Sentinel kinds for item queue errors.
var (
	ErrUnknownCategory = errors.New("unknown item category")
	ErrUnknownKind     = errors.New("unknown item kind")
	ErrSupplyFailed    = errors.New("item supply failed")
)
