package supplier

import "errors"

// Sentinel kinds for supplier errors.
var (
	ErrNoThemes      = errors.New("no themes configured for category")
	ErrNoList        = errors.New("no list found in completion")
	ErrUnhandledKind = errors.New("kind not handled by supplier")
	ErrImageFetch    = errors.New("image fetch failed")
)
