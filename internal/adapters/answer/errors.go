package answer

import "errors"

// Sentinel kinds for answer errors.
var (
	ErrNoCompleter = errors.New("no completer for provider")
	ErrRedisPing   = errors.New("redis ping failed")
)
