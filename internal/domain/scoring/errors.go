package scoring

import "errors"

// Sentinel kinds for scoring errors. Tasks return ErrNoAnswer or ErrNoScore to
// report an absent result without it counting as a failure.
var (
	ErrNoAnswer = errors.New("no reference answer")
	ErrNoScore  = errors.New("no score")
	ErrPanic    = errors.New("task panicked")
)
