package repository

import "errors"

// Sentinel kinds for repository errors.
var (
	ErrNotFound     = errors.New("worker not found")
	ErrInvalidLimit = errors.New("invalid leaderboard limit")
	ErrInvalidState = errors.New("invalid state file")
)
