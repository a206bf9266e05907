package llm

import "errors"

// Sentinel kinds for LLM errors.
var (
	ErrProviderNotFound = errors.New("llm provider not found")
	ErrEmptyAPIKey      = errors.New("llm api key is empty")
	ErrEmptyCompletion  = errors.New("llm returned an empty completion")
	ErrNoMessages       = errors.New("llm request has no messages")
)
