package model

import "errors"

// Configuration errors are fatal: they abort the run before any processing.
var (
	ErrNoTickers     = errors.New("config: ticker whitelist is empty")
	ErrMissingAPIKey = errors.New("config: LLM provider set but no API key in environment")
	ErrNoProvider    = errors.New("config: no LLM provider configured (set llm.provider)")
)

// ErrNoCitation rejects claims with no traceable origin.
var ErrNoCitation = errors.New("claim has no source citation")
