package warden

import "errors"

var (
	// Store errors.
	ErrNoStore = errors.New("warden: no store configured")

	// Script errors.
	ErrScriptNotRegistered = errors.New("warden: script not registered")
	ErrScriptUnavailable   = errors.New("warden: script unavailable after reload")

	// Configuration errors.
	ErrInvalidConfig       = errors.New("warden: invalid configuration")
	ErrUnknownStrategy     = errors.New("warden: unknown fetch strategy")
	ErrMixedIdentityModes  = errors.New("warden: private queue identity modes mixed in one cluster")
	ErrHeartbeatNotVisible = errors.New("warden: own heartbeat not visible")

	// Job errors.
	ErrInvalidJob     = errors.New("warden: invalid job")
	ErrNoHandler      = errors.New("warden: no handler registered")
	ErrBacklogFull    = errors.New("warden: push backlog full")
	ErrAlreadyStarted = errors.New("warden: already started")
)
