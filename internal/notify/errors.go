package notify

import "errors"

var (
	// ErrNotInitialized is returned by every operation before Initialize
	// and after Shutdown.
	ErrNotInitialized = errors.New("notification engine not initialized")
	// ErrUnknownKind is returned by Add for kinds missing from the registry.
	ErrUnknownKind = errors.New("unknown notification kind")

	// The errors below are logged and counted, never returned from Add.
	ErrPersistence = errors.New("notification persistence failed")
	ErrProbe       = errors.New("health probe failed")
	ErrDelivery    = errors.New("notification delivery failed")
)
