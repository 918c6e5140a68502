package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Caches, clients and the aggregator
// return these (optionally wrapped) so callers can branch with errors.Is:
// - ErrNotFound: entry does not exist (cache miss, unknown catalog)
// - ErrUnavailable: dependency temporarily unavailable
// - ErrClosed: component has stopped and no longer accepts work
// - ErrInvalidState: component in wrong state for requested operation
var (
	ErrNotFound     = errors.New("not found")
	ErrUnavailable  = errors.New("unavailable")
	ErrClosed       = errors.New("closed")
	ErrInvalidState = errors.New("invalid state")
)
