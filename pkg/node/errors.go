package node

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound maps HTTP 404 on a player resource. Terminal for the
	// resource; never retried.
	ErrNotFound = errors.New("node: resource not found")

	// ErrUnauthorized maps HTTP 401/403. Surfaced immediately; retrying a
	// bad password cannot help.
	ErrUnauthorized = errors.New("node: unauthorized")

	// ErrNoSession is returned for REST player operations issued before
	// the node delivered its session ID.
	ErrNoSession = errors.New("node: session not ready")

	// ErrNotConnected is returned when an operation requires a live
	// WebSocket and the node has none.
	ErrNotConnected = errors.New("node: not connected")

	// ErrNoNodeAvailable is returned by pool selection when no connected
	// node can host a player.
	ErrNoNodeAvailable = errors.New("node: no node available")
)

// StatusError reports a non-retryable HTTP status from a worker.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("node: unexpected status %d: %s", e.Code, e.Body)
}
