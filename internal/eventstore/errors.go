package eventstore

import (
	"errors"
	"fmt"
)

// ErrSubscriberDead names the condition of a subscription whose delivery
// channel failed and was therefore removed. No Store or Subscription
// method returns it: a dead subscription shows as Active() == false and
// a closed Events() channel.
var ErrSubscriberDead = errors.New("eventstore: subscriber dead")

// ErrNoSnapshot indicates a stream has never had a snapshot saved.
var ErrNoSnapshot = errors.New("eventstore: no snapshot for stream")

// ConcurrencyConflictError reports the observed current version when an
// append's expected_version does not match.
type ConcurrencyConflictError struct {
	StreamID string
	CurrentVersion int64
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("eventstore: concurrency conflict on stream %q at version %d", e.StreamID, e.CurrentVersion)
}
