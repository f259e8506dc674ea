package conduit

import "errors"

// Errors shared across the library. Callers match them with errors.Is; packages
// wrap them with fmt.Errorf("...: %w", err) to add context.
var (
	// ErrWouldBlock reports that a non-blocking operation could not proceed
	// immediately. Recoverable: retry or back off.
	ErrWouldBlock = errors.New("operation would block")

	// ErrTimedOut reports that a bounded wait expired before the operation
	// completed. Recoverable: the caller decides whether to retry, abandon,
	// or propagate.
	ErrTimedOut = errors.New("operation timed out")

	// ErrClosed reports an operation on a closed channel. Permanent: every
	// subsequent call on the same channel fails immediately with ErrClosed.
	ErrClosed = errors.New("channel is closed")

	// ErrPeerClosed reports that the other side of a cross-process channel or
	// pipe has terminated. Permanent for that endpoint: calls fail fast
	// instead of blocking forever.
	ErrPeerClosed = errors.New("peer closed")

	// ErrNotOwner reports a lock release by a caller that does not hold the
	// lock. Programmer error; treat as fatal in production code.
	ErrNotOwner = errors.New("caller does not own lock")

	// ErrSerialization reports that a cross-process payload could not be
	// encoded or decoded. Recoverable at the message level; the channel
	// itself stays usable.
	ErrSerialization = errors.New("payload serialization failed")

	// ErrEndOfStream reports that a consumer observed the stream sentinel:
	// no further messages will arrive on that stream.
	ErrEndOfStream = errors.New("end of stream")
)

// IsTerminal reports whether err is a permanent channel failure after which
// further blocking calls must fail fast rather than suspend.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrClosed) || errors.Is(err, ErrPeerClosed)
}
