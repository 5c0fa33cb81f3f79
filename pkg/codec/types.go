package codec

import (
	"fmt"

	"github.com/GoAskAway/rill-sub003/pkg/promise"
)

// LivePromise marks a value as a not-yet-settled asynchronous result
// owned by the encoding side. Encoding it registers Result with the
// bound promise.Manager and produces a promise envelope; the eventual
// value travels later as a PROMISE_RESOLVE/PROMISE_REJECT message, never
// as part of this envelope.
type LivePromise struct {
	Result <-chan promise.Result
}

// Set is the Go rendering of a JS Set: an ordered collection of unique
// values with no key. Order is preserved (Go has no unordered-set
// requirement to satisfy); de-duplication is the caller's job, same as
// JS where inserting a duplicate into a Set is also a no-op left to the
// caller's discipline when building the slice.
type Set []any

// RemoteError is what a decoded Error envelope becomes: the original
// error's name, message, and optional stack, preserved for display
// rather than collapsed into a plain string.
type RemoteError struct {
	Name    string
	Message string
	Stack   string
}

func (e *RemoteError) Error() string {
	if e.Name == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}
