/*
Package promise implements the Promise Manager: a table of in-flight
asynchronous values that need a stable, transferable id to cross the
bridge.

Two id-producing paths mirror each other. Register attaches completion
handling to a value the local side already owns (an async operation
already running as a Go channel) and arms OnSettle to notify the other
side once it completes. CreatePending is the decode-side counterpart:
it mints a local placeholder for a promise id that arrived from the
other side, and that placeholder settles when Settle is later called
with a PROMISE_RESOLVE/PROMISE_REJECT message carrying the same id.

There is no .then chain here: Go code observes settlement by reading
a channel, not by registering continuations.
*/
package promise
