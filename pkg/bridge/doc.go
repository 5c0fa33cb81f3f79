/*
Package bridge implements the Bridge: the only channel the Guest and
Host sides use to talk. It owns the shared Codec, one CallbackRegistry
per side, and a single PromiseManager (promise ids are shared across
both sides' id space, since a promise registered on one side is awaited
as a pending placeholder on the other).

Guest→Host traffic (ToHost) and Host→Guest traffic (ToGuest) both run
the same two-step pipeline: encode with the sending side's registries
(turning live functions/promises into wire envelopes), then immediately
decode with the receiving side's registries (turning those envelopes
back into callable proxies and pending promises native to that side).
This models a Bridge that would, with a real cross-process Guest sandbox,
carry bytes over an actual channel. Here both hops happen in-process,
but the codec is exercised exactly as it would be over the wire.
*/
package bridge
