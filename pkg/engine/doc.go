// Package engine is the Host-side shell around a Guest sandbox: it owns
// the script context, injects the Host-to-Guest runtime globals, drives
// the bundle load sequence, and enforces the hard timeout and fatal-error
// policy that the rest of the core relies on for "the Host must survive
// any Guest misbehavior."
//
// Engine wires pkg/bridge and pkg/receiver together but does not
// reimplement either: it is lifecycle and injection plumbing, not a
// protocol surface of its own.
package engine
