// Package observability defines the error kinds of the core packages
// (proto, codec, bridge, receiver, engine) and a pluggable backend to
// report them to.
//
// Every boundary surface in this module catches locally and keeps running.
// The Engine reports the conditions it catches to its configured Reporter;
// the Bridge, Receiver, codec, and registries log theirs through their own
// logger hooks and do not call a Reporter. Reporting is optional: with no
// reporter configured, the Engine's reporting is a nil check.
package observability
