/*
Package codec implements the type-rule codec: an ordered list of rules
that decide, value by value, how something crosses the Guest/Host
boundary. Encoding walks a Go value and applies the first rule whose
Match reports true; decoding walks the resulting wire value (a tree of
nil/bool/number/string/[]any/map[string]any, the shapes JSON and msgpack
both produce) and does the same.

Rule order is semantically load-bearing, not cosmetic: rules that
produce a `__type` envelope (functions, promises, dates, ...) must sit
after the rule that later consumes that same envelope shape on decode,
and primitives are checked first as a fast path. NewDefault returns the
rules in the one order callers should use; reordering it changes
behavior.

Two contexts carry the dependencies a rule needs beyond the value
itself: a CallbackRegistry and PromiseManager to mint and resolve
cross-boundary ids, and a way to recurse back into the codec for nested
values. EncodeContext is used walking out; DecodeContext walking in.
*/
package codec
