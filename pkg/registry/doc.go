/*
Package registry implements the Callback Registry: a refcounted handle
table that gives a Guest or Host closure a stable, transferable identity
so it can be named inside an encoded props map, sent across the bridge,
and invoked by the other side without ever sharing memory.

Registries are scoped to one side of the bridge. A Guest-side registry
hands out ids for Guest closures; a Host-side registry (rare: only host
functions embedded in host-event payloads need one) hands out ids for
Host closures. Refcounting, not garbage collection, decides an entry's
lifetime: the producing side registers on encode with an initial count of
one, and the consuming side's structural removal (or an explicit release)
drops it back to zero.
*/
package registry
