// Package receiver owns the canonical Host-side node tree and applies
// the operation batches a Bridge decodes off the Guest channel. It is
// the single instrumented chokepoint between the wire protocol and
// whatever Host UI framework ultimately paints the tree: every batch
// passes through applyBatch, which both mutates the tree and produces
// the ApplyStats an operator needs to answer "what did the tree just
// do and who caused it" without reproducing the load.
//
// Receiver has no notion of encoding or callback identity; by the time
// a batch reaches it, proto.Create/proto.Update props already carry
// Host-native values (a Bridge.ToHost call decodes function and
// promise envelopes before handing the batch to SendToHost). Receiver
// only walks proto.Op values and proto.Tree structure.
package receiver
