/*
Package proto defines the Guest→Host instruction protocol: the tagged union
of mutation operations, the batch envelope that carries them across the
bridge, and the flat node-tree representation the Host side rebuilds from
them.

# Operations

An Op is one mutation record. The eight concrete kinds (CREATE, UPDATE,
APPEND, INSERT, REMOVE, DELETE, REORDER, TEXT) are closed: Tag() reports
which one a given Op is, and a type switch on the concrete struct is the
idiomatic way to dispatch on it (see pkg/receiver for the canonical
dispatcher). Operations are read by the Receiver in the order they appear
in a batch; ordering is significant and is never reshuffled by this
package.

# Batches

An OperationBatch is the wire envelope: a wire version, the producer's
BatchId, and the ordered operation list. Nothing in this module assigns
or checks BatchIds; the Receiver applies
batches in the order it receives them, not in BatchId order, since a
producer is never expected to deliver batches out of order on one channel.

# Node tree

NodeInstance and Tree model the Host-side canonical tree described in the
specification: a flat map from NodeId to NodeInstance plus a separate
ordered list of top-level (parent id 0) children. Keeping parent/child
references as ids rather than pointers avoids ownership cycles and makes
subtree deletion a matter of walking ids, not managing shared pointers.
*/
package proto
